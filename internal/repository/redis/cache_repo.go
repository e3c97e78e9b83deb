package redis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/repository/redis/converter"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/clients"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/jimlawless/whereami"
	r "github.com/redis/go-redis/v9"
)

// CacheRepo кэширует выдачу поиска в Redis.
type CacheRepo struct {
	client *clients.RedisClient
	conv   converter.SearchResultConverter
	cfg    *cfg.RedisCfg
	logger logger.Logger
}

func NewCacheRepo(client *clients.RedisClient, conv converter.SearchResultConverter,
	cfg *cfg.RedisCfg, logger logger.Logger) *CacheRepo {
	return &CacheRepo{
		client: client,
		conv:   conv,
		cfg:    cfg,
		logger: logger,
	}
}

// GetResults возвращает закэшированную выдачу. Промах и повреждённая запись: (nil, nil).
func (c *CacheRepo) GetResults(ctx context.Context, key *usecase.ResultCacheKey) ([]domain.SearchResult, error) {
	redisKey := resultsKey(key)

	data, err := c.client.Client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, r.Nil) {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	model, err := c.unmarshalResults(data)
	if err != nil {
		c.logger.Warnf("Redis unmarshal failed: %v", e.Wrap(whereami.WhereAmI(), err))
		c.evict(ctx, redisKey)
		return nil, nil
	}

	if model.SnapshotVersion != key.SnapshotVersion || model.TopK != key.TopK {
		c.logger.Warnf("Cache key mismatch: key: %s, snapshot_version: %s, top_k: %d", redisKey, model.SnapshotVersion, model.TopK)
		c.evict(ctx, redisKey)
		return nil, nil
	}

	return c.conv.ToArrEntity(model.Results), nil
}

// SetResults кэширует выдачу с TTL из конфигурации.
func (c *CacheRepo) SetResults(ctx context.Context, key *usecase.ResultCacheKey, results []domain.SearchResult) error {
	data, err := json.Marshal(converter.ResultsRedisModel{
		SnapshotVersion: key.SnapshotVersion,
		TopK:            key.TopK,
		Results:         c.conv.ToArrRedisModel(results),
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := c.client.Client.Set(ctx, resultsKey(key), data, c.cfg.ResultTTL).Err(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func (c *CacheRepo) evict(ctx context.Context, key string) {
	if err := c.client.Client.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
		c.logger.Warnf("Redis del failed: %v", e.Wrap(whereami.WhereAmI(), err))
	}
}

// unmarshalResults десериализует JSON из кэша в модель выдачи
func (c *CacheRepo) unmarshalResults(data []byte) (*converter.ResultsRedisModel, error) {
	var model converter.ResultsRedisModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, err
	}

	return &model, nil
}

// resultsKey возвращает Redis-ключ выдачи: retrieval:<версия>:<k>x<запас>:<sha256 запроса>.
// Хэшируется little-endian представление нормированного вектора.
func resultsKey(key *usecase.ResultCacheKey) string {
	h := sha256.New()
	buf := make([]byte, 4)
	for _, v := range key.Query {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		h.Write(buf)
	}

	return fmt.Sprintf("retrieval:%s:%dx%d:%s",
		key.SnapshotVersion, key.TopK, key.Oversample, hex.EncodeToString(h.Sum(nil)))
}
