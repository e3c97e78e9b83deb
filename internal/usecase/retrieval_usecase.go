package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
)

const (
	// minOversample: индекс всегда опрашивается минимум на 2k хитов.
	minOversample = 2

	cacheTimeout = 200 * time.Millisecond
)

// RetrievalUseCase ищет похожие продукты: нормализует запрос, опрашивает индекс
// с запасом, схлопывает изображения одного продукта и сортирует выдачу.
type RetrievalUseCase struct {
	snapshots SnapshotProvider
	encoder   EncoderInfra
	cacheRepo CacheRepository // nil: кэш выключен
	cfg       *cfg.RetrievalCfg
	logger    logger.Logger
}

func NewRetrievalUC(
	snapshots SnapshotProvider,
	encoder EncoderInfra,
	cacheRepo CacheRepository,
	cfg *cfg.RetrievalCfg,
	logger logger.Logger,
) *RetrievalUseCase {
	return &RetrievalUseCase{
		snapshots: snapshots,
		encoder:   encoder,
		cacheRepo: cacheRepo,
		cfg:       cfg,
		logger:    logger,
	}
}

// Retrieve возвращает до k уникальных продуктов, ближайших к вектору запроса.
// Меньше k результатов: не ошибка.
func (r *RetrievalUseCase) Retrieve(ctx context.Context, req *RetrieveReq) (*RetrieveRes, error) {
	const op = "RetrievalUseCase.Retrieve"

	k, err := r.resolveTopK(req.TopK)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	query, err := domain.Normalize(req.Vector)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	snap, err := r.snapshots.Current(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if query.Dim() != snap.Index.Dimension() {
		return nil, e.Wrap(fmt.Sprintf("%s: query has %d components, index has %d", op, query.Dim(), snap.Index.Dimension()),
			e.ErrDimensionMismatch)
	}

	cacheKey := NewResultCacheKey(snap.Version, k, r.oversample(), query)
	if cached, ok := r.getCached(ctx, cacheKey); ok {
		return NewRetrieveRes(snap.Version, true, cached), nil
	}

	hits, err := snap.Index.Search(ctx, query, k*r.oversample())
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	results, stats := rankHits(snap, hits, k)
	if stats.stale > 0 || stats.missingProduct > 0 || stats.missingImage > 0 {
		r.logger.Debugf("snapshot %s: skipped %d stale ids, %d unknown products, %d missing image slots",
			snap.Version, stats.stale, stats.missingProduct, stats.missingImage)
	}

	r.setCached(ctx, cacheKey, results)

	return NewRetrieveRes(snap.Version, false, results), nil
}

// RetrieveByImage векторизует изображение и ищет по полученному вектору.
func (r *RetrievalUseCase) RetrieveByImage(ctx context.Context, req *ImageQueryReq) (*RetrieveRes, error) {
	const op = "RetrievalUseCase.RetrieveByImage"

	if len(req.Data) == 0 {
		return nil, e.Wrap(op, e.ErrNoImage)
	}

	if _, err := r.resolveTopK(req.TopK); err != nil {
		return nil, e.Wrap(op, err)
	}

	vector, err := r.encoder.EncodeImage(ctx, NewEncodeImageReq(req.Data, req.MimeType))
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return r.Retrieve(ctx, NewRetrieveReq(vector, req.TopK))
}

// RetrieveByText векторизует текст и ищет по полученному вектору.
func (r *RetrievalUseCase) RetrieveByText(ctx context.Context, req *TextQueryReq) (*RetrieveRes, error) {
	const op = "RetrievalUseCase.RetrieveByText"

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, e.Wrap(op, e.ErrEmptyQuery)
	}

	if _, err := r.resolveTopK(req.TopK); err != nil {
		return nil, e.Wrap(op, err)
	}

	vector, err := r.encoder.EncodeText(ctx, query)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return r.Retrieve(ctx, NewRetrieveReq(vector, req.TopK))
}

// resolveTopK подставляет значение по умолчанию для 0 и проверяет границы.
func (r *RetrievalUseCase) resolveTopK(topK int) (int, error) {
	if topK == 0 {
		return r.cfg.DefaultTopK, nil
	}
	if topK < 0 || topK > r.cfg.MaxTopK {
		return 0, e.Wrap(fmt.Sprintf("top_k=%d, allowed 1..%d", topK, r.cfg.MaxTopK), e.ErrInvalidTopK)
	}
	return topK, nil
}

func (r *RetrievalUseCase) oversample() int {
	return max(r.cfg.Oversample, minOversample)
}

func (r *RetrievalUseCase) getCached(ctx context.Context, key *ResultCacheKey) ([]domain.SearchResult, bool) {
	if r.cacheRepo == nil {
		return nil, false
	}

	cacheCtx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()

	results, err := r.cacheRepo.GetResults(cacheCtx, key)
	if err != nil {
		r.logger.Warnf("result cache get failed: %v", err)
		return nil, false
	}

	return results, results != nil
}

func (r *RetrievalUseCase) setCached(ctx context.Context, key *ResultCacheKey, results []domain.SearchResult) {
	if r.cacheRepo == nil {
		return
	}

	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()

	if err := r.cacheRepo.SetResults(cacheCtx, key, results); err != nil {
		r.logger.Warnf("result cache set failed: %v", err)
	}
}

// rankStats: сколько хитов отброшено и почему.
type rankStats struct {
	stale          int // id нет в маппинге
	duplicate      int // продукт уже в выдаче
	missingProduct int // продукта нет в каталоге
	missingImage   int // у продукта нет изображения с таким слотом
}

// rankHits проходит хиты в порядке индекса и берёт первое вхождение каждого продукта,
// пока не наберёт k. Результат отсортирован по score по убыванию, затем по ProductID.
func rankHits(snap *Snapshot, hits []domain.Hit, k int) ([]domain.SearchResult, rankStats) {
	var stats rankStats

	results := make([]domain.SearchResult, 0, min(k, len(hits)))
	accepted := make(map[domain.ProductID]struct{}, k)

	for _, hit := range hits {
		if len(results) >= k {
			break
		}

		mapping, ok := snap.Embeddings.Resolve(hit.ID)
		if !ok {
			stats.stale++
			continue
		}

		if _, seen := accepted[mapping.ProductID]; seen {
			stats.duplicate++
			continue
		}

		product, ok := snap.Catalog.Lookup(mapping.ProductID)
		if !ok {
			stats.missingProduct++
			continue
		}

		primary, ok := product.ImageURL(mapping.ImageSlot)
		if !ok {
			stats.missingImage++
			continue
		}

		accepted[mapping.ProductID] = struct{}{}
		results = append(results, domain.NewSearchResult(product, primary, hit.Score))
	}

	domain.SortResults(results)

	return results, stats
}
