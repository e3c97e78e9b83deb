package cfg

import (
	"testing"
	"time"

	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"REDIS_ADDR", "KAFKA_BROKERS", "INDEX_BACKEND", "METADATA_SOURCE", "ARTIFACT_STORE",
		"RETRIEVAL_OVERSAMPLE", "RETRIEVAL_DEFAULT_TOP_K", "RETRIEVAL_MAX_TOP_K", "ENCODER_ADDR",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load(logger.Nop())
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Retrieval.Oversample)
	assert.Equal(t, 5, cfg.Retrieval.DefaultTopK)
	assert.Equal(t, 50, cfg.Retrieval.MaxTopK)
	assert.Equal(t, IndexBackendArtifact, cfg.Snapshot.IndexBackend)
	assert.Equal(t, MetadataSourceArtifact, cfg.Snapshot.MetadataSource)
	assert.Equal(t, ArtifactStoreFile, cfg.Snapshot.ArtifactStore)
	assert.Equal(t, "embedding_to_product_map_clip.json", cfg.Snapshot.MappingKey)
	assert.False(t, cfg.Snapshot.LazyLoad)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "encoder:50051", cfg.Encoder.Addr)
	assert.Nil(t, cfg.Minio)
	assert.Nil(t, cfg.Db)
	assert.Nil(t, cfg.Qdrant)
}

func TestLoad_OversampleClampedToTwo(t *testing.T) {
	t.Setenv("RETRIEVAL_OVERSAMPLE", "1")

	cfg, err := Load(logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Retrieval.Oversample)
}

func TestLoad_Optional(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("RESULT_TTL", "30s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SNAPSHOT_LAZY_LOAD", "true")

	cfg, err := Load(logger.Nop())
	require.NoError(t, err)

	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Redis.ResultTTL)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Snapshot.LazyLoad)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"INDEX_BACKEND": "faiss"}},
		{"unknown metadata source", map[string]string{"METADATA_SOURCE": "sqlite"}},
		{"non-numeric oversample", map[string]string{"RETRIEVAL_OVERSAMPLE": "two"}},
		{"default above max", map[string]string{"RETRIEVAL_DEFAULT_TOP_K": "10", "RETRIEVAL_MAX_TOP_K": "5"}},
		{"postgres without credentials", map[string]string{"METADATA_SOURCE": "postgres", "POSTGRES_USER": ""}},
		{"postgres pool size", map[string]string{
			"METADATA_SOURCE": "postgres", "POSTGRES_USER": "u", "POSTGRES_PASSWORD": "p",
			"POSTGRES_DB": "catalog", "POSTGRES_MAX_CONNS": "0",
		}},
		{"qdrant without host", map[string]string{"INDEX_BACKEND": "qdrant", "QDRANT_HOST": ""}},
		{"bad lazy flag", map[string]string{"SNAPSHOT_LAZY_LOAD": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(logger.Nop())
			require.Error(t, err)
		})
	}
}

func TestOneOf(t *testing.T) {
	require.NoError(t, oneOf("X", "a", "a", "b"))
	require.ErrorIs(t, oneOf("X", "c", "a", "b"), e.ErrIncorrectEnvVariable)
}
