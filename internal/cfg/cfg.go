package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/jimlawless/whereami"
)

const (
	IndexBackendArtifact = "artifact"
	IndexBackendQdrant   = "qdrant"

	MetadataSourceArtifact = "artifact"
	MetadataSourcePostgres = "postgres"

	ArtifactStoreFile  = "file"
	ArtifactStoreMinio = "minio"
)

type Config struct {
	Http      *HTTPConfig
	Grpc      *GRPCConfig
	Retrieval *RetrievalCfg
	Snapshot  *SnapshotCfg
	Minio     *MinIOCfg
	Db        *PGDBCfg
	Qdrant    *QdrantCfg
	Redis     *RedisCfg
	Encoder   *EncoderCfg
	Kafka     *KafkaCfg
}

type RetrievalCfg struct {
	Oversample  int // во сколько раз запрашивать больше хитов, чем k; не меньше 2
	DefaultTopK int
	MaxTopK     int
}

type SnapshotCfg struct {
	IndexBackend   string // artifact | qdrant
	MetadataSource string // artifact | postgres
	ArtifactStore  string // file | minio
	ArtifactDir    string
	Version        string
	IndexKey       string
	MappingKey     string
	CatalogKey     string
	LazyLoad       bool // загружать при первом запросе, а не при старте
	LoadTimeout    time.Duration
	RetryBase      time.Duration
	RetryMax       time.Duration
}

type KafkaCfg struct {
	Enabled           bool
	Topic             string
	GroupID           string
	Brokers           []string
	NetworkMode       string
	Partitions        int
	ReplicationFactor int
}

type MinIOCfg struct {
	MinioEndpoint     string // Адрес конечной точки Minio
	BucketName        string // Бакет с артефактами снапшотов
	MinioRootUser     string // Имя пользователя для доступа к Minio
	MinioRootPassword string // Пароль для доступа к Minio
	MinioUseSSL       bool
}

type HTTPConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	SwaggerURL   string
}

type GRPCConfig struct {
	Port        string
	NetworkMode string
}

type PGDBCfg struct {
	Host          string
	Port          string
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MigrationsURL string
	MaxConns      int32
}

type QdrantCfg struct {
	Port                 int
	Host                 string
	ApiKey               string
	QdrantCollectionName string // имя коллекции в Qdrant
	UseTLS               bool
	VectorSize           uint64
}

type RedisCfg struct {
	Enabled     bool
	Addr        string
	Password    string
	User        string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
	ResultTTL   time.Duration
}

type EncoderCfg struct {
	Addr          string
	MaxConcurrent int
	MaxRetries    int
	Timeout       time.Duration
}

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
func Load(log logger.Logger) (*Config, error) {
	http, err := loadHTTPConfig(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	retrieval, err := loadRetrievalCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	snapshot, err := loadSnapshotCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	encoder, err := loadEncoderCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	kafka, err := loadKafkaCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	cfg := &Config{
		Http:      http,
		Grpc:      loadGRPCConfig(),
		Retrieval: retrieval,
		Snapshot:  snapshot,
		Redis:     redis,
		Encoder:   encoder,
		Kafka:     kafka,
	}

	// Хранилища загружаются только под выбранные источники снапшота.
	if snapshot.ArtifactStore == ArtifactStoreMinio {
		if cfg.Minio, err = loadMinIOCfg(log); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
	}

	if snapshot.MetadataSource == MetadataSourcePostgres {
		if cfg.Db, err = loadPGDBCfg(log); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
	}

	if snapshot.IndexBackend == IndexBackendQdrant {
		if cfg.Qdrant, err = loadQdrantCfg(log); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
	}

	return cfg, nil
}

// LoadMinIO, LoadPGDB, LoadQdrant и LoadKafka загружают отдельные секции
// для утилит, которым не нужна конфигурация серверов.
func LoadMinIO(log logger.Logger) (*MinIOCfg, error) { return loadMinIOCfg(log) }

func LoadPGDB(log logger.Logger) (*PGDBCfg, error) { return loadPGDBCfg(log) }

func LoadQdrant(log logger.Logger) (*QdrantCfg, error) { return loadQdrantCfg(log) }

func LoadKafka() (*KafkaCfg, error) { return loadKafkaCfg() }

func loadRetrievalCfg(log logger.Logger) (*RetrievalCfg, error) {
	const (
		minOversample     = 2
		defaultOversample = 2
		defaultTopK       = 5
		defaultMaxTopK    = 50
	)

	oversample, err := parseIntEnv("RETRIEVAL_OVERSAMPLE", defaultOversample)
	if err != nil {
		log.Errorf(err, "invalid RETRIEVAL_OVERSAMPLE")
		return nil, e.Wrap("RETRIEVAL_OVERSAMPLE", err)
	}
	if oversample < minOversample {
		log.Warnf("RETRIEVAL_OVERSAMPLE=%d is below %d, using %d", oversample, minOversample, minOversample)
		oversample = minOversample
	}

	topK, err := parseIntEnv("RETRIEVAL_DEFAULT_TOP_K", defaultTopK)
	if err != nil {
		log.Errorf(err, "invalid RETRIEVAL_DEFAULT_TOP_K")
		return nil, e.Wrap("RETRIEVAL_DEFAULT_TOP_K", err)
	}

	maxTopK, err := parseIntEnv("RETRIEVAL_MAX_TOP_K", defaultMaxTopK)
	if err != nil {
		log.Errorf(err, "invalid RETRIEVAL_MAX_TOP_K")
		return nil, e.Wrap("RETRIEVAL_MAX_TOP_K", err)
	}

	if topK <= 0 || maxTopK < topK {
		return nil, fmt.Errorf("%w: need 0 < RETRIEVAL_DEFAULT_TOP_K (%d) <= RETRIEVAL_MAX_TOP_K (%d)",
			e.ErrIncorrectEnvVariable, topK, maxTopK)
	}

	return &RetrievalCfg{
		Oversample:  oversample,
		DefaultTopK: topK,
		MaxTopK:     maxTopK,
	}, nil
}

func loadSnapshotCfg(log logger.Logger) (*SnapshotCfg, error) {
	const (
		defaultArtifactDir = "data"
		defaultIndexKey    = "product_index_clip.hnsw"
		defaultMappingKey  = "embedding_to_product_map_clip.json"
		defaultCatalogKey  = "product_metadata_clip.json"
		defaultVersion     = "local"
		defaultLoadTimeout = 2 * time.Minute
		defaultRetryBase   = 1 * time.Second
		defaultRetryMax    = 30 * time.Second
	)

	indexBackend := getEnvOrDefault("INDEX_BACKEND", IndexBackendArtifact)
	if err := oneOf("INDEX_BACKEND", indexBackend, IndexBackendArtifact, IndexBackendQdrant); err != nil {
		return nil, err
	}

	metadataSource := getEnvOrDefault("METADATA_SOURCE", MetadataSourceArtifact)
	if err := oneOf("METADATA_SOURCE", metadataSource, MetadataSourceArtifact, MetadataSourcePostgres); err != nil {
		return nil, err
	}

	artifactStore := getEnvOrDefault("ARTIFACT_STORE", ArtifactStoreFile)
	if err := oneOf("ARTIFACT_STORE", artifactStore, ArtifactStoreFile, ArtifactStoreMinio); err != nil {
		return nil, err
	}

	lazy, err := parseBoolEnv("SNAPSHOT_LAZY_LOAD", false)
	if err != nil {
		log.Errorf(err, "invalid SNAPSHOT_LAZY_LOAD")
		return nil, e.Wrap("SNAPSHOT_LAZY_LOAD", err)
	}

	loadTimeout, err := parseDurationEnv("SNAPSHOT_LOAD_TIMEOUT", defaultLoadTimeout)
	if err != nil {
		log.Errorf(err, "invalid SNAPSHOT_LOAD_TIMEOUT")
		return nil, err
	}

	retryBase, err := parseDurationEnv("SNAPSHOT_RETRY_BASE", defaultRetryBase)
	if err != nil {
		log.Errorf(err, "invalid SNAPSHOT_RETRY_BASE")
		return nil, err
	}

	retryMax, err := parseDurationEnv("SNAPSHOT_RETRY_MAX", defaultRetryMax)
	if err != nil {
		log.Errorf(err, "invalid SNAPSHOT_RETRY_MAX")
		return nil, err
	}

	return &SnapshotCfg{
		IndexBackend:   indexBackend,
		MetadataSource: metadataSource,
		ArtifactStore:  artifactStore,
		ArtifactDir:    getEnvOrDefault("ARTIFACT_DIR", defaultArtifactDir),
		Version:        getEnvOrDefault("SNAPSHOT_VERSION", defaultVersion),
		IndexKey:       getEnvOrDefault("SNAPSHOT_INDEX_KEY", defaultIndexKey),
		MappingKey:     getEnvOrDefault("SNAPSHOT_MAPPING_KEY", defaultMappingKey),
		CatalogKey:     getEnvOrDefault("SNAPSHOT_CATALOG_KEY", defaultCatalogKey),
		LazyLoad:       lazy,
		LoadTimeout:    loadTimeout,
		RetryBase:      retryBase,
		RetryMax:       retryMax,
	}, nil
}

// loadKafkaCfg: уведомления о снапшотах опциональны: без KAFKA_BROKERS Kafka выключена.
func loadKafkaCfg() (*KafkaCfg, error) {
	const (
		defaultPartitions        = 1
		defaultReplicationFactor = 1
		defaultNetworkMode       = "tcp"
		defaultTopic             = "retrieval.snapshots"
		defaultGroupID           = "visual-search"
	)

	brokerStr := getEnv("KAFKA_BROKERS")
	if brokerStr == "" {
		return &KafkaCfg{Enabled: false}, nil
	}

	brokers := strings.Split(brokerStr, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}

	partitions, err := parseIntEnv("KAFKA_PARTITIONS", defaultPartitions)
	if err != nil {
		return nil, e.Wrap("KAFKA_PARTITIONS", err)
	}

	replicationFactor, err := parseIntEnv("REPLICATION_FACTOR", defaultReplicationFactor)
	if err != nil {
		return nil, e.Wrap("REPLICATION_FACTOR", err)
	}

	return &KafkaCfg{
		Enabled:           true,
		Brokers:           brokers,
		Topic:             getEnvOrDefault("KAFKA_TOPIC", defaultTopic),
		GroupID:           getEnvOrDefault("KAFKA_GROUP_ID", defaultGroupID),
		Partitions:        partitions,
		ReplicationFactor: replicationFactor,
		NetworkMode:       getEnvOrDefault("KAFKA_NETWORK_MODE", defaultNetworkMode),
	}, nil
}

func loadMinIOCfg(log logger.Logger) (*MinIOCfg, error) {
	const (
		defaultUseSSL   = false
		defaultEndpoint = "minio:9000"
		defaultBucket   = "retrieval-snapshots"
	)

	useSSL, err := parseBoolEnv("MINIO_USE_SSL", defaultUseSSL)
	if err != nil {
		log.Errorf(err, "invalid MINIO_USE_SSL")
		return nil, err
	}

	return &MinIOCfg{
		MinioEndpoint:     getEnvOrDefault("MINIO_ENDPOINT", defaultEndpoint),
		BucketName:        getEnvOrDefault("BUCKET_NAME", defaultBucket),
		MinioRootUser:     getEnv("MINIO_ROOT_USER"),
		MinioRootPassword: getEnv("MINIO_ROOT_PASSWORD"),
		MinioUseSSL:       useSSL,
	}, nil
}

func loadHTTPConfig(log logger.Logger) (*HTTPConfig, error) {
	const (
		defaultPort         = "8080"
		defaultReadTimeout  = 10 * time.Second
		defaultWriteTimeout = 30 * time.Second
		defaultIdleTimeout  = 60 * time.Second
	)

	port := getEnvOrDefault("HTTP_PORT", defaultPort)

	readTimeout, err := parseDurationEnv("HTTP_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("HTTP_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_WRITE_TIMEOUT")
		return nil, err
	}

	idleTimeout, err := parseDurationEnv("KEEP_ALIVE", defaultIdleTimeout)
	if err != nil {
		log.Errorf(err, "invalid KEEP_ALIVE")
		return nil, err
	}

	return &HTTPConfig{
		Port:         port,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
		SwaggerURL:   getEnvOrDefault("SWAGGER_URL", "http://localhost:"+port+"/swagger/doc.json"),
	}, nil
}

func loadGRPCConfig() *GRPCConfig {
	const (
		defaultPort        = "8091"
		defaultNetworkMode = "tcp"
	)

	return &GRPCConfig{
		Port:        getEnvOrDefault("GRPC_PORT", defaultPort),
		NetworkMode: getEnvOrDefault("GRPC_NETWORK_MODE", defaultNetworkMode),
	}
}

func loadPGDBCfg(log logger.Logger) (*PGDBCfg, error) {
	const (
		defaultHost       = "localhost"
		defaultPort       = "5432"
		defaultSSLMode    = "disable"
		defaultMigrations = "file://db/migrations"
		defaultMaxConns   = 10
	)

	user := getEnv("POSTGRES_USER")
	if user == "" {
		err := fmt.Errorf("POSTGRES_USER is required")
		log.Errorf(err, "missing POSTGRES_USER")
		return nil, err
	}

	password := getEnv("POSTGRES_PASSWORD")
	if password == "" {
		err := fmt.Errorf("POSTGRES_PASSWORD is required")
		log.Errorf(err, "missing POSTGRES_PASSWORD")
		return nil, err
	}

	dbName := getEnv("POSTGRES_DB")
	if dbName == "" {
		err := fmt.Errorf("POSTGRES_DB is required")
		log.Errorf(err, "missing POSTGRES_DB")
		return nil, err
	}

	maxConns, err := parseIntEnv("POSTGRES_MAX_CONNS", defaultMaxConns)
	if err != nil || maxConns <= 0 {
		err = fmt.Errorf("%w: POSTGRES_MAX_CONNS must be a positive integer", e.ErrIncorrectEnvVariable)
		log.Errorf(err, "invalid POSTGRES_MAX_CONNS")
		return nil, err
	}

	return &PGDBCfg{
		Host:          getEnvOrDefault("POSTGRES_HOST", defaultHost),
		Port:          getEnvOrDefault("POSTGRES_PORT", defaultPort),
		User:          user,
		Password:      password,
		DBName:        dbName,
		SSLMode:       getEnvOrDefault("SSL_MODE", defaultSSLMode),
		MigrationsURL: getEnvOrDefault("MIGRATIONS_URL", defaultMigrations),
		MaxConns:      int32(maxConns),
	}, nil
}

func loadQdrantCfg(logger logger.Logger) (*QdrantCfg, error) {
	const (
		defaultQdrantGRPCPort = 6334
		defaultUseTLS         = false
		defaultVectorSize     = "512"
		defaultCollection     = "product_images_clip"
	)

	port, err := parseIntEnv("QDRANT_GRPC_PORT", defaultQdrantGRPCPort)
	if err != nil {
		logger.Errorf(err, "invalid QDRANT_GRPC_PORT")
		return nil, err
	}

	useTLS, err := parseBoolEnv("QDRANT_USE_TLS", defaultUseTLS)
	if err != nil {
		logger.Errorf(err, "invalid QDRANT_USE_TLS")
		return nil, err
	}

	vectorSize, err := strconv.ParseUint(getEnvOrDefault("VECTOR_SIZE", defaultVectorSize), 10, 64)
	if err != nil {
		logger.Errorf(err, "invalid VECTOR_SIZE")
		return nil, err
	}

	host := getEnv("QDRANT_HOST")
	if host == "" {
		err := fmt.Errorf("QDRANT_HOST is required when INDEX_BACKEND=%s", IndexBackendQdrant)
		logger.Errorf(err, "missing QDRANT_HOST")
		return nil, err
	}

	return &QdrantCfg{
		Host:                 host,
		Port:                 port,
		ApiKey:               getEnv("QDRANT__SERVICE__API_KEY"),
		QdrantCollectionName: getEnvOrDefault("COLLECTION_NAME", defaultCollection),
		UseTLS:               useTLS,
		VectorSize:           vectorSize,
	}, nil
}

// loadRedisCfg: кэш выдачи опционален: без REDIS_ADDR он выключен.
func loadRedisCfg(log logger.Logger) (*RedisCfg, error) {
	const (
		defaultDB           = 0
		defaultMaxRetries   = 3
		defaultDialTimeout  = 5 * time.Second
		defaultReadTimeout  = 500 * time.Millisecond
		defaultWriteTimeout = 500 * time.Millisecond
		defaultResultTTL    = 10 * time.Minute
	)

	addr := getEnv("REDIS_ADDR")
	if addr == "" {
		return &RedisCfg{Enabled: false}, nil
	}

	db, err := parseIntEnv("REDIS_DB_ID", defaultDB)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DB_ID")
		return nil, err
	}

	maxRetries, err := parseIntEnv("MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid MAX_RETRIES")
		return nil, err
	}

	dialTimeout, err := parseDurationEnv("DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		log.Errorf(err, "invalid DIAL_TIMEOUT")
		return nil, err
	}

	readTimeout, err := parseDurationEnv("READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid WRITE_TIMEOUT")
		return nil, err
	}

	resultTTL, err := parseDurationEnv("RESULT_TTL", defaultResultTTL)
	if err != nil {
		log.Errorf(err, "invalid RESULT_TTL")
		return nil, err
	}

	return &RedisCfg{
		Enabled:     true,
		Addr:        addr,
		Password:    getEnv("REDIS_PASSWORD"),
		User:        getEnv("REDIS_USER"),
		DB:          db,
		MaxRetries:  maxRetries,
		DialTimeout: dialTimeout,
		Timeout:     max(readTimeout, writeTimeout),
		ResultTTL:   resultTTL,
	}, nil
}

func loadEncoderCfg(log logger.Logger) (*EncoderCfg, error) {
	const (
		defaultHost          = "encoder"
		defaultPort          = "50051"
		defaultMaxConcurrent = 8
		defaultMaxRetries    = 3
		defaultTimeout       = 10 * time.Second
	)

	maxConcurrent, err := parseIntEnv("ENCODER_MAX_CONCURRENT", defaultMaxConcurrent)
	if err != nil || maxConcurrent <= 0 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid ENCODER_MAX_CONCURRENT")
		return nil, e.Wrap("ENCODER_MAX_CONCURRENT", e.ErrIncorrectEnvVariable)
	}

	maxRetries, err := parseIntEnv("ENCODER_MAX_RETRIES", defaultMaxRetries)
	if err != nil || maxRetries <= 0 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid ENCODER_MAX_RETRIES")
		return nil, e.Wrap("ENCODER_MAX_RETRIES", e.ErrIncorrectEnvVariable)
	}

	timeout, err := parseDurationEnv("ENCODER_TIMEOUT", defaultTimeout)
	if err != nil {
		log.Errorf(err, "invalid ENCODER_TIMEOUT")
		return nil, err
	}

	addr := getEnv("ENCODER_ADDR")
	if addr == "" {
		addr = getEnvOrDefault("ENCODER_HOST", defaultHost) + ":" + getEnvOrDefault("ENCODER_PORT", defaultPort)
	}

	return &EncoderCfg{
		Addr:          addr,
		MaxConcurrent: maxConcurrent,
		MaxRetries:    maxRetries,
		Timeout:       timeout,
	}, nil
}

// getEnv возвращает значение переменной окружения.
// Возвращает пустую строку, если переменная не задана.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// parseDurationEnv считывает длительность или возвращает значение по умолчанию.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		return time.ParseDuration(v)
	}

	return defaultValue, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return intValue, nil
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return b, nil
}

// oneOf проверяет, что значение переменной входит в допустимый набор.
func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}

	return fmt.Errorf("%w: %s=%q, want one of %v", e.ErrIncorrectEnvVariable, key, value, allowed)
}
