package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/DRSN-tech/visual-search/internal/cfg"
	v1Grpc "github.com/DRSN-tech/visual-search/internal/delivery/v1/grpc"
	v1Http "github.com/DRSN-tech/visual-search/internal/delivery/v1/http"
	"github.com/DRSN-tech/visual-search/internal/infrastructure/encoder"
	"github.com/DRSN-tech/visual-search/internal/infrastructure/kafka"
	"github.com/DRSN-tech/visual-search/internal/infrastructure/snapshot"
	"github.com/DRSN-tech/visual-search/internal/repository/artifact"
	s3Repo "github.com/DRSN-tech/visual-search/internal/repository/minio"
	"github.com/DRSN-tech/visual-search/internal/repository/pgdb"
	pgdbConv "github.com/DRSN-tech/visual-search/internal/repository/pgdb/converter"
	qdrantRepo "github.com/DRSN-tech/visual-search/internal/repository/qdrant"
	"github.com/DRSN-tech/visual-search/internal/repository/redis"
	redisConv "github.com/DRSN-tech/visual-search/internal/repository/redis/converter"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/clients"
	"github.com/DRSN-tech/visual-search/pkg/closer"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/DRSN-tech/visual-search/pkg/postgres"
	transaction "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
)

const (
	initTimeout     = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// App: собранный сервис поиска: снапшот, encoder, кэш, HTTP и gRPC.
type App struct {
	cfg    *config.Config
	logger logger.Logger
	closer *closer.Closer

	holder   *snapshot.Holder
	consumer *kafka.SnapshotConsumer // nil: обновления снапшота через kafka выключены
	httpSrv  *v1Http.Server
	grpcSrv  *v1Grpc.GRPCServer
}

// NewApp инициализирует зависимости. При ошибке уже открытые ресурсы закрываются.
func NewApp(cfg *config.Config, log logger.Logger) (app *App, err error) {
	a := &App{
		cfg:    cfg,
		logger: log,
		closer: closer.NewCloser(0),
	}
	defer func() {
		if err != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if cerr := a.closer.Close(ctx); cerr != nil {
				log.Warnf("cleanup after failed init: %v", cerr)
			}
		}
	}()

	snapshotUC, err := a.initSnapshotUC()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	a.holder = snapshot.NewHolder(snapshotUC, snapshot.HolderOpts{
		Initial: usecase.NewSnapshotRef(
			cfg.Snapshot.Version,
			cfg.Snapshot.IndexKey,
			cfg.Snapshot.MappingKey,
			cfg.Snapshot.CatalogKey,
		),
		LazyLoad:    cfg.Snapshot.LazyLoad,
		LoadTimeout: cfg.Snapshot.LoadTimeout,
	}, logger.Component(log, "snapshot"))

	conn, err := clients.NewEncoderConn(cfg.Encoder)
	if err != nil {
		log.Errorf(err, "failed to initialize encoder client")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	a.closer.AddFunc("encoder conn", conn.Close)
	enc := encoder.NewEncoder(conn, cfg.Encoder, logger.Component(log, "encoder"))

	cacheRepo, err := a.initCache()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	retrievalUC := usecase.NewRetrievalUC(a.holder, enc, cacheRepo, cfg.Retrieval, log)

	if cfg.Kafka.Enabled {
		a.consumer = kafka.NewSnapshotConsumer(cfg.Kafka, a.holder, logger.Component(log, "kafka"))
	}

	a.grpcSrv = v1Grpc.NewGRPCServer(cfg.Grpc, log)
	a.grpcSrv.RegisterServices(retrievalUC)

	r := chi.NewRouter()
	router := v1Http.NewRouter(r, cfg.Http, log)
	router.Init(retrievalUC, a.holder)
	a.httpSrv = v1Http.NewServer(r, cfg.Http)

	return a, nil
}

// Run запускает серверы и блокируется до сигнала остановки или падения сервера.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !a.cfg.Snapshot.LazyLoad {
		go func() {
			if err := a.holder.Warmup(ctx, a.cfg.Snapshot.RetryBase, a.cfg.Snapshot.RetryMax); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Errorf(err, "snapshot warmup stopped")
			}
		}()
	}

	if a.consumer != nil {
		a.consumer.Start(ctx)
		a.closer.AddFunc("kafka consumer", func() error {
			cancel()
			return a.consumer.Stop()
		})
	}

	grpcErrCh := make(chan error, 1)
	go func() {
		a.logger.Infof("gRPC server starting on %s:%s", a.cfg.Grpc.NetworkMode, a.cfg.Grpc.Port)
		if err := a.grpcSrv.Start(); err != nil {
			a.logger.Errorf(err, "gRPC server failed")
			grpcErrCh <- err
		}
	}()
	a.closer.Add("grpc server", a.grpcSrv.Stop)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("HTTP server started on port %s", a.cfg.Http.Port)
		if err := a.httpSrv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Errorf(err, "HTTP server failed: %v", err)
			errCh <- err
		}
	}()
	a.closer.Add("http server", a.httpSrv.Stop)

	// === Ожидание сигнала или ошибки ===
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	var appErr error
	select {
	case appErr = <-errCh:
		a.logger.Errorf(appErr, "HTTP server fatal error")
	case appErr = <-grpcErrCh:
		a.logger.Errorf(appErr, "gRPC server fatal error")
	case <-shutdown:
		a.logger.Infof("Received shutdown signal, stopping gracefully...")
	}

	// === Graceful shutdown ===
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := a.closer.Close(shutdownCtx); err != nil {
		a.logger.Errorf(err, "shutdown finished with errors")
	}

	a.logger.Infof("Application shutdown complete")
	return appErr
}

// initSnapshotUC собирает источники индекса и метаданных по конфигурации снапшота.
func (a *App) initSnapshotUC() (usecase.SnapshotUC, error) {
	sc := a.cfg.Snapshot

	var snapshotRepo *artifact.SnapshotRepo
	if sc.IndexBackend == config.IndexBackendArtifact || sc.MetadataSource == config.MetadataSourceArtifact {
		store, err := a.initArtifactStore()
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		snapshotRepo = artifact.NewSnapshotRepo(store, a.logger)
	}

	var indexRepo usecase.IndexRepository = snapshotRepo
	if sc.IndexBackend == config.IndexBackendQdrant {
		repo, err := a.initQdrant()
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		indexRepo = repo
	}

	var (
		mappingRepo usecase.EmbeddingMapRepository
		catalogRepo usecase.CatalogRepository
		dbPool      transaction.Transactional // nil: без транзакции
	)
	switch sc.MetadataSource {
	case config.MetadataSourcePostgres:
		db, err := a.initPGDB()
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		mappingRepo = pgdb.NewEmbeddingMapRepo(db.Pool, pgdbConv.NewProductEmbeddingConverter())
		catalogRepo = pgdb.NewProductRepo(db.Pool, pgdbConv.NewProductConverter())
		dbPool = db.Pool
	default:
		mappingRepo = snapshotRepo
		catalogRepo = snapshotRepo
	}

	return usecase.NewSnapshotUC(indexRepo, mappingRepo, catalogRepo, dbPool, a.logger), nil
}

func (a *App) initArtifactStore() (usecase.ArtifactRepository, error) {
	if a.cfg.Snapshot.ArtifactStore != config.ArtifactStoreMinio {
		a.logger.Infof("reading snapshot artifacts from %s", a.cfg.Snapshot.ArtifactDir)
		return artifact.NewFileRepo(a.cfg.Snapshot.ArtifactDir), nil
	}

	minioClient, err := clients.NewMinIOClient(a.cfg.Minio)
	if err != nil {
		a.logger.Errorf(err, "failed to initialize minio client")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := clients.EnsureBucket(ctx, minioClient, a.cfg.Minio.BucketName); err != nil {
		a.logger.Errorf(err, "failed to initialize MinIO bucket")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return s3Repo.NewArtifactRepo(minioClient, a.cfg.Minio), nil
}

func (a *App) initQdrant() (*qdrantRepo.IndexRepo, error) {
	qdrantClient, err := clients.NewQdrantClient(a.cfg.Qdrant)
	if err != nil {
		a.logger.Errorf(err, "failed to initialize qdrant")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	a.closer.AddFunc("qdrant", qdrantClient.Client.Close)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := clients.EnsureCollection(ctx, qdrantClient, qdrantRepo.PayloadIndexVersion); err != nil {
		a.logger.Errorf(err, "failed to initialize qdrant collection")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return qdrantRepo.NewIndexRepo(qdrantClient.Client, a.cfg.Qdrant), nil
}

// initCache возвращает nil-интерфейс, если кэш выключен.
func (a *App) initCache() (usecase.CacheRepository, error) {
	if !a.cfg.Redis.Enabled {
		return nil, nil
	}

	redisClient := clients.NewRedisClient(a.cfg.Redis)
	a.closer.AddFunc("redis", redisClient.Close)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := redisClient.Ping(ctx); err != nil {
		a.logger.Errorf(err, "failed to connect to redis")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return redis.NewCacheRepo(redisClient, redisConv.NewSearchResultConverter(), a.cfg.Redis, a.logger), nil
}

func (a *App) initPGDB() (*postgres.PgDatabase, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	db, err := postgres.Connect(ctx, a.cfg.Db)
	if err != nil {
		a.logger.Errorf(err, "failed to connect to database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	a.closer.AddFunc("postgres", func() error {
		db.Close()
		return nil
	})

	if err := db.RunMigrations(a.logger); err != nil {
		a.logger.Errorf(err, "failed to run migrations")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.Ping(ctx); err != nil {
		a.logger.Errorf(err, "failed to ping database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return db, nil
}
