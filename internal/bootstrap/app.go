package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"dataledge/internal/blobs"
	"dataledge/internal/cleanup"
	"dataledge/internal/fetch"
	"dataledge/internal/metadata"
	"dataledge/internal/services/health"
	"dataledge/internal/shared/config"
	"dataledge/internal/shared/server"
	"dataledge/internal/shared/storage/db"
	"dataledge/internal/shared/storage/object"
	localstore "dataledge/internal/shared/storage/object/local"
	miniostore "dataledge/internal/shared/storage/object/minio"
	s3store "dataledge/internal/shared/storage/object/s3"
	"dataledge/internal/shared/telemetry"
)

var (
	openDB        = db.GetSingleton
	runMigrations = db.RunMigrations
	closeDB       = db.CloseSingleton
)

// App holds shared dependencies for the API server and the worker.
type App struct {
	Config          config.Config
	Router          *gin.Engine
	DB              *sql.DB
	Store           object.Store
	MetadataRepo    metadata.Repo
	Fetcher         *fetch.Fetcher
	MetadataService *metadata.Service
	BlobService     *blobs.Service
	MetadataHandler *metadata.Handler
	BlobHandler     *blobs.Handler
	CleanupHandler  *cleanup.Handler
}

// Build prepares the API server dependencies and router.
func Build(cfg config.Config) (*App, error) {
	app, err := build(cfg, db.DefaultServerOptions())
	if err != nil {
		return nil, err
	}
	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		MetadataHandler: app.MetadataHandler,
		BlobHandler:     app.BlobHandler,
		Health:          health.NewService(app.DB),
	})
	return app, nil
}

// BuildWorker prepares the tenant deletion consumer dependencies. The pool
// is sized for the configured worker concurrency.
func BuildWorker(cfg config.Config) (*App, error) {
	return build(cfg, db.DefaultWorkerOptions(cfg.WorkerConcurrency))
}

func build(cfg config.Config, dbOpts db.Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg, dbOpts)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		if sqlDB != nil {
			releaseDB("store setup failed")
		}
		return nil, err
	}

	var repo metadata.Repo
	if sqlDB != nil {
		repo = &metadata.PGRepo{DB: sqlDB}
	} else {
		repo = metadata.NewMemoryRepo()
	}

	fetcher := fetch.New(fetch.Options{
		ConnectTimeout: cfg.FetchConnectTimeout,
		ReadTimeout:    cfg.FetchReadTimeout,
		MaxBytes:       cfg.FetchMaxBytes,
	})
	metaSvc := metadata.NewService(repo)
	blobSvc := blobs.NewService(store, metaSvc, fetcher)

	return &App{
		Config:          cfg,
		DB:              sqlDB,
		Store:           store,
		MetadataRepo:    repo,
		Fetcher:         fetcher,
		MetadataService: metaSvc,
		BlobService:     blobSvc,
		MetadataHandler: metadata.NewHandler(metaSvc, blobSvc),
		BlobHandler:     blobs.NewHandler(blobSvc, cfg.MaxUploadBytes),
		CleanupHandler:  cleanup.NewHandler(blobSvc),
	}, nil
}

func buildDB(ctx context.Context, cfg config.Config, opts db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := openDB(ctx, cfg.DatabaseURL, db.OptionsFromEnv(opts))
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}

	// Outside dev the schema is owned by cmd/migrate.
	if isDevLike(cfg.Env) {
		if err := runMigrations(ctx, sqlDB); err != nil {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "migrations failed", "error": err.Error()})
			releaseDB("migrations failed")
			return nil, nil
		}
	}
	return sqlDB, nil
}

func releaseDB(reason string) {
	if err := closeDB(); err != nil {
		telemetry.Warn("bootstrap.db.close_failed", map[string]any{"reason": reason, "error": err.Error()})
	}
}

func buildStore(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.StorageContainer) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires STORAGE_CONTAINER")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.StorageContainer, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "minio":
		return miniostore.New(ctx, cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOUseSSL, cfg.StorageContainer)
	default:
		store := localstore.New(cfg.LocalStoreDir)
		if err := store.EnsureContainer(); err != nil {
			return nil, fmt.Errorf("prepare local store: %w", err)
		}
		return store, nil
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
