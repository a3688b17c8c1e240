// Package config loads server configuration from the environment and wires
// the intake service together.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driverdesk/driverdesk/migrations"
	"github.com/driverdesk/driverdesk/pkg/driverdesk"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/auth"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/contract"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/readsign"
	repomemory "github.com/driverdesk/driverdesk/pkg/driverdesk/repo/memory"
	repopg "github.com/driverdesk/driverdesk/pkg/driverdesk/repo/postgres"
	reposqlite "github.com/driverdesk/driverdesk/pkg/driverdesk/repo/sqlite"
	fsstorage "github.com/driverdesk/driverdesk/pkg/driverdesk/storage/fs"
	memorystorage "github.com/driverdesk/driverdesk/pkg/driverdesk/storage/memory"
	s3storage "github.com/driverdesk/driverdesk/pkg/driverdesk/storage/s3"
)

// Config holds all server settings, read from environment variables.
type Config struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	// DatabaseURL selects the repository backend: postgres:// DSN, a file
	// path for SQLite, or empty for the in-memory repository.
	DatabaseURL string `env:"DATABASE_URL" env-default:""`

	// Storage. An empty bucket selects the backend named by StorageType.
	StorageType     string `env:"STORAGE_TYPE" env-default:"memory"` // memory, fs, s3
	FSBaseDir       string `env:"FS_BASE_DIR" env-default:"./data/objects"`
	S3Region        string `env:"S3_REGION" env-default:"auto"`
	S3Bucket        string `env:"S3_BUCKET" env-default:""`
	S3AccessKeyID   string `env:"S3_ACCESS_KEY_ID" env-default:""`
	S3SecretKey     string `env:"S3_SECRET_ACCESS_KEY" env-default:""`
	S3Endpoint      string `env:"S3_ENDPOINT" env-default:""`
	S3UsePathStyle  bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	S3CreateBucket  bool   `env:"S3_CREATE_BUCKET" env-default:"false"`
	PresignDuration int    `env:"PRESIGN_DURATION_SECONDS" env-default:"900"`

	// FileSigningSecret signs read URLs. Deliberately distinct from
	// JWTSecret so rotating one does not invalidate the other.
	FileSigningSecret string        `env:"FILE_SIGNING_SECRET" env-required:"true"`
	JWTSecret         string        `env:"JWT_SECRET" env-required:"true"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" env-default:"12h"`

	// RendererURL points at the HTML-to-PDF rendering service. Empty
	// disables contract generation.
	RendererURL string `env:"RENDERER_URL" env-default:""`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return &cfg, nil
}

// App bundles the wired components the server needs.
type App struct {
	Service     driverdesk.Service
	Repository  driverdesk.Repository
	BlobStore   driverdesk.BlobStore
	ReadSigner  *readsign.Signer
	AuthService *auth.Service
	TokenIssuer *auth.TokenIssuer

	cleanup []func()
}

// Close releases pooled resources.
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

// Build wires the repository, blob store, signer, and services described by
// cfg, running migrations for SQL backends.
func (cfg *Config) Build(ctx context.Context) (*App, error) {
	app := &App{}

	repo, err := cfg.buildRepository(ctx, app)
	if err != nil {
		return nil, err
	}
	app.Repository = repo

	store, err := cfg.buildBlobStore()
	if err != nil {
		return nil, err
	}
	app.BlobStore = store

	signer, err := readsign.New([]byte(cfg.FileSigningSecret))
	if err != nil {
		return nil, err
	}
	app.ReadSigner = signer

	opts := []driverdesk.Option{
		driverdesk.WithRepository(repo),
		driverdesk.WithBlobStore(store),
	}
	if cfg.RendererURL != "" {
		renderer, err := contract.New(cfg.RendererURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, driverdesk.WithContractRenderer(renderer))
	}
	svc, err := driverdesk.New(opts...)
	if err != nil {
		return nil, err
	}
	app.Service = svc

	issuer, err := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	app.TokenIssuer = issuer
	app.AuthService = auth.NewService(repo, issuer)

	return app, nil
}

func (cfg *Config) buildRepository(ctx context.Context, app *App) (driverdesk.Repository, error) {
	switch {
	case cfg.DatabaseURL == "":
		return repomemory.New(), nil
	case strings.HasPrefix(cfg.DatabaseURL, "postgres://"),
		strings.HasPrefix(cfg.DatabaseURL, "postgresql://"):
		if err := migrations.UpPostgres(ctx, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("run postgres migrations: %w", err)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		app.cleanup = append(app.cleanup, pool.Close)
		return repopg.NewWithPool(pool), nil
	default:
		repo, err := reposqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := migrations.UpSQLite(ctx, repo.DB()); err != nil {
			repo.Close()
			return nil, fmt.Errorf("run sqlite migrations: %w", err)
		}
		app.cleanup = append(app.cleanup, func() { _ = repo.Close() })
		return repo, nil
	}
}

func (cfg *Config) buildBlobStore() (driverdesk.BlobStore, error) {
	storageType := cfg.StorageType
	if cfg.S3Bucket != "" {
		storageType = "s3"
	}

	switch storageType {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: cfg.FSBaseDir})
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 cfg.S3Region,
			Bucket:                 cfg.S3Bucket,
			AccessKeyID:            cfg.S3AccessKeyID,
			SecretAccessKey:        cfg.S3SecretKey,
			Endpoint:               cfg.S3Endpoint,
			UsePathStyle:           cfg.S3UsePathStyle,
			PresignDuration:        cfg.PresignDuration,
			CreateBucketIfNotExist: cfg.S3CreateBucket,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", storageType)
	}
}
