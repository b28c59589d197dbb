// Package app wires configuration into the stores, clients and services
// shared by the flowmirror binaries.
package app

import (
	"context"
	"fmt"

	"github.com/linkflow-ai/flowmirror/internal/api"
	"github.com/linkflow-ai/flowmirror/internal/domain/repositories"
	"github.com/linkflow-ai/flowmirror/internal/domain/services"
	"github.com/linkflow-ai/flowmirror/internal/n8n"
	"github.com/linkflow-ai/flowmirror/internal/pkg/backup"
	"github.com/linkflow-ai/flowmirror/internal/pkg/config"
	"github.com/linkflow-ai/flowmirror/internal/pkg/crypto"
	"github.com/linkflow-ai/flowmirror/internal/pkg/database"
	"github.com/linkflow-ai/flowmirror/internal/pkg/httpclient"
	pkgredis "github.com/linkflow-ai/flowmirror/internal/pkg/redis"
	"github.com/linkflow-ai/flowmirror/internal/reconcile"
	"github.com/linkflow-ai/flowmirror/internal/scheduler"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Options struct {
	// Migrate runs AutoMigrate after connecting.
	Migrate bool
	// SkipRedis leaves Redis unconnected even when enabled in config.
	SkipRedis bool
}

type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *pkgredis.Client
	HTTP     *httpclient.PooledClient
	Keys     *crypto.Encryptor
	Backups  backup.Store
	Engine   *reconcile.Engine
	Services *api.Services

	Retention *services.RetentionService
	SyncLogs  *repositories.SyncLogRepository
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	db, err := database.NewGormDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: db}

	if opts.Migrate {
		if err := database.AutoMigrate(db); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.Redis.Enabled && !opts.SkipRedis {
		a.Redis, err = pkgredis.NewClient(&cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Keys, err = crypto.NewEncryptor(cfg.Security.EncryptionKey)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	a.Backups, err = backup.NewStore(ctx, cfg.Backup, cfg.S3)
	if err != nil {
		a.Close()
		return nil, err
	}

	httpCfg := httpclient.DefaultConfig()
	if cfg.N8N.RequestTimeout > 0 {
		httpCfg.ResponseTimeout = cfg.N8N.RequestTimeout
	}
	httpCfg.RateLimit = cfg.N8N.RateLimit
	httpCfg.RateBurst = cfg.N8N.RateBurst
	a.HTTP = httpclient.NewPooledClient(httpCfg)
	clients := n8n.NewFactory(a.HTTP)

	a.Engine = reconcile.NewEngine(db, clients, a.Keys, a.Backups, reconcile.Options{
		ExecutionBatchSize:     cfg.Sync.ExecutionBatchSize,
		BackupBatchSize:        cfg.Sync.BackupBatchSize,
		MaxExecutionPages:      cfg.Sync.MaxExecutionPages,
		IncludeExecutionData:   cfg.Sync.IncludeExecutionData,
		MaxConcurrentProviders: cfg.Sync.MaxConcurrentProviders,
		BackupPrefix:           cfg.Backup.Prefix,
	})

	workflowRepo := repositories.NewWorkflowRepository(db)
	executionRepo := repositories.NewExecutionRepository(db)
	a.SyncLogs = repositories.NewSyncLogRepository(db)

	a.Services = &api.Services{
		Provider:    services.NewProviderService(repositories.NewProviderRepository(db), a.Keys, clients, cfg.N8N.TestTimeout),
		Workflow:    services.NewWorkflowService(workflowRepo, a.Backups, cfg.Backup.Prefix),
		VersionDiff: services.NewVersionDiffService(workflowRepo, repositories.NewWorkflowVersionRepository(db)),
		Execution:   services.NewExecutionService(executionRepo),
		SyncLog:     services.NewSyncLogService(a.SyncLogs),
	}
	a.Retention = services.NewRetentionService(executionRepo, a.SyncLogs)

	log.Debug().
		Str("backup_store", a.Backups.Name()).
		Bool("redis", a.Redis != nil).
		Msg("Application wired")
	return a, nil
}

// NewScheduler builds a scheduler over the engine. Leader election is on
// only when Redis is connected.
func (a *App) NewScheduler() *scheduler.Scheduler {
	cfg := scheduler.FromAppConfig(a.Config)
	deps := scheduler.Dependencies{
		Syncer:  a.Engine,
		Health:  a.Services.Provider,
		Cleaner: a.Retention,
		Runs:    a.SyncLogs,
	}
	if a.Redis != nil {
		deps.Leader = scheduler.NewElection(a.Redis, cfg.LeaderKey, cfg.LeaderTTL)
	}
	return scheduler.New(cfg, deps)
}

func (a *App) JWTManager() *crypto.JWTManager {
	return NewJWTManager(a.Config)
}

// NewJWTManager needs only configuration, so tokens can be issued without
// opening the database.
func NewJWTManager(cfg *config.Config) *crypto.JWTManager {
	return crypto.NewJWTManager(crypto.JWTConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiry,
		Issuer: cfg.JWT.Issuer,
	})
}

// EnsureDefaultProvider registers the provider named in the n8n section,
// if any.
func (a *App) EnsureDefaultProvider(ctx context.Context) {
	provider, err := a.Services.Provider.EnsureDefault(ctx, a.Config.N8N)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("Failed to register default provider")
	case provider != nil:
		log.Info().
			Str("provider_id", provider.ID.String()).
			Str("health_status", provider.HealthStatus).
			Msg("Default provider ready")
	}
}

func (a *App) Close() {
	if a.HTTP != nil {
		a.HTTP.CloseIdleConnections()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
