// Package reconcile mirrors remote n8n state into the local store.
//
// One Engine serves every provider. A run for one provider is sequential,
// record by record; runs for different providers may proceed concurrently
// through SyncAllProviders. Each run appends a sync log that is completed
// exactly once.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/domain/repositories"
	"github.com/linkflow-ai/flowmirror/internal/n8n"
	"github.com/linkflow-ai/flowmirror/internal/pkg/backup"
	"github.com/linkflow-ai/flowmirror/internal/pkg/logger"
	"github.com/linkflow-ai/flowmirror/internal/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrInvalidSyncType  = errors.New("invalid sync type")
	ErrProviderNotFound = errors.New("provider not found")
)

const (
	ReasonVanished    = "workflow no longer present in n8n"
	ReasonPlaceholder = "placeholder for orphaned executions"
)

// KeyDecrypter opens a stored provider API key.
type KeyDecrypter interface {
	Decrypt(ciphertext string) (string, error)
}

type Options struct {
	ExecutionBatchSize     int
	BackupBatchSize        int
	MaxExecutionPages      int
	IncludeExecutionData   bool
	MaxConcurrentProviders int
	BackupPrefix           string
}

func DefaultOptions() Options {
	return Options{
		ExecutionBatchSize:     100,
		BackupBatchSize:        50,
		MaxExecutionPages:      10,
		IncludeExecutionData:   true,
		MaxConcurrentProviders: 4,
		BackupPrefix:           "workflows",
	}
}

type Engine struct {
	db         *gorm.DB
	providers  *repositories.ProviderRepository
	workflows  *repositories.WorkflowRepository
	versions   *repositories.WorkflowVersionRepository
	executions *repositories.ExecutionRepository
	syncLogs   *repositories.SyncLogRepository

	clients n8n.Factory
	keys    KeyDecrypter
	backups backup.Store
	opts    Options
	now     func() time.Time
}

func NewEngine(db *gorm.DB, clients n8n.Factory, keys KeyDecrypter, backups backup.Store, opts Options) *Engine {
	defaults := DefaultOptions()
	if opts.ExecutionBatchSize <= 0 {
		opts.ExecutionBatchSize = defaults.ExecutionBatchSize
	}
	if opts.BackupBatchSize <= 0 {
		opts.BackupBatchSize = defaults.BackupBatchSize
	}
	if opts.MaxExecutionPages <= 0 {
		opts.MaxExecutionPages = defaults.MaxExecutionPages
	}
	if opts.MaxConcurrentProviders <= 0 {
		opts.MaxConcurrentProviders = defaults.MaxConcurrentProviders
	}
	if opts.BackupPrefix == "" {
		opts.BackupPrefix = defaults.BackupPrefix
	}
	if backups == nil {
		backups = backup.NoopStore{}
	}

	return &Engine{
		db:         db,
		providers:  repositories.NewProviderRepository(db),
		workflows:  repositories.NewWorkflowRepository(db),
		versions:   repositories.NewWorkflowVersionRepository(db),
		executions: repositories.NewExecutionRepository(db),
		syncLogs:   repositories.NewSyncLogRepository(db),
		clients:    clients,
		keys:       keys,
		backups:    backups,
		opts:       opts,
		now:        time.Now,
	}
}

type WorkflowResult struct {
	Synced   int      `json:"synced"`
	Created  int      `json:"created"`
	Updated  int      `json:"updated"`
	Archived int      `json:"archived"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

type ExecutionResult struct {
	Synced       int      `json:"synced"`
	Inserted     int      `json:"inserted"`
	Updated      int      `json:"updated"`
	Placeholders int      `json:"placeholders"`
	AIExtracted  int      `json:"ai_extracted"`
	Pages        int      `json:"pages"`
	Cursor       string   `json:"cursor,omitempty"`
	Errors       []string `json:"errors"`
}

type BackupResult struct {
	Synced   int      `json:"synced"`
	Updated  int      `json:"updated"`
	Stored   int      `json:"stored"`
	Archived int      `json:"archived"`
	Errors   []string `json:"errors"`
}

type BackfillResult struct {
	Checked int      `json:"checked"`
	Filled  int      `json:"filled"`
	Errors  []string `json:"errors"`
}

// ProviderResult is the settled outcome of one provider's run.
type ProviderResult struct {
	ProviderID   uuid.UUID        `json:"provider_id"`
	ProviderName string           `json:"provider_name"`
	SyncType     string           `json:"sync_type"`
	Success      bool             `json:"success"`
	Error        string           `json:"error,omitempty"`
	Workflows    *WorkflowResult  `json:"workflows,omitempty"`
	Executions   *ExecutionResult `json:"executions,omitempty"`
	Backups      *BackupResult    `json:"backups,omitempty"`
	DurationMs   int64            `json:"duration_ms"`
}

type Summary struct {
	SyncType  string           `json:"sync_type"`
	Providers int              `json:"providers"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []ProviderResult `json:"results"`
}

type SyncOptions struct {
	SyncType  string `json:"sync_type" validate:"required,oneof=executions workflows backups full"`
	BatchSize int    `json:"batch_size" validate:"omitempty,min=1,max=1000"`
}

// SyncAllProviders runs one sync type against every connected, healthy
// provider. Every provider settles; one failure never hides another
// provider's result.
func (e *Engine) SyncAllProviders(ctx context.Context, opts SyncOptions) (*Summary, error) {
	if !models.IsValidSyncType(opts.SyncType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSyncType, opts.SyncType)
	}

	providers, err := e.providers.FindSyncable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load providers: %w", err)
	}

	summary := &Summary{
		SyncType:  opts.SyncType,
		Providers: len(providers),
		Results:   make([]ProviderResult, len(providers)),
	}

	sem := make(chan struct{}, e.opts.MaxConcurrentProviders)
	var wg sync.WaitGroup
	for i := range providers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			summary.Results[i] = e.settle(ctx, &providers[i], opts)
		}(i)
	}
	wg.Wait()

	for _, r := range summary.Results {
		if r.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	log.Info().
		Str("sync_type", opts.SyncType).
		Int("providers", summary.Providers).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Msg("Sync across providers finished")

	return summary, nil
}

// settle never panics out of a provider run.
func (e *Engine) settle(ctx context.Context, provider *models.Provider, opts SyncOptions) (result ProviderResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("provider_id", provider.ID.String()).
				Interface("panic", r).
				Msg("Provider sync panicked")
			result = ProviderResult{
				ProviderID:   provider.ID,
				ProviderName: provider.Name,
				SyncType:     opts.SyncType,
				Error:        fmt.Sprintf("panic: %v", r),
			}
		}
	}()
	return e.SyncProvider(ctx, provider, opts)
}

// SyncProviderByID loads the provider and runs one sync type against it,
// whatever its health.
func (e *Engine) SyncProviderByID(ctx context.Context, id uuid.UUID, opts SyncOptions) (*ProviderResult, error) {
	if !models.IsValidSyncType(opts.SyncType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSyncType, opts.SyncType)
	}
	provider, err := e.providers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	result := e.SyncProvider(ctx, provider, opts)
	return &result, nil
}

// SyncProvider runs one sync type for one provider. full runs workflows,
// executions and backups in that order under an umbrella log and stops at
// the first run that terminates.
func (e *Engine) SyncProvider(ctx context.Context, provider *models.Provider, opts SyncOptions) ProviderResult {
	start := e.now()
	result := ProviderResult{
		ProviderID:   provider.ID,
		ProviderName: provider.Name,
		SyncType:     opts.SyncType,
	}

	var err error
	switch opts.SyncType {
	case models.SyncTypeWorkflows:
		result.Workflows, err = e.SyncWorkflows(ctx, provider)
	case models.SyncTypeExecutions:
		result.Executions, err = e.SyncExecutions(ctx, provider, opts.BatchSize)
	case models.SyncTypeBackups:
		result.Backups, err = e.SyncBackups(ctx, provider, opts.BatchSize)
	case models.SyncTypeFull:
		err = e.syncFull(ctx, provider, opts, &result)
	default:
		err = fmt.Errorf("%w: %q", ErrInvalidSyncType, opts.SyncType)
	}

	result.DurationMs = e.now().Sub(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}

func (e *Engine) syncFull(ctx context.Context, provider *models.Provider, opts SyncOptions, result *ProviderResult) error {
	run, err := e.startRun(ctx, provider, models.SyncTypeFull, nil)
	if err != nil {
		return err
	}

	counts := models.SyncCounts{Extra: models.JSON{}}
	err = func() error {
		var err error
		// the batch size of a full run only applies to executions
		if result.Workflows, err = e.SyncWorkflows(ctx, provider); err != nil {
			return fmt.Errorf("workflows: %w", err)
		}
		counts.Processed += result.Workflows.Synced
		counts.Inserted += result.Workflows.Created
		counts.Updated += result.Workflows.Updated

		if result.Executions, err = e.SyncExecutions(ctx, provider, opts.BatchSize); err != nil {
			return fmt.Errorf("executions: %w", err)
		}
		counts.Processed += result.Executions.Synced
		counts.Inserted += result.Executions.Inserted
		counts.Updated += result.Executions.Updated

		if result.Backups, err = e.SyncBackups(ctx, provider, 0); err != nil {
			return fmt.Errorf("backups: %w", err)
		}
		counts.Processed += result.Backups.Synced
		counts.Updated += result.Backups.Updated
		return nil
	}()

	e.finishRun(ctx, provider, run, counts, err)
	return err
}

// run is the bookkeeping of one in-flight sync log.
type run struct {
	log      *models.SyncLog
	syncType string
	started  time.Time
	logger   zerolog.Logger
}

func (e *Engine) startRun(ctx context.Context, provider *models.Provider, syncType string, cursor *string) (*run, error) {
	entry, err := e.syncLogs.Start(ctx, provider.ID, syncType, cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to start sync log: %w", err)
	}
	l := logger.WithSync(provider.ID.String(), syncType)
	l.Info().Str("sync_log_id", entry.ID.String()).Msg("Sync started")
	return &run{log: entry, syncType: syncType, started: e.now(), logger: l}, nil
}

// finishRun completes the sync log and applies the provider health rule:
// a terminated run flips the provider to error, a completed one stamps
// last_sync_at. Bookkeeping survives cancellation of ctx.
func (e *Engine) finishRun(ctx context.Context, provider *models.Provider, r *run, counts models.SyncCounts, runErr error) {
	ctx = context.WithoutCancel(ctx)

	status := models.SyncStatusSuccess
	msg := ""
	if runErr != nil {
		status = models.SyncStatusError
		msg = runErr.Error()
	}

	if err := e.syncLogs.Complete(ctx, r.log.ID, status, counts, msg); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to complete sync log")
	}
	metrics.RecordSyncRun(r.syncType, status, e.now().Sub(r.started))

	if runErr != nil {
		if err := e.providers.UpdateHealth(ctx, provider.ID, provider.IsConnected, models.HealthError, msg); err != nil {
			r.logger.Error().Err(err).Msg("Failed to record provider health")
		}
		provider.HealthStatus = models.HealthError
		r.logger.Error().Err(runErr).
			Int("processed", counts.Processed).
			Msg("Sync terminated")
		return
	}

	now := e.now()
	if err := e.providers.MarkSynced(ctx, provider.ID, now); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to stamp last sync")
	}
	provider.LastSyncAt = &now
	r.logger.Info().
		Int("processed", counts.Processed).
		Int("inserted", counts.Inserted).
		Int("updated", counts.Updated).
		Dur("duration", now.Sub(r.started)).
		Msg("Sync completed")
}

func (e *Engine) client(provider *models.Provider) (n8n.Client, error) {
	if e.clients == nil {
		return nil, errors.New("no n8n client factory configured")
	}
	apiKey := provider.APIKeyEncrypted
	if e.keys != nil {
		plain, err := e.keys.Decrypt(provider.APIKeyEncrypted)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt api key: %w", err)
		}
		apiKey = plain
	}
	c, err := e.clients(provider.BaseURL, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build n8n client: %w", err)
	}
	return c, nil
}
