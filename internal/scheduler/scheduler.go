package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linkflow-ai/flowmirror/internal/domain/services"
	"github.com/linkflow-ai/flowmirror/internal/pkg/metrics"
	"github.com/linkflow-ai/flowmirror/internal/reconcile"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

var (
	ErrSchedulerRunning    = errors.New("scheduler already started")
	ErrSchedulerNotRunning = errors.New("scheduler not started")
)

const (
	StateIdle    = "idle"
	StateRunning = "running"
)

const interruptedReason = "interrupted"

type Syncer interface {
	SyncAllProviders(ctx context.Context, opts reconcile.SyncOptions) (*reconcile.Summary, error)
}

type HealthChecker interface {
	CheckUnhealthy(ctx context.Context) (int, error)
}

type Cleaner interface {
	Cleanup(ctx context.Context, executionDays, syncLogDays int) (*services.RetentionResult, error)
}

type RunCloser interface {
	FailRunning(ctx context.Context, reason string) (int64, error)
}

// Dependencies are the collaborators of a scheduler. Only Syncer is
// required; Leader is nil when Redis is disabled.
type Dependencies struct {
	Syncer  Syncer
	Health  HealthChecker
	Cleaner Cleaner
	Runs    RunCloser
	Leader  Leader
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State        string             `json:"state"`
	Started      bool               `json:"started"`
	Interval     string             `json:"interval"`
	SyncType     string             `json:"sync_type"`
	IsLeader     bool               `json:"is_leader"`
	LastRunAt    *time.Time         `json:"last_run_at,omitempty"`
	LastResult   *reconcile.Summary `json:"last_result,omitempty"`
	LastError    string             `json:"last_error,omitempty"`
	NextRunAt    *time.Time         `json:"next_run_at,omitempty"`
	Runs         int64              `json:"runs"`
	SkippedTicks int64              `json:"skipped_ticks"`
}

// Scheduler fires a sync across all providers on a fixed interval. It is
// either idle or running; a tick that arrives while running is dropped.
type Scheduler struct {
	config *Config
	deps   Dependencies

	mu         sync.Mutex
	state      string
	cron       *cron.Cron
	syncEntry  cron.EntryID
	lastRunAt  *time.Time
	lastResult *reconcile.Summary
	lastError  string
	runs       int64
	skipped    int64

	// recovered is set once interrupted sync logs have been closed for
	// this start.
	recovered bool

	ctx          context.Context
	cancel       context.CancelFunc
	stopCampaign context.CancelFunc
	wg           sync.WaitGroup
}

func New(cfg *Config, deps Dependencies) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Validate()
	if deps.Syncer == nil {
		panic("scheduler: syncer is required")
	}
	return &Scheduler{
		config: cfg,
		deps:   deps,
		state:  StateIdle,
	}
}

// Start arms the interval entry and the daily cleanup, then fires an
// immediate first run in the background. With leader election the first
// run waits until this replica wins the lock.
func (s *Scheduler) Start(interval time.Duration) error {
	s.mu.Lock()
	if s.cron != nil {
		s.mu.Unlock()
		return ErrSchedulerRunning
	}
	if interval > 0 {
		s.config.Interval = interval
		s.config.Validate()
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.recovered = false
	leader := s.deps.Leader

	c := cron.New()
	entry, err := c.AddFunc("@every "+s.config.Interval.String(), s.tick)
	if err != nil {
		s.cancel()
		s.mu.Unlock()
		return fmt.Errorf("failed to schedule sync: %w", err)
	}
	if s.deps.Cleaner != nil {
		if _, err := c.AddFunc(s.config.CleanupSpec, s.cleanup); err != nil {
			s.cancel()
			s.mu.Unlock()
			return fmt.Errorf("failed to schedule cleanup: %w", err)
		}
	}
	s.cron = c
	s.syncEntry = entry
	c.Start()

	ctx := s.ctx
	if leader != nil {
		campaignCtx, stop := context.WithCancel(ctx)
		s.stopCampaign = stop
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			leader.Campaign(campaignCtx, func() {
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.elected(campaignCtx, ctx)
				}()
			})
		}()
	}
	s.mu.Unlock()

	log.Info().
		Dur("interval", s.config.Interval).
		Str("sync_type", s.config.SyncType).
		Bool("leader_election", leader != nil).
		Msg("Scheduler started")

	if leader == nil {
		s.closeInterrupted(ctx)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}
	return nil
}

// elected runs when this replica wins the lock: the first win of a start
// closes logs abandoned by a dead holder, then the missed run fires.
func (s *Scheduler) elected(campaignCtx, ctx context.Context) {
	if campaignCtx.Err() != nil {
		return
	}
	s.closeInterrupted(ctx)
	s.tick()
}

// closeInterrupted fails sync logs still marked running. It does nothing
// while a run of this scheduler is in flight or after the first call per
// start.
func (s *Scheduler) closeInterrupted(ctx context.Context) {
	if s.deps.Runs == nil {
		return
	}
	s.mu.Lock()
	if s.recovered || s.state == StateRunning {
		s.mu.Unlock()
		return
	}
	s.recovered = true
	s.mu.Unlock()

	closed, err := s.deps.Runs.FailRunning(ctx, interruptedReason)
	if err != nil {
		log.Error().Err(err).Msg("Failed to close interrupted sync logs")
	} else if closed > 0 {
		log.Warn().Int64("sync_logs", closed).Msg("Closed sync logs left running by a previous process")
	}
}

// Stop disarms the timers, ends the leader campaign and waits for an
// in-flight run to finish, up to the shutdown timeout.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	c := s.cron
	if c == nil {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.cron = nil
	s.syncEntry = 0
	stopCampaign := s.stopCampaign
	s.stopCampaign = nil
	s.mu.Unlock()

	log.Info().Msg("Stopping scheduler...")
	if stopCampaign != nil {
		stopCampaign()
	}
	cronDone := c.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Scheduler stopped gracefully")
	case <-time.After(s.config.ShutdownTimeout):
		log.Warn().Msg("Scheduler shutdown timed out")
	}
	s.cancel()

	if s.deps.Leader != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.deps.Leader.Resign(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to release scheduler leadership")
		}
	}
	return nil
}

// ForceSync runs a sync synchronously whatever the current state. A stuck
// running state is overwritten, and the scheduler is idle again when it
// returns.
func (s *Scheduler) ForceSync(ctx context.Context) (*reconcile.Summary, error) {
	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()
	metrics.SetBool(metrics.SchedulerRunning, true)

	log.Info().Msg("Forced sync requested")
	return s.run(ctx)
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:        s.state,
		Started:      s.cron != nil,
		Interval:     s.config.Interval.String(),
		SyncType:     s.config.SyncType,
		IsLeader:     s.deps.Leader == nil || s.deps.Leader.IsLeader(),
		LastRunAt:    s.lastRunAt,
		LastResult:   s.lastResult,
		LastError:    s.lastError,
		Runs:         s.runs,
		SkippedTicks: s.skipped,
	}
	if s.cron != nil {
		if next := s.cron.Entry(s.syncEntry).Next; !next.IsZero() {
			st.NextRunAt = &next
		}
	}
	return st
}

func (s *Scheduler) tick() {
	if s.deps.Leader != nil && !s.deps.Leader.IsLeader() {
		metrics.RecordTick("not_leader")
		log.Debug().Msg("Skipping scheduled sync, not the leader")
		return
	}

	s.mu.Lock()
	if s.state == StateRunning {
		s.skipped++
		s.mu.Unlock()
		metrics.RecordTick("skipped")
		log.Warn().Msg("Skipping scheduled sync, previous run still in progress")
		return
	}
	s.state = StateRunning
	ctx := s.ctx
	s.mu.Unlock()
	metrics.SetBool(metrics.SchedulerRunning, true)
	metrics.RecordTick("ran")

	if _, err := s.run(ctx); err != nil {
		log.Error().Err(err).Msg("Scheduled sync failed")
	}
}

// run expects the state to be running already and always leaves it idle.
func (s *Scheduler) run(ctx context.Context) (summary *reconcile.Summary, err error) {
	startedAt := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduled sync panicked: %v", r)
		}
		s.finish(startedAt, summary, err)
	}()

	if s.deps.Health != nil {
		recovered, err := s.deps.Health.CheckUnhealthy(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to re-check unhealthy providers")
		} else if recovered > 0 {
			log.Info().Int("providers", recovered).Msg("Providers recovered before sync")
		}
	}

	return s.deps.Syncer.SyncAllProviders(ctx, reconcile.SyncOptions{
		SyncType:  s.config.SyncType,
		BatchSize: s.config.BatchSize,
	})
}

func (s *Scheduler) finish(startedAt time.Time, summary *reconcile.Summary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateIdle
	s.runs++
	s.lastRunAt = &startedAt
	s.lastResult = summary
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	metrics.SetBool(metrics.SchedulerRunning, false)

	event := log.Info().Dur("duration", time.Since(startedAt))
	if summary != nil {
		event = event.Int("providers", summary.Providers).
			Int("succeeded", summary.Succeeded).
			Int("failed", summary.Failed)
	}
	event.Msg("Scheduled sync finished")
}

func (s *Scheduler) cleanup() {
	if s.deps.Leader != nil && !s.deps.Leader.IsLeader() {
		return
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if _, err := s.deps.Cleaner.Cleanup(ctx, s.config.ExecutionRetentionDays, s.config.SyncLogRetentionDays); err != nil {
		log.Error().Err(err).Msg("Retention cleanup failed")
	}
}
