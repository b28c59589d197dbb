package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/pkg/metrics"
	pkgredis "github.com/linkflow-ai/flowmirror/internal/pkg/redis"
	"github.com/rs/zerolog/log"
)

// Leader decides whether this replica may run scheduled ticks.
type Leader interface {
	IsLeader() bool
	// Campaign competes for leadership until ctx ends, calling onElected
	// each time the lock is won.
	Campaign(ctx context.Context, onElected func())
	Resign(ctx context.Context) error
}

// Election holds a Redis lock with a TTL. The holder renews it every
// third of the TTL; a crashed holder loses it when the TTL runs out.
type Election struct {
	redis    *pkgredis.Client
	key      string
	identity string
	ttl      time.Duration
	leading  atomic.Bool
}

func NewElection(redis *pkgredis.Client, key string, ttl time.Duration) *Election {
	return &Election{
		redis:    redis,
		key:      key,
		identity: uuid.New().String(),
		ttl:      ttl,
	}
}

func (e *Election) Identity() string {
	return e.identity
}

func (e *Election) IsLeader() bool {
	return e.leading.Load()
}

// TryAcquire takes the lock when nobody holds it.
func (e *Election) TryAcquire(ctx context.Context) (bool, error) {
	acquired, err := e.redis.AcquireLock(ctx, e.key, e.identity, e.ttl)
	if err != nil {
		return false, err
	}
	if acquired {
		e.setLeading(true)
		log.Info().Str("identity", e.identity).Str("key", e.key).Msg("Scheduler leadership acquired")
	}
	return acquired, nil
}

// Renew pushes the lock TTL forward. It reports false and steps down when
// the lock is no longer ours.
func (e *Election) Renew(ctx context.Context) bool {
	if !e.leading.Load() {
		return false
	}
	ok, err := e.redis.ExtendLock(ctx, e.key, e.identity, e.ttl)
	if err != nil || !ok {
		log.Warn().Err(err).Str("identity", e.identity).Msg("Scheduler leadership lost")
		e.setLeading(false)
		return false
	}
	return true
}

// Resign releases the lock if held.
func (e *Election) Resign(ctx context.Context) error {
	if !e.leading.Load() {
		return nil
	}
	e.setLeading(false)
	if err := e.redis.ReleaseLock(ctx, e.key, e.identity); err != nil {
		return err
	}
	log.Info().Str("identity", e.identity).Msg("Scheduler leadership released")
	return nil
}

// Campaign keeps trying to lead, and renews while leading, until ctx ends.
func (e *Election) Campaign(ctx context.Context, onElected func()) {
	e.step(ctx, onElected)

	ticker := time.NewTicker(e.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.step(ctx, onElected)
		}
	}
}

func (e *Election) step(ctx context.Context, onElected func()) {
	if e.leading.Load() {
		e.Renew(ctx)
		return
	}
	won, err := e.TryAcquire(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("Failed to acquire scheduler leadership")
		}
		return
	}
	if won && onElected != nil {
		onElected()
	}
}

func (e *Election) setLeading(v bool) {
	e.leading.Store(v)
	metrics.SetBool(metrics.SchedulerLeader, v)
}
