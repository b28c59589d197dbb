package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/linkflow-ai/flowmirror/internal/domain/services"
	pkgredis "github.com/linkflow-ai/flowmirror/internal/pkg/redis"
	"github.com/linkflow-ai/flowmirror/internal/reconcile"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingSyncer struct {
	release chan struct{}
	started chan struct{}
	calls   atomic.Int32
	seen    []reconcile.SyncOptions
	mu      sync.Mutex
}

func newBlockingSyncer() *blockingSyncer {
	return &blockingSyncer{
		release: make(chan struct{}),
		started: make(chan struct{}, 10),
	}
}

func (b *blockingSyncer) SyncAllProviders(ctx context.Context, opts reconcile.SyncOptions) (*reconcile.Summary, error) {
	b.calls.Add(1)
	b.mu.Lock()
	b.seen = append(b.seen, opts)
	b.mu.Unlock()
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &reconcile.Summary{SyncType: opts.SyncType, Providers: 1, Succeeded: 1}, nil
}

type countingHealth struct{ calls atomic.Int32 }

func (c *countingHealth) CheckUnhealthy(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

type fakeRuns struct {
	mu      sync.Mutex
	reasons []string
}

func (f *fakeRuns) FailRunning(_ context.Context, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
	return 1, nil
}

func (f *fakeRuns) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reasons...)
}

type fakeCleaner struct{ calls atomic.Int32 }

func (f *fakeCleaner) Cleanup(context.Context, int, int) (*services.RetentionResult, error) {
	f.calls.Add(1)
	return &services.RetentionResult{}, nil
}

func TestScheduler_SkipsTickWhileRunning(t *testing.T) {
	syncer := newBlockingSyncer()
	health := &countingHealth{}
	runs := &fakeRuns{}

	s := New(&Config{SyncType: "workflows", BatchSize: 25}, Dependencies{
		Syncer: syncer,
		Health: health,
		Runs:   runs,
	})
	require.NoError(t, s.Start(time.Hour))
	assert.ErrorIs(t, s.Start(time.Hour), ErrSchedulerRunning)
	assert.Equal(t, []string{interruptedReason}, runs.calls())

	<-syncer.started
	assert.Equal(t, StateRunning, s.Status().State)

	s.tick()
	s.tick()

	status := s.Status()
	assert.Equal(t, int64(2), status.SkippedTicks)
	assert.True(t, status.Started)
	assert.Equal(t, "1h0m0s", status.Interval)
	assert.NotNil(t, status.NextRunAt)

	close(syncer.release)
	require.Eventually(t, func() bool {
		return s.Status().State == StateIdle
	}, time.Second, 10*time.Millisecond)

	status = s.Status()
	assert.Equal(t, int64(1), status.Runs)
	require.NotNil(t, status.LastResult)
	assert.Equal(t, 1, status.LastResult.Succeeded)
	assert.NotNil(t, status.LastRunAt)
	assert.Equal(t, int32(1), syncer.calls.Load())
	assert.Equal(t, int32(1), health.calls.Load())
	assert.Equal(t, []reconcile.SyncOptions{{SyncType: "workflows", BatchSize: 25}}, syncer.seen)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.False(t, s.Status().Started)
}

func TestScheduler_ForceSync(t *testing.T) {
	syncer := newBlockingSyncer()
	close(syncer.release)

	s := New(nil, Dependencies{Syncer: syncer})
	s.state = StateRunning

	summary, err := s.ForceSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "full", summary.SyncType)

	status := s.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.Equal(t, int64(1), status.Runs)
	assert.Empty(t, status.LastError)
	assert.False(t, status.Started)
}

func TestScheduler_ForceSyncRecordsError(t *testing.T) {
	syncer := newBlockingSyncer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(nil, Dependencies{Syncer: syncer})
	_, err := s.ForceSync(ctx)
	require.ErrorIs(t, err, context.Canceled)

	status := s.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.Contains(t, status.LastError, "canceled")
}

func TestScheduler_Cleanup(t *testing.T) {
	cleaner := &fakeCleaner{}
	s := New(nil, Dependencies{Syncer: newBlockingSyncer(), Cleaner: cleaner})
	s.ctx = context.Background()
	s.cleanup()
	assert.Equal(t, int32(1), cleaner.calls.Load())
}

func newElection(t *testing.T, mr *miniredis.Miniredis, ttl time.Duration) *Election {
	t.Helper()
	client := pkgredis.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	return NewElection(client, "flowmirror:test:leader", ttl)
}

func TestElection_SingleHolder(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	a := newElection(t, mr, time.Minute)
	b := newElection(t, mr, time.Minute)

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, b.Renew(ctx))

	assert.True(t, a.Renew(ctx))
	require.NoError(t, a.Resign(ctx))
	assert.False(t, a.IsLeader())

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, b.IsLeader())
}

func TestElection_ExpiredLockIsLost(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	a := newElection(t, mr, 30*time.Second)
	b := newElection(t, mr, 30*time.Second)

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(time.Minute)

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.False(t, a.Renew(ctx))
	assert.False(t, a.IsLeader())
}

func TestScheduler_FollowerSkipsTicks(t *testing.T) {
	mr := miniredis.RunT(t)
	holder := newElection(t, mr, time.Minute)
	ok, err := holder.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	syncer := newBlockingSyncer()
	s := New(nil, Dependencies{Syncer: syncer, Leader: newElection(t, mr, time.Minute)})
	s.ctx = context.Background()
	s.tick()

	assert.Zero(t, syncer.calls.Load())
	assert.False(t, s.Status().IsLeader)
}

func TestScheduler_LeaderRunsImmediatelyAndStopsPromptly(t *testing.T) {
	mr := miniredis.RunT(t)
	syncer := newBlockingSyncer()
	close(syncer.release)
	runs := &fakeRuns{}

	s := New(&Config{ShutdownTimeout: 3 * time.Second}, Dependencies{
		Syncer: syncer,
		Runs:   runs,
		Leader: newElection(t, mr, time.Minute),
	})
	require.NoError(t, s.Start(time.Hour))

	select {
	case <-syncer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not start after winning the lock")
	}
	require.Eventually(t, func() bool {
		return s.Status().Runs == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{interruptedReason}, runs.calls())
	assert.True(t, mr.Exists("flowmirror:test:leader"))

	started := time.Now()
	require.NoError(t, s.Stop())
	assert.Less(t, time.Since(started), time.Second)
	assert.False(t, mr.Exists("flowmirror:test:leader"))
	assert.False(t, s.Status().IsLeader)
}

func TestScheduler_FollowerLeavesRunningLogsAlone(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	holder := newElection(t, mr, time.Minute)
	ok, err := holder.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	syncer := newBlockingSyncer()
	close(syncer.release)
	runs := &fakeRuns{}
	s := New(nil, Dependencies{
		Syncer: syncer,
		Runs:   runs,
		Leader: newElection(t, mr, 300*time.Millisecond),
	})
	require.NoError(t, s.Start(time.Hour))
	t.Cleanup(func() { _ = s.Stop() })

	time.Sleep(250 * time.Millisecond)
	assert.Empty(t, runs.calls())
	assert.Zero(t, syncer.calls.Load())

	// the holder steps down and the follower takes over
	require.NoError(t, holder.Resign(ctx))
	require.Eventually(t, func() bool {
		return syncer.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{interruptedReason}, runs.calls())
}
