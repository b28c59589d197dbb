package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_Transitions(t *testing.T) {
	clock := time.Now()
	cb := New("n8n.local", Config{FailureThreshold: 2, Cooldown: time.Minute})
	cb.now = func() time.Time { return clock }

	require.NoError(t, cb.Allow())
	cb.Record(false)
	assert.Equal(t, StateClosed, cb.State())

	require.NoError(t, cb.Allow())
	cb.Record(false)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	clock = clock.Add(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Allow())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen, "only one probe while half-open")

	cb.Record(true)
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	clock := time.Now()
	cb := New("n8n.local", Config{FailureThreshold: 1, Cooldown: time.Second})
	cb.now = func() time.Time { return clock }

	cb.Record(false)
	clock = clock.Add(time.Second)
	require.NoError(t, cb.Allow())
	cb.Record(false)
	assert.Equal(t, StateOpen, cb.State())
}

func TestManager_OneBreakerPerKey(t *testing.T) {
	m := NewManager(Config{})
	assert.Same(t, m.Get("a"), m.Get("a"))
	assert.NotSame(t, m.Get("a"), m.Get("b"))
	assert.Len(t, m.States(), 2)
}
