package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, c.Health(ctx))

	ok, err := c.AcquireLock(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireLock(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	holder, err := c.LockHolder(ctx, "lock")
	require.NoError(t, err)
	assert.Equal(t, "a", holder)

	extended, err := c.ExtendLock(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, extended)

	extended, err = c.ExtendLock(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, extended)

	require.NoError(t, c.ReleaseLock(ctx, "lock", "b"))
	assert.True(t, mr.Exists("lock"))

	require.NoError(t, c.ReleaseLock(ctx, "lock", "a"))
	holder, err = c.LockHolder(ctx, "lock")
	require.NoError(t, err)
	assert.Empty(t, holder)
}
