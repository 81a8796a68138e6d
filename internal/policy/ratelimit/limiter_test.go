package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterWaitPacesSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://test.com/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://test.com/b"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.com/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.com/1"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://a.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://a.com/next"))
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	var nilLimiter *Limiter
	assert.False(t, nilLimiter.Enabled())
	require.NoError(t, nilLimiter.Wait(context.Background(), "https://a.com"))

	l := New(Config{})
	assert.False(t, l.Enabled())
	for range 5 {
		require.NoError(t, l.Wait(context.Background(), "https://a.com"))
	}
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ex.com:8080", hostOf("http://EX.com:8080/a"))
	assert.Equal(t, "unknown", hostOf("%%"))
	assert.Equal(t, "unknown", hostOf("/relative"))
}
