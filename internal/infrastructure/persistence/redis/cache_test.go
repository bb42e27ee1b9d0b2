package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// offline returns a cache whose client points at a closed port. Only code
// paths that never reach the server are exercised with it.
func offline(t *testing.T) *Cache {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheWithClient(client)
}

func TestConfig_Addr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())

	cfg.Host, cfg.Port = "cache.internal", 6380
	assert.Equal(t, "cache.internal:6380", cfg.Addr())
}

func TestSummaryKey(t *testing.T) {
	assert.Equal(t, "progress:summary:s1", SummaryKey("s1"))
}

func TestCache_RejectsBadInputBeforeNetwork(t *testing.T) {
	ctx := context.Background()
	c := offline(t)

	assert.ErrorIs(t, c.Set(ctx, "", 1, time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
	assert.ErrorIs(t, c.Set(ctx, "k", make(chan int), time.Minute), ErrCacheSerialization)
	assert.ErrorIs(t, c.Get(ctx, "", new(int)), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.DeleteByPattern(ctx, ""), ErrCacheKeyEmpty)
	assert.NoError(t, c.Delete(ctx))
}

func TestSummaryCache_DefaultsAndEmptyInvalidate(t *testing.T) {
	s := NewSummaryCache(offline(t), 0)
	assert.Equal(t, TTLSummary, s.ttl)

	// Blank IDs are dropped, leaving nothing to send.
	require.NoError(t, s.Invalidate(context.Background(), "", ""))
}
