package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/config"
)

// skipIfNoRedis skips the test when no redis answers at TEST_REDIS_ADDR.
func skipIfNoRedis(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	c, err := NewClient(context.Background(), config.RedisConfig{Addr: addr, PoolSize: 4})
	if err != nil {
		t.Skipf("skipping: redis unavailable: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGetSet(t *testing.T) {
	c := skipIfNoRedis(t)
	ctx := context.Background()
	key := "blog:test:" + uuid.NewString()
	t.Cleanup(func() { c.DeleteByPrefix(ctx, key) })

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, []byte("value"), time.Minute))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", string(got))
}

func TestDeleteByPrefix(t *testing.T) {
	c := skipIfNoRedis(t)
	ctx := context.Background()
	prefix := "blog:test:" + uuid.NewString() + ":"
	for i := range 2*scanBatch + 7 {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("%s%d", prefix, i), []byte("x"), time.Minute))
	}
	other := "blog:test:" + uuid.NewString()
	require.NoError(t, c.Set(ctx, other, []byte("keep"), time.Minute))
	t.Cleanup(func() { c.DeleteByPrefix(ctx, other) })

	n, err := c.DeleteByPrefix(ctx, prefix)
	require.NoError(t, err)
	assert.Equal(t, int64(2*scanBatch+7), n)

	_, ok, err := c.Get(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewClientFailsFast(t *testing.T) {
	_, err := NewClient(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
