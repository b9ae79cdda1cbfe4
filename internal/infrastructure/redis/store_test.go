package redisinfra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStore_SetGetDel(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewStore(client, "shop:")
	ctx := context.Background()

	n, err := s.Get(ctx, "1.2.3.4:attempts")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.Set(ctx, "1.2.3.4:attempts", 7, 10*time.Second))
	assert.True(t, mr.Exists("shop:1.2.3.4:attempts"))

	n, err = s.Get(ctx, "1.2.3.4:attempts")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	require.NoError(t, s.Del(ctx, "1.2.3.4:attempts"))
	n, _ = s.Get(ctx, "1.2.3.4:attempts")
	assert.Equal(t, 0, n)
}

func TestStore_Expiry(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewStore(client, "")
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "code:a@x.com", 12345, 180*time.Second))
	mr.FastForward(179 * time.Second)
	n, _ := s.Get(ctx, "code:a@x.com")
	assert.Equal(t, 12345, n)

	mr.FastForward(2 * time.Second)
	n, _ = s.Get(ctx, "code:a@x.com")
	assert.Equal(t, 0, n)
}

func TestStore_Unreachable(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()
	_, err := NewStore(client, "").Get(context.Background(), "k")
	assert.Error(t, err)
}
