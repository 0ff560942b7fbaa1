package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) (*SeenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSeenStore(client, ttl), mr
}

func TestSeenRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	urls := []string{"https://example.com/a", "https://example.com/b"}

	seen, err := store.Seen(ctx, urls)
	require.NoError(t, err)
	assert.Empty(t, seen)

	require.NoError(t, store.MarkSeen(ctx, urls[:1]))

	seen, err = store.Seen(ctx, urls)
	require.NoError(t, err)
	assert.True(t, seen["https://example.com/a"])
	assert.False(t, seen["https://example.com/b"])
}

func TestSeenExpiresAfterWindow(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.MarkSeen(ctx, []string{"https://example.com/a"}))

	mr.FastForward(2 * time.Hour)

	seen, err := store.Seen(ctx, []string{"https://example.com/a"})
	require.NoError(t, err)
	assert.Empty(t, seen)
}

func TestMarkSeenRefreshesTTL(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.MarkSeen(ctx, []string{"https://example.com/a"}))
	mr.FastForward(45 * time.Minute)
	require.NoError(t, store.MarkSeen(ctx, []string{"https://example.com/a"}))
	mr.FastForward(45 * time.Minute)

	seen, err := store.Seen(ctx, []string{"https://example.com/a"})
	require.NoError(t, err)
	assert.True(t, seen["https://example.com/a"])
}

func TestSeenEmptyInput(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	seen, err := store.Seen(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, seen)
	require.NoError(t, store.MarkSeen(ctx, nil))
}
