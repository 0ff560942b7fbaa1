package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
)

const seenKeyPrefix = "digest:seen:"

// SeenStore keeps normalized candidate URLs in Redis with a rolling TTL so
// consecutive runs skip already-curated articles. Losing the store only
// weakens dedup across runs; within-run dedup is unaffected.
type SeenStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ports.SeenStore = (*SeenStore)(nil)

// NewSeenStore wires a Redis client with the window TTL.
func NewSeenStore(client *redis.Client, ttl time.Duration) *SeenStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SeenStore{client: client, ttl: ttl}
}

// Seen reports which of the given normalized URLs are inside the window.
func (s *SeenStore) Seen(ctx context.Context, urls []string) (map[string]bool, error) {
	seen := make(map[string]bool, len(urls))
	if len(urls) == 0 {
		return seen, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(urls))
	for i, url := range urls {
		cmds[i] = pipe.Exists(ctx, seenKeyPrefix+url)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("seen lookup: %w", err)
	}

	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			seen[urls[i]] = true
		}
	}
	return seen, nil
}

// MarkSeen records the URLs, refreshing the TTL for ones already present.
func (s *SeenStore) MarkSeen(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, url := range urls {
		pipe.Set(ctx, seenKeyPrefix+url, "1", s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}
