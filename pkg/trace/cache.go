package trace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Orrery-Labs/natal/core/pkg/contracts"
)

// latestCache is the narrow cache surface the decorator needs. Backed by
// redis in production; tests substitute an in-memory fake.
type latestCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// CachedStore decorates a Store with a latest-trace cache per user. Persist
// writes through to the cache so GetLatest for hot users skips the
// database.
type CachedStore struct {
	next  Store
	cache latestCache
	ttl   time.Duration
	log   *slog.Logger
}

// NewCachedStore wraps next with a redis-backed latest-trace cache.
func NewCachedStore(next Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{next: next, cache: redisCache{client: client}, ttl: ttl, log: logger.With("component", "trace_cache")}
}

func latestKey(userID string) string {
	return fmt.Sprintf("natal:trace:latest:%s", userID)
}

func (s *CachedStore) Persist(ctx context.Context, t contracts.ChartResultTrace) error {
	if err := s.next.Persist(ctx, t); err != nil {
		return err
	}
	payload, err := json.Marshal(t)
	if err != nil {
		// Trace is persisted; cache refresh is best effort.
		s.log.Warn("latest-trace cache refresh skipped", "chart_id", t.ChartID, "error", err)
		return nil
	}
	if err := s.cache.Set(ctx, latestKey(t.UserID), payload, s.ttl); err != nil {
		// Stale entries are worse than misses.
		_ = s.cache.Del(ctx, latestKey(t.UserID))
	}
	return nil
}

func (s *CachedStore) GetLatest(ctx context.Context, userID string) (contracts.ChartResultTrace, error) {
	if payload, ok, err := s.cache.Get(ctx, latestKey(userID)); err == nil && ok {
		var t contracts.ChartResultTrace
		if err := json.Unmarshal(payload, &t); err == nil {
			return t, nil
		}
		_ = s.cache.Del(ctx, latestKey(userID))
	}

	t, err := s.next.GetLatest(ctx, userID)
	if err != nil {
		return contracts.ChartResultTrace{}, err
	}
	if payload, merr := json.Marshal(t); merr == nil {
		_ = s.cache.Set(ctx, latestKey(userID), payload, s.ttl)
	}
	return t, nil
}

func (s *CachedStore) Get(ctx context.Context, chartID string) (contracts.ChartResultTrace, error) {
	return s.next.Get(ctx, chartID)
}

// redisCache adapts a redis client to the latestCache surface.
type redisCache struct {
	client *redis.Client
}

func (c redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (c redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c redisCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
