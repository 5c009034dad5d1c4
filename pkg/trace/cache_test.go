package trace

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Orrery-Labs/natal/core/pkg/contracts"
)

type fakeCache struct {
	entries map[string][]byte
	sets    int
	gets    int
	failSet bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.gets++
	payload, ok := c.entries[key]
	return payload, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if c.failSet {
		return errors.New("cache down")
	}
	c.sets++
	c.entries[key] = value
	return nil
}

func (c *fakeCache) Del(_ context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func cachedTrace(userID string) contracts.ChartResultTrace {
	return contracts.ChartResultTrace{
		ChartID:          uuid.NewString(),
		UserID:           userID,
		ReferenceVersion: "2.1.0",
		RulesetVersion:   "1.4.0",
		InputHash:        "aaaa",
		ResultPayload:    []byte(`{}`),
		CreatedAt:        time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestNewCachedStoreDefaultsLogger(t *testing.T) {
	store := NewCachedStore(NewMemoryStore(), nil, time.Minute, nil)
	require.NotNil(t, store.log)

	// Swap in the fake so Persist runs end to end with the defaulted logger.
	cache := newFakeCache()
	store.cache = cache
	require.NoError(t, store.Persist(context.Background(), cachedTrace("user-log")))
	assert.Contains(t, cache.entries, latestKey("user-log"))
}

func TestCachedStoreWritesThroughOnPersist(t *testing.T) {
	cache := newFakeCache()
	store := &CachedStore{next: NewMemoryStore(), cache: cache, ttl: time.Minute, log: slog.New(slog.DiscardHandler)}
	ctx := context.Background()

	tr := cachedTrace("user-1")
	require.NoError(t, store.Persist(ctx, tr))
	assert.Contains(t, cache.entries, latestKey("user-1"))

	// Served from the cache without touching the database ordering path.
	got, err := store.GetLatest(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, tr.ChartID, got.ChartID)
}

func TestCachedStorePersistSupersedesOlderEntry(t *testing.T) {
	cache := newFakeCache()
	store := &CachedStore{next: NewMemoryStore(), cache: cache, ttl: time.Minute, log: slog.New(slog.DiscardHandler)}
	ctx := context.Background()

	older := cachedTrace("user-1")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := cachedTrace("user-1")
	require.NoError(t, store.Persist(ctx, older))
	require.NoError(t, store.Persist(ctx, newer))

	got, err := store.GetLatest(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, newer.ChartID, got.ChartID)
}

func TestCachedStoreMissFallsBackAndRefills(t *testing.T) {
	cache := newFakeCache()
	next := NewMemoryStore()
	store := &CachedStore{next: next, cache: cache, ttl: time.Minute, log: slog.New(slog.DiscardHandler)}
	ctx := context.Background()

	tr := cachedTrace("user-1")
	require.NoError(t, next.Persist(ctx, tr)) // bypass the decorator

	got, err := store.GetLatest(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, tr.ChartID, got.ChartID)
	assert.Contains(t, cache.entries, latestKey("user-1"), "miss must refill the cache")
}

func TestCachedStoreInvalidatesWhenSetFails(t *testing.T) {
	cache := newFakeCache()
	store := &CachedStore{next: NewMemoryStore(), cache: cache, ttl: time.Minute, log: slog.New(slog.DiscardHandler)}
	ctx := context.Background()

	require.NoError(t, store.Persist(ctx, cachedTrace("user-1")))
	cache.failSet = true
	require.NoError(t, store.Persist(ctx, cachedTrace("user-1")))
	assert.NotContains(t, cache.entries, latestKey("user-1"), "stale entry must be dropped")
}

func TestCachedStoreGetBypassesCache(t *testing.T) {
	cache := newFakeCache()
	next := NewMemoryStore()
	store := &CachedStore{next: next, cache: cache, ttl: time.Minute, log: slog.New(slog.DiscardHandler)}
	ctx := context.Background()

	tr := cachedTrace("user-1")
	require.NoError(t, next.Persist(ctx, tr))

	got, err := store.Get(ctx, tr.ChartID)
	require.NoError(t, err)
	assert.Equal(t, tr.ChartID, got.ChartID)
	assert.Zero(t, cache.gets)
}
