package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dessert_generator_go_backend/internal/metrics"
	"dessert_generator_go_backend/internal/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// CachedDessert is the cache payload: everything needed to answer a repeated request.
type CachedDessert struct {
	Recipe   models.Recipe `json:"recipe"`
	ImageURL string        `json:"image"`
}

// DessertCache is what the orchestrator needs from the cache.
type DessertCache interface {
	Get(ctx context.Context, key string) (*CachedDessert, bool)
	Set(ctx context.Context, key string, value *CachedDessert, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}

// MemoryTier is the process-local, bounded tier.
type MemoryTier interface {
	Get(key string) (*CachedDessert, bool)
	Add(key string, value *CachedDessert, ttl time.Duration)
	Remove(key string)
	Len() int
}

type memoryEntry struct {
	value     CachedDessert
	expiresAt time.Time
}

// LRUMemoryTier evicts least-recently-used entries beyond its capacity. The underlying LRU enforces the
// tier-wide TTL; each entry additionally carries its own expiry so shorter per-set TTLs hold.
type LRUMemoryTier struct {
	lru    *expirable.LRU[string, memoryEntry]
	maxTTL time.Duration
	now    func() time.Time
}

func NewLRUMemoryTier(capacity int, ttl time.Duration, now func() time.Time) *LRUMemoryTier {
	if now == nil {
		now = time.Now
	}
	return &LRUMemoryTier{
		lru:    expirable.NewLRU[string, memoryEntry](capacity, nil, ttl),
		maxTTL: ttl,
		now:    now,
	}
}

func (m *LRUMemoryTier) Get(key string) (*CachedDessert, bool) {
	entry, ok := m.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !m.now().Before(entry.expiresAt) {
		m.lru.Remove(key)
		return nil, false
	}
	v := entry.value
	v.Recipe = v.Recipe.Clone()
	return &v, true
}

func (m *LRUMemoryTier) Add(key string, value *CachedDessert, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if m.maxTTL > 0 && ttl > m.maxTTL {
		ttl = m.maxTTL
	}
	v := *value
	v.Recipe = v.Recipe.Clone()
	m.lru.Add(key, memoryEntry{value: v, expiresAt: m.now().Add(ttl)})
}

func (m *LRUMemoryTier) Remove(key string) {
	m.lru.Remove(key)
}

func (m *LRUMemoryTier) Len() int {
	return m.lru.Len()
}

// TwoTierCache reads memory first, then the persistent store, and writes through to both.
// The tiers are not updated atomically; a reader may briefly see only one of them.
type TwoTierCache struct {
	memory     MemoryTier
	store      CacheServiceDB
	defaultTTL time.Duration
	hitTimeout time.Duration
	now        func() time.Time
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

type TwoTierCacheOption func(*TwoTierCache)

func WithCacheClock(now func() time.Time) TwoTierCacheOption {
	return func(c *TwoTierCache) { c.now = now }
}

func WithCacheMetrics(m *metrics.Metrics) TwoTierCacheOption {
	return func(c *TwoTierCache) { c.metrics = m }
}

func WithCacheLogger(l zerolog.Logger) TwoTierCacheOption {
	return func(c *TwoTierCache) { c.logger = l }
}

func NewTwoTierCache(memory MemoryTier, store CacheServiceDB, defaultTTL time.Duration, opts ...TwoTierCacheOption) *TwoTierCache {
	c := &TwoTierCache{
		memory:     memory,
		store:      store,
		defaultTTL: defaultTTL,
		hitTimeout: 5 * time.Second,
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get never fails: persistent-store errors and undecodable payloads are reported as a miss.
func (c *TwoTierCache) Get(ctx context.Context, key string) (*CachedDessert, bool) {
	if v, ok := c.memory.Get(key); ok {
		c.metrics.CacheLookup("memory", "hit")
		return v, true
	}
	c.metrics.CacheLookup("memory", "miss")

	now := c.now()
	entry, err := c.store.GetCacheEntryDB(ctx, key, now)
	if err != nil {
		if !isNotFound(err) {
			c.logger.Warn().Err(err).Str("cache_key", key).Msg("persistent cache lookup failed")
		}
		c.metrics.CacheLookup("persistent", "miss")
		return nil, false
	}

	var value CachedDessert
	if err := json.Unmarshal(entry.Payload, &value); err != nil {
		c.logger.Warn().Err(err).Str("cache_key", key).Msg("discarding undecodable cache payload")
		c.metrics.CacheLookup("persistent", "miss")
		return nil, false
	}
	c.metrics.CacheLookup("persistent", "hit")

	go c.incrementHits(key)

	c.memory.Add(key, &value, entry.ExpiresAt.Sub(now))
	return &value, true
}

// incrementHits runs detached from the request; its failure is only logged.
func (c *TwoTierCache) incrementHits(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.hitTimeout)
	defer cancel()
	if err := c.store.IncrementCacheHitsDB(ctx, key); err != nil {
		c.logger.Debug().Err(err).Str("cache_key", key).Msg("cache hit counter update failed")
	}
}

// Set stores value in memory, then upserts the persistent row. A returned error means only the
// persistent write failed.
func (c *TwoTierCache) Set(ctx context.Context, key string, value *CachedDessert, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.memory.Add(key, value, ttl)

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache payload: %w", err)
	}
	if err := c.store.UpsertCacheEntryDB(ctx, key, payload, c.now().Add(ttl)); err != nil {
		return fmt.Errorf("failed to persist cache entry: %w", err)
	}
	return nil
}

func (c *TwoTierCache) Remove(ctx context.Context, key string) error {
	c.memory.Remove(key)
	if err := c.store.DeleteCacheEntryDB(ctx, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// SweepExpired deletes persistent rows past their expiry. The memory tier expires on its own.
func (c *TwoTierCache) SweepExpired(ctx context.Context) (int64, error) {
	n, err := c.store.DeleteExpiredCacheEntriesDB(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired cache entries: %w", err)
	}
	return n, nil
}
