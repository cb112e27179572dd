// Package cache stores batch results keyed by their BatchKey.
//
// Three policies govern an entry's life: StaleTime (age after which a
// hit is still served but triggers a background refetch), CacheTime
// (retention after last access, enforced lazily and by a cleanup loop),
// and block scoping (entries dropped wholesale on every new head).
// The cache owns request coalescing: at most one in-flight fetch per
// key, shared by all concurrent callers.
package cache

import (
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"batchread/internal/contract"
	"batchread/internal/metrics"
)

// StaleForever disables staleness: entries are fresh until evicted
const StaleForever = time.Duration(math.MaxInt64)

// Scope determines how a stored entry is invalidated
type Scope int

const (
	// ScopeTime entries live by StaleTime/CacheTime alone
	ScopeTime Scope = iota
	// ScopeBlock entries are additionally dropped on every new head
	ScopeBlock
)

// Config holds cache configuration
type Config struct {
	// Size bounds the number of entries (LRU beyond that)
	Size int
	// CacheTime is retention after last access. 0 disables retention
	// entirely: results live only as long as the in-flight request.
	CacheTime time.Duration
	// StaleTime is the age at which a hit triggers a background
	// refetch. 0 means always stale; StaleForever or any negative
	// value means never.
	StaleTime time.Duration
}

// Policy sets how one entry is stored. StaleTime and CacheTime
// override the cache-level defaults when non-nil, so individual
// readers can carry their own timings on a shared cache.
type Policy struct {
	Scope     Scope
	StaleTime *time.Duration
	CacheTime *time.Duration
}

// Entry is a snapshot of a cached batch result
type Entry struct {
	Result      contract.BatchResult
	CreatedAt   time.Time
	BlockScoped bool
	Stale       bool
}

type entry struct {
	result      contract.BatchResult
	createdAt   time.Time
	lastAccess  time.Time
	blockScoped bool
	staleTime   time.Duration
	cacheTime   time.Duration
}

// ResultCache is an in-memory batch result cache with coalescing
type ResultCache struct {
	store    *lru.Cache[contract.BatchKey, *entry]
	cfg      Config
	inflight map[contract.BatchKey]*flight
	mu       sync.Mutex
	now      func() time.Time
	logger   zerolog.Logger
	closeCh  chan struct{}
	closeOne sync.Once
}

// New creates a ResultCache
func New(cfg Config, logger zerolog.Logger) (*ResultCache, error) {
	if cfg.Size <= 0 {
		cfg.Size = 1024
	}

	store, err := lru.New[contract.BatchKey, *entry](cfg.Size)
	if err != nil {
		return nil, err
	}

	c := &ResultCache{
		store:    store,
		cfg:      cfg,
		inflight: make(map[contract.BatchKey]*flight),
		now:      time.Now,
		logger:   logger.With().Str("component", "cache").Logger(),
		closeCh:  make(chan struct{}),
	}

	go c.cleanupLoop()

	return c, nil
}

// Get retrieves an entry, refreshing its last-access time. Expired
// entries are removed lazily here as well as by the cleanup loop.
func (c *ResultCache) Get(key contract.BatchKey) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(key)
}

func (c *ResultCache) lookupLocked(key contract.BatchKey) (Entry, bool) {
	e, ok := c.store.Get(key)
	if !ok {
		return Entry{}, false
	}

	now := c.now()
	if now.Sub(e.lastAccess) > e.cacheTime {
		c.store.Remove(key)
		metrics.CacheEvictions.Inc()
		return Entry{}, false
	}
	e.lastAccess = now

	return Entry{
		Result:      e.result,
		CreatedAt:   e.createdAt,
		BlockScoped: e.blockScoped,
		Stale:       isStale(e, now),
	}, true
}

// isStale treats any negative StaleTime like StaleForever: never stale
func isStale(e *entry, now time.Time) bool {
	if e.staleTime < 0 || e.staleTime == StaleForever {
		return false
	}
	return now.Sub(e.createdAt) > e.staleTime
}

// resolve applies the cache defaults to a policy's unset fields
func (c *ResultCache) resolve(pol Policy) (staleTime, cacheTime time.Duration) {
	staleTime = c.cfg.StaleTime
	if pol.StaleTime != nil {
		staleTime = *pol.StaleTime
	}
	cacheTime = c.cfg.CacheTime
	if pol.CacheTime != nil {
		cacheTime = *pol.CacheTime
	}
	return staleTime, cacheTime
}

// Put stores a batch result. With a resolved CacheTime of 0 nothing is
// retained; coalescing alone covers the in-flight window.
func (c *ResultCache) Put(key contract.BatchKey, result contract.BatchResult, pol Policy) {
	staleTime, cacheTime := c.resolve(pol)
	if cacheTime == 0 {
		return
	}

	now := c.now()
	c.mu.Lock()
	c.store.Add(key, &entry{
		result:      result,
		createdAt:   now,
		lastAccess:  now,
		blockScoped: pol.Scope == ScopeBlock,
		staleTime:   staleTime,
		cacheTime:   cacheTime,
	})
	c.mu.Unlock()
}

// Invalidate removes a single entry
func (c *ResultCache) Invalidate(key contract.BatchKey) {
	c.mu.Lock()
	c.store.Remove(key)
	c.mu.Unlock()
}

// InvalidateBlockScoped removes every block-scoped entry. Called on
// each new head, regardless of staleness settings.
func (c *ResultCache) InvalidateBlockScoped() {
	c.mu.Lock()
	removed := 0
	for _, key := range c.store.Keys() {
		if e, ok := c.store.Peek(key); ok && e.blockScoped {
			c.store.Remove(key)
			removed++
		}
	}
	c.mu.Unlock()

	metrics.BlockInvalidations.Inc()
	if removed > 0 {
		c.logger.Debug().Int("removed", removed).Msg("block-scoped entries invalidated")
	}
}

// Len returns the number of stored entries
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Close stops the cleanup loop
func (c *ResultCache) Close() {
	c.closeOne.Do(func() {
		close(c.closeCh)
	})
}

// cleanupLoop periodically evicts entries past their retention window.
// Entries carry their own retention, so the sweep runs even when the
// cache-level default is zero.
func (c *ResultCache) cleanupLoop() {
	interval := c.cfg.CacheTime / 2
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

// removeExpired evicts all entries past their retention window
func (c *ResultCache) removeExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.store.Keys() {
		if e, ok := c.store.Peek(key); ok && now.Sub(e.lastAccess) > e.cacheTime {
			c.store.Remove(key)
			metrics.CacheEvictions.Inc()
		}
	}
}
