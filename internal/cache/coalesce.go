package cache

import (
	"context"

	"batchread/internal/contract"
	"batchread/internal/metrics"
)

// FetchFunc produces a batch result when the cache cannot
type FetchFunc func(ctx context.Context) (contract.BatchResult, error)

// SettleFunc observes the outcome of a background refetch
type SettleFunc func(contract.BatchResult, error)

// flight is a single in-flight fetch shared by all waiters for its key
type flight struct {
	done   chan struct{}
	result contract.BatchResult
	err    error
	hooks  []SettleFunc
}

// Do returns the cached result for key or fetches it, coalescing
// concurrent callers onto one underlying execution.
//
// A fresh hit returns immediately. A stale hit is served as-is while a
// background refetch runs. A miss joins (or starts) the in-flight fetch
// for the key. A caller whose context ends detaches without disturbing
// the fetch or the other waiters.
func (c *ResultCache) Do(ctx context.Context, key contract.BatchKey, pol Policy, fetch FetchFunc) (contract.BatchResult, error) {
	return c.DoWithRefresh(ctx, key, pol, fetch, nil)
}

// DoWithRefresh is Do with a settle hook: when a stale hit triggers a
// background refetch, onRefresh is invoked once that refetch settles.
// Fresh hits and misses never invoke it.
func (c *ResultCache) DoWithRefresh(ctx context.Context, key contract.BatchKey, pol Policy, fetch FetchFunc, onRefresh SettleFunc) (contract.BatchResult, error) {
	c.mu.Lock()
	if e, ok := c.lookupLocked(key); ok {
		if !e.Stale {
			c.mu.Unlock()
			metrics.CacheHits.Inc()
			return e.Result.Clone(), nil
		}
		f := c.startLocked(key, pol, fetch)
		if onRefresh != nil {
			f.hooks = append(f.hooks, onRefresh)
		}
		c.mu.Unlock()
		metrics.CacheHits.Inc()
		metrics.CacheStaleServed.Inc()
		return e.Result.Clone(), nil
	}

	f, started := c.joinLocked(key, pol, fetch)
	c.mu.Unlock()

	metrics.CacheMisses.Inc()
	if !started {
		metrics.CoalescedWaiters.Inc()
	}

	select {
	case <-f.done:
		if f.err != nil {
			return nil, f.err
		}
		return f.result.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Refresh forces a background refetch for key unless one is already in
// flight. Used by watching readers on new heads.
func (c *ResultCache) Refresh(key contract.BatchKey, pol Policy, fetch FetchFunc) <-chan struct{} {
	c.mu.Lock()
	f := c.startLocked(key, pol, fetch)
	c.mu.Unlock()
	return f.done
}

// joinLocked returns the in-flight fetch for key, starting one if
// needed. started reports whether this caller owns the fetch.
func (c *ResultCache) joinLocked(key contract.BatchKey, pol Policy, fetch FetchFunc) (*flight, bool) {
	if f, ok := c.inflight[key]; ok {
		return f, false
	}
	return c.launchLocked(key, pol, fetch), true
}

// startLocked is joinLocked for fire-and-forget callers
func (c *ResultCache) startLocked(key contract.BatchKey, pol Policy, fetch FetchFunc) *flight {
	if f, ok := c.inflight[key]; ok {
		return f
	}
	return c.launchLocked(key, pol, fetch)
}

func (c *ResultCache) launchLocked(key contract.BatchKey, pol Policy, fetch FetchFunc) *flight {
	f := &flight{done: make(chan struct{})}
	c.inflight[key] = f

	// The fetch outlives any individual waiter: it runs on its own
	// context so a detaching caller cannot cancel it for the rest.
	go func() {
		result, err := fetch(context.Background())

		f.result = result
		f.err = err
		if err == nil {
			c.Put(key, result, pol)
		} else {
			c.logger.Debug().Err(err).Str("key", string(key)).Msg("fetch failed")
		}

		c.mu.Lock()
		delete(c.inflight, key)
		hooks := f.hooks
		c.mu.Unlock()
		close(f.done)

		for _, hook := range hooks {
			hook(result.Clone(), err)
		}
	}()

	return f
}
