package pagination

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"batchread/internal/batcher"
	"batchread/internal/cache"
	"batchread/internal/contract"
)

// Executor runs one batch of calls
type Executor interface {
	Execute(ctx context.Context, calls []contract.CallDescriptor, opts batcher.Options) (contract.BatchResult, error)
}

// Config configures a Pager
type Config struct {
	// CacheKey namespaces this pager's page entries in the cache
	CacheKey  string
	Contracts DescriptorFn
	Cursor    Cursor
	Options   batcher.Options
	Policy    cache.Policy
}

// Pager accumulates pages of batch results. Page state grows
// monotonically through FetchNextPage and only shrinks on Reset.
type Pager struct {
	cfg    Config
	exec   Executor
	cache  *cache.ResultCache
	logger zerolog.Logger

	mu        sync.Mutex
	pages     []contract.BatchResult
	params    []Param
	exhausted bool
}

// NewPager creates a Pager
func NewPager(cfg Config, exec Executor, c *cache.ResultCache, logger zerolog.Logger) *Pager {
	return &Pager{
		cfg:    cfg,
		exec:   exec,
		cache:  c,
		logger: logger.With().Str("component", "pager").Str("cacheKey", cfg.CacheKey).Logger(),
	}
}

// FetchNextPage fetches the next page through the cache. fetched is
// false once the cursor is exhausted; further calls are no-ops until
// Reset.
func (p *Pager) FetchNextPage(ctx context.Context) (page contract.BatchResult, fetched bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.exhausted {
		return nil, false, nil
	}

	param, ok := p.cfg.Cursor(p.pages)
	if !ok {
		p.exhausted = true
		p.logger.Debug().Int("pages", len(p.pages)).Msg("cursor exhausted")
		return nil, false, nil
	}

	calls := p.cfg.Contracts(param)
	if len(calls) == 0 {
		p.exhausted = true
		return nil, false, nil
	}

	key, err := contract.KeyOf(calls, p.cfg.CacheKey, param)
	if err != nil {
		return nil, false, err
	}

	result, err := p.cache.Do(ctx, key, p.cfg.Policy, func(ctx context.Context) (contract.BatchResult, error) {
		return p.exec.Execute(ctx, calls, p.cfg.Options)
	})
	if err != nil {
		return nil, false, err
	}

	p.pages = append(p.pages, result)
	p.params = append(p.params, param)
	return result, true, nil
}

// Pages returns the pages fetched so far
func (p *Pager) Pages() []contract.BatchResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]contract.BatchResult, len(p.pages))
	copy(out, p.pages)
	return out
}

// LastParam returns the parameter of the most recent page
func (p *Pager) LastParam() (Param, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.params) == 0 {
		return nil, false
	}
	return p.params[len(p.params)-1], true
}

// HasMore reports whether the cursor may still produce pages
func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.exhausted
}

// Reset drops all page state
func (p *Pager) Reset() {
	p.mu.Lock()
	p.pages = nil
	p.params = nil
	p.exhausted = false
	p.mu.Unlock()
}
