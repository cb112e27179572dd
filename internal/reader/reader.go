// Package reader is the consumer surface: a Reader owns one descriptor
// batch, an explicit cache reference, and the policies tying them
// together (failure tolerance, cache scoping, watch behavior, read-side
// transform).
//
// Settled reads are published on an update channel instead of
// callbacks; the raw batch result is what gets cached, transforms run
// on every read.
package reader

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"batchread/internal/batcher"
	"batchread/internal/blockwatch"
	"batchread/internal/cache"
	"batchread/internal/contract"
)

// ErrDisabled is returned by Read on a disabled reader
var ErrDisabled = errors.New("reader is disabled")

// Executor runs descriptor batches; implemented by batcher.CallBatcher
type Executor interface {
	Execute(ctx context.Context, calls []contract.CallDescriptor, opts batcher.Options) (contract.BatchResult, error)
}

// SelectFunc transforms a batch result on read. The cache always holds
// the raw result; the transform output is never stored.
type SelectFunc func(contract.BatchResult) (interface{}, error)

// Options configure a Reader
type Options struct {
	Contracts    []contract.CallDescriptor
	AllowFailure bool
	Overrides    batcher.Overrides
	// CacheOnBlock scopes the cache entry to the current block: any new
	// head invalidates it.
	CacheOnBlock bool
	// Watch refetches and publishes an update on every new head
	Watch bool
	// Disabled readers never fetch; Read returns ErrDisabled
	Disabled bool
	// StaleTime and CacheTime override the cache-level defaults for
	// this reader's entries when non-nil
	StaleTime *time.Duration
	CacheTime *time.Duration
	Select    SelectFunc
}

// Result is a settled read
type Result struct {
	Batch contract.BatchResult
	// Data is the Select output; nil when no transform is configured
	Data interface{}
	At   time.Time
}

// Update is a settled read or failure delivered on the update channel
type Update struct {
	Result
	Err error
}

// Reader reads one descriptor batch through the cache
type Reader struct {
	name    string
	opts    Options
	exec    Executor
	cache   *cache.ResultCache
	watcher *blockwatch.Watcher
	key     contract.BatchKey
	policy  cache.Policy
	updates chan Update
	logger  zerolog.Logger
}

// New creates a Reader. Descriptors are validated here; the batch key
// is fixed for the reader's lifetime. watcher may be nil when Watch is
// not requested.
func New(name string, exec Executor, c *cache.ResultCache, watcher *blockwatch.Watcher, opts Options, logger zerolog.Logger) (*Reader, error) {
	for i, call := range opts.Contracts {
		if err := call.Validate(); err != nil {
			return nil, contract.NewConfigError("reader %s, call %d: %v", name, i, err)
		}
	}

	extras := []interface{}{}
	if opts.Overrides.BlockNumber != nil {
		extras = append(extras, opts.Overrides.BlockNumber.String())
	}
	if opts.Overrides.From != nil {
		extras = append(extras, opts.Overrides.From.Hex())
	}
	key, err := contract.KeyOf(opts.Contracts, extras...)
	if err != nil {
		return nil, err
	}

	policy := cache.Policy{
		StaleTime: opts.StaleTime,
		CacheTime: opts.CacheTime,
	}
	if opts.CacheOnBlock {
		policy.Scope = cache.ScopeBlock
	}

	r := &Reader{
		name:    name,
		opts:    opts,
		exec:    exec,
		cache:   c,
		watcher: watcher,
		key:     key,
		policy:  policy,
		updates: make(chan Update, 16),
		logger:  logger.With().Str("component", "reader").Str("reader", name).Logger(),
	}

	if opts.Watch {
		if watcher == nil {
			return nil, contract.NewConfigError("reader %s: watch requested without a block watcher", name)
		}
		watcher.Subscribe(blockwatch.NewFuncSubscriber(r.subscriberID(), r.onHead))
	}

	return r, nil
}

// Name returns the reader name
func (r *Reader) Name() string {
	return r.name
}

// Key returns the reader's batch key
func (r *Reader) Key() contract.BatchKey {
	return r.key
}

// Read executes the batch through the cache and applies the transform.
// A stale cache hit is served immediately while a refetch runs in the
// background; the refetched value arrives on the update channel.
func (r *Reader) Read(ctx context.Context) (*Result, error) {
	if r.opts.Disabled {
		return nil, ErrDisabled
	}

	batch, err := r.cache.DoWithRefresh(ctx, r.key, r.policy, r.fetch, r.onRefetch)
	if err != nil {
		r.publish(Update{Err: err})
		return nil, err
	}

	res, err := r.settle(batch)
	if err != nil {
		r.publish(Update{Err: err})
		return nil, err
	}

	r.publish(Update{Result: *res})
	return res, nil
}

// onRefetch publishes the settle of a background refetch started by a
// stale hit
func (r *Reader) onRefetch(batch contract.BatchResult, err error) {
	if err != nil {
		r.publish(Update{Err: err})
		return
	}
	res, err := r.settle(batch)
	if err != nil {
		r.publish(Update{Err: err})
		return
	}
	r.publish(Update{Result: *res})
}

// Updates returns the settled-read stream. The channel is buffered;
// slow consumers lose old updates rather than blocking reads.
func (r *Reader) Updates() <-chan Update {
	return r.updates
}

// Close detaches the reader from the block watcher
func (r *Reader) Close() {
	if r.opts.Watch && r.watcher != nil {
		r.watcher.Unsubscribe(r.subscriberID())
	}
}

// fetch is the cache miss path
func (r *Reader) fetch(ctx context.Context) (contract.BatchResult, error) {
	return r.exec.Execute(ctx, r.opts.Contracts, batcher.Options{
		AllowFailure: r.opts.AllowFailure,
		Overrides:    r.opts.Overrides,
	})
}

// settle applies the transform to a raw batch result
func (r *Reader) settle(batch contract.BatchResult) (*Result, error) {
	res := &Result{Batch: batch, At: time.Now()}
	if r.opts.Select != nil {
		data, err := r.opts.Select(batch)
		if err != nil {
			return nil, err
		}
		res.Data = data
	}
	return res, nil
}

// onHead refetches on a new chain head and publishes the result. The
// entry is dropped explicitly regardless of scope: subscriber fanout
// order is unspecified, so the block-scoped sweep may not have run yet
// and a fresh hit here would republish the previous block's data.
func (r *Reader) onHead(head blockwatch.Head) {
	if r.opts.Disabled {
		return
	}

	go func() {
		r.cache.Invalidate(r.key)

		batch, err := r.cache.Do(context.Background(), r.key, r.policy, r.fetch)
		if err != nil {
			r.publish(Update{Err: err})
			return
		}
		res, err := r.settle(batch)
		if err != nil {
			r.publish(Update{Err: err})
			return
		}
		r.publish(Update{Result: *res})
	}()
}

// publish delivers an update without ever blocking, dropping the oldest
// queued update when the buffer is full
func (r *Reader) publish(u Update) {
	for {
		select {
		case r.updates <- u:
			return
		default:
		}
		select {
		case <-r.updates:
		default:
		}
	}
}

func (r *Reader) subscriberID() string {
	return "reader:" + r.name
}
