// Package blockwatch observes chain head advancement and fans the
// events out to subscribers: the result cache (block-scoped
// invalidation) and watching readers (refetch triggers).
//
// Heads arrive over WebSocket newHeads subscriptions when an endpoint
// offers one, or from HTTP polling otherwise. Duplicate heads seen from
// multiple feeds are suppressed.
package blockwatch

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"batchread/internal/metrics"
)

// Head is a chain head event
type Head struct {
	Number     uint64
	Hash       string
	ParentHash string
	SeenAt     time.Time
}

// dedupKey identifies a head across feeds
func (h Head) dedupKey() string {
	if h.Hash != "" {
		return h.Hash
	}
	return fmt.Sprintf("num:%d", h.Number)
}

// Subscriber receives head events
type Subscriber interface {
	ID() string
	OnHead(head Head)
}

// FuncSubscriber adapts a function to the Subscriber interface
type FuncSubscriber struct {
	id string
	fn func(Head)
}

// NewFuncSubscriber creates a FuncSubscriber
func NewFuncSubscriber(id string, fn func(Head)) *FuncSubscriber {
	return &FuncSubscriber{id: id, fn: fn}
}

// ID implements Subscriber
func (s *FuncSubscriber) ID() string { return s.id }

// OnHead implements Subscriber
func (s *FuncSubscriber) OnHead(head Head) { s.fn(head) }

// Watcher deduplicates heads from all feeds and broadcasts them
type Watcher struct {
	subscribers map[string]Subscriber
	dedup       *lru.Cache[string, bool]
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewWatcher creates a Watcher
func NewWatcher(dedupSize int, logger zerolog.Logger) (*Watcher, error) {
	if dedupSize <= 0 {
		dedupSize = 1024
	}
	dedup, err := lru.New[string, bool](dedupSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}
	return &Watcher{
		subscribers: make(map[string]Subscriber),
		dedup:       dedup,
		logger:      logger.With().Str("component", "blockwatch").Logger(),
	}, nil
}

// Subscribe registers a subscriber
func (w *Watcher) Subscribe(s Subscriber) {
	w.mu.Lock()
	w.subscribers[s.ID()] = s
	w.mu.Unlock()
}

// Unsubscribe removes a subscriber
func (w *Watcher) Unsubscribe(id string) {
	w.mu.Lock()
	delete(w.subscribers, id)
	w.mu.Unlock()
}

// Announce broadcasts a head to all subscribers unless it was already
// seen from another feed
func (w *Watcher) Announce(head Head) {
	key := head.dedupKey()

	w.mu.Lock()
	if w.dedup.Contains(key) {
		w.mu.Unlock()
		return
	}
	w.dedup.Add(key, true)
	subs := make([]Subscriber, 0, len(w.subscribers))
	for _, s := range w.subscribers {
		subs = append(subs, s)
	}
	w.mu.Unlock()

	metrics.HeadsSeen.Inc()
	w.logger.Debug().Uint64("number", head.Number).Str("hash", head.Hash).Msg("new head")

	for _, s := range subs {
		s.OnHead(head)
	}
}
