package blockwatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// BlockSource answers head queries over HTTP
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Poller derives head events by polling eth_blockNumber. Used when no
// endpoint offers a WebSocket feed. Hashes are unknown here, so dedup
// falls back to block numbers.
type Poller struct {
	source   BlockSource
	watcher  *Watcher
	interval time.Duration
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a Poller
func NewPoller(source BlockSource, watcher *Watcher, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		source:   source,
		watcher:  watcher,
		interval: interval,
		logger:   logger.With().Str("component", "blockpoller").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start runs the polling loop in the background
func (p *Poller) Start() {
	go p.loop()
}

// Close stops the poller
func (p *Poller) Close() {
	p.cancel()
	<-p.done
}

func (p *Poller) loop() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		}

		number, err := p.source.BlockNumber(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Warn().Err(err).Msg("block number poll failed")
			continue
		}

		if number <= last {
			continue
		}
		last = number
		p.watcher.Announce(Head{Number: number, SeenAt: time.Now()})
	}
}
