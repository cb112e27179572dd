package provider

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	RecoveryTimeout  time.Duration
	ProbeRequests    int
}

// Breaker excludes an endpoint from selection after consecutive
// failures, letting a few probe requests through once the recovery
// timeout has passed. Probes are counted when admitted, so at most
// ProbeRequests can be in flight before the first outcome lands.
type Breaker struct {
	cfg       BreakerConfig
	state     breakerState
	failures  int
	probes    int // admitted since entering half-open
	successes int
	openedAt  time.Time
	mu        sync.Mutex
}

// NewBreaker creates a Breaker
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.ProbeRequests <= 0 {
		cfg.ProbeRequests = 2
	}
	return &Breaker{cfg: cfg, state: breakerClosed}
}

// Allow reports whether a request may go through
func (b *Breaker) Allow() bool {
	if !b.cfg.Enabled {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerHalfOpen:
		if b.probes < b.cfg.ProbeRequests {
			b.probes++
			return true
		}
		return false
	case breakerOpen:
		if time.Since(b.openedAt) >= b.cfg.RecoveryTimeout {
			b.state = breakerHalfOpen
			b.probes = 1
			b.successes = 0
			return true
		}
		return false
	}
	return true
}

// Success records a successful request
func (b *Breaker) Success() {
	if !b.cfg.Enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerHalfOpen:
		b.successes++
		if b.successes >= b.cfg.ProbeRequests {
			b.state = breakerClosed
			b.failures = 0
		}
	case breakerClosed:
		b.failures = 0
	}
}

// Failure records a failed request
func (b *Breaker) Failure() {
	if !b.cfg.Enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.openedAt = time.Now()

	switch b.state {
	case breakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = breakerOpen
		}
	case breakerHalfOpen:
		b.state = breakerOpen
		b.probes = 0
		b.successes = 0
	}
}
