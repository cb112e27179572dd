package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"batchread/internal/contract"
	"batchread/internal/jsonrpc"
)

// ErrAllEndpointsFailed is returned when every usable endpoint failed
var ErrAllEndpointsFailed = errors.New("all endpoints failed")

// ErrNoEndpoints is returned when no endpoint is available for selection
var ErrNoEndpoints = errors.New("no endpoints available")

// Config holds pool-level configuration
type Config struct {
	// ChainID pins the expected chain. 0 adopts the chain reported by
	// the first reachable endpoint; endpoints on another chain are
	// rejected at startup either way.
	ChainID          uint64
	RetryEnabled     bool
	RetryMaxAttempts int
}

// Pool is an ordered set of endpoints, mains before fallbacks. It
// implements the batcher's Provider contract.
type Pool struct {
	endpoints []*Endpoint
	chainID   uint64
	cfg       Config
	logger    zerolog.Logger
}

// NewPool creates a Pool
func NewPool(endpoints []*Endpoint, cfg Config, logger zerolog.Logger) *Pool {
	return &Pool{
		endpoints: endpoints,
		chainID:   cfg.ChainID,
		cfg:       cfg,
		logger:    logger.With().Str("component", "provider").Logger(),
	}
}

// Start verifies each endpoint against the expected chain and drops
// mismatched ones. A mismatch with a pinned chain ID is a configuration
// error for that endpoint, not a transient failure.
func (p *Pool) Start(ctx context.Context) error {
	kept := p.endpoints[:0]
	for _, e := range p.endpoints {
		chainID, err := p.queryChainID(ctx, e)
		if err != nil {
			p.logger.Warn().Err(err).Str("endpoint", e.Name()).Msg("chain ID check failed, keeping endpoint")
			kept = append(kept, e)
			continue
		}
		if p.chainID == 0 {
			p.chainID = chainID
		}
		if chainID != p.chainID {
			p.logger.Error().
				Str("endpoint", e.Name()).
				Uint64("want", p.chainID).
				Uint64("got", chainID).
				Msg("endpoint on wrong chain, dropping")
			continue
		}
		kept = append(kept, e)
	}
	p.endpoints = kept

	if len(p.endpoints) == 0 {
		return contract.NewConfigError("no endpoints left after chain verification")
	}
	if p.chainID == 0 {
		return fmt.Errorf("could not determine chain ID from any endpoint")
	}

	p.logger.Info().Uint64("chainId", p.chainID).Int("endpoints", len(p.endpoints)).Msg("provider pool started")
	return nil
}

// ChainID returns the verified chain ID
func (p *Pool) ChainID() uint64 {
	return p.chainID
}

// WSEndpoints returns endpoints with a WebSocket URL configured
func (p *Pool) WSEndpoints() []*Endpoint {
	var out []*Endpoint
	for _, e := range p.endpoints {
		if e.WSURL() != "" {
			out = append(out, e)
		}
	}
	return out
}

// Call sends a single request with retry across endpoints
func (p *Pool) Call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var resp *jsonrpc.Response
	err := p.withRetry(ctx, func(e *Endpoint) (bool, error) {
		r, err := e.Call(ctx, req)
		if err != nil {
			return true, err
		}
		if r.HasError() && r.IsRetryableError() {
			return true, fmt.Errorf("RPC error: %s", r.Error.Message)
		}
		resp = r
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// CallBatch sends an ordered batch with retry across endpoints.
// Responses come back aligned with the request order.
func (p *Pool) CallBatch(ctx context.Context, requests []*jsonrpc.Request) ([]*jsonrpc.Response, error) {
	var responses []*jsonrpc.Response
	err := p.withRetry(ctx, func(e *Endpoint) (bool, error) {
		rs, err := e.CallBatch(ctx, requests)
		if err != nil {
			return true, err
		}
		responses = rs
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return responses, nil
}

// BlockNumber queries the current head block number
func (p *Pool) BlockNumber(ctx context.Context) (uint64, error) {
	req, err := jsonrpc.NewRequest("eth_blockNumber", nil, jsonrpc.NewIDInt(1))
	if err != nil {
		return 0, err
	}
	resp, err := p.Call(ctx, req)
	if err != nil {
		return 0, err
	}
	if resp.HasError() {
		return 0, fmt.Errorf("eth_blockNumber: %s", resp.Error.Message)
	}
	var hexNum string
	if err := resp.GetResultAs(&hexNum); err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return hexutil.DecodeUint64(hexNum)
}

// withRetry runs fn against endpoints in order (mains first, then
// fallbacks), honoring breakers and the retry budget. fn returns
// (retryable, err).
func (p *Pool) withRetry(ctx context.Context, fn func(*Endpoint) (bool, error)) error {
	maxAttempts := 1
	if p.cfg.RetryEnabled {
		maxAttempts = p.cfg.RetryMaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 1
		}
	}

	tried := make(map[string]bool)
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		e := p.next(tried)
		if e == nil {
			break
		}
		tried[e.Name()] = true

		retryable, err := fn(e)
		if err == nil {
			e.breaker.Success()
			return nil
		}
		e.breaker.Failure()
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable {
			return err
		}

		p.logger.Warn().
			Err(err).
			Str("endpoint", e.Name()).
			Int("attempt", attempt+1).
			Int("maxAttempts", maxAttempts).
			Bool("isFallback", e.IsFallback()).
			Msg("request failed, retrying")
	}

	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrAllEndpointsFailed, lastErr)
	}
	return ErrNoEndpoints
}

// next picks the first untried endpoint whose breaker allows a request,
// preferring mains over fallbacks
func (p *Pool) next(tried map[string]bool) *Endpoint {
	for _, fallback := range []bool{false, true} {
		for _, e := range p.endpoints {
			if e.IsFallback() != fallback || tried[e.Name()] {
				continue
			}
			if !e.breaker.Allow() {
				continue
			}
			return e
		}
	}
	return nil
}

// queryChainID asks a single endpoint for its chain ID
func (p *Pool) queryChainID(ctx context.Context, e *Endpoint) (uint64, error) {
	req, err := jsonrpc.NewRequest("eth_chainId", nil, jsonrpc.NewIDInt(1))
	if err != nil {
		return 0, err
	}
	resp, err := e.Call(ctx, req)
	if err != nil {
		return 0, err
	}
	if resp.HasError() {
		return 0, fmt.Errorf("eth_chainId: %s", resp.Error.Message)
	}
	var hexID string
	if err := resp.GetResultAs(&hexID); err != nil {
		return 0, err
	}
	return hexutil.DecodeUint64(hexID)
}
