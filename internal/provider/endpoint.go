// Package provider implements the remote side of the read pipeline: a
// pool of JSON-RPC endpoints that accepts an ordered batch of requests
// and returns ordered responses or a single aggregate error.
package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"batchread/internal/jsonrpc"
	"batchread/internal/metrics"
)

// Role defines how an endpoint participates in selection
type Role string

const (
	RoleMain     Role = "main"
	RoleFallback Role = "fallback"
)

// EndpointConfig configures a single endpoint
type EndpointConfig struct {
	Name           string
	RPCURL         string
	WSURL          string
	Role           Role
	RequestTimeout time.Duration
	Breaker        BreakerConfig
}

// Endpoint is a single JSON-RPC HTTP endpoint
type Endpoint struct {
	name    string
	rpcURL  string
	wsURL   string
	role    Role
	client  *http.Client
	breaker *Breaker
	logger  zerolog.Logger
}

// NewEndpoint creates an Endpoint
func NewEndpoint(cfg EndpointConfig, logger zerolog.Logger) *Endpoint {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}

	return &Endpoint{
		name:   cfg.Name,
		rpcURL: cfg.RPCURL,
		wsURL:  cfg.WSURL,
		role:   cfg.Role,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		breaker: NewBreaker(cfg.Breaker),
		logger:  logger.With().Str("endpoint", cfg.Name).Logger(),
	}
}

// Name returns the endpoint name
func (e *Endpoint) Name() string {
	return e.name
}

// WSURL returns the WebSocket URL, empty if not configured
func (e *Endpoint) WSURL() string {
	return e.wsURL
}

// IsFallback returns true for fallback endpoints
func (e *Endpoint) IsFallback() bool {
	return e.role == RoleFallback
}

// Call sends a single JSON-RPC request
func (e *Endpoint) Call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	body, err := e.post(ctx, mustMarshal(req))
	if err != nil {
		return nil, err
	}

	resp, err := jsonrpc.ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp, nil
}

// CallBatch sends an ordered batch of JSON-RPC requests and returns the
// responses realigned to request order. Providers may answer a batch out
// of order; the request IDs carry the original positions.
func (e *Endpoint) CallBatch(ctx context.Context, requests []*jsonrpc.Request) ([]*jsonrpc.Response, error) {
	reqBytes, err := jsonrpc.MarshalBatch(requests)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	body, err := e.post(ctx, reqBytes)
	if err != nil {
		return nil, err
	}

	responses, isBatch, err := jsonrpc.ParseBatchResponse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse batch response: %w", err)
	}

	if !isBatch && len(responses) == 1 && responses[0].HasError() {
		// Single error object for the whole batch
		return nil, fmt.Errorf("batch rejected: %s", responses[0].Error.Message)
	}

	if len(responses) != len(requests) {
		return nil, fmt.Errorf("batch size mismatch: sent %d, got %d", len(requests), len(responses))
	}

	return alignByID(requests, responses)
}

// post performs the HTTP POST and returns the raw body
func (e *Endpoint) post(ctx context.Context, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.RecordProviderRequest(e.name)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// alignByID reorders responses to match the request order
func alignByID(requests []*jsonrpc.Request, responses []*jsonrpc.Response) ([]*jsonrpc.Response, error) {
	byID := make(map[string]*jsonrpc.Response, len(responses))
	for _, resp := range responses {
		raw, err := resp.ID.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("unreadable response ID: %w", err)
		}
		byID[string(raw)] = resp
	}

	aligned := make([]*jsonrpc.Response, len(requests))
	for i, req := range requests {
		raw, _ := req.ID.MarshalJSON()
		resp, ok := byID[string(raw)]
		if !ok {
			return nil, fmt.Errorf("missing response for request %s", string(raw))
		}
		aligned[i] = resp
	}
	return aligned, nil
}

func mustMarshal(req *jsonrpc.Request) []byte {
	b, _ := req.Bytes()
	return b
}
