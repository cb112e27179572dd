// Package batcher executes ordered sets of contract read calls as a
// single JSON-RPC batch against a provider.
//
// The result is positionally aligned with the input: result i belongs to
// descriptor i regardless of completion order on the wire. Individual
// call failures are held as data when partial failure is tolerated, or
// aggregated into a single batch error when it is not.
package batcher

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"batchread/internal/contract"
	"batchread/internal/jsonrpc"
	"batchread/internal/metrics"
)

// Provider dispatches an ordered batch of JSON-RPC requests
type Provider interface {
	CallBatch(ctx context.Context, requests []*jsonrpc.Request) ([]*jsonrpc.Response, error)
	ChainID() uint64
}

// Overrides adjust every call in a batch
type Overrides struct {
	BlockNumber *big.Int        // nil means latest
	From        *common.Address // optional caller address
}

// Options control batch execution
type Options struct {
	// AllowFailure tolerates per-call failures: a failing call yields an
	// error entry at its position and the batch still succeeds. When
	// false, any per-call failure fails the whole batch with one
	// aggregate error and no partial result.
	AllowFailure bool
	Overrides    Overrides
}

// CallBatcher executes descriptor batches
type CallBatcher struct {
	provider Provider
	logger   zerolog.Logger
}

// New creates a CallBatcher
func New(provider Provider, logger zerolog.Logger) *CallBatcher {
	return &CallBatcher{
		provider: provider,
		logger:   logger.With().Str("component", "batcher").Logger(),
	}
}

// Execute runs the batch. Descriptor validation and chain checks happen
// before anything is dispatched; a malformed descriptor fails fast with
// a configuration error.
func (b *CallBatcher) Execute(ctx context.Context, calls []contract.CallDescriptor, opts Options) (contract.BatchResult, error) {
	if len(calls) == 0 {
		return contract.BatchResult{}, nil
	}

	requests, err := b.buildRequests(calls, opts.Overrides)
	if err != nil {
		return nil, err
	}

	b.logger.Debug().Int("calls", len(calls)).Msg("executing batch")
	metrics.RecordBatch(len(calls))

	responses, err := b.provider.CallBatch(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("batch dispatch failed: %w", err)
	}

	results := make(contract.BatchResult, len(calls))
	for i, resp := range responses {
		results[i] = decodeCall(i, calls[i], resp)
	}

	if !opts.AllowFailure {
		if first := results.FirstError(); first != nil {
			return nil, fmt.Errorf("batch failed: %w", first)
		}
	}

	return results, nil
}

// buildRequests validates the descriptors and encodes them as eth_call
// requests. Request IDs are the batch positions, so responses can be
// realigned by the provider layer.
func (b *CallBatcher) buildRequests(calls []contract.CallDescriptor, ov Overrides) ([]*jsonrpc.Request, error) {
	blockParam := "latest"
	if ov.BlockNumber != nil {
		blockParam = hexutil.EncodeBig(ov.BlockNumber)
	}

	requests := make([]*jsonrpc.Request, len(calls))
	for i, call := range calls {
		if err := call.Validate(); err != nil {
			return nil, err
		}
		if call.ChainID != 0 && call.ChainID != b.provider.ChainID() {
			return nil, contract.NewConfigError(
				"call %d (%s): chain %d does not match provider chain %d",
				i, call.Method, call.ChainID, b.provider.ChainID())
		}

		data, err := call.CallData()
		if err != nil {
			return nil, contract.NewConfigError("call %d (%s): %v", i, call.Method, err)
		}

		callObj := map[string]interface{}{
			"to":   call.Address.Hex(),
			"data": hexutil.Encode(data),
		}
		if ov.From != nil {
			callObj["from"] = ov.From.Hex()
		}

		req, err := jsonrpc.NewRequest("eth_call", []interface{}{callObj, blockParam}, jsonrpc.NewIDInt(int64(i+1)))
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		requests[i] = req
	}
	return requests, nil
}

// decodeCall turns one JSON-RPC response into a CallResult
func decodeCall(index int, call contract.CallDescriptor, resp *jsonrpc.Response) contract.CallResult {
	if resp.HasError() {
		return contract.CallResult{Err: &contract.CallError{
			Index:   index,
			Method:  call.Method,
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
		}}
	}

	var hexData string
	if err := resp.GetResultAs(&hexData); err != nil {
		return contract.CallResult{Err: &contract.CallError{
			Index:   index,
			Method:  call.Method,
			Message: fmt.Sprintf("unreadable result: %v", err),
		}}
	}

	raw, err := hexutil.Decode(hexData)
	if err != nil {
		return contract.CallResult{Err: &contract.CallError{
			Index:   index,
			Method:  call.Method,
			Message: fmt.Sprintf("invalid hex result: %v", err),
		}}
	}

	if len(raw) == 0 {
		// eth_call against a non-contract address returns 0x
		return contract.CallResult{Err: &contract.CallError{
			Index:   index,
			Method:  call.Method,
			Message: "empty return data",
		}}
	}

	values, err := call.DecodeOutput(raw)
	if err != nil {
		return contract.CallResult{Err: &contract.CallError{
			Index:   index,
			Method:  call.Method,
			Message: err.Error(),
		}}
	}

	return contract.CallResult{Values: values, Raw: raw}
}
