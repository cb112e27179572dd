package contract

import "github.com/ethereum/go-ethereum/common/hexutil"

// CallResult is the outcome of a single call inside a batch: either the
// decoded return values or a per-call error, never both.
type CallResult struct {
	Values []interface{}
	Raw    hexutil.Bytes
	Err    error
}

// Ok returns true if the call succeeded
func (r CallResult) Ok() bool {
	return r.Err == nil
}

// Value returns the single decoded output, or nil if the call failed or
// returned a different arity
func (r CallResult) Value() interface{} {
	if r.Err != nil || len(r.Values) != 1 {
		return nil
	}
	return r.Values[0]
}

// BatchResult is aligned positionally with the descriptor sequence that
// produced it: len(BatchResult) == len(descriptors) always, even under
// partial failure.
type BatchResult []CallResult

// FirstError returns the first per-call error, or nil if all calls succeeded
func (br BatchResult) FirstError() error {
	for _, r := range br {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// Clone returns a shallow copy of the result slice. The cache hands out
// clones so a caller-side transform cannot mutate the cached value.
func (br BatchResult) Clone() BatchResult {
	if br == nil {
		return nil
	}
	out := make(BatchResult, len(br))
	copy(out, br)
	return out
}
