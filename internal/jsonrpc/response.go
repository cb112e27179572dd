package jsonrpc

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Response represents a JSON-RPC response
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      ID              `json:"id"`
}

// HasError returns true if the response contains an error
func (r *Response) HasError() bool {
	return r.Error != nil
}

// ResultIsNull returns true if the response result is JSON null
func (r *Response) ResultIsNull() bool {
	if r == nil || len(r.Result) == 0 {
		return true
	}
	return bytes.Equal(r.Result, []byte("null"))
}

// NewErrorResponse creates an error response
func NewErrorResponse(id ID, err *Error) *Response {
	return &Response{
		JSONRPC: Version,
		Error:   err,
		ID:      id,
	}
}

// ParseResponse parses a single JSON-RPC response from bytes
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ParseBatchResponse parses a batch of JSON-RPC responses.
// A single object response (as some providers return for batch-level
// failures) is wrapped into a one-element slice; isBatch reports which
// form was received.
func ParseBatchResponse(data []byte) ([]*Response, bool, error) {
	data = trimLeadingSpace(data)
	if len(data) == 0 {
		return nil, false, ErrInvalidRequest
	}

	if data[0] == '[' {
		var responses []*Response
		if err := json.Unmarshal(data, &responses); err != nil {
			return nil, true, err
		}
		return responses, true, nil
	}

	resp, err := ParseResponse(data)
	if err != nil {
		return nil, false, err
	}
	return []*Response{resp}, false, nil
}

// GetResultAs unmarshals the result into the provided type
func (r *Response) GetResultAs(v interface{}) error {
	if r.Result == nil {
		return nil
	}
	return json.Unmarshal(r.Result, v)
}

// IsRetryableError reports whether the error is worth retrying on another
// endpoint. Request-shaped errors and execution errors are not: they will
// fail the same way everywhere.
func (r *Response) IsRetryableError() bool {
	if r.Error == nil {
		return false
	}

	switch r.Error.Code {
	case CodeParseError, CodeInvalidRequest, CodeInvalidParams:
		return false
	}

	// Execution errors are properties of the call, not the endpoint.
	msg := strings.ToLower(r.Error.Message)
	if strings.Contains(msg, "execution reverted") || strings.Contains(msg, "out of gas") {
		return false
	}

	return true
}

// trimLeadingSpace removes leading whitespace from a byte slice
func trimLeadingSpace(data []byte) []byte {
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return data[i:]
		}
	}
	return data
}
