package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestParseBatchResponse_Array(t *testing.T) {
	data := []byte(` [
		{"jsonrpc":"2.0","result":"0x1","id":1},
		{"jsonrpc":"2.0","result":"0x2","id":2}
	]`)

	responses, isBatch, err := ParseBatchResponse(data)
	if err != nil {
		t.Fatalf("ParseBatchResponse: %v", err)
	}
	if !isBatch {
		t.Error("isBatch = false for an array")
	}
	if len(responses) != 2 {
		t.Fatalf("len = %d, want 2", len(responses))
	}
	var v string
	if err := responses[1].GetResultAs(&v); err != nil || v != "0x2" {
		t.Errorf("result = %q, %v", v, err)
	}
}

func TestParseBatchResponse_SingleObject(t *testing.T) {
	data := []byte(`{"jsonrpc":"2.0","error":{"code":-32600,"message":"batch too large"},"id":null}`)

	responses, isBatch, err := ParseBatchResponse(data)
	if err != nil {
		t.Fatalf("ParseBatchResponse: %v", err)
	}
	if isBatch {
		t.Error("isBatch = true for a single object")
	}
	if len(responses) != 1 || !responses[0].HasError() {
		t.Errorf("responses = %+v", responses)
	}
	if !responses[0].ID.IsNull() {
		t.Error("ID not null")
	}
}

func TestParseBatchResponse_Empty(t *testing.T) {
	if _, _, err := ParseBatchResponse([]byte("  ")); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want bool
	}{
		{"no error", nil, false},
		{"parse error", &Error{Code: CodeParseError, Message: "parse error"}, false},
		{"invalid request", &Error{Code: CodeInvalidRequest, Message: "invalid"}, false},
		{"invalid params", &Error{Code: CodeInvalidParams, Message: "bad params"}, false},
		{"execution reverted", &Error{Code: 3, Message: "execution reverted: ERC20: balance query"}, false},
		{"out of gas", &Error{Code: CodeServerError, Message: "out of gas"}, false},
		{"internal error", &Error{Code: CodeInternalError, Message: "upstream overloaded"}, true},
		{"rate limited", &Error{Code: -32005, Message: "rate limit exceeded"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &Response{Error: tc.err}
			if got := r.IsRetryableError(); got != tc.want {
				t.Errorf("IsRetryableError = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestID_RoundTrip(t *testing.T) {
	req, err := NewRequest("eth_call", []interface{}{"0x1"}, NewIDInt(7))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	data, err := req.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	var decoded Request
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	raw, err := decoded.ID.MarshalJSON()
	if err != nil || string(raw) != "7" {
		t.Errorf("ID = %s, %v", raw, err)
	}
}

func TestMarshalBatch_SingleStillArray(t *testing.T) {
	req, _ := NewRequest("eth_call", nil, NewIDInt(1))
	data, err := MarshalBatch([]*Request{req})
	if err != nil {
		t.Fatalf("MarshalBatch: %v", err)
	}
	if data[0] != '[' {
		t.Errorf("batch of one not marshalled as array: %s", data)
	}
}
