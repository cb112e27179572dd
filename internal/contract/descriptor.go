// Package contract defines the read-call descriptors, their results and
// the deterministic batch keys the cache is indexed by.
package contract

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// CallDescriptor describes a single read-only contract call. Descriptors
// are immutable once constructed; build a new one instead of mutating.
type CallDescriptor struct {
	Address common.Address
	ABI     abi.ABI
	Method  string
	Args    []interface{}
	ChainID uint64 // 0 means the provider's chain
}

// NewCall constructs a descriptor from an already-parsed ABI
func NewCall(address common.Address, contractABI abi.ABI, method string, args ...interface{}) CallDescriptor {
	return CallDescriptor{
		Address: address,
		ABI:     contractABI,
		Method:  method,
		Args:    args,
	}
}

// ParseCall constructs a descriptor from a JSON ABI fragment
func ParseCall(address string, abiJSON string, method string, args ...interface{}) (CallDescriptor, error) {
	if !common.IsHexAddress(address) {
		return CallDescriptor{}, NewConfigError("invalid contract address %q", address)
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return CallDescriptor{}, NewConfigError("invalid ABI: %v", err)
	}
	return NewCall(common.HexToAddress(address), parsed, method, args...), nil
}

// OnChain returns a copy of the descriptor pinned to a chain ID
func (d CallDescriptor) OnChain(chainID uint64) CallDescriptor {
	d.ChainID = chainID
	return d
}

// Validate checks the descriptor without touching the network.
// A descriptor that fails validation must never be dispatched.
func (d CallDescriptor) Validate() error {
	if d.Address == (common.Address{}) {
		return NewConfigError("call %s: zero contract address", d.Method)
	}
	m, ok := d.ABI.Methods[d.Method]
	if !ok {
		return NewConfigError("call %s: method not present in ABI", d.Method)
	}
	if len(m.Inputs) != len(d.Args) {
		return NewConfigError("call %s: want %d args, got %d", d.Method, len(m.Inputs), len(d.Args))
	}
	if m.StateMutability != "view" && m.StateMutability != "pure" && m.StateMutability != "" {
		return NewConfigError("call %s: not a read-only method (%s)", d.Method, m.StateMutability)
	}
	if _, err := d.CallData(); err != nil {
		return NewConfigError("call %s: cannot encode args: %v", d.Method, err)
	}
	return nil
}

// CallData returns the ABI-encoded calldata (selector + packed args)
func (d CallDescriptor) CallData() ([]byte, error) {
	data, err := d.ABI.Pack(d.Method, d.Args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", d.Method, err)
	}
	return data, nil
}

// DecodeOutput unpacks the raw return data of the call
func (d CallDescriptor) DecodeOutput(data []byte) ([]interface{}, error) {
	values, err := d.ABI.Unpack(d.Method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", d.Method, err)
	}
	return values, nil
}

// String renders the descriptor for logs
func (d CallDescriptor) String() string {
	return fmt.Sprintf("%s.%s/%d", d.Address.Hex(), d.Method, len(d.Args))
}
