package contract

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const coerceABI = `[
	{"name":"probe","type":"function","stateMutability":"view","inputs":[
		{"name":"who","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"index","type":"uint8"},
		{"name":"active","type":"bool"},
		{"name":"tag","type":"bytes32"},
		{"name":"payload","type":"bytes"},
		{"name":"owners","type":"address[]"}
	],"outputs":[]}
]`

func probeABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(coerceABI))
	if err != nil {
		t.Fatalf("abi.JSON: %v", err)
	}
	return parsed
}

func TestCoerceArgs_FullSet(t *testing.T) {
	parsed := probeABI(t)

	args, err := CoerceArgs(parsed, "probe", []interface{}{
		tokenAddr,
		"1000000000000000000000000", // exceeds float64, decimal string
		float64(7),
		true,
		"0x" + strings.Repeat("ab", 32),
		"0xdeadbeef",
		[]interface{}{tokenAddr, "0x0000000000000000000000000000000000000001"},
	})
	if err != nil {
		t.Fatalf("CoerceArgs: %v", err)
	}

	if got := args[0].(common.Address); got != common.HexToAddress(tokenAddr) {
		t.Errorf("address = %s", got.Hex())
	}
	amount := args[1].(*big.Int)
	want, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	if amount.Cmp(want) != 0 {
		t.Errorf("amount = %s, want %s", amount, want)
	}
	if got := args[2].(uint8); got != 7 {
		t.Errorf("index = %d, want 7", got)
	}
	if got := args[3].(bool); !got {
		t.Error("active = false, want true")
	}
	tag := args[4].([32]byte)
	if tag[0] != 0xab || tag[31] != 0xab {
		t.Errorf("tag = %x", tag)
	}
	payload := args[5].([]byte)
	if len(payload) != 4 || payload[0] != 0xde {
		t.Errorf("payload = %x", payload)
	}
	owners := args[6].([]common.Address)
	if len(owners) != 2 {
		t.Fatalf("len(owners) = %d, want 2", len(owners))
	}

	// The coerced args must actually pack
	if _, err := parsed.Pack("probe", args...); err != nil {
		t.Errorf("Pack after coerce: %v", err)
	}
}

func TestCoerceArgs_HexNumber(t *testing.T) {
	parsed := probeABI(t)

	args, err := CoerceArgs(parsed, "probe", []interface{}{
		tokenAddr, "0xde0b6b3a7640000", float64(0), false,
		"0x" + strings.Repeat("00", 32), "0x", []interface{}{},
	})
	if err != nil {
		t.Fatalf("CoerceArgs: %v", err)
	}
	want, _ := new(big.Int).SetString("de0b6b3a7640000", 16)
	if args[1].(*big.Int).Cmp(want) != 0 {
		t.Errorf("amount = %s, want %s", args[1], want)
	}
}

func TestCoerceArgs_WrongArgCount(t *testing.T) {
	parsed := probeABI(t)
	_, err := CoerceArgs(parsed, "probe", []interface{}{tokenAddr})
	if err == nil || !IsConfigError(err) {
		t.Errorf("error = %v, want ConfigError", err)
	}
}

func TestCoerceArgs_UnknownMethod(t *testing.T) {
	parsed := probeABI(t)
	_, err := CoerceArgs(parsed, "missing", nil)
	if err == nil || !IsConfigError(err) {
		t.Errorf("error = %v, want ConfigError", err)
	}
}

func TestCoerceArgs_BadAddress(t *testing.T) {
	parsed := probeABI(t)
	_, err := CoerceArgs(parsed, "probe", []interface{}{
		"0x123", "1", float64(0), false,
		"0x" + strings.Repeat("00", 32), "0x", []interface{}{},
	})
	if err == nil {
		t.Fatal("expected error for malformed address")
	}
}

func TestCoerceArgs_NonIntegerNumber(t *testing.T) {
	parsed := probeABI(t)
	_, err := CoerceArgs(parsed, "probe", []interface{}{
		tokenAddr, 1.5, float64(0), false,
		"0x" + strings.Repeat("00", 32), "0x", []interface{}{},
	})
	if err == nil {
		t.Fatal("expected error for fractional number")
	}
}

func TestCoerceArgs_FixedBytesWrongLength(t *testing.T) {
	parsed := probeABI(t)
	_, err := CoerceArgs(parsed, "probe", []interface{}{
		tokenAddr, "1", float64(0), false,
		"0xabcd", "0x", []interface{}{},
	})
	if err == nil {
		t.Fatal("expected error for short bytes32")
	}
}

const widthABI = `[
	{"name":"widths","type":"function","stateMutability":"view","inputs":[
		{"name":"small","type":"uint8"},
		{"name":"odd","type":"uint24"},
		{"name":"signed","type":"int8"}
	],"outputs":[]}
]`

func widthsABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(widthABI))
	if err != nil {
		t.Fatalf("abi.JSON: %v", err)
	}
	return parsed
}

func TestCoerceArgs_IntegerOutOfRange(t *testing.T) {
	parsed := widthsABI(t)

	cases := []struct {
		name string
		args []interface{}
	}{
		{"uint8 overflow", []interface{}{float64(300), float64(0), float64(0)}},
		{"uint8 negative", []interface{}{float64(-1), float64(0), float64(0)}},
		{"uint24 overflow", []interface{}{float64(0), "16777216", float64(0)}},
		{"int8 overflow", []interface{}{float64(0), float64(0), float64(128)}},
		{"int8 underflow", []interface{}{float64(0), float64(0), float64(-129)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CoerceArgs(parsed, "widths", tc.args)
			if err == nil || !IsConfigError(err) {
				t.Errorf("error = %v, want ConfigError", err)
			}
		})
	}
}

func TestCoerceArgs_NonStandardWidthPacks(t *testing.T) {
	parsed := widthsABI(t)

	args, err := CoerceArgs(parsed, "widths", []interface{}{
		float64(255), "16777215", float64(-128),
	})
	if err != nil {
		t.Fatalf("CoerceArgs: %v", err)
	}
	if got := args[0].(uint8); got != 255 {
		t.Errorf("uint8 = %d, want 255", got)
	}
	if got := args[1].(*big.Int); got.Cmp(big.NewInt(16777215)) != 0 {
		t.Errorf("uint24 = %s, want 16777215", got)
	}
	if got := args[2].(int8); got != -128 {
		t.Errorf("int8 = %d, want -128", got)
	}
	if _, err := parsed.Pack("widths", args...); err != nil {
		t.Errorf("Pack after coerce: %v", err)
	}
}
