package contract

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestKeyOf_Deterministic(t *testing.T) {
	calls := []CallDescriptor{
		mustParseCall(t, "totalSupply"),
		mustParseCall(t, "balanceOf", common.HexToAddress(tokenAddr)),
	}

	k1, err := KeyOf(calls)
	if err != nil {
		t.Fatalf("KeyOf: %v", err)
	}
	k2, err := KeyOf(calls)
	if err != nil {
		t.Fatalf("KeyOf: %v", err)
	}
	if k1 != k2 {
		t.Errorf("keys differ for identical batches: %s vs %s", k1, k2)
	}
	if !strings.HasPrefix(string(k1), "batch:") {
		t.Errorf("key = %s, want batch: prefix", k1)
	}
}

func TestKeyOf_OrderSensitive(t *testing.T) {
	a := mustParseCall(t, "totalSupply")
	b := mustParseCall(t, "balanceOf", common.HexToAddress(tokenAddr))

	k1, err := KeyOf([]CallDescriptor{a, b})
	if err != nil {
		t.Fatalf("KeyOf: %v", err)
	}
	k2, err := KeyOf([]CallDescriptor{b, a})
	if err != nil {
		t.Fatalf("KeyOf: %v", err)
	}
	if k1 == k2 {
		t.Error("reordered batch produced the same key")
	}
}

func TestKeyOf_ArgsChangeKey(t *testing.T) {
	k1, err := KeyOf([]CallDescriptor{mustParseCall(t, "balanceOf", common.HexToAddress(tokenAddr))})
	if err != nil {
		t.Fatalf("KeyOf: %v", err)
	}
	other := common.HexToAddress("0x0000000000000000000000000000000000000001")
	k2, err := KeyOf([]CallDescriptor{mustParseCall(t, "balanceOf", other)})
	if err != nil {
		t.Fatalf("KeyOf: %v", err)
	}
	if k1 == k2 {
		t.Error("different args produced the same key")
	}
}

func TestKeyOf_ChainIDChangesKey(t *testing.T) {
	desc := mustParseCall(t, "totalSupply")

	k1, err := KeyOf([]CallDescriptor{desc.OnChain(1)})
	if err != nil {
		t.Fatalf("KeyOf: %v", err)
	}
	k2, err := KeyOf([]CallDescriptor{desc.OnChain(10)})
	if err != nil {
		t.Fatalf("KeyOf: %v", err)
	}
	if k1 == k2 {
		t.Error("different chains produced the same key")
	}
}

func TestKeyOf_ExtrasChangeKey(t *testing.T) {
	calls := []CallDescriptor{mustParseCall(t, "totalSupply")}

	k1, err := KeyOf(calls)
	if err != nil {
		t.Fatalf("KeyOf: %v", err)
	}
	k2, err := KeyOf(calls, 0)
	if err != nil {
		t.Fatalf("KeyOf: %v", err)
	}
	k3, err := KeyOf(calls, 1)
	if err != nil {
		t.Fatalf("KeyOf: %v", err)
	}
	if k1 == k2 || k2 == k3 {
		t.Errorf("extras did not change key: %s %s %s", k1, k2, k3)
	}
}

func TestKeyOf_UnencodableDescriptor(t *testing.T) {
	desc := mustParseCall(t, "balanceOf", common.HexToAddress(tokenAddr))
	desc.Args = []interface{}{big.NewInt(1)} // wrong type for address input

	_, err := KeyOf([]CallDescriptor{desc})
	if err == nil {
		t.Fatal("expected error for unencodable descriptor")
	}
	if !IsConfigError(err) {
		t.Errorf("error = %v, want ConfigError", err)
	}
}
