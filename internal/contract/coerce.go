package contract

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CoerceArgs converts JSON-sourced argument values (strings, numbers,
// bools, arrays) into the Go types the ABI packer expects for the given
// method. Config files and the daemon use this; library callers pass
// properly-typed args directly.
func CoerceArgs(contractABI abi.ABI, method string, raw []interface{}) ([]interface{}, error) {
	m, ok := contractABI.Methods[method]
	if !ok {
		return nil, NewConfigError("method %s not present in ABI", method)
	}
	if len(m.Inputs) != len(raw) {
		return nil, NewConfigError("method %s: want %d args, got %d", method, len(m.Inputs), len(raw))
	}

	out := make([]interface{}, len(raw))
	for i, input := range m.Inputs {
		v, err := coerceValue(input.Type, raw[i])
		if err != nil {
			return nil, NewConfigError("method %s, arg %d (%s): %v", method, i, input.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

func coerceValue(t abi.Type, raw interface{}) (interface{}, error) {
	switch t.T {
	case abi.AddressTy:
		s, ok := raw.(string)
		if !ok || !common.IsHexAddress(s) {
			return nil, fmt.Errorf("expected hex address, got %v", raw)
		}
		return common.HexToAddress(s), nil

	case abi.BoolTy:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %v", raw)
		}
		return b, nil

	case abi.StringTy:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %v", raw)
		}
		return s, nil

	case abi.BytesTy:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected hex string, got %v", raw)
		}
		return hexutil.Decode(s)

	case abi.FixedBytesTy:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected hex string, got %v", raw)
		}
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil

	case abi.UintTy, abi.IntTy:
		n, err := coerceBig(raw)
		if err != nil {
			return nil, err
		}
		return shrinkInt(t, n)

	case abi.SliceTy, abi.ArrayTy:
		items, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("expected array, got %v", raw)
		}
		if t.T == abi.ArrayTy && len(items) != t.Size {
			return nil, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
		}
		out := reflect.MakeSlice(reflect.SliceOf(t.Elem.GetType()), len(items), len(items))
		if t.T == abi.ArrayTy {
			out = reflect.New(t.GetType()).Elem()
		}
		for i, item := range items {
			v, err := coerceValue(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %v", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(v))
		}
		return out.Interface(), nil

	default:
		return nil, fmt.Errorf("unsupported ABI type %s", t.String())
	}
}

// coerceBig reads a JSON number or a decimal/hex string
func coerceBig(raw interface{}) (*big.Int, error) {
	switch v := raw.(type) {
	case float64:
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("non-integer number %v", v)
		}
		return big.NewInt(int64(v)), nil
	case string:
		if len(v) > 2 && v[0:2] == "0x" {
			return hexutil.DecodeBig(v)
		}
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("unparseable integer %q", v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("expected number or numeric string, got %v", raw)
	}
}

// shrinkInt produces the exact-width Go type the packer expects. The
// value must fit the ABI type's range; wrapping here would dispatch a
// query for the wrong argument. Widths without a native Go type
// (uint24, uint48, ...) pack as *big.Int.
func shrinkInt(t abi.Type, n *big.Int) (interface{}, error) {
	if t.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return nil, fmt.Errorf("value %s out of range for uint%d", n, t.Size)
		}
		switch t.Size {
		case 8:
			return uint8(n.Uint64()), nil
		case 16:
			return uint16(n.Uint64()), nil
		case 32:
			return uint32(n.Uint64()), nil
		case 64:
			return n.Uint64(), nil
		default:
			return n, nil
		}
	}

	lo := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	hi := new(big.Int).Sub(lo, big.NewInt(1))
	lo.Neg(lo)
	if n.Cmp(lo) < 0 || n.Cmp(hi) > 0 {
		return nil, fmt.Errorf("value %s out of range for int%d", n, t.Size)
	}
	switch t.Size {
	case 8:
		return int8(n.Int64()), nil
	case 16:
		return int16(n.Int64()), nil
	case 32:
		return int32(n.Int64()), nil
	case 64:
		return n.Int64(), nil
	default:
		return n, nil
	}
}
