package artifact

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ConstructorArgs converts textual values into the Go types the constructor
// inputs of the artifact expect.
func (a Artifact) ConstructorArgs(values []string) ([]any, error) {
	parsed, err := a.ParseABI()
	if err != nil {
		return nil, fmt.Errorf("%s: parsing abi: %w", a.Contract, err)
	}

	return ConvertArgs(parsed.Constructor.Inputs, values)
}

// ConvertArgs converts textual values into the Go types the arguments
// expect. Integers accept decimal or 0x prefixed hex, bytes accept 0x
// prefixed hex.
func ConvertArgs(args abi.Arguments, values []string) ([]any, error) {
	if len(values) != len(args) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(args), len(values))
	}

	out := make([]any, len(args))
	for i, arg := range args {
		v, err := convert(arg.Type, values[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d %s: %w", i, arg.Name, err)
		}
		out[i] = v
	}

	return out, nil
}

func convert(t abi.Type, value string) (any, error) {
	switch t.T {
	case abi.StringTy:
		return value, nil

	case abi.BoolTy:
		return strconv.ParseBool(value)

	case abi.AddressTy:
		if !common.IsHexAddress(value) {
			return nil, fmt.Errorf("invalid address %q", value)
		}
		return common.HexToAddress(value), nil

	case abi.BytesTy:
		return hexutil.Decode(value)

	case abi.UintTy, abi.IntTy:
		n, ok := new(big.Int).SetString(value, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", value)
		}
		return sized(t, n)
	}

	return nil, fmt.Errorf("unsupported type %s", t)
}

// sized returns the Go integer type the abi packer expects for the width.
func sized(t abi.Type, n *big.Int) (any, error) {
	if t.T == abi.UintTy && n.Sign() < 0 {
		return nil, fmt.Errorf("negative value for %s", t)
	}

	if t.Size > 64 || (t.Size != 8 && t.Size != 16 && t.Size != 32 && t.Size != 64) {
		return n, nil
	}

	if t.T == abi.UintTy {
		if !n.IsUint64() || n.BitLen() > t.Size {
			return nil, fmt.Errorf("value %s overflows %s", n, t)
		}
		v := n.Uint64()
		switch t.Size {
		case 8:
			return uint8(v), nil
		case 16:
			return uint16(v), nil
		case 32:
			return uint32(v), nil
		}
		return v, nil
	}

	if !n.IsInt64() || n.BitLen() >= t.Size {
		return nil, fmt.Errorf("value %s overflows %s", n, t)
	}
	v := n.Int64()
	switch t.Size {
	case 8:
		return int8(v), nil
	case 16:
		return int16(v), nil
	case 32:
		return int32(v), nil
	}
	return v, nil
}
