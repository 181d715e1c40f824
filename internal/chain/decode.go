package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
)

func at(values []any, i int) (any, error) {
	if i < 0 || i >= len(values) {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("missing return value %d", i))
	}
	return values[i], nil
}

func mismatch(i int, want string, got any) error {
	return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("return value %d: expected %s, got %T", i, want, got))
}

// Big reads an integer return value of any width as *big.Int.
func Big(values []any, i int) (*big.Int, error) {
	v, err := at(values, i)
	if err != nil {
		return nil, err
	}
	switch n := v.(type) {
	case *big.Int:
		return new(big.Int).Set(n), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case int8:
		return big.NewInt(int64(n)), nil
	case int16:
		return big.NewInt(int64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	default:
		return nil, mismatch(i, "integer", v)
	}
}

func Address(values []any, i int) (common.Address, error) {
	v, err := at(values, i)
	if err != nil {
		return common.Address{}, err
	}
	a, ok := v.(common.Address)
	if !ok {
		return common.Address{}, mismatch(i, "address", v)
	}
	return a, nil
}

func Bool(values []any, i int) (bool, error) {
	v, err := at(values, i)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, mismatch(i, "bool", v)
	}
	return b, nil
}

func Uint8(values []any, i int) (uint8, error) {
	v, err := at(values, i)
	if err != nil {
		return 0, err
	}
	n, ok := v.(uint8)
	if !ok {
		return 0, mismatch(i, "uint8", v)
	}
	return n, nil
}

func String(values []any, i int) (string, error) {
	v, err := at(values, i)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", mismatch(i, "string", v)
	}
	return s, nil
}
