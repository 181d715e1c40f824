package chaintest

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// RevertError mimics the JSON-RPC error a node returns for a reverted call.
type RevertError struct {
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

func (e *RevertError) ErrorCode() int { return 3 }

func (e *RevertError) ErrorData() interface{} { return hexutil.Encode(e.Data) }

var stringType, _ = abi.NewType("string", "", nil)

// Revert builds an Error(string) revert.
func Revert(reason string) *RevertError {
	payload, _ := abi.Arguments{{Type: stringType}}.Pack(reason)
	data := append([]byte{0x08, 0xc3, 0x79, 0xa0}, payload...)
	return &RevertError{Reason: reason, Data: data}
}

// CustomRevert builds a revert carrying only a custom error selector.
func CustomRevert(signature string) *RevertError {
	return &RevertError{Data: crypto.Keccak256([]byte(signature))[:4]}
}
