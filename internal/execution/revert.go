package execution

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
)

// decodeRevertData turns revert return data into a readable reason.
// Error(string) and Panic(uint256) are decoded; any other payload is
// reported by its 4-byte selector.
func decodeRevertData(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason
	}
	if len(data) < 4 {
		return fmt.Sprintf("malformed revert data %s", hexutil.Encode(data))
	}
	return fmt.Sprintf("custom error %s", hexutil.Encode(data[:4]))
}

func decodeRevertFromError(err error) string {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return ""
	}
	switch v := dataErr.ErrorData().(type) {
	case string:
		buf, decodeErr := hexutil.Decode(strings.TrimSpace(v))
		if decodeErr != nil {
			return ""
		}
		return decodeRevertData(buf)
	case []byte:
		return decodeRevertData(v)
	default:
		return ""
	}
}

// wrapEVMExecutionError attaches the decoded revert reason, when the node
// returned one, to a coded error.
func wrapEVMExecutionError(code clierr.Code, stage string, err error) error {
	if reason := decodeRevertFromError(err); reason != "" {
		return clierr.Wrap(code, fmt.Sprintf("%s reverted: %s", stage, reason), err)
	}
	return clierr.Wrap(code, stage, err)
}
