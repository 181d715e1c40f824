package chaintest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type callArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
	Value *hexutil.Big    `json:"value"`
}

// NewRPCServer exposes the read side of e over JSON-RPC so tests can go
// through ethclient. Supported: eth_chainId, eth_blockNumber, eth_call,
// eth_getCode.
func NewRPCServer(e *EVM) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctx := r.Context()
		switch req.Method {
		case "eth_chainId":
			id, _ := e.ChainID(ctx)
			writeRPCResult(w, req.ID, hexutil.EncodeBig(id))
		case "eth_blockNumber":
			n, _ := e.BlockNumber(ctx)
			writeRPCResult(w, req.ID, hexutil.EncodeUint64(n))
		case "eth_getCode":
			var addr common.Address
			if len(req.Params) == 0 || json.Unmarshal(req.Params[0], &addr) != nil {
				writeRPCError(w, req.ID, -32602, "invalid address", nil)
				return
			}
			code, _ := e.CodeAt(ctx, addr, nil)
			writeRPCResult(w, req.ID, hexutil.Encode(code))
		case "eth_call":
			msg, err := decodeCallArgs(req.Params)
			if err != nil {
				writeRPCError(w, req.ID, -32602, err.Error(), nil)
				return
			}
			out, err := e.CallContract(ctx, msg, nil)
			if err != nil {
				var rev *RevertError
				if errors.As(err, &rev) {
					writeRPCError(w, req.ID, rev.ErrorCode(), rev.Error(), rev.ErrorData())
					return
				}
				writeRPCError(w, req.ID, -32000, err.Error(), nil)
				return
			}
			writeRPCResult(w, req.ID, hexutil.Encode(out))
		default:
			writeRPCError(w, req.ID, -32601, fmt.Sprintf("method not supported in test: %s", req.Method), nil)
		}
	}))
}

func decodeCallArgs(params []json.RawMessage) (ethereum.CallMsg, error) {
	if len(params) == 0 {
		return ethereum.CallMsg{}, errors.New("missing call object")
	}
	var args callArgs
	if err := json.Unmarshal(params[0], &args); err != nil {
		return ethereum.CallMsg{}, err
	}
	msg := ethereum.CallMsg{To: args.To}
	if args.From != nil {
		msg.From = *args.From
	}
	switch {
	case args.Input != nil:
		msg.Data = *args.Input
	case args.Data != nil:
		msg.Data = *args.Data
	}
	if args.Value != nil {
		msg.Value = (*big.Int)(args.Value)
	}
	return msg, nil
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%q}`, rawIDOrDefault(id), result)
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	if data != nil {
		_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q,"data":%q}}`, rawIDOrDefault(id), code, message, data)
		return
	}
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q}}`, rawIDOrDefault(id), code, message)
}

func rawIDOrDefault(id json.RawMessage) string {
	if len(id) == 0 {
		return "1"
	}
	return string(id)
}

