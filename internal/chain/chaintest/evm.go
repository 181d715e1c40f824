// Package chaintest provides an in-memory EVM double for tests. Contracts
// are modelled as per-method handlers; Multicall3 aggregate3 is built in.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mangrovedao/vault-console/internal/registry"
)

// Msg is the context a handler runs in.
type Msg struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	// Commit is true when the call comes from a mined transaction rather
	// than an eth_call or gas estimate. Handlers mutate state only then.
	Commit bool
}

// Handler answers one contract method. The returned values are packed with
// the method's outputs.
type Handler func(msg Msg, args []any) ([]any, error)

// Entry is one line of the call log.
type Entry struct {
	Kind   string // "call" or "send"
	From   common.Address
	To     common.Address
	Method string
	Args   []any
}

type route struct {
	method abi.Method
	fn     Handler
}

type EVM struct {
	mu           sync.Mutex
	chainID      *big.Int
	block        uint64
	baseFee      *big.Int
	tip          *big.Int
	gas          uint64
	pendingPolls int
	routes       map[common.Address]map[[4]byte]route
	code         map[common.Address][]byte
	nonces       map[common.Address]uint64
	receipts     map[common.Hash]*types.Receipt
	polls        map[common.Hash]int
	log          []Entry
	sent         []*types.Transaction
}

func New(chainID int64) *EVM {
	return &EVM{
		chainID:  big.NewInt(chainID),
		block:    100,
		baseFee:  big.NewInt(1_000_000_000),
		tip:      big.NewInt(1_000_000),
		gas:      150_000,
		routes:   map[common.Address]map[[4]byte]route{},
		code:     map[common.Address][]byte{registry.Multicall3: {0x60, 0x80}},
		nonces:   map[common.Address]uint64{},
		receipts: map[common.Hash]*types.Receipt{},
		polls:    map[common.Hash]int{},
	}
}

// Handle registers fn for method of rawABI on target. Targets with a
// handler are given placeholder bytecode.
func (e *EVM) Handle(target common.Address, rawABI, method string, fn Handler) {
	parsed := registry.Parsed(rawABI)
	m, ok := parsed.Methods[method]
	if !ok {
		panic(fmt.Sprintf("chaintest: abi has no method %s", method))
	}
	var sel [4]byte
	copy(sel[:], m.ID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.routes[target] == nil {
		e.routes[target] = map[[4]byte]route{}
	}
	e.routes[target][sel] = route{method: m, fn: fn}
	if _, ok := e.code[target]; !ok {
		e.code[target] = []byte{0x60, 0x80}
	}
}

// Returns registers a handler answering with constant values.
func (e *EVM) Returns(target common.Address, rawABI, method string, values ...any) {
	e.Handle(target, rawABI, method, func(Msg, []any) ([]any, error) { return values, nil })
}

// SetCode installs bytecode at addr. Empty code removes the account's code.
func (e *EVM) SetCode(addr common.Address, code []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(code) == 0 {
		delete(e.code, addr)
		return
	}
	e.code[addr] = append([]byte(nil), code...)
}

// SetPendingPolls makes every new receipt report not-found n times first.
func (e *EVM) SetPendingPolls(n int) {
	e.mu.Lock()
	e.pendingPolls = n
	e.mu.Unlock()
}

// SetGasEstimate fixes the value returned by EstimateGas.
func (e *EVM) SetGasEstimate(gas uint64) {
	e.mu.Lock()
	e.gas = gas
	e.mu.Unlock()
}

// Calls returns a copy of the call log.
func (e *EVM) Calls() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Entry(nil), e.log...)
}

// Methods returns "kind:method" for each log entry, in order.
func (e *EVM) Methods() []string {
	calls := e.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Kind + ":" + c.Method
	}
	return out
}

// Sent returns the transactions accepted by SendTransaction.
func (e *EVM) Sent() []*types.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*types.Transaction(nil), e.sent...)
}

// CountSent returns how many mined transactions invoked method.
func (e *EVM) CountSent(method string) int {
	n := 0
	for _, c := range e.Calls() {
		if c.Kind == "send" && c.Method == method {
			n++
		}
	}
	return n
}

func (e *EVM) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(e.chainID), nil
}

func (e *EVM) BlockNumber(context.Context) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.block, nil
}

func (e *EVM) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil {
		return nil, errors.New("contract creation is not supported")
	}
	return e.dispatch("call", Msg{From: msg.From, To: *msg.To, Value: msg.Value}, msg.Data)
}

func (e *EVM) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.code[account]...), nil
}

func (e *EVM) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if _, err := e.CallContract(ctx, msg, nil); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gas, nil
}

func (e *EVM) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return new(big.Int).Set(e.tip), nil
}

func (e *EVM) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(e.block), BaseFee: new(big.Int).Set(e.baseFee)}, nil
}

func (e *EVM) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nonces[account], nil
}

// SendTransaction applies the transaction immediately. A handler error
// mines the transaction with a failed status.
func (e *EVM) SendTransaction(_ context.Context, tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(e.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.To() == nil {
		return errors.New("contract creation is not supported")
	}

	e.mu.Lock()
	if tx.Nonce() != e.nonces[from] {
		want := e.nonces[from]
		e.mu.Unlock()
		return fmt.Errorf("nonce mismatch: got %d want %d", tx.Nonce(), want)
	}
	e.nonces[from]++
	e.sent = append(e.sent, tx)
	e.mu.Unlock()

	_, callErr := e.dispatch("send", Msg{From: from, To: *tx.To(), Value: tx.Value(), Commit: true}, tx.Data())

	e.mu.Lock()
	defer e.mu.Unlock()
	e.block++
	status := types.ReceiptStatusSuccessful
	if callErr != nil {
		status = types.ReceiptStatusFailed
	}
	e.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(e.block),
		GasUsed:     tx.Gas() / 2,
	}
	e.polls[tx.Hash()] = e.pendingPolls
	return nil
}

func (e *EVM) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if e.polls[hash] > 0 {
		e.polls[hash]--
		return nil, ethereum.NotFound
	}
	return r, nil
}

var aggregate3ID = registry.Parsed(registry.Multicall3ABI).Methods["aggregate3"].ID

type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type call3Result struct {
	Success    bool
	ReturnData []byte
}

func (e *EVM) dispatch(kind string, msg Msg, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, Revert("missing selector")
	}
	if msg.To == registry.Multicall3 && string(data[:4]) == string(aggregate3ID) {
		return e.aggregate3(kind, msg, data)
	}

	var sel [4]byte
	copy(sel[:], data[:4])
	e.mu.Lock()
	r, ok := e.routes[msg.To][sel]
	e.mu.Unlock()
	if !ok {
		return nil, Revert(fmt.Sprintf("no handler for selector %s on %s", hexutil.Encode(sel[:]), msg.To.Hex()))
	}

	args, err := r.method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, Revert(fmt.Sprintf("bad calldata for %s: %v", r.method.Name, err))
	}
	e.mu.Lock()
	e.log = append(e.log, Entry{Kind: kind, From: msg.From, To: msg.To, Method: r.method.Name, Args: args})
	e.mu.Unlock()

	values, err := r.fn(msg, args)
	if err != nil {
		var rev *RevertError
		if errors.As(err, &rev) {
			return nil, rev
		}
		return nil, Revert(err.Error())
	}
	out, err := r.method.Outputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("chaintest: pack %s outputs: %w", r.method.Name, err)
	}
	return out, nil
}

func (e *EVM) aggregate3(kind string, msg Msg, data []byte) ([]byte, error) {
	mc := registry.Parsed(registry.Multicall3ABI)
	m := mc.Methods["aggregate3"]
	in, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, Revert("bad aggregate3 calldata")
	}
	calls := *abi.ConvertType(in[0], new([]call3)).(*[]call3)
	results := make([]call3Result, len(calls))
	for i, c := range calls {
		out, err := e.dispatch(kind, Msg{From: registry.Multicall3, To: c.Target, Commit: msg.Commit}, c.CallData)
		if err != nil {
			if !c.AllowFailure {
				return nil, Revert("Multicall3: call failed")
			}
			results[i] = call3Result{Success: false}
			continue
		}
		results[i] = call3Result{Success: true, ReturnData: out}
	}
	return m.Outputs.Pack(results)
}
