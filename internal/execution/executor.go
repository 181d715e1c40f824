package execution

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/mangrovedao/vault-console/internal/chain"
	"github.com/mangrovedao/vault-console/internal/config"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution/signer"
)

// Backend is the subset of ethclient.Client the executor drives.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Messages are the operator-facing lines printed around a transaction.
type Messages struct {
	Header  string
	Label   string
	Success func(block uint64, hash common.Hash) string
	Failure func(hash common.Hash) string
}

// Static builds messages whose success and failure lines are constant.
// Empty strings keep the default lines.
func Static(header, label, success, failure string) Messages {
	m := Messages{Header: header, Label: label}
	if success != "" {
		m.Success = func(uint64, common.Hash) string { return success }
	}
	if failure != "" {
		m.Failure = func(common.Hash) string { return failure }
	}
	return m
}

func (m Messages) prefix() string {
	if m.Label == "" {
		return ""
	}
	return "[" + m.Label + "] "
}

func (m Messages) success(block uint64, hash common.Hash) string {
	if m.Success != nil {
		return m.Success(block, hash)
	}
	return fmt.Sprintf("%sTransaction %s confirmed in block %d", m.prefix(), hash.Hex(), block)
}

func (m Messages) failure(hash common.Hash) string {
	if m.Failure != nil {
		return m.Failure(hash)
	}
	return fmt.Sprintf("%sTransaction %s failed", m.prefix(), hash.Hex())
}

type Options struct {
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	PollInterval       time.Duration
	// ReceiptTimeout of zero waits until the context ends.
	ReceiptTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		GasMultiplier: 1.2,
		PollInterval:  2 * time.Second,
	}
}

// OptionsFrom maps the execution section of the settings.
func OptionsFrom(s config.ExecutionSettings) Options {
	return Options{
		GasMultiplier:      s.GasMultiplier,
		MaxFeeGwei:         s.MaxFeeGwei,
		MaxPriorityFeeGwei: s.MaxPriorityFeeGwei,
		PollInterval:       s.PollInterval,
		ReceiptTimeout:     s.ReceiptTimeout,
	}
}

// Executor simulates, signs, submits and awaits transactions for one
// signer on one chain.
type Executor struct {
	backend Backend
	signer  signer.Signer
	chainID int64
	opts    Options
	reader  *chain.Client
	store   *Store
	out     io.Writer
	log     *zap.Logger
}

type Option func(*Executor)

func WithOptions(o Options) Option {
	return func(e *Executor) { e.opts = o }
}

// WithStore records every executed request in the history store.
func WithStore(s *Store) Option {
	return func(e *Executor) { e.store = s }
}

// WithOutput sets where operator lines are printed.
func WithOutput(w io.Writer) Option {
	return func(e *Executor) {
		if w != nil {
			e.out = w
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithReader shares a chain client, and its token memo, with the executor.
func WithReader(r *chain.Client) Option {
	return func(e *Executor) { e.reader = r }
}

func New(backend Backend, s signer.Signer, chainID int64, opts ...Option) *Executor {
	e := &Executor{
		backend: backend,
		signer:  s,
		chainID: chainID,
		opts:    DefaultOptions(),
		out:     io.Discard,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.opts.PollInterval <= 0 {
		e.opts.PollInterval = 2 * time.Second
	}
	if e.opts.GasMultiplier < 1 {
		e.opts.GasMultiplier = 1
	}
	if e.reader == nil {
		e.reader = chain.New(backend, chainID, chain.WithLogger(e.log))
	}
	return e
}

func (e *Executor) ChainID() int64 { return e.chainID }

func (e *Executor) Reader() *chain.Client { return e.reader }

// Sender is the address transactions are sent from.
func (e *Executor) Sender() common.Address {
	if e.signer == nil {
		return common.Address{}
	}
	return e.signer.Address()
}

func (e *Executor) printf(format string, args ...any) {
	fmt.Fprintf(e.out, format+"\n", args...)
}

func (e *Executor) callMsg(req Request) ethereum.CallMsg {
	to := req.To
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	return ethereum.CallMsg{From: e.Sender(), To: &to, Value: value, Data: req.Data}
}

// Simulate runs the request as an eth_call from the signer and returns the
// raw return data. A revert fails with CodeActionSim and the decoded reason.
func (e *Executor) Simulate(ctx context.Context, req Request) ([]byte, error) {
	out, err := e.backend.CallContract(ctx, e.callMsg(req), nil)
	if err != nil {
		return nil, wrapEVMExecutionError(clierr.CodeActionSim, fmt.Sprintf("simulate %s", intentName(req)), err)
	}
	return out, nil
}

func intentName(req Request) string {
	if strings.TrimSpace(req.Intent) == "" {
		return "transaction"
	}
	return req.Intent
}

// Execute runs one request through Built, Broadcast, Pending and then
// Confirmed or Reverted. The transaction is never resubmitted.
func (e *Executor) Execute(ctx context.Context, req Request, msgs Messages) (Receipt, error) {
	var receipt Receipt
	if e.signer == nil {
		return receipt, clierr.New(clierr.CodeSigner, "missing signer")
	}
	chainID, err := e.backend.ChainID(ctx)
	if err != nil {
		return receipt, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if chainID.Int64() != e.chainID {
		return receipt, clierr.New(clierr.CodeActionPlan, fmt.Sprintf("chain mismatch: selected %d, rpc reports %d", e.chainID, chainID.Int64()))
	}

	action := NewAction(NewActionID(), intentName(req), fmt.Sprintf("eip155:%d", e.chainID))
	action.Description = req.Description
	action.Label = msgs.Label
	action.From = e.Sender().Hex()
	action.Target = req.To.Hex()
	action.Data = hexutil.Encode(req.Data)
	action.Value = "0"
	if req.Value != nil {
		action.Value = req.Value.String()
	}
	receipt.ActionID = action.ActionID
	log := e.log.With(zap.String("label", msgs.Label), zap.String("intent", action.Intent), zap.String("action", action.ActionID))

	if msgs.Header != "" {
		e.printf("%s", msgs.Header)
	}

	fail := func(err error) (Receipt, error) {
		action.fail(err.Error())
		e.record(action)
		log.Warn("transaction failed", zap.Error(err), zap.String("state", string(receipt.Final())))
		return receipt, err
	}

	sim, err := e.Simulate(ctx, req)
	if err != nil {
		return fail(err)
	}
	receipt.SimResult = sim

	signed, err := e.build(ctx, req, chainID)
	if err != nil {
		return fail(err)
	}
	action.Gas = signed.Gas()
	receipt.TxHash = signed.Hash()
	action.TxHash = signed.Hash().Hex()
	receipt.States = append(receipt.States, StateBuilt)
	action.enter(StateBuilt)
	log.Debug("transaction built", zap.String("state", string(StateBuilt)), zap.Uint64("gas", signed.Gas()), zap.Uint64("nonce", signed.Nonce()))

	e.printf("%sBroadcasting transaction...", msgs.prefix())
	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		return fail(clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err))
	}
	receipt.States = append(receipt.States, StateBroadcast)
	action.enter(StateBroadcast)
	e.record(action)
	log.Info("transaction broadcast", zap.String("state", string(StateBroadcast)), zap.String("tx", signed.Hash().Hex()))

	e.printf("%sWaiting for transaction %s...", msgs.prefix(), signed.Hash().Hex())
	receipt.States = append(receipt.States, StatePending)
	action.enter(StatePending)

	mined, err := e.wait(ctx, signed.Hash())
	if err != nil {
		return fail(err)
	}
	receipt.Block = mined.BlockNumber.Uint64()
	receipt.GasUsed = mined.GasUsed
	action.Block = receipt.Block

	if mined.Status != types.ReceiptStatusSuccessful {
		receipt.States = append(receipt.States, StateReverted)
		action.enter(StateReverted)
		e.printf("%s", msgs.failure(signed.Hash()))
		return fail(clierr.New(clierr.CodeReverted, fmt.Sprintf("transaction %s reverted in block %d", signed.Hash().Hex(), receipt.Block)))
	}
	receipt.States = append(receipt.States, StateConfirmed)
	action.enter(StateConfirmed)
	action.Status = ActionStatusConfirmed
	e.record(action)
	e.printf("%s", msgs.success(receipt.Block, signed.Hash()))
	log.Info("transaction confirmed", zap.String("state", string(StateConfirmed)), zap.String("tx", signed.Hash().Hex()), zap.Uint64("block", receipt.Block))
	return receipt, nil
}

func (e *Executor) build(ctx context.Context, req Request, chainID *big.Int) (*types.Transaction, error) {
	msg := e.callMsg(req)
	gasLimit := req.Gas
	if gasLimit == 0 {
		estimated, err := e.backend.EstimateGas(ctx, msg)
		if err != nil {
			return nil, wrapEVMExecutionError(clierr.CodeActionSim, "estimate gas", err)
		}
		gasLimit = uint64(float64(estimated) * e.opts.GasMultiplier)
	}

	tipCap, err := resolveTipCap(ctx, e.backend, e.opts.MaxPriorityFeeGwei)
	if err != nil {
		return nil, err
	}
	header, err := e.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, e.opts.MaxFeeGwei)
	if err != nil {
		return nil, err
	}

	unlock := acquireSignerNonceLock(chainID, e.Sender())
	defer unlock()
	nonce, err := e.backend.PendingNonceAt(ctx, e.Sender())
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        msg.To,
		Value:     msg.Value,
		Data:      msg.Data,
	})
	signed, err := e.signer.SignTx(chainID, tx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	return signed, nil
}

func (e *Executor) wait(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx := ctx
	if e.opts.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, e.opts.ReceiptTimeout)
		defer cancel()
	}
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := e.backend.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
			e.log.Debug("receipt poll failed", zap.String("tx", hash.Hex()), zap.Error(err))
		}
		select {
		case <-waitCtx.Done():
			return nil, clierr.Wrap(clierr.CodeActionTimeout, fmt.Sprintf("timed out waiting for receipt of %s", hash.Hex()), waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (e *Executor) record(action Action) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(action); err != nil {
		e.log.Warn("record action history", zap.String("action", action.ActionID), zap.Error(err))
	}
}

var nonceLocks sync.Map

// acquireSignerNonceLock serializes nonce selection and signing per
// (chain, signer) within the process.
func acquireSignerNonceLock(chainID *big.Int, addr common.Address) func() {
	key := fmt.Sprintf("%s:%s", chainID.String(), addr.Hex())
	v, _ := nonceLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

type tipSuggester interface {
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

func resolveTipCap(ctx context.Context, client tipSuggester, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max_priority_fee_gwei", err)
		}
		return v, nil
	}
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max_fee_gwei", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "max_fee_gwei must be >= max_priority_fee_gwei")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}

// DecodeHex parses calldata as returned by aggregator APIs. The 0x prefix
// is optional; an odd digit count is an error.
func DecodeHex(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("invalid hex: odd length %d", len(clean))
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}
