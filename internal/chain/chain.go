// Package chain encodes contract calls and batches reads through Multicall3.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/registry"
)

// Backend is the read side of an Ethereum node.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Call is one contract read or write, described by ABI and method name.
type Call struct {
	Target common.Address
	ABI    abi.ABI
	Method string
	Args   []any
}

// NewCall builds a Call against one of the registry ABI constants.
func NewCall(target common.Address, rawABI, method string, args ...any) Call {
	return Call{Target: target, ABI: registry.Parsed(rawABI), Method: method, Args: args}
}

// Pack returns the calldata for the call.
func (c Call) Pack() ([]byte, error) {
	if _, ok := c.ABI.Methods[c.Method]; !ok {
		return nil, clierr.New(clierr.CodeInternal, fmt.Sprintf("abi has no method %s", c.Method))
	}
	data, err := c.ABI.Pack(c.Method, c.Args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s", c.Method), err)
	}
	return data, nil
}

// Unpack decodes return data for the call's method.
func (c Call) Unpack(data []byte) ([]any, error) {
	out, err := c.ABI.Unpack(c.Method, data)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("decode %s result", c.Method), err)
	}
	return out, nil
}

type Client struct {
	backend   Backend
	chainID   int64
	multicall common.Address
	tokens    *gocache.Cache
	log       *zap.Logger
}

type Option func(*Client)

func WithMulticall(addr common.Address) Option {
	return func(c *Client) { c.multicall = addr }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(backend Backend, chainID int64, opts ...Option) *Client {
	c := &Client{
		backend:   backend,
		chainID:   chainID,
		multicall: registry.Multicall3,
		tokens:    gocache.New(gocache.NoExpiration, 10*time.Minute),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ChainID() int64 { return c.chainID }

func (c *Client) Backend() Backend { return c.backend }

// Call performs a single eth_call and decodes its outputs.
func (c *Client) Call(ctx context.Context, call Call) ([]any, error) {
	data, err := call.Pack()
	if err != nil {
		return nil, err
	}
	target := call.Target
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("call %s on %s", call.Method, target.Hex()), err)
	}
	return call.Unpack(raw)
}

// CodeAt returns the deployed bytecode at addr.
func (c *Client) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	code, err := c.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("read code at %s", addr.Hex()), err)
	}
	return code, nil
}

// HasCode reports whether a contract is deployed at addr.
func (c *Client) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.CodeAt(ctx, addr)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type call3Result struct {
	Success    bool
	ReturnData []byte
}

// Aggregate runs every call in one aggregate3 eth_call with allowFailure
// disabled. Results are returned in call order. A revert of any sub-call
// fails the whole batch.
func (c *Client) Aggregate(ctx context.Context, calls []Call) ([][]any, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	packed := make([]call3, len(calls))
	for i, call := range calls {
		data, err := call.Pack()
		if err != nil {
			return nil, err
		}
		packed[i] = call3{Target: call.Target, CallData: data}
	}

	mc := registry.Parsed(registry.Multicall3ABI)
	input, err := mc.Pack("aggregate3", packed)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack aggregate3", err)
	}
	target := c.multicall
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &target, Data: input}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("multicall (%s) failed", methodList(calls)), err)
	}
	out, err := mc.Unpack("aggregate3", raw)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode aggregate3 result", err)
	}
	results := *abi.ConvertType(out[0], new([]call3Result)).(*[]call3Result)
	if len(results) != len(calls) {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("multicall returned %d results for %d calls", len(results), len(calls)))
	}

	decoded := make([][]any, len(calls))
	for i, res := range results {
		if !res.Success {
			return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("multicall sub-call %s on %s failed", calls[i].Method, calls[i].Target.Hex()))
		}
		values, err := calls[i].Unpack(res.ReturnData)
		if err != nil {
			return nil, err
		}
		decoded[i] = values
	}
	c.log.Debug("multicall", zap.Int("calls", len(calls)), zap.String("methods", methodList(calls)))
	return decoded, nil
}

func methodList(calls []Call) string {
	names := make([]string, 0, len(calls))
	seen := map[string]bool{}
	for _, call := range calls {
		if seen[call.Method] {
			continue
		}
		seen[call.Method] = true
		names = append(names, call.Method)
	}
	return strings.Join(names, ", ")
}
