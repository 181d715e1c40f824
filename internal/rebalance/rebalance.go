package rebalance

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution"
	"github.com/mangrovedao/vault-console/internal/providers"
	"github.com/mangrovedao/vault-console/internal/vault"
)

// Step is a stage of one rebalance.
type Step string

const (
	StepStart       Step = "start"
	StepWhitelisted Step = "whitelisted"
	StepQuoted      Step = "quoted"
	StepBuilt       Step = "built"
	StepSubmitted   Step = "submitted"
	StepConfirmed   Step = "confirmed"
	StepFailed      Step = "failed"
)

// DefaultSlippageBps is the tolerance taken off the quoted amount.
const DefaultSlippageBps = 100

const bpsDenominator = 10_000

// AmountInMin returns quoted - floor(quoted * bps / 10000).
func AmountInMin(quoted *big.Int, bps int64) *big.Int {
	if quoted == nil || quoted.Sign() <= 0 {
		return new(big.Int)
	}
	cut := new(big.Int).Mul(quoted, big.NewInt(bps))
	cut.Quo(cut, big.NewInt(bpsDenominator))
	return cut.Sub(quoted, cut)
}

// Request is what the operator asked for. Sell sells base for quote;
// otherwise quote is sold for base.
type Request struct {
	Sell        bool
	Amount      *big.Int
	SlippageBps int64
}

// Hooks carry the operator's decisions. A nil hook approves.
type Hooks struct {
	// ConfirmWhitelist is asked before a contract is added to the vault's
	// swap whitelist.
	ConfirmWhitelist func(target common.Address) (bool, error)
	// ConfirmQuote shows the quote and the proposed minimum; it returns the
	// minimum to submit, possibly edited.
	ConfirmQuote func(q providers.Quote, amountInMin *big.Int) (*big.Int, bool, error)
}

// Result records how far the rebalance went.
type Result struct {
	Steps       []Step             `json:"steps"`
	Quote       providers.Quote    `json:"quote"`
	AmountInMin *big.Int           `json:"amountInMin,omitempty"`
	Target      common.Address     `json:"target"`
	Whitelisted []common.Address   `json:"whitelisted,omitempty"`
	Receipt     execution.Receipt  `json:"-"`
	Call        providers.SwapCall `json:"-"`
}

func (r *Result) step(s Step) { r.Steps = append(r.Steps, s) }

// Final is the last step reached.
func (r Result) Final() Step {
	if len(r.Steps) == 0 {
		return ""
	}
	return r.Steps[len(r.Steps)-1]
}

// Orchestrator runs rebalances of one vault through one aggregator.
type Orchestrator struct {
	vault    *vault.Vault
	agg      providers.Aggregator
	executor common.Address
	log      *zap.Logger
	allowed  map[common.Address]bool
}

type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// New binds a vault to an aggregator whose registry executor contract is
// executor.
func New(v *vault.Vault, agg providers.Aggregator, executor common.Address, opts ...Option) *Orchestrator {
	o := &Orchestrator{vault: v, agg: agg, executor: executor, log: zap.NewNop(), allowed: map[common.Address]bool{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run whitelists the executor, quotes, confirms, builds and submits swap.
// The swap target is always in the set confirmed against the vault's
// whitelist during this run.
func (o *Orchestrator) Run(ctx context.Context, st vault.State, req Request, hooks Hooks) (Result, error) {
	res := Result{Steps: []Step{StepStart}}
	sold, bought, balance := st.Market.Quote, st.Market.Base, st.VaultBalance.Quote
	if req.Sell {
		sold, bought, balance = st.Market.Base, st.Market.Quote, st.VaultBalance.Base
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return res, clierr.New(clierr.CodeValidation, "rebalance amount must be positive")
	}
	if balance == nil || req.Amount.Cmp(balance) > 0 {
		return res, clierr.New(clierr.CodeValidation,
			fmt.Sprintf("amount exceeds the vault's %s balance of %s", sold, sold.Format(balance)))
	}
	bps := req.SlippageBps
	if bps <= 0 {
		bps = DefaultSlippageBps
	}
	if bps >= bpsDenominator {
		return res, clierr.New(clierr.CodeValidation, "slippage must be below 10000 bps")
	}

	if err := o.ensureWhitelisted(ctx, o.executor, hooks, &res); err != nil {
		return res, o.fail(&res, err)
	}
	res.step(StepWhitelisted)

	q, err := o.agg.Quote(ctx, providers.QuoteRequest{
		ChainID: o.vault.Executor().ChainID(),
		Vault:   o.vault.Address,
		Sell:    sold,
		Buy:     bought,
		Amount:  req.Amount,
	})
	if err != nil {
		return res, o.fail(&res, err)
	}
	res.Quote = q
	res.step(StepQuoted)
	o.log.Debug("rebalance quoted",
		zap.String("provider", string(q.Provider)),
		zap.String("sell", req.Amount.String()),
		zap.String("buy", q.BuyAmount.String()))

	minIn := AmountInMin(q.BuyAmount, bps)
	if hooks.ConfirmQuote != nil {
		edited, ok, err := hooks.ConfirmQuote(q, minIn)
		if err != nil {
			return res, o.fail(&res, err)
		}
		if !ok {
			return res, o.fail(&res, clierr.New(clierr.CodeDeclined, "rebalance cancelled"))
		}
		if edited != nil {
			minIn = edited
		}
	}
	if minIn.Sign() < 0 {
		return res, o.fail(&res, clierr.New(clierr.CodeValidation, "minimum amount in must not be negative"))
	}
	res.AmountInMin = minIn

	call, err := o.agg.Build(ctx, q, o.vault.Address)
	if err != nil {
		return res, o.fail(&res, err)
	}
	if call.Value != nil && call.Value.Sign() != 0 {
		return res, o.fail(&res, clierr.New(clierr.CodeValidation, "aggregator call carries native value; vault swaps cannot forward it"))
	}
	res.Call, res.Target = call, call.To
	res.step(StepBuilt)
	if call.To != o.executor {
		o.log.Info("aggregator built a call to another contract", zap.String("target", call.To.Hex()), zap.String("registry", o.executor.Hex()))
		if err := o.ensureWhitelisted(ctx, call.To, hooks, &res); err != nil {
			return res, o.fail(&res, err)
		}
	}
	if !o.allowed[call.To] {
		return res, o.fail(&res, clierr.New(clierr.CodeInternal, "swap target was not confirmed on the whitelist"))
	}

	res.step(StepSubmitted)
	res.Receipt, err = o.vault.Swap(ctx, vault.RebalanceArgs{
		Target:      call.To,
		Data:        call.Data,
		AmountOut:   req.Amount,
		AmountInMin: minIn,
		Sell:        req.Sell,
		Gas:         call.Gas,
	})
	if err != nil {
		return res, o.fail(&res, err)
	}
	res.step(StepConfirmed)
	return res, nil
}

func (o *Orchestrator) fail(res *Result, err error) error {
	res.step(StepFailed)
	o.log.Debug("rebalance failed", zap.Error(err))
	return err
}

func (o *Orchestrator) ensureWhitelisted(ctx context.Context, target common.Address, hooks Hooks, res *Result) error {
	if o.allowed[target] {
		return nil
	}
	ok, err := o.vault.IsSwapContractAllowed(ctx, target)
	if err != nil {
		return err
	}
	if !ok {
		if hooks.ConfirmWhitelist != nil {
			approve, err := hooks.ConfirmWhitelist(target)
			if err != nil {
				return err
			}
			if !approve {
				return clierr.New(clierr.CodeDeclined, fmt.Sprintf("%s is not whitelisted and was not added", target.Hex()))
			}
		}
		if _, err := o.vault.AllowSwapContract(ctx, target); err != nil {
			return err
		}
		res.Whitelisted = append(res.Whitelisted, target)
	}
	o.allowed[target] = true
	return nil
}
