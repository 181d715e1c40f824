package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mangrovedao/vault-console/internal/chain"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution"
	"github.com/mangrovedao/vault-console/internal/oracle"
	"github.com/mangrovedao/vault-console/internal/registry"
)

// BurnGas is the fixed gas limit of burn; estimates undershoot when the
// Kandel has to be retracted.
const BurnGas = 20_000_000

// MintResult reports what the helper minted, as simulated before submission.
type MintResult struct {
	Shares    *big.Int             `json:"shares"`
	Base      *big.Int             `json:"base"`
	Quote     *big.Int             `json:"quote"`
	Approvals []execution.Approval `json:"-"`
	Receipt   execution.Receipt    `json:"-"`
}

// Mint deposits through the MintHelper. Base and quote allowances to the
// helper are ensured first; a declined approval ends the flow with
// CodeDeclined and nothing minted.
func (v *Vault) Mint(ctx context.Context, helper common.Address, m oracle.Market, maxBase, maxQuote, minShares *big.Int, confirm execution.ConfirmFunc) (MintResult, error) {
	if maxBase == nil || maxQuote == nil || (maxBase.Sign() <= 0 && maxQuote.Sign() <= 0) {
		return MintResult{}, clierr.New(clierr.CodeValidation, "mint needs a positive base or quote amount")
	}
	if maxBase.Sign() < 0 || maxQuote.Sign() < 0 {
		return MintResult{}, clierr.New(clierr.CodeValidation, "mint amounts must not be negative")
	}
	if minShares == nil {
		minShares = new(big.Int)
	}
	var entries []execution.AllowanceEntry
	if maxBase.Sign() > 0 {
		entries = append(entries, execution.AllowanceEntry{Token: m.Base.Address, Spender: helper, Amount: maxBase, Decimals: m.Base.Decimals, Symbol: m.Base.Symbol})
	}
	if maxQuote.Sign() > 0 {
		entries = append(entries, execution.AllowanceEntry{Token: m.Quote.Address, Spender: helper, Amount: maxQuote, Decimals: m.Quote.Decimals, Symbol: m.Quote.Symbol})
	}
	ok, approvals, err := v.exec.EnsureAllowances(ctx, v.exec.Sender(), entries, confirm)
	res := MintResult{Approvals: approvals}
	if err != nil {
		return res, err
	}
	if !ok {
		return res, clierr.New(clierr.CodeDeclined, "approval declined, nothing minted")
	}

	call := chain.NewCall(helper, registry.MintHelperABI, "mint", v.Address, maxBase, maxQuote, minShares)
	req, err := execution.CallRequest("vault.mint", "mint vault shares", call)
	if err != nil {
		return res, err
	}
	sim, err := v.exec.Simulate(ctx, req)
	if err != nil {
		return res, err
	}
	out, err := call.Unpack(sim)
	if err != nil {
		return res, err
	}
	d := decoder{}
	res.Shares, res.Base, res.Quote = d.big(out, 0), d.big(out, 1), d.big(out, 2)
	if d.err != nil {
		return res, d.err
	}

	amounts := fmt.Sprintf("%s shares for %s and %s", res.Shares, formatAmount(m.Base, res.Base), formatAmount(m.Quote, res.Quote))
	res.Receipt, err = v.exec.Execute(ctx, req, templated(
		"minting "+amounts,
		"Minting",
		"minted "+amounts,
		"minting "+amounts+" failed",
	))
	return res, err
}

// BurnResult reports the simulated amounts returned by burn.
type BurnResult struct {
	Base    *big.Int          `json:"base"`
	Quote   *big.Int          `json:"quote"`
	Receipt execution.Receipt `json:"-"`
}

func (v *Vault) Burn(ctx context.Context, m oracle.Market, shares, minBase, minQuote *big.Int) (BurnResult, error) {
	if shares == nil || shares.Sign() <= 0 {
		return BurnResult{}, clierr.New(clierr.CodeValidation, "shares to burn must be positive")
	}
	if minBase == nil {
		minBase = new(big.Int)
	}
	if minQuote == nil {
		minQuote = new(big.Int)
	}
	call := v.call("burn", shares, minBase, minQuote)
	req, err := execution.CallRequest("vault.burn", "burn vault shares", call)
	if err != nil {
		return BurnResult{}, err
	}
	req.Gas = BurnGas
	sim, err := v.exec.Simulate(ctx, req)
	if err != nil {
		return BurnResult{}, err
	}
	out, err := call.Unpack(sim)
	if err != nil {
		return BurnResult{}, err
	}
	d := decoder{}
	res := BurnResult{Base: d.big(out, 0), Quote: d.big(out, 1)}
	if d.err != nil {
		return res, d.err
	}

	amounts := fmt.Sprintf("%s shares for %s and %s", shares, formatAmount(m.Base, res.Base), formatAmount(m.Quote, res.Quote))
	res.Receipt, err = v.exec.Execute(ctx, req, templated(
		"burning "+amounts,
		"Burning",
		"burned "+amounts,
		"burning "+amounts+" failed",
	))
	return res, err
}

// ShareBalance reads the operator's vault shares.
func (v *Vault) ShareBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := v.exec.Reader().Call(ctx, v.call("balanceOf", owner))
	if err != nil {
		return nil, err
	}
	return chain.Big(out, 0)
}

func formatAmount(t chain.Token, v *big.Int) string {
	return t.Format(v) + " " + t.String()
}
