package vault

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mangrovedao/vault-console/internal/chain"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution"
	"github.com/mangrovedao/vault-console/internal/id"
	"github.com/mangrovedao/vault-console/internal/registry"
)

// Vault submits the owner and manager operations of one vault.
type Vault struct {
	exec    *execution.Executor
	Address common.Address
}

func New(exec *execution.Executor, addr common.Address) *Vault {
	return &Vault{exec: exec, Address: addr}
}

func (v *Vault) Executor() *execution.Executor { return v.exec }

// State reads the vault through the executor's reader.
func (v *Vault) State(ctx context.Context, vaultType string) (State, error) {
	return Read(ctx, v.exec.Reader(), v.Address, vaultType)
}

func (v *Vault) submit(ctx context.Context, intent string, call chain.Call, value *big.Int, gas uint64, msgs execution.Messages) (execution.Receipt, error) {
	req, err := execution.CallRequest(intent, msgs.Header, call)
	if err != nil {
		return execution.Receipt{}, err
	}
	req.Value = value
	req.Gas = gas
	return v.exec.Execute(ctx, req, msgs)
}

func (v *Vault) call(method string, args ...any) chain.Call {
	return chain.NewCall(v.Address, registry.MangroveVaultABI, method, args...)
}

// templated builds the usual "<action> ... in block N: hash" lines.
func templated(header, label, done, failed string) execution.Messages {
	return execution.Messages{
		Header:  header,
		Label:   label,
		Success: func(block uint64, hash common.Hash) string { return fmt.Sprintf("%s in block %d: %s", done, block, hash.Hex()) },
		Failure: func(hash common.Hash) string { return fmt.Sprintf("%s: %s", failed, hash.Hex()) },
	}
}

type positionArg struct {
	TickIndex0 *big.Int
	TickOffset *big.Int
	Params     paramsArg
	FundsState uint8
}

type paramsArg struct {
	Gasprice    uint32
	Gasreq      *big.Int
	StepSize    uint32
	PricePoints uint32
}

// DescribePosition renders the lines shown before a position is submitted.
func DescribePosition(p Position) string {
	keep := func(n uint32) string {
		if n == 0 {
			return "unchanged or default"
		}
		return fmt.Sprint(n)
	}
	lines := []string{
		fmt.Sprintf("first tick index: %d", p.TickIndex0),
		fmt.Sprintf("tick offset: %d", p.TickOffset),
		fmt.Sprintf("gas price: %s", keep(p.Params.Gasprice)),
		fmt.Sprintf("gasreq: %s", keep(p.Params.Gasreq)),
		fmt.Sprintf("step size: %d", p.Params.StepSize),
		fmt.Sprintf("price points: %d", p.Params.PricePoints),
		fmt.Sprintf("funds state: %s", p.FundsState.Describe()),
	}
	return strings.Join(lines, "\n")
}

func (v *Vault) SetPosition(ctx context.Context, p Position) (execution.Receipt, error) {
	if p.TickOffset < 0 {
		return execution.Receipt{}, clierr.New(clierr.CodeValidation, "tick offset must not be negative")
	}
	if p.FundsState > FundsActive {
		return execution.Receipt{}, clierr.New(clierr.CodeValidation, fmt.Sprintf("unknown funds state %d", p.FundsState))
	}
	arg := positionArg{
		TickIndex0: big.NewInt(p.TickIndex0),
		TickOffset: big.NewInt(p.TickOffset),
		Params: paramsArg{
			Gasprice:    p.Params.Gasprice,
			Gasreq:      new(big.Int).SetUint64(uint64(p.Params.Gasreq)),
			StepSize:    p.Params.StepSize,
			PricePoints: p.Params.PricePoints,
		},
		FundsState: uint8(p.FundsState),
	}
	a := v.Address.Hex()
	msgs := templated(
		fmt.Sprintf("setting position for vault %s with data:\n%s", a, DescribePosition(p)),
		"Position setting",
		"position set for vault "+a,
		"position not set for vault "+a,
	)
	return v.submit(ctx, "vault.set_position", v.call("setPosition", arg), nil, 0, msgs)
}

// SetFeeData encodes both fractions before anything is sent; inexact
// fractions are rejected.
func (v *Vault) SetFeeData(ctx context.Context, fees FeeData) (execution.Receipt, error) {
	perf, err := EncodeFeeFraction(fees.PerformanceFee)
	if err != nil {
		return execution.Receipt{}, clierr.Wrap(clierr.CodeValidation, "performance fee", err)
	}
	mgmt, err := EncodeFeeFraction(fees.ManagementFee)
	if err != nil {
		return execution.Receipt{}, clierr.Wrap(clierr.CodeValidation, "management fee", err)
	}
	if fees.FeeRecipient == (common.Address{}) {
		return execution.Receipt{}, clierr.New(clierr.CodeValidation, "fee recipient must not be the zero address")
	}
	a := v.Address.Hex()
	header := fmt.Sprintf("setting fee for vault %s with data:\nfee recipient: %s\nperformance fee: %s\nannual management fee: %s",
		a, fees.FeeRecipient.Hex(), FormatPercent(DecodeFee(perf)), FormatPercent(DecodeFee(mgmt)))
	msgs := templated(header, "Fee setting", "fee set for vault "+a, "fee not set for vault "+a)
	return v.submit(ctx, "vault.set_fee_data", v.call("setFeeData", perf, mgmt, fees.FeeRecipient), nil, 0, msgs)
}

func (v *Vault) TransferOwnership(ctx context.Context, newOwner common.Address) (execution.Receipt, error) {
	if newOwner == (common.Address{}) {
		return execution.Receipt{}, clierr.New(clierr.CodeValidation, "new owner must not be the zero address")
	}
	a := v.Address.Hex()
	msgs := templated(
		fmt.Sprintf("transferring ownership of vault %s to %s", a, newOwner.Hex()),
		"Ownership transfer",
		"ownership transferred for vault "+a,
		"ownership not transferred for vault "+a,
	)
	return v.submit(ctx, "vault.transfer_ownership", v.call("transferOwnership", newOwner), nil, 0, msgs)
}

func (v *Vault) SetManager(ctx context.Context, manager common.Address) (execution.Receipt, error) {
	a := v.Address.Hex()
	msgs := templated(
		fmt.Sprintf("setting manager for vault %s to %s", a, manager.Hex()),
		"Manager setting",
		"manager set for vault "+a,
		"manager not set for vault "+a,
	)
	return v.submit(ctx, "vault.set_manager", v.call("setManager", manager), nil, 0, msgs)
}

// UpdatePosition re-posts the Kandel with the current parameters.
func (v *Vault) UpdatePosition(ctx context.Context) (execution.Receipt, error) {
	a := v.Address.Hex()
	msgs := templated(
		fmt.Sprintf("refreshing position for vault %s with current parameters", a),
		"Position refreshing",
		"position refreshed for vault "+a,
		"position not refreshed for vault "+a,
	)
	return v.submit(ctx, "vault.update_position", v.call("updatePosition"), nil, 0, msgs)
}

func (v *Vault) FundMangrove(ctx context.Context, amount *big.Int) (execution.Receipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return execution.Receipt{}, clierr.New(clierr.CodeValidation, "provision amount must be positive")
	}
	eth := id.FormatUnits(amount, 18)
	msgs := templated(
		"funding mangrove with "+eth,
		"Funding mangrove",
		"funded mangrove with "+eth,
		"funding mangrove with "+eth+" failed",
	)
	return v.submit(ctx, "vault.fund_mangrove", v.call("fundMangrove"), amount, 0, msgs)
}

// WithdrawFromMangrove withdraws free provision to receiver. available is
// the current free provision; nil skips the bound check.
func (v *Vault) WithdrawFromMangrove(ctx context.Context, amount, available *big.Int, receiver common.Address) (execution.Receipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return execution.Receipt{}, clierr.New(clierr.CodeValidation, "withdrawal amount must be positive")
	}
	if available != nil && amount.Cmp(available) > 0 {
		return execution.Receipt{}, clierr.New(clierr.CodeValidation, fmt.Sprintf("amount exceeds the unlocked provision of %s", id.FormatUnits(available, 18)))
	}
	eth := id.FormatUnits(amount, 18)
	msgs := templated(
		fmt.Sprintf("withdrawing %s from mangrove", eth),
		"Withdrawing from mangrove",
		fmt.Sprintf("withdrew %s from mangrove", eth),
		fmt.Sprintf("withdrawing %s from mangrove failed", eth),
	)
	return v.submit(ctx, "vault.withdraw_from_mangrove", v.call("withdrawFromMangrove", amount, receiver), nil, 0, msgs)
}

// SetVaultForToken points token's idle funds at an ERC-4626 vault. side is
// "base" or "quote" and only shapes the messages.
func (v *Vault) SetVaultForToken(ctx context.Context, side string, token, target common.Address) (execution.Receipt, error) {
	if side != "base" && side != "quote" {
		return execution.Receipt{}, clierr.New(clierr.CodeValidation, fmt.Sprintf("unknown token side %q", side))
	}
	t := target.Hex()
	label := "Setting " + side + " vault"
	msgs := templated(
		fmt.Sprintf("setting %s vault to %s", side, t),
		label,
		fmt.Sprintf("set %s vault to %s", side, t),
		fmt.Sprintf("set %s vault to %s failed", side, t),
	)
	call := chain.NewCall(v.Address, registry.ERC4626VaultABI, "setVaultForToken", token, target, new(big.Int), new(big.Int))
	return v.submit(ctx, "vault.set_vault_for_token", call, nil, 0, msgs)
}

func (v *Vault) AllowSwapContract(ctx context.Context, target common.Address) (execution.Receipt, error) {
	t := target.Hex()
	msgs := templated(
		fmt.Sprintf("Whitelisting %s for %s", t, v.Address.Hex()),
		"Whitelisting",
		fmt.Sprintf("contract %s whitelisted", t),
		fmt.Sprintf("contract %s failed to be whitelisted", t),
	)
	return v.submit(ctx, "vault.allow_swap_contract", v.call("allowSwapContract", target), nil, 0, msgs)
}

func (v *Vault) DisallowSwapContract(ctx context.Context, target common.Address) (execution.Receipt, error) {
	t := target.Hex()
	msgs := templated(
		fmt.Sprintf("Disallowing %s from using %s", v.Address.Hex(), t),
		"Whitelist removal",
		fmt.Sprintf("contract %s removed from whitelist", t),
		fmt.Sprintf("contract %s failed to be removed from whitelist", t),
	)
	return v.submit(ctx, "vault.disallow_swap_contract", v.call("disallowSwapContract", target), nil, 0, msgs)
}

// IsSwapContractAllowed reads the whitelist.
func (v *Vault) IsSwapContractAllowed(ctx context.Context, target common.Address) (bool, error) {
	return AllowedSwapContract(ctx, v.exec.Reader(), v.Address, target)
}

// Swap hands amountOut of the sold token to args.Target with args.Data.
func (v *Vault) Swap(ctx context.Context, args RebalanceArgs) (execution.Receipt, error) {
	if args.AmountOut == nil || args.AmountOut.Sign() <= 0 {
		return execution.Receipt{}, clierr.New(clierr.CodeValidation, "swap amount must be positive")
	}
	minIn := args.AmountInMin
	if minIn == nil {
		minIn = new(big.Int)
	}
	msgs := execution.Messages{
		Header:  "Rebalancing " + v.Address.Hex(),
		Label:   "Rebalance",
		Success: func(block uint64, hash common.Hash) string { return fmt.Sprintf("swap success in block %d: %s", block, hash.Hex()) },
		Failure: func(hash common.Hash) string { return "swap failed: " + hash.Hex() },
	}
	return v.submit(ctx, "vault.swap", v.call("swap", args.Target, args.Data, args.AmountOut, minIn, args.Sell), nil, args.Gas, msgs)
}
