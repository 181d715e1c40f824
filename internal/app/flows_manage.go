package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/mangrovedao/vault-console/internal/chain"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution"
	"github.com/mangrovedao/vault-console/internal/id"
	"github.com/mangrovedao/vault-console/internal/prompt"
	"github.com/mangrovedao/vault-console/internal/rebalance"
	"github.com/mangrovedao/vault-console/internal/ticks"
	"github.com/mangrovedao/vault-console/internal/vault"
)

const maxPricePoints = 255

var nativeToken = chain.Token{Symbol: "ETH", Decimals: 18}

func declined(what string) error {
	return clierr.New(clierr.CodeDeclined, what+" cancelled")
}

// confirm asks label and turns a no into CodeDeclined.
func (c *console) confirm(label, what string) error {
	ok, err := c.p.Confirm(label, false)
	if err != nil {
		return err
	}
	if !ok {
		return declined(what)
	}
	return nil
}

// message drops the error code so prompts show only the text.
func message(err error) error {
	if e, ok := clierr.As(err); ok {
		return errors.New(e.Message)
	}
	return err
}

func (c *console) floatInput(label string, def float64) (float64, error) {
	d := ""
	if def > 0 {
		d = strconv.FormatFloat(def, 'g', 8, 64)
	}
	v, err := c.p.Input(label, d, func(v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || !(f > 0) || math.IsInf(f, 0) {
			return errors.New("please enter a positive number")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(v, 64)
}

// feeInput reads a fee fraction that is an exact multiple of 1/10000.
func (c *console) feeInput(label string, current float64) (float64, error) {
	v, err := c.p.Input(label, strconv.FormatFloat(current, 'f', -1, 64), func(v string) error {
		_, err := vault.EncodeFee(v)
		return message(err)
	})
	if err != nil {
		return 0, err
	}
	code, err := vault.EncodeFee(v)
	if err != nil {
		return 0, err
	}
	return vault.DecodeFee(code), nil
}

func (c *console) viewVault(ctx context.Context, st vault.State) error {
	rctx, cancel := c.s.readContext(ctx)
	defer cancel()
	provision, err := vault.ReadProvision(rctx, c.ss.reader, st.Address, st.Kandel)
	if err != nil {
		c.log.Warn("provision read failed", zap.Error(err))
		provision = nil
	}
	describeState(c.out, st, provision)
	return nil
}

func (c *console) changeFees(ctx context.Context, st vault.State) error {
	v, err := c.writer("change fee data", st.Address)
	if err != nil {
		return err
	}
	c.printf("current fee recipient: %s\n", st.Fees.FeeRecipient.Hex())
	c.printf("current performance fee: %s\n", vault.FormatPercent(st.Fees.PerformanceFee))
	c.printf("current management fee: %s\n", vault.FormatPercent(st.Fees.ManagementFee))

	recipient, err := prompt.Address(c.p, "Fee recipient", st.Fees.FeeRecipient)
	if err != nil {
		return err
	}
	perf, err := c.feeInput("Performance fee (0.15 is 15%)", st.Fees.PerformanceFee)
	if err != nil {
		return err
	}
	mgmt, err := c.feeInput("Management fee per year (0.015 is 1.5%)", st.Fees.ManagementFee)
	if err != nil {
		return err
	}
	fees := vault.FeeData{PerformanceFee: perf, ManagementFee: mgmt, FeeRecipient: recipient}
	c.printf("new fee data: performance %s, management %s, recipient %s\n",
		vault.FormatPercent(perf), vault.FormatPercent(mgmt), recipient.Hex())
	if err := c.confirm("Update the fee data", "fee update"); err != nil {
		return err
	}
	_, err = v.SetFeeData(ctx, fees)
	return err
}

func (c *console) choosePriceRange(ctx context.Context, st vault.State) error {
	v, err := c.writer("choose price range", st.Address)
	if err != nil {
		return err
	}
	m := st.Market
	c.printf("current price: %g %s per %s\n", st.CurrentPrice, m.Quote, m.Base)
	minPrice, err := c.floatInput("Minimum price", st.CurrentPrice*0.9)
	if err != nil {
		return err
	}
	maxPrice, err := c.floatInput("Maximum price", st.CurrentPrice*1.1)
	if err != nil {
		return err
	}
	defPoints := int64(st.Position.Params.PricePoints)
	if defPoints < 2 {
		defPoints = 10
	}
	points, err := prompt.Int(c.p, "Price points", defPoints, 2, maxPricePoints)
	if err != nil {
		return err
	}
	t0, offset, err := ticks.RangeToPosition(ticks.Range{
		MinPrice:      minPrice,
		MaxPrice:      maxPrice,
		PricePoints:   uint32(points),
		BaseDecimals:  m.Base.Decimals,
		QuoteDecimals: m.Quote.Decimals,
		TickSpacing:   m.TickSpacing.Int64(),
	})
	if err != nil {
		return err
	}
	p := st.Position
	p.TickIndex0, p.TickOffset, p.Params.PricePoints = t0, offset, uint32(points)
	describeRungs(c.out, st, p)
	c.printf("%s\n", vault.DescribePosition(p))
	if err := c.confirm("Set this position", "position update"); err != nil {
		return err
	}
	_, err = v.SetPosition(ctx, p)
	return err
}

func (c *console) changePosition(ctx context.Context, st vault.State) error {
	v, err := c.writer("change position data", st.Address)
	if err != nil {
		return err
	}
	cur := st.Position
	c.printf("current position:\n%s\n", vault.DescribePosition(cur))

	t0, err := prompt.Int(c.p, "Tick index 0", cur.TickIndex0, math.MinInt32, math.MaxInt32)
	if err != nil {
		return err
	}
	offset, err := prompt.Int(c.p, "Tick offset", cur.TickOffset, 0, math.MaxInt32)
	if err != nil {
		return err
	}
	uint32Input := func(label string, def uint32) (uint32, error) {
		n, err := prompt.Int(c.p, label, int64(def), 0, math.MaxUint32)
		return uint32(n), err
	}
	var p vault.Position
	p.TickIndex0, p.TickOffset = t0, offset
	if p.Params.Gasprice, err = uint32Input("Gas price", cur.Params.Gasprice); err != nil {
		return err
	}
	if p.Params.Gasreq, err = uint32Input("Gas required", cur.Params.Gasreq); err != nil {
		return err
	}
	if p.Params.StepSize, err = uint32Input("Step size", cur.Params.StepSize); err != nil {
		return err
	}
	if p.Params.PricePoints, err = uint32Input("Price points", cur.Params.PricePoints); err != nil {
		return err
	}
	states := []vault.FundsState{vault.FundsVault, vault.FundsPassive, vault.FundsActive}
	items := make([]string, len(states))
	for i, s := range states {
		items[i] = s.Describe()
	}
	i, err := c.p.Select("Funds state", items)
	if err != nil {
		return err
	}
	p.FundsState = states[i]

	describeRungs(c.out, st, p)
	c.printf("%s\n", vault.DescribePosition(p))
	if err := c.confirm("Set this position", "position update"); err != nil {
		return err
	}
	_, err = v.SetPosition(ctx, p)
	return err
}

func (c *console) changeERC4626Vaults(ctx context.Context, st vault.State) error {
	v, err := c.writer("change erc4626 vaults", st.Address)
	if err != nil {
		return err
	}
	sides := []string{"Base vault", "Quote vault"}
	i, err := c.p.Select("Which vault", sides)
	if err != nil {
		return err
	}
	side, token, current := "base", st.Market.Base, st.BaseVault
	if i == 1 {
		side, token, current = "quote", st.Market.Quote, st.QuoteVault
	}
	def := common.Address{}
	if current != nil {
		def = *current
		c.printf("current %s vault for %s: %s\n", side, token, current.Hex())
	}
	target, err := prompt.Address(c.p, fmt.Sprintf("ERC4626 vault for %s", token), def)
	if err != nil {
		return err
	}
	if err := c.confirm(fmt.Sprintf("Move idle %s to %s", token, target.Hex()), "vault change"); err != nil {
		return err
	}
	_, err = v.SetVaultForToken(ctx, side, token.Address, target)
	return err
}

func (c *console) addLiquidity(ctx context.Context, st vault.State) error {
	v, err := c.writer("add liquidity", st.Address)
	if err != nil {
		return err
	}
	m := st.Market
	rctx, cancel := c.s.readContext(ctx)
	balances, err := c.ss.reader.Balances(rctx, c.ss.account(), m.Base.Address, m.Quote.Address)
	cancel()
	if err != nil {
		return err
	}
	c.printf("wallet: %s, %s\n", amount(m.Base, balances[0]), amount(m.Quote, balances[1]))

	maxBase, err := prompt.Amount(c.p, fmt.Sprintf("Maximum %s to deposit", m.Base), m.Base, balances[0], balances[0])
	if err != nil {
		return err
	}
	maxQuote, err := prompt.Amount(c.p, fmt.Sprintf("Maximum %s to deposit", m.Quote), m.Quote, balances[1], balances[1])
	if err != nil {
		return err
	}
	rctx, cancel = c.s.readContext(ctx)
	preview, err := vault.GetMintAmounts(rctx, c.ss.reader, st.Address, maxBase, maxQuote)
	cancel()
	if err != nil {
		return err
	}
	minShares := rebalance.AmountInMin(preview.Shares, rebalance.DefaultSlippageBps)
	c.printf("expected: %s shares for %s and %s (minimum %s shares)\n",
		preview.Shares, amount(m.Base, preview.Base), amount(m.Quote, preview.Quote), minShares)
	if err := c.confirm("Add liquidity", "deposit"); err != nil {
		return err
	}

	approve := func(e execution.AllowanceEntry, current *big.Int) (bool, error) {
		return c.p.Confirm(fmt.Sprintf("Approve %s (current allowance %s)", e, id.FormatUnits(current, int(e.Decimals))), true)
	}
	res, err := v.Mint(ctx, c.ss.entry.MintHelper, m, maxBase, maxQuote, minShares, approve)
	if err != nil {
		return err
	}
	c.printf("minted %s shares\n", res.Shares)
	return nil
}

func (c *console) removeLiquidity(ctx context.Context, st vault.State) error {
	v, err := c.writer("remove liquidity", st.Address)
	if err != nil {
		return err
	}
	rctx, cancel := c.s.readContext(ctx)
	shares, err := v.ShareBalance(rctx, c.ss.account())
	var share chain.Token
	if err == nil {
		share, err = c.ss.reader.Token(rctx, st.Address)
	}
	cancel()
	if err != nil {
		return err
	}
	if shares.Sign() == 0 {
		c.printf("no shares of %s held by %s\n", st.Address.Hex(), c.ss.account().Hex())
		return nil
	}
	c.printf("shares held: %s\n", amount(share, shares))
	burn, err := prompt.Amount(c.p, "Shares to burn", share, shares, shares)
	if err != nil {
		return err
	}
	if err := c.confirm(fmt.Sprintf("Burn %s", amount(share, burn)), "withdrawal"); err != nil {
		return err
	}
	res, err := v.Burn(ctx, st.Market, burn, nil, nil)
	if err != nil {
		return err
	}
	c.printf("received %s and %s\n", amount(st.Market.Base, res.Base), amount(st.Market.Quote, res.Quote))
	return nil
}

func (c *console) addProvision(ctx context.Context, st vault.State) error {
	v, err := c.writer("add provision", st.Address)
	if err != nil {
		return err
	}
	amt, err := prompt.Amount(c.p, "Provision to add (ETH)", nativeToken, nil, nil)
	if err != nil {
		return err
	}
	if err := c.confirm(fmt.Sprintf("Send %s to mangrove for %s", amount(nativeToken, amt), st.Kandel.Hex()), "provision"); err != nil {
		return err
	}
	_, err = v.FundMangrove(ctx, amt)
	return err
}

func (c *console) removeProvision(ctx context.Context, st vault.State) error {
	v, err := c.writer("remove provision", st.Address)
	if err != nil {
		return err
	}
	rctx, cancel := c.s.readContext(ctx)
	available, err := vault.ReadProvision(rctx, c.ss.reader, st.Address, st.Kandel)
	cancel()
	if err != nil {
		return err
	}
	c.printf("unlocked provision: %s\n", amount(nativeToken, available))
	if available.Sign() == 0 {
		return nil
	}
	amt, err := prompt.Amount(c.p, "Provision to withdraw (ETH)", nativeToken, available, available)
	if err != nil {
		return err
	}
	receiver, err := prompt.Address(c.p, "Receiver", c.ss.account())
	if err != nil {
		return err
	}
	if err := c.confirm(fmt.Sprintf("Withdraw %s to %s", amount(nativeToken, amt), receiver.Hex()), "withdrawal"); err != nil {
		return err
	}
	_, err = v.WithdrawFromMangrove(ctx, amt, available, receiver)
	return err
}

func (c *console) updatePosition(ctx context.Context, st vault.State) error {
	v, err := c.writer("update position", st.Address)
	if err != nil {
		return err
	}
	if err := c.confirm("Refresh the Kandel position with the current parameters", "position refresh"); err != nil {
		return err
	}
	_, err = v.UpdatePosition(ctx)
	return err
}

func (c *console) transferOwnership(ctx context.Context, st vault.State) error {
	v, err := c.writer("transfer ownership", st.Address)
	if err != nil {
		return err
	}
	c.printf("current owner: %s\n", st.Owner.Hex())
	owner, err := prompt.Address(c.p, "New owner", common.Address{})
	if err != nil {
		return err
	}
	if owner == (common.Address{}) {
		return clierr.New(clierr.CodeValidation, "new owner must not be the zero address")
	}
	if err := c.confirm(fmt.Sprintf("Hand %s over to %s; this cannot be undone from this account", st.Address.Hex(), owner.Hex()), "ownership transfer"); err != nil {
		return err
	}
	_, err = v.TransferOwnership(ctx, owner)
	return err
}

func (c *console) setManager(ctx context.Context, st vault.State) error {
	v, err := c.writer("set manager", st.Address)
	if err != nil {
		return err
	}
	manager, err := prompt.Address(c.p, "New manager", common.Address{})
	if err != nil {
		return err
	}
	if err := c.confirm(fmt.Sprintf("Set %s as manager of %s", manager.Hex(), st.Address.Hex()), "manager change"); err != nil {
		return err
	}
	_, err = v.SetManager(ctx, manager)
	return err
}

func (c *console) removeSwapContract(ctx context.Context, st vault.State) error {
	v, err := c.writer("remove swap contract", st.Address)
	if err != nil {
		return err
	}
	routes, err := rebalance.Available(c.ss.entry, c.s.settings)
	if err != nil {
		return err
	}
	items := make([]string, 0, len(routes)+1)
	for _, r := range routes {
		items = append(items, fmt.Sprintf("%s %s", r.Type, r.Contract.Hex()))
	}
	items = append(items, enterAddressOption)
	i, err := c.p.Select("Contract to remove", items)
	if err != nil {
		return err
	}
	var target common.Address
	if i < len(routes) {
		target = routes[i].Contract
	} else if target, err = prompt.Address(c.p, "Contract address", common.Address{}); err != nil {
		return err
	}

	rctx, cancel := c.s.readContext(ctx)
	allowed, err := v.IsSwapContractAllowed(rctx, target)
	cancel()
	if err != nil {
		return err
	}
	if !allowed {
		c.printf("%s is not whitelisted\n", target.Hex())
		return nil
	}
	if err := c.confirm(fmt.Sprintf("Remove %s from the swap whitelist", target.Hex()), "whitelist removal"); err != nil {
		return err
	}
	_, err = v.DisallowSwapContract(ctx, target)
	return err
}
