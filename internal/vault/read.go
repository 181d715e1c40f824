package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/mangrovedao/vault-console/internal/chain"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/oracle"
	"github.com/mangrovedao/vault-console/internal/registry"
	"github.com/mangrovedao/vault-console/internal/ticks"
)

// Offer word layout, from the most significant bit: prev(32) next(32)
// tick(21, signed) gives(127), then 44 unused bits.
const (
	givesShift = 44
	givesBits  = 127
	tickShift  = givesShift + givesBits
	tickBits   = 21
)

var (
	givesMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), givesBits), big.NewInt(1))
	tickMask  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), tickBits), big.NewInt(1))
)

// DecodeOffer extracts the tick and gives fields of a packed offer word.
func DecodeOffer(word *big.Int) (tick int64, gives *big.Int) {
	gives = new(big.Int).Rsh(word, givesShift)
	gives.And(gives, givesMask)
	raw := new(big.Int).Rsh(word, tickShift)
	raw.And(raw, tickMask)
	tick = raw.Int64()
	if tick >= 1<<(tickBits-1) {
		tick -= 1 << tickBits
	}
	return tick, gives
}

type kandelParams struct {
	Gasprice    uint32
	Gasreq      *big.Int
	StepSize    uint32
	PricePoints uint32
}

// Read loads the full vault state. The eleven vault fields come from one
// multicall; the oracle price and the Kandel ladder are then read
// concurrently. currentVaults is only read for ERC-4626 vaults.
func Read(ctx context.Context, c *chain.Client, addr common.Address, vaultType string) (State, error) {
	st := State{Address: addr, Type: vaultType}
	var (
		base, quote common.Address
		spacing     *big.Int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		base, quote, spacing, err = readFields(gctx, c, addr, &st)
		return err
	})
	if vaultType == TypeERC4626 {
		g.Go(func() error {
			out, err := c.Call(gctx, chain.NewCall(addr, registry.ERC4626VaultABI, "currentVaults"))
			if err != nil {
				return err
			}
			bv, err := chain.Address(out, 0)
			if err != nil {
				return err
			}
			qv, err := chain.Address(out, 1)
			if err != nil {
				return err
			}
			st.BaseVault, st.QuoteVault = &bv, &qv
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return State{}, err
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := oracle.ReadPrice(gctx, c, st.Oracle, base, quote, spacing)
		if err != nil {
			return err
		}
		st.Market, st.CurrentTick, st.CurrentPrice = p.Market, p.Tick, p.Price
		return nil
	})
	var ladder Ladder
	g.Go(func() error {
		var err error
		ladder, err = ReadLadder(gctx, c, st.Kandel, st.Position.Params.PricePoints)
		return err
	})
	if err := g.Wait(); err != nil {
		return State{}, err
	}
	st.Offers = priceLadder(ladder, st.Market)
	return st, nil
}

func readFields(ctx context.Context, c *chain.Client, addr common.Address, st *State) (base, quote common.Address, spacing *big.Int, err error) {
	methods := []string{"feeData", "tickIndex0", "kandelTickOffset", "kandelParams", "fundsState",
		"getKandelBalances", "getVaultBalances", "market", "oracle", "owner", "kandel"}
	calls := make([]chain.Call, len(methods))
	for i, m := range methods {
		calls[i] = chain.NewCall(addr, registry.MangroveVaultABI, m)
	}
	r, err := c.Aggregate(ctx, calls)
	if err != nil {
		return base, quote, nil, err
	}

	d := decoder{}
	perf := d.big(r[0], 0)
	mgmt := d.big(r[0], 1)
	st.Fees.FeeRecipient = d.addr(r[0], 2)
	tick0 := d.big(r[1], 0)
	offset := d.big(r[2], 0)
	if d.err == nil {
		var kp kandelParams
		if len(r[3]) == 1 {
			kp = *abi.ConvertType(r[3][0], new(kandelParams)).(*kandelParams)
		} else {
			d.err = clierr.New(clierr.CodeUnavailable, "kandelParams: unexpected result shape")
		}
		if d.err == nil {
			st.Position.Params = Params{Gasprice: kp.Gasprice, Gasreq: uint32(kp.Gasreq.Uint64()), StepSize: kp.StepSize, PricePoints: kp.PricePoints}
		}
	}
	funds := d.big(r[4], 0)
	st.KandelBalance = Balance{Base: d.big(r[5], 0), Quote: d.big(r[5], 1)}
	st.VaultBalance = Balance{Base: d.big(r[6], 0), Quote: d.big(r[6], 1)}
	base = d.addr(r[7], 0)
	quote = d.addr(r[7], 1)
	spacing = d.big(r[7], 2)
	st.Oracle = d.addr(r[8], 0)
	st.Owner = d.addr(r[9], 0)
	st.Kandel = d.addr(r[10], 0)
	if d.err != nil {
		return base, quote, nil, d.err
	}

	if !tick0.IsInt64() || !offset.IsInt64() {
		return base, quote, nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("vault %s position out of range", addr.Hex()))
	}
	fs, err := ParseFundsState(funds.String())
	if err != nil {
		return base, quote, nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("vault %s funds state", addr.Hex()), err)
	}
	st.Fees.PerformanceFee = DecodeFee(uint16(perf.Uint64()))
	st.Fees.ManagementFee = DecodeFee(uint16(mgmt.Uint64()))
	st.Position.TickIndex0 = tick0.Int64()
	st.Position.TickOffset = offset.Int64()
	st.Position.FundsState = fs
	return base, quote, spacing, nil
}

// decoder keeps the first decode error so a long list of fields reads
// without an if per line.
type decoder struct{ err error }

func (d *decoder) big(values []any, i int) *big.Int {
	if d.err != nil {
		return new(big.Int)
	}
	v, err := chain.Big(values, i)
	if err != nil {
		d.err = err
		return new(big.Int)
	}
	return v
}

func (d *decoder) addr(values []any, i int) common.Address {
	if d.err != nil {
		return common.Address{}
	}
	v, err := chain.Address(values, i)
	if err != nil {
		d.err = err
	}
	return v
}

// ReadLadder reads the Kandel book. No call is made when pricePoints is 0.
func ReadLadder(ctx context.Context, c *chain.Client, kandel common.Address, pricePoints uint32) (Ladder, error) {
	if pricePoints == 0 {
		return Ladder{}, nil
	}
	n := int(pricePoints)
	calls := make([]chain.Call, 0, 4*n)
	for _, side := range []Side{Ask, Bid} {
		for i := 0; i < n; i++ {
			idx := big.NewInt(int64(i))
			calls = append(calls,
				chain.NewCall(kandel, registry.KandelABI, "offerIdOfIndex", uint8(side), idx),
				chain.NewCall(kandel, registry.KandelABI, "getOffer", uint8(side), idx),
			)
		}
	}
	results, err := c.Aggregate(ctx, calls)
	if err != nil {
		return Ladder{}, err
	}

	ladder := Ladder{Asks: make([]Offer, 0, n), Bids: make([]Offer, 0, n)}
	for k := 0; k < len(results); k += 2 {
		side := Side(k / (2 * n))
		index := (k / 2) % n
		id, err := chain.Big(results[k], 0)
		if err != nil {
			return Ladder{}, err
		}
		word, err := chain.Big(results[k+1], 0)
		if err != nil {
			return Ladder{}, err
		}
		tick, gives := DecodeOffer(word)
		o := Offer{Side: side, Index: index, ID: id, Tick: tick, Gives: gives, Live: id.Sign() != 0 && gives.Sign() > 0}
		if side == Ask {
			ladder.Asks = append(ladder.Asks, o)
		} else {
			ladder.Bids = append(ladder.Bids, o)
		}
	}
	return ladder, nil
}

// priceLadder fills human prices once the market decimals are known. Asks
// give base at tick; bids give quote at the inverse tick.
func priceLadder(l Ladder, m oracle.Market) Ladder {
	for i := range l.Asks {
		l.Asks[i].Price = ticks.Price(l.Asks[i].Tick, m.Base.Decimals, m.Quote.Decimals)
	}
	for i := range l.Bids {
		l.Bids[i].Price = ticks.Price(-l.Bids[i].Tick, m.Base.Decimals, m.Quote.Decimals)
	}
	return l
}

// ReadProvision returns the native token the Kandel holds on Mangrove and
// can withdraw.
func ReadProvision(ctx context.Context, c *chain.Client, vault, kandel common.Address) (*big.Int, error) {
	out, err := c.Call(ctx, chain.NewCall(vault, registry.MangroveVaultABI, "MGV"))
	if err != nil {
		return nil, err
	}
	mgv, err := chain.Address(out, 0)
	if err != nil {
		return nil, err
	}
	out, err = c.Call(ctx, chain.NewCall(mgv, registry.MangroveABI, "balanceOf", kandel))
	if err != nil {
		return nil, err
	}
	return chain.Big(out, 0)
}

// MintAmounts is the vault's preview of a deposit.
type MintAmounts struct {
	Base   *big.Int `json:"base"`
	Quote  *big.Int `json:"quote"`
	Shares *big.Int `json:"shares"`
}

func GetMintAmounts(ctx context.Context, c *chain.Client, vault common.Address, maxBase, maxQuote *big.Int) (MintAmounts, error) {
	out, err := c.Call(ctx, chain.NewCall(vault, registry.MangroveVaultABI, "getMintAmounts", maxBase, maxQuote))
	if err != nil {
		return MintAmounts{}, err
	}
	d := decoder{}
	m := MintAmounts{Base: d.big(out, 0), Quote: d.big(out, 1), Shares: d.big(out, 2)}
	return m, d.err
}

func AllowedSwapContract(ctx context.Context, c *chain.Client, vault, target common.Address) (bool, error) {
	out, err := c.Call(ctx, chain.NewCall(vault, registry.MangroveVaultABI, "allowedSwapContracts", target))
	if err != nil {
		return false, err
	}
	return chain.Bool(out, 0)
}
