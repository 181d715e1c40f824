// Package oracle reads Mangrove oracles and deploys new ones through the
// per-chain oracle factories.
package oracle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mangrovedao/vault-console/internal/chain"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/registry"
	"github.com/mangrovedao/vault-console/internal/ticks"
)

// Market is a Mangrove market as seen by a vault.
type Market struct {
	Base        chain.Token `json:"base"`
	Quote       chain.Token `json:"quote"`
	TickSpacing *big.Int    `json:"tickSpacing"`
}

func (m Market) String() string {
	return fmt.Sprintf("%s/%s", m.Base, m.Quote)
}

// Price is an oracle reading in both tick and human form.
type Price struct {
	Market Market  `json:"market"`
	Tick   int64   `json:"tick"`
	Price  float64 `json:"price"`
}

// ReadPrice reads token metadata and the oracle tick in one batch.
func ReadPrice(ctx context.Context, c *chain.Client, oracle, base, quote common.Address, tickSpacing *big.Int) (Price, error) {
	results, err := c.Aggregate(ctx, []chain.Call{
		chain.NewCall(base, registry.ERC20ABI, "decimals"),
		chain.NewCall(base, registry.ERC20ABI, "symbol"),
		chain.NewCall(quote, registry.ERC20ABI, "decimals"),
		chain.NewCall(quote, registry.ERC20ABI, "symbol"),
		chain.NewCall(oracle, registry.OracleABI, "tick"),
	})
	if err != nil {
		return Price{}, err
	}
	baseDec, err := chain.Uint8(results[0], 0)
	if err != nil {
		return Price{}, err
	}
	baseSym, err := chain.String(results[1], 0)
	if err != nil {
		return Price{}, err
	}
	quoteDec, err := chain.Uint8(results[2], 0)
	if err != nil {
		return Price{}, err
	}
	quoteSym, err := chain.String(results[3], 0)
	if err != nil {
		return Price{}, err
	}
	rawTick, err := chain.Big(results[4], 0)
	if err != nil {
		return Price{}, err
	}
	if !rawTick.IsInt64() || rawTick.Int64() > ticks.MaxTick || rawTick.Int64() < ticks.MinTick {
		return Price{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("oracle %s returned out of range tick %s", oracle.Hex(), rawTick))
	}
	if tickSpacing == nil {
		tickSpacing = big.NewInt(1)
	}
	market := Market{
		Base:        chain.Token{Address: base, Symbol: baseSym, Decimals: baseDec},
		Quote:       chain.Token{Address: quote, Symbol: quoteSym, Decimals: quoteDec},
		TickSpacing: new(big.Int).Set(tickSpacing),
	}
	tick := rawTick.Int64()
	return Price{Market: market, Tick: tick, Price: ticks.Price(tick, baseDec, quoteDec)}, nil
}
