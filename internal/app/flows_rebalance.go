package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/prompt"
	"github.com/mangrovedao/vault-console/internal/providers"
	"github.com/mangrovedao/vault-console/internal/rebalance"
	"github.com/mangrovedao/vault-console/internal/vault"
)

const (
	sellBase  = "Sell base for quote"
	sellQuote = "Sell quote for base"
)

func (c *console) rebalance(ctx context.Context, st vault.State) error {
	v, err := c.writer("rebalance", st.Address)
	if err != nil {
		return err
	}
	routes, err := rebalance.Available(c.ss.entry, c.s.settings)
	if err != nil {
		return err
	}
	if len(routes) == 0 {
		return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no swap aggregator configured on %s", c.ss.chain.Name))
	}
	names := make([]string, len(routes))
	for i, r := range routes {
		names[i] = string(r.Type)
	}
	i, err := c.p.Select("Aggregator", names)
	if err != nil {
		return err
	}
	route := routes[i]
	agg, err := rebalance.NewAggregator(route, c.s.httpClient(), c.s.settings)
	if err != nil {
		return err
	}

	m := st.Market
	c.printf("vault balance: %s, %s\n", amount(m.Base, st.VaultBalance.Base), amount(m.Quote, st.VaultBalance.Quote))
	dir := []string{sellBase, sellQuote}
	d, err := c.p.Select("Direction", dir)
	if err != nil {
		return err
	}
	sell := dir[d] == sellBase
	sold, bought, balance := m.Quote, m.Base, st.VaultBalance.Quote
	if sell {
		sold, bought, balance = m.Base, m.Quote, st.VaultBalance.Base
	}
	if balance == nil || balance.Sign() == 0 {
		c.printf("the vault holds no idle %s\n", sold)
		return nil
	}
	amt, err := prompt.Amount(c.p, fmt.Sprintf("%s to sell", sold), sold, nil, balance)
	if err != nil {
		return err
	}

	hooks := rebalance.Hooks{
		ConfirmWhitelist: func(target common.Address) (bool, error) {
			return c.p.Confirm(fmt.Sprintf("%s is not whitelisted on the vault; whitelist it", target.Hex()), false)
		},
		ConfirmQuote: func(q providers.Quote, minIn *big.Int) (*big.Int, bool, error) {
			c.printf("%s quote: sell %s for %s", q.Provider, amount(sold, q.SellAmount), amount(bought, q.BuyAmount))
			if q.PriceImpact != "" {
				c.printf(" (price impact %s)", q.PriceImpact)
			}
			c.printf("\n")
			edited, err := prompt.Amount(c.p, fmt.Sprintf("Minimum %s to receive", bought), bought, minIn, q.BuyAmount)
			if err != nil {
				return nil, false, err
			}
			ok, err := c.p.Confirm("Submit the swap", false)
			return edited, ok, err
		},
	}
	orch := rebalance.New(v, agg, route.Contract, rebalance.WithLogger(c.log))
	res, err := orch.Run(ctx, st, rebalance.Request{Sell: sell, Amount: amt}, hooks)
	if err != nil {
		c.log.Debug("rebalance stopped", zap.String("step", string(res.Final())))
		return err
	}
	c.printf("swapped %s through %s, minimum in %s\n", amount(sold, amt), res.Target.Hex(), amount(bought, res.AmountInMin))
	return nil
}
