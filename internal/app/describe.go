package app

import (
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/mangrovedao/vault-console/internal/chain"
	"github.com/mangrovedao/vault-console/internal/id"
	"github.com/mangrovedao/vault-console/internal/vault"
)

var heading = color.New(color.Bold).SprintFunc()

func amount(t chain.Token, v *big.Int) string {
	if v == nil {
		v = new(big.Int)
	}
	return t.Format(v) + " " + t.String()
}

// describeState prints a vault the way the View vault menu shows it.
func describeState(w io.Writer, st vault.State, provision *big.Int) {
	m := st.Market
	fmt.Fprintf(w, "%s %s/%s (tick spacing %s)\n", heading("Market:"), m.Base, m.Quote, m.TickSpacing)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, heading("Fees"))
	fmt.Fprintf(tw, "  performance\t%s\n", vault.FormatPercent(st.Fees.PerformanceFee))
	fmt.Fprintf(tw, "  management\t%s per year\n", vault.FormatPercent(st.Fees.ManagementFee))
	fmt.Fprintf(tw, "  recipient\t%s\n", st.Fees.FeeRecipient.Hex())

	p := st.Position
	fmt.Fprintln(tw, heading("Position"))
	fmt.Fprintf(tw, "  tick index 0\t%d\n", p.TickIndex0)
	fmt.Fprintf(tw, "  tick offset\t%d\n", p.TickOffset)
	fmt.Fprintf(tw, "  gas price\t%d\n", p.Params.Gasprice)
	fmt.Fprintf(tw, "  gasreq\t%d\n", p.Params.Gasreq)
	fmt.Fprintf(tw, "  step size\t%d\n", p.Params.StepSize)
	fmt.Fprintf(tw, "  price points\t%d\n", p.Params.PricePoints)
	fmt.Fprintf(tw, "  funds state\t%s\n", p.FundsState.Describe())

	total := st.TotalBalance()
	fmt.Fprintln(tw, heading("Balances")+"\tbase\tquote")
	fmt.Fprintf(tw, "  kandel\t%s\t%s\n", amount(m.Base, st.KandelBalance.Base), amount(m.Quote, st.KandelBalance.Quote))
	fmt.Fprintf(tw, "  vault\t%s\t%s\n", amount(m.Base, st.VaultBalance.Base), amount(m.Quote, st.VaultBalance.Quote))
	fmt.Fprintf(tw, "  total\t%s\t%s\n", amount(m.Base, total.Base), amount(m.Quote, total.Quote))

	fmt.Fprintln(tw, heading("Addresses"))
	fmt.Fprintf(tw, "  vault\t%s\n", st.Address.Hex())
	fmt.Fprintf(tw, "  oracle\t%s\n", st.Oracle.Hex())
	fmt.Fprintf(tw, "  owner\t%s\n", st.Owner.Hex())
	fmt.Fprintf(tw, "  kandel\t%s\n", st.Kandel.Hex())
	if st.BaseVault != nil {
		fmt.Fprintf(tw, "  base vault\t%s\n", st.BaseVault.Hex())
	}
	if st.QuoteVault != nil {
		fmt.Fprintf(tw, "  quote vault\t%s\n", st.QuoteVault.Hex())
	}
	if provision != nil {
		fmt.Fprintf(tw, "  provision\t%s ETH\n", id.FormatUnits(provision, 18))
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "%s %g %s per %s (tick %d)\n", heading("Current price:"), st.CurrentPrice, m.Quote, m.Base, st.CurrentTick)

	asks, bids := st.Offers.Live()
	fmt.Fprintf(w, "%s %d live asks, %d live bids\n", heading("Kandel offers:"), asks, bids)
	if asks+bids == 0 {
		return
	}
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  side\tindex\tid\ttick\tprice\tgives")
	for _, side := range [][]vault.Offer{st.Offers.Asks, st.Offers.Bids} {
		for _, o := range side {
			if !o.Live {
				continue
			}
			gives := amount(m.Quote, o.Gives)
			if o.Side == vault.Ask {
				gives = amount(m.Base, o.Gives)
			}
			fmt.Fprintf(tw, "  %s\t%d\t%s\t%d\t%g\t%s\n", o.Side, o.Index, o.ID, o.Tick, o.Price, gives)
		}
	}
	_ = tw.Flush()
}

// describeRungs prints a ladder preview before a position change.
func describeRungs(w io.Writer, st vault.State, p vault.Position) {
	rungs := p.Rungs(st.Market)
	if len(rungs) == 0 {
		fmt.Fprintln(w, "no price points, the ladder will be empty")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  index\ttick\tprice")
	for _, r := range rungs {
		fmt.Fprintf(tw, "  %d\t%d\t%g\n", r.Index, r.Tick, r.Price)
	}
	_ = tw.Flush()
}
