package oracle

import (
	"fmt"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
)

// HopDecimals are the decimals one feed slot converts from (Base) and to
// (Quote).
type HopDecimals struct {
	Base  uint8 `json:"base"`
	Quote uint8 `json:"quote"`
}

// ChainDecimals holds the decimals of the four slots in the order
// baseFeed1, baseFeed2, quoteFeed1, quoteFeed2. A nil slot is unused.
type ChainDecimals [4]*HopDecimals

// AssignDecimals returns the canonical decimals for a feed chain of nBase
// base hops and nQuote quote hops. Intermediate hops use the intermediary
// decimals so that each hop's output feeds the next one's input.
func AssignDecimals(baseDec, quoteDec, intermediary uint8, nBase, nQuote int) (ChainDecimals, error) {
	var out ChainDecimals
	if nBase < 0 || nBase > 2 || nQuote < 0 || nQuote > 2 {
		return out, clierr.New(clierr.CodeValidation, "each side takes between 0 and 2 feeds")
	}
	if nBase+nQuote == 0 {
		return out, errNoFeed
	}
	if intermediary == 0 {
		return out, clierr.New(clierr.CodeValidation, "intermediary decimals must be positive")
	}
	pick := func(cond bool, yes, no uint8) uint8 {
		if cond {
			return yes
		}
		return no
	}
	if nBase >= 1 {
		out[0] = &HopDecimals{Base: baseDec, Quote: pick(nBase > 1 || nQuote > 0, intermediary, quoteDec)}
	}
	if nBase >= 2 {
		out[1] = &HopDecimals{Base: intermediary, Quote: pick(nQuote > 0, intermediary, quoteDec)}
	}
	// Quote feeds are read inverted, so their Quote side faces the base.
	if nQuote >= 1 {
		out[2] = &HopDecimals{Quote: pick(nBase > 0, intermediary, baseDec), Base: pick(nQuote > 1, intermediary, quoteDec)}
	}
	if nQuote >= 2 {
		out[3] = &HopDecimals{Quote: intermediary, Base: quoteDec}
	}
	return out, nil
}

// Counts reports how many base and quote slots are in use. Slot 2 of a
// side without slot 1 is an error.
func (c ChainDecimals) Counts() (nBase, nQuote int, err error) {
	if c[1] != nil && c[0] == nil {
		return 0, 0, clierr.New(clierr.CodeValidation, "baseFeed2 is set without baseFeed1")
	}
	if c[3] != nil && c[2] == nil {
		return 0, 0, clierr.New(clierr.CodeValidation, "quoteFeed2 is set without quoteFeed1")
	}
	for i, s := range c {
		if s == nil {
			continue
		}
		if i < 2 {
			nBase++
		} else {
			nQuote++
		}
	}
	return nBase, nQuote, nil
}

// CheckDecimalChaining verifies a configured chain against the canonical
// assignment without touching the chain. The first wrong hop is named.
func CheckDecimalChaining(baseDec, quoteDec, intermediary uint8, got ChainDecimals) error {
	nBase, nQuote, err := got.Counts()
	if err != nil {
		return err
	}
	want, err := AssignDecimals(baseDec, quoteDec, intermediary, nBase, nQuote)
	if err != nil {
		return err
	}
	for i := range want {
		if want[i] == nil {
			continue
		}
		if *got[i] != *want[i] {
			return clierr.New(clierr.CodeValidation, fmt.Sprintf("%s decimals are base=%d quote=%d, expected base=%d quote=%d", slotNames[i], got[i].Base, got[i].Quote, want[i].Base, want[i].Quote))
		}
	}
	return nil
}

// Decimals extracts the configured decimals of the Chainlink slots.
func (f ChainlinkFeeds) Decimals() ChainDecimals {
	var out ChainDecimals
	for i, s := range f.slots() {
		if s != nil && s.Feed != [20]byte{} {
			out[i] = &HopDecimals{Base: s.BaseDecimals, Quote: s.QuoteDecimals}
		}
	}
	return out
}

func (f DiaFeeds) Decimals() ChainDecimals {
	var out ChainDecimals
	for i, s := range f.slots() {
		if s != nil && s.Oracle != [20]byte{} {
			out[i] = &HopDecimals{Base: s.BaseDecimals, Quote: s.QuoteDecimals}
		}
	}
	return out
}

// ChainlinkChain assigns canonical decimals to the given feed addresses.
// Slots are filled in order; zero addresses are skipped.
func ChainlinkChain(baseDec, quoteDec, intermediary uint8, base, quote []ChainlinkFeed) (ChainlinkFeeds, error) {
	d, err := AssignDecimals(baseDec, quoteDec, intermediary, len(base), len(quote))
	if err != nil {
		return ChainlinkFeeds{}, err
	}
	slot := func(i int, feed ChainlinkFeed) *ChainlinkFeed {
		feed.BaseDecimals, feed.QuoteDecimals = d[i].Base, d[i].Quote
		return &feed
	}
	var out ChainlinkFeeds
	if len(base) > 0 {
		out.BaseFeed1 = slot(0, base[0])
	}
	if len(base) > 1 {
		out.BaseFeed2 = slot(1, base[1])
	}
	if len(quote) > 0 {
		out.QuoteFeed1 = slot(2, quote[0])
	}
	if len(quote) > 1 {
		out.QuoteFeed2 = slot(3, quote[1])
	}
	return out, nil
}

// DiaChain is ChainlinkChain for DIA feeds; price decimals are kept.
func DiaChain(baseDec, quoteDec, intermediary uint8, base, quote []DiaFeed) (DiaFeeds, error) {
	d, err := AssignDecimals(baseDec, quoteDec, intermediary, len(base), len(quote))
	if err != nil {
		return DiaFeeds{}, err
	}
	slot := func(i int, feed DiaFeed) *DiaFeed {
		feed.BaseDecimals, feed.QuoteDecimals = d[i].Base, d[i].Quote
		return &feed
	}
	var out DiaFeeds
	if len(base) > 0 {
		out.BaseFeed1 = slot(0, base[0])
	}
	if len(base) > 1 {
		out.BaseFeed2 = slot(1, base[1])
	}
	if len(quote) > 0 {
		out.QuoteFeed1 = slot(2, quote[0])
	}
	if len(quote) > 1 {
		out.QuoteFeed2 = slot(3, quote[1])
	}
	return out, nil
}
