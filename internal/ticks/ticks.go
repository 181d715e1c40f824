// Package ticks converts between Mangrove ticks and human prices and derives
// Kandel positions from a price range.
package ticks

import (
	"fmt"
	"math"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
)

const tickBase = 1.0001

// Price converts a tick into quote-per-base in human units.
func Price(tick int64, baseDecimals, quoteDecimals uint8) float64 {
	return math.Pow(tickBase, float64(tick)) * math.Pow10(int(baseDecimals)-int(quoteDecimals))
}

// Tick is the inverse of Price, without rounding.
func Tick(price float64, baseDecimals, quoteDecimals uint8) float64 {
	raw := price / math.Pow10(int(baseDecimals)-int(quoteDecimals))
	return math.Log(raw) / math.Log(tickBase)
}

// Rung is one price point of a Kandel ladder.
type Rung struct {
	Index int     `json:"index"`
	Tick  int64   `json:"tick"`
	Price float64 `json:"price"`
}

// Rungs lists tick_i = tickIndex0 + tickOffset*i for i in [0, pricePoints).
func Rungs(tickIndex0, tickOffset int64, pricePoints uint32, baseDecimals, quoteDecimals uint8) []Rung {
	out := make([]Rung, 0, pricePoints)
	for i := uint32(0); i < pricePoints; i++ {
		t := tickIndex0 + tickOffset*int64(i)
		out = append(out, Rung{Index: int(i), Tick: t, Price: Price(t, baseDecimals, quoteDecimals)})
	}
	return out
}

// Range describes a ladder request in human prices.
type Range struct {
	MinPrice      float64
	MaxPrice      float64
	PricePoints   uint32
	BaseDecimals  uint8
	QuoteDecimals uint8
	TickSpacing   int64
}

// RangeToPosition picks the ladder covering [MinPrice, MaxPrice]. The first
// rung is the largest tickSpacing multiple priced at or below MinPrice, and
// the offset is the smallest positive tickSpacing multiple that puts the
// last rung at or above MaxPrice.
func RangeToPosition(r Range) (tickIndex0 int64, tickOffset int64, err error) {
	if !(r.MinPrice > 0) || math.IsInf(r.MinPrice, 0) {
		return 0, 0, clierr.New(clierr.CodeValidation, "minimum price must be positive")
	}
	if !(r.MaxPrice > r.MinPrice) || math.IsInf(r.MaxPrice, 0) {
		return 0, 0, clierr.New(clierr.CodeValidation, "maximum price must be greater than minimum price")
	}
	if r.PricePoints < 2 {
		return 0, 0, clierr.New(clierr.CodeValidation, "price points must be at least 2")
	}
	if r.TickSpacing <= 0 {
		return 0, 0, clierr.New(clierr.CodeValidation, "tick spacing must be positive")
	}

	price := func(t int64) float64 { return Price(t, r.BaseDecimals, r.QuoteDecimals) }
	s := r.TickSpacing

	t0 := floorDiv(int64(math.Floor(Tick(r.MinPrice, r.BaseDecimals, r.QuoteDecimals))), s) * s
	for price(t0) > r.MinPrice {
		t0 -= s
	}
	for price(t0+s) <= r.MinPrice {
		t0 += s
	}

	n := int64(r.PricePoints - 1)
	span := Tick(r.MaxPrice, r.BaseDecimals, r.QuoteDecimals) - float64(t0)
	k := int64(math.Ceil(span/float64(n)/float64(s))) * s
	if k < s {
		k = s
	}
	for price(t0+n*k) < r.MaxPrice {
		k += s
	}
	for k > s && price(t0+n*(k-s)) >= r.MaxPrice {
		k -= s
	}
	if err := checkTickBounds(t0, t0+n*k); err != nil {
		return 0, 0, err
	}
	return t0, k, nil
}

// Mangrove ticks are 21-bit signed integers.
const (
	MinTick = -887272
	MaxTick = 887272
)

func checkTickBounds(lo, hi int64) error {
	if lo < MinTick || hi > MaxTick {
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("price range maps to ticks [%d, %d] outside [%d, %d]", lo, hi, MinTick, MaxTick))
	}
	return nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
