// Package vault reads and drives Mangrove Vaults: batched state reads,
// position and fee edits, liquidity, provisions and swaps.
package vault

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/oracle"
	"github.com/mangrovedao/vault-console/internal/ticks"
)

// FeePrecision scales fee fractions into the vault's integer encoding.
const FeePrecision = 10_000

// TypeERC4626 marks vaults that park idle funds in ERC-4626 vaults.
const TypeERC4626 = "erc4626"

// FundsState says where the vault keeps its liquidity.
type FundsState uint8

const (
	FundsVault FundsState = iota
	FundsPassive
	FundsActive
)

func (s FundsState) String() string {
	switch s {
	case FundsVault:
		return "Vault"
	case FundsPassive:
		return "Passive"
	case FundsActive:
		return "Active"
	default:
		return fmt.Sprintf("FundsState(%d)", uint8(s))
	}
}

// Describe explains the state to an operator.
func (s FundsState) Describe() string {
	switch s {
	case FundsVault:
		return "Vault (funds will stay in vault)"
	case FundsPassive:
		return "Passive (funds will be on the kandel contract with no active position)"
	case FundsActive:
		return "Active (funds will be on the kandel contract with an active position)"
	default:
		return s.String()
	}
}

// ParseFundsState accepts the enum value or its name.
func ParseFundsState(v string) (FundsState, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "vault":
		return FundsVault, nil
	case "1", "passive":
		return FundsPassive, nil
	case "2", "active":
		return FundsActive, nil
	}
	return 0, clierr.New(clierr.CodeValidation, fmt.Sprintf("unknown funds state %q", v))
}

// Params are the Kandel parameters. Zero gasprice or gasreq keeps the
// current or default value.
type Params struct {
	Gasprice    uint32 `json:"gasprice"`
	Gasreq      uint32 `json:"gasreq"`
	StepSize    uint32 `json:"stepSize"`
	PricePoints uint32 `json:"pricePoints"`
}

type Position struct {
	TickIndex0 int64      `json:"tickIndex0"`
	TickOffset int64      `json:"tickOffset"`
	Params     Params     `json:"params"`
	FundsState FundsState `json:"fundsState"`
}

// Rungs lists the ladder prices; empty when pricePoints is zero.
func (p Position) Rungs(m oracle.Market) []ticks.Rung {
	return ticks.Rungs(p.TickIndex0, p.TickOffset, p.Params.PricePoints, m.Base.Decimals, m.Quote.Decimals)
}

// FeeData holds fees as fractions (0.15 is 15%). The management fee is
// annual.
type FeeData struct {
	PerformanceFee float64        `json:"performanceFee"`
	ManagementFee  float64        `json:"managementFee"`
	FeeRecipient   common.Address `json:"feeRecipient"`
}

// EncodeFee converts a decimal fraction such as "0.015" into the vault's
// integer fee. Values that are not exact multiples of 1/FeePrecision or
// fall outside [0, 1] are rejected.
func EncodeFee(fraction string) (uint16, error) {
	s := strings.TrimSpace(fraction)
	r, ok := new(big.Rat).SetString(s)
	if !ok || s == "" {
		return 0, clierr.New(clierr.CodeValidation, fmt.Sprintf("invalid fee %q", fraction))
	}
	r.Mul(r, big.NewRat(FeePrecision, 1))
	if !r.IsInt() {
		return 0, clierr.New(clierr.CodeValidation, fmt.Sprintf("fee %s is not a multiple of 1/%d", s, FeePrecision))
	}
	n := r.Num()
	if n.Sign() < 0 || n.Cmp(big.NewInt(FeePrecision)) > 0 {
		return 0, clierr.New(clierr.CodeValidation, fmt.Sprintf("fee %s must be between 0 and 1", s))
	}
	return uint16(n.Uint64()), nil
}

// EncodeFeeFraction is EncodeFee for an already parsed fraction, using its
// shortest decimal form.
func EncodeFeeFraction(f float64) (uint16, error) {
	return EncodeFee(strconv.FormatFloat(f, 'f', -1, 64))
}

func DecodeFee(v uint16) float64 {
	return float64(v) / FeePrecision
}

// FormatPercent renders a fraction as a percentage, e.g. 0.015 -> "1.5%".
func FormatPercent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', -1, 64) + "%"
}

// Balance holds raw base and quote amounts.
type Balance struct {
	Base  *big.Int `json:"base"`
	Quote *big.Int `json:"quote"`
}

// Side of the Kandel book.
type Side uint8

const (
	Ask Side = iota
	Bid
)

func (s Side) String() string {
	if s == Ask {
		return "ask"
	}
	return "bid"
}

// Offer is one ladder slot of the Kandel book.
type Offer struct {
	Side  Side     `json:"side"`
	Index int      `json:"index"`
	ID    *big.Int `json:"id"`
	Tick  int64    `json:"tick"`
	Gives *big.Int `json:"gives"`
	// Price is quote per base for both sides.
	Price float64 `json:"price"`
	Live  bool    `json:"live"`
}

// Ladder is the Kandel book by side, indexed like the position's rungs.
type Ladder struct {
	Asks []Offer `json:"asks"`
	Bids []Offer `json:"bids"`
}

// Live counts live offers on both sides.
func (l Ladder) Live() (asks, bids int) {
	for _, o := range l.Asks {
		if o.Live {
			asks++
		}
	}
	for _, o := range l.Bids {
		if o.Live {
			bids++
		}
	}
	return asks, bids
}

// State is everything the console shows about a vault.
type State struct {
	Address       common.Address  `json:"address"`
	Type          string          `json:"type,omitempty"`
	Fees          FeeData         `json:"feeData"`
	Position      Position        `json:"position"`
	KandelBalance Balance         `json:"kandelBalance"`
	VaultBalance  Balance         `json:"vaultBalance"`
	Market        oracle.Market   `json:"market"`
	Oracle        common.Address  `json:"oracle"`
	CurrentPrice  float64         `json:"currentPrice"`
	CurrentTick   int64           `json:"currentTick"`
	Owner         common.Address  `json:"owner"`
	Kandel        common.Address  `json:"kandel"`
	Offers        Ladder          `json:"offers"`
	BaseVault     *common.Address `json:"baseVault,omitempty"`
	QuoteVault    *common.Address `json:"quoteVault,omitempty"`
}

// TotalBalance sums the Kandel and vault balances.
func (s State) TotalBalance() Balance {
	return Balance{
		Base:  new(big.Int).Add(orZero(s.KandelBalance.Base), orZero(s.VaultBalance.Base)),
		Quote: new(big.Int).Add(orZero(s.KandelBalance.Quote), orZero(s.VaultBalance.Quote)),
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// RebalanceArgs are the arguments of the vault's swap entry point.
type RebalanceArgs struct {
	Target      common.Address `json:"target"`
	Data        []byte         `json:"data"`
	AmountOut   *big.Int       `json:"amountOut"`
	AmountInMin *big.Int       `json:"amountInMin"`
	Sell        bool           `json:"sell"`
	Gas         uint64         `json:"gas,omitempty"`
}
