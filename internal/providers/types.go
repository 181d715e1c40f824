package providers

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mangrovedao/vault-console/internal/chain"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution"
	"github.com/mangrovedao/vault-console/internal/model"
	"github.com/mangrovedao/vault-console/internal/registry"
)

// Aggregator quotes a sale of vault funds and builds the calldata the vault
// hands to the aggregator's executor during swap.
type Aggregator interface {
	Info() model.ProviderInfo
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
	Build(ctx context.Context, q Quote, account common.Address) (SwapCall, error)
}

// QuoteRequest sells Amount base units of Sell for Buy on behalf of Vault.
type QuoteRequest struct {
	ChainID int64
	Vault   common.Address
	Sell    chain.Token
	Buy     chain.Token
	Amount  *big.Int
}

func (r QuoteRequest) Validate() error {
	if r.ChainID <= 0 {
		return clierr.New(clierr.CodeUsage, "quote needs a chain id")
	}
	if r.Amount == nil || r.Amount.Sign() <= 0 {
		return clierr.New(clierr.CodeValidation, "sell amount must be positive")
	}
	if r.Sell.Address == (common.Address{}) || r.Buy.Address == (common.Address{}) {
		return clierr.New(clierr.CodeValidation, "sell and buy tokens are required")
	}
	if r.Sell.Address == r.Buy.Address {
		return clierr.New(clierr.CodeValidation, "sell and buy tokens must differ")
	}
	return nil
}

// Quote is an aggregator's answer. BuyAmount is the expected amount of the
// bought token; Route is opaque and only meaningful to the same aggregator.
type Quote struct {
	Provider    registry.ProviderType `json:"provider"`
	Request     QuoteRequest          `json:"-"`
	SellAmount  *big.Int              `json:"sellAmount"`
	BuyAmount   *big.Int              `json:"buyAmount"`
	PriceImpact string                `json:"priceImpact,omitempty"`
	GasEstimate uint64                `json:"gasEstimate,omitempty"`
	Route       string                `json:"-"`
}

// SwapCall is the executor call passed to the vault's swap. Gas of zero
// leaves the limit to estimation.
type SwapCall struct {
	To    common.Address
	Data  []byte
	Value *big.Int
	Gas   uint64
}

// Numeric decodes a JSON number or numeric string.
type Numeric string

func (n *Numeric) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*n = ""
		return nil
	}
	*n = Numeric(strings.Trim(s, `"`))
	return nil
}

func (n Numeric) String() string { return string(n) }

// Uint64 returns the value or def when empty or not a whole number.
func (n Numeric) Uint64(def uint64) uint64 {
	v, ok := new(big.Float).SetString(string(n))
	if !ok || v.Sign() < 0 {
		return def
	}
	if !v.IsInt() || v.Cmp(maxGas) > 0 {
		return def
	}
	u, _ := v.Uint64()
	return u
}

var maxGas = new(big.Float).SetUint64(math.MaxUint64)

// ParseAmount reads a non-negative integer amount in decimal or 0x hex.
func ParseAmount(provider, field, v string) (*big.Int, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s response missing %s", provider, field))
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
		if s == "" {
			return new(big.Int), nil
		}
	}
	out, ok := new(big.Int).SetString(s, base)
	if !ok || out.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s response has invalid %s %q", provider, field, v))
	}
	return out, nil
}

// ParseTx converts an aggregator transaction into a SwapCall.
func ParseTx(provider, to, data, value string, gas uint64) (SwapCall, error) {
	if !common.IsHexAddress(to) || common.HexToAddress(to) == (common.Address{}) {
		return SwapCall{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s transaction has invalid target %q", provider, to))
	}
	calldata, err := execution.DecodeHex(data)
	if err != nil || len(calldata) < 4 {
		return SwapCall{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s transaction has invalid calldata", provider))
	}
	v := new(big.Int)
	if strings.TrimSpace(value) != "" {
		if v, err = ParseAmount(provider, "value", value); err != nil {
			return SwapCall{}, err
		}
	}
	return SwapCall{To: common.HexToAddress(to), Data: calldata, Value: v, Gas: gas}, nil
}

// SameAddress compares a response address with a requested one.
func SameAddress(got string, want common.Address) bool {
	return common.IsHexAddress(got) && common.HexToAddress(got) == want
}

// Info describes a swap aggregator.
func Info(t registry.ProviderType, endpoint string) model.ProviderInfo {
	return model.ProviderInfo{
		Name:         string(t),
		Type:         "swap",
		Endpoint:     endpoint,
		Capabilities: []string{"swap.quote", "swap.build"},
	}
}
