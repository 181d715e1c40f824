package oracle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/registry"
)

// ChainlinkFeed is one Chainlink price hop and the decimals it converts
// between.
type ChainlinkFeed struct {
	Feed          common.Address `json:"feed"`
	BaseDecimals  uint8          `json:"baseDecimals"`
	QuoteDecimals uint8          `json:"quoteDecimals"`
}

// DiaFeed is one DIA price hop. Key is the DIA asset key, packed into bytes32.
type DiaFeed struct {
	Oracle        common.Address `json:"oracle"`
	Key           string         `json:"key"`
	PriceDecimals uint8          `json:"priceDecimals"`
	BaseDecimals  uint8          `json:"baseDecimals"`
	QuoteDecimals uint8          `json:"quoteDecimals"`
}

// VaultFeed converts an ERC-4626 share into its asset using a sample amount.
type VaultFeed struct {
	Vault            common.Address `json:"vault"`
	ConversionSample *big.Int       `json:"conversionSample"`
}

// ChainlinkFeeds are the four hop slots. A nil slot is absent.
type ChainlinkFeeds struct {
	BaseFeed1  *ChainlinkFeed `json:"baseFeed1,omitempty"`
	BaseFeed2  *ChainlinkFeed `json:"baseFeed2,omitempty"`
	QuoteFeed1 *ChainlinkFeed `json:"quoteFeed1,omitempty"`
	QuoteFeed2 *ChainlinkFeed `json:"quoteFeed2,omitempty"`
}

type DiaFeeds struct {
	BaseFeed1  *DiaFeed `json:"baseFeed1,omitempty"`
	BaseFeed2  *DiaFeed `json:"baseFeed2,omitempty"`
	QuoteFeed1 *DiaFeed `json:"quoteFeed1,omitempty"`
	QuoteFeed2 *DiaFeed `json:"quoteFeed2,omitempty"`
}

type VaultFeeds struct {
	BaseVault  *VaultFeed `json:"baseVault,omitempty"`
	QuoteVault *VaultFeed `json:"quoteVault,omitempty"`
}

// Args describes an oracle of one factory family.
type Args interface {
	Family() registry.OracleFamily
	// Validate checks that at least one slot is set and every set slot is
	// well formed.
	Validate() error
	factoryArgs(salt [32]byte) ([]any, error)
}

type ChainlinkV1Args struct {
	Feeds ChainlinkFeeds `json:"feeds"`
}

type ChainlinkV2Args struct {
	Feeds  ChainlinkFeeds `json:"feeds"`
	Vaults VaultFeeds     `json:"vaults"`
}

type DiaV1Args struct {
	Feeds  DiaFeeds   `json:"feeds"`
	Vaults VaultFeeds `json:"vaults"`
}

// CombinerV1Args combines up to four existing oracles.
type CombinerV1Args struct {
	Oracles [4]common.Address `json:"oracles"`
}

func (ChainlinkV1Args) Family() registry.OracleFamily { return registry.OracleChainlinkV1 }
func (ChainlinkV2Args) Family() registry.OracleFamily { return registry.OracleChainlinkV2 }
func (DiaV1Args) Family() registry.OracleFamily       { return registry.OracleDiaV1 }
func (CombinerV1Args) Family() registry.OracleFamily  { return registry.OracleCombinerV1 }

var errNoFeed = clierr.New(clierr.CodeValidation, "no feed provided at all")

func (a ChainlinkV1Args) Validate() error {
	if a.Feeds.count() == 0 {
		return errNoFeed
	}
	return a.Feeds.validate()
}

func (a ChainlinkV2Args) Validate() error {
	if a.Feeds.count()+a.Vaults.count() == 0 {
		return errNoFeed
	}
	if err := a.Feeds.validate(); err != nil {
		return err
	}
	return a.Vaults.validate()
}

func (a DiaV1Args) Validate() error {
	if a.Feeds.count()+a.Vaults.count() == 0 {
		return errNoFeed
	}
	if err := a.Feeds.validate(); err != nil {
		return err
	}
	return a.Vaults.validate()
}

func (a CombinerV1Args) Validate() error {
	for _, o := range a.Oracles {
		if o != (common.Address{}) {
			return nil
		}
	}
	return errNoFeed
}

func (a ChainlinkV1Args) factoryArgs(salt [32]byte) ([]any, error) {
	f := a.Feeds.packed()
	return []any{f[0], f[1], f[2], f[3], salt}, nil
}

func (a ChainlinkV2Args) factoryArgs(salt [32]byte) ([]any, error) {
	f := a.Feeds.packed()
	v := a.Vaults.packed()
	return []any{f[0], f[1], f[2], f[3], v[0], v[1], salt}, nil
}

func (a DiaV1Args) factoryArgs(salt [32]byte) ([]any, error) {
	f, err := a.Feeds.packed()
	if err != nil {
		return nil, err
	}
	v := a.Vaults.packed()
	return []any{f[0], f[1], f[2], f[3], v[0], v[1], salt}, nil
}

func (a CombinerV1Args) factoryArgs(salt [32]byte) ([]any, error) {
	return []any{a.Oracles[0], a.Oracles[1], a.Oracles[2], a.Oracles[3], salt}, nil
}

// ABI tuple shapes. Field names follow the factory ABI components.
type chainlinkFeedArg struct {
	Feed          common.Address
	BaseDecimals  *big.Int
	QuoteDecimals *big.Int
}

type diaFeedArg struct {
	Oracle        common.Address
	Key           [32]byte
	PriceDecimals *big.Int
	BaseDecimals  *big.Int
	QuoteDecimals *big.Int
}

type vaultFeedArg struct {
	Vault            common.Address
	ConversionSample *big.Int
}

func (f ChainlinkFeeds) slots() [4]*ChainlinkFeed {
	return [4]*ChainlinkFeed{f.BaseFeed1, f.BaseFeed2, f.QuoteFeed1, f.QuoteFeed2}
}

func (f ChainlinkFeeds) count() int {
	n := 0
	for _, s := range f.slots() {
		if s != nil && s.Feed != (common.Address{}) {
			n++
		}
	}
	return n
}

func (f ChainlinkFeeds) validate() error {
	for i, s := range f.slots() {
		if s != nil && s.Feed == (common.Address{}) && (s.BaseDecimals != 0 || s.QuoteDecimals != 0) {
			return clierr.New(clierr.CodeValidation, fmt.Sprintf("%s has decimals but no feed address", slotNames[i]))
		}
	}
	return nil
}

func (f ChainlinkFeeds) packed() [4]chainlinkFeedArg {
	var out [4]chainlinkFeedArg
	for i, s := range f.slots() {
		out[i] = chainlinkFeedArg{BaseDecimals: new(big.Int), QuoteDecimals: new(big.Int)}
		if s == nil {
			continue
		}
		out[i] = chainlinkFeedArg{
			Feed:          s.Feed,
			BaseDecimals:  big.NewInt(int64(s.BaseDecimals)),
			QuoteDecimals: big.NewInt(int64(s.QuoteDecimals)),
		}
	}
	return out
}

func (f DiaFeeds) slots() [4]*DiaFeed {
	return [4]*DiaFeed{f.BaseFeed1, f.BaseFeed2, f.QuoteFeed1, f.QuoteFeed2}
}

func (f DiaFeeds) count() int {
	n := 0
	for _, s := range f.slots() {
		if s != nil && s.Oracle != (common.Address{}) {
			n++
		}
	}
	return n
}

func (f DiaFeeds) validate() error {
	for i, s := range f.slots() {
		if s == nil {
			continue
		}
		if _, err := PackDiaKey(s.Key); err != nil {
			return clierr.Wrap(clierr.CodeValidation, slotNames[i], err)
		}
	}
	return nil
}

func (f DiaFeeds) packed() ([4]diaFeedArg, error) {
	var out [4]diaFeedArg
	for i, s := range f.slots() {
		out[i] = diaFeedArg{PriceDecimals: new(big.Int), BaseDecimals: new(big.Int), QuoteDecimals: new(big.Int)}
		if s == nil {
			continue
		}
		key, err := PackDiaKey(s.Key)
		if err != nil {
			return out, err
		}
		out[i] = diaFeedArg{
			Oracle:        s.Oracle,
			Key:           key,
			PriceDecimals: big.NewInt(int64(s.PriceDecimals)),
			BaseDecimals:  big.NewInt(int64(s.BaseDecimals)),
			QuoteDecimals: big.NewInt(int64(s.QuoteDecimals)),
		}
	}
	return out, nil
}

func (v VaultFeeds) count() int {
	n := 0
	for _, s := range []*VaultFeed{v.BaseVault, v.QuoteVault} {
		if s != nil && s.Vault != (common.Address{}) {
			n++
		}
	}
	return n
}

func (v VaultFeeds) validate() error {
	for i, s := range []*VaultFeed{v.BaseVault, v.QuoteVault} {
		if s == nil || s.Vault == (common.Address{}) {
			continue
		}
		if s.ConversionSample == nil || s.ConversionSample.Sign() <= 0 {
			return clierr.New(clierr.CodeValidation, fmt.Sprintf("%s needs a positive conversion sample", []string{"baseVault", "quoteVault"}[i]))
		}
	}
	return nil
}

func (v VaultFeeds) packed() [2]vaultFeedArg {
	var out [2]vaultFeedArg
	for i, s := range []*VaultFeed{v.BaseVault, v.QuoteVault} {
		out[i] = vaultFeedArg{ConversionSample: new(big.Int)}
		if s == nil {
			continue
		}
		sample := new(big.Int)
		if s.ConversionSample != nil {
			sample.Set(s.ConversionSample)
		}
		out[i] = vaultFeedArg{Vault: s.Vault, ConversionSample: sample}
	}
	return out
}

var slotNames = [4]string{"baseFeed1", "baseFeed2", "quoteFeed1", "quoteFeed2"}

// PackDiaKey packs a DIA asset key as its UTF-8 bytes right-padded to 32.
func PackDiaKey(key string) ([32]byte, error) {
	var out [32]byte
	if len(key) > len(out) {
		return out, clierr.New(clierr.CodeValidation, fmt.Sprintf("dia key %q is %d bytes, at most 32 allowed", key, len(key)))
	}
	copy(out[:], key)
	return out, nil
}
