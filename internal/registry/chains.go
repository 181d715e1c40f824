package registry

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Multicall3 is deployed at the same address on every supported chain.
var Multicall3 = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// OpenOceanExchange is the OpenOcean exchange proxy on Arbitrum and Base.
var OpenOceanExchange = common.HexToAddress("0x6352a56caadC4F1E25CD6c75970Fa768A3304e64")

// OracleFamily names a generation of oracle factory.
type OracleFamily string

const (
	OracleChainlinkV1 OracleFamily = "chainlinkv1"
	OracleChainlinkV2 OracleFamily = "chainlinkv2"
	OracleDiaV1       OracleFamily = "diav1"
	OracleCombinerV1  OracleFamily = "combinerv1"
)

// ProviderType names a swap aggregator.
type ProviderType string

const (
	ProviderOdos      ProviderType = "odos"
	ProviderOpenOcean ProviderType = "openocean"
	ProviderKame      ProviderType = "kame"
	ProviderSymphony  ProviderType = "symphony"
)

// RebalanceProvider is one aggregator route available on a chain.
type RebalanceProvider struct {
	Type     ProviderType
	QuoteURL string
	BuildURL string
	// Contract is the executor the vault hands tokens to during swap.
	Contract common.Address
}

// Entry is the static deployment data of one chain.
type Entry struct {
	ChainID          int64
	PublicRPC        string
	VaultFactory     common.Address
	MintHelper       common.Address
	Seeders          map[string]common.Address
	OracleFactories  map[OracleFamily]common.Address
	ChainlinkFeedURL string
	Rebalance        []RebalanceProvider
}

var entries = map[int64]Entry{
	42161: {
		ChainID:      42161,
		PublicRPC:    "https://arb1.arbitrum.io/rpc",
		VaultFactory: common.HexToAddress("0x6B82CE8a45Ce9BeF9B20c3D65747356a5cDab41A"),
		MintHelper:   common.HexToAddress("0xC39b5Fb38a8AcBFFB51D876f0C0DA0325b5cD440"),
		Seeders: map[string]common.Address{
			"simple": common.HexToAddress("0x89139Bed90B1Bfb5501F27bE6D6f9901aE35745D"),
			"aave":   common.HexToAddress("0x55B12De431C6e355b56b79472a3632faec58FB5a"),
		},
		OracleFactories: map[OracleFamily]common.Address{
			OracleChainlinkV1: common.HexToAddress("0x31c47E3F442F521E1c65b5b626aC2e978C1f2587"),
		},
		ChainlinkFeedURL: "https://reference-data-directory.vercel.app/feeds-ethereum-mainnet-arbitrum-1.json",
		Rebalance: []RebalanceProvider{
			{Type: ProviderOdos, QuoteURL: OdosQuoteURL, BuildURL: OdosAssembleURL, Contract: common.HexToAddress("0xa669e7A0d4b3e4Fa48af2dE86BD4CD7126Be4e13")},
			{Type: ProviderOpenOcean, QuoteURL: OpenOceanBaseURL, BuildURL: OpenOceanBaseURL, Contract: OpenOceanExchange},
		},
	},
	8453: {
		ChainID:      8453,
		PublicRPC:    "https://mainnet.base.org",
		VaultFactory: common.HexToAddress("0xDA5ECD0eB8F9bA979A51A44a0C9Ab57F928CcE79"),
		MintHelper:   common.HexToAddress("0x2AE6F95F0AC61441D9eC9290000F81087567cDa1"),
		Seeders: map[string]common.Address{
			"simple": common.HexToAddress("0x808bC04030bC558C99E6844e877bb22D166A089A"),
			"aave":   common.HexToAddress("0x095854c8C4591Fb0a413615B9a366B4Dd69b9B1D"),
		},
		OracleFactories: map[OracleFamily]common.Address{
			OracleChainlinkV1: common.HexToAddress("0x9d05c7A303efEbD215B86B57Da2Fc671039E5712"),
			OracleChainlinkV2: common.HexToAddress("0x656A6ac038D1686D4f80427ddaF59b352f960123"),
			OracleDiaV1:       common.HexToAddress("0x5297561cb9df1D2Ff83698C6fc51aBeF24D39560"),
			OracleCombinerV1:  common.HexToAddress("0xb898C4a986a1e4Fd31b9818772F9EC16dbf3EFED"),
		},
		ChainlinkFeedURL: "https://reference-data-directory.vercel.app/feeds-ethereum-mainnet-base-1.json",
		Rebalance: []RebalanceProvider{
			{Type: ProviderOdos, QuoteURL: OdosQuoteURL, BuildURL: OdosAssembleURL, Contract: common.HexToAddress("0x19cEeAd7105607Cd444F5ad10dd51356436095a1")},
			{Type: ProviderOpenOcean, QuoteURL: OpenOceanBaseURL, BuildURL: OpenOceanBaseURL, Contract: OpenOceanExchange},
		},
	},
}

// Lookup returns a copy of the chain entry so callers may extend it.
func Lookup(chainID int64) (Entry, bool) {
	e, ok := entries[chainID]
	if !ok {
		return Entry{}, false
	}
	out := e
	out.Seeders = make(map[string]common.Address, len(e.Seeders))
	for k, v := range e.Seeders {
		out.Seeders[k] = v
	}
	out.OracleFactories = make(map[OracleFamily]common.Address, len(e.OracleFactories))
	for k, v := range e.OracleFactories {
		out.OracleFactories[k] = v
	}
	out.Rebalance = append([]RebalanceProvider(nil), e.Rebalance...)
	return out, true
}

// SeederNames lists the seeder keys in stable order.
func (e Entry) SeederNames() []string {
	out := make([]string, 0, len(e.Seeders))
	for k := range e.Seeders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsSeeder reports whether addr is one of the chain's seeders.
func (e Entry) IsSeeder(addr common.Address) bool {
	for _, s := range e.Seeders {
		if s == addr {
			return true
		}
	}
	return false
}

// Families lists the oracle families deployed on the chain in stable order.
func (e Entry) Families() []OracleFamily {
	out := make([]OracleFamily, 0, len(e.OracleFactories))
	for k := range e.OracleFactories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Provider finds the configured route for an aggregator type.
func (e Entry) Provider(t ProviderType) (RebalanceProvider, bool) {
	for _, p := range e.Rebalance {
		if p.Type == t {
			return p, true
		}
	}
	return RebalanceProvider{}, false
}

// RPCURL picks the endpoint a session dials: a configured override wins over
// the chain's public RPC. Overrides must be http(s) or ws(s) URLs.
func RPCURL(override string, chainID int64) (string, error) {
	if raw := strings.TrimSpace(override); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("invalid rpc url %q", raw)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "ws", "wss":
			return raw, nil
		}
		return "", fmt.Errorf("unsupported rpc scheme %q", u.Scheme)
	}
	if e, ok := entries[chainID]; ok && e.PublicRPC != "" {
		return e.PublicRPC, nil
	}
	return "", fmt.Errorf("no public rpc known for chain id %d; provide --rpc-url", chainID)
}
