package rebalance

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mangrovedao/vault-console/internal/config"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/httpx"
	"github.com/mangrovedao/vault-console/internal/providers"
	"github.com/mangrovedao/vault-console/internal/providers/kame"
	"github.com/mangrovedao/vault-console/internal/providers/odos"
	"github.com/mangrovedao/vault-console/internal/providers/openocean"
	"github.com/mangrovedao/vault-console/internal/providers/symphony"
	"github.com/mangrovedao/vault-console/internal/registry"
)

// Available lists the aggregators usable on the entry's chain. Registry
// routes come first; Kame and Symphony are added when settings name their
// executor contract for the chain. Configured contracts replace the
// registry's.
func Available(entry registry.Entry, s config.Settings) ([]registry.RebalanceProvider, error) {
	out := make([]registry.RebalanceProvider, 0, len(entry.Rebalance)+2)
	seen := map[registry.ProviderType]bool{}
	for _, p := range entry.Rebalance {
		over := s.Provider(string(p.Type))
		if raw, ok := over.Contracts[entry.ChainID]; ok {
			addr, err := parseContract(p.Type, raw)
			if err != nil {
				return nil, err
			}
			p.Contract = addr
		}
		out = append(out, p)
		seen[p.Type] = true
	}
	for _, t := range []registry.ProviderType{registry.ProviderKame, registry.ProviderSymphony} {
		if seen[t] {
			continue
		}
		raw, ok := s.Provider(string(t)).Contracts[entry.ChainID]
		if !ok {
			continue
		}
		addr, err := parseContract(t, raw)
		if err != nil {
			return nil, err
		}
		base, _ := registry.DefaultProviderURL(t)
		out = append(out, registry.RebalanceProvider{Type: t, QuoteURL: base, BuildURL: base, Contract: addr})
	}
	return out, nil
}

func parseContract(t registry.ProviderType, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) || common.HexToAddress(raw) == (common.Address{}) {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid %s executor contract %q", t, raw))
	}
	return common.HexToAddress(raw), nil
}

// NewAggregator builds the client for a route. A configured base URL
// override must pass the endpoint allowlist before any vault calldata is
// sent to it.
func NewAggregator(p registry.RebalanceProvider, h *httpx.Client, s config.Settings) (providers.Aggregator, error) {
	quoteURL, buildURL := p.QuoteURL, p.BuildURL
	if override := strings.TrimSpace(s.Provider(string(p.Type)).BaseURL); override != "" {
		if !registry.IsAllowedProviderURL(override) {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s endpoint %q is not allowed (https or loopback only)", p.Type, override))
		}
		override = strings.TrimRight(override, "/")
		quoteURL, buildURL = override, override
		if p.Type == registry.ProviderOdos {
			quoteURL, buildURL = override+"/sor/quote/v2", override+"/sor/assemble"
		}
	}
	switch p.Type {
	case registry.ProviderOdos:
		return odos.New(h, quoteURL, buildURL, s.OdosReferralCode), nil
	case registry.ProviderOpenOcean:
		return openocean.New(h, quoteURL, s.OpenOceanGasPrice), nil
	case registry.ProviderKame:
		return kame.New(h, quoteURL), nil
	case registry.ProviderSymphony:
		return symphony.New(h, quoteURL), nil
	default:
		return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported rebalance provider %q", p.Type))
	}
}
