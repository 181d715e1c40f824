package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	OdosQuoteURL     = "https://api.odos.xyz/sor/quote/v2"
	OdosAssembleURL  = "https://api.odos.xyz/sor/assemble"
	OpenOceanBaseURL = "https://open-api.openocean.finance"
	KameBaseURL      = "https://api.kame.ag"
	SymphonyBaseURL  = "https://api.symph.ag"
)

// DefaultProviderURL returns the public base URL of an aggregator.
func DefaultProviderURL(t ProviderType) (string, bool) {
	switch t {
	case ProviderOdos:
		return OdosQuoteURL, true
	case ProviderOpenOcean:
		return OpenOceanBaseURL, true
	case ProviderKame:
		return KameBaseURL, true
	case ProviderSymphony:
		return SymphonyBaseURL, true
	default:
		return "", false
	}
}

// IsAllowedProviderURL accepts https endpoints and plain http on loopback
// hosts. Configured overrides go through this before any request is sent
// with vault calldata in it.
func IsAllowedProviderURL(endpoint string) bool {
	raw := strings.TrimSpace(endpoint)
	if raw == "" {
		return false
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	return scheme == "https"
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
