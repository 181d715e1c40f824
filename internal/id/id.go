package id

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// Chain identifies one of the EVM networks where vaults are deployed.
type Chain struct {
	Name       string
	Slug       string
	CAIP2      string
	EVMChainID int64
}

func (c Chain) String() string { return c.Name }

var (
	Arbitrum = Chain{Name: "Arbitrum", Slug: "arbitrum", CAIP2: "eip155:42161", EVMChainID: 42161}
	Base     = Chain{Name: "Base", Slug: "base", CAIP2: "eip155:8453", EVMChainID: 8453}
)

var chainBySlug = map[string]Chain{
	"arbitrum":     Arbitrum,
	"arbitrum-one": Arbitrum,
	"arb":          Arbitrum,
	"base":         Base,
}

var chainByID = map[int64]Chain{
	Arbitrum.EVMChainID: Arbitrum,
	Base.EVMChainID:     Base,
}

// Chains returns the supported chains ordered by chain id.
func Chains() []Chain {
	out := make([]Chain, 0, len(chainByID))
	for _, c := range chainByID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EVMChainID < out[j].EVMChainID })
	return out
}

// ParseChain accepts a slug, a decimal chain id or a CAIP-2 identifier.
func ParseChain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(raw)

	if chain, ok := chainBySlug[norm]; ok {
		return chain, nil
	}
	if eip155ChainPattern.MatchString(norm) {
		norm = strings.TrimPrefix(norm, "eip155:")
	}
	if id, err := strconv.ParseInt(norm, 10, 64); err == nil {
		if chain, ok := chainByID[id]; ok {
			return chain, nil
		}
		return Chain{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("chain %d has no vault deployment", id))
	}
	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

// ChainByID resolves a numeric chain id.
func ChainByID(chainID int64) (Chain, bool) {
	c, ok := chainByID[chainID]
	return c, ok
}

// ParseAddress validates a 0x-prefixed 20-byte hex address.
func ParseAddress(input string) (common.Address, error) {
	raw := strings.TrimSpace(input)
	if !evmAddressPattern.MatchString(raw) {
		return common.Address{}, clierr.New(clierr.CodeValidation, fmt.Sprintf("invalid address: %q", input))
	}
	return common.HexToAddress(raw), nil
}

// ShortAddress renders 0x1234...abcd for menus and log lines.
func ShortAddress(a common.Address) string {
	h := a.Hex()
	return h[:6] + "..." + h[len(h)-4:]
}
