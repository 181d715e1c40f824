package odos

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/httpx"
	"github.com/mangrovedao/vault-console/internal/model"
	"github.com/mangrovedao/vault-console/internal/providers"
	"github.com/mangrovedao/vault-console/internal/registry"
)

// DefaultSlippagePercent is sent with every quote; the vault's own
// amountInMin is the binding bound.
const DefaultSlippagePercent = 0.3

type Client struct {
	http        *httpx.Client
	quoteURL    string
	assembleURL string
	referral    int
}

func New(httpClient *httpx.Client, quoteURL, assembleURL string, referralCode int) *Client {
	if quoteURL == "" {
		quoteURL = registry.OdosQuoteURL
	}
	if assembleURL == "" {
		assembleURL = registry.OdosAssembleURL
	}
	return &Client{http: httpClient, quoteURL: quoteURL, assembleURL: assembleURL, referral: referralCode}
}

func (c *Client) Info() model.ProviderInfo {
	return providers.Info(registry.ProviderOdos, c.quoteURL)
}

type tokenAmount struct {
	TokenAddress string `json:"tokenAddress"`
	Amount       string `json:"amount"`
}

type tokenProportion struct {
	TokenAddress string  `json:"tokenAddress"`
	Proportion   float64 `json:"proportion"`
}

type quoteRequest struct {
	ChainID              int64             `json:"chainId"`
	Compact              bool              `json:"compact"`
	InputTokens          []tokenAmount     `json:"inputTokens"`
	OutputTokens         []tokenProportion `json:"outputTokens"`
	ReferralCode         int               `json:"referralCode"`
	SlippageLimitPercent float64           `json:"slippageLimitPercent"`
	SourceBlacklist      []string          `json:"sourceBlacklist"`
	SourceWhitelist      []string          `json:"sourceWhitelist"`
	UserAddr             string            `json:"userAddr"`
}

type quoteResponse struct {
	InTokens    []string          `json:"inTokens"`
	OutTokens   []string          `json:"outTokens"`
	InAmounts   []string          `json:"inAmounts"`
	OutAmounts  []string          `json:"outAmounts"`
	GasEstimate providers.Numeric `json:"gasEstimate"`
	PriceImpact providers.Numeric `json:"priceImpact"`
	PathID      string            `json:"pathId"`
}

func (c *Client) Quote(ctx context.Context, req providers.QuoteRequest) (providers.Quote, error) {
	if err := req.Validate(); err != nil {
		return providers.Quote{}, err
	}
	body := quoteRequest{
		ChainID:              req.ChainID,
		Compact:              true,
		InputTokens:          []tokenAmount{{TokenAddress: req.Sell.Address.Hex(), Amount: req.Amount.String()}},
		OutputTokens:         []tokenProportion{{TokenAddress: req.Buy.Address.Hex(), Proportion: 1}},
		ReferralCode:         c.referral,
		SlippageLimitPercent: DefaultSlippagePercent,
		SourceBlacklist:      []string{},
		SourceWhitelist:      []string{},
		UserAddr:             req.Vault.Hex(),
	}
	var resp quoteResponse
	if err := c.http.PostJSON(ctx, c.quoteURL, body, &resp); err != nil {
		return providers.Quote{}, err
	}
	if len(resp.InTokens) != 1 || len(resp.OutTokens) != 1 ||
		!providers.SameAddress(resp.InTokens[0], req.Sell.Address) ||
		!providers.SameAddress(resp.OutTokens[0], req.Buy.Address) {
		return providers.Quote{}, clierr.New(clierr.CodeUnavailable,
			fmt.Sprintf("odos quote does not match the requested pair: in=%s out=%s", strings.Join(resp.InTokens, ","), strings.Join(resp.OutTokens, ",")))
	}
	if len(resp.InAmounts) != 1 || len(resp.OutAmounts) != 1 {
		return providers.Quote{}, clierr.New(clierr.CodeUnavailable, "odos quote missing amounts")
	}
	if resp.PathID == "" {
		return providers.Quote{}, clierr.New(clierr.CodeUnavailable, "odos quote missing path id")
	}
	sold, err := providers.ParseAmount("odos", "inAmounts", resp.InAmounts[0])
	if err != nil {
		return providers.Quote{}, err
	}
	bought, err := providers.ParseAmount("odos", "outAmounts", resp.OutAmounts[0])
	if err != nil {
		return providers.Quote{}, err
	}
	return providers.Quote{
		Provider:    registry.ProviderOdos,
		Request:     req,
		SellAmount:  sold,
		BuyAmount:   bought,
		PriceImpact: resp.PriceImpact.String(),
		GasEstimate: resp.GasEstimate.Uint64(0),
		Route:       resp.PathID,
	}, nil
}

type assembleRequest struct {
	PathID   string `json:"pathId"`
	Simulate bool   `json:"simulate"`
	UserAddr string `json:"userAddr"`
}

type assembleResponse struct {
	Transaction struct {
		To    string            `json:"to"`
		Data  string            `json:"data"`
		Value providers.Numeric `json:"value"`
	} `json:"transaction"`
}

// Build assembles the quoted path for account. The gas limit is left to
// estimation.
func (c *Client) Build(ctx context.Context, q providers.Quote, account common.Address) (providers.SwapCall, error) {
	if q.Provider != registry.ProviderOdos || q.Route == "" {
		return providers.SwapCall{}, clierr.New(clierr.CodeUsage, "odos can only build its own quotes")
	}
	var resp assembleResponse
	body := assembleRequest{PathID: q.Route, Simulate: false, UserAddr: account.Hex()}
	if err := c.http.PostJSON(ctx, c.assembleURL, body, &resp); err != nil {
		return providers.SwapCall{}, err
	}
	tx := resp.Transaction
	return providers.ParseTx("odos", tx.To, tx.Data, tx.Value.String(), 0)
}
