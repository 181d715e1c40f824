package openocean

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/httpx"
	"github.com/mangrovedao/vault-console/internal/model"
	"github.com/mangrovedao/vault-console/internal/providers"
	"github.com/mangrovedao/vault-console/internal/registry"
)

const (
	SwapGas             = 8_000_000
	defaultEstimatedGas = 300_000
	slippagePercent     = "1"
	defaultGasPrice     = "5"
)

var supportedChains = map[int64]bool{1: true, 56: true, 137: true, 1329: true, 8453: true, 42161: true}

type Client struct {
	http     *httpx.Client
	baseURL  string
	gasPrice string
}

// New builds a client against baseURL; gasPrice is in gwei and sent as is.
func New(httpClient *httpx.Client, baseURL, gasPrice string) *Client {
	if baseURL == "" {
		baseURL = registry.OpenOceanBaseURL
	}
	if strings.TrimSpace(gasPrice) == "" {
		gasPrice = defaultGasPrice
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/"), gasPrice: gasPrice}
}

func (c *Client) Info() model.ProviderInfo {
	return providers.Info(registry.ProviderOpenOcean, c.baseURL)
}

type envelope[T any] struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
	Data  T      `json:"data"`
}

func (e envelope[T]) check(op string) error {
	if e.Code == 200 {
		return nil
	}
	msg := e.Error
	if msg == "" {
		msg = "unknown error"
	}
	return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("openocean %s failed (code %d): %s", op, e.Code, msg))
}

type quoteData struct {
	OutAmount    string            `json:"outAmount"`
	EstimatedGas providers.Numeric `json:"estimatedGas"`
	PriceImpact  providers.Numeric `json:"priceImpact"`
}

type swapData struct {
	To    string            `json:"to"`
	Data  string            `json:"data"`
	Value providers.Numeric `json:"value"`
}

func (c *Client) endpoint(chainID int64, path string, vals url.Values) (string, error) {
	if !supportedChains[chainID] {
		return "", clierr.New(clierr.CodeUnsupported, fmt.Sprintf("openocean does not support chain %d", chainID))
	}
	return fmt.Sprintf("%s/v3/%d/%s?%s", c.baseURL, chainID, path, vals.Encode()), nil
}

// params are shared by quote and swap_quote. OpenOcean takes the amount in
// human units.
func (c *Client) params(req providers.QuoteRequest) url.Values {
	vals := url.Values{}
	vals.Set("inTokenAddress", req.Sell.Address.Hex())
	vals.Set("outTokenAddress", req.Buy.Address.Hex())
	vals.Set("amount", req.Sell.Format(req.Amount))
	vals.Set("gasPrice", c.gasPrice)
	vals.Set("slippage", slippagePercent)
	return vals
}

func (c *Client) Quote(ctx context.Context, req providers.QuoteRequest) (providers.Quote, error) {
	if err := req.Validate(); err != nil {
		return providers.Quote{}, err
	}
	u, err := c.endpoint(req.ChainID, "quote", c.params(req))
	if err != nil {
		return providers.Quote{}, err
	}
	var resp envelope[quoteData]
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return providers.Quote{}, err
	}
	if err := resp.check("quote"); err != nil {
		return providers.Quote{}, err
	}
	bought, err := providers.ParseAmount("openocean", "outAmount", resp.Data.OutAmount)
	if err != nil {
		return providers.Quote{}, err
	}
	return providers.Quote{
		Provider:    registry.ProviderOpenOcean,
		Request:     req,
		SellAmount:  req.Amount,
		BuyAmount:   bought,
		PriceImpact: resp.Data.PriceImpact.String(),
		GasEstimate: resp.Data.EstimatedGas.Uint64(defaultEstimatedGas),
	}, nil
}

// Build asks swap_quote for calldata executed by account with no referrer.
func (c *Client) Build(ctx context.Context, q providers.Quote, account common.Address) (providers.SwapCall, error) {
	if q.Provider != registry.ProviderOpenOcean {
		return providers.SwapCall{}, clierr.New(clierr.CodeUsage, "openocean can only build its own quotes")
	}
	vals := c.params(q.Request)
	vals.Set("account", account.Hex())
	vals.Set("referrer", common.Address{}.Hex())
	u, err := c.endpoint(q.Request.ChainID, "swap_quote", vals)
	if err != nil {
		return providers.SwapCall{}, err
	}
	var resp envelope[swapData]
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return providers.SwapCall{}, err
	}
	if err := resp.check("swap"); err != nil {
		return providers.SwapCall{}, err
	}
	return providers.ParseTx("openocean", resp.Data.To, resp.Data.Data, resp.Data.Value.String(), SwapGas)
}
