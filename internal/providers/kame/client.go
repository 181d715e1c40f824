package kame

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	jsoniter "github.com/json-iterator/go"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/httpx"
	"github.com/mangrovedao/vault-console/internal/model"
	"github.com/mangrovedao/vault-console/internal/providers"
	"github.com/mangrovedao/vault-console/internal/registry"
)

const SwapGas = 10_000_000

type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = registry.KameBaseURL
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *Client) Info() model.ProviderInfo {
	return providers.Info(registry.ProviderKame, c.baseURL)
}

type quoteResponse struct {
	SrcToken  string              `json:"srcToken"`
	DstToken  string              `json:"dstToken"`
	SrcAmount providers.Numeric   `json:"srcAmount"`
	DstAmount providers.Numeric   `json:"dstAmount"`
	Paths     jsoniter.RawMessage `json:"paths"`
}

type swapResponse struct {
	Tx struct {
		To    string            `json:"to"`
		Data  string            `json:"data"`
		Value providers.Numeric `json:"value"`
	} `json:"tx"`
}

func params(req providers.QuoteRequest) url.Values {
	vals := url.Values{}
	vals.Set("chainId", fmt.Sprint(req.ChainID))
	vals.Set("fromToken", req.Sell.Address.Hex())
	vals.Set("toToken", req.Buy.Address.Hex())
	vals.Set("amount", req.Amount.String())
	return vals
}

func (c *Client) Quote(ctx context.Context, req providers.QuoteRequest) (providers.Quote, error) {
	if err := req.Validate(); err != nil {
		return providers.Quote{}, err
	}
	var resp quoteResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"/v1/quote?"+params(req).Encode(), &resp); err != nil {
		return providers.Quote{}, err
	}
	if !providers.SameAddress(resp.SrcToken, req.Sell.Address) || !providers.SameAddress(resp.DstToken, req.Buy.Address) {
		return providers.Quote{}, clierr.New(clierr.CodeUnavailable,
			fmt.Sprintf("kame quote does not match the requested pair: %s -> %s", resp.SrcToken, resp.DstToken))
	}
	sold, err := providers.ParseAmount("kame", "srcAmount", resp.SrcAmount.String())
	if err != nil {
		return providers.Quote{}, err
	}
	bought, err := providers.ParseAmount("kame", "dstAmount", resp.DstAmount.String())
	if err != nil {
		return providers.Quote{}, err
	}
	return providers.Quote{
		Provider:   registry.ProviderKame,
		Request:    req,
		SellAmount: sold,
		BuyAmount:  bought,
		Route:      string(resp.Paths),
	}, nil
}

// Build requests swap calldata with account as the origin.
func (c *Client) Build(ctx context.Context, q providers.Quote, account common.Address) (providers.SwapCall, error) {
	if q.Provider != registry.ProviderKame {
		return providers.SwapCall{}, clierr.New(clierr.CodeUsage, "kame can only build its own quotes")
	}
	vals := params(q.Request)
	vals.Set("origin", account.Hex())
	var resp swapResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"/v1/swap?"+vals.Encode(), &resp); err != nil {
		return providers.SwapCall{}, err
	}
	return providers.ParseTx("kame", resp.Tx.To, resp.Tx.Data, resp.Tx.Value.String(), SwapGas)
}
