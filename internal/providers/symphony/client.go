package symphony

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	jsoniter "github.com/json-iterator/go"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/httpx"
	"github.com/mangrovedao/vault-console/internal/model"
	"github.com/mangrovedao/vault-console/internal/providers"
	"github.com/mangrovedao/vault-console/internal/registry"
)

const (
	SwapGas = 8_000_000
	// SlippageBps is applied by the router on top of the vault's bound.
	SlippageBps = "50"
)

type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = registry.SymphonyBaseURL
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *Client) Info() model.ProviderInfo {
	return providers.Info(registry.ProviderSymphony, c.baseURL)
}

type routeRequest struct {
	ChainID  int64  `json:"chainId"`
	TokenIn  string `json:"tokenIn"`
	TokenOut string `json:"tokenOut"`
	AmountIn string `json:"amountIn"`
	IsRaw    bool   `json:"isRaw"`
}

type routeResponse struct {
	AmountIn    providers.Numeric   `json:"amountIn"`
	AmountOut   providers.Numeric   `json:"amountOut"`
	GasEstimate providers.Numeric   `json:"gasEstimate"`
	Route       jsoniter.RawMessage `json:"route"`
}

type slippage struct {
	Amount string `json:"slippageAmount"`
	IsBps  bool   `json:"isBps"`
	IsRaw  bool   `json:"isRaw"`
}

type swapRequest struct {
	ChainID  int64               `json:"chainId"`
	Route    jsoniter.RawMessage `json:"route"`
	From     string              `json:"from"`
	Slippage slippage            `json:"slippage"`
}

type swapResponse struct {
	To    string            `json:"to"`
	Data  string            `json:"data"`
	Value providers.Numeric `json:"value"`
}

func (c *Client) Quote(ctx context.Context, req providers.QuoteRequest) (providers.Quote, error) {
	if err := req.Validate(); err != nil {
		return providers.Quote{}, err
	}
	body := routeRequest{
		ChainID:  req.ChainID,
		TokenIn:  strings.ToLower(req.Sell.Address.Hex()),
		TokenOut: strings.ToLower(req.Buy.Address.Hex()),
		AmountIn: req.Amount.String(),
		IsRaw:    true,
	}
	var resp routeResponse
	if err := c.http.PostJSON(ctx, c.baseURL+"/v1/route", body, &resp); err != nil {
		return providers.Quote{}, err
	}
	if len(resp.Route) == 0 || string(resp.Route) == "null" {
		return providers.Quote{}, clierr.New(clierr.CodeUnavailable, "no route found from symphony")
	}
	bought, err := providers.ParseAmount("symphony", "amountOut", resp.AmountOut.String())
	if err != nil {
		return providers.Quote{}, err
	}
	return providers.Quote{
		Provider:    registry.ProviderSymphony,
		Request:     req,
		SellAmount:  req.Amount,
		BuyAmount:   bought,
		GasEstimate: resp.GasEstimate.Uint64(0),
		Route:       string(resp.Route),
	}, nil
}

// Build turns the quoted route into calldata sent from account.
func (c *Client) Build(ctx context.Context, q providers.Quote, account common.Address) (providers.SwapCall, error) {
	if q.Provider != registry.ProviderSymphony || q.Route == "" {
		return providers.SwapCall{}, clierr.New(clierr.CodeUsage, "symphony can only build its own quotes")
	}
	body := swapRequest{
		ChainID:  q.Request.ChainID,
		Route:    jsoniter.RawMessage(q.Route),
		From:     account.Hex(),
		Slippage: slippage{Amount: SlippageBps, IsBps: true},
	}
	var resp swapResponse
	if err := c.http.PostJSON(ctx, c.baseURL+"/v1/swap", body, &resp); err != nil {
		return providers.SwapCall{}, err
	}
	return providers.ParseTx("symphony", resp.To, resp.Data, resp.Value.String(), SwapGas)
}
