package openocean

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mangrovedao/vault-console/internal/chain"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/httpx"
	"github.com/mangrovedao/vault-console/internal/providers"
)

var (
	weth  = chain.Token{Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Symbol: "WETH", Decimals: 18}
	usdc  = chain.Token{Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Symbol: "USDC", Decimals: 6}
	vault = common.HexToAddress("0x00000000000000000000000000000000000000a0")
)

func testRequest(chainID int64) providers.QuoteRequest {
	amount, _ := new(big.Int).SetString("1500000000000000000", 10)
	return providers.QuoteRequest{ChainID: chainID, Vault: vault, Sell: weth, Buy: usdc, Amount: amount}
}

func TestQuoteAndBuild(t *testing.T) {
	var quoteQuery, swapQuery url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/8453/quote", func(w http.ResponseWriter, r *http.Request) {
		quoteQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"code": 200, "data": {"outAmount": "3091500000", "estimatedGas": "", "priceImpact": "-0.05"}}`))
	})
	mux.HandleFunc("/v3/8453/swap_quote", func(w http.ResponseWriter, r *http.Request) {
		swapQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"code": 200, "data": {"to": "0x6352a56caadC4F1E25CD6c75970Fa768A3304e64", "data": "0x90411a32aa", "value": "0"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), srv.URL, "")
	q, err := c.Quote(context.Background(), testRequest(8453))
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if q.BuyAmount.String() != "3091500000" || q.GasEstimate != defaultEstimatedGas || q.PriceImpact != "-0.05" {
		t.Fatalf("unexpected quote %+v", q)
	}
	if quoteQuery.Get("amount") != "1.5" || quoteQuery.Get("slippage") != "1" || quoteQuery.Get("gasPrice") != defaultGasPrice {
		t.Fatalf("unexpected quote query %v", quoteQuery)
	}

	call, err := c.Build(context.Background(), q, vault)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if swapQuery.Get("account") != vault.Hex() || swapQuery.Get("referrer") != (common.Address{}).Hex() {
		t.Fatalf("unexpected swap query %v", swapQuery)
	}
	if call.Gas != SwapGas || call.Value.Sign() != 0 || call.To != common.HexToAddress("0x6352a56caadC4F1E25CD6c75970Fa768A3304e64") {
		t.Fatalf("unexpected swap call %+v", call)
	}
}

func TestQuoteRejectsNon200Code(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": 400, "error": "insufficient liquidity"}`))
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), srv.URL, "")
	_, err := c.Quote(context.Background(), testRequest(8453))
	if !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestQuoteUnsupportedChain(t *testing.T) {
	c := New(httpx.New(time.Second, 0), "http://127.0.0.1:1", "")
	_, err := c.Quote(context.Background(), testRequest(10))
	if !clierr.Is(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}
