package odos

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
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

func testRequest() providers.QuoteRequest {
	return providers.QuoteRequest{ChainID: 8453, Vault: vault, Sell: weth, Buy: usdc, Amount: big.NewInt(1_000_000_000_000_000_000)}
}

func newServer(t *testing.T, outToken string) (*httptest.Server, *quoteRequest, *assembleRequest) {
	t.Helper()
	var gotQuote quoteRequest
	var gotAssemble assembleRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/sor/quote/v2", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "expected POST", http.StatusMethodNotAllowed)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotQuote); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"inTokens": ["0x4200000000000000000000000000000000000006"],
			"outTokens": ["` + outToken + `"],
			"inAmounts": ["1000000000000000000"],
			"outAmounts": ["2061000000"],
			"gasEstimate": 181234.0,
			"priceImpact": -0.02,
			"pathId": "path-123"
		}`))
	})
	mux.HandleFunc("/sor/assemble", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotAssemble); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transaction": {"to": "0x19cEeAd7105607Cd444F5ad10dd51356436095a1", "data": "0x83bd37f9000a", "value": "0", "gas": 300000}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &gotQuote, &gotAssemble
}

func TestQuoteAndBuild(t *testing.T) {
	srv, gotQuote, gotAssemble := newServer(t, "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913")
	c := New(httpx.New(2*time.Second, 0), srv.URL+"/sor/quote/v2", srv.URL+"/sor/assemble", 7)

	q, err := c.Quote(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if q.BuyAmount.String() != "2061000000" || q.SellAmount.String() != "1000000000000000000" {
		t.Fatalf("unexpected amounts %s -> %s", q.SellAmount, q.BuyAmount)
	}
	if q.Route != "path-123" || q.GasEstimate != 181234 {
		t.Fatalf("unexpected route %q gas %d", q.Route, q.GasEstimate)
	}
	if !gotQuote.Compact || gotQuote.ReferralCode != 7 || gotQuote.SlippageLimitPercent != DefaultSlippagePercent {
		t.Fatalf("unexpected quote request %+v", gotQuote)
	}
	if !strings.EqualFold(gotQuote.UserAddr, vault.Hex()) || gotQuote.ChainID != 8453 {
		t.Fatalf("quote must be made for the vault on its chain: %+v", gotQuote)
	}

	call, err := c.Build(context.Background(), q, vault)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if gotAssemble.PathID != "path-123" || gotAssemble.Simulate || !strings.EqualFold(gotAssemble.UserAddr, vault.Hex()) {
		t.Fatalf("unexpected assemble request %+v", gotAssemble)
	}
	if call.To != common.HexToAddress("0x19cEeAd7105607Cd444F5ad10dd51356436095a1") || call.Gas != 0 || len(call.Data) != 6 {
		t.Fatalf("unexpected swap call %+v", call)
	}
}

func TestQuoteRejectsMismatchedTokens(t *testing.T) {
	srv, _, _ := newServer(t, "0x50c5725949a6f0c72e6c4a641f24049a917db0cb")
	c := New(httpx.New(2*time.Second, 0), srv.URL+"/sor/quote/v2", srv.URL+"/sor/assemble", 0)

	_, err := c.Quote(context.Background(), testRequest())
	if !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error for mismatched pair, got %v", err)
	}
}

func TestBuildRejectsForeignQuote(t *testing.T) {
	c := New(httpx.New(time.Second, 0), "", "", 0)
	_, err := c.Build(context.Background(), providers.Quote{Provider: "kame", Route: "x"}, vault)
	if !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}
