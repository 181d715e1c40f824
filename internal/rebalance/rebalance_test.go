package rebalance

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mangrovedao/vault-console/internal/chain"
	"github.com/mangrovedao/vault-console/internal/chain/chaintest"
	"github.com/mangrovedao/vault-console/internal/config"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution"
	"github.com/mangrovedao/vault-console/internal/execution/signer"
	"github.com/mangrovedao/vault-console/internal/httpx"
	"github.com/mangrovedao/vault-console/internal/model"
	"github.com/mangrovedao/vault-console/internal/oracle"
	"github.com/mangrovedao/vault-console/internal/providers"
	"github.com/mangrovedao/vault-console/internal/registry"
	"github.com/mangrovedao/vault-console/internal/vault"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

var (
	vaultAddr = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	executor  = common.HexToAddress("0x19cEeAd7105607Cd444F5ad10dd51356436095a1")
	router    = common.HexToAddress("0x00000000000000000000000000000000000000e9")
	weth      = chain.Token{Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Symbol: "WETH", Decimals: 18}
	usdc      = chain.Token{Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Symbol: "USDC", Decimals: 6}
)

type fakeAggregator struct {
	evm       *chaintest.EVM
	quoteOut  *big.Int
	target    common.Address
	quotedAt  int
	quoted    []providers.QuoteRequest
	built     int
	buildFrom common.Address
}

func (f *fakeAggregator) Info() model.ProviderInfo { return providers.Info("fake", "") }

func (f *fakeAggregator) Quote(_ context.Context, req providers.QuoteRequest) (providers.Quote, error) {
	f.quotedAt = len(f.evm.Methods())
	f.quoted = append(f.quoted, req)
	return providers.Quote{Provider: "fake", Request: req, SellAmount: req.Amount, BuyAmount: f.quoteOut}, nil
}

func (f *fakeAggregator) Build(_ context.Context, q providers.Quote, account common.Address) (providers.SwapCall, error) {
	f.built++
	f.buildFrom = account
	return providers.SwapCall{To: f.target, Data: []byte{0xde, 0xad, 0xbe, 0xef}, Gas: 8_000_000}, nil
}

type mockVault struct {
	allowed map[common.Address]bool
	swaps   [][]any
}

func installVault(evm *chaintest.EVM) *mockVault {
	mv := &mockVault{allowed: map[common.Address]bool{}}
	raw := registry.MangroveVaultABI
	evm.Handle(vaultAddr, raw, "allowedSwapContracts", func(_ chaintest.Msg, args []any) ([]any, error) {
		return []any{mv.allowed[args[0].(common.Address)]}, nil
	})
	evm.Handle(vaultAddr, raw, "allowSwapContract", func(msg chaintest.Msg, args []any) ([]any, error) {
		if msg.Commit {
			mv.allowed[args[0].(common.Address)] = true
		}
		return nil, nil
	})
	evm.Handle(vaultAddr, raw, "swap", func(msg chaintest.Msg, args []any) ([]any, error) {
		if !mv.allowed[args[0].(common.Address)] {
			return nil, chaintest.Revert("swap contract not allowed")
		}
		if msg.Commit {
			mv.swaps = append(mv.swaps, args)
		}
		return nil, nil
	})
	return mv
}

func newOrchestrator(t *testing.T, agg *fakeAggregator) (*Orchestrator, *chaintest.EVM) {
	t.Helper()
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	exec := execution.New(agg.evm, s, 8453,
		execution.WithOutput(&bytes.Buffer{}),
		execution.WithOptions(execution.Options{GasMultiplier: 1.2, PollInterval: time.Millisecond}),
	)
	return New(vault.New(exec, vaultAddr), agg, executor), agg.evm
}

func testState() vault.State {
	return vault.State{
		Address: vaultAddr,
		Market:  oracle.Market{Base: weth, Quote: usdc, TickSpacing: big.NewInt(1)},
		VaultBalance: vault.Balance{
			Base:  new(big.Int).Mul(big.NewInt(5), big.NewInt(1_000_000_000_000_000_000)),
			Quote: big.NewInt(10_000_000_000),
		},
	}
}

func indexOf(methods []string, want string) int {
	for i, m := range methods {
		if m == want {
			return i
		}
	}
	return -1
}

func TestAmountInMin(t *testing.T) {
	tests := []struct {
		quoted int64
		bps    int64
		want   int64
	}{
		{quoted: 1_000_000, bps: 100, want: 990_000},
		{quoted: 199, bps: 100, want: 198},
		{quoted: 1, bps: 100, want: 1},
		{quoted: 0, bps: 100, want: 0},
		{quoted: 1_000_000, bps: 50, want: 995_000},
	}
	for _, tc := range tests {
		if got := AmountInMin(big.NewInt(tc.quoted), tc.bps); got.Int64() != tc.want {
			t.Fatalf("AmountInMin(%d, %d) = %s, want %d", tc.quoted, tc.bps, got, tc.want)
		}
	}
}

func TestWhitelistBeforeSwap(t *testing.T) {
	evm := chaintest.New(8453)
	mv := installVault(evm)
	agg := &fakeAggregator{evm: evm, quoteOut: big.NewInt(1_000_000), target: executor}
	o, _ := newOrchestrator(t, agg)

	var asked []common.Address
	hooks := Hooks{ConfirmWhitelist: func(target common.Address) (bool, error) {
		asked = append(asked, target)
		return true, nil
	}}
	res, err := o.Run(context.Background(), testState(), Request{Sell: false, Amount: big.NewInt(2_000_000)}, hooks)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	methods := evm.Methods()
	allow := indexOf(methods, "send:allowSwapContract")
	swapSim := indexOf(methods, "call:swap")
	swapSend := indexOf(methods, "send:swap")
	if allow < 0 || swapSend < 0 || allow > swapSim || allow > swapSend {
		t.Fatalf("whitelist must precede swap: %v", methods)
	}
	if agg.quotedAt <= allow {
		t.Fatalf("quote happened before whitelisting: quoted at %d, allow at %d", agg.quotedAt, allow)
	}
	if len(asked) != 1 || asked[0] != executor {
		t.Fatalf("expected one whitelist prompt for the executor, got %v", asked)
	}

	want := []Step{StepStart, StepWhitelisted, StepQuoted, StepBuilt, StepSubmitted, StepConfirmed}
	if len(res.Steps) != len(want) {
		t.Fatalf("unexpected steps %v", res.Steps)
	}
	for i := range want {
		if res.Steps[i] != want[i] {
			t.Fatalf("unexpected steps %v", res.Steps)
		}
	}

	if len(mv.swaps) != 1 {
		t.Fatalf("expected one swap, got %d", len(mv.swaps))
	}
	args := mv.swaps[0]
	if args[0].(common.Address) != executor || args[2].(*big.Int).Int64() != 2_000_000 || args[3].(*big.Int).Int64() != 990_000 || args[4].(bool) {
		t.Fatalf("unexpected swap args %v", args)
	}
	if q := agg.quoted[0]; q.Sell.Address != usdc.Address || q.Buy.Address != weth.Address || q.Vault != vaultAddr {
		t.Fatalf("buying base must sell quote from the vault: %+v", q)
	}
	if agg.buildFrom != vaultAddr {
		t.Fatalf("calldata must be built for the vault, got %s", agg.buildFrom.Hex())
	}
	if sent := evm.Sent(); sent[len(sent)-1].Gas() != 8_000_000 {
		t.Fatalf("swap must use the aggregator gas limit, got %d", sent[len(sent)-1].Gas())
	}
}

func TestDeclinedWhitelistStopsBeforeQuote(t *testing.T) {
	evm := chaintest.New(8453)
	mv := installVault(evm)
	agg := &fakeAggregator{evm: evm, quoteOut: big.NewInt(1_000_000), target: executor}
	o, _ := newOrchestrator(t, agg)

	hooks := Hooks{ConfirmWhitelist: func(common.Address) (bool, error) { return false, nil }}
	res, err := o.Run(context.Background(), testState(), Request{Sell: true, Amount: big.NewInt(1)}, hooks)
	if !clierr.Is(err, clierr.CodeDeclined) {
		t.Fatalf("expected declined error, got %v", err)
	}
	if len(agg.quoted) != 0 || len(evm.Sent()) != 0 || len(mv.swaps) != 0 {
		t.Fatalf("nothing may happen after a declined whitelist: %v", evm.Methods())
	}
	if res.Final() != StepFailed {
		t.Fatalf("expected failed final step, got %v", res.Steps)
	}
}

func TestAlreadyWhitelistedSkipsAllow(t *testing.T) {
	evm := chaintest.New(8453)
	mv := installVault(evm)
	mv.allowed[executor] = true
	agg := &fakeAggregator{evm: evm, quoteOut: big.NewInt(500), target: executor}
	o, _ := newOrchestrator(t, agg)

	res, err := o.Run(context.Background(), testState(), Request{Sell: true, Amount: big.NewInt(1_000)}, Hooks{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if evm.CountSent("allowSwapContract") != 0 || len(res.Whitelisted) != 0 {
		t.Fatalf("no whitelist transaction expected: %v", evm.Methods())
	}
	if evm.CountSent("swap") != 1 {
		t.Fatalf("expected one swap, got %v", evm.Methods())
	}
}

func TestBuiltTargetIsWhitelistedToo(t *testing.T) {
	evm := chaintest.New(8453)
	mv := installVault(evm)
	mv.allowed[executor] = true
	agg := &fakeAggregator{evm: evm, quoteOut: big.NewInt(1_000_000), target: router}
	o, _ := newOrchestrator(t, agg)

	var asked []common.Address
	hooks := Hooks{ConfirmWhitelist: func(target common.Address) (bool, error) {
		asked = append(asked, target)
		return true, nil
	}}
	res, err := o.Run(context.Background(), testState(), Request{Sell: true, Amount: big.NewInt(1_000)}, hooks)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(asked) != 1 || asked[0] != router || !mv.allowed[router] {
		t.Fatalf("built target must be whitelisted, asked %v", asked)
	}
	if res.Target != router || mv.swaps[0][0].(common.Address) != router {
		t.Fatalf("swap must target the built contract")
	}
}

func TestConfirmQuoteCanEditMinimumOrCancel(t *testing.T) {
	evm := chaintest.New(8453)
	mv := installVault(evm)
	mv.allowed[executor] = true
	agg := &fakeAggregator{evm: evm, quoteOut: big.NewInt(1_000_000), target: executor}
	o, _ := newOrchestrator(t, agg)

	_, err := o.Run(context.Background(), testState(), Request{Sell: true, Amount: big.NewInt(1_000)}, Hooks{
		ConfirmQuote: func(_ providers.Quote, min *big.Int) (*big.Int, bool, error) { return nil, false, nil },
	})
	if !clierr.Is(err, clierr.CodeDeclined) || agg.built != 0 {
		t.Fatalf("cancelled quote must not build, err=%v built=%d", err, agg.built)
	}

	var proposed *big.Int
	_, err = o.Run(context.Background(), testState(), Request{Sell: true, Amount: big.NewInt(1_000)}, Hooks{
		ConfirmQuote: func(_ providers.Quote, min *big.Int) (*big.Int, bool, error) {
			proposed = min
			return big.NewInt(980_000), true, nil
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if proposed.Int64() != 990_000 || mv.swaps[0][3].(*big.Int).Int64() != 980_000 {
		t.Fatalf("expected proposed 990000 and submitted 980000, got %s and %v", proposed, mv.swaps[0][3])
	}
}

func TestAmountBoundedByVaultBalance(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm)
	agg := &fakeAggregator{evm: evm, quoteOut: big.NewInt(1), target: executor}
	o, _ := newOrchestrator(t, agg)

	st := testState()
	over := new(big.Int).Add(st.VaultBalance.Base, big.NewInt(1))
	_, err := o.Run(context.Background(), st, Request{Sell: true, Amount: over}, Hooks{})
	if !clierr.Is(err, clierr.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(evm.Calls()) != 0 {
		t.Fatalf("nothing may reach the chain: %v", evm.Methods())
	}
}

func TestAvailableAddsConfiguredProviders(t *testing.T) {
	entry, _ := registry.Lookup(8453)
	s := config.Settings{Providers: map[string]config.ProviderSettings{
		"kame": {Contracts: map[int64]string{8453: "0x00000000000000000000000000000000000000e7"}},
		"odos": {Contracts: map[int64]string{8453: "0x00000000000000000000000000000000000000e6"}},
	}}
	got, err := Available(entry, s)
	if err != nil {
		t.Fatalf("Available failed: %v", err)
	}
	var types []string
	for _, p := range got {
		types = append(types, string(p.Type))
	}
	if strings.Join(types, ",") != "odos,openocean,kame" {
		t.Fatalf("unexpected providers %v", types)
	}
	if got[0].Contract != common.HexToAddress("0xe6") || got[2].Contract != common.HexToAddress("0xe7") {
		t.Fatalf("configured contracts must apply: %+v", got)
	}

	s.Providers["symphony"] = config.ProviderSettings{Contracts: map[int64]string{8453: "nope"}}
	if _, err := Available(entry, s); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for a bad contract, got %v", err)
	}
}

func TestNewAggregatorRejectsUnsafeOverride(t *testing.T) {
	entry, _ := registry.Lookup(8453)
	p, _ := entry.Provider(registry.ProviderOpenOcean)
	s := config.Settings{Providers: map[string]config.ProviderSettings{"openocean": {BaseURL: "http://example.com"}}}
	if _, err := NewAggregator(p, httpx.New(time.Second, 0), s); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	s.Providers["openocean"] = config.ProviderSettings{BaseURL: "http://127.0.0.1:8080"}
	agg, err := NewAggregator(p, httpx.New(time.Second, 0), s)
	if err != nil || agg.Info().Endpoint != "http://127.0.0.1:8080" {
		t.Fatalf("loopback override must be accepted, err=%v", err)
	}
}
