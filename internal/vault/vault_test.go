package vault

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
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution"
	"github.com/mangrovedao/vault-console/internal/execution/signer"
	"github.com/mangrovedao/vault-console/internal/oracle"
	"github.com/mangrovedao/vault-console/internal/registry"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

var (
	vaultAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	kandelAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	oracleAddr = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	weth       = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	usdc       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	recipient  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	ownerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	mgvAddr    = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

type offerSlot struct {
	id    int64
	tick  int64
	gives int64
}

type mockVault struct {
	params kandelParams
	offers map[Side][]offerSlot
}

func encodeOffer(tick int64, gives int64) *big.Int {
	t := new(big.Int).And(big.NewInt(tick), tickMask)
	word := new(big.Int).Lsh(t, tickShift)
	return word.Or(word, new(big.Int).Lsh(big.NewInt(gives), givesShift))
}

// installVault serves a WETH/USDC vault at tick -200000 with a three-rung
// ladder unless pricePoints is overridden.
func installVault(evm *chaintest.EVM, pricePoints uint32) *mockVault {
	mv := &mockVault{
		params: kandelParams{Gasprice: 0, Gasreq: big.NewInt(250_000), StepSize: 1, PricePoints: pricePoints},
		offers: map[Side][]offerSlot{
			Ask: {{id: 0, tick: 0, gives: 0}, {id: 11, tick: -199_900, gives: 5}, {id: 12, tick: -199_800, gives: 7}},
			Bid: {{id: 21, tick: 200_100, gives: 1_000}, {id: 22, tick: 200_200, gives: 0}, {id: 0, tick: 0, gives: 0}},
		},
	}
	raw := registry.MangroveVaultABI
	evm.Returns(vaultAddr, raw, "feeData", uint16(1500), uint16(150), recipient)
	evm.Returns(vaultAddr, raw, "tickIndex0", big.NewInt(-200_200))
	evm.Returns(vaultAddr, raw, "kandelTickOffset", big.NewInt(100))
	evm.Handle(vaultAddr, raw, "kandelParams", func(chaintest.Msg, []any) ([]any, error) {
		return []any{mv.params}, nil
	})
	evm.Returns(vaultAddr, raw, "fundsState", uint8(FundsActive))
	evm.Returns(vaultAddr, raw, "getKandelBalances", big.NewInt(3), big.NewInt(4))
	evm.Returns(vaultAddr, raw, "getVaultBalances", big.NewInt(5), big.NewInt(6))
	evm.Returns(vaultAddr, raw, "market", weth, usdc, big.NewInt(1))
	evm.Returns(vaultAddr, raw, "oracle", oracleAddr)
	evm.Returns(vaultAddr, raw, "owner", ownerAddr)
	evm.Returns(vaultAddr, raw, "kandel", kandelAddr)
	evm.Returns(vaultAddr, raw, "MGV", mgvAddr)
	evm.Returns(vaultAddr, registry.ERC4626VaultABI, "currentVaults", common.HexToAddress("0xd1"), common.HexToAddress("0xd2"))
	evm.Returns(mgvAddr, registry.MangroveABI, "balanceOf", big.NewInt(42))

	evm.Returns(weth, registry.ERC20ABI, "decimals", uint8(18))
	evm.Returns(weth, registry.ERC20ABI, "symbol", "WETH")
	evm.Returns(usdc, registry.ERC20ABI, "decimals", uint8(6))
	evm.Returns(usdc, registry.ERC20ABI, "symbol", "USDC")
	evm.Returns(oracleAddr, registry.OracleABI, "tick", big.NewInt(-200_000))

	slot := func(args []any) offerSlot {
		side := Side(args[0].(uint8))
		i := args[1].(*big.Int).Int64()
		return mv.offers[side][i]
	}
	evm.Handle(kandelAddr, registry.KandelABI, "offerIdOfIndex", func(_ chaintest.Msg, args []any) ([]any, error) {
		return []any{big.NewInt(slot(args).id)}, nil
	})
	evm.Handle(kandelAddr, registry.KandelABI, "getOffer", func(_ chaintest.Msg, args []any) ([]any, error) {
		s := slot(args)
		return []any{encodeOffer(s.tick, s.gives)}, nil
	})
	return mv
}

func newTestExecutor(t *testing.T, evm *chaintest.EVM) (*execution.Executor, *bytes.Buffer) {
	t.Helper()
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	var out bytes.Buffer
	return execution.New(evm, s, 8453,
		execution.WithOutput(&out),
		execution.WithOptions(execution.Options{GasMultiplier: 1.2, PollInterval: time.Millisecond}),
	), &out
}

func testMarket() oracle.Market {
	return oracle.Market{
		Base:        chain.Token{Address: weth, Symbol: "WETH", Decimals: 18},
		Quote:       chain.Token{Address: usdc, Symbol: "USDC", Decimals: 6},
		TickSpacing: big.NewInt(1),
	}
}

func countMethod(evm *chaintest.EVM, method string) int {
	n := 0
	for _, c := range evm.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

func TestReadDecodesVaultState(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm, 3)

	st, err := Read(context.Background(), chain.New(evm, 8453), vaultAddr, "")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if st.Fees.PerformanceFee != 0.15 || st.Fees.ManagementFee != 0.015 || st.Fees.FeeRecipient != recipient {
		t.Fatalf("unexpected fee data %+v", st.Fees)
	}
	want := Position{TickIndex0: -200_200, TickOffset: 100, Params: Params{Gasreq: 250_000, StepSize: 1, PricePoints: 3}, FundsState: FundsActive}
	if st.Position != want {
		t.Fatalf("unexpected position %+v", st.Position)
	}
	if st.Market.String() != "WETH/USDC" || st.CurrentTick != -200_000 {
		t.Fatalf("unexpected market %s tick %d", st.Market, st.CurrentTick)
	}
	if st.Owner != ownerAddr || st.Kandel != kandelAddr || st.Oracle != oracleAddr {
		t.Fatalf("unexpected addresses %+v", st)
	}
	total := st.TotalBalance()
	if total.Base.Int64() != 8 || total.Quote.Int64() != 10 {
		t.Fatalf("unexpected total balance %+v", total)
	}
	if st.BaseVault != nil || countMethod(evm, "currentVaults") != 0 {
		t.Fatalf("currentVaults must only be read for erc4626 vaults")
	}

	asks, bids := st.Offers.Live()
	if asks != 2 || bids != 1 {
		t.Fatalf("expected 2 live asks and 1 live bid, got %d/%d", asks, bids)
	}
	ask := st.Offers.Asks[1]
	if ask.Tick != -199_900 || ask.Gives.Int64() != 5 || !ask.Live {
		t.Fatalf("unexpected ask %+v", ask)
	}
	if st.Offers.Bids[1].Live {
		t.Fatalf("bid with zero gives must not be live")
	}
	// Both sides read as quote per base, asks above bids.
	bid := st.Offers.Bids[0]
	if ask.Price < 1000 || ask.Price > 3000 || bid.Price < 1000 || bid.Price > 3000 {
		t.Fatalf("unexpected prices ask=%f bid=%f", ask.Price, bid.Price)
	}
	if ask.Price <= bid.Price {
		t.Fatalf("ask %f must price above bid %f", ask.Price, bid.Price)
	}
}

func TestReadSkipsLadderWithoutPricePoints(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm, 0)

	st, err := Read(context.Background(), chain.New(evm, 8453), vaultAddr, "")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(st.Offers.Asks)+len(st.Offers.Bids) != 0 {
		t.Fatalf("expected empty ladder, got %+v", st.Offers)
	}
	if n := countMethod(evm, "getOffer") + countMethod(evm, "offerIdOfIndex"); n != 0 {
		t.Fatalf("expected no kandel calls, got %d", n)
	}
	if len(st.Position.Rungs(st.Market)) != 0 {
		t.Fatalf("expected no rungs")
	}
}

func TestReadERC4626Vaults(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm, 0)

	st, err := Read(context.Background(), chain.New(evm, 8453), vaultAddr, TypeERC4626)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if st.BaseVault == nil || *st.BaseVault != common.HexToAddress("0xd1") || *st.QuoteVault != common.HexToAddress("0xd2") {
		t.Fatalf("unexpected sub-vaults %v %v", st.BaseVault, st.QuoteVault)
	}
}

func TestReadFailsWholeOnRevert(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm, 0)
	evm.Handle(vaultAddr, registry.MangroveVaultABI, "owner", func(chaintest.Msg, []any) ([]any, error) {
		return nil, chaintest.Revert("boom")
	})
	if _, err := Read(context.Background(), chain.New(evm, 8453), vaultAddr, ""); !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestReadRejectsUnknownFundsState(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm, 0)
	evm.Returns(vaultAddr, registry.MangroveVaultABI, "fundsState", uint8(7))
	if _, err := Read(context.Background(), chain.New(evm, 8453), vaultAddr, ""); !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestParseFundsState(t *testing.T) {
	for in, want := range map[string]FundsState{"0": FundsVault, "passive": FundsPassive, " Active ": FundsActive, "2": FundsActive} {
		if got, err := ParseFundsState(in); err != nil || got != want {
			t.Fatalf("%q: got %v err=%v", in, got, err)
		}
	}
	for _, in := range []string{"3", "", "idle"} {
		if _, err := ParseFundsState(in); !clierr.Is(err, clierr.CodeValidation) {
			t.Fatalf("%q: expected validation error, got %v", in, err)
		}
	}
}

func TestReadProvision(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm, 0)
	v, err := ReadProvision(context.Background(), chain.New(evm, 8453), vaultAddr, kandelAddr)
	if err != nil || v.Int64() != 42 {
		t.Fatalf("unexpected provision %v err=%v", v, err)
	}
}

func TestDecodeOfferSignExtendsTick(t *testing.T) {
	for _, tick := range []int64{0, 1, -1, 887_272, -887_272} {
		got, gives := DecodeOffer(encodeOffer(tick, 123))
		if got != tick || gives.Int64() != 123 {
			t.Fatalf("tick %d: decoded %d gives %s", tick, got, gives)
		}
	}
}

func TestEncodeFee(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantErr bool
	}{
		{in: "0.15", want: 1500},
		{in: "0.015", want: 150},
		{in: "0", want: 0},
		{in: "1", want: 10_000},
		{in: "0.0001", want: 1},
		{in: "0.00015", wantErr: true},
		{in: "1.0001", wantErr: true},
		{in: "-0.1", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := EncodeFee(tc.in)
		if tc.wantErr {
			if !clierr.Is(err, clierr.CodeValidation) {
				t.Fatalf("%q: expected validation error, got %d %v", tc.in, got, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %d err=%v, want %d", tc.in, got, err, tc.want)
		}
	}
}

func TestFeeRoundTripIsExact(t *testing.T) {
	for k := 0; k <= FeePrecision; k++ {
		got, err := EncodeFeeFraction(DecodeFee(uint16(k)))
		if err != nil || int(got) != k {
			t.Fatalf("round trip of %d gave %d err=%v", k, got, err)
		}
	}
}

func TestSetFeeDataRejectsInexactFeeBeforeSending(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm, 0)
	exec, _ := newTestExecutor(t, evm)

	_, err := New(exec, vaultAddr).SetFeeData(context.Background(), FeeData{PerformanceFee: 0.00015, ManagementFee: 0.01, FeeRecipient: recipient})
	if !clierr.Is(err, clierr.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(evm.Sent()) != 0 || len(evm.Calls()) != 0 {
		t.Fatalf("nothing may reach the chain: %v", evm.Methods())
	}
}

func TestSetFeeDataEncodesFractions(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm, 0)
	var got []any
	evm.Handle(vaultAddr, registry.MangroveVaultABI, "setFeeData", func(msg chaintest.Msg, args []any) ([]any, error) {
		if msg.Commit {
			got = args
		}
		return nil, nil
	})
	exec, out := newTestExecutor(t, evm)

	if _, err := New(exec, vaultAddr).SetFeeData(context.Background(), FeeData{PerformanceFee: 0.15, ManagementFee: 0.015, FeeRecipient: recipient}); err != nil {
		t.Fatalf("SetFeeData failed: %v", err)
	}
	if len(got) != 3 || got[0].(uint16) != 1500 || got[1].(uint16) != 150 || got[2].(common.Address) != recipient {
		t.Fatalf("unexpected setFeeData args %v", got)
	}
	if !strings.Contains(out.String(), "performance fee: 15%") || !strings.Contains(out.String(), "annual management fee: 1.5%") {
		t.Fatalf("unexpected header %q", out.String())
	}
}

func TestSetPositionPacksTuple(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm, 0)
	var sent bool
	evm.Handle(vaultAddr, registry.MangroveVaultABI, "setPosition", func(msg chaintest.Msg, args []any) ([]any, error) {
		sent = sent || msg.Commit
		return nil, nil
	})
	exec, out := newTestExecutor(t, evm)

	p := Position{TickIndex0: -200_200, TickOffset: 100, Params: Params{StepSize: 1, PricePoints: 10}, FundsState: FundsPassive}
	receipt, err := New(exec, vaultAddr).SetPosition(context.Background(), p)
	if err != nil {
		t.Fatalf("SetPosition failed: %v", err)
	}
	if !sent || receipt.Final() != execution.StateConfirmed {
		t.Fatalf("position not sent, states %v", receipt.States)
	}
	for _, want := range []string{"setting position for vault", "gas price: unchanged or default", "funds state: Passive", "position set for vault"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in %q", want, out.String())
		}
	}
}

func TestBurnUsesFixedGas(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm, 0)
	evm.Returns(vaultAddr, registry.MangroveVaultABI, "burn", big.NewInt(1_000), big.NewInt(2_000_000))
	exec, out := newTestExecutor(t, evm)

	res, err := New(exec, vaultAddr).Burn(context.Background(), testMarket(), big.NewInt(10), nil, nil)
	if err != nil {
		t.Fatalf("Burn failed: %v", err)
	}
	if res.Base.Int64() != 1_000 || res.Quote.Int64() != 2_000_000 {
		t.Fatalf("unexpected burn result %+v", res)
	}
	if sent := evm.Sent(); len(sent) != 1 || sent[0].Gas() != BurnGas {
		t.Fatalf("expected one burn with gas %d", BurnGas)
	}
	if !strings.Contains(out.String(), "burning 10 shares for 0.000000000000001 WETH and 2 USDC") {
		t.Fatalf("unexpected burn header %q", out.String())
	}
}

type fakeERC20 struct {
	allowance map[common.Address]*big.Int
}

func installERC20(evm *chaintest.EVM, token common.Address) *fakeERC20 {
	f := &fakeERC20{allowance: map[common.Address]*big.Int{}}
	evm.Handle(token, registry.ERC20ABI, "allowance", func(_ chaintest.Msg, args []any) ([]any, error) {
		if v, ok := f.allowance[args[1].(common.Address)]; ok {
			return []any{v}, nil
		}
		return []any{new(big.Int)}, nil
	})
	evm.Handle(token, registry.ERC20ABI, "approve", func(msg chaintest.Msg, args []any) ([]any, error) {
		if msg.Commit {
			f.allowance[args[0].(common.Address)] = args[1].(*big.Int)
		}
		return []any{true}, nil
	})
	return f
}

func TestMintApprovesHelperThenMints(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm, 0)
	helper := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	installERC20(evm, weth)
	installERC20(evm, usdc)
	evm.Returns(helper, registry.MintHelperABI, "mint", big.NewInt(77), big.NewInt(900), big.NewInt(1_800))
	exec, _ := newTestExecutor(t, evm)

	res, err := New(exec, vaultAddr).Mint(context.Background(), helper, testMarket(), big.NewInt(1_000), big.NewInt(2_000), nil, nil)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if res.Shares.Int64() != 77 || len(res.Approvals) != 2 {
		t.Fatalf("unexpected mint result %+v", res)
	}
	var order []string
	for _, c := range evm.Calls() {
		if c.Kind == "send" {
			order = append(order, c.Method)
		}
	}
	if strings.Join(order, ",") != "approve,approve,mint" {
		t.Fatalf("unexpected send order %v", order)
	}
}

func TestMintDeclinedApprovalMintsNothing(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm, 0)
	helper := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	installERC20(evm, weth)
	installERC20(evm, usdc)
	evm.Returns(helper, registry.MintHelperABI, "mint", big.NewInt(77), big.NewInt(900), big.NewInt(1_800))
	exec, _ := newTestExecutor(t, evm)

	decline := func(execution.AllowanceEntry, *big.Int) (bool, error) { return false, nil }
	_, err := New(exec, vaultAddr).Mint(context.Background(), helper, testMarket(), big.NewInt(1_000), big.NewInt(2_000), nil, decline)
	if !clierr.Is(err, clierr.CodeDeclined) {
		t.Fatalf("expected declined error, got %v", err)
	}
	if len(evm.Sent()) != 0 || countMethod(evm, "mint") != 0 {
		t.Fatalf("nothing may be sent after a decline: %v", evm.Methods())
	}
}

func TestWithdrawFromMangroveBoundsAmount(t *testing.T) {
	evm := chaintest.New(8453)
	exec, _ := newTestExecutor(t, evm)
	_, err := New(exec, vaultAddr).WithdrawFromMangrove(context.Background(), big.NewInt(43), big.NewInt(42), ownerAddr)
	if !clierr.Is(err, clierr.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateValidatesAndAnnouncesAddress(t *testing.T) {
	evm := chaintest.New(8453)
	entry, _ := registry.Lookup(8453)
	created := common.HexToAddress("0x00000000000000000000000000000000000000f9")
	var gotOwner common.Address
	evm.Handle(entry.VaultFactory, registry.VaultFactoryABI, "createVault", func(msg chaintest.Msg, args []any) ([]any, error) {
		gotOwner = args[8].(common.Address)
		return []any{created}, nil
	})
	exec, out := newTestExecutor(t, evm)

	base := CreateArgs{
		Seeder:      entry.Seeders["simple"],
		Base:        weth,
		Quote:       usdc,
		TickSpacing: big.NewInt(1),
		Name:        "Mangrove WETH/USDC",
		Symbol:      "mgvWETH",
		Oracle:      oracleAddr,
	}
	invalid := []func(a *CreateArgs){
		func(a *CreateArgs) { a.Seeder = recipient },
		func(a *CreateArgs) { a.Name = " " },
		func(a *CreateArgs) { a.Symbol = "" },
		func(a *CreateArgs) { a.Decimals = 37 },
		func(a *CreateArgs) { a.Oracle = common.Address{} },
		func(a *CreateArgs) { a.Quote = weth },
	}
	for i, mutate := range invalid {
		a := base
		mutate(&a)
		if _, err := Create(context.Background(), exec, entry, a); !clierr.Is(err, clierr.CodeValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if len(evm.Calls()) != 0 {
		t.Fatalf("invalid args must not reach the chain")
	}

	res, err := Create(context.Background(), exec, entry, base)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if res.Address != created || gotOwner != exec.Sender() {
		t.Fatalf("unexpected result %+v owner %s", res, gotOwner.Hex())
	}
	if !strings.Contains(out.String(), "creating vault at address "+created.Hex()) {
		t.Fatalf("missing creation header in %q", out.String())
	}
}
