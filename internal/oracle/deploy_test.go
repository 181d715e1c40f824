package oracle

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mangrovedao/vault-console/internal/chain"
	"github.com/mangrovedao/vault-console/internal/chain/chaintest"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution"
	"github.com/mangrovedao/vault-console/internal/execution/signer"
	"github.com/mangrovedao/vault-console/internal/registry"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

var (
	feedA     = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	oracleOut = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

func newTestDeployer(t *testing.T, evm *chaintest.EVM) (*Deployer, *bytes.Buffer) {
	t.Helper()
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	var out bytes.Buffer
	exec := execution.New(evm, s, 8453,
		execution.WithOutput(&out),
		execution.WithOptions(execution.Options{GasMultiplier: 1.2, PollInterval: time.Millisecond}),
	)
	entry, ok := registry.Lookup(8453)
	if !ok {
		t.Fatalf("missing base registry entry")
	}
	return NewDeployer(exec, entry), &out
}

// installFactory answers computeOracleAddress and create with a fixed
// address; a mined create installs code there.
func installFactory(evm *chaintest.EVM, family registry.OracleFamily, addr common.Address) {
	entry, _ := registry.Lookup(8453)
	factory := entry.OracleFactories[family]
	raw := families[family].raw
	if families[family].precompute {
		evm.Returns(factory, raw, "computeOracleAddress", addr)
	}
	evm.Handle(factory, raw, "create", func(msg chaintest.Msg, _ []any) ([]any, error) {
		if msg.Commit {
			evm.SetCode(addr, []byte{0x60, 0x80})
		}
		return []any{addr}, nil
	})
}

func v2Args() ChainlinkV2Args {
	return ChainlinkV2Args{Feeds: ChainlinkFeeds{BaseFeed1: &ChainlinkFeed{Feed: feedA, BaseDecimals: 18, QuoteDecimals: 6}}}
}

func TestDeployTwiceCreatesOnce(t *testing.T) {
	evm := chaintest.New(8453)
	installFactory(evm, registry.OracleChainlinkV2, oracleOut)
	d, out := newTestDeployer(t, evm)

	first, err := d.Deploy(context.Background(), v2Args(), [32]byte{})
	if err != nil {
		t.Fatalf("first Deploy failed: %v", err)
	}
	if first.Address != oracleOut || first.AlreadyDeployed {
		t.Fatalf("unexpected first result %+v", first)
	}
	if !strings.Contains(out.String(), "oracle will be deployed at "+oracleOut.Hex()) {
		t.Fatalf("missing deployment header in %q", out.String())
	}

	second, err := d.Deploy(context.Background(), v2Args(), [32]byte{})
	if err != nil {
		t.Fatalf("second Deploy failed: %v", err)
	}
	if second.Address != oracleOut || !second.AlreadyDeployed {
		t.Fatalf("unexpected second result %+v", second)
	}
	if n := evm.CountSent("create"); n != 1 {
		t.Fatalf("expected one create transaction, got %d", n)
	}
}

func TestDeployChainlinkV1SkipsPrecompute(t *testing.T) {
	evm := chaintest.New(8453)
	installFactory(evm, registry.OracleChainlinkV1, oracleOut)
	d, _ := newTestDeployer(t, evm)

	res, err := d.Deploy(context.Background(), ChainlinkV1Args{Feeds: v2Args().Feeds}, [32]byte{})
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if res.Address != oracleOut || res.AlreadyDeployed {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, m := range evm.Methods() {
		if m == "call:computeOracleAddress" {
			t.Fatalf("chainlinkv1 must not precompute, calls: %v", evm.Methods())
		}
	}
}

func TestDeployPacksAbsentSlotsAsZero(t *testing.T) {
	evm := chaintest.New(8453)
	installFactory(evm, registry.OracleChainlinkV2, oracleOut)
	d, _ := newTestDeployer(t, evm)

	if _, _, err := d.Compute(context.Background(), v2Args(), [32]byte{}); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	calls := evm.Calls()
	if len(calls) == 0 {
		t.Fatalf("no factory call recorded")
	}
	args := calls[0].Args
	if len(args) != 7 {
		t.Fatalf("expected 7 factory arguments, got %d", len(args))
	}
	quoteFeed := abi.ConvertType(args[2], new(chainlinkFeedArg)).(*chainlinkFeedArg)
	if quoteFeed.Feed != (common.Address{}) || quoteFeed.BaseDecimals.Sign() != 0 {
		t.Fatalf("absent slot not zeroed: %+v", quoteFeed)
	}
}

func TestDeployValidatesBeforeCalling(t *testing.T) {
	evm := chaintest.New(8453)
	d, _ := newTestDeployer(t, evm)

	tests := []struct {
		name string
		args Args
	}{
		{"empty chainlink", ChainlinkV2Args{}},
		{"empty combiner", CombinerV1Args{}},
		{"dia key too long", DiaV1Args{Feeds: DiaFeeds{BaseFeed1: &DiaFeed{Oracle: feedA, Key: strings.Repeat("k", 33)}}}},
		{"vault without sample", DiaV1Args{Vaults: VaultFeeds{BaseVault: &VaultFeed{Vault: feedA}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Deploy(context.Background(), tc.args, [32]byte{})
			if !clierr.Is(err, clierr.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if len(evm.Calls()) != 0 {
		t.Fatalf("validation failures must not reach the chain: %v", evm.Methods())
	}
}

func TestDeployUnknownFactoryIsUnsupported(t *testing.T) {
	evm := chaintest.New(42161)
	s, _ := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testPrivateKey})
	entry, _ := registry.Lookup(42161)
	d := NewDeployer(execution.New(evm, s, 42161), entry)

	_, err := d.Deploy(context.Background(), v2Args(), [32]byte{})
	if !clierr.Is(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestPackDiaKey(t *testing.T) {
	key, err := PackDiaKey("ETH/USD")
	if err != nil {
		t.Fatalf("PackDiaKey failed: %v", err)
	}
	if string(key[:7]) != "ETH/USD" || key[7] != 0 || key[31] != 0 {
		t.Fatalf("unexpected packing %x", key)
	}
	if _, err := PackDiaKey(strings.Repeat("x", 32)); err != nil {
		t.Fatalf("32 byte key rejected: %v", err)
	}
}

func TestRetryWithFreshSaltUsesDistinctSalts(t *testing.T) {
	seen := map[[32]byte]bool{}
	calls := 0
	res, err := RetryWithFreshSalt(context.Background(), 0, func(_ context.Context, salt [32]byte) (Result, error) {
		calls++
		if salt == ([32]byte{}) || seen[salt] {
			t.Fatalf("salt reused or zero: %x", salt)
		}
		seen[salt] = true
		if calls < 3 {
			return Result{}, clierr.New(clierr.CodeActionSim, "create reverted")
		}
		return Result{Address: oracleOut}, nil
	})
	if err != nil {
		t.Fatalf("RetryWithFreshSalt failed: %v", err)
	}
	if res.Address != oracleOut || calls != 3 {
		t.Fatalf("unexpected result %+v after %d calls", res, calls)
	}
}

func TestRetryWithFreshSaltStopsOnValidation(t *testing.T) {
	calls := 0
	_, err := RetryWithFreshSalt(context.Background(), 5, func(context.Context, [32]byte) (Result, error) {
		calls++
		return Result{}, errNoFeed
	})
	if !clierr.Is(err, clierr.CodeValidation) || calls != 1 {
		t.Fatalf("expected one attempt with validation error, got %d attempts err=%v", calls, err)
	}
}

func TestRetryWithFreshSaltGivesUp(t *testing.T) {
	calls := 0
	boom := clierr.New(clierr.CodeActionSim, "create reverted")
	_, err := RetryWithFreshSalt(context.Background(), 4, func(context.Context, [32]byte) (Result, error) {
		calls++
		return Result{}, boom
	})
	if calls != 4 || !errors.Is(err, boom) {
		t.Fatalf("expected 4 attempts ending in the last error, got %d err=%v", calls, err)
	}
}

func TestReadPrice(t *testing.T) {
	evm := chaintest.New(8453)
	base := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	quote := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	evm.Returns(base, registry.ERC20ABI, "decimals", uint8(18))
	evm.Returns(base, registry.ERC20ABI, "symbol", "WETH")
	evm.Returns(quote, registry.ERC20ABI, "decimals", uint8(6))
	evm.Returns(quote, registry.ERC20ABI, "symbol", "USDC")
	evm.Returns(oracleOut, registry.OracleABI, "tick", big.NewInt(-200000))

	p, err := ReadPrice(context.Background(), chain.New(evm, 8453), oracleOut, base, quote, big.NewInt(1))
	if err != nil {
		t.Fatalf("ReadPrice failed: %v", err)
	}
	if p.Tick != -200000 || p.Market.String() != "WETH/USDC" {
		t.Fatalf("unexpected price %+v", p)
	}
	// 1.0001^-200000 * 1e12 is about 2061.
	if p.Price < 2000 || p.Price > 2100 {
		t.Fatalf("unexpected human price %f", p.Price)
	}
	if methods := evm.Methods(); len(methods) != 5 {
		t.Fatalf("expected one batch of 5 reads, got %v", methods)
	}
}

func TestReadPriceRejectsOutOfRangeTick(t *testing.T) {
	evm := chaintest.New(8453)
	base := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	evm.Returns(base, registry.ERC20ABI, "decimals", uint8(18))
	evm.Returns(base, registry.ERC20ABI, "symbol", "WETH")
	evm.Returns(oracleOut, registry.OracleABI, "tick", big.NewInt(1_000_000))

	_, err := ReadPrice(context.Background(), chain.New(evm, 8453), oracleOut, base, base, nil)
	if !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
