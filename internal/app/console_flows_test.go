package app

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mangrovedao/vault-console/internal/chain/chaintest"
	"github.com/mangrovedao/vault-console/internal/execution/signer"
	"github.com/mangrovedao/vault-console/internal/prompt"
	"github.com/mangrovedao/vault-console/internal/registry"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

func testAccount(t *testing.T) common.Address {
	t.Helper()
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	return s.Address()
}

func TestConsoleCreateVaultFromExistingOracle(t *testing.T) {
	dir := isolate(t)
	evm := chaintest.New(8453)
	installVault(evm)
	entry, _ := registry.Lookup(8453)
	created := common.HexToAddress("0x00000000000000000000000000000000000000f9")
	var got []any
	evm.Handle(entry.VaultFactory, registry.VaultFactoryABI, "createVault", func(msg chaintest.Msg, args []any) ([]any, error) {
		if msg.Commit {
			got = args
		}
		return []any{created}, nil
	})
	evm.Returns(created, registry.ERC20ABI, "symbol", "MGV-WETH-USDC")
	evm.Returns(created, registry.ERC20ABI, "decimals", uint8(18))

	path := filepath.Join(dir, "vaults.json")
	// Seeder, pair, oracle, then defaults for spacing, name, symbol and
	// decimals; confirm, save under the share symbol without a label.
	p := prompt.NewScripted(menuCreateFromOracle, "simple", weth.Hex(), usdc.Hex(), oracleAddr.Hex(),
		"", "", "", "", "y", "y", "", "", menuExit)
	var stdout, stderr bytes.Buffer
	code := NewRunnerWithWriters(&stdout, &stderr, evmDialer(evm), testKey(), WithPrompter(p)).Run([]string{
		"--chain", "base", "--vaults-path", path,
	})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	if n := evm.CountSent("createVault"); n != 1 {
		t.Fatalf("expected one createVault transaction, got %d (methods %v) out=%s", n, evm.Methods(), stdout.String())
	}
	if len(got) != 9 {
		t.Fatalf("unexpected createVault args %v", got)
	}
	if got[0].(common.Address) != entry.Seeders["simple"] || got[7].(common.Address) != oracleAddr || got[8].(common.Address) != testAccount(t) {
		t.Fatalf("unexpected seeder, oracle or owner in %v", got)
	}
	if got[5].(string) != "Mangrove WETH/USDC" || got[6].(string) != "MGV-WETH-USDC" || got[4].(uint8) != 18 {
		t.Fatalf("defaults not applied: %v", got)
	}
	if !strings.Contains(stdout.String(), "oracle price:") {
		t.Fatalf("expected the oracle price before confirming, got %q", stdout.String())
	}
	raw, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(raw), created.Hex()) {
		t.Fatalf("expected the new vault saved, got %s err=%v", raw, err)
	}
	if len(p.Remaining()) != 0 {
		t.Fatalf("unused answers %v", p.Remaining())
	}
}

func TestConsoleDeployOracleRetriesWithRandomSalt(t *testing.T) {
	evm := chaintest.New(8453)
	entry, _ := registry.Lookup(8453)
	factory := entry.OracleFactories[registry.OracleCombinerV1]
	deployed := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	evm.Returns(factory, registry.CombinerV1FactoryABI, "computeOracleAddress", deployed)
	var salts [][32]byte
	evm.Handle(factory, registry.CombinerV1FactoryABI, "create", func(msg chaintest.Msg, args []any) ([]any, error) {
		salt := args[4].([32]byte)
		if salt == ([32]byte{}) {
			return nil, chaintest.Revert("oracle exists")
		}
		if msg.Commit {
			salts = append(salts, salt)
			evm.SetCode(deployed, []byte{0x60, 0x80})
		}
		return []any{deployed}, nil
	})

	// One real oracle and three empty slots; the zero salt fails, the
	// operator accepts a retry.
	script := []string{menuDeployOracle, string(registry.OracleCombinerV1), oracleAddr.Hex(), zeroAddress, zeroAddress, zeroAddress,
		"y", "y", menuExit}
	_, out, p := runConsoleScript(t, evm, script)
	if n := evm.CountSent("create"); n != 1 {
		t.Fatalf("expected one create transaction, got %d (methods %v)", n, evm.Methods())
	}
	if len(salts) != 1 || salts[0] == ([32]byte{}) {
		t.Fatalf("expected the mined create to carry a random salt, got %x", salts)
	}
	if !strings.Contains(out, "deployment failed") || !strings.Contains(out, "oracle deployed at "+deployed.Hex()) {
		t.Fatalf("expected the failure then the deployment, got %q", out)
	}
	if len(p.Remaining()) != 0 {
		t.Fatalf("unused answers %v", p.Remaining())
	}
}

func TestConsoleDeployOracleDeclinedRetrySendsNothing(t *testing.T) {
	evm := chaintest.New(8453)
	entry, _ := registry.Lookup(8453)
	factory := entry.OracleFactories[registry.OracleCombinerV1]
	evm.Returns(factory, registry.CombinerV1FactoryABI, "computeOracleAddress", oracleAddr)
	evm.Handle(factory, registry.CombinerV1FactoryABI, "create", func(chaintest.Msg, []any) ([]any, error) {
		return nil, chaintest.Revert("oracle exists")
	})

	script := []string{menuDeployOracle, string(registry.OracleCombinerV1), oracleAddr.Hex(), zeroAddress, zeroAddress, zeroAddress,
		"y", "n", menuExit}
	_, out, _ := runConsoleScript(t, evm, script)
	if len(evm.Sent()) != 0 {
		t.Fatalf("nothing may be sent, got %v", evm.Methods())
	}
	if !strings.Contains(out, "error (") {
		t.Fatalf("expected the deployment error reported, got %q", out)
	}
}

// newOdosServer answers quotes for selling WETH into USDC and assembles a
// call to the registry's Odos executor on Base.
func newOdosServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/sor/quote/v2", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"inTokens": ["` + weth.Hex() + `"],
			"outTokens": ["` + usdc.Hex() + `"],
			"inAmounts": ["5"],
			"outAmounts": ["1000000"],
			"gasEstimate": 181234,
			"priceImpact": -0.01,
			"pathId": "path-1"
		}`))
	})
	mux.HandleFunc("/sor/assemble", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transaction": {"to": "0x19cEeAd7105607Cd444F5ad10dd51356436095a1", "data": "0x83bd37f9000a", "value": "0"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestConsoleRebalanceWhitelistsThenSwaps(t *testing.T) {
	srv := newOdosServer(t)
	t.Setenv("MGV_ODOS_URL", srv.URL)
	evm := chaintest.New(8453)
	installVault(evm)
	entry, _ := registry.Lookup(8453)
	route, _ := entry.Provider(registry.ProviderOdos)

	allowed := false
	evm.Handle(vaultAddr, registry.MangroveVaultABI, "allowedSwapContracts", func(chaintest.Msg, []any) ([]any, error) {
		return []any{allowed}, nil
	})
	evm.Handle(vaultAddr, registry.MangroveVaultABI, "allowSwapContract", func(msg chaintest.Msg, args []any) ([]any, error) {
		if msg.Commit {
			if args[0].(common.Address) != route.Contract {
				t.Errorf("whitelisted %s, want %s", args[0].(common.Address).Hex(), route.Contract.Hex())
			}
			allowed = true
		}
		return nil, nil
	})
	var swap []any
	evm.Handle(vaultAddr, registry.MangroveVaultABI, "swap", func(msg chaintest.Msg, args []any) ([]any, error) {
		if msg.Commit {
			swap = args
		}
		return nil, nil
	})

	// The vault holds 5 wei of WETH; sell all of it, whitelist the executor,
	// keep the default minimum and submit.
	_, out, p := runConsoleScript(t, evm, manageScript(manageRebalance,
		string(registry.ProviderOdos), sellBase, "0.000000000000000005", "y", "", "y"))

	var sends []string
	for _, m := range evm.Methods() {
		if strings.HasPrefix(m, "send:") {
			sends = append(sends, m)
		}
	}
	if len(sends) != 2 || sends[0] != "send:allowSwapContract" || sends[1] != "send:swap" {
		t.Fatalf("expected whitelist then swap, got %v out=%s", sends, out)
	}
	if len(swap) != 5 {
		t.Fatalf("unexpected swap args %v", swap)
	}
	if swap[0].(common.Address) != route.Contract || swap[2].(*big.Int).Int64() != 5 ||
		swap[3].(*big.Int).Int64() != 990_000 || swap[4].(bool) != true {
		t.Fatalf("unexpected swap args %v", swap)
	}
	if !strings.Contains(out, "swapped") {
		t.Fatalf("expected a swap summary, got %q", out)
	}
	if len(p.Remaining()) != 0 {
		t.Fatalf("unused answers %v", p.Remaining())
	}
}

func TestConsoleRebalanceDeclinedWhitelistSendsNothing(t *testing.T) {
	srv := newOdosServer(t)
	t.Setenv("MGV_ODOS_URL", srv.URL)
	evm := chaintest.New(8453)
	installVault(evm)
	evm.Returns(vaultAddr, registry.MangroveVaultABI, "allowedSwapContracts", false)
	evm.Returns(vaultAddr, registry.MangroveVaultABI, "allowSwapContract")
	evm.Returns(vaultAddr, registry.MangroveVaultABI, "swap")

	_, out, _ := runConsoleScript(t, evm, manageScript(manageRebalance,
		string(registry.ProviderOdos), sellBase, "0.000000000000000005", "n"))
	if len(evm.Sent()) != 0 {
		t.Fatalf("declined whitelist must not send, got %v", evm.Methods())
	}
	if !strings.Contains(out, "cancelled") {
		t.Fatalf("expected a cancellation notice, got %q", out)
	}
}
