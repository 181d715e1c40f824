package app

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mangrovedao/vault-console/internal/chain/chaintest"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution/signer"
	"github.com/mangrovedao/vault-console/internal/prompt"
	"github.com/mangrovedao/vault-console/internal/registry"
)

// manageScript opens the manage menu on the test vault without saving it.
func manageScript(then ...string) []string {
	script := []string{"Manage vault", enterAddressOption, vaultAddr.Hex(), "n", "n"}
	script = append(script, then...)
	return append(script, manageBack, menuExit)
}

func runConsoleScript(t *testing.T, evm *chaintest.EVM, script []string, extra ...string) (int, string, *prompt.Scripted) {
	t.Helper()
	dir := isolate(t)
	p := prompt.NewScripted(script...)
	var stdout, stderr bytes.Buffer
	args := append([]string{"--chain", "base", "--vaults-path", filepath.Join(dir, "vaults.json")}, extra...)
	code := NewRunnerWithWriters(&stdout, &stderr, evmDialer(evm), testKey(), WithPrompter(p)).Run(args)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s stdout=%s", code, stderr.String(), stdout.String())
	}
	return code, stdout.String(), p
}

func TestConsoleExitsOnExit(t *testing.T) {
	evm := chaintest.New(8453)
	_, out, p := runConsoleScript(t, evm, []string{menuExit})
	if !strings.Contains(out, "Using account") {
		t.Fatalf("expected the account banner, got %q", out)
	}
	if len(p.Remaining()) != 0 {
		t.Fatalf("unused answers %v", p.Remaining())
	}
}

func TestConsoleExhaustedScriptExitsCleanly(t *testing.T) {
	evm := chaintest.New(8453)
	runConsoleScript(t, evm, nil)
}

func TestConsoleChangeFeeSendsOneTransaction(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm)
	var got []any
	evm.Handle(vaultAddr, registry.MangroveVaultABI, "setFeeData", func(msg chaintest.Msg, args []any) ([]any, error) {
		if msg.Commit {
			got = args
		}
		return nil, nil
	})

	// Recipient keeps its default, performance goes to 20%, management keeps 1.5%.
	_, out, p := runConsoleScript(t, evm, manageScript(manageFees, "", "0.2", "", "y"))
	if n := evm.CountSent("setFeeData"); n != 1 {
		t.Fatalf("expected one setFeeData transaction, got %d (methods %v) out=%s", n, evm.Methods(), out)
	}
	if len(got) != 3 || got[0].(uint16) != 2000 || got[1].(uint16) != 150 {
		t.Fatalf("unexpected setFeeData args %v", got)
	}
	if len(p.Remaining()) != 0 {
		t.Fatalf("unused answers %v", p.Remaining())
	}
}

func TestConsoleDeclinedFeeChangeSendsNothing(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm)
	evm.Returns(vaultAddr, registry.MangroveVaultABI, "setFeeData")

	_, out, _ := runConsoleScript(t, evm, manageScript(manageFees, "", "0.2", "", "n"))
	if len(evm.Sent()) != 0 {
		t.Fatalf("declined change must not send, got %v", evm.Methods())
	}
	if !strings.Contains(out, "cancelled") {
		t.Fatalf("expected a cancellation notice, got %q", out)
	}
}

func TestConsoleInexactFeeIsRejectedAtThePrompt(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm)

	_, out, _ := runConsoleScript(t, evm, manageScript(manageFees, "", "0.00015"))
	if len(evm.Sent()) != 0 {
		t.Fatalf("nothing may be sent, got %v", evm.Methods())
	}
	if !strings.Contains(out, "error (") {
		t.Fatalf("expected the validation error in the console, got %q", out)
	}
}

func TestConsoleReadOnlyBlocksWrites(t *testing.T) {
	evm := chaintest.New(8453)
	installVault(evm)
	evm.Returns(vaultAddr, registry.MangroveVaultABI, "setFeeData")

	_, out, p := runConsoleScript(t, evm, manageScript(manageFees), "--read-only")
	if len(evm.Sent()) != 0 {
		t.Fatalf("read-only console sent %v", evm.Methods())
	}
	if !strings.Contains(out, clierr.TypeName(clierr.CodeBlocked)) {
		t.Fatalf("expected a blocked error, got %q", out)
	}
	if len(p.Remaining()) != 0 {
		t.Fatalf("the flow must stop before prompting, unused %v", p.Remaining())
	}
}

func TestConsoleReadOnlyRunsWithoutKey(t *testing.T) {
	dir := isolate(t)
	evm := chaintest.New(8453)
	installVault(evm)
	p := prompt.NewScripted(manageScript(manageView)...)
	noKey := WithKeyLoader(func(string) (signer.Signer, error) {
		return nil, clierr.New(clierr.CodeSigner, "no key configured")
	})
	var stdout, stderr bytes.Buffer
	code := NewRunnerWithWriters(&stdout, &stderr, evmDialer(evm), noKey, WithPrompter(p)).Run([]string{
		"--chain", "base", "--read-only", "--vaults-path", filepath.Join(dir, "vaults.json"),
	})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "Read-only session") || !strings.Contains(out, "WETH/USDC") {
		t.Fatalf("expected a keyless session showing the vault, got %q", out)
	}
}

func TestConsoleWithoutKeyFailsOutsideReadOnly(t *testing.T) {
	isolate(t)
	evm := chaintest.New(8453)
	noKey := WithKeyLoader(func(string) (signer.Signer, error) {
		return nil, clierr.New(clierr.CodeSigner, "no key configured")
	})
	var stdout, stderr bytes.Buffer
	code := NewRunnerWithWriters(&stdout, &stderr, evmDialer(evm), noKey, WithPrompter(prompt.NewScripted(menuExit))).Run([]string{"--chain", "base"})
	if code != int(clierr.CodeSigner) {
		t.Fatalf("expected signer exit, got %d stderr=%s", code, stderr.String())
	}
}

func TestConsoleSavesVaultFromManage(t *testing.T) {
	dir := isolate(t)
	evm := chaintest.New(8453)
	installVault(evm)
	evm.Returns(vaultAddr, registry.ERC4626VaultABI, "currentVaults", weth, usdc)
	path := filepath.Join(dir, "vaults.json")
	// Save with the default name and a label, then leave.
	p := prompt.NewScripted("Manage vault", enterAddressOption, vaultAddr.Hex(), "y", "y", "", "main", manageBack, menuExit)
	var stdout, stderr bytes.Buffer
	code := NewRunnerWithWriters(&stdout, &stderr, evmDialer(evm), testKey(), WithPrompter(p)).Run([]string{"--chain", "base", "--vaults-path", path})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}

	stdout.Reset()
	code = NewRunnerWithWriters(&stdout, &stderr).Run([]string{"vaults", "list", "--vaults-path", path, "--results-only"})
	if code != 0 {
		t.Fatalf("list: expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "MGV-WETH-USDC") || !strings.Contains(stdout.String(), "erc4626") {
		t.Fatalf("expected the saved erc4626 vault, got %s", stdout.String())
	}
}
