package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmp, "cache"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmp, "data"))
	return tmp
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: plain\nretries: 1\nchain: arbitrum\nlog_level: debug\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MGV_OUTPUT", "json")
	t.Setenv("MGV_LOG_LEVEL", "warn")
	flags := GlobalFlags{ConfigPath: configPath, EnvFile: filepath.Join(tmp, "missing.env"), Plain: true, Retries: 5}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Retries != 5 {
		t.Fatalf("expected retries from flags, got %d", settings.Retries)
	}
	if settings.LogLevel != "warn" {
		t.Fatalf("expected env to beat file, got log level %s", settings.LogLevel)
	}
	if settings.Chain != "arbitrum" {
		t.Fatalf("expected chain from file, got %s", settings.Chain)
	}
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	tmp := isolate(t)
	envPath := filepath.Join(tmp, ".env")
	content := "MGV_CHAIN=arbitrum\nMGV_RPC_URL=http://from-dotenv:8545\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("MGV_CHAIN", "base")
	// Registered so the value loaded from the file is cleared after the test.
	t.Setenv("MGV_RPC_URL", "")
	os.Unsetenv("MGV_RPC_URL")

	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(tmp, "none.yaml"), EnvFile: envPath, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.Chain != "base" {
		t.Fatalf("expected process env to win over .env, got %s", settings.Chain)
	}
	if settings.RPCURL != "http://from-dotenv:8545" {
		t.Fatalf("expected rpc url from .env, got %q", settings.RPCURL)
	}
}

func TestLoadFileSections(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	yaml := `
rpc:
  8453: https://base.example
vaults:
  path: /tmp/vaults.json
cache:
  feed_ttl: 30m
execution:
  gas_multiplier: 1.5
  receipt_timeout: 3m
providers:
  kame:
    base_url: https://kame.example
    contracts:
      8453: "0x00000000000000000000000000000000000000aa"
  odos:
    referral_code: 7
read_only: true
intermediary_decimals: 8
`
	if err := os.WriteFile(configPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	settings, err := Load(GlobalFlags{ConfigPath: configPath, EnvFile: filepath.Join(tmp, "none.env"), Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := settings.RPCFor(8453); got != "https://base.example" {
		t.Fatalf("unexpected rpc: %s", got)
	}
	if settings.RPCFor(42161) != "" {
		t.Fatal("expected no rpc override for arbitrum")
	}
	if settings.VaultsPath != "/tmp/vaults.json" || settings.VaultsLockPath != "/tmp/vaults.json.lock" {
		t.Fatalf("unexpected vault paths: %s %s", settings.VaultsPath, settings.VaultsLockPath)
	}
	if settings.FeedTTL != 30*time.Minute {
		t.Fatalf("unexpected feed ttl: %s", settings.FeedTTL)
	}
	if settings.Execution.GasMultiplier != 1.5 || settings.Execution.ReceiptTimeout != 3*time.Minute {
		t.Fatalf("unexpected execution settings: %+v", settings.Execution)
	}
	kame := settings.Provider("kame")
	if kame.BaseURL != "https://kame.example" || kame.Contracts[8453] == "" {
		t.Fatalf("unexpected kame settings: %+v", kame)
	}
	if settings.OdosReferralCode != 7 {
		t.Fatalf("unexpected referral code: %d", settings.OdosReferralCode)
	}
	if !settings.ReadOnly || settings.IntermediaryDecimals != 8 {
		t.Fatalf("unexpected flags: read_only=%v decimals=%d", settings.ReadOnly, settings.IntermediaryDecimals)
	}
	if settings.Provider("symphony").Contracts == nil {
		t.Fatal("expected non-nil contracts map")
	}
}

func TestRPCFlagOverridesChainMap(t *testing.T) {
	s := Settings{RPCURL: " http://localhost:8545 ", RPC: map[int64]string{8453: "https://base.example"}}
	if got := s.RPCFor(8453); got != "http://localhost:8545" {
		t.Fatalf("unexpected rpc: %s", got)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	isolate(t)
	_, err := Load(GlobalFlags{JSON: true, Plain: true, Retries: -1})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}

func TestLoadRejectsIntermediaryDecimals(t *testing.T) {
	isolate(t)
	t.Setenv("MGV_INTERMEDIARY_DECIMALS", "40")
	if _, err := Load(GlobalFlags{Retries: -1}); err == nil {
		t.Fatal("expected intermediary decimals error")
	}
}
