package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	Retries        int
	LogLevel       string
	Chain          string
	RPCURL         string
	VaultsPath     string
	ReadOnly       bool
	NoCache        bool
}

// ExecutionSettings tune how transactions are priced and awaited.
type ExecutionSettings struct {
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	PollInterval       time.Duration
	// ReceiptTimeout of zero waits until the caller's context ends.
	ReceiptTimeout time.Duration
}

// ProviderSettings override an aggregator's endpoint and executor contracts.
type ProviderSettings struct {
	BaseURL   string
	Contracts map[int64]string
}

type Settings struct {
	OutputMode           string
	SelectFields         []string
	ResultsOnly          bool
	EnableCommands       []string
	Timeout              time.Duration
	Retries              int
	RateLimit            float64
	Burst                int
	LogLevel             string
	Chain                string
	RPCURL               string
	RPC                  map[int64]string
	VaultsPath           string
	VaultsLockPath       string
	CacheEnabled         bool
	CachePath            string
	CacheLockPath        string
	FeedTTL              time.Duration
	ActionStorePath      string
	ActionLockPath       string
	Execution            ExecutionSettings
	Providers            map[string]ProviderSettings
	OdosReferralCode     int
	OpenOceanGasPrice    string
	ReadOnly             bool
	IntermediaryDecimals int
}

// RPCFor picks the endpoint for a chain: explicit override first, then the
// per-chain map. An empty result means the registry default applies.
func (s Settings) RPCFor(chainID int64) string {
	if strings.TrimSpace(s.RPCURL) != "" {
		return strings.TrimSpace(s.RPCURL)
	}
	return strings.TrimSpace(s.RPC[chainID])
}

// Provider returns the overrides for one aggregator, never nil maps.
func (s Settings) Provider(name string) ProviderSettings {
	p := s.Providers[strings.ToLower(name)]
	if p.Contracts == nil {
		p.Contracts = map[int64]string{}
	}
	return p
}

type fileConfig struct {
	Output    string           `yaml:"output"`
	Timeout   string           `yaml:"timeout"`
	Retries   *int             `yaml:"retries"`
	RateLimit *float64         `yaml:"rate_limit"`
	Burst     *int             `yaml:"burst"`
	LogLevel  string           `yaml:"log_level"`
	Chain     string           `yaml:"chain"`
	RPC       map[int64]string `yaml:"rpc"`
	Vaults    struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"vaults"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		FeedTTL  string `yaml:"feed_ttl"`
	} `yaml:"cache"`
	Execution struct {
		ActionsPath        string   `yaml:"actions_path"`
		ActionsLockPath    string   `yaml:"actions_lock_path"`
		GasMultiplier      *float64 `yaml:"gas_multiplier"`
		MaxFeeGwei         string   `yaml:"max_fee_gwei"`
		MaxPriorityFeeGwei string   `yaml:"max_priority_fee_gwei"`
		PollInterval       string   `yaml:"poll_interval"`
		ReceiptTimeout     string   `yaml:"receipt_timeout"`
	} `yaml:"execution"`
	Providers map[string]struct {
		BaseURL      string           `yaml:"base_url"`
		Contracts    map[int64]string `yaml:"contracts"`
		ReferralCode *int             `yaml:"referral_code"`
		GasPrice     string           `yaml:"gas_price"`
	} `yaml:"providers"`
	ReadOnly             *bool `yaml:"read_only"`
	IntermediaryDecimals *int  `yaml:"intermediary_decimals"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := loadDotEnv(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.Burst <= 0 {
		settings.Burst = 1
	}
	if settings.Execution.GasMultiplier < 1 {
		settings.Execution.GasMultiplier = 1
	}
	if settings.Execution.PollInterval <= 0 {
		settings.Execution.PollInterval = 2 * time.Second
	}
	if settings.IntermediaryDecimals <= 0 || settings.IntermediaryDecimals > 36 {
		return Settings{}, fmt.Errorf("intermediary_decimals must be within 1..36")
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	vaultsPath, err := defaultVaultsPath()
	if err != nil {
		return Settings{}, err
	}
	cacheDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode:      "json",
		Timeout:         10 * time.Second,
		Retries:         2,
		RateLimit:       5,
		Burst:           2,
		LogLevel:        "info",
		Chain:           "base",
		RPC:             map[int64]string{},
		VaultsPath:      vaultsPath,
		VaultsLockPath:  vaultsPath + ".lock",
		CacheEnabled:    true,
		CachePath:       cachePath,
		CacheLockPath:   lockPath,
		FeedTTL:         time.Hour,
		ActionStorePath: filepath.Join(cacheDir, "actions.db"),
		ActionLockPath:  filepath.Join(cacheDir, "actions.lock"),
		Execution: ExecutionSettings{
			GasMultiplier: 1.2,
			PollInterval:  2 * time.Second,
		},
		Providers:            map[string]ProviderSettings{},
		OpenOceanGasPrice:    "5",
		IntermediaryDecimals: 18,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "mgv-vaults", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "mgv-vaults")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func defaultVaultsPath() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "mgv-vaults", "vaults.json"), nil
}

// loadDotEnv reads KEY=VALUE pairs into the process environment without
// replacing variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.RateLimit != nil {
		settings.RateLimit = *cfg.RateLimit
	}
	if cfg.Burst != nil {
		settings.Burst = *cfg.Burst
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = strings.ToLower(cfg.LogLevel)
	}
	if cfg.Chain != "" {
		settings.Chain = cfg.Chain
	}
	for id, url := range cfg.RPC {
		settings.RPC[id] = url
	}
	if cfg.Vaults.Path != "" {
		settings.VaultsPath = cfg.Vaults.Path
		settings.VaultsLockPath = cfg.Vaults.Path + ".lock"
	}
	if cfg.Vaults.LockPath != "" {
		settings.VaultsLockPath = cfg.Vaults.LockPath
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Cache.FeedTTL != "" {
		d, err := time.ParseDuration(cfg.Cache.FeedTTL)
		if err != nil {
			return fmt.Errorf("config cache.feed_ttl: %w", err)
		}
		settings.FeedTTL = d
	}
	if cfg.Execution.ActionsPath != "" {
		settings.ActionStorePath = cfg.Execution.ActionsPath
	}
	if cfg.Execution.ActionsLockPath != "" {
		settings.ActionLockPath = cfg.Execution.ActionsLockPath
	}
	if cfg.Execution.GasMultiplier != nil {
		settings.Execution.GasMultiplier = *cfg.Execution.GasMultiplier
	}
	if cfg.Execution.MaxFeeGwei != "" {
		settings.Execution.MaxFeeGwei = cfg.Execution.MaxFeeGwei
	}
	if cfg.Execution.MaxPriorityFeeGwei != "" {
		settings.Execution.MaxPriorityFeeGwei = cfg.Execution.MaxPriorityFeeGwei
	}
	if cfg.Execution.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Execution.PollInterval)
		if err != nil {
			return fmt.Errorf("config execution.poll_interval: %w", err)
		}
		settings.Execution.PollInterval = d
	}
	if cfg.Execution.ReceiptTimeout != "" {
		d, err := time.ParseDuration(cfg.Execution.ReceiptTimeout)
		if err != nil {
			return fmt.Errorf("config execution.receipt_timeout: %w", err)
		}
		settings.Execution.ReceiptTimeout = d
	}
	for name, p := range cfg.Providers {
		key := strings.ToLower(name)
		current := settings.Providers[key]
		if p.BaseURL != "" {
			current.BaseURL = p.BaseURL
		}
		if len(p.Contracts) > 0 {
			if current.Contracts == nil {
				current.Contracts = map[int64]string{}
			}
			for id, addr := range p.Contracts {
				current.Contracts[id] = addr
			}
		}
		settings.Providers[key] = current
		if key == "odos" && p.ReferralCode != nil {
			settings.OdosReferralCode = *p.ReferralCode
		}
		if key == "openocean" && p.GasPrice != "" {
			settings.OpenOceanGasPrice = p.GasPrice
		}
	}
	if cfg.ReadOnly != nil {
		settings.ReadOnly = *cfg.ReadOnly
	}
	if cfg.IntermediaryDecimals != nil {
		settings.IntermediaryDecimals = *cfg.IntermediaryDecimals
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("MGV_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("MGV_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("MGV_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("MGV_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			settings.RateLimit = f
		}
	}
	if v := os.Getenv("MGV_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("MGV_CHAIN"); v != "" {
		settings.Chain = v
	}
	if v := os.Getenv("MGV_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("MGV_VAULTS_PATH"); v != "" {
		settings.VaultsPath = v
		settings.VaultsLockPath = v + ".lock"
	}
	if v := os.Getenv("MGV_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("MGV_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("MGV_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("MGV_ACTIONS_PATH"); v != "" {
		settings.ActionStorePath = v
	}
	if v := os.Getenv("MGV_ACTIONS_LOCK_PATH"); v != "" {
		settings.ActionLockPath = v
	}
	if v := os.Getenv("MGV_GAS_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			settings.Execution.GasMultiplier = f
		}
	}
	if v := os.Getenv("MGV_RECEIPT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Execution.ReceiptTimeout = d
		}
	}
	if v := os.Getenv("MGV_READ_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.ReadOnly = b
		}
	}
	if v := os.Getenv("MGV_INTERMEDIARY_DECIMALS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.IntermediaryDecimals = n
		}
	}
	for _, name := range []string{"odos", "openocean", "kame", "symphony"} {
		if v := os.Getenv("MGV_" + strings.ToUpper(name) + "_URL"); v != "" {
			p := settings.Providers[name]
			p.BaseURL = v
			settings.Providers[name] = p
		}
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if fields := splitList(flags.Select); len(fields) > 0 {
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly

	if allowed := splitList(flags.EnableCommands); len(allowed) > 0 {
		settings.EnableCommands = allowed
	}

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if flags.Chain != "" {
		settings.Chain = flags.Chain
	}
	if flags.RPCURL != "" {
		settings.RPCURL = flags.RPCURL
	}
	if flags.VaultsPath != "" {
		settings.VaultsPath = flags.VaultsPath
		settings.VaultsLockPath = flags.VaultsPath + ".lock"
	}
	if flags.ReadOnly {
		settings.ReadOnly = true
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
