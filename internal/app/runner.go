package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mangrovedao/vault-console/internal/cache"
	"github.com/mangrovedao/vault-console/internal/config"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution"
	"github.com/mangrovedao/vault-console/internal/execution/signer"
	"github.com/mangrovedao/vault-console/internal/logging"
	"github.com/mangrovedao/vault-console/internal/model"
	"github.com/mangrovedao/vault-console/internal/out"
	"github.com/mangrovedao/vault-console/internal/policy"
	"github.com/mangrovedao/vault-console/internal/prompt"
	"github.com/mangrovedao/vault-console/internal/schema"
	"github.com/mangrovedao/vault-console/internal/version"
)

// Dialer connects to a chain node.
type Dialer func(ctx context.Context, rpcURL string) (execution.Backend, error)

// KeyLoader resolves the operator's signing key for a key source.
type KeyLoader func(source string) (signer.Signer, error)

type Runner struct {
	stdout   io.Writer
	stderr   io.Writer
	now      func() time.Time
	dial     Dialer
	keys     KeyLoader
	prompter prompt.Prompter
}

type Option func(*Runner)

// WithDialer replaces the JSON-RPC dialer.
func WithDialer(d Dialer) Option {
	return func(r *Runner) { r.dial = d }
}

func WithKeyLoader(k KeyLoader) Option {
	return func(r *Runner) { r.keys = k }
}

// WithPrompter answers console prompts instead of the terminal.
func WithPrompter(p prompt.Prompter) Option {
	return func(r *Runner) { r.prompter = p }
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer, opts ...Option) *Runner {
	r := &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
		dial:   dialRPC,
		keys: func(source string) (signer.Signer, error) {
			return signer.FromEnv(source)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.prompter == nil {
		r.prompter = prompt.Terminal{Stdin: os.Stdin, Stdout: os.Stdout}
	}
	return r
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	keySource   string
	settings    config.Settings
	log         *zap.Logger
	root        *cobra.Command
	lastCommand string
	lastChainID int64
	warnings    []string

	actionStore *execution.Store
	cache       *cache.Store
	closers     []func()
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, log: zap.NewNop()}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := normalizeRunError(root.Execute())
	defer state.close()
	if err == nil {
		return 0
	}
	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
	_ = s.log.Sync()
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Operator console for Mangrove vaults",
		Long: "Deploy oracles and vaults, inspect vault state, edit fees and positions,\n" +
			"manage liquidity and rebalance through swap aggregators.\n" +
			"Without a subcommand the interactive console starts.",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{schema.AnnotationInteractive: "true"},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			log, err := logging.New(settings.LogLevel, s.runner.stderr)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "configure logging", err)
			}
			s.log = log.With(zap.String("cli", version.CLIName))

			path := s.commandPath(cmd)
			s.lastCommand = path
			return policy.CheckCommandAllowed(settings.EnableCommands, path)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runConsole(cmd)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	f := cmd.PersistentFlags()
	f.BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	f.BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	f.StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dotted paths allowed)")
	f.BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	f.StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	f.StringVar(&s.flags.Timeout, "timeout", "", "Read and HTTP request timeout")
	f.IntVar(&s.flags.Retries, "retries", -1, "Retries per HTTP request")
	f.StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	f.StringVar(&s.flags.EnvFile, "env-file", "", "Path to a .env file (default .env)")
	f.StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	f.StringVar(&s.flags.Chain, "chain", "", "Chain slug, id or CAIP-2 identifier")
	f.StringVar(&s.flags.RPCURL, "rpc-url", "", "RPC URL for the selected chain")
	f.StringVar(&s.flags.VaultsPath, "vaults-path", "", "Saved vault file")
	f.BoolVar(&s.flags.ReadOnly, "read-only", false, "Block every flow that sends a transaction")
	f.BoolVar(&s.flags.NoCache, "no-cache", false, "Disable the feed metadata cache")
	f.StringVar(&s.keySource, "key-source", signer.KeySourceAuto, "Key source (auto|env|file|keystore)")

	cmd.AddCommand(s.newConsoleCommand())
	cmd.AddCommand(s.newVaultCommand())
	cmd.AddCommand(s.newVaultsCommand())
	cmd.AddCommand(s.newFeedsCommand())
	cmd.AddCommand(s.newHistoryCommand())
	cmd.AddCommand(s.newChainsCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func (s *runtimeState) newConsoleCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "console",
		Short:       "Start the interactive console",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{schema.AnnotationInteractive: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runConsole(cmd)
		},
	}
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Describe commands and flags as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, cacheMetaBypass())
		},
	}
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

// commandPath is the allowlist name of cmd; the bare root is the console.
func (s *runtimeState) commandPath(cmd *cobra.Command) string {
	if cmd == s.root || !cmd.HasParent() {
		return "console"
	}
	return trimRootPath(cmd.CommandPath())
}

// requireWrite enforces read-only mode for a flow that sends transactions.
func (s *runtimeState) requireWrite(action string) error {
	return policy.CheckWriteAllowed(s.settings.ReadOnly, action)
}

func (s *runtimeState) warn(msg string) {
	s.warnings = append(s.warnings, msg)
}

func (s *runtimeState) emitSuccess(commandPath string, data any, cacheStatus model.CacheStatus) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Warnings: s.warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			ChainID:   s.lastChainID,
			Cache:     cacheStatus,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := clierr.TypeName(clierr.Code(code))

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: err.Error(),
		},
		Warnings: s.warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			ChainID:   s.lastChainID,
			Cache:     cacheMetaBypass(),
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

// readContext bounds a read by the configured timeout.
func (s *runtimeState) readContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.settings.Timeout)
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass"}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
