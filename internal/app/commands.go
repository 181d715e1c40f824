package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution"
	"github.com/mangrovedao/vault-console/internal/id"
	"github.com/mangrovedao/vault-console/internal/model"
	"github.com/mangrovedao/vault-console/internal/oracle/feeds"
	"github.com/mangrovedao/vault-console/internal/providers"
	"github.com/mangrovedao/vault-console/internal/rebalance"
	"github.com/mangrovedao/vault-console/internal/registry"
	"github.com/mangrovedao/vault-console/internal/savedvault"
	"github.com/mangrovedao/vault-console/internal/ticks"
	"github.com/mangrovedao/vault-console/internal/vault"
)

// vaultView is the state of a vault plus its ladder prices.
type vaultView struct {
	vault.State
	Rungs []ticks.Rung `json:"rungs,omitempty"`
}

func newVaultView(st vault.State) vaultView {
	return vaultView{State: st, Rungs: st.Position.Rungs(st.Market)}
}

func (s *runtimeState) newVaultCommand() *cobra.Command {
	root := &cobra.Command{Use: "vault", Short: "Single vault commands"}
	var vaultType string
	view := &cobra.Command{
		Use:   "view <address>",
		Short: "Read the full state of a vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := id.ParseAddress(args[0])
			if err != nil {
				return err
			}
			c, err := s.selectedChain()
			if err != nil {
				return err
			}
			if vaultType == "" {
				vaultType = s.savedType(c.EVMChainID, addr)
			}
			if vaultType != "" && vaultType != vault.TypeERC4626 {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown vault type %q (expected %s)", vaultType, vault.TypeERC4626))
			}
			ctx := cmd.Context()
			ss, err := s.openSession(ctx, c, false)
			if err != nil {
				return err
			}
			rctx, cancel := s.readContext(ctx)
			defer cancel()
			st, err := vault.Read(rctx, ss.reader, addr, vaultType)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), newVaultView(st), cacheMetaBypass())
		},
	}
	view.Flags().StringVar(&vaultType, "type", "", "Vault type (erc4626); defaults to the saved vault's type")
	root.AddCommand(view)
	return root
}

// savedType looks addr up in the saved vault file.
func (s *runtimeState) savedType(chainID int64, addr common.Address) string {
	saved, err := s.savedVaults().ForChain(chainID)
	if err != nil {
		return ""
	}
	for _, v := range saved {
		if common.HexToAddress(v.Address) == addr {
			return v.VaultType
		}
	}
	return ""
}

func (s *runtimeState) newVaultsCommand() *cobra.Command {
	root := &cobra.Command{Use: "vaults", Short: "Saved vault commands"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved vaults, filtered by --chain when set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := s.savedVaults()
			f, err := store.Load()
			if err != nil {
				return err
			}
			vaults := f.Vaults
			if strings.TrimSpace(s.flags.Chain) != "" {
				c, err := s.selectedChain()
				if err != nil {
					return err
				}
				s.lastChainID = c.EVMChainID
				vaults = f.ForChain(c.EVMChainID)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), vaults, cacheMetaBypass())
		},
	}

	var name, label, vaultType string
	add := &cobra.Command{
		Use:   "add <address>",
		Short: "Save a vault for the selected chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := id.ParseAddress(args[0])
			if err != nil {
				return err
			}
			c, err := s.selectedChain()
			if err != nil {
				return err
			}
			s.lastChainID = c.EVMChainID
			if strings.TrimSpace(name) == "" {
				if name, err = s.shareSymbol(cmd.Context(), c, addr); err != nil {
					return err
				}
			}
			v := savedvault.SavedVault{
				Address:   addr.Hex(),
				Name:      name,
				ChainID:   c.EVMChainID,
				Label:     strings.TrimSpace(label),
				VaultType: strings.ToLower(strings.TrimSpace(vaultType)),
			}
			if err := s.savedVaults().Save(v); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), v, cacheMetaBypass())
		},
	}
	add.Flags().StringVar(&name, "name", "", "Display name (defaults to the share token symbol)")
	add.Flags().StringVar(&label, "label", "", "Optional label")
	add.Flags().StringVar(&vaultType, "type", "", "Vault type (erc4626)")

	root.AddCommand(list)
	root.AddCommand(add)
	return root
}

// shareSymbol reads the vault share token symbol to name a saved vault.
func (s *runtimeState) shareSymbol(ctx context.Context, c id.Chain, addr common.Address) (string, error) {
	ss, err := s.openSession(ctx, c, false)
	if err != nil {
		return "", err
	}
	rctx, cancel := s.readContext(ctx)
	defer cancel()
	tok, err := ss.reader.Token(rctx, addr)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "read vault symbol; pass --name", err)
	}
	return tok.Symbol, nil
}

func (s *runtimeState) newFeedsCommand() *cobra.Command {
	root := &cobra.Command{Use: "feeds", Short: "Chainlink feed metadata"}
	var all bool
	var search string
	list := &cobra.Command{
		Use:   "list",
		Short: "List Chainlink crypto feeds usable by oracles on the selected chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := s.selectedChain()
			if err != nil {
				return err
			}
			entry, ok := registry.Lookup(c.EVMChainID)
			if !ok {
				return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no vault deployment on %s", c.Name))
			}
			s.lastChainID = c.EVMChainID
			client := s.feedsClient()
			ctx, cancel := s.readContext(cmd.Context())
			defer cancel()
			list, err := client.List(ctx, entry.ChainlinkFeedURL)
			if err != nil {
				return err
			}
			if !all {
				list = feeds.Visible(list)
			}
			if strings.TrimSpace(search) != "" {
				list = feeds.Search(list, search)
			}
			rows := make([]model.FeedRow, 0, len(list))
			for _, f := range list {
				rows = append(rows, model.FeedRow{
					Name:     f.Name(),
					Proxy:    f.ProxyAddress.Hex(),
					Contract: f.ContractAddress.Hex(),
					Decimals: f.Decimals,
					Hidden:   f.Hidden,
				})
			}
			status := cacheMetaBypass()
			if s.cache != nil {
				status = model.CacheStatus{Status: "enabled"}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rows, status)
		},
	}
	list.Flags().BoolVar(&all, "all", false, "Include feeds hidden from the Chainlink docs")
	list.Flags().StringVar(&search, "search", "", "Rank feeds by symbol or address match")
	root.AddCommand(list)
	return root
}

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	root := &cobra.Command{Use: "history", Short: "Executed transaction history"}
	var status, vaultAddr string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent actions, filtered by --chain when set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := execution.Filter{Status: strings.ToLower(strings.TrimSpace(status)), Limit: limit}
			if strings.TrimSpace(vaultAddr) != "" {
				addr, err := id.ParseAddress(vaultAddr)
				if err != nil {
					return err
				}
				filter.Target = addr.Hex()
			}
			if strings.TrimSpace(s.flags.Chain) != "" {
				c, err := s.selectedChain()
				if err != nil {
					return err
				}
				s.lastChainID = c.EVMChainID
				filter.ChainID = c.CAIP2
			}
			store, err := s.openActionStore()
			if err != nil {
				return err
			}
			actions, err := store.List(filter)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list actions", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), actions, cacheMetaBypass())
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status (running|confirmed|failed)")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum actions to return")
	list.Flags().StringVar(&vaultAddr, "vault", "", "Only actions sent to this vault")

	show := &cobra.Command{
		Use:   "show <action-id>",
		Short: "Show one action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openActionStore()
			if err != nil {
				return err
			}
			action, err := store.Get(args[0])
			if err != nil {
				if _, ok := clierr.As(err); ok {
					return err
				}
				return clierr.Wrap(clierr.CodeInternal, "read action", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action, cacheMetaBypass())
		},
	}
	root.AddCommand(list)
	root.AddCommand(show)
	return root
}

func (s *runtimeState) newChainsCommand() *cobra.Command {
	root := &cobra.Command{Use: "chains", Short: "Supported chains"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List chains with vault deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([]model.ChainRow, 0)
			for _, c := range id.Chains() {
				entry, ok := registry.Lookup(c.EVMChainID)
				if !ok {
					continue
				}
				routes, err := rebalance.Available(entry, s.settings)
				if err != nil {
					return err
				}
				row := model.ChainRow{
					ChainID:      c.EVMChainID,
					Slug:         c.Slug,
					Name:         c.Name,
					VaultFactory: entry.VaultFactory.Hex(),
					MintHelper:   entry.MintHelper.Hex(),
					Seeders:      entry.SeederNames(),
				}
				for _, f := range entry.Families() {
					row.Oracles = append(row.Oracles, string(f))
				}
				for _, p := range routes {
					row.Rebalance = append(row.Rebalance, model.RebalanceRoute{
						Provider: string(p.Type),
						Contract: p.Contract.Hex(),
						Endpoint: s.providerEndpoint(p),
					})
				}
				rows = append(rows, row)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rows, cacheMetaBypass())
		},
	}
	root.AddCommand(list)
	return root
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{Use: "providers", Short: "Swap aggregator commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List swap aggregators and their endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			types := []registry.ProviderType{registry.ProviderOdos, registry.ProviderOpenOcean, registry.ProviderKame, registry.ProviderSymphony}
			infos := make([]model.ProviderInfo, 0, len(types))
			for _, t := range types {
				base, _ := registry.DefaultProviderURL(t)
				infos = append(infos, providers.Info(t, s.providerEndpoint(registry.RebalanceProvider{Type: t, QuoteURL: base})))
			}
			sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), infos, cacheMetaBypass())
		},
	}
	root.AddCommand(list)
	return root
}

// providerEndpoint is the configured override or the route's quote URL.
func (s *runtimeState) providerEndpoint(p registry.RebalanceProvider) string {
	if override := strings.TrimSpace(s.settings.Provider(string(p.Type)).BaseURL); override != "" {
		return override
	}
	return p.QuoteURL
}
