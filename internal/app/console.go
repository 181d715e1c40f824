package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution"
	"github.com/mangrovedao/vault-console/internal/id"
	"github.com/mangrovedao/vault-console/internal/prompt"
	"github.com/mangrovedao/vault-console/internal/savedvault"
	"github.com/mangrovedao/vault-console/internal/vault"
)

const (
	menuCreateFromOracle = "Create vault from existing oracle"
	menuCreateWithOracle = "Create vault and oracle"
	menuManage           = "Manage vault"
	menuDeployOracle     = "Deploy oracle"
	menuSaved            = "Saved vaults"
	menuExit             = "Exit"
)

var topMenu = []string{menuCreateFromOracle, menuCreateWithOracle, menuManage, menuDeployOracle, menuSaved, menuExit}

const (
	manageView         = "View vault"
	manageFees         = "Change fee data"
	manageRange        = "Choose price range"
	managePosition     = "Change position data"
	manageERC4626      = "Change ERC4626 vaults"
	manageAdd          = "Add liquidity"
	manageRemove       = "Remove liquidity"
	manageRebalance    = "Rebalance"
	manageFund         = "Add provision"
	manageWithdraw     = "Remove provision"
	manageUpdate       = "Update position"
	manageOwner        = "Transfer ownership"
	manageManager      = "Set manager"
	manageUnwhitelist  = "Remove swap contract from whitelist"
	manageBack         = "Back"
	enterAddressOption = "Enter an address"
)

func manageMenu(vaultType string) []string {
	items := []string{manageView, manageFees, manageRange, managePosition}
	if vaultType == vault.TypeERC4626 {
		items = append(items, manageERC4626)
	}
	return append(items, manageAdd, manageRemove, manageRebalance, manageFund, manageWithdraw,
		manageUpdate, manageOwner, manageManager, manageUnwhitelist, manageBack)
}

// console is one interactive session on one chain.
type console struct {
	s   *runtimeState
	p   prompt.Prompter
	out io.Writer
	ss  *session
	log *zap.Logger
}

func (s *runtimeState) runConsole(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	c := &console{s: s, p: s.runner.prompter, out: s.runner.stdout, log: s.log.Named("console")}
	picked, err := c.pickChain()
	if err != nil {
		return quietDecline(err)
	}
	ss, err := s.openSession(ctx, picked, true)
	if err != nil && s.settings.ReadOnly && clierr.Is(err, clierr.CodeSigner) {
		ss, err = s.openSession(ctx, picked, false)
	}
	if err != nil {
		return err
	}
	c.ss = ss
	if ss.exec != nil {
		c.printf("Using account %s on %s\n", ss.account().Hex(), picked.Name)
	} else {
		c.printf("Read-only session on %s, no key loaded\n", picked.Name)
	}
	return c.loop(ctx)
}

func (c *console) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		i, err := c.p.Select("What do you want to do?", topMenu)
		if err != nil {
			return quietDecline(err)
		}
		switch topMenu[i] {
		case menuCreateFromOracle:
			err = c.createVault(ctx, common.Address{})
		case menuCreateWithOracle:
			err = c.createVaultAndOracle(ctx)
		case menuManage:
			err = c.manage(ctx)
		case menuDeployOracle:
			_, err = c.deployOracle(ctx)
		case menuSaved:
			err = c.savedVaultsMenu(ctx)
		case menuExit:
			return nil
		}
		c.report(err)
	}
}

// quietDecline turns a cancelled prompt at the menu into a normal exit.
func quietDecline(err error) error {
	if clierr.Is(err, clierr.CodeDeclined) {
		return nil
	}
	return err
}

func (c *console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// report prints a flow error and keeps the console running.
func (c *console) report(err error) {
	if err == nil {
		return
	}
	c.log.Debug("flow ended with error", zap.Error(err))
	if clierr.Is(err, clierr.CodeDeclined) {
		c.printf("cancelled: %v\n", err)
		return
	}
	c.printf("error (%s): %v\n", clierr.TypeName(clierr.Code(clierr.ExitCode(err))), err)
}

// pickChain uses --chain when given, otherwise asks with the configured
// default first.
func (c *console) pickChain() (id.Chain, error) {
	if strings.TrimSpace(c.s.flags.Chain) != "" {
		return c.s.selectedChain()
	}
	chains := id.Chains()
	if def, err := c.s.selectedChain(); err == nil {
		for i, ch := range chains {
			if ch.EVMChainID == def.EVMChainID {
				chains[0], chains[i] = chains[i], chains[0]
			}
		}
	}
	names := make([]string, len(chains))
	for i, ch := range chains {
		names[i] = ch.Name
	}
	i, err := c.p.Select("Chain", names)
	if err != nil {
		return id.Chain{}, err
	}
	return chains[i], nil
}

// pickedVault is a vault chosen from the saved list or typed in.
type pickedVault struct {
	Address common.Address
	Type    string
}

func (c *console) pickVault(ctx context.Context) (pickedVault, error) {
	store := c.s.savedVaults()
	saved, err := store.ForChain(c.ss.chain.EVMChainID)
	if err != nil {
		return pickedVault{}, err
	}
	items := make([]string, 0, len(saved)+1)
	for _, v := range saved {
		items = append(items, v.Display())
	}
	items = append(items, enterAddressOption)
	i, err := c.p.Select("Vault", items)
	if err != nil {
		return pickedVault{}, err
	}
	if i < len(saved) {
		return pickedVault{Address: common.HexToAddress(saved[i].Address), Type: saved[i].VaultType}, nil
	}

	addr, err := prompt.Address(c.p, "Vault address", common.Address{})
	if err != nil {
		return pickedVault{}, err
	}
	isERC4626, err := c.p.Confirm("Is it an ERC4626 vault", false)
	if err != nil {
		return pickedVault{}, err
	}
	picked := pickedVault{Address: addr}
	if isERC4626 {
		picked.Type = vault.TypeERC4626
	}
	save, err := c.p.Confirm("Save this vault", false)
	if err != nil {
		return pickedVault{}, err
	}
	if save {
		if err := c.saveVault(ctx, addr, picked.Type); err != nil {
			return pickedVault{}, err
		}
	}
	return picked, nil
}

// saveVault asks for a name and label and stores the vault.
func (c *console) saveVault(ctx context.Context, addr common.Address, vaultType string) error {
	def := ""
	rctx, cancel := c.s.readContext(ctx)
	if tok, err := c.ss.reader.Token(rctx, addr); err == nil {
		def = tok.Symbol
	}
	cancel()
	name, err := prompt.Text(c.p, "Vault name", def)
	if err != nil {
		return err
	}
	label, err := c.p.Input("Label (optional)", "", nil)
	if err != nil {
		return err
	}
	v := savedvault.SavedVault{
		Address:   addr.Hex(),
		Name:      name,
		ChainID:   c.ss.chain.EVMChainID,
		Label:     label,
		VaultType: vaultType,
	}
	if err := c.s.savedVaults().Save(v); err != nil {
		return err
	}
	c.printf("saved %s\n", v.Display())
	return nil
}

func (c *console) savedVaultsMenu(ctx context.Context) error {
	saved, err := c.s.savedVaults().ForChain(c.ss.chain.EVMChainID)
	if err != nil {
		return err
	}
	if len(saved) == 0 {
		c.printf("no saved vaults on %s\n", c.ss.chain.Name)
	}
	for _, v := range saved {
		kind := ""
		if v.VaultType != "" {
			kind = " [" + v.VaultType + "]"
		}
		c.printf("  %s%s\n", v.Display(), kind)
	}
	items := []string{"Add a vault", manageBack}
	i, err := c.p.Select("Saved vaults", items)
	if err != nil || items[i] == manageBack {
		return err
	}
	addr, err := prompt.Address(c.p, "Vault address", common.Address{})
	if err != nil {
		return err
	}
	isERC4626, err := c.p.Confirm("Is it an ERC4626 vault", false)
	if err != nil {
		return err
	}
	vaultType := ""
	if isERC4626 {
		vaultType = vault.TypeERC4626
	}
	return c.saveVault(ctx, addr, vaultType)
}

// manage runs the vault submenu until Back. State is re-read before every
// choice so each flow sees the effect of the previous one.
func (c *console) manage(ctx context.Context) error {
	picked, err := c.pickVault(ctx)
	if err != nil {
		return err
	}
	items := manageMenu(picked.Type)
	for {
		rctx, cancel := c.s.readContext(ctx)
		st, err := vault.Read(rctx, c.ss.reader, picked.Address, picked.Type)
		cancel()
		if err != nil {
			return err
		}
		i, err := c.p.Select(fmt.Sprintf("%s vault %s", st.Market, id.ShortAddress(picked.Address)), items)
		if err != nil {
			return err
		}
		choice := items[i]
		if choice == manageBack {
			return nil
		}
		c.report(c.manageAction(ctx, choice, st))
	}
}

func (c *console) manageAction(ctx context.Context, choice string, st vault.State) error {
	switch choice {
	case manageView:
		return c.viewVault(ctx, st)
	case manageFees:
		return c.changeFees(ctx, st)
	case manageRange:
		return c.choosePriceRange(ctx, st)
	case managePosition:
		return c.changePosition(ctx, st)
	case manageERC4626:
		return c.changeERC4626Vaults(ctx, st)
	case manageAdd:
		return c.addLiquidity(ctx, st)
	case manageRemove:
		return c.removeLiquidity(ctx, st)
	case manageRebalance:
		return c.rebalance(ctx, st)
	case manageFund:
		return c.addProvision(ctx, st)
	case manageWithdraw:
		return c.removeProvision(ctx, st)
	case manageUpdate:
		return c.updatePosition(ctx, st)
	case manageOwner:
		return c.transferOwnership(ctx, st)
	case manageManager:
		return c.setManager(ctx, st)
	case manageUnwhitelist:
		return c.removeSwapContract(ctx, st)
	}
	return clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown action %q", choice))
}

// writer returns the vault bound to the executor after the read-only
// check for action.
func (c *console) writer(action string, addr common.Address) (*vault.Vault, error) {
	exec, err := c.executor(action)
	if err != nil {
		return nil, err
	}
	return vault.New(exec, addr), nil
}

func (c *console) executor(action string) (*execution.Executor, error) {
	if err := c.s.requireWrite(action); err != nil {
		return nil, err
	}
	if c.ss.exec == nil {
		return nil, clierr.New(clierr.CodeSigner, "no signing key loaded")
	}
	return c.ss.exec, nil
}
