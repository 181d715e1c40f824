package vault

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mangrovedao/vault-console/internal/chain"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution"
	"github.com/mangrovedao/vault-console/internal/registry"
)

const (
	DefaultDecimals = 18
	maxDecimals     = 36
)

// CreateArgs describe a new vault. Zero Decimals means DefaultDecimals and
// a zero Owner means the sender.
type CreateArgs struct {
	Seeder      common.Address
	Base        common.Address
	Quote       common.Address
	TickSpacing *big.Int
	Decimals    uint8
	Name        string
	Symbol      string
	Oracle      common.Address
	Owner       common.Address
}

func (a CreateArgs) validate(entry registry.Entry) error {
	if !entry.IsSeeder(a.Seeder) {
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("%s is not a seeder on chain %d (known: %s)", a.Seeder.Hex(), entry.ChainID, strings.Join(entry.SeederNames(), ", ")))
	}
	if a.Base == (common.Address{}) || a.Quote == (common.Address{}) || a.Base == a.Quote {
		return clierr.New(clierr.CodeValidation, "base and quote must be distinct non-zero tokens")
	}
	if a.TickSpacing == nil || a.TickSpacing.Sign() <= 0 {
		return clierr.New(clierr.CodeValidation, "tick spacing must be positive")
	}
	if a.Decimals > maxDecimals {
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("decimals must be at most %d", maxDecimals))
	}
	if strings.TrimSpace(a.Name) == "" {
		return clierr.New(clierr.CodeValidation, "vault name is required")
	}
	if strings.TrimSpace(a.Symbol) == "" {
		return clierr.New(clierr.CodeValidation, "vault symbol is required")
	}
	if a.Oracle == (common.Address{}) {
		return clierr.New(clierr.CodeValidation, "oracle must not be the zero address")
	}
	return nil
}

// Created is a deployed vault and the receipt of its creation.
type Created struct {
	Address common.Address    `json:"address"`
	Receipt execution.Receipt `json:"-"`
}

// Create deploys a vault through the chain's factory. The address comes
// from the simulation and is announced before submission.
func Create(ctx context.Context, exec *execution.Executor, entry registry.Entry, a CreateArgs) (Created, error) {
	if err := a.validate(entry); err != nil {
		return Created{}, err
	}
	if a.Decimals == 0 {
		a.Decimals = DefaultDecimals
	}
	if a.Owner == (common.Address{}) {
		a.Owner = exec.Sender()
	}
	call := chain.NewCall(entry.VaultFactory, registry.VaultFactoryABI, "createVault",
		a.Seeder, a.Base, a.Quote, a.TickSpacing, a.Decimals, a.Name, a.Symbol, a.Oracle, a.Owner)
	req, err := execution.CallRequest("vault.create", fmt.Sprintf("create vault %s", a.Symbol), call)
	if err != nil {
		return Created{}, err
	}
	sim, err := exec.Simulate(ctx, req)
	if err != nil {
		return Created{}, err
	}
	out, err := call.Unpack(sim)
	if err != nil {
		return Created{}, err
	}
	addr, err := chain.Address(out, 0)
	if err != nil {
		return Created{}, err
	}

	header := fmt.Sprintf("creating vault at address %s with\nname: %s\nsymbol: %s\ndecimals: %d\noracle: %s\nowner: %s",
		addr.Hex(), a.Name, a.Symbol, a.Decimals, a.Oracle.Hex(), a.Owner.Hex())
	receipt, err := exec.Execute(ctx, req, templated(header, "Vault creation",
		"vault created at address "+addr.Hex(),
		"vault creation failed at address "+addr.Hex()))
	return Created{Address: addr, Receipt: receipt}, err
}
