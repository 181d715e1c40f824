package oracle

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mangrovedao/vault-console/internal/chain"
	clierr "github.com/mangrovedao/vault-console/internal/errors"
	"github.com/mangrovedao/vault-console/internal/execution"
	"github.com/mangrovedao/vault-console/internal/registry"
)

type familyABI struct {
	raw        string
	precompute bool
}

var families = map[registry.OracleFamily]familyABI{
	registry.OracleChainlinkV1: {raw: registry.ChainlinkV1FactoryABI},
	registry.OracleChainlinkV2: {raw: registry.ChainlinkV2FactoryABI, precompute: true},
	registry.OracleDiaV1:       {raw: registry.DiaV1FactoryABI, precompute: true},
	registry.OracleCombinerV1:  {raw: registry.CombinerV1FactoryABI, precompute: true},
}

// Result is the outcome of a deployment.
type Result struct {
	Address         common.Address    `json:"address"`
	AlreadyDeployed bool              `json:"alreadyDeployed"`
	Receipt         execution.Receipt `json:"-"`
}

// Deployer creates oracles through the chain's oracle factories.
type Deployer struct {
	exec      *execution.Executor
	factories map[registry.OracleFamily]common.Address
}

func NewDeployer(exec *execution.Executor, entry registry.Entry) *Deployer {
	return &Deployer{exec: exec, factories: entry.OracleFactories}
}

func (d *Deployer) factory(family registry.OracleFamily) (common.Address, familyABI, error) {
	fam, ok := families[family]
	if !ok {
		return common.Address{}, familyABI{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unknown oracle family %q", family))
	}
	addr, ok := d.factories[family]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, familyABI{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no %s oracle factory on chain %d", family, d.exec.ChainID()))
	}
	return addr, fam, nil
}

func (d *Deployer) call(args Args, method string, salt [32]byte) (chain.Call, familyABI, error) {
	factory, fam, err := d.factory(args.Family())
	if err != nil {
		return chain.Call{}, fam, err
	}
	packed, err := args.factoryArgs(salt)
	if err != nil {
		return chain.Call{}, fam, err
	}
	return chain.NewCall(factory, fam.raw, method, packed...), fam, nil
}

// Compute returns the address the factory would deploy args to. ok is
// false for families without address precomputation.
func (d *Deployer) Compute(ctx context.Context, args Args, salt [32]byte) (addr common.Address, ok bool, err error) {
	if err := args.Validate(); err != nil {
		return addr, false, err
	}
	call, fam, err := d.call(args, "computeOracleAddress", salt)
	if err != nil {
		return addr, false, err
	}
	if !fam.precompute {
		return addr, false, nil
	}
	out, err := d.exec.Reader().Call(ctx, call)
	if err != nil {
		return addr, false, err
	}
	addr, err = chain.Address(out, 0)
	return addr, err == nil, err
}

// Deploy returns the existing oracle when the precomputed address already
// holds code; otherwise it creates the oracle and reports the simulated
// address.
func (d *Deployer) Deploy(ctx context.Context, args Args, salt [32]byte) (Result, error) {
	addr, ok, err := d.Compute(ctx, args, salt)
	if err != nil {
		return Result{}, err
	}
	if ok {
		deployed, err := d.exec.Reader().HasCode(ctx, addr)
		if err != nil {
			return Result{}, err
		}
		if deployed {
			return Result{Address: addr, AlreadyDeployed: true}, nil
		}
	}

	call, _, err := d.call(args, "create", salt)
	if err != nil {
		return Result{}, err
	}
	req, err := execution.CallRequest("oracle.create", fmt.Sprintf("deploy %s oracle", args.Family()), call)
	if err != nil {
		return Result{}, err
	}
	sim, err := d.exec.Simulate(ctx, req)
	if err != nil {
		return Result{}, err
	}
	out, err := call.Unpack(sim)
	if err != nil {
		return Result{}, err
	}
	if addr, err = chain.Address(out, 0); err != nil {
		return Result{}, err
	}

	receipt, err := d.exec.Execute(ctx, req, execution.Messages{
		Header: fmt.Sprintf("oracle will be deployed at %s", addr.Hex()),
		Label:  "Oracle deployment",
		Success: func(block uint64, hash common.Hash) string {
			return fmt.Sprintf("oracle deployed at %s in block %d: %s", addr.Hex(), block, hash.Hex())
		},
	})
	if err != nil {
		return Result{Address: addr, Receipt: receipt}, err
	}
	return Result{Address: addr, Receipt: receipt}, nil
}
