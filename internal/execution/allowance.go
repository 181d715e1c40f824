package execution

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/mangrovedao/vault-console/internal/chain"
	"github.com/mangrovedao/vault-console/internal/id"
	"github.com/mangrovedao/vault-console/internal/registry"
)

// AllowanceEntry is one spending right a flow needs before it can run.
type AllowanceEntry struct {
	Token    common.Address
	Spender  common.Address
	Amount   *big.Int
	Decimals uint8
	Symbol   string
}

func (a AllowanceEntry) String() string {
	sym := a.Symbol
	if sym == "" {
		sym = a.Token.Hex()
	}
	return fmt.Sprintf("%s %s to %s", id.FormatUnits(a.Amount, int(a.Decimals)), sym, a.Spender.Hex())
}

// Approval is an approve transaction issued for an entry.
type Approval struct {
	Entry   AllowanceEntry
	Current *big.Int
	Receipt Receipt
}

// ConfirmFunc asks the operator before an approval is sent. current is the
// allowance that was found insufficient.
type ConfirmFunc func(entry AllowanceEntry, current *big.Int) (bool, error)

// EnsureAllowances reads every allowance in one batch and approves the
// exact missing amount for each short entry, in order. It stops at the
// first declined or failed approval and reports false; entries after that
// one are left untouched. The approvals issued so far are always returned.
func (e *Executor) EnsureAllowances(ctx context.Context, owner common.Address, entries []AllowanceEntry, confirm ConfirmFunc) (bool, []Approval, error) {
	if len(entries) == 0 {
		return true, nil, nil
	}
	calls := make([]chain.Call, len(entries))
	for i, entry := range entries {
		calls[i] = chain.NewCall(entry.Token, registry.ERC20ABI, "allowance", owner, entry.Spender)
	}
	results, err := e.reader.Aggregate(ctx, calls)
	if err != nil {
		return false, nil, err
	}

	var issued []Approval
	for i, entry := range entries {
		current, err := chain.Big(results[i], 0)
		if err != nil {
			return false, issued, err
		}
		if entry.Amount == nil || current.Cmp(entry.Amount) >= 0 {
			continue
		}
		if confirm != nil {
			ok, err := confirm(entry, current)
			if err != nil {
				return false, issued, err
			}
			if !ok {
				e.log.Info("approval declined", zap.String("token", entry.Token.Hex()), zap.String("spender", entry.Spender.Hex()))
				return false, issued, nil
			}
		}
		req, err := CallRequest("approve", "approve "+entry.String(), chain.NewCall(entry.Token, registry.ERC20ABI, "approve", entry.Spender, entry.Amount))
		if err != nil {
			return false, issued, err
		}
		label := entry.Symbol
		if label == "" {
			label = id.ShortAddress(entry.Token)
		}
		receipt, err := e.Execute(ctx, req, Messages{
			Header: fmt.Sprintf("Approving %s", entry.String()),
			Label:  "approve " + label,
		})
		if err != nil {
			return false, issued, err
		}
		issued = append(issued, Approval{Entry: entry, Current: current, Receipt: receipt})
	}
	return true, issued, nil
}
