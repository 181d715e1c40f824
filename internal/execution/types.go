package execution

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// State is a transaction lifecycle state as seen by the operator.
type State string

const (
	StateBuilt     State = "built"
	StateBroadcast State = "broadcast"
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateReverted  State = "reverted"
)

type ActionStatus string

const (
	ActionStatusRunning   ActionStatus = "running"
	ActionStatusConfirmed ActionStatus = "confirmed"
	ActionStatusFailed    ActionStatus = "failed"
)

// Request is one transaction to simulate and submit.
type Request struct {
	Intent      string
	Description string
	To          common.Address
	Data        []byte
	Value       *big.Int
	// Gas fixes the gas limit; zero means estimate and apply the multiplier.
	Gas uint64
}

// Receipt reports how an executed request ended.
type Receipt struct {
	ActionID  string
	States    []State
	TxHash    common.Hash
	Block     uint64
	GasUsed   uint64
	SimResult []byte
}

// Final returns the last state reached.
func (r Receipt) Final() State {
	if len(r.States) == 0 {
		return ""
	}
	return r.States[len(r.States)-1]
}

// Action is the persisted history record of one executed request.
type Action struct {
	ActionID    string       `json:"action_id"`
	Intent      string       `json:"intent"`
	Description string       `json:"description,omitempty"`
	Label       string       `json:"label,omitempty"`
	Status      ActionStatus `json:"status"`
	ChainID     string       `json:"chain_id"`
	From        string       `json:"from"`
	Target      string       `json:"target"`
	Data        string       `json:"data"`
	Value       string       `json:"value"`
	Gas         uint64       `json:"gas,omitempty"`
	TxHash      string       `json:"tx_hash,omitempty"`
	Block       uint64       `json:"block,omitempty"`
	States      []State      `json:"states"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   string       `json:"created_at"`
	UpdatedAt   string       `json:"updated_at"`
}

// NewActionID returns a random history id of the form act_<32 hex>.
func NewActionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "act_unknown"
	}
	return "act_" + hex.EncodeToString(b)
}

func NewAction(actionID, intent, chainID string) Action {
	now := time.Now().UTC().Format(time.RFC3339)
	return Action{
		ActionID:  actionID,
		Intent:    intent,
		Status:    ActionStatusRunning,
		ChainID:   chainID,
		States:    []State{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (a *Action) Touch() {
	a.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

func (a *Action) enter(s State) {
	a.States = append(a.States, s)
	a.Touch()
}

func (a *Action) fail(msg string) {
	a.Status = ActionStatusFailed
	a.Error = msg
	a.Touch()
}
