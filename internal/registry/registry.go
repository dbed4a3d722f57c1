// Package registry models the external account-balance registry
// (spec §6, north-bound RPC): register, debit, credit, balance. The
// registry itself is out of the coordination core's scope — this
// package only defines the contract the coordinator depends on and a
// trivial in-memory implementation to run and test against.
package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/lamportchain/ledgerd/internal/directory"
	"github.com/lamportchain/ledgerd/internal/types"
)

// ErrInsufficientFunds is returned by Debit when the account balance
// is lower than the requested amount.
var ErrInsufficientFunds = errors.New("registry: insufficient funds")

// ErrUnknownNode is returned when an operation names a NodeID the
// registry never registered.
var ErrUnknownNode = errors.New("registry: unknown node")

// RegisterResult is the response to a Register call: the assigned
// NodeID, the initial balance, and the rest of the cluster as known
// at registration time.
type RegisterResult struct {
	NodeID         types.NodeID
	InitialBalance uint64
	Peers          map[types.NodeID]directory.Endpoint
}

// Registry is the contract the coordinator uses to apply transfers.
// debit+credit together model spec §6's atomic balance mutation pair;
// the coordinator is responsible for calling Credit only after Debit
// has succeeded.
type Registry interface {
	Register(ctx context.Context, endpoint directory.Endpoint) (RegisterResult, error)
	Debit(ctx context.Context, id types.NodeID, amount uint64) error
	Credit(ctx context.Context, id types.NodeID, amount uint64) error
	Balance(ctx context.Context, id types.NodeID) (uint64, error)
}

// InMemory is a trivial atomic key-value Registry implementation,
// suitable for tests and single-process demos. Every method locks the
// whole registry — correct but coarse, which is fine since spec §5
// notes the ME protocol itself already serializes registry calls
// globally for a single coordination group.
type InMemory struct {
	mu       sync.Mutex
	nextID   types.NodeID
	balances map[types.NodeID]uint64
	peers    map[types.NodeID]directory.Endpoint
}

// NewInMemory returns an empty InMemory registry. Node IDs are
// assigned starting at 1.
func NewInMemory() *InMemory {
	return &InMemory{
		nextID:   1,
		balances: make(map[types.NodeID]uint64),
		peers:    make(map[types.NodeID]directory.Endpoint),
	}
}

func (r *InMemory) Register(_ context.Context, endpoint directory.Endpoint) (RegisterResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.balances[id] = 0
	r.peers[id] = endpoint

	peersCopy := make(map[types.NodeID]directory.Endpoint, len(r.peers))
	for k, v := range r.peers {
		peersCopy[k] = v
	}
	return RegisterResult{NodeID: id, InitialBalance: 0, Peers: peersCopy}, nil
}

// SetBalance is a test/demo helper to seed an account's balance
// directly, bypassing debit/credit accounting.
func (r *InMemory) SetBalance(id types.NodeID, amount uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[id] = amount
}

func (r *InMemory) Debit(_ context.Context, id types.NodeID, amount uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bal, ok := r.balances[id]
	if !ok {
		return ErrUnknownNode
	}
	if bal < amount {
		return ErrInsufficientFunds
	}
	r.balances[id] = bal - amount
	return nil
}

func (r *InMemory) Credit(_ context.Context, id types.NodeID, amount uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bal, ok := r.balances[id]
	if !ok {
		return ErrUnknownNode
	}
	r.balances[id] = bal + amount
	return nil
}

func (r *InMemory) Balance(_ context.Context, id types.NodeID) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bal, ok := r.balances[id]
	if !ok {
		return 0, ErrUnknownNode
	}
	return bal, nil
}
