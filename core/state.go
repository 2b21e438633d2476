// Package core implements the conductor state machine: the single-writer
// action reducer, the commit/publish/hold workflows, the validation
// pipeline with its pending queue, capability checks and the network
// handler. One Instance runs one DNA for one agent.
package core

import (
	mapset "github.com/deckarep/golang-set"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/types"
)

// NucleusStatus is the instance initialization state machine:
// New → Initializing → Initialized | InitializationFailed.
type NucleusStatus int

const (
	NucleusNew NucleusStatus = iota
	NucleusInitializing
	NucleusInitialized
	NucleusInitializationFailed
)

func (s NucleusStatus) String() string {
	switch s {
	case NucleusNew:
		return "New"
	case NucleusInitializing:
		return "Initializing"
	case NucleusInitialized:
		return "Initialized"
	case NucleusInitializationFailed:
		return "InitializationFailed"
	default:
		return "Unknown"
	}
}

// ZomeFnCall is one in-flight guest invocation.
type ZomeFnCall struct {
	ID         string
	Zome       string
	Fn         string
	Args       []byte
	CapRequest types.CapabilityRequest
}

// callResult is the reduced outcome of a zome call.
type callResult struct {
	result []byte
	err    error
}

// commitResult is the reduced outcome of a chain commit.
type commitResult struct {
	header types.ChainHeader
	err    error
}

// netResult is the reduced outcome of a network round-trip: a get, a
// links query or a direct message.
type netResult struct {
	payload []byte
	err     error
	done    bool
}

// NucleusState tracks initialization and zome call lifecycles.
type NucleusState struct {
	Status       NucleusStatus
	InitError    string
	RunningCalls map[string]*ZomeFnCall
	CallResults  map[string]*callResult
}

// DhtState tracks held-aspect bookkeeping and the pending validation
// table. Held content itself lives in the shard.
type DhtState struct {
	// Pending is keyed by (entry address, workflow).
	Pending map[string]*types.PendingValidation
	// Rejected records terminal validation failures by basis address.
	Rejected map[common.Address]string
	// HeldAspects deduplicates holds by aspect address.
	HeldAspects mapset.Set
}

// NetworkState tracks request/response slots and the authored aspect set
// advertised to gossip peers.
type NetworkState struct {
	CommitResults map[string]*commitResult
	NetResults    map[string]*netResult
	// Authored maps aspect address → aspect for everything this node
	// published.
	Authored map[common.Address]types.EntryAspect
}

// State is the aggregate instance state. The reducer goroutine is its
// only mutator; everything else reads through Store.View snapshots.
type State struct {
	Nucleus NucleusState
	Dht     DhtState
	Network NetworkState
}

func newState() *State {
	return &State{
		Nucleus: NucleusState{
			RunningCalls: make(map[string]*ZomeFnCall),
			CallResults:  make(map[string]*callResult),
		},
		Dht: DhtState{
			Pending:     make(map[string]*types.PendingValidation),
			Rejected:    make(map[common.Address]string),
			HeldAspects: mapset.NewSet(),
		},
		Network: NetworkState{
			CommitResults: make(map[string]*commitResult),
			NetResults:    make(map[string]*netResult),
			Authored:      make(map[common.Address]types.EntryAspect),
		},
	}
}

// pendingKey builds the pending-validation table key.
func pendingKey(entry common.Address, workflow types.ValidatingWorkflow) string {
	return string(entry) + "|" + string(workflow)
}
