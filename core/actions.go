package core

import (
	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/types"
)

// ActionKind identifies a state transition. Every mutation of instance
// state is expressed as one of these and serialized through the reducer.
type ActionKind string

const (
	ActionInitializeChain         ActionKind = "INITIALIZE_CHAIN"
	ActionChainInitialized        ActionKind = "CHAIN_INITIALIZED"
	ActionInitializationFailed    ActionKind = "INITIALIZATION_FAILED"
	ActionCommit                  ActionKind = "COMMIT_ENTRY"
	ActionClearCommitResult       ActionKind = "CLEAR_COMMIT_RESULT"
	ActionAddAuthoredAspect       ActionKind = "ADD_AUTHORED_ASPECT"
	ActionHoldAspect              ActionKind = "HOLD_ASPECT"
	ActionRejectAspect            ActionKind = "REJECT_ASPECT"
	ActionAddPendingValidation    ActionKind = "ADD_PENDING_VALIDATION"
	ActionRemovePendingValidation ActionKind = "REMOVE_PENDING_VALIDATION"
	ActionNetRequest              ActionKind = "NET_REQUEST"
	ActionNetResult               ActionKind = "NET_RESULT"
	ActionNetTimeout              ActionKind = "NET_TIMEOUT"
	ActionClearNetResult          ActionKind = "CLEAR_NET_RESULT"
	ActionSignalZomeCall          ActionKind = "SIGNAL_ZOME_FUNCTION_CALL"
	ActionReturnZomeCallResult    ActionKind = "RETURN_ZOME_FUNCTION_RESULT"
	ActionClearZomeCallResult     ActionKind = "CLEAR_ZOME_FUNCTION_RESULT"
)

// Action is the envelope dispatched to the reducer.
type Action struct {
	Kind    ActionKind
	Payload interface{}
}

// Action payloads.

type commitPayload struct {
	RequestID string
	Entry     types.Entry
	Replaces  common.Address
}

type initFailedPayload struct {
	Reason string
}

type authoredPayload struct {
	Aspect types.EntryAspect
}

type holdAspectPayload struct {
	Aspect types.EntryAspect
}

type rejectAspectPayload struct {
	Basis  common.Address
	Reason string
}

type pendingPayload struct {
	Pending *types.PendingValidation
}

type removePendingPayload struct {
	Entry    common.Address
	Workflow types.ValidatingWorkflow
}

type netRequestPayload struct {
	RequestID string
}

type netResultPayload struct {
	RequestID string
	Result    []byte
	Err       error
}

type netTimeoutPayload struct {
	RequestID string
}

type clearPayload struct {
	RequestID string
}

type signalZomeCallPayload struct {
	Call *ZomeFnCall
}

type returnZomeCallPayload struct {
	CallID string
	Result []byte
	Err    error
}
