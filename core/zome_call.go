package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hc-network/gcond/params"
	"github.com/hc-network/gcond/types"
)

// CallZomeFunction runs one guest invocation end to end: status gate,
// capability check, signal the call into state, execute on this worker
// goroutine, return the result through the reducer. Calls arriving while
// the chain initializes block until initialization settles and drain in
// arrival order.
func (inst *Instance) CallZomeFunction(ctx context.Context, call *ZomeFnCall) ([]byte, error) {
	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithTimeout(ctx, params.ZomeCallTimeout)
	defer cancel()

	if err := inst.gateOnStatus(cctx); err != nil {
		return nil, err
	}
	if !inst.dna.HasFn(call.Zome, call.Fn) {
		return nil, fmt.Errorf("core: unknown function %s.%s", call.Zome, call.Fn)
	}
	if err := inst.checkCapability(call); err != nil {
		return nil, err
	}

	inst.store.Dispatch(Action{Kind: ActionSignalZomeCall, Payload: signalZomeCallPayload{Call: call}})
	result, err := inst.runner.RunZomeFunction(inst.dna, call.Zome, call.Fn, call.Args, inst)
	inst.store.Dispatch(Action{Kind: ActionReturnZomeCallResult, Payload: returnZomeCallPayload{
		CallID: call.ID,
		Result: result,
		Err:    err,
	}})
	return inst.awaitCallResult(cctx, call.ID)
}

// gateOnStatus enforces the nucleus state machine on call admission.
func (inst *Instance) gateOnStatus(ctx context.Context) error {
	var status NucleusStatus
	var reason string
	err := inst.store.WaitFor(ctx, func(st *State) bool {
		status = st.Nucleus.Status
		reason = st.Nucleus.InitError
		// Queued while Initializing; admitted or rejected otherwise.
		return status != NucleusInitializing
	})
	if err != nil {
		return err
	}
	switch status {
	case NucleusInitialized:
		return nil
	case NucleusInitializationFailed:
		return fmt.Errorf("%w: %s", types.ErrInitializationFailed, reason)
	default:
		return fmt.Errorf("%w: chain not initialized", types.ErrInitializationFailed)
	}
}

// awaitCallResult reads the reduced call result back out of state.
func (inst *Instance) awaitCallResult(ctx context.Context, callID string) ([]byte, error) {
	var res *callResult
	err := inst.store.WaitFor(ctx, func(st *State) bool {
		res = st.Nucleus.CallResults[callID]
		return res != nil
	})
	inst.store.Dispatch(Action{Kind: ActionClearZomeCallResult, Payload: clearPayload{RequestID: callID}})
	if err != nil {
		return nil, err
	}
	return res.result, res.err
}
