package core

import (
	"fmt"

	"github.com/hc-network/gcond/params"
	"github.com/hc-network/gcond/types"
)

// reduce is the instance reducer: the only code that mutates state, run
// exclusively on the store goroutine. Side effects here are limited to
// the instance-owned stores (chain, shard); network I/O happens in the
// workflows around dispatches.
func (inst *Instance) reduce(st *State, a Action) {
	switch a.Kind {
	case ActionInitializeChain:
		if st.Nucleus.Status == NucleusNew {
			st.Nucleus.Status = NucleusInitializing
		}

	case ActionChainInitialized:
		if st.Nucleus.Status == NucleusInitializing {
			st.Nucleus.Status = NucleusInitialized
		}

	case ActionInitializationFailed:
		p := a.Payload.(initFailedPayload)
		st.Nucleus.Status = NucleusInitializationFailed
		st.Nucleus.InitError = p.Reason

	case ActionCommit:
		p := a.Payload.(commitPayload)
		header, err := inst.chain.PushReplacing(p.Entry, p.Replaces)
		st.Network.CommitResults[p.RequestID] = &commitResult{header: header, err: err}

	case ActionClearCommitResult:
		delete(st.Network.CommitResults, a.Payload.(clearPayload).RequestID)

	case ActionAddAuthoredAspect:
		p := a.Payload.(authoredPayload)
		st.Network.Authored[p.Aspect.Address()] = p.Aspect

	case ActionHoldAspect:
		p := a.Payload.(holdAspectPayload)
		addr := p.Aspect.Address()
		if st.Dht.HeldAspects.Contains(addr) {
			return
		}
		if err := inst.shard.HoldAspect(p.Aspect); err != nil {
			inst.log.WithError(err).Error("holding aspect failed, state retained")
			return
		}
		st.Dht.HeldAspects.Add(addr)
		if workflow, ok := types.WorkflowForAspect(p.Aspect.Kind); ok {
			if basis, err := p.Aspect.Basis(); err == nil {
				delete(st.Dht.Pending, pendingKey(basis, workflow))
			}
		}

	case ActionRejectAspect:
		p := a.Payload.(rejectAspectPayload)
		st.Dht.Rejected[p.Basis] = p.Reason
		for _, workflow := range []types.ValidatingWorkflow{
			types.WorkflowHoldEntry, types.WorkflowHoldLink, types.WorkflowRemoveLink,
			types.WorkflowUpdateEntry, types.WorkflowRemoveEntry,
		} {
			delete(st.Dht.Pending, pendingKey(p.Basis, workflow))
		}

	case ActionAddPendingValidation:
		p := a.Payload.(pendingPayload)
		if len(st.Dht.Pending) >= params.PendingValidationLimit {
			inst.log.Warn("pending validation table full, dropping aspect")
			return
		}
		basis, err := p.Pending.Aspect.Basis()
		if err != nil {
			return
		}
		st.Dht.Pending[pendingKey(basis, p.Pending.Workflow)] = p.Pending

	case ActionRemovePendingValidation:
		p := a.Payload.(removePendingPayload)
		delete(st.Dht.Pending, pendingKey(p.Entry, p.Workflow))

	case ActionNetRequest:
		p := a.Payload.(netRequestPayload)
		st.Network.NetResults[p.RequestID] = &netResult{}

	case ActionNetResult:
		p := a.Payload.(netResultPayload)
		if slot, ok := st.Network.NetResults[p.RequestID]; ok && !slot.done {
			slot.payload, slot.err, slot.done = p.Result, p.Err, true
		}

	case ActionNetTimeout:
		p := a.Payload.(netTimeoutPayload)
		if slot, ok := st.Network.NetResults[p.RequestID]; ok && !slot.done {
			slot.err = fmt.Errorf("%w: request %s", types.ErrTimeout, p.RequestID)
			slot.done = true
		}

	case ActionClearNetResult:
		delete(st.Network.NetResults, a.Payload.(clearPayload).RequestID)

	case ActionSignalZomeCall:
		p := a.Payload.(signalZomeCallPayload)
		st.Nucleus.RunningCalls[p.Call.ID] = p.Call

	case ActionReturnZomeCallResult:
		p := a.Payload.(returnZomeCallPayload)
		delete(st.Nucleus.RunningCalls, p.CallID)
		st.Nucleus.CallResults[p.CallID] = &callResult{result: p.Result, err: p.Err}

	case ActionClearZomeCallResult:
		delete(st.Nucleus.CallResults, a.Payload.(clearPayload).RequestID)

	default:
		inst.log.WithField("kind", a.Kind).Warn("unknown action")
	}
}
