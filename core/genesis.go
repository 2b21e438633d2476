package core

import (
	"context"
	"fmt"

	"github.com/hc-network/gcond/ribosome"
	"github.com/hc-network/gcond/types"
)

// initializeChain drives the nucleus state machine through genesis: the
// %dna and %agent_id entries on a fresh chain, then the init callback of
// every zome. Any failure is terminal for the instance.
func (inst *Instance) initializeChain(ctx context.Context) error {
	inst.store.Dispatch(Action{Kind: ActionInitializeChain})

	fail := func(reason string) error {
		inst.store.Dispatch(Action{Kind: ActionInitializationFailed, Payload: initFailedPayload{Reason: reason}})
		return fmt.Errorf("%w: %s", types.ErrInitializationFailed, reason)
	}

	if inst.chain.Len() == 0 {
		if _, err := inst.commitEntry(ctx, types.NewDnaEntry(inst.dna), ""); err != nil {
			return fail("committing dna: " + err.Error())
		}
		agentEntry := types.NewAgentIDEntry(types.AgentID{Nick: inst.nick, Address: inst.agent})
		if _, err := inst.commitEntry(ctx, agentEntry, ""); err != nil {
			return fail("committing agent id: " + err.Error())
		}
		for name := range inst.dna.Zomes {
			_, err := inst.runner.RunCallback(inst.dna, name, ribosome.CallbackInit, nil, inst)
			if err != nil && !isNotImplemented(err) {
				return fail(fmt.Sprintf("init callback of zome %q: %v", name, err))
			}
		}
	}

	inst.store.Dispatch(Action{Kind: ActionChainInitialized})
	inst.log.Info("chain initialized")
	return nil
}
