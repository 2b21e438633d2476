package core

import (
	"fmt"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/types"
)

// checkCapability resolves permission for one zome call:
//
//  1. the local agent calling itself is always allowed,
//  2. functions declared with the public trait are allowed,
//  3. otherwise the token must name a live grant on the local chain that
//     permits (zome, fn) for the caller, and the request signature over
//     (token, caller, args) must verify against the caller's key.
func (inst *Instance) checkCapability(call *ZomeFnCall) error {
	req := call.CapRequest
	caller := req.Caller()

	if caller == inst.agent && req.CapToken == common.Address(inst.agent) {
		return nil
	}
	if inst.dna.FnIsPublic(call.Zome, call.Fn) {
		return nil
	}

	grantEntry, err := inst.chain.GetEntry(req.CapToken)
	if err != nil {
		return fmt.Errorf("%w: no grant for token %s", types.ErrCapabilityCheckFailed, req.CapToken)
	}
	if grantEntry.Type != types.TypeCapTokenGrant {
		return fmt.Errorf("%w: token %s is not a grant", types.ErrCapabilityCheckFailed, req.CapToken)
	}
	var grant types.CapabilityGrant
	if err := types.FromCanonicalJSON(grantEntry.Value, &grant); err != nil {
		return fmt.Errorf("%w: undecodable grant", types.ErrCapabilityCheckFailed)
	}
	if !grant.Permits(caller, call.Zome, call.Fn) {
		return fmt.Errorf("%w: grant does not permit %s.%s for %s", types.ErrCapabilityCheckFailed, call.Zome, call.Fn, caller)
	}
	payload := types.CapRequestPayload(req.CapToken, caller, call.Args)
	if !req.Provenance.Verify(payload) {
		return fmt.Errorf("%w: request signature does not verify", types.ErrCapabilityCheckFailed)
	}
	return nil
}

// MakeCapRequest builds and signs a capability request for a call with
// the given token, using this instance's agent key.
func (inst *Instance) MakeCapRequest(token common.Address, args []byte) (types.CapabilityRequest, error) {
	payload := types.CapRequestPayload(token, inst.agent, args)
	sig, err := inst.signer.Sign(payload)
	if err != nil {
		return types.CapabilityRequest{}, err
	}
	return types.CapabilityRequest{
		CapToken:   token,
		Provenance: types.NewProvenance(inst.agent, sig),
	}, nil
}

// SelfCapRequest is the token a local agent presents to itself.
func (inst *Instance) SelfCapRequest(args []byte) (types.CapabilityRequest, error) {
	return inst.MakeCapRequest(common.Address(inst.agent), args)
}
