package types

import (
	"github.com/hc-network/gcond/common"
)

// ZomeFn names one callable function inside a zome.
type ZomeFn struct {
	Zome string `json:"zome"`
	Fn   string `json:"fn"`
}

// CapabilityGrant is the payload of a %cap_token_grant entry, committed on
// the grantor's chain. The grant entry address is the capability token.
// An empty assignee list grants to any caller that presents the token.
type CapabilityGrant struct {
	ID        string           `json:"id"`
	Grantor   common.Address   `json:"grantor"`
	Assignees []common.Address `json:"assignees,omitempty"`
	Functions []ZomeFn         `json:"functions"`
}

// Permits reports whether the grant covers (zome, fn) for caller.
func (g CapabilityGrant) Permits(caller common.Address, zome, fn string) bool {
	if len(g.Assignees) > 0 {
		assigned := false
		for _, a := range g.Assignees {
			if a == caller {
				assigned = true
				break
			}
		}
		if !assigned {
			return false
		}
	}
	for _, f := range g.Functions {
		if f.Zome == zome && f.Fn == fn {
			return true
		}
	}
	return false
}

// CapabilityClaim is the payload of a %cap_token_claim entry, committed on
// the claimant's chain to remember a token issued by a grantor.
type CapabilityClaim struct {
	ID      string         `json:"id"`
	Grantor common.Address `json:"grantor"`
	Token   common.Address `json:"token"`
}

// CapabilityRequest rides on every zome call and identifies the caller and
// the token under which the call claims permission. The provenance
// signature covers CapRequestPayload.
type CapabilityRequest struct {
	CapToken   common.Address `json:"cap_token"`
	Provenance Provenance     `json:"provenance"`
}

// Caller returns the claimed caller agent.
func (r CapabilityRequest) Caller() common.Address { return r.Provenance.Source }

// CapRequestPayload is the byte string a capability request signs:
// (cap_token, caller, params) in canonical order.
func CapRequestPayload(token, caller common.Address, params []byte) []byte {
	out := make([]byte, 0, len(token)+len(caller)+len(params)+2)
	out = append(out, token...)
	out = append(out, 0x00)
	out = append(out, caller...)
	out = append(out, 0x00)
	out = append(out, params...)
	return out
}
