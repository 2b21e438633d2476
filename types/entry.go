// Package types defines the conductor core data model: entries, chain
// headers, entry aspects, CRUD metadata, DNA manifests, capability tokens
// and the validation structures exchanged with guest code.
package types

import (
	"encoding/json"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/hc-network/gcond/common"
)

// EntryType names the variant of an entry. System types carry the "%"
// prefix; every other name is an application-defined type declared in the
// DNA manifest.
type EntryType string

const (
	TypeDna           EntryType = "%dna"
	TypeAgentID       EntryType = "%agent_id"
	TypeDeletion      EntryType = "%deletion"
	TypeLinkAdd       EntryType = "%link_add"
	TypeLinkRemove    EntryType = "%link_remove"
	TypeCapTokenGrant EntryType = "%cap_token_grant"
	TypeCapTokenClaim EntryType = "%cap_token_claim"
	TypeChainHeader   EntryType = "%chain_header"
)

// IsSys reports whether t is a system entry type.
func (t EntryType) IsSys() bool { return strings.HasPrefix(string(t), "%") }

// IsApp reports whether t is an application entry type.
func (t EntryType) IsApp() bool { return !t.IsSys() }

// Publishable reports whether entries of this type may leave the authoring
// node at all. The DNA stays local, and capability tokens live only on
// their owner's chain; private app types are filtered one level up,
// against the manifest's sharing declaration.
func (t EntryType) Publishable() bool {
	switch t {
	case TypeDna, TypeCapTokenGrant, TypeCapTokenClaim:
		return false
	default:
		return true
	}
}

// Entry is the tagged union of everything that can live on a source chain.
// The Value field holds the canonical JSON of the variant payload: the raw
// application body for app types, one of the *Entry payload structs below
// for system types.
type Entry struct {
	Type  EntryType       `json:"entry_type"`
	Value json.RawMessage `json:"value"`
}

// Address returns the content address of the entry. The content determines
// the address: equal entries always collapse to one address.
func (e Entry) Address() common.Address {
	addr, err := AddressOfContent(e)
	if err != nil {
		// Entry marshaling cannot fail: both fields marshal unconditionally.
		panic("types: entry address: " + err.Error())
	}
	return addr
}

// NewAppEntry builds an application entry from its type name and canonical
// JSON body.
func NewAppEntry(typeName string, body json.RawMessage) Entry {
	return Entry{Type: EntryType(typeName), Value: body}
}

// LinkData is the payload of a %link_add entry.
type LinkData struct {
	Base     common.Address `json:"base"`
	Target   common.Address `json:"target"`
	LinkType string         `json:"link_type"`
	Tag      string         `json:"tag"`
}

// LinkRemoveData is the payload of a %link_remove entry. It names the
// %link_add entry being retired; the link's base and target are resolved
// through it.
type LinkRemoveData struct {
	LinkAddAddress common.Address `json:"link_add_address"`
	Reason         string         `json:"reason,omitempty"`
}

// DeletionData is the payload of a %deletion entry.
type DeletionData struct {
	DeletedEntryAddress common.Address `json:"deleted_entry_address"`
	Reason              string         `json:"reason,omitempty"`
}

// AgentID is the payload of a %agent_id entry, the second entry on every
// chain. The address field doubles as the encoded public signing key.
type AgentID struct {
	Nick    string         `json:"nick"`
	Address common.Address `json:"address"`
}

// AgentAddress derives the agent address from a raw ed25519 public key.
func AgentAddress(pub []byte) common.Address {
	return common.Address(base58.Encode(pub))
}

func mustEntry(t EntryType, payload interface{}) Entry {
	b, err := CanonicalJSON(payload)
	if err != nil {
		panic("types: sys entry payload: " + err.Error())
	}
	return Entry{Type: t, Value: b}
}

// NewLinkAddEntry builds a %link_add entry.
func NewLinkAddEntry(link LinkData) Entry { return mustEntry(TypeLinkAdd, link) }

// NewLinkRemoveEntry builds a %link_remove entry.
func NewLinkRemoveEntry(rm LinkRemoveData) Entry { return mustEntry(TypeLinkRemove, rm) }

// NewDeletionEntry builds a %deletion entry.
func NewDeletionEntry(del DeletionData) Entry { return mustEntry(TypeDeletion, del) }

// NewAgentIDEntry builds a %agent_id entry.
func NewAgentIDEntry(id AgentID) Entry { return mustEntry(TypeAgentID, id) }

// NewDnaEntry builds the %dna entry that opens every chain.
func NewDnaEntry(dna *Dna) Entry { return mustEntry(TypeDna, dna) }

// NewGrantEntry builds a %cap_token_grant entry.
func NewGrantEntry(grant CapabilityGrant) Entry { return mustEntry(TypeCapTokenGrant, grant) }

// NewClaimEntry builds a %cap_token_claim entry.
func NewClaimEntry(claim CapabilityClaim) Entry { return mustEntry(TypeCapTokenClaim, claim) }

// LinkData decodes the entry's payload as a %link_add payload.
func (e Entry) LinkData() (LinkData, error) {
	var l LinkData
	err := FromCanonicalJSON(e.Value, &l)
	return l, err
}

// LinkRemoveData decodes the entry's payload as a %link_remove payload.
func (e Entry) LinkRemoveData() (LinkRemoveData, error) {
	var l LinkRemoveData
	err := FromCanonicalJSON(e.Value, &l)
	return l, err
}

// DeletionData decodes the entry's payload as a %deletion payload.
func (e Entry) DeletionData() (DeletionData, error) {
	var d DeletionData
	err := FromCanonicalJSON(e.Value, &d)
	return d, err
}
