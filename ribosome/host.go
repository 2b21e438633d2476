package ribosome

import (
	"encoding/json"
	"time"

	"github.com/hc-network/gcond/chain"
	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/types"
)

// Host function names imported by guest modules. The calling convention is
// uniform: one i32 parameter (an encoded allocation holding the canonical
// JSON argument) and one i32 return (an encoded allocation holding the
// result, or a status code).
const (
	FnCommitEntry     = "hc_commit_entry"
	FnGetEntry        = "hc_get_entry"
	FnGetLinks        = "hc_get_links"
	FnLinkEntries     = "hc_link_entries"
	FnRemoveLink      = "hc_remove_link"
	FnUpdateEntry     = "hc_update_entry"
	FnRemoveEntry     = "hc_remove_entry"
	FnQuery           = "hc_query"
	FnSend            = "hc_send"
	FnCall            = "hc_call"
	FnSign            = "hc_sign"
	FnVerifySignature = "hc_verify_signature"
	FnEncrypt         = "hc_encrypt"
	FnDecrypt         = "hc_decrypt"
	FnKeystoreList    = "hc_keystore_list"
	FnKeystoreNewSeed = "hc_keystore_new_random_seed"
	FnKeystoreDerive  = "hc_keystore_derive_seed"
	FnKeystoreKey     = "hc_keystore_derive_key"
	FnKeystoreSign    = "hc_keystore_sign"
	FnKeystorePubKey  = "hc_keystore_get_public_key"
	FnCapabilityGrant = "hc_commit_capability_grant"
	FnCapabilityClaim = "hc_commit_capability_claim"
	FnDebug           = "hc_debug"
	FnEmitSignal      = "hc_emit_signal"
	FnSleep           = "hc_sleep"
	FnProperty        = "hc_property"
)

// Guest export names the runtime calls back into.
const (
	CallbackValidateEntry     = "__hdk_validate_app_entry"
	CallbackValidateLink      = "__hdk_validate_link"
	CallbackValidationPackage = "__hdk_get_validation_package_for_entry_type"
	CallbackInit              = "init"
	CallbackReceive           = "receive"
)

// HostEnv is the capability surface the conductor exposes to one guest
// call. The core instance implements it; every method that mutates state
// dispatches an action and blocks until the reducer installs the result.
type HostEnv interface {
	CommitEntry(entry types.Entry) (common.Address, error)
	GetEntry(addr common.Address, opts types.GetEntryOptions) (*types.EntryResult, error)
	GetLinks(base common.Address, linkType, tag string, opts types.GetLinksOptions) ([]types.LinkResult, error)
	LinkEntries(link types.LinkData) (common.Address, error)
	RemoveLink(link types.LinkData) (common.Address, error)
	UpdateEntry(old common.Address, newEntry types.Entry) (common.Address, error)
	RemoveEntry(addr common.Address) (common.Address, error)
	Query(patterns []string, opts chain.QueryOptions) ([]chain.QueryItem, error)
	Send(to common.Address, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error)
	Call(zome, fn string, args json.RawMessage, capRequest types.CapabilityRequest) (json.RawMessage, error)
	Sign(payload []byte) (types.Provenance, error)
	VerifySignature(p types.Provenance, payload []byte) (bool, error)
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
	KeystoreList() ([]string, error)
	KeystoreNewRandomSeed(id string, size int) error
	KeystoreDeriveSeed(src, dst, context string, index uint64) error
	KeystoreDeriveKey(src, dst, context string, index uint64) (common.Address, error)
	KeystoreSign(id string, payload []byte) ([]byte, error)
	KeystoreGetPublicKey(id string) (common.Address, error)
	CommitCapabilityGrant(grant types.CapabilityGrant) (common.Address, error)
	CommitCapabilityClaim(claim types.CapabilityClaim) (common.Address, error)
	Debug(msg string)
	EmitSignal(name string, payload json.RawMessage) error
	Sleep(d time.Duration)
	Property(key string) (string, error)
}

// Argument envelopes for the host calls, in canonical JSON.

type commitEntryArgs struct {
	Entry types.Entry `json:"entry"`
}

type getEntryArgs struct {
	Address common.Address        `json:"address"`
	Options types.GetEntryOptions `json:"options"`
}

type getLinksArgs struct {
	Base     common.Address        `json:"base"`
	LinkType string                `json:"link_type"`
	Tag      string                `json:"tag"`
	Options  types.GetLinksOptions `json:"options"`
}

type updateEntryArgs struct {
	Address  common.Address `json:"address"`
	NewEntry types.Entry    `json:"new_entry"`
}

type removeEntryArgs struct {
	Address common.Address `json:"address"`
}

type queryArgs struct {
	Patterns []string           `json:"patterns"`
	Options  chain.QueryOptions `json:"options"`
}

type sendArgs struct {
	To        common.Address  `json:"to"`
	Payload   json.RawMessage `json:"payload"`
	TimeoutMs int64           `json:"timeout_ms,omitempty"`
}

type callArgs struct {
	Zome       string                  `json:"zome"`
	Fn         string                  `json:"fn"`
	Args       json.RawMessage         `json:"args"`
	CapRequest types.CapabilityRequest `json:"cap_request"`
}

type signArgs struct {
	Payload string `json:"payload"`
}

type verifyArgs struct {
	Provenance types.Provenance `json:"provenance"`
	Payload    string           `json:"payload"`
}

type cryptArgs struct {
	Data []byte `json:"data"`
}

type keystoreSeedArgs struct {
	ID   string `json:"id"`
	Size int    `json:"size,omitempty"`
}

type keystoreDeriveArgs struct {
	Src     string `json:"src"`
	Dst     string `json:"dst"`
	Context string `json:"context"`
	Index   uint64 `json:"index"`
}

type keystoreSignArgs struct {
	ID      string `json:"id"`
	Payload string `json:"payload"`
}

type emitSignalArgs struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

type propertyArgs struct {
	Key string `json:"key"`
}

type addressResult struct {
	Address common.Address `json:"address"`
}
