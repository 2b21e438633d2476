package types

import (
	"crypto/ed25519"
	"encoding/base64"
	"time"

	"github.com/mr-tron/base58"

	"github.com/hc-network/gcond/common"
)

// Provenance is one (agent, signature) pair attesting to an entry. The
// signature is over the entry address and verifies against the public key
// encoded in the source agent's address.
type Provenance struct {
	Source    common.Address `json:"source"`
	Signature string         `json:"signature"`
}

// NewProvenance base64-encodes a raw signature into a Provenance.
func NewProvenance(source common.Address, sig []byte) Provenance {
	return Provenance{Source: source, Signature: base64.StdEncoding.EncodeToString(sig)}
}

// Verify checks the provenance signature over payload against the public
// key encoded in the source address.
func (p Provenance) Verify(payload []byte) bool {
	pub, err := base58.Decode(string(p.Source))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(p.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), payload, sig)
}

// ChainHeader is the metadata record committed for every entry. Headers
// form the chain: PreviousHeader links the whole chain, TypePrevious the
// per-type sub-chain. Replaces is set only on update commits and points at
// the entry being superseded.
type ChainHeader struct {
	Type           EntryType      `json:"entry_type"`
	EntryAddress   common.Address `json:"entry_address"`
	PreviousHeader common.Address `json:"previous_header,omitempty"`
	TypePrevious   common.Address `json:"type_previous,omitempty"`
	Replaces       common.Address `json:"replaces,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Provenances    []Provenance   `json:"provenances"`
}

// Address returns the content address of the header.
func (h ChainHeader) Address() common.Address {
	addr, err := AddressOfContent(h)
	if err != nil {
		panic("types: header address: " + err.Error())
	}
	return addr
}

// Source returns the authoring agent: the source of the first provenance.
func (h ChainHeader) Source() common.Address {
	if len(h.Provenances) == 0 {
		return common.NullAddress
	}
	return h.Provenances[0].Source
}

// VerifyProvenances reports whether at least one provenance signature
// verifies against the committed entry address, per the chain invariant.
func (h ChainHeader) VerifyProvenances() bool {
	msg := []byte(h.EntryAddress)
	for _, p := range h.Provenances {
		if p.Verify(msg) {
			return true
		}
	}
	return false
}
