// Package cas implements content-addressed storage: byte blobs keyed by the
// cryptographic hash of their content. Backends are interchangeable behind
// the Storage contract; Add is idempotent and safe under concurrent calls
// because values for a given address are equal by construction.
package cas

import (
	"errors"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/types"
)

var (
	// ErrNotFound is returned by Fetch for addresses never added.
	ErrNotFound = errors.New("cas: content not found")
)

// Storage is the content-addressed store contract.
type Storage interface {
	// Add stores content and returns its address. Adding identical content
	// twice yields the same address and leaves one logical copy.
	Add(content []byte) (common.Address, error)
	// Fetch returns exactly the bytes that were added under addr, or
	// ErrNotFound.
	Fetch(addr common.Address) ([]byte, error)
	// Contains reports whether addr is held without fetching the content.
	Contains(addr common.Address) (bool, error)
}

// AddContent canonicalizes v and stores it, returning the content address.
func AddContent(s Storage, v interface{}) (common.Address, error) {
	b, err := types.CanonicalJSON(v)
	if err != nil {
		return common.NullAddress, err
	}
	return s.Add(b)
}
