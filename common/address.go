// Package common contains the shared identifier types used across the
// conductor: content addresses and helpers for ordering and distance.
package common

import (
	"bytes"
	"crypto/sha256"
	"sort"

	"github.com/mr-tron/base58"
	mh "github.com/multiformats/go-multihash"
)

// Address is a content-derived identifier: the base58btc encoding of the
// sha2-256 multihash of the canonical serialization of the addressed content.
// Agent addresses are the exception; they encode the raw ed25519 public key
// so that provenance signatures can be verified from the address alone.
type Address string

// NullAddress is the zero value, used where an optional address is absent.
const NullAddress = Address("")

// AddressOf returns the content address for raw content bytes.
func AddressOf(content []byte) Address {
	sum, err := mh.Sum(content, mh.SHA2_256, -1)
	if err != nil {
		// mh.Sum only fails for unknown hash codes.
		panic("common: multihash sum: " + err.Error())
	}
	return Address(base58.Encode(sum))
}

// IsNull reports whether the address is unset.
func (a Address) IsNull() bool { return a == NullAddress }

func (a Address) String() string { return string(a) }

// Bytes returns the decoded multihash (or raw key) bytes, nil if the
// address is not valid base58.
func (a Address) Bytes() []byte {
	b, err := base58.Decode(string(a))
	if err != nil {
		return nil
	}
	return b
}

// Digest returns a fixed 32-byte digest for the address, used for distance
// computation in the DHT address space. Content addresses yield their
// multihash digest; agent addresses (raw keys) are hashed once more so that
// every address lands in the same space.
func (a Address) Digest() [32]byte {
	raw := a.Bytes()
	if dec, err := mh.Decode(raw); err == nil && len(dec.Digest) == 32 {
		var out [32]byte
		copy(out[:], dec.Digest)
		return out
	}
	return sha256.Sum256([]byte(a))
}

// Distance returns the XOR distance between two addresses in digest space.
func Distance(a, b Address) [32]byte {
	da, db := a.Digest(), b.Digest()
	var out [32]byte
	for i := range out {
		out[i] = da[i] ^ db[i]
	}
	return out
}

// Closer reports whether x is strictly closer to target than y is.
func Closer(target, x, y Address) bool {
	dx, dy := Distance(target, x), Distance(target, y)
	return bytes.Compare(dx[:], dy[:]) < 0
}

// SortAddresses sorts addresses in ascending lexicographic order, giving a
// deterministic iteration order over address sets.
func SortAddresses(addrs []Address) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
}
