// Package keystore implements the signing oracle the conductor consumes.
// Secrets live behind the Keystore interface as named seeds and keypairs;
// callers only ever see identifiers, public keys and signatures. Derivation
// is indexed and context-tagged: (seed, context, index) always reproduces
// the same child.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/types"
)

var (
	ErrUnknownIdentifier = errors.New("keystore: unknown identifier")
	ErrIdentifierExists  = errors.New("keystore: identifier already exists")
	ErrNotASeed          = errors.New("keystore: identifier is not a seed")
	ErrNotAKey           = errors.New("keystore: identifier is not a keypair")
)

// Keystore is the oracle interface. Implementations never expose private
// key material through it.
type Keystore interface {
	// List returns all known secret identifiers.
	List() []string
	// AddRandomSeed creates a fresh random seed of the given byte size.
	AddRandomSeed(id string, size int) error
	// AddSeedFromSeed derives a deterministic sub-seed.
	AddSeedFromSeed(srcID, dstID, context string, index uint64) error
	// AddKeyFromSeed derives a signing keypair and returns its public key
	// encoded as an agent address.
	AddKeyFromSeed(srcID, dstID, context string, index uint64) (common.Address, error)
	// Sign signs payload with the named keypair.
	Sign(id string, payload []byte) ([]byte, error)
	// GetPublicKey returns the named keypair's public key as an address.
	GetPublicKey(id string) (common.Address, error)
}

// secret is one named entry: either a seed or a keypair.
type secret struct {
	seed []byte
	priv ed25519.PrivateKey
}

// MemKeystore is the in-memory Keystore. The file-backed store embeds it
// and adds encrypted persistence.
type MemKeystore struct {
	mu      sync.RWMutex
	secrets map[string]*secret
}

// NewMemKeystore creates an empty keystore.
func NewMemKeystore() *MemKeystore {
	return &MemKeystore{secrets: make(map[string]*secret)}
}

// List implements Keystore; identifiers come back sorted for determinism.
func (k *MemKeystore) List() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, 0, len(k.secrets))
	for id := range k.secrets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// AddRandomSeed implements Keystore.
func (k *MemKeystore) AddRandomSeed(id string, size int) error {
	seed := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return fmt.Errorf("keystore: read entropy: %w", err)
	}
	return k.putSeed(id, seed)
}

func (k *MemKeystore) putSeed(id string, seed []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.secrets[id]; ok {
		return fmt.Errorf("%w: %q", ErrIdentifierExists, id)
	}
	k.secrets[id] = &secret{seed: seed}
	return nil
}

func (k *MemKeystore) getSeed(id string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.secrets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIdentifier, id)
	}
	if s.seed == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotASeed, id)
	}
	return s.seed, nil
}

// derive stretches (seed, context, index) into size bytes with HKDF-SHA256.
// The context tag doubles as the HKDF info so unrelated contexts yield
// unrelated children.
func derive(seed []byte, context string, index uint64, size int) ([]byte, error) {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	info := append([]byte(context), idx[:]...)
	out := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, info), out); err != nil {
		return nil, fmt.Errorf("keystore: derive: %w", err)
	}
	return out, nil
}

// AddSeedFromSeed implements Keystore.
func (k *MemKeystore) AddSeedFromSeed(srcID, dstID, context string, index uint64) error {
	seed, err := k.getSeed(srcID)
	if err != nil {
		return err
	}
	child, err := derive(seed, context, index, len(seed))
	if err != nil {
		return err
	}
	return k.putSeed(dstID, child)
}

// AddKeyFromSeed implements Keystore.
func (k *MemKeystore) AddKeyFromSeed(srcID, dstID, context string, index uint64) (common.Address, error) {
	seed, err := k.getSeed(srcID)
	if err != nil {
		return common.NullAddress, err
	}
	keySeed, err := derive(seed, context, index, ed25519.SeedSize)
	if err != nil {
		return common.NullAddress, err
	}
	priv := ed25519.NewKeyFromSeed(keySeed)

	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.secrets[dstID]; ok {
		return common.NullAddress, fmt.Errorf("%w: %q", ErrIdentifierExists, dstID)
	}
	k.secrets[dstID] = &secret{priv: priv}
	return types.AgentAddress(priv.Public().(ed25519.PublicKey)), nil
}

func (k *MemKeystore) getKey(id string) (ed25519.PrivateKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.secrets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIdentifier, id)
	}
	if s.priv == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotAKey, id)
	}
	return s.priv, nil
}

// Sign implements Keystore.
func (k *MemKeystore) Sign(id string, payload []byte) ([]byte, error) {
	priv, err := k.getKey(id)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, payload), nil
}

// GetPublicKey implements Keystore.
func (k *MemKeystore) GetPublicKey(id string) (common.Address, error) {
	priv, err := k.getKey(id)
	if err != nil {
		return common.NullAddress, err
	}
	return types.AgentAddress(priv.Public().(ed25519.PublicKey)), nil
}

// Verify checks an ed25519 signature against the public key encoded in an
// agent address. Convenience wrapper over types.Provenance.
func Verify(agent common.Address, payload, sig []byte) bool {
	return types.NewProvenance(agent, sig).Verify(payload)
}
