// Package chain implements the per-agent source chain: an append-only,
// hash-linked, signed log of entries backed by a content-addressed store,
// with the current top header recorded separately.
package chain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hc-network/gcond/cas"
	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/types"
)

var (
	// ErrInvalidGenesis is returned when the first two pushes are not the
	// %dna and %agent_id entries in that order.
	ErrInvalidGenesis = errors.New("chain: first entries must be %dna then %agent_id")

	// ErrBrokenChain is returned when a header walk hits a missing or
	// undecodable record.
	ErrBrokenChain = errors.New("chain: broken header link")
)

// Signer produces provenance signatures for the chain owner. The core
// never sees key material; signing is delegated to the keystore oracle.
type Signer interface {
	Address() common.Address
	Sign(payload []byte) ([]byte, error)
}

// TopStore persists the current top-header address per agent.
type TopStore interface {
	Top(agent common.Address) (common.Address, error)
	SetTop(agent, top common.Address) error
}

// SourceChain is one agent's chain over a content-addressed store.
type SourceChain struct {
	mu     sync.RWMutex
	store  cas.Storage
	tops   TopStore
	signer Signer

	top      common.Address
	length   int
	typeTops map[types.EntryType]common.Address

	log *logrus.Entry
}

// Open loads (or begins) the signer's chain on store, rebuilding the
// per-type sub-chain tops from the persisted headers.
func Open(store cas.Storage, tops TopStore, signer Signer) (*SourceChain, error) {
	c := &SourceChain{
		store:    store,
		tops:     tops,
		signer:   signer,
		typeTops: make(map[types.EntryType]common.Address),
		log:      logrus.WithField("pkg", "chain"),
	}
	top, err := tops.Top(signer.Address())
	if err != nil {
		return nil, err
	}
	c.top = top
	if err := c.rebuild(); err != nil {
		return nil, err
	}
	return c, nil
}

// rebuild walks the chain once to recover length and per-type tops.
func (c *SourceChain) rebuild() error {
	seenTypes := make(map[types.EntryType]bool)
	return c.walkLocked(func(addr common.Address, h types.ChainHeader) bool {
		c.length++
		if !seenTypes[h.Type] {
			seenTypes[h.Type] = true
			c.typeTops[h.Type] = addr
		}
		return true
	})
}

// Top returns the current top-header address, null on an empty chain.
func (c *SourceChain) Top() common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.top
}

// Len returns the number of headers on the chain.
func (c *SourceChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.length
}

// Agent returns the chain owner's address.
func (c *SourceChain) Agent() common.Address { return c.signer.Address() }

// TypeTop returns the top header address of the per-type sub-chain.
func (c *SourceChain) TypeTop(t types.EntryType) common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.typeTops[t]
}

// Push appends entry to the chain. See PushReplacing for update commits.
func (c *SourceChain) Push(entry types.Entry) (types.ChainHeader, error) {
	return c.PushReplacing(entry, common.NullAddress)
}

// PushReplacing appends entry, marking the header as replacing the given
// entry address (update commits). The push order is: sign, store entry,
// store header, then move the top forward; a failure at any step leaves
// the chain untouched.
func (c *SourceChain) PushReplacing(entry types.Entry, replaces common.Address) (types.ChainHeader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkGenesisOrder(entry.Type); err != nil {
		return types.ChainHeader{}, err
	}

	entryBytes, err := types.CanonicalJSON(entry)
	if err != nil {
		return types.ChainHeader{}, err
	}
	entryAddr := common.AddressOf(entryBytes)

	sig, err := c.signer.Sign([]byte(entryAddr))
	if err != nil {
		return types.ChainHeader{}, fmt.Errorf("chain: sign entry: %w", err)
	}

	header := types.ChainHeader{
		Type:           entry.Type,
		EntryAddress:   entryAddr,
		PreviousHeader: c.top,
		TypePrevious:   c.typeTops[entry.Type],
		Replaces:       replaces,
		Timestamp:      time.Now().UTC(),
		Provenances:    []types.Provenance{types.NewProvenance(c.signer.Address(), sig)},
	}
	headerBytes, err := types.CanonicalJSON(header)
	if err != nil {
		return types.ChainHeader{}, err
	}

	if _, err := c.store.Add(entryBytes); err != nil {
		return types.ChainHeader{}, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	headerAddr, err := c.store.Add(headerBytes)
	if err != nil {
		return types.ChainHeader{}, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	if err := c.tops.SetTop(c.signer.Address(), headerAddr); err != nil {
		return types.ChainHeader{}, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}

	c.top = headerAddr
	c.typeTops[entry.Type] = headerAddr
	c.length++
	c.log.WithFields(logrus.Fields{
		"type":  entry.Type,
		"entry": entryAddr,
	}).Debug("pushed entry")
	return header, nil
}

func (c *SourceChain) checkGenesisOrder(t types.EntryType) error {
	switch c.length {
	case 0:
		if t != types.TypeDna {
			return ErrInvalidGenesis
		}
	case 1:
		if t != types.TypeAgentID {
			return ErrInvalidGenesis
		}
	}
	return nil
}

// header reads and decodes one header from the store.
func (c *SourceChain) header(addr common.Address) (types.ChainHeader, error) {
	b, err := c.store.Fetch(addr)
	if err != nil {
		return types.ChainHeader{}, fmt.Errorf("%w: header %s: %v", ErrBrokenChain, addr, err)
	}
	var h types.ChainHeader
	if err := types.FromCanonicalJSON(b, &h); err != nil {
		return types.ChainHeader{}, fmt.Errorf("%w: header %s: %v", ErrBrokenChain, addr, err)
	}
	return h, nil
}

// walkLocked visits headers newest-first; fn returning false stops early.
// Callers hold at least the read lock.
func (c *SourceChain) walkLocked(fn func(addr common.Address, h types.ChainHeader) bool) error {
	addr := c.top
	for !addr.IsNull() {
		h, err := c.header(addr)
		if err != nil {
			return err
		}
		if !fn(addr, h) {
			return nil
		}
		addr = h.PreviousHeader
	}
	return nil
}

// Walk visits headers newest-first; fn returning false stops early.
func (c *SourceChain) Walk(fn func(addr common.Address, h types.ChainHeader) bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.walkLocked(fn)
}

// Headers returns all headers newest-first.
func (c *SourceChain) Headers() ([]types.ChainHeader, error) {
	var out []types.ChainHeader
	err := c.Walk(func(_ common.Address, h types.ChainHeader) bool {
		out = append(out, h)
		return true
	})
	return out, err
}

// HeadersOfType returns the per-type sub-chain newest-first, following the
// TypePrevious links rather than scanning the whole chain.
func (c *SourceChain) HeadersOfType(t types.EntryType) ([]types.ChainHeader, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []types.ChainHeader
	addr := c.typeTops[t]
	for !addr.IsNull() {
		h, err := c.header(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
		addr = h.TypePrevious
	}
	return out, nil
}

// GetEntry returns the entry stored under addr, or cas.ErrNotFound.
func (c *SourceChain) GetEntry(addr common.Address) (types.Entry, error) {
	b, err := c.store.Fetch(addr)
	if err != nil {
		return types.Entry{}, err
	}
	var e types.Entry
	if err := types.FromCanonicalJSON(b, &e); err != nil {
		return types.Entry{}, err
	}
	return e, nil
}

// Contains reports whether addr (entry or header) is held on this chain's
// store.
func (c *SourceChain) Contains(addr common.Address) (bool, error) {
	return c.store.Contains(addr)
}
