package cas

import (
	"sync"

	"github.com/hc-network/gcond/common"
)

// MemStore is the in-memory Storage backend, used for tests and transient
// instances.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[common.Address][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[common.Address][]byte)}
}

// Add implements Storage.
func (s *MemStore) Add(content []byte) (common.Address, error) {
	addr := common.AddressOf(content)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[addr]; !ok {
		cp := make([]byte, len(content))
		copy(cp, content)
		s.blobs[addr] = cp
	}
	return addr, nil
}

// Fetch implements Storage.
func (s *MemStore) Fetch(addr common.Address) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[addr]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, nil
}

// Contains implements Storage.
func (s *MemStore) Contains(addr common.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[addr]
	return ok, nil
}

// Len returns the number of distinct blobs held.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
