package eav

import (
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/hc-network/gcond/common"
)

// MemIndex is the in-memory Index backend.
type MemIndex struct {
	mu      sync.RWMutex
	triples map[common.Address]Triple // triple address → triple
}

// NewMemIndex creates an empty in-memory index.
func NewMemIndex() *MemIndex {
	return &MemIndex{triples: make(map[common.Address]Triple)}
}

// Add implements Index. Re-adding an identical triple is a no-op.
func (i *MemIndex) Add(t Triple) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.triples[t.Address()] = t
	return nil
}

// Fetch implements Index.
func (i *MemIndex) Fetch(entity *common.Address, attribute *string, value *common.Address) (mapset.Set, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := mapset.NewSet()
	for _, t := range i.triples {
		if matches(t, entity, attribute, value) {
			out.Add(t)
		}
	}
	return out, nil
}
