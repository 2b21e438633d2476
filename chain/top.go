package chain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hc-network/gcond/common"
)

// MemTop is the in-memory TopStore.
type MemTop struct {
	mu   sync.RWMutex
	tops map[common.Address]common.Address
}

// NewMemTop creates an empty in-memory top store.
func NewMemTop() *MemTop {
	return &MemTop{tops: make(map[common.Address]common.Address)}
}

// Top implements TopStore.
func (m *MemTop) Top(agent common.Address) (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tops[agent], nil
}

// SetTop implements TopStore.
func (m *MemTop) SetTop(agent, top common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tops[agent] = top
	return nil
}

// FileTop persists tops in a single small JSON record, `chain_top`, mapping
// agent address to current top-header address.
type FileTop struct {
	mu   sync.Mutex
	path string
}

// NewFileTop opens (creating if needed) the top record under dir.
func NewFileTop(dir string) (*FileTop, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("chain: create dir: %w", err)
	}
	return &FileTop{path: filepath.Join(dir, "chain_top")}, nil
}

func (f *FileTop) load() (map[common.Address]common.Address, error) {
	b, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[common.Address]common.Address{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chain: read top record: %w", err)
	}
	var tops map[common.Address]common.Address
	if err := json.Unmarshal(b, &tops); err != nil {
		return nil, fmt.Errorf("chain: decode top record: %w", err)
	}
	return tops, nil
}

// Top implements TopStore.
func (f *FileTop) Top(agent common.Address) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tops, err := f.load()
	if err != nil {
		return common.NullAddress, err
	}
	return tops[agent], nil
}

// SetTop implements TopStore. The record is rewritten atomically via a
// temp file so a crash never leaves a torn top.
func (f *FileTop) SetTop(agent, top common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tops, err := f.load()
	if err != nil {
		return err
	}
	tops[agent] = top
	b, err := json.Marshal(tops)
	if err != nil {
		return fmt.Errorf("chain: encode top record: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("chain: write top record: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("chain: rename top record: %w", err)
	}
	return nil
}
