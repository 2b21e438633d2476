package cas

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hc-network/gcond/common"
)

// FileStore is the filesystem Storage backend. One file per address under
// the root directory, filename = address. Addresses are base58 and
// therefore path-safe on any filesystem.
type FileStore struct {
	mu   sync.RWMutex
	root string
}

// NewFileStore opens (creating if needed) a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cas: create root: %w", err)
	}
	return &FileStore{root: dir}, nil
}

func (s *FileStore) path(addr common.Address) string {
	return filepath.Join(s.root, addr.String())
}

// Add implements Storage. Writes go through a temp file plus rename so a
// crash never leaves a truncated blob under a valid address.
func (s *FileStore) Add(content []byte) (common.Address, error) {
	addr := common.AddressOf(content)
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.path(addr)
	if _, err := os.Stat(target); err == nil {
		return addr, nil
	}
	tmp, err := os.CreateTemp(s.root, "blob-*")
	if err != nil {
		return common.NullAddress, fmt.Errorf("cas: temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(name)
		return common.NullAddress, fmt.Errorf("cas: write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return common.NullAddress, fmt.Errorf("cas: close blob: %w", err)
	}
	if err := os.Rename(name, target); err != nil {
		os.Remove(name)
		return common.NullAddress, fmt.Errorf("cas: rename blob: %w", err)
	}
	return addr, nil
}

// Fetch implements Storage.
func (s *FileStore) Fetch(addr common.Address) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := os.ReadFile(s.path(addr))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cas: read blob: %w", err)
	}
	return b, nil
}

// Contains implements Storage.
func (s *FileStore) Contains(addr common.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(s.path(addr))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cas: stat blob: %w", err)
	}
	return true, nil
}
