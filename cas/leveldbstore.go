package cas

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/params"
)

// LevelDBStore is the embedded-KV Storage backend with a read-through LRU
// cache in front of disk.
type LevelDBStore struct {
	db    *leveldb.DB
	cache *lru.Cache
}

// NewLevelDBStore opens (creating if needed) a leveldb-backed store at dir.
func NewLevelDBStore(dir string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("cas: open leveldb: %w", err)
	}
	cache, err := lru.New(params.CASCacheEntries)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &LevelDBStore{db: db, cache: cache}, nil
}

// Close releases the underlying database.
func (s *LevelDBStore) Close() error { return s.db.Close() }

// Add implements Storage.
func (s *LevelDBStore) Add(content []byte) (common.Address, error) {
	addr := common.AddressOf(content)
	if s.cache.Contains(addr) {
		return addr, nil
	}
	if err := s.db.Put([]byte(addr), content, nil); err != nil {
		return common.NullAddress, fmt.Errorf("cas: leveldb put: %w", err)
	}
	cp := make([]byte, len(content))
	copy(cp, content)
	s.cache.Add(addr, cp)
	return addr, nil
}

// Fetch implements Storage.
func (s *LevelDBStore) Fetch(addr common.Address) ([]byte, error) {
	if blob, ok := s.cache.Get(addr); ok {
		b := blob.([]byte)
		cp := make([]byte, len(b))
		copy(cp, b)
		return cp, nil
	}
	b, err := s.db.Get([]byte(addr), nil)
	if err == errors.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cas: leveldb get: %w", err)
	}
	s.cache.Add(addr, b)
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

// Contains implements Storage.
func (s *LevelDBStore) Contains(addr common.Address) (bool, error) {
	if s.cache.Contains(addr) {
		return true, nil
	}
	ok, err := s.db.Has([]byte(addr), nil)
	if err != nil {
		return false, fmt.Errorf("cas: leveldb has: %w", err)
	}
	return ok, nil
}
