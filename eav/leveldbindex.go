package eav

import (
	"encoding/json"
	"fmt"

	mapset "github.com/deckarep/golang-set"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/hc-network/gcond/common"
)

// LevelDBIndex is the embedded-KV Index backend. One record per triple
// under the entity dimension; queries scan the narrowest applicable prefix
// and finish filtering in memory.
type LevelDBIndex struct {
	db *leveldb.DB
}

// NewLevelDBIndex opens (creating if needed) a leveldb-backed index at dir.
func NewLevelDBIndex(dir string) (*LevelDBIndex, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("eav: open leveldb: %w", err)
	}
	return &LevelDBIndex{db: db}, nil
}

// Close releases the underlying database.
func (i *LevelDBIndex) Close() error { return i.db.Close() }

func tripleKey(t Triple) []byte {
	return []byte("e\x00" + string(t.Entity) + "\x00" + string(t.Address()))
}

// Add implements Index.
func (i *LevelDBIndex) Add(t Triple) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("eav: marshal triple: %w", err)
	}
	if err := i.db.Put(tripleKey(t), body, nil); err != nil {
		return fmt.Errorf("eav: leveldb put: %w", err)
	}
	return nil
}

// Fetch implements Index.
func (i *LevelDBIndex) Fetch(entity *common.Address, attribute *string, value *common.Address) (mapset.Set, error) {
	prefix := []byte("e\x00")
	if entity != nil {
		prefix = []byte("e\x00" + string(*entity) + "\x00")
	}
	out := mapset.NewSet()
	iter := i.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		var t Triple
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("eav: decode triple: %w", err)
		}
		if matches(t, entity, attribute, value) {
			out.Add(t)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("eav: leveldb iterate: %w", err)
	}
	return out, nil
}
