package eav

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/hc-network/gcond/common"
)

// FileIndex is the filesystem Index backend. Each triple is written three
// times, once per dimension:
//
//	e/<entity>/<triple-address>
//	a/<attribute>/<triple-address>
//	v/<value>/<triple-address>
//
// and a query is the intersection of the directory walks for its
// constrained dimensions. Attribute names are path-escaped; addresses are
// base58 and already path-safe.
type FileIndex struct {
	mu   sync.RWMutex
	root string
}

// NewFileIndex opens (creating if needed) a file-backed index rooted at dir.
func NewFileIndex(dir string) (*FileIndex, error) {
	for _, sub := range []string{"e", "a", "v"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return nil, fmt.Errorf("eav: create index dir: %w", err)
		}
	}
	return &FileIndex{root: dir}, nil
}

func escape(s string) string { return url.PathEscape(s) }

func (i *FileIndex) dims(t Triple) [3][2]string {
	return [3][2]string{
		{"e", escape(string(t.Entity))},
		{"a", escape(t.Attribute)},
		{"v", escape(string(t.Value))},
	}
}

// Add implements Index.
func (i *FileIndex) Add(t Triple) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("eav: marshal triple: %w", err)
	}
	name := t.Address().String()
	for _, dim := range i.dims(t) {
		dir := filepath.Join(i.root, dim[0], dim[1])
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("eav: create dim dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o600); err != nil {
			return fmt.Errorf("eav: write triple: %w", err)
		}
	}
	return nil
}

// names collects the triple addresses present under one dimension key.
func (i *FileIndex) names(dim, key string) (map[string]bool, error) {
	entries, err := os.ReadDir(filepath.Join(i.root, dim, key))
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eav: walk %s/%s: %w", dim, key, err)
	}
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		out[e.Name()] = true
	}
	return out, nil
}

// allNames walks every key of one dimension.
func (i *FileIndex) allNames(dim string) (map[string]string, error) {
	// name → containing key, so the triple body can be read back later.
	keys, err := os.ReadDir(filepath.Join(i.root, dim))
	if err != nil {
		return nil, fmt.Errorf("eav: walk %s: %w", dim, err)
	}
	out := make(map[string]string)
	for _, k := range keys {
		if !k.IsDir() {
			continue
		}
		names, err := i.names(dim, k.Name())
		if err != nil {
			return nil, err
		}
		for n := range names {
			out[n] = k.Name()
		}
	}
	return out, nil
}

// Fetch implements Index as the three-way intersection of directory walks.
func (i *FileIndex) Fetch(entity *common.Address, attribute *string, value *common.Address) (mapset.Set, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	// candidates: name → entity-dim key (needed to locate the body file).
	all, err := i.allNames("e")
	if err != nil {
		return nil, err
	}
	keep := func(names map[string]bool) {
		for n := range all {
			if !names[n] {
				delete(all, n)
			}
		}
	}
	if entity != nil {
		names, err := i.names("e", escape(string(*entity)))
		if err != nil {
			return nil, err
		}
		keep(names)
	}
	if attribute != nil {
		names, err := i.names("a", escape(*attribute))
		if err != nil {
			return nil, err
		}
		keep(names)
	}
	if value != nil {
		names, err := i.names("v", escape(string(*value)))
		if err != nil {
			return nil, err
		}
		keep(names)
	}

	out := mapset.NewSet()
	for name, key := range all {
		body, err := os.ReadFile(filepath.Join(i.root, "e", key, name))
		if err != nil {
			return nil, fmt.Errorf("eav: read triple: %w", err)
		}
		var t Triple
		if err := json.Unmarshal(body, &t); err != nil {
			return nil, fmt.Errorf("eav: decode triple: %w", err)
		}
		out.Add(t)
	}
	return out, nil
}
