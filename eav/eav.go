// Package eav implements the (entity, attribute, value) triple index that
// carries all DHT metadata: CRUD status, replacement pointers and link
// membership. Triples are never mutated; CRUD is modeled by inserting new
// triples with later timestamps.
package eav

import (
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/types"
)

// Triple is one immutable index record.
type Triple struct {
	Entity    common.Address `json:"entity"`
	Attribute string         `json:"attribute"`
	Value     common.Address `json:"value"`
	Timestamp int64          `json:"timestamp"`
	Source    common.Address `json:"source,omitempty"`
}

// NewTriple stamps a triple with the current time.
func NewTriple(entity common.Address, attribute string, value common.Address, source common.Address) Triple {
	return Triple{
		Entity:    entity,
		Attribute: attribute,
		Value:     value,
		Timestamp: time.Now().UnixNano(),
		Source:    source,
	}
}

// Address returns the triple's content address, used as its record name in
// persistent backends.
func (t Triple) Address() common.Address {
	addr, err := types.AddressOfContent(t)
	if err != nil {
		panic("eav: triple address: " + err.Error())
	}
	return addr
}

// Index is the triple index contract. Fetch filters are optional per
// position; nil matches every value. The returned set is unordered and
// holds Triple values.
type Index interface {
	Add(t Triple) error
	Fetch(entity *common.Address, attribute *string, value *common.Address) (mapset.Set, error)
}

// Addr is a filter helper for the entity and value positions.
func Addr(a common.Address) *common.Address { return &a }

// Attr is a filter helper for the attribute position.
func Attr(s string) *string { return &s }

func matches(t Triple, entity *common.Address, attribute *string, value *common.Address) bool {
	if entity != nil && t.Entity != *entity {
		return false
	}
	if attribute != nil && t.Attribute != *attribute {
		return false
	}
	if value != nil && t.Value != *value {
		return false
	}
	return true
}

// Triples flattens a result set into a slice ordered by ascending
// timestamp, with the triple address as tiebreak for determinism.
func Triples(set mapset.Set) []Triple {
	out := make([]Triple, 0, set.Cardinality())
	for v := range set.Iter() {
		out = append(out, v.(Triple))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Address() < out[j].Address()
	})
	return out
}
