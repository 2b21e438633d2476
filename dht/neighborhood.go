package dht

import (
	"sort"

	"github.com/hc-network/gcond/common"
)

// ShardingMode selects how aspects spread across the space.
type ShardingMode int

const (
	// FullSync replicates every aspect to every node. The default, and
	// what small spaces run.
	FullSync ShardingMode = iota
	// Neighborhood replicates each aspect to the Redundancy nodes whose
	// agent addresses are XOR-closest to the aspect's basis address.
	Neighborhood
)

// ShardingConfig is fixed per instance at join time.
type ShardingConfig struct {
	Mode       ShardingMode
	Redundancy int
}

// Responsible reports whether self must hold aspects with the given basis,
// given the currently known peers of the space (self included or not).
func (c ShardingConfig) Responsible(self, basis common.Address, peers []common.Address) bool {
	if c.Mode == FullSync || c.Redundancy <= 0 {
		return true
	}
	all := make([]common.Address, 0, len(peers)+1)
	seen := map[common.Address]bool{self: true}
	all = append(all, self)
	for _, p := range peers {
		if !seen[p] {
			seen[p] = true
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return common.Closer(basis, all[i], all[j]) })
	n := c.Redundancy
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		if a == self {
			return true
		}
	}
	return false
}
