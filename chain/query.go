package chain

import (
	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/types"
)

// QueryOptions controls a source-chain scan.
type QueryOptions struct {
	// Start skips the first N matches (newest-first), Limit caps the
	// result count; zero means unbounded.
	Start int
	Limit int
	// Entries loads entry bodies into the results.
	Entries bool
	// Headers includes full headers in the results.
	Headers bool
}

// QueryItem is one match of a chain query.
type QueryItem struct {
	Address common.Address     `json:"address"`
	Header  *types.ChainHeader `json:"header,omitempty"`
	Entry   *types.Entry       `json:"entry,omitempty"`
}

// Query scans the chain newest-first for entries whose type name matches
// any of the glob patterns.
func (c *SourceChain) Query(patterns []string, opts QueryOptions) ([]QueryItem, error) {
	if len(patterns) == 0 {
		patterns = []string{"**"}
	}
	match := func(t types.EntryType) bool {
		for _, p := range patterns {
			if globMatch(p, string(t)) {
				return true
			}
		}
		return false
	}

	var out []QueryItem
	skipped := 0
	var walkErr error
	err := c.Walk(func(_ common.Address, h types.ChainHeader) bool {
		if !match(h.Type) {
			return true
		}
		if skipped < opts.Start {
			skipped++
			return true
		}
		item := QueryItem{Address: h.EntryAddress}
		if opts.Headers {
			header := h
			item.Header = &header
		}
		if opts.Entries {
			entry, err := c.GetEntry(h.EntryAddress)
			if err != nil {
				walkErr = err
				return false
			}
			item.Entry = &entry
		}
		out = append(out, item)
		return opts.Limit == 0 || len(out) < opts.Limit
	})
	if err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}
	return out, nil
}
