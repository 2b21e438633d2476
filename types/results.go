package types

import "github.com/hc-network/gcond/common"

// GetEntryOptions controls a get_entry lookup.
type GetEntryOptions struct {
	StatusRequest CrudStatus `json:"status_request,omitempty"`
	WithHeaders   bool       `json:"headers,omitempty"`
	TimeoutMs     int64      `json:"timeout_ms,omitempty"`
}

// EntryResult is the authoritative answer to a get_entry: the base content
// plus all live update/delete overlays. Concurrent updates from different
// agents are all retained; ReplacedBy then carries every replacement.
type EntryResult struct {
	Entry      *Entry           `json:"entry,omitempty"`
	Headers    []ChainHeader    `json:"headers,omitempty"`
	Status     CrudStatus       `json:"status"`
	ReplacedBy []common.Address `json:"replaced_by,omitempty"`
	DeletedBy  common.Address   `json:"deleted_by,omitempty"`
}

// Found reports whether the lookup located any content.
func (r *EntryResult) Found() bool { return r != nil && r.Entry != nil }

// GetLinksOptions controls a get_links lookup.
type GetLinksOptions struct {
	StatusFilter CrudStatus `json:"status_filter,omitempty"`
	WithHeaders  bool       `json:"headers,omitempty"`
	Start        int        `json:"start,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	TimeoutMs    int64      `json:"timeout_ms,omitempty"`
}

// LinkResult is one hit of a get_links lookup.
type LinkResult struct {
	Target  common.Address `json:"target"`
	LinkAdd common.Address `json:"link_add"`
	Type    string         `json:"type"`
	Tag     string         `json:"tag"`
	Status  CrudStatus     `json:"status"`
	Header  *ChainHeader   `json:"header,omitempty"`
}
