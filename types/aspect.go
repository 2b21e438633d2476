package types

import (
	"fmt"

	"github.com/hc-network/gcond/common"
)

// AspectKind identifies the variant of an EntryAspect.
type AspectKind string

const (
	AspectContent    AspectKind = "content"
	AspectHeader     AspectKind = "header"
	AspectLinkAdd    AspectKind = "link_add"
	AspectLinkRemove AspectKind = "link_remove"
	AspectUpdate     AspectKind = "update"
	AspectDeletion   AspectKind = "deletion"
)

// EntryAspect is the unit of DHT replication. Every aspect carries the
// authoring header; content-bearing variants also carry the entry. Aspects
// are grouped on the DHT by the basis address they concern, which is not
// always the address of the carried entry (a deletion aspect lives with the
// entry it retires).
type EntryAspect struct {
	Kind   AspectKind  `json:"kind"`
	Entry  *Entry      `json:"entry,omitempty"`
	Header ChainHeader `json:"header"`
	Link   *LinkData   `json:"link,omitempty"`
}

// NewContentAspect wraps a committed entry and its header.
func NewContentAspect(entry Entry, header ChainHeader) EntryAspect {
	return EntryAspect{Kind: AspectContent, Entry: &entry, Header: header}
}

// NewHeaderAspect wraps a bare header.
func NewHeaderAspect(header ChainHeader) EntryAspect {
	return EntryAspect{Kind: AspectHeader, Header: header}
}

// NewLinkAddAspect wraps a %link_add commit. The link data rides along so
// holders can index the link without a second fetch.
func NewLinkAddAspect(link LinkData, header ChainHeader) EntryAspect {
	return EntryAspect{Kind: AspectLinkAdd, Link: &link, Header: header}
}

// NewLinkRemoveAspect wraps a %link_remove commit.
func NewLinkRemoveAspect(entry Entry, link LinkData, header ChainHeader) EntryAspect {
	return EntryAspect{Kind: AspectLinkRemove, Entry: &entry, Link: &link, Header: header}
}

// NewUpdateAspect wraps an update commit: the replacement entry plus a
// header whose Replaces field names the superseded entry.
func NewUpdateAspect(newEntry Entry, header ChainHeader) EntryAspect {
	return EntryAspect{Kind: AspectUpdate, Entry: &newEntry, Header: header}
}

// NewDeletionAspect wraps a %deletion commit.
func NewDeletionAspect(entry Entry, header ChainHeader) EntryAspect {
	return EntryAspect{Kind: AspectDeletion, Entry: &entry, Header: header}
}

// Address returns the content address of the aspect itself, used for
// gossip-level deduplication.
func (a EntryAspect) Address() common.Address {
	addr, err := AddressOfContent(a)
	if err != nil {
		panic("types: aspect address: " + err.Error())
	}
	return addr
}

// Basis returns the entry address this aspect concerns, i.e. the DHT
// location where holders file it.
func (a EntryAspect) Basis() (common.Address, error) {
	switch a.Kind {
	case AspectContent, AspectHeader:
		return a.Header.EntryAddress, nil
	case AspectLinkAdd, AspectLinkRemove:
		if a.Link == nil {
			return common.NullAddress, fmt.Errorf("%w: link aspect without link data", ErrSerialization)
		}
		return a.Link.Base, nil
	case AspectUpdate:
		if a.Header.Replaces.IsNull() {
			return common.NullAddress, fmt.Errorf("%w: update aspect without replaces", ErrSerialization)
		}
		return a.Header.Replaces, nil
	case AspectDeletion:
		if a.Entry == nil {
			return common.NullAddress, fmt.Errorf("%w: deletion aspect without entry", ErrSerialization)
		}
		del, err := a.Entry.DeletionData()
		if err != nil {
			return common.NullAddress, err
		}
		return del.DeletedEntryAddress, nil
	default:
		return common.NullAddress, fmt.Errorf("%w: unknown aspect kind %q", ErrSerialization, a.Kind)
	}
}

// CheckIntegrity verifies that the header commits to the carried entry and
// that at least one provenance signature holds. This is the structural gate
// every incoming aspect passes before application-level validation runs.
func (a EntryAspect) CheckIntegrity() error {
	if a.Entry != nil && a.Header.EntryAddress != a.Entry.Address() {
		return ValidationFailed("header does not commit to entry address")
	}
	if a.Kind == AspectLinkAdd && a.Entry == nil && a.Link != nil {
		// Link aspects may travel without the full entry; the header must
		// then commit to the reconstructed %link_add entry.
		if a.Header.EntryAddress != NewLinkAddEntry(*a.Link).Address() {
			return ValidationFailed("header does not commit to link data")
		}
	}
	if !a.Header.VerifyProvenances() {
		return ValidationFailed("no provenance signature verifies")
	}
	return nil
}

// PendingEntry reconstructs the (entry, header) pair to validate for this
// aspect.
func (a EntryAspect) PendingEntry() (Entry, error) {
	if a.Entry != nil {
		return *a.Entry, nil
	}
	if a.Kind == AspectLinkAdd && a.Link != nil {
		return NewLinkAddEntry(*a.Link), nil
	}
	return Entry{}, fmt.Errorf("%w: aspect %q carries no entry", ErrSerialization, a.Kind)
}
