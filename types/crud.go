package types

import "fmt"

// EAV attribute names for CRUD metadata. Statuses are stored as decimal
// flag strings so they survive any index backend unchanged.
const (
	StatusAttribute = "crud-status"
	LinkAttribute   = "crud-link"
)

// CrudStatus is a bitmask over the lifecycle states of a DHT entry.
// Statuses combine: a modified entry that was later deleted carries both
// flags in the mask used for filtered lookups.
type CrudStatus uint8

const (
	StatusLive     CrudStatus = 0x01
	StatusRejected CrudStatus = 0x02
	StatusDeleted  CrudStatus = 0x04
	StatusModified CrudStatus = 0x08
	// StatusLocked marks conflict resolution in progress.
	StatusLocked CrudStatus = 0x10

	// StatusAny matches every status in filtered lookups.
	StatusAny CrudStatus = 0xff
)

// Has reports whether s contains flag.
func (s CrudStatus) Has(flag CrudStatus) bool { return s&flag != 0 }

// String renders a single status flag as its stable decimal form.
func (s CrudStatus) String() string {
	switch s {
	case StatusLive:
		return "1"
	case StatusRejected:
		return "2"
	case StatusDeleted:
		return "4"
	case StatusModified:
		return "8"
	case StatusLocked:
		return "16"
	default:
		return fmt.Sprintf("crud(%#x)", uint8(s))
	}
}

// ParseCrudStatus inverts String for the five single-flag forms.
func ParseCrudStatus(s string) (CrudStatus, error) {
	switch s {
	case "1":
		return StatusLive, nil
	case "2":
		return StatusRejected, nil
	case "4":
		return StatusDeleted, nil
	case "8":
		return StatusModified, nil
	case "16":
		return StatusLocked, nil
	default:
		return 0, fmt.Errorf("%w: unknown crud status %q", ErrSerialization, s)
	}
}

// LinkTagAttribute builds the EAV attribute name for link membership of
// (type, tag) on a base entry.
func LinkTagAttribute(linkType, tag string) string {
	return "link__" + linkType + "__" + tag
}

// RemovedLinkAttribute builds the EAV attribute name recording a retired
// link of (type, tag).
func RemovedLinkAttribute(linkType, tag string) string {
	return "removed_link__" + linkType + "__" + tag
}
