package types

import "github.com/hc-network/gcond/common"

// ValidationPackageKind selects which subset of the source chain a
// validator needs to deterministically judge one entry.
type ValidationPackageKind string

const (
	// PackageEntry ships the header and entry only. The default.
	PackageEntry ValidationPackageKind = "Entry"
	// PackageChainEntries ships all public entries of the source chain.
	PackageChainEntries ValidationPackageKind = "ChainEntries"
	// PackageChainHeaders ships all headers of the source chain.
	PackageChainHeaders ValidationPackageKind = "ChainHeaders"
	// PackageChainFull ships both.
	PackageChainFull ValidationPackageKind = "ChainFull"
	// PackageCustom ships an opaque application-defined payload.
	PackageCustom ValidationPackageKind = "Custom"
)

// ValidationPackage is the assembled evidence handed to a validation
// callback alongside the entry under judgment.
type ValidationPackage struct {
	Kind    ValidationPackageKind `json:"kind"`
	Entries []Entry               `json:"entries,omitempty"`
	Headers []ChainHeader         `json:"headers,omitempty"`
	Custom  string                `json:"custom,omitempty"`
}

// EntryLifecycle tells the callback from which vantage point validation
// runs: on the author's chain before commit, or on a holder after gossip.
type EntryLifecycle string

const (
	LifecycleChain EntryLifecycle = "chain"
	LifecycleDht   EntryLifecycle = "dht"
)

// EntryValidationData is the argument to the app entry validation callback.
type EntryValidationData struct {
	Entry     Entry              `json:"entry"`
	Header    ChainHeader        `json:"header"`
	Package   *ValidationPackage `json:"package,omitempty"`
	Lifecycle EntryLifecycle     `json:"lifecycle"`
}

// LinkValidationData is the argument to the link validation callback. Base
// and target ride along when held locally; when either is absent the
// pipeline reports them as unresolved dependencies instead of calling back.
type LinkValidationData struct {
	Link      LinkData           `json:"link"`
	Header    ChainHeader        `json:"header"`
	Base      *Entry             `json:"base,omitempty"`
	Target    *Entry             `json:"target,omitempty"`
	Package   *ValidationPackage `json:"package,omitempty"`
	Lifecycle EntryLifecycle     `json:"lifecycle"`
}

// ValidatingWorkflow names the pipeline an aspect runs through. It is part
// of the pending-validation key: the same entry may be pending under two
// workflows at once (held as content, removed as a link).
type ValidatingWorkflow string

const (
	WorkflowHoldEntry   ValidatingWorkflow = "HoldEntry"
	WorkflowHoldLink    ValidatingWorkflow = "HoldLink"
	WorkflowRemoveLink  ValidatingWorkflow = "RemoveLink"
	WorkflowUpdateEntry ValidatingWorkflow = "UpdateEntry"
	WorkflowRemoveEntry ValidatingWorkflow = "RemoveEntry"
)

// WorkflowForAspect maps an aspect variant to its validation workflow.
func WorkflowForAspect(kind AspectKind) (ValidatingWorkflow, bool) {
	switch kind {
	case AspectContent, AspectHeader:
		return WorkflowHoldEntry, true
	case AspectLinkAdd:
		return WorkflowHoldLink, true
	case AspectLinkRemove:
		return WorkflowRemoveLink, true
	case AspectUpdate:
		return WorkflowUpdateEntry, true
	case AspectDeletion:
		return WorkflowRemoveEntry, true
	default:
		return "", false
	}
}

// PendingValidation is one aspect parked until its dependencies are held.
// Retried on every aspect arrival that intersects Dependencies; destroyed
// when validation completes either way.
type PendingValidation struct {
	Aspect       EntryAspect        `json:"aspect"`
	Dependencies []common.Address   `json:"dependencies"`
	Workflow     ValidatingWorkflow `json:"workflow"`
	UUID         string             `json:"uuid"`
}

// DependsOn reports whether addr unblocks this pending item.
func (p *PendingValidation) DependsOn(addr common.Address) bool {
	for _, d := range p.Dependencies {
		if d == addr {
			return true
		}
	}
	return false
}
