package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hc-network/gcond/common"
)

// Sentinel errors for the conductor error taxonomy. Callers classify
// failures with errors.Is against these and never by string matching.
var (
	// ErrValidationFailed marks an entry rejected by application logic.
	// Terminal for the triggering call, never retried.
	ErrValidationFailed = errors.New("types: validation failed")

	// ErrValidationPending marks validation that cannot complete until
	// its dependencies are held locally. Internal only.
	ErrValidationPending = errors.New("types: validation pending on dependencies")

	// ErrNotImplemented marks a callback the guest does not export.
	ErrNotImplemented = errors.New("types: not implemented")

	// ErrSerialization marks an argument or result that failed canonical
	// encoding.
	ErrSerialization = errors.New("types: serialization error")

	// ErrStorage marks a backend failure. State prior to the failing
	// operation is retained.
	ErrStorage = errors.New("types: storage error")

	// ErrTimeout marks a network-backed operation that expired.
	ErrTimeout = errors.New("types: request timed out")

	// ErrCapabilityCheckFailed marks a caller without permission.
	ErrCapabilityCheckFailed = errors.New("types: capability check failed")

	// ErrRibosomeFailed marks a guest module that trapped, exhausted its
	// memory or returned an encoded failure.
	ErrRibosomeFailed = errors.New("types: ribosome failed")

	// ErrInitializationFailed is fatal at instance level; no zome calls
	// are accepted afterwards.
	ErrInitializationFailed = errors.New("types: initialization failed")
)

// ValidationFailed wraps ErrValidationFailed with an application reason.
func ValidationFailed(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, reason)
}

// DependenciesError carries the addresses a pending validation waits on.
type DependenciesError struct {
	Dependencies []common.Address
}

func (e *DependenciesError) Error() string {
	strs := make([]string, len(e.Dependencies))
	for i, d := range e.Dependencies {
		strs[i] = d.String()
	}
	return "types: validation pending on dependencies: " + strings.Join(strs, ", ")
}

// Is makes errors.Is(err, ErrValidationPending) hold for dependency errors.
func (e *DependenciesError) Is(target error) bool { return target == ErrValidationPending }

// PendingDependencies builds a DependenciesError over deps.
func PendingDependencies(deps ...common.Address) error {
	return &DependenciesError{Dependencies: deps}
}
