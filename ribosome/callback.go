package ribosome

import (
	"encoding/json"
	"errors"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/types"
)

// validationVerdict is the JSON a validation callback returns: exactly one
// field set.
type validationVerdict struct {
	OK                     bool             `json:"ok,omitempty"`
	Fail                   string           `json:"fail,omitempty"`
	UnresolvedDependencies []common.Address `json:"unresolved_dependencies,omitempty"`
}

// parseVerdict maps a callback invocation onto the validation error
// taxonomy: nil for accept, ErrValidationFailed, ErrValidationPending
// (with dependencies) or ErrNotImplemented passed through for the caller
// to judge.
func parseVerdict(raw json.RawMessage, err error) error {
	if err != nil {
		return err
	}
	if raw == nil {
		// Bare success status code: accept.
		return nil
	}
	var v validationVerdict
	if uerr := json.Unmarshal(raw, &v); uerr != nil {
		return types.ValidationFailed("callback returned undecodable verdict")
	}
	switch {
	case len(v.UnresolvedDependencies) > 0:
		return types.PendingDependencies(v.UnresolvedDependencies...)
	case v.Fail != "":
		return types.ValidationFailed(v.Fail)
	case v.OK:
		return nil
	default:
		return types.ValidationFailed("callback returned empty verdict")
	}
}

// ValidateEntry runs the app entry validation callback of the declaring
// zome.
func ValidateEntry(r Runner, dna *types.Dna, zome string, data types.EntryValidationData, env HostEnv) error {
	return parseVerdict(r.RunCallback(dna, zome, CallbackValidateEntry, data, env))
}

// ValidateLink runs the link validation callback of the declaring zome.
func ValidateLink(r Runner, dna *types.Dna, zome string, data types.LinkValidationData, env HostEnv) error {
	return parseVerdict(r.RunCallback(dna, zome, CallbackValidateLink, data, env))
}

// packageRequest is the argument to the validation package callback.
type packageRequest struct {
	EntryType string `json:"entry_type"`
}

// packageResponse is its result.
type packageResponse struct {
	Kind   types.ValidationPackageKind `json:"kind"`
	Custom string                      `json:"custom,omitempty"`
}

// ValidationPackageFor asks the guest which validation package an entry
// type requires. Falls back to the manifest declaration, then to the
// header+entry package, when the guest does not implement the callback.
func ValidationPackageFor(r Runner, dna *types.Dna, zome, entryType string, env HostEnv) (types.ValidationPackageKind, string, error) {
	raw, err := r.RunCallback(dna, zome, CallbackValidationPackage, packageRequest{EntryType: entryType}, env)
	if errors.Is(err, types.ErrNotImplemented) {
		if def, ok := dna.EntryTypeDef(entryType); ok && def.ValidationPackage != "" {
			return def.ValidationPackage, "", nil
		}
		return types.PackageEntry, "", nil
	}
	if err != nil {
		return "", "", err
	}
	var resp packageResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", "", types.ValidationFailed("package callback returned undecodable result")
	}
	if resp.Kind == "" {
		resp.Kind = types.PackageEntry
	}
	return resp.Kind, resp.Custom, nil
}
