package ribosome

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/types"
)

// stubRunner returns canned callback results keyed by export name.
type stubRunner struct {
	results map[string]json.RawMessage
	errs    map[string]error
}

func (s *stubRunner) RunZomeFunction(dna *types.Dna, zome, fn string, args json.RawMessage, env HostEnv) (json.RawMessage, error) {
	return s.results[fn], s.errs[fn]
}

func (s *stubRunner) RunCallback(dna *types.Dna, zome, callback string, arg interface{}, env HostEnv) (json.RawMessage, error) {
	if err, ok := s.errs[callback]; ok {
		return nil, err
	}
	res, ok := s.results[callback]
	if !ok {
		return nil, fmt.Errorf("%w: export %q", types.ErrNotImplemented, callback)
	}
	return res, nil
}

func testDna() *types.Dna {
	return &types.Dna{
		Name: "t",
		Zomes: map[string]types.Zome{
			"main": {EntryTypes: map[string]types.EntryTypeDef{
				"note":   {Sharing: types.SharingPublic},
				"packed": {Sharing: types.SharingPublic, ValidationPackage: types.PackageChainFull},
			}},
		},
	}
}

func TestParseVerdict(t *testing.T) {
	if err := parseVerdict(json.RawMessage(`{"ok":true}`), nil); err != nil {
		t.Fatalf("ok verdict rejected: %v", err)
	}
	if err := parseVerdict(nil, nil); err != nil {
		t.Fatalf("bare success rejected: %v", err)
	}

	err := parseVerdict(json.RawMessage(`{"fail":"too long"}`), nil)
	if !errors.Is(err, types.ErrValidationFailed) {
		t.Fatalf("fail verdict: %v", err)
	}

	err = parseVerdict(json.RawMessage(`{"unresolved_dependencies":["a","b"]}`), nil)
	if !errors.Is(err, types.ErrValidationPending) {
		t.Fatalf("pending verdict: %v", err)
	}
	var deps *types.DependenciesError
	if !errors.As(err, &deps) || len(deps.Dependencies) != 2 {
		t.Fatalf("dependencies lost: %v", err)
	}

	if err := parseVerdict(json.RawMessage(`{}`), nil); !errors.Is(err, types.ErrValidationFailed) {
		t.Fatalf("empty verdict accepted: %v", err)
	}
}

func TestValidateEntryViaRunner(t *testing.T) {
	r := &stubRunner{results: map[string]json.RawMessage{
		CallbackValidateEntry: json.RawMessage(`{"fail":"nope"}`),
	}}
	data := types.EntryValidationData{Lifecycle: types.LifecycleDht}
	if err := ValidateEntry(r, testDna(), "main", data, nil); !errors.Is(err, types.ErrValidationFailed) {
		t.Fatalf("want validation failure, got %v", err)
	}
}

func TestValidationPackageFallbacks(t *testing.T) {
	// Guest implements the callback.
	r := &stubRunner{results: map[string]json.RawMessage{
		CallbackValidationPackage: json.RawMessage(`{"kind":"ChainHeaders"}`),
	}}
	kind, _, err := ValidationPackageFor(r, testDna(), "main", "note", nil)
	if err != nil || kind != types.PackageChainHeaders {
		t.Fatalf("guest package: %v, %v", kind, err)
	}

	// Guest missing: manifest declaration wins.
	r = &stubRunner{}
	kind, _, err = ValidationPackageFor(r, testDna(), "main", "packed", nil)
	if err != nil || kind != types.PackageChainFull {
		t.Fatalf("manifest package: %v, %v", kind, err)
	}

	// Guest missing and no declaration: header+entry default.
	kind, _, err = ValidationPackageFor(r, testDna(), "main", "note", nil)
	if err != nil || kind != types.PackageEntry {
		t.Fatalf("default package: %v, %v", kind, err)
	}
}

func TestUnresolvedDependenciesAddresses(t *testing.T) {
	a := common.AddressOf([]byte("dep"))
	raw, _ := json.Marshal(validationVerdict{UnresolvedDependencies: []common.Address{a}})
	err := parseVerdict(raw, nil)
	var deps *types.DependenciesError
	if !errors.As(err, &deps) || deps.Dependencies[0] != a {
		t.Fatalf("dependency address mangled: %v", err)
	}
}
