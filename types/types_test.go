package types

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hc-network/gcond/common"
)

func testAgent(t *testing.T) (common.Address, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return AgentAddress(pub), priv
}

func signedHeader(t *testing.T, entry Entry, prev common.Address) ChainHeader {
	t.Helper()
	agent, priv := testAgent(t)
	sig := ed25519.Sign(priv, []byte(entry.Address()))
	return ChainHeader{
		Type:           entry.Type,
		EntryAddress:   entry.Address(),
		PreviousHeader: prev,
		Timestamp:      time.Unix(1500000000, 0).UTC(),
		Provenances:    []Provenance{NewProvenance(agent, sig)},
	}
}

func TestEntryAddressStableAcrossRoundTrip(t *testing.T) {
	e := NewAppEntry("note", json.RawMessage(`"hello"`))
	b, err := CanonicalJSON(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Entry
	if err := FromCanonicalJSON(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Address() != e.Address() {
		t.Fatalf("address changed across serialize/deserialize: %s vs %s", back.Address(), e.Address())
	}
}

func TestHeaderCommitsToEntry(t *testing.T) {
	e := NewAppEntry("note", json.RawMessage(`"hello"`))
	h := signedHeader(t, e, common.NullAddress)
	if !h.VerifyProvenances() {
		t.Fatalf("valid provenance did not verify")
	}
	h.EntryAddress = AddressOfContentMust(t, "something else")
	if h.VerifyProvenances() {
		t.Fatalf("provenance verified against wrong entry address")
	}
}

func AddressOfContentMust(t *testing.T, v interface{}) common.Address {
	t.Helper()
	addr, err := AddressOfContent(v)
	if err != nil {
		t.Fatalf("address of content: %v", err)
	}
	return addr
}

func TestAspectIntegrity(t *testing.T) {
	e := NewAppEntry("note", json.RawMessage(`"hello"`))
	h := signedHeader(t, e, common.NullAddress)
	aspect := NewContentAspect(e, h)
	if err := aspect.CheckIntegrity(); err != nil {
		t.Fatalf("integrity check failed on valid aspect: %v", err)
	}
	basis, err := aspect.Basis()
	if err != nil || basis != e.Address() {
		t.Fatalf("content aspect basis = %s, want %s (err %v)", basis, e.Address(), err)
	}

	tampered := aspect
	other := NewAppEntry("note", json.RawMessage(`"tampered"`))
	tampered.Entry = &other
	if err := tampered.CheckIntegrity(); err == nil {
		t.Fatalf("integrity check passed on tampered aspect")
	}
}

func TestDeletionAspectBasis(t *testing.T) {
	target := NewAppEntry("note", json.RawMessage(`"doomed"`))
	del := NewDeletionEntry(DeletionData{DeletedEntryAddress: target.Address()})
	h := signedHeader(t, del, common.NullAddress)
	aspect := NewDeletionAspect(del, h)
	basis, err := aspect.Basis()
	if err != nil {
		t.Fatalf("basis: %v", err)
	}
	if basis != target.Address() {
		t.Fatalf("deletion aspect filed under %s, want deleted entry %s", basis, target.Address())
	}
}

func TestCrudStatusRoundTrip(t *testing.T) {
	for _, s := range []CrudStatus{StatusLive, StatusRejected, StatusDeleted, StatusModified, StatusLocked} {
		got, err := ParseCrudStatus(s.String())
		if err != nil {
			t.Fatalf("parse %q: %v", s.String(), err)
		}
		if got != s {
			t.Fatalf("round trip mismatch: %v -> %v", s, got)
		}
	}
	if _, err := ParseCrudStatus("3"); err == nil {
		t.Fatalf("composite status accepted as single flag")
	}
}

func TestGrantPermits(t *testing.T) {
	grantor := common.Address("grantor")
	alice := common.Address("alice")
	bob := common.Address("bob")
	g := CapabilityGrant{
		ID:        "api",
		Grantor:   grantor,
		Assignees: []common.Address{alice},
		Functions: []ZomeFn{{Zome: "blog", Fn: "create_post"}},
	}
	if !g.Permits(alice, "blog", "create_post") {
		t.Fatalf("assigned caller denied")
	}
	if g.Permits(bob, "blog", "create_post") {
		t.Fatalf("unassigned caller permitted")
	}
	if g.Permits(alice, "blog", "delete_post") {
		t.Fatalf("unlisted function permitted")
	}

	open := CapabilityGrant{Functions: []ZomeFn{{Zome: "blog", Fn: "read"}}}
	if !open.Permits(bob, "blog", "read") {
		t.Fatalf("unassigned grant should permit any caller")
	}
}

func TestPendingDependenciesError(t *testing.T) {
	err := PendingDependencies(common.Address("a"), common.Address("b"))
	var dep *DependenciesError
	if !errors.As(err, &dep) {
		t.Fatalf("not a DependenciesError")
	}
	if len(dep.Dependencies) != 2 {
		t.Fatalf("dependencies lost: %v", dep.Dependencies)
	}
	if !errors.Is(err, ErrValidationPending) {
		t.Fatalf("dependency error does not match ErrValidationPending")
	}
}
