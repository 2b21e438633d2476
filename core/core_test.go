package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hc-network/gcond/cas"
	"github.com/hc-network/gcond/chain"
	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/dht"
	"github.com/hc-network/gcond/eav"
	"github.com/hc-network/gcond/keystore"
	"github.com/hc-network/gcond/net/memnet"
	"github.com/hc-network/gcond/params"
	"github.com/hc-network/gcond/ribosome"
	"github.com/hc-network/gcond/types"
)

// stubRunner stands in for the wasm engine: zome functions and validation
// rules are plain Go functions exercising the same HostEnv surface guest
// code would.
type stubRunner struct {
	zomeFns      map[string]func(args json.RawMessage, env ribosome.HostEnv) (json.RawMessage, error)
	validateNote func(data types.EntryValidationData) error
	receive      func(arg interface{}) (json.RawMessage, error)
}

func (s *stubRunner) RunZomeFunction(dna *types.Dna, zome, fn string, args json.RawMessage, env ribosome.HostEnv) (json.RawMessage, error) {
	f, ok := s.zomeFns[fn]
	if !ok {
		return nil, fmt.Errorf("%w: fn %q", types.ErrRibosomeFailed, fn)
	}
	return f(args, env)
}

func (s *stubRunner) RunCallback(dna *types.Dna, zome, callback string, arg interface{}, env ribosome.HostEnv) (json.RawMessage, error) {
	switch callback {
	case ribosome.CallbackValidateEntry:
		if s.validateNote == nil {
			return json.RawMessage(`{"ok":true}`), nil
		}
		data := arg.(types.EntryValidationData)
		if err := s.validateNote(data); err != nil {
			return json.RawMessage(`{"fail":"` + unwrapReason(err) + `"}`), nil
		}
		return json.RawMessage(`{"ok":true}`), nil
	case ribosome.CallbackValidateLink:
		return json.RawMessage(`{"ok":true}`), nil
	case ribosome.CallbackReceive:
		if s.receive == nil {
			return nil, fmt.Errorf("%w: export %q", types.ErrNotImplemented, callback)
		}
		return s.receive(arg)
	default:
		return nil, fmt.Errorf("%w: export %q", types.ErrNotImplemented, callback)
	}
}

func unwrapReason(err error) string { return err.Error() }

func testCoreDna() *types.Dna {
	return &types.Dna{
		Name: "notes-app",
		UUID: "5f0a3a2e-0000-4000-8000-000000000001",
		Properties: map[string]string{
			"language": "en",
		},
		Zomes: map[string]types.Zome{
			"main": {
				Code: []byte{0x00},
				EntryTypes: map[string]types.EntryTypeDef{
					"note":   {Sharing: types.SharingPublic},
					"secret": {Sharing: types.SharingPrivate},
				},
				Functions: []types.FnDeclaration{
					{Name: "f"},
					{Name: "g"},
					{Name: "read", Public: true},
				},
			},
		},
	}
}

type testNode struct {
	inst   *Instance
	runner *stubRunner
	signer *keystore.KeySigner
}

// newTestNode builds a fully wired instance; hub may be nil for an
// offline node.
func newTestNode(t *testing.T, dna *types.Dna, hub *memnet.Hub) *testNode {
	t.Helper()
	ks := keystore.NewMemKeystore()
	if err := ks.AddRandomSeed("root", 32); err != nil {
		t.Fatalf("seed keystore: %v", err)
	}
	if _, err := ks.AddKeyFromSeed("root", "agent", params.SigningContext, 0); err != nil {
		t.Fatalf("derive agent key: %v", err)
	}
	signer, err := keystore.NewKeySigner(ks, "agent")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	chainStore := cas.NewMemStore()
	c, err := chain.Open(chainStore, chain.NewMemTop(), signer)
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}
	shard := dht.NewShard(cas.NewMemStore(), eav.NewMemIndex(), signer.Address())

	runner := &stubRunner{zomeFns: map[string]func(json.RawMessage, ribosome.HostEnv) (json.RawMessage, error){}}
	cfg := InstanceConfig{
		Dna:      dna,
		Chain:    c,
		Shard:    shard,
		Runner:   runner,
		Keystore: ks,
		KeyID:    "agent",
		Signer:   signer,
		Nick:     "tester",
	}
	if hub != nil {
		cfg.Network = hub.NewNode(signer)
	}
	inst := NewInstance(cfg)
	if err := inst.Start(context.Background()); err != nil {
		t.Fatalf("start instance: %v", err)
	}
	t.Cleanup(inst.Stop)
	return &testNode{inst: inst, runner: runner, signer: signer}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func noteEntry(body string) types.Entry {
	b, _ := json.Marshal(body)
	return types.NewAppEntry("note", b)
}

// Scenario 1: commit and read back.
func TestCommitAndReadBack(t *testing.T) {
	n := newTestNode(t, testCoreDna(), nil)
	lengthBefore := n.inst.Chain().Len()
	topBefore := n.inst.Chain().Top()

	addr, err := n.inst.CommitEntry(noteEntry("hello"))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	res, err := n.inst.GetEntry(addr, types.GetEntryOptions{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !res.Found() || string(res.Entry.Value) != `"hello"` {
		t.Fatalf("read back mismatch: %+v", res)
	}
	if n.inst.Chain().Len() != lengthBefore+1 {
		t.Fatalf("chain length %d, want %d", n.inst.Chain().Len(), lengthBefore+1)
	}
	headers, err := n.inst.Chain().Headers()
	if err != nil {
		t.Fatalf("headers: %v", err)
	}
	if headers[0].PreviousHeader != topBefore {
		t.Fatalf("new top does not reference prior top")
	}
}

// Scenario 2: validation rejection leaves the chain untouched.
func TestValidationRejection(t *testing.T) {
	hub := memnet.NewHub()
	n1 := newTestNode(t, testCoreDna(), hub)
	n2 := newTestNode(t, testCoreDna(), hub)
	n1.runner.validateNote = func(data types.EntryValidationData) error {
		var body string
		if err := json.Unmarshal(data.Entry.Value, &body); err != nil {
			return errors.New("undecodable note")
		}
		if len(body) > 280 {
			return errors.New("too long")
		}
		return nil
	}

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	lengthBefore := n1.inst.Chain().Len()
	entry := noteEntry(string(long))
	_, err := n1.inst.CommitEntry(entry)
	if !errors.Is(err, types.ErrValidationFailed) {
		t.Fatalf("want validation failure, got %v", err)
	}
	if n1.inst.Chain().Len() != lengthBefore {
		t.Fatalf("rejected commit changed chain length")
	}

	// No aspect published: the peer never sees the entry.
	time.Sleep(100 * time.Millisecond)
	if held, _ := n2.inst.Shard().Holds(entry.Address()); held {
		t.Fatalf("rejected entry replicated to peer")
	}
}

// Scenario 3: link create, query, remove.
func TestLinkCreateQueryRemove(t *testing.T) {
	n := newTestNode(t, testCoreDna(), nil)
	a, err := n.inst.CommitEntry(noteEntry("a"))
	if err != nil {
		t.Fatalf("commit a: %v", err)
	}
	b, err := n.inst.CommitEntry(noteEntry("b"))
	if err != nil {
		t.Fatalf("commit b: %v", err)
	}

	link := types.LinkData{Base: a, Target: b, LinkType: "friend", Tag: "tag1"}
	if _, err := n.inst.LinkEntries(link); err != nil {
		t.Fatalf("link: %v", err)
	}
	links, err := n.inst.GetLinks(a, "friend", "tag1", types.GetLinksOptions{})
	if err != nil || len(links) != 1 || links[0].Target != b {
		t.Fatalf("links after create: %+v, %v", links, err)
	}

	if _, err := n.inst.RemoveLink(link); err != nil {
		t.Fatalf("remove link: %v", err)
	}
	live, err := n.inst.GetLinks(a, "friend", "tag1", types.GetLinksOptions{StatusFilter: types.StatusLive})
	if err != nil || len(live) != 0 {
		t.Fatalf("live links after remove: %+v, %v", live, err)
	}
	deleted, err := n.inst.GetLinks(a, "friend", "tag1", types.GetLinksOptions{StatusFilter: types.StatusDeleted})
	if err != nil || len(deleted) != 1 || deleted[0].Target != b {
		t.Fatalf("deleted links after remove: %+v, %v", deleted, err)
	}
}

// Scenario 4: two-node replication with verifiable provenance.
func TestTwoNodeReplication(t *testing.T) {
	hub := memnet.NewHub()
	n1 := newTestNode(t, testCoreDna(), hub)
	n2 := newTestNode(t, testCoreDna(), hub)

	entry := noteEntry("replicated")
	addr, err := n1.inst.CommitEntry(entry)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	waitUntil(t, "replication to n2", func() bool {
		res, err := n2.inst.Shard().GetEntry(addr, types.GetEntryOptions{})
		return err == nil && res.Found()
	})

	res, err := n2.inst.Shard().GetEntry(addr, types.GetEntryOptions{})
	if err != nil {
		t.Fatalf("get on n2: %v", err)
	}
	if string(res.Entry.Value) != `"replicated"` {
		t.Fatalf("replicated entry mangled: %s", res.Entry.Value)
	}
	if len(res.Headers) == 0 {
		t.Fatalf("replicated without header")
	}
	h := res.Headers[0]
	if h.Source() != n1.inst.Agent() {
		t.Fatalf("header source = %s, want %s", h.Source(), n1.inst.Agent())
	}
	if !h.VerifyProvenances() {
		t.Fatalf("replicated provenance does not verify on n2")
	}
}

// Scenario 5: link aspect arriving before its base and target is parked
// as pending and resolves once the dependencies are held.
func TestPendingDependencyResolution(t *testing.T) {
	author := newTestNode(t, testCoreDna(), nil)
	holder := newTestNode(t, testCoreDna(), nil)

	a, err := author.inst.CommitEntry(noteEntry("a"))
	if err != nil {
		t.Fatalf("commit a: %v", err)
	}
	b, err := author.inst.CommitEntry(noteEntry("b"))
	if err != nil {
		t.Fatalf("commit b: %v", err)
	}
	link := types.LinkData{Base: a, Target: b, LinkType: "friend", Tag: "t"}
	if _, err := author.inst.LinkEntries(link); err != nil {
		t.Fatalf("link: %v", err)
	}

	aspects := authoredAspects(t, author.inst)
	var linkAspect, aContent, bContent *types.EntryAspect
	for i := range aspects {
		asp := &aspects[i]
		switch {
		case asp.Kind == types.AspectLinkAdd:
			linkAspect = asp
		case asp.Kind == types.AspectContent && asp.Header.EntryAddress == a:
			aContent = asp
		case asp.Kind == types.AspectContent && asp.Header.EntryAddress == b:
			bContent = asp
		}
	}
	if linkAspect == nil || aContent == nil || bContent == nil {
		t.Fatalf("authored aspects incomplete: %+v", aspects)
	}

	ctx := context.Background()

	// Link first: parked as pending, shard stays empty.
	holder.inst.holdAspect(ctx, *linkAspect)
	waitUntil(t, "pending insertion", func() bool {
		var n int
		holder.inst.store.View(func(st *State) { n = len(st.Dht.Pending) })
		return n == 1
	})
	links, err := holder.inst.GetLinks(a, "friend", "t", types.GetLinksOptions{})
	if err != nil || len(links) != 0 {
		t.Fatalf("links visible before dependencies: %+v, %v", links, err)
	}

	// Dependencies arrive; the pending link validates within one pass.
	holder.inst.holdAspect(ctx, *aContent)
	holder.inst.holdAspect(ctx, *bContent)

	waitUntil(t, "pending link resolution", func() bool {
		links, err := holder.inst.GetLinks(a, "friend", "t", types.GetLinksOptions{})
		return err == nil && len(links) == 1 && links[0].Target == b
	})
	waitUntil(t, "pending item destruction", func() bool {
		var n int
		holder.inst.store.View(func(st *State) { n = len(st.Dht.Pending) })
		return n == 0
	})
}

// authoredAspects snapshots the authored aspect set of an instance.
func authoredAspects(t *testing.T, inst *Instance) []types.EntryAspect {
	t.Helper()
	var out []types.EntryAspect
	inst.store.View(func(st *State) {
		for _, a := range st.Network.Authored {
			out = append(out, a)
		}
	})
	return out
}

// Scenario 6: capability enforcement.
func TestCapabilityEnforcement(t *testing.T) {
	hub := memnet.NewHub()
	n1 := newTestNode(t, testCoreDna(), hub)
	n2 := newTestNode(t, testCoreDna(), hub)
	n3 := newTestNode(t, testCoreDna(), hub)

	n1.runner.zomeFns["f"] = func(args json.RawMessage, env ribosome.HostEnv) (json.RawMessage, error) {
		return json.RawMessage(`"f ran"`), nil
	}
	n1.runner.zomeFns["g"] = func(args json.RawMessage, env ribosome.HostEnv) (json.RawMessage, error) {
		return json.RawMessage(`"g ran"`), nil
	}

	token, err := n1.inst.CommitCapabilityGrant(types.CapabilityGrant{
		ID:        "n2-f",
		Assignees: []common.Address{n2.inst.Agent()},
		Functions: []types.ZomeFn{{Zome: "main", Fn: "f"}},
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	args := []byte(`{}`)
	capReq, err := n2.inst.MakeCapRequest(token, args)
	if err != nil {
		t.Fatalf("cap request: %v", err)
	}
	out, err := n1.inst.CallZomeFunction(context.Background(), &ZomeFnCall{
		Zome: "main", Fn: "f", Args: args, CapRequest: capReq,
	})
	if err != nil {
		t.Fatalf("granted call failed: %v", err)
	}
	if string(out) != `"f ran"` {
		t.Fatalf("granted call result: %s", out)
	}

	// No token at all.
	n3Req, err := n3.inst.MakeCapRequest("", args)
	if err != nil {
		t.Fatalf("n3 request: %v", err)
	}
	_, err = n1.inst.CallZomeFunction(context.Background(), &ZomeFnCall{
		Zome: "main", Fn: "f", Args: args, CapRequest: n3Req,
	})
	if !errors.Is(err, types.ErrCapabilityCheckFailed) {
		t.Fatalf("tokenless call: %v", err)
	}

	// Function outside the grant.
	gReq, err := n2.inst.MakeCapRequest(token, args)
	if err != nil {
		t.Fatalf("g request: %v", err)
	}
	_, err = n1.inst.CallZomeFunction(context.Background(), &ZomeFnCall{
		Zome: "main", Fn: "g", Args: args, CapRequest: gReq,
	})
	if !errors.Is(err, types.ErrCapabilityCheckFailed) {
		t.Fatalf("out-of-grant call: %v", err)
	}

	// Public trait bypasses the check.
	n1.runner.zomeFns["read"] = func(args json.RawMessage, env ribosome.HostEnv) (json.RawMessage, error) {
		return json.RawMessage(`"public"`), nil
	}
	out, err = n1.inst.CallZomeFunction(context.Background(), &ZomeFnCall{
		Zome: "main", Fn: "read", Args: args, CapRequest: n3Req,
	})
	if err != nil || string(out) != `"public"` {
		t.Fatalf("public call: %s, %v", out, err)
	}
}

// Self-calls are always allowed with the agent-address token.
func TestSelfCapRequest(t *testing.T) {
	n := newTestNode(t, testCoreDna(), nil)
	n.runner.zomeFns["f"] = func(args json.RawMessage, env ribosome.HostEnv) (json.RawMessage, error) {
		return json.RawMessage(`"self"`), nil
	}
	req, err := n.inst.SelfCapRequest(nil)
	if err != nil {
		t.Fatalf("self request: %v", err)
	}
	out, err := n.inst.CallZomeFunction(context.Background(), &ZomeFnCall{
		Zome: "main", Fn: "f", CapRequest: req,
	})
	if err != nil || string(out) != `"self"` {
		t.Fatalf("self call: %s, %v", out, err)
	}
}

// Direct messages reach the receive callback and malformed payloads are
// rejected before it runs.
func TestDirectMessageRoundTrip(t *testing.T) {
	hub := memnet.NewHub()
	n1 := newTestNode(t, testCoreDna(), hub)
	n2 := newTestNode(t, testCoreDna(), hub)

	// n2 answers pings through the receive callback.
	received := make(chan json.RawMessage, 1)
	n2.runner.receive = func(arg interface{}) (json.RawMessage, error) {
		data, _ := json.Marshal(arg)
		received <- data
		return json.RawMessage(`{"pong":true}`), nil
	}

	resp, err := n1.inst.Send(n2.inst.Agent(), json.RawMessage(`{"ping":true}`), time.Second)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if string(resp) != `{"pong":true}` {
		t.Fatalf("send response: %s", resp)
	}
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatalf("receive callback never ran")
	}

	// Malformed payload is rejected with a serialization error.
	if _, err := n1.inst.Send(n2.inst.Agent(), json.RawMessage(`{not json`), time.Second); err == nil {
		t.Fatalf("malformed payload accepted")
	}
}

// The nucleus gate rejects calls after a failed initialization.
func TestZomeCallRejectedAfterInitFailure(t *testing.T) {
	n := newTestNode(t, testCoreDna(), nil)
	n.inst.store.Dispatch(Action{Kind: ActionInitializationFailed, Payload: initFailedPayload{Reason: "boom"}})
	req, _ := n.inst.SelfCapRequest(nil)
	_, err := n.inst.CallZomeFunction(context.Background(), &ZomeFnCall{Zome: "main", Fn: "f", CapRequest: req})
	if !errors.Is(err, types.ErrInitializationFailed) {
		t.Fatalf("call after init failure: %v", err)
	}
}

// Private entry types are committed but never published.
func TestPrivateEntryNotPublished(t *testing.T) {
	hub := memnet.NewHub()
	n1 := newTestNode(t, testCoreDna(), hub)
	n2 := newTestNode(t, testCoreDna(), hub)

	b, _ := json.Marshal("shh")
	secret := types.NewAppEntry("secret", b)
	addr, err := n1.inst.CommitEntry(secret)
	if err != nil {
		t.Fatalf("commit private: %v", err)
	}

	// The author can read it back from the chain store.
	res, err := n1.inst.GetEntry(addr, types.GetEntryOptions{})
	if err != nil || !res.Found() {
		t.Fatalf("author cannot read private entry: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if held, _ := n2.inst.Shard().Holds(addr); held {
		t.Fatalf("private entry replicated")
	}
}
