package chain

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hc-network/gcond/cas"
	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/types"
)

type testSigner struct {
	addr common.Address
	priv ed25519.PrivateKey
	fail bool
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &testSigner{addr: types.AgentAddress(pub), priv: priv}
}

func (s *testSigner) Address() common.Address { return s.addr }

func (s *testSigner) Sign(payload []byte) ([]byte, error) {
	if s.fail {
		return nil, errors.New("keystore unavailable")
	}
	return ed25519.Sign(s.priv, payload), nil
}

func testDna() *types.Dna {
	return &types.Dna{
		Name: "test-app",
		UUID: "00000000-0000-0000-0000-000000000000",
		Zomes: map[string]types.Zome{
			"main": {
				EntryTypes: map[string]types.EntryTypeDef{
					"note": {Sharing: types.SharingPublic},
				},
			},
		},
	}
}

func genesis(t *testing.T, c *SourceChain, signer *testSigner) {
	t.Helper()
	if _, err := c.Push(types.NewDnaEntry(testDna())); err != nil {
		t.Fatalf("push dna: %v", err)
	}
	agent := types.NewAgentIDEntry(types.AgentID{Nick: "tester", Address: signer.addr})
	if _, err := c.Push(agent); err != nil {
		t.Fatalf("push agent id: %v", err)
	}
}

func newTestChain(t *testing.T) (*SourceChain, *testSigner) {
	t.Helper()
	signer := newTestSigner(t)
	c, err := Open(cas.NewMemStore(), NewMemTop(), signer)
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}
	return c, signer
}

func TestGenesisOrderEnforced(t *testing.T) {
	c, signer := newTestChain(t)
	if _, err := c.Push(types.NewAppEntry("note", json.RawMessage(`"early"`))); !errors.Is(err, ErrInvalidGenesis) {
		t.Fatalf("app entry accepted before genesis: %v", err)
	}
	genesis(t, c, signer)
	if _, err := c.Push(types.NewAppEntry("note", json.RawMessage(`"ok"`))); err != nil {
		t.Fatalf("push after genesis: %v", err)
	}
}

func TestPushLinksHeaders(t *testing.T) {
	c, signer := newTestChain(t)
	genesis(t, c, signer)

	prevTop := c.Top()
	h, err := c.Push(types.NewAppEntry("note", json.RawMessage(`"hello"`)))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if h.PreviousHeader != prevTop {
		t.Fatalf("header previous = %s, want prior top %s", h.PreviousHeader, prevTop)
	}
	if c.Top() != h.Address() {
		t.Fatalf("top not moved to new header")
	}
	if !h.VerifyProvenances() {
		t.Fatalf("push produced unverifiable provenance")
	}
	if c.Len() != 3 {
		t.Fatalf("chain length = %d, want 3", c.Len())
	}
}

func TestHeadersNewestFirstAndLinked(t *testing.T) {
	c, signer := newTestChain(t)
	genesis(t, c, signer)
	for _, body := range []string{`"one"`, `"two"`, `"three"`} {
		if _, err := c.Push(types.NewAppEntry("note", json.RawMessage(body))); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	headers, err := c.Headers()
	if err != nil {
		t.Fatalf("headers: %v", err)
	}
	if len(headers) != 5 {
		t.Fatalf("got %d headers, want 5", len(headers))
	}
	for i := 0; i < len(headers)-1; i++ {
		if headers[i].PreviousHeader != headers[i+1].Address() {
			t.Fatalf("header %d does not link to header %d", i, i+1)
		}
	}
	if headers[len(headers)-1].Type != types.TypeDna {
		t.Fatalf("oldest header is %s, want %%dna", headers[len(headers)-1].Type)
	}
}

func TestTypeSubChain(t *testing.T) {
	c, signer := newTestChain(t)
	genesis(t, c, signer)
	c.Push(types.NewAppEntry("note", json.RawMessage(`"n1"`)))
	c.Push(types.NewAppEntry("task", json.RawMessage(`"t1"`)))
	c.Push(types.NewAppEntry("note", json.RawMessage(`"n2"`)))

	notes, err := c.HeadersOfType("note")
	if err != nil {
		t.Fatalf("headers of type: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("got %d note headers, want 2", len(notes))
	}
	if notes[0].TypePrevious != notes[1].Address() {
		t.Fatalf("type sub-chain not linked")
	}
}

func TestSignFailureLeavesChainUnchanged(t *testing.T) {
	c, signer := newTestChain(t)
	genesis(t, c, signer)
	top, length := c.Top(), c.Len()

	signer.fail = true
	if _, err := c.Push(types.NewAppEntry("note", json.RawMessage(`"doomed"`))); err == nil {
		t.Fatalf("push succeeded with failing signer")
	}
	if c.Top() != top || c.Len() != length {
		t.Fatalf("failed push mutated the chain")
	}
}

func TestReopenRebuildsState(t *testing.T) {
	signer := newTestSigner(t)
	store := cas.NewMemStore()
	tops := NewMemTop()
	c, err := Open(store, tops, signer)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	genesis(t, c, signer)
	c.Push(types.NewAppEntry("note", json.RawMessage(`"persisted"`)))

	re, err := Open(store, tops, signer)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if re.Len() != c.Len() || re.Top() != c.Top() {
		t.Fatalf("reopened chain lost state: len %d top %s", re.Len(), re.Top())
	}
	if re.TypeTop("note") != c.TypeTop("note") {
		t.Fatalf("reopened chain lost type tops")
	}
}

func TestQueryGlob(t *testing.T) {
	c, signer := newTestChain(t)
	genesis(t, c, signer)
	c.Push(types.NewAppEntry("posts/public", json.RawMessage(`"p1"`)))
	c.Push(types.NewAppEntry("posts/draft", json.RawMessage(`"p2"`)))
	c.Push(types.NewAppEntry("comment", json.RawMessage(`"c1"`)))

	items, err := c.Query([]string{"posts/*"}, QueryOptions{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("posts/* matched %d, want 2", len(items))
	}

	items, err = c.Query([]string{"{comment,posts/draft}"}, QueryOptions{Entries: true})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("alternation matched %d, want 2", len(items))
	}
	for _, it := range items {
		if it.Entry == nil {
			t.Fatalf("Entries option did not load entry bodies")
		}
	}

	items, err = c.Query(nil, QueryOptions{Limit: 2})
	if err != nil || len(items) != 2 {
		t.Fatalf("limit ignored: %d items, err %v", len(items), err)
	}
}

func TestFileTopRoundTrip(t *testing.T) {
	tops, err := NewFileTop(t.TempDir())
	if err != nil {
		t.Fatalf("new file top: %v", err)
	}
	agent := common.Address("agent")
	if top, err := tops.Top(agent); err != nil || !top.IsNull() {
		t.Fatalf("fresh top: %s, %v", top, err)
	}
	if err := tops.SetTop(agent, "header-1"); err != nil {
		t.Fatalf("set top: %v", err)
	}
	if top, _ := tops.Top(agent); top != "header-1" {
		t.Fatalf("top = %s, want header-1", top)
	}
}
