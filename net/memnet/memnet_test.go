package memnet

import (
	"crypto/ed25519"
	"sync"
	"testing"
	"time"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/net"
	"github.com/hc-network/gcond/types"
)

type testSigner struct {
	addr common.Address
	priv ed25519.PrivateKey
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &testSigner{addr: types.AgentAddress(pub), priv: priv}
}

func (s *testSigner) Address() common.Address       { return s.addr }
func (s *testSigner) Sign(p []byte) ([]byte, error) { return ed25519.Sign(s.priv, p), nil }

type collector struct {
	mu   sync.Mutex
	msgs []*net.Message
	ch   chan struct{}
}

func newCollector() *collector { return &collector{ch: make(chan struct{}, 16)} }

func (c *collector) handle(msg *net.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []*net.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		if len(c.msgs) >= n {
			out := append([]*net.Message(nil), c.msgs...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-c.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for %d messages", n)
		}
	}
}

func TestSendToDeliversVerifiedFrame(t *testing.T) {
	hub := NewHub()
	s1, s2 := newTestSigner(t), newTestSigner(t)
	n1, n2 := hub.NewNode(s1), hub.NewNode(s2)
	space := common.AddressOf([]byte("space"))

	sink := newCollector()
	if err := n1.Join(space, func(*net.Message) {}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := n2.Join(space, sink.handle); err != nil {
		t.Fatalf("join: %v", err)
	}

	msg := &net.Message{Type: net.MsgDirectMessage, SpaceAddress: space, ToAgent: s2.Address(), RequestID: "r1"}
	if err := n1.SendTo(space, s2.Address(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := sink.wait(t, 1)
	if got[0].FromAgent != s1.Address() || got[0].RequestID != "r1" {
		t.Fatalf("delivered message mangled: %+v", got[0])
	}
}

func TestBroadcastSkipsSender(t *testing.T) {
	hub := NewHub()
	space := common.AddressOf([]byte("space"))
	sender := hub.NewNode(newTestSigner(t))
	senderSink := newCollector()
	sender.Join(space, senderSink.handle)

	sinks := make([]*collector, 2)
	for i := range sinks {
		sinks[i] = newCollector()
		node := hub.NewNode(newTestSigner(t))
		if err := node.Join(space, sinks[i].handle); err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	if err := sender.Broadcast(space, &net.Message{Type: net.MsgPublishEntry, SpaceAddress: space}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	for _, sink := range sinks {
		sink.wait(t, 1)
	}
	senderSink.mu.Lock()
	defer senderSink.mu.Unlock()
	if len(senderSink.msgs) != 0 {
		t.Fatalf("broadcast delivered to sender")
	}
}

func TestSendToUnknownPeer(t *testing.T) {
	hub := NewHub()
	n := hub.NewNode(newTestSigner(t))
	space := common.AddressOf([]byte("space"))
	n.Join(space, func(*net.Message) {})
	err := n.SendTo(space, common.Address("nobody"), &net.Message{Type: net.MsgDirectMessage, SpaceAddress: space})
	if err == nil {
		t.Fatalf("send to unknown peer succeeded")
	}
}

func TestPeersExcludesSelf(t *testing.T) {
	hub := NewHub()
	space := common.AddressOf([]byte("space"))
	n1 := hub.NewNode(newTestSigner(t))
	n2 := hub.NewNode(newTestSigner(t))
	n1.Join(space, func(*net.Message) {})
	n2.Join(space, func(*net.Message) {})

	peers, err := n1.Peers(space)
	if err != nil || len(peers) != 1 || peers[0] != n2.Agent() {
		t.Fatalf("peers = %v, %v", peers, err)
	}

	n2.Leave(space)
	peers, _ = n1.Peers(space)
	if len(peers) != 0 {
		t.Fatalf("left peer still listed: %v", peers)
	}
}
