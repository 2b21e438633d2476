// Package memnet is the in-process transport: every node in the process
// shares one hub, and frames are delivered over goroutines. It exists for
// tests and single-process multi-agent setups, and exercises the same
// signed frame codec as the real transports.
package memnet

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/net"
)

// Hub connects all in-process nodes.
type Hub struct {
	mu     sync.RWMutex
	spaces map[common.Address]map[common.Address]*Node
	log    *logrus.Entry
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		spaces: make(map[common.Address]map[common.Address]*Node),
		log:    logrus.WithField("pkg", "memnet"),
	}
}

// Node is one agent's endpoint on the hub.
type Node struct {
	hub    *Hub
	signer net.Signer

	mu       sync.RWMutex
	handlers map[common.Address]net.Handler
}

// NewNode attaches a signing agent to the hub.
func (h *Hub) NewNode(signer net.Signer) *Node {
	return &Node{
		hub:      h,
		signer:   signer,
		handlers: make(map[common.Address]net.Handler),
	}
}

// Agent implements net.Network.
func (n *Node) Agent() common.Address { return n.signer.Address() }

// Join implements net.Network.
func (n *Node) Join(space common.Address, handler net.Handler) error {
	n.mu.Lock()
	n.handlers[space] = handler
	n.mu.Unlock()

	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	members, ok := n.hub.spaces[space]
	if !ok {
		members = make(map[common.Address]*Node)
		n.hub.spaces[space] = members
	}
	members[n.Agent()] = n
	n.hub.log.WithFields(logrus.Fields{"space": space, "agent": n.Agent()}).Debug("joined space")
	return nil
}

// Leave implements net.Network.
func (n *Node) Leave(space common.Address) error {
	n.mu.Lock()
	delete(n.handlers, space)
	n.mu.Unlock()

	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	if members, ok := n.hub.spaces[space]; ok {
		delete(members, n.Agent())
	}
	return nil
}

// deliver runs the signed codec end to end: encode on the sender, decode
// and verify on the receiver, then hand off asynchronously.
func (n *Node) deliver(space common.Address, target *Node, msg *net.Message) error {
	frame, err := net.EncodeFrame(n.signer, msg)
	if err != nil {
		return err
	}
	go func() {
		decoded, err := net.DecodeFrame(frame)
		if err != nil {
			n.hub.log.WithError(err).Warn("dropping bad frame")
			return
		}
		target.mu.RLock()
		handler := target.handlers[space]
		target.mu.RUnlock()
		if handler != nil {
			handler(decoded)
		}
	}()
	return nil
}

// SendTo implements net.Network.
func (n *Node) SendTo(space, to common.Address, msg *net.Message) error {
	n.hub.mu.RLock()
	target := n.hub.spaces[space][to]
	n.hub.mu.RUnlock()
	if target == nil {
		return fmt.Errorf("%w: %s", net.ErrUnknownPeer, to)
	}
	return n.deliver(space, target, msg)
}

// Broadcast implements net.Network.
func (n *Node) Broadcast(space common.Address, msg *net.Message) error {
	n.hub.mu.RLock()
	targets := make([]*Node, 0, len(n.hub.spaces[space]))
	for agent, node := range n.hub.spaces[space] {
		if agent != n.Agent() {
			targets = append(targets, node)
		}
	}
	n.hub.mu.RUnlock()
	for _, target := range targets {
		if err := n.deliver(space, target, msg); err != nil {
			return err
		}
	}
	return nil
}

// Peers implements net.Network.
func (n *Node) Peers(space common.Address) ([]common.Address, error) {
	n.hub.mu.RLock()
	defer n.hub.mu.RUnlock()
	var out []common.Address
	for agent := range n.hub.spaces[space] {
		if agent != n.Agent() {
			out = append(out, agent)
		}
	}
	common.SortAddresses(out)
	return out, nil
}
