// Package wsnet is the websocket transport adapter: nodes connect to a
// relay which routes signed frames between the members of each space. The
// relay never inspects message payloads; signature verification happens at
// the receiving node, exactly as with the in-process hub.
package wsnet

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/net"
	"github.com/hc-network/gcond/params"
	"github.com/hc-network/gcond/types"
)

// envelope is the client↔relay framing around signed message frames.
type envelope struct {
	Op        string           `json:"op"` // join, leave, send, broadcast, peers, peers_result, frame
	Space     common.Address   `json:"space,omitempty"`
	Agent     common.Address   `json:"agent,omitempty"`
	To        common.Address   `json:"to,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
	Agents    []common.Address `json:"agents,omitempty"`
	Frame     []byte           `json:"frame,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Relay is the routing server.
type Relay struct {
	mu       sync.RWMutex
	spaces   map[common.Address]map[common.Address]*relayConn
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

type relayConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *relayConn) write(env *envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(env)
}

// NewRelay creates an empty relay; mount it on an HTTP mux.
func NewRelay() *Relay {
	return &Relay{
		spaces: make(map[common.Address]map[common.Address]*relayConn),
		log:    logrus.WithField("pkg", "wsnet"),
	}
}

// ServeHTTP upgrades the connection and runs the routing loop.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.WithError(err).Warn("upgrade failed")
		return
	}
	rc := &relayConn{conn: conn}
	joined := make(map[common.Address]common.Address) // space → agent
	defer func() {
		r.mu.Lock()
		for space, agent := range joined {
			if members, ok := r.spaces[space]; ok {
				delete(members, agent)
			}
		}
		r.mu.Unlock()
		conn.Close()
	}()

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		switch env.Op {
		case "join":
			r.mu.Lock()
			members, ok := r.spaces[env.Space]
			if !ok {
				members = make(map[common.Address]*relayConn)
				r.spaces[env.Space] = members
			}
			members[env.Agent] = rc
			joined[env.Space] = env.Agent
			r.mu.Unlock()

		case "leave":
			r.mu.Lock()
			if members, ok := r.spaces[env.Space]; ok {
				delete(members, env.Agent)
			}
			delete(joined, env.Space)
			r.mu.Unlock()

		case "send":
			r.mu.RLock()
			target := r.spaces[env.Space][env.To]
			r.mu.RUnlock()
			if target != nil {
				target.write(&envelope{Op: "frame", Space: env.Space, Frame: env.Frame})
			}

		case "broadcast":
			r.mu.RLock()
			targets := make([]*relayConn, 0)
			for agent, member := range r.spaces[env.Space] {
				if agent != env.Agent {
					targets = append(targets, member)
				}
			}
			r.mu.RUnlock()
			for _, target := range targets {
				target.write(&envelope{Op: "frame", Space: env.Space, Frame: env.Frame})
			}

		case "peers":
			r.mu.RLock()
			var agents []common.Address
			for agent := range r.spaces[env.Space] {
				if agent != env.Agent {
					agents = append(agents, agent)
				}
			}
			r.mu.RUnlock()
			common.SortAddresses(agents)
			rc.write(&envelope{Op: "peers_result", RequestID: env.RequestID, Agents: agents})
		}
	}
}

// Client is one node's websocket endpoint, implementing net.Network.
type Client struct {
	signer net.Signer
	conn   *websocket.Conn

	mu       sync.RWMutex
	handlers map[common.Address]net.Handler
	pending  map[string]chan []common.Address
	writeMu  sync.Mutex
	closed   bool
	log      *logrus.Entry
}

// Dial connects to a relay URL (ws://host/path).
func Dial(url string, signer net.Signer) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsnet: dial relay: %w", err)
	}
	c := &Client{
		signer:   signer,
		conn:     conn,
		handlers: make(map[common.Address]net.Handler),
		pending:  make(map[string]chan []common.Address),
		log:      logrus.WithField("pkg", "wsnet"),
	}
	go c.readLoop()
	return c, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) write(env *envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

func (c *Client) readLoop() {
	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.mu.RLock()
			closed := c.closed
			c.mu.RUnlock()
			if !closed {
				c.log.WithError(err).Warn("relay connection lost")
			}
			return
		}
		switch env.Op {
		case "frame":
			msg, err := net.DecodeFrame(env.Frame)
			if err != nil {
				c.log.WithError(err).Warn("dropping bad frame")
				continue
			}
			c.mu.RLock()
			handler := c.handlers[env.Space]
			c.mu.RUnlock()
			if handler != nil {
				go handler(msg)
			}
		case "peers_result":
			c.mu.Lock()
			ch := c.pending[env.RequestID]
			delete(c.pending, env.RequestID)
			c.mu.Unlock()
			if ch != nil {
				ch <- env.Agents
			}
		}
	}
}

// Agent implements net.Network.
func (c *Client) Agent() common.Address { return c.signer.Address() }

// Join implements net.Network.
func (c *Client) Join(space common.Address, h net.Handler) error {
	c.mu.Lock()
	c.handlers[space] = h
	c.mu.Unlock()
	return c.write(&envelope{Op: "join", Space: space, Agent: c.Agent()})
}

// Leave implements net.Network.
func (c *Client) Leave(space common.Address) error {
	c.mu.Lock()
	delete(c.handlers, space)
	c.mu.Unlock()
	return c.write(&envelope{Op: "leave", Space: space, Agent: c.Agent()})
}

// SendTo implements net.Network.
func (c *Client) SendTo(space, to common.Address, msg *net.Message) error {
	frame, err := net.EncodeFrame(c.signer, msg)
	if err != nil {
		return err
	}
	return c.write(&envelope{Op: "send", Space: space, Agent: c.Agent(), To: to, Frame: frame})
}

// Broadcast implements net.Network.
func (c *Client) Broadcast(space common.Address, msg *net.Message) error {
	frame, err := net.EncodeFrame(c.signer, msg)
	if err != nil {
		return err
	}
	return c.write(&envelope{Op: "broadcast", Space: space, Agent: c.Agent(), Frame: frame})
}

// Peers implements net.Network.
func (c *Client) Peers(space common.Address) ([]common.Address, error) {
	id := uuid.New().String()
	ch := make(chan []common.Address, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	if err := c.write(&envelope{Op: "peers", Space: space, Agent: c.Agent(), RequestID: id}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}
	select {
	case agents := <-ch:
		return agents, nil
	case <-time.After(params.SendTimeout):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: peers request %s", types.ErrTimeout, id)
	}
}
