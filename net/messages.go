// Package net defines the conductor wire protocol: framed structured
// messages between peers of one application space, wrapped in a signed
// envelope and compressed on the wire. Transports (the in-process hub and
// the websocket relay) route messages; all protocol logic lives in the
// core network handler.
package net

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang/snappy"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/types"
)

// MessageType enumerates the wire message variants.
type MessageType string

const (
	MsgJoinSpace             MessageType = "JoinSpace"
	MsgLeaveSpace            MessageType = "LeaveSpace"
	MsgPublishEntry          MessageType = "PublishEntry"
	MsgStoreEntryAspect      MessageType = "StoreEntryAspect"
	MsgQueryEntry            MessageType = "QueryEntry"
	MsgQueryEntryResult      MessageType = "QueryEntryResult"
	MsgFetchEntry            MessageType = "HandleFetchEntry"
	MsgFetchEntryResult      MessageType = "HandleFetchEntryResult"
	MsgGetAuthoringList      MessageType = "HandleGetAuthoringEntryList"
	MsgAuthoringListResult   MessageType = "HandleGetAuthoringEntryListResult"
	MsgGetGossipingList      MessageType = "HandleGetGossipingEntryList"
	MsgGossipingListResult   MessageType = "HandleGetGossipingEntryListResult"
	MsgDirectMessage         MessageType = "DirectMessage"
	MsgDirectMessageResponse MessageType = "DirectMessageResponse"
)

// Message is the structured payload every frame carries. Fields are
// populated per variant; unused fields stay empty on the wire.
type Message struct {
	Type         MessageType        `json:"type"`
	SpaceAddress common.Address     `json:"space_address"`
	RequestID    string             `json:"request_id,omitempty"`
	FromAgent    common.Address     `json:"from_agent,omitempty"`
	ToAgent      common.Address     `json:"to_agent,omitempty"`
	EntryAddress common.Address     `json:"entry_address,omitempty"`
	Aspect       *types.EntryAspect `json:"aspect,omitempty"`
	// AspectAddresses carries authoring/gossiping entry lists and fetch
	// requests.
	AspectAddresses []common.Address `json:"aspect_addresses,omitempty"`
	// Payload carries query bytes, query results and direct message bodies.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SignedMessage is the outer envelope: the provenance signature is over
// the serialized message payload and must verify against the claimed
// source agent.
type SignedMessage struct {
	Provenance types.Provenance `json:"provenance"`
	Payload    []byte           `json:"payload"`
}

var (
	ErrBadFrame     = errors.New("net: malformed frame")
	ErrBadSignature = errors.New("net: message signature does not verify")
	ErrWrongSource  = errors.New("net: message source does not match envelope")
)

// Signer is the minimal signing surface a transport needs for outbound
// frames.
type Signer interface {
	Address() common.Address
	Sign(payload []byte) ([]byte, error)
}

// EncodeFrame serializes, signs and compresses one message.
func EncodeFrame(signer Signer, msg *Message) ([]byte, error) {
	if msg.FromAgent.IsNull() {
		msg.FromAgent = signer.Address()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("net: sign frame: %w", err)
	}
	signed := SignedMessage{
		Provenance: types.NewProvenance(signer.Address(), sig),
		Payload:    payload,
	}
	raw, err := json.Marshal(&signed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}
	return snappy.Encode(nil, raw), nil
}

// DecodeFrame decompresses, verifies and deserializes one frame,
// rejecting frames whose signature does not verify against the claimed
// source agent.
func DecodeFrame(frame []byte) (*Message, error) {
	raw, err := snappy.Decode(nil, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	var signed SignedMessage
	if err := json.Unmarshal(raw, &signed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if !signed.Provenance.Verify(signed.Payload) {
		return nil, ErrBadSignature
	}
	var msg Message
	if err := json.Unmarshal(signed.Payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if !msg.FromAgent.IsNull() && msg.FromAgent != signed.Provenance.Source {
		return nil, ErrWrongSource
	}
	msg.FromAgent = signed.Provenance.Source
	return &msg, nil
}

// Handler consumes inbound messages for one joined space.
type Handler func(msg *Message)

// Network is the transport contract the core consumes. Implementations
// deliver frames signed by this node's agent and verify inbound frames
// before handing them to the handler.
type Network interface {
	// Agent returns the local agent address frames are signed as.
	Agent() common.Address
	// Join subscribes the handler to a space.
	Join(space common.Address, h Handler) error
	// Leave unsubscribes from a space.
	Leave(space common.Address) error
	// SendTo delivers one message to a specific agent in the space.
	SendTo(space, to common.Address, msg *Message) error
	// Broadcast delivers one message to every other member of the space.
	Broadcast(space common.Address, msg *Message) error
	// Peers lists the currently known members of the space, self excluded.
	Peers(space common.Address) ([]common.Address, error)
}

var ErrUnknownPeer = errors.New("net: unknown peer")
