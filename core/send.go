package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/net"
	"github.com/hc-network/gcond/params"
	"github.com/hc-network/gcond/ribosome"
	"github.com/hc-network/gcond/types"
)

// directType discriminates direct-message payloads: application messages
// go to the receive callback, package requests are answered internally.
type directType string

const (
	directApp            directType = "app"
	directPackageRequest directType = "validation_package_request"
)

// directEnvelope is the canonical payload of every DirectMessage frame.
type directEnvelope struct {
	Type directType      `json:"type"`
	Body json.RawMessage `json:"body"`
}

// directResponse is the canonical payload of every DirectMessageResponse.
type directResponse struct {
	OK    bool            `json:"ok"`
	Body  json.RawMessage `json:"body,omitempty"`
	Error string          `json:"error,omitempty"`
}

// awaitNet blocks until the reducer fills the request slot, then clears
// it.
func (inst *Instance) awaitNet(ctx context.Context, reqID string) ([]byte, error) {
	var res netResult
	err := inst.store.WaitFor(ctx, func(st *State) bool {
		slot := st.Network.NetResults[reqID]
		if slot != nil && slot.done {
			res = *slot
			return true
		}
		return false
	})
	inst.store.Dispatch(Action{Kind: ActionClearNetResult, Payload: clearPayload{RequestID: reqID}})
	if err != nil {
		return nil, err
	}
	return res.payload, res.err
}

// startNetRequest installs a result slot and its timeout.
func (inst *Instance) startNetRequest(reqID string, timeout time.Duration) {
	inst.store.Dispatch(Action{Kind: ActionNetRequest, Payload: netRequestPayload{RequestID: reqID}})
	time.AfterFunc(timeout, func() {
		inst.store.Dispatch(Action{Kind: ActionNetTimeout, Payload: netTimeoutPayload{RequestID: reqID}})
	})
}

// roundTrip sends one direct message and blocks for its response.
func (inst *Instance) roundTrip(ctx context.Context, to common.Address, env directEnvelope) (json.RawMessage, error) {
	return inst.roundTripTimeout(ctx, to, env, params.SendTimeout)
}

func (inst *Instance) roundTripTimeout(ctx context.Context, to common.Address, env directEnvelope, timeout time.Duration) (json.RawMessage, error) {
	if inst.network == nil {
		return nil, fmt.Errorf("%w: instance is offline", types.ErrTimeout)
	}
	payload, err := json.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}
	reqID := uuid.New().String()
	inst.startNetRequest(reqID, timeout)
	msg := &net.Message{
		Type:         net.MsgDirectMessage,
		SpaceAddress: inst.space,
		RequestID:    reqID,
		ToAgent:      to,
		Payload:      payload,
	}
	if err := inst.network.SendTo(inst.space, to, msg); err != nil {
		inst.store.Dispatch(Action{Kind: ActionClearNetResult, Payload: clearPayload{RequestID: reqID}})
		return nil, err
	}
	raw, err := inst.awaitNet(ctx, reqID)
	if err != nil {
		return nil, err
	}
	var resp directResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("core: remote error: %s", resp.Error)
	}
	return resp.Body, nil
}

// sendToAgent is the host-API send: an application payload delivered to
// the remote agent's receive callback.
func (inst *Instance) sendToAgent(ctx context.Context, to common.Address, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, fmt.Errorf("%w: send payload is not canonical JSON", types.ErrSerialization)
	}
	if timeout <= 0 {
		timeout = params.SendTimeout
	}
	return inst.roundTripTimeout(ctx, to, directEnvelope{Type: directApp, Body: payload}, timeout)
}

// handleDirectMessage answers one inbound direct message.
func (inst *Instance) handleDirectMessage(msg *net.Message) {
	respond := func(resp directResponse) {
		raw, err := json.Marshal(&resp)
		if err != nil {
			inst.log.WithError(err).Error("encoding direct response")
			return
		}
		reply := &net.Message{
			Type:         net.MsgDirectMessageResponse,
			SpaceAddress: inst.space,
			RequestID:    msg.RequestID,
			ToAgent:      msg.FromAgent,
			Payload:      raw,
		}
		if err := inst.network.SendTo(inst.space, msg.FromAgent, reply); err != nil {
			inst.log.WithError(err).Warn("sending direct response")
		}
	}

	var env directEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		respond(directResponse{Error: "malformed direct message payload"})
		return
	}

	switch env.Type {
	case directApp:
		// Malformed bodies are rejected before the callback sees them.
		if len(env.Body) > 0 && !json.Valid(env.Body) {
			respond(directResponse{Error: "payload is not canonical JSON"})
			return
		}
		out, err := inst.runReceive(msg.FromAgent, env.Body)
		if err != nil {
			respond(directResponse{Error: err.Error()})
			return
		}
		respond(directResponse{OK: true, Body: out})

	case directPackageRequest:
		var req packageRequestPayload
		if err := json.Unmarshal(env.Body, &req); err != nil {
			respond(directResponse{Error: "malformed package request"})
			return
		}
		pkg, err := inst.buildLocalPackage(req.Kind, "")
		if err != nil {
			respond(directResponse{Error: err.Error()})
			return
		}
		body, err := json.Marshal(pkg)
		if err != nil {
			respond(directResponse{Error: "package serialization failed"})
			return
		}
		respond(directResponse{OK: true, Body: body})

	default:
		respond(directResponse{Error: fmt.Sprintf("unknown direct message type %q", env.Type)})
	}
}

// receiveArgs is the argument to the receive callback.
type receiveArgs struct {
	From    common.Address  `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// runReceive hands an application message to the first zome implementing
// the receive callback.
func (inst *Instance) runReceive(from common.Address, body json.RawMessage) (json.RawMessage, error) {
	args := receiveArgs{From: from, Payload: body}
	var lastErr error
	for name := range inst.dna.Zomes {
		out, err := inst.runner.RunCallback(inst.dna, name, ribosome.CallbackReceive, args, inst)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isNotImplemented(err) {
			return nil, err
		}
	}
	if lastErr == nil {
		return nil, fmt.Errorf("%w: no zomes", types.ErrNotImplemented)
	}
	return nil, fmt.Errorf("%w: receive callback", types.ErrNotImplemented)
}

// handleDirectMessageResponse fills the waiting request slot.
func (inst *Instance) handleDirectMessageResponse(msg *net.Message) {
	inst.store.Dispatch(Action{Kind: ActionNetResult, Payload: netResultPayload{
		RequestID: msg.RequestID,
		Result:    msg.Payload,
	}})
}
