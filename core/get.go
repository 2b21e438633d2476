package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hc-network/gcond/cas"
	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/net"
	"github.com/hc-network/gcond/params"
	"github.com/hc-network/gcond/types"
)

// queryKind discriminates DHT query payloads.
type queryKind string

const (
	queryEntry queryKind = "entry"
	queryLinks queryKind = "links"
)

// queryPayload is the canonical body of a QueryEntry frame.
type queryPayload struct {
	Kind     queryKind             `json:"kind"`
	Address  common.Address        `json:"address"`
	LinkType string                `json:"link_type,omitempty"`
	Tag      string                `json:"tag,omitempty"`
	EntryOpt types.GetEntryOptions `json:"entry_options,omitempty"`
	LinksOpt types.GetLinksOptions `json:"links_options,omitempty"`
}

// queryResponse is the canonical body of a QueryEntryResult frame.
type queryResponse struct {
	Found bool               `json:"found"`
	Entry *types.EntryResult `json:"entry,omitempty"`
	Links []types.LinkResult `json:"links,omitempty"`
}

// getEntry reads from the local shard first, then queries the DHT with a
// timeout. A miss everywhere yields an empty result, not an error; only
// the timeout with no answering peer is an error.
func (inst *Instance) getEntry(ctx context.Context, addr common.Address, opts types.GetEntryOptions) (*types.EntryResult, error) {
	res, err := inst.shard.GetEntry(addr, opts)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, cas.ErrNotFound) {
		return nil, err
	}
	// The chain store also serves local reads for private entries.
	if entry, cerr := inst.chain.GetEntry(addr); cerr == nil {
		return &types.EntryResult{Entry: &entry, Status: types.StatusLive}, nil
	}
	if inst.network == nil {
		return &types.EntryResult{Status: types.StatusLive}, nil
	}

	timeout := params.GetEntryTimeout
	if opts.TimeoutMs > 0 {
		timeout = time.Duration(opts.TimeoutMs) * time.Millisecond
	}
	resp, err := inst.dhtQuery(ctx, queryPayload{Kind: queryEntry, Address: addr, EntryOpt: opts}, timeout)
	if err != nil {
		return nil, err
	}
	if !resp.Found || resp.Entry == nil {
		return &types.EntryResult{Status: types.StatusLive}, nil
	}
	return resp.Entry, nil
}

// getLinks merges the local shard view with a DHT query when the base is
// not held locally.
func (inst *Instance) getLinks(ctx context.Context, base common.Address, linkType, tag string, opts types.GetLinksOptions) ([]types.LinkResult, error) {
	held, err := inst.shard.Holds(base)
	if err != nil {
		return nil, err
	}
	if held || inst.network == nil {
		return inst.shard.GetLinks(base, linkType, tag, opts)
	}

	timeout := params.GetLinksTimeout
	if opts.TimeoutMs > 0 {
		timeout = time.Duration(opts.TimeoutMs) * time.Millisecond
	}
	resp, err := inst.dhtQuery(ctx, queryPayload{
		Kind:     queryLinks,
		Address:  base,
		LinkType: linkType,
		Tag:      tag,
		LinksOpt: opts,
	}, timeout)
	if err != nil {
		return nil, err
	}
	return resp.Links, nil
}

// dhtQuery broadcasts a query to the space and takes the first response.
func (inst *Instance) dhtQuery(ctx context.Context, q queryPayload, timeout time.Duration) (*queryResponse, error) {
	body, err := json.Marshal(&q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}
	reqID := uuid.New().String()
	inst.startNetRequest(reqID, timeout)
	msg := &net.Message{
		Type:         net.MsgQueryEntry,
		SpaceAddress: inst.space,
		RequestID:    reqID,
		EntryAddress: q.Address,
		Payload:      body,
	}
	if err := inst.network.Broadcast(inst.space, msg); err != nil {
		inst.store.Dispatch(Action{Kind: ActionClearNetResult, Payload: clearPayload{RequestID: reqID}})
		return nil, err
	}
	raw, err := inst.awaitNet(ctx, reqID)
	if err != nil {
		return nil, err
	}
	var resp queryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}
	return &resp, nil
}

// handleQueryEntry answers a query from the local shard. Nodes holding
// nothing for the address stay silent; the requester's timeout covers the
// all-silent case.
func (inst *Instance) handleQueryEntry(msg *net.Message) {
	var q queryPayload
	if err := json.Unmarshal(msg.Payload, &q); err != nil {
		inst.log.WithError(err).Warn("dropping malformed query")
		return
	}

	var resp queryResponse
	switch q.Kind {
	case queryEntry:
		res, err := inst.shard.GetEntry(q.Address, q.EntryOpt)
		if err != nil {
			return
		}
		resp = queryResponse{Found: true, Entry: res}
	case queryLinks:
		held, err := inst.shard.Holds(q.Address)
		if err != nil || !held {
			return
		}
		links, err := inst.shard.GetLinks(q.Address, q.LinkType, q.Tag, q.LinksOpt)
		if err != nil {
			return
		}
		resp = queryResponse{Found: true, Links: links}
	default:
		return
	}

	body, err := json.Marshal(&resp)
	if err != nil {
		inst.log.WithError(err).Error("encoding query response")
		return
	}
	reply := &net.Message{
		Type:         net.MsgQueryEntryResult,
		SpaceAddress: inst.space,
		RequestID:    msg.RequestID,
		ToAgent:      msg.FromAgent,
		EntryAddress: q.Address,
		Payload:      body,
	}
	if err := inst.network.SendTo(inst.space, msg.FromAgent, reply); err != nil {
		inst.log.WithError(err).Warn("sending query response")
	}
}

// handleQueryEntryResult fills the waiting request slot; late duplicate
// responses are dropped by the reducer.
func (inst *Instance) handleQueryEntryResult(msg *net.Message) {
	inst.store.Dispatch(Action{Kind: ActionNetResult, Payload: netResultPayload{
		RequestID: msg.RequestID,
		Result:    msg.Payload,
	}})
}
