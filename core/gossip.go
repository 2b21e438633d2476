package core

import (
	"context"

	mapset "github.com/deckarep/golang-set"
	"golang.org/x/time/rate"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/net"
	"github.com/hc-network/gcond/params"
	"github.com/hc-network/gcond/types"
)

// gossipLoop periodically advertises interest in peers' entry lists and
// backfills anything missing. Pacing rides a rate limiter so bursts of
// wakeups cannot flood the space.
func (inst *Instance) gossipLoop(ctx context.Context) {
	defer close(inst.gossipDone)
	limiter := rate.NewLimiter(rate.Every(params.GossipInterval), params.GossipBurst)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		msg := &net.Message{Type: net.MsgGetGossipingList, SpaceAddress: inst.space}
		if err := inst.network.Broadcast(inst.space, msg); err != nil {
			inst.log.WithError(err).Debug("gossip round failed")
		}
	}
}

// heldAspectAddresses is the gossiping entry list: everything held plus
// everything authored.
func (inst *Instance) heldAspectAddresses() ([]common.Address, error) {
	set, err := inst.shard.AspectAddresses()
	if err != nil {
		return nil, err
	}
	inst.store.View(func(st *State) {
		for addr := range st.Network.Authored {
			set.Add(addr)
		}
	})
	out := make([]common.Address, 0, set.Cardinality())
	for v := range set.Iter() {
		out = append(out, v.(common.Address))
	}
	common.SortAddresses(out)
	return out, nil
}

// authoredAspectAddresses is the authoring entry list.
func (inst *Instance) authoredAspectAddresses() []common.Address {
	var out []common.Address
	inst.store.View(func(st *State) {
		for addr := range st.Network.Authored {
			out = append(out, addr)
		}
	})
	common.SortAddresses(out)
	return out
}

// handleGetList answers an authoring or gossiping entry-list request.
func (inst *Instance) handleGetList(msg *net.Message, authoring bool) {
	var addrs []common.Address
	var err error
	if authoring {
		addrs = inst.authoredAspectAddresses()
	} else {
		addrs, err = inst.heldAspectAddresses()
		if err != nil {
			inst.log.WithError(err).Warn("building gossip list")
			return
		}
	}
	respType := net.MsgGossipingListResult
	if authoring {
		respType = net.MsgAuthoringListResult
	}
	reply := &net.Message{
		Type:            respType,
		SpaceAddress:    inst.space,
		RequestID:       msg.RequestID,
		ToAgent:         msg.FromAgent,
		AspectAddresses: addrs,
	}
	if err := inst.network.SendTo(inst.space, msg.FromAgent, reply); err != nil {
		inst.log.WithError(err).Debug("sending entry list")
	}
}

// handleListResult diffs a peer's advertised aspects against the local
// hold set and fetches what is missing, deduplicated by aspect address.
func (inst *Instance) handleListResult(msg *net.Message) {
	held := mapset.NewSet()
	inst.store.View(func(st *State) {
		for v := range st.Dht.HeldAspects.Iter() {
			held.Add(v)
		}
		for addr := range st.Network.Authored {
			held.Add(addr)
		}
	})

	var missing []common.Address
	for _, addr := range msg.AspectAddresses {
		if !held.Contains(addr) {
			missing = append(missing, addr)
		}
	}
	if len(missing) == 0 {
		return
	}
	fetch := &net.Message{
		Type:            net.MsgFetchEntry,
		SpaceAddress:    inst.space,
		ToAgent:         msg.FromAgent,
		AspectAddresses: missing,
	}
	if err := inst.network.SendTo(inst.space, msg.FromAgent, fetch); err != nil {
		inst.log.WithError(err).Debug("requesting missing aspects")
	}
}

// handleFetchEntry ships requested aspects back one frame per aspect.
func (inst *Instance) handleFetchEntry(msg *net.Message) {
	for _, addr := range msg.AspectAddresses {
		aspect, ok := inst.lookupAspect(addr)
		if !ok {
			continue
		}
		basis, err := aspect.Basis()
		if err != nil {
			continue
		}
		reply := &net.Message{
			Type:         net.MsgFetchEntryResult,
			SpaceAddress: inst.space,
			RequestID:    msg.RequestID,
			ToAgent:      msg.FromAgent,
			EntryAddress: basis,
			Aspect:       aspect,
		}
		if err := inst.network.SendTo(inst.space, msg.FromAgent, reply); err != nil {
			inst.log.WithError(err).Debug("shipping fetched aspect")
		}
	}
}

// lookupAspect finds an aspect blob by its address in the authored set or
// the shard store.
func (inst *Instance) lookupAspect(addr common.Address) (*types.EntryAspect, bool) {
	var out *types.EntryAspect
	inst.store.View(func(st *State) {
		if a, ok := st.Network.Authored[addr]; ok {
			cp := a
			out = &cp
		}
	})
	if out != nil {
		return out, true
	}
	// Shard-held aspects live in the CAS under their own address.
	raw, err := inst.shard.AspectBlob(addr)
	if err != nil {
		return nil, false
	}
	return raw, true
}
