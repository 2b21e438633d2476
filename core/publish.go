package core

import (
	"context"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/dht"
	"github.com/hc-network/gcond/net"
	"github.com/hc-network/gcond/params"
	"github.com/hc-network/gcond/types"
)

// aspectsFor expands one committed (entry, header) pair into the aspects
// the DHT replicates for it.
func (inst *Instance) aspectsFor(entry types.Entry, header types.ChainHeader) ([]types.EntryAspect, error) {
	switch entry.Type {
	case types.TypeLinkAdd:
		link, err := entry.LinkData()
		if err != nil {
			return nil, err
		}
		return []types.EntryAspect{
			types.NewContentAspect(entry, header),
			types.NewLinkAddAspect(link, header),
		}, nil

	case types.TypeLinkRemove:
		rm, err := entry.LinkRemoveData()
		if err != nil {
			return nil, err
		}
		linkEntry, err := inst.localEntry(rm.LinkAddAddress)
		if err != nil {
			return nil, err
		}
		link, err := linkEntry.LinkData()
		if err != nil {
			return nil, err
		}
		return []types.EntryAspect{
			types.NewContentAspect(entry, header),
			types.NewLinkRemoveAspect(entry, link, header),
		}, nil

	case types.TypeDeletion:
		return []types.EntryAspect{
			types.NewContentAspect(entry, header),
			types.NewDeletionAspect(entry, header),
		}, nil

	default:
		aspects := []types.EntryAspect{types.NewContentAspect(entry, header)}
		if !header.Replaces.IsNull() {
			aspects = append(aspects, types.NewUpdateAspect(entry, header))
		}
		return aspects, nil
	}
}

// publish holds the authored aspects locally and gossips them to the
// nodes responsible for each basis address. Private types never leave the
// node.
func (inst *Instance) publish(entry types.Entry, header types.ChainHeader) error {
	if !entry.Type.Publishable() || !inst.dna.IsPublic(entry.Type) {
		return nil
	}
	aspects, err := inst.aspectsFor(entry, header)
	if err != nil {
		return err
	}
	addrs := make([]common.Address, 0, len(aspects))
	for _, aspect := range aspects {
		addrs = append(addrs, aspect.Address())
		inst.store.Dispatch(Action{Kind: ActionAddAuthoredAspect, Payload: authoredPayload{Aspect: aspect}})
		inst.store.Dispatch(Action{Kind: ActionHoldAspect, Payload: holdAspectPayload{Aspect: aspect}})
		if inst.network != nil {
			if err := inst.gossipAspect(aspect); err != nil {
				return err
			}
		}
	}

	// Reads issued after the commit returns must see the authored aspects
	// in the local shard, so wait for the holds to reduce.
	waitCtx, cancel := context.WithTimeout(context.Background(), params.GetEntryTimeout)
	defer cancel()
	return inst.store.WaitFor(waitCtx, func(st *State) bool {
		for _, addr := range addrs {
			if !st.Dht.HeldAspects.Contains(addr) {
				return false
			}
		}
		return true
	})
}

// gossipAspect delivers one aspect to its responsible neighborhood.
func (inst *Instance) gossipAspect(aspect types.EntryAspect) error {
	basis, err := aspect.Basis()
	if err != nil {
		return err
	}
	a := aspect
	msg := &net.Message{
		Type:         net.MsgStoreEntryAspect,
		SpaceAddress: inst.space,
		EntryAddress: basis,
		Aspect:       &a,
	}
	if inst.sharding.Mode == dht.FullSync || inst.sharding.Redundancy <= 0 {
		return inst.network.Broadcast(inst.space, msg)
	}
	peers, err := inst.network.Peers(inst.space)
	if err != nil {
		return err
	}
	for _, peer := range peers {
		if inst.sharding.Responsible(peer, basis, append(peers, inst.agent)) {
			if err := inst.network.SendTo(inst.space, peer, msg); err != nil {
				return err
			}
		}
	}
	return nil
}

// holdsBasis reports whether this node is in the neighborhood of basis.
func (inst *Instance) holdsBasis(basis common.Address) bool {
	if inst.network == nil {
		return true
	}
	peers, err := inst.network.Peers(inst.space)
	if err != nil {
		return true
	}
	return inst.sharding.Responsible(inst.agent, basis, peers)
}
