package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/types"
)

// commitEntry is the author-side commit workflow: validate first, then
// serialize the chain push through the reducer, then publish the
// resulting aspects. A validation failure leaves the chain untouched and
// publishes nothing.
func (inst *Instance) commitEntry(ctx context.Context, entry types.Entry, replaces common.Address) (types.ChainHeader, error) {
	if err := inst.validateCommit(ctx, entry, replaces); err != nil {
		return types.ChainHeader{}, err
	}

	reqID := uuid.New().String()
	inst.store.Dispatch(Action{Kind: ActionCommit, Payload: commitPayload{
		RequestID: reqID,
		Entry:     entry,
		Replaces:  replaces,
	}})
	header, err := inst.awaitCommit(ctx, reqID)
	if err != nil {
		return types.ChainHeader{}, err
	}

	if err := inst.publish(entry, header); err != nil {
		// The commit stands; replication is retried by gossip.
		inst.log.WithError(err).Warn("publish after commit failed")
	}
	return header, nil
}

// awaitCommit blocks on the reducer installing the commit result.
func (inst *Instance) awaitCommit(ctx context.Context, reqID string) (types.ChainHeader, error) {
	var res *commitResult
	err := inst.store.WaitFor(ctx, func(st *State) bool {
		res = st.Network.CommitResults[reqID]
		return res != nil
	})
	inst.store.Dispatch(Action{Kind: ActionClearCommitResult, Payload: clearPayload{RequestID: reqID}})
	if err != nil {
		return types.ChainHeader{}, err
	}
	return res.header, res.err
}

// provisionalHeader builds the header a commit would produce, for
// author-side validation data. The committed header differs in its
// timestamp and in carrying the provenance signature, which the
// provisional header leaves empty.
func (inst *Instance) provisionalHeader(entry types.Entry, replaces common.Address) types.ChainHeader {
	return types.ChainHeader{
		Type:           entry.Type,
		EntryAddress:   entry.Address(),
		PreviousHeader: inst.chain.Top(),
		TypePrevious:   inst.chain.TypeTop(entry.Type),
		Replaces:       replaces,
		Timestamp:      time.Now().UTC(),
		Provenances:    []types.Provenance{{Source: inst.agent}},
	}
}

// validateCommit runs the author-side validation callback for the entry.
// System entries without app-level callbacks are structurally checked
// only.
func (inst *Instance) validateCommit(ctx context.Context, entry types.Entry, replaces common.Address) error {
	header := inst.provisionalHeader(entry, replaces)
	switch {
	case entry.Type.IsApp():
		return inst.validateAppEntry(ctx, entry, header, types.LifecycleChain)
	case entry.Type == types.TypeLinkAdd:
		link, err := entry.LinkData()
		if err != nil {
			return err
		}
		return inst.validateLink(ctx, link, entry, header, types.LifecycleChain)
	case entry.Type == types.TypeLinkRemove:
		rm, err := entry.LinkRemoveData()
		if err != nil {
			return err
		}
		if _, err := inst.localEntry(rm.LinkAddAddress); err != nil {
			return types.ValidationFailed(fmt.Sprintf("link to remove %s not held", rm.LinkAddAddress))
		}
		return nil
	case entry.Type == types.TypeDeletion:
		del, err := entry.DeletionData()
		if err != nil {
			return err
		}
		if _, err := inst.localEntry(del.DeletedEntryAddress); err != nil {
			return types.ValidationFailed(fmt.Sprintf("entry to delete %s not held", del.DeletedEntryAddress))
		}
		return nil
	default:
		return nil
	}
}

// localEntry reads an entry from the chain store or the shard.
func (inst *Instance) localEntry(addr common.Address) (types.Entry, error) {
	if e, err := inst.chain.GetEntry(addr); err == nil {
		return e, nil
	}
	return inst.shard.Entry(addr)
}

// errNotImplementedOK filters NotImplemented callback results, which count
// as acceptance for entry types without app-level validation.
func errNotImplementedOK(err error) error {
	if errors.Is(err, types.ErrNotImplemented) {
		return nil
	}
	return err
}

func isNotImplemented(err error) bool { return errors.Is(err, types.ErrNotImplemented) }
