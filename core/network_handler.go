package core

import (
	"context"

	"github.com/hc-network/gcond/net"
)

// handleMessage is the network entry point: every verified inbound frame
// for this instance's space lands here on a transport goroutine.
func (inst *Instance) handleMessage(msg *net.Message) {
	if msg.SpaceAddress != inst.space {
		return
	}
	ctx := context.Background()
	switch msg.Type {
	case net.MsgPublishEntry, net.MsgStoreEntryAspect, net.MsgFetchEntryResult:
		if msg.Aspect != nil {
			inst.holdAspect(ctx, *msg.Aspect)
		}

	case net.MsgQueryEntry:
		inst.handleQueryEntry(msg)

	case net.MsgQueryEntryResult:
		inst.handleQueryEntryResult(msg)

	case net.MsgGetAuthoringList:
		inst.handleGetList(msg, true)

	case net.MsgGetGossipingList:
		inst.handleGetList(msg, false)

	case net.MsgAuthoringListResult, net.MsgGossipingListResult:
		inst.handleListResult(msg)

	case net.MsgFetchEntry:
		inst.handleFetchEntry(msg)

	case net.MsgDirectMessage:
		inst.handleDirectMessage(msg)

	case net.MsgDirectMessageResponse:
		inst.handleDirectMessageResponse(msg)

	default:
		inst.log.WithField("type", msg.Type).Debug("ignoring message")
	}
}
