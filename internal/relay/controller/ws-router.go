package controller

import (
	"github.com/castly/watchparty/internal/protocol"
	"github.com/castly/watchparty/pkg/wsrouter"
)

// newWSRouter registers every client-to-relay event. Relay-originated
// events (room:state, participant:joined, ...) have no handler here; a
// client echoing one back gets an unknown-type error.
func (c controller) newWSRouter() *wsrouter.WSRouter {
	r := wsrouter.New()

	r.Use(c.loggingMiddleware)

	wsrouter.Handle(r, protocol.EventRoomJoin, c.handleRoomJoin)
	wsrouter.Handle(r, protocol.EventRoomJoinApprove, c.handleJoinApprove)
	wsrouter.Handle(r, protocol.EventRoomJoinReject, c.handleJoinReject)
	wsrouter.Handle(r, protocol.EventRoomLeave, c.handleRoomLeave)
	wsrouter.Handle(r, protocol.EventRoomEnd, c.handleRoomEnd)

	wsrouter.Handle(r, protocol.EventHostKick, c.handleHostKick)
	wsrouter.Handle(r, protocol.EventHostTransfer, c.handleHostTransfer)
	wsrouter.Handle(r, protocol.EventHostMuteParticipant, c.handleHostMuteParticipant)
	wsrouter.Handle(r, protocol.EventHostVideoOffParticipant, c.handleHostVideoOffParticipant)
	wsrouter.Handle(r, protocol.EventHostMuteAll, c.handleHostMuteAll)
	wsrouter.Handle(r, protocol.EventHostVideoOffAll, c.handleHostVideoOffAll)

	wsrouter.Handle(r, protocol.EventSyncPlay, c.handleSyncPlay)
	wsrouter.Handle(r, protocol.EventSyncPause, c.handleSyncPause)
	wsrouter.Handle(r, protocol.EventSyncSeek, c.handleSyncSeek)
	wsrouter.Handle(r, protocol.EventSyncSpeed, c.handleSyncSpeed)
	wsrouter.Handle(r, protocol.EventSyncBuffering, c.handleSyncBuffering)
	wsrouter.Handle(r, protocol.EventSyncState, c.handleSyncState)
	wsrouter.Handle(r, protocol.EventSyncReport, c.handleSyncReport)

	wsrouter.Handle(r, protocol.EventSignal, c.handleSignal)
	wsrouter.Handle(r, protocol.EventMediaStatus, c.handleMediaStatus)
	wsrouter.Handle(r, protocol.EventChatMessage, c.handleChatMessage)

	return r
}
