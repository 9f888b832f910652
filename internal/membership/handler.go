package membership

import (
	"context"

	"github.com/castly/watchparty/internal/protocol"
)

// HandleEvent applies one relay event to the roster. It is called from
// the transport session's read goroutine, so events from the relay are
// applied in emission order.
func (c *Controller) HandleEvent(ctx context.Context, eventType string, payload any) {
	switch p := payload.(type) {
	case protocol.RoomStatePayload:
		c.applyRoomState(ctx, p)
	case protocol.ParticipantJoinedPayload:
		c.applyParticipantJoined(ctx, p)
	case protocol.ParticipantLeftPayload:
		c.applyParticipantLeft(ctx, p)
	case protocol.RoomHostChangedPayload:
		c.applyHostChanged(ctx, p)
	case protocol.RoomJoinRequestPayload:
		c.applyJoinRequest(ctx, p)
	case protocol.RoomJoinRejectedPayload:
		c.applyTerminal(ctx, PhaseRejected, p.Reason)
	case protocol.RoomEndedPayload:
		c.applyTerminal(ctx, PhaseEnded, "room ended by host")
	case protocol.HostKickPayload:
		c.applyTerminal(ctx, PhaseKicked, "removed by host")
	case protocol.HostMuteParticipantPayload:
		c.applyDirective(ctx, protocol.MediaTypeAudio, !p.Muted)
	case protocol.HostVideoOffParticipantPayload:
		c.applyDirective(ctx, protocol.MediaTypeVideo, !p.VideoOff)
	case protocol.HostMuteAllPayload:
		if !c.IsHost() {
			c.applyDirective(ctx, protocol.MediaTypeAudio, false)
		}
	case protocol.HostVideoOffAllPayload:
		if !c.IsHost() {
			c.applyDirective(ctx, protocol.MediaTypeVideo, false)
		}
	case protocol.MediaStatusPayload:
		c.setParticipantMedia(p.UserId, p.Type, p.Enabled)
	case protocol.ChatMessagePayload:
		c.applyChatMessage(ctx, p)
	default:
		c.logger.DebugContext(ctx, "membership ignoring event", "type", eventType)
	}
}

func (c *Controller) applyRoomState(ctx context.Context, state protocol.RoomStatePayload) {
	c.mu.Lock()
	c.phase = PhaseInRoom
	c.roomId = state.RoomId
	c.hostId = state.HostId
	c.content = state.Content
	c.participants = make(map[string]protocol.Participant, len(state.Participants))
	for _, p := range state.Participants {
		p.IsHost = p.UserId == state.HostId
		c.participants[p.UserId] = p
		if p.UserId == c.profile.UserId {
			c.selfConnectionId = p.ConnectionId
		}
	}
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "room snapshot applied",
		"room_id", state.RoomId,
		"host_id", state.HostId,
		"participants", len(state.Participants),
	)

	c.bus.Publish(TopicRoomState, state)
	c.bus.Publish(TopicHostChanged, HostChange{
		HostId: state.HostId,
		IsSelf: state.HostId == c.profile.UserId,
	})
}

func (c *Controller) applyParticipantJoined(ctx context.Context, p protocol.ParticipantJoinedPayload) {
	if p.Participant.UserId == c.profile.UserId {
		return
	}

	c.mu.Lock()
	c.participants[p.Participant.UserId] = p.Participant
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "participant joined",
		"user_id", p.Participant.UserId,
		"connection_id", p.Participant.ConnectionId,
	)
	c.bus.Publish(TopicParticipantJoined, p.Participant)
}

func (c *Controller) applyParticipantLeft(ctx context.Context, p protocol.ParticipantLeftPayload) {
	c.mu.Lock()
	delete(c.participants, p.UserId)
	// a disconnected requester abandons its pending request
	for id, req := range c.pendingRequests {
		if req.Profile.UserId == p.UserId {
			delete(c.pendingRequests, id)
		}
	}
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "participant left", "user_id", p.UserId)
	c.bus.Publish(TopicParticipantLeft, p)
}

func (c *Controller) applyHostChanged(ctx context.Context, p protocol.RoomHostChangedPayload) {
	c.mu.Lock()
	c.hostId = p.HostId
	for id, participant := range c.participants {
		participant.IsHost = id == p.HostId
		c.participants[id] = participant
	}
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "host changed", "host_id", p.HostId)
	c.bus.Publish(TopicHostChanged, HostChange{
		HostId: p.HostId,
		IsSelf: p.HostId == c.profile.UserId,
	})
}

func (c *Controller) applyJoinRequest(ctx context.Context, p protocol.RoomJoinRequestPayload) {
	if !c.IsHost() {
		return
	}

	c.mu.Lock()
	c.pendingRequests[p.RequestId] = p
	c.mu.Unlock()

	c.bus.Publish(TopicJoinRequest, p)
}

func (c *Controller) applyTerminal(ctx context.Context, phase Phase, reason string) {
	c.mu.Lock()
	if c.phase == PhaseLeft || c.phase == PhaseEnded || c.phase == PhaseKicked || c.phase == PhaseRejected {
		c.mu.Unlock()
		return
	}
	c.phase = phase
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "room over for this client", "phase", phase, "reason", reason)
	c.bus.Publish(TopicTerminal, Terminal{Phase: phase, Reason: reason})
}

func (c *Controller) applyDirective(ctx context.Context, mediaType string, enabled bool) {
	c.logger.InfoContext(ctx, "host directive received", "media", mediaType, "enabled", enabled)
	c.bus.Publish(TopicMediaDirective, MediaDirective{Type: mediaType, Enabled: enabled})
}

func (c *Controller) applyChatMessage(ctx context.Context, msg protocol.ChatMessagePayload) {
	c.mu.Lock()
	c.chat = append(c.chat, msg)
	c.mu.Unlock()

	c.bus.Publish(TopicChatMessage, msg)
}
