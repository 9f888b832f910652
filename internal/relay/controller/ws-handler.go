package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/castly/watchparty/internal/protocol"
	"github.com/castly/watchparty/internal/relay/service"
)

// close code sent to a kicked member after the host:kick event
const closeCodeKicked = 4001

func (c controller) handleRoomJoin(ctx context.Context, conn *websocket.Conn, payload protocol.RoomJoinPayload) error {
	if validationErrors, ok := c.validate.Validate(payload); !ok {
		return fmt.Errorf("validation failed: %v", validationErrors)
	}
	if !payload.AsHost && payload.RoomId == "" {
		return fmt.Errorf("room_id is required to join an existing room")
	}

	resp, err := c.roomService.JoinRoom(ctx, &service.JoinRoomParams{
		ConnectionId:    connectionIdFromCtx(ctx),
		RoomId:          payload.RoomId,
		Profile:         payload.Profile,
		AsHost:          payload.AsHost,
		RequireApproval: payload.RequireApproval,
		Content:         payload.Content,
	})
	if err != nil {
		c.logger.DebugContext(ctx, "failed to join room", "error", err)
		return err
	}

	if resp.Pending {
		c.writeToConn(ctx, resp.HostConn, protocol.EventRoomJoinRequest, resp.Request)
		return nil
	}

	c.writeToConn(ctx, conn, protocol.EventRoomState, resp.RoomState)
	c.broadcast(ctx, resp.Conns, protocol.EventParticipantJoined, protocol.ParticipantJoinedPayload{
		Participant: resp.Joined,
	})

	return nil
}

func (c controller) handleJoinApprove(ctx context.Context, conn *websocket.Conn, payload protocol.RoomJoinApprovePayload) error {
	resp, err := c.roomService.ApproveJoin(ctx, &service.ResolveJoinParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		RequestId:          payload.RequestId,
	})
	if err != nil {
		c.logger.DebugContext(ctx, "failed to approve join", "error", err)
		return err
	}

	c.writeToConn(ctx, resp.RequesterConn, protocol.EventRoomState, resp.RoomState)
	c.broadcast(ctx, resp.Conns, protocol.EventParticipantJoined, protocol.ParticipantJoinedPayload{
		Participant: resp.Joined,
	})

	return nil
}

func (c controller) handleJoinReject(ctx context.Context, conn *websocket.Conn, payload protocol.RoomJoinRejectPayload) error {
	resp, err := c.roomService.RejectJoin(ctx, &service.ResolveJoinParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		RequestId:          payload.RequestId,
	})
	if err != nil {
		c.logger.DebugContext(ctx, "failed to reject join", "error", err)
		return err
	}

	c.writeToConn(ctx, resp.RequesterConn, protocol.EventRoomJoinRejected, protocol.RoomJoinRejectedPayload{
		Reason: "join request rejected by host",
	})

	return nil
}

func (c controller) handleRoomLeave(ctx context.Context, conn *websocket.Conn, _ protocol.RoomLeavePayload) error {
	resp, err := c.roomService.Disconnect(ctx, conn)
	if err != nil {
		c.logger.DebugContext(ctx, "failed to leave room", "error", err)
		return err
	}

	c.fanOutDeparture(ctx, resp)

	return nil
}

func (c controller) handleRoomEnd(ctx context.Context, conn *websocket.Conn, _ protocol.RoomEndPayload) error {
	resp, err := c.roomService.EndRoom(ctx, connectionIdFromCtx(ctx))
	if err != nil {
		c.logger.DebugContext(ctx, "failed to end room", "error", err)
		return err
	}

	c.broadcast(ctx, resp.Conns, protocol.EventRoomEnded, protocol.RoomEndedPayload{})

	return nil
}

func (c controller) handleHostKick(ctx context.Context, conn *websocket.Conn, payload protocol.HostKickPayload) error {
	resp, err := c.roomService.Kick(ctx, &service.KickParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		TargetUserId:       payload.UserId,
	})
	if err != nil {
		c.logger.DebugContext(ctx, "failed to kick member", "error", err)
		return err
	}

	c.writeToConn(ctx, resp.TargetConn, protocol.EventHostKick, payload)
	c.sender.closeWithCode(resp.TargetConn, closeCodeKicked)

	c.broadcast(ctx, resp.Conns, protocol.EventParticipantLeft, protocol.ParticipantLeftPayload{
		UserId:       resp.TargetUserId,
		ConnectionId: resp.TargetConnectionId,
	})

	return nil
}

func (c controller) handleHostTransfer(ctx context.Context, conn *websocket.Conn, payload protocol.HostTransferPayload) error {
	resp, err := c.roomService.TransferHost(ctx, &service.TransferHostParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		TargetUserId:       payload.UserId,
	})
	if err != nil {
		c.logger.DebugContext(ctx, "failed to transfer host", "error", err)
		return err
	}

	c.broadcast(ctx, resp.Conns, protocol.EventRoomHostChanged, protocol.RoomHostChangedPayload{
		HostId: resp.NewHostId,
	})

	return nil
}

func (c controller) handleHostMuteParticipant(ctx context.Context, conn *websocket.Conn, payload protocol.HostMuteParticipantPayload) error {
	resp, err := c.roomService.ApplyDirective(ctx, &service.DirectiveParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		TargetUserId:       payload.UserId,
		MediaType:          protocol.MediaTypeAudio,
		Enabled:            !payload.Muted,
	})
	if err != nil {
		c.logger.DebugContext(ctx, "failed to apply mute directive", "error", err)
		return err
	}

	c.writeToConn(ctx, resp.TargetConn, protocol.EventHostMuteParticipant, payload)

	return nil
}

func (c controller) handleHostVideoOffParticipant(ctx context.Context, conn *websocket.Conn, payload protocol.HostVideoOffParticipantPayload) error {
	resp, err := c.roomService.ApplyDirective(ctx, &service.DirectiveParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		TargetUserId:       payload.UserId,
		MediaType:          protocol.MediaTypeVideo,
		Enabled:            !payload.VideoOff,
	})
	if err != nil {
		c.logger.DebugContext(ctx, "failed to apply video directive", "error", err)
		return err
	}

	c.writeToConn(ctx, resp.TargetConn, protocol.EventHostVideoOffParticipant, payload)

	return nil
}

func (c controller) handleHostMuteAll(ctx context.Context, conn *websocket.Conn, payload protocol.HostMuteAllPayload) error {
	resp, err := c.roomService.ApplyDirective(ctx, &service.DirectiveParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		MediaType:          protocol.MediaTypeAudio,
		Enabled:            false,
	})
	if err != nil {
		c.logger.DebugContext(ctx, "failed to apply mute-all directive", "error", err)
		return err
	}

	c.broadcast(ctx, resp.Conns, protocol.EventHostMuteAll, payload)

	return nil
}

func (c controller) handleHostVideoOffAll(ctx context.Context, conn *websocket.Conn, payload protocol.HostVideoOffAllPayload) error {
	resp, err := c.roomService.ApplyDirective(ctx, &service.DirectiveParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		MediaType:          protocol.MediaTypeVideo,
		Enabled:            false,
	})
	if err != nil {
		c.logger.DebugContext(ctx, "failed to apply video-off-all directive", "error", err)
		return err
	}

	c.broadcast(ctx, resp.Conns, protocol.EventHostVideoOffAll, payload)

	return nil
}

func (c controller) handleSyncPlay(ctx context.Context, conn *websocket.Conn, payload protocol.SyncPlayPayload) error {
	return c.relayPlayback(ctx, protocol.EventSyncPlay, payload, &service.UpdatePlaybackParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		CurrentTime:        &payload.CurrentTime,
		IsPlaying:          ptr(true),
	})
}

func (c controller) handleSyncPause(ctx context.Context, conn *websocket.Conn, payload protocol.SyncPausePayload) error {
	return c.relayPlayback(ctx, protocol.EventSyncPause, payload, &service.UpdatePlaybackParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		CurrentTime:        &payload.CurrentTime,
		IsPlaying:          ptr(false),
	})
}

func (c controller) handleSyncSeek(ctx context.Context, conn *websocket.Conn, payload protocol.SyncSeekPayload) error {
	return c.relayPlayback(ctx, protocol.EventSyncSeek, payload, &service.UpdatePlaybackParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		CurrentTime:        &payload.CurrentTime,
	})
}

func (c controller) handleSyncSpeed(ctx context.Context, conn *websocket.Conn, payload protocol.SyncSpeedPayload) error {
	return c.relayPlayback(ctx, protocol.EventSyncSpeed, payload, &service.UpdatePlaybackParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		PlaybackRate:       &payload.PlaybackRate,
	})
}

func (c controller) handleSyncBuffering(ctx context.Context, conn *websocket.Conn, payload protocol.SyncBufferingPayload) error {
	return c.relayPlayback(ctx, protocol.EventSyncBuffering, payload, &service.UpdatePlaybackParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		IsBuffering:        &payload.IsBuffering,
	})
}

func (c controller) handleSyncState(ctx context.Context, conn *websocket.Conn, payload protocol.SyncStatePayload) error {
	return c.relayPlayback(ctx, protocol.EventSyncState, payload, &service.UpdatePlaybackParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		CurrentTime:        &payload.CurrentTime,
		IsPlaying:          &payload.IsPlaying,
	})
}

// relayPlayback stores the host's state assertion and rebroadcasts the
// original event to everyone else.
func (c controller) relayPlayback(ctx context.Context, eventType string, payload any, params *service.UpdatePlaybackParams) error {
	resp, err := c.roomService.UpdatePlayback(ctx, params)
	if err != nil {
		c.logger.DebugContext(ctx, "failed to update playback", "type", eventType, "error", err)
		return err
	}

	c.broadcast(ctx, resp.Conns, eventType, payload)

	return nil
}

func (c controller) handleSyncReport(ctx context.Context, conn *websocket.Conn, payload protocol.SyncReportPayload) error {
	resp, err := c.roomService.GetHostConn(ctx, connectionIdFromCtx(ctx))
	if err != nil {
		c.logger.DebugContext(ctx, "failed to resolve host conn", "error", err)
		return err
	}

	c.writeToConn(ctx, resp.HostConn, protocol.EventSyncReport, payload)

	return nil
}

func (c controller) handleMediaStatus(ctx context.Context, conn *websocket.Conn, payload protocol.MediaStatusPayload) error {
	if validationErrors, ok := c.validate.Validate(payload); !ok {
		return fmt.Errorf("validation failed: %v", validationErrors)
	}

	resp, err := c.roomService.UpdateMediaStatus(ctx, &service.UpdateMediaStatusParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		MediaType:          payload.Type,
		Enabled:            payload.Enabled,
	})
	if err != nil {
		c.logger.DebugContext(ctx, "failed to update media status", "error", err)
		return err
	}

	payload.UserId = resp.UserId
	c.broadcast(ctx, resp.Conns, protocol.EventMediaStatus, payload)

	return nil
}

func (c controller) handleSignal(ctx context.Context, conn *websocket.Conn, payload protocol.SignalPayload) error {
	resp, err := c.roomService.RelaySignal(ctx, &service.RelaySignalParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		To:                 payload.To,
	})
	if err != nil {
		c.logger.DebugContext(ctx, "failed to relay signal", "error", err)
		return err
	}

	// the sender address comes from the connection, not the payload
	payload.From = connectionIdFromCtx(ctx)
	c.writeToConn(ctx, resp.TargetConn, protocol.EventSignal, payload)

	return nil
}

func (c controller) handleChatMessage(ctx context.Context, conn *websocket.Conn, payload protocol.ChatMessagePayload) error {
	if validationErrors, ok := c.validate.Validate(payload); !ok {
		return fmt.Errorf("validation failed: %v", validationErrors)
	}

	payload.Id = uuid.NewString()
	payload.Timestamp = time.Now().UnixMilli()

	resp, err := c.roomService.BroadcastChat(ctx, &service.BroadcastChatParams{
		SenderConnectionId: connectionIdFromCtx(ctx),
		Message:            payload,
	})
	if err != nil {
		c.logger.DebugContext(ctx, "failed to broadcast chat message", "error", err)
		return err
	}

	c.broadcast(ctx, resp.Conns, protocol.EventChatMessage, resp.Message)

	return nil
}

// fanOutDeparture notifies the remaining members after a member leaves or
// drops, including the host handover when one happened.
func (c controller) fanOutDeparture(ctx context.Context, resp service.DisconnectResponse) {
	if !resp.WasInRoom || resp.IsRoomDeleted {
		return
	}

	c.broadcast(ctx, resp.Conns, protocol.EventParticipantLeft, protocol.ParticipantLeftPayload{
		UserId:       resp.UserId,
		ConnectionId: resp.ConnectionId,
	})

	if resp.NewHostId != "" {
		c.broadcast(ctx, resp.Conns, protocol.EventRoomHostChanged, protocol.RoomHostChangedPayload{
			HostId: resp.NewHostId,
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}
