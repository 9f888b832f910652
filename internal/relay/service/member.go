package service

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/castly/watchparty/internal/protocol"
	"github.com/castly/watchparty/internal/relay/repository/room"
)

type RelaySignalParams struct {
	SenderConnectionId string
	To                 string
}

type RelaySignalResponse struct {
	TargetConn *websocket.Conn
}

// RelaySignal resolves the addressed connection. The payload itself is
// forwarded opaque by the controller.
func (s *service) RelaySignal(ctx context.Context, params *RelaySignalParams) (RelaySignalResponse, error) {
	targetConn, err := s.connRepo.GetConn(params.To)
	if err != nil {
		return RelaySignalResponse{}, fmt.Errorf("failed to get target conn: %w", err)
	}

	return RelaySignalResponse{TargetConn: targetConn}, nil
}

type UpdateMediaStatusParams struct {
	SenderConnectionId string
	MediaType          string
	Enabled            bool
}

type UpdateMediaStatusResponse struct {
	UserId string
	Conns  []*websocket.Conn
}

func (s *service) UpdateMediaStatus(ctx context.Context, params *UpdateMediaStatusParams) (UpdateMediaStatusResponse, error) {
	member, err := s.roomRepo.GetMember(ctx, params.SenderConnectionId)
	if err != nil {
		return UpdateMediaStatusResponse{}, fmt.Errorf("failed to get member: %w", err)
	}

	if err := s.roomRepo.UpdateMemberMedia(ctx, &room.UpdateMemberMediaParams{
		ConnectionId: params.SenderConnectionId,
		MediaType:    params.MediaType,
		Enabled:      params.Enabled,
	}); err != nil {
		return UpdateMediaStatusResponse{}, fmt.Errorf("failed to update member media: %w", err)
	}

	conns, err := s.getConnsExcept(ctx, member.RoomId, params.SenderConnectionId)
	if err != nil {
		return UpdateMediaStatusResponse{}, err
	}

	return UpdateMediaStatusResponse{UserId: member.UserId, Conns: conns}, nil
}

type DirectiveParams struct {
	SenderConnectionId string
	TargetUserId       string // empty for bulk directives
	MediaType          string
	Enabled            bool
}

type DirectiveResponse struct {
	// TargetConn is set for a single-target directive; Conns holds every
	// non-host member for a bulk one.
	TargetConn *websocket.Conn
	Conns      []*websocket.Conn
}

// ApplyDirective validates host authority and resolves who must receive
// the compliance order. The stored badge flags are updated eagerly; the
// target confirms with its own media:status on compliance.
func (s *service) ApplyDirective(ctx context.Context, params *DirectiveParams) (DirectiveResponse, error) {
	roomId, err := s.checkIfHost(ctx, params.SenderConnectionId)
	if err != nil {
		return DirectiveResponse{}, fmt.Errorf("failed to check host: %w", err)
	}

	if params.TargetUserId != "" {
		targetConnId, err := s.getConnIdByUserId(ctx, roomId, params.TargetUserId)
		if err != nil {
			return DirectiveResponse{}, err
		}
		targetConn, err := s.connRepo.GetConn(targetConnId)
		if err != nil {
			return DirectiveResponse{}, fmt.Errorf("failed to get target conn: %w", err)
		}

		if err := s.roomRepo.UpdateMemberMedia(ctx, &room.UpdateMemberMediaParams{
			ConnectionId: targetConnId,
			MediaType:    params.MediaType,
			Enabled:      params.Enabled,
		}); err != nil {
			return DirectiveResponse{}, fmt.Errorf("failed to update member media: %w", err)
		}

		return DirectiveResponse{TargetConn: targetConn}, nil
	}

	connectionIds, err := s.roomRepo.GetMemberConnectionIds(ctx, roomId)
	if err != nil {
		return DirectiveResponse{}, fmt.Errorf("failed to get member list: %w", err)
	}

	conns := make([]*websocket.Conn, 0, len(connectionIds))
	for _, connectionId := range connectionIds {
		if connectionId == params.SenderConnectionId {
			continue
		}
		s.roomRepo.UpdateMemberMedia(ctx, &room.UpdateMemberMediaParams{
			ConnectionId: connectionId,
			MediaType:    params.MediaType,
			Enabled:      params.Enabled,
		})
		conn, err := s.connRepo.GetConn(connectionId)
		if err != nil {
			continue
		}
		conns = append(conns, conn)
	}

	return DirectiveResponse{Conns: conns}, nil
}

type BroadcastChatParams struct {
	SenderConnectionId string
	Message            protocol.ChatMessagePayload
}

type BroadcastChatResponse struct {
	Message protocol.ChatMessagePayload
	Conns   []*websocket.Conn
}

func (s *service) BroadcastChat(ctx context.Context, params *BroadcastChatParams) (BroadcastChatResponse, error) {
	member, err := s.roomRepo.GetMember(ctx, params.SenderConnectionId)
	if err != nil {
		return BroadcastChatResponse{}, fmt.Errorf("failed to get member: %w", err)
	}

	// sender identity comes from the connection, not the payload
	message := params.Message
	message.SenderId = member.UserId
	message.SenderName = member.Username

	conns, err := s.getConnsExcept(ctx, member.RoomId, "")
	if err != nil {
		return BroadcastChatResponse{}, err
	}

	return BroadcastChatResponse{Message: message, Conns: conns}, nil
}
