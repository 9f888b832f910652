package service

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

type GetHostConnResponse struct {
	HostConn *websocket.Conn
}

// GetHostConn resolves the sender's room host, so guest time reports can
// be forwarded to the host-side drift monitor.
func (s *service) GetHostConn(ctx context.Context, senderConnectionId string) (GetHostConnResponse, error) {
	member, err := s.roomRepo.GetMember(ctx, senderConnectionId)
	if err != nil {
		return GetHostConnResponse{}, fmt.Errorf("failed to get member: %w", err)
	}

	hostId, err := s.roomRepo.GetRoomHostId(ctx, member.RoomId)
	if err != nil {
		return GetHostConnResponse{}, fmt.Errorf("failed to get host id: %w", err)
	}

	hostConnId, err := s.getConnIdByUserId(ctx, member.RoomId, hostId)
	if err != nil {
		return GetHostConnResponse{}, err
	}

	hostConn, err := s.connRepo.GetConn(hostConnId)
	if err != nil {
		return GetHostConnResponse{}, fmt.Errorf("failed to get host conn: %w", err)
	}

	return GetHostConnResponse{HostConn: hostConn}, nil
}
