// Package service implements the relay's room logic: admission, roster
// fan-out, host-authority enforcement and playback-state bookkeeping.
// Host-only operations are rejected here, on the relay side; clients
// only hide the affordance.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/castly/watchparty/internal/protocol"
	"github.com/castly/watchparty/internal/relay/repository/room"
	"github.com/castly/watchparty/pkg/randstr"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrRoomNotFound     = errors.New("room not found")
	ErrMemberNotFound   = errors.New("member not found")
)

type iRoomRepo interface {
	// room
	SetRoom(context.Context, *room.SetRoomParams) error
	GetRoom(context.Context, string) (room.Room, error)
	SetRoomHostId(ctx context.Context, roomId, hostId string) error
	GetRoomHostId(context.Context, string) (string, error)
	RemoveRoom(context.Context, string) error
	// playback
	SetPlayback(context.Context, *room.SetPlaybackParams) error
	GetPlayback(context.Context, string) (room.Playback, error)
	// member
	SetMember(context.Context, *room.SetMemberParams) error
	GetMember(context.Context, string) (room.Member, error)
	GetMemberConnectionIds(context.Context, string) ([]string, error)
	RemoveMember(context.Context, *room.RemoveMemberParams) error
	UpdateMemberMedia(context.Context, *room.UpdateMemberMediaParams) error
	// join request
	SetJoinRequest(context.Context, *room.SetJoinRequestParams) error
	GetJoinRequest(context.Context, string) (room.JoinRequest, error)
	RemoveJoinRequest(ctx context.Context, roomId, requestId string) error
}

type iConnRepo interface {
	Add(*websocket.Conn, string) error
	RemoveByConn(*websocket.Conn) error
	RemoveByConnectionId(string) error
	GetConnectionId(*websocket.Conn) (string, error)
	GetConn(string) (*websocket.Conn, error)
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

type pendingRequest struct {
	roomId    string
	requestId string
}

type service struct {
	roomRepo  iRoomRepo
	connRepo  iConnRepo
	generator iGenerator
	logger    *slog.Logger

	// requesters are not members yet, so their room binding lives here
	// until approval, rejection or disconnect
	pendingMu sync.Mutex
	pending   map[string]pendingRequest // keyed by connection id
}

func NewService(roomRepo iRoomRepo, connRepo iConnRepo, logger *slog.Logger) *service {
	letterBytes := []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

	return &service{
		roomRepo:  roomRepo,
		connRepo:  connRepo,
		generator: randstr.New(letterBytes),
		logger:    logger,
		pending:   make(map[string]pendingRequest),
	}
}

func (s *service) ConnectMember(conn *websocket.Conn, connectionId string) error {
	return s.connRepo.Add(conn, connectionId)
}

// checkIfHost verifies the sender holds host authority in its room and
// returns the room id.
func (s *service) checkIfHost(ctx context.Context, senderConnectionId string) (string, error) {
	member, err := s.roomRepo.GetMember(ctx, senderConnectionId)
	if err != nil {
		return "", fmt.Errorf("failed to get member: %w", err)
	}

	hostId, err := s.roomRepo.GetRoomHostId(ctx, member.RoomId)
	if err != nil {
		return "", fmt.Errorf("failed to get host id: %w", err)
	}

	if member.UserId != hostId {
		return "", ErrPermissionDenied
	}

	return member.RoomId, nil
}

func (s *service) buildRoomState(ctx context.Context, roomId string) (protocol.RoomStatePayload, error) {
	rm, err := s.roomRepo.GetRoom(ctx, roomId)
	if err != nil {
		return protocol.RoomStatePayload{}, fmt.Errorf("failed to get room: %w", err)
	}

	playback, err := s.roomRepo.GetPlayback(ctx, roomId)
	if err != nil {
		return protocol.RoomStatePayload{}, fmt.Errorf("failed to get playback: %w", err)
	}

	connectionIds, err := s.roomRepo.GetMemberConnectionIds(ctx, roomId)
	if err != nil {
		return protocol.RoomStatePayload{}, fmt.Errorf("failed to get member list: %w", err)
	}

	participants := make([]protocol.Participant, 0, len(connectionIds))
	for _, connectionId := range connectionIds {
		member, err := s.roomRepo.GetMember(ctx, connectionId)
		if err != nil {
			continue
		}
		participants = append(participants, protocol.Participant{
			UserId:       member.UserId,
			ConnectionId: connectionId,
			Username:     member.Username,
			AvatarURL:    member.AvatarURL,
			IsHost:       member.UserId == rm.HostId,
			AudioEnabled: member.AudioEnabled,
			VideoEnabled: member.VideoEnabled,
		})
	}

	return protocol.RoomStatePayload{
		RoomId:       roomId,
		HostId:       rm.HostId,
		Participants: participants,
		Playback: protocol.PlaybackState{
			CurrentTime:  playback.CurrentTime,
			IsPlaying:    playback.IsPlaying,
			PlaybackRate: playback.PlaybackRate,
			IsBuffering:  playback.IsBuffering,
		},
		Content: protocol.ContentRef{
			ContentId: rm.ContentId,
			Title:     rm.Title,
			Season:    rm.Season,
			Episode:   rm.Episode,
		},
	}, nil
}

func (s *service) getConnsExcept(ctx context.Context, roomId, exceptConnectionId string) ([]*websocket.Conn, error) {
	connectionIds, err := s.roomRepo.GetMemberConnectionIds(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("failed to get member list: %w", err)
	}

	conns := make([]*websocket.Conn, 0, len(connectionIds))
	for _, connectionId := range connectionIds {
		if connectionId == exceptConnectionId {
			continue
		}
		conn, err := s.connRepo.GetConn(connectionId)
		if err != nil {
			continue
		}
		conns = append(conns, conn)
	}

	return conns, nil
}

func (s *service) getConnIdByUserId(ctx context.Context, roomId, userId string) (string, error) {
	connectionIds, err := s.roomRepo.GetMemberConnectionIds(ctx, roomId)
	if err != nil {
		return "", fmt.Errorf("failed to get member list: %w", err)
	}

	for _, connectionId := range connectionIds {
		member, err := s.roomRepo.GetMember(ctx, connectionId)
		if err != nil {
			continue
		}
		if member.UserId == userId {
			return connectionId, nil
		}
	}

	return "", ErrMemberNotFound
}
