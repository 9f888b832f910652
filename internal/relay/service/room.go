package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/castly/watchparty/internal/protocol"
	"github.com/castly/watchparty/internal/relay/repository/room"
)

type JoinRoomParams struct {
	ConnectionId    string
	RoomId          string
	Profile         protocol.Profile
	AsHost          bool
	RequireApproval bool
	Content         *protocol.ContentRef
}

type JoinRoomResponse struct {
	// Pending is true when the join awaits host approval; only HostConn
	// and Request are set then.
	Pending  bool
	HostConn *websocket.Conn
	Request  protocol.RoomJoinRequestPayload

	RoomId    string
	RoomState protocol.RoomStatePayload
	Joined    protocol.Participant
	Conns     []*websocket.Conn
}

func (s *service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	if params.AsHost {
		return s.createRoom(ctx, params)
	}

	roomId := params.RoomId
	rm, err := s.roomRepo.GetRoom(ctx, roomId)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	if rm.RequireApproval {
		return s.createJoinRequest(ctx, params, rm.HostId)
	}

	return s.admitMember(ctx, roomId, params.ConnectionId, params.Profile)
}

func (s *service) createRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	roomId := params.RoomId
	if roomId == "" {
		roomId = s.generator.GenerateRandomString(8)
	}

	setRoomParams := room.SetRoomParams{
		RoomId:          roomId,
		HostId:          params.Profile.UserId,
		RequireApproval: params.RequireApproval,
	}
	if params.Content != nil {
		setRoomParams.ContentId = params.Content.ContentId
		setRoomParams.Title = params.Content.Title
		setRoomParams.Season = params.Content.Season
		setRoomParams.Episode = params.Content.Episode
	}
	if err := s.roomRepo.SetRoom(ctx, &setRoomParams); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to set room: %w", err)
	}

	return s.admitMember(ctx, roomId, params.ConnectionId, params.Profile)
}

func (s *service) createJoinRequest(ctx context.Context, params *JoinRoomParams, hostId string) (JoinRoomResponse, error) {
	hostConnId, err := s.getConnIdByUserId(ctx, params.RoomId, hostId)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to find host: %w", err)
	}
	hostConn, err := s.connRepo.GetConn(hostConnId)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to get host conn: %w", err)
	}

	requestId := uuid.NewString()
	if err := s.roomRepo.SetJoinRequest(ctx, &room.SetJoinRequestParams{
		RequestId:    requestId,
		RoomId:       params.RoomId,
		ConnectionId: params.ConnectionId,
		UserId:       params.Profile.UserId,
		Username:     params.Profile.Username,
		AvatarURL:    params.Profile.AvatarURL,
	}); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to set join request: %w", err)
	}

	s.pendingMu.Lock()
	s.pending[params.ConnectionId] = pendingRequest{roomId: params.RoomId, requestId: requestId}
	s.pendingMu.Unlock()

	return JoinRoomResponse{
		Pending:  true,
		HostConn: hostConn,
		Request: protocol.RoomJoinRequestPayload{
			RequestId:    requestId,
			ConnectionId: params.ConnectionId,
			Profile:      params.Profile,
		},
	}, nil
}

func (s *service) admitMember(ctx context.Context, roomId, connectionId string, profile protocol.Profile) (JoinRoomResponse, error) {
	if err := s.roomRepo.SetMember(ctx, &room.SetMemberParams{
		ConnectionId: connectionId,
		UserId:       profile.UserId,
		Username:     profile.Username,
		AvatarURL:    profile.AvatarURL,
		RoomId:       roomId,
		AudioEnabled: true,
		VideoEnabled: true,
	}); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to set member: %w", err)
	}

	roomState, err := s.buildRoomState(ctx, roomId)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	conns, err := s.getConnsExcept(ctx, roomId, connectionId)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	hostId, _ := s.roomRepo.GetRoomHostId(ctx, roomId)
	return JoinRoomResponse{
		RoomId:    roomId,
		RoomState: roomState,
		Joined: protocol.Participant{
			UserId:       profile.UserId,
			ConnectionId: connectionId,
			Username:     profile.Username,
			AvatarURL:    profile.AvatarURL,
			IsHost:       profile.UserId == hostId,
			AudioEnabled: true,
			VideoEnabled: true,
		},
		Conns: conns,
	}, nil
}

type ResolveJoinParams struct {
	SenderConnectionId string
	RequestId          string
}

type ResolveJoinResponse struct {
	RequesterConn *websocket.Conn

	// set on approval only
	RoomState protocol.RoomStatePayload
	Joined    protocol.Participant
	Conns     []*websocket.Conn
}

func (s *service) ApproveJoin(ctx context.Context, params *ResolveJoinParams) (ResolveJoinResponse, error) {
	roomId, err := s.checkIfHost(ctx, params.SenderConnectionId)
	if err != nil {
		return ResolveJoinResponse{}, fmt.Errorf("failed to check host: %w", err)
	}

	request, err := s.roomRepo.GetJoinRequest(ctx, params.RequestId)
	if err != nil {
		return ResolveJoinResponse{}, fmt.Errorf("failed to get join request: %w", err)
	}
	if request.RoomId != roomId {
		return ResolveJoinResponse{}, ErrPermissionDenied
	}

	requesterConn, err := s.connRepo.GetConn(request.ConnectionId)
	if err != nil {
		// requester disconnected; the request is abandoned
		s.roomRepo.RemoveJoinRequest(ctx, roomId, params.RequestId)
		return ResolveJoinResponse{}, fmt.Errorf("failed to get requester conn: %w", err)
	}

	if err := s.roomRepo.RemoveJoinRequest(ctx, roomId, params.RequestId); err != nil {
		return ResolveJoinResponse{}, fmt.Errorf("failed to remove join request: %w", err)
	}
	s.clearPending(request.ConnectionId)

	joinResp, err := s.admitMember(ctx, roomId, request.ConnectionId, protocol.Profile{
		UserId:    request.UserId,
		Username:  request.Username,
		AvatarURL: request.AvatarURL,
	})
	if err != nil {
		return ResolveJoinResponse{}, err
	}

	return ResolveJoinResponse{
		RequesterConn: requesterConn,
		RoomState:     joinResp.RoomState,
		Joined:        joinResp.Joined,
		Conns:         joinResp.Conns,
	}, nil
}

func (s *service) RejectJoin(ctx context.Context, params *ResolveJoinParams) (ResolveJoinResponse, error) {
	roomId, err := s.checkIfHost(ctx, params.SenderConnectionId)
	if err != nil {
		return ResolveJoinResponse{}, fmt.Errorf("failed to check host: %w", err)
	}

	request, err := s.roomRepo.GetJoinRequest(ctx, params.RequestId)
	if err != nil {
		return ResolveJoinResponse{}, fmt.Errorf("failed to get join request: %w", err)
	}
	if request.RoomId != roomId {
		return ResolveJoinResponse{}, ErrPermissionDenied
	}

	if err := s.roomRepo.RemoveJoinRequest(ctx, roomId, params.RequestId); err != nil {
		return ResolveJoinResponse{}, fmt.Errorf("failed to remove join request: %w", err)
	}
	s.clearPending(request.ConnectionId)

	requesterConn, err := s.connRepo.GetConn(request.ConnectionId)
	if err != nil {
		return ResolveJoinResponse{}, fmt.Errorf("failed to get requester conn: %w", err)
	}

	return ResolveJoinResponse{RequesterConn: requesterConn}, nil
}

type DisconnectResponse struct {
	WasInRoom     bool
	RoomId        string
	UserId        string
	ConnectionId  string
	IsRoomDeleted bool
	// NewHostId is set when the leaver held host authority and it was
	// handed to the earliest-joined remaining participant.
	NewHostId string
	Conns     []*websocket.Conn
}

// Disconnect handles both an explicit leave and a dropped connection.
func (s *service) Disconnect(ctx context.Context, conn *websocket.Conn) (DisconnectResponse, error) {
	connectionId, err := s.connRepo.GetConnectionId(conn)
	if err != nil {
		return DisconnectResponse{}, fmt.Errorf("failed to get connection id: %w", err)
	}
	defer s.connRepo.RemoveByConn(conn)

	// a disconnecting requester abandons its pending join request
	s.pendingMu.Lock()
	if pending, ok := s.pending[connectionId]; ok {
		delete(s.pending, connectionId)
		s.pendingMu.Unlock()
		s.roomRepo.RemoveJoinRequest(ctx, pending.roomId, pending.requestId)
		return DisconnectResponse{ConnectionId: connectionId}, nil
	}
	s.pendingMu.Unlock()

	member, err := s.roomRepo.GetMember(ctx, connectionId)
	if err != nil {
		if errors.Is(err, room.ErrMemberNotFound) {
			return DisconnectResponse{ConnectionId: connectionId}, nil
		}
		return DisconnectResponse{}, fmt.Errorf("failed to get member: %w", err)
	}

	if err := s.roomRepo.RemoveMember(ctx, &room.RemoveMemberParams{
		ConnectionId: connectionId,
		RoomId:       member.RoomId,
	}); err != nil {
		return DisconnectResponse{}, fmt.Errorf("failed to remove member: %w", err)
	}

	resp := DisconnectResponse{
		WasInRoom:    true,
		RoomId:       member.RoomId,
		UserId:       member.UserId,
		ConnectionId: connectionId,
	}

	remaining, err := s.roomRepo.GetMemberConnectionIds(ctx, member.RoomId)
	if err != nil {
		return DisconnectResponse{}, fmt.Errorf("failed to get member list: %w", err)
	}
	if len(remaining) == 0 {
		if err := s.roomRepo.RemoveRoom(ctx, member.RoomId); err != nil {
			return DisconnectResponse{}, fmt.Errorf("failed to remove room: %w", err)
		}
		resp.IsRoomDeleted = true
		return resp, nil
	}

	hostId, err := s.roomRepo.GetRoomHostId(ctx, member.RoomId)
	if err != nil {
		return DisconnectResponse{}, fmt.Errorf("failed to get host id: %w", err)
	}
	if hostId == member.UserId {
		// the list is join-ordered; the earliest remaining member becomes host
		newHost, err := s.roomRepo.GetMember(ctx, remaining[0])
		if err != nil {
			return DisconnectResponse{}, fmt.Errorf("failed to get new host: %w", err)
		}
		if err := s.roomRepo.SetRoomHostId(ctx, member.RoomId, newHost.UserId); err != nil {
			return DisconnectResponse{}, fmt.Errorf("failed to set host id: %w", err)
		}
		resp.NewHostId = newHost.UserId
	}

	conns, err := s.getConnsExcept(ctx, member.RoomId, connectionId)
	if err != nil {
		return DisconnectResponse{}, err
	}
	resp.Conns = conns

	return resp, nil
}

type KickParams struct {
	SenderConnectionId string
	TargetUserId       string
}

type KickResponse struct {
	TargetConn         *websocket.Conn
	TargetConnectionId string
	TargetUserId       string
	Conns              []*websocket.Conn
}

func (s *service) Kick(ctx context.Context, params *KickParams) (KickResponse, error) {
	roomId, err := s.checkIfHost(ctx, params.SenderConnectionId)
	if err != nil {
		return KickResponse{}, fmt.Errorf("failed to check host: %w", err)
	}

	targetConnId, err := s.getConnIdByUserId(ctx, roomId, params.TargetUserId)
	if err != nil {
		return KickResponse{}, err
	}
	targetConn, err := s.connRepo.GetConn(targetConnId)
	if err != nil {
		return KickResponse{}, fmt.Errorf("failed to get target conn: %w", err)
	}

	if err := s.roomRepo.RemoveMember(ctx, &room.RemoveMemberParams{
		ConnectionId: targetConnId,
		RoomId:       roomId,
	}); err != nil {
		return KickResponse{}, fmt.Errorf("failed to remove member: %w", err)
	}

	conns, err := s.getConnsExcept(ctx, roomId, targetConnId)
	if err != nil {
		return KickResponse{}, err
	}

	return KickResponse{
		TargetConn:         targetConn,
		TargetConnectionId: targetConnId,
		TargetUserId:       params.TargetUserId,
		Conns:              conns,
	}, nil
}

type TransferHostParams struct {
	SenderConnectionId string
	TargetUserId       string
}

type TransferHostResponse struct {
	NewHostId string
	Conns     []*websocket.Conn
}

func (s *service) TransferHost(ctx context.Context, params *TransferHostParams) (TransferHostResponse, error) {
	roomId, err := s.checkIfHost(ctx, params.SenderConnectionId)
	if err != nil {
		return TransferHostResponse{}, fmt.Errorf("failed to check host: %w", err)
	}

	if _, err := s.getConnIdByUserId(ctx, roomId, params.TargetUserId); err != nil {
		return TransferHostResponse{}, err
	}

	if err := s.roomRepo.SetRoomHostId(ctx, roomId, params.TargetUserId); err != nil {
		return TransferHostResponse{}, fmt.Errorf("failed to set host id: %w", err)
	}

	conns, err := s.getConnsExcept(ctx, roomId, "")
	if err != nil {
		return TransferHostResponse{}, err
	}

	return TransferHostResponse{NewHostId: params.TargetUserId, Conns: conns}, nil
}

type EndRoomResponse struct {
	Conns []*websocket.Conn
}

func (s *service) EndRoom(ctx context.Context, senderConnectionId string) (EndRoomResponse, error) {
	roomId, err := s.checkIfHost(ctx, senderConnectionId)
	if err != nil {
		return EndRoomResponse{}, fmt.Errorf("failed to check host: %w", err)
	}

	conns, err := s.getConnsExcept(ctx, roomId, "")
	if err != nil {
		return EndRoomResponse{}, err
	}

	connectionIds, err := s.roomRepo.GetMemberConnectionIds(ctx, roomId)
	if err != nil {
		return EndRoomResponse{}, fmt.Errorf("failed to get member list: %w", err)
	}
	for _, connectionId := range connectionIds {
		s.roomRepo.RemoveMember(ctx, &room.RemoveMemberParams{
			ConnectionId: connectionId,
			RoomId:       roomId,
		})
	}

	if err := s.roomRepo.RemoveRoom(ctx, roomId); err != nil {
		return EndRoomResponse{}, fmt.Errorf("failed to remove room: %w", err)
	}

	return EndRoomResponse{Conns: conns}, nil
}

func (s *service) clearPending(connectionId string) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	delete(s.pending, connectionId)
}
