package service

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castly/watchparty/internal/protocol"
	"github.com/castly/watchparty/internal/relay/repository/connection/inmemory"
	roomRedis "github.com/castly/watchparty/internal/relay/repository/room/redis"
)

func newTestService(t *testing.T) *service {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	roomRepo := roomRedis.NewRepo(rc, slog.Default())
	connRepo := inmemory.NewRepo()
	return NewService(roomRepo, connRepo, slog.Default())
}

func profile(userId string) protocol.Profile {
	return protocol.Profile{UserId: userId, Username: "user-" + userId}
}

// connSeq makes each fake conn distinguishable: zero-value Conns are
// otherwise equal under reflect.DeepEqual, which breaks Contains-style
// assertions that compare by value rather than pointer identity.
var connSeq int64

// connect registers a fresh fake connection under the given connection id.
func connect(t *testing.T, s *service, connectionId string) *websocket.Conn {
	t.Helper()
	conn := &websocket.Conn{}
	connSeq++
	conn.SetReadLimit(connSeq)
	require.NoError(t, s.ConnectMember(conn, connectionId))
	return conn
}

func createHostedRoom(t *testing.T, s *service, requireApproval bool) (string, *websocket.Conn) {
	t.Helper()
	hostConn := connect(t, s, "conn-host")
	resp, err := s.JoinRoom(context.Background(), &JoinRoomParams{
		ConnectionId:    "conn-host",
		Profile:         profile("host"),
		AsHost:          true,
		RequireApproval: requireApproval,
		Content:         &protocol.ContentRef{ContentId: "tt0133093", Title: "The Matrix"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.RoomId)
	return resp.RoomId, hostConn
}

func admitGuest(t *testing.T, s *service, roomId, connectionId, userId string) *websocket.Conn {
	t.Helper()
	conn := connect(t, s, connectionId)
	resp, err := s.JoinRoom(context.Background(), &JoinRoomParams{
		ConnectionId: connectionId,
		RoomId:       roomId,
		Profile:      profile(userId),
	})
	require.NoError(t, err)
	require.False(t, resp.Pending)
	return conn
}

func TestCreateRoomAndJoin(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	roomId, hostConn := createHostedRoom(t, s, false)
	assert.Len(t, roomId, 8, "a generated room code is 8 characters")

	connect(t, s, "conn-g1")
	resp, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-g1",
		RoomId:       roomId,
		Profile:      profile("g1"),
	})
	require.NoError(t, err)

	assert.False(t, resp.Pending)
	assert.Equal(t, roomId, resp.RoomState.RoomId)
	assert.Equal(t, "host", resp.RoomState.HostId)
	assert.Equal(t, "The Matrix", resp.RoomState.Content.Title)
	require.Len(t, resp.RoomState.Participants, 2)
	assert.InDelta(t, 1.0, resp.RoomState.Playback.PlaybackRate, 0.001)

	// new members start paused at the stored position
	assert.False(t, resp.RoomState.Playback.IsPlaying)

	assert.False(t, resp.Joined.IsHost)
	require.Len(t, resp.Conns, 1)
	assert.Same(t, hostConn, resp.Conns[0])
}

func TestJoinUnknownRoomFails(t *testing.T) {
	s := newTestService(t)
	connect(t, s, "conn-g1")

	_, err := s.JoinRoom(context.Background(), &JoinRoomParams{
		ConnectionId: "conn-g1",
		RoomId:       "nope1234",
		Profile:      profile("g1"),
	})
	assert.Error(t, err)
}

func TestHostOnlyOperationsRejectGuests(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	roomId, _ := createHostedRoom(t, s, false)
	admitGuest(t, s, roomId, "conn-g1", "g1")

	_, err := s.UpdatePlayback(ctx, &UpdatePlaybackParams{SenderConnectionId: "conn-g1"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = s.Kick(ctx, &KickParams{SenderConnectionId: "conn-g1", TargetUserId: "host"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = s.TransferHost(ctx, &TransferHostParams{SenderConnectionId: "conn-g1", TargetUserId: "g1"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = s.EndRoom(ctx, "conn-g1")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = s.ApplyDirective(ctx, &DirectiveParams{SenderConnectionId: "conn-g1", MediaType: "audio"})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestApprovalFlow(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	roomId, hostConn := createHostedRoom(t, s, true)

	connect(t, s, "conn-g1")
	joinResp, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-g1",
		RoomId:       roomId,
		Profile:      profile("g1"),
	})
	require.NoError(t, err)

	require.True(t, joinResp.Pending)
	assert.Same(t, hostConn, joinResp.HostConn)
	assert.NotEmpty(t, joinResp.Request.RequestId)
	assert.Equal(t, "g1", joinResp.Request.Profile.UserId)

	// the requester is not a member until the host approves
	state, err := s.buildRoomState(ctx, roomId)
	require.NoError(t, err)
	assert.Len(t, state.Participants, 1)

	approveResp, err := s.ApproveJoin(ctx, &ResolveJoinParams{
		SenderConnectionId: "conn-host",
		RequestId:          joinResp.Request.RequestId,
	})
	require.NoError(t, err)

	assert.Equal(t, "g1", approveResp.Joined.UserId)
	assert.Len(t, approveResp.RoomState.Participants, 2)
}

func TestRejectFlow(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	roomId, _ := createHostedRoom(t, s, true)

	requesterConn := connect(t, s, "conn-g1")
	joinResp, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-g1",
		RoomId:       roomId,
		Profile:      profile("g1"),
	})
	require.NoError(t, err)
	require.True(t, joinResp.Pending)

	rejectResp, err := s.RejectJoin(ctx, &ResolveJoinParams{
		SenderConnectionId: "conn-host",
		RequestId:          joinResp.Request.RequestId,
	})
	require.NoError(t, err)
	assert.Same(t, requesterConn, rejectResp.RequesterConn)

	state, err := s.buildRoomState(ctx, roomId)
	require.NoError(t, err)
	assert.Len(t, state.Participants, 1, "a rejected requester never becomes a member")

	// the request is consumed; resolving it twice fails
	_, err = s.RejectJoin(ctx, &ResolveJoinParams{
		SenderConnectionId: "conn-host",
		RequestId:          joinResp.Request.RequestId,
	})
	assert.Error(t, err)
}

func TestDisconnectingRequesterAbandonsRequest(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	roomId, _ := createHostedRoom(t, s, true)

	requesterConn := connect(t, s, "conn-g1")
	joinResp, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-g1",
		RoomId:       roomId,
		Profile:      profile("g1"),
	})
	require.NoError(t, err)
	require.True(t, joinResp.Pending)

	dcResp, err := s.Disconnect(ctx, requesterConn)
	require.NoError(t, err)
	assert.False(t, dcResp.WasInRoom)

	_, err = s.ApproveJoin(ctx, &ResolveJoinParams{
		SenderConnectionId: "conn-host",
		RequestId:          joinResp.Request.RequestId,
	})
	assert.Error(t, err, "an abandoned request cannot be approved")
}

func TestKickRemovesMember(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	roomId, hostConn := createHostedRoom(t, s, false)
	targetConn := admitGuest(t, s, roomId, "conn-g1", "g1")
	admitGuest(t, s, roomId, "conn-g2", "g2")

	resp, err := s.Kick(ctx, &KickParams{
		SenderConnectionId: "conn-host",
		TargetUserId:       "g1",
	})
	require.NoError(t, err)

	assert.Same(t, targetConn, resp.TargetConn)
	assert.Equal(t, "conn-g1", resp.TargetConnectionId)
	assert.NotContains(t, resp.Conns, targetConn)
	assert.Contains(t, resp.Conns, hostConn)

	state, err := s.buildRoomState(ctx, roomId)
	require.NoError(t, err)
	assert.Len(t, state.Participants, 2)
}

func TestTransferHostMovesAuthority(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	roomId, _ := createHostedRoom(t, s, false)
	admitGuest(t, s, roomId, "conn-g1", "g1")

	resp, err := s.TransferHost(ctx, &TransferHostParams{
		SenderConnectionId: "conn-host",
		TargetUserId:       "g1",
	})
	require.NoError(t, err)
	assert.Equal(t, "g1", resp.NewHostId)
	assert.Len(t, resp.Conns, 2, "everyone hears about the handover, old host included")

	currentTime := 10.0
	_, err = s.UpdatePlayback(ctx, &UpdatePlaybackParams{
		SenderConnectionId: "conn-host",
		CurrentTime:        &currentTime,
	})
	assert.ErrorIs(t, err, ErrPermissionDenied, "the former host lost playback authority")

	_, err = s.UpdatePlayback(ctx, &UpdatePlaybackParams{
		SenderConnectionId: "conn-g1",
		CurrentTime:        &currentTime,
	})
	assert.NoError(t, err)
}

func TestTransferToUnknownMemberFails(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	createHostedRoom(t, s, false)

	_, err := s.TransferHost(ctx, &TransferHostParams{
		SenderConnectionId: "conn-host",
		TargetUserId:       "ghost",
	})
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestHostLeavePromotesEarliestJoined(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	roomId, hostConn := createHostedRoom(t, s, false)
	admitGuest(t, s, roomId, "conn-g1", "g1")
	admitGuest(t, s, roomId, "conn-g2", "g2")

	resp, err := s.Disconnect(ctx, hostConn)
	require.NoError(t, err)

	assert.True(t, resp.WasInRoom)
	assert.False(t, resp.IsRoomDeleted)
	assert.Equal(t, "g1", resp.NewHostId, "the earliest-joined remaining member becomes host")
	assert.Len(t, resp.Conns, 2)

	state, err := s.buildRoomState(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, "g1", state.HostId)
}

func TestGuestLeaveKeepsHost(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	roomId, _ := createHostedRoom(t, s, false)
	guestConn := admitGuest(t, s, roomId, "conn-g1", "g1")

	resp, err := s.Disconnect(ctx, guestConn)
	require.NoError(t, err)

	assert.Empty(t, resp.NewHostId)
	state, err := s.buildRoomState(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, "host", state.HostId)
}

func TestLastMemberLeaveDeletesRoom(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	roomId, hostConn := createHostedRoom(t, s, false)

	resp, err := s.Disconnect(ctx, hostConn)
	require.NoError(t, err)
	assert.True(t, resp.IsRoomDeleted)

	connect(t, s, "conn-g1")
	_, err = s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-g1",
		RoomId:       roomId,
		Profile:      profile("g1"),
	})
	assert.Error(t, err, "a deleted room is not joinable")
}

func TestEndRoomRemovesEveryone(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	roomId, _ := createHostedRoom(t, s, false)
	admitGuest(t, s, roomId, "conn-g1", "g1")

	resp, err := s.EndRoom(ctx, "conn-host")
	require.NoError(t, err)
	assert.Len(t, resp.Conns, 2)

	_, err = s.buildRoomState(ctx, roomId)
	assert.Error(t, err)
}

func TestPlaybackPartialUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	roomId, _ := createHostedRoom(t, s, false)
	admitGuest(t, s, roomId, "conn-g1", "g1")

	currentTime := 42.0
	playing := true
	_, err := s.UpdatePlayback(ctx, &UpdatePlaybackParams{
		SenderConnectionId: "conn-host",
		CurrentTime:        &currentTime,
		IsPlaying:          &playing,
	})
	require.NoError(t, err)

	// a later rate-only update must not clobber the rest
	rate := 1.5
	resp, err := s.UpdatePlayback(ctx, &UpdatePlaybackParams{
		SenderConnectionId: "conn-host",
		PlaybackRate:       &rate,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Conns, 1, "the originating host is excluded from the rebroadcast")

	state, err := s.buildRoomState(ctx, roomId)
	require.NoError(t, err)
	assert.InDelta(t, 42.0, state.Playback.CurrentTime, 0.001)
	assert.True(t, state.Playback.IsPlaying)
	assert.InDelta(t, 1.5, state.Playback.PlaybackRate, 0.001)
}

func TestBulkDirectiveUpdatesGuestBadges(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	roomId, _ := createHostedRoom(t, s, false)
	admitGuest(t, s, roomId, "conn-g1", "g1")
	admitGuest(t, s, roomId, "conn-g2", "g2")

	resp, err := s.ApplyDirective(ctx, &DirectiveParams{
		SenderConnectionId: "conn-host",
		MediaType:          protocol.MediaTypeAudio,
		Enabled:            false,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Conns, 2)

	state, err := s.buildRoomState(ctx, roomId)
	require.NoError(t, err)
	for _, p := range state.Participants {
		if p.UserId == "host" {
			assert.True(t, p.AudioEnabled, "the host is exempt from its own bulk directive")
		} else {
			assert.False(t, p.AudioEnabled)
		}
	}
}

func TestSyncReportResolvesHostConn(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	roomId, hostConn := createHostedRoom(t, s, false)
	admitGuest(t, s, roomId, "conn-g1", "g1")

	resp, err := s.GetHostConn(ctx, "conn-g1")
	require.NoError(t, err)
	assert.Same(t, hostConn, resp.HostConn)
}

func TestChatStampsSenderIdentity(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	roomId, _ := createHostedRoom(t, s, false)
	admitGuest(t, s, roomId, "conn-g1", "g1")

	resp, err := s.BroadcastChat(ctx, &BroadcastChatParams{
		SenderConnectionId: "conn-g1",
		Message: protocol.ChatMessagePayload{
			SenderId:   "forged",
			SenderName: "Forged",
			Text:       "hello",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "g1", resp.Message.SenderId)
	assert.Equal(t, "user-g1", resp.Message.SenderName)
	assert.Len(t, resp.Conns, 2, "chat reaches every member, sender included")
}
