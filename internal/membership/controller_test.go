package membership

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castly/watchparty/internal/protocol"
	"github.com/castly/watchparty/pkg/eventbus"
)

type sentEvent struct {
	eventType string
	payload   any
}

type fakeSession struct {
	mu     sync.Mutex
	events []sentEvent
}

func (s *fakeSession) Send(eventType string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sentEvent{eventType, payload})
	return nil
}

func (s *fakeSession) sentTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.eventType)
	}
	return types
}

func newTestController(userId string) (*Controller, *fakeSession, *eventbus.Bus) {
	session := &fakeSession{}
	bus := eventbus.New()
	c := NewController(session, bus, protocol.Profile{
		UserId:   userId,
		Username: "user-" + userId,
	}, slog.Default())
	return c, session, bus
}

func snapshot(hostId string, participants ...protocol.Participant) protocol.RoomStatePayload {
	return protocol.RoomStatePayload{
		RoomId:       "room1",
		HostId:       hostId,
		Participants: participants,
		Playback:     protocol.PlaybackState{PlaybackRate: 1.0},
	}
}

func participant(userId, connectionId string) protocol.Participant {
	return protocol.Participant{
		UserId:       userId,
		ConnectionId: connectionId,
		Username:     "user-" + userId,
		AudioEnabled: true,
		VideoEnabled: true,
	}
}

func TestRoomSnapshotAppliesRoster(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestController("u1")

	// stale host flags in the payload must not survive the snapshot
	p2 := participant("u2", "conn-b")
	p2.IsHost = true
	c.HandleEvent(ctx, protocol.EventRoomState, snapshot("u1", participant("u1", "conn-a"), p2))

	assert.Equal(t, PhaseInRoom, c.Phase())
	assert.Equal(t, "conn-a", c.SelfConnectionId())
	assert.True(t, c.IsHost())

	hostCount := 0
	for _, p := range c.Participants() {
		if p.IsHost {
			hostCount++
			assert.Equal(t, "u1", p.UserId)
		}
	}
	assert.Equal(t, 1, hostCount, "exactly one participant holds the host flag")
}

func TestHostTransferFlipsOnRelayEcho(t *testing.T) {
	ctx := context.Background()
	c, session, _ := newTestController("u1")
	c.HandleEvent(ctx, protocol.EventRoomState, snapshot("u1",
		participant("u1", "conn-a"), participant("u2", "conn-b")))

	require.NoError(t, c.TransferHost(ctx, "u2"))

	// the local flag only flips when the relay confirms
	assert.True(t, c.IsHost())
	assert.Contains(t, session.sentTypes(), protocol.EventHostTransfer)

	c.HandleEvent(ctx, protocol.EventRoomHostChanged, protocol.RoomHostChangedPayload{HostId: "u2"})

	assert.False(t, c.IsHost())
	assert.Equal(t, "u2", c.HostId())
	newHost, ok := c.Participant("u2")
	require.True(t, ok)
	assert.True(t, newHost.IsHost)
	oldHost, ok := c.Participant("u1")
	require.True(t, ok)
	assert.False(t, oldHost.IsHost)
}

func TestTransferToUnknownMemberFails(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestController("u1")
	c.HandleEvent(ctx, protocol.EventRoomState, snapshot("u1", participant("u1", "conn-a")))

	assert.ErrorIs(t, c.TransferHost(ctx, "ghost"), ErrMemberNotFound)
}

func TestGuestCannotUseHostOperations(t *testing.T) {
	ctx := context.Background()
	c, session, _ := newTestController("u2")
	c.HandleEvent(ctx, protocol.EventRoomState, snapshot("u1",
		participant("u1", "conn-a"), participant("u2", "conn-b")))

	assert.ErrorIs(t, c.Kick(ctx, "u1"), ErrNotHost)
	assert.ErrorIs(t, c.MuteAll(ctx), ErrNotHost)
	assert.ErrorIs(t, c.EndRoom(ctx), ErrNotHost)
	assert.ErrorIs(t, c.ApproveJoin(ctx, "req1"), ErrNotHost)
	assert.Empty(t, session.sentTypes(), "doomed requests must not reach the relay")
}

func TestKickedTerminalIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, _, bus := newTestController("u2")

	var terminals []Terminal
	bus.Subscribe(TopicTerminal, func(payload any) {
		terminals = append(terminals, payload.(Terminal))
	})

	c.HandleEvent(ctx, protocol.EventRoomState, snapshot("u1",
		participant("u1", "conn-a"), participant("u2", "conn-b")))

	c.HandleEvent(ctx, protocol.EventHostKick, protocol.HostKickPayload{UserId: "u2"})
	assert.Equal(t, PhaseKicked, c.Phase())

	// a room:ended racing in after the kick must not overwrite the phase
	c.HandleEvent(ctx, protocol.EventRoomEnded, protocol.RoomEndedPayload{})
	assert.Equal(t, PhaseKicked, c.Phase())

	require.Len(t, terminals, 1)
	assert.Equal(t, PhaseKicked, terminals[0].Phase)
}

func TestJoinRejectedEndsRequest(t *testing.T) {
	ctx := context.Background()
	c, _, bus := newTestController("u2")

	var terminal Terminal
	bus.Subscribe(TopicTerminal, func(payload any) {
		terminal = payload.(Terminal)
	})

	require.NoError(t, c.Join(ctx, &JoinParams{RoomId: "room1"}))
	assert.Equal(t, PhaseRequesting, c.Phase())

	c.HandleEvent(ctx, protocol.EventRoomJoinRejected, protocol.RoomJoinRejectedPayload{Reason: "room is full"})

	assert.Equal(t, PhaseRejected, c.Phase())
	assert.Equal(t, "room is full", terminal.Reason)
	assert.Empty(t, c.Participants(), "a rejected client never gets a roster")
}

func TestJoinRequestOnlyTrackedByHost(t *testing.T) {
	ctx := context.Background()
	request := protocol.RoomJoinRequestPayload{
		RequestId:    "req1",
		ConnectionId: "conn-c",
		Profile:      protocol.Profile{UserId: "u3", Username: "user-u3"},
	}

	host, _, _ := newTestController("u1")
	host.HandleEvent(ctx, protocol.EventRoomState, snapshot("u1", participant("u1", "conn-a")))
	host.HandleEvent(ctx, protocol.EventRoomJoinRequest, request)
	assert.Len(t, host.PendingRequests(), 1)

	guest, _, _ := newTestController("u2")
	guest.HandleEvent(ctx, protocol.EventRoomState, snapshot("u1",
		participant("u1", "conn-a"), participant("u2", "conn-b")))
	guest.HandleEvent(ctx, protocol.EventRoomJoinRequest, request)
	assert.Empty(t, guest.PendingRequests())
}

func TestApproveJoinClearsPendingRequest(t *testing.T) {
	ctx := context.Background()
	c, session, _ := newTestController("u1")
	c.HandleEvent(ctx, protocol.EventRoomState, snapshot("u1", participant("u1", "conn-a")))
	c.HandleEvent(ctx, protocol.EventRoomJoinRequest, protocol.RoomJoinRequestPayload{
		RequestId: "req1",
		Profile:   protocol.Profile{UserId: "u3"},
	})

	require.NoError(t, c.ApproveJoin(ctx, "req1"))

	assert.Empty(t, c.PendingRequests())
	assert.Contains(t, session.sentTypes(), protocol.EventRoomJoinApprove)
}

func TestDirectivesReachOnlyGuests(t *testing.T) {
	ctx := context.Background()

	var directives []MediaDirective
	collect := func(payload any) {
		directives = append(directives, payload.(MediaDirective))
	}

	host, _, hostBus := newTestController("u1")
	hostBus.Subscribe(TopicMediaDirective, collect)
	host.HandleEvent(ctx, protocol.EventRoomState, snapshot("u1",
		participant("u1", "conn-a"), participant("u2", "conn-b")))

	// the host's own broadcast echo must not mute the host
	host.HandleEvent(ctx, protocol.EventHostMuteAll, protocol.HostMuteAllPayload{})
	assert.Empty(t, directives)

	guest, _, guestBus := newTestController("u2")
	guestBus.Subscribe(TopicMediaDirective, collect)
	guest.HandleEvent(ctx, protocol.EventRoomState, snapshot("u1",
		participant("u1", "conn-a"), participant("u2", "conn-b")))

	guest.HandleEvent(ctx, protocol.EventHostMuteAll, protocol.HostMuteAllPayload{})
	require.Len(t, directives, 1)
	assert.Equal(t, MediaDirective{Type: protocol.MediaTypeAudio, Enabled: false}, directives[0])
}

func TestVideoOffAllUpdatesGuestBadges(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestController("u1")
	c.HandleEvent(ctx, protocol.EventRoomState, snapshot("u1",
		participant("u1", "conn-a"), participant("u2", "conn-b"), participant("u3", "conn-c")))

	require.NoError(t, c.VideoOffAll(ctx))

	self, _ := c.Participant("u1")
	assert.True(t, self.VideoEnabled, "the host is exempt from its own bulk directive")
	for _, userId := range []string{"u2", "u3"} {
		p, ok := c.Participant(userId)
		require.True(t, ok)
		assert.False(t, p.VideoEnabled)
	}
}

func TestMediaStatusUpdatesBadge(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestController("u1")
	c.HandleEvent(ctx, protocol.EventRoomState, snapshot("u1",
		participant("u1", "conn-a"), participant("u2", "conn-b")))

	c.HandleEvent(ctx, protocol.EventMediaStatus, protocol.MediaStatusPayload{
		UserId:  "u2",
		Type:    protocol.MediaTypeAudio,
		Enabled: false,
	})

	p, ok := c.Participant("u2")
	require.True(t, ok)
	assert.False(t, p.AudioEnabled)
	assert.True(t, p.VideoEnabled)
}

func TestParticipantLeftAbandonsItsJoinRequest(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestController("u1")
	c.HandleEvent(ctx, protocol.EventRoomState, snapshot("u1",
		participant("u1", "conn-a"), participant("u2", "conn-b")))
	c.HandleEvent(ctx, protocol.EventRoomJoinRequest, protocol.RoomJoinRequestPayload{
		RequestId: "req1",
		Profile:   protocol.Profile{UserId: "u3"},
	})

	c.HandleEvent(ctx, protocol.EventParticipantLeft, protocol.ParticipantLeftPayload{UserId: "u3"})

	assert.Empty(t, c.PendingRequests())
}

func TestChatLogOrderedByReceipt(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestController("u1")
	c.HandleEvent(ctx, protocol.EventRoomState, snapshot("u1", participant("u1", "conn-a")))

	c.HandleEvent(ctx, protocol.EventChatMessage, protocol.ChatMessagePayload{Id: "m1", Text: "first"})
	c.HandleEvent(ctx, protocol.EventChatMessage, protocol.ChatMessagePayload{Id: "m2", Text: "second"})

	log := c.ChatLog()
	require.Len(t, log, 2)
	assert.Equal(t, "m1", log[0].Id)
	assert.Equal(t, "m2", log[1].Id)
}
