package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castly/watchparty/internal/media"
	"github.com/castly/watchparty/internal/membership"
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

func (s *fakeSession) byType(eventType string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var payloads []any
	for _, e := range s.events {
		if e.eventType == eventType {
			payloads = append(payloads, e.payload)
		}
	}
	return payloads
}

type fakeAuthority struct {
	mu     sync.Mutex
	isHost bool
}

func (a *fakeAuthority) IsHost() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isHost
}

func (a *fakeAuthority) Profile() protocol.Profile {
	return protocol.Profile{UserId: "u1", Username: "user-u1"}
}

func newTestCoordinator(isHost bool, player media.Player) (*Coordinator, *fakeSession, *eventbus.Bus) {
	session := &fakeSession{}
	bus := eventbus.New()
	c := NewCoordinator(session, &fakeAuthority{isHost: isHost}, player, bus, slog.Default())
	return c, session, bus
}

func TestHostPlayBroadcastsAfterLocalPlay(t *testing.T) {
	ctx := context.Background()
	player := media.NewClockPlayer()
	c, session, _ := newTestCoordinator(true, player)

	player.Seek(10)
	require.NoError(t, c.OriginatePlay(ctx))

	sent := session.byType(protocol.EventSyncPlay)
	require.Len(t, sent, 1)
	assert.InDelta(t, 10, sent[0].(protocol.SyncPlayPayload).CurrentTime, 0.1)
}

func TestHostBlockedPlayIsNotBroadcast(t *testing.T) {
	ctx := context.Background()
	player := media.NewClockPlayer()
	c, session, _ := newTestCoordinator(true, player)

	blocked := false
	c.OnPlayBlocked(func() { blocked = true })
	player.FailNextPlay(errors.New("autoplay rejected"))

	// a state the host never reached must not be asserted to the room
	require.NoError(t, c.OriginatePlay(ctx))
	assert.True(t, blocked)
	assert.Empty(t, session.byType(protocol.EventSyncPlay))
}

func TestGuestCannotOriginate(t *testing.T) {
	ctx := context.Background()
	c, session, _ := newTestCoordinator(false, media.NewClockPlayer())

	assert.ErrorIs(t, c.OriginatePlay(ctx), ErrNotHost)
	assert.ErrorIs(t, c.OriginateSeek(ctx, 30), ErrNotHost)
	assert.ErrorIs(t, c.OriginateSpeed(ctx, 1.5), ErrNotHost)
	assert.Empty(t, session.byType(protocol.EventSyncPlay))
}

func TestHostIgnoresItsOwnEchoes(t *testing.T) {
	ctx := context.Background()
	player := media.NewClockPlayer()
	c, _, _ := newTestCoordinator(true, player)

	player.Seek(50)
	c.HandleEvent(ctx, protocol.EventSyncSeek, protocol.SyncSeekPayload{CurrentTime: 200})

	assert.InDelta(t, 50, player.CurrentTime(), 0.1)
}

func TestGuestAppliesPlayPauseSeek(t *testing.T) {
	ctx := context.Background()
	player := media.NewClockPlayer()
	c, _, _ := newTestCoordinator(false, player)

	c.HandleEvent(ctx, protocol.EventSyncPlay, protocol.SyncPlayPayload{CurrentTime: 20})
	assert.InDelta(t, 20, player.CurrentTime(), 0.1)
	assert.Equal(t, StatePlaying, c.replica.state)

	c.HandleEvent(ctx, protocol.EventSyncPause, protocol.SyncPausePayload{CurrentTime: 25})
	assert.InDelta(t, 25, player.CurrentTime(), 0.1)
	assert.Equal(t, StatePaused, c.replica.state)

	c.HandleEvent(ctx, protocol.EventSyncSeek, protocol.SyncSeekPayload{CurrentTime: 90})
	assert.InDelta(t, 90, player.CurrentTime(), 0.1)
	assert.Equal(t, StatePaused, c.replica.state, "a seek keeps the current play state")
}

func TestGuestHardDriftCorrection(t *testing.T) {
	ctx := context.Background()
	player := media.NewClockPlayer()
	c, _, _ := newTestCoordinator(false, player)

	c.HandleEvent(ctx, protocol.EventSyncPlay, protocol.SyncPlayPayload{CurrentTime: 110})
	c.HandleEvent(ctx, protocol.EventSyncState, protocol.SyncStatePayload{CurrentTime: 100, IsPlaying: true})

	assert.InDelta(t, 100, player.CurrentTime(), 0.1)
}

func TestGuestSoftDriftCorrection(t *testing.T) {
	ctx := context.Background()
	player := media.NewClockPlayer()
	c, _, _ := newTestCoordinator(false, player)

	// one second ahead of the host: slow down instead of seeking
	c.HandleEvent(ctx, protocol.EventSyncPlay, protocol.SyncPlayPayload{CurrentTime: 101})
	c.HandleEvent(ctx, protocol.EventSyncState, protocol.SyncStatePayload{CurrentTime: 100, IsPlaying: true})
	assert.InDelta(t, 1.0/softCorrectionRatio, player.Rate(), 0.001)

	// a window already in flight is not re-triggered
	c.HandleEvent(ctx, protocol.EventSyncState, protocol.SyncStatePayload{CurrentTime: player.CurrentTime() - 0.5, IsPlaying: true})
	assert.InDelta(t, 1.0/softCorrectionRatio, player.Rate(), 0.001)
}

func TestHardCorrectionCancelsSoftWindow(t *testing.T) {
	ctx := context.Background()
	player := media.NewClockPlayer()
	c, _, _ := newTestCoordinator(false, player)

	c.HandleEvent(ctx, protocol.EventSyncPlay, protocol.SyncPlayPayload{CurrentTime: 101})
	c.HandleEvent(ctx, protocol.EventSyncState, protocol.SyncStatePayload{CurrentTime: 100, IsPlaying: true})
	require.InDelta(t, 1.0/softCorrectionRatio, player.Rate(), 0.001)

	c.HandleEvent(ctx, protocol.EventSyncState, protocol.SyncStatePayload{CurrentTime: 500, IsPlaying: true})

	assert.InDelta(t, 500, player.CurrentTime(), 0.1)
	assert.InDelta(t, 1.0, player.Rate(), 0.001, "the base rate is restored with the jump")
}

func TestSpeedChangeDuringSoftWindowDefersToBaseRate(t *testing.T) {
	ctx := context.Background()
	player := media.NewClockPlayer()
	c, _, _ := newTestCoordinator(false, player)

	c.HandleEvent(ctx, protocol.EventSyncPlay, protocol.SyncPlayPayload{CurrentTime: 101})
	c.HandleEvent(ctx, protocol.EventSyncState, protocol.SyncStatePayload{CurrentTime: 100, IsPlaying: true})
	adjusted := player.Rate()

	c.HandleEvent(ctx, protocol.EventSyncSpeed, protocol.SyncSpeedPayload{PlaybackRate: 1.5})

	// the live window keeps its adjusted rate; the new base applies after
	assert.InDelta(t, adjusted, player.Rate(), 0.001)
	c.mu.Lock()
	assert.InDelta(t, 1.5, c.baseRate, 0.001)
	c.mu.Unlock()
}

func TestBufferingRestoresPlayState(t *testing.T) {
	ctx := context.Background()
	player := media.NewClockPlayer()
	c, _, _ := newTestCoordinator(false, player)

	c.HandleEvent(ctx, protocol.EventSyncPlay, protocol.SyncPlayPayload{CurrentTime: 10})

	c.HandleEvent(ctx, protocol.EventSyncBuffering, protocol.SyncBufferingPayload{IsBuffering: true})
	assert.Equal(t, StateBuffering, c.replica.state)

	c.HandleEvent(ctx, protocol.EventSyncBuffering, protocol.SyncBufferingPayload{IsBuffering: false})
	assert.Equal(t, StatePlaying, c.replica.state, "playback resumes because it was playing before")
}

func TestBufferingDoesNotResumeAPausedRoom(t *testing.T) {
	ctx := context.Background()
	player := media.NewClockPlayer()
	c, _, _ := newTestCoordinator(false, player)

	c.HandleEvent(ctx, protocol.EventSyncPause, protocol.SyncPausePayload{CurrentTime: 10})
	c.HandleEvent(ctx, protocol.EventSyncBuffering, protocol.SyncBufferingPayload{IsBuffering: true})
	c.HandleEvent(ctx, protocol.EventSyncBuffering, protocol.SyncBufferingPayload{IsBuffering: false})

	assert.Equal(t, StatePaused, c.replica.state)
}

func TestHeartbeatRepairsMissedPause(t *testing.T) {
	ctx := context.Background()
	player := media.NewClockPlayer()
	c, _, _ := newTestCoordinator(false, player)

	c.HandleEvent(ctx, protocol.EventSyncPlay, protocol.SyncPlayPayload{CurrentTime: 40})
	require.Equal(t, StatePlaying, c.replica.state)

	// the pause event was lost; the next heartbeat carries the truth
	c.HandleEvent(ctx, protocol.EventSyncState, protocol.SyncStatePayload{CurrentTime: 42, IsPlaying: false})

	assert.Equal(t, StatePaused, c.replica.state)
}

func TestAppliesAreDeferredUntilPlayerReady(t *testing.T) {
	ctx := context.Background()
	player := media.NewPendingClockPlayer()
	c, _, _ := newTestCoordinator(false, player)

	c.HandleEvent(ctx, protocol.EventSyncSeek, protocol.SyncSeekPayload{CurrentTime: 42})
	c.HandleEvent(ctx, protocol.EventSyncSpeed, protocol.SyncSpeedPayload{PlaybackRate: 1.25})
	assert.InDelta(t, 0, player.CurrentTime(), 0.01, "nothing applies before metadata loads")

	player.MarkReady()

	assert.InDelta(t, 42, player.CurrentTime(), 0.1)
	assert.InDelta(t, 1.25, player.Rate(), 0.001)
}

func TestSnapshotFromBusPrimesThePlayer(t *testing.T) {
	player := media.NewClockPlayer()
	c, _, bus := newTestCoordinator(false, player)

	bus.Publish(membership.TopicRoomState, protocol.RoomStatePayload{
		Playback: protocol.PlaybackState{CurrentTime: 12, IsPlaying: false, PlaybackRate: 1.25},
	})

	assert.InDelta(t, 12, player.CurrentTime(), 0.1)
	assert.InDelta(t, 1.25, player.Rate(), 0.001)
	assert.Equal(t, StatePaused, c.replica.state)
}

func TestHostElementBufferingPausesTheRoom(t *testing.T) {
	player := media.NewClockPlayer()
	_, session, _ := newTestCoordinator(true, player)

	player.ReportBuffering(true)
	player.ReportBuffering(false)

	sent := session.byType(protocol.EventSyncBuffering)
	require.Len(t, sent, 2)
	assert.True(t, sent[0].(protocol.SyncBufferingPayload).IsBuffering)
	assert.False(t, sent[1].(protocol.SyncBufferingPayload).IsBuffering)
}

func TestGuestElementBufferingStaysLocal(t *testing.T) {
	player := media.NewClockPlayer()
	_, session, _ := newTestCoordinator(false, player)

	player.ReportBuffering(true)

	assert.Empty(t, session.byType(protocol.EventSyncBuffering))
}
