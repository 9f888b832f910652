// Package playback keeps the local media element consistent with the
// host's playback clock. The host originates state changes and broadcasts
// them; guests apply received state and correct drift against the
// periodic heartbeat.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/castly/watchparty/internal/media"
	"github.com/castly/watchparty/internal/membership"
	"github.com/castly/watchparty/internal/protocol"
	"github.com/castly/watchparty/pkg/eventbus"
)

var ErrNotHost = errors.New("permission denied: not host")

const (
	heartbeatInterval  = 8 * time.Second
	timeReportInterval = 3 * time.Second
)

type iSession interface {
	Send(eventType string, payload any) error
}

// iAuthority is answered by the membership controller at call time, so a
// host transfer takes effect for every subsequent event without any
// handler re-registration.
type iAuthority interface {
	IsHost() bool
	Profile() protocol.Profile
}

type Coordinator struct {
	session   iSession
	authority iAuthority
	player    media.Player
	bus       *eventbus.Bus
	logger    *slog.Logger

	mu      sync.Mutex
	replica replica
	closed  bool

	// applies queued until the player can seek
	playerReady bool
	pending     []func()

	// soft drift correction window
	softActive bool
	baseRate   float64
	softTimer  *time.Timer

	// surfaced when a local play() is rejected (autoplay policy)
	onPlayBlocked func()
}

func NewCoordinator(session iSession, authority iAuthority, player media.Player, bus *eventbus.Bus, logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		session:   session,
		authority: authority,
		player:    player,
		bus:       bus,
		logger:    logger,
		replica:   newReplica(),
		baseRate:  1.0,
	}

	player.OnReady(c.flushPending)
	player.OnBuffering(func(isBuffering bool) {
		// only the host's own element pauses the room
		if c.authority.IsHost() {
			if err := c.ReportBuffering(context.Background(), isBuffering); err != nil {
				c.logger.Warn("failed to report buffering", "error", err)
			}
		}
	})

	bus.Subscribe(membership.TopicRoomState, func(payload any) {
		state := payload.(protocol.RoomStatePayload)
		c.applySnapshot(state.Playback)
	})

	return c
}

// OnPlayBlocked registers the "tap to play" affordance.
func (c *Coordinator) OnPlayBlocked(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPlayBlocked = fn
}

// Start launches the periodic loops: the resync heartbeat while hosting
// and the own-time report while a playing guest. Stop releases them.
func (c *Coordinator) Start(ctx context.Context) {
	go c.heartbeatLoop(ctx)
	go c.reportLoop(ctx)
}

func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.softTimer != nil {
		c.softTimer.Stop()
	}
}

// --- host side

func (c *Coordinator) OriginatePlay(ctx context.Context) error {
	if !c.authority.IsHost() {
		return ErrNotHost
	}

	// local element first; broadcast only a state the host actually reached
	if err := c.player.Play(); err != nil {
		c.logger.InfoContext(ctx, "local play rejected", "error", err)
		c.notifyPlayBlocked()
		return nil
	}

	c.mu.Lock()
	c.replica.play()
	c.mu.Unlock()

	return c.send(protocol.EventSyncPlay, protocol.SyncPlayPayload{CurrentTime: c.player.CurrentTime()})
}

func (c *Coordinator) OriginatePause(ctx context.Context) error {
	if !c.authority.IsHost() {
		return ErrNotHost
	}

	c.player.Pause()

	c.mu.Lock()
	c.replica.pause()
	c.mu.Unlock()

	return c.send(protocol.EventSyncPause, protocol.SyncPausePayload{CurrentTime: c.player.CurrentTime()})
}

func (c *Coordinator) OriginateSeek(ctx context.Context, seconds float64) error {
	if !c.authority.IsHost() {
		return ErrNotHost
	}

	c.player.Seek(seconds)

	return c.send(protocol.EventSyncSeek, protocol.SyncSeekPayload{CurrentTime: seconds})
}

func (c *Coordinator) OriginateSpeed(ctx context.Context, rate float64) error {
	if !c.authority.IsHost() {
		return ErrNotHost
	}

	c.player.SetRate(rate)

	c.mu.Lock()
	c.baseRate = rate
	c.mu.Unlock()

	return c.send(protocol.EventSyncSpeed, protocol.SyncSpeedPayload{PlaybackRate: rate})
}

func (c *Coordinator) ReportBuffering(ctx context.Context, isBuffering bool) error {
	if !c.authority.IsHost() {
		return ErrNotHost
	}

	return c.send(protocol.EventSyncBuffering, protocol.SyncBufferingPayload{IsBuffering: isBuffering})
}

// --- guest side

// HandleEvent applies one received sync event. Every payload is treated
// as an absolute state assertion, never a delta, so events reordered
// across senders still converge.
func (c *Coordinator) HandleEvent(ctx context.Context, eventType string, payload any) {
	if report, ok := payload.(protocol.SyncReportPayload); ok {
		c.observeReport(ctx, report)
		return
	}

	if c.authority.IsHost() {
		// the host's element is the source of truth; its own echoes are noise
		return
	}

	switch p := payload.(type) {
	case protocol.SyncPlayPayload:
		c.applyPlay(p.CurrentTime)
	case protocol.SyncPausePayload:
		c.applyPause(p.CurrentTime)
	case protocol.SyncSeekPayload:
		c.applySeek(p.CurrentTime)
	case protocol.SyncSpeedPayload:
		c.applySpeed(p.PlaybackRate)
	case protocol.SyncBufferingPayload:
		c.applyBuffering(p.IsBuffering)
	case protocol.SyncStatePayload:
		c.reconcile(ctx, p)
	default:
		c.logger.DebugContext(ctx, "playback ignoring event", "type", eventType)
	}
}

func (c *Coordinator) applySnapshot(state protocol.PlaybackState) {
	c.whenReady(func() {
		c.player.Seek(state.CurrentTime)
		c.player.SetRate(state.PlaybackRate)

		c.mu.Lock()
		c.baseRate = state.PlaybackRate
		c.mu.Unlock()

		if state.IsPlaying && !state.IsBuffering {
			c.playLocal()
		} else {
			c.player.Pause()
			c.mu.Lock()
			c.replica.pause()
			c.mu.Unlock()
		}
	})
}

func (c *Coordinator) applyPlay(seconds float64) {
	c.whenReady(func() {
		c.player.Seek(seconds)
		c.playLocal()
	})
}

func (c *Coordinator) applyPause(seconds float64) {
	c.whenReady(func() {
		c.player.Seek(seconds)
		c.player.Pause()

		c.mu.Lock()
		c.replica.pause()
		c.mu.Unlock()
	})
}

// applySeek keeps the current play state; a seek is always a hard target.
func (c *Coordinator) applySeek(seconds float64) {
	c.whenReady(func() {
		c.cancelSoftCorrection()
		c.player.Seek(seconds)
	})
}

func (c *Coordinator) applySpeed(rate float64) {
	c.whenReady(func() {
		c.mu.Lock()
		c.baseRate = rate
		soft := c.softActive
		c.mu.Unlock()

		// a live soft window keeps its adjusted rate and restores to the
		// new base when it elapses
		if !soft {
			c.player.SetRate(rate)
		}
	})
}

func (c *Coordinator) applyBuffering(isBuffering bool) {
	c.whenReady(func() {
		c.mu.Lock()
		if isBuffering {
			c.replica.bufferStart()
			c.mu.Unlock()
			c.player.Pause()
			return
		}

		c.replica.bufferEnd()
		resume := c.replica.playing()
		c.mu.Unlock()

		if resume {
			c.playLocal()
		}
	})
}

// reconcile handles the periodic host heartbeat: it repairs a missed
// play/pause event and corrects drift.
func (c *Coordinator) reconcile(ctx context.Context, state protocol.SyncStatePayload) {
	c.whenReady(func() {
		c.mu.Lock()
		localPlaying := c.replica.playing()
		buffering := c.replica.state == StateBuffering
		c.mu.Unlock()

		if !buffering && state.IsPlaying != localPlaying {
			if state.IsPlaying {
				c.playLocal()
			} else {
				c.player.Pause()
				c.mu.Lock()
				c.replica.pause()
				c.mu.Unlock()
			}
		}

		if !state.IsPlaying {
			return
		}

		delta := c.player.CurrentTime() - state.CurrentTime
		switch classifyDrift(delta) {
		case correctionHard:
			c.logger.InfoContext(ctx, "hard drift correction", "delta", delta)
			c.cancelSoftCorrection()
			c.player.Seek(state.CurrentTime)
		case correctionSoft:
			c.startSoftCorrection(ctx, delta)
		}
	})
}

// observeReport surfaces how far each guest has drifted from the host
// clock. The relay forwards reports to the host only; guests never see
// each other's.
func (c *Coordinator) observeReport(ctx context.Context, report protocol.SyncReportPayload) {
	if !c.authority.IsHost() {
		return
	}

	delta := c.player.CurrentTime() - report.CurrentTime
	c.logger.DebugContext(ctx, "guest time report",
		"user_id", report.UserId,
		"delta", delta,
	)
}

// startSoftCorrection runs the player at an adjusted rate for a bounded
// window, then restores the base rate. A window already in flight is not
// re-triggered; a hard correction cancels it.
func (c *Coordinator) startSoftCorrection(ctx context.Context, delta float64) {
	c.mu.Lock()
	if c.softActive || c.closed {
		c.mu.Unlock()
		return
	}
	c.softActive = true
	rate := softRate(c.baseRate, delta)
	c.softTimer = time.AfterFunc(softCorrectionWindow, c.endSoftCorrection)
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "soft drift correction", "delta", delta, "rate", rate)
	c.player.SetRate(rate)
}

func (c *Coordinator) endSoftCorrection() {
	c.mu.Lock()
	if !c.softActive || c.closed {
		c.mu.Unlock()
		return
	}
	c.softActive = false
	base := c.baseRate
	c.mu.Unlock()

	c.player.SetRate(base)
}

func (c *Coordinator) cancelSoftCorrection() {
	c.mu.Lock()
	if !c.softActive {
		c.mu.Unlock()
		return
	}
	c.softActive = false
	if c.softTimer != nil {
		c.softTimer.Stop()
	}
	base := c.baseRate
	c.mu.Unlock()

	c.player.SetRate(base)
}

// --- internals

func (c *Coordinator) playLocal() {
	if err := c.player.Play(); err != nil {
		c.logger.Info("local play rejected", "error", err)
		c.notifyPlayBlocked()
		return
	}

	c.mu.Lock()
	c.replica.play()
	c.mu.Unlock()
}

// whenReady runs fn now if the player can seek, otherwise queues it. The
// queue is flushed once metadata loads, unless the coordinator was
// stopped in the meantime.
func (c *Coordinator) whenReady(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if !c.playerReady && !c.player.Ready() {
		c.pending = append(c.pending, fn)
		c.mu.Unlock()
		return
	}
	c.playerReady = true
	c.mu.Unlock()

	fn()
}

func (c *Coordinator) flushPending() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.playerReady = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

func (c *Coordinator) notifyPlayBlocked() {
	c.mu.Lock()
	fn := c.onPlayBlocked
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (c *Coordinator) send(eventType string, payload any) error {
	if err := c.session.Send(eventType, payload); err != nil {
		return fmt.Errorf("failed to send %s: %w", eventType, err)
	}
	return nil
}

func (c *Coordinator) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.stopped() || !c.authority.IsHost() {
				continue
			}

			c.mu.Lock()
			playing := c.replica.playing()
			c.mu.Unlock()
			if !playing {
				continue
			}

			if err := c.send(protocol.EventSyncState, protocol.SyncStatePayload{
				CurrentTime: c.player.CurrentTime(),
				IsPlaying:   true,
			}); err != nil {
				// a lost heartbeat self-heals on the next tick
				c.logger.DebugContext(ctx, "heartbeat send failed", "error", err)
			}
		}
	}
}

func (c *Coordinator) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(timeReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.stopped() || c.authority.IsHost() {
				continue
			}

			c.mu.Lock()
			playing := c.replica.playing()
			c.mu.Unlock()
			if !playing {
				continue
			}

			if err := c.send(protocol.EventSyncReport, protocol.SyncReportPayload{
				UserId:      c.authority.Profile().UserId,
				CurrentTime: c.player.CurrentTime(),
			}); err != nil {
				c.logger.DebugContext(ctx, "time report send failed", "error", err)
			}
		}
	}
}

func (c *Coordinator) stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
