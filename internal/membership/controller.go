// Package membership owns the participant roster, host authority and the
// join approval workflow for one room. It is the only writer of the local
// roster and host identity; every other component observes them through
// the event bus or the controller's query methods.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/castly/watchparty/internal/protocol"
	"github.com/castly/watchparty/pkg/eventbus"
)

var (
	ErrNotHost        = errors.New("permission denied: not host")
	ErrNotInRoom      = errors.New("not in a room")
	ErrMemberNotFound = errors.New("member not found")
)

type iSession interface {
	Send(eventType string, payload any) error
}

type Controller struct {
	session iSession
	bus     *eventbus.Bus
	logger  *slog.Logger

	mu               sync.RWMutex
	phase            Phase
	roomId           string
	profile          protocol.Profile
	selfConnectionId string
	hostId           string
	participants     map[string]protocol.Participant
	content          protocol.ContentRef
	pendingRequests  map[string]protocol.RoomJoinRequestPayload
	chat             []protocol.ChatMessagePayload
}

func NewController(session iSession, bus *eventbus.Bus, profile protocol.Profile, logger *slog.Logger) *Controller {
	return &Controller{
		session:         session,
		bus:             bus,
		logger:          logger,
		phase:           PhaseIdle,
		profile:         profile,
		participants:    make(map[string]protocol.Participant),
		pendingRequests: make(map[string]protocol.RoomJoinRequestPayload),
	}
}

type JoinParams struct {
	RoomId string
	AsHost bool
	// RequireApproval gates later joins behind host approval; only
	// meaningful when AsHost creates the room.
	RequireApproval bool
	Content         *protocol.ContentRef
}

// Join emits the join intent. If the room requires approval the relay
// answers with room:join_rejected or, on approval, with room:state; until
// then the client stays in PhaseRequesting.
func (c *Controller) Join(ctx context.Context, params *JoinParams) error {
	c.mu.Lock()
	c.phase = PhaseRequesting
	c.roomId = params.RoomId
	c.mu.Unlock()

	if err := c.session.Send(protocol.EventRoomJoin, protocol.RoomJoinPayload{
		RoomId:          params.RoomId,
		Profile:         c.profile,
		AsHost:          params.AsHost,
		Content:         params.Content,
		RequireApproval: params.RequireApproval,
	}); err != nil {
		return fmt.Errorf("failed to send join: %w", err)
	}

	c.logger.InfoContext(ctx, "join sent", "room_id", params.RoomId, "as_host", params.AsHost)
	return nil
}

func (c *Controller) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseInRoom && c.phase != PhaseRequesting {
		c.mu.Unlock()
		return ErrNotInRoom
	}
	c.phase = PhaseLeft
	c.mu.Unlock()

	if err := c.session.Send(protocol.EventRoomLeave, protocol.RoomLeavePayload{}); err != nil {
		return fmt.Errorf("failed to send leave: %w", err)
	}

	c.bus.Publish(TopicTerminal, Terminal{Phase: PhaseLeft})
	return nil
}

// --- host-only operations.
// The relay is the enforcing side for all of these; the local check only
// keeps a non-host client from emitting doomed requests.

func (c *Controller) ApproveJoin(ctx context.Context, requestId string) error {
	if err := c.requireHost(); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.pendingRequests, requestId)
	c.mu.Unlock()

	return c.session.Send(protocol.EventRoomJoinApprove, protocol.RoomJoinApprovePayload{RequestId: requestId})
}

func (c *Controller) RejectJoin(ctx context.Context, requestId string) error {
	if err := c.requireHost(); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.pendingRequests, requestId)
	c.mu.Unlock()

	return c.session.Send(protocol.EventRoomJoinReject, protocol.RoomJoinRejectPayload{RequestId: requestId})
}

func (c *Controller) TransferHost(ctx context.Context, userId string) error {
	if err := c.requireHost(); err != nil {
		return err
	}

	c.mu.RLock()
	_, exists := c.participants[userId]
	c.mu.RUnlock()
	if !exists {
		return ErrMemberNotFound
	}

	// the flag itself flips when the relay echoes room:host_changed,
	// keeping a single writer for host identity
	return c.session.Send(protocol.EventHostTransfer, protocol.HostTransferPayload{UserId: userId})
}

func (c *Controller) Kick(ctx context.Context, userId string) error {
	if err := c.requireHost(); err != nil {
		return err
	}

	return c.session.Send(protocol.EventHostKick, protocol.HostKickPayload{UserId: userId})
}

// MuteParticipant asks the target client to mute itself. The badge on the
// host's own roster copy is updated optimistically.
func (c *Controller) MuteParticipant(ctx context.Context, userId string, muted bool) error {
	if err := c.requireHost(); err != nil {
		return err
	}

	c.setParticipantMedia(userId, protocol.MediaTypeAudio, !muted)

	return c.session.Send(protocol.EventHostMuteParticipant, protocol.HostMuteParticipantPayload{
		UserId: userId,
		Muted:  muted,
	})
}

func (c *Controller) SetParticipantVideo(ctx context.Context, userId string, videoOff bool) error {
	if err := c.requireHost(); err != nil {
		return err
	}

	c.setParticipantMedia(userId, protocol.MediaTypeVideo, !videoOff)

	return c.session.Send(protocol.EventHostVideoOffParticipant, protocol.HostVideoOffParticipantPayload{
		UserId:   userId,
		VideoOff: videoOff,
	})
}

func (c *Controller) MuteAll(ctx context.Context) error {
	if err := c.requireHost(); err != nil {
		return err
	}

	c.mu.Lock()
	for id, p := range c.participants {
		if !p.IsHost {
			p.AudioEnabled = false
			c.participants[id] = p
		}
	}
	c.mu.Unlock()

	return c.session.Send(protocol.EventHostMuteAll, protocol.HostMuteAllPayload{})
}

func (c *Controller) VideoOffAll(ctx context.Context) error {
	if err := c.requireHost(); err != nil {
		return err
	}

	c.mu.Lock()
	for id, p := range c.participants {
		if !p.IsHost {
			p.VideoEnabled = false
			c.participants[id] = p
		}
	}
	c.mu.Unlock()

	return c.session.Send(protocol.EventHostVideoOffAll, protocol.HostVideoOffAllPayload{})
}

func (c *Controller) EndRoom(ctx context.Context) error {
	if err := c.requireHost(); err != nil {
		return err
	}

	return c.session.Send(protocol.EventRoomEnd, protocol.RoomEndPayload{})
}

func (c *Controller) SendChat(ctx context.Context, text string) error {
	c.mu.RLock()
	inRoom := c.phase == PhaseInRoom
	c.mu.RUnlock()
	if !inRoom {
		return ErrNotInRoom
	}

	return c.session.Send(protocol.EventChatMessage, protocol.ChatMessagePayload{
		Id:         uuid.NewString(),
		SenderId:   c.profile.UserId,
		SenderName: c.profile.Username,
		Text:       text,
		Timestamp:  time.Now().UnixMilli(),
	})
}

// ReportMediaStatus propagates the local mute/video badge to the room.
func (c *Controller) ReportMediaStatus(ctx context.Context, mediaType string, enabled bool) error {
	return c.session.Send(protocol.EventMediaStatus, protocol.MediaStatusPayload{
		UserId:  c.profile.UserId,
		Type:    mediaType,
		Enabled: enabled,
	})
}

// --- queries.
// Long-lived handlers call these at event time instead of capturing
// authority flags in closures.

func (c *Controller) IsHost() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase == PhaseInRoom && c.hostId == c.profile.UserId
}

func (c *Controller) HostId() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hostId
}

func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

func (c *Controller) SelfConnectionId() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfConnectionId
}

func (c *Controller) Profile() protocol.Profile {
	return c.profile
}

func (c *Controller) Participants() []protocol.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := maps.Values(c.participants)
	slices.SortFunc(list, func(a, b protocol.Participant) int {
		if a.UserId < b.UserId {
			return -1
		}
		if a.UserId > b.UserId {
			return 1
		}
		return 0
	})
	return list
}

func (c *Controller) Participant(userId string) (protocol.Participant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.participants[userId]
	return p, ok
}

func (c *Controller) PendingRequests() []protocol.RoomJoinRequestPayload {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Values(c.pendingRequests)
}

// ChatLog returns the in-memory chat history, ordered by receipt.
func (c *Controller) ChatLog() []protocol.ChatMessagePayload {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.chat)
}

func (c *Controller) requireHost() error {
	if !c.IsHost() {
		return ErrNotHost
	}
	return nil
}

func (c *Controller) setParticipantMedia(userId, mediaType string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.participants[userId]
	if !ok {
		return
	}
	switch mediaType {
	case protocol.MediaTypeAudio:
		p.AudioEnabled = enabled
	case protocol.MediaTypeVideo:
		p.VideoEnabled = enabled
	}
	c.participants[userId] = p
}
