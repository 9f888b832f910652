// Package mesh maintains one WebRTC connection per remote participant.
// Links are created and destroyed from roster events and incoming
// signals; a failure on one link never touches the others.
package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/castly/watchparty/internal/media"
	"github.com/castly/watchparty/internal/membership"
	"github.com/castly/watchparty/internal/protocol"
	"github.com/castly/watchparty/pkg/eventbus"
)

type iSession interface {
	Send(eventType string, payload any) error
}

// iRoster is answered by the membership controller at call time.
type iRoster interface {
	SelfConnectionId() string
	Profile() protocol.Profile
}

type Config struct {
	// ICEServers is the static STUN/TURN list handed to every peer
	// connection.
	ICEServers []string
}

type Manager struct {
	session iSession
	roster  iRoster
	source  media.Source // nil means receive-only
	logger  *slog.Logger

	webrtcConfig webrtc.Configuration

	mu           sync.Mutex
	links        map[string]*link
	audioEnabled bool
	videoEnabled bool
	videoTrack   webrtc.TrackLocal
	closed       bool

	onRemoteTrack func(connectionId string, track *webrtc.TrackRemote)
	onPeerClosed  func(connectionId string)
}

func NewManager(session iSession, roster iRoster, source media.Source, bus *eventbus.Bus, cfg *Config, logger *slog.Logger) *Manager {
	iceServers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, url := range cfg.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
	}

	m := &Manager{
		session:      session,
		roster:       roster,
		source:       source,
		logger:       logger,
		webrtcConfig: webrtc.Configuration{ICEServers: iceServers},
		links:        make(map[string]*link),
		audioEnabled: source != nil,
		videoEnabled: source != nil,
	}

	bus.Subscribe(membership.TopicRoomState, func(payload any) {
		state := payload.(protocol.RoomStatePayload)
		for _, p := range state.Participants {
			m.HandleParticipantAppeared(context.Background(), p.ConnectionId, protocol.Profile{
				UserId:    p.UserId,
				Username:  p.Username,
				AvatarURL: p.AvatarURL,
			})
		}
	})
	bus.Subscribe(membership.TopicParticipantJoined, func(payload any) {
		p := payload.(protocol.Participant)
		m.HandleParticipantAppeared(context.Background(), p.ConnectionId, protocol.Profile{
			UserId:    p.UserId,
			Username:  p.Username,
			AvatarURL: p.AvatarURL,
		})
	})
	bus.Subscribe(membership.TopicParticipantLeft, func(payload any) {
		p := payload.(protocol.ParticipantLeftPayload)
		m.HandleParticipantGone(context.Background(), p.ConnectionId)
	})
	bus.Subscribe(membership.TopicMediaDirective, func(payload any) {
		d := payload.(membership.MediaDirective)
		ctx := context.Background()
		switch d.Type {
		case protocol.MediaTypeAudio:
			m.SetLocalAudio(ctx, d.Enabled)
		case protocol.MediaTypeVideo:
			if err := m.SetLocalVideo(ctx, d.Enabled); err != nil {
				logger.WarnContext(ctx, "failed to obey video directive", "error", err)
			}
		}
	})

	return m
}

// OnRemoteTrack registers the callback for inbound media. It fires on
// pion's goroutines with the owning connection id.
func (m *Manager) OnRemoteTrack(fn func(connectionId string, track *webrtc.TrackRemote)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRemoteTrack = fn
}

// OnPeerClosed registers the callback fired when a link is torn down,
// whether from a roster removal or a fatal connection state.
func (m *Manager) OnPeerClosed(fn func(connectionId string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPeerClosed = fn
}

// HandleParticipantAppeared creates a link to the new participant if this
// side wins the initiator election. Duplicate appearances are no-ops.
func (m *Manager) HandleParticipantAppeared(ctx context.Context, connectionId string, profile protocol.Profile) {
	selfId := m.roster.SelfConnectionId()
	if selfId == "" || connectionId == "" || connectionId == selfId {
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if _, exists := m.links[connectionId]; exists {
		m.mu.Unlock()
		return
	}

	if !shouldInitiate(selfId, connectionId) {
		// the other side offers first; the link is created on its offer
		m.mu.Unlock()
		return
	}

	l, err := m.createLinkLocked(connectionId, profile, true)
	m.mu.Unlock()
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to create peer link", "connection_id", connectionId, "error", err)
		return
	}

	offer, err := l.createOffer()
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to create offer", "connection_id", connectionId, "error", err)
		m.dropLink(connectionId, l)
		return
	}

	m.sendSignal(ctx, connectionId, signalMessage{Type: signalOffer, SDP: offer})
}

// HandleParticipantGone destroys the link and drops any cached inbound
// media for the connection id.
func (m *Manager) HandleParticipantGone(ctx context.Context, connectionId string) {
	m.mu.Lock()
	l, exists := m.links[connectionId]
	delete(m.links, connectionId)
	onPeerClosed := m.onPeerClosed
	m.mu.Unlock()

	if !exists {
		return
	}

	l.close()
	m.logger.InfoContext(ctx, "peer link destroyed", "connection_id", connectionId)
	if onPeerClosed != nil {
		onPeerClosed(connectionId)
	}
}

// HandleSignal applies one relayed signal to the matching link. Signals
// that do not fit the link's current state are resolved per the glare
// rules or discarded; an error on one link never affects another.
func (m *Manager) HandleSignal(ctx context.Context, from string, raw json.RawMessage, profile protocol.Profile) {
	msg, err := decodeSignal(raw)
	if err != nil {
		m.logger.WarnContext(ctx, "dropping malformed signal", "from", from, "error", err)
		return
	}

	switch msg.Type {
	case signalOffer:
		if msg.SDP == nil {
			return
		}
		m.handleOffer(ctx, from, profile, *msg.SDP)
	case signalAnswer:
		if msg.SDP == nil {
			return
		}
		if l := m.linkFor(from); l != nil {
			if err := l.applyAnswer(*msg.SDP); err != nil {
				m.logger.WarnContext(ctx, "failed to apply answer", "from", from, "error", err)
			}
		}
	case signalCandidate:
		if msg.Candidate == nil {
			return
		}
		// a candidate with no link cannot rebuild connection state; discard
		if l := m.linkFor(from); l != nil {
			if err := l.addCandidate(*msg.Candidate); err != nil {
				m.logger.WarnContext(ctx, "failed to add candidate", "from", from, "error", err)
			}
		}
	default:
		m.logger.DebugContext(ctx, "dropping unknown signal type", "type", msg.Type)
	}
}

func (m *Manager) handleOffer(ctx context.Context, from string, profile protocol.Profile, offer webrtc.SessionDescription) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	existing := m.links[from]

	// offer glare: both sides offered at once, or a remote recovery
	// restarted negotiation. Last offer wins: the stale local attempt is
	// discarded and this side proceeds as non-initiator.
	if existing != nil && existing.offerOutstanding() {
		delete(m.links, from)
		m.mu.Unlock()
		existing.close()
		m.logger.InfoContext(ctx, "offer glare resolved, recreating as non-initiator", "connection_id", from)
		m.mu.Lock()
		existing = nil
	}

	l := existing
	if l == nil {
		var err error
		l, err = m.createLinkLocked(from, profile, false)
		if err != nil {
			m.mu.Unlock()
			m.logger.ErrorContext(ctx, "failed to create peer link", "connection_id", from, "error", err)
			return
		}
	}
	m.mu.Unlock()

	answer, err := l.applyOffer(offer)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to apply offer", "from", from, "error", err)
		m.dropLink(from, l)
		return
	}

	m.sendSignal(ctx, from, signalMessage{Type: signalAnswer, SDP: answer})
}

// SetLocalAudio toggles the outbound audio enabled flag. The track stays
// attached to every sender; only sample production is gated, so the
// toggle is cheap in both directions.
func (m *Manager) SetLocalAudio(ctx context.Context, enabled bool) {
	m.mu.Lock()
	m.audioEnabled = enabled
	m.mu.Unlock()

	m.reportMediaStatus(ctx, protocol.MediaTypeAudio, enabled)
}

func (m *Manager) AudioEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioEnabled
}

// SetLocalVideo stops and removes the outbound video track when
// disabling, so the capture device is actually released, and acquires a
// fresh track on enabling, pushing it into every existing link. Links
// stay up throughout; this renegotiates, it does not reconnect.
func (m *Manager) SetLocalVideo(ctx context.Context, enabled bool) error {
	if m.source == nil {
		return nil
	}

	m.mu.Lock()
	if m.videoEnabled == enabled {
		m.mu.Unlock()
		return nil
	}
	m.videoEnabled = enabled
	links := m.currentLinksLocked()

	if !enabled {
		m.videoTrack = nil
		m.mu.Unlock()

		for id, l := range links {
			if err := l.removeTrack(webrtc.RTPCodecTypeVideo.String()); err != nil {
				m.logger.WarnContext(ctx, "failed to remove video track", "connection_id", id, "error", err)
				continue
			}
			m.renegotiate(ctx, id, l)
		}
		m.source.ReleaseVideoTrack()
		m.reportMediaStatus(ctx, protocol.MediaTypeVideo, false)
		return nil
	}

	track, err := m.source.AcquireVideoTrack()
	if err != nil {
		m.videoEnabled = false
		m.mu.Unlock()
		return fmt.Errorf("failed to acquire video track: %w", err)
	}
	m.videoTrack = track
	m.mu.Unlock()

	for id, l := range links {
		replaced, err := l.replaceTrack(webrtc.RTPCodecTypeVideo.String(), track)
		if err != nil {
			m.logger.WarnContext(ctx, "failed to replace video track", "connection_id", id, "error", err)
			continue
		}
		if replaced {
			continue
		}
		if err := l.addTrack(track); err != nil {
			m.logger.WarnContext(ctx, "failed to add video track", "connection_id", id, "error", err)
			continue
		}
		m.renegotiate(ctx, id, l)
	}

	m.reportMediaStatus(ctx, protocol.MediaTypeVideo, true)
	return nil
}

func (m *Manager) VideoEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoEnabled
}

// HasLink reports whether a live link exists for the connection id.
func (m *Manager) HasLink(connectionId string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.links[connectionId]
	return ok
}

func (m *Manager) LinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

// Close destroys every link and stops the manager. Late pion callbacks
// find the map empty and return without effect.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	links := m.links
	m.links = make(map[string]*link)
	m.mu.Unlock()

	for _, l := range links {
		l.close()
	}
	if m.source != nil {
		m.source.Close()
	}
}

// --- internals

func (m *Manager) createLinkLocked(remoteId string, profile protocol.Profile, initiator bool) (*link, error) {
	pc, err := webrtc.NewPeerConnection(m.webrtcConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	l := newLink(remoteId, profile, initiator, pc)

	// callbacks carry the id and look the link up; they never capture l
	// beyond the identity check, so a recreated link is not confused with
	// a torn-down one
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		if m.linkFor(remoteId) != l {
			return
		}
		init := candidate.ToJSON()
		m.sendSignal(context.Background(), remoteId, signalMessage{Type: signalCandidate, Candidate: &init})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		current := m.linkFor(remoteId)
		if current != l {
			return
		}
		current.addRemoteTrack(track)

		m.mu.Lock()
		onRemoteTrack := m.onRemoteTrack
		m.mu.Unlock()
		if onRemoteTrack != nil {
			onRemoteTrack(remoteId, track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.logger.Debug("peer connection state", "connection_id", remoteId, "state", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			// terminal transport failure removes the link but not the
			// roster entry; a later roster event recreates it
			m.dropLink(remoteId, l)
		}
	})

	if err := m.publishLocalTracks(l); err != nil {
		pc.Close()
		return nil, err
	}

	m.links[remoteId] = l
	m.logger.Info("peer link created", "connection_id", remoteId, "initiator", initiator)
	return l, nil
}

// publishLocalTracks attaches the local outbound media. With no source
// the link is receive-only, which is a permitted degraded mode.
func (m *Manager) publishLocalTracks(l *link) error {
	if m.source == nil {
		return nil
	}

	audio, err := m.source.AudioTrack()
	if err != nil {
		return fmt.Errorf("failed to get audio track: %w", err)
	}
	if err := l.addTrack(audio); err != nil {
		return err
	}

	if m.videoEnabled {
		if m.videoTrack == nil {
			track, err := m.source.AcquireVideoTrack()
			if err != nil {
				// degrade to audio-only rather than failing the link
				m.logger.Warn("failed to acquire video track", "error", err)
				m.videoEnabled = false
				return nil
			}
			m.videoTrack = track
		}
		if err := l.addTrack(m.videoTrack); err != nil {
			return err
		}
	}

	return nil
}

func (m *Manager) renegotiate(ctx context.Context, remoteId string, l *link) {
	offer, err := l.createOffer()
	if err != nil {
		m.logger.WarnContext(ctx, "failed to renegotiate", "connection_id", remoteId, "error", err)
		return
	}

	m.sendSignal(ctx, remoteId, signalMessage{Type: signalOffer, SDP: offer})
}

func (m *Manager) reportMediaStatus(ctx context.Context, mediaType string, enabled bool) {
	if err := m.session.Send(protocol.EventMediaStatus, protocol.MediaStatusPayload{
		UserId:  m.roster.Profile().UserId,
		Type:    mediaType,
		Enabled: enabled,
	}); err != nil {
		m.logger.WarnContext(ctx, "failed to report media status", "media", mediaType, "error", err)
	}
}

func (m *Manager) linkFor(remoteId string) *link {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[remoteId]
}

// dropLink removes the link only if it is still the current one for the
// id, so a late callback from a replaced link cannot kill its successor.
func (m *Manager) dropLink(remoteId string, l *link) {
	m.mu.Lock()
	current, exists := m.links[remoteId]
	if !exists || current != l {
		m.mu.Unlock()
		return
	}
	delete(m.links, remoteId)
	onPeerClosed := m.onPeerClosed
	m.mu.Unlock()

	l.close()
	m.logger.Info("peer link dropped", "connection_id", remoteId)
	if onPeerClosed != nil {
		onPeerClosed(remoteId)
	}
}

func (m *Manager) currentLinksLocked() map[string]*link {
	links := make(map[string]*link, len(m.links))
	for id, l := range m.links {
		links[id] = l
	}
	return links
}

func (m *Manager) sendSignal(ctx context.Context, to string, msg signalMessage) {
	raw, err := encodeSignal(msg)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to encode signal", "error", err)
		return
	}

	if err := m.session.Send(protocol.EventSignal, protocol.SignalPayload{
		To:      to,
		From:    m.roster.SelfConnectionId(),
		Signal:  raw,
		Profile: m.roster.Profile(),
	}); err != nil {
		// one lost signal only affects this link; a roster event retries
		m.logger.WarnContext(ctx, "failed to send signal", "to", to, "error", err)
	}
}
