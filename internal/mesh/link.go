package mesh

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/castly/watchparty/internal/protocol"
)

// link owns the peer connection to one remote participant. Links live in
// the manager's map keyed by connection id; pion callbacks carry the id
// and look the link up there, so a torn-down link is never reached
// through a stale capture.
type link struct {
	remoteId  string
	profile   protocol.Profile
	initiator bool

	mu sync.Mutex
	pc *webrtc.PeerConnection

	// true while a locally created offer has not been answered; used to
	// detect offer glare
	makingOffer bool

	// candidates received before the remote description was applied
	pendingCandidates []webrtc.ICECandidateInit

	senders      map[string]*webrtc.RTPSender // keyed by track kind
	remoteTracks []*webrtc.TrackRemote
}

func newLink(remoteId string, profile protocol.Profile, initiator bool, pc *webrtc.PeerConnection) *link {
	return &link{
		remoteId:  remoteId,
		profile:   profile,
		initiator: initiator,
		pc:        pc,
		senders:   make(map[string]*webrtc.RTPSender),
	}
}

func (l *link) addTrack(track webrtc.TrackLocal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sender, err := l.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("failed to add %s track: %w", track.Kind(), err)
	}

	l.senders[track.Kind().String()] = sender
	return nil
}

func (l *link) removeTrack(kind string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sender, ok := l.senders[kind]
	if !ok {
		return nil
	}
	delete(l.senders, kind)

	if err := l.pc.RemoveTrack(sender); err != nil {
		return fmt.Errorf("failed to remove %s track: %w", kind, err)
	}

	return nil
}

// replaceTrack swaps the outbound track in place on the existing sender.
// The connection stays up; no teardown, no new offer round for the caller
// when the codec matches.
func (l *link) replaceTrack(kind string, track webrtc.TrackLocal) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sender, ok := l.senders[kind]
	if !ok {
		return false, nil
	}

	if err := sender.ReplaceTrack(track); err != nil {
		return false, fmt.Errorf("failed to replace %s track: %w", kind, err)
	}

	return true, nil
}

func (l *link) createOffer() (*webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("failed to set local offer: %w", err)
	}

	l.makingOffer = true
	return l.pc.LocalDescription(), nil
}

func (l *link) applyOffer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("failed to set remote offer: %w", err)
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("failed to set local answer: %w", err)
	}

	l.flushCandidatesLocked()
	return l.pc.LocalDescription(), nil
}

func (l *link) applyAnswer(answer webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// an answer in a stable state is a late duplicate; applying it would
	// corrupt the negotiation, so it is dropped
	if l.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		return nil
	}

	if err := l.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("failed to set remote answer: %w", err)
	}

	l.makingOffer = false
	l.flushCandidatesLocked()
	return nil
}

func (l *link) addCandidate(candidate webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pc.RemoteDescription() == nil {
		l.pendingCandidates = append(l.pendingCandidates, candidate)
		return nil
	}

	if err := l.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("failed to add ice candidate: %w", err)
	}

	return nil
}

func (l *link) flushCandidatesLocked() {
	for _, candidate := range l.pendingCandidates {
		l.pc.AddICECandidate(candidate)
	}
	l.pendingCandidates = nil
}

func (l *link) offerOutstanding() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.makingOffer
}

func (l *link) addRemoteTrack(track *webrtc.TrackRemote) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remoteTracks = append(l.remoteTracks, track)
}

// RemoteTracks returns the most recently received inbound tracks.
func (l *link) RemoteTracks() []*webrtc.TrackRemote {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*webrtc.TrackRemote(nil), l.remoteTracks...)
}

func (l *link) connectionState() webrtc.PeerConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pc.ConnectionState()
}

func (l *link) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pc.Close()
}
