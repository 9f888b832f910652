package mesh

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

const (
	signalOffer     = "offer"
	signalAnswer    = "answer"
	signalCandidate = "candidate"
)

// signalMessage is the opaque payload carried inside protocol's signal
// relay. Only mesh peers interpret it; the relay never does.
type signalMessage struct {
	Type      string                     `json:"type"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

func decodeSignal(raw json.RawMessage) (signalMessage, error) {
	var msg signalMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return signalMessage{}, fmt.Errorf("failed to decode signal: %w", err)
	}

	return msg, nil
}

func encodeSignal(msg signalMessage) (json.RawMessage, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signal: %w", err)
	}

	return raw, nil
}
