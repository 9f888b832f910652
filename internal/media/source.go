package media

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Source produces the local outbound tracks. The audio track is a
// singleton: muting toggles its enabled flag and the same track stays
// attached. Video is acquired fresh on every enable so the capture device
// is actually released while video is off.
type Source interface {
	AudioTrack() (webrtc.TrackLocal, error)
	AcquireVideoTrack() (webrtc.TrackLocal, error)
	ReleaseVideoTrack()
	Close() error
}

// SampleSource is a Source backed by pion static sample tracks. The
// embedding application feeds encoded frames into the tracks; this type
// only manages their lifecycle.
type SampleSource struct {
	mu    sync.Mutex
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	streamId string
}

func NewSampleSource() *SampleSource {
	return &SampleSource{streamId: uuid.NewString()}
}

func (s *SampleSource) AudioTrack() (webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.audio != nil {
		return s.audio, nil
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio-"+uuid.NewString(), s.streamId,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}

	s.audio = track
	return track, nil
}

func (s *SampleSource) AcquireVideoTrack() (webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video-"+uuid.NewString(), s.streamId,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}

	s.video = track
	return track, nil
}

func (s *SampleSource) ReleaseVideoTrack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = nil
}

func (s *SampleSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = nil
	s.video = nil
	return nil
}
