package protocol

import "encoding/json"

// Envelope is the wire framing for every event in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Profile struct {
	UserId    string `json:"user_id" validate:"required"`
	Username  string `json:"username" validate:"required,min=1,max=50"`
	AvatarURL string `json:"avatar_url"`
}

// Participant is a roster entry. ConnectionId is transient and changes
// across reconnects; UserId is stable.
type Participant struct {
	UserId       string `json:"user_id"`
	ConnectionId string `json:"connection_id"`
	Username     string `json:"username"`
	AvatarURL    string `json:"avatar_url"`
	IsHost       bool   `json:"is_host"`
	AudioEnabled bool   `json:"audio_enabled"`
	VideoEnabled bool   `json:"video_enabled"`
}

type ContentRef struct {
	ContentId string `json:"content_id"`
	Title     string `json:"title"`
	Season    int    `json:"season,omitempty"`
	Episode   int    `json:"episode,omitempty"`
}

type PlaybackState struct {
	CurrentTime  float64 `json:"current_time"`
	IsPlaying    bool    `json:"is_playing"`
	PlaybackRate float64 `json:"playback_rate"`
	IsBuffering  bool    `json:"is_buffering"`
}

type RoomJoinPayload struct {
	// RoomId may be empty when AsHost is set; the relay generates one.
	RoomId  string      `json:"room_id" validate:"omitempty,min=4,max=16"`
	Profile Profile     `json:"profile"`
	AsHost  bool        `json:"as_host"`
	Content *ContentRef `json:"content,omitempty"`
	// RequireApproval is only meaningful when AsHost creates the room.
	RequireApproval bool `json:"require_approval,omitempty"`
}

// RoomStatePayload is the authoritative snapshot sent on join acceptance
// and after a host change.
type RoomStatePayload struct {
	RoomId       string        `json:"room_id"`
	HostId       string        `json:"host_id"`
	Participants []Participant `json:"participants"`
	Playback     PlaybackState `json:"playback"`
	Content      ContentRef    `json:"content"`
}

type ParticipantJoinedPayload struct {
	Participant Participant `json:"participant"`
}

type ParticipantLeftPayload struct {
	UserId       string `json:"user_id"`
	ConnectionId string `json:"connection_id"`
}

// SignalPayload relays an opaque WebRTC signal between two connections.
// The relay never inspects Signal.
type SignalPayload struct {
	To      string          `json:"to"`
	From    string          `json:"from"`
	Signal  json.RawMessage `json:"signal"`
	Profile Profile         `json:"profile"`
}

type SyncPlayPayload struct {
	CurrentTime float64 `json:"current_time"`
}

type SyncPausePayload struct {
	CurrentTime float64 `json:"current_time"`
}

type SyncSeekPayload struct {
	CurrentTime float64 `json:"current_time"`
}

type SyncSpeedPayload struct {
	PlaybackRate float64 `json:"playback_rate"`
}

type SyncBufferingPayload struct {
	IsBuffering bool `json:"is_buffering"`
}

type SyncStatePayload struct {
	CurrentTime float64 `json:"current_time"`
	IsPlaying   bool    `json:"is_playing"`
}

type SyncReportPayload struct {
	UserId      string  `json:"user_id"`
	CurrentTime float64 `json:"current_time"`
}

type MediaStatusPayload struct {
	UserId  string `json:"user_id"`
	Type    string `json:"type" validate:"oneof=audio video"`
	Enabled bool   `json:"enabled"`
}

type HostMuteParticipantPayload struct {
	UserId string `json:"user_id"`
	Muted  bool   `json:"muted"`
}

type HostVideoOffParticipantPayload struct {
	UserId   string `json:"user_id"`
	VideoOff bool   `json:"video_off"`
}

type HostKickPayload struct {
	UserId string `json:"user_id"`
}

type HostTransferPayload struct {
	UserId string `json:"user_id"`
}

type RoomHostChangedPayload struct {
	HostId string `json:"host_id"`
}

type RoomJoinRequestPayload struct {
	RequestId    string  `json:"request_id"`
	ConnectionId string  `json:"connection_id"`
	Profile      Profile `json:"profile"`
}

type RoomJoinApprovePayload struct {
	RequestId string `json:"request_id"`
}

type RoomJoinRejectPayload struct {
	RequestId string `json:"request_id"`
}

type RoomJoinRejectedPayload struct {
	Reason string `json:"reason"`
}

type RoomEndedPayload struct{}

type RoomLeavePayload struct{}

type RoomEndPayload struct{}

type HostMuteAllPayload struct{}

type HostVideoOffAllPayload struct{}

type ChatMessagePayload struct {
	Id         string `json:"id"`
	SenderId   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text" validate:"required,max=2000"`
	Timestamp  int64  `json:"timestamp"`
}
