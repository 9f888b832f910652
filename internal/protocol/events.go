// Package protocol defines the event contract between watch-party clients
// and the signaling relay. The set of event kinds is closed: every kind is
// enumerated here and decoded by a single typed dispatch (decode.go).
package protocol

const (
	// room lifecycle
	EventRoomJoin         = "room:join"
	EventRoomLeave        = "room:leave"
	EventRoomEnd          = "room:end"
	EventRoomState        = "room:state"
	EventRoomEnded        = "room:ended"
	EventRoomHostChanged  = "room:host_changed"
	EventRoomJoinRequest  = "room:join_request"
	EventRoomJoinApprove  = "room:join_approve"
	EventRoomJoinReject   = "room:join_reject"
	EventRoomJoinRejected = "room:join_rejected"

	// roster
	EventParticipantJoined = "participant:joined"
	EventParticipantLeft   = "participant:left"

	// webrtc signaling relay
	EventSignal = "signal"

	// playback sync
	EventSyncPlay      = "sync:play"
	EventSyncPause     = "sync:pause"
	EventSyncSeek      = "sync:seek"
	EventSyncSpeed     = "sync:speed"
	EventSyncBuffering = "sync:buffering"
	EventSyncState     = "sync:state"
	EventSyncReport    = "sync:report"

	// media badges
	EventMediaStatus = "media:status"

	// host directives
	EventHostMuteParticipant     = "host:mute_participant"
	EventHostVideoOffParticipant = "host:video_off_participant"
	EventHostMuteAll             = "host:mute_all"
	EventHostVideoOffAll         = "host:video_off_all"
	EventHostKick                = "host:kick"
	EventHostTransfer            = "host:transfer"

	// chat
	EventChatMessage = "chat:message"
)

const (
	MediaTypeAudio = "audio"
	MediaTypeVideo = "video"
)
