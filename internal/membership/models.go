package membership

// Phase is the local client's room lifecycle state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRequesting Phase = "requesting"
	PhaseInRoom     Phase = "in_room"
	PhaseRejected   Phase = "rejected"
	PhaseKicked     Phase = "kicked"
	PhaseEnded      Phase = "ended"
	PhaseLeft       Phase = "left"
)

// Bus topics published by the controller. Other controllers subscribe to
// these instead of reading membership state directly.
const (
	TopicRoomState         = "membership.room_state"         // protocol.RoomStatePayload
	TopicParticipantJoined = "membership.participant_joined" // protocol.Participant
	TopicParticipantLeft   = "membership.participant_left"   // protocol.ParticipantLeftPayload
	TopicHostChanged       = "membership.host_changed"       // HostChange
	TopicJoinRequest       = "membership.join_request"       // protocol.RoomJoinRequestPayload
	TopicTerminal          = "membership.terminal"           // Terminal
	TopicMediaDirective    = "membership.media_directive"    // MediaDirective
	TopicChatMessage       = "membership.chat_message"       // protocol.ChatMessagePayload
)

type HostChange struct {
	HostId string
	IsSelf bool
}

// Terminal is published once when the room is over for this client.
type Terminal struct {
	Phase  Phase
	Reason string
}

// MediaDirective is a host order the local client must obey by toggling
// its own outbound track.
type MediaDirective struct {
	Type    string // protocol.MediaTypeAudio or protocol.MediaTypeVideo
	Enabled bool
}
