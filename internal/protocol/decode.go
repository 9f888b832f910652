package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownEvent = errors.New("unknown event type")

// Decode turns an envelope into its concrete payload struct. Every event
// kind the contract defines is enumerated here; anything else is rejected.
func Decode(env Envelope) (any, error) {
	switch env.Type {
	case EventRoomJoin:
		return decodeAs[RoomJoinPayload](env)
	case EventRoomLeave:
		return decodeAs[RoomLeavePayload](env)
	case EventRoomEnd:
		return decodeAs[RoomEndPayload](env)
	case EventRoomState:
		return decodeAs[RoomStatePayload](env)
	case EventRoomEnded:
		return decodeAs[RoomEndedPayload](env)
	case EventRoomHostChanged:
		return decodeAs[RoomHostChangedPayload](env)
	case EventRoomJoinRequest:
		return decodeAs[RoomJoinRequestPayload](env)
	case EventRoomJoinApprove:
		return decodeAs[RoomJoinApprovePayload](env)
	case EventRoomJoinReject:
		return decodeAs[RoomJoinRejectPayload](env)
	case EventRoomJoinRejected:
		return decodeAs[RoomJoinRejectedPayload](env)
	case EventParticipantJoined:
		return decodeAs[ParticipantJoinedPayload](env)
	case EventParticipantLeft:
		return decodeAs[ParticipantLeftPayload](env)
	case EventSignal:
		return decodeAs[SignalPayload](env)
	case EventSyncPlay:
		return decodeAs[SyncPlayPayload](env)
	case EventSyncPause:
		return decodeAs[SyncPausePayload](env)
	case EventSyncSeek:
		return decodeAs[SyncSeekPayload](env)
	case EventSyncSpeed:
		return decodeAs[SyncSpeedPayload](env)
	case EventSyncBuffering:
		return decodeAs[SyncBufferingPayload](env)
	case EventSyncState:
		return decodeAs[SyncStatePayload](env)
	case EventSyncReport:
		return decodeAs[SyncReportPayload](env)
	case EventMediaStatus:
		return decodeAs[MediaStatusPayload](env)
	case EventHostMuteParticipant:
		return decodeAs[HostMuteParticipantPayload](env)
	case EventHostVideoOffParticipant:
		return decodeAs[HostVideoOffParticipantPayload](env)
	case EventHostMuteAll:
		return decodeAs[HostMuteAllPayload](env)
	case EventHostVideoOffAll:
		return decodeAs[HostVideoOffAllPayload](env)
	case EventHostKick:
		return decodeAs[HostKickPayload](env)
	case EventHostTransfer:
		return decodeAs[HostTransferPayload](env)
	case EventChatMessage:
		return decodeAs[ChatMessagePayload](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

func decodeAs[T any](env Envelope) (T, error) {
	var payload T
	if len(env.Payload) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
	}

	return payload, nil
}

// Encode wraps a payload into an envelope of the given type.
func Encode(eventType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}

	return Envelope{Type: eventType, Payload: raw}, nil
}
