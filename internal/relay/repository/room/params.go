package room

type SetRoomParams struct {
	RoomId          string
	HostId          string
	ContentId       string
	Title           string
	Season          int
	Episode         int
	RequireApproval bool
}

type SetMemberParams struct {
	ConnectionId string
	UserId       string
	Username     string
	AvatarURL    string
	RoomId       string
	AudioEnabled bool
	VideoEnabled bool
}

type RemoveMemberParams struct {
	ConnectionId string
	RoomId       string
}

type UpdateMemberMediaParams struct {
	ConnectionId string
	MediaType    string
	Enabled      bool
}

type SetPlaybackParams struct {
	RoomId   string
	Playback Playback
}

type SetJoinRequestParams struct {
	RequestId    string
	RoomId       string
	ConnectionId string
	UserId       string
	Username     string
	AvatarURL    string
}
