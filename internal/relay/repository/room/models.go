package room

type Room struct {
	HostId          string `redis:"host_id"`
	ContentId       string `redis:"content_id"`
	Title           string `redis:"title"`
	Season          int    `redis:"season"`
	Episode         int    `redis:"episode"`
	RequireApproval bool   `redis:"require_approval"`
}

// Member is keyed by the transient connection id; UserId survives
// reconnects.
type Member struct {
	UserId       string `redis:"user_id"`
	Username     string `redis:"username"`
	AvatarURL    string `redis:"avatar_url"`
	RoomId       string `redis:"room_id"`
	AudioEnabled bool   `redis:"audio_enabled"`
	VideoEnabled bool   `redis:"video_enabled"`
}

type Playback struct {
	CurrentTime  float64 `redis:"current_time"`
	IsPlaying    bool    `redis:"is_playing"`
	PlaybackRate float64 `redis:"playback_rate"`
	IsBuffering  bool    `redis:"is_buffering"`
}

type JoinRequest struct {
	UserId       string `redis:"user_id"`
	Username     string `redis:"username"`
	AvatarURL    string `redis:"avatar_url"`
	ConnectionId string `redis:"connection_id"`
	RoomId       string `redis:"room_id"`
}
