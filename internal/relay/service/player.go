package service

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/castly/watchparty/internal/relay/repository/room"
)

// UpdatePlaybackParams carries a partial state assertion; nil fields are
// left untouched. Only the host may apply one.
type UpdatePlaybackParams struct {
	SenderConnectionId string
	CurrentTime        *float64
	IsPlaying          *bool
	PlaybackRate       *float64
	IsBuffering        *bool
}

type UpdatePlaybackResponse struct {
	Conns []*websocket.Conn
}

func (s *service) UpdatePlayback(ctx context.Context, params *UpdatePlaybackParams) (UpdatePlaybackResponse, error) {
	roomId, err := s.checkIfHost(ctx, params.SenderConnectionId)
	if err != nil {
		return UpdatePlaybackResponse{}, fmt.Errorf("failed to check host: %w", err)
	}

	playback, err := s.roomRepo.GetPlayback(ctx, roomId)
	if err != nil {
		return UpdatePlaybackResponse{}, fmt.Errorf("failed to get playback: %w", err)
	}

	if params.CurrentTime != nil {
		playback.CurrentTime = *params.CurrentTime
	}
	if params.IsPlaying != nil {
		playback.IsPlaying = *params.IsPlaying
	}
	if params.PlaybackRate != nil {
		playback.PlaybackRate = *params.PlaybackRate
	}
	if params.IsBuffering != nil {
		playback.IsBuffering = *params.IsBuffering
	}

	if err := s.roomRepo.SetPlayback(ctx, &room.SetPlaybackParams{
		RoomId:   roomId,
		Playback: playback,
	}); err != nil {
		return UpdatePlaybackResponse{}, fmt.Errorf("failed to set playback: %w", err)
	}

	conns, err := s.getConnsExcept(ctx, roomId, params.SenderConnectionId)
	if err != nil {
		return UpdatePlaybackResponse{}, err
	}

	return UpdatePlaybackResponse{Conns: conns}, nil
}
