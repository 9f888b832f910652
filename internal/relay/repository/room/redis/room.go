package redis

import (
	"context"
	"fmt"

	"github.com/castly/watchparty/internal/relay/repository/room"
)

func (r repo) SetRoom(ctx context.Context, params *room.SetRoomParams) error {
	r.logger.DebugContext(ctx, "redis: set room", "params", params)
	pipe := r.rc.TxPipeline()

	roomKey := r.getRoomKey(params.RoomId)
	pipe.HSet(ctx, roomKey, room.Room{
		HostId:          params.HostId,
		ContentId:       params.ContentId,
		Title:           params.Title,
		Season:          params.Season,
		Episode:         params.Episode,
		RequireApproval: params.RequireApproval,
	})
	pipe.Expire(ctx, roomKey, roomTTL)

	playbackKey := r.getPlaybackKey(params.RoomId)
	pipe.HSet(ctx, playbackKey, room.Playback{PlaybackRate: 1.0})
	pipe.Expire(ctx, playbackKey, roomTTL)

	return r.executePipe(ctx, pipe)
}

func (r repo) GetRoom(ctx context.Context, roomId string) (room.Room, error) {
	res := r.rc.HGetAll(ctx, r.getRoomKey(roomId))
	if res.Err() != nil {
		return room.Room{}, res.Err()
	}
	if len(res.Val()) == 0 {
		return room.Room{}, room.ErrRoomNotFound
	}

	var rm room.Room
	if err := res.Scan(&rm); err != nil {
		return room.Room{}, fmt.Errorf("failed to scan room: %w", err)
	}

	return rm, nil
}

func (r repo) SetRoomHostId(ctx context.Context, roomId, hostId string) error {
	r.logger.DebugContext(ctx, "redis: set room host", "room_id", roomId, "host_id", hostId)
	return r.rc.HSet(ctx, r.getRoomKey(roomId), "host_id", hostId).Err()
}

func (r repo) GetRoomHostId(ctx context.Context, roomId string) (string, error) {
	hostId, err := r.rc.HGet(ctx, r.getRoomKey(roomId), "host_id").Result()
	if err != nil {
		return "", room.ErrRoomNotFound
	}

	return hostId, nil
}

func (r repo) RemoveRoom(ctx context.Context, roomId string) error {
	r.logger.DebugContext(ctx, "redis: remove room", "room_id", roomId)
	pipe := r.rc.TxPipeline()

	pipe.Del(ctx, r.getRoomKey(roomId))
	pipe.Del(ctx, r.getPlaybackKey(roomId))
	pipe.Del(ctx, r.getMemberListKey(roomId))
	pipe.Del(ctx, r.getJoinRequestListKey(roomId))

	return r.executePipe(ctx, pipe)
}

func (r repo) SetPlayback(ctx context.Context, params *room.SetPlaybackParams) error {
	r.logger.DebugContext(ctx, "redis: set playback", "params", params)
	pipe := r.rc.TxPipeline()

	playbackKey := r.getPlaybackKey(params.RoomId)
	pipe.HSet(ctx, playbackKey, params.Playback)
	pipe.Expire(ctx, playbackKey, roomTTL)

	return r.executePipe(ctx, pipe)
}

func (r repo) GetPlayback(ctx context.Context, roomId string) (room.Playback, error) {
	res := r.rc.HGetAll(ctx, r.getPlaybackKey(roomId))
	if res.Err() != nil {
		return room.Playback{}, res.Err()
	}
	if len(res.Val()) == 0 {
		return room.Playback{}, room.ErrRoomNotFound
	}

	var playback room.Playback
	if err := res.Scan(&playback); err != nil {
		return room.Playback{}, fmt.Errorf("failed to scan playback: %w", err)
	}

	return playback, nil
}
