package redis

import (
	"context"
	"fmt"

	"github.com/castly/watchparty/internal/relay/repository/room"
)

func (r repo) SetMember(ctx context.Context, params *room.SetMemberParams) error {
	r.logger.DebugContext(ctx, "redis: set member", "params", params)
	pipe := r.rc.TxPipeline()

	memberKey := r.getMemberKey(params.ConnectionId)
	pipe.HSet(ctx, memberKey, room.Member{
		UserId:       params.UserId,
		Username:     params.Username,
		AvatarURL:    params.AvatarURL,
		RoomId:       params.RoomId,
		AudioEnabled: params.AudioEnabled,
		VideoEnabled: params.VideoEnabled,
	})
	pipe.Expire(ctx, memberKey, roomTTL)

	if err := r.executePipe(ctx, pipe); err != nil {
		return err
	}

	return r.addWithOrder(ctx, r.getMemberListKey(params.RoomId), params.ConnectionId)
}

func (r repo) GetMember(ctx context.Context, connectionId string) (room.Member, error) {
	res := r.rc.HGetAll(ctx, r.getMemberKey(connectionId))
	if res.Err() != nil {
		return room.Member{}, res.Err()
	}
	if len(res.Val()) == 0 {
		return room.Member{}, room.ErrMemberNotFound
	}

	var member room.Member
	if err := res.Scan(&member); err != nil {
		return room.Member{}, fmt.Errorf("failed to scan member: %w", err)
	}

	return member, nil
}

// GetMemberConnectionIds returns the room's connection ids in join order.
func (r repo) GetMemberConnectionIds(ctx context.Context, roomId string) ([]string, error) {
	ids, err := r.rc.ZRange(ctx, r.getMemberListKey(roomId), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get member list: %w", err)
	}

	return ids, nil
}

func (r repo) RemoveMember(ctx context.Context, params *room.RemoveMemberParams) error {
	r.logger.DebugContext(ctx, "redis: remove member", "params", params)
	pipe := r.rc.TxPipeline()

	pipe.ZRem(ctx, r.getMemberListKey(params.RoomId), params.ConnectionId)
	pipe.Del(ctx, r.getMemberKey(params.ConnectionId))

	return r.executePipe(ctx, pipe)
}

func (r repo) UpdateMemberMedia(ctx context.Context, params *room.UpdateMemberMediaParams) error {
	r.logger.DebugContext(ctx, "redis: update member media", "params", params)

	field := "audio_enabled"
	if params.MediaType == "video" {
		field = "video_enabled"
	}

	return r.rc.HSet(ctx, r.getMemberKey(params.ConnectionId), field, params.Enabled).Err()
}
