package redis

import (
	"context"
	"fmt"

	"github.com/castly/watchparty/internal/relay/repository/room"
)

func (r repo) SetJoinRequest(ctx context.Context, params *room.SetJoinRequestParams) error {
	r.logger.DebugContext(ctx, "redis: set join request", "params", params)
	pipe := r.rc.TxPipeline()

	requestKey := r.getJoinRequestKey(params.RequestId)
	pipe.HSet(ctx, requestKey, room.JoinRequest{
		UserId:       params.UserId,
		Username:     params.Username,
		AvatarURL:    params.AvatarURL,
		ConnectionId: params.ConnectionId,
		RoomId:       params.RoomId,
	})
	pipe.Expire(ctx, requestKey, roomTTL)
	pipe.SAdd(ctx, r.getJoinRequestListKey(params.RoomId), params.RequestId)
	pipe.Expire(ctx, r.getJoinRequestListKey(params.RoomId), roomTTL)

	return r.executePipe(ctx, pipe)
}

func (r repo) GetJoinRequest(ctx context.Context, requestId string) (room.JoinRequest, error) {
	res := r.rc.HGetAll(ctx, r.getJoinRequestKey(requestId))
	if res.Err() != nil {
		return room.JoinRequest{}, res.Err()
	}
	if len(res.Val()) == 0 {
		return room.JoinRequest{}, room.ErrJoinRequestNotFound
	}

	var request room.JoinRequest
	if err := res.Scan(&request); err != nil {
		return room.JoinRequest{}, fmt.Errorf("failed to scan join request: %w", err)
	}

	return request, nil
}

func (r repo) RemoveJoinRequest(ctx context.Context, roomId, requestId string) error {
	r.logger.DebugContext(ctx, "redis: remove join request", "room_id", roomId, "request_id", requestId)
	pipe := r.rc.TxPipeline()

	pipe.SRem(ctx, r.getJoinRequestListKey(roomId), requestId)
	pipe.Del(ctx, r.getJoinRequestKey(requestId))

	return r.executePipe(ctx, pipe)
}

// GetJoinRequestIdByConnection finds the pending request a disconnecting
// requester abandons.
func (r repo) GetJoinRequestIdByConnection(ctx context.Context, roomId, connectionId string) (string, error) {
	requestIds, err := r.rc.SMembers(ctx, r.getJoinRequestListKey(roomId)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to get request list: %w", err)
	}

	for _, requestId := range requestIds {
		request, err := r.GetJoinRequest(ctx, requestId)
		if err != nil {
			continue
		}
		if request.ConnectionId == connectionId {
			return requestId, nil
		}
	}

	return "", room.ErrJoinRequestNotFound
}
