package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const roomTTL = 24 * time.Hour

type repo struct {
	rc     *redis.Client
	logger *slog.Logger

	nextScoreScript string
}

func NewRepo(rc *redis.Client, logger *slog.Logger) *repo {
	return &repo{
		rc:     rc,
		logger: logger,
		nextScoreScript: rc.ScriptLoad(context.Background(), `
			local maxScore = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
			local nextScore = 1
			if #maxScore > 0 then
				nextScore = tonumber(maxScore[2]) + 1
			end
			redis.call('ZADD', KEYS[1], nextScore, ARGV[1])
			return nextScore
		`).Val(),
	}
}

func (r repo) getRoomKey(roomId string) string {
	return "room:" + roomId
}

func (r repo) getPlaybackKey(roomId string) string {
	return "room:" + roomId + ":playback"
}

func (r repo) getMemberListKey(roomId string) string {
	return "room:" + roomId + ":memberlist"
}

func (r repo) getMemberKey(connectionId string) string {
	return "member:" + connectionId
}

func (r repo) getJoinRequestKey(requestId string) string {
	return "request:" + requestId
}

func (r repo) getJoinRequestListKey(roomId string) string {
	return "room:" + roomId + ":requestlist"
}
