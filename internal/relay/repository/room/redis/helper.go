package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

func (r repo) executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute pipe: %w", err)
	}

	return nil
}

// addWithOrder appends the member to the room's ordered list, assigning
// the next sequence score. The order is what host auto-promotion walks.
func (r repo) addWithOrder(ctx context.Context, listKey, connectionId string) error {
	return r.rc.EvalSha(ctx, r.nextScoreScript, []string{listKey}, connectionId).Err()
}
