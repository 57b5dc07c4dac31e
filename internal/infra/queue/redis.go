package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"channel-sense-bot/internal/domain"
)

// RedisRewardQueue реализует очередь прогонов наград на базе Redis lists.
type RedisRewardQueue struct {
	client *redis.Client
	key    string
}

// NewRedisRewardQueue создаёт очередь по указанному ключу.
func NewRedisRewardQueue(client *redis.Client, key string) *RedisRewardQueue {
	return &RedisRewardQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisRewardQueue) Enqueue(ctx context.Context, job domain.RewardRunJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RedisRewardQueue) Pop(ctx context.Context) (domain.RewardRunJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.RewardRunJob{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.RewardRunJob{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.RewardRunJob{}, err
		}
		if len(res) != 2 {
			return domain.RewardRunJob{}, errors.New("redis queue: unexpected response")
		}
		var job domain.RewardRunJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.RewardRunJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}
