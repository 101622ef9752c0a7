package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// QueueRepo definition list queue operations（與 API 端共用的 redis list 合約）
type QueueRepo interface {
	// Pop blocking-pop 一筆 payload，timeout 到期回傳 (nil, nil)
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
	// Push 推到佇列尾端
	Push(ctx context.Context, queue string, payload []byte) error
}

type redisQueueRepo struct {
	client *redis.Client
}

// NewRedisQueueRepo create QueueRepo
func NewRedisQueueRepo(client *redis.Client) QueueRepo {
	return &redisQueueRepo{client: client}
}

// Pop BLPOP 帶 timeout，讓 consumer 能在 poll 之間觀察 shutdown signal
func (r *redisQueueRepo) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	res, err := r.client.BLPop(ctx, timeout, queue).Result()
	if err == redis.Nil {
		// timeout，沒有工作
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// res[0] 是 queue 名稱，res[1] 才是 payload
	return []byte(res[1]), nil
}

func (r *redisQueueRepo) Push(ctx context.Context, queue string, payload []byte) error {
	return r.client.RPush(ctx, queue, payload).Err()
}
