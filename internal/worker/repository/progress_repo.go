package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"video_clip_service/internal/worker/domain"
	"video_clip_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ProgressRepo definition progress snapshot operations
// 進度不是最終狀態的依據（TTL 到期會消失），最終狀態以 VideoRepo 為準
type ProgressRepo interface {
	SetProgress(ctx context.Context, jobID string, p domain.Progress) error
	// SetVideoProgress 鏡射寫入 video:progress:{video_id}，API 端輪詢用的舊 key 格式
	SetVideoProgress(ctx context.Context, videoID string, p domain.Progress) error
	GetProgress(ctx context.Context, jobID string) (domain.Progress, bool, error)
	// UpdateField 更新單一欄位並刷新 TTL
	UpdateField(ctx context.Context, jobID, field, value string) error
	DeleteProgress(ctx context.Context, jobID string) error
}

type redisProgressRepo struct {
	client *redis.Client
	ttl    time.Duration

	// redis 掛掉時退化成行程內快取：單行程可見、跨 worker 行程的進度會看不到
	mu       sync.Mutex
	local    map[string]map[string]string
	degraded bool
}

// NewRedisProgressRepo create ProgressRepo
func NewRedisProgressRepo(client *redis.Client, ttl time.Duration) ProgressRepo {
	return &redisProgressRepo{
		client: client,
		ttl:    ttl,
		local:  make(map[string]map[string]string),
	}
}

func jobProgressKey(jobID string) string {
	return fmt.Sprintf("job:%s:progress", jobID)
}

func videoProgressKey(videoID string) string {
	return fmt.Sprintf("video:progress:%s", videoID)
}

func (r *redisProgressRepo) SetProgress(ctx context.Context, jobID string, p domain.Progress) error {
	return r.setHash(ctx, jobProgressKey(jobID), p.ToMap())
}

func (r *redisProgressRepo) SetVideoProgress(ctx context.Context, videoID string, p domain.Progress) error {
	return r.setHash(ctx, videoProgressKey(videoID), p.ToMap())
}

func (r *redisProgressRepo) GetProgress(ctx context.Context, jobID string) (domain.Progress, bool, error) {
	key := jobProgressKey(jobID)

	if r.client != nil {
		m, err := r.client.HGetAll(ctx, key).Result()
		if err == nil {
			if len(m) == 0 {
				return domain.Progress{}, false, nil
			}
			return domain.ProgressFromMap(m), true, nil
		}
		r.markDegraded(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.local[key]
	if !ok {
		return domain.Progress{}, false, nil
	}
	return domain.ProgressFromMap(m), true, nil
}

func (r *redisProgressRepo) UpdateField(ctx context.Context, jobID, field, value string) error {
	key := jobProgressKey(jobID)

	if r.client != nil {
		if err := r.client.HSet(ctx, key, field, value).Err(); err == nil {
			// 刷新 TTL
			return r.client.Expire(ctx, key, r.ttl).Err()
		} else {
			r.markDegraded(err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.local[key]; !ok {
		r.local[key] = make(map[string]string)
	}
	r.local[key][field] = value
	return nil
}

func (r *redisProgressRepo) DeleteProgress(ctx context.Context, jobID string) error {
	key := jobProgressKey(jobID)

	r.mu.Lock()
	delete(r.local, key)
	r.mu.Unlock()

	if r.client != nil {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			r.markDegraded(err)
		}
	}
	return nil
}

func (r *redisProgressRepo) setHash(ctx context.Context, key string, m map[string]string) error {
	if r.client != nil {
		values := make(map[string]interface{}, len(m))
		for k, v := range m {
			values[k] = v
		}
		if err := r.client.HSet(ctx, key, values).Err(); err == nil {
			return r.client.Expire(ctx, key, r.ttl).Err()
		} else {
			r.markDegraded(err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[key] = m
	return nil
}

// markDegraded 第一次退化時記 log：進度只剩本行程可見
func (r *redisProgressRepo) markDegraded(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.degraded {
		r.degraded = true
		logger.Log.Warn("progress store unreachable, falling back to in-process cache (progress visible to this process only)",
			zap.Error(err))
	}
}
