package repository

import (
	"context"
	"testing"
	"time"

	"video_clip_service/internal/worker/domain"
	"video_clip_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func progressFixture() domain.Progress {
	return domain.Progress{
		Status:           domain.VideoProcessing,
		CurrentPhase:     domain.PhaseEncoding,
		DownloadProgress: domain.Pct(100),
		EncodingProgress: domain.Pct(42.5),
		Speed:            "2.1x",
	}
}

// 測試 redis 不可用時退化成行程內快取
func TestProgressRepoLocalFallback(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	// 指向沒人在聽的 port，連線立即失敗
	deadClient := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	repo := NewRedisProgressRepo(deadClient, time.Hour)

	t.Run("寫入退化後工作不失敗", func(t *testing.T) {
		assert.NoError(t, repo.SetProgress(ctx, "job-1", progressFixture()))
	})

	t.Run("本行程內仍讀得到進度", func(t *testing.T) {
		prog := progressFixture()
		assert.NoError(t, repo.SetProgress(ctx, "job-2", prog))

		got, ok, err := repo.GetProgress(ctx, "job-2")
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, domain.VideoProcessing, got.Status)
		assert.Equal(t, domain.PhaseEncoding, got.CurrentPhase)
		assert.Equal(t, 42.5, *got.EncodingProgress)
	})

	t.Run("單欄位更新也走本地快取", func(t *testing.T) {
		assert.NoError(t, repo.SetProgress(ctx, "job-3", progressFixture()))
		assert.NoError(t, repo.UpdateField(ctx, "job-3", "speed", "3.0x"))

		got, ok, err := repo.GetProgress(ctx, "job-3")
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "3.0x", got.Speed)
	})

	t.Run("刪除本地快取", func(t *testing.T) {
		assert.NoError(t, repo.SetProgress(ctx, "job-4", progressFixture()))
		assert.NoError(t, repo.DeleteProgress(ctx, "job-4"))

		_, ok, _ := repo.GetProgress(ctx, "job-4")
		assert.False(t, ok)
	})
}
