package app

import (
	"context"
	"encoding/json"
	"time"

	"video_clip_service/internal/worker/domain"
	"video_clip_service/internal/worker/repository"
	"video_clip_service/pkg"
	"video_clip_service/pkg/logger"

	"go.uber.org/zap"
)

const (
	// popTimeout BLPOP 的等待上限，到期醒來檢查 shutdown signal
	popTimeout = 5 * time.Second
	// infraBackoff 佇列連線出錯時的喘息時間，不算進工作重試次數
	infraBackoff = 5 * time.Second
)

// Stage 單一工作的處理函式，回傳 error 代表工作失敗（交給重試機制）
type Stage func(ctx context.Context, payload []byte) error

// Consumer 綁定一條 redis list 佇列與一個 stage，
// 負責 pop、失敗重試（指數退避 re-queue）、超限進 dead-letter
type Consumer struct {
	queueName  string
	jobKind    domain.JobKind
	queue      repository.QueueRepo
	videoRepo  repository.VideoRepo
	progress   repository.ProgressRepo
	events     *EventPublisher
	stage      Stage
	maxRetries int
	retryDelay time.Duration
}

// NewConsumer create Consumer
func NewConsumer(
	queueName string,
	jobKind domain.JobKind,
	queue repository.QueueRepo,
	videoRepo repository.VideoRepo,
	progress repository.ProgressRepo,
	events *EventPublisher,
	stage Stage,
	maxRetries int,
	retryDelay time.Duration,
) *Consumer {
	return &Consumer{
		queueName:  queueName,
		jobKind:    jobKind,
		queue:      queue,
		videoRepo:  videoRepo,
		progress:   progress,
		events:     events,
		stage:      stage,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Run 阻塞消費直到 ctx 取消。正在處理中的工作會跑完才返回
func (c *Consumer) Run(ctx context.Context) error {
	logger.Log.Info("consumer started",
		zap.String("queue", c.queueName), zap.String("kind", string(c.jobKind)))

	// pop 出來的工作一定要走到終點（完成、re-queue 或 dead-letter），
	// stage 的子行程與收尾寫入跑在不會被 shutdown 取消的 ctx 上
	jobCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("consumer stopped", zap.String("queue", c.queueName))
			return nil
		default:
		}

		payload, err := c.queue.Pop(ctx, c.queueName, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Log.Errorf("pop from queue failed:", err)
			sleepCtx(ctx, infraBackoff)
			continue
		}
		if payload == nil {
			// timeout，回頭檢查 shutdown
			continue
		}

		var env domain.JobEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			// poison message：連共通欄位都解不出來，丟棄不重試
			logger.Log.Error("dropping unparseable payload",
				zap.String("queue", c.queueName), zap.Error(err))
			continue
		}

		logger.Log.Info("job received",
			zap.String("queue", c.queueName),
			zap.String("job_id", env.JobID),
			zap.Int("retry_count", env.RetryCount))

		if err := c.stage(jobCtx, payload); err != nil {
			c.handleFailure(ctx, env, payload, err)
			continue
		}

		c.events.Publish(jobCtx, domain.JobEvent{
			JobID:    env.JobID,
			VideoID:  env.VideoID,
			Kind:     c.jobKind,
			Status:   domain.VideoCompleted,
			FiredAt:  time.Now().UTC(),
			Attempts: env.RetryCount + 1,
		})
	}
}

// handleFailure 重試未滿時退避後 re-queue（其餘欄位原封不動），
// 滿了寫 dead-letter 並把紀錄標成 failed。
// 退避 sleep 跟著 ctx 取消，佇列與 DB 寫入則不能被 shutdown 打斷
func (c *Consumer) handleFailure(ctx context.Context, env domain.JobEnvelope, raw []byte, stageErr error) {
	logger.Log.Error("job failed",
		zap.String("queue", c.queueName),
		zap.String("job_id", env.JobID),
		zap.Int("retry_count", env.RetryCount),
		zap.Error(stageErr))

	jobCtx := context.WithoutCancel(ctx)

	if env.RetryCount < c.maxRetries {
		// 指數退避：base * 2^retry_count
		delay := c.retryDelay * time.Duration(1<<env.RetryCount)
		logger.Log.Info("re-queueing job",
			zap.String("job_id", env.JobID), zap.Duration("delay", delay))
		if !sleepCtx(ctx, delay) {
			// shutdown 中，原 payload 不動直接塞回去
			if err := c.queue.Push(jobCtx, c.queueName, raw); err != nil {
				logger.Log.Errorf("re-queue during shutdown failed:", err)
			}
			return
		}
		bumped, err := domain.BumpRetryCount(raw)
		if err != nil {
			logger.Log.Errorf("bump retry count failed:", err)
			c.deadLetter(jobCtx, env, raw, stageErr)
			return
		}
		if err := c.queue.Push(jobCtx, c.queueName, bumped); err != nil {
			logger.Log.Errorf("re-queue failed:", err)
			c.deadLetter(jobCtx, env, raw, stageErr)
		}
		return
	}

	c.deadLetter(jobCtx, env, raw, stageErr)
}

func (c *Consumer) deadLetter(ctx context.Context, env domain.JobEnvelope, raw []byte, stageErr error) {
	errMsg := stageErr.Error()
	now := time.Now().UTC()

	dead, err := domain.DeadLetterEnvelope(raw, pkg.Truncate(errMsg, 500), now)
	if err != nil {
		logger.Log.Errorf("build dead-letter payload failed:", err)
		dead = raw
	}
	deadQueue := c.queueName + ":dead"
	if err := c.queue.Push(ctx, deadQueue, dead); err != nil {
		logger.Log.Errorf("push to dead-letter queue failed:", err)
	} else {
		logger.Log.Warn("job moved to dead-letter queue",
			zap.String("job_id", env.JobID), zap.String("queue", deadQueue))
	}

	dbErr := pkg.Truncate(errMsg, 500)
	if err := c.videoRepo.UpdateStatus(ctx, env.VideoID, domain.VideoFailed, domain.StatusFields{
		ErrorMessage: &dbErr,
	}); err != nil {
		logger.Log.Errorf("mark record as failed error:", err)
	}

	failedProg := domain.Progress{
		Status:       domain.VideoFailed,
		CurrentPhase: domain.PhaseFailed,
		ErrorMessage: pkg.Truncate(errMsg, 200),
	}
	if err := c.progress.SetProgress(ctx, env.JobID, failedProg); err != nil {
		logger.Log.Debug("write failed progress failed", zap.Error(err))
	}
	if env.VideoID != "" {
		if err := c.progress.SetVideoProgress(ctx, env.VideoID, failedProg); err != nil {
			logger.Log.Debug("write failed video progress failed", zap.Error(err))
		}
	}

	c.events.Publish(ctx, domain.JobEvent{
		JobID:    env.JobID,
		VideoID:  env.VideoID,
		Kind:     c.jobKind,
		Status:   domain.VideoFailed,
		Error:    pkg.Truncate(errMsg, 500),
		FiredAt:  now,
		Attempts: env.RetryCount + 1,
	})
}

// sleepCtx 可被 ctx 取消的 sleep，回傳是否睡滿
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
