package app

import (
	"context"
	"encoding/json"

	"video_clip_service/internal/worker/domain"
	"video_clip_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher 把工作終態事件丟到 Kafka，給下游（通知、報表）用。
// writer 為 nil 時代表沒設定 Kafka，所有發佈都是 no-op。
type EventPublisher struct {
	writer *kafka.Writer
}

// NewEventPublisher creates a publisher backed by the given writer.
// A nil writer disables publishing.
func NewEventPublisher(writer *kafka.Writer) *EventPublisher {
	return &EventPublisher{writer: writer}
}

// Publish 發佈事件，失敗只記 log 不影響工作流程
func (e *EventPublisher) Publish(ctx context.Context, event domain.JobEvent) {
	if e == nil || e.writer == nil {
		return
	}
	value, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("marshal job event failed", zap.Error(err))
		return
	}
	msg := kafka.Message{
		Key:   []byte(event.JobID),
		Value: value,
	}
	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		logger.Log.Warn("publish job event failed",
			zap.String("job_id", event.JobID), zap.Error(err))
	}
}

// Close releases the underlying writer.
func (e *EventPublisher) Close() error {
	if e == nil || e.writer == nil {
		return nil
	}
	return e.writer.Close()
}
