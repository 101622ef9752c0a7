package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"video_clip_service/internal/worker/domain"
	"video_clip_service/internal/worker/repository"
	"video_clip_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockQueueRepo 是 QueueRepo 的 Mock
type MockQueueRepo struct {
	mock.Mock
}

// Pop 模擬 blocking-pop
func (m *MockQueueRepo) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	args := m.Called(ctx, queue, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// Push 模擬推入佇列
func (m *MockQueueRepo) Push(ctx context.Context, queue string, payload []byte) error {
	args := m.Called(ctx, queue, payload)
	return args.Error(0)
}

// MockVideoRepo 是 VideoRepo 的 Mock
type MockVideoRepo struct {
	mock.Mock
}

// UpdateStatus 模擬更新影片狀態
func (m *MockVideoRepo) UpdateStatus(ctx context.Context, videoID string, status domain.VideoStatus, fields domain.StatusFields) error {
	args := m.Called(ctx, videoID, status, fields)
	return args.Error(0)
}

// UpdateEncodingProgress 模擬更新轉檔百分比
func (m *MockVideoRepo) UpdateEncodingProgress(ctx context.Context, videoID string, pct float64, completedAt *time.Time) error {
	args := m.Called(ctx, videoID, pct, completedAt)
	return args.Error(0)
}

// Get 模擬讀取影片文件
func (m *MockVideoRepo) Get(ctx context.Context, videoID string) (*repository.VideoRecord, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.VideoRecord), args.Error(1)
}

// MockProgressRepo 是 ProgressRepo 的 Mock
type MockProgressRepo struct {
	mock.Mock
}

func (m *MockProgressRepo) SetProgress(ctx context.Context, jobID string, p domain.Progress) error {
	args := m.Called(ctx, jobID, p)
	return args.Error(0)
}

func (m *MockProgressRepo) SetVideoProgress(ctx context.Context, videoID string, p domain.Progress) error {
	args := m.Called(ctx, videoID, p)
	return args.Error(0)
}

func (m *MockProgressRepo) GetProgress(ctx context.Context, jobID string) (domain.Progress, bool, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(domain.Progress), args.Bool(1), args.Error(2)
}

func (m *MockProgressRepo) UpdateField(ctx context.Context, jobID, field, value string) error {
	args := m.Called(ctx, jobID, field, value)
	return args.Error(0)
}

func (m *MockProgressRepo) DeleteProgress(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func newTestConsumer(queue *MockQueueRepo, video *MockVideoRepo, progress *MockProgressRepo, stage Stage, maxRetries int) *Consumer {
	return NewConsumer(
		"video:download", domain.JobKindDownload,
		queue, video, progress, NewEventPublisher(nil),
		stage, maxRetries, 0,
	)
}

// 測試失敗重試 re-queue
func TestConsumerRetryRequeue(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	t.Run("重試未滿時計數加一塞回同佇列", func(t *testing.T) {
		mockQueue := new(MockQueueRepo)
		mockVideo := new(MockVideoRepo)
		mockProgress := new(MockProgressRepo)
		c := newTestConsumer(mockQueue, mockVideo, mockProgress, nil, 3)

		raw := []byte(`{"job_id":"j1","video_id":"507f1f77bcf86cd799439011","_retry_count":1,"url":"https://example.com/v"}`)

		mockQueue.On("Push", mock.Anything, "video:download", mock.MatchedBy(func(p []byte) bool {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(p, &fields); err != nil {
				return false
			}
			// 計數 +1 且其他欄位原封不動
			return string(fields["_retry_count"]) == "2" &&
				string(fields["url"]) == `"https://example.com/v"`
		})).Return(nil).Once()

		c.handleFailure(ctx, domain.JobEnvelope{JobID: "j1", VideoID: "507f1f77bcf86cd799439011", RetryCount: 1}, raw, errors.New("boom"))

		mockQueue.AssertExpectations(t)
		// 還沒超限，不能碰 dead-letter 也不能標 failed
		mockVideo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

// 測試超限進 dead-letter
func TestConsumerDeadLetter(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	t.Run("超限時寫dead-letter並標記failed", func(t *testing.T) {
		mockQueue := new(MockQueueRepo)
		mockVideo := new(MockVideoRepo)
		mockProgress := new(MockProgressRepo)
		c := newTestConsumer(mockQueue, mockVideo, mockProgress, nil, 3)

		raw := []byte(`{"job_id":"j1","video_id":"507f1f77bcf86cd799439011","_retry_count":3}`)
		longErr := strings.Repeat("x", 600)

		mockQueue.On("Push", mock.Anything, "video:download:dead", mock.MatchedBy(func(p []byte) bool {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(p, &fields); err != nil {
				return false
			}
			_, hasErr := fields["_error"]
			_, hasAt := fields["_failed_at"]
			return hasErr && hasAt && string(fields["_retry_count"]) == "3"
		})).Return(nil).Once()

		// DB 錯誤訊息截斷到 500
		mockVideo.On("UpdateStatus", mock.Anything, "507f1f77bcf86cd799439011", domain.VideoFailed,
			mock.MatchedBy(func(f domain.StatusFields) bool {
				return f.ErrorMessage != nil && len(*f.ErrorMessage) == 500
			})).Return(nil).Once()

		// 進度錯誤訊息截斷到 200，job key 與 video key 都要寫
		mockProgress.On("SetProgress", mock.Anything, "j1", mock.MatchedBy(func(p domain.Progress) bool {
			return p.Status == domain.VideoFailed && len(p.ErrorMessage) == 200
		})).Return(nil).Once()
		mockProgress.On("SetVideoProgress", mock.Anything, "507f1f77bcf86cd799439011", mock.MatchedBy(func(p domain.Progress) bool {
			return p.CurrentPhase == domain.PhaseFailed && len(p.ErrorMessage) == 200
		})).Return(nil).Once()

		c.handleFailure(ctx, domain.JobEnvelope{JobID: "j1", VideoID: "507f1f77bcf86cd799439011", RetryCount: 3}, raw, errors.New(longErr))

		mockQueue.AssertExpectations(t)
		mockVideo.AssertExpectations(t)
		mockProgress.AssertExpectations(t)
	})

	t.Run("短錯誤訊息不截斷", func(t *testing.T) {
		mockQueue := new(MockQueueRepo)
		mockVideo := new(MockVideoRepo)
		mockProgress := new(MockProgressRepo)
		c := newTestConsumer(mockQueue, mockVideo, mockProgress, nil, 0)

		raw := []byte(`{"job_id":"j2","video_id":"507f1f77bcf86cd799439012","_retry_count":0}`)

		mockQueue.On("Push", mock.Anything, "video:download:dead", mock.Anything).Return(nil).Once()
		mockVideo.On("UpdateStatus", mock.Anything, mock.Anything, domain.VideoFailed,
			mock.MatchedBy(func(f domain.StatusFields) bool {
				return f.ErrorMessage != nil && *f.ErrorMessage == "boom"
			})).Return(nil).Once()
		mockProgress.On("SetProgress", mock.Anything, "j2", mock.Anything).Return(nil).Once()
		mockProgress.On("SetVideoProgress", mock.Anything, "507f1f77bcf86cd799439012", mock.Anything).Return(nil).Once()

		c.handleFailure(ctx, domain.JobEnvelope{JobID: "j2", VideoID: "507f1f77bcf86cd799439012", RetryCount: 0}, raw, errors.New("boom"))

		mockQueue.AssertExpectations(t)
		mockVideo.AssertExpectations(t)
	})
}

// 測試消費迴圈
func TestConsumerRun(t *testing.T) {
	logger.SetNewNop()

	t.Run("成功的工作只處理一次", func(t *testing.T) {
		mockQueue := new(MockQueueRepo)
		mockVideo := new(MockVideoRepo)
		mockProgress := new(MockProgressRepo)

		ctx, cancel := context.WithCancel(context.Background())

		var handled [][]byte
		stage := func(ctx context.Context, payload []byte) error {
			handled = append(handled, payload)
			return nil
		}
		c := newTestConsumer(mockQueue, mockVideo, mockProgress, stage, 3)

		payload := []byte(`{"job_id":"j1","video_id":"507f1f77bcf86cd799439011"}`)
		mockQueue.On("Pop", mock.Anything, "video:download", popTimeout).Return(payload, nil).Once()
		// 第二次 pop 直接取消 ctx 結束迴圈
		mockQueue.On("Pop", mock.Anything, "video:download", popTimeout).Return(nil, nil).Run(func(mock.Arguments) {
			cancel()
		})

		assert.NoError(t, c.Run(ctx))
		assert.Len(t, handled, 1)
		assert.Equal(t, payload, handled[0])
		mockQueue.AssertNotCalled(t, "Push", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("解析不了的payload丟棄不重試", func(t *testing.T) {
		mockQueue := new(MockQueueRepo)
		mockVideo := new(MockVideoRepo)
		mockProgress := new(MockProgressRepo)

		ctx, cancel := context.WithCancel(context.Background())

		stageCalled := false
		stage := func(ctx context.Context, payload []byte) error {
			stageCalled = true
			return nil
		}
		c := newTestConsumer(mockQueue, mockVideo, mockProgress, stage, 3)

		mockQueue.On("Pop", mock.Anything, "video:download", popTimeout).Return([]byte("not json"), nil).Once()
		mockQueue.On("Pop", mock.Anything, "video:download", popTimeout).Return(nil, nil).Run(func(mock.Arguments) {
			cancel()
		})

		assert.NoError(t, c.Run(ctx))
		assert.False(t, stageCalled)
		mockQueue.AssertNotCalled(t, "Push", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("shutdown不中斷處理中的工作", func(t *testing.T) {
		mockQueue := new(MockQueueRepo)
		mockVideo := new(MockVideoRepo)
		mockProgress := new(MockProgressRepo)

		ctx, cancel := context.WithCancel(context.Background())

		// 處理到一半收到關閉訊號，stage 拿到的 ctx 不能跟著被取消
		// （外部工具子行程綁在這個 ctx 上，取消等於砍行程）
		var stageCtxErr error
		stage := func(sctx context.Context, payload []byte) error {
			cancel()
			time.Sleep(20 * time.Millisecond)
			stageCtxErr = sctx.Err()
			return nil
		}
		c := newTestConsumer(mockQueue, mockVideo, mockProgress, stage, 3)

		payload := []byte(`{"job_id":"j1","video_id":"507f1f77bcf86cd799439011"}`)
		mockQueue.On("Pop", mock.Anything, "video:download", popTimeout).Return(payload, nil).Once()

		assert.NoError(t, c.Run(ctx))
		assert.NoError(t, stageCtxErr)
		// stage 跑完後才觀察到 shutdown，不會再 pop 也不會 re-queue
		mockQueue.AssertExpectations(t)
		mockQueue.AssertNotCalled(t, "Push", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("shutdown期間失敗的工作原封塞回佇列", func(t *testing.T) {
		mockQueue := new(MockQueueRepo)
		mockVideo := new(MockVideoRepo)
		mockProgress := new(MockProgressRepo)

		ctx, cancel := context.WithCancel(context.Background())

		stage := func(sctx context.Context, payload []byte) error {
			cancel()
			return errors.New("interrupted mid-flight")
		}
		c := NewConsumer(
			"video:download", domain.JobKindDownload,
			mockQueue, mockVideo, mockProgress, NewEventPublisher(nil),
			stage, 3, time.Second,
		)

		raw := []byte(`{"job_id":"j1","video_id":"507f1f77bcf86cd799439011","_retry_count":0,"url":"https://example.com/v"}`)
		mockQueue.On("Pop", mock.Anything, "video:download", popTimeout).Return(raw, nil).Once()
		// 退避被 shutdown 打斷時 payload 不能蒸發：原封不動塞回同佇列
		mockQueue.On("Push", mock.Anything, "video:download", raw).Return(nil).Once()

		assert.NoError(t, c.Run(ctx))
		mockQueue.AssertExpectations(t)
		mockVideo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("佇列timeout不當作錯誤", func(t *testing.T) {
		mockQueue := new(MockQueueRepo)
		mockVideo := new(MockVideoRepo)
		mockProgress := new(MockProgressRepo)

		ctx, cancel := context.WithCancel(context.Background())
		c := newTestConsumer(mockQueue, mockVideo, mockProgress, nil, 3)

		mockQueue.On("Pop", mock.Anything, "video:download", popTimeout).Return(nil, nil).Once()
		mockQueue.On("Pop", mock.Anything, "video:download", popTimeout).Return(nil, nil).Run(func(mock.Arguments) {
			cancel()
		})

		assert.NoError(t, c.Run(ctx))
		mockQueue.AssertExpectations(t)
	})
}
