package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"video_clip_service/pkg/config"
	"video_clip_service/pkg/logger"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockMinIOClient 是 MinIOClientRepo 的 Mock
type MockMinIOClient struct {
	mock.Mock
}

// UploadFile 模擬 MinIO 上傳行為
func (m *MockMinIOClient) UploadFile(ctx context.Context, objectName, filePath, contentType string) error {
	args := m.Called(ctx, objectName, filePath, contentType)
	return args.Error(0)
}

// DownloadFile 模擬 MinIO 下載行為
func (m *MockMinIOClient) DownloadFile(ctx context.Context, objectName, destPath string) error {
	args := m.Called(ctx, objectName, destPath)
	return args.Error(0)
}

// DeleteFile 模擬 MinIO 刪除物件
func (m *MockMinIOClient) DeleteFile(ctx context.Context, objectName string) error {
	args := m.Called(ctx, objectName)
	return args.Error(0)
}

// ListObjects 模擬 MinIO 列出物件
func (m *MockMinIOClient) ListObjects(ctx context.Context, prefix string) ([]minio.ObjectInfo, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]minio.ObjectInfo), args.Error(1)
}

// 測試過期物件清理的邊界
func TestSweepObjects(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	cutoff := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("嚴格早於cutoff才刪", func(t *testing.T) {
		mockMinIO := new(MockMinIOClient)
		s := NewSweeper(mockMinIO, config.Worker{
			MinIO: config.MinIOConfig{KeyPrefix: "clips/"},
		})

		mockMinIO.On("ListObjects", mock.Anything, "clips/").Return([]minio.ObjectInfo{
			{Key: "clips/old.mp4", LastModified: cutoff.Add(-time.Second)},
			{Key: "clips/exact.mp4", LastModified: cutoff},
			{Key: "clips/new.mp4", LastModified: cutoff.Add(time.Second)},
		}, nil).Once()
		// 只有嚴格早於 cutoff 的會被刪
		mockMinIO.On("DeleteFile", mock.Anything, "clips/old.mp4").Return(nil).Once()

		s.sweepObjects(ctx, cutoff)

		mockMinIO.AssertExpectations(t)
		mockMinIO.AssertNotCalled(t, "DeleteFile", mock.Anything, "clips/exact.mp4")
		mockMinIO.AssertNotCalled(t, "DeleteFile", mock.Anything, "clips/new.mp4")
	})

	t.Run("單一物件刪除失敗不中斷整輪", func(t *testing.T) {
		mockMinIO := new(MockMinIOClient)
		s := NewSweeper(mockMinIO, config.Worker{
			MinIO: config.MinIOConfig{KeyPrefix: "clips/"},
		})

		mockMinIO.On("ListObjects", mock.Anything, "clips/").Return([]minio.ObjectInfo{
			{Key: "clips/a.mp4", LastModified: cutoff.Add(-time.Hour)},
			{Key: "clips/b.mp4", LastModified: cutoff.Add(-time.Hour)},
		}, nil).Once()
		mockMinIO.On("DeleteFile", mock.Anything, "clips/a.mp4").Return(assert.AnError).Once()
		mockMinIO.On("DeleteFile", mock.Anything, "clips/b.mp4").Return(nil).Once()

		s.sweepObjects(ctx, cutoff)

		mockMinIO.AssertExpectations(t)
	})
}

// 測試暫存檔清理
func TestSweepTempFiles(t *testing.T) {
	logger.SetNewNop()

	t.Run("mtime早於cutoff的殘留檔被刪", func(t *testing.T) {
		tempDir := t.TempDir()
		s := NewSweeper(new(MockMinIOClient), config.Worker{TempDir: tempDir})

		stale := filepath.Join(tempDir, "stale.mp4")
		fresh := filepath.Join(tempDir, "fresh.mp4")
		assert.NoError(t, os.WriteFile(stale, []byte("x"), 0644))
		assert.NoError(t, os.WriteFile(fresh, []byte("x"), 0644))

		cutoff := time.Now().Add(-time.Hour)
		oldTime := cutoff.Add(-time.Minute)
		assert.NoError(t, os.Chtimes(stale, oldTime, oldTime))

		s.sweepTempFiles(cutoff)

		_, err := os.Stat(stale)
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(fresh)
		assert.NoError(t, err)
	})

	t.Run("暫存目錄不存在時不報錯", func(t *testing.T) {
		s := NewSweeper(new(MockMinIOClient), config.Worker{TempDir: "/nonexistent/tmp"})
		s.sweepTempFiles(time.Now())
	})
}
