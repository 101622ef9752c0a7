package app

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"video_clip_service/pkg/config"
	"video_clip_service/pkg/database"
	"video_clip_service/pkg/logger"

	"go.uber.org/zap"
)

// sweepSliceInterval 長睡眠切成小段，shutdown 最多等這麼久就醒
const sweepSliceInterval = 60 * time.Second

// Sweeper 定期清掉過期的物件與殘留的暫存檔
type Sweeper struct {
	Minio database.MinIOClientRepo
	Cfg   config.Worker
}

// NewSweeper create Sweeper
func NewSweeper(minio database.MinIOClientRepo, cfg config.Worker) *Sweeper {
	return &Sweeper{Minio: minio, Cfg: cfg}
}

// Run 啟動先掃一輪，之後每個 interval 掃一次，直到 ctx 取消
func (s *Sweeper) Run(ctx context.Context) error {
	interval := time.Duration(s.Cfg.Cleanup.IntervalHours) * time.Hour
	logger.Log.Info("cleanup sweeper started",
		zap.Duration("interval", interval),
		zap.Int("max_age_hours", s.Cfg.Cleanup.MaxAgeHours))

	for {
		s.sweep(ctx)
		if !s.sleepSliced(ctx, interval) {
			logger.Log.Info("cleanup sweeper stopped")
			return nil
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-time.Duration(s.Cfg.Cleanup.MaxAgeHours) * time.Hour)

	s.sweepObjects(ctx, cutoff)
	s.sweepTempFiles(cutoff)
}

// sweepObjects 刪掉 key prefix 底下嚴格早於 cutoff 的物件。
// 剛好等於 cutoff 的不刪
func (s *Sweeper) sweepObjects(ctx context.Context, cutoff time.Time) {
	objects, err := s.Minio.ListObjects(ctx, s.Cfg.MinIO.KeyPrefix)
	if err != nil {
		logger.Log.Errorf("list objects for cleanup failed:", err)
		return
	}

	removed := 0
	for _, obj := range objects {
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		if err := s.Minio.DeleteFile(ctx, obj.Key); err != nil {
			logger.Log.Warn("delete expired object failed",
				zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		removed++
		logger.Log.Info("expired object removed", zap.String("key", obj.Key))
	}
	if removed > 0 {
		logger.Log.Infof("cleanup removed expired objects:", removed)
	}
}

// sweepTempFiles 刪掉暫存目錄裡 mtime 早於 cutoff 的檔案（worker 崩潰殘留）
func (s *Sweeper) sweepTempFiles(cutoff time.Time) {
	entries, err := os.ReadDir(s.Cfg.TempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Log.Errorf("read temp dir failed:", err)
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.Cfg.TempDir, entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Log.Warn("delete stale temp file failed",
				zap.String("path", path), zap.Error(err))
			continue
		}
		logger.Log.Info("stale temp file removed", zap.String("path", path))
	}
}

// sleepSliced 以 60 秒為單位切段睡滿 total，ctx 取消時回傳 false
func (s *Sweeper) sleepSliced(ctx context.Context, total time.Duration) bool {
	remaining := total
	for remaining > 0 {
		slice := sweepSliceInterval
		if remaining < slice {
			slice = remaining
		}
		if !sleepCtx(ctx, slice) {
			return false
		}
		remaining -= slice
	}
	return true
}
