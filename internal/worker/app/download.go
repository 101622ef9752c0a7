package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"video_clip_service/internal/worker/domain"
	errprocess "video_clip_service/pkg/err"
	"video_clip_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Download 處理下載剪輯工作：
// 1. 用 yt-dlp 只抓指定時間窗的片段（成本跟剪輯長度成正比，不是來源長度）
// 2. 高解析 mp4 抓到 webm 時，在同一次呼叫內接轉檔（計畫中的兩段式，不是失敗補救）
// 3. 上傳結果到物件儲存，更新文件終態，清理本地暫存
func (p *Processor) Download(ctx context.Context, payload []byte) error {
	var job domain.DownloadJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("invalid download payload: %w", err)
	}

	format := job.FormatPreference
	if format == "" {
		format = p.Cfg.DefaultVideoFormat
	}
	resolution := job.ResolutionPreference
	if resolution == "" {
		resolution = p.Cfg.DefaultVideoResolution
	}

	logger.Log.Info("download job started",
		zap.String("job_id", job.JobID),
		zap.String("video_id", job.VideoID),
		zap.String("url", job.URL),
		zap.Int("start", job.StartTime),
		zap.Int("end", job.EndTime),
	)

	if err := p.VideoRepo.UpdateStatus(ctx, job.VideoID, domain.VideoProcessing, domain.StatusFields{}); err != nil {
		logger.Log.Errorf("update status to processing failed:", err)
	}
	p.setBothProgress(ctx, job.JobID, job.VideoID, domain.Progress{
		Status:           domain.VideoProcessing,
		CurrentPhase:     domain.PhaseDownloading,
		DownloadProgress: domain.Pct(0),
		EncodingProgress: domain.Pct(0),
	})

	ext := format
	if ext == "best" {
		ext = "mp4"
	}
	if err := os.MkdirAll(p.Cfg.TempDir, 0755); err != nil {
		return fmt.Errorf("create temp dir failed: %w", err)
	}
	filename := fmt.Sprintf("%s_%d.%s", hexID(), time.Now().UTC().Unix(), ext)
	outputPath := filepath.Join(p.Cfg.TempDir, filename)

	args := []string{
		"--no-warnings",
		"--newline",
		"-f", BuildFormatString(resolution, format),
		"--download-sections", fmt.Sprintf("*%d-%d", job.StartTime, job.EndTime),
		"--force-keyframes-at-cuts",
		"-o", outputPath,
		"--merge-output-format", ext,
	}
	if cookies := p.Cfg.CookiesPath(); cookies != "" {
		args = append(args, "--cookies", cookies)
		logger.Log.Info("using cookies file", zap.String("path", cookies))
	}
	args = append(args, job.URL)

	if err := p.runRetrieval(ctx, job, args); err != nil {
		return err
	}

	// yt-dlp 可能會自己換副檔名，輸出檔不在預期路徑時掃暫存目錄找
	if _, err := os.Stat(outputPath); err != nil {
		found, ferr := findByPrefix(p.Cfg.TempDir, strings.TrimSuffix(filename, "."+ext))
		if ferr != nil {
			return errprocess.Set("download completed but output file not found")
		}
		outputPath = found
	}

	if needsReencode(resolution, format, outputPath) {
		logger.Log.Info("high-res mp4 requested, re-encoding from webm",
			zap.String("job_id", job.JobID))
		p.setBothProgress(ctx, job.JobID, job.VideoID, domain.Progress{
			Status:           domain.VideoProcessing,
			CurrentPhase:     domain.PhaseEncoding,
			DownloadProgress: domain.Pct(100),
			EncodingProgress: domain.Pct(0),
		})

		encodedPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".mp4"
		err := p.encodeLocal(ctx, encodeRun{
			JobID:    job.JobID,
			VideoID:  job.VideoID,
			Input:    outputPath,
			Output:   encodedPath,
			Codec:    domain.CodecH265,
			Quality:  domain.QualityHigh,
			Duration: float64(job.EndTime - job.StartTime), // 剪輯長度已知，不用再 probe
		})
		os.Remove(outputPath)
		if err != nil {
			return fmt.Errorf("re-encode failed: %w", err)
		}
		outputPath = encodedPath
	}

	fileInfo, err := os.Stat(outputPath)
	if err != nil {
		return errprocess.Set("download completed but output file not found")
	}
	fileSize := fileInfo.Size()
	logger.Log.Info("segment downloaded",
		zap.String("path", outputPath), zap.Int64("bytes", fileSize))

	p.setBothProgress(ctx, job.JobID, job.VideoID, domain.Progress{
		Status:           domain.VideoProcessing,
		CurrentPhase:     domain.PhaseUploading,
		DownloadProgress: domain.Pct(100),
		EncodingProgress: domain.Pct(100),
	})

	objectName := p.Cfg.MinIO.KeyPrefix + filepath.Base(outputPath)
	uploadErr := p.Minio.UploadFile(ctx, objectName, outputPath, contentTypeFor(outputPath))
	os.Remove(outputPath)
	if uploadErr != nil {
		return fmt.Errorf("object store upload failed: %w", uploadErr)
	}

	mode := domain.StorageObjectStore
	if err := p.VideoRepo.UpdateStatus(ctx, job.VideoID, domain.VideoCompleted, domain.StatusFields{
		FilePath:      &objectName,
		StorageMode:   &mode,
		FileSizeBytes: &fileSize,
	}); err != nil {
		return fmt.Errorf("update record to completed failed: %w", err)
	}
	p.setBothProgress(ctx, job.JobID, job.VideoID, domain.Progress{
		Status:           domain.VideoCompleted,
		CurrentPhase:     domain.PhaseCompleted,
		DownloadProgress: domain.Pct(100),
		EncodingProgress: domain.Pct(100),
	})

	logger.Log.Info("download job completed",
		zap.String("job_id", job.JobID), zap.String("object", objectName))
	return nil
}

// runRetrieval 跑 yt-dlp 並解析逐行輸出（stdout/stderr 合併），節流後回報進度
func (p *Processor) runRetrieval(ctx context.Context, job domain.DownloadJob, args []string) error {
	cmd := exec.CommandContext(ctx, "yt-dlp", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open yt-dlp stdout failed: %w", err)
	}
	cmd.Stderr = cmd.Stdout // 合併兩個輸出流，yt-dlp 的進度兩邊都會出現

	logger.Log.Debug("running yt-dlp", zap.Strings("args", args))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start yt-dlp failed: %w", err)
	}

	throttle := newThrottler(progressUpdateInterval)
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		update := parseDownloadLine(line)
		if update == nil || !throttle.Allow(time.Now()) {
			continue
		}

		p.setBothProgress(ctx, job.JobID, job.VideoID, domain.Progress{
			Status:           domain.VideoProcessing,
			CurrentPhase:     domain.PhaseDownloading,
			DownloadProgress: domain.Pct(clampRunning(update.Percent)),
			EncodingProgress: domain.Pct(0),
			Speed:            update.Speed,
			Eta:              update.Eta,
		})
	}

	if err := cmd.Wait(); err != nil {
		return errprocess.Set(fmt.Sprintf("yt-dlp exited with code %d", cmd.ProcessState.ExitCode()))
	}
	return nil
}

// findByPrefix 找暫存目錄中以 prefix 開頭的檔案
func findByPrefix(dir, prefix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", os.ErrNotExist
}

// hexID uuid 去掉連字號，當作輸出檔名的一部分
func hexID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
