package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"video_clip_service/internal/worker/domain"
	"video_clip_service/pkg"
	errprocess "video_clip_service/pkg/err"
	"video_clip_service/pkg/logger"

	"go.uber.org/zap"
)

// Encode 處理轉檔工作：
// 1. 從物件儲存抓來源檔到本地
// 2. 探測硬體編碼器轉檔，失敗自動用軟體編碼器重試一次（stage 內重試，
//    跟 consumer 的 retry/backoff 是兩回事，先發生）
// 3. 上傳結果、刪掉舊來源物件、更新文件終態
func (p *Processor) Encode(ctx context.Context, payload []byte) error {
	var job domain.EncodeJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("invalid encode payload: %w", err)
	}

	codec := domain.CodecFamily(job.VideoCodec)
	if codec == "" {
		codec = domain.CodecH264
	}
	quality := domain.QualityPreset(job.QualityPreset)
	if quality == "" {
		quality = domain.QualityHigh
	}

	logger.Log.Info("encode job started",
		zap.String("job_id", job.JobID),
		zap.String("video_id", job.VideoID),
		zap.String("codec", string(codec)),
		zap.String("quality", string(quality)),
	)

	if err := p.VideoRepo.UpdateStatus(ctx, job.VideoID, domain.VideoProcessing, domain.StatusFields{}); err != nil {
		logger.Log.Errorf("update status to processing failed:", err)
	}
	p.setBothProgress(ctx, job.JobID, job.VideoID, domain.Progress{
		Status:           domain.VideoProcessing,
		CurrentPhase:     domain.PhaseDownloadingSource,
		DownloadProgress: domain.Pct(0),
		EncodingProgress: domain.Pct(0),
	})

	if err := os.MkdirAll(p.Cfg.TempDir, 0755); err != nil {
		return fmt.Errorf("create temp dir failed: %w", err)
	}

	inputExt := filepath.Ext(job.OriginalFilename)
	if inputExt == "" {
		inputExt = ".mp4"
	}
	localInput := filepath.Join(p.Cfg.TempDir, "input_"+hexID()+inputExt)

	if err := p.Minio.DownloadFile(ctx, job.SourceObjectKey, localInput); err != nil {
		return fmt.Errorf("failed to download source: %w", err)
	}
	defer os.Remove(localInput)
	logger.Log.Info("source downloaded", zap.String("path", localInput))

	// 長度拿來算百分比，拿不到就走 duration-unknown 模式（只回報 frame/fps/speed）
	duration := getVideoDuration(ctx, localInput)

	p.setBothProgress(ctx, job.JobID, job.VideoID, domain.Progress{
		Status:           domain.VideoProcessing,
		CurrentPhase:     domain.PhaseEncoding,
		DownloadProgress: domain.Pct(100),
		EncodingProgress: domain.Pct(0),
	})

	outputPath := filepath.Join(p.Cfg.TempDir,
		fmt.Sprintf("encoded_%s_%d.mp4", hexID(), time.Now().UTC().Unix()))

	if err := p.encodeLocal(ctx, encodeRun{
		JobID:    job.JobID,
		VideoID:  job.VideoID,
		Input:    localInput,
		Output:   outputPath,
		Codec:    codec,
		Quality:  quality,
		Duration: duration,
	}); err != nil {
		os.Remove(outputPath)
		return err
	}

	fileInfo, err := os.Stat(outputPath)
	if err != nil {
		return errprocess.Set("encoding completed but output file not found")
	}
	fileSize := fileInfo.Size()
	logger.Log.Info("encode finished", zap.String("path", outputPath), zap.Int64("bytes", fileSize))

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

	// 轉檔成功後舊來源物件就沒用了，砍掉省空間（best-effort）
	if err := p.Minio.DeleteFile(ctx, job.SourceObjectKey); err != nil {
		logger.Log.Warn("delete source object failed",
			zap.String("key", job.SourceObjectKey), zap.Error(err))
	}

	if err := p.completeEncodeRecord(ctx, job.VideoID, objectName, fileSize); err != nil {
		return fmt.Errorf("update record to completed failed: %w", err)
	}
	p.setBothProgress(ctx, job.JobID, job.VideoID, domain.Progress{
		Status:           domain.VideoCompleted,
		CurrentPhase:     domain.PhaseCompleted,
		DownloadProgress: domain.Pct(100),
		EncodingProgress: domain.Pct(100),
	})

	logger.Log.Info("encode job completed",
		zap.String("job_id", job.JobID), zap.String("object", objectName))
	return nil
}

// completeEncodeRecord 寫入文件終態。最後一次 encoding_progress 與
// encoding_completed_at 要先落地再轉 completed：終態之後的 partial update
// 會被防改寫 filter 擋成 no-op
func (p *Processor) completeEncodeRecord(ctx context.Context, videoID, objectName string, size int64) error {
	now := time.Now().UTC()
	if err := p.VideoRepo.UpdateEncodingProgress(ctx, videoID, 100, &now); err != nil {
		logger.Log.Errorf("update encoding progress failed:", err)
	}

	mode := domain.StorageObjectStore
	return p.VideoRepo.UpdateStatus(ctx, videoID, domain.VideoCompleted, domain.StatusFields{
		FilePath:      &objectName,
		StorageMode:   &mode,
		FileSizeBytes: &size,
	})
}

// encodeRun 一次本地轉檔的參數
type encodeRun struct {
	JobID   string
	VideoID string
	Input   string
	Output  string
	Codec   domain.CodecFamily
	Quality domain.QualityPreset

	// Duration 已知的影片長度（秒），0 表示未知
	Duration float64
}

// encodeLocal 執行一次轉檔。硬體編碼中途失敗時自動用軟體編碼器重試一次，
// 沿用相同的品質對應與已知長度（不重新 probe）
func (p *Processor) encodeLocal(ctx context.Context, run encodeRun) error {
	plan := selectEncoder(ctx, run.Codec, run.Quality, true)

	err := p.runEncode(ctx, run, plan)
	if err != nil && plan.Hardware {
		logger.Log.Warn("hardware encode failed, retrying with software encoder",
			zap.String("encoder", plan.Encoder), zap.Error(err))
		plan = selectEncoder(ctx, run.Codec, run.Quality, false)
		err = p.runEncode(ctx, run, plan)
	}
	return err
}

// runEncode 跑一次 ffmpeg，解析 -progress pipe:1 的 key=value 流
func (p *Processor) runEncode(ctx context.Context, run encodeRun, plan encoderPlan) error {
	args := []string{"-y", "-i", run.Input, "-progress", "pipe:1", "-c:v", plan.Encoder}
	args = append(args, plan.VideoArgs...)
	args = append(args,
		"-c:a", domain.AudioConfig.Codec,
		"-b:a", domain.AudioConfig.Bitrate,
		"-ar", domain.AudioConfig.SampleRate,
		"-movflags", "+faststart",
		"-pix_fmt", "yuv420p",
		run.Output,
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open ffmpeg stdout failed: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Log.Info("running ffmpeg",
		zap.String("encoder", plan.Encoder),
		zap.Bool("hardware", plan.Hardware),
		zap.String("output", run.Output))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg failed: %w", err)
	}

	p.trackEncodeProgress(ctx, run, stdout)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg exited with code %d: %s",
			cmd.ProcessState.ExitCode(), pkg.Truncate(stderr.String(), 500))
	}
	if _, err := os.Stat(run.Output); err != nil {
		return errprocess.Set("encoding completed but output file not found")
	}
	return nil
}

// trackEncodeProgress 讀 -progress 流並節流回報。長度已知回報百分比
// （執行中上限 99），未知則只回報 frame/fps/speed
func (p *Processor) trackEncodeProgress(ctx context.Context, run encodeRun, r io.Reader) {
	throttle := newThrottler(progressUpdateInterval)
	var frame, fps, speed string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		switch key {
		case "frame":
			frame = value
		case "fps":
			fps = value
		case "speed":
			speed = value
		case "out_time_ms":
			if run.Duration <= 0 {
				continue
			}
			outUS, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				continue
			}
			if !throttle.Allow(time.Now()) {
				continue
			}
			// out_time_ms 其實是微秒
			pct := clampRunning(float64(outUS) / (run.Duration * 1e6) * 100)
			p.setBothProgress(ctx, run.JobID, run.VideoID, domain.Progress{
				Status:           domain.VideoProcessing,
				CurrentPhase:     domain.PhaseEncoding,
				DownloadProgress: domain.Pct(100),
				EncodingProgress: domain.Pct(pct),
				Fps:              fps,
				Speed:            speed,
			})
			if err := p.VideoRepo.UpdateEncodingProgress(ctx, run.VideoID, pct, nil); err != nil {
				logger.Log.Debug("update encoding progress failed", zap.Error(err))
			}
		case "progress":
			// duration-unknown 模式：沒有百分比，只回報吞吐
			if run.Duration > 0 || !throttle.Allow(time.Now()) {
				continue
			}
			p.setBothProgress(ctx, run.JobID, run.VideoID, domain.Progress{
				Status:       domain.VideoProcessing,
				CurrentPhase: domain.PhaseEncoding,
				Frame:        frame,
				Fps:          fps,
				Speed:        speed,
			})
		}
	}
}
