package app

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"video_clip_service/internal/worker/domain"
	"video_clip_service/pkg/logger"

	"go.uber.org/zap"
)

const (
	probeTimeout    = 10 * time.Second
	durationTimeout = 30 * time.Second
)

// 包裝函數讓測試可以替換外部工具呼叫（作法同上傳流程的檔案操作包裝）
var (
	lookPath = exec.LookPath

	// runProbeEncode 對指定編碼器做 1 frame 合成輸入的試編，exit 0 代表可用
	runProbeEncode = func(ctx context.Context, encoder string) error {
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		cmd := exec.CommandContext(ctx, "ffmpeg",
			"-f", "lavfi",
			"-i", "color=black:s=1280x720:d=0.1",
			"-c:v", encoder,
			"-frames:v", "1",
			"-f", "null",
			"-",
		)
		return cmd.Run()
	}
)

// CheckExternalTools 啟動時確認外部工具存在，缺少必要工具直接以非零碼結束
func CheckExternalTools() error {
	for _, tool := range []string{"ffmpeg", "ffprobe", "yt-dlp"} {
		if _, err := lookPath(tool); err != nil {
			return fmt.Errorf("required external tool %q not found in PATH: %w", tool, err)
		}
	}
	return nil
}

// encoderPlan 一次轉檔使用的編碼器決定
type encoderPlan struct {
	Codec     domain.CodecFamily
	Encoder   string
	Vendor    string
	Hardware  bool
	VideoArgs []string
}

// detectGPUEncoder 依固定廠商順序探測硬體編碼器，第一個成功者勝出。
// 順序是決定性的（AMD → NVIDIA → Intel），同一工作內不重複探測
func detectGPUEncoder(ctx context.Context, codec domain.CodecFamily) (domain.EncoderCandidate, bool) {
	for _, candidate := range domain.GPUProbeOrder[codec] {
		if err := runProbeEncode(ctx, candidate.Encoder); err == nil {
			logger.Log.Info("detected hardware encoder",
				zap.String("encoder", candidate.Encoder),
				zap.String("vendor", candidate.Vendor))
			return candidate, true
		}
	}
	logger.Log.Info("no hardware encoder available, using software encoder",
		zap.String("codec", string(codec)))
	return domain.EncoderCandidate{}, false
}

// softwareEncoderFor 取 codec family 的軟體編碼器；沒有註冊的 family
// 依 av1 → h265 → h264 順位替換成次佳 codec 並記 log
func softwareEncoderFor(codec domain.CodecFamily, configs map[domain.CodecFamily]domain.CPUEncoderConfig) (domain.CodecFamily, domain.CPUEncoderConfig) {
	substitution := map[domain.CodecFamily]domain.CodecFamily{
		domain.CodecAV1:  domain.CodecH265,
		domain.CodecH265: domain.CodecH264,
	}

	current := codec
	for {
		if cfg, ok := configs[current]; ok {
			if current != codec {
				logger.Log.Warn("no software encoder registered for codec, substituting",
					zap.String("requested", string(codec)),
					zap.String("substituted", string(current)))
			}
			return current, cfg
		}
		next, ok := substitution[current]
		if !ok {
			// h264 一定有軟體編碼器，理論上走不到這裡
			return domain.CodecH264, configs[domain.CodecH264]
		}
		current = next
	}
}

// selectEncoder 為一次轉檔決定編碼器：先硬體探測，全失敗退軟體編碼
func selectEncoder(ctx context.Context, codec domain.CodecFamily, quality domain.QualityPreset, tryHardware bool) encoderPlan {
	if tryHardware {
		if candidate, ok := detectGPUEncoder(ctx, codec); ok {
			cfg := domain.GPUEncoderConfigs[candidate.Encoder]
			return encoderPlan{
				Codec:     codec,
				Encoder:   candidate.Encoder,
				Vendor:    candidate.Vendor,
				Hardware:  true,
				VideoArgs: cfg.ArgsFor(quality),
			}
		}
	}

	family, cfg := softwareEncoderFor(codec, domain.CPUCodecConfigs)
	q := cfg.QualityFor(quality)
	return encoderPlan{
		Codec:     family,
		Encoder:   cfg.Encoder,
		Hardware:  false,
		VideoArgs: []string{"-crf", q.CRF, "-preset", q.Preset},
	}
}

var ffmpegDurationRe = regexp.MustCompile(`Duration: (\d+):(\d+):(\d+\.\d+)`)

// getVideoDuration 取得影片長度（秒）。先用 ffprobe，失敗退回解析 ffmpeg -i 的
// metadata 輸出。取不到回傳 0，轉檔進度改走 duration-unknown 模式
func getVideoDuration(ctx context.Context, path string) float64 {
	probeCtx, cancel := context.WithTimeout(ctx, durationTimeout)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err == nil {
		if d, perr := strconv.ParseFloat(strings.TrimSpace(string(out)), 64); perr == nil && d > 0 {
			return d
		}
	}

	// ffmpeg 把 metadata 寫在 stderr，-i 不帶輸出會以非零碼結束，忽略 err
	var stderr bytes.Buffer
	cmd := exec.CommandContext(probeCtx, "ffmpeg", "-i", path)
	cmd.Stderr = &stderr
	_ = cmd.Run()

	if m := ffmpegDurationRe.FindStringSubmatch(stderr.String()); m != nil {
		hours, _ := strconv.Atoi(m[1])
		minutes, _ := strconv.Atoi(m[2])
		seconds, _ := strconv.ParseFloat(m[3], 64)
		return float64(hours)*3600 + float64(minutes)*60 + seconds
	}

	logger.Log.Warn("could not determine video duration", zap.String("path", path))
	return 0
}
