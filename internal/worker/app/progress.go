package app

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"video_clip_service/internal/worker/domain"
	"video_clip_service/pkg/logger"

	"go.uber.org/zap"
)

// 進度更新節流：每秒最多約 3 次，免得寫爆 redis
const progressUpdateInterval = 350 * time.Millisecond

// throttler 簡單的時間節流器，單一 goroutine 內使用
type throttler struct {
	interval time.Duration
	last     time.Time
}

func newThrottler(interval time.Duration) *throttler {
	return &throttler{interval: interval}
}

// Allow 距離上次放行超過 interval 才回傳 true
func (t *throttler) Allow(now time.Time) bool {
	if now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

// clampRunning 執行中百分比上限 99，只有確認輸出檔存在後才會回報 100
func clampRunning(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 99 {
		return 99
	}
	return pct
}

var (
	downloadPercentRe = regexp.MustCompile(`(\d+\.?\d*)%`)
	downloadSpeedRe   = regexp.MustCompile(`at\s+(\S+)`)
	downloadEtaRe     = regexp.MustCompile(`ETA\s+(\S+)`)
)

// downloadUpdate yt-dlp 單行輸出解析結果
type downloadUpdate struct {
	Percent float64
	Speed   string
	Eta     string
}

// parseDownloadLine 解析 yt-dlp 的人類可讀進度行，沒有百分比時回傳 nil
func parseDownloadLine(line string) *downloadUpdate {
	m := downloadPercentRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}

	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}

	u := &downloadUpdate{Percent: pct}
	if sm := downloadSpeedRe.FindStringSubmatch(line); sm != nil {
		u.Speed = sm[1]
	}
	if em := downloadEtaRe.FindStringSubmatch(line); em != nil {
		u.Eta = em[1]
	}
	return u
}

// setBothProgress 同時寫 job key 與鏡射的 video key，兩邊 schema 相同
func (p *Processor) setBothProgress(ctx context.Context, jobID, videoID string, prog domain.Progress) {
	// 進度寫入是 fire-and-forget，失敗不影響工作本身
	if err := p.Progress.SetProgress(ctx, jobID, prog); err != nil {
		logger.Log.Debug("set job progress failed", zap.Error(err))
	}
	if err := p.Progress.SetVideoProgress(ctx, videoID, prog); err != nil {
		logger.Log.Debug("set video progress failed", zap.Error(err))
	}
}
