package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressToMap(t *testing.T) {
	t.Run("nil指標欄位不出現在hash", func(t *testing.T) {
		m := Progress{
			Status:       VideoProcessing,
			CurrentPhase: PhaseDownloading,
		}.ToMap()

		assert.Equal(t, "processing", m["status"])
		assert.Equal(t, "downloading", m["current_phase"])
		assert.NotContains(t, m, "download_progress")
		assert.NotContains(t, m, "encoding_progress")
		assert.NotContains(t, m, "error_message")
	})

	t.Run("完整欄位序列化", func(t *testing.T) {
		m := Progress{
			Status:           VideoProcessing,
			CurrentPhase:     PhaseEncoding,
			DownloadProgress: Pct(100),
			EncodingProgress: Pct(42.5),
			Speed:            "2.5x",
			Fps:              "120",
		}.ToMap()

		assert.Equal(t, "100", m["download_progress"])
		assert.Equal(t, "42.5", m["encoding_progress"])
		assert.Equal(t, "2.5x", m["speed"])
		assert.Equal(t, "120", m["fps"])
	})
}

func TestProgressFromMap(t *testing.T) {
	t.Run("往返後欄位一致", func(t *testing.T) {
		orig := Progress{
			Status:           VideoFailed,
			CurrentPhase:     PhaseFailed,
			DownloadProgress: Pct(33.3),
			ErrorMessage:     "yt-dlp exited with code 1",
		}

		got := ProgressFromMap(orig.ToMap())
		assert.Equal(t, orig.Status, got.Status)
		assert.Equal(t, orig.CurrentPhase, got.CurrentPhase)
		assert.Equal(t, *orig.DownloadProgress, *got.DownloadProgress)
		assert.Nil(t, got.EncodingProgress)
		assert.Equal(t, orig.ErrorMessage, got.ErrorMessage)
	})

	t.Run("數值欄位解析失敗時略過", func(t *testing.T) {
		got := ProgressFromMap(map[string]string{
			"status":            "processing",
			"download_progress": "not-a-number",
		})
		assert.Equal(t, VideoProcessing, got.Status)
		assert.Nil(t, got.DownloadProgress)
	})
}

func TestVideoStatusTerminal(t *testing.T) {
	assert.True(t, VideoCompleted.Terminal())
	assert.True(t, VideoFailed.Terminal())
	assert.False(t, VideoProcessing.Terminal())
	assert.False(t, VideoPending.Terminal())
}
