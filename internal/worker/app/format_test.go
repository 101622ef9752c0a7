package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 測試 BuildFormatString
func TestBuildFormatString(t *testing.T) {
	t.Run("best加mp4", func(t *testing.T) {
		assert.Equal(t,
			"bv*[ext=mp4]+ba[ext=m4a]/b[ext=mp4]/bv*+ba/b",
			BuildFormatString("best", "mp4"))
	})

	t.Run("best加webm", func(t *testing.T) {
		assert.Equal(t,
			"bv*[ext=webm]+ba[ext=webm]/b[ext=webm]/bv*+ba/b",
			BuildFormatString("best", "webm"))
	})

	t.Run("best加未知格式", func(t *testing.T) {
		assert.Equal(t, "bv*+ba/b", BuildFormatString("best", "mkv"))
	})

	t.Run("720p加mp4帶高度上限", func(t *testing.T) {
		assert.Equal(t,
			"bv*[height<=720][ext=mp4]+ba[ext=m4a]/bv*[height<=720]+ba/b[height<=720]",
			BuildFormatString("720p", "mp4"))
	})

	t.Run("2160p加webm帶高度上限", func(t *testing.T) {
		assert.Equal(t,
			"bv*[height<=2160][ext=webm]+ba[ext=webm]/bv*[height<=2160]+ba/b[height<=2160]",
			BuildFormatString("2160p", "webm"))
	})

	t.Run("解析不了的解析度退回1080", func(t *testing.T) {
		assert.Equal(t,
			"bv*[height<=1080]+ba/b[height<=1080]",
			BuildFormatString("garbage", "mkv"))
	})

	// 相同輸入必須永遠產生相同字串
	t.Run("純函數決定性", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			assert.Equal(t, BuildFormatString("1440p", "mp4"), BuildFormatString("1440p", "mp4"))
		}
	})
}

// 測試 needsReencode 兩段式門檻
func TestNeedsReencode(t *testing.T) {
	t.Run("高解析mp4抓到webm要轉檔", func(t *testing.T) {
		assert.True(t, needsReencode("1440p", "mp4", "/tmp/a.webm"))
		assert.True(t, needsReencode("2160p", "mp4", "/tmp/a.webm"))
		assert.True(t, needsReencode("4320p", "mp4", "/tmp/a.webm"))
	})

	t.Run("1080p以下不轉檔", func(t *testing.T) {
		assert.False(t, needsReencode("1080p", "mp4", "/tmp/a.webm"))
		assert.False(t, needsReencode("720p", "mp4", "/tmp/a.webm"))
	})

	t.Run("要求webm格式不轉檔", func(t *testing.T) {
		assert.False(t, needsReencode("2160p", "webm", "/tmp/a.webm"))
	})

	t.Run("抓到的已是mp4不轉檔", func(t *testing.T) {
		assert.False(t, needsReencode("2160p", "mp4", "/tmp/a.mp4"))
	})
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "video/mp4", contentTypeFor("/tmp/out.mp4"))
	assert.Equal(t, "video/webm", contentTypeFor("/tmp/out.webm"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("/tmp/out.mkv"))
}
