package app

import (
	"fmt"
	"strconv"
	"strings"

	"video_clip_service/pkg"
)

// highResolutions 1440p 以上。搭配 mp4 時來源多半只有 VP9/AV1（webm），
// 需要走兩段式：先抓 webm 再轉成 mp4
var highResolutions = []string{"1440p", "2160p", "4320p"}

// BuildFormatString 依 (resolution, format) 產生 yt-dlp 的格式選擇表達式。
// 純函數：相同輸入永遠產生相同字串
func BuildFormatString(resolution, format string) string {
	if resolution == "best" {
		switch format {
		case "mp4":
			return "bv*[ext=mp4]+ba[ext=m4a]/b[ext=mp4]/bv*+ba/b"
		case "webm":
			return "bv*[ext=webm]+ba[ext=webm]/b[ext=webm]/bv*+ba/b"
		default:
			return "bv*+ba/b"
		}
	}

	height := parseHeight(resolution)

	switch format {
	case "mp4":
		return fmt.Sprintf("bv*[height<=%d][ext=mp4]+ba[ext=m4a]/bv*[height<=%d]+ba/b[height<=%d]", height, height, height)
	case "webm":
		return fmt.Sprintf("bv*[height<=%d][ext=webm]+ba[ext=webm]/bv*[height<=%d]+ba/b[height<=%d]", height, height, height)
	default:
		return fmt.Sprintf("bv*[height<=%d]+ba/b[height<=%d]", height, height)
	}
}

// parseHeight "720p" → 720，解析不了退回 1080
func parseHeight(resolution string) int {
	height, err := strconv.Atoi(strings.TrimSuffix(resolution, "p"))
	if err != nil {
		return 1080
	}
	return height
}

// needsReencode 兩段式門檻：高解析 + mp4 + 實際抓到 webm。
// 門檻沿用既有行為寫死，要調整策略改這一個函數就好
func needsReencode(resolution, format, outputPath string) bool {
	return pkg.Contains(highResolutions, resolution) &&
		format == "mp4" &&
		strings.HasSuffix(outputPath, ".webm")
}

// contentTypeFor 依副檔名決定上傳的 Content-Type
func contentTypeFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(path, ".webm"):
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}
