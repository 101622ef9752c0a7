package domain

import (
	"strconv"
)

// Phase definition current job phase
type Phase string

const (
	// PhaseDownloading 下載片段中
	PhaseDownloading Phase = "downloading"
	// PhaseDownloadingSource 轉檔前先從物件儲存抓來源檔
	PhaseDownloadingSource Phase = "downloading_source"
	// PhaseEncoding 轉檔中
	PhaseEncoding Phase = "encoding"
	// PhaseUploading 上傳結果中
	PhaseUploading Phase = "uploading"
	// PhaseCompleted 完成
	PhaseCompleted Phase = "completed"
	// PhaseFailed 失敗
	PhaseFailed Phase = "failed"
)

// Progress 進度快照。內部一律用這個 struct，
// 只有在 repository 邊界才序列化成 redis hash 的 string→string
type Progress struct {
	Status       VideoStatus
	CurrentPhase Phase

	DownloadProgress *float64
	EncodingProgress *float64

	Speed string
	Eta   string
	Fps   string
	Frame string

	ErrorMessage string
}

// Pct helper 建立百分比指標
func Pct(v float64) *float64 { return &v }

// ToMap 序列化为 redis hash 欄位（全部字串化）
func (p Progress) ToMap() map[string]string {
	m := map[string]string{
		"status":        string(p.Status),
		"current_phase": string(p.CurrentPhase),
	}
	if p.DownloadProgress != nil {
		m["download_progress"] = strconv.FormatFloat(*p.DownloadProgress, 'f', -1, 64)
	}
	if p.EncodingProgress != nil {
		m["encoding_progress"] = strconv.FormatFloat(*p.EncodingProgress, 'f', -1, 64)
	}
	if p.Speed != "" {
		m["speed"] = p.Speed
	}
	if p.Eta != "" {
		m["eta"] = p.Eta
	}
	if p.Fps != "" {
		m["fps"] = p.Fps
	}
	if p.Frame != "" {
		m["frame"] = p.Frame
	}
	if p.ErrorMessage != "" {
		m["error_message"] = p.ErrorMessage
	}
	return m
}

// ProgressFromMap 反序列化 redis hash，數值欄位 best-effort 解析
func ProgressFromMap(m map[string]string) Progress {
	p := Progress{
		Status:       VideoStatus(m["status"]),
		CurrentPhase: Phase(m["current_phase"]),
		Speed:        m["speed"],
		Eta:          m["eta"],
		Fps:          m["fps"],
		Frame:        m["frame"],
		ErrorMessage: m["error_message"],
	}
	if v, ok := parseFloat(m, "download_progress"); ok {
		p.DownloadProgress = &v
	}
	if v, ok := parseFloat(m, "encoding_progress"); ok {
		p.EncodingProgress = &v
	}
	return p
}

func parseFloat(m map[string]string, key string) (float64, bool) {
	s, ok := m[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
