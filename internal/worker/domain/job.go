package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobKind definition job kind
type JobKind string

const (
	// JobKindDownload 下載剪輯工作
	JobKindDownload JobKind = "download"
	// JobKindEncode 轉檔工作
	JobKindEncode JobKind = "encode"
)

// JobEnvelope payload 共通欄位，consumer 解析用（原始 bytes 另外保留做 re-queue）
type JobEnvelope struct {
	JobID      string `json:"job_id"`
	VideoID    string `json:"video_id"`
	RetryCount int    `json:"_retry_count"`
}

// DownloadJob 佇列中的下載剪輯工作
type DownloadJob struct {
	JobID                string `json:"job_id"`
	VideoID              string `json:"video_id"`
	URL                  string `json:"url"`
	StartTime            int    `json:"start_time"`
	EndTime              int    `json:"end_time"`
	FormatPreference     string `json:"format_preference"`
	ResolutionPreference string `json:"resolution_preference"`
	RetryCount           int    `json:"_retry_count"`
}

// EncodeJob 佇列中的轉檔工作
type EncodeJob struct {
	JobID            string `json:"job_id"`
	VideoID          string `json:"video_id"`
	SourceObjectKey  string `json:"s3_input_key"`
	OriginalFilename string `json:"original_filename"`
	VideoCodec       string `json:"video_codec"`
	QualityPreset    string `json:"quality_preset"`
	RetryCount       int    `json:"_retry_count"`
}

// BumpRetryCount 重試計數 +1，其餘欄位原封不動保留原始 bytes
func BumpRetryCount(raw []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("invalid job payload: %w", err)
	}

	count := 0
	if v, ok := fields["_retry_count"]; ok {
		if err := json.Unmarshal(v, &count); err != nil {
			return nil, fmt.Errorf("invalid _retry_count: %w", err)
		}
	}

	bumped, err := json.Marshal(count + 1)
	if err != nil {
		return nil, err
	}
	fields["_retry_count"] = bumped

	return json.Marshal(fields)
}

// DeadLetterEnvelope 補上 _error 與 _failed_at 後的 payload，写入 {queue}:dead
func DeadLetterEnvelope(raw []byte, errMsg string, failedAt time.Time) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("invalid job payload: %w", err)
	}

	e, err := json.Marshal(errMsg)
	if err != nil {
		return nil, err
	}
	at, err := json.Marshal(failedAt.Unix())
	if err != nil {
		return nil, err
	}
	fields["_error"] = e
	fields["_failed_at"] = at

	return json.Marshal(fields)
}
