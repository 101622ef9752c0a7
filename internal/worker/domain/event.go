package domain

import "time"

// JobEvent 工作終態事件（發佈到 Kafka 供下游訂閱）
type JobEvent struct {
	JobID    string      `json:"job_id"`
	VideoID  string      `json:"video_id"`
	Kind     JobKind     `json:"kind"`
	Status   VideoStatus `json:"status"`
	Error    string      `json:"error,omitempty"`
	FiredAt  time.Time   `json:"fired_at"`
	Attempts int         `json:"attempts"`
}
