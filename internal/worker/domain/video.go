package domain

// VideoStatus definition video status
type VideoStatus string

const (
	// VideoPending video status is pending
	VideoPending VideoStatus = "pending"
	// VideoProcessing video status is processing
	VideoProcessing VideoStatus = "processing"
	// VideoCompleted video status is completed
	VideoCompleted VideoStatus = "completed"
	// VideoFailed video status is failed
	VideoFailed VideoStatus = "failed"
	// VideoExpired video status is expired（結果檔已被 sweeper 清掉）
	VideoExpired VideoStatus = "expired"
)

// Terminal completed / failed 之後不得再改寫結果欄位
func (s VideoStatus) Terminal() bool {
	return s == VideoCompleted || s == VideoFailed
}

// StorageMode definition where the result file lives
type StorageMode string

const (
	// StorageObjectStore result file uploaded to the object store
	StorageObjectStore StorageMode = "object_store"
	// StorageLocal result file left on local disk
	StorageLocal StorageMode = "local"
)

// StatusFields 伴隨狀態更新的選填欄位，nil 表示不更新（$set 部分更新）
type StatusFields struct {
	FilePath      *string
	StorageMode   *StorageMode
	ErrorMessage  *string
	FileSizeBytes *int64
}
