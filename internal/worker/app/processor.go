package app

import (
	"video_clip_service/internal/worker/repository"
	"video_clip_service/pkg/config"
	"video_clip_service/pkg/database"
)

// Processor 下載與轉檔 stage 的共用依賴，啟動時建構一次注入進來
type Processor struct {
	Minio     database.MinIOClientRepo
	VideoRepo repository.VideoRepo
	Progress  repository.ProgressRepo
	Cfg       config.Worker
}

// NewProcessor 建構 Processor 實例
func NewProcessor(minio database.MinIOClientRepo,
	videoRepo repository.VideoRepo,
	progress repository.ProgressRepo,
	cfg config.Worker,
) *Processor {
	return &Processor{
		Minio:     minio,
		VideoRepo: videoRepo,
		Progress:  progress,
		Cfg:       cfg,
	}
}
