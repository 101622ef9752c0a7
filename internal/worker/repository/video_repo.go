package repository

import (
	"context"
	"time"

	"video_clip_service/internal/worker/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// VideoRecord 影片文件（worker 只關心這些欄位，其餘由 API 端擁有）
type VideoRecord struct {
	ID               primitive.ObjectID `bson:"_id"`
	Status           domain.VideoStatus `bson:"status"`
	FilePath         string             `bson:"file_path,omitempty"`
	StorageMode      string             `bson:"storage_mode,omitempty"`
	ErrorMessage     string             `bson:"error_message,omitempty"`
	EncodingProgress float64            `bson:"encoding_progress,omitempty"`
	FileSizeBytes    int64              `bson:"file_size_bytes,omitempty"`
	UpdatedAt        time.Time          `bson:"updated_at,omitempty"`
}

// VideoRepo definition durable job record operations
// 全部是 $set 部分更新，避免跟 API 端寫入的不相干欄位互相覆蓋
type VideoRepo interface {
	UpdateStatus(ctx context.Context, videoID string, status domain.VideoStatus, fields domain.StatusFields) error
	UpdateEncodingProgress(ctx context.Context, videoID string, pct float64, completedAt *time.Time) error
	Get(ctx context.Context, videoID string) (*VideoRecord, error)
}

type mongoVideoRepo struct {
	coll *mongo.Collection
}

// NewMongoVideoRepo create a VideoRepo
func NewMongoVideoRepo(db *mongo.Database) VideoRepo {
	return &mongoVideoRepo{
		coll: db.Collection("videos"),
	}
}

// 終態文件不再改寫，重複投遞時第一次寫入為準
var notTerminal = bson.M{"$nin": bson.A{string(domain.VideoCompleted), string(domain.VideoFailed)}}

// UpdateStatus 更新狀態與伴隨欄位（$set 部分更新）
func (r *mongoVideoRepo) UpdateStatus(ctx context.Context, videoID string, status domain.VideoStatus, fields domain.StatusFields) error {
	oid, err := primitive.ObjectIDFromHex(videoID)
	if err != nil {
		return err
	}

	set := bson.M{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	}
	if fields.FilePath != nil {
		set["file_path"] = *fields.FilePath
	}
	if fields.StorageMode != nil {
		set["storage_mode"] = string(*fields.StorageMode)
	}
	if fields.ErrorMessage != nil {
		set["error_message"] = *fields.ErrorMessage
	}
	if fields.FileSizeBytes != nil {
		set["file_size_bytes"] = *fields.FileSizeBytes
	}

	filter := bson.M{"_id": oid, "status": notTerminal}
	_, err = r.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	return err
}

// UpdateEncodingProgress 轉檔百分比鏡射進 mongo，輪詢端不用碰 redis 也看得到
func (r *mongoVideoRepo) UpdateEncodingProgress(ctx context.Context, videoID string, pct float64, completedAt *time.Time) error {
	oid, err := primitive.ObjectIDFromHex(videoID)
	if err != nil {
		return err
	}

	set := bson.M{
		"encoding_progress": pct,
		"updated_at":        time.Now().UTC(),
	}
	if completedAt != nil {
		set["encoding_completed_at"] = *completedAt
	}

	filter := bson.M{"_id": oid, "status": notTerminal}
	_, err = r.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	return err
}

func (r *mongoVideoRepo) Get(ctx context.Context, videoID string) (*VideoRecord, error) {
	oid, err := primitive.ObjectIDFromHex(videoID)
	if err != nil {
		return nil, err
	}

	var record VideoRecord
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&record); err != nil {
		return nil, err
	}
	return &record, nil
}
