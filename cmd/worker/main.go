package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"video_clip_service/internal/worker/app"
	"video_clip_service/internal/worker/domain"
	"video_clip_service/internal/worker/repository"
	"video_clip_service/pkg/config"
	"video_clip_service/pkg/database"
	"video_clip_service/pkg/logger"
	testtool "video_clip_service/pkg/test_tool"

	"go.uber.org/zap"
)

// progressTTL 進度 hash 的存活時間，terminal 狀態寫入後一天內仍可查
const progressTTL = 24 * time.Hour

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.WorkerService, config.EnvConfig.WorkerLogPath)

	cfg := config.LoadConfig[config.Worker](config.EnvConfig.WorkerService, config.EnvConfig.WorkerYAMLPath)
	if err := cfg.Validate(); err != nil {
		logger.Log.Fatal("invalid worker config", zap.Error(err))
	}
	logger.Log.Info("worker config loaded", zap.String("summary", config.Describe(cfg)))

	testtool.StartPprof()

	// 0. 外部工具檢查，缺 ffmpeg/ffprobe/yt-dlp 直接不啟動
	if err := app.CheckExternalTools(); err != nil {
		logger.Log.Fatal("external tool check failed", zap.Error(err))
	}
	if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
		logger.Log.Fatal("create temp dir failed", zap.Error(err))
	}

	// 1. 連線 Redis（佇列 + 進度）
	redisClient, err := database.NewRedisConnection(database.RedisConnection{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.RedisDB,

		RetryCount:    cfg.Redis.RetryCount,
		RetryInterval: time.Duration(cfg.Redis.RetryInterval) * time.Second,
	})
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to redis after retries",
			zap.String("address", fmt.Sprintf("[%s]", cfg.Redis.Addr)),
			zap.Error(err),
		)
	}
	defer redisClient.Close()

	// 2. 連線 MongoDB（工作紀錄）
	mongoDB, err := database.NewMongoDB(context.Background(), database.Connection{
		Host:     cfg.Mongo.Host,
		Port:     cfg.Mongo.Port,
		User:     cfg.Mongo.User,
		Password: cfg.Mongo.Password,

		RetryCount:    cfg.Mongo.RetryCount,
		RetryInterval: time.Duration(cfg.Mongo.RetryInterval) * time.Second,
	}, cfg.Mongo.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongodb after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.Mongo.Host, cfg.Mongo.Port)),
			zap.Error(err),
		)
	}
	defer mongoDB.Close(context.Background())

	// 3. 初始化 MinIO 客戶端（結果與來源物件）
	minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:   fmt.Sprintf("%s:%d", cfg.MinIO.Host, cfg.MinIO.Port),
		User:       cfg.MinIO.User,
		Password:   cfg.MinIO.Password,
		BucketName: cfg.MinIO.BucketName,
		UseSSL:     cfg.MinIO.UseSSL,

		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: time.Duration(cfg.MinIO.RetryInterval) * time.Second,
	})
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to minio after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.MinIO.Host, cfg.MinIO.Port)),
			zap.Error(err),
		)
	}

	// 4. Kafka Writer（可選，brokers 沒設就不發事件）
	var events *app.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaWriter, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: time.Duration(cfg.Kafka.RetryInterval) * time.Second,
		})
		if err != nil {
			logger.Log.Fatal("Kafka Writer 建立失敗", zap.Error(err))
		}
		events = app.NewEventPublisher(kafkaWriter)
		defer events.Close()
	} else {
		logger.Log.Info("kafka brokers not configured, job events disabled")
		events = app.NewEventPublisher(nil)
	}

	// 5. 組裝 repo 與 stage
	queueRepo := repository.NewRedisQueueRepo(redisClient)
	progressRepo := repository.NewRedisProgressRepo(redisClient, progressTTL)
	videoRepo := repository.NewMongoVideoRepo(mongoDB.Database)

	processor := app.NewProcessor(minioClient, videoRepo, progressRepo, cfg)

	retryDelay := time.Duration(cfg.Queue.RetryDelaySeconds) * time.Second
	downloadConsumer := app.NewConsumer(
		cfg.Queue.DownloadQueue, domain.JobKindDownload,
		queueRepo, videoRepo, progressRepo, events,
		processor.Download, cfg.Queue.MaxRetries, retryDelay,
	)
	encodeConsumer := app.NewConsumer(
		cfg.Queue.EncodeQueue, domain.JobKindEncode,
		queueRepo, videoRepo, progressRepo, events,
		processor.Encode, cfg.Queue.MaxRetries, retryDelay,
	)
	sweeper := app.NewSweeper(minioClient, cfg)

	// 6. SIGINT/SIGTERM 觸發優雅關閉，處理中的工作跑完才退出
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := downloadConsumer.Run(ctx); err != nil {
			logger.Log.Errorf("download consumer exited:", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := encodeConsumer.Run(ctx); err != nil {
			logger.Log.Errorf("encode consumer exited:", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := sweeper.Run(ctx); err != nil {
			logger.Log.Errorf("cleanup sweeper exited:", err)
		}
	}()

	logger.Log.Info("worker started, waiting for jobs")
	<-ctx.Done()
	logger.Log.Info("shutdown signal received, draining in-flight jobs")
	wg.Wait()

	logger.Log.Info("worker stopped")
	logger.Log.Sync()
}
