package config

import (
	"errors"
	"os"
	"path/filepath"
)

// Worker definition worker_service YAML structure
type Worker struct {
	Queue   QueueConfig   `mapstructure:"queue"`
	Cleanup CleanupConfig `mapstructure:"cleanup"`

	TempDir    string `mapstructure:"temp_dir"`
	CookiesDir string `mapstructure:"cookies_dir"`

	DefaultVideoFormat     string `mapstructure:"default_video_format"`
	DefaultVideoResolution string `mapstructure:"default_video_resolution"`

	Mongo DatabaseConfig `mapstructure:"mongo"`
	Redis RedisConfig    `mapstructure:"redis"`
	MinIO MinIOConfig    `mapstructure:"minio"`
	Kafka KafkaConfig    `mapstructure:"kafka"`
}

// QueueConfig definition queue setting（與 API 端共用的合約）
type QueueConfig struct {
	DownloadQueue     string `mapstructure:"download_queue"`
	EncodeQueue       string `mapstructure:"encode_queue"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds"`
}

// CleanupConfig definition cleanup sweeper setting
type CleanupConfig struct {
	IntervalHours int `mapstructure:"interval_hours"`
	MaxAgeHours   int `mapstructure:"max_age_hours"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	RedisDB  int    `mapstructure:"redis_db"`

	RetryCount    int `mapstructure:"retry_count"`
	RetryInterval int `mapstructure:"retry_interval"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// MinIOConfig definition minio setting
type MinIOConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	BucketName string `mapstructure:"bucket_name"`
	KeyPrefix  string `mapstructure:"key_prefix"`
	UseSSL     bool   `mapstructure:"use_ssl"`

	RetryCount    int `mapstructure:"retry_count"`
	RetryInterval int `mapstructure:"retry_interval"`
}

// KafkaConfig definition kafka setting（可選，brokers 為空則不啟用事件流）
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryCount    int      `mapstructure:"retry_count"`
	RetryInterval int      `mapstructure:"retry_interval"`
}

const cookiesFilename = "cookies.txt"

// CookiesPath 回傳 cookies 檔案完整路徑，不存在則回傳空字串
func (w Worker) CookiesPath() string {
	if w.CookiesDir == "" {
		return ""
	}
	path := filepath.Join(w.CookiesDir, cookiesFilename)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Validate 驗證必要設定，缺漏時啟動即失敗
func (w Worker) Validate() error {
	if w.Queue.DownloadQueue == "" || w.Queue.EncodeQueue == "" {
		return errors.New("queue names are required (download_queue / encode_queue)")
	}
	if w.Redis.Addr == "" {
		return errors.New("redis addr is required")
	}
	if w.Mongo.Host == "" || w.Mongo.Database == "" {
		return errors.New("mongo host and database are required")
	}
	if w.MinIO.Host == "" || w.MinIO.BucketName == "" {
		return errors.New("minio host and bucket_name are required")
	}
	if w.TempDir == "" {
		return errors.New("temp_dir is required")
	}
	if w.Queue.MaxRetries < 0 {
		return errors.New("max_retries must be >= 0")
	}
	// interval 為 0 會讓 sweeper 變成不睡覺的忙迴圈
	if w.Cleanup.IntervalHours <= 0 || w.Cleanup.MaxAgeHours <= 0 {
		return errors.New("cleanup interval_hours and max_age_hours must be > 0")
	}
	return nil
}
