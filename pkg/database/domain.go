package database

import (
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Connection definition db setting
type Connection struct {
	Host     string
	Port     int
	User     string
	Password string

	RetryCount    int
	RetryInterval time.Duration
}

// MongoDB definition mongo db
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// RedisConnection definition redis
type RedisConnection struct {
	Addr     string
	Password string
	DB       int

	RetryCount    int
	RetryInterval time.Duration
}

// MinIOConnection definition minio
type MinIOConnection struct {
	Endpoint   string
	User       string
	Password   string
	BucketName string
	UseSSL     bool

	RetryCount    int
	RetryInterval time.Duration
}

// KafkaConnection definition kafka
type KafkaConnection struct {
	Brokers       []string
	Topic         string
	RetryCount    int
	RetryInterval time.Duration
}
