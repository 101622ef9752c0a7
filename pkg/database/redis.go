package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// NewRedisConnection create a new redis connection have retry
func NewRedisConnection(r RedisConnection) (*redis.Client, error) {
	var rdb *redis.Client
	var err error

	for i := 1; i <= r.RetryCount; i++ {
		rdb = redis.NewClient(&redis.Options{
			Addr:        r.Addr,
			Password:    r.Password, // Redis 密碼（如有需要）
			DB:          r.DB,       // Redis 資料庫編號
			DialTimeout: 5 * time.Second,
		})

		// 測試連線
		err = rdb.Ping(context.Background()).Err()
		if err == nil {
			log.Printf("redis[%s] 連線成功 (嘗試 %d 次)", r.Addr, i)
			return rdb, nil
		}

		log.Printf("redis[%s] 連線失敗 (嘗試 %d/%d): %v", r.Addr, i, r.RetryCount, err)
		rdb.Close()
		time.Sleep(r.RetryInterval)
	}

	return nil, fmt.Errorf("failed to connect to redis after retries: %w", err)
}
