package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// NewMongoDB create a new MongoDB connection have retry
func NewMongoDB(ctx context.Context, c Connection, dbName string) (*MongoDB, error) {
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", c.User, c.Password, c.Host, c.Port)
	clientOpts := options.Client().ApplyURI(uri)

	var err error
	for i := 1; i <= c.RetryCount; i++ {
		var client *mongo.Client
		client, err = mongo.Connect(ctx, clientOpts)
		if err == nil {
			// 連上後 ping 一次確認真的通
			if err = client.Ping(ctx, readpref.Primary()); err == nil {
				log.Printf("mongoDB[%s:%d] 連線成功 (嘗試 %d 次)", c.Host, c.Port, i)
				return &MongoDB{
					Client:   client,
					Database: client.Database(dbName),
				}, nil
			}
			client.Disconnect(ctx)
		}

		log.Printf("mongoDB[%s:%d] 連線失敗 (嘗試 %d/%d): %v", c.Host, c.Port, i, c.RetryCount, err)
		time.Sleep(c.RetryInterval)
	}

	return nil, fmt.Errorf("failed to connect to mongoDB after retries: %w", err)
}

// Close disenable mongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
