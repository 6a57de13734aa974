package database

import (
	"context"
	"monet-probing/internal/config"
	"monet-probing/pkg/log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	MongoClient *mongo.Client
	// MongoDB 存放 surveys / survey-questions 集合。
	MongoDB *mongo.Database
	// MongoResponseDB 存放 QnAs 集合，可与 MongoDB 指向不同的库。
	MongoResponseDB *mongo.Database
)

// InitMongo 初始化 MongoDB 连接。URI 为空时跳过。
func InitMongo(cfg config.MongoConfig) {
	if cfg.URI == "" {
		log.Info("未配置 MongoDB URI，跳过 MongoDB 初始化")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		log.Fatal("failed to connect to mongodb", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.Fatal("failed to ping mongodb", err)
	}

	MongoClient = client
	MongoDB = client.Database(cfg.Database)
	MongoResponseDB = client.Database(cfg.ResponseDatabase)
	log.Info("MongoDB connected successfully")
}

// CloseMongo 断开 MongoDB 连接。
func CloseMongo(ctx context.Context) {
	if MongoClient == nil {
		return
	}
	if err := MongoClient.Disconnect(ctx); err != nil {
		log.Error("failed to disconnect mongodb", err)
	}
}
