package database

import (
	"context"
	"monet-probing/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RDB 同时承载会话缓存、对话历史、意图缓存和调查配置缓存。
var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接
func InitRedis(addr, password string, db int) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := RDB.Ping(context.Background()).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Info("Redis client connected successfully")
}
