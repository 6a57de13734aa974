package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"monet-probing/internal/model"
	"monet-probing/pkg/log"

	"github.com/go-redis/redis/v8"
)

const sessionKeyPrefix = "probe:"

// SessionCache 按会话 key 保存 ProbeState。
// Get 在缓存不可用或内容损坏时按未命中处理，只记录日志。
type SessionCache interface {
	Get(ctx context.Context, key string) (model.ProbeState, bool)
	Set(ctx context.Context, key string, state model.ProbeState, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Count(ctx context.Context) (int, error)
}

type redisSessionCache struct {
	client *redis.Client
}

// NewSessionCache 创建基于 Redis 的会话缓存。
func NewSessionCache(client *redis.Client) SessionCache {
	return &redisSessionCache{client: client}
}

func (c *redisSessionCache) Get(ctx context.Context, key string) (model.ProbeState, bool) {
	data, err := c.client.Get(ctx, sessionKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.ProbeState{}, false
	}
	if err != nil {
		log.Warnw("会话缓存不可用，按未命中处理", "key", key, "error", err)
		return model.ProbeState{}, false
	}

	var state model.ProbeState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Warnw("会话缓存内容无法解析，按未命中处理", "key", key, "error", err)
		return model.ProbeState{}, false
	}
	return state, true
}

func (c *redisSessionCache) Set(ctx context.Context, key string, state model.ProbeState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal probe state: %w", err)
	}
	if err := c.client.Set(ctx, sessionKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set probe state: %w", err)
	}
	return nil
}

func (c *redisSessionCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, sessionKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete probe state: %w", err)
	}
	return nil
}

// Count 统计当前活跃的探询会话数量。使用 SCAN 而不是 KEYS，避免阻塞 Redis。
func (c *redisSessionCache) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, sessionKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan probe sessions: %w", err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}
