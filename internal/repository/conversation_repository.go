// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"monet-probing/internal/model"

	"github.com/go-redis/redis/v8"
)

// ConversationRepository 定义了探询对话历史的操作接口，按会话 key 寻址。
type ConversationRepository interface {
	Messages(ctx context.Context, key string) ([]model.ChatMessage, error)
	Append(ctx context.Context, key string, messages ...model.ChatMessage) error
	Clear(ctx context.Context, key string) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。ttl 为 0 时历史不过期。
func NewConversationRepository(redisClient *redis.Client, ttl time.Duration) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient, ttl: ttl}
}

func historyKey(key string) string {
	return "probe_history:" + key
}

// Messages 从 Redis 列表中按顺序读取全部消息。
func (r *redisConversationRepository) Messages(ctx context.Context, key string) ([]model.ChatMessage, error) {
	items, err := r.redisClient.LRange(ctx, historyKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	messages := make([]model.ChatMessage, 0, len(items))
	for _, item := range items {
		var m model.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// Append 将消息追加到列表尾部，并刷新过期时间。
func (r *redisConversationRepository) Append(ctx context.Context, key string, messages ...model.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now()
		}
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation message: %w", err)
		}
		values = append(values, b)
	}

	pipe := r.redisClient.TxPipeline()
	pipe.RPush(ctx, historyKey(key), values...)
	if r.ttl > 0 {
		pipe.Expire(ctx, historyKey(key), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append conversation history: %w", err)
	}
	return nil
}

// Clear 删除会话的全部历史。
func (r *redisConversationRepository) Clear(ctx context.Context, key string) error {
	if err := r.redisClient.Del(ctx, historyKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to clear conversation history: %w", err)
	}
	return nil
}
