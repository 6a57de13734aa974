package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// IntentRepository 缓存每个问题提炼出的意图文本。
type IntentRepository interface {
	// Get 读取缓存的意图并刷新过期时间，未命中时 ok 为 false。
	Get(ctx context.Context, surveyID, questionID string) (intent string, ok bool, err error)
	Store(ctx context.Context, surveyID, questionID, intent string) error
}

type redisIntentRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIntentRepository 创建基于 Redis 的意图缓存。
func NewIntentRepository(client *redis.Client, ttl time.Duration) IntentRepository {
	return &redisIntentRepository{client: client, ttl: ttl}
}

func intentKey(surveyID, questionID string) string {
	return fmt.Sprintf("intent:%s_%s", surveyID, questionID)
}

func (r *redisIntentRepository) Get(ctx context.Context, surveyID, questionID string) (string, bool, error) {
	key := intentKey(surveyID, questionID)
	intent, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get intent: %w", err)
	}
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
			return intent, true, fmt.Errorf("failed to refresh intent ttl: %w", err)
		}
	}
	return intent, true, nil
}

func (r *redisIntentRepository) Store(ctx context.Context, surveyID, questionID, intent string) error {
	if err := r.client.Set(ctx, intentKey(surveyID, questionID), intent, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store intent: %w", err)
	}
	return nil
}
