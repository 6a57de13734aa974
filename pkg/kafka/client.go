// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"monet-probing/internal/config"
	"monet-probing/internal/model"
	"monet-probing/pkg/log"
	"monet-probing/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// maxAttempts 是同一任务处理失败后允许的最大尝试次数。
const maxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ProbeResponseTask) error
}

var producer *kafka.Writer

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// CloseProducer 关闭生产者并刷新未发送的消息。
func CloseProducer() error {
	if producer == nil {
		return nil
	}
	return producer.Close()
}

// ProduceProbeResponseTask 发送一条探询记录到 Kafka。同一会话的记录使用相同的 key，保证分区内有序。
func ProduceProbeResponseTask(ctx context.Context, task tasks.ProbeResponseTask) error {
	if producer == nil {
		return errors.New("kafka producer not initialised")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.Record.Key()),
		Value: taskBytes,
	})
}

// ResponsePublisher 把最终记录交给 Kafka，由消费者异步写入存储。
type ResponsePublisher struct{}

// Persist 实现 service.ResponsePersister。
func (ResponsePublisher) Persist(ctx context.Context, resp *model.ProbeResponse) error {
	return ProduceProbeResponseTask(ctx, tasks.ProbeResponseTask{
		TaskID: uuid.NewString(),
		Record: *resp,
	})
}

// StartConsumer 启动一个 Kafka 消费者来处理探询记录，ctx 取消后退出。
// 失败次数记录在 Redis 中，达到 maxAttempts 后提交 offset 放弃该消息。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, rdb *redis.Client, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}

		var task tasks.ProbeResponseTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.TaskID)
		if err := processor.Process(ctx, task); err != nil {
			log.Errorw("处理探询记录失败", "taskId", task.TaskID, "key", task.Record.Key(), "error", err)
			attempts, incErr := rdb.Incr(ctx, attemptsKey).Result()
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			_ = rdb.Expire(ctx, attemptsKey, 24*time.Hour).Err()
			if attempts >= maxAttempts {
				log.Errorw("探询记录多次处理失败，提交 offset 终止重试", "taskId", task.TaskID, "attempts", attempts)
				if err := r.CommitMessages(ctx, m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			continue
		}

		_ = rdb.Del(ctx, attemptsKey).Err()
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}
