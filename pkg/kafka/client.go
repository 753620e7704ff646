// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"wet-coach-go/internal/config"
	"wet-coach-go/pkg/log"
	"wet-coach-go/pkg/tasks"
)

// maxAttempts 是单个任务失败后允许的最大处理次数。
const maxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.TurnArchiveTask) error
}

// Producer 将归档任务写入 Kafka 主题。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Publish 发送一个归档任务，以会话 ID 作为 key 保证同一会话有序。
func (p *Producer) Publish(ctx context.Context, task tasks.TurnArchiveTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.ConversationID),
		Value: taskBytes,
	})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func attemptsKey(task tasks.TurnArchiveTask) string {
	return fmt.Sprintf("kafka:attempts:%s:%d", task.ConversationID, task.NoteID)
}

// recordFailure 用 Redis 累计失败次数，返回是否应当提交 offset 放弃重试。
// Redis 异常时不提交，让 Kafka 重新投递。
func recordFailure(ctx context.Context, rdb *redis.Client, task tasks.TurnArchiveTask) bool {
	key := attemptsKey(task)
	attempts, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return false
	}
	_ = rdb.Expire(ctx, key, 24*time.Hour).Err()
	return attempts >= maxAttempts
}

// StartConsumer 启动一个 Kafka 消费者来处理归档任务，ctx 取消时退出。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, rdb *redis.Client) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
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

		var task tasks.TurnArchiveTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		if err := processor.Process(ctx, task); err != nil {
			log.Errorf("处理归档任务失败: conversation=%s note=%d, Error: %v", task.ConversationID, task.NoteID, err)
			if recordFailure(ctx, rdb, task) {
				log.Errorf("归档任务多次失败(>=%d)，提交 offset 终止重试: conversation=%s", maxAttempts, task.ConversationID)
				if err := r.CommitMessages(ctx, m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			continue
		}

		_ = rdb.Del(ctx, attemptsKey(task)).Err()
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}
