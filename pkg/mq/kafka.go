// Package mq 提供 Kafka producer/consumer 通用实现，提交偏移量即确认消费，
// 未确认的消息会被重新投递（at-least-once），并支持死信队列
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/rebalancer/pkg/logger"
)

// redeliveryDelay 是未确认消息重新投递前的间隔
const redeliveryDelay = time.Second

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers        []string
	GroupID        string
	SessionTimeout int
	MaxRetries     int
	RetryBackoff   int
}

// Message Kafka 消息结构
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       string
	Value     []byte
	Time      time.Time

	raw kafka.Message
}

// UnmarshalPayload 将消息值解析为 JSON
func (m *Message) UnmarshalPayload(dest any) error {
	return json.Unmarshal(m.Value, dest)
}

// Handler 处理单条消息；返回 nil 表示确认（提交偏移量），
// 返回错误表示不确认，消息会被重新投递
type Handler func(ctx context.Context, msg *Message) error

// KafkaProducer Kafka 生产者
type KafkaProducer struct {
	writer *kafka.Writer
	config KafkaConfig
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg KafkaConfig) *KafkaProducer {
	maxAttempts := cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 100
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            maxAttempts,
		WriteBackoffMin:        time.Duration(backoff) * time.Millisecond,
		WriteBackoffMax:        time.Duration(backoff*10) * time.Millisecond,
	}

	logger.Info(context.Background(), "Kafka producer created", "brokers", cfg.Brokers)
	return &KafkaProducer{
		writer: writer,
		config: cfg,
	}
}

// SendMessage 发送单条消息
func (kp *KafkaProducer) SendMessage(ctx context.Context, topic string, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error(ctx, "Failed to send Kafka message",
			"topic", topic,
			"key", key,
			"error", err,
		)
		return err
	}

	logger.Debug(ctx, "Kafka message sent", "topic", topic, "key", key)
	return nil
}

// Close 关闭生产者
func (kp *KafkaProducer) Close() error {
	return kp.writer.Close()
}

// KafkaConsumer Kafka 消费者，显式提交偏移量
type KafkaConsumer struct {
	reader *kafka.Reader
	config KafkaConfig
	wg     sync.WaitGroup
}

// NewConsumer 创建 Kafka 消费者
func NewConsumer(cfg KafkaConfig, topic string) *KafkaConsumer {
	sessionTimeout := cfg.SessionTimeout
	if sessionTimeout <= 0 {
		sessionTimeout = 10
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.GroupID,
		SessionTimeout: time.Duration(sessionTimeout) * time.Second,
		StartOffset:    kafka.FirstOffset,
		MaxBytes:       10e6, // 10MB
	})

	logger.Info(context.Background(), "Kafka consumer created",
		"brokers", cfg.Brokers,
		"topic", topic,
		"group_id", cfg.GroupID,
	)
	return &KafkaConsumer{
		reader: reader,
		config: cfg,
	}
}

// Start 以 concurrency 个并发 worker 消费消息。每个 worker 一次只处理一条消息：
// 处理成功后提交偏移量；失败时不提交，等待 redeliveryDelay 后重新投递同一条消息。
// ctx 取消后 worker 处理完手头消息即退出，不会丢失未确认的消息。
func (kc *KafkaConsumer) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}

	for i := 0; i < concurrency; i++ {
		kc.wg.Add(1)
		go func() {
			defer kc.wg.Done()
			kc.run(ctx, handler)
		}()
	}
}

func (kc *KafkaConsumer) run(ctx context.Context, handler Handler) {
	for {
		raw, err := kc.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			logger.Error(ctx, "Failed to fetch Kafka message", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(redeliveryDelay):
			}
			continue
		}

		msg := &Message{
			Topic:     raw.Topic,
			Partition: raw.Partition,
			Offset:    raw.Offset,
			Key:       string(raw.Key),
			Value:     raw.Value,
			Time:      raw.Time,
			raw:       raw,
		}

		// 重新投递直到处理方确认；确认与否是唯一的重试机制
		for {
			err := handler(ctx, msg)
			if err == nil {
				break
			}

			logger.Warn(ctx, "Message left unacknowledged, will redeliver",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)

			select {
			case <-ctx.Done():
				// 未确认的消息留待下次启动后重新投递
				return
			case <-time.After(redeliveryDelay):
			}
		}

		if err := kc.reader.CommitMessages(ctx, raw); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			// 提交失败仅意味着可能重复投递，at-least-once 语义不受影响
			logger.Error(ctx, "Failed to commit Kafka offset",
				"topic", msg.Topic,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// Wait 等待所有 worker 退出
func (kc *KafkaConsumer) Wait() {
	kc.wg.Wait()
}

// Close 关闭消费者
func (kc *KafkaConsumer) Close() error {
	return kc.reader.Close()
}

// DeadLetterQueue 死信队列处理
type DeadLetterQueue struct {
	producer *KafkaProducer
	suffix   string
}

// NewDeadLetterQueue 创建死信队列
func NewDeadLetterQueue(producer *KafkaProducer, suffix string) *DeadLetterQueue {
	if suffix == "" {
		suffix = ".dlq"
	}
	return &DeadLetterQueue{
		producer: producer,
		suffix:   suffix,
	}
}

// Send 发送毒消息到死信主题
func (dlq *DeadLetterQueue) Send(ctx context.Context, original *Message, reason string, cause error) error {
	causeMsg := ""
	if cause != nil {
		causeMsg = cause.Error()
	}

	deadLetter := map[string]any{
		"original_topic":    original.Topic,
		"original_key":      original.Key,
		"original_value":    string(original.Value),
		"original_offset":   original.Offset,
		"original_time":     original.Time,
		"failure_reason":    reason,
		"failure_error":     causeMsg,
		"failure_timestamp": time.Now(),
	}

	return dlq.producer.SendMessage(ctx, original.Topic+dlq.suffix, original.Key, deadLetter)
}
