// Package mq 基于 Kafka 的跨进程广播背板
// 所有频道共用一个 topic，频道名写在消息 Key 里
// 每个进程使用独立的消费组，保证每个进程都能收到全部消息
package mq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	myconfig "roomchat_server/internal/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaBackplane Kafka 背板
type KafkaBackplane struct {
	producer *kafka.Writer
	brokers  []string
	topic    string
	groupID  string
	timeout  time.Duration

	mu       sync.Mutex
	consumer *kafka.Reader
}

// NewKafkaBackplane 创建 Kafka 背板
// 消费组取 cfg.ConsumerGroup，未配置时才退回到随进程变化的 processID
func NewKafkaBackplane(cfg myconfig.KafkaConfig, processID string) *KafkaBackplane {
	timeout := cfg.Timeout * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	groupID := cfg.ConsumerGroup
	if groupID == "" {
		groupID = "roomchat-" + processID
	}
	return &KafkaBackplane{
		producer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.HostPort),
			Topic:                  cfg.BackplaneTopic,
			Balancer:               &kafka.Hash{},
			WriteTimeout:           timeout,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		brokers: []string{cfg.HostPort},
		topic:   cfg.BackplaneTopic,
		groupID: groupID,
		timeout: timeout,
	}
}

// Publish 同一频道的消息 Key 相同，落在同一分区，保证频道内有序
func (k *KafkaBackplane) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := k.producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(channel),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("kafka publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe 启动消费协程，ctx 取消时退出
// 从最新位点开始消费，进程启动前的广播不会补发
func (k *KafkaBackplane) Subscribe(ctx context.Context, handler func(channel string, payload []byte)) error {
	if handler == nil {
		return errors.New("handler required")
	}
	k.mu.Lock()
	if k.consumer != nil {
		k.mu.Unlock()
		return errors.New("kafka backplane already subscribed")
	}
	consumer := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.brokers,
		Topic:          k.topic,
		GroupID:        k.groupID,
		CommitInterval: k.timeout,
		StartOffset:    kafka.LastOffset,
	})
	k.consumer = consumer
	k.mu.Unlock()

	go func() {
		for {
			msg, err := consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return
				}
				zap.L().Error("kafka backplane read failed", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			handler(string(msg.Key), msg.Value)
		}
	}()
	return nil
}

// Close 关闭生产者和消费者
func (k *KafkaBackplane) Close() error {
	var errs []error
	if err := k.producer.Close(); err != nil {
		errs = append(errs, err)
	}
	k.mu.Lock()
	if k.consumer != nil {
		if err := k.consumer.Close(); err != nil {
			errs = append(errs, err)
		}
		k.consumer = nil
	}
	k.mu.Unlock()
	return errors.Join(errs...)
}
