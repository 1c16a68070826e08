package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannelPrefix 背板频道前缀，房间频道为 <prefix>room:<roomId>
const DefaultChannelPrefix = "roomchat:"

// Backplane 基于 Redis Pub/Sub 的跨进程广播
// Redis 会把消息也投递给发布者自己，去重由上层按来源进程 id 过滤
type Backplane struct {
	client *redis.Client
	prefix string
}

// NewBackplane 创建背板，prefix 为空时使用 DefaultChannelPrefix
func NewBackplane(client *redis.Client, prefix string) *Backplane {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Backplane{client: client, prefix: prefix}
}

// Publish 发布到 <prefix><channel>
func (b *Backplane) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, b.prefix+channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe 模式订阅 <prefix>*，确认订阅成功后返回
// 转发协程在 ctx 取消或连接关闭时退出
func (b *Backplane) Subscribe(ctx context.Context, handler func(channel string, payload []byte)) error {
	if handler == nil {
		return fmt.Errorf("handler required")
	}
	sub := b.client.PSubscribe(ctx, b.prefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis psubscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					zap.L().Warn("redis backplane subscription closed")
					return
				}
				handler(strings.TrimPrefix(m.Channel, b.prefix), []byte(m.Payload))
			}
		}
	}()
	return nil
}

// Close 客户端由调用方统一关闭，这里不做任何事
func (b *Backplane) Close() error {
	return nil
}
