package chat

import (
	"context"
	"sync"
)

// Backplane 跨进程广播通道
// 实现可能把消息回送给发布者自己，Hub 按来源进程 id 过滤
type Backplane interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe 订阅全部频道，订阅确认后立即返回，ctx 取消后停止转发
	Subscribe(ctx context.Context, handler func(channel string, payload []byte)) error
	Close() error
}

// LocalBackplane 单进程部署，不做任何跨进程转发
type LocalBackplane struct{}

func (LocalBackplane) Publish(context.Context, string, []byte) error { return nil }

func (LocalBackplane) Subscribe(context.Context, func(string, []byte)) error { return nil }

func (LocalBackplane) Close() error { return nil }

// MemoryBackplane 进程内共享的总线，多个 Hub 挂在同一个实例上即可模拟多进程
// 与 Redis 一样，发布者自己也会收到消息
type MemoryBackplane struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(channel string, payload []byte)
}

func NewMemoryBackplane() *MemoryBackplane {
	return &MemoryBackplane{handlers: make(map[int]func(string, []byte))}
}

// Publish 在调用方协程里同步分发
func (b *MemoryBackplane) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	handlers := make([]func(string, []byte), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(channel, payload)
	}
	return nil
}

func (b *MemoryBackplane) Subscribe(ctx context.Context, handler func(channel string, payload []byte)) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *MemoryBackplane) Close() error {
	b.mu.Lock()
	b.handlers = make(map[int]func(string, []byte))
	b.mu.Unlock()
	return nil
}
