package chat

import (
	"sync"

	"roomchat_server/internal/infrastructure/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// OverflowPolicy 出站队列满时的处理方式
type OverflowPolicy string

const (
	// PolicyDropOldest 丢掉队首最旧的一帧再入队
	PolicyDropOldest OverflowPolicy = "drop_oldest"
	// PolicyDisconnect 直接断开跟不上的连接
	PolicyDisconnect OverflowPolicy = "disconnect"
)

// ParseOverflowPolicy 未知取值按 drop_oldest 处理
func ParseOverflowPolicy(s string) OverflowPolicy {
	if OverflowPolicy(s) == PolicyDisconnect {
		return PolicyDisconnect
	}
	return PolicyDropOldest
}

// Conn 一条实时连接在核心里的句柄，与具体传输无关
// send 通道从不关闭，关闭信号统一走 done，避免向已关闭通道写入
type Conn struct {
	ID     string
	UserID string

	send   chan []byte
	policy OverflowPolicy
	// enqueueMu 串行化 drop_oldest 的 "丢一帧再写入"
	enqueueMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
	closeCode int
}

// NewConn queueSize <= 0 时使用 1
func NewConn(id, userID string, queueSize int, policy OverflowPolicy) *Conn {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Conn{
		ID:        id,
		UserID:    userID,
		send:      make(chan []byte, queueSize),
		policy:    policy,
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
	}
}

// Enqueue 非阻塞投递一帧，返回是否入队
func (c *Conn) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
	}

	if c.policy == PolicyDisconnect {
		metrics.DroppedDeliveries.WithLabelValues(string(PolicyDisconnect)).Inc()
		zap.L().Warn("outbound queue full, disconnecting", zap.String("conn_id", c.ID), zap.String("user_id", c.UserID))
		c.CloseWith(websocket.ClosePolicyViolation)
		return false
	}

	c.enqueueMu.Lock()
	defer c.enqueueMu.Unlock()
	for {
		select {
		case c.send <- frame:
			return true
		default:
		}
		select {
		case <-c.send:
			metrics.DroppedDeliveries.WithLabelValues(string(PolicyDropOldest)).Inc()
		default:
		}
	}
}

// Outbound 写协程从这里取帧
func (c *Conn) Outbound() <-chan []byte {
	return c.send
}

// Done 连接关闭后可读
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close 以正常关闭码关闭，可重复调用
func (c *Conn) Close() {
	c.CloseWith(websocket.CloseNormalClosure)
}

// CloseWith 只有第一次调用的关闭码生效
func (c *Conn) CloseWith(code int) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		close(c.done)
	})
}

// CloseCode Done 之后读取
func (c *Conn) CloseCode() int {
	<-c.done
	return c.closeCode
}
