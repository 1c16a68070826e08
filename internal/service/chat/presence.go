package chat

import (
	"context"
	"sync"
	"time"

	"roomchat_server/internal/dao/gateway"
	"roomchat_server/internal/infrastructure/metrics"

	"go.uber.org/zap"
)

// PresenceCounter 用户在线连接计数，Incr/Decr 返回变更后的总数
// 集群部署时由 Redis 实现，统计所有进程
type PresenceCounter interface {
	Incr(ctx context.Context, userID string) (int64, error)
	Decr(ctx context.Context, userID string) (int64, error)
	Count(ctx context.Context, userID string) (int64, error)
}

// LocalPresenceCounter 单进程计数
type LocalPresenceCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewLocalPresenceCounter() *LocalPresenceCounter {
	return &LocalPresenceCounter{counts: make(map[string]int64)}
}

func (c *LocalPresenceCounter) Incr(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[userID]++
	return c.counts[userID], nil
}

func (c *LocalPresenceCounter) Decr(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.counts[userID] - 1
	if n <= 0 {
		delete(c.counts, userID)
		return 0, nil
	}
	c.counts[userID] = n
	return n, nil
}

func (c *LocalPresenceCounter) Count(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[userID], nil
}

// Presence 把连接生命周期翻译成在线状态
// 上线/下线事件广播到用户所有成员关系所在的房间，而不是某条连接订阅的房间
//
// 为什么以集群计数为准：同一用户可能在多个进程上各有连接，
// 只看本进程的 0->1/1->0 会在另一进程仍在线时误报离线。
// 计数器（Redis）不可用时退回本进程的判断，宁可多报一次也不让在线状态卡住。
type Presence struct {
	counter PresenceCounter
	store   gateway.Gateway
	hub     *Hub
	timeout time.Duration
	now     func() time.Time
}

func NewPresence(counter PresenceCounter, store gateway.Gateway, hub *Hub, timeout time.Duration) *Presence {
	if counter == nil {
		counter = NewLocalPresenceCounter()
	}
	return &Presence{counter: counter, store: store, hub: hub, timeout: timeout, now: time.Now}
}

// Connected localFirst 为本进程的 0->1，计数器不可用时用它兜底
//  1. 集群计数 +1，结果为 1 才算上线
//  2. 计数失败时用 localFirst 代替
//  3. 上线时向该用户的全部房间广播 presence
func (p *Presence) Connected(ctx context.Context, userID string, localFirst bool) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	online := localFirst
	total, err := p.counter.Incr(ctx, userID)
	if err != nil {
		zap.L().Warn("presence counter incr failed, using local count", zap.String("user_id", userID), zap.Error(err))
	} else {
		online = total == 1
	}
	if !online {
		return
	}
	metrics.PresenceTransitions.WithLabelValues("online").Inc()
	p.broadcast(ctx, userID, PresenceData{UserID: userID, Online: true})
}

// Disconnected localLast 为本进程的 1->0
// 集群范围内最后一条连接关闭时写入 last-seen 并广播离线
// last-seen 截到毫秒，和广播里带出去的值以及数据库里存的值保持一致
// 写库失败只记日志，离线广播照常发出
func (p *Presence) Disconnected(ctx context.Context, userID string, localLast bool) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	offline := localLast
	total, err := p.counter.Decr(ctx, userID)
	if err != nil {
		zap.L().Warn("presence counter decr failed, using local count", zap.String("user_id", userID), zap.Error(err))
	} else {
		offline = total == 0
	}
	if !offline {
		return
	}

	lastSeen := p.now().Truncate(time.Millisecond)
	if err := p.store.TouchLastSeen(ctx, userID, lastSeen); err != nil {
		zap.L().Error("persist last seen failed", zap.String("user_id", userID), zap.Error(err))
	}
	metrics.PresenceTransitions.WithLabelValues("offline").Inc()
	p.broadcast(ctx, userID, PresenceData{UserID: userID, Online: false, LastSeen: &lastSeen})
}

// Online 计数器不可用时返回 false
func (p *Presence) Online(ctx context.Context, userID string) bool {
	total, err := p.counter.Count(ctx, userID)
	if err != nil {
		zap.L().Warn("presence counter read failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return total > 0
}

func (p *Presence) broadcast(ctx context.Context, userID string, data PresenceData) {
	memberships, err := p.store.ListMemberships(ctx, userID)
	if err != nil {
		zap.L().Error("list memberships for presence failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	for _, m := range memberships {
		if err := p.hub.Publish(ctx, m.RoomID, EventPresence, data); err != nil {
			zap.L().Error("publish presence failed", zap.String("user_id", userID), zap.String("room_id", m.RoomID), zap.Error(err))
		}
	}
}
