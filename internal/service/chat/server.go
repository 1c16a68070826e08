// Package chat 实时聊天核心
// Registry 管理本进程连接，Hub 负责房间广播和跨进程背板，Dispatcher 是协议状态机，Presence 维护在线状态
// 与传输层无关，WebSocket 接入见 ws_gateway.go
package chat

import (
	"context"
	"sync"
	"time"

	"roomchat_server/internal/dao/gateway"
	myredis "roomchat_server/internal/dao/redis"
	"roomchat_server/internal/infrastructure/metrics"
	"roomchat_server/pkg/constants"
	"roomchat_server/pkg/errorx"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options 聊天服务器参数，零值字段使用默认值
type Options struct {
	ProcessID        string
	HistoryLimit     int
	FloodInterval    time.Duration
	PersistTimeout   time.Duration
	CacheTimeout     time.Duration
	StrictRoomJoin   bool
	SendQueueSize    int
	OverflowPolicy   OverflowPolicy
	BackplaneTimeout time.Duration
}

// Server 聊天服务器聚合结构
type Server struct {
	Registry   *Registry
	Hub        *Hub
	Dispatcher *Dispatcher
	Presence   *Presence

	store     gateway.Gateway
	opts      Options
	backplane Backplane

	// sessions 已 Open 未 Close 的连接，Shutdown 时等待它们收尾
	sessions sync.WaitGroup
}

// NewServer backplane/counter 为 nil 时按单进程部署处理
func NewServer(store gateway.Gateway, cache myredis.AsyncCacheService, backplane Backplane, counter PresenceCounter, opts Options) *Server {
	if opts.ProcessID == "" {
		opts.ProcessID = uuid.NewString()
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = constants.SEND_QUEUE_SIZE
	}
	if opts.OverflowPolicy == "" {
		opts.OverflowPolicy = PolicyDropOldest
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = constants.PERSIST_TIMEOUT
	}
	if opts.BackplaneTimeout <= 0 {
		opts.BackplaneTimeout = constants.CACHE_TIMEOUT
	}
	if backplane == nil {
		backplane = LocalBackplane{}
	}

	registry := NewRegistry()
	hub := NewHub(opts.ProcessID, registry, backplane, opts.BackplaneTimeout)
	return &Server{
		Registry: registry,
		Hub:      hub,
		Dispatcher: NewDispatcher(store, cache, registry, hub, DispatcherConfig{
			HistoryLimit:   opts.HistoryLimit,
			FloodInterval:  opts.FloodInterval,
			PersistTimeout: opts.PersistTimeout,
			CacheTimeout:   opts.CacheTimeout,
			StrictRoomJoin: opts.StrictRoomJoin,
		}),
		Presence:  NewPresence(counter, store, hub, opts.PersistTimeout),
		store:     store,
		opts:      opts,
		backplane: backplane,
	}
}

// ProcessID 本进程在背板上的标识
func (s *Server) ProcessID() string {
	return s.opts.ProcessID
}

// Start 订阅背板，ctx 取消后停止接收跨进程消息
func (s *Server) Start(ctx context.Context) error {
	return s.Hub.Start(ctx)
}

// NewConn 为已认证用户创建连接句柄
func (s *Server) NewConn(userID string) *Conn {
	return NewConn(uuid.NewString(), userID, s.opts.SendQueueSize, s.opts.OverflowPolicy)
}

// Open 握手成功后调用
// 1. 登记连接 2. 自动订阅用户所有成员关系所在的房间 3. 更新在线状态
// 返回已订阅的房间 id
func (s *Server) Open(ctx context.Context, conn *Conn) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.PersistTimeout)
	defer cancel()

	memberships, err := s.store.ListMemberships(ctx, conn.UserID)
	if err != nil {
		return nil, errorx.Wrapf(err, errorx.GetCode(err), "list memberships user=%s", conn.UserID)
	}
	if err := s.Registry.Register(conn); err != nil {
		return nil, err
	}
	s.sessions.Add(1)
	metrics.Connections.Inc()

	rooms := make([]string, 0, len(memberships))
	for _, m := range memberships {
		s.Registry.Join(conn.ID, m.RoomID)
		rooms = append(rooms, m.RoomID)
	}

	localFirst := len(s.Registry.ConnectionsOf(conn.UserID)) == 1
	s.Presence.Connected(ctx, conn.UserID, localFirst)
	zap.L().Info("connection opened", zap.String("conn_id", conn.ID), zap.String("user_id", conn.UserID), zap.Int("rooms", len(rooms)))
	return rooms, nil
}

// Close 断开连接并结算在线状态，可重复调用
func (s *Server) Close(conn *Conn) {
	conn.Close()
	userID, last, ok := s.Registry.Unregister(conn.ID)
	if !ok {
		return
	}
	defer s.sessions.Done()
	metrics.Connections.Dec()

	// 连接所属的 ctx 可能已经取消，在线状态结算用独立的 ctx
	s.Presence.Disconnected(context.Background(), userID, last)
	zap.L().Info("connection closed", zap.String("conn_id", conn.ID), zap.String("user_id", userID), zap.Bool("last_local", last))
}

// Handle 交给 Dispatcher 处理一帧入站数据
func (s *Server) Handle(ctx context.Context, conn *Conn, raw []byte) error {
	return s.Dispatcher.Handle(ctx, conn, raw)
}

// AttachMembership HTTP 侧新建成员关系后，把该用户所有进程上的连接订阅到房间
func (s *Server) AttachMembership(ctx context.Context, userID, roomID string) {
	s.Hub.AttachUser(ctx, userID, roomID)
}

// Online 集群范围内用户是否在线
func (s *Server) Online(ctx context.Context, userID string) bool {
	return s.Presence.Online(ctx, userID)
}

// Shutdown 以 going-away 关闭所有连接，等待每条连接完成在线状态结算
func (s *Server) Shutdown(ctx context.Context) error {
	for _, conn := range s.Registry.All() {
		conn.CloseWith(websocket.CloseGoingAway)
	}

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if cerr := s.backplane.Close(); cerr != nil {
		zap.L().Warn("close backplane failed", zap.Error(cerr))
	}
	return err
}
