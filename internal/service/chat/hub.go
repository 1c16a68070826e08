package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"roomchat_server/internal/infrastructure/metrics"

	"go.uber.org/zap"
)

const (
	roomChannelPrefix = "room:"
	controlChannel    = "control"

	kindRoom   = "room"
	kindAttach = "attach"
)

// envelope 背板上传输的消息，Origin 为发布进程 id
type envelope struct {
	Origin string          `json:"origin"`
	Kind   string          `json:"kind"`
	RoomID string          `json:"roomId"`
	UserID string          `json:"userId,omitempty"`
	Frame  json.RawMessage `json:"frame,omitempty"`
}

// Hub 房间广播：先投递本进程连接，再发布到背板由其他进程投递
type Hub struct {
	processID string
	registry  *Registry
	backplane Backplane
	timeout   time.Duration
}

func NewHub(processID string, registry *Registry, backplane Backplane, timeout time.Duration) *Hub {
	if backplane == nil {
		backplane = LocalBackplane{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Hub{processID: processID, registry: registry, backplane: backplane, timeout: timeout}
}

// Start 订阅背板
func (h *Hub) Start(ctx context.Context) error {
	return h.backplane.Subscribe(ctx, h.receive)
}

// Publish 广播事件到房间
// 只有编码失败会返回错误，背板故障只记日志，本进程投递不受影响
func (h *Hub) Publish(ctx context.Context, roomID, event string, data any) error {
	frame, err := Encode(event, data)
	if err != nil {
		return err
	}
	h.deliverLocal(roomID, frame)
	h.publishRemote(ctx, roomChannelPrefix+roomID, envelope{
		Origin: h.processID,
		Kind:   kindRoom,
		RoomID: roomID,
		Frame:  frame,
	})
	return nil
}

// Reply 只发给一条连接
func (h *Hub) Reply(conn *Conn, event string, data any) {
	frame, err := Encode(event, data)
	if err != nil {
		zap.L().Error("encode frame failed", zap.String("event", event), zap.Error(err))
		return
	}
	conn.Enqueue(frame)
}

// AttachUser 把用户在所有进程上的连接订阅到房间，用于 HTTP 侧新建成员关系
func (h *Hub) AttachUser(ctx context.Context, userID, roomID string) {
	h.attachLocal(userID, roomID)
	h.publishRemote(ctx, controlChannel, envelope{
		Origin: h.processID,
		Kind:   kindAttach,
		RoomID: roomID,
		UserID: userID,
	})
}

func (h *Hub) deliverLocal(roomID string, frame []byte) int {
	delivered := 0
	for _, connID := range h.registry.ConnectionsInRoom(roomID) {
		conn, ok := h.registry.Lookup(connID)
		if !ok {
			continue
		}
		if conn.Enqueue(frame) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) attachLocal(userID, roomID string) {
	for _, connID := range h.registry.ConnectionsOf(userID) {
		h.registry.Join(connID, roomID)
	}
}

func (h *Hub) publishRemote(ctx context.Context, channel string, env envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		zap.L().Error("encode backplane envelope failed", zap.String("channel", channel), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.backplane.Publish(ctx, channel, payload); err != nil {
		metrics.BackplaneFailures.Inc()
		zap.L().Warn("backplane publish failed", zap.String("channel", channel), zap.Error(err))
	}
}

// receive 背板回调
// 为什么要丢弃本进程自己发布的消息：Publish 已经先投递了本地连接，
// 背板再回送一份就会让本进程的连接收到重复帧
//  1. 解码信封，坏数据只记日志，不能让一条脏消息拖垮订阅循环
//  2. origin 是自己的直接返回
//  3. 房间消息按 roomId 投递本地连接；attach 控制消息把该用户在本进程的连接补订到房间
func (h *Hub) receive(channel string, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		zap.L().Warn("drop malformed backplane message", zap.String("channel", channel), zap.Error(err))
		return
	}
	if env.Origin == h.processID {
		return
	}
	switch {
	case env.Kind == kindRoom && strings.HasPrefix(channel, roomChannelPrefix):
		h.deliverLocal(env.RoomID, env.Frame)
	case env.Kind == kindAttach && channel == controlChannel:
		h.attachLocal(env.UserID, env.RoomID)
	default:
		zap.L().Debug("ignore backplane message", zap.String("channel", channel), zap.String("kind", env.Kind))
	}
}
