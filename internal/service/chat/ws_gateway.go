package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"roomchat_server/pkg/errorx"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// CloseUnauthorized 握手鉴权失败的关闭码
const CloseUnauthorized = 4401

// Identity 鉴权结果
type Identity struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Authenticator 校验 bearer 凭证
type Authenticator interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// WsConfig WebSocket 传输参数
type WsConfig struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongWait         time.Duration
	WriteWait        time.Duration
	MaxFrameBytes    int64
}

// WsGateway WebSocket 接入层：握手鉴权、读写协程、心跳
type WsGateway struct {
	server   *Server
	auth     Authenticator
	cfg      WsConfig
	upgrader websocket.Upgrader
}

func NewWsGateway(server *Server, auth Authenticator, cfg WsConfig) *WsGateway {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 64 << 10
	}
	return &WsGateway{
		server: server,
		auth:   auth,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  2048,
			WriteBufferSize: 2048,
			// 跨域由 gin 的 cors 中间件和鉴权共同把关
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeWS GET /ws
func (g *WsGateway) ServeWS(c *gin.Context) {
	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	ws.SetReadLimit(g.cfg.MaxFrameBytes)
	g.serve(c.Request.Context(), ws, tokenFromRequest(c.Request))
}

// tokenFromRequest Authorization: Bearer 优先，其次 access_token 查询参数
func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("access_token")
}

func (g *WsGateway) serve(ctx context.Context, ws *websocket.Conn, token string) {
	defer ws.Close()

	// 1. 握手：没有随请求带凭证时，等待首帧 auth
	if token == "" {
		var err error
		token, err = g.readAuthFrame(ws)
		if err != nil {
			g.reject(ws, err.Error())
			return
		}
	}
	identity, err := g.auth.Verify(ctx, token)
	if err != nil {
		zap.L().Info("websocket handshake rejected", zap.Error(err))
		g.reject(ws, "invalid or expired credential")
		return
	}

	// 2. 登记连接并自动订阅所有成员房间
	conn := g.server.NewConn(identity.UserID)
	rooms, err := g.server.Open(ctx, conn)
	if err != nil {
		zap.L().Error("open connection failed", zap.String("user_id", identity.UserID), zap.Error(err))
		g.writeFrame(ws, EventError, ErrorData{Code: errorx.WireInternal, Message: "open session failed"})
		g.writeClose(ws, websocket.CloseInternalServerErr, "")
		return
	}
	defer g.server.Close(conn)
	g.server.Hub.Reply(conn, EventSessionReady, ReadyData{ConnID: conn.ID, UserID: conn.UserID, Rooms: rooms})

	// 3. 写协程 + 读协程，当前协程作为连接的事件循环
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		g.writeLoop(ws, conn)
	}()

	inbound := make(chan []byte, 16)
	go g.readLoop(ws, conn, inbound)

	for {
		select {
		case raw, ok := <-inbound:
			if !ok {
				conn.Close()
				<-writerDone
				return
			}
			if err := g.server.Handle(ctx, conn, raw); err != nil {
				zap.L().Error("handle event failed", zap.String("conn_id", conn.ID), zap.String("user_id", conn.UserID), zap.Error(err))
			}
		case <-conn.Done():
			<-writerDone
			return
		}
	}
}

var errAuthRequired = errors.New("auth frame required")

func (g *WsGateway) readAuthFrame(ws *websocket.Conn) (string, error) {
	_ = ws.SetReadDeadline(time.Now().Add(g.cfg.HandshakeTimeout))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		return "", errAuthRequired
	}
	_ = ws.SetReadDeadline(time.Time{})

	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil || in.Event != EventAuth {
		return "", errAuthRequired
	}
	var p AuthPayload
	if detail := decodePayload(in.Data, &p); detail != nil {
		return "", errAuthRequired
	}
	return p.Token, nil
}

// reject 发送 unauthorized 后以 4401 关闭，不登记连接
func (g *WsGateway) reject(ws *websocket.Conn, message string) {
	g.writeFrame(ws, EventUnauthorized, ErrorData{Code: errorx.WireUnauthorized, Message: message})
	g.writeClose(ws, CloseUnauthorized, "unauthorized")
}

func (g *WsGateway) writeFrame(ws *websocket.Conn, event string, data any) {
	frame, err := Encode(event, data)
	if err != nil {
		return
	}
	_ = ws.SetWriteDeadline(time.Now().Add(g.cfg.WriteWait))
	_ = ws.WriteMessage(websocket.TextMessage, frame)
}

func (g *WsGateway) writeClose(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(g.cfg.WriteWait))
}

// readLoop 读到的帧交给事件循环，出错时关闭 inbound
func (g *WsGateway) readLoop(ws *websocket.Conn, conn *Conn, inbound chan<- []byte) {
	defer close(inbound)
	_ = ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	})
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				zap.L().Info("websocket read closed", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			return
		}
		select {
		case inbound <- raw:
		case <-conn.Done():
			return
		}
	}
}

// writeLoop 连接关闭时发送关闭帧，关闭码由 Conn 决定
func (g *WsGateway) writeLoop(ws *websocket.Conn, conn *Conn) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(g.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				zap.L().Info("websocket write failed", zap.String("conn_id", conn.ID), zap.Error(err))
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(g.cfg.WriteWait)); err != nil {
				conn.Close()
				return
			}
		case <-conn.Done():
			g.drain(ws, conn)
			g.writeClose(ws, conn.CloseCode(), "")
			return
		}
	}
}

// drain 关闭前尽量把已入队的帧写出去
func (g *WsGateway) drain(ws *websocket.Conn, conn *Conn) {
	for {
		select {
		case frame := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(g.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
