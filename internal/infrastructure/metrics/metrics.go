// Package metrics 实时网关的 Prometheus 指标
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections 本进程当前在线连接数
	Connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_connections",
			Help: "Number of live realtime connections on this process.",
		},
	)

	// InboundEvents 按事件名统计的入站事件数
	InboundEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_inbound_events_total",
			Help: "Inbound realtime events by event name.",
		},
		[]string{"event"},
	)

	// PersistedMessages 新写入的消息数（不含幂等命中）
	PersistedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_messages_persisted_total",
			Help: "Messages inserted by msg:send, idempotent hits excluded.",
		},
	)

	// DroppedDeliveries 因出站队列满而丢弃或断开的投递
	DroppedDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_dropped_deliveries_total",
			Help: "Outbound frames dropped because a connection queue was full.",
		},
		[]string{"policy"},
	)

	// FloodDropped 被发送频率限制丢弃的 msg:send
	FloodDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_flood_dropped_total",
			Help: "msg:send events silently dropped by per-connection flood control.",
		},
	)

	// BackplaneFailures 背板发布失败次数
	BackplaneFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_backplane_publish_failures_total",
			Help: "Failed publishes to the cross-process backplane.",
		},
	)

	// PresenceTransitions 在线状态变化次数
	PresenceTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_presence_transitions_total",
			Help: "User presence transitions by resulting state.",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(Connections)
	prometheus.MustRegister(InboundEvents)
	prometheus.MustRegister(PersistedMessages)
	prometheus.MustRegister(DroppedDeliveries)
	prometheus.MustRegister(FloodDropped)
	prometheus.MustRegister(BackplaneFailures)
	prometheus.MustRegister(PresenceTransitions)
}

// Handler GET /metrics
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
