package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Current number of active websocket connections",
	})
	WsMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_messages_total",
		Help: "Total number of chat messages created, by room",
	}, []string{"room"})
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_actions_total",
		Help: "Client actions by event and outcome",
	}, []string{"action", "outcome"})
	DroppedFramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_dropped_frames_total",
		Help: "Outbound frames dropped because a client send buffer was full",
	})
	AuthFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_auth_failures_total",
		Help: "Join attempts rejected because of a wrong code",
	})
	ReapedMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_reaped_messages_total",
		Help: "Expired ephemeral messages removed by the reaper",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		WsMessagesTotal,
		ActionsTotal,
		DroppedFramesTotal,
		AuthFailuresTotal,
		ReapedMessagesTotal,
		HttpRequestsTotal,
		HttpRequestDuration,
	)
}

// Action 记录一次客户端动作的结果，outcome 取 ok / rejected / error。
func Action(action, outcome string) {
	ActionsTotal.WithLabelValues(action, outcome).Inc()
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		// 未匹配路由统一归为一个标签，避免任意路径撑大指标基数
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
