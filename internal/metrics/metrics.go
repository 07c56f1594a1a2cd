package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "radiochat_ws_connections",
		Help: "Current number of active websocket connections",
	})
	WsMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radiochat_messages_total",
		Help: "Total number of chat messages persisted and broadcast",
	})
	WsRateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radiochat_ws_rate_limited_total",
		Help: "Inbound frames rejected by the per-connection rate limit",
	})
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "radiochat_active_rooms",
		Help: "Rooms with at least one live member",
	})
	BroadcastDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radiochat_broadcast_dropped_total",
		Help: "Broadcast deliveries dropped because the member connection was closed or backed up",
	})
	MediaUploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "radiochat_media_uploads_total",
		Help: "Image uploads by result",
	}, []string{"result"})
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
		WsConnections, WsMessagesTotal, WsRateLimited,
		ActiveRooms, BroadcastDropped, MediaUploads,
		HttpRequestsTotal, HttpRequestDuration,
	)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
