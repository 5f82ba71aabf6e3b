package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 自适应练习
	PracticeSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toeic_practice_sessions_total",
			Help: "Adaptive practice sessions generated",
		},
		[]string{"part"},
	)

	PracticeSelected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toeic_practice_selected_questions_total",
			Help: "Questions picked by the adaptive selector, by bucket",
		},
		[]string{"part", "bucket"},
	)

	TestSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toeic_test_submissions_total",
			Help: "Submitted test and practice results",
		},
		[]string{"type"},
	)

	// IRT 校准
	IRTRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toeic_irt_runs_total",
			Help: "IRT update runs by final status",
		},
		[]string{"status"},
	)

	IRTRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "toeic_irt_run_duration_seconds",
			Help:    "Duration of IRT update runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)

	// AI 助教
	AIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toeic_ai_requests_total",
			Help: "Requests sent to the generative AI provider",
		},
		[]string{"kind", "status"},
	)

	// 会员聊天
	IMMessageCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toeic_im_messages_total",
			Help: "Chat websocket messages",
		},
		[]string{"type", "direction"},
	)

	IMOnlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toeic_im_online_members",
			Help: "Members with an open chat websocket on this instance",
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			PracticeSessions,
			PracticeSelected,
			TestSubmissions,
			IRTRuns,
			IRTRunDuration,
			AIRequests,
			IMMessageCounter,
			IMOnlineUsers,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
