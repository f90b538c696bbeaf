package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 对账结果标签
const (
	OutcomeActivated   = "activated"
	OutcomeUnmatched   = "unmatched"
	OutcomeSubscribed  = "already_subscribed"
	OutcomeDisabled    = "disabled"
	OutcomeFeedError   = "feed_error"
	OutcomeConfigError = "config_error"
	OutcomeError       = "error"
)

var (
	// HTTP 指标
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)

	// 对账指标
	ReconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vip_reconcile_total",
			Help: "Total number of reconciliation attempts by outcome",
		},
		[]string{"source", "outcome"},
	)
	QRIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vip_qr_issued_total",
			Help: "Total number of payment QR requests by status",
		},
		[]string{"status"},
	)
	PendingIntents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vip_pending_intents",
			Help: "Number of payment intents waiting for reconciliation",
		},
	)

	// 外部接口指标
	ExternalRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "vip_external_request_duration_seconds",
			Help: "Duration of bank feed and QR provider requests in seconds",
		},
		[]string{"provider", "status"},
	)
)

var registerOnce sync.Once

// InitMetrics 注册到默认 registry，重复调用安全
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)

		prometheus.MustRegister(ReconcileTotal)
		prometheus.MustRegister(QRIssuedTotal)
		prometheus.MustRegister(PendingIntents)

		prometheus.MustRegister(ExternalRequestDuration)
	})
}
