// Package metrics はPrometheusメトリクスの登録と公開を行う。
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry はordermesh専用のPrometheusレジストリ。
var Registry = prometheus.NewRegistry()

var (
	// HTTPRequestDuration はHTTPリクエストの処理時間。
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ordermesh",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service", "handler", "method", "status_code"},
	)

	// HTTPRequestsTotal はHTTPリクエスト数。
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ordermesh",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "handler", "method", "status_code"},
	)

	// UpstreamRequestsTotal はゲートウェイからバックエンドへの転送数。
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ordermesh",
			Subsystem: "gateway",
			Name:      "upstream_requests_total",
			Help:      "Total number of proxied requests by upstream and outcome",
		},
		[]string{"upstream", "outcome"},
	)

	// UpstreamRequestDuration はバックエンドへの転送にかかった時間。
	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ordermesh",
			Subsystem: "gateway",
			Name:      "upstream_request_duration_seconds",
			Help:      "Proxied request latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"upstream"},
	)

	// OrderTransitionsTotal は注文ステータス変更の試行数。
	OrderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ordermesh",
			Subsystem: "orders",
			Name:      "status_transitions_total",
			Help:      "Order status change attempts by target status and result",
		},
		[]string{"to", "result"},
	)

	// EventsPublishedTotal はドメインイベントの配信数。
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ordermesh",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events published by type and result",
		},
		[]string{"event_type", "result"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
		HTTPRequestsTotal,
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		OrderTransitionsTotal,
		EventsPublishedTotal,
	)
}

// Handler は/metricsエンドポイントのハンドラを返す。
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))
}
