package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frostdev-ops/campaign-automation/internal/core/alerts"
	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	"github.com/frostdev-ops/campaign-automation/internal/core/scheduler"
)

// MetricsConfig contains configuration for metrics collection
type MetricsConfig struct {
	Enabled bool
	Prefix  string
}

// PrometheusCollector records automation activity. It implements
// automation.Observer and scheduler.PassObserver.
type PrometheusCollector struct {
	registry *prometheus.Registry

	// Pass metrics
	passesTotal     *prometheus.CounterVec
	passDuration    *prometheus.HistogramVec
	passErrors      *prometheus.CounterVec
	rulesEvaluated  prometheus.Counter
	rulesTriggered  prometheus.Counter
	alertsTriggered *prometheus.CounterVec

	// Action metrics
	actionResults      *prometheus.CounterVec
	pendingTransitions *prometheus.CounterVec

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// WebSocket metrics
	websocketConnections prometheus.Gauge
}

// NewPrometheusCollector creates a collector on its own registry
func NewPrometheusCollector(config *MetricsConfig) *PrometheusCollector {
	if config == nil {
		config = &MetricsConfig{Enabled: true, Prefix: "campaign_automation"}
	}
	prefix := config.Prefix

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &PrometheusCollector{
		registry: registry,

		passesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_passes_total",
				Help: "Total number of scheduled passes by outcome",
			},
			[]string{"pass", "result"},
		),
		passDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_pass_duration_seconds",
				Help:    "Scheduled pass duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"pass"},
		),
		passErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_pass_errors_total",
				Help: "Total number of per-item errors inside scheduled passes",
			},
			[]string{"pass"},
		),
		rulesEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_rules_evaluated_total",
			Help: "Total number of rule evaluations",
		}),
		rulesTriggered: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_rules_triggered_total",
			Help: "Total number of rule executions recorded",
		}),
		alertsTriggered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_alerts_triggered_total",
				Help: "Total number of alert triggers",
			},
			[]string{"type"},
		),

		actionResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_action_results_total",
				Help: "Total number of executed actions by type and status",
			},
			[]string{"action", "status"},
		),
		pendingTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_pending_actions_total",
				Help: "Total number of pending action transitions",
			},
			[]string{"transition"},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		websocketConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_websocket_connections",
			Help: "Number of active WebSocket connections",
		}),
	}
}

// Registry exposes the underlying registry
func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format
func (p *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// PassCompleted records a finished pass
func (p *PrometheusCollector) PassCompleted(report scheduler.PassReport) {
	pass := string(report.Pass)
	p.passesTotal.WithLabelValues(pass, string(report.Result)).Inc()
	p.passDuration.WithLabelValues(pass).Observe(report.Duration.Seconds())
	if report.Errors > 0 {
		p.passErrors.WithLabelValues(pass).Add(float64(report.Errors))
	}
	if report.Pass == scheduler.PassRules {
		p.rulesEvaluated.Add(float64(report.Evaluated))
		p.rulesTriggered.Add(float64(report.Triggered))
	}
}

// AlertTriggered records one alert trigger
func (p *PrometheusCollector) AlertTriggered(alertType alerts.AlertType) {
	p.alertsTriggered.WithLabelValues(string(alertType)).Inc()
}

// ActionExecuted records one action outcome
func (p *PrometheusCollector) ActionExecuted(action automation.ActionType, status automation.ActionStatus) {
	p.actionResults.WithLabelValues(string(action), string(status)).Inc()
}

// PendingTransitioned records a pending action entering status
func (p *PrometheusCollector) PendingTransitioned(status automation.PendingStatus) {
	p.pendingTransitions.WithLabelValues(string(status)).Inc()
}

// RecordHTTPRequest records HTTP request metrics
func (p *PrometheusCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	p.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	p.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWebSocketConnection tracks connects and disconnects
func (p *PrometheusCollector) RecordWebSocketConnection(action string) {
	switch action {
	case "connect":
		p.websocketConnections.Inc()
	case "disconnect":
		p.websocketConnections.Dec()
	}
}
