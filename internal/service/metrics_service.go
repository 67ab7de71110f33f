package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	rostersTotal    prometheus.Counter
	alertsTotal     *prometheus.CounterVec
	excusesTotal    *prometheus.CounterVec
	emailsTotal     prometheus.Counter
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	rostersTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_rosters_total",
		Help: "Total roster submissions",
	})

	alertsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_parent_alerts_total",
		Help: "Parent notifications emitted by the absence notifier",
	}, []string{"priority"})

	excusesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "excuse_decisions_total",
		Help: "Excuse requests decided",
	}, []string{"status"})

	emailsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emails_enqueued_total",
		Help: "Emails pushed onto the relay queue",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, rostersTotal, alertsTotal, excusesTotal, emailsTotal, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		rostersTotal:    rostersTotal,
		alertsTotal:     alertsTotal,
		excusesTotal:    excusesTotal,
		emailsTotal:     emailsTotal,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RosterSubmitted counts one roster write.
func (m *MetricsService) RosterSubmitted() {
	if m == nil {
		return
	}
	m.rostersTotal.Inc()
}

// ParentAlerted counts one emitted parent notification.
func (m *MetricsService) ParentAlerted(priority string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(priority).Inc()
}

// ExcuseDecided counts one excuse decision.
func (m *MetricsService) ExcuseDecided(status string) {
	if m == nil {
		return
	}
	m.excusesTotal.WithLabelValues(status).Inc()
}

// EmailEnqueued counts one relay push.
func (m *MetricsService) EmailEnqueued() {
	if m == nil {
		return
	}
	m.emailsTotal.Inc()
}
