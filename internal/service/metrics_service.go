package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/uni-enrollment-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry              *prometheus.Registry
	handler               http.Handler
	requestDuration       *prometheus.HistogramVec
	requestTotal          *prometheus.CounterVec
	dbQueryDuration       *prometheus.HistogramVec
	enrollmentTransitions *prometheus.CounterVec
	enrollmentRejections  *prometheus.CounterVec
	notificationDelivery  *prometheus.CounterVec
	notificationPublish   *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
	deliveredCount       uint64
	failedCount          uint64

	mu          sync.Mutex
	transitions map[string]uint64
}

// NewMetricsService registers core Prometheus collectors.
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

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	enrollmentTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_transitions_total",
		Help: "Committed enrollment status changes by target status",
	}, []string{"status"})

	enrollmentRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_rule_violations_total",
		Help: "Enrollment operations refused by a business rule",
	}, []string{"rule"})

	notificationDelivery := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Notification delivery attempts by channel and result",
	}, []string{"channel", "result"})

	notificationPublish := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_events_published_total",
		Help: "Enrollment status events handed to the notifier by driver and result",
	}, []string{"driver", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, dbQueryDuration, enrollmentTransitions, enrollmentRejections, notificationDelivery, notificationPublish, goroutines)

	return &MetricsService{
		registry:              registry,
		handler:               promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:       requestDuration,
		requestTotal:          requestTotal,
		dbQueryDuration:       dbQueryDuration,
		enrollmentTransitions: enrollmentTransitions,
		enrollmentRejections:  enrollmentRejections,
		notificationDelivery:  notificationDelivery,
		notificationPublish:   notificationPublish,
		transitions:           make(map[string]uint64),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordTransition counts a committed enrollment status change.
func (m *MetricsService) RecordTransition(status models.EnrollmentStatus) {
	if m == nil {
		return
	}
	m.enrollmentTransitions.WithLabelValues(string(status)).Inc()
	m.mu.Lock()
	m.transitions[string(status)]++
	m.mu.Unlock()
}

// RecordRuleViolation counts an enrollment refused by a business rule.
func (m *MetricsService) RecordRuleViolation(rule string) {
	if m == nil {
		return
	}
	m.enrollmentRejections.WithLabelValues(rule).Inc()
}

// RecordDelivery counts a notification delivery attempt on a channel.
func (m *MetricsService) RecordDelivery(channel string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
		atomic.AddUint64(&m.failedCount, 1)
	} else {
		atomic.AddUint64(&m.deliveredCount, 1)
	}
	m.notificationDelivery.WithLabelValues(channel, result).Inc()
}

// RecordPublish counts an event hand-off to the notification driver.
func (m *MetricsService) RecordPublish(driver string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.notificationPublish.WithLabelValues(driver, result).Inc()
}

// Snapshot returns aggregated metrics suitable for the admin summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	m.mu.Lock()
	transitions := make(map[string]uint64, len(m.transitions))
	for status, count := range m.transitions {
		transitions[status] = count
	}
	m.mu.Unlock()

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: avgDBMs,
		EnrollmentTransitions:    transitions,
		NotificationsDelivered:   atomic.LoadUint64(&m.deliveredCount),
		NotificationsFailed:      atomic.LoadUint64(&m.failedCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
