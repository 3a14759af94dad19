package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Admission outcomes reported to Prometheus.
const (
	AdmissionOutcomeAdmitted       = "admitted"
	AdmissionOutcomeFull           = "full"
	AdmissionOutcomeAlreadyClaimed = "already_claimed"
	AdmissionOutcomeNotFound       = "not_found"
	AdmissionOutcomeForbidden      = "forbidden"
	AdmissionOutcomeRetryable      = "retryable"
	AdmissionOutcomeError          = "error"
)

// MetricsSnapshot is a lightweight view of the collected counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	ClaimsAdmitted           uint64    `json:"claims_admitted"`
	ClaimsRejected           uint64    `json:"claims_rejected"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	admissionAttempts *prometheus.CounterVec
	admissionLatency  prometheus.Observer
	decisions         *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	sweptShifts       prometheus.Counter
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	admittedCount        uint64
	rejectedCount        uint64
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

	admissionAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_attempts_total",
		Help: "Shift claim attempts by outcome",
	}, []string{"outcome"})

	admissionLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "admission_duration_seconds",
		Help:    "Time spent deciding a shift claim, retries included",
		Buckets: prometheus.DefBuckets,
	})

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proposal_decisions_total",
		Help: "Proposal decisions by resulting status",
	}, []string{"status"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Notification deliveries by kind and result",
	}, []string{"kind", "result"})

	sweptShifts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shifts_expired_total",
		Help: "Shifts retired by the expiry sweeper",
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, admissionAttempts, admissionLatency, decisions,
		notifications, sweptShifts, cacheLatency, cacheWrite, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		admissionAttempts: admissionAttempts,
		admissionLatency:  admissionLatency,
		decisions:         decisions,
		notifications:     notifications,
		sweptShifts:       sweptShifts,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
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

// ObserveHTTPRequest records request metrics.
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

// ObserveAdmission records one claim attempt.
func (m *MetricsService) ObserveAdmission(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.admissionAttempts.WithLabelValues(outcome).Inc()
	m.admissionLatency.Observe(duration.Seconds())
	if outcome == AdmissionOutcomeAdmitted {
		atomic.AddUint64(&m.admittedCount, 1)
	} else {
		atomic.AddUint64(&m.rejectedCount, 1)
	}
}

// RecordDecision counts a proposal decision.
func (m *MetricsService) RecordDecision(status string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(status).Inc()
}

// RecordNotification counts a delivery attempt.
func (m *MetricsService) RecordNotification(kind string, delivered bool) {
	if m == nil {
		return
	}
	result := "failed"
	if delivered {
		result = "delivered"
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

// RecordExpiredShifts counts shifts retired by the sweeper.
func (m *MetricsService) RecordExpiredShifts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptShifts.Add(float64(n))
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		ClaimsAdmitted:           atomic.LoadUint64(&m.admittedCount),
		ClaimsRejected:           atomic.LoadUint64(&m.rejectedCount),
		CacheHitRatio:            cacheRatio,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
