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

// MetricsSnapshot is a lightweight JSON view of the collected metrics.
type MetricsSnapshot struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	BookingsTotal            uint64    `json:"bookings_total"`
	BookingRejections        uint64    `json:"booking_rejections"`
	VersionConflicts         uint64    `json:"version_conflicts"`
	LastGenerationLessons    int64     `json:"last_generation_lessons"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheWrite         prometheus.Observer
	cacheHitRatio      prometheus.Gauge
	bookings           *prometheus.CounterVec
	versionConflicts   prometheus.Counter
	cancellations      prometheus.Counter
	cancelledLessons   prometheus.Counter
	refundCents        prometheus.Counter
	generationRuns     prometheus.Counter
	generationLessons  prometheus.Counter
	generationSkipped  prometheus.Counter
	generationFailures prometheus.Counter
	generationDuration prometheus.Histogram

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	bookingCount         uint64
	rejectionCount       uint64
	conflictCount        uint64
	lastGenerated        int64
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

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	bookings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_booking_attempts_total",
		Help: "Booking attempts by kind and outcome code",
	}, []string{"kind", "outcome"})

	versionConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_version_conflicts_total",
		Help: "Lesson updates rejected because of a stale version",
	})

	cancellations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_slot_cancellations_total",
		Help: "Recurring slots cancelled",
	})

	cancelledLessons := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_cancelled_lessons_total",
		Help: "Scheduled lessons cancelled by slot cancellations",
	})

	refundCents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_refund_cents_total",
		Help: "Refund amount computed for cancelled slots",
	})

	generationRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_generation_runs_total",
		Help: "Lesson generation job runs",
	})

	generationLessons := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_generated_lessons_total",
		Help: "Lessons materialized by the generation job",
	})

	generationSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_generation_skipped_total",
		Help: "Recurring occurrences skipped by the generation job",
	})

	generationFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_generation_teacher_failures_total",
		Help: "Teachers whose generation failed",
	})

	generationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_generation_duration_seconds",
		Help:    "Duration of lesson generation runs",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio,
		bookings, versionConflicts, cancellations, cancelledLessons, refundCents,
		generationRuns, generationLessons, generationSkipped, generationFailures, generationDuration, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		bookings:           bookings,
		versionConflicts:   versionConflicts,
		cancellations:      cancellations,
		cancelledLessons:   cancelledLessons,
		refundCents:        refundCents,
		generationRuns:     generationRuns,
		generationLessons:  generationLessons,
		generationSkipped:  generationSkipped,
		generationFailures: generationFailures,
		generationDuration: generationDuration,
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

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordBooking counts a booking attempt. outcome is "OK" or the error code.
func (m *MetricsService) RecordBooking(kind, outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(kind, outcome).Inc()
	if outcome == "OK" {
		atomic.AddUint64(&m.bookingCount, 1)
	} else {
		atomic.AddUint64(&m.rejectionCount, 1)
	}
}

// RecordVersionConflict counts a stale lesson update.
func (m *MetricsService) RecordVersionConflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
	atomic.AddUint64(&m.conflictCount, 1)
}

// RecordCancellation counts a slot cancellation and its refund.
func (m *MetricsService) RecordCancellation(lessonsCancelled, refundCents int64) {
	if m == nil {
		return
	}
	m.cancellations.Inc()
	m.cancelledLessons.Add(float64(lessonsCancelled))
	if refundCents > 0 {
		m.refundCents.Add(float64(refundCents))
	}
}

// RecordGenerationRun records the outcome of one generation job run.
func (m *MetricsService) RecordGenerationRun(generated, skipped, failedTeachers int, duration time.Duration) {
	if m == nil {
		return
	}
	m.generationRuns.Inc()
	m.generationLessons.Add(float64(generated))
	m.generationSkipped.Add(float64(skipped))
	m.generationFailures.Add(float64(failedTeachers))
	m.generationDuration.Observe(duration.Seconds())
	atomic.StoreInt64(&m.lastGenerated, int64(generated))
}

// Snapshot returns aggregated metrics suitable for a JSON endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if hits+misses > 0 {
		cacheRatio = float64(hits) / float64(hits+misses)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		CacheHitRatio:            cacheRatio,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		BookingsTotal:            atomic.LoadUint64(&m.bookingCount),
		BookingRejections:        atomic.LoadUint64(&m.rejectionCount),
		VersionConflicts:         atomic.LoadUint64(&m.conflictCount),
		LastGenerationLessons:    atomic.LoadInt64(&m.lastGenerated),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
