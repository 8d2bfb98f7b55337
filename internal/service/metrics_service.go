package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the billing
// engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	balancesIssued    prometheus.Counter
	paymentsProcessed *prometheus.CounterVec
	paymentConflicts  prometheus.Counter
	remindersEmitted  *prometheus.CounterVec
	duplicatesMerged  prometheus.Counter
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

	balancesIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balances_issued_total",
		Help: "Total fee balances created by bulk issuance or manual add",
	})

	paymentsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_processed_total",
		Help: "Total completed payments",
	}, []string{"grouped"})

	paymentConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_conflicts_total",
		Help: "Payment attempts rejected because a balance was not payable",
	})

	remindersEmitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_emitted_total",
		Help: "Due-date reminders written per kind",
	}, []string{"kind"})

	duplicatesMerged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "student_duplicates_merged_total",
		Help: "Duplicate student records removed by reconciliation",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, balancesIssued, paymentsProcessed, paymentConflicts, remindersEmitted, duplicatesMerged, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		balancesIssued:    balancesIssued,
		paymentsProcessed: paymentsProcessed,
		paymentConflicts:  paymentConflicts,
		remindersEmitted:  remindersEmitted,
		duplicatesMerged:  duplicatesMerged,
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

// AddBalancesIssued counts newly created balances.
func (m *MetricsService) AddBalancesIssued(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.balancesIssued.Add(float64(n))
}

// RecordPayment counts one completed payment.
func (m *MetricsService) RecordPayment(grouped bool) {
	if m == nil {
		return
	}
	m.paymentsProcessed.WithLabelValues(fmt.Sprintf("%t", grouped)).Inc()
}

// RecordPaymentConflict counts a rejected payment attempt.
func (m *MetricsService) RecordPaymentConflict() {
	if m == nil {
		return
	}
	m.paymentConflicts.Inc()
}

// AddRemindersEmitted counts reminders written for a kind.
func (m *MetricsService) AddRemindersEmitted(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.remindersEmitted.WithLabelValues(kind).Add(float64(n))
}

// AddDuplicatesMerged counts removed duplicate student records.
func (m *MetricsService) AddDuplicatesMerged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.duplicatesMerged.Add(float64(n))
}
