// Package metrics defines rcloud's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rcloud"

// Operation outcomes used as the status label of VMOperations.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds the collectors and the registry they are registered in. The
// Observe and Set helpers are no-ops on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	VMCount          prometheus.Gauge
	VMOperations     *prometheus.CounterVec
	CreateStageTime  *prometheus.HistogramVec
	RollbackFailures *prometheus.CounterVec
}

// New creates the collectors in a private registry, along with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		VMCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vm_count",
			Help:      "Number of VMs seen by the last list operation",
		}),
		VMOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vm_operations_total",
			Help:      "Total number of VM lifecycle operations",
		}, []string{"operation", "status"}),
		CreateStageTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vm_create_stage_duration_seconds",
			Help:      "Duration of each VM create stage",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage", "status"}),
		RollbackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vm_rollback_failures_total",
			Help:      "Compensating actions that failed during create rollback",
		}, []string{"action"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.VMCount,
		m.VMOperations,
		m.CreateStageTime,
		m.RollbackFailures,
	)

	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, endpoint string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

// ObserveOperation records the outcome of a VM operation.
func (m *Metrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.VMOperations.WithLabelValues(operation, status).Inc()
}

// ObserveStage records how long a create stage took.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.CreateStageTime.WithLabelValues(stage, status).Observe(elapsed.Seconds())
}

// SetVMCount records the number of VMs returned by a list.
func (m *Metrics) SetVMCount(n int) {
	if m == nil {
		return
	}
	m.VMCount.Set(float64(n))
}

// RollbackFailed counts a compensating action that returned an error.
func (m *Metrics) RollbackFailed(action string) {
	if m == nil {
		return
	}
	m.RollbackFailures.WithLabelValues(action).Inc()
}
