// Package metrics holds the Prometheus collectors of the yahalom server.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "yahalom"

// Operation results
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics contains the store, HTTP and replica collectors
type Metrics struct {
	registry *prometheus.Registry

	StoreOperations   *prometheus.CounterVec
	StoreDuration     *prometheus.HistogramVec
	HTTPRequests      *prometheus.CounterVec
	ReplicaPushes     *prometheus.CounterVec
	SubscribersActive prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg gets a
// fresh registry with the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: reg,

		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Total number of repository operations",
			},
			[]string{"collection", "op", "result"},
		),

		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operation_seconds",
				Help:      "Repository operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"collection", "op"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by method and status code",
			},
			[]string{"method", "code"},
		),

		ReplicaPushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "replica",
				Name:      "pushes_total",
				Help:      "Total number of snapshot pushes to replica sinks",
			},
			[]string{"sink", "result"},
		),

		SubscribersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "subscribers",
				Help:      "Number of connected event stream clients",
			},
		),
	}

	reg.MustRegister(
		m.StoreOperations,
		m.StoreDuration,
		m.HTTPRequests,
		m.ReplicaPushes,
		m.SubscribersActive,
	)
	return m
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveStore records one repository operation that started at start
func (m *Metrics) ObserveStore(collection, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.StoreOperations.WithLabelValues(collection, op, result(err)).Inc()
	m.StoreDuration.WithLabelValues(collection, op).Observe(time.Since(start).Seconds())
}

// ObserveRequest counts one served HTTP request
func (m *Metrics) ObserveRequest(method string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// ObservePush counts one snapshot push to a replica sink
func (m *Metrics) ObservePush(sink string, err error) {
	if m == nil {
		return
	}
	m.ReplicaPushes.WithLabelValues(sink, result(err)).Inc()
}

// SubscriberConnected adjusts the connected event stream client gauge
func (m *Metrics) SubscriberConnected(delta int) {
	if m == nil {
		return
	}
	m.SubscribersActive.Add(float64(delta))
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
