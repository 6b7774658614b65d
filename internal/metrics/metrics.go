// Package metrics exports daemon operation counters and store gauges in the
// Prometheus text format.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leonardcser/kvnode/internal/storage"
)

const namespace = "kvnode"

// Result labels.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultCapacity = "capacity_exceeded"
	ResultError    = "error"
)

// Metrics owns a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	ops      *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_total",
			Help:      "Store operations by op and result.",
		}, []string{"op", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "op_duration_seconds",
			Help:      "Store operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"op"}),
	}
	m.registry.MustRegister(m.ops, m.latency)
	return m
}

// Sized is implemented by backends that track their byte total.
type Sized interface {
	Size() int64
}

// TrackSize exports s.Size() as kvnode_size_bytes, read at scrape time.
func (m *Metrics) TrackSize(s Sized) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "size_bytes",
		Help:      "Sum of key and value lengths held by the store.",
	}, func() float64 { return float64(s.Size()) }))
}

// Observe records one finished operation.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, Result(err)).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Result classifies err into a result label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, storage.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, storage.ErrCapacityExceeded):
		return ResultCapacity
	default:
		return ResultError
	}
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
