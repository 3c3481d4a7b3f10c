package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jun/socialnet/internal/adapter"
	"github.com/jun/socialnet/internal/model"
)

const otherTable = "other"

// Collector holds the Prometheus metrics of one service process.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec

	Fanouts        *prometheus.CounterVec
	FanoutFriends  prometheus.Counter
	FanoutDuration prometheus.Histogram
}

// NewCollector creates a Collector with its own registry, so several
// services can run in one process.
func NewCollector(namespace, service string) *Collector {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: labels,
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"method", "route"}),
		StoreOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "store_operations_total",
			Help:        "Total number of entity store operations",
			ConstLabels: labels,
		}, []string{"operation", "table", "status"}),
		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "store_operation_duration_seconds",
			Help:        "Entity store operation duration in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"operation", "table"}),
		Fanouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "push_fanouts_total",
			Help:        "Total number of status fan-outs",
			ConstLabels: labels,
		}, []string{"status"}),
		FanoutFriends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "push_fanout_friends_total",
			Help:        "Total number of friends named in status fan-outs",
			ConstLabels: labels,
		}),
		FanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "push_fanout_duration_seconds",
			Help:        "Status fan-out duration in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.HTTPRequests,
		c.HTTPDuration,
		c.StoreOperations,
		c.StoreDuration,
		c.Fanouts,
		c.FanoutFriends,
		c.FanoutDuration,
	)
	return c
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveStoreOp implements adapter.OpObserver.
func (c *Collector) ObserveStoreOp(op, table string, err error, elapsed time.Duration) {
	table = tableLabel(table)
	c.StoreOperations.WithLabelValues(op, table, storeStatus(err)).Inc()
	c.StoreDuration.WithLabelValues(op, table).Observe(elapsed.Seconds())
}

// tableLabel keeps the well-known tables and folds every caller-chosen name
// into "other".
func tableLabel(table string) string {
	switch table {
	case model.AuthTable, model.DataTable:
		return table
	default:
		return otherTable
	}
}

// ObserveFanout implements push.Observer.
func (c *Collector) ObserveFanout(friends int, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Fanouts.WithLabelValues(status).Inc()
	c.FanoutFriends.Add(float64(friends))
	c.FanoutDuration.Observe(elapsed.Seconds())
}

// TrackGauge registers a gauge read from fn at scrape time.
func (c *Collector) TrackGauge(namespace, name, help string, fn func() float64) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func storeStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, adapter.ErrForbidden):
		return "forbidden"
	case errors.Is(err, adapter.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
