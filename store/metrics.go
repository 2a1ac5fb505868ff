package store

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-collection operation counts and latencies.
type Metrics struct {
	ops     *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewMetrics creates the store metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "advoc",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Collection operations by collection, operation and result.",
		}, []string{"collection", "op", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "advoc",
			Subsystem: "store",
			Name:      "operation_seconds",
			Help:      "Collection operation latency, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection", "op"}),
	}
	reg.MustRegister(m.ops, m.latency)
	return m
}

// Instrument wraps c so every call is counted and timed.
func (m *Metrics) Instrument(c Collection) Collection {
	return &instrumented{Collection: c, m: m}
}

// since records one operation that began at start. errp is read when the
// deferred call runs, after the named result has been set.
func (m *Metrics) since(collection, op string, start time.Time, errp *error) {
	m.latency.WithLabelValues(collection, op).Observe(time.Since(start).Seconds())
	m.ops.WithLabelValues(collection, op, resultLabel(*errp)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStorageIO):
		return "io_error"
	default:
		return "rejected"
	}
}

type instrumented struct {
	Collection
	m *Metrics
}

func (c *instrumented) LoadAll(ctx context.Context) (recs []Record, err error) {
	defer c.m.since(c.Name(), "load_all", time.Now(), &err)
	return c.Collection.LoadAll(ctx)
}

func (c *instrumented) Append(ctx context.Context, rec Record) (err error) {
	defer c.m.since(c.Name(), "append", time.Now(), &err)
	return c.Collection.Append(ctx, rec)
}

func (c *instrumented) AppendWith(ctx context.Context, build func() (Record, error)) (err error) {
	defer c.m.since(c.Name(), "append_with", time.Now(), &err)
	return c.Collection.AppendWith(ctx, build)
}

func (c *instrumented) AppendIfAbsent(ctx context.Context, keyField string, rec Record) (ok bool, err error) {
	defer c.m.since(c.Name(), "append_if_absent", time.Now(), &err)
	return c.Collection.AppendIfAbsent(ctx, keyField, rec)
}

func (c *instrumented) FindByKey(ctx context.Context, keyField, keyValue string) (rec Record, err error) {
	defer c.m.since(c.Name(), "find_by_key", time.Now(), &err)
	return c.Collection.FindByKey(ctx, keyField, keyValue)
}

func (c *instrumented) MutateByKey(ctx context.Context, keyField, keyValue string, fn MutateFunc) (rec Record, err error) {
	defer c.m.since(c.Name(), "mutate_by_key", time.Now(), &err)
	return c.Collection.MutateByKey(ctx, keyField, keyValue, fn)
}
