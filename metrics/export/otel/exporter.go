package otel

import (
	"context"
	"errors"
	"fmt"

	fleetAuth "github.com/MrEthical07/fleetAuth"
	"github.com/MrEthical07/fleetAuth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Construction errors.
var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() fleetAuth.MetricsSnapshot
	AuditDropped() uint64
}

// latencyGauges holds the two instruments of one engine histogram. Buckets
// are one gauge split by the le attribute.
type latencyGauges struct {
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter reads an engine snapshot on every collection cycle.
type Exporter struct {
	source       metricsSource
	registration metric.Registration

	counters     map[fleetAuth.MetricID]metric.Int64ObservableCounter
	histograms   map[fleetAuth.MetricID]latencyGauges
	leSets       [8]attribute.Set
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers instruments on meter that read engine snapshots.
func NewExporter(meter metric.Meter, engine *fleetAuth.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return newExporter(meter, engine)
}

func newExporter(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:     source,
		counters:   make(map[fleetAuth.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
		histograms: make(map[fleetAuth.MetricID]latencyGauges, len(internaldefs.HistogramDefs)),
	}
	for i := range e.leSets {
		e.leSets[i] = attribute.NewSet(attribute.String("le", internaldefs.BucketLabel(i)))
	}

	var observables []metric.Observable
	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = c
		observables = append(observables, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per le bound."),
			metric.WithUnit("s"))
		if err != nil {
			return nil, fmt.Errorf("histogram %s buckets: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return nil, fmt.Errorf("histogram %s count: %w", def.Name, err)
		}
		e.histograms[def.ID] = latencyGauges{buckets: buckets, count: count}
		observables = append(observables, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter("fleetauth_audit_dropped_total",
		metric.WithDescription("Audit events dropped because the dispatch buffer was full."))
	if err != nil {
		return nil, fmt.Errorf("counter fleetauth_audit_dropped_total: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for id, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[id]))
		for i, n := range cumulative {
			o.ObserveInt64(h.buckets, int64(n), metric.WithAttributeSet(e.leSets[i]))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
