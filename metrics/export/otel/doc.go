// Package otel binds engine metrics to an OpenTelemetry meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter. The
// validation latency histogram is published as a cumulative
// fleetauth_validate_latency_seconds_bucket gauge split by an le attribute,
// plus a _count gauge. A single callback reads
// [fleetAuth.Engine.MetricsSnapshot] on each collection cycle; the caller
// owns the MeterProvider.
package otel
