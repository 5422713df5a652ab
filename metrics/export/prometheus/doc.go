// Package prometheus exposes engine metrics through client_golang.
//
// [NewCollector] returns a prometheus.Collector that callers register on
// their own registry; [Handler] wires one onto a private registry for a
// standalone /metrics endpoint. Counters are named fleetauth_*_total and
// the single histogram is fleetauth_validate_latency_seconds.
package prometheus
