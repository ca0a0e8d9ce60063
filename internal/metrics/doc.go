// Package metrics defines the bridge's Prometheus instruments: poll fetch
// outcomes and latency, push message routing outcomes, and entity state
// update counts. Components accept a nil *Metrics and skip recording,
// which keeps tests free of registry setup.
package metrics
