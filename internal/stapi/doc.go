// Package stapi implements the HTTP client for an OGC SensorThings API
// server (the poll channel's network layer).
//
// The client exposes three operations: Probe validates the configured base
// URL at startup, FetchThings pulls the complete Things collection with
// expanded Datastreams and latest Observations, and HealthCheck supports
// the bridge's health endpoint.
//
// FetchThings runs behind a circuit breaker: after repeated consecutive
// failures the breaker opens and callers get ErrUnavailable immediately
// instead of waiting out HTTP timeouts against a dead server. The poll
// coordinator treats both outcomes the same way, keeping its previous
// snapshot.
package stapi
