// Package api provides the HTTP REST API and WebSocket server for the
// SensorThings bridge.
//
// It exposes the entity registry, the operator service commands
// (refresh-all, reconnect-push), health and Prometheus metrics endpoints,
// and a WebSocket feed that broadcasts entity state changes as they land
// from either channel.
//
// The server follows the same lifecycle pattern as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
