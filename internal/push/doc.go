// Package push implements the bridge's push channel: a subscription to
// the SensorThings server's built-in MQTT broker that delivers every new
// Observation the moment the server accepts it.
//
// The Listener owns the broker connection. Its initial connect is a
// bounded attempt; when the broker does not answer, the bridge degrades
// to poll-only operation instead of failing startup. Incoming messages
// are decoded, routed through the Registry by Datastream ID, and executed
// on the dispatch goroutine so entity state stays single-writer.
//
// A Datastream with no registered callback is counted and skipped, and a
// payload that does not decode as an Observation is dropped with a log
// line. The channel never propagates per-message failures.
package push
