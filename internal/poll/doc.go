// Package poll implements the bridge's poll channel: periodic full-fleet
// fetches from the SensorThings server, published as immutable snapshots.
//
// The Coordinator is the single writer of the current snapshot. Entities
// read whichever snapshot is published at the moment they update, and an
// entity may request an early refresh when it has no fresher source. Such
// requests coalesce so a burst of them costs at most one extra fetch.
package poll
