// Package store persists the bridge's entity registry in SQLite.
//
// The registry is rebuilt from the server's Things collection at startup
// and written through on every state change, which gives entities stable
// identity and last known values across restarts.
package store
