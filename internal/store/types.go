package store

import "time"

// Kind classifies an entity record.
type Kind string

const (
	KindSensor       Kind = "sensor"
	KindBattery      Kind = "battery"
	KindConnectivity Kind = "connectivity"
)

// Record is one bridge entity as persisted in the local store. Records
// survive restarts so entity identity (unique_id) is stable across runs
// and the last known value is available before the first fetch lands.
type Record struct {
	UniqueID     string     `json:"unique_id"`
	Kind         Kind       `json:"kind"`
	ThingID      string     `json:"thing_id"`
	DatastreamID string     `json:"datastream_id,omitempty"`
	Name         string     `json:"name"`
	Unit         string     `json:"unit,omitempty"`
	Category     string     `json:"category,omitempty"`
	LastValue    string     `json:"last_value,omitempty"`
	LastUpdated  *time.Time `json:"last_updated_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
