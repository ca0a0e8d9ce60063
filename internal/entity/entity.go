package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/sensorthings-bridge/internal/sensorthings"
	"github.com/nerrad567/sensorthings-bridge/internal/store"
)

// Entity categories, mirrored into the persisted record and API output.
const (
	CategoryDiagnostic = "diagnostic"
)

// State is an entity's externally visible value at one moment.
type State struct {
	Value     any       `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Icon      string    `json:"icon,omitempty"`
	Available bool      `json:"available"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Value sources reported in State.Source.
const (
	SourcePush = "push"
	SourcePoll = "poll"
	SourceNone = "none"
)

// Entity is one bridge entity: a datastream sensor, a battery diagnostic,
// or a connectivity diagnostic.
type Entity interface {
	// UniqueID is stable across restarts and derived from server IDs.
	UniqueID() string

	// Record describes the entity for persistence.
	Record() *store.Record

	// State returns the current value. Safe to call from any goroutine.
	State() State

	// Update re-evaluates the entity on the periodic tick. It may request
	// a poll refresh when no fresher source exists.
	Update(ctx context.Context)

	// Detach releases push subscriptions. The entity stops receiving
	// values but remains readable.
	Detach()
}

// SnapshotSource provides polled fleet snapshots and on-demand refreshes.
// *poll.Coordinator satisfies it.
type SnapshotSource interface {
	Snapshot() *sensorthings.Snapshot
	Refresh(ctx context.Context) error
}

// PushChannel reports the live state of the push connection.
// *push.Listener satisfies it.
type PushChannel interface {
	IsConnected() bool
}

// formatValue renders a result value for persistence. JSON keeps scalar
// fidelity; anything unmarshalable falls back to fmt.
func formatValue(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
