package entity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/sensorthings-bridge/internal/push"
	"github.com/nerrad567/sensorthings-bridge/internal/sensorthings"
	"github.com/nerrad567/sensorthings-bridge/internal/store"
)

// Sensor exposes one Datastream's latest Observation as an entity.
//
// Two sources feed it: pushed Observations from the broker and the poll
// coordinator's snapshots. Once any pushed value has arrived the push
// source wins for the rest of the session; polled values are ignored even
// when the poll snapshot is newer. The channels carry different clocks
// and comparing their timestamps proved unreliable, so freshness is
// decided by source, not by time.
type Sensor struct {
	uniqueID     string
	name         string
	unit         string
	thingID      sensorthings.ID
	datastreamID sensorthings.ID

	snapshots SnapshotSource
	channel   PushChannel
	registry  *push.Registry
	onChange  func(Entity)

	mu        sync.RWMutex
	pushValue any
	pushSeen  bool
	pushedAt  time.Time
}

// NewSensor creates a Sensor for one Datastream and subscribes it to
// pushed Observations.
//
// Parameters:
//   - thing: the owning Thing (names the entity)
//   - ds: the Datastream this sensor exposes
//   - onChange: invoked after every state change, may be nil
func NewSensor(
	thing sensorthings.Thing,
	ds sensorthings.Datastream,
	snapshots SnapshotSource,
	channel PushChannel,
	registry *push.Registry,
	onChange func(Entity),
) *Sensor {
	s := &Sensor{
		uniqueID:     fmt.Sprintf("sensorthings_%s", ds.ID),
		name:         fmt.Sprintf("%s %s", thing.Name, ds.Name),
		unit:         ds.UnitOfMeasurement.Symbol,
		thingID:      thing.ID,
		datastreamID: ds.ID,
		snapshots:    snapshots,
		channel:      channel,
		registry:     registry,
		onChange:     onChange,
	}

	if registry != nil {
		registry.Subscribe(ds.ID, s.OnPush)
	}
	return s
}

func (s *Sensor) UniqueID() string { return s.uniqueID }

// Record describes the sensor for the entity store.
func (s *Sensor) Record() *store.Record {
	return &store.Record{
		UniqueID:     s.uniqueID,
		Kind:         store.KindSensor,
		ThingID:      string(s.thingID),
		DatastreamID: string(s.datastreamID),
		Name:         s.name,
		Unit:         s.unit,
	}
}

// OnPush accepts a pushed Observation result stamped with its phenomenon
// time. From this point on the sensor reports pushed values only. A zero
// phenomenon time falls back to the receipt time.
func (s *Sensor) OnPush(result any, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}

	s.mu.Lock()
	s.pushValue = result
	s.pushSeen = true
	s.pushedAt = at
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(s)
	}
}

// State returns the current value, preferring push over poll.
func (s *Sensor) State() State {
	s.mu.RLock()
	pushSeen, pushValue, pushedAt := s.pushSeen, s.pushValue, s.pushedAt
	s.mu.RUnlock()

	if pushSeen {
		return State{
			Value:     pushValue,
			Unit:      s.unit,
			Available: true,
			Source:    SourcePush,
			UpdatedAt: pushedAt,
		}
	}

	snap := s.snapshots.Snapshot()
	if result, ok := snap.LatestResult(s.thingID, s.datastreamID); ok {
		return State{
			Value:     result,
			Unit:      s.unit,
			Available: true,
			Source:    SourcePoll,
			UpdatedAt: snap.FetchedAt,
		}
	}

	return State{Unit: s.unit, Source: SourceNone}
}

// Update re-evaluates the sensor on the periodic tick. A poll refresh is
// only requested while the push channel is down; with push live the
// sensor already has a fresher source and the network call would be
// wasted.
func (s *Sensor) Update(ctx context.Context) {
	if s.channel == nil || !s.channel.IsConnected() {
		// Coalesced with concurrent requests from sibling sensors.
		_ = s.snapshots.Refresh(ctx)
	}

	if s.onChange != nil {
		s.onChange(s)
	}
}

// Detach unsubscribes from pushed Observations.
func (s *Sensor) Detach() {
	if s.registry != nil {
		s.registry.Unsubscribe(s.datastreamID)
	}
}
