package entity

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/sensorthings-bridge/internal/push"
	"github.com/nerrad567/sensorthings-bridge/internal/sensorthings"
)

// fakeSnapshots serves a swappable snapshot and counts refresh requests.
type fakeSnapshots struct {
	snap      atomic.Pointer[sensorthings.Snapshot]
	refreshes atomic.Int64
}

func (f *fakeSnapshots) Snapshot() *sensorthings.Snapshot { return f.snap.Load() }

func (f *fakeSnapshots) Refresh(ctx context.Context) error {
	f.refreshes.Add(1)
	return nil
}

// fakeChannel is a settable push connection state.
type fakeChannel struct {
	connected  atomic.Bool
	reconnects atomic.Int64
}

func (f *fakeChannel) IsConnected() bool { return f.connected.Load() }

func (f *fakeChannel) Reconnect(ctx context.Context) error {
	f.reconnects.Add(1)
	f.connected.Store(true)
	return nil
}

func snapshotWith(result any) *sensorthings.Snapshot {
	return &sensorthings.Snapshot{
		Things: []sensorthings.Thing{
			{
				ID:   sensorthings.ID("1"),
				Name: "Weather Station",
				Datastreams: []sensorthings.Datastream{
					{
						ID:                sensorthings.ID("10"),
						Name:              "Temperature",
						UnitOfMeasurement: sensorthings.UnitOfMeasurement{Symbol: "°C"},
						Observations: []sensorthings.Observation{
							{Result: result, PhenomenonTime: "2026-03-01T12:00:00Z"},
						},
					},
				},
			},
		},
		FetchedAt: time.Now(),
	}
}

func testThing() sensorthings.Thing {
	return snapshotWith(22.5).Things[0]
}

// =============================================================================
// Value Sourcing Tests
// =============================================================================

func TestSensor_PollValueBeforeAnyPush(t *testing.T) {
	snaps := &fakeSnapshots{}
	snaps.snap.Store(snapshotWith(22.5))

	thing := testThing()
	s := NewSensor(thing, thing.Datastreams[0], snaps, &fakeChannel{}, push.NewRegistry(), nil)

	state := s.State()
	if state.Value != 22.5 {
		t.Errorf("Value = %v, want polled 22.5", state.Value)
	}
	if state.Source != SourcePoll {
		t.Errorf("Source = %q, want poll", state.Source)
	}
	if state.Unit != "°C" {
		t.Errorf("Unit = %q, want °C", state.Unit)
	}
}

func TestSensor_PushOvertakesPollForSessionLifetime(t *testing.T) {
	snaps := &fakeSnapshots{}
	snaps.snap.Store(snapshotWith(22.5))

	thing := testThing()
	reg := push.NewRegistry()
	s := NewSensor(thing, thing.Datastreams[0], snaps, &fakeChannel{}, reg, nil)

	// Pushed value arrives.
	cb, ok := reg.Lookup(sensorthings.ID("10"))
	if !ok {
		t.Fatal("sensor did not subscribe to its datastream")
	}
	cb(23.1, time.Now())

	if got := s.State(); got.Value != 23.1 || got.Source != SourcePush {
		t.Fatalf("State() after push = %+v, want 23.1 from push", got)
	}

	// A newer poll snapshot lands with a different value. Push still wins:
	// the channels' clocks are not comparable.
	snaps.snap.Store(snapshotWith(22.8))

	if got := s.State(); got.Value != 23.1 || got.Source != SourcePush {
		t.Errorf("State() after later poll = %+v, want pushed 23.1 kept", got)
	}
}

func TestSensor_NoDataAnywhere(t *testing.T) {
	snaps := &fakeSnapshots{}

	thing := testThing()
	s := NewSensor(thing, thing.Datastreams[0], snaps, &fakeChannel{}, push.NewRegistry(), nil)

	state := s.State()
	if state.Available {
		t.Error("Available = true, want false with no data")
	}
	if state.Source != SourceNone {
		t.Errorf("Source = %q, want none", state.Source)
	}
}

func TestSensor_Identity(t *testing.T) {
	snaps := &fakeSnapshots{}
	thing := testThing()
	s := NewSensor(thing, thing.Datastreams[0], snaps, &fakeChannel{}, push.NewRegistry(), nil)

	if s.UniqueID() != "sensorthings_10" {
		t.Errorf("UniqueID() = %q, want sensorthings_10", s.UniqueID())
	}
	rec := s.Record()
	if rec.Name != "Weather Station Temperature" {
		t.Errorf("Record().Name = %q, want thing and stream names combined", rec.Name)
	}
	if rec.Unit != "°C" || rec.DatastreamID != "10" || rec.ThingID != "1" {
		t.Errorf("Record() = %+v, want stream identity fields", rec)
	}
}

// =============================================================================
// Update Policy Tests
// =============================================================================

func TestSensor_UpdateRequestsRefreshOnlyWhenPushDown(t *testing.T) {
	snaps := &fakeSnapshots{}
	snaps.snap.Store(snapshotWith(22.5))
	ch := &fakeChannel{}

	thing := testThing()
	s := NewSensor(thing, thing.Datastreams[0], snaps, ch, push.NewRegistry(), nil)

	// Push down: the tick must fall back to polling.
	s.Update(context.Background())
	if got := snaps.refreshes.Load(); got != 1 {
		t.Fatalf("refreshes with push down = %d, want 1", got)
	}

	// Push live: the sensor already has a fresher source.
	ch.connected.Store(true)
	s.Update(context.Background())
	if got := snaps.refreshes.Load(); got != 1 {
		t.Errorf("refreshes with push live = %d, want still 1", got)
	}
}

func TestSensor_OnChangeFiresOnPush(t *testing.T) {
	snaps := &fakeSnapshots{}
	thing := testThing()

	var fired atomic.Int64
	s := NewSensor(thing, thing.Datastreams[0], snaps, &fakeChannel{}, push.NewRegistry(),
		func(Entity) { fired.Add(1) })

	s.OnPush(23.1, time.Now())
	if fired.Load() != 1 {
		t.Errorf("onChange fired %d times, want 1", fired.Load())
	}
}

func TestSensor_PushStateCarriesPhenomenonTime(t *testing.T) {
	snaps := &fakeSnapshots{}
	thing := testThing()
	s := NewSensor(thing, thing.Datastreams[0], snaps, &fakeChannel{}, push.NewRegistry(), nil)

	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	s.OnPush(23.1, at)

	if got := s.State().UpdatedAt; !got.Equal(at) {
		t.Errorf("UpdatedAt = %v, want phenomenon time %v", got, at)
	}

	// Without a phenomenon time the receipt time stands in.
	before := time.Now()
	s.OnPush(23.4, time.Time{})
	if got := s.State().UpdatedAt; got.Before(before) {
		t.Errorf("UpdatedAt = %v, want receipt time at or after %v", got, before)
	}
}

func TestSensor_Detach(t *testing.T) {
	snaps := &fakeSnapshots{}
	reg := push.NewRegistry()
	thing := testThing()

	s := NewSensor(thing, thing.Datastreams[0], snaps, &fakeChannel{}, reg, nil)
	if reg.Len() != 1 {
		t.Fatalf("registry len = %d, want 1 after construction", reg.Len())
	}

	s.Detach()
	if reg.Len() != 0 {
		t.Errorf("registry len = %d, want 0 after Detach", reg.Len())
	}
}
