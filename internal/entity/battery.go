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

// Battery icons by charge tier.
const (
	iconBatteryFull    = "mdi:battery"
	iconBattery75      = "mdi:battery-75"
	iconBattery50      = "mdi:battery-50"
	iconBattery25      = "mdi:battery-25"
	iconBatteryAlert   = "mdi:battery-alert"
	iconBatteryUnknown = "mdi:battery-unknown"
)

// BatterySensor is the diagnostic battery entity for a Thing.
//
// It wraps the Thing's battery-like Datastream with percentage units and
// a tiered icon. One per Thing; the Thing's other sensors skip the
// battery stream so the reading appears exactly once.
//
// Value sourcing follows the same push-over-poll rule as Sensor.
type BatterySensor struct {
	uniqueID     string
	name         string
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

// NewBatterySensor creates the battery entity for a Thing and subscribes
// it to the battery Datastream's pushed Observations.
func NewBatterySensor(
	thing sensorthings.Thing,
	ds sensorthings.Datastream,
	snapshots SnapshotSource,
	channel PushChannel,
	registry *push.Registry,
	onChange func(Entity),
) *BatterySensor {
	b := &BatterySensor{
		uniqueID:     fmt.Sprintf("sensorthings_battery_level_%s", thing.ID),
		name:         fmt.Sprintf("%s Battery Level", thing.Name),
		thingID:      thing.ID,
		datastreamID: ds.ID,
		snapshots:    snapshots,
		channel:      channel,
		registry:     registry,
		onChange:     onChange,
	}

	if registry != nil {
		registry.Subscribe(ds.ID, b.OnPush)
	}
	return b
}

func (b *BatterySensor) UniqueID() string { return b.uniqueID }

// Record describes the battery entity for the entity store.
func (b *BatterySensor) Record() *store.Record {
	return &store.Record{
		UniqueID:     b.uniqueID,
		Kind:         store.KindBattery,
		ThingID:      string(b.thingID),
		DatastreamID: string(b.datastreamID),
		Name:         b.name,
		Unit:         "%",
		Category:     CategoryDiagnostic,
	}
}

// OnPush accepts a pushed battery Observation. A zero phenomenon time
// falls back to the receipt time.
func (b *BatterySensor) OnPush(result any, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}

	b.mu.Lock()
	b.pushValue = result
	b.pushSeen = true
	b.pushedAt = at
	b.mu.Unlock()

	if b.onChange != nil {
		b.onChange(b)
	}
}

// State returns the current battery level with its tier icon.
func (b *BatterySensor) State() State {
	b.mu.RLock()
	pushSeen, pushValue, pushedAt := b.pushSeen, b.pushValue, b.pushedAt
	b.mu.RUnlock()

	if pushSeen {
		return State{
			Value:     pushValue,
			Unit:      "%",
			Icon:      BatteryIcon(pushValue),
			Available: true,
			Source:    SourcePush,
			UpdatedAt: pushedAt,
		}
	}

	snap := b.snapshots.Snapshot()
	if result, ok := snap.LatestResult(b.thingID, b.datastreamID); ok {
		return State{
			Value:     result,
			Unit:      "%",
			Icon:      BatteryIcon(result),
			Available: true,
			Source:    SourcePoll,
			UpdatedAt: snap.FetchedAt,
		}
	}

	return State{Unit: "%", Icon: iconBatteryUnknown, Source: SourceNone}
}

// Update re-evaluates the battery level on the periodic tick.
func (b *BatterySensor) Update(ctx context.Context) {
	if b.channel == nil || !b.channel.IsConnected() {
		_ = b.snapshots.Refresh(ctx)
	}

	if b.onChange != nil {
		b.onChange(b)
	}
}

// Detach unsubscribes from pushed Observations.
func (b *BatterySensor) Detach() {
	if b.registry != nil {
		b.registry.Unsubscribe(b.datastreamID)
	}
}

// BatteryIcon maps a battery level to its Material Design icon.
//
// Tiers: >75 full, >50 three-quarters, >25 half, >10 quarter, otherwise
// alert. A level that is not numeric yields the unknown icon.
func BatteryIcon(level any) string {
	pct, ok := asPercent(level)
	if !ok {
		return iconBatteryUnknown
	}

	switch {
	case pct > 75:
		return iconBatteryFull
	case pct > 50:
		return iconBattery75
	case pct > 25:
		return iconBattery50
	case pct > 10:
		return iconBattery25
	default:
		return iconBatteryAlert
	}
}

// asPercent coerces the JSON shapes a battery result arrives in.
func asPercent(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
