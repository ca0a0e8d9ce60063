package entity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/sensorthings-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/sensorthings-bridge/internal/metrics"
	"github.com/nerrad567/sensorthings-bridge/internal/push"
	"github.com/nerrad567/sensorthings-bridge/internal/sensorthings"
	"github.com/nerrad567/sensorthings-bridge/internal/store"
)

// ErrNoSnapshot indicates a fleet rebuild was attempted before the first
// successful poll fetch.
var ErrNoSnapshot = errors.New("entity: no snapshot to build from")

// PushControl is the manager's view of the push channel: connection state
// for value sourcing plus the operator reconnect command.
// *push.Listener satisfies it.
type PushControl interface {
	PushChannel
	Reconnect(ctx context.Context) error
}

// Broadcaster publishes entity state changes to API subscribers.
// The websocket hub satisfies it.
type Broadcaster interface {
	BroadcastEntityState(uniqueID string, state State)
}

// Manager owns the bridge's entity set.
//
// It builds entities from a fleet snapshot (skipping battery streams for
// generic sensors, adding one battery and one connectivity diagnostic per
// Thing), persists them, drives the periodic update tick, and implements
// the operator commands.
//
// Thread Safety: All methods are safe for concurrent use.
type Manager struct {
	snapshots SnapshotSource
	channel   PushControl
	registry  *push.Registry
	store     *store.Store
	metrics   *metrics.Metrics
	logger    *logging.Logger

	updateInterval time.Duration

	mu       sync.RWMutex
	entities map[string]Entity
	order    []string

	broadcasterMu sync.RWMutex
	broadcaster   Broadcaster
}

// NewManager creates a Manager. Rebuild must run before entities exist.
func NewManager(
	snapshots SnapshotSource,
	channel PushControl,
	registry *push.Registry,
	st *store.Store,
	updateInterval time.Duration,
	m *metrics.Metrics,
	logger *logging.Logger,
) *Manager {
	return &Manager{
		snapshots:      snapshots,
		channel:        channel,
		registry:       registry,
		store:          st,
		metrics:        m,
		logger:         logger.With("component", "entity"),
		updateInterval: updateInterval,
		entities:       make(map[string]Entity),
	}
}

// SetBroadcaster wires the API's websocket hub in after construction;
// the hub needs the manager first.
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.broadcasterMu.Lock()
	m.broadcaster = b
	m.broadcasterMu.Unlock()
}

// Rebuild constructs the entity set from the current snapshot.
//
// Per Thing: one Sensor per non-battery Datastream, one BatterySensor
// when a battery-like Datastream exists, and one ConnectivitySensor.
// Existing entities are detached first, then the store is synced so
// retired Things disappear.
//
// Returns:
//   - error: ErrNoSnapshot before the first successful fetch
func (m *Manager) Rebuild(ctx context.Context) error {
	snap := m.snapshots.Snapshot()
	if snap == nil {
		return ErrNoSnapshot
	}

	built := make(map[string]Entity)
	var order []string
	add := func(e Entity) {
		built[e.UniqueID()] = e
		order = append(order, e.UniqueID())
	}

	for _, thing := range snap.Things {
		for _, ds := range thing.Datastreams {
			// Battery streams surface as diagnostics, not plain sensors.
			if sensorthings.IsBatteryDatastream(ds) {
				continue
			}
			add(NewSensor(thing, ds, m.snapshots, m.channel, m.registry, m.notify))
		}

		if batteryDS, ok := sensorthings.BatteryDatastream(thing); ok {
			add(NewBatterySensor(thing, batteryDS, m.snapshots, m.channel, m.registry, m.notify))
		}

		add(NewConnectivitySensor(thing, m.channel, m.notify))
	}

	m.mu.Lock()
	old := m.entities
	m.entities = built
	m.order = order
	m.mu.Unlock()

	for _, e := range old {
		if _, kept := built[e.UniqueID()]; !kept {
			e.Detach()
		}
	}

	if err := m.persist(ctx, built, order); err != nil {
		return err
	}

	m.logger.Info("entity set rebuilt",
		"things", len(snap.Things), "entities", len(built))
	return nil
}

// persist upserts every entity record and removes rows for entities that
// no longer exist.
func (m *Manager) persist(ctx context.Context, built map[string]Entity, order []string) error {
	for _, id := range order {
		if err := m.store.Upsert(ctx, built[id].Record()); err != nil {
			return err
		}
	}

	deleted, err := m.store.DeleteMissing(ctx, order)
	if err != nil {
		return err
	}
	if deleted > 0 {
		m.logger.Info("removed stale entity records", "count", deleted)
	}
	return nil
}

// notify is the shared onChange hook: write the value through to the
// store and broadcast it.
func (m *Manager) notify(e Entity) {
	state := e.State()
	m.metrics.IncEntityUpdates()

	if state.Available {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := m.store.UpdateValue(ctx, e.UniqueID(), formatValue(state.Value), state.UpdatedAt)
		cancel()
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("persisting entity value failed",
				"unique_id", e.UniqueID(), "error", err)
		}
	}

	m.broadcasterMu.RLock()
	b := m.broadcaster
	m.broadcasterMu.RUnlock()
	if b != nil {
		b.BroadcastEntityState(e.UniqueID(), state)
	}
}

// Entities returns the current entity set in build order.
func (m *Manager) Entities() []Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entity, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entities[id])
	}
	return out
}

// Get returns one entity by unique ID.
func (m *Manager) Get(uniqueID string) (Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[uniqueID]
	return e, ok
}

// Run drives the periodic update tick until the context is cancelled.
// Each tick asks every entity to re-evaluate; entities without a live
// push source request a (coalesced) poll refresh.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.updateAll(ctx)
		}
	}
}

func (m *Manager) updateAll(ctx context.Context) {
	for _, e := range m.Entities() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		e.Update(ctx)
	}
}

// RefreshAll is the operator refresh command: one forced poll fetch, then
// every entity re-evaluates. Repeating it is harmless.
func (m *Manager) RefreshAll(ctx context.Context) error {
	if err := m.snapshots.Refresh(ctx); err != nil {
		return err
	}
	m.updateAll(ctx)
	return nil
}

// ReconnectPush is the operator reconnect command. The listener tears
// down any existing connection first, so repeated calls settle on one
// live connection.
func (m *Manager) ReconnectPush(ctx context.Context) error {
	return m.channel.Reconnect(ctx)
}

// Close detaches every entity.
func (m *Manager) Close() error {
	m.mu.Lock()
	entities := m.entities
	m.entities = make(map[string]Entity)
	m.order = nil
	m.mu.Unlock()

	for _, e := range entities {
		e.Detach()
	}
	return nil
}
