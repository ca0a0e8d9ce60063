package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/sensorthings-bridge/internal/sensorthings"
	"github.com/nerrad567/sensorthings-bridge/internal/store"
)

// Connectivity icons.
const (
	iconWifi    = "mdi:wifi"
	iconWifiOff = "mdi:wifi-off"
)

// ConnectivitySensor is the diagnostic connectivity entity for a Thing.
//
// It reports whether the push channel is live: on means the Thing's
// Observations arrive in real time, off means the bridge is coasting on
// the poll channel. The state is read from the channel at call time, so
// there is nothing to cache or subscribe to.
type ConnectivitySensor struct {
	uniqueID string
	name     string
	thingID  sensorthings.ID

	channel  PushChannel
	onChange func(Entity)
}

// NewConnectivitySensor creates the connectivity entity for a Thing.
func NewConnectivitySensor(
	thing sensorthings.Thing,
	channel PushChannel,
	onChange func(Entity),
) *ConnectivitySensor {
	return &ConnectivitySensor{
		uniqueID: fmt.Sprintf("sensorthings_connectivity_%s", thing.ID),
		name:     fmt.Sprintf("%s Connected", thing.Name),
		thingID:  thing.ID,
		channel:  channel,
		onChange: onChange,
	}
}

func (c *ConnectivitySensor) UniqueID() string { return c.uniqueID }

// Record describes the connectivity entity for the entity store.
func (c *ConnectivitySensor) Record() *store.Record {
	return &store.Record{
		UniqueID: c.uniqueID,
		Kind:     store.KindConnectivity,
		ThingID:  string(c.thingID),
		Name:     c.name,
		Category: CategoryDiagnostic,
	}
}

// State reports the live push channel state.
func (c *ConnectivitySensor) State() State {
	on := c.channel != nil && c.channel.IsConnected()

	icon := iconWifiOff
	if on {
		icon = iconWifi
	}

	return State{
		Value:     on,
		Icon:      icon,
		Available: true,
		Source:    SourcePush,
		UpdatedAt: time.Now(),
	}
}

// Update notifies observers so connectivity flips are published even
// though the state itself is computed on read.
func (c *ConnectivitySensor) Update(_ context.Context) {
	if c.onChange != nil {
		c.onChange(c)
	}
}

// Detach is a no-op; connectivity entities hold no subscriptions.
func (c *ConnectivitySensor) Detach() {}
