package entity

import (
	"testing"

	"github.com/nerrad567/sensorthings-bridge/internal/sensorthings"
)

func TestConnectivitySensor_ReflectsChannelState(t *testing.T) {
	ch := &fakeChannel{}
	thing := sensorthings.Thing{ID: sensorthings.ID("1"), Name: "Weather Station"}

	c := NewConnectivitySensor(thing, ch, nil)

	if c.UniqueID() != "sensorthings_connectivity_1" {
		t.Errorf("UniqueID() = %q, want sensorthings_connectivity_1", c.UniqueID())
	}

	state := c.State()
	if state.Value != false {
		t.Errorf("Value = %v, want false while disconnected", state.Value)
	}
	if state.Icon != "mdi:wifi-off" {
		t.Errorf("Icon = %q, want mdi:wifi-off", state.Icon)
	}

	ch.connected.Store(true)

	state = c.State()
	if state.Value != true {
		t.Errorf("Value = %v, want true while connected", state.Value)
	}
	if state.Icon != "mdi:wifi" {
		t.Errorf("Icon = %q, want mdi:wifi", state.Icon)
	}
}

func TestConnectivitySensor_NilChannel(t *testing.T) {
	thing := sensorthings.Thing{ID: sensorthings.ID("1"), Name: "Weather Station"}
	c := NewConnectivitySensor(thing, nil, nil)

	if got := c.State(); got.Value != false {
		t.Errorf("Value = %v, want false with no push channel", got.Value)
	}

	rec := c.Record()
	if rec.Category != CategoryDiagnostic {
		t.Errorf("Record().Category = %q, want diagnostic", rec.Category)
	}
	if rec.Name != "Weather Station Connected" {
		t.Errorf("Record().Name = %q, want thing name with Connected suffix", rec.Name)
	}
}
