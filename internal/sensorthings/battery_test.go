package sensorthings

import "testing"

// =============================================================================
// Battery Classification Tests
// =============================================================================

func TestIsBatteryDatastream(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   bool
	}{
		{"plain battery", "Battery", true},
		{"battery voltage", "Battery Voltage", true},
		{"lowercase battery", "battery level", true},
		{"power level", "Power Level", true},
		{"embedded power", "SolarPower", true},
		{"temperature", "Temperature", false},
		{"humidity", "Relative Humidity", false},
		{"empty name", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := Datastream{Name: tt.stream}
			if got := IsBatteryDatastream(ds); got != tt.want {
				t.Errorf("IsBatteryDatastream(%q) = %v, want %v", tt.stream, got, tt.want)
			}
		})
	}
}

func TestBatteryDatastream_FirstMatchWins(t *testing.T) {
	thing := Thing{
		ID: ID("1"),
		Datastreams: []Datastream{
			{ID: ID("10"), Name: "Temperature"},
			{ID: ID("11"), Name: "Battery Voltage"},
			{ID: ID("12"), Name: "Battery Level"},
		},
	}

	ds, ok := BatteryDatastream(thing)
	if !ok {
		t.Fatal("BatteryDatastream() ok = false, want true")
	}
	if ds.ID != ID("11") {
		t.Errorf("BatteryDatastream().ID = %q, want 11 (first match)", ds.ID)
	}
	if !HasBatteryDatastream(thing) {
		t.Error("HasBatteryDatastream() = false, want true")
	}
}

func TestBatteryDatastream_None(t *testing.T) {
	thing := Thing{
		ID: ID("1"),
		Datastreams: []Datastream{
			{ID: ID("10"), Name: "Temperature"},
		},
	}

	if _, ok := BatteryDatastream(thing); ok {
		t.Error("BatteryDatastream() ok = true, want false")
	}
	if HasBatteryDatastream(thing) {
		t.Error("HasBatteryDatastream() = true, want false")
	}
}
