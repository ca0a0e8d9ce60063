package sensorthings

import "strings"

// Battery classification is stable for a Datastream's lifetime: it is
// decided once at load time from the display name and determines which
// entity type wraps the stream.

// IsBatteryDatastream reports whether a Datastream represents battery level.
// A stream is battery-like iff its name, lowercased, contains "battery" or
// "power".
func IsBatteryDatastream(ds Datastream) bool {
	name := strings.ToLower(ds.Name)
	return strings.Contains(name, "battery") || strings.Contains(name, "power")
}

// HasBatteryDatastream reports whether a Thing has at least one battery-like
// Datastream.
func HasBatteryDatastream(t Thing) bool {
	for _, ds := range t.Datastreams {
		if IsBatteryDatastream(ds) {
			return true
		}
	}
	return false
}

// BatteryDatastream returns the Thing's battery-like Datastream.
//
// When a Thing carries more than one battery-like stream the first in API
// response order wins; each Thing feeds exactly one diagnostic battery
// entity.
func BatteryDatastream(t Thing) (Datastream, bool) {
	for _, ds := range t.Datastreams {
		if IsBatteryDatastream(ds) {
			return ds, true
		}
	}
	return Datastream{}, false
}
