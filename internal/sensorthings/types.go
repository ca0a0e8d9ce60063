package sensorthings

import (
	"bytes"
	"encoding/json"
	"time"
)

// ID is an opaque SensorThings entity identifier (@iot.id).
//
// FROST and most STA servers emit numeric IDs, but the protocol permits
// strings. IDs are decoded from either form and handled as opaque strings
// everywhere in the bridge; "1" and 1 on the wire are the same ID.
type ID string

// UnmarshalJSON accepts both string and number forms of @iot.id.
func (id *ID) UnmarshalJSON(data []byte) error {
	b := bytes.TrimSpace(data)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Thing is a physical or logical device exposed by the SensorThings API.
//
// Things are immutable per poll cycle: each successful poll replaces the
// whole tree, never merges field-by-field.
type Thing struct {
	ID          ID             `json:"@iot.id"`
	Name        string         `json:"name"`
	Properties  map[string]any `json:"properties"`
	Datastreams []Datastream   `json:"Datastreams"`
}

// Property returns the named descriptive property as a string, or "" when
// absent or not a string. Servers commonly populate "model", "manufacturer"
// and "firmware_version".
func (t Thing) Property(key string) string {
	v, ok := t.Properties[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// UnitOfMeasurement describes a Datastream's unit.
type UnitOfMeasurement struct {
	Name       string `json:"name"`
	Symbol     string `json:"symbol"`
	Definition string `json:"definition"`
}

// Datastream is a named observable property of a Thing.
//
// The Observations slice carries at most one element: the poll query expands
// only the most recent Observation per stream.
type Datastream struct {
	ID                ID                `json:"@iot.id"`
	Name              string            `json:"name"`
	UnitOfMeasurement UnitOfMeasurement `json:"unitOfMeasurement"`
	Observations      []Observation     `json:"Observations"`
}

// LatestObservation returns the most recent Observation, or nil when the
// stream has never produced one.
func (d Datastream) LatestObservation() *Observation {
	if len(d.Observations) == 0 {
		return nil
	}
	return &d.Observations[0]
}

// Observation is one timestamped scalar reading of a Datastream.
type Observation struct {
	ID             ID     `json:"@iot.id"`
	Result         any    `json:"result"`
	PhenomenonTime string `json:"phenomenonTime"`
}

// Time parses the phenomenon time. Returns false when absent or malformed.
func (o Observation) Time() (time.Time, bool) {
	if o.PhenomenonTime == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, o.PhenomenonTime)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Snapshot is the full Thing→Datastream→Observation tree as last
// successfully retrieved by polling.
//
// Snapshots are replaced atomically by the poll coordinator and never
// mutated in place, so concurrent readers always see a complete tree.
type Snapshot struct {
	Things    []Thing
	FetchedAt time.Time
}

// Thing returns the Thing with the given ID, or nil when absent.
func (s *Snapshot) Thing(id ID) *Thing {
	if s == nil {
		return nil
	}
	for i := range s.Things {
		if s.Things[i].ID == id {
			return &s.Things[i]
		}
	}
	return nil
}

// LatestResult scans for the matching Thing→Datastream and returns the
// result of its most recent Observation.
//
// The scan is O(things × datastreams) per call, which is fine for the small
// fleets this bridge targets.
//
// Returns:
//   - any: The observation result, or nil
//   - bool: false when the stream is absent or has no observation
func (s *Snapshot) LatestResult(thingID, datastreamID ID) (any, bool) {
	t := s.Thing(thingID)
	if t == nil {
		return nil, false
	}
	for i := range t.Datastreams {
		if t.Datastreams[i].ID != datastreamID {
			continue
		}
		obs := t.Datastreams[i].LatestObservation()
		if obs == nil || obs.Result == nil {
			return nil, false
		}
		return obs.Result, true
	}
	return nil, false
}
