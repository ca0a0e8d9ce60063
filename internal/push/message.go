package push

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/sensorthings-bridge/internal/sensorthings"
)

// observationMessage is the wire shape of a pushed Observation. The
// subscription topic expands the owning Datastream so the message carries
// its own routing key.
type observationMessage struct {
	ID             sensorthings.ID `json:"@iot.id"`
	Result         json.RawMessage `json:"result"`
	PhenomenonTime string          `json:"phenomenonTime"`
	Datastream     *struct {
		ID sensorthings.ID `json:"@iot.id"`
	} `json:"Datastream"`
}

// decodeObservation extracts the Datastream ID, result value, and
// phenomenon time from a pushed Observation payload. A payload without an
// observation id, a Datastream id, or a result key is not a routable
// Observation and is rejected.
//
// Returns:
//   - sensorthings.ID: the owning Datastream
//   - any: the decoded result value (may be any JSON scalar or structure)
//   - time.Time: the phenomenon time; zero when absent or unparseable
//   - error: when the payload is not a routable Observation
func decodeObservation(payload []byte) (sensorthings.ID, any, time.Time, error) {
	var msg observationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", nil, time.Time{}, fmt.Errorf("decode observation: %w", err)
	}

	if msg.ID == "" {
		return "", nil, time.Time{}, fmt.Errorf("decode observation: missing observation id")
	}
	if msg.Datastream == nil || msg.Datastream.ID == "" {
		return "", nil, time.Time{}, fmt.Errorf("decode observation: missing Datastream id")
	}
	if msg.Result == nil {
		return "", nil, time.Time{}, fmt.Errorf("decode observation: missing result")
	}

	var result any
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		return "", nil, time.Time{}, fmt.Errorf("decode observation: result: %w", err)
	}

	at, _ := sensorthings.Observation{PhenomenonTime: msg.PhenomenonTime}.Time()
	return msg.Datastream.ID, result, at, nil
}
