package push

import (
	"context"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/sensorthings-bridge/internal/dispatch"
	"github.com/nerrad567/sensorthings-bridge/internal/infrastructure/config"
	"github.com/nerrad567/sensorthings-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/sensorthings-bridge/internal/sensorthings"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

// fakeMessage satisfies the broker library's message interface for
// handler tests without a live broker.
type fakeMessage struct {
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return "v1.1/Observations" }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

var _ pahomqtt.Message = (*fakeMessage)(nil)

func testListener(t *testing.T, reg *Registry, d *dispatch.Dispatcher) *Listener {
	t.Helper()
	return &Listener{
		cfg:        config.MQTTConfig{Enabled: true, QoS: 0},
		topic:      ObservationsTopic("http://host:8080/v1.1"),
		registry:   reg,
		dispatcher: d,
		logger:     testLogger(),
	}
}

// =============================================================================
// Topic Derivation Tests
// =============================================================================

func TestObservationsTopic(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{
			"frost v1.1",
			"http://192.168.1.100:8080/FROST-Server/v1.1",
			"v1.1/Observations?$expand=Datastream($select=id)",
		},
		{
			"versionless root",
			"http://host:8080",
			"v1.1/Observations?$expand=Datastream($select=id)",
		},
		{
			"v1.0 root",
			"http://host:8080/v1.0",
			"v1.0/Observations?$expand=Datastream($select=id)",
		},
		{
			"trailing slash",
			"http://host:8080/v1.1/",
			"v1.1/Observations?$expand=Datastream($select=id)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ObservationsTopic(tt.baseURL); got != tt.want {
				t.Errorf("ObservationsTopic(%q) = %q, want %q", tt.baseURL, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Message Decoding Tests
// =============================================================================

func TestDecodeObservation(t *testing.T) {
	payload := []byte(`{
		"@iot.id": 100,
		"result": 23.1,
		"phenomenonTime": "2026-03-01T12:05:00Z",
		"Datastream": {"@iot.id": 10}
	}`)

	streamID, result, at, err := decodeObservation(payload)
	if err != nil {
		t.Fatalf("decodeObservation() error = %v", err)
	}
	if streamID != sensorthings.ID("10") {
		t.Errorf("streamID = %q, want 10", streamID)
	}
	if result != 23.1 {
		t.Errorf("result = %v, want 23.1", result)
	}
	want := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Errorf("phenomenon time = %v, want %v", at, want)
	}
}

func TestDecodeObservation_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{{{`},
		{"missing observation id", `{"result": 1, "Datastream": {"@iot.id": 10}}`},
		{"missing datastream", `{"@iot.id": 100, "result": 1}`},
		{"empty datastream id", `{"@iot.id": 100, "result": 1, "Datastream": {}}`},
		{"missing result", `{"@iot.id": 100, "Datastream": {"@iot.id": 10}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, _, err := decodeObservation([]byte(tt.payload)); err == nil {
				t.Errorf("decodeObservation(%s) error = nil, want non-nil", tt.payload)
			}
		})
	}
}

func TestDecodeObservation_StringResult(t *testing.T) {
	payload := []byte(`{"@iot.id": "obs-7", "result": "open", "Datastream": {"@iot.id": "door-1"}}`)

	streamID, result, at, err := decodeObservation(payload)
	if err != nil {
		t.Fatalf("decodeObservation() error = %v", err)
	}
	if streamID != sensorthings.ID("door-1") {
		t.Errorf("streamID = %q, want door-1", streamID)
	}
	if result != "open" {
		t.Errorf("result = %v, want open", result)
	}
	if !at.IsZero() {
		t.Errorf("phenomenon time = %v, want zero without phenomenonTime", at)
	}
}

// =============================================================================
// Handler Routing Tests
// =============================================================================

func TestListener_HandleMessage_Routes(t *testing.T) {
	reg := NewRegistry()
	d := dispatch.New(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	var mu sync.Mutex
	var got []any
	var stamps []time.Time
	reg.Subscribe(sensorthings.ID("10"), func(result any, at time.Time) {
		mu.Lock()
		got = append(got, result)
		stamps = append(stamps, at)
		mu.Unlock()
	})

	l := testListener(t, reg, d)

	// Malformed messages (bad JSON, no observation id) must not stop
	// later valid ones.
	l.handleMessage(nil, &fakeMessage{payload: []byte(`not json`)})
	l.handleMessage(nil, &fakeMessage{payload: []byte(
		`{"result": 99.9, "Datastream": {"@iot.id": 10}}`)})
	l.handleMessage(nil, &fakeMessage{payload: []byte(
		`{"@iot.id": 100, "result": 23.1, "phenomenonTime": "2026-03-01T12:05:00Z", "Datastream": {"@iot.id": 10}}`)})
	l.handleMessage(nil, &fakeMessage{payload: []byte(
		`{"@iot.id": 101, "result": 23.4, "phenomenonTime": "2026-03-01T12:06:00Z", "Datastream": {"@iot.id": 10}}`)})

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("delivered = %d messages, want 2", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0] != 23.1 || got[1] != 23.4 {
		t.Errorf("delivered = %v, want [23.1 23.4] in order", got)
	}
	want := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	if !stamps[0].Equal(want) {
		t.Errorf("phenomenon time delivered = %v, want %v", stamps[0], want)
	}
}

func TestListener_HandleMessage_Unroutable(t *testing.T) {
	reg := NewRegistry()
	d := dispatch.New(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	l := testListener(t, reg, d)

	// No subscriber for stream 99: dropped without panic.
	l.handleMessage(nil, &fakeMessage{payload: []byte(
		`{"@iot.id": 100, "result": 1, "Datastream": {"@iot.id": 99}}`)})
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestListener_StartDisabled(t *testing.T) {
	l := &Listener{
		cfg:    config.MQTTConfig{Enabled: false},
		logger: testLogger(),
	}

	if err := l.Start(context.Background()); err != ErrDisabled {
		t.Errorf("Start() with disabled channel: error = %v, want ErrDisabled", err)
	}
}

func TestListener_StopWithoutStart(t *testing.T) {
	l := testListener(t, NewRegistry(), dispatch.New(testLogger()))

	// Idempotent and safe before any connection exists.
	l.Stop()
	l.Stop()

	if l.IsConnected() {
		t.Error("IsConnected() = true, want false for never-started listener")
	}
}
