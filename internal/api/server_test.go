package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/sensorthings-bridge/internal/entity"
	"github.com/nerrad567/sensorthings-bridge/internal/infrastructure/config"
	"github.com/nerrad567/sensorthings-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/sensorthings-bridge/internal/metrics"
	"github.com/nerrad567/sensorthings-bridge/internal/push"
	"github.com/nerrad567/sensorthings-bridge/internal/sensorthings"
	"github.com/nerrad567/sensorthings-bridge/internal/store"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

type fakeSnapshots struct {
	snap      atomic.Pointer[sensorthings.Snapshot]
	refreshes atomic.Int64
}

func (f *fakeSnapshots) Snapshot() *sensorthings.Snapshot { return f.snap.Load() }

func (f *fakeSnapshots) Refresh(context.Context) error {
	f.refreshes.Add(1)
	return nil
}

type fakeChannel struct {
	connected  atomic.Bool
	reconnects atomic.Int64
}

func (f *fakeChannel) IsConnected() bool { return f.connected.Load() }

func (f *fakeChannel) Reconnect(context.Context) error {
	f.reconnects.Add(1)
	f.connected.Store(true)
	return nil
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE entities (
			unique_id        TEXT PRIMARY KEY,
			kind             TEXT NOT NULL,
			thing_id         TEXT NOT NULL,
			datastream_id    TEXT,
			name             TEXT NOT NULL,
			unit             TEXT NOT NULL DEFAULT '',
			category         TEXT NOT NULL DEFAULT '',
			last_value       TEXT,
			last_updated_at  TEXT,
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}
	return store.New(db)
}

func testFleet() *sensorthings.Snapshot {
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
							{Result: 22.5, PhenomenonTime: "2026-03-01T12:00:00Z"},
						},
					},
				},
			},
		},
		FetchedAt: time.Now(),
	}
}

type testEnv struct {
	server  *Server
	ts      *httptest.Server
	snaps   *fakeSnapshots
	channel *fakeChannel
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	snaps := &fakeSnapshots{}
	snaps.snap.Store(testFleet())
	ch := &fakeChannel{}

	manager := entity.NewManager(snaps, ch, push.NewRegistry(), setupTestStore(t),
		30*time.Second, nil, testLogger())
	if err := manager.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	promReg := prometheus.NewRegistry()
	metrics.New(promReg)

	srv, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:       config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 60},
		Metrics:  config.MetricsConfig{Enabled: true},
		Logger:   testLogger(),
		Manager:  manager,
		Registry: promReg,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	srv.hub = NewHub(srv.wsCfg, srv.logger)
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, ts: ts, snaps: snaps, channel: ch}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

// =============================================================================
// Entity Endpoint Tests
// =============================================================================

func TestServer_ListEntities(t *testing.T) {
	env := setupTestServer(t)

	var body struct {
		Entities []entityResponse `json:"entities"`
		Count    int              `json:"count"`
	}
	status := getJSON(t, env.ts.URL+"/api/v1/entities/", &body)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	// One sensor plus the connectivity diagnostic.
	if body.Count != 2 {
		t.Fatalf("count = %d, want 2", body.Count)
	}
	if body.Entities[0].UniqueID != "sensorthings_10" {
		t.Errorf("first entity = %q, want sensorthings_10", body.Entities[0].UniqueID)
	}
	if body.Entities[0].State.Value != 22.5 {
		t.Errorf("state value = %v, want 22.5", body.Entities[0].State.Value)
	}
}

func TestServer_GetEntity(t *testing.T) {
	env := setupTestServer(t)

	var body entityResponse
	status := getJSON(t, env.ts.URL+"/api/v1/entities/sensorthings_10", &body)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body.Name != "Weather Station Temperature" {
		t.Errorf("name = %q, want combined thing and stream names", body.Name)
	}
	if body.Kind != "sensor" {
		t.Errorf("kind = %q, want sensor", body.Kind)
	}
}

func TestServer_GetEntity_NotFound(t *testing.T) {
	env := setupTestServer(t)

	status := getJSON(t, env.ts.URL+"/api/v1/entities/nope", nil)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

// =============================================================================
// Service Command Tests
// =============================================================================

func TestServer_RefreshAll(t *testing.T) {
	env := setupTestServer(t)

	status := postJSON(t, env.ts.URL+"/api/v1/services/refresh-all")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if env.snaps.refreshes.Load() == 0 {
		t.Error("refresh-all did not request a poll fetch")
	}
}

func TestServer_ReconnectPush_Idempotent(t *testing.T) {
	env := setupTestServer(t)

	for i := 0; i < 2; i++ {
		status := postJSON(t, env.ts.URL+"/api/v1/services/reconnect-push")
		if status != http.StatusOK {
			t.Fatalf("reconnect %d: status = %d, want 200", i, status)
		}
	}

	if !env.channel.IsConnected() {
		t.Error("channel disconnected after reconnect commands, want connected")
	}
	if env.channel.reconnects.Load() != 2 {
		t.Errorf("reconnects = %d, want 2 delegated calls", env.channel.reconnects.Load())
	}
}

// =============================================================================
// Health and Metrics Tests
// =============================================================================

type failingHealth struct{}

func (failingHealth) HealthCheck(context.Context) error {
	return context.DeadlineExceeded
}

type okHealth struct{}

func (okHealth) HealthCheck(context.Context) error { return nil }

func TestServer_Health(t *testing.T) {
	env := setupTestServer(t)
	env.server.health = map[string]HealthChecker{
		"database": okHealth{},
		"push":     failingHealth{},
	}

	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	status := getJSON(t, env.ts.URL+"/api/v1/health", &body)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded with a failing component", body.Status)
	}
	if body.Components["database"] != "ok" {
		t.Errorf("database = %q, want ok", body.Components["database"])
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)

	status := getJSON(t, env.ts.URL+"/metrics", nil)
	if status != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want 200", status)
	}
}
