package stapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nerrad567/sensorthings-bridge/internal/sensorthings"
)

const fleetJSON = `{
	"value": [
		{
			"@iot.id": 1,
			"name": "Weather Station",
			"Datastreams": [
				{
					"@iot.id": 10,
					"name": "Temperature",
					"unitOfMeasurement": {"symbol": "°C"},
					"Observations": [
						{"@iot.id": 100, "result": 22.5, "phenomenonTime": "2026-03-01T12:00:00Z"}
					]
				}
			]
		}
	]
}`

// =============================================================================
// Probe Tests
// =============================================================================

func TestClient_Probe(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	if gotPath != "/Datastreams?$top=1" {
		t.Errorf("probe request = %q, want /Datastreams?$top=1", gotPath)
	}
}

func TestClient_Probe_RetriesTransientFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v, want retry to succeed", err)
	}
	if calls != 3 {
		t.Errorf("probe calls = %d, want 3", calls)
	}
}

func TestClient_probeOnce_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	if err := c.probeOnce(context.Background()); err == nil {
		t.Error("probeOnce() error = nil, want non-nil for 404")
	}
}

func TestClient_Probe_Unreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := c.Probe(ctx)
	if !errors.Is(err, ErrProbeFailed) {
		t.Errorf("Probe() error = %v, want ErrProbeFailed", err)
	}
}

// =============================================================================
// FetchThings Tests
// =============================================================================

func TestClient_FetchThings(t *testing.T) {
	var gotExpand string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Things" {
			t.Errorf("path = %q, want /Things", r.URL.Path)
		}
		gotExpand = r.URL.Query().Get("$expand")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fleetJSON))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	snap, err := c.FetchThings(context.Background())
	if err != nil {
		t.Fatalf("FetchThings() error = %v", err)
	}

	if gotExpand != thingsExpand {
		t.Errorf("$expand = %q, want %q", gotExpand, thingsExpand)
	}
	if len(snap.Things) != 1 {
		t.Fatalf("len(Things) = %d, want 1", len(snap.Things))
	}
	if snap.FetchedAt.IsZero() {
		t.Error("FetchedAt is zero, want populated")
	}

	got, ok := snap.LatestResult(sensorthings.ID("1"), sensorthings.ID("10"))
	if !ok {
		t.Fatal("LatestResult() ok = false, want true")
	}
	if got != 22.5 {
		t.Errorf("LatestResult() = %v, want 22.5", got)
	}
}

func TestClient_FetchThings_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.FetchThings(context.Background())
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("FetchThings() error = %v, want ErrFetchFailed", err)
	}
}

func TestClient_FetchThings_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value": [`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.FetchThings(context.Background())
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("FetchThings() error = %v, want ErrFetchFailed", err)
	}
}

func TestClient_FetchThings_BreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)

	for i := 0; i < breakerMaxFailures; i++ {
		if _, err := c.FetchThings(context.Background()); err == nil {
			t.Fatalf("fetch %d: error = nil, want failure", i)
		}
	}

	_, err := c.FetchThings(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("FetchThings() after %d failures: error = %v, want ErrUnavailable",
			breakerMaxFailures, err)
	}
}
