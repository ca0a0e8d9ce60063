package stapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/nerrad567/sensorthings-bridge/internal/sensorthings"
)

// thingsExpand pulls every Thing with its Datastreams and each stream's
// single most recent Observation in one round trip.
const thingsExpand = "Datastreams($expand=Observations($top=1;$orderby=phenomenonTime desc))"

// probeQuery is the cheapest request that proves the API root is a live
// SensorThings endpoint.
const probeQuery = "/Datastreams?$top=1"

// Default tuning for the startup probe and the fetch circuit breaker.
const (
	probeMaxRetries    = 4
	probeInitialWait   = 500 * time.Millisecond
	breakerOpenTimeout = 30 * time.Second
	breakerMaxFailures = 3
)

// Client reads the Things collection from an OGC SensorThings API server.
//
// A single GET with a nested $expand returns the full fleet: every Thing,
// its Datastreams, and the latest Observation per stream. Fetches run
// through a circuit breaker so a dead server is short-circuited instead
// of stacking up timed-out requests.
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// New creates a Client for the given API root.
//
// Parameters:
//   - baseURL: versioned API root, e.g. "http://host:8080/FROST-Server/v1.1"
//   - timeout: per-request HTTP timeout
//
// Returns:
//   - *Client: ready for use; call Probe before relying on it
func New(baseURL string, timeout time.Duration) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "stapi-fetch",
		Timeout: breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
	})

	return c
}

// Probe verifies the configured base URL answers as a SensorThings server.
//
// It issues a cheap single-entity Datastreams query and requires HTTP 200.
// Transient failures are retried with exponential backoff; the context
// bounds the whole attempt.
//
// Returns:
//   - error: ErrProbeFailed (wrapped) when the server never answered 200
func (c *Client) Probe(ctx context.Context) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(newProbeBackOff(), probeMaxRetries), ctx)

	op := func() error {
		return c.probeOnce(ctx)
	}

	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	return nil
}

func newProbeBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = probeInitialWait
	return b
}

func (c *Client) probeOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+probeQuery, nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// FetchThings retrieves the full Things collection with expanded
// Datastreams and latest Observations.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - *sensorthings.Snapshot: the fleet as the server reported it
//   - error: ErrUnavailable when the breaker is open, ErrFetchFailed
//     (wrapped) on any transport, status, or decode failure
func (c *Client) FetchThings(ctx context.Context) (*sensorthings.Snapshot, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetchThings(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return nil, err
	}

	snap, ok := result.(*sensorthings.Snapshot)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected result type %T", ErrFetchFailed, result)
	}
	return snap, nil
}

func (c *Client) fetchThings(ctx context.Context) (*sensorthings.Snapshot, error) {
	q := url.Values{}
	q.Set("$expand", thingsExpand)
	reqURL := c.baseURL + "/Things?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	var body struct {
		Value []sensorthings.Thing `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrFetchFailed, err)
	}

	return &sensorthings.Snapshot{
		Things:    body.Value,
		FetchedAt: time.Now(),
	}, nil
}

// HealthCheck verifies the SensorThings server is reachable.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.probeOnce(ctx); err != nil {
		return fmt.Errorf("stapi health check: %w", err)
	}
	return nil
}
