package poll

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/sensorthings-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/sensorthings-bridge/internal/metrics"
	"github.com/nerrad567/sensorthings-bridge/internal/sensorthings"
)

// Fetcher retrieves the full Things collection from the server.
// *stapi.Client satisfies it.
type Fetcher interface {
	FetchThings(ctx context.Context) (*sensorthings.Snapshot, error)
}

// refreshCall is one logical fetch that any number of waiters share.
type refreshCall struct {
	done chan struct{}
	err  error
}

// Coordinator owns the poll channel: it fetches fleet snapshots on a
// fixed interval and on demand, and publishes the latest one.
//
// Snapshots are immutable once published; readers get a pointer and may
// hold it as long as they like while newer fetches swap in replacements.
// A failed fetch keeps the previous snapshot.
//
// On-demand refreshes coalesce. A request arriving while a fetch is in
// flight does not join that fetch (its data may already be stale); it
// waits on a single follow-up fetch shared by every such request. Any
// number of concurrent requests therefore cost at most one additional
// network call.
//
// Thread Safety: All methods are safe for concurrent use.
type Coordinator struct {
	fetcher  Fetcher
	interval time.Duration
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *logging.Logger

	snapMu sync.RWMutex
	snap   *sensorthings.Snapshot

	callMu   sync.Mutex
	inflight *refreshCall
	pending  *refreshCall

	wg sync.WaitGroup
}

// NewCoordinator creates a Coordinator.
//
// Parameters:
//   - fetcher: the SensorThings API client
//   - interval: periodic fetch interval (already clamped by config)
//   - timeout: per-fetch deadline
func NewCoordinator(
	fetcher Fetcher,
	interval, timeout time.Duration,
	m *metrics.Metrics,
	logger *logging.Logger,
) *Coordinator {
	return &Coordinator{
		fetcher:  fetcher,
		interval: interval,
		timeout:  timeout,
		metrics:  m,
		logger:   logger.With("component", "poll"),
	}
}

// Snapshot returns the most recent successfully fetched snapshot, or nil
// before the first successful fetch.
func (c *Coordinator) Snapshot() *sensorthings.Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// Refresh performs one fetch and waits for its result. The first call at
// startup runs before any entity exists, so entities are born with data.
//
// Concurrent callers coalesce: a call that arrives while a fetch is in
// flight waits on one shared follow-up fetch instead of issuing its own.
//
// Returns:
//   - error: the fetch error; the previous snapshot stays published
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.callMu.Lock()

	var call *refreshCall
	switch {
	case c.inflight == nil:
		call = &refreshCall{done: make(chan struct{})}
		c.inflight = call
		c.wg.Add(1)
		go c.run(call)
	case c.pending != nil:
		call = c.pending
	default:
		call = &refreshCall{done: make(chan struct{})}
		c.pending = call
	}
	c.callMu.Unlock()

	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		// The fetch keeps running for other waiters.
		return ctx.Err()
	}
}

// run executes one fetch, completes its call, then promotes the queued
// follow-up if one accumulated while it ran.
func (c *Coordinator) run(call *refreshCall) {
	defer c.wg.Done()

	call.err = c.fetch()
	close(call.done)

	c.callMu.Lock()
	c.inflight = c.pending
	c.pending = nil
	if c.inflight != nil {
		c.wg.Add(1)
		go c.run(c.inflight)
	}
	c.callMu.Unlock()
}

// fetch performs the network call and swaps in the new snapshot.
func (c *Coordinator) fetch() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	snap, err := c.fetcher.FetchThings(ctx)
	c.metrics.IncPollTotal()
	c.metrics.ObservePollDuration(time.Since(start).Seconds())

	if err != nil {
		c.metrics.IncPollFailures()
		c.logger.Warn("poll fetch failed, keeping previous snapshot", "error", err)
		return err
	}

	c.snapMu.Lock()
	c.snap = snap
	c.snapMu.Unlock()

	c.logger.Debug("poll snapshot updated",
		"things", len(snap.Things), "duration", time.Since(start))
	return nil
}

// Run fetches on the configured interval until the context is cancelled.
// Periodic fetches share the coalescing path with on-demand refreshes.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("periodic refresh failed", "error", err)
			}
		}
	}
}

// Close waits for any in-flight fetch to finish.
func (c *Coordinator) Close() error {
	c.wg.Wait()
	return nil
}
