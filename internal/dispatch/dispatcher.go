package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/sensorthings-bridge/internal/infrastructure/logging"
)

// ErrStopped indicates a job was submitted after the dispatcher shut down.
var ErrStopped = errors.New("dispatch: dispatcher stopped")

const defaultQueueSize = 256

// Dispatcher runs submitted jobs one at a time on a single goroutine.
//
// MQTT delivery callbacks arrive on the broker library's network
// goroutines; entity state must only mutate on one goroutine. Submit is
// the crossing point: any goroutine may call it, and the jobs execute in
// FIFO order on the dispatcher's own goroutine.
//
// A panicking job is recovered and logged; the dispatcher keeps running.
type Dispatcher struct {
	jobs   chan func()
	logger *logging.Logger

	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
	done     chan struct{}
}

// New creates a Dispatcher with a bounded job queue.
func New(logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:   make(chan func(), defaultQueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Run executes jobs until the context is cancelled. It must be called
// exactly once, typically as `go d.Run(ctx)` from main.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return
		case job := <-d.jobs:
			d.execute(job)
		}
	}
}

// shutdown refuses new submissions, then keeps consuming until every
// Submit that was already accepted has handed its job over. Without the
// settling step a submitter that passed the stopped check could park a
// job in the queue after the final drain, silently losing accepted work.
func (d *Dispatcher) shutdown() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	settled := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(settled)
	}()

	for {
		select {
		case job := <-d.jobs:
			d.execute(job)
		case <-settled:
			d.drain()
			return
		}
	}
}

// drain runs jobs already queued at shutdown so accepted work is not lost.
func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.jobs:
			d.execute(job)
		default:
			return
		}
	}
}

func (d *Dispatcher) execute(job func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch job panicked", "panic", r)
		}
	}()
	job()
}

// Submit queues a job for execution on the dispatcher goroutine.
//
// Jobs submitted from the same goroutine execute in submission order.
// Submit blocks when the queue is full, which applies natural
// backpressure to a flooding broker.
//
// Returns:
//   - error: ErrStopped if the dispatcher has shut down
func (d *Dispatcher) Submit(job func()) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrStopped
	}
	d.inflight.Add(1)
	d.mu.Unlock()
	defer d.inflight.Done()

	select {
	case d.jobs <- job:
		return nil
	case <-d.done:
		return ErrStopped
	}
}

// Wait blocks until Run has returned and the queue is drained.
func (d *Dispatcher) Wait() {
	<-d.done
}
