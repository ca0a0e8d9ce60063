package push

import (
	"sync"
	"time"

	"github.com/nerrad567/sensorthings-bridge/internal/sensorthings"
)

// Callback receives the decoded result of a pushed Observation together
// with its phenomenon time (zero when the payload carried none that
// parses). Callbacks run on the dispatcher goroutine, never on broker
// network goroutines.
type Callback func(result any, at time.Time)

// Registry routes pushed Observations to entity callbacks by Datastream ID.
//
// Each Datastream has at most one callback: registering a second callback
// for the same stream replaces the first. Entities unsubscribe on teardown.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	callbacks map[sensorthings.ID]Callback
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		callbacks: make(map[sensorthings.ID]Callback),
	}
}

// Subscribe registers cb for the given Datastream. A later registration
// for the same stream wins.
func (r *Registry) Subscribe(streamID sensorthings.ID, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[streamID] = cb
}

// Unsubscribe removes the callback for the given Datastream. Unsubscribing
// a stream that was never registered is a no-op.
func (r *Registry) Unsubscribe(streamID sensorthings.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.callbacks, streamID)
}

// Lookup returns the callback for the given Datastream, if any.
func (r *Registry) Lookup(streamID sensorthings.ID) (Callback, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.callbacks[streamID]
	return cb, ok
}

// Len returns the number of registered streams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.callbacks)
}
