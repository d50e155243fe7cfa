package httpapi

import (
	"sync"
	"sync/atomic"
)

// DrainRegistry tracks in-flight webhook deliveries and supports graceful
// draining. When draining is enabled, new deliveries are rejected while
// in-flight ones finish.
//
// mu makes the draining check and wg.Add atomic in Add, so no delivery can be
// admitted between StartDraining and Wait.
type DrainRegistry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	count    atomic.Int64
}

// NewDrainRegistry creates a new DrainRegistry.
func NewDrainRegistry() *DrainRegistry {
	return &DrainRegistry{}
}

// Add registers a delivery. Returns false if the registry is draining.
func (d *DrainRegistry) Add() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draining {
		return false
	}
	d.wg.Add(1)
	d.count.Add(1)
	return true
}

// Done marks a delivery as finished. Must be called exactly once per successful Add.
func (d *DrainRegistry) Done() {
	d.count.Add(-1)
	d.wg.Done()
}

// StartDraining makes future Add calls return false.
func (d *DrainRegistry) StartDraining() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draining = true
}

// IsDraining reports whether the registry is in draining mode.
func (d *DrainRegistry) IsDraining() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draining
}

// ActiveCount returns the number of in-flight deliveries.
func (d *DrainRegistry) ActiveCount() int64 {
	return d.count.Load()
}

// Wait blocks until every admitted delivery has called Done.
func (d *DrainRegistry) Wait() {
	d.wg.Wait()
}
