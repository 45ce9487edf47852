package globe

import (
	"sync"
	"time"
)

// TaskRegistry owns every timer a component schedules so teardown is a single
// Close call instead of several independently tracked handles. The glitch
// timer, the marker feed and the relay client each hold their own registry.
type TaskRegistry struct {
	mu     sync.Mutex
	next   int
	timers map[int]*time.Timer
	stops  map[int]chan struct{}
	closed bool
}

// NewTaskRegistry returns an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		timers: make(map[int]*time.Timer),
		stops:  make(map[int]chan struct{}),
	}
}

// After schedules fn once after d. The returned cancel func is safe to call
// multiple times and after the task has fired.
func (r *TaskRegistry) After(d time.Duration, fn func()) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return func() {}
	}
	id := r.next
	r.next++
	r.timers[id] = time.AfterFunc(d, func() {
		r.remove(id)
		fn()
	})
	return func() { r.cancelTimer(id) }
}

// Every schedules fn on a ticker with period d until cancelled or the
// registry is closed.
func (r *TaskRegistry) Every(d time.Duration, fn func()) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return func() {}
	}
	id := r.next
	r.next++
	stop := make(chan struct{})
	r.stops[id] = stop
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return func() { r.cancelTicker(id) }
}

// Pending returns the number of live tasks. Exposed so tests can assert that
// teardown leaves nothing running.
func (r *TaskRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers) + len(r.stops)
}

// Close cancels every pending task. The registry accepts no new work
// afterwards.
func (r *TaskRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	for id, stop := range r.stops {
		close(stop)
		delete(r.stops, id)
	}
}

func (r *TaskRegistry) remove(id int) {
	r.mu.Lock()
	delete(r.timers, id)
	r.mu.Unlock()
}

func (r *TaskRegistry) cancelTimer(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
}

func (r *TaskRegistry) cancelTicker(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stop, ok := r.stops[id]; ok {
		close(stop)
		delete(r.stops, id)
	}
}
