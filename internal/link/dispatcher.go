package link

import (
	"sync"
	"sync/atomic"

	isync "github.com/devicelink/telemd/internal/sync"
)

// Dispatcher delivers events to registered handlers on a single goroutine in
// the order they were emitted. Drivers embed it to satisfy the handler half of
// the Driver interface. Emit never blocks, so a handler may safely call back
// into the driver.
type Dispatcher struct {
	handlers isync.RWMutexMap[HandlerID, EventHandlerFunc]
	nextID   atomic.Uint64

	mu      sync.Mutex
	idle    *sync.Cond
	pending []Event
	busy    int
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewDispatcher creates a Dispatcher and starts its goroutine.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	d.idle = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// SetEventHandler registers f and returns its registration.
func (d *Dispatcher) SetEventHandler(f EventHandlerFunc) (HandlerID, error) {
	id := HandlerID(d.nextID.Add(1))
	d.handlers.Set(id, f)
	return id, nil
}

// RemoveEventHandler releases a registration.
func (d *Dispatcher) RemoveEventHandler(id HandlerID) {
	d.handlers.Del(id)
}

// Emit queues e for delivery. Events emitted after Close are dropped.
func (d *Dispatcher) Emit(e Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.pending = append(d.pending, e)
	d.busy++
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Drain blocks until every event emitted so far, and every event emitted by
// handlers while processing them, has been delivered.
func (d *Dispatcher) Drain() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for d.busy > 0 {
		d.idle.Wait()
	}
}

// Close stops the dispatch goroutine and drops every registration. Queued
// events are discarded.
func (d *Dispatcher) Close() error {
	d.once.Do(func() {
		close(d.done)

		d.mu.Lock()
		d.closed = true
		d.pending = nil
		d.busy = 0
		d.idle.Broadcast()
		d.mu.Unlock()

		d.handlers.Clear()
	})
	return nil
}

func (d *Dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}

		for {
			d.mu.Lock()
			if len(d.pending) == 0 {
				d.mu.Unlock()
				break
			}
			e := d.pending[0]
			d.pending = d.pending[1:]
			d.mu.Unlock()

			for _, f := range d.handlers.Values() {
				f(e)
			}

			d.mu.Lock()
			if d.busy > 0 {
				d.busy--
			}
			if d.busy == 0 {
				d.idle.Broadcast()
			}
			d.mu.Unlock()
		}
	}
}
