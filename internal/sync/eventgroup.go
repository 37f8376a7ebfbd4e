package sync

import (
	"sync"
	"time"
)

// Bits is a set of event flags.
type Bits uint32

// An EventGroup is a register of event flags shared between goroutines. One
// side sets bits as events happen, the other clears them before starting an
// operation and then blocks in Wait until any of the bits it cares about are
// set or a timeout expires.
//
// An EventGroup must be created with NewEventGroup.
type EventGroup struct {
	mu      sync.Mutex
	bits    Bits
	changed chan struct{}
}

// NewEventGroup creates an EventGroup with all bits cleared.
func NewEventGroup() *EventGroup {
	return &EventGroup{
		changed: make(chan struct{}),
	}
}

// Set sets bits and wakes every waiter. It returns the bits as they were after
// the update.
func (g *EventGroup) Set(bits Bits) Bits {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.bits&bits != bits {
		g.bits |= bits
		close(g.changed)
		g.changed = make(chan struct{})
	}

	return g.bits
}

// Clear clears bits and returns the bits as they were before the update.
func (g *EventGroup) Clear(bits Bits) Bits {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.bits
	g.bits &^= bits

	return prev
}

// Get returns the current bits without blocking.
func (g *EventGroup) Get() Bits {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.bits
}

// Wait blocks until any bit in mask is set or timeout elapses. It returns the
// bits observed when it stopped waiting; the caller tests the result against
// mask to tell a timeout from an event. Wait does not clear bits. A timeout of
// zero polls.
func (g *EventGroup) Wait(mask Bits, timeout time.Duration) Bits {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		g.mu.Lock()
		bits := g.bits
		changed := g.changed
		g.mu.Unlock()

		if bits&mask != 0 {
			return bits
		}

		select {
		case <-changed:
		case <-timer.C:
			return g.Get()
		}
	}
}
