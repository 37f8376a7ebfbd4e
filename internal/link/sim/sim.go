// Package sim provides an in-process link driver whose events are scripted or
// injected by the caller. It backs the "sim" link type and the link tests.
package sim

import (
	"fmt"
	"net"
	"sync"

	"git.sr.ht/~spc/go-log"
	"github.com/devicelink/telemd/internal/link"
)

// Calls counts the driver operations that have been requested.
type Calls struct {
	Start      int
	Connect    int
	Disconnect int
	Stop       int
}

// Driver is a link.Driver that performs no I/O. Start emits EventStarted; each
// Connect consumes the next entry of Script and emits it. When the script is
// exhausted Connect emits nothing, leaving the attempt pending.
type Driver struct {
	*link.Dispatcher

	// StartErr, ConnectErr and DisconnectErr, if set, are returned by the
	// matching operation instead of performing it.
	StartErr      error
	ConnectErr    error
	DisconnectErr error

	// Script lists the events answered to successive Connect calls.
	Script []link.EventType

	// RSSI and Address are reported while connected.
	RSSI    int8
	Address link.AddressInfo

	mu      sync.Mutex
	network link.Network
	pos     int
	calls   Calls
	closed  bool
}

// New creates a Driver answering Connect calls with script.
func New(script ...link.EventType) *Driver {
	return &Driver{
		Dispatcher: link.NewDispatcher(),
		Script:     script,
		RSSI:       -55,
		Address: link.AddressInfo{
			IP:      net.IPv4(192, 168, 4, 2),
			Netmask: net.IPv4Mask(255, 255, 255, 0),
			Gateway: net.IPv4(192, 168, 4, 1),
		},
	}
}

// Start records n and emits EventStarted.
func (d *Driver) Start(n link.Network) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("cannot start: driver closed")
	}
	d.calls.Start++
	if d.StartErr != nil {
		return d.StartErr
	}
	d.network = n
	log.Tracef("sim: start %q", n.SSID)
	d.Emit(link.Event{Type: link.EventStarted})
	return nil
}

// Connect emits the next scripted event, if any.
func (d *Driver) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls.Connect++
	if d.ConnectErr != nil {
		return d.ConnectErr
	}
	if d.pos >= len(d.Script) {
		log.Tracef("sim: connect #%v pending", d.calls.Connect)
		return nil
	}
	t := d.Script[d.pos]
	d.pos++

	e := link.Event{Type: t}
	switch t {
	case link.EventAddressAcquired:
		e.Address = d.Address
	case link.EventDisconnected:
		e.Reason = "scripted"
	}
	log.Tracef("sim: connect #%v -> %v", d.calls.Connect, t)
	d.Emit(e)
	return nil
}

// Disconnect emits EventDisconnected, as a real stack reports its own
// teardown.
func (d *Driver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls.Disconnect++
	if d.DisconnectErr != nil {
		return d.DisconnectErr
	}
	d.Emit(link.Event{Type: link.EventDisconnected, Reason: "requested"})
	return nil
}

// Stop records the call.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls.Stop++
	return nil
}

// SignalStrength returns d.RSSI.
func (d *Driver) SignalStrength() (int8, error) {
	return d.RSSI, nil
}

// AddressInfo returns d.Address.
func (d *Driver) AddressInfo() (link.AddressInfo, error) {
	return d.Address, nil
}

// Close stops event dispatch.
func (d *Driver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	return d.Dispatcher.Close()
}

// Network returns the network last passed to Start.
func (d *Driver) Network() link.Network {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.network
}

// Calls returns a copy of the call counters.
func (d *Driver) Calls() Calls {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.calls
}
