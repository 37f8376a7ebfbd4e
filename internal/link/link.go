// Package link manages the device's wireless network attachment. A Driver
// stands in for the network stack: it performs link operations and reports
// their outcome asynchronously as Events on a goroutine it owns. The Manager
// turns those events into a synchronous, bounded Connect call.
package link

import (
	"fmt"
	"net"
)

// State is the connection state of the link.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// EventType identifies an asynchronous link event.
type EventType uint

const (
	// EventStarted is emitted once the interface has started after
	// Driver.Start.
	EventStarted EventType = iota

	// EventDisconnected is emitted whenever the station loses, or fails to
	// establish, its association with the network.
	EventDisconnected

	// EventAddressAcquired is emitted when the interface has an IP address.
	EventAddressAcquired
)

func (e EventType) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventDisconnected:
		return "disconnected"
	case EventAddressAcquired:
		return "address-acquired"
	default:
		return fmt.Sprintf("unknown(%d)", e)
	}
}

// Event is a link event delivered to registered handlers.
type Event struct {
	Type EventType

	// Address is set for EventAddressAcquired.
	Address AddressInfo

	// Reason is an optional driver-specific explanation, set for
	// EventDisconnected.
	Reason string
}

// EventHandlerFunc is called on the driver's dispatch goroutine for every
// event. It must not block.
type EventHandlerFunc func(e Event)

// HandlerID identifies an event handler registration.
type HandlerID uint64

// Security is the authentication mode required of the network.
type Security int

const (
	SecurityOpen Security = iota
	SecurityWPA2PSK
	SecurityWPA3SAE
)

func (s Security) String() string {
	switch s {
	case SecurityOpen:
		return "open"
	case SecurityWPA2PSK:
		return "wpa2-psk"
	case SecurityWPA3SAE:
		return "wpa3-sae"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// ParseSecurity parses the textual form of a Security value.
func ParseSecurity(s string) (Security, error) {
	switch s {
	case "open", "none":
		return SecurityOpen, nil
	case "wpa2-psk", "wpa2":
		return SecurityWPA2PSK, nil
	case "wpa3-sae", "wpa3":
		return SecurityWPA3SAE, nil
	default:
		return 0, fmt.Errorf("unsupported security mode: %v", s)
	}
}

// Network names the network to join and the credentials needed to join it.
type Network struct {
	SSID       string
	Passphrase string
	Security   Security
}

// AddressInfo describes the IPv4 configuration of the interface.
type AddressInfo struct {
	IP      net.IP
	Netmask net.IPMask
	Gateway net.IP
}

func (a AddressInfo) String() string {
	return fmt.Sprintf("ip=%v mask=%v gw=%v", a.IP, net.IP(a.Netmask), a.Gateway)
}

// Driver is the network stack underneath a Manager.
type Driver interface {
	// SetEventHandler registers f to be called for every event.
	SetEventHandler(f EventHandlerFunc) (HandlerID, error)

	// RemoveEventHandler releases the registration id.
	RemoveEventHandler(id HandlerID)

	// Start requests that the interface be brought up for network n. An
	// EventStarted follows asynchronously on success.
	Start(n Network) error

	// Connect issues a connect attempt to the network given to Start. The
	// result arrives as EventAddressAcquired or EventDisconnected.
	Connect() error

	// Disconnect tears down the current association.
	Disconnect() error

	// Stop brings the interface down.
	Stop() error

	// SignalStrength returns the RSSI of the current association in dBm.
	SignalStrength() (int8, error)

	// AddressInfo returns the current IPv4 configuration.
	AddressInfo() (AddressInfo, error)

	// Close releases the interface handle and stops event dispatch.
	Close() error
}
