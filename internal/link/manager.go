package link

import (
	"fmt"
	"sync/atomic"
	"time"

	"git.sr.ht/~spc/go-log"
	"github.com/devicelink/telemd"
	isync "github.com/devicelink/telemd/internal/sync"
)

// Event group bits set by the event handler for a waiting Connect.
const (
	BitConnected isync.Bits = 1 << iota
	BitFailed
)

// DefaultConnectTimeout bounds Connect when Config.ConnectTimeout is zero.
const DefaultConnectTimeout = 10 * time.Second

// ErrRetriesExhausted is returned by Connect when the link dropped more times
// than the retry budget allows.
var ErrRetriesExhausted = fmt.Errorf("retries exhausted: %w", telemd.ErrTransport)

// Config holds the values a Manager needs. It is copied by New and never
// changed afterwards.
type Config struct {
	Network        Network
	MaxRetry       uint
	ConnectTimeout time.Duration
}

// Manager owns the link state machine. Connect is called from a single
// goroutine; the driver's event handler is the only other writer, and touches
// state solely through atomics and the event group.
type Manager struct {
	config Config
	driver Driver

	initialized atomic.Bool
	state       atomic.Int32
	retries     atomic.Uint32
	events      atomic.Pointer[isync.EventGroup]
	handler     HandlerID
}

// New creates a Manager for driver. Init must be called before use.
func New(config Config, driver Driver) *Manager {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	return &Manager{
		config: config,
		driver: driver,
	}
}

// Init creates the event group and registers the event handler with the
// driver. Calling Init on an initialized Manager does nothing.
func (m *Manager) Init() error {
	if m.initialized.Load() {
		log.Warn("link manager already initialized")
		return nil
	}
	if m.driver == nil {
		return fmt.Errorf("cannot initialize link manager: missing driver: %w", telemd.ErrInvalidArgument)
	}

	log.Debug("initializing link manager")

	events := isync.NewEventGroup()
	m.events.Store(events)

	id, err := m.driver.SetEventHandler(m.handleEvent)
	if err != nil {
		m.events.Store(nil)
		return fmt.Errorf("cannot register link event handler: %w", err)
	}
	m.handler = id

	m.state.Store(int32(StateDisconnected))
	m.retries.Store(0)
	m.initialized.Store(true)

	log.Debug("link manager initialized")
	return nil
}

// Connect starts the interface and blocks until the link has an address, the
// retry budget is spent, or the connect timeout elapses. It returns nil
// straight away if the link is already connected.
func (m *Manager) Connect() error {
	if !m.initialized.Load() {
		log.Error("link manager not initialized")
		return fmt.Errorf("cannot connect: %w", telemd.ErrInvalidState)
	}

	if m.Status() == StateConnected {
		log.Info("already connected")
		return nil
	}

	events := m.events.Load()
	ssid := m.config.Network.SSID

	log.Infof("connecting to network %q", ssid)

	// Flags must be clear before the driver can produce the first event of
	// this attempt.
	events.Clear(BitConnected | BitFailed)
	m.retries.Store(0)
	m.state.Store(int32(StateConnecting))

	if err := m.driver.Start(m.config.Network); err != nil {
		log.Errorf("cannot start interface: %v", err)
		m.state.Store(int32(StateError))
		return fmt.Errorf("cannot start interface: %w", err)
	}

	bits := events.Wait(BitConnected|BitFailed, m.config.ConnectTimeout)
	switch {
	case bits&BitConnected != 0:
		log.Infof("connected to network %q", ssid)
		return nil
	case bits&BitFailed != 0:
		log.Errorf("cannot connect to network %q after %v attempts", ssid, m.config.MaxRetry)
		return fmt.Errorf("cannot connect to network %q: %w", ssid, ErrRetriesExhausted)
	default:
		log.Errorf("connection to network %q timed out after %v", ssid, m.config.ConnectTimeout)
		m.state.Store(int32(StateFailed))
		return fmt.Errorf("cannot connect to network %q: %w", ssid, telemd.ErrTimeout)
	}
}

// IsConnected reports whether the link is up with an address.
func (m *Manager) IsConnected() bool {
	return m.initialized.Load() && m.Status() == StateConnected
}

// Status returns the current state.
func (m *Manager) Status() State {
	return State(m.state.Load())
}

// RetryCount returns the number of reconnect attempts made since the last
// successful connection, or since Connect was last called.
func (m *Manager) RetryCount() uint {
	return uint(m.retries.Load())
}

// SignalStrength returns the RSSI of the current association in dBm.
func (m *Manager) SignalStrength() (int8, error) {
	if !m.IsConnected() {
		return 0, telemd.ErrNotConnected
	}
	rssi, err := m.driver.SignalStrength()
	if err != nil {
		return 0, fmt.Errorf("cannot get signal strength: %w", err)
	}
	return rssi, nil
}

// AddressInfo returns the IPv4 configuration of the interface.
func (m *Manager) AddressInfo() (AddressInfo, error) {
	if !m.IsConnected() {
		return AddressInfo{}, telemd.ErrNotConnected
	}
	info, err := m.driver.AddressInfo()
	if err != nil {
		return AddressInfo{}, fmt.Errorf("cannot get address info: %w", err)
	}
	return info, nil
}

// Disconnect tears down the link. It is valid only while connected or
// connecting; on failure the state is left as it was.
func (m *Manager) Disconnect() error {
	if !m.initialized.Load() {
		return fmt.Errorf("cannot disconnect: %w", telemd.ErrInvalidState)
	}

	prev := m.Status()
	if prev != StateConnected && prev != StateConnecting {
		return fmt.Errorf("cannot disconnect: %w", telemd.ErrNotConnected)
	}

	log.Info("disconnecting...")

	// The driver reports the teardown as an ordinary disconnect event; the
	// state is switched first so the handler does not treat it as a drop.
	if !m.state.CompareAndSwap(int32(prev), int32(StateDisconnected)) {
		return fmt.Errorf("cannot disconnect: state changed to %v", m.Status())
	}
	if err := m.driver.Disconnect(); err != nil {
		m.state.CompareAndSwap(int32(StateDisconnected), int32(prev))
		return fmt.Errorf("cannot disconnect: %w", err)
	}

	return nil
}

// Cleanup disconnects, stops the interface and releases the driver. Init must
// be called again before the Manager is reused.
func (m *Manager) Cleanup() error {
	if !m.initialized.Load() {
		return nil
	}

	log.Debug("cleaning up link manager")

	if m.Status() == StateConnected {
		if err := m.Disconnect(); err != nil {
			log.Warnf("cannot disconnect during cleanup: %v", err)
		}
	}

	if err := m.driver.Stop(); err != nil {
		log.Warnf("cannot stop interface: %v", err)
	}
	m.driver.RemoveEventHandler(m.handler)
	if err := m.driver.Close(); err != nil {
		log.Warnf("cannot close link driver: %v", err)
	}

	m.events.Store(nil)
	m.handler = 0
	m.state.Store(int32(StateDisconnected))
	m.retries.Store(0)
	m.initialized.Store(false)

	log.Debug("link manager cleanup completed")
	return nil
}

// handleEvent runs on the driver's goroutine.
func (m *Manager) handleEvent(e Event) {
	events := m.events.Load()
	if events == nil {
		return
	}

	state := m.Status()

	switch e.Type {
	case EventStarted:
		if state != StateConnecting && state != StateConnected {
			log.Debugf("ignoring %v event in state %v", e.Type, state)
			return
		}
		log.Info("interface started, initiating connection...")
		m.state.Store(int32(StateConnecting))
		if err := m.driver.Connect(); err != nil {
			log.Errorf("cannot issue connect attempt: %v", err)
		}

	case EventDisconnected:
		if state != StateConnecting && state != StateConnected {
			log.Debugf("ignoring %v event in state %v", e.Type, state)
			return
		}
		count := m.retries.Load()
		if uint(count) < m.config.MaxRetry {
			count = m.retries.Add(1)
			log.Infof("retrying connection (%v/%v)", count, m.config.MaxRetry)
			m.state.Store(int32(StateConnecting))
			if err := m.driver.Connect(); err != nil {
				log.Errorf("cannot issue connect attempt: %v", err)
			}
		} else {
			log.Errorf("connection failed after %v attempts", m.config.MaxRetry)
			if e.Reason != "" {
				log.Debugf("last disconnect reason: %v", e.Reason)
			}
			m.state.Store(int32(StateFailed))
			events.Set(BitFailed)
		}

	case EventAddressAcquired:
		if state != StateConnecting {
			log.Debugf("ignoring %v event in state %v", e.Type, state)
			return
		}
		log.Infof("address acquired: %v", e.Address)
		m.retries.Store(0)
		m.state.Store(int32(StateConnected))
		events.Set(BitConnected)

	default:
		log.Debugf("unhandled link event: %v", e.Type)
	}
}
