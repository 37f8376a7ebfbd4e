// Package nm implements a link driver on top of NetworkManager, reached over
// the system D-Bus.
package nm

import (
	"fmt"
	"net"
	"sync"

	"git.sr.ht/~spc/go-log"
	"github.com/devicelink/telemd"
	"github.com/devicelink/telemd/internal/link"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

const (
	busName           = "org.freedesktop.NetworkManager"
	objectPath        = "/org/freedesktop/NetworkManager"
	managerInterface  = "org.freedesktop.NetworkManager"
	deviceInterface   = managerInterface + ".Device"
	wirelessInterface = deviceInterface + ".Wireless"
	apInterface       = managerInterface + ".AccessPoint"
	ip4Interface      = managerInterface + ".IP4Config"
	settingsInterface = managerInterface + ".Settings.Connection"
)

// Device states, as defined by NMDeviceState.
const (
	deviceStateDisconnected uint32 = 30
	deviceStatePrepare      uint32 = 40
	deviceStateActivated    uint32 = 100
	deviceStateFailed       uint32 = 120
)

const deviceTypeWifi uint32 = 2

// Driver is a link.Driver backed by a NetworkManager wifi device.
type Driver struct {
	*link.Dispatcher

	// Interface selects the wifi device by name. When empty the first wifi
	// device NetworkManager reports is used.
	Interface string

	conn *dbus.Conn

	mu         sync.Mutex
	device     dbus.ObjectPath
	network    link.Network
	connection dbus.ObjectPath
	signals    chan *dbus.Signal
}

// New connects to the system bus and returns a Driver for the named
// interface.
func New(iface string) (*Driver, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("cannot connect to system bus: %w", err)
	}

	return &Driver{
		Dispatcher: link.NewDispatcher(),
		Interface:  iface,
		conn:       conn,
	}, nil
}

// Start locates the wifi device, subscribes to its state changes and emits
// EventStarted.
func (d *Driver) Start(n link.Network) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	device, err := d.findDevice()
	if err != nil {
		return err
	}
	log.Debugf("using wifi device %v", device)

	if d.signals == nil {
		if err := d.conn.AddMatchSignal(d.matchOptions(device)...); err != nil {
			return fmt.Errorf("cannot add signal match: %w", err)
		}
		d.signals = make(chan *dbus.Signal, 16)
		d.conn.Signal(d.signals)
		go d.receive(d.signals)
	}

	d.device = device
	d.network = n
	d.Emit(link.Event{Type: link.EventStarted})

	return nil
}

// Connect activates a connection to the network given to Start. The first
// attempt adds a connection profile; later attempts reactivate it.
func (d *Driver) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == "" {
		return fmt.Errorf("cannot connect: %w", telemd.ErrInvalidState)
	}

	var active dbus.ObjectPath
	nm := d.conn.Object(busName, objectPath)

	if d.connection != "" {
		if err := nm.Call(managerInterface+".ActivateConnection", dbus.Flags(0), d.connection, d.device, dbus.ObjectPath("/")).Store(&active); err != nil {
			return fmt.Errorf("cannot activate connection: %w", err)
		}
	} else {
		settings, err := connectionSettings(d.network, uuid.New().String())
		if err != nil {
			return err
		}
		var connection dbus.ObjectPath
		if err := nm.Call(managerInterface+".AddAndActivateConnection", dbus.Flags(0), settings, d.device, dbus.ObjectPath("/")).Store(&connection, &active); err != nil {
			return fmt.Errorf("cannot add connection: %w", err)
		}
		d.connection = connection
	}
	log.Debugf("activating connection %v", active)

	return nil
}

// Disconnect deactivates the device.
func (d *Driver) Disconnect() error {
	d.mu.Lock()
	device := d.device
	d.mu.Unlock()

	if device == "" {
		return fmt.Errorf("cannot disconnect: %w", telemd.ErrInvalidState)
	}
	if err := d.conn.Object(busName, device).Call(deviceInterface+".Disconnect", dbus.Flags(0)).Err; err != nil {
		return fmt.Errorf("cannot disconnect device: %w", err)
	}
	return nil
}

// Stop unsubscribes from device signals and removes the connection profile
// added by Connect.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.signals != nil {
		d.conn.RemoveSignal(d.signals)
		if err := d.conn.RemoveMatchSignal(d.matchOptions(d.device)...); err != nil {
			log.Warnf("cannot remove signal match: %v", err)
		}
		close(d.signals)
		d.signals = nil
	}

	if d.connection != "" {
		if err := d.conn.Object(busName, d.connection).Call(settingsInterface+".Delete", dbus.Flags(0)).Err; err != nil {
			log.Warnf("cannot delete connection %v: %v", d.connection, err)
		}
		d.connection = ""
	}
	d.device = ""

	return nil
}

// SignalStrength reads the strength of the active access point.
func (d *Driver) SignalStrength() (int8, error) {
	d.mu.Lock()
	device := d.device
	d.mu.Unlock()

	v, err := d.conn.Object(busName, device).GetProperty(wirelessInterface + ".ActiveAccessPoint")
	if err != nil {
		return 0, fmt.Errorf("cannot get active access point: %w", err)
	}
	ap, ok := v.Value().(dbus.ObjectPath)
	if !ok || ap == "/" {
		return 0, telemd.ErrNotConnected
	}

	v, err = d.conn.Object(busName, ap).GetProperty(apInterface + ".Strength")
	if err != nil {
		return 0, fmt.Errorf("cannot get access point strength: %w", err)
	}
	pct, ok := v.Value().(uint8)
	if !ok {
		return 0, fmt.Errorf("cannot convert %T to uint8", v.Value())
	}

	return strengthToDBm(pct), nil
}

// AddressInfo reads the device's IPv4 configuration.
func (d *Driver) AddressInfo() (link.AddressInfo, error) {
	d.mu.Lock()
	device := d.device
	d.mu.Unlock()

	v, err := d.conn.Object(busName, device).GetProperty(deviceInterface + ".Ip4Config")
	if err != nil {
		return link.AddressInfo{}, fmt.Errorf("cannot get IPv4 config: %w", err)
	}
	config, ok := v.Value().(dbus.ObjectPath)
	if !ok || config == "/" {
		return link.AddressInfo{}, telemd.ErrNotConnected
	}
	obj := d.conn.Object(busName, config)

	v, err = obj.GetProperty(ip4Interface + ".AddressData")
	if err != nil {
		return link.AddressInfo{}, fmt.Errorf("cannot get address data: %w", err)
	}
	data, ok := v.Value().([]map[string]dbus.Variant)
	if !ok {
		return link.AddressInfo{}, fmt.Errorf("cannot convert %T to []map[string]dbus.Variant", v.Value())
	}

	v, err = obj.GetProperty(ip4Interface + ".Gateway")
	if err != nil {
		return link.AddressInfo{}, fmt.Errorf("cannot get gateway: %w", err)
	}
	gateway, _ := v.Value().(string)

	return addressFromConfig(data, gateway)
}

// Close stops the driver and closes the bus connection.
func (d *Driver) Close() error {
	if err := d.Stop(); err != nil {
		log.Warnf("cannot stop driver: %v", err)
	}
	if err := d.Dispatcher.Close(); err != nil {
		return err
	}
	return d.conn.Close()
}

func (d *Driver) matchOptions(device dbus.ObjectPath) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(device),
		dbus.WithMatchInterface(deviceInterface),
		dbus.WithMatchMember("StateChanged"),
	}
}

func (d *Driver) findDevice() (dbus.ObjectPath, error) {
	var devices []dbus.ObjectPath
	if err := d.conn.Object(busName, objectPath).Call(managerInterface+".GetDevices", dbus.Flags(0)).Store(&devices); err != nil {
		return "", fmt.Errorf("cannot list devices: %w", err)
	}

	for _, device := range devices {
		obj := d.conn.Object(busName, device)

		v, err := obj.GetProperty(deviceInterface + ".DeviceType")
		if err != nil {
			log.Debugf("cannot get device type of %v: %v", device, err)
			continue
		}
		if t, ok := v.Value().(uint32); !ok || t != deviceTypeWifi {
			continue
		}
		if d.Interface == "" {
			return device, nil
		}

		v, err = obj.GetProperty(deviceInterface + ".Interface")
		if err != nil {
			log.Debugf("cannot get interface name of %v: %v", device, err)
			continue
		}
		if name, _ := v.Value().(string); name == d.Interface {
			return device, nil
		}
	}

	if d.Interface != "" {
		return "", fmt.Errorf("no wifi device named %v: %w", d.Interface, telemd.ErrNotSupported)
	}
	return "", fmt.Errorf("no wifi device found: %w", telemd.ErrNotSupported)
}

func (d *Driver) receive(signals <-chan *dbus.Signal) {
	for s := range signals {
		log.Tracef("received signal: %#v", s)

		e, ok, err := eventFromSignal(s)
		if err != nil {
			log.Errorf("cannot handle signal: %v", err)
			continue
		}
		if !ok {
			continue
		}
		if e.Type == link.EventAddressAcquired {
			info, err := d.AddressInfo()
			if err != nil {
				log.Warnf("cannot read address info: %v", err)
			}
			e.Address = info
		}
		d.Emit(e)
	}
}

// eventFromSignal maps a device StateChanged signal to a link event. It
// reports false for transitions the link manager does not act on.
func eventFromSignal(s *dbus.Signal) (link.Event, bool, error) {
	if s.Name != deviceInterface+".StateChanged" {
		return link.Event{}, false, nil
	}
	if len(s.Body) < 3 {
		return link.Event{}, false, fmt.Errorf("invalid signal body length: %v", len(s.Body))
	}

	newState, ok := s.Body[0].(uint32)
	if !ok {
		return link.Event{}, false, fmt.Errorf("cannot convert %T to uint32", s.Body[0])
	}
	oldState, ok := s.Body[1].(uint32)
	if !ok {
		return link.Event{}, false, fmt.Errorf("cannot convert %T to uint32", s.Body[1])
	}
	reason, ok := s.Body[2].(uint32)
	if !ok {
		return link.Event{}, false, fmt.Errorf("cannot convert %T to uint32", s.Body[2])
	}

	switch newState {
	case deviceStateActivated:
		return link.Event{Type: link.EventAddressAcquired}, true, nil
	case deviceStateDisconnected, deviceStateFailed:
		// Only a device that was on its way up, or up, has lost anything.
		if oldState < deviceStatePrepare {
			return link.Event{}, false, nil
		}
		return link.Event{
			Type:   link.EventDisconnected,
			Reason: fmt.Sprintf("state %v -> %v, reason %v", oldState, newState, reason),
		}, true, nil
	default:
		return link.Event{}, false, nil
	}
}

// connectionSettings builds the settings dictionary for AddAndActivateConnection.
func connectionSettings(n link.Network, id string) (map[string]map[string]dbus.Variant, error) {
	if n.SSID == "" {
		return nil, fmt.Errorf("cannot build connection settings: empty SSID: %w", telemd.ErrInvalidArgument)
	}

	settings := map[string]map[string]dbus.Variant{
		"connection": {
			"id":   dbus.MakeVariant(n.SSID),
			"uuid": dbus.MakeVariant(id),
			"type": dbus.MakeVariant("802-11-wireless"),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(n.SSID)),
			"mode": dbus.MakeVariant("infrastructure"),
		},
		"ipv4": {
			"method": dbus.MakeVariant("auto"),
		},
	}

	switch n.Security {
	case link.SecurityOpen:
	case link.SecurityWPA2PSK:
		settings["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(n.Passphrase),
		}
	case link.SecurityWPA3SAE:
		settings["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("sae"),
			"psk":      dbus.MakeVariant(n.Passphrase),
		}
	default:
		return nil, fmt.Errorf("cannot build connection settings: %v: %w", n.Security, telemd.ErrNotSupported)
	}

	return settings, nil
}

// strengthToDBm converts a signal quality percentage into an approximate RSSI.
func strengthToDBm(pct uint8) int8 {
	if pct > 100 {
		pct = 100
	}
	return int8(int(pct)/2 - 100)
}

func addressFromConfig(data []map[string]dbus.Variant, gateway string) (link.AddressInfo, error) {
	if len(data) == 0 {
		return link.AddressInfo{}, telemd.ErrNotConnected
	}

	address, ok := data[0]["address"].Value().(string)
	if !ok {
		return link.AddressInfo{}, fmt.Errorf("cannot convert %T to string", data[0]["address"].Value())
	}
	prefix, ok := data[0]["prefix"].Value().(uint32)
	if !ok {
		return link.AddressInfo{}, fmt.Errorf("cannot convert %T to uint32", data[0]["prefix"].Value())
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return link.AddressInfo{}, fmt.Errorf("cannot parse address %q", address)
	}

	return link.AddressInfo{
		IP:      ip,
		Netmask: net.CIDRMask(int(prefix), 32),
		Gateway: net.ParseIP(gateway),
	}, nil
}
