package link_test

import (
	"errors"
	"testing"
	"time"

	"github.com/devicelink/telemd"
	"github.com/devicelink/telemd/internal/link"
	"github.com/devicelink/telemd/internal/link/sim"
	"github.com/google/go-cmp/cmp"
)

func newManager(t *testing.T, max uint, driver *sim.Driver) *link.Manager {
	t.Helper()

	m := link.New(link.Config{
		Network: link.Network{
			SSID:       "testnet",
			Passphrase: "secret",
			Security:   link.SecurityWPA2PSK,
		},
		MaxRetry:       max,
		ConnectTimeout: 2 * time.Second,
	}, driver)
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := m.Cleanup(); err != nil {
			t.Error(err)
		}
	})
	return m
}

func repeat(t link.EventType, n int) []link.EventType {
	out := make([]link.EventType, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, t)
	}
	return out
}

func TestConnect(t *testing.T) {
	tests := []struct {
		description    string
		max            uint
		script         []link.EventType
		wantErr        error
		wantState      link.State
		wantRetries    uint
		wantConnectOps int
	}{
		{
			description:    "first attempt succeeds",
			max:            3,
			script:         []link.EventType{link.EventAddressAcquired},
			wantState:      link.StateConnected,
			wantConnectOps: 1,
		},
		{
			description: "succeeds after retries",
			max:         3,
			script: []link.EventType{
				link.EventDisconnected,
				link.EventDisconnected,
				link.EventAddressAcquired,
			},
			wantState:      link.StateConnected,
			wantRetries:    0,
			wantConnectOps: 3,
		},
		{
			description:    "retries exhausted",
			max:            3,
			script:         repeat(link.EventDisconnected, 4),
			wantErr:        link.ErrRetriesExhausted,
			wantState:      link.StateFailed,
			wantRetries:    3,
			wantConnectOps: 4,
		},
		{
			description:    "zero retry budget",
			max:            0,
			script:         repeat(link.EventDisconnected, 1),
			wantErr:        telemd.ErrTransport,
			wantState:      link.StateFailed,
			wantRetries:    0,
			wantConnectOps: 1,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			driver := sim.New(test.script...)
			m := newManager(t, test.max, driver)

			err := m.Connect()

			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Errorf("%v is not %v", err, test.wantErr)
				}
			} else if err != nil {
				t.Fatal(err)
			}
			driver.Drain()

			if got := m.Status(); got != test.wantState {
				t.Errorf("%v != %v", got, test.wantState)
			}
			if got := m.RetryCount(); got != test.wantRetries {
				t.Errorf("%v != %v", got, test.wantRetries)
			}
			if got := driver.Calls().Connect; got != test.wantConnectOps {
				t.Errorf("%v != %v", got, test.wantConnectOps)
			}
		})
	}
}

func TestConnectPassesNetwork(t *testing.T) {
	driver := sim.New(link.EventAddressAcquired)
	m := newManager(t, 1, driver)

	if err := m.Connect(); err != nil {
		t.Fatal(err)
	}

	want := link.Network{SSID: "testnet", Passphrase: "secret", Security: link.SecurityWPA2PSK}
	if got := driver.Network(); !cmp.Equal(got, want) {
		t.Errorf("%v", cmp.Diff(got, want))
	}
}

func TestConnectTimeout(t *testing.T) {
	driver := sim.New()
	m := link.New(link.Config{
		Network:        link.Network{SSID: "silent"},
		MaxRetry:       3,
		ConnectTimeout: 50 * time.Millisecond,
	}, driver)
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	defer m.Cleanup()

	err := m.Connect()

	if !errors.Is(err, telemd.ErrTimeout) {
		t.Errorf("%v is not %v", err, telemd.ErrTimeout)
	}
	if got := m.Status(); got != link.StateFailed {
		t.Errorf("%v != %v", got, link.StateFailed)
	}
}

func TestConnectStartError(t *testing.T) {
	driver := sim.New()
	driver.StartErr = errors.New("radio off")
	m := newManager(t, 3, driver)

	if err := m.Connect(); err == nil {
		t.Fatal("expected error")
	}
	if got := m.Status(); got != link.StateError {
		t.Errorf("%v != %v", got, link.StateError)
	}
}

func TestConnectNotInitialized(t *testing.T) {
	m := link.New(link.Config{}, sim.New())

	if err := m.Connect(); !errors.Is(err, telemd.ErrInvalidState) {
		t.Errorf("%v is not %v", err, telemd.ErrInvalidState)
	}
	if m.IsConnected() {
		t.Error("uninitialized manager reports connected")
	}
}

func TestConnectWhenConnected(t *testing.T) {
	driver := sim.New(link.EventAddressAcquired)
	m := newManager(t, 3, driver)

	if err := m.Connect(); err != nil {
		t.Fatal(err)
	}
	if err := m.Connect(); err != nil {
		t.Fatal(err)
	}
	if got := driver.Calls().Start; got != 1 {
		t.Errorf("%v != 1", got)
	}
}

// A drop after a successful connection draws on a fresh retry budget.
func TestRetryBudgetResetsAfterSuccess(t *testing.T) {
	const max = 3

	driver := sim.New(link.EventDisconnected, link.EventDisconnected, link.EventAddressAcquired)
	m := newManager(t, max, driver)

	if err := m.Connect(); err != nil {
		t.Fatal(err)
	}
	driver.Drain()
	if got := m.RetryCount(); got != 0 {
		t.Fatalf("%v != 0", got)
	}

	// max reconnects are allowed and answered with nothing; one more drop
	// exhausts the budget.
	for i := 0; i < max+1; i++ {
		driver.Emit(link.Event{Type: link.EventDisconnected})
		driver.Drain()
	}

	if got := m.Status(); got != link.StateFailed {
		t.Errorf("%v != %v", got, link.StateFailed)
	}
	if got := m.RetryCount(); got != max {
		t.Errorf("%v != %v", got, max)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	driver := sim.New(link.EventAddressAcquired, link.EventDisconnected, link.EventAddressAcquired)
	m := newManager(t, 3, driver)

	if err := m.Connect(); err != nil {
		t.Fatal(err)
	}

	driver.Emit(link.Event{Type: link.EventDisconnected})
	driver.Drain()

	if got := m.Status(); got != link.StateConnected {
		t.Errorf("%v != %v", got, link.StateConnected)
	}
	if got := m.RetryCount(); got != 0 {
		t.Errorf("%v != 0", got)
	}
}

func TestStaleEventsIgnored(t *testing.T) {
	driver := sim.New()
	m := newManager(t, 3, driver)

	driver.Emit(link.Event{Type: link.EventAddressAcquired})
	driver.Emit(link.Event{Type: link.EventDisconnected})
	driver.Drain()

	if got := m.Status(); got != link.StateDisconnected {
		t.Errorf("%v != %v", got, link.StateDisconnected)
	}
	if got := m.RetryCount(); got != 0 {
		t.Errorf("%v != 0", got)
	}
}

func TestQueries(t *testing.T) {
	driver := sim.New(link.EventAddressAcquired)
	m := newManager(t, 3, driver)

	if _, err := m.SignalStrength(); !errors.Is(err, telemd.ErrNotConnected) {
		t.Errorf("%v is not %v", err, telemd.ErrNotConnected)
	}
	if _, err := m.AddressInfo(); !errors.Is(err, telemd.ErrNotConnected) {
		t.Errorf("%v is not %v", err, telemd.ErrNotConnected)
	}

	if err := m.Connect(); err != nil {
		t.Fatal(err)
	}

	if !m.IsConnected() {
		t.Error("expected connected")
	}
	rssi, err := m.SignalStrength()
	if err != nil {
		t.Fatal(err)
	}
	if rssi != driver.RSSI {
		t.Errorf("%v != %v", rssi, driver.RSSI)
	}
	info, err := m.AddressInfo()
	if err != nil {
		t.Fatal(err)
	}
	if !info.IP.Equal(driver.Address.IP) {
		t.Errorf("%v != %v", info.IP, driver.Address.IP)
	}
}

func TestDisconnect(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		m := newManager(t, 3, sim.New())

		if err := m.Disconnect(); !errors.Is(err, telemd.ErrNotConnected) {
			t.Errorf("%v is not %v", err, telemd.ErrNotConnected)
		}
	})

	t.Run("connected", func(t *testing.T) {
		driver := sim.New(link.EventAddressAcquired)
		m := newManager(t, 3, driver)
		if err := m.Connect(); err != nil {
			t.Fatal(err)
		}

		if err := m.Disconnect(); err != nil {
			t.Fatal(err)
		}
		driver.Drain()

		if got := m.Status(); got != link.StateDisconnected {
			t.Errorf("%v != %v", got, link.StateDisconnected)
		}
		if got := m.RetryCount(); got != 0 {
			t.Errorf("teardown counted as a drop: %v", got)
		}
	})

	t.Run("driver failure keeps state", func(t *testing.T) {
		driver := sim.New(link.EventAddressAcquired)
		m := newManager(t, 3, driver)
		if err := m.Connect(); err != nil {
			t.Fatal(err)
		}
		driver.DisconnectErr = errors.New("busy")

		if err := m.Disconnect(); err == nil {
			t.Fatal("expected error")
		}
		if got := m.Status(); got != link.StateConnected {
			t.Errorf("%v != %v", got, link.StateConnected)
		}
	})
}

func TestCleanup(t *testing.T) {
	driver := sim.New(link.EventAddressAcquired)
	m := link.New(link.Config{Network: link.Network{SSID: "testnet"}, MaxRetry: 1}, driver)
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	if err := m.Connect(); err != nil {
		t.Fatal(err)
	}

	if err := m.Cleanup(); err != nil {
		t.Fatal(err)
	}

	want := sim.Calls{Start: 1, Connect: 1, Disconnect: 1, Stop: 1}
	if got := driver.Calls(); !cmp.Equal(got, want) {
		t.Errorf("%v", cmp.Diff(got, want))
	}
	if got := m.Status(); got != link.StateDisconnected {
		t.Errorf("%v != %v", got, link.StateDisconnected)
	}
	if err := m.Connect(); !errors.Is(err, telemd.ErrInvalidState) {
		t.Errorf("%v is not %v", err, telemd.ErrInvalidState)
	}
	if err := m.Cleanup(); err != nil {
		t.Errorf("second cleanup: %v", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		input link.State
		want  string
	}{
		{input: link.StateDisconnected, want: "disconnected"},
		{input: link.StateConnecting, want: "connecting"},
		{input: link.StateConnected, want: "connected"},
		{input: link.StateFailed, want: "failed"},
		{input: link.StateError, want: "error"},
		{input: link.State(42), want: "unknown(42)"},
	}

	for _, test := range tests {
		t.Run(test.want, func(t *testing.T) {
			if got := test.input.String(); got != test.want {
				t.Errorf("%v != %v", got, test.want)
			}
		})
	}
}

func TestParseSecurity(t *testing.T) {
	tests := []struct {
		input   string
		want    link.Security
		wantErr bool
	}{
		{input: "open", want: link.SecurityOpen},
		{input: "wpa2-psk", want: link.SecurityWPA2PSK},
		{input: "wpa3", want: link.SecurityWPA3SAE},
		{input: "wep", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got, err := link.ParseSecurity(test.input)
			if test.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != test.want {
				t.Errorf("%v != %v", got, test.want)
			}
		})
	}
}
