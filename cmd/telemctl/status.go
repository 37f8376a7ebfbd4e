package main

import (
	"fmt"
	"os"

	systemd "github.com/coreos/go-systemd/v22/dbus"
	"github.com/devicelink/telemd"
	"github.com/devicelink/telemd/internal/config"
	"github.com/devicelink/telemd/internal/storage"
)

func unitName() string {
	return telemd.LongName + ".service"
}

func getStatus(conf config.Config) (string, error) {
	var status string

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	status += fmt.Sprintf("Telemetry status for %s:\n\n", hostname)

	stateDir := conf.StateDir
	if stateDir == "" {
		stateDir = telemd.StateDir
	}
	state, err := storage.Load(stateDir)
	if err != nil {
		status += fmt.Sprintf("⛔️ error: Unable to read device ID: %s\n", err)
	} else {
		status += fmt.Sprintf("Device ID: %v\n", state.DeviceID)
	}
	if conf.SSID != "" {
		status += fmt.Sprintf("Network: %v (%v)\n", conf.SSID, conf.Security)
	}
	if conf.Endpoint != "" {
		status += fmt.Sprintf("Endpoint: %v\n", conf.Endpoint)
	}
	status += fmt.Sprintln()

	conn, err := systemd.NewSystemConnection()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	properties, err := conn.GetUnitProperties(unitName())
	if err != nil {
		return "", err
	}
	activeState, _ := properties["ActiveState"].(string)
	if activeState == "active" {
		status += fmt.Sprintln("✅ Telemetry service is active.")
	} else {
		status += fmt.Sprintf("❌ Telemetry service is %v.\n", activeState)
	}

	return status, nil
}

func activate() error {
	conn, err := systemd.NewSystemConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, _, err := conn.EnableUnitFiles([]string{unitName()}, false, true); err != nil {
		return fmt.Errorf("cannot enable %v: %w", unitName(), err)
	}

	done := make(chan string)
	if _, err := conn.StartUnit(unitName(), "replace", done); err != nil {
		return fmt.Errorf("cannot start %v: %w", unitName(), err)
	}
	if result := <-done; result != "done" {
		return fmt.Errorf("cannot start %v: job %v", unitName(), result)
	}

	return nil
}

func deactivate() error {
	conn, err := systemd.NewSystemConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	done := make(chan string)
	if _, err := conn.StopUnit(unitName(), "replace", done); err != nil {
		return fmt.Errorf("cannot stop %v: %w", unitName(), err)
	}
	<-done

	if _, err := conn.DisableUnitFiles([]string{unitName()}, false); err != nil {
		return fmt.Errorf("cannot disable %v: %w", unitName(), err)
	}

	return nil
}
