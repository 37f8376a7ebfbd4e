// Package storage prepares the agent's persistent state directory.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"git.sr.ht/~spc/go-log"
	"github.com/google/uuid"
)

// DeviceIDFile is the name of the file holding the device identifier.
const DeviceIDFile = "device-id"

// State describes the bootstrapped state directory.
type State struct {
	// Dir is the state directory.
	Dir string

	// DeviceID identifies this device. It is created on first boot and
	// never changes afterwards.
	DeviceID string
}

// Bootstrap creates dir if needed and loads the device ID, creating one if
// none exists yet.
func Bootstrap(dir string) (*State, error) {
	if dir == "" {
		return nil, fmt.Errorf("cannot bootstrap storage: empty state directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create directory: %w", err)
	}

	file := filepath.Join(dir, DeviceIDFile)
	id, err := readDeviceID(file)
	if errors.Is(err, fs.ErrNotExist) {
		id, err = createDeviceID(file)
	}
	if err != nil {
		return nil, err
	}
	log.Debugf("device-id: %v", id)

	return &State{
		Dir:      dir,
		DeviceID: id,
	}, nil
}

// Load reads the state in dir without creating anything.
func Load(dir string) (*State, error) {
	id, err := readDeviceID(filepath.Join(dir, DeviceIDFile))
	if err != nil {
		return nil, fmt.Errorf("cannot read device-id: %w", err)
	}
	return &State{
		Dir:      dir,
		DeviceID: id,
	}, nil
}

func readDeviceID(file string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}

	id, err := uuid.ParseBytes(bytes.TrimSpace(data))
	if err != nil {
		return "", fmt.Errorf("cannot parse device-id file %v: %w", file, err)
	}
	return id.String(), nil
}

// createDeviceID generates a random identifier and writes it to file.
func createDeviceID(file string) (string, error) {
	id := uuid.New().String()

	if err := os.WriteFile(file, []byte(id), 0600); err != nil {
		return "", fmt.Errorf("cannot write device-id: %w", err)
	}
	log.Infof("created device-id %v", id)

	return id, nil
}
