package delivery

import (
	"encoding/json"
	"fmt"

	"github.com/devicelink/telemd"
)

// Wire field names.
const (
	FieldTemperature = "cpu_temp"
	FieldUptime      = "sys_uptime"
)

// Payload is a single telemetry sample.
type Payload struct {
	Temperature float32 `json:"cpu_temp"`
	Uptime      string  `json:"sys_uptime"`
}

// Marshal encodes p as a JSON object. Temperatures that are not finite cannot
// be encoded.
func Marshal(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal payload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot marshal payload: empty result: %w", telemd.ErrInvalidArgument)
	}
	return data, nil
}

// Valid reports whether text is well-formed JSON.
func Valid(text []byte) bool {
	return json.Valid(text)
}

// testPayload is posted by TestConnectivity.
var testPayload = []byte(`{"test":"connectivity"}`)
