// Package sensor produces the readings posted as telemetry: a simulated CPU
// temperature and the agent's uptime.
package sensor

import (
	"fmt"
	"math"
	"time"

	"git.sr.ht/~spc/go-log"
	"github.com/devicelink/telemd"
)

// Temperature simulation parameters, in degrees Celsius and seconds.
const (
	TemperatureBase      = 28.0
	TemperatureVariation = 5.0
	TemperaturePeriod    = 300.0
	TemperatureMin       = 20.0
	TemperatureMax       = 45.0
)

// UptimeDisabled is the uptime reported while the uptime sensor is disabled.
const UptimeDisabled = "DISABLED"

// Type identifies a single sensor.
type Type int

const (
	TypeTemperature Type = iota
	TypeUptime
	typeCount
)

func (t Type) String() string {
	switch t {
	case TypeTemperature:
		return "cpu-temp"
	case TypeUptime:
		return "uptime"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Reading is one sample of every enabled sensor.
type Reading struct {
	Temperature float32
	Uptime      string
	Timestamp   time.Time
	Valid       bool
}

// Status describes the service and its counters.
type Status struct {
	Initialized bool
	Enabled     map[Type]bool
	ReadCount   uint32
	ErrorCount  uint32
	LastRead    time.Time
}

// Service reads the simulated sensors. It is used from a single goroutine.
type Service struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	initialized bool
	start       time.Time
	enabled     [typeCount]bool
	readCount   uint32
	errorCount  uint32
	lastRead    time.Time
}

// Init records the start time and enables every sensor.
func (s *Service) Init() error {
	if s.initialized {
		log.Warn("sensor service already initialized")
		return nil
	}
	if s.Now == nil {
		s.Now = time.Now
	}

	s.start = s.Now()
	for i := range s.enabled {
		s.enabled[i] = true
	}
	s.readCount = 0
	s.errorCount = 0
	s.lastRead = time.Time{}
	s.initialized = true

	log.Debugf("sensor service initialized: %v=%v %v=%v",
		TypeTemperature, s.enabled[TypeTemperature], TypeUptime, s.enabled[TypeUptime])
	return nil
}

// Read samples every enabled sensor. Disabled sensors read as zero and
// UptimeDisabled.
func (s *Service) Read() (Reading, error) {
	if !s.initialized {
		return Reading{}, fmt.Errorf("cannot read sensors: %w", telemd.ErrInvalidState)
	}

	now := s.Now()
	r := Reading{
		Timestamp: now,
		Valid:     true,
	}
	elapsed := now.Sub(s.start)

	if s.enabled[TypeTemperature] {
		r.Temperature = Temperature(elapsed)
	}
	if s.enabled[TypeUptime] {
		r.Uptime = FormatUptime(elapsed)
	} else {
		r.Uptime = UptimeDisabled
	}

	s.readCount++
	s.lastRead = now
	log.Tracef("sensor read: temperature=%.1f uptime=%v", r.Temperature, r.Uptime)

	return r, nil
}

// ReadSingle samples one sensor. Only the field belonging to t is set.
func (s *Service) ReadSingle(t Type) (Reading, error) {
	if !s.initialized {
		return Reading{}, fmt.Errorf("cannot read sensor: %w", telemd.ErrInvalidState)
	}
	if t < 0 || t >= typeCount {
		return Reading{}, fmt.Errorf("cannot read sensor %v: %w", t, telemd.ErrNotSupported)
	}
	if !s.enabled[t] {
		return Reading{}, fmt.Errorf("cannot read sensor %v: disabled: %w", t, telemd.ErrInvalidState)
	}

	now := s.Now()
	r := Reading{Timestamp: now, Valid: true}
	switch t {
	case TypeTemperature:
		r.Temperature = Temperature(now.Sub(s.start))
	case TypeUptime:
		r.Uptime = FormatUptime(now.Sub(s.start))
	}
	return r, nil
}

// Enable turns a sensor on or off.
func (s *Service) Enable(t Type, enable bool) error {
	if t < 0 || t >= typeCount {
		return fmt.Errorf("cannot enable sensor %v: %w", t, telemd.ErrInvalidArgument)
	}
	s.enabled[t] = enable
	log.Infof("sensor %v enabled: %v", t, enable)
	return nil
}

// Status returns a snapshot of the service state.
func (s *Service) Status() Status {
	enabled := make(map[Type]bool, typeCount)
	for i, v := range s.enabled {
		enabled[Type(i)] = v
	}
	return Status{
		Initialized: s.initialized,
		Enabled:     enabled,
		ReadCount:   s.readCount,
		ErrorCount:  s.errorCount,
		LastRead:    s.lastRead,
	}
}

// ResetStats zeroes the read counters.
func (s *Service) ResetStats() error {
	if !s.initialized {
		return fmt.Errorf("cannot reset sensor statistics: %w", telemd.ErrInvalidState)
	}
	s.readCount = 0
	s.errorCount = 0
	s.lastRead = time.Time{}
	return nil
}

// Cleanup disables every sensor and resets the service.
func (s *Service) Cleanup() error {
	if !s.initialized {
		return nil
	}
	now := s.Now
	*s = Service{Now: now}
	log.Debug("sensor service cleanup completed")
	return nil
}

// Temperature returns the simulated CPU temperature after elapsed time.
func Temperature(elapsed time.Duration) float32 {
	t := int64(elapsed / time.Second)

	variation := TemperatureVariation * math.Sin(float64(t)*2*math.Pi/TemperaturePeriod)
	noise := float64(t%17)*0.1 - 0.8

	temp := TemperatureBase + variation + noise
	if temp < TemperatureMin {
		temp = TemperatureMin
	}
	if temp > TemperatureMax {
		temp = TemperatureMax
	}
	return float32(temp)
}

// FormatUptime formats d as "<H>h <M>m <S>s".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%dh %dm %ds", secs/3600, (secs%3600)/60, secs%60)
}
