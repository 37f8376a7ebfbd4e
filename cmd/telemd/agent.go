package main

import (
	"fmt"
	"os"
	"time"

	"git.sr.ht/~spc/go-log"
	"github.com/devicelink/telemd/internal/delivery"
	"github.com/devicelink/telemd/internal/link"
	"github.com/devicelink/telemd/internal/sensor"
)

type linkManager interface {
	IsConnected() bool
	Status() link.State
	Connect() error
}

type poster interface {
	Post(p delivery.Payload) (delivery.Outcome, error)
	Stats() delivery.Stats
}

type reader interface {
	Read() (sensor.Reading, error)
}

// agent posts a sensor reading on every tick while the link is up.
type agent struct {
	link       linkManager
	client     poster
	sensors    reader
	statsEvery int

	ticks int
}

// run ticks every interval until a value is received on quit.
func (a *agent) run(interval time.Duration, quit <-chan os.Signal) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infof("posting telemetry every %v", interval)

	for {
		select {
		case s := <-quit:
			log.Infof("received %v", s)
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

// tick performs one post cycle. It reports whether a request was sent.
func (a *agent) tick() bool {
	a.ticks++

	if !a.link.IsConnected() {
		state := a.link.Status()
		log.Warnf("link is %v, skipping post", state)

		// Failed and errored attempts are retried on the next tick; anything
		// else is still in progress on the driver's side.
		if state == link.StateFailed || state == link.StateError {
			if err := a.link.Connect(); err != nil {
				log.Errorf("cannot reconnect: %v", err)
			}
		}
		return false
	}

	reading, err := a.sensors.Read()
	if err != nil {
		log.Errorf("cannot read sensors: %v", err)
		return false
	}

	outcome, err := a.client.Post(delivery.Payload{
		Temperature: reading.Temperature,
		Uptime:      reading.Uptime,
	})
	if err != nil {
		log.Errorf("cannot post telemetry: %v", err)
	} else {
		log.Infof("posted telemetry: temperature=%.1f uptime=%v status=%v",
			reading.Temperature, reading.Uptime, outcome.Response.StatusCode)
	}

	if a.statsEvery > 0 && a.ticks%a.statsEvery == 0 {
		log.Info(formatStats(a.client.Stats()))
	}

	return true
}

func formatStats(s delivery.Stats) string {
	return fmt.Sprintf("requests: total=%v successful=%v failed=%v timeouts=%v network-errors=%v last-status=%v",
		s.Total, s.Successful, s.Failed, s.Timeouts, s.NetworkErrors, s.LastStatusCode)
}
