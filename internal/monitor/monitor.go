// Package monitor periodically reports engine status to the log, a status
// file and InfluxDB.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/hephaestus-engine/hephaestus/internal/engine"
	"github.com/hephaestus-engine/hephaestus/internal/view"
)

// Measurement is the InfluxDB measurement of engine status points.
const Measurement = "engine_performance"

// StatusSource provides engine status. *engine.Engine satisfies it.
type StatusSource interface {
	Status() engine.Status
}

// PointWriter accepts InfluxDB points. *influx.Manager satisfies it.
type PointWriter interface {
	WritePoint(p *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Engine   StatusSource
	Influx   PointWriter // optional
	Logger   *slog.Logger
	Interval time.Duration
	// StatusFile is rewritten with the latest report every interval when set.
	StatusFile string
	Protocol   string
}

// Report is one status sample.
type Report struct {
	Time          time.Time `json:"time"`
	Tick          uint64    `json:"tick"`
	LastTickMs    float64   `json:"lastTickMs"`
	Models        int       `json:"models"`
	Views         int       `json:"views"`
	Playing       int       `json:"playing"`
	Viewers       int       `json:"viewers"`
	Subscriptions int       `json:"subscriptions"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = 30 * time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Sample builds a report from the engine's current status.
func (s *Service) Sample() Report {
	st := s.deps.Engine.Status()
	r := Report{
		Time:          time.Now().UTC(),
		Tick:          st.Tick,
		LastTickMs:    float64(st.LastTick.Microseconds()) / 1000,
		Models:        len(st.Models),
		Views:         len(st.Views),
		Viewers:       st.Viewers,
		Subscriptions: st.Subscriptions,
	}
	for _, v := range st.Views {
		if v.State == view.Playing {
			r.Playing++
		}
	}
	return r
}

// Point converts r to an InfluxDB point.
func (s *Service) Point(r Report) *influxdb2_write.Point {
	tags := map[string]string{}
	if s.deps.Protocol != "" {
		tags["protocol"] = s.deps.Protocol
	}
	return influxdb2_write.NewPoint(Measurement, tags, map[string]any{
		"tick":          int64(r.Tick),
		"last_tick_ms":  r.LastTickMs,
		"models":        r.Models,
		"views":         r.Views,
		"playing":       r.Playing,
		"viewers":       r.Viewers,
		"subscriptions": r.Subscriptions,
	}, r.Time)
}

// Report samples once and delivers the result to every sink.
func (s *Service) Report() Report {
	r := s.Sample()

	s.deps.Logger.Info("Engine status",
		"tick", r.Tick,
		"lastTickMs", r.LastTickMs,
		"views", r.Views,
		"playing", r.Playing,
		"viewers", r.Viewers,
		"subscriptions", r.Subscriptions,
	)

	if s.deps.StatusFile != "" {
		if err := writeStatusFile(s.deps.StatusFile, r); err != nil {
			s.deps.Logger.Error("Error writing status file", "path", s.deps.StatusFile, "error", err)
		}
	}

	if s.deps.Influx != nil {
		if err := s.deps.Influx.WritePoint(s.Point(r)); err != nil {
			s.deps.Logger.Error("Error writing status point", "error", err)
		}
	}
	return r
}

func writeStatusFile(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Start starts the status monitor goroutine
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)

		s.deps.Logger.Debug("Starting status monitor", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Report()
			}
		}
	}(s.stopChan, s.done)
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
}
