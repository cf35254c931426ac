// Package monitor reports the server status periodically to the log, a JSON
// status file and InfluxDB.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/tilewars/engine/internal/connection"
)

// DefaultInterval is used when Dependencies.Interval is not set.
const DefaultInterval = 5 * time.Second

// Measurement is the InfluxDB measurement status points are written to.
const Measurement = "server_status"

// StatusSource is implemented by connection.Server.
type StatusSource interface {
	Status() connection.Status
}

// PointWriter is implemented by influx.Manager.
type PointWriter interface {
	WritePoint(p *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source     StatusSource
	Logger     *slog.Logger
	Influx     PointWriter
	Interval   time.Duration
	StatusFile string
	Now        func() time.Time
}

// Service manages status monitoring
type Service struct {
	deps Dependencies
	log  *slog.Logger

	mu        sync.RWMutex
	isRunning bool
	last      connection.Status
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		deps: deps,
		log:  log.With("component", "monitor"),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot returns the last reported status.
func (s *Service) Snapshot() connection.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Report takes one status sample and sends it to every configured sink.
func (s *Service) Report() connection.Status {
	st := s.deps.Source.Status()
	s.mu.Lock()
	s.last = st
	s.mu.Unlock()

	s.log.Info("Server status",
		"state", st.State.String(),
		"clock", st.Clock,
		"clients", len(st.Clients),
		"objects", st.Objects,
		"pending", st.PendingMessages,
		"hash", st.StateHash)

	if s.deps.StatusFile != "" {
		if err := writeStatusFile(s.deps.StatusFile, st); err != nil {
			s.log.Error("Error writing status file", "error", err)
		}
	}
	if s.deps.Influx != nil {
		if err := s.deps.Influx.WritePoint(StatusPoint(st, s.deps.Now())); err != nil {
			s.log.Error("Error writing status point", "error", err)
		}
	}
	return st
}

// StatusPoint converts a status sample into an InfluxDB point.
func StatusPoint(st connection.Status, at time.Time) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(Measurement).
		AddTag("server", st.Name).
		AddTag("state", st.State.String()).
		AddField("clock", st.Clock).
		AddField("clients", len(st.Clients)).
		AddField("objects", st.Objects).
		AddField("pending_messages", st.PendingMessages).
		SetTime(at)
	if st.Session != "" {
		p.AddTag("session", st.Session)
	}
	if st.StateHash != "" {
		p.AddField("state_hash", st.StateHash)
	}
	return p
}

// writeStatusFile replaces path atomically with the JSON status.
func writeStatusFile(path string, st connection.Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	if s.deps.Source == nil {
		return fmt.Errorf("monitor needs a status source")
	}
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.log.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

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
	}()

	return nil
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
