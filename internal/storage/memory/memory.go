// Package memory records sessions in memory and exports each finished session
// as a JSON replay file.
package memory

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/tilewars/engine/internal/config"
	"github.com/tilewars/engine/pkg/core"
)

var (
	// ErrNoSession is returned when recording without a started session.
	ErrNoSession = errors.New("no session in progress")
	// ErrSessionActive is returned when a session starts before the previous one ended.
	ErrSessionActive = errors.New("session already in progress")
	// ErrNotFound is returned when no replay file exists for a session id.
	ErrNotFound = errors.New("replay not found")
)

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg    config.MemoryConfig
	replay *core.Replay

	lastExportPath string
	mu             sync.Mutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init makes sure the output directory exists.
func (b *Backend) Init() error {
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// Close discards an unfinished session.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replay = nil
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(s core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.replay != nil {
		return ErrSessionActive
	}
	b.replay = &core.Replay{Session: s}
	return nil
}

// RecordClient adds a roster entry.
func (b *Backend) RecordClient(c core.ClientInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.replay == nil {
		return ErrNoSession
	}
	b.replay.Clients = append(b.replay.Clients, c.Clone())
	return nil
}

// RecordMessage appends an accepted message.
func (b *Backend) RecordMessage(m core.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.replay == nil {
		return ErrNoSession
	}
	m.Actors = slices.Clone(m.Actors)
	m.Targets = slices.Clone(m.Targets)
	b.replay.Messages = append(b.replay.Messages, m)
	return nil
}

// EndSession finalizes and exports the session data. s carries the end
// time and final state of the session started last.
func (b *Backend) EndSession(s core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.replay == nil {
		return ErrNoSession
	}
	if s.ID != b.replay.Session.ID {
		return fmt.Errorf("ending session %q while recording %q", s.ID, b.replay.Session.ID)
	}
	b.replay.Session = s
	err := b.exportJSON(b.replay)
	b.replay = nil
	return err
}

// GetExportedFilePath returns the path of the last exported replay.
func (b *Backend) GetExportedFilePath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastExportPath
}
