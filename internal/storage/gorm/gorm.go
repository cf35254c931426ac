// Package gormstorage records sessions in a SQL database through GORM.
// Messages are queued and written in batches by a background writer.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/tilewars/engine/internal/database"
	"github.com/tilewars/engine/internal/model"
	"github.com/tilewars/engine/internal/model/convert"
	"github.com/tilewars/engine/internal/queue"
	"github.com/tilewars/engine/pkg/core"
	"gorm.io/gorm"
)

// DefaultFlushInterval is how often queued messages are written.
const DefaultFlushInterval = time.Second

var (
	// ErrNoSession is returned when recording without a started session.
	ErrNoSession = errors.New("no session in progress")
	// ErrSessionActive is returned when a session starts before the previous one ended.
	ErrSessionActive = errors.New("session already in progress")
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
	// DumpDir, when set on a SQLite database, receives a VACUUM INTO copy
	// named <session id>.db after every session.
	DumpDir string
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps     Dependencies
	log      *slog.Logger
	messages *queue.Queue[model.RecordedMessage]

	mu        sync.Mutex
	sessionID string
	seq       uint

	writeMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		deps:     deps,
		log:      log.With("component", "storage.gorm"),
		messages: queue.New[model.RecordedMessage](),
	}
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend needs a database")
	}
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the DB writer goroutine and writes what is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	<-b.done
	b.stopChan = nil
	return b.flush()
}

func (b *Backend) writeLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.flush(); err != nil {
				b.log.Error("Failed to write messages", "error", err)
			}
		}
	}
}

// flush writes every queued message in one batch.
func (b *Backend) flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	items := b.messages.Drain()
	if len(items) == 0 {
		return nil
	}
	start := time.Now()
	if err := b.deps.DB.CreateInBatches(items, 1000).Error; err != nil {
		return fmt.Errorf("failed to insert %d messages: %w", len(items), err)
	}
	b.log.Debug("Wrote messages", "count", len(items), "duration", time.Since(start))
	return nil
}

// StartSession inserts the session row.
func (b *Backend) StartSession(s core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sessionID != "" {
		return ErrSessionActive
	}
	row := convert.CoreToSession(s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	b.sessionID = s.ID
	b.seq = 0
	return nil
}

// RecordClient inserts a roster entry synchronously; rosters are small.
func (b *Backend) RecordClient(c core.ClientInfo) error {
	b.mu.Lock()
	id := b.sessionID
	b.mu.Unlock()
	if id == "" {
		return ErrNoSession
	}

	row := convert.CoreToClient(id, c)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert client %d: %w", c.ID, err)
	}
	return nil
}

// RecordMessage converts and queues a message.
func (b *Backend) RecordMessage(m core.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sessionID == "" {
		return ErrNoSession
	}
	rec, err := convert.CoreToMessage(b.sessionID, b.seq+1, m)
	if err != nil {
		return err
	}
	b.seq++
	b.messages.Push(rec)
	return nil
}

// EndSession writes the queued messages and stores the end time and final
// state.
func (b *Backend) EndSession(s core.Session) error {
	b.mu.Lock()
	id := b.sessionID
	b.sessionID = ""
	b.mu.Unlock()
	if id == "" {
		return ErrNoSession
	}
	if s.ID != id {
		return fmt.Errorf("ending session %q while recording %q", s.ID, id)
	}

	if err := b.flush(); err != nil {
		return err
	}
	row := convert.CoreToSession(s)
	err := b.deps.DB.Model(&model.Session{}).Where("id = ?", id).Updates(map[string]any{
		"end_time":  row.EndTime,
		"end_clock": row.EndClock,
		"end_hash":  row.EndHash,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	if b.deps.DumpDir != "" && b.deps.DB.Name() == "sqlite" {
		path := filepath.Join(b.deps.DumpDir, id+".db")
		if err := database.DumpToDisk(b.deps.DB, path); err != nil {
			b.log.Error("Error dumping to disk", "path", path, "error", err)
		}
	}
	return nil
}

// ListSessions returns every recorded session ordered by start time.
func (b *Backend) ListSessions() ([]core.Session, error) {
	var rows []model.Session
	if err := b.deps.DB.Order("start_time").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions := make([]core.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, convert.SessionToCore(r))
	}
	return sessions, nil
}

// LoadSession reads a session with its roster and messages in applied order.
func (b *Backend) LoadSession(id string) (core.Replay, error) {
	var row model.Session
	err := b.deps.DB.
		Preload("Clients", func(db *gorm.DB) *gorm.DB { return db.Order("client_id") }).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Replay{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err != nil {
		return core.Replay{}, fmt.Errorf("failed to load session: %w", err)
	}

	r := core.Replay{Session: convert.SessionToCore(row)}
	for _, c := range row.Clients {
		info, err := convert.ClientToCore(c)
		if err != nil {
			return core.Replay{}, err
		}
		r.Clients = append(r.Clients, info)
	}
	for _, m := range row.Messages {
		msg, err := convert.MessageToCore(m)
		if err != nil {
			return core.Replay{}, err
		}
		r.Messages = append(r.Messages, msg)
	}
	return r, nil
}
