// internal/storage/factory.go
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/tilewars/engine/internal/config"
	"github.com/tilewars/engine/internal/database"
	gormstorage "github.com/tilewars/engine/internal/storage/gorm"
	"github.com/tilewars/engine/internal/storage/memory"
	"github.com/tilewars/engine/pkg/core"
)

// ErrDisabled is returned by NewBackend when recording is turned off.
var ErrDisabled = errors.New("storage disabled")

// Dependencies holds what the backends need beyond their own config.
type Dependencies struct {
	DB       config.DBConfig
	Logger   *slog.Logger
	DBLogger zerolog.Logger
}

// NewBackend creates a storage backend based on configuration. The backend
// is not initialised.
func NewBackend(cfg config.StorageConfig, deps Dependencies) (Backend, error) {
	switch cfg.Type {
	case "", "none":
		return nil, ErrDisabled
	case "memory":
		return memory.New(cfg.Memory), nil
	case "sqlite", "postgres":
		m := database.NewManager(deps.DBLogger)
		if err := m.Connect(cfg, deps.DB); err != nil {
			return nil, fmt.Errorf("%s backend: %w", cfg.Type, err)
		}
		return &managed{
			Backend: gormstorage.New(gormstorage.Dependencies{
				DB:      m.DB,
				Logger:  deps.Logger,
				DumpDir: cfg.SQLite.DumpDir,
			}),
			manager: m,
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// managed closes the database connection after the GORM backend.
type managed struct {
	*gormstorage.Backend
	manager *database.Manager
}

func (m *managed) Close() error {
	return errors.Join(m.Backend.Close(), m.manager.Close())
}

// NewReader opens recorded sessions for reading. A path ending in .db is
// opened as a SQLite database. Any other path is a replay directory: its
// exported files are read, and so is every SQLite dump next to them. An
// empty path falls back to the configured backend.
func NewReader(path string, cfg config.StorageConfig, deps Dependencies) (Reader, func() error, error) {
	switch {
	case path == "":
		b, err := NewBackend(cfg, deps)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case filepath.Ext(path) == ".db":
		return openSQLiteReader(path, deps)
	}

	r := readers{memory.New(config.MemoryConfig{OutputDir: path})}
	closers := []func() error{}
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	dumps, err := database.BackupPaths(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, err
	}
	for _, dump := range dumps {
		dr, c, err := openSQLiteReader(dump, deps)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("%s: %w", dump, err)
		}
		r = append(r, dr)
		closers = append(closers, c)
	}
	if len(r) == 1 {
		return r[0], closeAll, nil
	}
	return r, closeAll, nil
}

func openSQLiteReader(path string, deps Dependencies) (Reader, func() error, error) {
	b, err := NewBackend(config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: path}}, deps)
	if err != nil {
		return nil, nil, err
	}
	return b, b.Close, nil
}

// readers merges several sources. Sessions are listed by start time and
// loaded from the first source that has them.
type readers []Reader

func (rs readers) ListSessions() ([]core.Session, error) {
	seen := make(map[string]bool)
	var out []core.Session
	for _, r := range rs {
		sessions, err := r.ListSessions()
		if err != nil {
			return nil, err
		}
		for _, s := range sessions {
			if !seen[s.ID] {
				seen[s.ID] = true
				out = append(out, s)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (rs readers) LoadSession(id string) (core.Replay, error) {
	var errs []error
	for _, r := range rs {
		replay, err := r.LoadSession(id)
		if err == nil {
			return replay, nil
		}
		errs = append(errs, err)
	}
	return core.Replay{}, errors.Join(errs...)
}
