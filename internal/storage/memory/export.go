package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pierrec/lz4/v4"
	"github.com/tilewars/engine/pkg/core"
	"github.com/tilewars/engine/pkg/units"
)

// FormatVersion is written into every export.
const FormatVersion = 1

const (
	extJSON = ".json"
	extLZ4  = ".json.lz4"
)

// ReplayExport is the root JSON structure
type ReplayExport struct {
	FormatVersion int           `json:"formatVersion"`
	Session       core.Session  `json:"session"`
	Clients       []ClientJSON  `json:"clients"`
	Messages      []MessageJSON `json:"messages"`
}

// ClientJSON represents a roster entry
type ClientJSON struct {
	ID      uint32   `json:"id"`
	Name    string   `json:"name"`
	AI      bool     `json:"ai,omitempty"`
	Players []uint32 `json:"players"`
}

// MessageJSON represents one accepted message
type MessageJSON struct {
	Client    uint32   `json:"c"`
	Timestamp float64  `json:"t"`
	Action    string   `json:"a,omitempty"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Actors    []uint32 `json:"actors,omitempty"`
	Targets   []uint32 `json:"targets,omitempty"`
}

func toUint32s[T ~uint32](ids []T) []uint32 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}
	return out
}

func fromUint32s[T ~uint32](ids []uint32) []T {
	if len(ids) == 0 {
		return nil
	}
	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = T(id)
	}
	return out
}

func buildExport(r *core.Replay) ReplayExport {
	export := ReplayExport{
		FormatVersion: FormatVersion,
		Session:       r.Session,
		Clients:       make([]ClientJSON, 0, len(r.Clients)),
		Messages:      make([]MessageJSON, 0, len(r.Messages)),
	}
	for _, c := range r.Clients {
		export.Clients = append(export.Clients, ClientJSON{
			ID:      uint32(c.ID),
			Name:    c.Name,
			AI:      c.AI,
			Players: toUint32s(c.Players),
		})
	}
	for _, m := range r.Messages {
		export.Messages = append(export.Messages, MessageJSON{
			Client:    uint32(m.Client),
			Timestamp: m.Timestamp.Value(),
			Action:    string(m.Action),
			X:         m.Position.X,
			Y:         m.Position.Y,
			Actors:    toUint32s(m.Actors),
			Targets:   toUint32s(m.Targets),
		})
	}
	return export
}

// Replay converts the export back into a core.Replay.
func (e ReplayExport) Replay() core.Replay {
	r := core.Replay{Session: e.Session}
	for _, c := range e.Clients {
		r.Clients = append(r.Clients, core.ClientInfo{
			ID:           core.ClientID(c.ID),
			Name:         c.Name,
			AI:           c.AI,
			Players:      fromUint32s[core.PlayerID](c.Players),
			ReadyToInit:  true,
			ReadyToStart: true,
		})
	}
	for _, m := range e.Messages {
		r.Messages = append(r.Messages, core.Message{
			Client:    core.ClientID(m.Client),
			Timestamp: units.Of[units.Time](m.Timestamp),
			Action:    core.ActionID(m.Action),
			Position:  units.Vec[units.Position](m.X, m.Y),
			Actors:    fromUint32s[core.ObjectID](m.Actors),
			Targets:   fromUint32s[core.ObjectID](m.Targets),
		})
	}
	return r
}

// exportJSON writes the session to <outputDir>/<session id>.json, lz4
// compressed when configured.
func (b *Backend) exportJSON(r *core.Replay) error {
	export := buildExport(r)

	ext := extJSON
	if b.cfg.CompressOutput {
		ext = extLZ4
	}
	outputPath := filepath.Join(b.cfg.OutputDir, r.Session.ID+ext)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writeExport(outputPath, export, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func writeExport(path string, data ReplayExport, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var zw *lz4.Writer
	if compress {
		zw = lz4.NewWriter(f)
		w = zw
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode replay: %w", err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to flush lz4 stream: %w", err)
		}
	}
	return f.Sync()
}

// ReadFile decodes a replay written by the memory backend. Files ending in
// .lz4 are decompressed.
func ReadFile(path string) (core.Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.Replay{}, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".lz4") {
		r = lz4.NewReader(f)
	}
	var export ReplayExport
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return core.Replay{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if export.FormatVersion != FormatVersion {
		return core.Replay{}, fmt.Errorf("%s: unsupported format version %d", path, export.FormatVersion)
	}
	return export.Replay(), nil
}

// LoadSession reads the exported replay for a session id.
func (b *Backend) LoadSession(id string) (core.Replay, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return core.Replay{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	for _, ext := range []string{extLZ4, extJSON} {
		r, err := ReadFile(filepath.Join(b.cfg.OutputDir, id+ext))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return r, err
	}
	return core.Replay{}, fmt.Errorf("%w: %q", ErrNotFound, id)
}

// ListSessions returns every exported session ordered by start time.
// Unreadable files are skipped.
func (b *Backend) ListSessions() ([]core.Session, error) {
	entries, err := os.ReadDir(b.cfg.OutputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []core.Session
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, extJSON) || strings.HasSuffix(name, extLZ4)) {
			continue
		}
		r, err := ReadFile(filepath.Join(b.cfg.OutputDir, name))
		if err != nil {
			continue
		}
		sessions = append(sessions, r.Session)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
	return sessions, nil
}
