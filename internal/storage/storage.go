// internal/storage/storage.go
package storage

import "github.com/tilewars/engine/pkg/core"

// Recorder receives a session while it is played.
type Recorder interface {
	StartSession(s core.Session) error
	RecordClient(c core.ClientInfo) error
	RecordMessage(m core.Message) error
	EndSession(s core.Session) error
}

// Reader gives access to recorded sessions.
type Reader interface {
	ListSessions() ([]core.Session, error)
	LoadSession(id string) (core.Replay, error)
}

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	Recorder
	Reader
}

// Uploadable is an optional interface for storage backends that produce
// a standalone replay file.
type Uploadable interface {
	GetExportedFilePath() string
}
