// Package core defines the identifiers and wire-level records shared by the
// simulation, the network protocol and the replay store.
package core

import (
	"slices"
	"time"

	"github.com/tilewars/engine/pkg/units"
)

// ClientID identifies a network participant. Zero means "no client".
type ClientID uint32

// PlayerID identifies a faction. Players are numbered from 1.
type PlayerID uint32

// ObjectID identifies a simulated object. Zero is never a valid object.
type ObjectID uint32

// ActionID names an object action in the tech tree.
type ActionID string

// Built-in actions that need no catalog entry.
const (
	ActionMove   ActionID = "MOVE"
	ActionDelete ActionID = "DELETE"
)

// Message is a timestamped, client-attributed request to start or alter a task.
type Message struct {
	Client    ClientID
	Timestamp units.Scalar[units.Time]
	Action    ActionID
	Position  units.Vector2[units.Position]
	Actors    []ObjectID
	Targets   []ObjectID
}

// Heartbeat builds the timestamp-only message the server sends after every batch.
func Heartbeat(at units.Scalar[units.Time]) Message {
	return Message{Timestamp: at}
}

// IsHeartbeat reports whether m carries only a timestamp.
func (m Message) IsHeartbeat() bool {
	return m.Client == 0 && m.Action == "" && len(m.Actors) == 0 && len(m.Targets) == 0
}

// ClientInfo is one roster entry.
type ClientInfo struct {
	ID           ClientID
	Name         string
	AI           bool
	Players      []PlayerID
	ReadyToInit  bool
	ReadyToStart bool
}

// Controls reports whether the client commands player p.
func (c *ClientInfo) Controls(p PlayerID) bool {
	_, found := slices.BinarySearch(c.Players, p)
	return found
}

// AddPlayer inserts p keeping Players sorted and free of duplicates.
func (c *ClientInfo) AddPlayer(p PlayerID) {
	i, found := slices.BinarySearch(c.Players, p)
	if found {
		return
	}
	c.Players = slices.Insert(c.Players, i, p)
}

// Clone returns a deep copy.
func (c ClientInfo) Clone() ClientInfo {
	c.Players = slices.Clone(c.Players)
	return c
}

// Session describes one recorded game.
type Session struct {
	ID        string
	Name      string
	Version   string
	MapPath   string
	TechPath  string
	Digest    string // blake3 of the content files, hex
	StartTime time.Time
	EndTime   time.Time

	// Game clock in seconds and state hash when the session ended.
	EndClock float64
	EndHash  string
}

// Replay is a recorded session with its roster and every accepted message in
// the order the server applied them.
type Replay struct {
	Session  Session
	Clients  []ClientInfo
	Messages []Message
}

// End returns the timestamp of the last recorded message, or zero.
func (r *Replay) End() units.Scalar[units.Time] {
	if len(r.Messages) == 0 {
		return units.Scalar[units.Time]{}
	}
	return r.Messages[len(r.Messages)-1].Timestamp
}
