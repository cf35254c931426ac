package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&RecordedClient{},
	&RecordedMessage{},
}

// SessionSetup names the content a session was played with.
type SessionSetup struct {
	Map      string `json:"map"`
	TechTree string `json:"techtree"`
}

// Session is one recorded game.
type Session struct {
	ID        string                           `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time                        `json:"createdAt"`
	Name      string                           `json:"name" gorm:"size:127"`
	Version   string                           `json:"version" gorm:"size:32"`
	Setup     datatypes.JSONType[SessionSetup] `json:"setup"`
	Digest    string                           `json:"digest" gorm:"size:64;index:idx_session_digest"`
	StartTime time.Time                        `json:"startTime" gorm:"index:idx_session_start"`
	EndTime   sql.NullTime                     `json:"endTime"`
	EndClock  float64                          `json:"endClock"`
	EndHash   string                           `json:"endHash" gorm:"size:64"`
	Clients   []RecordedClient                 `json:"clients" gorm:"foreignKey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Messages  []RecordedMessage                `json:"-" gorm:"foreignKey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*Session) TableName() string {
	return "sessions"
}

// RecordedClient is a roster entry as it stood when the game started.
type RecordedClient struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement"`
	SessionID string         `json:"sessionId" gorm:"size:36;index:idx_client_session_id"`
	ClientID  uint32         `json:"clientId"`
	Name      string         `json:"name" gorm:"size:127"`
	AI        bool           `json:"ai"`
	Players   datatypes.JSON `json:"players" gorm:"default:'[]'"`
}

func (*RecordedClient) TableName() string {
	return "recorded_clients"
}

// RecordedMessage is one accepted message with its corrected timestamp.
// Seq preserves the order the server applied messages in.
type RecordedMessage struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement"`
	SessionID string         `json:"sessionId" gorm:"size:36;index:idx_message_session_seq,priority:1"`
	Seq       uint           `json:"seq" gorm:"index:idx_message_session_seq,priority:2"`
	Client    uint32         `json:"client"`
	Timestamp float64        `json:"timestamp"`
	Action    string         `json:"action" gorm:"size:64"`
	Position  geom.Point     `json:"position"`
	Actors    datatypes.JSON `json:"actors" gorm:"default:'[]'"`
	Targets   datatypes.JSON `json:"targets" gorm:"default:'[]'"`
}

func (*RecordedMessage) TableName() string {
	return "recorded_messages"
}
