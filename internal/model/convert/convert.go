// Package convert provides functions to convert GORM models to core models
package convert

import (
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/tilewars/engine/internal/model"
	"github.com/tilewars/engine/pkg/core"
	"github.com/tilewars/engine/pkg/units"
)

// pointToPosition converts a geom.Point to a map position. An empty point
// maps to the origin.
func pointToPosition(p geom.Point) units.Vector2[units.Position] {
	coord, ok := p.Coordinates()
	if !ok {
		return units.Vector2[units.Position]{}
	}
	return units.Vec[units.Position](coord.XY.X, coord.XY.Y)
}

func decodeIDs[T ~uint32](raw []byte) ([]T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ids []T
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}

// SessionToCore converts a GORM Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	setup := s.Setup.Data()
	out := core.Session{
		ID:        s.ID,
		Name:      s.Name,
		Version:   s.Version,
		MapPath:   setup.Map,
		TechPath:  setup.TechTree,
		Digest:    s.Digest,
		StartTime: s.StartTime,
		EndClock:  s.EndClock,
		EndHash:   s.EndHash,
	}
	if s.EndTime.Valid {
		out.EndTime = s.EndTime.Time
	}
	return out
}

// ClientToCore converts a GORM RecordedClient to a core.ClientInfo. Ready
// flags are not recorded; every recorded client was ready when play began.
func ClientToCore(c model.RecordedClient) (core.ClientInfo, error) {
	players, err := decodeIDs[core.PlayerID](c.Players)
	if err != nil {
		return core.ClientInfo{}, fmt.Errorf("client %d players: %w", c.ClientID, err)
	}
	return core.ClientInfo{
		ID:           core.ClientID(c.ClientID),
		Name:         c.Name,
		AI:           c.AI,
		Players:      players,
		ReadyToInit:  true,
		ReadyToStart: true,
	}, nil
}

// MessageToCore converts a GORM RecordedMessage to a core.Message.
func MessageToCore(m model.RecordedMessage) (core.Message, error) {
	actors, err := decodeIDs[core.ObjectID](m.Actors)
	if err != nil {
		return core.Message{}, fmt.Errorf("message %d actors: %w", m.Seq, err)
	}
	targets, err := decodeIDs[core.ObjectID](m.Targets)
	if err != nil {
		return core.Message{}, fmt.Errorf("message %d targets: %w", m.Seq, err)
	}
	return core.Message{
		Client:    core.ClientID(m.Client),
		Timestamp: units.Of[units.Time](m.Timestamp),
		Action:    core.ActionID(m.Action),
		Position:  pointToPosition(m.Position),
		Actors:    actors,
		Targets:   targets,
	}, nil
}
