package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/tilewars/engine/internal/model"
	"github.com/tilewars/engine/pkg/core"
	"github.com/tilewars/engine/pkg/units"
	"gorm.io/datatypes"
)

// positionToPoint converts a map position to a geom.Point
func positionToPoint(p units.Vector2[units.Position]) (geom.Point, error) {
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: p.X, Y: p.Y}, Type: geom.DimXY})
}

// idsToJSON converts an id list to datatypes.JSON, "[]" when empty.
func idsToJSON[T ~uint32](ids []T) datatypes.JSON {
	if len(ids) == 0 {
		return datatypes.JSON("[]")
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session to a GORM Session.
func CoreToSession(s core.Session) model.Session {
	out := model.Session{
		ID:      s.ID,
		Name:    s.Name,
		Version: s.Version,
		Setup: datatypes.NewJSONType(model.SessionSetup{
			Map:      s.MapPath,
			TechTree: s.TechPath,
		}),
		Digest:    s.Digest,
		StartTime: s.StartTime,
		EndClock:  s.EndClock,
		EndHash:   s.EndHash,
	}
	if !s.EndTime.IsZero() {
		out.EndTime = sql.NullTime{Time: s.EndTime, Valid: true}
	}
	return out
}

// CoreToClient converts a core.ClientInfo to a GORM RecordedClient.
func CoreToClient(sessionID string, c core.ClientInfo) model.RecordedClient {
	return model.RecordedClient{
		SessionID: sessionID,
		ClientID:  uint32(c.ID),
		Name:      c.Name,
		AI:        c.AI,
		Players:   idsToJSON(c.Players),
	}
}

// CoreToMessage converts a core.Message to a GORM RecordedMessage at
// position seq in the session.
func CoreToMessage(sessionID string, seq uint, m core.Message) (model.RecordedMessage, error) {
	point, err := positionToPoint(m.Position)
	if err != nil {
		return model.RecordedMessage{}, fmt.Errorf("message %d position: %w", seq, err)
	}
	return model.RecordedMessage{
		SessionID: sessionID,
		Seq:       seq,
		Client:    uint32(m.Client),
		Timestamp: m.Timestamp.Value(),
		Action:    string(m.Action),
		Position:  point,
		Actors:    idsToJSON(m.Actors),
		Targets:   idsToJSON(m.Targets),
	}, nil
}
