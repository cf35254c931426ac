package codec

import (
	"fmt"
	"math"

	"github.com/tilewars/engine/pkg/core"
	"github.com/tilewars/engine/pkg/units"
)

// maxPlayers bounds the player count read from a ClientInfo.
const maxPlayers = 1 << 16

// WriteMessage encodes m as client, timestamp, action, position, then the
// actor and target lists each terminated by id 0. Zero ids inside the lists
// are skipped since they would end the list early.
func (s *Serializer) WriteMessage(m core.Message) *Serializer {
	s.WriteUint(uint64(m.Client))
	s.WriteFloat(m.Timestamp.Value())
	s.WriteString(string(m.Action))
	s.WriteVector(m.Position.X, m.Position.Y)
	writeIDList(s, m.Actors)
	writeIDList(s, m.Targets)
	return s
}

func writeIDList(s *Serializer, ids []core.ObjectID) {
	for _, id := range ids {
		if id != 0 {
			s.WriteUint(uint64(id))
		}
	}
	s.WriteUint(0)
}

// ReadMessage decodes a message written by WriteMessage.
func (d *Deserializer) ReadMessage() (core.Message, error) {
	var m core.Message

	client, err := d.readUint32("client")
	if err != nil {
		return m, err
	}
	ts, err := d.ReadFloat()
	if err != nil {
		return m, err
	}
	action, err := d.ReadString()
	if err != nil {
		return m, err
	}
	x, y, err := d.ReadVector()
	if err != nil {
		return m, err
	}
	if !finite(ts, x, y) {
		return m, fmt.Errorf("%w: non-finite timestamp or position", ErrMalformed)
	}
	if m.Actors, err = d.readIDList(); err != nil {
		return m, err
	}
	if m.Targets, err = d.readIDList(); err != nil {
		return m, err
	}

	m.Client = core.ClientID(client)
	m.Timestamp = units.Of[units.Time](ts)
	m.Action = core.ActionID(action)
	m.Position = units.Vec[units.Position](x, y)
	return m, nil
}

func (d *Deserializer) readIDList() ([]core.ObjectID, error) {
	var ids []core.ObjectID
	for {
		id, err := d.readUint32("object id")
		if err != nil {
			return nil, err
		}
		if id == 0 {
			return ids, nil
		}
		ids = append(ids, core.ObjectID(id))
	}
}

func (d *Deserializer) readUint32(what string) (uint32, error) {
	v, err := d.ReadUint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %s %d out of range", ErrMalformed, what, v)
	}
	return uint32(v), nil
}

// WriteClientInfo encodes id, name, ai, player count, player ids, readyToInit, readyToStart.
func (s *Serializer) WriteClientInfo(c core.ClientInfo) *Serializer {
	s.WriteUint(uint64(c.ID))
	s.WriteString(c.Name)
	s.WriteBool(c.AI)
	s.WriteUint(uint64(len(c.Players)))
	for _, p := range c.Players {
		s.WriteUint(uint64(p))
	}
	s.WriteBool(c.ReadyToInit)
	s.WriteBool(c.ReadyToStart)
	return s
}

// ReadClientInfo decodes a roster entry written by WriteClientInfo.
func (d *Deserializer) ReadClientInfo() (core.ClientInfo, error) {
	var c core.ClientInfo

	id, err := d.readUint32("client id")
	if err != nil {
		return c, err
	}
	if c.Name, err = d.ReadString(); err != nil {
		return c, err
	}
	if c.AI, err = d.ReadBool(); err != nil {
		return c, err
	}
	n, err := d.ReadUint()
	if err != nil {
		return c, err
	}
	if n > maxPlayers {
		return c, fmt.Errorf("%w: player count %d", ErrMalformed, n)
	}
	if n > 0 {
		c.Players = make([]core.PlayerID, 0, n)
	}
	// Players is a sorted set whatever order the sender used.
	for range n {
		p, err := d.readUint32("player id")
		if err != nil {
			return c, err
		}
		c.AddPlayer(core.PlayerID(p))
	}
	if c.ReadyToInit, err = d.ReadBool(); err != nil {
		return c, err
	}
	if c.ReadyToStart, err = d.ReadBool(); err != nil {
		return c, err
	}
	c.ID = core.ClientID(id)
	return c, nil
}

// EncodeMessage returns the standalone encoding of m.
func EncodeMessage(m core.Message) []byte {
	return NewSerializer().WriteMessage(m).Bytes()
}

// DecodeMessage decodes exactly one message; trailing bytes are an error.
func DecodeMessage(data []byte) (core.Message, error) {
	d := NewDeserializer(data)
	m, err := d.ReadMessage()
	if err != nil {
		return m, err
	}
	return m, d.expectEnd()
}

// EncodeClientInfo returns the standalone encoding of c.
func EncodeClientInfo(c core.ClientInfo) []byte {
	return NewSerializer().WriteClientInfo(c).Bytes()
}

// DecodeClientInfo decodes exactly one roster entry.
func DecodeClientInfo(data []byte) (core.ClientInfo, error) {
	d := NewDeserializer(data)
	c, err := d.ReadClientInfo()
	if err != nil {
		return c, err
	}
	return c, d.expectEnd()
}

// EncodeClientID encodes the payload of a client-left notice.
func EncodeClientID(id core.ClientID) []byte {
	return NewSerializer().WriteUint(uint64(id)).Bytes()
}

// DecodeClientID decodes the payload of a client-left notice.
func DecodeClientID(data []byte) (core.ClientID, error) {
	d := NewDeserializer(data)
	id, err := d.readUint32("client id")
	if err != nil {
		return 0, err
	}
	return core.ClientID(id), d.expectEnd()
}

func (d *Deserializer) expectEnd() error {
	if n := d.Remaining(); n != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, n)
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
