package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tilewars/engine/pkg/units"
)

func TestClientInfo_AddPlayerKeepsSortedSet(t *testing.T) {
	c := ClientInfo{ID: 1}
	c.AddPlayer(3)
	c.AddPlayer(1)
	c.AddPlayer(3)
	c.AddPlayer(2)

	assert.Equal(t, []PlayerID{1, 2, 3}, c.Players)
	assert.True(t, c.Controls(2))
	assert.False(t, c.Controls(4))
}

func TestClientInfo_CloneIsDeep(t *testing.T) {
	c := ClientInfo{ID: 1, Players: []PlayerID{1}}
	cp := c.Clone()
	cp.AddPlayer(2)

	assert.Equal(t, []PlayerID{1}, c.Players)
	assert.Equal(t, []PlayerID{1, 2}, cp.Players)
}

func TestHeartbeat(t *testing.T) {
	hb := Heartbeat(units.Of[units.Time](1.5))
	assert.True(t, hb.IsHeartbeat())
	assert.Equal(t, 1.5, hb.Timestamp.Value())

	m := Message{Client: 1, Action: ActionMove}
	assert.False(t, m.IsHeartbeat())
}
