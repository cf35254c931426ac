package connection

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilewars/engine/pkg/core"
)

func TestBase_InitGameAssignsPlayers(t *testing.T) {
	tests := []struct {
		name    string
		clients []core.ClientID
		want    map[core.ClientID][]core.PlayerID
	}{
		{"one each", []core.ClientID{1, 2}, map[core.ClientID][]core.PlayerID{1: {1}, 2: {2}}},
		{"surplus to first", []core.ClientID{4}, map[core.ClientID][]core.PlayerID{4: {1, 2}}},
		{"more clients than players", []core.ClientID{3, 1, 2}, map[core.ClientID][]core.PlayerID{1: {1}, 2: {2}, 3: nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBase(testSetup(t), slog.Default())
			for _, id := range tt.clients {
				b.roster[id] = &core.ClientInfo{ID: id}
			}

			_, err := b.Game()
			require.ErrorIs(t, err, ErrNoGame)

			require.NoError(t, b.InitGame())
			assert.Equal(t, StateInit, b.State())

			g, err := b.Game()
			require.NoError(t, err)
			for id, players := range tt.want {
				assert.Equal(t, players, b.roster[id].Players, "client %d", id)
				info, ok := g.Client(id)
				require.True(t, ok)
				assert.Equal(t, players, info.Players)
			}
		})
	}
}

func TestBase_StateOrder(t *testing.T) {
	b := newBase(testSetup(t), slog.Default())
	assert.ErrorIs(t, b.StartGame(), ErrWrongState)
	require.NoError(t, b.InitGame())
	assert.ErrorIs(t, b.InitGame(), ErrWrongState)
	require.NoError(t, b.StartGame())
	assert.Equal(t, StatePlay, b.State())
	assert.Equal(t, "PLAY", b.State().String())
}

func TestBase_BrokenContentIsFatal(t *testing.T) {
	b := newBase(Setup{MapPath: "/nonexistent/map.yaml", TechTreePath: "/nonexistent/tree.yaml"}, slog.Default())
	err := b.InitGame()
	assert.ErrorIs(t, err, ErrContent)
	assert.Equal(t, StateSetup, b.State())
}

func TestClock_PauseAndResume(t *testing.T) {
	fc := newFakeClock()
	c := NewClock(fc.now)

	fc.advance(time.Second)
	assert.Zero(t, c.Elapsed().Value(), "starts paused")

	c.Start()
	fc.advance(1500 * time.Millisecond)
	assert.Equal(t, 1.5, c.Elapsed().Value())

	c.Pause()
	fc.advance(time.Hour)
	assert.Equal(t, 1.5, c.Elapsed().Value())
	assert.False(t, c.Running())

	c.Start()
	c.Start()
	fc.advance(250 * time.Millisecond)
	assert.Equal(t, 1.75, c.Elapsed().Value())
}
