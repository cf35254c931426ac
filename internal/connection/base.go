// Package connection runs the lockstep protocol on top of a Game: Client
// follows an authoritative Server one heartbeat behind, Server owns the
// roster, the ready handshake and the wall clock.
package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/tilewars/engine/internal/game"
	"github.com/tilewars/engine/pkg/core"
)

var (
	ErrNoGame        = errors.New("game not initialised")
	ErrDisconnected  = errors.New("disconnected unexpectedly")
	ErrInvalidPacket = errors.New("invalid packet")
	ErrWrongState    = errors.New("wrong connection state")
	ErrNotAccepting  = errors.New("server no longer accepts clients")
	ErrContent       = errors.New("game content")
)

// Packet tags.
const (
	tagClientInfo   byte = 'c'
	tagClientLeft   byte = 'd'
	tagMessage      byte = 'm'
	tagReadyToInit  byte = 'i'
	tagReadyToStart byte = 's'
)

// State is the connection lifecycle. It only moves forward.
type State int

const (
	StateSetup State = iota
	StateInit
	StatePlay
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateSetup:
		return "SETUP"
	case StateInit:
		return "INIT"
	case StatePlay:
		return "PLAY"
	case StateEnd:
		return "END"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state by name in status reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Base is the lifecycle shared by Client and Server.
type Base struct {
	state  State
	setup  Setup
	game   *game.Game
	roster map[core.ClientID]*core.ClientInfo
	logger *slog.Logger
}

func newBase(setup Setup, logger *slog.Logger) Base {
	return Base{
		setup:  setup,
		roster: make(map[core.ClientID]*core.ClientInfo),
		logger: logger,
	}
}

func (b *Base) State() State {
	return b.state
}

// Game returns the simulation, which exists from INIT on.
func (b *Base) Game() (*game.Game, error) {
	if b.game == nil {
		return nil, ErrNoGame
	}
	return b.game, nil
}

// InitGame builds the game and hands out its players: one per client in
// id order, then any surplus to the lowest client id.
func (b *Base) InitGame() error {
	if b.state != StateSetup {
		return fmt.Errorf("init in %s: %w", b.state, ErrWrongState)
	}

	g, err := b.setup.Build(b.logger)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrContent, err)
	}

	clients := b.sortedRoster()
	assignPlayers(clients, g.PlayerIDs())

	infos := make([]core.ClientInfo, len(clients))
	for i, c := range clients {
		infos[i] = *c
	}
	g.SetClients(infos)

	b.game = g
	b.state = StateInit
	b.logger.Info("Game initialised", "clients", len(clients), "players", len(g.PlayerIDs()))
	return nil
}

// StartGame moves from INIT to PLAY.
func (b *Base) StartGame() error {
	if b.state != StateInit {
		return fmt.Errorf("start in %s: %w", b.state, ErrWrongState)
	}
	b.state = StatePlay
	b.logger.Info("Game started")
	return nil
}

// Roster returns copies of every known client in id order.
func (b *Base) Roster() []core.ClientInfo {
	clients := b.sortedRoster()
	out := make([]core.ClientInfo, len(clients))
	for i, c := range clients {
		out[i] = c.Clone()
	}
	return out
}

func (b *Base) sortedRoster() []*core.ClientInfo {
	ids := slices.Sorted(maps.Keys(b.roster))
	out := make([]*core.ClientInfo, len(ids))
	for i, id := range ids {
		out[i] = b.roster[id]
	}
	return out
}

func assignPlayers(clients []*core.ClientInfo, players []core.PlayerID) {
	if len(clients) == 0 {
		return
	}
	i := 0
	for ; i < len(players) && i < len(clients); i++ {
		clients[i].AddPlayer(players[i])
	}
	// TODO: surplus players all land on the first client; revisit once AI
	// clients can claim players.
	for ; i < len(players); i++ {
		clients[0].AddPlayer(players[i])
	}
}
