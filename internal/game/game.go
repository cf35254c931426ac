// Package game is the deterministic lockstep simulation: it owns every object,
// advances time in fixed steps, and turns time-ordered messages into tasks.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tilewars/engine/internal/techtree"
	"github.com/tilewars/engine/internal/worldmap"
	"github.com/tilewars/engine/pkg/core"
	"github.com/tilewars/engine/pkg/units"
)

// StepDuration is the fixed simulation step.
var StepDuration = units.Of[units.Time](1.0 / 32)

var (
	ErrObjectIDOverflow  = errors.New("object id space exhausted")
	ErrUnknownObjectType = errors.New("unknown object type")
	ErrUnknownPlayer     = errors.New("unknown player")
	ErrOutOfBounds       = errors.New("position outside map")
)

// MessageCallback observes every accepted message with its applied timestamp.
type MessageCallback func(core.Message)

// Config holds what a Game is built from.
type Config struct {
	Map      *worldmap.Map
	TechTree *techtree.TechTree
	Logger   *slog.Logger
}

// Game is not safe for concurrent use; its owner serialises access.
type Game struct {
	clock    units.Scalar[units.Time]
	worldMap *worldmap.Map
	techTree *techtree.TechTree

	objects      map[core.ObjectID]*Object
	players      map[core.PlayerID]*Player
	clients      map[core.ClientID]*core.ClientInfo
	messages     messageQueue
	nextObjectID core.ObjectID

	logger  *slog.Logger
	metrics metrics
}

// New builds a game and seeds the scenario's players and objects.
func New(cfg Config) (*Game, error) {
	if cfg.Map == nil || cfg.TechTree == nil {
		return nil, errors.New("game needs a map and a tech tree")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Game{
		worldMap:     cfg.Map,
		techTree:     cfg.TechTree,
		objects:      make(map[core.ObjectID]*Object),
		players:      make(map[core.PlayerID]*Player),
		clients:      make(map[core.ClientID]*core.ClientInfo),
		nextObjectID: 1,
		logger:       logger,
		metrics:      newMetrics(),
	}

	for _, p := range cfg.TechTree.Players {
		g.AddPlayer(p.Name)
	}
	for i, spec := range cfg.TechTree.Objects {
		if !cfg.Map.Contains(spec.Position) {
			return nil, fmt.Errorf("scenario object %d: %w", i, ErrOutOfBounds)
		}
		o, err := g.CreateObject(spec.Type, spec.Owner, spec.Position, spec.Direction)
		if err != nil {
			return nil, fmt.Errorf("scenario object %d: %w", i, err)
		}
		if spec.HitPoints > 0 {
			o.SetHitPoints(spec.HitPoints)
		}
	}

	return g, nil
}

func (g *Game) Clock() units.Scalar[units.Time] { return g.clock }
func (g *Game) Map() *worldmap.Map              { return g.worldMap }
func (g *Game) TechTree() *techtree.TechTree    { return g.techTree }

// PendingMessages is the number of queued, unapplied messages.
func (g *Game) PendingMessages() int { return g.messages.Len() }

// AddPlayer registers a player with the next id.
func (g *Game) AddPlayer(name string) *Player {
	p := &Player{ID: core.PlayerID(len(g.players) + 1), Name: name}
	g.players[p.ID] = p
	return p
}

func (g *Game) Player(id core.PlayerID) (*Player, bool) {
	p, ok := g.players[id]
	return p, ok
}

// PlayerIDs returns every player id in ascending order.
func (g *Game) PlayerIDs() []core.PlayerID {
	return slices.Sorted(maps.Keys(g.players))
}

// SetClients replaces the known clients.
func (g *Game) SetClients(clients []core.ClientInfo) {
	g.clients = make(map[core.ClientID]*core.ClientInfo, len(clients))
	for _, c := range clients {
		c := c.Clone()
		g.clients[c.ID] = &c
	}
}

// RemoveClient forgets a client and discards its messages that have not been
// applied yet. Later messages naming it are rejected.
func (g *Game) RemoveClient(id core.ClientID) int {
	delete(g.clients, id)
	return g.messages.dropClient(id)
}

// Client returns a copy of a known client.
func (g *Game) Client(id core.ClientID) (core.ClientInfo, bool) {
	c, ok := g.clients[id]
	if !ok {
		return core.ClientInfo{}, false
	}
	return c.Clone(), true
}

// CreateObject allocates a new object. Unknown types and owners and id
// exhaustion are content errors.
func (g *Game) CreateObject(typeID string, owner core.PlayerID, pos units.Vector2[units.Position], dir units.Scalar[units.Angle]) (*Object, error) {
	ot, ok := g.techTree.Types[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownObjectType, typeID)
	}
	p, ok := g.players[owner]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPlayer, owner)
	}
	if g.nextObjectID == 0 {
		return nil, ErrObjectIDOverflow
	}

	o := &Object{
		id:         g.nextObjectID,
		objectType: ot,
		owner:      p,
		position:   pos,
		direction:  dir,
		hitPoints:  ot.MaxHitPoints,
	}
	g.nextObjectID++ // wraps to 0 after the last id, which then refuses allocation
	g.objects[o.id] = o
	return o, nil
}

func (g *Game) Object(id core.ObjectID) (*Object, bool) {
	o, ok := g.objects[id]
	return o, ok
}

// ObjectIDs returns the live object ids in ascending order.
func (g *Game) ObjectIDs() []core.ObjectID {
	return slices.Sorted(maps.Keys(g.objects))
}

// InsertMessage queues m for the first step at or after its timestamp.
func (g *Game) InsertMessage(m core.Message) {
	g.messages.insert(m)
}

// RunUntil steps the simulation while a whole step still fits before target.
func (g *Game) RunUntil(target units.Scalar[units.Time], cb MessageCallback) {
	for g.clock.Add(StepDuration).Value() <= target.Value() {
		g.step(cb)
	}
}

func (g *Game) step(cb MessageCallback) {
	g.clock = g.clock.Add(StepDuration)
	g.handleMessages(cb)

	for _, id := range g.ObjectIDs() {
		o, ok := g.objects[id]
		if !ok {
			continue
		}
		if !o.RunStep(StepDuration, g) {
			o.detach()
			delete(g.objects, id)
		}
	}
}

func (g *Game) handleMessages(cb MessageCallback) {
	for {
		m, ok := g.messages.popDue(g.clock.Value())
		if !ok {
			return
		}
		m.Timestamp = g.clock
		if !g.HandleMessage(m) {
			continue
		}
		if cb != nil {
			cb(m)
		}
	}
}

// HandleMessage validates m and, if accepted, assigns its actors a new task.
// A rejected message leaves no trace.
func (g *Game) HandleMessage(m core.Message) bool {
	ctx := context.Background()
	accepted := g.handleMessage(m)
	attrs := metric.WithAttributes(attribute.String("action", string(m.Action)))
	if accepted {
		g.metrics.accepted.Add(ctx, 1, attrs)
	} else {
		g.metrics.rejected.Add(ctx, 1, attrs)
	}
	return accepted
}

func (g *Game) handleMessage(m core.Message) bool {
	client, ok := g.clients[m.Client]
	if !ok {
		if !m.IsHeartbeat() {
			g.logger.Debug("message from unknown client", "client", m.Client, "action", m.Action)
		}
		return false
	}

	task := &Task{actionID: m.Action}
	switch {
	case m.Action == core.ActionMove && len(m.Targets) == 0:
		task.dummy = &Object{position: m.Position}
	case m.Action == core.ActionMove || m.Action == core.ActionDelete:
	default:
		action, ok := g.techTree.Actions[m.Action]
		if !ok {
			g.logger.Debug("message with unknown action", "client", m.Client, "action", m.Action)
			return false
		}
		task.action = action
	}

	actors := make([]*Object, 0, len(m.Actors))
	for _, id := range m.Actors {
		o, ok := g.objects[id]
		if !ok || o.dead || !o.ownedBy(client) {
			continue
		}
		if slices.Contains(actors, o) {
			continue
		}
		actors = append(actors, o)
	}
	if len(actors) == 0 {
		g.logger.Debug("message without usable actors", "client", m.Client, "action", m.Action)
		return false
	}

	for _, o := range actors {
		o.assign(task)
	}
	for _, id := range m.Targets {
		if _, ok := g.objects[id]; ok {
			task.targets = append(task.targets, id)
		}
	}
	return true
}
