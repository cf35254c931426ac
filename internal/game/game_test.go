package game

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilewars/engine/internal/techtree"
	"github.com/tilewars/engine/internal/worldmap"
	"github.com/tilewars/engine/pkg/core"
	"github.com/tilewars/engine/pkg/units"
)

const testMap = `
tiles:
  - {symbol: ".", texture: grass, passable: true}
rows:
  - "................"
  - "................"
  - "................"
  - "................"
  - "................"
  - "................"
  - "................"
  - "................"
  - "................"
  - "................"
  - "................"
  - "................"
  - "................"
  - "................"
  - "................"
  - "................"
`

const testTree = `
objectTypes:
  - {id: worker, maxVelocity: 2, radius: 0.4, lineOfSight: 5, maxHitPoints: 50}
  - {id: tower, maxVelocity: 0, maxHitPoints: 200, immutable: true}
objectActions:
  - {id: ATTACK, name: Attack}
players:
  - {name: Red}
  - {name: Blue}
objects:
  - {type: worker, owner: 1, position: [1, 1]}
  - {type: worker, owner: 1, position: [2, 1]}
  - {type: worker, owner: 2, position: [10, 10]}
  - {type: tower, owner: 2, position: [12, 12]}
`

const (
	red1, red2, blue1, blueTower core.ObjectID = 1, 2, 3, 4
)

func newTestGame(t *testing.T) *Game {
	t.Helper()
	m, err := worldmap.Parse([]byte(testMap), "yaml")
	require.NoError(t, err)
	tt, err := techtree.Parse([]byte(testTree), "yaml")
	require.NoError(t, err)

	g, err := New(Config{Map: m, TechTree: tt})
	require.NoError(t, err)
	g.SetClients([]core.ClientInfo{
		{ID: 1, Players: []core.PlayerID{1}},
		{ID: 2, Players: []core.PlayerID{2}},
	})
	return g
}

func at(steps int) units.Scalar[units.Time] {
	return units.Of[units.Time](float64(steps) / 32)
}

func pos(x, y float64) units.Vector2[units.Position] {
	return units.Vec[units.Position](x, y)
}

func move(client core.ClientID, ts float64, to units.Vector2[units.Position], actors ...core.ObjectID) core.Message {
	return core.Message{
		Client:    client,
		Timestamp: units.Of[units.Time](ts),
		Action:    core.ActionMove,
		Position:  to,
		Actors:    actors,
	}
}

func TestNew_SeedsScenario(t *testing.T) {
	g := newTestGame(t)

	assert.Equal(t, []core.ObjectID{1, 2, 3, 4}, g.ObjectIDs())
	assert.Equal(t, []core.PlayerID{1, 2}, g.PlayerIDs())

	o, ok := g.Object(red1)
	require.True(t, ok)
	assert.Equal(t, pos(1, 1), o.Position())
	assert.Equal(t, 50, o.HitPoints())
	assert.Equal(t, "Red", o.Owner().Name)
	assert.Nil(t, o.Task())
}

func TestNew_ObjectOutsideMap(t *testing.T) {
	m, err := worldmap.Parse([]byte(testMap), "yaml")
	require.NoError(t, err)
	tt, err := techtree.Parse([]byte(`
objectTypes: [{id: worker, maxHitPoints: 1}]
players: [{name: Red}]
objects: [{type: worker, owner: 1, position: [20, 1]}]
`), "yaml")
	require.NoError(t, err)

	_, err = New(Config{Map: m, TechTree: tt})
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestRunUntil_AdvancesInWholeSteps(t *testing.T) {
	g := newTestGame(t)

	g.RunUntil(units.Of[units.Time](1), nil)
	assert.Equal(t, 1.0, g.Clock().Value())

	g.RunUntil(units.Of[units.Time](1.02), nil)
	assert.Equal(t, 1.0, g.Clock().Value(), "no partial step")

	g.RunUntil(units.Of[units.Time](0.5), nil)
	assert.Equal(t, 1.0, g.Clock().Value(), "clock never moves backwards")

	g.RunUntil(at(33), nil)
	assert.Equal(t, at(33), g.Clock())
}

func TestHandleMessages_OrderedAndSnappedToClock(t *testing.T) {
	g := newTestGame(t)

	inserted := []core.Message{
		move(1, 0.3, pos(3, 0), red1),
		move(1, 0.1, pos(1, 0), red1),
		move(2, 0.2, pos(2, 0), blue1),
		move(2, 0.1, pos(1.5, 0), blue1),
	}
	for _, m := range inserted {
		g.InsertMessage(m)
	}

	var applied []core.Message
	g.RunUntil(units.Of[units.Time](1), func(m core.Message) {
		assert.Equal(t, g.Clock(), m.Timestamp, "timestamp rewritten to the applying step")
		applied = append(applied, m)
	})

	require.Len(t, applied, 4)
	assert.True(t, slices.IsSortedFunc(applied, func(a, b core.Message) int {
		switch {
		case a.Timestamp.Less(b.Timestamp):
			return -1
		case b.Timestamp.Less(a.Timestamp):
			return 1
		}
		return 0
	}))

	// ties keep insertion order
	assert.Equal(t, pos(1, 0), applied[0].Position)
	assert.Equal(t, pos(1.5, 0), applied[1].Position)
	assert.Equal(t, at(4), applied[0].Timestamp)
	assert.Equal(t, at(7), applied[2].Timestamp)
	assert.Equal(t, at(10), applied[3].Timestamp)
	assert.Equal(t, 0, g.PendingMessages())
}

func TestHandleMessages_FutureMessagesWait(t *testing.T) {
	g := newTestGame(t)
	g.InsertMessage(move(1, 2, pos(5, 5), red1))

	var applied int
	g.RunUntil(units.Of[units.Time](1), func(core.Message) { applied++ })
	assert.Equal(t, 0, applied)
	assert.Equal(t, 1, g.PendingMessages())

	g.RunUntil(units.Of[units.Time](2), func(core.Message) { applied++ })
	assert.Equal(t, 1, applied)
}

func TestRunStep_NoOvershootAxisAligned(t *testing.T) {
	g := newTestGame(t)
	// speed 2, dt 1/32: one step covers 1/16; distance 3 takes 48 steps
	g.InsertMessage(move(1, 0, pos(4, 1), red1))

	o, _ := g.Object(red1)
	g.RunUntil(at(47), nil)
	assert.Equal(t, pos(3.9375, 1), o.Position())
	require.NotNil(t, o.Task())

	g.RunUntil(at(48), nil)
	assert.Equal(t, pos(4, 1), o.Position())
	assert.Nil(t, o.Task(), "move finishes on arrival")

	g.RunUntil(at(60), nil)
	assert.Equal(t, pos(4, 1), o.Position())
}

func TestRunStep_NoOvershootDiagonal(t *testing.T) {
	g := newTestGame(t)
	// 3-4-5 triangle: distance 5 at 1/16 per step is 80 steps
	g.InsertMessage(move(1, 0, pos(4, 5), red1))

	o, _ := g.Object(red1)
	g.RunUntil(at(79), nil)
	assert.NotEqual(t, pos(4, 5), o.Position())
	assert.InDelta(t, math.Atan2(4, 3), o.Direction().Value(), 1e-12)

	g.RunUntil(at(80), nil)
	assert.Equal(t, pos(4, 5), o.Position())
}

func TestRunStep_NeverPassesTarget(t *testing.T) {
	g := newTestGame(t)
	g.InsertMessage(move(1, 0, pos(1.05, 1), red1))

	o, _ := g.Object(red1)
	g.RunUntil(at(1), nil)
	assert.Equal(t, pos(1.05, 1), o.Position())
}

func TestHandleMessage_RejectsUnauthorizedActor(t *testing.T) {
	g := newTestGame(t)

	ok := g.HandleMessage(move(1, 0, pos(0, 0), blue1))
	assert.False(t, ok)

	o, _ := g.Object(blue1)
	assert.Nil(t, o.Task())
}

func TestRemoveClient_DiscardsPendingMessages(t *testing.T) {
	g := newTestGame(t)
	g.InsertMessage(move(1, 0.5, pos(4, 4), red1))
	g.InsertMessage(move(2, 0.25, pos(8, 8), blue1))
	g.InsertMessage(move(1, 0.125, pos(3, 3), red2))
	g.InsertMessage(move(2, 0.75, pos(9, 9), blue1))

	assert.Equal(t, 2, g.RemoveClient(1))
	assert.Equal(t, 2, g.PendingMessages())
	_, known := g.Client(1)
	assert.False(t, known)

	var applied []core.Message
	g.RunUntil(units.Of[units.Time](1), func(m core.Message) { applied = append(applied, m) })
	require.Len(t, applied, 2)
	for i, ts := range []float64{0.25, 0.75} {
		assert.Equal(t, core.ClientID(2), applied[i].Client)
		assert.Equal(t, ts, applied[i].Timestamp.Value())
	}

	o, _ := g.Object(red1)
	assert.Equal(t, pos(1, 1), o.Position())
	assert.False(t, g.HandleMessage(move(1, 0, pos(0, 0), red1)), "later messages from the client are rejected")
	assert.Zero(t, g.RemoveClient(1))
}

func TestHandleMessage_RejectionLeavesExistingTaskUntouched(t *testing.T) {
	g := newTestGame(t)
	require.True(t, g.HandleMessage(move(2, 0, pos(5, 5), blue1)))
	o, _ := g.Object(blue1)
	before := o.Task()
	require.NotNil(t, before)

	assert.False(t, g.HandleMessage(move(1, 0, pos(0, 0), blue1)))
	assert.Same(t, before, o.Task())
	assert.Equal(t, []core.ObjectID{blue1}, before.Actors())
}

func TestHandleMessage_Validation(t *testing.T) {
	tests := []struct {
		name string
		msg  core.Message
		want bool
	}{
		{"unknown client", move(9, 0, pos(0, 0), red1), false},
		{"heartbeat", core.Heartbeat(units.Of[units.Time](1)), false},
		{"unknown action", core.Message{Client: 1, Action: "DANCE", Actors: []core.ObjectID{red1}}, false},
		{"missing actor", move(1, 0, pos(0, 0), 99), false},
		{"no actors", move(1, 0, pos(0, 0)), false},
		{"catalog action", core.Message{Client: 1, Action: "ATTACK", Actors: []core.ObjectID{red1}, Targets: []core.ObjectID{blue1}}, true},
		{"delete", core.Message{Client: 1, Action: core.ActionDelete, Actors: []core.ObjectID{red1}}, true},
		{"partially authorized", move(1, 0, pos(0, 0), blue1, red2), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGame(t)
			assert.Equal(t, tc.want, g.HandleMessage(tc.msg))
		})
	}
}

func TestHandleMessage_FiltersActorsAndTargets(t *testing.T) {
	g := newTestGame(t)

	ok := g.HandleMessage(core.Message{
		Client:  1,
		Action:  "ATTACK",
		Actors:  []core.ObjectID{red1, blue1, red1, 99},
		Targets: []core.ObjectID{99, blue1},
	})
	require.True(t, ok)

	o, _ := g.Object(red1)
	task := o.Task()
	require.NotNil(t, task)
	assert.Equal(t, []core.ObjectID{red1}, task.Actors())
	assert.Equal(t, []core.ObjectID{blue1}, task.Targets())
	assert.Nil(t, task.Dummy())
	assert.Equal(t, "Attack", task.Action().Name)

	b, _ := g.Object(blue1)
	assert.Nil(t, b.Task())
}

func TestHandleMessage_MoveWithoutTargetsUsesDummy(t *testing.T) {
	g := newTestGame(t)
	require.True(t, g.HandleMessage(move(1, 0, pos(7, 3), red1)))

	o, _ := g.Object(red1)
	require.NotNil(t, o.Task().Dummy())
	assert.Equal(t, pos(7, 3), o.Task().Dummy().Position())
	assert.Equal(t, core.ObjectID(0), o.Task().Dummy().ID())
	assert.Empty(t, o.Task().Targets())
}

func TestTaskReassignment_ObjectInOneActorList(t *testing.T) {
	g := newTestGame(t)
	var tasks []*Task
	track := func() {
		for _, id := range g.ObjectIDs() {
			o, _ := g.Object(id)
			if o.Task() != nil && !slices.Contains(tasks, o.Task()) {
				tasks = append(tasks, o.Task())
			}
		}
	}

	require.True(t, g.HandleMessage(move(1, 0, pos(5, 5), red1, red2)))
	track()
	require.True(t, g.HandleMessage(move(1, 0, pos(6, 6), red1)))
	track()
	require.True(t, g.HandleMessage(core.Message{Client: 1, Action: "ATTACK", Actors: []core.ObjectID{red2, red1}, Targets: []core.ObjectID{blue1}}))
	track()
	require.True(t, g.HandleMessage(move(1, 0, pos(1, 1), red2)))
	track()

	for _, id := range []core.ObjectID{red1, red2} {
		count := 0
		for _, task := range tasks {
			for _, a := range task.Actors() {
				if a == id {
					count++
				}
			}
		}
		assert.Equal(t, 1, count, "object %d", id)
	}
}

func TestRunStep_NearestTargetFirstMinimumWins(t *testing.T) {
	g := newTestGame(t)
	// equidistant targets either side of red1 at (1,1)
	left, err := g.CreateObject("tower", 2, pos(0, 1), units.Of[units.Angle](0))
	require.NoError(t, err)
	right, err := g.CreateObject("tower", 2, pos(2, 1), units.Of[units.Angle](0))
	require.NoError(t, err)

	o, _ := g.Object(red1)
	require.True(t, g.HandleMessage(core.Message{Client: 1, Action: "ATTACK", Actors: []core.ObjectID{red1}, Targets: []core.ObjectID{right.ID(), left.ID()}}))
	g.RunUntil(at(1), nil)
	assert.Equal(t, pos(1.0625, 1), o.Position(), "first listed target wins the tie")
}

func TestRunStep_TargetDeathClearsTask(t *testing.T) {
	g := newTestGame(t)
	require.True(t, g.HandleMessage(core.Message{Client: 1, Action: "ATTACK", Actors: []core.ObjectID{red1}, Targets: []core.ObjectID{blue1}}))

	target, _ := g.Object(blue1)
	target.Kill()

	g.RunUntil(at(1), nil)
	o, _ := g.Object(red1)
	assert.Nil(t, o.Task())
	_, alive := g.Object(blue1)
	assert.False(t, alive, "dead objects are pruned")
}

func TestRunStep_DeleteRemovesActors(t *testing.T) {
	g := newTestGame(t)
	g.InsertMessage(core.Message{Client: 1, Action: core.ActionDelete, Actors: []core.ObjectID{red1, red2}})

	g.RunUntil(at(1), nil)
	assert.Equal(t, []core.ObjectID{blue1, blueTower}, g.ObjectIDs())
}

func TestRunStep_ActionDispatchOnArrival(t *testing.T) {
	g := newTestGame(t)
	var calls []core.ObjectID
	require.NoError(t, g.TechTree().Bind("ATTACK", func(actor, target techtree.Actor) bool {
		calls = append(calls, actor.ID(), target.ID())
		return len(calls) < 4
	}))

	// one tile away: arrival on step 16, a second attempt on step 17
	require.True(t, g.HandleMessage(core.Message{Client: 1, Action: "ATTACK", Actors: []core.ObjectID{red2}, Targets: []core.ObjectID{red1}}))

	g.RunUntil(at(17), nil)
	o, _ := g.Object(red2)
	assert.Equal(t, pos(1, 1), o.Position())
	assert.Equal(t, []core.ObjectID{red2, red1, red2, red1}, calls)
	assert.Nil(t, o.Task(), "action reporting false ends the task")
}

func TestCreateObject_Errors(t *testing.T) {
	g := newTestGame(t)

	_, err := g.CreateObject("ghost", 1, pos(0, 0), units.Of[units.Angle](0))
	assert.ErrorIs(t, err, ErrUnknownObjectType)

	_, err = g.CreateObject("worker", 7, pos(0, 0), units.Of[units.Angle](0))
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestCreateObject_IDOverflowIsFatal(t *testing.T) {
	g := newTestGame(t)
	g.nextObjectID = math.MaxUint32

	o, err := g.CreateObject("worker", 1, pos(0, 0), units.Of[units.Angle](0))
	require.NoError(t, err)
	assert.Equal(t, core.ObjectID(math.MaxUint32), o.ID())

	_, err = g.CreateObject("worker", 1, pos(0, 0), units.Of[units.Angle](0))
	assert.ErrorIs(t, err, ErrObjectIDOverflow)
}

func TestObject_Clamping(t *testing.T) {
	g := newTestGame(t)
	o, _ := g.Object(red1)

	o.SetHitPoints(500)
	assert.Equal(t, 50, o.HitPoints())
	o.SetHitPoints(-3)
	assert.Equal(t, 0, o.HitPoints())

	o.AddExperience(5)
	o.AddExperience(-10)
	assert.Equal(t, 0, o.Experience())
	o.AddExperience(7)
	assert.Equal(t, 7, o.Experience())
}

func TestDeterminism_IdenticalInputsIdenticalState(t *testing.T) {
	script := []core.Message{
		move(1, 0.1, pos(8, 3), red1, red2),
		move(2, 0.2, pos(2, 2), blue1),
		{Client: 1, Timestamp: units.Of[units.Time](0.9), Action: "ATTACK", Actors: []core.ObjectID{red2}, Targets: []core.ObjectID{blue1}},
		move(1, 1.3, pos(0.5, 14.25), red1),
		{Client: 2, Timestamp: units.Of[units.Time](2.0), Action: core.ActionDelete, Actors: []core.ObjectID{blueTower}},
	}

	run := func() *Game {
		g := newTestGame(t)
		for _, m := range script {
			g.InsertMessage(m)
		}
		for _, target := range []float64{0.5, 1.25, 3, 7.77} {
			g.RunUntil(units.Of[units.Time](target), nil)
		}
		return g
	}

	a, b := run(), run()
	assert.Equal(t, a.StateHash(), b.StateHash())
	require.Equal(t, a.ObjectIDs(), b.ObjectIDs())
	for _, id := range a.ObjectIDs() {
		oa, _ := a.Object(id)
		ob, _ := b.Object(id)
		assert.Equal(t, oa.Position(), ob.Position())
		assert.Equal(t, oa.Direction(), ob.Direction())
		assert.Equal(t, oa.HitPoints(), ob.HitPoints())
		assert.Equal(t, oa.Experience(), ob.Experience())
		assert.Equal(t, oa.Dead(), ob.Dead())
	}
	assert.NotContains(t, a.ObjectIDs(), blueTower)
}

func TestStateHash_ChangesWithState(t *testing.T) {
	g := newTestGame(t)
	before := g.StateHashHex()
	assert.Len(t, before, 64)

	g.RunUntil(at(1), nil)
	afterClock := g.StateHashHex()
	assert.NotEqual(t, before, afterClock)

	o, _ := g.Object(red1)
	o.AddExperience(1)
	assert.NotEqual(t, afterClock, g.StateHashHex())
}
