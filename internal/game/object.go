package game

import (
	"slices"

	"github.com/tilewars/engine/internal/techtree"
	"github.com/tilewars/engine/pkg/core"
	"github.com/tilewars/engine/pkg/units"
)

// arrivalTolerance absorbs rounding in the last step toward a target, relative
// to the step length.
const arrivalTolerance = 1e-9

// Player is a faction owning objects.
type Player struct {
	ID   core.PlayerID
	Name string
}

// Object is a simulated unit. The Game owns every Object; everything else
// refers to objects by id.
type Object struct {
	id         core.ObjectID
	objectType *techtree.ObjectType
	owner      *Player
	position   units.Vector2[units.Position]
	direction  units.Scalar[units.Angle]
	hitPoints  int
	experience int
	dead       bool
	task       *Task
}

func (o *Object) ID() core.ObjectID                       { return o.id }
func (o *Object) Type() *techtree.ObjectType              { return o.objectType }
func (o *Object) Owner() *Player                          { return o.owner }
func (o *Object) Position() units.Vector2[units.Position] { return o.position }
func (o *Object) Direction() units.Scalar[units.Angle]    { return o.direction }
func (o *Object) HitPoints() int                          { return o.hitPoints }
func (o *Object) Experience() int                         { return o.experience }
func (o *Object) Dead() bool                              { return o.dead }
func (o *Object) Task() *Task                             { return o.task }

// SetHitPoints clamps hp to [0, MaxHitPoints].
func (o *Object) SetHitPoints(hp int) {
	o.hitPoints = max(0, min(hp, o.objectType.MaxHitPoints))
}

// AddExperience adds xp, never letting experience drop below zero.
func (o *Object) AddExperience(xp int) {
	o.experience = max(0, o.experience+xp)
}

// Kill marks the object dead; it is pruned on the next step.
func (o *Object) Kill() {
	o.dead = true
}

func (o *Object) ownedBy(c *core.ClientInfo) bool {
	return o.owner != nil && c.Controls(o.owner.ID)
}

// assign moves the object from its current task, if any, onto t.
func (o *Object) assign(t *Task) {
	o.detach()
	o.task = t
	t.actors = append(t.actors, o.id)
}

func (o *Object) detach() {
	if o.task == nil {
		return
	}
	o.task.actors = slices.DeleteFunc(o.task.actors, func(id core.ObjectID) bool { return id == o.id })
	o.task = nil
}

// RunStep advances the object by dt and reports whether it is still alive.
func (o *Object) RunStep(dt units.Scalar[units.Time], g *Game) bool {
	if o.dead {
		return false
	}
	t := o.task
	if t == nil {
		return true
	}
	if t.actionID == core.ActionDelete {
		o.dead = true
		o.detach()
		return false
	}

	target := g.nearestTarget(o, t)
	if target == nil {
		o.detach()
		return true
	}

	if !o.moveToward(target.position, dt) {
		return true
	}

	// arrived: a move is done, an action keeps going while it reports true
	if t.action == nil || !t.action.Run(o, target) {
		o.detach()
	}
	return true
}

// moveToward steps straight at dest without overshooting. It reports arrival.
func (o *Object) moveToward(dest units.Vector2[units.Position], dt units.Scalar[units.Time]) bool {
	delta := units.Offset(o.position, dest)
	if delta.IsZero() {
		return true
	}
	o.direction = delta.Bearing()

	step := units.Travel(o.objectType.MaxVelocity, dt)
	if delta.Length().Value() <= step.Value()*(1+arrivalTolerance) {
		o.position = dest
		return true
	}

	next := units.Translate(o.position, units.Along(delta.Normal(), step))
	if units.Offset(next, dest).Dot(delta) <= 0 {
		next = dest
	}
	o.position = next
	return next == dest
}
