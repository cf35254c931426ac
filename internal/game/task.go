package game

import (
	"slices"

	"github.com/tilewars/engine/internal/techtree"
	"github.com/tilewars/engine/pkg/core"
)

// Task binds an action to the objects performing it and the objects it is
// performed on. Actors and targets are held by id and re-validated every step.
type Task struct {
	actionID core.ActionID
	action   *techtree.ObjectAction // nil for built-in actions
	actors   []core.ObjectID
	targets  []core.ObjectID
	dummy    *Object
}

func (t *Task) ActionID() core.ActionID        { return t.actionID }
func (t *Task) Action() *techtree.ObjectAction { return t.action }
func (t *Task) Actors() []core.ObjectID        { return slices.Clone(t.actors) }
func (t *Task) Targets() []core.ObjectID       { return slices.Clone(t.targets) }

// Dummy is the synthetic point target of a position-only move, or nil.
func (t *Task) Dummy() *Object { return t.dummy }

// nearestTarget returns the closest live target of t, first minimum winning.
func (g *Game) nearestTarget(o *Object, t *Task) *Object {
	if t.dummy != nil {
		return t.dummy
	}

	var best *Object
	var bestDist float64
	for _, id := range t.targets {
		target, ok := g.objects[id]
		if !ok || target.dead {
			continue
		}
		d := o.position.Sub(target.position).LengthSquared()
		if best == nil || d < bestDist {
			best, bestDist = target, d
		}
	}
	return best
}
