// Package techtree loads the catalog of object types and actions available in
// a game, together with the scenario that seeds players and initial objects.
package techtree

import (
	"errors"
	"fmt"

	"github.com/tilewars/engine/internal/content"
	"github.com/tilewars/engine/pkg/core"
	"github.com/tilewars/engine/pkg/units"
)

// ErrInvalid marks content that fails validation.
var ErrInvalid = errors.New("invalid tech tree")

// ObjectType is an immutable catalog entry shared by every object of that type.
type ObjectType struct {
	ID           string
	Name         string
	Immutable    bool
	Radius       units.Scalar[units.Length]
	MaxVelocity  units.Scalar[units.Velocity]
	LineOfSight  units.Scalar[units.Length]
	MaxHitPoints int
}

// Actor is the view of a simulated object an action runs against.
type Actor interface {
	ID() core.ObjectID
	Type() *ObjectType
	Position() units.Vector2[units.Position]
}

// ActionFunc applies an action. It reports whether the task should continue.
type ActionFunc func(actor, target Actor) bool

// ObjectAction is an immutable catalog entry naming something an object can do.
type ObjectAction struct {
	ID   core.ActionID
	Name string
	run  ActionFunc
}

// Run attempts the action. Actions without a bound behaviour report false.
func (a *ObjectAction) Run(actor, target Actor) bool {
	if a.run == nil {
		return false
	}
	return a.run(actor, target)
}

// PlayerSpec seeds one player.
type PlayerSpec struct {
	Name string
}

// ObjectSpec seeds one object at game construction.
type ObjectSpec struct {
	Type      string
	Owner     core.PlayerID
	Position  units.Vector2[units.Position]
	Direction units.Scalar[units.Angle]
	HitPoints int // 0 means MaxHitPoints
}

// TechTree is the loaded catalog plus scenario.
type TechTree struct {
	Types   map[string]*ObjectType
	Actions map[core.ActionID]*ObjectAction
	Players []PlayerSpec
	Objects []ObjectSpec
	Digest  string
}

// Bind attaches behaviour to a catalog action.
func (t *TechTree) Bind(id core.ActionID, fn ActionFunc) error {
	a, ok := t.Actions[id]
	if !ok {
		return fmt.Errorf("%w: unknown action %q", ErrInvalid, id)
	}
	a.run = fn
	return nil
}

type typeDoc struct {
	ID           string  `mapstructure:"id"`
	Name         string  `mapstructure:"name"`
	Immutable    bool    `mapstructure:"immutable"`
	Radius       float64 `mapstructure:"radius"`
	MaxVelocity  float64 `mapstructure:"maxVelocity"`
	LineOfSight  float64 `mapstructure:"lineOfSight"`
	MaxHitPoints int     `mapstructure:"maxHitPoints"`
}

type actionDoc struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

type objectDoc struct {
	Type      string    `mapstructure:"type"`
	Owner     uint32    `mapstructure:"owner"`
	Position  []float64 `mapstructure:"position"`
	Direction float64   `mapstructure:"direction"`
	HitPoints int       `mapstructure:"hitPoints"`
}

type document struct {
	ObjectTypes   []typeDoc    `mapstructure:"objectTypes"`
	ObjectActions []actionDoc  `mapstructure:"objectActions"`
	Players       []PlayerSpec `mapstructure:"players"`
	Objects       []objectDoc  `mapstructure:"objects"`
}

// Load reads a tech tree file.
func Load(path string) (*TechTree, error) {
	doc, err := content.Read(path)
	if err != nil {
		return nil, err
	}
	return build(doc)
}

// Parse reads tech tree content in the given format.
func Parse(data []byte, format string) (*TechTree, error) {
	doc, err := content.Parse(data, format)
	if err != nil {
		return nil, err
	}
	return build(doc)
}

func build(doc *content.Document) (*TechTree, error) {
	var d document
	if err := doc.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	t := &TechTree{
		Types:   make(map[string]*ObjectType, len(d.ObjectTypes)),
		Actions: make(map[core.ActionID]*ObjectAction, len(d.ObjectActions)),
		Players: d.Players,
		Digest:  doc.DigestHex(),
	}

	for _, td := range d.ObjectTypes {
		if td.ID == "" {
			return nil, fmt.Errorf("%w: object type without id", ErrInvalid)
		}
		if _, dup := t.Types[td.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate object type %q", ErrInvalid, td.ID)
		}
		if td.MaxHitPoints <= 0 || td.MaxVelocity < 0 || td.Radius < 0 || td.LineOfSight < 0 {
			return nil, fmt.Errorf("%w: object type %q has out-of-range attributes", ErrInvalid, td.ID)
		}
		name := td.Name
		if name == "" {
			name = td.ID
		}
		t.Types[td.ID] = &ObjectType{
			ID:           td.ID,
			Name:         name,
			Immutable:    td.Immutable,
			Radius:       units.Of[units.Length](td.Radius),
			MaxVelocity:  units.Of[units.Velocity](td.MaxVelocity),
			LineOfSight:  units.Of[units.Length](td.LineOfSight),
			MaxHitPoints: td.MaxHitPoints,
		}
	}

	for _, ad := range d.ObjectActions {
		id := core.ActionID(ad.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: object action without id", ErrInvalid)
		}
		if id == core.ActionMove || id == core.ActionDelete {
			return nil, fmt.Errorf("%w: %q is a built-in action", ErrInvalid, id)
		}
		if _, dup := t.Actions[id]; dup {
			return nil, fmt.Errorf("%w: duplicate object action %q", ErrInvalid, id)
		}
		t.Actions[id] = &ObjectAction{ID: id, Name: ad.Name}
	}

	for i, od := range d.Objects {
		if _, ok := t.Types[od.Type]; !ok {
			return nil, fmt.Errorf("%w: object %d has unknown type %q", ErrInvalid, i, od.Type)
		}
		if od.Owner == 0 || int(od.Owner) > len(t.Players) {
			return nil, fmt.Errorf("%w: object %d has unknown owner %d", ErrInvalid, i, od.Owner)
		}
		if len(od.Position) != 2 {
			return nil, fmt.Errorf("%w: object %d position needs two coordinates", ErrInvalid, i)
		}
		t.Objects = append(t.Objects, ObjectSpec{
			Type:      od.Type,
			Owner:     core.PlayerID(od.Owner),
			Position:  units.Vec[units.Position](od.Position[0], od.Position[1]),
			Direction: units.Of[units.Angle](od.Direction),
			HitPoints: od.HitPoints,
		})
	}

	return t, nil
}
