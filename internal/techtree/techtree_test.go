package techtree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilewars/engine/pkg/core"
)

const sampleTree = `
objectTypes:
  - id: worker
    name: Worker
    radius: 0.4
    maxVelocity: 2
    lineOfSight: 6
    maxHitPoints: 50
  - id: tree
    immutable: true
    maxHitPoints: 1
objectActions:
  - id: HARVEST
    name: Harvest
players:
  - name: Red
  - name: Blue
objects:
  - type: worker
    owner: 1
    position: [2.5, 3.5]
  - type: tree
    owner: 2
    position: [8, 8]
    direction: 1.5
    hitPoints: 1
`

func TestParse_Sample(t *testing.T) {
	tt, err := Parse([]byte(sampleTree), "yaml")
	require.NoError(t, err)

	require.Contains(t, tt.Types, "worker")
	w := tt.Types["worker"]
	assert.Equal(t, "Worker", w.Name)
	assert.Equal(t, 2.0, w.MaxVelocity.Value())
	assert.Equal(t, 0.4, w.Radius.Value())
	assert.Equal(t, 50, w.MaxHitPoints)
	assert.False(t, w.Immutable)

	tree := tt.Types["tree"]
	assert.Equal(t, "tree", tree.Name, "name defaults to id")
	assert.True(t, tree.Immutable)

	require.Contains(t, tt.Actions, core.ActionID("HARVEST"))
	assert.Equal(t, "Harvest", tt.Actions["HARVEST"].Name)

	assert.Equal(t, []PlayerSpec{{Name: "Red"}, {Name: "Blue"}}, tt.Players)
	require.Len(t, tt.Objects, 2)
	assert.Equal(t, core.PlayerID(1), tt.Objects[0].Owner)
	assert.Equal(t, 2.5, tt.Objects[0].Position.X)
	assert.Equal(t, 3.5, tt.Objects[0].Position.Y)
	assert.Equal(t, 1.5, tt.Objects[1].Direction.Value())
	assert.Len(t, tt.Digest, 64)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "techtree.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTree), 0644))

	tt, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, tt.Types, 2)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"type without id", "objectTypes:\n  - maxHitPoints: 1\n"},
		{"duplicate type", "objectTypes:\n  - {id: a, maxHitPoints: 1}\n  - {id: a, maxHitPoints: 1}\n"},
		{"zero hit points", "objectTypes:\n  - {id: a}\n"},
		{"negative velocity", "objectTypes:\n  - {id: a, maxHitPoints: 1, maxVelocity: -1}\n"},
		{"built-in action", "objectActions:\n  - {id: MOVE}\n"},
		{"duplicate action", "objectActions:\n  - {id: X}\n  - {id: X}\n"},
		{"unknown object type", "objects:\n  - {type: ghost, owner: 1, position: [0, 0]}\n"},
		{"unknown owner", "objectTypes:\n  - {id: a, maxHitPoints: 1}\nplayers:\n  - {name: p}\nobjects:\n  - {type: a, owner: 2, position: [0, 0]}\n"},
		{"bad position", "objectTypes:\n  - {id: a, maxHitPoints: 1}\nplayers:\n  - {name: p}\nobjects:\n  - {type: a, owner: 1, position: [0]}\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc), "yaml")
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestObjectAction_RunDefaultsToStub(t *testing.T) {
	tt, err := Parse([]byte(sampleTree), "yaml")
	require.NoError(t, err)

	a := tt.Actions["HARVEST"]
	assert.False(t, a.Run(nil, nil))

	var gotActor, gotTarget Actor
	require.NoError(t, tt.Bind("HARVEST", func(actor, target Actor) bool {
		gotActor, gotTarget = actor, target
		return true
	}))
	assert.True(t, a.Run(nil, nil))
	assert.Nil(t, gotActor)
	assert.Nil(t, gotTarget)

	assert.ErrorIs(t, tt.Bind("MISSING", nil), ErrInvalid)
}
