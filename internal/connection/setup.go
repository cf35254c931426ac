package connection

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	"lukechampine.com/blake3"

	"github.com/tilewars/engine/internal/game"
	"github.com/tilewars/engine/internal/techtree"
	"github.com/tilewars/engine/internal/worldmap"
	"github.com/tilewars/engine/pkg/core"
)

// Setup says what InitGame builds. Preloaded Map and TechTree win over
// the paths; Actions are bound only to a tree loaded from TechTreePath.
type Setup struct {
	MapPath      string
	TechTreePath string

	Map      *worldmap.Map
	TechTree *techtree.TechTree

	Actions map[core.ActionID]techtree.ActionFunc
}

// Build loads the content and constructs a fresh game from it.
func (s Setup) Build(logger *slog.Logger) (*game.Game, error) {
	m := s.Map
	if m == nil {
		var err error
		if m, err = worldmap.Load(s.MapPath); err != nil {
			return nil, fmt.Errorf("loading map %s: %w", s.MapPath, err)
		}
	}

	tree := s.TechTree
	if tree == nil {
		var err error
		if tree, err = techtree.Load(s.TechTreePath); err != nil {
			return nil, fmt.Errorf("loading tech tree %s: %w", s.TechTreePath, err)
		}
		for id, fn := range s.Actions {
			if err := tree.Bind(id, fn); err != nil {
				return nil, err
			}
		}
	}

	return game.New(game.Config{Map: m, TechTree: tree, Logger: logger})
}

// ContentDigest identifies the map and tech tree a game was built from.
func ContentDigest(g *game.Game) string {
	sum := blake3.Sum256([]byte(g.Map().Digest + g.TechTree().Digest))
	return hex.EncodeToString(sum[:])
}
