package main

import (
	"fmt"
	"log/slog"

	"github.com/tilewars/engine/internal/connection"
	"github.com/tilewars/engine/pkg/core"
	"github.com/tilewars/engine/pkg/units"
)

// Result describes one replayed session.
type Result struct {
	Session  string
	Messages int
	Clock    float64
	Hash     string
	Expected string
}

// Match reports whether the replay reproduced the recorded state. Sessions
// recorded without a final hash never match.
func (r Result) Match() bool {
	return r.Expected != "" && r.Hash == r.Expected
}

// DigestMismatchError means the content files changed since recording.
type DigestMismatchError struct {
	Recorded, Current string
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("content digest %s does not match recorded %s", e.Current, e.Recorded)
}

// verifyReplay rebuilds the game from setup, feeds it the recorded messages
// and runs it to the recorded end clock. Without an end clock it runs to
// the last message.
func verifyReplay(r *core.Replay, setup connection.Setup, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g, err := setup.Build(logger)
	if err != nil {
		return Result{}, err
	}
	if digest := connection.ContentDigest(g); r.Session.Digest != "" && digest != r.Session.Digest {
		return Result{}, &DigestMismatchError{Recorded: r.Session.Digest, Current: digest}
	}

	g.SetClients(r.Clients)
	for _, m := range r.Messages {
		g.InsertMessage(m)
	}

	end := r.End()
	if r.Session.EndClock > 0 {
		end = units.Of[units.Time](r.Session.EndClock)
	}

	applied := 0
	g.RunUntil(end, func(core.Message) { applied++ })
	if applied != len(r.Messages) {
		logger.Warn("Not every recorded message was accepted", "recorded", len(r.Messages), "applied", applied)
	}

	return Result{
		Session:  r.Session.ID,
		Messages: applied,
		Clock:    g.Clock().Value(),
		Hash:     g.StateHashHex(),
		Expected: r.Session.EndHash,
	}, nil
}

// setupFor resolves the content files for a session; explicit paths win
// over the recorded ones.
func setupFor(s core.Session, mapPath, techPath string) (connection.Setup, error) {
	if mapPath == "" {
		mapPath = s.MapPath
	}
	if techPath == "" {
		techPath = s.TechPath
	}
	if mapPath == "" || techPath == "" {
		return connection.Setup{}, fmt.Errorf("session %s does not name its content files, pass -map and -techtree", s.ID)
	}
	return connection.Setup{MapPath: mapPath, TechTreePath: techPath}, nil
}
