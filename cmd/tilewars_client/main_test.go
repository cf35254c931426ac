package main

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tilewars/engine/internal/connection"
	"github.com/tilewars/engine/internal/techtree"
	"github.com/tilewars/engine/internal/transport"
	"github.com/tilewars/engine/internal/worldmap"
)

const testMap = `
tiles:
  - {symbol: ".", texture: grass, passable: true}
rows:
  - "......"
  - "......"
  - "......"
`

const testTree = `
objectTypes:
  - {id: worker, maxVelocity: 2, radius: 0.4, maxHitPoints: 50}
players:
  - {name: Red}
objects:
  - {type: worker, owner: 1, position: [1, 1]}
`

// syncBuffer is written by the client goroutine and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testSetup(t *testing.T) connection.Setup {
	t.Helper()
	m, err := worldmap.Parse([]byte(testMap), "yaml")
	require.NoError(t, err)
	tree, err := techtree.Parse([]byte(testTree), "yaml")
	require.NoError(t, err)
	return connection.Setup{Map: m, TechTree: tree}
}

func TestPlay_ReadiesUpAndFollowsServer(t *testing.T) {
	setup := testSetup(t)
	server, err := connection.NewServer(connection.Config{Setup: setup, Name: "test", TickInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })

	serverEnd, clientEnd := transport.NewPipePair()
	_, err = server.AddClient(serverEnd)
	require.NoError(t, err)

	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client, err := connection.NewClient(clientEnd, setup, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = server.Run(ctx) }()

	done := make(chan error, 1)
	go func() { done <- play(ctx, client, time.Millisecond, 20*time.Millisecond, logger) }()

	assert.Eventually(t, func() bool {
		return server.State() == connection.StatePlay
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return bytes.Contains([]byte(logs.String()), []byte("Game state"))
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("play did not return after cancel")
	}
	assert.Contains(t, logs.String(), "state=INIT")
	assert.Contains(t, logs.String(), "state=PLAY")
}

func TestPlay_ServerGoneEndsCleanly(t *testing.T) {
	serverEnd, clientEnd := transport.NewPipePair()
	client, err := connection.NewClient(clientEnd, testSetup(t), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	require.NoError(t, serverEnd.Close())

	err = play(context.Background(), client, time.Millisecond, time.Second, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	assert.NoError(t, err)
}

func TestRun_BadAddress(t *testing.T) {
	err := run(context.Background(), "udp://127.0.0.1:1", connection.Setup{}, false, slog.Default())
	assert.ErrorIs(t, err, transport.ErrBadAddress)
}
