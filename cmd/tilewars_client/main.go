package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/tilewars/engine/internal/config"
	"github.com/tilewars/engine/internal/connection"
	"github.com/tilewars/engine/internal/logging"
	"github.com/tilewars/engine/internal/transport"
)

var ProgramName string = "tilewars_client"

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	addr := flag.String("addr", "tcp4://127.0.0.1:7150", "server address (tcp4://, tcp6:// or ws://)")
	mapPath := flag.String("map", "", "map file, defaults to game.map")
	techPath := flag.String("techtree", "", "tech tree file, defaults to game.techtree")
	trace := flag.Bool("trace", false, "log every packet")
	flag.Parse()

	if err := config.Load(*configDir); err != nil {
		config.LoadDefaults()
	}
	slogManager := logging.NewSlogManager(ProgramName)
	slogManager.Setup(nil, config.GetString("logLevel"), nil)
	logger := slogManager.Logger()

	gameCfg := config.GetGameConfig()
	setup := connection.Setup{MapPath: gameCfg.Map, TechTreePath: gameCfg.TechTree}
	if *mapPath != "" {
		setup.MapPath = *mapPath
	}
	if *techPath != "" {
		setup.TechTreePath = *techPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *addr, setup, *trace, logger); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ProgramName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, address string, setup connection.Setup, trace bool, logger *slog.Logger) error {
	addr, err := transport.ParseAddress(address)
	if err != nil {
		return err
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	ep, err := transport.Dial(dialCtx, addr)
	cancel()
	if err != nil {
		return err
	}
	logger.Info("Connected", "address", addr.String())

	var opts []connection.ClientOption
	if trace {
		zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Str("address", addr.String()).Logger()
		opts = append(opts, connection.WithPacketLogger(logging.NewDispatcherLogger(zlog)))
	}
	client, err := connection.NewClient(ep, setup, logger, opts...)
	if err != nil {
		_ = ep.Close()
		return err
	}
	defer client.Close()

	return play(ctx, client, 10*time.Millisecond, time.Second, logger)
}

// play readies the client up and keeps it in step with the server until
// the server goes away or ctx ends. Every report interval it logs the
// clock and state hash.
func play(ctx context.Context, c *connection.Client, tick, report time.Duration, logger *slog.Logger) error {
	finish := func(err error) error {
		if errors.Is(err, connection.ErrDisconnected) {
			logger.Info("Server closed the connection")
			return nil
		}
		return err
	}
	if err := c.SetReadyToInit(); err != nil {
		return finish(err)
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	lastReport := time.Now()
	readyToStart := false
	state := c.State()

	for {
		if err := c.Update(); err != nil {
			return finish(err)
		}

		if s := c.State(); s != state {
			state = s
			id, _ := c.OwnID()
			logger.Info("State changed", "state", s.String(), "id", id, "roster", len(c.Roster()))
		}
		if state == connection.StateInit && !readyToStart {
			if err := c.SetReadyToStart(); err != nil {
				return finish(err)
			}
			readyToStart = true
		}
		if state == connection.StatePlay && time.Since(lastReport) >= report {
			lastReport = time.Now()
			if g, err := c.Game(); err == nil {
				_, safe := c.Timestamps()
				logger.Info("Game state",
					"clock", g.Clock().Value(),
					"safe", safe.Value(),
					"objects", len(g.ObjectIDs()),
					"hash", g.StateHashHex())
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
