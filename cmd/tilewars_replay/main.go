package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/tilewars/engine/internal/config"
	"github.com/tilewars/engine/internal/logging"
	"github.com/tilewars/engine/internal/storage"
)

var ProgramName string = "tilewars_replay"

// errMismatch makes the process exit non-zero when a replay diverges.
var errMismatch = errors.New("replay does not reproduce the recorded state")

const usage = `usage: tilewars_replay [flags] list
       tilewars_replay [flags] verify [-map file] [-techtree file] <session-id>...

flags:
  -config dir   directory containing tilewars.cfg.json
  -store path   replay directory or .db file (default: configured storage)
  -log level    log level (default: warn)
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ProgramName, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(ProgramName, flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	configDir := fs.String("config", ".", "")
	store := fs.String("store", "", "")
	level := fs.String("log", "warn", "")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no command given")
	}

	if err := config.Load(*configDir); err != nil {
		config.LoadDefaults()
	}
	slogManager := logging.NewSlogManager(ProgramName)
	slogManager.Setup(os.Stderr, *level, nil)
	logger := slogManager.Logger()

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()

	reader, closeReader, err := storage.NewReader(*store, config.GetStorageConfig(), storage.Dependencies{
		DB:       config.GetDBConfig(),
		Logger:   logger,
		DBLogger: zlog,
	})
	if err != nil {
		return fmt.Errorf("opening replays: %w", err)
	}
	defer closeReader()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "list":
		return list(reader, out)
	case "verify":
		return verify(reader, rest, out, logger)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func list(r storage.Reader, out io.Writer) error {
	sessions, err := r.ListSessions()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tSTARTED\tDURATION\tCLOCK")
	for _, s := range sessions {
		duration := "-"
		if !s.EndTime.IsZero() {
			duration = s.EndTime.Sub(s.StartTime).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.3f\n",
			s.ID, s.Name, s.Version, s.StartTime.Format(time.RFC3339), duration, s.EndClock)
	}
	return w.Flush()
}

func verify(r storage.Reader, args []string, out io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	mapPath := fs.String("map", "", "map file, overrides the recorded path")
	techPath := fs.String("techtree", "", "tech tree file, overrides the recorded path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("verify needs at least one session id")
	}

	var failed error
	for _, id := range fs.Args() {
		replay, err := r.LoadSession(id)
		if err != nil {
			return fmt.Errorf("loading %s: %w", id, err)
		}
		setup, err := setupFor(replay.Session, *mapPath, *techPath)
		if err != nil {
			return err
		}
		res, err := verifyReplay(&replay, setup, logger.With("session", id))
		if err != nil {
			return fmt.Errorf("replaying %s: %w", id, err)
		}

		status := "OK"
		switch {
		case res.Expected == "":
			status = "NO REFERENCE"
		case !res.Match():
			status = "MISMATCH"
			failed = errMismatch
		}
		fmt.Fprintf(out, "%s\t%s\tmessages=%d clock=%.3f hash=%s\n", res.Session, status, res.Messages, res.Clock, res.Hash)
	}
	return failed
}
