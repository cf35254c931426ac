package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/tilewars/engine/internal/config"
	"github.com/tilewars/engine/internal/connection"
	"github.com/tilewars/engine/internal/influx"
	"github.com/tilewars/engine/internal/logging"
	"github.com/tilewars/engine/internal/metaserver"
	"github.com/tilewars/engine/internal/monitor"
	intOtel "github.com/tilewars/engine/internal/otel"
	"github.com/tilewars/engine/internal/storage"
	"github.com/tilewars/engine/internal/transport"
)

// BuildDate can be set at build time via ldflags
var (
	BuildDate   string = "unknown"
	ProgramName string = "tilewars_server"
)

var (
	SessionStartTime = time.Now()

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider
)

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	flag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ProgramName, err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	configErr := config.Load(configDir)

	logFile, err := openLogFile(config.GetString("logsDir"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file, logging to stdout only: %v\n", err)
	} else {
		defer logFile.Close()
	}

	if err := setupLogging(logFile); err != nil {
		return err
	}
	if configErr != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", configErr)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = SlogManager.Flush(ctx)
		_ = OTelProvider.Shutdown(ctx)
	}()

	// zerolog for the database and influx managers
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("program", ProgramName).Logger()

	serverCfg := config.GetServerConfig()
	gameCfg := config.GetGameConfig()
	Logger.Info("Starting up...", "version", serverCfg.Version, "build", BuildDate)

	recorder, err := openRecorder(zlog)
	if err != nil {
		return err
	}
	if recorder != nil {
		defer func() {
			if err := recorder.Close(); err != nil {
				Logger.Error("Failed to close storage backend", "error", err)
			}
		}()
	}

	cfg := connection.Config{
		Setup:               connection.Setup{MapPath: gameCfg.Map, TechTreePath: gameCfg.TechTree},
		Name:                serverCfg.Name,
		Version:             serverCfg.Version,
		TickInterval:        serverCfg.TickInterval,
		MaxPacketsPerSecond: serverCfg.MaxPacketsPerSecond,
		Logger:              Logger,
	}
	if recorder != nil {
		cfg.Recorder = recorder
	}

	metaCfg := config.GetMetaserverConfig()
	if metaCfg.URL != "" {
		ms, err := metaserver.New(metaserver.Config{URL: metaCfg.URL, Timeout: metaCfg.Timeout})
		if err != nil {
			return err
		}
		cfg.Advertiser = metaserver.Advertiser{Client: ms}
		cfg.AdvertiseInterval = metaCfg.Interval
		cfg.AdvertiseTimeout = metaCfg.Timeout
		Logger.Info("Advertising on metaserver", "url", metaCfg.URL)
	}

	server, err := connection.NewServer(cfg)
	if err != nil {
		return err
	}
	defer server.Close()

	if err := addListeners(server, serverCfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	influxManager := influx.NewManager(config.GetInfluxConfig(), zlog,
		filepath.Join(config.GetString("logsDir"), "influx_backup.log.gzip"))
	monitorDeps := monitor.Dependencies{
		Source:     server,
		Logger:     Logger,
		Interval:   config.GetMonitorConfig().Interval,
		StatusFile: config.GetMonitorConfig().StatusFile,
	}
	if err := influxManager.Connect(ctx); err == nil {
		monitorDeps.Influx = influxManager
		defer influxManager.Close()
	} else if !errors.Is(err, influx.ErrDisabled) {
		Logger.Warn("InfluxDB unavailable, status points disabled", "error", err)
	}

	monitorService := monitor.NewService(monitorDeps)
	if err := monitorService.Start(); err != nil {
		return err
	}
	defer monitorService.Stop()

	err = server.Run(ctx)
	monitorService.Report()
	// ends the recording when the game was interrupted
	_ = server.Close()
	if u, ok := recorder.(storage.Uploadable); ok && u.GetExportedFilePath() != "" {
		Logger.Info("Replay exported", "path", u.GetExportedFilePath())
	}

	if errors.Is(err, context.Canceled) {
		Logger.Info("Shutting down")
		return nil
	}
	if err != nil {
		return err
	}
	Logger.Info("Game over")
	return nil
}

func openLogFile(logsDir string) (*os.File, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, err
	}
	path := logging.LogFilePath(logsDir, ProgramName, SessionStartTime)

	// keep the previous run's file when two start within the same second
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, path+".old")
	}
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
}

func setupLogging(logFile *os.File) error {
	otelCfg := config.GetOTelConfig()
	serverCfg := config.GetServerConfig()
	providerCfg := intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		ServiceVersion: serverCfg.Version,
		ServerName:     serverCfg.Name,
		BatchTimeout:   otelCfg.BatchTimeout,
		Endpoint:       otelCfg.Endpoint,
		Insecure:       otelCfg.Insecure,
	}

	var out io.Writer = os.Stdout
	if logFile != nil {
		out = io.MultiWriter(os.Stdout, logFile)
		providerCfg.LogWriter = logFile
	}

	var err error
	OTelProvider, err = intOtel.New(providerCfg)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}

	SlogManager = logging.NewSlogManager(otelCfg.ServiceName)
	SlogManager.Setup(out, config.GetString("logLevel"), OTelProvider.LoggerProvider())
	Logger = SlogManager.Logger()
	return nil
}

// openRecorder returns nil when recording is disabled.
func openRecorder(zlog zerolog.Logger) (storage.Backend, error) {
	storageCfg := config.GetStorageConfig()
	backend, err := storage.NewBackend(storageCfg, storage.Dependencies{
		DB:       config.GetDBConfig(),
		Logger:   Logger,
		DBLogger: zlog,
	})
	if errors.Is(err, storage.ErrDisabled) {
		Logger.Info("Replay recording disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	Logger.Info("Storage backend initialized", "type", storageCfg.Type)
	return backend, nil
}

func addListeners(server *connection.Server, cfg config.ServerConfig) error {
	addrs := cfg.Listen
	if cfg.WebSocket != "" {
		addrs = append(addrs, cfg.WebSocket)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("no listen addresses configured")
	}

	for _, s := range addrs {
		addr, err := transport.ParseAddress(s)
		if err != nil {
			return err
		}
		l, err := transport.Listen(addr)
		if err != nil {
			return err
		}
		if err := server.AddListener(l); err != nil {
			return err
		}
		for _, bound := range l.Addresses() {
			Logger.Info("Listening", "address", bound.String())
		}
	}
	return nil
}
