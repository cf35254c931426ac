package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Swapped by tests.
var osStdout io.Writer = os.Stdout

// SlogManager owns the process logger: a text handler on the log file or
// stdout, plus the OTel bridge when a provider is configured.
type SlogManager struct {
	service     string
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a logging manager; service names the OTel scope.
func NewSlogManager(service string) *SlogManager {
	return &SlogManager{service: service}
}

// parseLevel accepts slog's level names in any case. Anything else is info.
func parseLevel(level string) slog.Level {
	var l slog.Level
	if level == "" || l.UnmarshalText([]byte(level)) != nil {
		return slog.LevelInfo
	}
	return l
}

// utcTime renders record times as RFC3339 in UTC so files from servers in
// different zones line up.
func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// Setup (re)builds the logger. Records go to w, or stdout when w is nil.
// A nil provider disables the OTel bridge.
func (m *SlogManager) Setup(w io.Writer, level string, provider *sdklog.LoggerProvider) {
	if w == nil {
		w = osStdout
	}
	m.logProvider = provider

	text := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level), ReplaceAttr: utcTime})
	var bridge slog.Handler
	if provider != nil {
		bridge = otelslog.NewHandler(m.service, otelslog.WithLoggerProvider(provider))
	}

	m.logger = slog.New(NewMultiHandler(text, bridge))
	m.logger.Info("Logging initialized", "level", level, "service", m.service)
}

// Logger returns slog.Default() until Setup has run.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// WithContext returns a logger that appends provider's attributes to
// every record.
func (m *SlogManager) WithContext(provider ContextProvider) *slog.Logger {
	return slog.New(NewContextHandler(m.Logger().Handler(), provider))
}

// Flush exports buffered OTel records.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}
