package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// swapStdout points the stdout handler at a buffer for the test.
func swapStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := osStdout
	osStdout = &buf
	t.Cleanup(func() { osStdout = prev })
	return &buf
}

func TestSetup_Destination(t *testing.T) {
	t.Run("file only", func(t *testing.T) {
		stdout := swapStdout(t)
		var file bytes.Buffer
		m := NewSlogManager("tilewars-test")
		m.Setup(&file, "info", nil)
		m.Logger().Info("server listening")

		assert.Contains(t, file.String(), "server listening")
		assert.Contains(t, file.String(), "Logging initialized")
		assert.Empty(t, stdout.String())
	})

	t.Run("stdout without file", func(t *testing.T) {
		stdout := swapStdout(t)
		m := NewSlogManager("tilewars-test")
		m.Setup(nil, "info", nil)
		m.Logger().Info("client connected")

		assert.Contains(t, stdout.String(), "client connected")
	})
}

func TestSetup_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
	}{
		{"debug", true},
		{"info", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager("tilewars-test")
			m.Setup(&buf, tt.level, nil)
			m.Logger().Debug("packet trace")
			m.Logger().Info("game started")

			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("packet trace")))
			assert.Contains(t, buf.String(), "game started")
		})
	}
}

func TestSetup_TimeIsUTC(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager("tilewars-test")
	m.Setup(&buf, "info", nil)
	assert.Regexp(t, `time=\d{4}-\d\d-\d\dT\d\d:\d\d:\d\dZ`, buf.String())
}

func TestSetup_ReplacesLogger(t *testing.T) {
	var first, second bytes.Buffer
	m := NewSlogManager("tilewars-test")

	m.Setup(&first, "info", nil)
	m.Logger().Info("first game")
	m.Setup(&second, "info", nil)
	m.Logger().Info("second game")

	assert.NotContains(t, first.String(), "second game")
	assert.Contains(t, second.String(), "second game")
}

func TestSetup_WithOTelProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	var buf bytes.Buffer
	m := NewSlogManager("tilewars-test")
	m.Setup(&buf, "info", provider)

	m.Logger().Info("bridged")
	assert.Contains(t, buf.String(), "bridged")
	assert.NoError(t, m.Flush(context.Background()))
}

func TestManager_BeforeSetup(t *testing.T) {
	m := NewSlogManager("tilewars-test")
	assert.Equal(t, slog.Default(), m.Logger())
	assert.NoError(t, m.Flush(context.Background()))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestWithContext_EvaluatedPerRecord(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager("tilewars-test")
	m.Setup(&buf, "info", nil)

	clients := 0
	logger := m.WithContext(func() []slog.Attr {
		return []slog.Attr{slog.Int("clients", clients)}
	})
	clients = 3
	logger.Info("tick")

	assert.Contains(t, buf.String(), "clients=3")
}

func TestContextHandler_RecordKeyWins(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		return []slog.Attr{slog.Float64("clock", 2.5), slog.String("state", "PLAY")}
	})
	slog.New(h).Info("message applied", "clock", 1.25)

	out := buf.String()
	assert.Contains(t, out, "clock=1.25")
	assert.NotContains(t, out, "clock=2.5")
	assert.Contains(t, out, "state=PLAY")
}

func TestContextHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		return []slog.Attr{slog.String("state", "INIT")}
	})
	logger := slog.New(h.WithAttrs([]slog.Attr{slog.Int("client", 2)}))
	logger.Info("ready")
	assert.Contains(t, buf.String(), "client=2")
	assert.Contains(t, buf.String(), "state=INIT")

	assert.Same(t, h, h.WithGroup(""))
	buf.Reset()
	slog.New(h.WithGroup("net")).Info("sent", "bytes", 12)
	assert.Contains(t, buf.String(), "net.bytes=12")
}

func TestMultiHandler(t *testing.T) {
	var info, debug bytes.Buffer
	infoH := slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugH := slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug})

	multi := NewMultiHandler(nil, infoH, nil, debugH)
	require.Len(t, multi.handlers, 2, "nil handlers are dropped")
	assert.True(t, multi.Enabled(context.Background(), slog.LevelDebug))

	logger := slog.New(multi.WithAttrs([]slog.Attr{slog.String("component", "server")}).WithGroup("grp"))
	logger.Debug("only debug")
	logger.Info("both", "key", "val")

	assert.NotContains(t, info.String(), "only debug")
	assert.Contains(t, debug.String(), "only debug")
	for _, out := range []string{info.String(), debug.String()} {
		assert.Contains(t, out, "component=server")
		assert.Contains(t, out, "grp.key=val")
	}
	assert.Same(t, multi, multi.WithGroup(""))
}

func TestMultiHandler_Empty(t *testing.T) {
	assert.False(t, NewMultiHandler().Enabled(context.Background(), slog.LevelError))
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("disk full")
}

func TestMultiHandler_FailureDoesNotStopOthers(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiHandler(failingHandler{}, slog.NewTextHandler(&buf, nil))

	var r slog.Record
	r.Level = slog.LevelInfo
	r.Message = "still delivered"
	err := multi.Handle(context.Background(), r)

	assert.ErrorContains(t, err, "disk full")
	assert.Contains(t, buf.String(), "still delivered")
}
