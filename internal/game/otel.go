package game

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/tilewars/engine/internal/game"

type metrics struct {
	accepted metric.Int64Counter
	rejected metric.Int64Counter
}

func newMetrics() metrics {
	m := otel.Meter(instrumentationName)

	accepted, err := m.Int64Counter("game.messages.accepted",
		metric.WithDescription("Messages that produced a task"))
	if err != nil {
		accepted = noop.Int64Counter{}
	}
	rejected, err := m.Int64Counter("game.messages.rejected",
		metric.WithDescription("Messages dropped by validation"))
	if err != nil {
		rejected = noop.Int64Counter{}
	}
	return metrics{accepted: accepted, rejected: rejected}
}
