package connection

import (
	"context"
	"math"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tilewars/engine/internal/connection"

// gauges publishes values written under the server lock to metric and
// log callbacks that run on other goroutines.
type gauges struct {
	state   atomic.Int32
	clients atomic.Int64
	clock   atomic.Uint64 // float64 bits

	registration metric.Registration
}

func (g *gauges) setClock(seconds float64) { g.clock.Store(math.Float64bits(seconds)) }
func (g *gauges) clockSeconds() float64    { return math.Float64frombits(g.clock.Load()) }

// register exposes the gauges on the global meter; failures leave the
// server without metrics.
func (g *gauges) register() error {
	m := otel.Meter(instrumentationName)

	clients, err := m.Int64ObservableGauge("server.clients",
		metric.WithDescription("Connected clients"))
	if err != nil {
		return err
	}
	clock, err := m.Float64ObservableGauge("server.game.clock",
		metric.WithDescription("Authoritative game time"),
		metric.WithUnit("s"))
	if err != nil {
		return err
	}

	g.registration, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(clients, g.clients.Load())
		o.ObserveFloat64(clock, g.clockSeconds())
		return nil
	}, clients, clock)
	return err
}

func (g *gauges) unregister() {
	if g.registration != nil {
		_ = g.registration.Unregister()
		g.registration = nil
	}
}
