// Package dispatcher routes tagged protocol packets to registered handlers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrUnknownTag is returned for packets with no registered handler.
var ErrUnknownTag = errors.New("unknown packet tag")

// Packet is one decoded frame: a one-byte tag and its payload.
type Packet struct {
	Tag     byte
	Payload []byte
}

// Split separates the tag from a raw frame.
func Split(frame []byte) (Packet, error) {
	if len(frame) == 0 {
		return Packet{}, fmt.Errorf("%w: empty packet", ErrUnknownTag)
	}
	return Packet{Tag: frame[0], Payload: frame[1:]}, nil
}

// Bytes joins tag and payload into a frame.
func (p Packet) Bytes() []byte {
	b := make([]byte, 0, 1+len(p.Payload))
	b = append(b, p.Tag)
	return append(b, p.Payload...)
}

// HandlerFunc processes a packet. A returned error rejects it.
type HandlerFunc func(Packet) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	logged bool
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes packets to registered handlers. Registration happens
// before use; Dispatch is then safe from one goroutine at a time.
type Dispatcher struct {
	name     string
	handlers map[byte]HandlerFunc
	logger   Logger

	processed metric.Int64Counter
	rejected  metric.Int64Counter
}

// New creates a Dispatcher. name distinguishes its metrics (e.g. "client", "server").
// Uses the global OTel meter for metrics (no-op if not configured).
func New(name string, logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		name:     name,
		handlers: make(map[byte]HandlerFunc),
		logger:   logger,
	}

	m := meter()

	var err error
	d.processed, err = m.Int64Counter(
		"dispatcher.packets.processed",
		metric.WithDescription("Total packets handled successfully"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.rejected, err = m.Int64Counter(
		"dispatcher.packets.rejected",
		metric.WithDescription("Total packets rejected by their handler or with no handler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given tag with optional configuration.
func (d *Dispatcher) Register(tag byte, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h
	if cfg.logged && d.logger != nil {
		handler = d.withLogging(tag, handler)
	}

	d.handlers[tag] = handler
}

// Dispatch routes a packet to its registered handler.
func (d *Dispatcher) Dispatch(p Packet) error {
	attrs := metric.WithAttributes(
		attribute.String("dispatcher", d.name),
		attribute.String("tag", string(p.Tag)),
	)

	h, ok := d.handlers[p.Tag]
	if !ok {
		d.rejected.Add(context.Background(), 1, attrs)
		return fmt.Errorf("%w: %q", ErrUnknownTag, p.Tag)
	}
	if err := h(p); err != nil {
		d.rejected.Add(context.Background(), 1, attrs)
		return err
	}
	d.processed.Add(context.Background(), 1, attrs)
	return nil
}

// DispatchFrame splits a raw frame and dispatches it.
func (d *Dispatcher) DispatchFrame(frame []byte) error {
	p, err := Split(frame)
	if err != nil {
		return err
	}
	return d.Dispatch(p)
}

// HasHandler returns true if a handler is registered for the tag.
func (d *Dispatcher) HasHandler(tag byte) bool {
	_, ok := d.handlers[tag]
	return ok
}

func (d *Dispatcher) withLogging(tag byte, h HandlerFunc) HandlerFunc {
	return func(p Packet) error {
		start := time.Now()
		d.logger.Debug("handling packet", "dispatcher", d.name, "tag", string(tag), "bytes", len(p.Payload))

		err := h(p)

		if err != nil {
			d.logger.Error("packet rejected", "dispatcher", d.name, "tag", string(tag), "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("packet handled", "dispatcher", d.name, "tag", string(tag), "duration", time.Since(start))
		}

		return err
	}
}
