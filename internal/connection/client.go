package connection

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tilewars/engine/internal/dispatcher"
	"github.com/tilewars/engine/internal/logging"
	"github.com/tilewars/engine/internal/transport"
	"github.com/tilewars/engine/pkg/codec"
	"github.com/tilewars/engine/pkg/core"
	"github.com/tilewars/engine/pkg/units"
)

// Client mirrors the server's game. It only simulates up to the second
// newest message timestamp it has seen: everything at or before that time
// has already arrived.
type Client struct {
	Base

	endpoint   transport.EndPoint
	dispatcher *dispatcher.Dispatcher

	ownID     core.ClientID
	haveOwnID bool

	lastTimestamp units.Scalar[units.Time]
	prevTimestamp units.Scalar[units.Time]

	err error
}

// ClientOption customises a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	packetLogger dispatcher.Logger
}

// WithPacketLogger sends packet traces to l instead of the client's logger.
func WithPacketLogger(l dispatcher.Logger) ClientOption {
	return func(o *clientOptions) { o.packetLogger = l }
}

// NewClient wraps an endpoint connected to a server. A nil logger falls
// back to slog.Default().
func NewClient(ep transport.EndPoint, setup Setup, logger *slog.Logger, opts ...ClientOption) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.packetLogger == nil {
		o.packetLogger = logging.NewSlogDispatcherLogger(logger)
	}
	d, err := dispatcher.New("client", o.packetLogger)
	if err != nil {
		return nil, err
	}

	c := &Client{
		Base:       newBase(setup, logger),
		endpoint:   ep,
		dispatcher: d,
	}
	d.Register(tagClientInfo, c.handleClientInfo)
	d.Register(tagClientLeft, c.handleClientLeft)
	d.Register(tagMessage, c.handleMessage)
	d.Register(tagReadyToInit, c.handleInit, dispatcher.Logged())
	d.Register(tagReadyToStart, c.handleStart, dispatcher.Logged())
	return c, nil
}

// OwnID is the id the server gave this client; ok is false until the
// first roster entry arrives.
func (c *Client) OwnID() (core.ClientID, bool) {
	return c.ownID, c.haveOwnID
}

// Timestamps returns the newest and second newest message timestamps seen.
func (c *Client) Timestamps() (last, prev units.Scalar[units.Time]) {
	return c.lastTimestamp, c.prevTimestamp
}

// Update drains the endpoint and, in PLAY, advances the game to the safe
// timestamp. Once it fails the client is finished and every later call
// returns the same error.
func (c *Client) Update() error {
	if c.err != nil {
		return c.err
	}
	if err := c.drain(); err != nil {
		c.err = err
		_ = c.endpoint.Close()
		c.logger.Error("Client stopped", "error", err)
		return err
	}
	if c.state == StatePlay {
		c.game.RunUntil(c.prevTimestamp, nil)
	}
	return nil
}

func (c *Client) drain() error {
	for {
		data, ok, err := c.endpoint.ReceivePacket()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDisconnected, err)
		}
		if !ok {
			return nil
		}
		if err := c.dispatcher.DispatchFrame(data); err != nil {
			if errors.Is(err, ErrContent) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrDisconnected, err)
		}
	}
}

// SendMessage proposes a message to the server.
func (c *Client) SendMessage(m core.Message) error {
	return c.send(tagMessage, codec.EncodeMessage(m))
}

func (c *Client) SetReadyToInit() error {
	return c.send(tagReadyToInit, nil)
}

func (c *Client) SetReadyToStart() error {
	return c.send(tagReadyToStart, nil)
}

func (c *Client) send(tag byte, payload []byte) error {
	if c.err != nil {
		return c.err
	}
	p := dispatcher.Packet{Tag: tag, Payload: payload}
	if err := c.endpoint.SendPacket(p.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrDisconnected, err)
	}
	return nil
}

// Close drops the connection.
func (c *Client) Close() error {
	if c.err == nil {
		c.err = fmt.Errorf("%w: closed", ErrDisconnected)
	}
	return c.endpoint.Close()
}

func (c *Client) handleClientInfo(p dispatcher.Packet) error {
	info, err := codec.DecodeClientInfo(p.Payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPacket, err)
	}
	// The server always introduces a client to itself first.
	if !c.haveOwnID {
		c.ownID = info.ID
		c.haveOwnID = true
	}
	c.roster[info.ID] = &info
	return nil
}

func (c *Client) handleClientLeft(p dispatcher.Packet) error {
	id, err := codec.DecodeClientID(p.Payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPacket, err)
	}
	delete(c.roster, id)
	return nil
}

func (c *Client) handleMessage(p dispatcher.Packet) error {
	if c.game == nil {
		return fmt.Errorf("%w: message before init", ErrInvalidPacket)
	}
	m, err := codec.DecodeMessage(p.Payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPacket, err)
	}
	// Non-increasing timestamps leave the lag window alone but are still queued.
	if c.lastTimestamp.Less(m.Timestamp) {
		c.prevTimestamp = c.lastTimestamp
		c.lastTimestamp = m.Timestamp
	}
	c.game.InsertMessage(m)
	return nil
}

func (c *Client) handleInit(p dispatcher.Packet) error {
	if len(p.Payload) != 0 {
		return fmt.Errorf("%w: init carries payload", ErrInvalidPacket)
	}
	if err := c.InitGame(); err != nil {
		if errors.Is(err, ErrWrongState) {
			return fmt.Errorf("%w: %w", ErrInvalidPacket, err)
		}
		return err
	}
	return nil
}

func (c *Client) handleStart(p dispatcher.Packet) error {
	if len(p.Payload) != 0 {
		return fmt.Errorf("%w: start carries payload", ErrInvalidPacket)
	}
	if err := c.StartGame(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPacket, err)
	}
	return nil
}
