// Package transport moves framed packets between a server and its clients.
// Every transport carries the same framing: an 8 character lowercase hex
// length followed by that many payload bytes.
package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrClosed        = errors.New("endpoint closed")
	ErrFrameTooLarge = errors.New("frame too large")
	ErrBadFrame      = errors.New("malformed frame header")
	ErrBadAddress    = errors.New("bad address")
	ErrSendOverflow  = errors.New("send buffer full")
)

// EndPoint is one side of a packet connection. ReceivePacket never blocks:
// ok is false when no complete packet has arrived yet.
type EndPoint interface {
	SendPacket(data []byte) error
	ReceivePacket() (data []byte, ok bool, err error)
	Close() error
}

// Listener accepts endpoints in the background and hands them out on Poll.
// A Poll error means the listener is finished and should be discarded.
type Listener interface {
	Poll() ([]EndPoint, error)
	Addresses() []Address
	Close() error
}

// Dial connects to a server at addr.
func Dial(ctx context.Context, addr Address) (EndPoint, error) {
	switch addr.Scheme {
	case SchemeTCP4, SchemeTCP6:
		return DialTCP(ctx, addr)
	case SchemeWebSocket:
		return DialWebSocket(ctx, addr)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrBadAddress, addr.Scheme)
	}
}

// Listen opens a listener for addr.
func Listen(addr Address) (Listener, error) {
	switch addr.Scheme {
	case SchemeTCP4, SchemeTCP6:
		return ListenTCP(addr)
	case SchemeWebSocket:
		return ListenWebSocket(addr)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrBadAddress, addr.Scheme)
	}
}
