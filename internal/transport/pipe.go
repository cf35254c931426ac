package transport

import (
	"sync/atomic"
)

// PipeEnd is one side of an in-process connection.
type PipeEnd struct {
	in     *inbox
	peer   *PipeEnd
	closed *atomic.Bool
}

// NewPipePair returns two connected endpoints. Closing either closes both.
func NewPipePair() (*PipeEnd, *PipeEnd) {
	closed := &atomic.Bool{}
	a := &PipeEnd{in: newInbox(), closed: closed}
	b := &PipeEnd{in: newInbox(), closed: closed}
	a.peer, b.peer = b, a
	return a, b
}

func (p *PipeEnd) SendPacket(data []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	frame, err := EncodeFrame(data)
	if err != nil {
		return err
	}
	p.peer.in.deliver(frame)
	return nil
}

func (p *PipeEnd) ReceivePacket() ([]byte, bool, error) {
	return p.in.receive()
}

func (p *PipeEnd) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.in.fail(ErrClosed)
	p.peer.in.fail(ErrClosed)
	return nil
}
