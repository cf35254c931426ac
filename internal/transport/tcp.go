package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/tilewars/engine/internal/queue"
)

const (
	readBufferSize = 4096
	writeWait      = 10 * time.Second
)

// TCPEndPoint frames packets over a TCP connection. A background goroutine
// reads the socket; ReceivePacket only looks at what already arrived.
type TCPEndPoint struct {
	conn net.Conn
	in   *inbox

	writeMu sync.Mutex
	once    sync.Once
}

func newTCPEndPoint(conn net.Conn) *TCPEndPoint {
	e := &TCPEndPoint{conn: conn, in: newInbox()}
	go e.readLoop()
	return e
}

// DialTCP connects to a tcp4:// or tcp6:// address.
func DialTCP(ctx context.Context, addr Address) (*TCPEndPoint, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, addr.Scheme, addr.HostPort())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return newTCPEndPoint(conn), nil
}

func (e *TCPEndPoint) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := e.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			e.in.deliver(chunk)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				e.in.fail(ErrClosed)
			} else {
				e.in.fail(fmt.Errorf("tcp read: %w", err))
			}
			return
		}
	}
}

func (e *TCPEndPoint) SendPacket(data []byte) error {
	if err := e.in.failure(); err != nil {
		return err
	}
	frame, err := EncodeFrame(data)
	if err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("tcp set deadline: %w", err)
	}
	if _, err := e.conn.Write(frame); err != nil {
		return fmt.Errorf("tcp write: %w", err)
	}
	return nil
}

func (e *TCPEndPoint) ReceivePacket() ([]byte, bool, error) {
	return e.in.receive()
}

func (e *TCPEndPoint) Close() error {
	var err error
	e.once.Do(func() {
		e.in.fail(ErrClosed)
		err = e.conn.Close()
	})
	return err
}

// RemoteAddr returns the peer's address.
func (e *TCPEndPoint) RemoteAddr() string {
	return e.conn.RemoteAddr().String()
}

// TCPListener accepts TCP connections in the background.
type TCPListener struct {
	ln       net.Listener
	addr     Address
	accepted *queue.Queue[EndPoint]
	state    terminal
	once     sync.Once
}

// ListenTCP binds addr. Port 0 picks a free port; Addresses reports it.
func ListenTCP(addr Address) (*TCPListener, error) {
	ln, err := net.Listen(addr.Scheme, addr.HostPort())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	bound, err := addressFromNet(addr.Scheme, ln.Addr())
	if err != nil {
		_ = ln.Close()
		return nil, err
	}

	l := &TCPListener{
		ln:       ln,
		addr:     bound,
		accepted: queue.New[EndPoint](),
	}
	go l.acceptLoop()
	return l, nil
}

func (l *TCPListener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				l.state.fail(ErrClosed)
			} else {
				l.state.fail(fmt.Errorf("tcp accept: %w", err))
			}
			return
		}
		admit(l.accepted, &l.state, newTCPEndPoint(conn))
	}
}

// Poll returns the connections accepted since the last call.
func (l *TCPListener) Poll() ([]EndPoint, error) {
	failed := l.state.failure()
	return l.accepted.Drain(), failed
}

func (l *TCPListener) Addresses() []Address {
	return []Address{l.addr}
}

// Close stops accepting. Connections not yet polled are closed too.
func (l *TCPListener) Close() error {
	var err error
	l.once.Do(func() {
		l.state.fail(ErrClosed)
		err = l.ln.Close()
		for _, ep := range l.accepted.Drain() {
			_ = ep.Close()
		}
	})
	return err
}
