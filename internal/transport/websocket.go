package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/tilewars/engine/internal/queue"
)

const sendChSize = 1024

// WebSocketEndPoint carries frames inside binary websocket messages with a
// single write goroutine.
type WebSocketEndPoint struct {
	mu     sync.Mutex
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{} // closed on shutdown
	closed bool

	in     *inbox
	logger *slog.Logger
}

func newWebSocketEndPoint(conn *ws.Conn, logger *slog.Logger) *WebSocketEndPoint {
	if logger == nil {
		logger = slog.Default()
	}
	e := &WebSocketEndPoint{
		conn:   conn,
		sendCh: make(chan []byte, sendChSize),
		done:   make(chan struct{}),
		in:     newInbox(),
		logger: logger,
	}
	go e.writeLoop()
	go e.readLoop()
	return e
}

// DialWebSocket connects to a ws:// address.
func DialWebSocket(ctx context.Context, addr Address) (*WebSocketEndPoint, error) {
	conn, _, err := ws.DefaultDialer.DialContext(ctx, addr.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", addr, err)
	}
	return newWebSocketEndPoint(conn, nil), nil
}

// writeLoop drains sendCh and writes messages to the socket. It returns on
// error or shutdown.
func (e *WebSocketEndPoint) writeLoop() {
	for {
		select {
		case <-e.done:
			return
		case data := <-e.sendCh:
			if err := e.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				e.in.fail(fmt.Errorf("websocket set deadline: %w", err))
				return
			}
			if err := e.conn.WriteMessage(ws.BinaryMessage, data); err != nil {
				e.logger.Debug("WebSocket write error", "error", err)
				e.in.fail(fmt.Errorf("websocket write: %w", err))
				return
			}
		}
	}
}

func (e *WebSocketEndPoint) readLoop() {
	for {
		kind, message, err := e.conn.ReadMessage()
		if err != nil {
			select {
			case <-e.done:
				e.in.fail(ErrClosed)
				return
			default:
			}
			if ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				e.in.fail(ErrClosed)
			} else {
				e.in.fail(fmt.Errorf("websocket read: %w", err))
			}
			return
		}
		if kind != ws.BinaryMessage {
			e.logger.Debug("Ignoring non-binary websocket message", "type", kind)
			continue
		}
		e.in.deliver(message)
	}
}

// SendPacket queues a frame for the write loop. A full queue is a failure:
// dropping a packet would desynchronise the peer.
func (e *WebSocketEndPoint) SendPacket(data []byte) error {
	if err := e.in.failure(); err != nil {
		return err
	}
	frame, err := EncodeFrame(data)
	if err != nil {
		return err
	}
	select {
	case e.sendCh <- frame:
		return nil
	default:
		e.in.fail(ErrSendOverflow)
		return ErrSendOverflow
	}
}

func (e *WebSocketEndPoint) ReceivePacket() ([]byte, bool, error) {
	return e.in.receive()
}

// Close sends a close frame and shuts down both loops.
func (e *WebSocketEndPoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.done)
	e.mu.Unlock()

	e.in.fail(ErrClosed)
	_ = e.conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return e.conn.Close()
}

// WebSocketListener upgrades HTTP requests on its path to endpoints. It is
// an http.Handler so it can be mounted on any server; ListenWebSocket runs
// one of its own.
type WebSocketListener struct {
	path     string
	upgrader ws.Upgrader
	accepted *queue.Queue[EndPoint]
	state    terminal
	logger   *slog.Logger

	srv  *http.Server
	addr Address
	once sync.Once
}

// NewWebSocketListener returns an unbound listener accepting upgrades on path.
func NewWebSocketListener(path string, logger *slog.Logger) *WebSocketListener {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = "/"
	}
	return &WebSocketListener{
		path:     path,
		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		accepted: queue.New[EndPoint](),
		logger:   logger,
	}
}

// ListenWebSocket binds addr and serves upgrades on addr.Path.
func ListenWebSocket(addr Address) (*WebSocketListener, error) {
	ln, err := net.Listen("tcp", addr.HostPort())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	bound, err := addressFromNet(SchemeWebSocket, ln.Addr())
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	bound.Path = addr.Path

	l := NewWebSocketListener(addr.Path, nil)
	l.addr = bound
	l.srv = &http.Server{Handler: l, ReadHeaderTimeout: writeWait}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.state.fail(fmt.Errorf("websocket serve: %w", err))
			return
		}
		l.state.fail(ErrClosed)
	}()
	return l, nil
}

func (l *WebSocketListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != l.path {
		http.NotFound(w, r)
		return
	}
	if l.state.failure() != nil {
		http.Error(w, "not accepting connections", http.StatusServiceUnavailable)
		return
	}
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	admit(l.accepted, &l.state, newWebSocketEndPoint(conn, l.logger))
}

func (l *WebSocketListener) Poll() ([]EndPoint, error) {
	failed := l.state.failure()
	return l.accepted.Drain(), failed
}

// Addresses is empty for a listener mounted on a foreign server.
func (l *WebSocketListener) Addresses() []Address {
	if l.srv == nil {
		return nil
	}
	return []Address{l.addr}
}

func (l *WebSocketListener) Close() error {
	var err error
	l.once.Do(func() {
		l.state.fail(ErrClosed)
		if l.srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err = l.srv.Shutdown(ctx)
		}
		for _, ep := range l.accepted.Drain() {
			_ = ep.Close()
		}
	})
	return err
}
