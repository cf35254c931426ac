package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tilewars/engine/internal/dispatcher"
	"github.com/tilewars/engine/internal/techtree"
	"github.com/tilewars/engine/internal/transport"
	"github.com/tilewars/engine/internal/worldmap"
	"github.com/tilewars/engine/pkg/core"
	"github.com/tilewars/engine/pkg/units"
)

const testMap = `
tiles:
  - {symbol: ".", texture: grass, passable: true}
rows:
  - "........"
  - "........"
  - "........"
  - "........"
  - "........"
  - "........"
  - "........"
  - "........"
`

const testTree = `
objectTypes:
  - {id: worker, maxVelocity: 2, radius: 0.4, maxHitPoints: 50}
players:
  - {name: Red}
  - {name: Blue}
objects:
  - {type: worker, owner: 1, position: [1, 1]}
  - {type: worker, owner: 2, position: [6, 6]}
`

const redWorker, blueWorker core.ObjectID = 1, 2

func testSetup(t *testing.T) Setup {
	t.Helper()
	m, err := worldmap.Parse([]byte(testMap), "yaml")
	require.NoError(t, err)
	tree, err := techtree.Parse([]byte(testTree), "yaml")
	require.NoError(t, err)
	return Setup{Map: m, TechTree: tree}
}

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestServer(t *testing.T, mutate ...func(*Config)) (*Server, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	cfg := Config{
		Setup:   testSetup(t),
		Name:    "test",
		Version: "0.1.0",
		Now:     clock.now,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

// rawPeer speaks the wire protocol by hand from the far end of a pipe.
type rawPeer struct {
	t  *testing.T
	ep *transport.PipeEnd
}

func joinRaw(t *testing.T, s *Server) (core.ClientID, rawPeer) {
	t.Helper()
	serverEnd, peerEnd := transport.NewPipePair()
	id, err := s.AddClient(serverEnd)
	require.NoError(t, err)
	return id, rawPeer{t: t, ep: peerEnd}
}

func (p rawPeer) send(tag byte, payload []byte) {
	p.t.Helper()
	require.NoError(p.t, p.ep.SendPacket(dispatcher.Packet{Tag: tag, Payload: payload}.Bytes()))
}

func (p rawPeer) packets() []dispatcher.Packet {
	p.t.Helper()
	var out []dispatcher.Packet
	for {
		data, ok, err := p.ep.ReceivePacket()
		if err != nil || !ok {
			return out
		}
		pkt, err := dispatcher.Split(data)
		require.NoError(p.t, err)
		out = append(out, pkt)
	}
}

func tags(pkts []dispatcher.Packet) string {
	b := make([]byte, len(pkts))
	for i, p := range pkts {
		b[i] = p.Tag
	}
	return string(b)
}

func seconds(s float64) units.Scalar[units.Time] {
	return units.Of[units.Time](s)
}

type fakeListener struct {
	mu      sync.Mutex
	pending []transport.EndPoint
	addr    transport.Address
	closed  bool
	pollErr error
}

func (l *fakeListener) Poll() ([]transport.EndPoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	eps := l.pending
	l.pending = nil
	return eps, l.pollErr
}

func (l *fakeListener) Addresses() []transport.Address {
	return []transport.Address{l.addr}
}

func (l *fakeListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeListener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type fakeAdvertiser struct {
	calls chan []string
}

func (a *fakeAdvertiser) Advertise(_ context.Context, _ string, addresses []string) error {
	a.calls <- addresses
	return nil
}

type fakeRecorder struct {
	sessions []core.Session
	clients  []core.ClientInfo
	messages []core.Message
	ended    *core.Session
}

func (r *fakeRecorder) StartSession(s core.Session) error {
	r.sessions = append(r.sessions, s)
	return nil
}

func (r *fakeRecorder) RecordClient(c core.ClientInfo) error {
	r.clients = append(r.clients, c)
	return nil
}

func (r *fakeRecorder) RecordMessage(m core.Message) error {
	r.messages = append(r.messages, m)
	return nil
}

func (r *fakeRecorder) EndSession(s core.Session) error {
	r.ended = &s
	return nil
}
