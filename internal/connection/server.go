package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tilewars/engine/internal/dispatcher"
	"github.com/tilewars/engine/internal/logging"
	"github.com/tilewars/engine/internal/transport"
	"github.com/tilewars/engine/pkg/codec"
	"github.com/tilewars/engine/pkg/core"
)

var errRateExceeded = errors.New("packet rate exceeded")

// Advertiser announces a game in SETUP to a metaserver.
type Advertiser interface {
	Advertise(ctx context.Context, version string, addresses []string) error
}

// Recorder receives the session as it is played.
type Recorder interface {
	StartSession(s core.Session) error
	RecordClient(c core.ClientInfo) error
	RecordMessage(m core.Message) error
	EndSession(s core.Session) error
}

// Config configures a Server.
type Config struct {
	Setup   Setup
	Name    string
	Version string

	TickInterval time.Duration

	Advertiser        Advertiser
	AdvertiseInterval time.Duration
	AdvertiseTimeout  time.Duration

	// MaxPacketsPerSecond drops clients that send faster; 0 disables it.
	MaxPacketsPerSecond float64

	Recorder Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

type remote struct {
	info       *core.ClientInfo
	endpoint   transport.EndPoint
	dispatcher *dispatcher.Dispatcher
	limiter    *rate.Limiter
}

// Server is the authoritative host. All methods are safe for concurrent use.
type Server struct {
	mu sync.Mutex

	base      Base
	cfg       Config
	listeners []transport.Listener
	clients   map[core.ClientID]*remote
	doomed    []core.ClientID
	clock     *Clock

	advertise *rate.Limiter
	session   core.Session
	recording bool

	logger *slog.Logger
	gauges gauges
}

// NewServer creates a server in SETUP.
func NewServer(cfg Config) (*Server, error) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}
	if cfg.AdvertiseInterval <= 0 {
		cfg.AdvertiseInterval = 30 * time.Second
	}
	if cfg.AdvertiseTimeout <= 0 {
		cfg.AdvertiseTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	base := cfg.Logger
	if base == nil {
		base = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		clients:   make(map[core.ClientID]*remote),
		clock:     NewClock(cfg.Now),
		advertise: rate.NewLimiter(rate.Every(cfg.AdvertiseInterval), 1),
	}
	s.logger = slog.New(logging.NewContextHandler(base.Handler(), s.logContext))
	s.base = newBase(cfg.Setup, s.logger)

	if err := s.gauges.register(); err != nil {
		s.logger.Warn("Server metrics unavailable", "error", err)
	}
	return s, nil
}

func (s *Server) logContext() []slog.Attr {
	return []slog.Attr{
		slog.String("state", State(s.gauges.state.Load()).String()),
		slog.Float64("clock", s.gauges.clockSeconds()),
		slog.Int64("clients", s.gauges.clients.Load()),
	}
}

func (s *Server) publishLocked() {
	s.gauges.state.Store(int32(s.base.state))
	s.gauges.clients.Store(int64(len(s.clients)))
	if s.base.game != nil {
		s.gauges.setClock(s.base.game.Clock().Value())
	}
}

func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.state
}

// AddListener registers a source of new clients. Listeners are dropped
// for good once the game is initialised.
func (s *Server) AddListener(l transport.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base.state != StateSetup {
		_ = l.Close()
		return ErrNotAccepting
	}
	s.listeners = append(s.listeners, l)
	return nil
}

// AddClient admits an endpoint under the smallest unused id.
func (s *Server) AddClient(ep transport.EndPoint) (core.ClientID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.publishLocked()
	id, err := s.addClientLocked(ep)
	s.reapLocked()
	return id, err
}

// RemoveClient disconnects a client; unknown ids are ignored.
func (s *Server) RemoveClient(id core.ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.publishLocked()
	s.removeClientLocked(id, nil)
	s.reapLocked()
}

func (s *Server) addClientLocked(ep transport.EndPoint) (core.ClientID, error) {
	if s.base.state != StateSetup {
		_ = ep.Close()
		return 0, ErrNotAccepting
	}

	id := core.ClientID(1)
	for s.clients[id] != nil {
		id++
	}

	logger := s.logger.With("client", id)
	d, err := dispatcher.New("server", logging.NewSlogDispatcherLogger(logger))
	if err != nil {
		_ = ep.Close()
		return 0, err
	}

	r := &remote{
		info:       &core.ClientInfo{ID: id, Name: fmt.Sprintf("client-%d", id)},
		endpoint:   ep,
		dispatcher: d,
	}
	if s.cfg.MaxPacketsPerSecond > 0 {
		burst := max(1, int(s.cfg.MaxPacketsPerSecond))
		r.limiter = rate.NewLimiter(rate.Limit(s.cfg.MaxPacketsPerSecond), burst)
	}
	d.Register(tagMessage, func(p dispatcher.Packet) error { return s.handleMessageLocked(r, p) })
	d.Register(tagReadyToInit, func(p dispatcher.Packet) error { return s.handleReadyLocked(r, p, &r.info.ReadyToInit) }, dispatcher.Logged())
	d.Register(tagReadyToStart, func(p dispatcher.Packet) error { return s.handleReadyLocked(r, p, &r.info.ReadyToStart) }, dispatcher.Logged())

	s.clients[id] = r
	s.base.roster[id] = r.info

	s.broadcastLocked(tagClientInfo, codec.EncodeClientInfo(*r.info))
	for _, other := range s.sortedIDsLocked() {
		if other != id {
			s.sendLocked(r, tagClientInfo, codec.EncodeClientInfo(*s.clients[other].info))
		}
	}

	s.logger.Info("Client joined", "id", id)
	return id, nil
}

// removeClientLocked drops a client and tells the others. Broadcast
// failures are queued on doomed; callers finish with reapLocked.
func (s *Server) removeClientLocked(id core.ClientID, reason error) {
	r, ok := s.clients[id]
	if !ok {
		return
	}
	delete(s.clients, id)
	delete(s.base.roster, id)
	_ = r.endpoint.Close()
	if s.base.game != nil {
		if n := s.base.game.RemoveClient(id); n > 0 {
			s.logger.Debug("Discarded pending messages", "id", id, "count", n)
		}
	}

	if reason != nil {
		s.logger.Warn("Dropping client", "id", id, "error", reason)
	} else {
		s.logger.Info("Client left", "id", id)
	}
	s.broadcastLocked(tagClientLeft, codec.EncodeClientID(id))
}

func (s *Server) reapLocked() {
	for len(s.doomed) > 0 {
		id := s.doomed[0]
		s.doomed = s.doomed[1:]
		s.removeClientLocked(id, errors.New("send failed"))
	}
}

func (s *Server) sendLocked(r *remote, tag byte, payload []byte) {
	p := dispatcher.Packet{Tag: tag, Payload: payload}
	if err := r.endpoint.SendPacket(p.Bytes()); err != nil {
		s.logger.Debug("Send failed", "id", r.info.ID, "error", err)
		s.doomed = append(s.doomed, r.info.ID)
	}
}

func (s *Server) broadcastLocked(tag byte, payload []byte) {
	for _, id := range s.sortedIDsLocked() {
		s.sendLocked(s.clients[id], tag, payload)
	}
}

func (s *Server) sortedIDsLocked() []core.ClientID {
	return slices.Sorted(maps.Keys(s.clients))
}

func (s *Server) handleMessageLocked(r *remote, p dispatcher.Packet) error {
	if s.base.game == nil {
		return fmt.Errorf("%w: message before init", ErrInvalidPacket)
	}
	m, err := codec.DecodeMessage(p.Payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPacket, err)
	}
	m.Client = r.info.ID
	s.base.game.InsertMessage(m)
	return nil
}

func (s *Server) handleReadyLocked(r *remote, p dispatcher.Packet, flag *bool) error {
	if len(p.Payload) != 0 {
		return fmt.Errorf("%w: ready signal carries payload", ErrInvalidPacket)
	}
	if *flag {
		return nil
	}
	*flag = true
	s.broadcastLocked(tagClientInfo, codec.EncodeClientInfo(*r.info))
	return s.checkReadyLocked()
}

func (s *Server) allReadyLocked(flag func(*core.ClientInfo) bool) bool {
	if len(s.clients) == 0 {
		return false
	}
	for _, r := range s.clients {
		if !flag(r.info) {
			return false
		}
	}
	return true
}

// checkReadyLocked performs the SETUP to INIT and INIT to PLAY transitions
// once every client has signalled.
func (s *Server) checkReadyLocked() error {
	if s.base.state == StateSetup && s.allReadyLocked(func(c *core.ClientInfo) bool { return c.ReadyToInit }) {
		s.broadcastLocked(tagReadyToInit, nil)
		if err := s.base.InitGame(); err != nil {
			return err
		}
		for _, l := range s.listeners {
			_ = l.Close()
		}
		s.listeners = nil
	}

	if s.base.state == StateInit && s.allReadyLocked(func(c *core.ClientInfo) bool { return c.ReadyToStart }) {
		s.broadcastLocked(tagReadyToStart, nil)
		if err := s.base.StartGame(); err != nil {
			return err
		}
		s.clock.Start()
		s.startRecordingLocked()
	}
	return nil
}

// Update runs one server tick: accept, read, simulate, broadcast. It only
// fails on broken game content.
func (s *Server) Update() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.publishLocked()

	if s.base.state == StateEnd {
		return nil
	}
	if s.base.state != StateSetup && len(s.clients) == 0 {
		s.endLocked()
		return nil
	}

	if s.base.state == StateSetup && len(s.listeners) > 0 {
		s.advertiseLocked()
	}
	s.pollListenersLocked()

	for _, id := range s.sortedIDsLocked() {
		r, ok := s.clients[id]
		if !ok {
			continue
		}
		if err := s.drainLocked(r); err != nil {
			if errors.Is(err, ErrContent) {
				return err
			}
			s.removeClientLocked(id, err)
		}
		s.reapLocked()
	}

	// A departure can leave everyone remaining ready.
	if err := s.checkReadyLocked(); err != nil {
		return err
	}
	s.reapLocked()

	if s.base.state == StatePlay {
		s.advanceLocked()
		s.reapLocked()
	}
	return nil
}

func (s *Server) drainLocked(r *remote) error {
	for {
		data, ok, err := r.endpoint.ReceivePacket()
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		if !ok {
			return nil
		}
		if r.limiter != nil && !r.limiter.Allow() {
			return errRateExceeded
		}
		if err := r.dispatcher.DispatchFrame(data); err != nil {
			if errors.Is(err, dispatcher.ErrUnknownTag) {
				return fmt.Errorf("%w: %w", ErrInvalidPacket, err)
			}
			return err
		}
	}
}

func (s *Server) pollListenersLocked() {
	kept := s.listeners[:0]
	for _, l := range s.listeners {
		eps, err := l.Poll()
		for _, ep := range eps {
			if _, err := s.addClientLocked(ep); err != nil {
				s.logger.Warn("Rejected connection", "error", err)
			}
		}
		if err != nil {
			s.logger.Info("Listener closed", "error", err)
			_ = l.Close()
			continue
		}
		kept = append(kept, l)
	}
	clear(s.listeners[len(kept):])
	s.listeners = kept
}

// advanceLocked runs the game to wall time, rebroadcasting accepted
// messages, then sends the heartbeat that lets clients catch up to it.
func (s *Server) advanceLocked() {
	g := s.base.game
	g.RunUntil(s.clock.Elapsed(), func(m core.Message) {
		s.broadcastLocked(tagMessage, codec.EncodeMessage(m))
		s.recordLocked(func(r Recorder) error { return r.RecordMessage(m) })
	})
	s.broadcastLocked(tagMessage, codec.EncodeMessage(core.Heartbeat(g.Clock())))
}

func (s *Server) advertiseLocked() {
	if s.cfg.Advertiser == nil || !s.advertise.Allow() {
		return
	}
	var addrs []string
	for _, l := range s.listeners {
		for _, a := range l.Addresses() {
			addrs = append(addrs, a.String())
		}
	}

	adv, version, timeout, logger := s.cfg.Advertiser, s.cfg.Version, s.cfg.AdvertiseTimeout, s.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := adv.Advertise(ctx, version, addrs); err != nil {
			logger.Debug("Metaserver advertisement failed", "error", err)
		}
	}()
}

func (s *Server) startRecordingLocked() {
	if s.cfg.Recorder == nil {
		return
	}
	s.session = core.Session{
		ID:        uuid.NewString(),
		Name:      s.cfg.Name,
		Version:   s.cfg.Version,
		MapPath:   s.cfg.Setup.MapPath,
		TechPath:  s.cfg.Setup.TechTreePath,
		Digest:    ContentDigest(s.base.game),
		StartTime: s.cfg.Now(),
	}
	if err := s.cfg.Recorder.StartSession(s.session); err != nil {
		s.logger.Warn("Recording disabled", "error", err)
		return
	}
	s.recording = true
	for _, c := range s.base.Roster() {
		s.recordLocked(func(r Recorder) error { return r.RecordClient(c) })
	}
	s.logger.Info("Recording session", "session", s.session.ID)
}

func (s *Server) recordLocked(fn func(Recorder) error) {
	if !s.recording {
		return
	}
	if err := fn(s.cfg.Recorder); err != nil {
		s.logger.Warn("Recording failed, stopping", "session", s.session.ID, "error", err)
		s.recording = false
	}
}

func (s *Server) stopRecordingLocked() {
	if !s.recording {
		return
	}
	s.session.EndTime = s.cfg.Now()
	if g := s.base.game; g != nil {
		s.session.EndClock = g.Clock().Value()
		s.session.EndHash = g.StateHashHex()
	}
	if err := s.cfg.Recorder.EndSession(s.session); err != nil {
		s.logger.Warn("Failed to end recording", "session", s.session.ID, "error", err)
	}
	s.recording = false
}

func (s *Server) endLocked() {
	s.base.state = StateEnd
	s.clock.Pause()
	for _, l := range s.listeners {
		_ = l.Close()
	}
	s.listeners = nil
	s.stopRecordingLocked()
	s.logger.Info("Game ended")
}

// Run calls Update every tick until the game ends, content breaks or ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if err := s.Update(); err != nil {
			return err
		}
		if s.State() == StateEnd {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close disconnects everyone and ends the game.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.publishLocked()

	for _, id := range s.sortedIDsLocked() {
		_ = s.clients[id].endpoint.Close()
		delete(s.clients, id)
		delete(s.base.roster, id)
	}
	s.doomed = nil
	if s.base.state != StateEnd {
		s.endLocked()
	}
	s.gauges.unregister()
	return nil
}

// Status is a point-in-time view of the server.
type Status struct {
	Name            string            `json:"name"`
	State           State             `json:"state"`
	Clock           float64           `json:"clock"`
	Clients         []core.ClientInfo `json:"clients"`
	Listeners       []string          `json:"listeners"`
	Objects         int               `json:"objects"`
	PendingMessages int               `json:"pendingMessages"`
	StateHash       string            `json:"stateHash,omitempty"`
	Session         string            `json:"session,omitempty"`
}

// Status returns a consistent snapshot of the server.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Name:    s.cfg.Name,
		State:   s.base.state,
		Clients: s.base.Roster(),
		Session: s.session.ID,
	}
	for _, l := range s.listeners {
		for _, a := range l.Addresses() {
			st.Listeners = append(st.Listeners, a.String())
		}
	}
	if g := s.base.game; g != nil {
		st.Clock = g.Clock().Value()
		st.Objects = len(g.ObjectIDs())
		st.PendingMessages = g.PendingMessages()
		st.StateHash = g.StateHashHex()
	}
	return st
}
