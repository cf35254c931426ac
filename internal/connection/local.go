package connection

import (
	"github.com/tilewars/engine/internal/transport"
)

// LocalClient plays on the same process as its server over an in-memory
// pipe. Its Update ticks the server first.
type LocalClient struct {
	*Client
	server *Server
}

// CreateLocalClient joins a new in-process client to the server.
func (s *Server) CreateLocalClient() (*LocalClient, error) {
	serverEnd, clientEnd := transport.NewPipePair()
	if _, err := s.AddClient(serverEnd); err != nil {
		_ = clientEnd.Close()
		return nil, err
	}

	c, err := NewClient(clientEnd, s.cfg.Setup, s.logger.With("local", true))
	if err != nil {
		_ = clientEnd.Close()
		return nil, err
	}
	return &LocalClient{Client: c, server: s}, nil
}

func (l *LocalClient) Update() error {
	if err := l.server.Update(); err != nil {
		return err
	}
	return l.Client.Update()
}
