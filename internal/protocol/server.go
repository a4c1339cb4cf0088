package protocol

import (
	"errors"
	"log"
	"net"

	"dsmessenger/config"
	"dsmessenger/internal/session"
	"dsmessenger/internal/store"
)

// Server represents the TCP protocol server
type Server struct {
	config   *config.Config
	store    *store.Store
	sessions *session.Table
}

// NewServer creates a new TCP protocol server
func NewServer(cfg *config.Config, st *store.Store, sessions *session.Table) *Server {
	return &Server{
		config:   cfg,
		store:    st,
		sessions: sessions,
	}
}

// Start listens on the configured TCP port and serves connections until the
// listener fails.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.GetTCPAddr())
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve accepts connections from listener, one handler goroutine per
// connection. Accept errors are logged and the loop continues.
func (s *Server) Serve(listener net.Listener) error {
	defer listener.Close()

	log.Printf("🔌 TCP server listening on %s", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Printf("Failed to accept connection: %v", err)
			continue
		}

		go NewSession(conn, s.store, s.sessions).Handle()
	}
}
