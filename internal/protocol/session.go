package protocol

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"dsmessenger/internal/metrics"
	"dsmessenger/internal/session"
	"dsmessenger/internal/store"
)

// Session is the per-connection state machine. It starts unauthenticated,
// moves to authenticated on a successful authenticate request and stays
// there until the peer disconnects.
type Session struct {
	conn     net.Conn
	scanner  *bufio.Scanner
	store    *store.Store
	sessions *session.Table

	// token and username are set while authenticated.
	token    string
	username string
}

// NewSession creates a handler for one accepted connection.
func NewSession(conn net.Conn, st *store.Store, sessions *session.Table) *Session {
	return &Session{
		conn:     conn,
		scanner:  bufio.NewScanner(conn),
		store:    st,
		sessions: sessions,
	}
}

// Handle processes the client session until the peer disconnects or an I/O
// error occurs, then tears down the session.
func (s *Session) Handle() {
	defer s.conn.Close()

	clientAddr := s.conn.RemoteAddr().String()
	log.Printf("New TCP connection from %s", clientAddr)
	metrics.ConnectionsTotal.Inc()

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}

		resp := s.dispatch([]byte(line))
		if !s.writeResponse(clientAddr, resp) {
			break
		}
	}

	if err := s.scanner.Err(); err != nil {
		log.Printf("Read error for %s: %v", clientAddr, err)
	}

	if s.token != "" {
		s.sessions.Destroy(s.token)
		metrics.ActiveSessions.Dec()
		s.token = ""
		s.username = ""
	}

	log.Printf("Connection from %s closed", clientAddr)
}

// dispatch decodes one request line and runs it against the session state.
// Every outcome, including a decode failure, maps to exactly one response.
func (s *Session) dispatch(line []byte) Response {
	req, err := DecodeRequest(line)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("invalid", TypeError).Inc()
		return errorResponse(err.Error())
	}

	var resp Response
	switch req := req.(type) {
	case *AuthRequest:
		resp = s.handleAuthenticate(req)
	case *SendRequest:
		resp = s.handleSend(req)
	case *FetchRequest:
		resp = s.handleFetch(req)
	default:
		resp = errorResponse("Invalid command.")
	}

	status := TypeError
	if resp.OK() {
		status = TypeOK
	}
	metrics.RequestsTotal.WithLabelValues(req.Command(), status).Inc()
	return resp
}

// handleAuthenticate runs auto-registration: an unseen username gets a fresh
// account, a known one must present the stored password.
func (s *Session) handleAuthenticate(req *AuthRequest) Response {
	if s.token != "" {
		return errorResponse("User already authenticated on the active session.")
	}

	stored, created, err := s.store.AuthenticateOrRegister(req.Username, req.Password)
	if err != nil {
		log.Printf("Store failure during authenticate for %q: %v", req.Username, err)
		return errorResponse("Unable to access the user store.")
	}
	if !created && stored != req.Password {
		return errorResponse(fmt.Sprintf("Incorrect password for the user %s", req.Username))
	}

	token, err := s.sessions.Create(req.Username)
	if err != nil {
		log.Printf("Session creation failed for %q: %v", req.Username, err)
		return errorResponse("Unable to create a session.")
	}
	s.token = token
	s.username = req.Username
	metrics.ActiveSessions.Inc()

	message := fmt.Sprintf("Welcome back, %s!", req.Username)
	if created {
		message = fmt.Sprintf("Welcome, %s!", req.Username)
	}
	log.Printf("User %s authenticated successfully", req.Username)
	return &AuthResponse{Type: TypeOK, Message: message, Token: token}
}

func (s *Session) handleSend(req *SendRequest) Response {
	if !s.validToken(req.Token) {
		return errorResponse("Invalid user token.")
	}

	timestamp := float64(time.Now().UnixNano()) / 1e9
	sent, err := s.store.Send(s.username, req.Recipient, req.Message, timestamp)
	if err != nil {
		log.Printf("Store failure during send from %q: %v", s.username, err)
		return errorResponse("Unable to send direct message. Storage failure.")
	}
	if !sent {
		return errorResponse("Unable to send direct message. Recipient may not exist.")
	}
	return &StatusResponse{Type: TypeOK, Message: "Direct message sent"}
}

func (s *Session) handleFetch(req *FetchRequest) Response {
	if !s.validToken(req.Token) {
		return errorResponse("Invalid user token.")
	}

	var views []store.View
	var err error
	switch req.What {
	case FetchUnread:
		views, err = s.store.FetchUnread(s.username)
	default:
		views, err = s.store.FetchAll(s.username)
	}
	if err != nil {
		log.Printf("Store failure during fetch for %q: %v", s.username, err)
		return errorResponse("Unable to fetch messages. Storage failure.")
	}
	return &FetchResponse{Type: TypeOK, Messages: views}
}

// validToken requires the request token to match this connection's own token
// and to still resolve in the session table. Whether the token belongs to
// some other session is never revealed.
func (s *Session) validToken(token string) bool {
	if token == "" || token != s.token {
		return false
	}
	_, ok := s.sessions.Resolve(token)
	return ok
}

// writeResponse encodes and sends one response line. A false return ends the
// session loop.
func (s *Session) writeResponse(clientAddr string, resp Response) bool {
	data, err := EncodeResponse(resp)
	if err != nil {
		log.Printf("Failed to encode response for %s: %v", clientAddr, err)
		return false
	}
	if _, err := s.conn.Write(append(data, '\r', '\n')); err != nil {
		log.Printf("Write error for %s: %v", clientAddr, err)
		return false
	}
	return true
}
