// Package client implements the messenger side of the direct-messaging
// protocol: one connection, one cached session token, line-delimited JSON
// requests and responses.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"dsmessenger/internal/protocol"
)

// ErrAuthFailed is returned when the server rejects the configured
// credentials.
var ErrAuthFailed = errors.New("authentication failed")

// DirectMessage is one message as seen by the client. Sender is set on
// received messages, Recipient on sent ones; the other side is filled in
// with the client's own username.
type DirectMessage struct {
	Recipient string
	Sender    string
	Message   string
	Timestamp float64
}

// String formats the message with its timestamp and counterparty.
func (m DirectMessage) String() string {
	ts := time.Unix(0, int64(m.Timestamp*1e9)).Format("2006-01-02 15:04:05")
	if m.Sender != "" {
		return fmt.Sprintf("[%s] From: %s: %s", ts, m.Sender, m.Message)
	}
	return fmt.Sprintf("[%s] To: %s: %s", ts, m.Recipient, m.Message)
}

// Client talks to one direct-messaging server on behalf of one user. It owns
// a single connection and a single session token; when the connection is
// lost it reconnects and re-authenticates once before failing an operation.
// Safe for concurrent use.
type Client struct {
	addr     string
	username string
	password string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	token  string
}

// New creates a client for the server at addr (host:port). No connection is
// made until the first operation.
func New(addr, username, password string) *Client {
	return &Client{
		addr:     addr,
		username: username,
		password: password,
	}
}

// Username returns the account this client authenticates as.
func (c *Client) Username() string {
	return c.username
}

// Authenticate ensures the client holds a live session, connecting first if
// needed.
func (c *Client) Authenticate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureSessionLocked()
}

// Send delivers message to recipient.
func (c *Client) Send(message, recipient string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.roundTripLocked(func(token string) ([]byte, error) {
		return protocol.EncodeSendRequest(token, recipient, message)
	})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("send rejected: %s", responseMessage(resp))
	}
	return nil
}

// FetchUnread retrieves and consumes the unread messages for this user.
func (c *Client) FetchUnread() ([]DirectMessage, error) {
	return c.fetch(protocol.FetchUnread)
}

// FetchAll retrieves every stored message for this user, sorted ascending by
// timestamp. Unread messages become read on the server as a side effect.
func (c *Client) FetchAll() ([]DirectMessage, error) {
	return c.fetch(protocol.FetchAll)
}

// Close drops the connection and forgets the session token.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetLocked()
}

func (c *Client) fetch(what protocol.FetchKind) ([]DirectMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.roundTripLocked(func(token string) ([]byte, error) {
		return protocol.EncodeFetchRequest(token, what)
	})
	if err != nil {
		return nil, err
	}

	fetched, ok := resp.(*protocol.FetchResponse)
	if !ok || !resp.OK() {
		return nil, fmt.Errorf("fetch rejected: %s", responseMessage(resp))
	}

	messages := make([]DirectMessage, 0, len(fetched.Messages))
	for _, view := range fetched.Messages {
		dm := DirectMessage{
			Sender:    view.From,
			Recipient: view.Recipient,
			Message:   view.Body,
			Timestamp: view.Timestamp,
		}
		if dm.Sender == "" {
			dm.Sender = c.username
		}
		if dm.Recipient == "" {
			dm.Recipient = c.username
		}
		messages = append(messages, dm)
	}
	return messages, nil
}

// roundTripLocked sends one request built by build and reads its response.
// On a connection failure it reconnects, re-authenticates and retries once.
// Callers hold c.mu.
func (c *Client) roundTripLocked(build func(token string) ([]byte, error)) (protocol.Response, error) {
	for attempt := 0; ; attempt++ {
		if err := c.ensureSessionLocked(); err != nil {
			return nil, err
		}

		line, err := build(c.token)
		if err != nil {
			return nil, err
		}
		resp, err := c.exchangeLocked(line)
		if err == nil {
			return resp, nil
		}

		c.resetLocked()
		if attempt > 0 {
			return nil, err
		}
	}
}

// ensureSessionLocked connects and authenticates if the client is not
// already holding a session token.
func (c *Client) ensureSessionLocked() error {
	if c.conn != nil && c.token != "" {
		return nil
	}

	if c.conn == nil {
		conn, err := net.Dial("tcp", c.addr)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", c.addr, err)
		}
		c.conn = conn
		c.reader = bufio.NewReader(conn)
	}

	line, err := protocol.EncodeAuthRequest(c.username, c.password)
	if err != nil {
		return err
	}
	resp, err := c.exchangeLocked(line)
	if err != nil {
		c.resetLocked()
		return err
	}

	authed, ok := resp.(*protocol.AuthResponse)
	if !ok || !resp.OK() {
		return fmt.Errorf("%w: %s", ErrAuthFailed, responseMessage(resp))
	}
	c.token = authed.Token
	return nil
}

// exchangeLocked writes one request line and decodes the response line.
func (c *Client) exchangeLocked(line []byte) (protocol.Response, error) {
	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reply, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	resp, err := protocol.DecodeResponse([]byte(reply))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// resetLocked drops the connection and session state.
func (c *Client) resetLocked() error {
	var err error
	if c.conn != nil {
		err = c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
	c.token = ""
	return err
}

func responseMessage(resp protocol.Response) string {
	switch r := resp.(type) {
	case *protocol.AuthResponse:
		return r.Message
	case *protocol.StatusResponse:
		return r.Message
	case *protocol.FetchResponse:
		return r.Type
	}
	return "unknown response"
}
