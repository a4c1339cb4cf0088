package client

import (
	"net"
	"testing"

	"dsmessenger/config"
	"dsmessenger/internal/protocol"
	"dsmessenger/internal/session"
	"dsmessenger/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) string {
	t.Helper()

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	srv := protocol.NewServer(&config.Config{}, st, session.NewTable())
	go srv.Serve(listener)

	return listener.Addr().String()
}

func TestSendAndFetch(t *testing.T) {
	addr := testServer(t)

	alice := New(addr, "alice", "p1")
	defer alice.Close()
	bob := New(addr, "bob", "p2")
	defer bob.Close()

	// bob has to exist before alice can message him.
	require.NoError(t, bob.Authenticate())
	require.NoError(t, alice.Send("hello", "bob"))

	messages, err := bob.FetchUnread()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "alice", messages[0].Sender)
	assert.Equal(t, "bob", messages[0].Recipient)
	assert.Equal(t, "hello", messages[0].Message)
	assert.Greater(t, messages[0].Timestamp, 0.0)

	messages, err = bob.FetchUnread()
	require.NoError(t, err)
	assert.Empty(t, messages)

	messages, err = bob.FetchAll()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Message)

	// alice's own mailbox holds the sent copy.
	messages, err = alice.FetchAll()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "alice", messages[0].Sender)
	assert.Equal(t, "bob", messages[0].Recipient)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	addr := testServer(t)

	first := New(addr, "alice", "p1")
	defer first.Close()
	require.NoError(t, first.Authenticate())

	impostor := New(addr, "alice", "wrong")
	defer impostor.Close()
	err := impostor.Authenticate()
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestSendToMissingRecipient(t *testing.T) {
	addr := testServer(t)

	alice := New(addr, "alice", "p1")
	defer alice.Close()

	err := alice.Send("hi", "nobody")
	assert.Error(t, err)
}

func TestReconnectAfterClose(t *testing.T) {
	addr := testServer(t)

	bob := New(addr, "bob", "p2")
	defer bob.Close()
	require.NoError(t, bob.Authenticate())

	alice := New(addr, "alice", "p1")
	defer alice.Close()
	require.NoError(t, alice.Send("one", "bob"))

	// Dropping the connection discards the token; the next operation
	// reconnects and re-authenticates transparently.
	require.NoError(t, alice.Close())
	require.NoError(t, alice.Send("two", "bob"))

	messages, err := bob.FetchUnread()
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestDirectMessageString(t *testing.T) {
	received := DirectMessage{Sender: "alice", Recipient: "bob", Message: "hi", Timestamp: 1700000000}
	assert.Contains(t, received.String(), "From: alice")

	sent := DirectMessage{Recipient: "bob", Message: "hi", Timestamp: 1700000000}
	assert.Contains(t, sent.String(), "To: bob")
}
