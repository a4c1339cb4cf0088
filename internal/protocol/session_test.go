package protocol

import (
	"bufio"
	"net"
	"testing"
	"time"

	"dsmessenger/config"
	"dsmessenger/internal/session"
	"dsmessenger/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer starts a protocol server on an ephemeral port and returns its
// address and session table.
func testServer(t *testing.T) (string, *session.Table) {
	t.Helper()

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewTable()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	srv := NewServer(&config.Config{}, st, sessions)
	go srv.Serve(listener)

	return listener.Addr().String(), sessions
}

type testConn struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dialTest(t *testing.T, addr string) *testConn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testConn{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

// roundTrip writes one raw line and decodes the response.
func (c *testConn) roundTrip(line string) Response {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)

	reply, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	resp, err := DecodeResponse([]byte(reply))
	require.NoError(c.t, err)
	return resp
}

func (c *testConn) authenticate(username, password string) *AuthResponse {
	c.t.Helper()
	line, err := EncodeAuthRequest(username, password)
	require.NoError(c.t, err)
	resp := c.roundTrip(string(line))
	authed, ok := resp.(*AuthResponse)
	require.True(c.t, ok, "expected auth response, got %#v", resp)
	return authed
}

func TestConcreteScenario(t *testing.T) {
	addr, _ := testServer(t)

	alice := dialTest(t, addr)
	authAlice := alice.authenticate("alice", "p1")
	require.Equal(t, TypeOK, authAlice.Type)
	require.NotEmpty(t, authAlice.Token)

	bob := dialTest(t, addr)
	authBob := bob.authenticate("bob", "p2")
	require.Equal(t, TypeOK, authBob.Type)
	require.NotEmpty(t, authBob.Token)
	require.NotEqual(t, authAlice.Token, authBob.Token)

	// alice sends "hello" to bob.
	line, err := EncodeSendRequest(authAlice.Token, "bob", "hello")
	require.NoError(t, err)
	resp := alice.roundTrip(string(line))
	require.True(t, resp.OK(), "send failed: %#v", resp)

	// bob fetches unread: exactly one message from alice.
	line, err = EncodeFetchRequest(authBob.Token, FetchUnread)
	require.NoError(t, err)
	fetched := bob.roundTrip(string(line)).(*FetchResponse)
	require.Equal(t, TypeOK, fetched.Type)
	require.Len(t, fetched.Messages, 1)
	assert.Equal(t, "alice", fetched.Messages[0].From)
	assert.Equal(t, "hello", fetched.Messages[0].Body)
	assert.Greater(t, fetched.Messages[0].Timestamp, 0.0)

	// A second fetch-unread is empty.
	fetched = bob.roundTrip(string(line)).(*FetchResponse)
	assert.Empty(t, fetched.Messages)

	// Fetch-all still shows the message, now read.
	line, err = EncodeFetchRequest(authBob.Token, FetchAll)
	require.NoError(t, err)
	fetched = bob.roundTrip(string(line)).(*FetchResponse)
	require.Len(t, fetched.Messages, 1)
	assert.Equal(t, "hello", fetched.Messages[0].Body)
}

func TestAutoRegistrationAndWrongPassword(t *testing.T) {
	addr, _ := testServer(t)

	first := dialTest(t, addr)
	resp := first.authenticate("alice", "p1")
	assert.Equal(t, TypeOK, resp.Type)

	// Returning with the right password succeeds on a new connection.
	second := dialTest(t, addr)
	resp = second.authenticate("alice", "p1")
	assert.Equal(t, TypeOK, resp.Type)

	// A wrong password is rejected and the connection stays unauthenticated.
	third := dialTest(t, addr)
	raw, err := EncodeAuthRequest("alice", "wrong")
	require.NoError(t, err)
	status := third.roundTrip(string(raw))
	require.False(t, status.OK())

	// After the rejection the same connection can still authenticate.
	resp = third.authenticate("alice", "p1")
	assert.Equal(t, TypeOK, resp.Type)
}

func TestSecondAuthenticateRejected(t *testing.T) {
	addr, _ := testServer(t)

	conn := dialTest(t, addr)
	resp := conn.authenticate("alice", "p1")
	require.Equal(t, TypeOK, resp.Type)

	raw, err := EncodeAuthRequest("alice", "p1")
	require.NoError(t, err)
	status := conn.roundTrip(string(raw))
	require.False(t, status.OK())
	assert.Equal(t, "User already authenticated on the active session.",
		status.(*StatusResponse).Message)
}

func TestRequestsWithoutSessionRejected(t *testing.T) {
	addr, _ := testServer(t)
	conn := dialTest(t, addr)

	line, err := EncodeSendRequest("made-up-token", "bob", "hi")
	require.NoError(t, err)
	resp := conn.roundTrip(string(line))
	require.False(t, resp.OK())
	assert.Equal(t, "Invalid user token.", resp.(*StatusResponse).Message)

	line, err = EncodeFetchRequest("", FetchAll)
	require.NoError(t, err)
	resp = conn.roundTrip(string(line))
	require.False(t, resp.OK())
	assert.Equal(t, "Invalid user token.", resp.(*StatusResponse).Message)
}

func TestForeignTokenRejected(t *testing.T) {
	addr, _ := testServer(t)

	alice := dialTest(t, addr)
	authAlice := alice.authenticate("alice", "p1")
	require.Equal(t, TypeOK, authAlice.Type)

	bob := dialTest(t, addr)
	authBob := bob.authenticate("bob", "p2")
	require.Equal(t, TypeOK, authBob.Type)

	// bob's connection presenting alice's live token is rejected without
	// revealing that the token exists elsewhere.
	line, err := EncodeFetchRequest(authAlice.Token, FetchAll)
	require.NoError(t, err)
	resp := bob.roundTrip(string(line))
	require.False(t, resp.OK())
	assert.Equal(t, "Invalid user token.", resp.(*StatusResponse).Message)
}

func TestTokenRemovedFromTableRejected(t *testing.T) {
	addr, sessions := testServer(t)

	conn := dialTest(t, addr)
	authed := conn.authenticate("alice", "p1")
	require.Equal(t, TypeOK, authed.Type)

	// The connection still remembers its token, but the session table no
	// longer holds it.
	sessions.Destroy(authed.Token)

	line, err := EncodeFetchRequest(authed.Token, FetchAll)
	require.NoError(t, err)
	resp := conn.roundTrip(string(line))
	require.False(t, resp.OK())
	assert.Equal(t, "Invalid user token.", resp.(*StatusResponse).Message)
}

func TestSessionDestroyedOnDisconnect(t *testing.T) {
	addr, sessions := testServer(t)

	conn := dialTest(t, addr)
	authed := conn.authenticate("alice", "p1")
	require.Equal(t, TypeOK, authed.Type)

	_, ok := sessions.Resolve(authed.Token)
	require.True(t, ok)

	require.NoError(t, conn.conn.Close())

	// The handler tears the session down asynchronously.
	require.Eventually(t, func() bool {
		_, ok := sessions.Resolve(authed.Token)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMalformedInputKeepsConnectionOpen(t *testing.T) {
	addr, _ := testServer(t)
	conn := dialTest(t, addr)

	resp := conn.roundTrip("not json at all")
	require.False(t, resp.OK())
	assert.Equal(t, "Incorrectly formatted JSON message.", resp.(*StatusResponse).Message)

	resp = conn.roundTrip(`{"frobnicate": 1}`)
	require.False(t, resp.OK())
	assert.Equal(t, "Invalid command.", resp.(*StatusResponse).Message)

	// The connection still works for a real request afterwards.
	authed := conn.authenticate("alice", "p1")
	assert.Equal(t, TypeOK, authed.Type)
}

func TestSendToMissingRecipient(t *testing.T) {
	addr, _ := testServer(t)

	conn := dialTest(t, addr)
	authed := conn.authenticate("alice", "p1")
	require.Equal(t, TypeOK, authed.Type)

	line, err := EncodeSendRequest(authed.Token, "nobody", "hi")
	require.NoError(t, err)
	resp := conn.roundTrip(string(line))
	require.False(t, resp.OK())
	assert.Equal(t, "Unable to send direct message. Recipient may not exist.",
		resp.(*StatusResponse).Message)

	// No sent record was appended for alice.
	line, err = EncodeFetchRequest(authed.Token, FetchAll)
	require.NoError(t, err)
	fetched := conn.roundTrip(string(line)).(*FetchResponse)
	assert.Empty(t, fetched.Messages)
}
