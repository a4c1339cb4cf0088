package session

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenShape = regexp.MustCompile(`^[A-Za-z0-9]{8}-[A-Za-z0-9]{4}-[A-Za-z0-9]{4}-[A-Za-z0-9]{4}-[A-Za-z0-9]{12}$`)

func TestCreateResolveDestroy(t *testing.T) {
	table := NewTable()

	token, err := table.Create("alice")
	require.NoError(t, err)
	assert.Regexp(t, tokenShape, token)

	username, ok := table.Resolve(token)
	assert.True(t, ok)
	assert.Equal(t, "alice", username)
	assert.Equal(t, 1, table.Active())

	table.Destroy(token)
	_, ok = table.Resolve(token)
	assert.False(t, ok)
	assert.Zero(t, table.Active())

	// Destroy is idempotent.
	table.Destroy(token)
	assert.Zero(t, table.Active())
}

func TestResolveUnknownToken(t *testing.T) {
	table := NewTable()
	_, ok := table.Resolve("no-such-token")
	assert.False(t, ok)
}

func TestSameUserMayHoldSeveralSessions(t *testing.T) {
	table := NewTable()

	first, err := table.Create("alice")
	require.NoError(t, err)
	second, err := table.Create("alice")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, table.Active())

	// Destroying one session leaves the other intact.
	table.Destroy(first)
	username, ok := table.Resolve(second)
	assert.True(t, ok)
	assert.Equal(t, "alice", username)
}

func TestTokensDoNotRepeat(t *testing.T) {
	table := NewTable()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token, err := table.Create("alice")
		require.NoError(t, err)
		require.False(t, seen[token], "token %q issued twice", token)
		seen[token] = true
	}
}
