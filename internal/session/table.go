// Package session maps issued bearer tokens to authenticated usernames.
// Sessions live only as long as the owning connection; nothing here is
// persisted.
package session

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
)

// Table is the in-memory token -> username mapping. Keyed by token, so the
// same user may hold several concurrent sessions.
type Table struct {
	mu      sync.RWMutex
	byToken map[string]string
}

// NewTable creates an empty session table.
func NewTable() *Table {
	return &Table{byToken: make(map[string]string)}
}

// Create issues a fresh token bound to username.
func (t *Table) Create(username string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	t.mu.Lock()
	t.byToken[token] = username
	t.mu.Unlock()
	return token, nil
}

// Resolve returns the username bound to token, if any.
func (t *Table) Resolve(token string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	username, ok := t.byToken[token]
	return username, ok
}

// Destroy removes token from the table. Destroying an unknown token is a
// no-op.
func (t *Table) Destroy(token string) {
	t.mu.Lock()
	delete(t.byToken, token)
	t.mu.Unlock()
}

// Active returns the number of live sessions.
func (t *Table) Active() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byToken)
}

const alphanums = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// generateToken returns a token in the xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
// form: 32 random alphanumerics, about 190 bits of entropy.
func generateToken() (string, error) {
	parts := make([]string, 0, 5)
	for _, n := range []int{8, 4, 4, 4, 12} {
		s, err := randomString(n)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "-"), nil
}

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = alphanums[int(b)%len(alphanums)]
	}
	return string(buf), nil
}
