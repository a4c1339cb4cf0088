package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"dsmessenger/internal/metrics"
)

// UsersFile is the name of the mailbox document inside the store directory.
const UsersFile = "users.json"

// ErrUserNotFound is returned when the subject username has no account.
var ErrUserNotFound = errors.New("user not found")

// Store is the durable mapping from username to account. One mutex guards
// both the in-memory map and the on-disk document; every mutation rewrites
// the whole file before the lock is released.
type Store struct {
	mu    sync.Mutex
	path  string
	users map[string]*Account
}

// Open loads the store from dir, creating the directory and an empty
// document if they don't exist yet.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &Store{
		path:  filepath.Join(dir, UsersFile),
		users: make(map[string]*Account),
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.flushLocked(); err != nil {
			return nil, err
		}
		log.Printf("✅ Created empty mailbox store: %s", s.path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	if err := json.Unmarshal(data, &s.users); err != nil {
		return nil, fmt.Errorf("failed to parse store file %s: %w", s.path, err)
	}
	if s.users == nil {
		s.users = make(map[string]*Account)
	}

	log.Printf("✅ Mailbox store loaded: %s (%d users)", s.path, len(s.users))
	return s, nil
}

// Path returns the location of the backing file.
func (s *Store) Path() string {
	return s.path
}

// AuthenticateOrRegister looks up username, creating a fresh account with the
// given password if it is unseen. It returns the stored password and whether
// the account was created; the caller compares passwords for returning users.
func (s *Store) AuthenticateOrRegister(username, password string) (stored string, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct, ok := s.users[username]; ok {
		return acct.Password, false, nil
	}

	s.users[username] = &Account{
		Password: password,
		Messages: []Message{},
	}
	if err := s.flushLocked(); err != nil {
		delete(s.users, username)
		return "", false, err
	}
	return password, true, nil
}

// Send appends a sent record to sender's mailbox and an unread record to
// recipient's mailbox. It returns false without mutating anything when
// either account does not exist.
func (s *Store) Send(sender, recipient, body string, timestamp float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.users[sender]
	if !ok {
		return false, nil
	}
	to, ok := s.users[recipient]
	if !ok {
		return false, nil
	}

	from.Messages = append(from.Messages, Message{
		Recipient: recipient,
		Body:      body,
		Timestamp: Timestamp(timestamp),
		Status:    StatusSent,
	})
	to.Messages = append(to.Messages, Message{
		From:      sender,
		Body:      body,
		Timestamp: Timestamp(timestamp),
		Status:    StatusUnread,
	})
	if err := s.flushLocked(); err != nil {
		from.Messages = from.Messages[:len(from.Messages)-1]
		to.Messages = to.Messages[:len(to.Messages)-1]
		return false, err
	}
	return true, nil
}

// FetchAll returns every message for username sorted ascending by timestamp
// and marks all currently-unread messages read.
func (s *Store) FetchAll(username string) ([]View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}

	views := make([]View, 0, len(acct.Messages))
	var flipped []int
	for i := range acct.Messages {
		msg := &acct.Messages[i]
		views = append(views, msg.view())
		if msg.Status == StatusUnread {
			msg.Status = StatusRead
			flipped = append(flipped, i)
		}
	}
	if len(flipped) > 0 {
		if err := s.flushLocked(); err != nil {
			for _, i := range flipped {
				acct.Messages[i].Status = StatusUnread
			}
			return nil, err
		}
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Timestamp < views[j].Timestamp
	})
	return views, nil
}

// FetchUnread returns the currently-unread messages for username in stored
// order and marks each returned message read.
func (s *Store) FetchUnread(username string) ([]View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}

	views := []View{}
	var flipped []int
	for i := range acct.Messages {
		msg := &acct.Messages[i]
		if msg.Status != StatusUnread {
			continue
		}
		views = append(views, msg.view())
		msg.Status = StatusRead
		flipped = append(flipped, i)
	}
	if len(flipped) > 0 {
		if err := s.flushLocked(); err != nil {
			for _, i := range flipped {
				acct.Messages[i].Status = StatusUnread
			}
			return nil, err
		}
	}
	return views, nil
}

// UnreadCount returns the number of unread messages for username without
// marking anything read.
func (s *Store) UnreadCount(username string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.users[username]
	if !ok {
		return 0, ErrUserNotFound
	}

	count := 0
	for i := range acct.Messages {
		if acct.Messages[i].Status == StatusUnread {
			count++
		}
	}
	return count, nil
}

// flushLocked rewrites the whole document via a temp file and rename so a
// crash mid-write never leaves a truncated store. Callers hold s.mu.
func (s *Store) flushLocked() error {
	data, err := json.Marshal(s.users)
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		metrics.StoreWriteFailures.Inc()
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		metrics.StoreWriteFailures.Inc()
		os.Remove(tmp)
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
