package store

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Status is the delivery status of a stored message.
type Status string

const (
	StatusSent   Status = "sent"
	StatusUnread Status = "unread"
	StatusRead   Status = "read"
)

// Timestamp is seconds since the epoch. It marshals as a JSON number but
// accepts the quoted form older store files carry.
type Timestamp float64

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(t))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*t = Timestamp(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid timestamp %s", string(data))
	}
	if s == "" {
		*t = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	*t = Timestamp(f)
	return nil
}

// Message is one stored mailbox record. Exactly one of From and Recipient is
// set: From on a received message, Recipient on a sent one.
type Message struct {
	From      string    `json:"from,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Body      string    `json:"message"`
	Timestamp Timestamp `json:"timestamp"`
	Status    Status    `json:"status"`
}

// Account is one user record in the store file.
type Account struct {
	Password string    `json:"password"`
	Messages []Message `json:"messages"`
}

// View is the fetch projection of a message: the counterparty in the role
// recorded at send time, the body and the timestamp. Status is not exposed.
type View struct {
	From      string  `json:"from,omitempty"`
	Recipient string  `json:"recipient,omitempty"`
	Body      string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

func (m *Message) view() View {
	return View{
		From:      m.From,
		Recipient: m.Recipient,
		Body:      m.Body,
		Timestamp: float64(m.Timestamp),
	}
}
