package protocol

import (
	"encoding/json"
)

// FetchKind selects which messages a fetch request asks for.
type FetchKind string

const (
	FetchAll    FetchKind = "all"
	FetchUnread FetchKind = "unread"
)

// Request is one decoded client request. Exactly one of the concrete types
// below comes out of DecodeRequest.
type Request interface {
	// Command names the request for logging and metrics.
	Command() string
}

// AuthRequest is {"authenticate": {"username": ..., "password": ...}}.
type AuthRequest struct {
	Username string
	Password string
}

func (*AuthRequest) Command() string { return "authenticate" }

// SendRequest is {"token": ..., "directmessage": {"recipient": ..., "message": ...}}.
type SendRequest struct {
	Token     string
	Recipient string
	Message   string
}

func (*SendRequest) Command() string { return "directmessage" }

// FetchRequest is {"token": ..., "fetch": "all"|"unread"}. Token is empty
// when the client omitted it; the handler rejects that as an invalid token.
type FetchRequest struct {
	Token string
	What  FetchKind
}

func (*FetchRequest) Command() string { return "fetch" }

// RequestError is a protocol-level rejection. Its text is sent back to the
// peer verbatim as the error response message.
type RequestError struct {
	msg string
}

func (e *RequestError) Error() string { return e.msg }

var (
	errBadJSON     = &RequestError{"Incorrectly formatted JSON message."}
	errBadAuth     = &RequestError{"Incorrectly formatted authenticate command."}
	errAuthExtra   = &RequestError{"Extra fields provided to authenticate command object."}
	errAuthMissing = &RequestError{"Missing required fields for authenticate command object."}
	errBadSend     = &RequestError{"Incorrectly formatted directmessage command."}
	errSendMissing = &RequestError{"Missing required fields for direct message (recipient, message)."}
	errNoToken     = &RequestError{"Missing token."}
	errBadFetch    = &RequestError{"Invalid argument for fetch field."}
	errBadCommand  = &RequestError{"Invalid command."}
)

// DecodeRequest parses one request line into its variant. It never mutates
// state; any failure is a *RequestError whose message goes to the peer.
func DecodeRequest(line []byte) (Request, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, errBadJSON
	}

	switch {
	case hasKey(raw, "authenticate"):
		return decodeAuth(raw)
	case hasKey(raw, "directmessage"):
		return decodeSend(raw)
	case hasKey(raw, "fetch"):
		return decodeFetch(raw)
	}
	return nil, errBadCommand
}

func decodeAuth(raw map[string]json.RawMessage) (Request, error) {
	if len(raw) != 1 {
		return nil, errBadAuth
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw["authenticate"], &fields); err != nil {
		return nil, errBadAuth
	}
	if len(fields) > 2 {
		return nil, errAuthExtra
	}

	username, ok := stringField(fields, "username")
	if !ok {
		return nil, errAuthMissing
	}
	password, ok := stringField(fields, "password")
	if !ok {
		return nil, errAuthMissing
	}
	return &AuthRequest{Username: username, Password: password}, nil
}

func decodeSend(raw map[string]json.RawMessage) (Request, error) {
	token, ok := stringField(raw, "token")
	if !ok {
		return nil, errNoToken
	}
	if len(raw) != 2 {
		return nil, errBadSend
	}

	// The directmessage object may carry extras (the reference client adds
	// a timestamp field); only recipient and message are required.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw["directmessage"], &fields); err != nil {
		return nil, errSendMissing
	}
	recipient, ok := stringField(fields, "recipient")
	if !ok {
		return nil, errSendMissing
	}
	message, ok := stringField(fields, "message")
	if !ok {
		return nil, errSendMissing
	}
	return &SendRequest{Token: token, Recipient: recipient, Message: message}, nil
}

func decodeFetch(raw map[string]json.RawMessage) (Request, error) {
	what, ok := stringField(raw, "fetch")
	if !ok || (FetchKind(what) != FetchAll && FetchKind(what) != FetchUnread) {
		return nil, errBadFetch
	}

	// Token is not part of the shape check here; a missing one surfaces as
	// an invalid-token error instead of a malformed request.
	token, _ := stringField(raw, "token")
	return &FetchRequest{Token: token, What: FetchKind(what)}, nil
}

func hasKey(raw map[string]json.RawMessage, key string) bool {
	_, ok := raw[key]
	return ok
}

func stringField(raw map[string]json.RawMessage, key string) (string, bool) {
	data, ok := raw[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false
	}
	return s, true
}

// Wire envelopes for the encode side, used by clients.

type authPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authEnvelope struct {
	Authenticate authPayload `json:"authenticate"`
}

type dmPayload struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

type sendEnvelope struct {
	Token         string    `json:"token"`
	DirectMessage dmPayload `json:"directmessage"`
}

type fetchEnvelope struct {
	Token string `json:"token"`
	Fetch string `json:"fetch"`
}

// EncodeAuthRequest builds the wire form of an authenticate request, without
// the line terminator.
func EncodeAuthRequest(username, password string) ([]byte, error) {
	return json.Marshal(authEnvelope{Authenticate: authPayload{
		Username: username,
		Password: password,
	}})
}

// EncodeSendRequest builds the wire form of a directmessage request.
func EncodeSendRequest(token, recipient, message string) ([]byte, error) {
	return json.Marshal(sendEnvelope{
		Token: token,
		DirectMessage: dmPayload{
			Recipient: recipient,
			Message:   message,
		},
	})
}

// EncodeFetchRequest builds the wire form of a fetch request.
func EncodeFetchRequest(token string, what FetchKind) ([]byte, error) {
	return json.Marshal(fetchEnvelope{Token: token, Fetch: string(what)})
}
