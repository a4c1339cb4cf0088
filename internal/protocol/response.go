package protocol

import (
	"encoding/json"
	"errors"

	"dsmessenger/internal/store"
)

// Response type values.
const (
	TypeOK    = "ok"
	TypeError = "error"
)

// ErrMalformedResponse is returned by DecodeResponse for input that is not a
// valid response envelope.
var ErrMalformedResponse = errors.New("malformed server response")

// Response is one server reply. Exactly one of the concrete types below goes
// into EncodeResponse and comes out of DecodeResponse.
type Response interface {
	// OK reports whether the response carries type "ok".
	OK() bool
}

// AuthResponse answers an authenticate request. Token is set only on
// success.
type AuthResponse struct {
	Type    string
	Message string
	Token   string
}

func (r *AuthResponse) OK() bool { return r.Type == TypeOK }

// StatusResponse answers a directmessage request, and carries every error
// outcome that has no payload of its own.
type StatusResponse struct {
	Type    string
	Message string
}

func (r *StatusResponse) OK() bool { return r.Type == TypeOK }

// FetchResponse answers a successful fetch with the ordered message views.
type FetchResponse struct {
	Type     string
	Messages []store.View
}

func (r *FetchResponse) OK() bool { return r.Type == TypeOK }

type responseBody struct {
	Type     string        `json:"type"`
	Message  *string       `json:"message,omitempty"`
	Token    string        `json:"token,omitempty"`
	Messages *[]store.View `json:"messages,omitempty"`
}

type responseEnvelope struct {
	Response responseBody `json:"response"`
}

// EncodeResponse builds the wire form {"response": {...}} of a response,
// without the line terminator.
func EncodeResponse(resp Response) ([]byte, error) {
	var body responseBody
	switch r := resp.(type) {
	case *AuthResponse:
		body = responseBody{Type: r.Type, Message: &r.Message, Token: r.Token}
	case *StatusResponse:
		body = responseBody{Type: r.Type, Message: &r.Message}
	case *FetchResponse:
		views := r.Messages
		if views == nil {
			views = []store.View{}
		}
		body = responseBody{Type: r.Type, Messages: &views}
	default:
		return nil, errors.New("unknown response variant")
	}
	return json.Marshal(responseEnvelope{Response: body})
}

// DecodeResponse parses one response line into its variant. A body carrying
// "messages" decodes as a fetch result, one carrying "token" as an
// authentication result, anything else as a plain status.
func DecodeResponse(line []byte) (Response, error) {
	var envelope struct {
		Response *responseBody `json:"response"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil || envelope.Response == nil {
		return nil, ErrMalformedResponse
	}

	body := envelope.Response
	switch {
	case body.Messages != nil:
		return &FetchResponse{Type: body.Type, Messages: *body.Messages}, nil
	case body.Token != "":
		msg := ""
		if body.Message != nil {
			msg = *body.Message
		}
		return &AuthResponse{Type: body.Type, Message: msg, Token: body.Token}, nil
	default:
		msg := ""
		if body.Message != nil {
			msg = *body.Message
		}
		return &StatusResponse{Type: body.Type, Message: msg}, nil
	}
}

func errorResponse(message string) Response {
	return &StatusResponse{Type: TypeError, Message: message}
}
