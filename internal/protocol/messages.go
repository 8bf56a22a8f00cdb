// Package protocol defines the push channel messages exchanged between the
// API server and session clients over WebSocket. All messages are JSON
// objects with a "type" discriminator.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/tastebuds/match-app/internal/domain"
)

// Client -> Server message types.
const (
	TypeSwipe = "swipe"
	TypePing  = "ping"
)

// Server -> Client message types.
const (
	TypeSessionJoined  = "session_joined"
	TypeSessionUpdated = "session_updated"
	TypeMatchFound     = "match_found"
	TypeSwipeRecorded  = "swipe_recorded"
	TypeError          = "error"
	TypePong           = "pong"
)

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the raw bytes and extracts only the "type" field.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server
// ---------------------------------------------------------------------------

// SwipeMsg records a decision on a candidate of the connection's session.
type SwipeMsg struct {
	Type         string `json:"type"`
	RestaurantID string `json:"restaurantId"`
	Liked        bool   `json:"liked"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client
// ---------------------------------------------------------------------------

// SessionJoinedMsg tells the creator that the partner joined.
type SessionJoinedMsg struct {
	Type     string          `json:"type"`
	Session  *domain.Session `json:"session"`
	JoinedBy string          `json:"joinedBy"`
}

// SessionUpdatedMsg carries any other session change, such as completion.
type SessionUpdatedMsg struct {
	Type    string          `json:"type"`
	Session *domain.Session `json:"session"`
}

// MatchFoundMsg is pushed to both participants when a match is created.
type MatchFoundMsg struct {
	Type  string        `json:"type"`
	Match *domain.Match `json:"match"`
}

// SwipeRecordedMsg acknowledges a swipe sent over the socket.
type SwipeRecordedMsg struct {
	Type  string        `json:"type"`
	Swipe *domain.Swipe `json:"swipe"`
	Match *domain.Match `json:"match,omitempty"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// An error is returned for unknown or server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)
	switch env.Type {
	case TypeSwipe:
		var m SwipeMsg
		err = json.Unmarshal(env.Raw, &m)
		if err == nil && m.RestaurantID == "" {
			err = fmt.Errorf("restaurantId is required")
		}
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// ParseServerMessage decodes a server push into its typed struct. Clients
// use it to react to pushes.
func ParseServerMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)
	switch env.Type {
	case TypeSessionJoined:
		var m SessionJoinedMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSessionUpdated:
		var m SessionUpdatedMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMatchFound:
		var m MatchFoundMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSwipeRecorded:
		var m SwipeRecordedMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeError:
		var m ErrorMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePong:
		var m PongMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown server message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage marshals payload and injects msgType under the "type"
// key.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}

// NewErrorMessage builds an error push. It never fails.
func NewErrorMessage(code, message string) []byte {
	out, _ := NewServerMessage(TypeError, ErrorMsg{Code: code, Message: message})
	return out
}
