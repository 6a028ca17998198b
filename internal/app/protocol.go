package app

import (
	"encoding/json"

	"github.com/dkeye/Tree/internal/core"
)

// Inbound event types.
const (
	EventAddDecoration = "add-decoration"
	EventSendMessage   = "send-message"
	EventPing          = "ping"
)

// Outbound event types.
const (
	EventInitState       = "init-state"
	EventDecorationAdded = "decoration-added"
	EventMessageReceived = "message-received"
	EventMessageRejected = "message-rejected"
	EventPong            = "pong"
	EventError           = "error"
)

// Envelope is the shape of every frame on the wire.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type SendMessagePayload struct {
	Text string `json:"text"`
}

type RejectedPayload struct {
	Reason       string `json:"reason"`
	RetryAfterMs int64  `json:"retryAfterMs"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// Encode builds the frame for an outbound event.
func Encode(eventType string, payload any) (core.Frame, error) {
	b, err := json.Marshal(outbound{Type: eventType, Payload: payload})
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}
