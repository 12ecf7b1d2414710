// Package protocol defines the wire messages exchanged between the Shipanion
// gateway, the voice agent, and the browser UI over WebSocket.
//
// All messages are JSON documents with a "type" field that determines the
// rest of the shape. Exactly two outbound categories exist: a Response
// correlated to one inbound message via requestId, and a ContextualUpdate
// broadcast to every connection of a session.
package protocol

import "encoding/json"

// Message is an inbound message from a client (voice agent or UI).
type Message struct {
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	ClientToolCall *ToolCall       `json:"client_tool_call,omitempty"`
	RequestID      string          `json:"requestId,omitempty"`
	SessionID      string          `json:"session_id,omitempty"`
	// Broadcast asks the gateway to share the response with the other
	// connections in the sender's session.
	Broadcast bool `json:"broadcast,omitempty"`
}

// ToolCall is an ElevenLabs-style client tool invocation carried inside a
// client_tool_call message.
type ToolCall struct {
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Response is the unicast reply to exactly one inbound message. RequestID
// echoes the inbound requestId when the client supplied one.
type Response struct {
	Type       string  `json:"type"`
	Payload    any     `json:"payload,omitempty"`
	ToolCallID string  `json:"tool_call_id,omitempty"`
	Result     any     `json:"result,omitempty"`
	IsError    bool    `json:"is_error,omitempty"`
	Timestamp  float64 `json:"timestamp"`
	RequestID  string  `json:"requestId"`
	User       string  `json:"user,omitempty"`
	SessionID  string  `json:"session_id,omitempty"`
}

// ErrorPayload is the payload of a TypeError response.
type ErrorPayload struct {
	Message         string `json:"message"`
	OriginalRequest any    `json:"original_request,omitempty"`
}

// ContextualUpdate is an uncorrelated side-channel event broadcast to every
// connection attached to the session that produced it. Text names the kind of
// update ("quote_ready", "label_created"); Data carries the event body.
type ContextualUpdate struct {
	Type      string         `json:"type"` // always TypeContextualUpdate
	Text      string         `json:"text"`
	Data      map[string]any `json:"data"`
	Timestamp float64        `json:"timestamp"`
	RequestID string         `json:"requestId"`
	User      string         `json:"user,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// Inbound message types.
const (
	TypeGetRates       = "get_rates"
	TypeClientToolCall = "client_tool_call"
)

// Outbound message types.
const (
	TypeQuoteReady       = "quote_ready"
	TypeClientToolResult = "client_tool_result"
	TypeContextualUpdate = "contextual_update"
	TypeError            = "error"
)

// Contextual update kinds.
const (
	UpdateQuoteReady   = "quote_ready"
	UpdateLabelCreated = "label_created"
)
