// Package protocol defines the WebSocket frame format shared by the gateway
// and its subscribers.
package protocol

import "time"

// Op tags the purpose of a frame. Values are positionally assigned and are
// part of the wire contract; never reorder.
type Op int

const (
	OpHeartbeat Op = iota
	OpError
	OpOpen
	OpClose
	OpMessageCreate
	OpMessageEdit
	OpMessageRevoke
)

func (o Op) String() string {
	switch o {
	case OpHeartbeat:
		return "heartbeat"
	case OpError:
		return "error"
	case OpOpen:
		return "open"
	case OpClose:
		return "close"
	case OpMessageCreate:
		return "message_create"
	case OpMessageEdit:
		return "message_edit"
	case OpMessageRevoke:
		return "message_revoke"
	default:
		return "unknown"
	}
}

// Frame is an outbound (server to subscriber) frame.
type Frame struct {
	Op      Op     `json:"op"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// MessageRef is the minimal projection carried by the three message
// lifecycle ops.
type MessageRef struct {
	ID        string    `json:"id"`
	WID       string    `json:"wId"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}
