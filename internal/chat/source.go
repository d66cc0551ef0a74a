// Package chat defines the boundary to the external chat bridge: the shapes
// of the lifecycle events it emits and the send capability it exposes.
package chat

import (
	"context"
	"time"

	"github.com/thaddeuskkr/whatsapp/internal/domain"
)

// MessageEvent is a message_create notification. It carries the full field
// surface of the new message; everything except From and Type is opaque to
// the relay.
type MessageEvent struct {
	WID             string
	Ack             int
	Author          string
	Body            string
	Broadcast       bool
	DeviceType      string
	Duration        string
	ForwardingScore int
	From            string
	FromMe          bool
	GroupMentions   []domain.GroupMention
	HasMedia        bool
	HasQuotedMsg    bool
	HasReaction     bool
	IsEphemeral     bool
	IsForwarded     bool
	IsGif           bool
	IsStarred       bool
	IsStatus        bool
	Links           []domain.Link
	Location        *domain.Location
	MediaKey        string
	MentionedIDs    []string
	Timestamp       time.Time
	To              string
	Type            string
	VCards          []string
}

// EditEvent is a message_edit notification, keyed by the edited message's WID.
type EditEvent struct {
	WID                       string
	Body                      string
	LatestEditSenderTimestamp time.Time
	LatestEditMsgKey          string
}

// RevokeEvent is a message_revoke notification. WID identifies the revoke
// event itself; the revoked message is named by ProtocolMessageKey, a key
// nested in the bridge's protocol message. Matching must use that key, never
// WID.
type RevokeEvent struct {
	WID                string
	Type               string
	ProtocolMessageKey string
}

// Handlers receives lifecycle events. Registration is process-wide and
// happens exactly once, so ordering stays centralized in one consumer.
type Handlers struct {
	MessageCreate func(ctx context.Context, ev MessageEvent)
	MessageEdit   func(ctx context.Context, ev EditEvent)
	MessageRevoke func(ctx context.Context, ev RevokeEvent)
}

type SendOptions struct {
	LinkPreview     bool
	QuotedMessageID string
	Mentions        []string
}

// Source is the external chat bridge as seen by the relay.
type Source interface {
	Subscribe(h Handlers)
	SendMessage(ctx context.Context, to, body string, opts SendOptions) error
}
