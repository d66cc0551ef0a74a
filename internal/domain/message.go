package domain

import "time"

// TypeRevoked is the tombstone value for Message.Type. A record reaches it at
// most once; revokes against an already-revoked record are dropped.
const TypeRevoked = "revoked"

type GroupMention struct {
	Subject string `json:"subject"`
	ID      string `json:"id"`
}

type Link struct {
	Link         string `json:"link"`
	IsSuspicious bool   `json:"isSuspicious"`
}

type Location struct {
	Address     string  `json:"address,omitempty"`
	Description string  `json:"description,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Name        string  `json:"name,omitempty"`
	URL         string  `json:"url,omitempty"`
}

// Message Invariants:
// 1. WID is unique across all records; a create for an existing WID is a
//    duplicate and must be ignored, not treated as an error.
// 2. Type transitions to "revoked" at most once.
// 3. LatestEditSenderTimestamp presence marks the record as edited.
type Message struct {
	ID  string `json:"id"`
	WID string `json:"wId"`

	Ack             int            `json:"ack"`
	Author          string         `json:"author,omitempty"`
	Body            string         `json:"body"`
	Broadcast       bool           `json:"broadcast"`
	DeviceType      string         `json:"deviceType,omitempty"`
	Duration        string         `json:"duration,omitempty"`
	ForwardingScore int            `json:"forwardingScore"`
	From            string         `json:"from"`
	FromMe          bool           `json:"fromMe"`
	GroupMentions   []GroupMention `json:"groupMentions"`
	HasMedia        bool           `json:"hasMedia"`
	HasQuotedMsg    bool           `json:"hasQuotedMsg"`
	HasReaction     bool           `json:"hasReaction"`
	IsEphemeral     bool           `json:"isEphemeral"`
	IsForwarded     bool           `json:"isForwarded"`
	IsGif           bool           `json:"isGif"`
	IsStarred       bool           `json:"isStarred"`
	IsStatus        bool           `json:"isStatus"`
	Links           []Link         `json:"links"`
	Location        *Location      `json:"location,omitempty"`
	MediaKey        string         `json:"mediaKey,omitempty"`
	MentionedIDs    []string       `json:"mentionedIds"`
	Timestamp       time.Time      `json:"timestamp"`
	To              string         `json:"to"`
	Type            string         `json:"type"`
	VCards          []string       `json:"vCards"`

	LatestEditSenderTimestamp *time.Time `json:"latestEditSenderTimestamp,omitempty"`
	LatestEditMsgKey          *string    `json:"latestEditMsgKey,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (m *Message) Revoked() bool {
	return m.Type == TypeRevoked
}

func (m *Message) Edited() bool {
	return m.LatestEditSenderTimestamp != nil
}
