// Package kafka adapts the chat bridge's Kafka topics to the chat.Source
// boundary: lifecycle events are consumed from the events topic in a single
// sequential poll loop, and sends are produced to the commands topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/thaddeuskkr/whatsapp/internal/chat"
	"github.com/thaddeuskkr/whatsapp/internal/domain"
	"github.com/thaddeuskkr/whatsapp/internal/observability"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const (
	EventMessageCreate = "message_create"
	EventMessageEdit   = "message_edit"
	EventMessageRevoke = "message_revoke"
)

// eventEnvelope is the bridge's record format on the events topic.
// Timestamps are epoch milliseconds.
type eventEnvelope struct {
	Event   string          `json:"event"`
	Message json.RawMessage `json:"message"`
}

type createPayload struct {
	WID             string                `json:"wId"`
	Ack             int                   `json:"ack"`
	Author          string                `json:"author"`
	Body            string                `json:"body"`
	Broadcast       bool                  `json:"broadcast"`
	DeviceType      string                `json:"deviceType"`
	Duration        string                `json:"duration"`
	ForwardingScore int                   `json:"forwardingScore"`
	From            string                `json:"from"`
	FromMe          bool                  `json:"fromMe"`
	GroupMentions   []domain.GroupMention `json:"groupMentions"`
	HasMedia        bool                  `json:"hasMedia"`
	HasQuotedMsg    bool                  `json:"hasQuotedMsg"`
	HasReaction     bool                  `json:"hasReaction"`
	IsEphemeral     bool                  `json:"isEphemeral"`
	IsForwarded     bool                  `json:"isForwarded"`
	IsGif           bool                  `json:"isGif"`
	IsStarred       bool                  `json:"isStarred"`
	IsStatus        bool                  `json:"isStatus"`
	Links           []domain.Link         `json:"links"`
	Location        *domain.Location      `json:"location"`
	MediaKey        string                `json:"mediaKey"`
	MentionedIDs    []string              `json:"mentionedIds"`
	TimestampMs     int64                 `json:"timestamp"`
	To              string                `json:"to"`
	Type            string                `json:"type"`
	VCards          []string              `json:"vCards"`
}

type editPayload struct {
	WID                         string `json:"wId"`
	Body                        string `json:"body"`
	LatestEditSenderTimestampMs int64  `json:"latestEditSenderTimestampMs"`
	LatestEditMsgKey            string `json:"latestEditMsgKey"`
}

type revokePayload struct {
	WID                string `json:"wId"`
	Type               string `json:"type"`
	ProtocolMessageKey string `json:"protocolMessageKey"`
}

type sendCommand struct {
	Command         string   `json:"command"`
	To              string   `json:"to"`
	Content         string   `json:"content"`
	LinkPreview     bool     `json:"linkPreview,omitempty"`
	QuotedMessageID string   `json:"quotedMessageId,omitempty"`
	Mentions        []string `json:"mentions,omitempty"`
}

type kgoRecordCarrier struct {
	record *kgo.Record
}

func (c kgoRecordCarrier) Get(key string) string {
	for _, h := range c.record.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c kgoRecordCarrier) Set(key string, value string) {
	// Not needed for consumer
}

func (c kgoRecordCarrier) Keys() []string {
	keys := make([]string, 0, len(c.record.Headers))
	for _, h := range c.record.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

type Source struct {
	client        *kgo.Client
	commandsTopic string
	handlers      chat.Handlers
	lastEventMs   atomic.Int64
}

func NewSource(brokers []string, eventsTopic, commandsTopic, group string) (*Source, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(eventsTopic),
		kgo.DefaultProduceTopic(commandsTopic),
		kgo.OnPartitionsRevoked(func(ctx context.Context, _ *kgo.Client, _ map[string][]int32) {
			observability.GetLogger(ctx).Info("kafka partitions revoked")
		}),
		kgo.OnPartitionsAssigned(func(ctx context.Context, _ *kgo.Client, _ map[string][]int32) {
			observability.GetLogger(ctx).Info("kafka partitions assigned")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Source{client: cl, commandsTopic: commandsTopic}, nil
}

// Subscribe registers the one process-wide handler set. Must be called
// before Start.
func (s *Source) Subscribe(h chat.Handlers) {
	s.handlers = h
}

// Start runs the poll loop. Records are handled one at a time in delivery
// order, which serializes reconciliation globally.
func (s *Source) Start(ctx context.Context) {
	go func() {
		log := observability.GetLogger(ctx)
		log.Info("chat event consumer started")
		for {
			select {
			case <-ctx.Done():
				log.Info("chat event consumer stopping: context canceled")
				return
			default:
				fetches := s.client.PollFetches(ctx)
				if errs := fetches.Errors(); len(errs) > 0 {
					for _, ferr := range errs {
						if errors.Is(ferr.Err, context.Canceled) {
							return
						}
						log.Error("kafka fetch error", zap.String("topic", ferr.Topic), zap.Int32("partition", ferr.Partition), zap.Error(ferr.Err))
					}
					continue
				}

				fetches.EachRecord(func(r *kgo.Record) {
					ctx := otel.GetTextMapPropagator().Extract(ctx, kgoRecordCarrier{record: r})
					s.dispatch(ctx, r.Value)
				})
			}
		}
	}()
}

func (s *Source) dispatch(ctx context.Context, value []byte) {
	log := observability.GetLogger(ctx)

	var env eventEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		log.Error("failed to decode event record", zap.Error(err))
		return
	}
	s.lastEventMs.Store(time.Now().UnixMilli())

	switch env.Event {
	case EventMessageCreate:
		var p createPayload
		if err := json.Unmarshal(env.Message, &p); err != nil {
			log.Error("failed to decode create payload", zap.Error(err))
			return
		}
		if s.handlers.MessageCreate != nil {
			s.handlers.MessageCreate(ctx, chat.MessageEvent{
				WID:             p.WID,
				Ack:             p.Ack,
				Author:          p.Author,
				Body:            p.Body,
				Broadcast:       p.Broadcast,
				DeviceType:      p.DeviceType,
				Duration:        p.Duration,
				ForwardingScore: p.ForwardingScore,
				From:            p.From,
				FromMe:          p.FromMe,
				GroupMentions:   p.GroupMentions,
				HasMedia:        p.HasMedia,
				HasQuotedMsg:    p.HasQuotedMsg,
				HasReaction:     p.HasReaction,
				IsEphemeral:     p.IsEphemeral,
				IsForwarded:     p.IsForwarded,
				IsGif:           p.IsGif,
				IsStarred:       p.IsStarred,
				IsStatus:        p.IsStatus,
				Links:           p.Links,
				Location:        p.Location,
				MediaKey:        p.MediaKey,
				MentionedIDs:    p.MentionedIDs,
				Timestamp:       time.UnixMilli(p.TimestampMs),
				To:              p.To,
				Type:            p.Type,
				VCards:          p.VCards,
			})
		}

	case EventMessageEdit:
		var p editPayload
		if err := json.Unmarshal(env.Message, &p); err != nil {
			log.Error("failed to decode edit payload", zap.Error(err))
			return
		}
		if s.handlers.MessageEdit != nil {
			s.handlers.MessageEdit(ctx, chat.EditEvent{
				WID:                       p.WID,
				Body:                      p.Body,
				LatestEditSenderTimestamp: time.UnixMilli(p.LatestEditSenderTimestampMs),
				LatestEditMsgKey:          p.LatestEditMsgKey,
			})
		}

	case EventMessageRevoke:
		var p revokePayload
		if err := json.Unmarshal(env.Message, &p); err != nil {
			log.Error("failed to decode revoke payload", zap.Error(err))
			return
		}
		if s.handlers.MessageRevoke != nil {
			s.handlers.MessageRevoke(ctx, chat.RevokeEvent{
				WID:                p.WID,
				Type:               p.Type,
				ProtocolMessageKey: p.ProtocolMessageKey,
			})
		}

	default:
		log.Warn("unknown event kind", zap.String("event", env.Event))
	}
}

// SendMessage publishes a send command for the bridge. Fire and forget from
// the relay's point of view; the bridge reports the result as a
// message_create event once the chat network accepts it.
func (s *Source) SendMessage(ctx context.Context, to, body string, opts chat.SendOptions) error {
	cmd := sendCommand{
		Command:         "send_message",
		To:              to,
		Content:         body,
		LinkPreview:     opts.LinkPreview,
		QuotedMessageID: opts.QuotedMessageID,
		Mentions:        opts.Mentions,
	}
	value, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode send command: %w", err)
	}

	res := s.client.ProduceSync(ctx, &kgo.Record{Key: []byte(to), Value: value})
	if err := res.FirstErr(); err != nil {
		return fmt.Errorf("failed to publish send command: %w", err)
	}
	return nil
}

// LastEventAt reports when the feed last delivered an event; ok is false if
// nothing has arrived since startup.
func (s *Source) LastEventAt() (time.Time, bool) {
	ms := s.lastEventMs.Load()
	if ms == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func (s *Source) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
