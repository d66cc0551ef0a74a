// Package reconciler turns raw chat lifecycle events into persisted message
// records and broadcast frames. All three event kinds complete their store
// write before any broadcast is emitted, so a subscriber that queries the
// store on receipt of a frame observes the new state.
package reconciler

import (
	"context"
	"errors"

	"github.com/thaddeuskkr/whatsapp/internal/chat"
	"github.com/thaddeuskkr/whatsapp/internal/domain"
	"github.com/thaddeuskkr/whatsapp/internal/observability"
	"github.com/thaddeuskkr/whatsapp/internal/protocol"
	"github.com/thaddeuskkr/whatsapp/internal/repository"
	"go.uber.org/zap"
)

// Broadcaster fans one frame out to all live subscribers.
type Broadcaster interface {
	Broadcast(f protocol.Frame) int
}

type Reconciler struct {
	repo        repository.Repository
	broadcaster Broadcaster
	serviceName string

	ignoreFrom  map[string]struct{}
	ignoreTypes map[string]struct{}
}

// Sender identities and message kinds dropped before they reach the store.
var (
	DefaultIgnoreFrom  = []string{"0@c.us", "status@broadcast"}
	DefaultIgnoreTypes = []string{"e2e_notification", "notification_template"}
)

func New(repo repository.Repository, b Broadcaster, serviceName string, ignoreFrom, ignoreTypes []string) *Reconciler {
	r := &Reconciler{
		repo:        repo,
		broadcaster: b,
		serviceName: serviceName,
		ignoreFrom:  make(map[string]struct{}, len(ignoreFrom)),
		ignoreTypes: make(map[string]struct{}, len(ignoreTypes)),
	}
	for _, f := range ignoreFrom {
		r.ignoreFrom[f] = struct{}{}
	}
	for _, t := range ignoreTypes {
		r.ignoreTypes[t] = struct{}{}
	}
	return r
}

// Handlers returns the single process-wide registration handed to the event
// source, keeping ordering centralized in one dispatcher.
func (r *Reconciler) Handlers() chat.Handlers {
	return chat.Handlers{
		MessageCreate: r.HandleCreate,
		MessageEdit:   r.HandleEdit,
		MessageRevoke: r.HandleRevoke,
	}
}

func (r *Reconciler) HandleCreate(ctx context.Context, ev chat.MessageEvent) {
	log := observability.GetLogger(ctx)

	if _, ok := r.ignoreFrom[ev.From]; ok {
		r.count("create", "ignored")
		return
	}
	if _, ok := r.ignoreTypes[ev.Type]; ok {
		r.count("create", "ignored")
		return
	}

	msg := &domain.Message{
		WID:             ev.WID,
		Ack:             ev.Ack,
		Author:          ev.Author,
		Body:            ev.Body,
		Broadcast:       ev.Broadcast,
		DeviceType:      ev.DeviceType,
		Duration:        ev.Duration,
		ForwardingScore: ev.ForwardingScore,
		From:            ev.From,
		FromMe:          ev.FromMe,
		GroupMentions:   ev.GroupMentions,
		HasMedia:        ev.HasMedia,
		HasQuotedMsg:    ev.HasQuotedMsg,
		HasReaction:     ev.HasReaction,
		IsEphemeral:     ev.IsEphemeral,
		IsForwarded:     ev.IsForwarded,
		IsGif:           ev.IsGif,
		IsStarred:       ev.IsStarred,
		IsStatus:        ev.IsStatus,
		Links:           ev.Links,
		Location:        ev.Location,
		MediaKey:        ev.MediaKey,
		MentionedIDs:    ev.MentionedIDs,
		Timestamp:       ev.Timestamp,
		To:              ev.To,
		Type:            ev.Type,
		VCards:          ev.VCards,
	}

	created, err := r.repo.Insert(ctx, msg)
	if errors.Is(err, domain.ErrDuplicateMessage) {
		log.Warn("reconciler: duplicate create ignored", zap.String("w_id", ev.WID))
		r.count("create", "duplicate")
		return
	}
	if err != nil {
		log.Error("reconciler: failed to save message", zap.String("w_id", ev.WID), zap.Error(err))
		r.count("create", "store_error")
		return
	}

	r.broadcaster.Broadcast(protocol.Frame{
		Op:      protocol.OpMessageCreate,
		Message: "Message created",
		Data: protocol.MessageRef{
			ID:        created.ID,
			WID:       created.WID,
			From:      created.From,
			To:        created.To,
			Timestamp: created.Timestamp,
		},
	})
	r.count("create", "ok")
	log.Debug("reconciler: message created", zap.String("w_id", ev.WID), zap.String("from", ev.From))
}

func (r *Reconciler) HandleEdit(ctx context.Context, ev chat.EditEvent) {
	log := observability.GetLogger(ctx)

	msg, err := r.repo.FindByWID(ctx, ev.WID)
	if errors.Is(err, domain.ErrMessageNotFound) {
		log.Warn("reconciler: edit for unknown message", zap.String("w_id", ev.WID))
		r.count("edit", "unknown")
		return
	}
	if err != nil {
		log.Error("reconciler: edit lookup failed", zap.String("w_id", ev.WID), zap.Error(err))
		r.count("edit", "store_error")
		return
	}

	// Last write wins; the event source is the sole authority on edit order.
	editTS := ev.LatestEditSenderTimestamp
	editKey := ev.LatestEditMsgKey
	msg.Body = ev.Body
	msg.LatestEditSenderTimestamp = &editTS
	msg.LatestEditMsgKey = &editKey

	if err := r.repo.Update(ctx, msg); err != nil {
		log.Error("reconciler: failed to save edit", zap.String("w_id", ev.WID), zap.Error(err))
		r.count("edit", "store_error")
		return
	}

	r.broadcaster.Broadcast(protocol.Frame{
		Op:      protocol.OpMessageEdit,
		Message: "Message edited",
		Data: protocol.MessageRef{
			ID:        msg.ID,
			WID:       msg.WID,
			From:      msg.From,
			To:        msg.To,
			Timestamp: editTS,
		},
	})
	r.count("edit", "ok")
	log.Debug("reconciler: message edited", zap.String("w_id", ev.WID), zap.String("from", msg.From))
}

func (r *Reconciler) HandleRevoke(ctx context.Context, ev chat.RevokeEvent) {
	log := observability.GetLogger(ctx)

	// The revoked message is named by the key nested in the protocol
	// message, not by the revoke event's own id.
	msg, err := r.repo.FindByWID(ctx, ev.ProtocolMessageKey)
	if errors.Is(err, domain.ErrMessageNotFound) {
		log.Warn("reconciler: revoke for unknown message",
			zap.String("w_id", ev.WID), zap.String("protocol_message_key", ev.ProtocolMessageKey))
		r.count("revoke", "unknown")
		return
	}
	if err != nil {
		log.Error("reconciler: revoke lookup failed", zap.String("w_id", ev.WID), zap.Error(err))
		r.count("revoke", "store_error")
		return
	}

	if msg.Revoked() {
		log.Warn("reconciler: message already revoked", zap.String("w_id", msg.WID))
		r.count("revoke", "already_revoked")
		return
	}

	// Body is deliberately left intact; clearing it on revoke is a product
	// decision that has not been made.
	msg.Type = domain.TypeRevoked

	if err := r.repo.Update(ctx, msg); err != nil {
		log.Error("reconciler: failed to save revoke", zap.String("w_id", msg.WID), zap.Error(err))
		r.count("revoke", "store_error")
		return
	}

	r.broadcaster.Broadcast(protocol.Frame{
		Op:      protocol.OpMessageRevoke,
		Message: "Message revoked",
		Data: protocol.MessageRef{
			ID:   msg.ID,
			WID:  msg.WID,
			From: msg.From,
			To:   msg.To,
			// The source supplies no timestamp for revokes; the store's
			// last-updated instant stands in.
			Timestamp: msg.UpdatedAt,
		},
	})
	r.count("revoke", "ok")
	log.Debug("reconciler: message revoked", zap.String("w_id", msg.WID), zap.String("from", msg.From))
}

func (r *Reconciler) count(event, outcome string) {
	observability.ChatEventsTotal.WithLabelValues(r.serviceName, event, outcome).Inc()
}
