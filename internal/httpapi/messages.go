package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/thaddeuskkr/whatsapp/internal/domain"
	"github.com/thaddeuskkr/whatsapp/internal/observability"
	"github.com/thaddeuskkr/whatsapp/internal/repository"
	"go.uber.org/zap"
)

const catchUpLimit = 100

type MessagesHandler struct {
	repo repository.Repository
}

func NewMessagesHandler(repo repository.Repository) *MessagesHandler {
	return &MessagesHandler{repo: repo}
}

// Query handles POST /messages, the pull-based catch-up. With a cursor (lastMessageId)
// it returns everything after that record's creation timestamp; without one,
// the newest 100 records per class.
func (h *MessagesHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LastMessageID string `json:"lastMessageId"`
		From          string `json:"from"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	var after *time.Time
	if req.LastMessageID != "" {
		last, err := h.repo.FindByID(ctx, req.LastMessageID)
		if errors.Is(err, domain.ErrMessageNotFound) {
			WriteError(w, http.StatusNotFound, "Invalid last message ID")
			return
		}
		if err != nil {
			observability.GetLogger(ctx).Error("catch-up cursor lookup failed", zap.Error(err))
			WriteError(w, http.StatusInternalServerError, "Failed to query messages")
			return
		}
		after = &last.Timestamp
	}

	created, err := h.repo.ListCreated(ctx, after, catchUpLimit)
	if err != nil {
		h.fail(w, ctx, err)
		return
	}
	edited, err := h.repo.ListEdited(ctx, after, catchUpLimit)
	if err != nil {
		h.fail(w, ctx, err)
		return
	}
	revoked, err := h.repo.ListRevoked(ctx, after, catchUpLimit)
	if err != nil {
		h.fail(w, ctx, err)
		return
	}

	created = filterFrom(created, req.From)
	edited = filterFrom(edited, req.From)
	revoked = filterFrom(revoked, req.From)

	WriteJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"messageCount": len(created) + len(edited) + len(revoked),
			"new":          created,
			"edited":       edited,
			"deleted":      revoked,
		},
	})
}

func (h *MessagesHandler) fail(w http.ResponseWriter, ctx context.Context, err error) {
	observability.GetLogger(ctx).Error("catch-up query failed", zap.Error(err))
	WriteError(w, http.StatusInternalServerError, "Failed to query messages")
}

func filterFrom(msgs []*domain.Message, from string) []*domain.Message {
	out := make([]*domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if from == "" || m.From == from {
			out = append(out, m)
		}
	}
	return out
}
