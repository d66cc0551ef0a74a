package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/thaddeuskkr/whatsapp/internal/chat"
	"github.com/thaddeuskkr/whatsapp/internal/observability"
	"go.uber.org/zap"
)

type SendHandler struct {
	source chat.Source
}

func NewSendHandler(source chat.Source) *SendHandler {
	return &SendHandler{source: source}
}

// Send handles POST /send. It relays a message through the chat bridge.
func (h *SendHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To              string   `json:"to"`
		Content         string   `json:"content"`
		LinkPreview     bool     `json:"linkPreview"`
		QuotedMessageID string   `json:"quotedMessageId"`
		Mentions        []string `json:"mentions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.To == "" || req.Content == "" {
		WriteError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	err := h.source.SendMessage(r.Context(), req.To, req.Content, chat.SendOptions{
		LinkPreview:     req.LinkPreview,
		QuotedMessageID: req.QuotedMessageID,
		Mentions:        req.Mentions,
	})
	if err != nil {
		observability.GetLogger(r.Context()).Error("failed to send message",
			zap.String("to", req.To), zap.Error(err))
		WriteError(w, http.StatusBadRequest, "Failed to send message")
		return
	}

	WriteJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Message sent successfully",
		Data: map[string]string{
			"to":      req.To,
			"content": req.Content,
		},
	})
}
