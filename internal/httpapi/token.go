package httpapi

import (
	"net/http"
	"time"

	"github.com/thaddeuskkr/whatsapp/internal/observability"
	"github.com/thaddeuskkr/whatsapp/internal/token"
	"go.uber.org/zap"
)

type TokenHandler struct {
	store       token.Store
	authEnabled bool
}

func NewTokenHandler(store token.Store, authEnabled bool) *TokenHandler {
	return &TokenHandler{store: store, authEnabled: authEnabled}
}

// Issue handles GET /token. It mints a single-use WebSocket connection token. Only
// meaningful when API auth is enabled; without it the WebSocket endpoint is
// open anyway.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	if !h.authEnabled {
		WriteError(w, http.StatusUnauthorized, "Authentication is disabled")
		return
	}

	tok, expiresAt, err := h.store.Issue(r.Context())
	if err != nil {
		observability.GetLogger(r.Context()).Error("token issuance failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "Token generation failed, please try again")
		return
	}

	WriteJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"token":     tok,
			"expiresAt": expiresAt.UTC().Format(time.RFC3339),
		},
	})
}
