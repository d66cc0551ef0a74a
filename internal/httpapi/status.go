package httpapi

import (
	"net/http"
	"time"
)

// Feed reports liveness of the chat event feed.
type Feed interface {
	LastEventAt() (time.Time, bool)
}

type StatusHandler struct {
	feed Feed
}

func NewStatusHandler(feed Feed) *StatusHandler {
	return &StatusHandler{feed: feed}
}

// Status handles GET /status. It reports relay liveness for dashboards.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"lastEventAt": nil,
	}
	if last, ok := h.feed.LastEventAt(); ok {
		data["lastEventAt"] = last.UTC().Format(time.RFC3339)
	}

	WriteJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}
