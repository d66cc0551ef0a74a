package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/thaddeuskkr/whatsapp/internal/observability"
)

// NewRouter assembles the public surface: the WebSocket endpoint, the
// one-time token mint, and the REST routes.
func NewRouter(
	wsHandler http.Handler,
	tokenH *TokenHandler,
	sendH *SendHandler,
	otpH *OTPHandler,
	messagesH *MessagesHandler,
	statusH *StatusHandler,
	apiTokens []string,
	serviceName string,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(observability.MetricsMiddleware(serviceName))
	r.Use(Recovery())

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("Hello!"))
	})

	// WebSocket admission is token-gated separately (query-string token).
	r.Handle("/ws", wsHandler)

	r.Group(func(p chi.Router) {
		p.Use(RequireAuth(apiTokens))

		p.Get("/token", tokenH.Issue)
		p.Post("/send", sendH.Send)
		p.Post("/otp", otpH.Send)
		p.Post("/messages", messagesH.Query)
		p.Get("/status", statusH.Status)
	})

	return r
}
