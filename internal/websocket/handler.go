package websocket

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/thaddeuskkr/whatsapp/internal/observability"
	"github.com/thaddeuskkr/whatsapp/internal/protocol"
	"github.com/thaddeuskkr/whatsapp/internal/token"
	"go.uber.org/zap"
)

// Handler admits subscribers and runs their read side. When the server is
// configured with API tokens, admission requires a single-use token in the
// query string, consumed before the socket is upgraded; rejections happen at
// the HTTP level, never as a post-upgrade close.
type Handler struct {
	registry    *Registry
	tokens      token.Store
	authEnabled bool
	router      Router
	serviceName string

	heartbeatInterval time.Duration
	heartbeatDeadline time.Duration
}

func NewHandler(registry *Registry, tokens token.Store, authEnabled bool, serviceName string) *Handler {
	return &Handler{
		registry:          registry,
		tokens:            tokens,
		authEnabled:       authEnabled,
		serviceName:       serviceName,
		heartbeatInterval: HeartbeatInterval,
		heartbeatDeadline: HeartbeatDeadline,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := observability.GetLogger(r.Context())

	if h.authEnabled {
		tok := r.URL.Query().Get("token")
		if tok == "" {
			http.Error(w, "No WebSocket connection token provided", http.StatusBadRequest)
			return
		}
		ok, err := h.tokens.Consume(r.Context(), tok)
		if err != nil {
			log.Error("admission: token lookup failed", zap.Error(err))
			http.Error(w, "Token validation failed", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "Invalid or expired WebSocket connection token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("upgrade error", zap.Error(err))
		return
	}

	session := NewSession(uuid.NewString(), conn)
	session.SetTimeoutHook(func() {
		observability.HeartbeatTimeoutsTotal.WithLabelValues(h.serviceName).Inc()
	})

	h.registry.Add(session)
	session.Start()

	session.TrySendFrame(protocol.Frame{
		Op:      protocol.OpOpen,
		Message: "Connection established successfully",
	})

	StartHeartbeat(session, h.heartbeatInterval, h.heartbeatDeadline)

	log.Info("connected", zap.String("session_id", session.ID))
	observability.WebSocketConnectionsActive.WithLabelValues(h.serviceName).Inc()

	go h.readLoop(session)
}

func (h *Handler) readLoop(s *Session) {
	defer func() {
		h.registry.Remove(s.ID)
		s.Close()
		observability.Log.Info("disconnected", zap.String("session_id", s.ID))
		observability.WebSocketConnectionsActive.WithLabelValues(h.serviceName).Dec()
	}()

	for {
		_, msg, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				observability.Log.Error("read loop error", zap.String("session_id", s.ID), zap.Error(err))
			}
			return
		}
		h.router.HandleFrame(s, msg)
	}
}
