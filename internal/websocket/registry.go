package websocket

import (
	"encoding/json"
	"sync"

	"github.com/thaddeuskkr/whatsapp/internal/observability"
	"github.com/thaddeuskkr/whatsapp/internal/protocol"
	"go.uber.org/zap"
)

// Registry tracks live subscriber connections. A session is visible to
// broadcast from Add until Remove; sessions whose transport has already
// closed are skipped at send time, so delivery is best-effort rather than
// exactly-once.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	serviceName string
}

func NewRegistry(serviceName string) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		serviceName: serviceName,
	}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ForEachOpen calls fn for every registered session that is still open. The
// snapshot is taken under the read lock; fn runs outside it so a slow
// subscriber cannot block Add/Remove.
func (r *Registry) ForEachOpen(fn func(s *Session)) {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		if s.IsOpen() {
			fn(s)
		}
	}
}

// Broadcast serializes the frame once and pushes it to every open session.
// Returns the number of sessions the frame was queued for.
func (r *Registry) Broadcast(f protocol.Frame) int {
	payload, err := json.Marshal(f)
	if err != nil {
		observability.Log.Error("registry: failed to marshal broadcast frame",
			zap.String("op", f.Op.String()), zap.Error(err))
		return 0
	}

	delivered := 0
	r.ForEachOpen(func(s *Session) {
		if s.TrySend(payload) {
			delivered++
		}
	})

	observability.BroadcastFramesTotal.WithLabelValues(r.serviceName, f.Op.String()).Inc()
	return delivered
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		s.Close()
	}
}
