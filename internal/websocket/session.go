package websocket

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thaddeuskkr/whatsapp/internal/observability"
	"github.com/thaddeuskkr/whatsapp/internal/protocol"
	"go.uber.org/zap"
)

const (
	SendQueueSize = 128
	writeWait     = 10 * time.Second
)

// Session is one live subscriber connection. The session owns its heartbeat
// deadline timer; nothing outside the session ever holds the timer handle,
// so a disconnect cannot leave a dangling timer behind.
type Session struct {
	ID string

	Conn      *websocket.Conn
	SendQueue chan []byte
	done      chan struct{}
	closed    atomic.Int32

	hbMu      sync.Mutex
	hbTimer   *time.Timer // non-nil only while a challenge is outstanding
	onTimeout func()
}

func NewSession(id string, conn *websocket.Conn) *Session {
	return &Session{
		ID:        id,
		Conn:      conn,
		SendQueue: make(chan []byte, SendQueueSize),
		done:      make(chan struct{}),
	}
}

func (s *Session) Start() {
	go s.writeLoop()
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) IsOpen() bool {
	return s.closed.Load() == 0
}

// BeginChallenge arms the heartbeat deadline. If a challenge is already
// outstanding its timer keeps running; that timer is about to close the
// connection anyway.
func (s *Session) BeginChallenge(deadline time.Duration) {
	s.hbMu.Lock()
	defer s.hbMu.Unlock()

	if s.hbTimer != nil {
		return
	}
	s.hbTimer = time.AfterFunc(deadline, func() {
		if cb := s.onTimeout; cb != nil {
			cb()
		}
		s.CloseWithReason(websocket.CloseNormalClosure, "no heartbeat response received")
	})
}

// AckChallenge clears an outstanding heartbeat challenge. A response with no
// outstanding challenge is a keepalive, not an error.
func (s *Session) AckChallenge() {
	s.hbMu.Lock()
	defer s.hbMu.Unlock()

	if s.hbTimer == nil {
		return
	}
	s.hbTimer.Stop()
	s.hbTimer = nil
}

// SetTimeoutHook registers a callback invoked when the heartbeat deadline
// elapses, before the connection is closed. Must be set before the first
// challenge is armed.
func (s *Session) SetTimeoutHook(fn func()) {
	s.onTimeout = fn
}

func (s *Session) TrySend(msg []byte) bool {
	if !s.IsOpen() {
		return false
	}
	select {
	case s.SendQueue <- msg:
		return true
	default:
		observability.Log.Warn("session: backpressure overflow, dropping connection",
			zap.String("session_id", s.ID))
		s.CloseWithReason(websocket.CloseInternalServerErr, "backpressure overflow")
		return false
	}
}

func (s *Session) TrySendFrame(f protocol.Frame) bool {
	payload, err := json.Marshal(f)
	if err != nil {
		observability.Log.Error("session: failed to marshal frame", zap.Error(err))
		return false
	}
	return s.TrySend(payload)
}

func (s *Session) Close() {
	s.CloseWithReason(websocket.CloseNormalClosure, "Connection closed by server")
}

func (s *Session) CloseWithReason(code int, reason string) {
	if !s.closed.CompareAndSwap(0, 1) {
		return
	}

	observability.Log.Info("session: closing",
		zap.String("session_id", s.ID), zap.Int("code", code), zap.String("reason", reason))
	close(s.done)

	s.hbMu.Lock()
	if s.hbTimer != nil {
		s.hbTimer.Stop()
		s.hbTimer = nil
	}
	s.hbMu.Unlock()

	if s.Conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = s.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		s.Conn.Close()
	}
}

func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case msg, ok := <-s.SendQueue:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				observability.Log.Error("session: write error",
					zap.String("session_id", s.ID), zap.Error(err))
				return
			}
		case <-s.done:
			return
		}
	}
}
