package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thaddeuskkr/whatsapp/internal/protocol"
)

type fakeTokenStore struct {
	mu     sync.Mutex
	tokens map[string]struct{}
}

func newFakeTokenStore(tokens ...string) *fakeTokenStore {
	s := &fakeTokenStore{tokens: make(map[string]struct{})}
	for _, t := range tokens {
		s.tokens[t] = struct{}{}
	}
	return s
}

func (s *fakeTokenStore) Issue(context.Context) (string, time.Time, error) {
	return "", time.Time{}, nil
}

func (s *fakeTokenStore) Consume(_ context.Context, tok string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[tok]; !ok {
		return false, nil
	}
	delete(s.tokens, tok)
	return true, nil
}

func wsURL(srv *httptest.Server, query string) string {
	return strings.Replace(srv.URL, "http", "ws", 1) + query
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	var f protocol.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	return f
}

func TestHandler_AdmissionMissingToken(t *testing.T) {
	h := NewHandler(NewRegistry("test"), newFakeTokenStore(), true, "test")
	srv := httptest.NewServer(h)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	if err == nil {
		t.Fatal("dial should fail without a token")
	}
	if resp == nil || resp.StatusCode != 400 {
		t.Errorf("expected HTTP 400, got %v", resp)
	}
}

func TestHandler_AdmissionInvalidToken(t *testing.T) {
	h := NewHandler(NewRegistry("test"), newFakeTokenStore("good"), true, "test")
	srv := httptest.NewServer(h)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=bad"), nil)
	if err == nil {
		t.Fatal("dial should fail with an invalid token")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Errorf("expected HTTP 401, got %v", resp)
	}
}

func TestHandler_TokenSingleUse(t *testing.T) {
	h := NewHandler(NewRegistry("test"), newFakeTokenStore("once"), true, "test")
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=once"), nil)
	if err != nil {
		t.Fatalf("first dial should succeed: %v", err)
	}
	defer conn.Close()

	if f := readFrame(t, conn); f.Op != protocol.OpOpen {
		t.Errorf("expected Open frame, got %+v", f)
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=once"), nil)
	if err == nil {
		t.Fatal("a consumed token must not admit a second connection")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Errorf("expected HTTP 401, got %v", resp)
	}
}

func TestHandler_AuthDisabledSkipsGate(t *testing.T) {
	reg := NewRegistry("test")
	h := NewHandler(reg, newFakeTokenStore(), false, "test")
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	if err != nil {
		t.Fatalf("dial should succeed with auth disabled: %v", err)
	}
	defer conn.Close()

	if f := readFrame(t, conn); f.Op != protocol.OpOpen {
		t.Errorf("expected Open frame, got %+v", f)
	}
	if reg.Len() != 1 {
		t.Errorf("expected 1 registered session, got %d", reg.Len())
	}
}

func TestHandler_UnknownOpOverWire(t *testing.T) {
	h := NewHandler(NewRegistry("test"), newFakeTokenStore(), false, "test")
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	readFrame(t, conn) // Open

	if err := conn.WriteJSON(map[string]int{"op": 999}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	f := readFrame(t, conn)
	if f.Op != protocol.OpError || f.Message != "Unknown operation code: 999" {
		t.Errorf("unexpected frame: %+v", f)
	}
}

func TestHandler_HeartbeatTimeoutClosesConnection(t *testing.T) {
	h := NewHandler(NewRegistry("test"), newFakeTokenStore(), false, "test")
	h.heartbeatInterval = 30 * time.Millisecond
	h.heartbeatDeadline = 20 * time.Millisecond
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	readFrame(t, conn) // Open

	// Never answer the challenge; the server must close us.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		closeErr, ok := err.(*websocket.CloseError)
		if !ok {
			t.Fatalf("expected a close error, got %v", err)
		}
		if closeErr.Code != websocket.CloseNormalClosure {
			t.Errorf("expected close code 1000, got %d", closeErr.Code)
		}
		if closeErr.Text != "no heartbeat response received" {
			t.Errorf("unexpected close reason: %q", closeErr.Text)
		}
		return
	}
}

func TestHandler_HeartbeatResponseKeepsConnectionAlive(t *testing.T) {
	h := NewHandler(NewRegistry("test"), newFakeTokenStore(), false, "test")
	h.heartbeatInterval = 30 * time.Millisecond
	h.heartbeatDeadline = 50 * time.Millisecond
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	readFrame(t, conn) // Open

	// Answer three consecutive challenges; the connection must survive.
	for i := 0; i < 3; i++ {
		f := readFrame(t, conn)
		if f.Op != protocol.OpHeartbeat {
			t.Fatalf("expected heartbeat challenge, got %+v", f)
		}
		if err := conn.WriteJSON(map[string]int{"op": int(protocol.OpHeartbeat)}); err != nil {
			t.Fatalf("failed to answer challenge: %v", err)
		}
	}
}
