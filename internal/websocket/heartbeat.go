package websocket

import (
	"fmt"
	"time"

	"github.com/thaddeuskkr/whatsapp/internal/protocol"
)

const (
	HeartbeatInterval = 30 * time.Second
	HeartbeatDeadline = 5 * time.Second
)

// StartHeartbeat probes the session on a fixed cadence. Each tick sends a
// heartbeat challenge and arms the response deadline; a Heartbeat op from
// the client clears it via Session.AckChallenge. The loop exits when the
// session closes, which also disarms any outstanding deadline.
func StartHeartbeat(s *Session, interval, deadline time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		challenge := protocol.Frame{
			Op:      protocol.OpHeartbeat,
			Message: fmt.Sprintf("Expecting heartbeat response within %d seconds", int(deadline.Seconds())),
		}

		for {
			select {
			case <-ticker.C:
				if !s.TrySendFrame(challenge) {
					return
				}
				s.BeginChallenge(deadline)
			case <-s.Done():
				return
			}
		}
	}()
}
