package websocket

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/gorilla/websocket"
	"github.com/thaddeuskkr/whatsapp/internal/protocol"
)

// Router parses inbound frames and dispatches them by op code. Malformed
// frames elicit an Error frame but never close the connection.
type Router struct{}

func (Router) HandleFrame(s *Session, raw []byte) {
	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil || frame == nil {
		s.TrySendFrame(protocol.Frame{
			Op:      protocol.OpError,
			Message: "Message cannot be parsed as JSON",
		})
		return
	}

	opVal, present := frame["op"]
	opNum, numeric := opVal.(float64)
	if !present || !numeric {
		s.TrySendFrame(protocol.Frame{
			Op:      protocol.OpError,
			Message: "Message must contain a valid operation (op) code",
		})
		return
	}

	op := protocol.Op(int(opNum))
	if opNum != math.Trunc(opNum) {
		op = -1 // fractional codes fall through to unknown
	}

	switch op {
	case protocol.OpHeartbeat:
		s.AckChallenge()

	case protocol.OpClose:
		reason := "Connection closed by client"
		if r, ok := frame["reason"].(string); ok {
			reason = r
		}
		s.CloseWithReason(websocket.CloseNormalClosure, reason)

	case protocol.OpError, protocol.OpOpen,
		protocol.OpMessageCreate, protocol.OpMessageEdit, protocol.OpMessageRevoke:
		// Server-to-client notifications echoed back by a client are
		// tolerated as no-ops for protocol symmetry.

	default:
		s.TrySendFrame(protocol.Frame{
			Op:      protocol.OpError,
			Message: fmt.Sprintf("Unknown operation code: %v", opVal),
		})
	}
}
