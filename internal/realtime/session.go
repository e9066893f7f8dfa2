package realtime

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mmynk/splitledger/internal/metrics"
)

const (
	// writeWait is the deadline for one outbound frame.
	writeWait = 10 * time.Second
	// readWait bounds silence from the client; clients ping well inside it.
	readWait = 60 * time.Second
	// sendBuffer is the per-session outbound queue. A session that falls this
	// far behind is dropped rather than allowed to stall its siblings.
	sendBuffer = 64

	maxMessageSize = 4096
)

// Session states.
const (
	stateActive int32 = iota
	stateClosed
)

// Session is one client's connection to a channel. The owning hub mutates
// the roster; the session itself only pumps frames.
type Session struct {
	// UserID is the authenticated subject.
	UserID string
	// ChannelID is the channel this session is attached to.
	ChannelID string

	conn     *websocket.Conn
	send     chan []byte
	state    atomic.Int32
	lastPing atomic.Int64
}

func newSession(userID, channelID string, conn *websocket.Conn) *Session {
	s := &Session{
		UserID:    userID,
		ChannelID: channelID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}
	s.lastPing.Store(time.Now().UnixMilli())
	return s
}

// trySend queues a frame without blocking. A full queue marks the session
// closed-pending; the hub evicts it on the returned false. A slow session
// never blocks delivery to its siblings.
func (s *Session) trySend(payload []byte) bool {
	if s.state.Load() != stateActive {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		metrics.DroppedSends.Add(1)
		return false
	}
}

// sendMessage encodes and queues one envelope.
func (s *Session) sendMessage(msg Message) bool {
	payload, err := msg.Encode()
	if err != nil {
		slog.Error("Failed to encode message", "type", msg.Type, "error", err)
		return true
	}
	return s.trySend(payload)
}

// close transitions the session to closed and releases the transport.
// Safe to call more than once.
func (s *Session) close() {
	if s.state.Swap(stateClosed) == stateClosed {
		return
	}
	close(s.send)
	s.conn.Close()
}

// writePump drains the send queue onto the transport. It exits when the
// queue is closed or a write fails; the hub learns of failure through the
// read pump observing the closed transport.
func (s *Session) writePump() {
	defer s.conn.Close()
	for payload := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			slog.Debug("Session write failed", "user_id", s.UserID, "channel", s.ChannelID, "error", err)
			return
		}
	}
}

// readPump reads client frames and forwards parseable ones to the hub.
// Malformed frames are logged and dropped; the connection stays open.
// It returns when the transport closes or errors, after which the caller
// unregisters the session.
func (s *Session) readPump(hub *Hub) {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(readWait))

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("Session read failed", "user_id", s.UserID, "channel", s.ChannelID, "error", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(readWait))

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			slog.Warn("Dropping malformed frame", "user_id", s.UserID, "channel", s.ChannelID, "error", err)
			continue
		}
		if msg.Type == "" {
			slog.Warn("Dropping frame without type", "user_id", s.UserID, "channel", s.ChannelID)
			continue
		}
		hub.inbound <- inboundFrame{session: s, msg: msg}
	}
}
