package realtime

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mmynk/splitledger/internal/metrics"
)

// syncTimeout bounds the store read behind a request_sync frame.
const syncTimeout = 5 * time.Second

// SyncFunc produces the state payload for a request_sync pull. It is how
// clients recover events missed while offline; the hub itself never queues
// or replays.
type SyncFunc func(ctx context.Context, channelID, userID string) (any, error)

type inboundFrame struct {
	session *Session
	msg     Message
}

type outboundFrame struct {
	msg     Message
	exclude string
}

type directFrame struct {
	userID string
	msg    Message
}

// Hub owns all session state for one channel. Every mutation of the roster
// and every delivery happens on the hub's single run goroutine, so channel
// affinity is the concurrency boundary; no lock guards the roster.
type Hub struct {
	channelID string
	kind      string // "group" or "user"

	sessions map[string]*Session // by subject (user) ID

	register   chan *Session
	unregister chan *Session
	outbound   chan outboundFrame
	direct     chan directFrame
	inbound    chan inboundFrame

	syncFn SyncFunc
}

func newHub(channelID string, syncFn SyncFunc) *Hub {
	kind := "group"
	if strings.HasPrefix(channelID, userChannelPrefix) {
		kind = "user"
	}
	return &Hub{
		channelID:  channelID,
		kind:       kind,
		sessions:   make(map[string]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		outbound:   make(chan outboundFrame, 64),
		direct:     make(chan directFrame, 64),
		inbound:    make(chan inboundFrame, 64),
		syncFn:     syncFn,
	}
}

// run is the hub's single owner goroutine.
func (h *Hub) run() {
	for {
		select {
		case session := <-h.register:
			h.add(session)
		case session := <-h.unregister:
			h.remove(session, true)
		case frame := <-h.outbound:
			h.fanOut(frame.msg, frame.exclude)
		case frame := <-h.direct:
			if session, ok := h.sessions[frame.userID]; ok {
				h.deliver(session, frame.msg)
			}
			// Offline subject: silent no-op, recovery is the sync pull path.
		case frame := <-h.inbound:
			h.handle(frame.session, frame.msg)
		}
	}
}

// add activates a session: the newcomer gets the current roster, everyone
// else learns of the arrival. A reconnect for the same subject replaces the
// stale session without a departure broadcast.
func (h *Hub) add(session *Session) {
	if old, ok := h.sessions[session.UserID]; ok {
		old.close()
		metrics.ActiveSessions.WithLabelValues(h.kind).Dec()
	}
	h.sessions[session.UserID] = session
	metrics.ActiveSessions.WithLabelValues(h.kind).Inc()

	connected, err := NewMessage(TypeConnected, rosterPayload{Channel: h.channelID, Users: h.roster()}, "")
	if err == nil {
		h.deliver(session, connected)
	}

	arrival, err := NewMessage(TypeUserConnected, subjectPayload{UserID: session.UserID}, session.UserID)
	if err == nil {
		h.fanOut(arrival, session.UserID)
	}

	slog.Info("Session joined", "channel", h.channelID, "user_id", session.UserID, "sessions", len(h.sessions))
}

// remove evicts a session and, when announce is set, broadcasts the
// departure to the remaining sessions.
func (h *Hub) remove(session *Session, announce bool) {
	current, ok := h.sessions[session.UserID]
	if !ok || current != session {
		// Already replaced by a reconnect or evicted during a fan-out.
		session.close()
		return
	}
	delete(h.sessions, session.UserID)
	session.close()
	metrics.ActiveSessions.WithLabelValues(h.kind).Dec()

	if announce {
		departure, err := NewMessage(TypeUserDisconnected, subjectPayload{UserID: session.UserID}, session.UserID)
		if err == nil {
			h.fanOut(departure, "")
		}
	}

	slog.Info("Session left", "channel", h.channelID, "user_id", session.UserID, "sessions", len(h.sessions))
}

// fanOut delivers a message to every active session except the excluded
// subject. Delivery is best-effort per session; a failed send evicts that
// session but never aborts delivery to its siblings.
func (h *Hub) fanOut(msg Message, excludeUserID string) {
	payload, err := msg.Encode()
	if err != nil {
		slog.Error("Failed to encode broadcast", "type", msg.Type, "error", err)
		return
	}
	metrics.Broadcasts.Add(1)

	var failed []*Session
	for userID, session := range h.sessions {
		if userID == excludeUserID {
			continue
		}
		if !session.trySend(payload) {
			failed = append(failed, session)
		}
	}
	for _, session := range failed {
		slog.Warn("Evicting unresponsive session", "channel", h.channelID, "user_id", session.UserID)
		h.remove(session, true)
	}
}

// deliver sends to a single session, evicting it on failure.
func (h *Hub) deliver(session *Session, msg Message) {
	if !session.sendMessage(msg) {
		h.remove(session, true)
	}
}

// handle processes one client frame sequentially with all other hub events.
func (h *Hub) handle(session *Session, msg Message) {
	switch msg.Type {
	case TypePing:
		session.lastPing.Store(time.Now().UnixMilli())
		pong, err := NewMessage(TypePong, nil, "")
		if err == nil {
			h.deliver(session, pong)
		}
	case TypeUserTyping:
		relay := msg
		relay.Sender = session.UserID
		h.fanOut(relay, session.UserID)
	case TypeRequestSync:
		h.sync(session)
	case TypeDisconnect:
		h.remove(session, true)
	default:
		slog.Debug("Ignoring client frame", "type", msg.Type, "user_id", session.UserID)
	}
}

// sync answers a request_sync pull with the current channel state.
func (h *Hub) sync(session *Session) {
	if h.syncFn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	state, err := h.syncFn(ctx, h.channelID, session.UserID)
	if err != nil {
		slog.Warn("Sync failed", "channel", h.channelID, "user_id", session.UserID, "error", err)
		return
	}
	response, err := NewMessage(TypeSyncResponse, state, "")
	if err != nil {
		slog.Error("Failed to encode sync response", "channel", h.channelID, "error", err)
		return
	}
	h.deliver(session, response)
}

// roster returns the active subject IDs in sorted order.
func (h *Hub) roster() []string {
	users := make([]string, 0, len(h.sessions))
	for userID := range h.sessions {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

type rosterPayload struct {
	Channel string   `json:"channel"`
	Users   []string `json:"users"`
}

type subjectPayload struct {
	UserID string `json:"user_id"`
}
