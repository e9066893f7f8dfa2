package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types delivered over a channel. Broadcast types fan out to every
// active session; targeted types go to exactly one subject.
const (
	// Lifecycle
	TypeConnected        = "connected"
	TypeUserConnected    = "user_connected"
	TypeUserDisconnected = "user_disconnected"
	TypeDisconnect       = "disconnect"

	// Liveness
	TypePing = "ping"
	TypePong = "pong"

	// Sync pull path
	TypeRequestSync  = "request_sync"
	TypeSyncResponse = "sync_response"

	// Domain events
	TypeExpenseAdded        = "expense_added"
	TypeExpenseUpdated      = "expense_updated"
	TypeExpenseDeleted      = "expense_deleted"
	TypeSettlementAdded     = "settlement_added"
	TypeSettlementConfirmed = "settlement_confirmed"
	TypeCommentAdded        = "comment_added"
	TypeMemberJoined        = "member_joined"
	TypeMemberLeft          = "member_left"
	TypeFriendRequest       = "friend_request"
	TypeFriendAccepted      = "friend_accepted"
	TypeGroupJoined         = "group_joined"
	TypeUserTyping          = "user_typing"
)

// Message is the wire envelope for every frame on a channel.
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewMessage builds an envelope with the current timestamp. data may be nil.
func NewMessage(msgType string, data any, sender string) (Message, error) {
	msg := Message{
		Type:      msgType,
		Sender:    sender,
		Timestamp: time.Now().UnixMilli(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Message{}, fmt.Errorf("marshal %s data: %w", msgType, err)
		}
		msg.Data = raw
	}
	return msg, nil
}

// Encode serializes the envelope for the transport.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
