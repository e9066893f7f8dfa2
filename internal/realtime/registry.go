// Package realtime manages WebSocket sessions and event fan-out. One hub
// instance owns each channel (a group, or one user's personal stream); all
// sessions for the same channel observe the same broadcast stream.
package realtime

import (
	"strings"
	"sync"
)

const userChannelPrefix = "user:"

// UserChannel returns the channel key for a user's personal stream.
func UserChannel(userID string) string {
	return userChannelPrefix + userID
}

// ParseUserChannel reports whether the channel is a personal stream and, if
// so, whose.
func ParseUserChannel(channelID string) (string, bool) {
	return strings.CutPrefix(channelID, userChannelPrefix)
}

// Registry maps channel IDs to their owning hubs, creating a hub (and its
// run goroutine) on first use. Only the map itself is locked; all session
// state belongs to the hubs.
type Registry struct {
	mu     sync.Mutex
	hubs   map[string]*Hub
	syncFn SyncFunc
}

// NewRegistry creates a Registry. syncFn backs the request_sync pull path
// and may be nil if sync is not offered.
func NewRegistry(syncFn SyncFunc) *Registry {
	return &Registry{
		hubs:   make(map[string]*Hub),
		syncFn: syncFn,
	}
}

// hub returns the owning hub for a channel, starting it on first use.
func (r *Registry) hub(channelID string) *Hub {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hubs[channelID]
	if !ok {
		h = newHub(channelID, r.syncFn)
		r.hubs[channelID] = h
		go h.run()
	}
	return h
}

// lookup returns the hub only if it already exists. Broadcasts to channels
// nobody ever joined need no hub.
func (r *Registry) lookup(channelID string) (*Hub, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[channelID]
	return h, ok
}

// Broadcast delivers a message to every active session on the channel except
// the excluded subject (empty string excludes nobody). Best-effort: offline
// channels and dead sessions are skipped, never errors.
func (r *Registry) Broadcast(channelID string, msg Message, excludeUserID string) {
	if h, ok := r.lookup(channelID); ok {
		h.outbound <- outboundFrame{msg: msg, exclude: excludeUserID}
	}
}

// SendToUser delivers to exactly one subject's session on the channel if
// active; a silent no-op otherwise.
func (r *Registry) SendToUser(channelID, userID string, msg Message) {
	if h, ok := r.lookup(channelID); ok {
		h.direct <- directFrame{userID: userID, msg: msg}
	}
}

// NotifyUsers delivers a message to each listed user's personal channel.
// This is the fan-out path for mutations without a group scope: every
// participant except the actor hears about it on their own stream.
func (r *Registry) NotifyUsers(userIDs []string, msg Message, excludeUserID string) {
	for _, userID := range userIDs {
		if userID == excludeUserID {
			continue
		}
		channel := UserChannel(userID)
		r.SendToUser(channel, userID, msg)
	}
}
