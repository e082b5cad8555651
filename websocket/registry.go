package websocket

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/wellmom/chat-service/models"
)

// Conn is the slice of a live websocket connection the registry needs. The
// fiber websocket connection satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Registry tracks live connections per user. A user may hold several at once
// (phone plus web). It is process-local and disposable: losing it only means
// "nobody reachable" until clients reconnect, never data loss, because every
// message is persisted before any live-delivery attempt.
//
// Both maps mutate only under mu so the forward and reverse views never
// diverge.
type Registry struct {
	mu     sync.Mutex
	byUser map[uuid.UUID]map[Conn]struct{}
	owners map[Conn]uuid.UUID
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[uuid.UUID]map[Conn]struct{}),
		owners: make(map[Conn]uuid.UUID),
	}
}

// Register adds a connection to the user's set.
func (r *Registry) Register(conn Conn, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[Conn]struct{})
		r.byUser[userID] = set
	}
	set[conn] = struct{}{}
	r.owners[conn] = userID
}

// Remove drops a connection, deleting the user's entry when it was the last
// one. Removing an unknown connection is a no-op.
func (r *Registry) Remove(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(conn)
}

func (r *Registry) removeLocked(conn Conn) {
	userID, ok := r.owners[conn]
	if !ok {
		return
	}
	delete(r.owners, conn)
	if set, ok := r.byUser[userID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// ConnectionCount reports how many live connections a user holds.
func (r *Registry) ConnectionCount(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser[userID])
}

// SendToUser fans a payload out to every connection of the user. Delivery is
// best-effort: a failed write closes and unregisters that connection and is
// never reported to the caller.
func (r *Registry) SendToUser(userID uuid.UUID, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failed []Conn
	for conn := range r.byUser[userID] {
		if err := conn.WriteJSON(payload); err != nil {
			log.Printf("Error sending frame to user %s: %v", userID, err)
			failed = append(failed, conn)
		}
	}
	for _, conn := range failed {
		_ = conn.Close()
		r.removeLocked(conn)
	}
}

// BroadcastToConversation delivers a payload to both participants. The
// conversation must carry its preloaded profiles so user ids resolve without
// a database round trip.
func (r *Registry) BroadcastToConversation(conv *models.Conversation, payload interface{}) {
	r.SendToUser(conv.Recipient.UserID, payload)
	r.SendToUser(conv.Provider.UserID, payload)
}
