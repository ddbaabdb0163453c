package presence

import (
	"sort"
	"sync"

	"messaging-service/internal/models"
)

// Conn is a live, addressable client connection. SendEvent is best-effort:
// delivery to a dead or backlogged connection is silently dropped.
type Conn interface {
	SendEvent(event models.Event)
	Close() error
}

// Broadcaster pushes an event to every connection open at call time.
type Broadcaster interface {
	Broadcast(event models.Event)
}

// Registry tracks which users currently hold an open connection. It owns
// its map behind a mutex and is injected wherever presence is needed; it is
// never package-global state. State is volatile and rebuilt as clients
// reconnect after a restart.
type Registry struct {
	mu          sync.RWMutex
	conns       map[int]Conn
	broadcaster Broadcaster
}

// NewRegistry builds an empty registry that announces presence changes
// through the given broadcaster.
func NewRegistry(b Broadcaster) *Registry {
	return &Registry{conns: make(map[int]Conn), broadcaster: b}
}

// Register binds the user to the connection, replacing and closing any
// previously held one (last connection wins), then announces the new
// online set to everyone.
func (r *Registry) Register(userID int, conn Conn) {
	r.mu.Lock()
	displaced := r.conns[userID]
	r.conns[userID] = conn
	r.mu.Unlock()

	if displaced != nil && displaced != conn {
		_ = displaced.Close()
	}
	r.announce()
}

// Unregister removes the user's entry, but only if it still points at this
// connection. A reconnect that already replaced the entry is left alone, so
// a slow disconnect cannot erase a newer registration.
func (r *Registry) Unregister(userID int, conn Conn) {
	r.mu.Lock()
	current, ok := r.conns[userID]
	if ok && current == conn {
		delete(r.conns, userID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		r.announce()
	}
}

// Lookup returns the user's live connection, if any. Pure read.
func (r *Registry) Lookup(userID int) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

// OnlineIDs returns the sorted set of currently connected user ids.
func (r *Registry) OnlineIDs() []int {
	r.mu.RLock()
	ids := make([]int, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Ints(ids)
	return ids
}

func (r *Registry) announce() {
	if r.broadcaster == nil {
		return
	}
	r.broadcaster.Broadcast(models.PresenceChangedEvent(r.OnlineIDs()))
}
