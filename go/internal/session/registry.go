package session

import (
	"sort"
	"sync"
	"time"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
)

// Session binds a live connection to the room and participant it joined as.
type Session struct {
	ConnectionID  string
	RoomCode      string
	ParticipantID string
	UserName      string
	Role          models.Role
	BoundAt       time.Time
}

// Registry maps connection ids to their session. A connection has at most one
// session and therefore at most one room.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]Session
	byRoom map[string]map[string]struct{}
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]Session),
		byRoom: make(map[string]map[string]struct{}),
	}
}

// Bind stores s, replacing any session previously held by the same connection.
// The replaced session is returned.
func (r *Registry) Bind(s Session) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.byConn[s.ConnectionID]
	if existed {
		r.removeFromRoom(prev)
	}

	r.byConn[s.ConnectionID] = s
	if r.byRoom[s.RoomCode] == nil {
		r.byRoom[s.RoomCode] = make(map[string]struct{})
	}
	r.byRoom[s.RoomCode][s.ConnectionID] = struct{}{}

	return prev, existed
}

// Unbind deletes the session of a connection.
func (r *Registry) Unbind(connectionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byConn[connectionID]
	if !ok {
		return Session{}, false
	}
	delete(r.byConn, connectionID)
	r.removeFromRoom(s)
	return s, true
}

func (r *Registry) removeFromRoom(s Session) {
	conns, ok := r.byRoom[s.RoomCode]
	if !ok {
		return
	}
	delete(conns, s.ConnectionID)
	if len(conns) == 0 {
		delete(r.byRoom, s.RoomCode)
	}
}

// Lookup returns the session bound to a connection.
func (r *Registry) Lookup(connectionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byConn[connectionID]
	return s, ok
}

// Connections returns the ids of every connection bound to a room, sorted.
func (r *Registry) Connections(roomCode string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byRoom[roomCode]
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of bound connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
