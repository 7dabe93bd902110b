package room

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
)

// Store holds every live room keyed by normalized room code.
//
// The map is guarded by mu so the room count can be read from any goroutine;
// the rooms themselves are only mutated by the dispatcher goroutine.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*models.Room
	clock clockwork.Clock
}

// NewStore creates an empty room store.
func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		rooms: make(map[string]*models.Room),
		clock: clock,
	}
}

// Get returns the room with the given code.
func (s *Store) Get(code string) (*models.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[code]
	return r, ok
}

// Put stores a room under its id.
func (s *Store) Put(r *models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r
}

// Remove deletes a room, cancelling its countdown if one is running.
func (s *Store) Remove(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[code]
	if !ok {
		return false
	}
	cancelCountdown(r)
	delete(s.rooms, code)
	return true
}

// Len returns the number of rooms.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Sweep evicts rooms that have no participants and have been idle for longer
// than maxIdle. Occupied rooms are never evicted. It returns the evicted codes.
func (s *Store) Sweep(maxIdle time.Duration) []string {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for code, r := range s.rooms {
		if len(r.Participants) > 0 || now.Sub(r.LastActivity) <= maxIdle {
			continue
		}
		cancelCountdown(r)
		delete(s.rooms, code)
		evicted = append(evicted, code)

		log.Info().
			Str("room_id", code).
			Time("last_activity", r.LastActivity).
			Msg("evicted idle room")
	}
	return evicted
}

// StopTimers cancels every running countdown. It is used on shutdown, after
// the dispatcher has stopped.
func (s *Store) StopTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		cancelCountdown(r)
		r.Timer.Active = false
	}
}
