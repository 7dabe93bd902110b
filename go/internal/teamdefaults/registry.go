package teamdefaults

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
)

// Store loads and saves the complete team key → defaults document.
type Store interface {
	Load(ctx context.Context) (map[string]models.TeamDefaults, error)
	Save(ctx context.Context, teams map[string]models.TeamDefaults) error
}

// Registry is the in-memory view of team defaults. Reads never touch the
// backing store; changes are flushed periodically.
type Registry struct {
	mu    sync.RWMutex
	teams map[string]models.TeamDefaults
	// version counts changes; saved is the version last written to store.
	version uint64
	saved   uint64

	store Store
	clock clockwork.Clock
}

// NewRegistry creates an empty registry backed by store.
func NewRegistry(store Store, clock clockwork.Clock) *Registry {
	return &Registry{
		teams: make(map[string]models.TeamDefaults),
		store: store,
		clock: clock,
	}
}

// Load replaces the in-memory defaults with the stored document. On failure
// the current in-memory defaults are kept.
func (r *Registry) Load(ctx context.Context) error {
	teams, err := r.store.Load(ctx)
	if err != nil {
		return err
	}
	if teams == nil {
		teams = make(map[string]models.TeamDefaults)
	}

	r.mu.Lock()
	r.teams = teams
	r.saved = r.version
	r.mu.Unlock()

	log.Info().Int("teams", len(teams)).Msg("loaded team defaults")
	return nil
}

// Lookup returns the defaults of a team.
func (r *Registry) Lookup(teamKey string) (models.TeamDefaults, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.teams[teamKey]
	return d, ok
}

// Set stores the defaults of a team and marks the registry for flushing.
func (r *Registry) Set(teamKey string, d models.TeamDefaults) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams[teamKey] = d
	r.version++
}

// Dirty reports whether there are changes not yet flushed.
func (r *Registry) Dirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version != r.saved
}

// Len returns the number of teams with stored defaults.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.teams)
}

// Flush writes the defaults to the store if they changed since the last
// successful flush.
func (r *Registry) Flush(ctx context.Context) error {
	r.mu.RLock()
	if r.version == r.saved {
		r.mu.RUnlock()
		return nil
	}
	version := r.version
	snapshot := make(map[string]models.TeamDefaults, len(r.teams))
	for k, v := range r.teams {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	if err := r.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("flush team defaults: %w", err)
	}

	r.mu.Lock()
	if version > r.saved {
		r.saved = version
	}
	r.mu.Unlock()

	log.Info().Int("teams", len(snapshot)).Msg("team defaults saved")
	return nil
}

// Run flushes the registry every interval until ctx is cancelled, then
// flushes once more.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := r.Flush(flushCtx); err != nil {
				log.Error().Err(err).Msg("final team defaults flush failed")
			}
			cancel()
			return
		case <-ticker.Chan():
			if err := r.Flush(ctx); err != nil {
				log.Error().Err(err).Msg("team defaults flush failed")
			}
		}
	}
}
