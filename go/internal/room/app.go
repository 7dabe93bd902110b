package room

import (
	"fmt"
	"math"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
	"github.com/JacquesBronk/FreeScrumPoker/go/internal/session"
)

// DefaultsProvider resolves the stored defaults of a team.
type DefaultsProvider interface {
	Lookup(teamKey string) (models.TeamDefaults, bool)
}

// Scheduler starts the tick task of a room timer.
type Scheduler interface {
	Schedule(roomCode string) *Countdown
}

// App is the room state machine. Every method must be called from a single
// goroutine; it performs no locking of its own beyond the store map.
type App struct {
	store    *Store
	sessions *session.Registry
	defaults DefaultsProvider
	timers   Scheduler
	clock    clockwork.Clock
}

// NewApp creates a room App.
func NewApp(store *Store, sessions *session.Registry, defaults DefaultsProvider, timers Scheduler, clock clockwork.Clock) *App {
	return &App{
		store:    store,
		sessions: sessions,
		defaults: defaults,
		timers:   timers,
		clock:    clock,
	}
}

// JoinRequest asks for a connection to enter a room as a named participant.
type JoinRequest struct {
	RoomCode     string
	UserName     string
	Role         string
	TeamKey      string
	ConnectionID string
}

// JoinOutcome is the result of a join.
type JoinOutcome struct {
	Room        *models.Room
	Participant models.Participant
	// Rebound is true when an existing participant of the same name was
	// rebound to the connection instead of a new participant being added.
	Rebound bool
	// ReplacedConnectionID is the connection that held the participant before
	// a rebind, if it was a different one.
	ReplacedConnectionID string
	// Left describes the room the connection was removed from, if it was
	// previously bound elsewhere.
	Left *LeaveOutcome
}

// LeaveOutcome is the result of a participant leaving a room.
type LeaveOutcome struct {
	RoomCode        string
	ParticipantID   string
	ParticipantName string
	RoomEmpty       bool
	TimerCancelled  bool
}

// VoteOutcome is the result of a vote being cast.
type VoteOutcome struct {
	ParticipantID string
	Vote          models.Vote
	By            string
}

// RevealOutcome is the result of toggling card visibility.
type RevealOutcome struct {
	Revealed bool
	Summary  *Summary
	By       string
}

// StoryOutcome is the result of a story update.
type StoryOutcome struct {
	Story models.Story
	By    string
}

// CardSetOutcome is the result of a card set change.
type CardSetOutcome struct {
	CardSet     string
	CustomCards []string
	By          string
}

// CompleteOutcome is the result of completing a story.
type CompleteOutcome struct {
	Story models.CompletedStory
	Stats models.Stats
	By    string
	// TimerStopped is true when completion cancelled a running timer.
	TimerStopped bool
	Timer        models.Timer
}

// TimerOutcome is the result of starting or stopping a timer.
type TimerOutcome struct {
	Timer models.Timer
	By    string
}

// TickOutcome is the result of a timer tick.
type TickOutcome struct {
	Timer    models.Timer
	Notify   bool
	Finished bool
}

const timerBroadcastInterval = 30

// GetOrCreate returns the room with the given code, creating it from team or
// built-in defaults when it does not exist yet.
func (a *App) GetOrCreate(code, teamKey string) (*models.Room, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("room code is required: %w", ErrValidation)
	}

	now := a.clock.Now()
	if r, ok := a.store.Get(code); ok {
		r.LastActivity = now
		return r, nil
	}

	r := a.newRoom(code, teamKey)
	a.store.Put(r)

	log.Info().
		Str("room_id", code).
		Str("team_key", teamKey).
		Str("card_set", r.CardSet).
		Msg("room created")

	return r, nil
}

func (a *App) newRoom(code, teamKey string) *models.Room {
	var d models.TeamDefaults
	if teamKey != "" && a.defaults != nil {
		d, _ = a.defaults.Lookup(teamKey)
	}

	now := a.clock.Now()
	r := &models.Room{
		ID:               code,
		Name:             d.Name,
		CreatedAt:        now,
		LastActivity:     now,
		Participants:     []*models.Participant{},
		CurrentStory:     models.NewStory(models.EstimationComplexity),
		Votes:            make(map[string]models.Vote),
		Round:            1,
		Timer:            models.Timer{Duration: models.DefaultTimerDuration},
		CardSet:          d.CardSet,
		CustomCards:      append([]string{}, d.CustomCards...),
		CardHelp:         make(map[string]string, len(d.CardHelp)),
		Templates:        Templates(),
		CompletedStories: []models.CompletedStory{},
	}
	if r.Name == "" {
		r.Name = defaultRoomName(code)
	}
	if r.CardSet == "" {
		r.CardSet = DefaultCardSet
	}
	for k, v := range d.CardHelp {
		r.CardHelp[k] = v
	}
	for k, v := range d.Templates {
		r.Templates[k] = v
	}
	return r
}

// Join binds a connection to a room as the named participant. Joining with a
// name already present in the room rebinds that participant instead of adding
// a duplicate.
func (a *App) Join(req JoinRequest) (JoinOutcome, error) {
	code := NormalizeCode(req.RoomCode)
	name := strings.TrimSpace(req.UserName)
	if code == "" || name == "" {
		return JoinOutcome{}, fmt.Errorf("room code and user name are required: %w", ErrValidation)
	}

	var out JoinOutcome

	// A connection is bound to at most one room and one participant.
	if prev, ok := a.sessions.Lookup(req.ConnectionID); ok && (prev.RoomCode != code || prev.UserName != name) {
		if left, ok := a.Disconnect(req.ConnectionID); ok {
			out.Left = &left
		}
	}

	r, err := a.GetOrCreate(code, req.TeamKey)
	if err != nil {
		return JoinOutcome{}, err
	}

	now := a.clock.Now()
	role := models.ParseRole(req.Role)

	p := r.FindParticipantByName(name)
	if p != nil {
		if p.ConnectionID != req.ConnectionID {
			out.ReplacedConnectionID = p.ConnectionID
			a.sessions.Unbind(p.ConnectionID)
		}
		p.ConnectionID = req.ConnectionID
		p.Role = role
		p.LastSeen = now
		out.Rebound = true
	} else {
		p = &models.Participant{
			ID:           req.ConnectionID,
			ConnectionID: req.ConnectionID,
			Name:         name,
			Role:         role,
			JoinTime:     now,
			LastSeen:     now,
		}
		r.Participants = append(r.Participants, p)
	}

	a.sessions.Bind(session.Session{
		ConnectionID:  req.ConnectionID,
		RoomCode:      code,
		ParticipantID: p.ID,
		UserName:      name,
		Role:          role,
		BoundAt:       now,
	})

	out.Room = r.Snapshot()
	out.Participant = *p

	log.Info().
		Str("room_id", code).
		Str("connection_id", req.ConnectionID).
		Str("participant", name).
		Str("role", string(role)).
		Bool("rebound", out.Rebound).
		Msg("participant joined room")

	return out, nil
}

// authorize resolves the room and participant a connection acts as.
func (a *App) authorize(code, connectionID string) (*models.Room, *models.Participant, error) {
	code = NormalizeCode(code)
	s, ok := a.sessions.Lookup(connectionID)
	if !ok || s.RoomCode != code {
		return nil, nil, ErrInvalidSession
	}

	r, ok := a.store.Get(code)
	if !ok {
		return nil, nil, fmt.Errorf("room %s: %w", code, ErrRoomNotFound)
	}

	p := r.FindParticipantByConnection(connectionID)
	if p == nil {
		return nil, nil, ErrInvalidSession
	}

	now := a.clock.Now()
	r.LastActivity = now
	p.LastSeen = now
	return r, p, nil
}

// CastVote records the participant's vote, replacing any earlier one. Role is
// not checked, so observers may vote.
func (a *App) CastVote(code, connectionID, card string, confidence models.Confidence) (VoteOutcome, error) {
	r, p, err := a.authorize(code, connectionID)
	if err != nil {
		return VoteOutcome{}, err
	}

	if confidence == "" {
		confidence = models.ConfidenceMedium
	}
	v := models.Vote{
		Card:       card,
		Confidence: confidence,
		Timestamp:  a.clock.Now(),
	}
	r.Votes[p.ID] = v

	return VoteOutcome{ParticipantID: p.ID, Vote: v, By: p.Name}, nil
}

// ToggleReveal flips card visibility. Revealing with no votes is allowed.
func (a *App) ToggleReveal(code, connectionID string) (RevealOutcome, error) {
	r, p, err := a.authorize(code, connectionID)
	if err != nil {
		return RevealOutcome{}, err
	}

	r.CardsRevealed = !r.CardsRevealed
	out := RevealOutcome{Revealed: r.CardsRevealed, By: p.Name}
	if r.CardsRevealed {
		if s, ok := Aggregate(r.Votes); ok {
			out.Summary = &s
		}
	}
	return out, nil
}

// ClearVotes empties the votes and hides the cards. The timer is untouched.
func (a *App) ClearVotes(code, connectionID string) (string, error) {
	r, p, err := a.authorize(code, connectionID)
	if err != nil {
		return "", err
	}
	resetVoting(r)
	return p.Name, nil
}

// resetVoting clears votes and reveal state. Clearing after a reveal starts a
// new estimation round of the current story.
func resetVoting(r *models.Room) {
	if r.CardsRevealed {
		r.Round++
	}
	r.Votes = make(map[string]models.Vote)
	r.CardsRevealed = false
}

// UpdateStory merges the provided fields into the current story. Votes and
// reveal state are kept.
func (a *App) UpdateStory(code, connectionID string, update models.StoryUpdate) (StoryOutcome, error) {
	r, p, err := a.authorize(code, connectionID)
	if err != nil {
		return StoryOutcome{}, err
	}

	update.Apply(&r.CurrentStory)
	return StoryOutcome{Story: r.CurrentStory.Clone(), By: p.Name}, nil
}

// ChangeEstimationType sets the estimation dimension of the current story.
// Unknown values are stored as given.
func (a *App) ChangeEstimationType(code, connectionID string, t models.EstimationType) (models.EstimationType, string, error) {
	r, p, err := a.authorize(code, connectionID)
	if err != nil {
		return "", "", err
	}

	if !t.Valid() {
		log.Warn().
			Str("room_id", r.ID).
			Str("estimation_type", string(t)).
			Msg("unknown estimation type")
	}
	r.CurrentStory.EstimationType = t
	return t, p.Name, nil
}

// ChangeCardSet switches the active card set, replacing the custom cards when
// given. In-flight votes are always discarded.
func (a *App) ChangeCardSet(code, connectionID, cardSet string, customCards []string) (CardSetOutcome, error) {
	r, p, err := a.authorize(code, connectionID)
	if err != nil {
		return CardSetOutcome{}, err
	}

	r.CardSet = cardSet
	if customCards != nil {
		r.CustomCards = append([]string{}, customCards...)
	}
	resetVoting(r)

	return CardSetOutcome{
		CardSet:     r.CardSet,
		CustomCards: append([]string{}, r.CustomCards...),
		By:          p.Name,
	}, nil
}

// CompleteStory records the current story with the given estimate, resets the
// story and voting state, and cancels a running timer. The estimate and
// consensus are stored as sent.
func (a *App) CompleteStory(code, connectionID, estimate string, consensus bool) (CompleteOutcome, error) {
	r, p, err := a.authorize(code, connectionID)
	if err != nil {
		return CompleteOutcome{}, err
	}

	done := models.CompletedStory{
		Title:            r.CurrentStory.Title,
		Description:      r.CurrentStory.Description,
		Estimate:         estimate,
		Consensus:        consensus,
		Rounds:           r.Round,
		ParticipantCount: len(r.Participants),
		VoteCount:        len(r.Votes),
		CompletedAt:      a.clock.Now(),
		EstimationType:   r.CurrentStory.EstimationType,
	}
	r.CompletedStories = append(r.CompletedStories, done)
	r.Stats = recomputeStats(r.Stats, r.CompletedStories, done)

	r.CurrentStory = models.NewStory(r.CurrentStory.EstimationType)
	r.Votes = make(map[string]models.Vote)
	r.CardsRevealed = false
	r.Round = 1

	out := CompleteOutcome{Story: done, Stats: r.Stats, By: p.Name}
	if r.Timer.Active {
		stopTimer(r)
		out.TimerStopped = true
	}
	out.Timer = r.Timer

	log.Info().
		Str("room_id", r.ID).
		Str("estimate", estimate).
		Bool("consensus", consensus).
		Int("total_stories", r.Stats.TotalStories).
		Msg("story completed")

	return out, nil
}

func recomputeStats(prev models.Stats, history []models.CompletedStory, done models.CompletedStory) models.Stats {
	consensusCount := 0
	for _, s := range history {
		if s.Consensus {
			consensusCount++
		}
	}

	stats := models.Stats{
		TotalStories: len(history),
		TotalRounds:  prev.TotalRounds + done.Rounds,
	}
	stats.AverageRounds = math.Round(float64(stats.TotalRounds)/float64(stats.TotalStories)*10) / 10
	stats.ConsensusRate = int(math.Round(100 * float64(consensusCount) / float64(stats.TotalStories)))
	return stats
}

// Leave removes the participant bound to a connection. When the room becomes
// empty its timer is cancelled.
func (a *App) Leave(code, connectionID string) (LeaveOutcome, bool) {
	code = NormalizeCode(code)
	r, ok := a.store.Get(code)
	if !ok {
		return LeaveOutcome{}, false
	}

	idx := -1
	for i, p := range r.Participants {
		if p.ConnectionID == connectionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return LeaveOutcome{}, false
	}

	p := r.Participants[idx]
	r.Participants = append(r.Participants[:idx], r.Participants[idx+1:]...)
	r.LastActivity = a.clock.Now()

	out := LeaveOutcome{
		RoomCode:        code,
		ParticipantID:   p.ID,
		ParticipantName: p.Name,
		RoomEmpty:       len(r.Participants) == 0,
	}
	if out.RoomEmpty && (r.Timer.Active || r.Countdown != nil) {
		stopTimer(r)
		out.TimerCancelled = true
	}

	log.Info().
		Str("room_id", code).
		Str("connection_id", connectionID).
		Str("participant", p.Name).
		Bool("room_empty", out.RoomEmpty).
		Msg("participant left room")

	return out, true
}

// Disconnect removes a connection's participant from its room and deletes its
// session. It reports false when the connection had no session.
func (a *App) Disconnect(connectionID string) (LeaveOutcome, bool) {
	s, ok := a.sessions.Lookup(connectionID)
	if !ok {
		return LeaveOutcome{}, false
	}

	out, left := a.Leave(s.RoomCode, connectionID)
	a.sessions.Unbind(connectionID)
	if !left {
		return LeaveOutcome{RoomCode: s.RoomCode}, false
	}
	return out, true
}

// ToggleTimer stops a running timer or starts one for duration seconds. A
// non-positive duration falls back to the room's configured duration.
func (a *App) ToggleTimer(code, connectionID string, duration int) (TimerOutcome, error) {
	r, p, err := a.authorize(code, connectionID)
	if err != nil {
		return TimerOutcome{}, err
	}

	if r.Timer.Active {
		stopTimer(r)
	} else {
		a.startTimer(r, duration)
	}
	return TimerOutcome{Timer: r.Timer, By: p.Name}, nil
}

func (a *App) startTimer(r *models.Room, duration int) {
	// Only one countdown may tick per room.
	cancelCountdown(r)

	if duration <= 0 {
		duration = r.Timer.Duration
	}
	if duration <= 0 {
		duration = models.DefaultTimerDuration
	}

	r.Timer = models.Timer{Active: true, Remaining: duration, Duration: duration}
	r.Countdown = a.timers.Schedule(r.ID)
}

func stopTimer(r *models.Room) {
	cancelCountdown(r)
	r.Timer.Active = false
	r.Timer.Remaining = 0
}

// Tick advances a room's timer by one second. Ticks from a cancelled or
// replaced countdown are ignored and reported as false.
func (a *App) Tick(tick TimerTick) (TickOutcome, bool) {
	r, ok := a.store.Get(tick.RoomCode)
	if !ok || !r.Timer.Active {
		return TickOutcome{}, false
	}
	if gen, ok := countdownGeneration(r); !ok || gen != tick.Generation {
		return TickOutcome{}, false
	}

	r.Timer.Remaining--
	out := TickOutcome{}
	if r.Timer.Remaining <= 0 {
		r.Timer.Remaining = 0
		r.Timer.Active = false
		cancelCountdown(r)
		out.Finished = true
		out.Notify = true

		log.Info().Str("room_id", r.ID).Msg("timer finished")
	} else {
		out.Notify = r.Timer.Remaining%timerBroadcastInterval == 0
	}
	out.Timer = r.Timer
	return out, true
}

// Snapshot returns a copy of a room's current state.
func (a *App) Snapshot(code string) (*models.Room, bool) {
	r, ok := a.store.Get(NormalizeCode(code))
	if !ok {
		return nil, false
	}
	return r.Snapshot(), true
}
