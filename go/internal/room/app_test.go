package room

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
	"github.com/JacquesBronk/FreeScrumPoker/go/internal/session"
)

type staticDefaults map[string]models.TeamDefaults

func (s staticDefaults) Lookup(teamKey string) (models.TeamDefaults, bool) {
	d, ok := s[teamKey]
	return d, ok
}

type testEnv struct {
	app      *App
	store    *Store
	sessions *session.Registry
	clock    *clockwork.FakeClock
}

func newTestEnv(t *testing.T, defaults DefaultsProvider) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store := NewStore(clock)
	sessions := session.NewRegistry()
	app := NewApp(store, sessions, defaults, NewCountdowns(clock, time.Second), clock)
	return &testEnv{app: app, store: store, sessions: sessions, clock: clock}
}

func (e *testEnv) join(t *testing.T, code, name, conn string) JoinOutcome {
	t.Helper()
	out, err := e.app.Join(JoinRequest{RoomCode: code, UserName: name, Role: "voter", ConnectionID: conn})
	require.NoError(t, err)
	return out
}

func (e *testEnv) room(t *testing.T, code string) *models.Room {
	t.Helper()
	r, ok := e.store.Get(code)
	require.True(t, ok)
	return r
}

func TestGetOrCreate_BuiltInDefaults(t *testing.T) {
	env := newTestEnv(t, nil)

	r, err := env.app.GetOrCreate("agile-team-042", "")
	require.NoError(t, err)

	assert.Equal(t, "AGILE-TEAM-042", r.ID)
	assert.Equal(t, "Room AM-042", r.Name)
	assert.Equal(t, "fibonacci", r.CardSet)
	assert.Equal(t, models.DefaultTimerDuration, r.Timer.Duration)
	assert.False(t, r.Timer.Active)
	assert.Equal(t, models.EstimationComplexity, r.CurrentStory.EstimationType)
	assert.Equal(t, "user-story", r.CurrentStory.Template)
	assert.Len(t, r.Templates, 4)
	assert.Equal(t, 1, r.Round)
}

func TestGetOrCreate_TeamDefaults(t *testing.T) {
	env := newTestEnv(t, staticDefaults{
		"platform": {
			Name:        "Platform Refinement",
			CardSet:     "tshirt",
			CustomCards: []string{"S", "M"},
			CardHelp:    map[string]string{"S": "a day"},
			Templates:   map[string]models.Template{"epic": {Name: "Epic", Template: "Goal: [goal]"}},
		},
	})

	r, err := env.app.GetOrCreate("ROOM1", "platform")
	require.NoError(t, err)

	assert.Equal(t, "Platform Refinement", r.Name)
	assert.Equal(t, "tshirt", r.CardSet)
	assert.Equal(t, []string{"S", "M"}, r.CustomCards)
	assert.Equal(t, "a day", r.CardHelp["S"])
	assert.Contains(t, r.Templates, "epic")
	assert.Contains(t, r.Templates, "bug")
}

func TestGetOrCreate_ExistingRoomBumpsActivity(t *testing.T) {
	env := newTestEnv(t, nil)
	r, err := env.app.GetOrCreate("R", "")
	require.NoError(t, err)
	created := r.LastActivity

	env.clock.Advance(time.Minute)
	again, err := env.app.GetOrCreate("r", "ignored-team")
	require.NoError(t, err)

	assert.Same(t, r, again)
	assert.Equal(t, created.Add(time.Minute), again.LastActivity)
}

func TestGetOrCreate_EmptyCode(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.app.GetOrCreate("!!!", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestJoin_RequiresCodeAndName(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.app.Join(JoinRequest{RoomCode: "", UserName: "alice", ConnectionID: "c1"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.app.Join(JoinRequest{RoomCode: "R", UserName: "  ", ConnectionID: "c1"})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Zero(t, env.sessions.Len())
}

func TestJoin_AddsParticipantAndSession(t *testing.T) {
	env := newTestEnv(t, nil)

	out, err := env.app.Join(JoinRequest{RoomCode: "r", UserName: "alice", Role: "observer", ConnectionID: "c1"})
	require.NoError(t, err)

	assert.False(t, out.Rebound)
	assert.Equal(t, "c1", out.Participant.ID)
	assert.Equal(t, models.RoleObserver, out.Participant.Role)
	require.Len(t, out.Room.Participants, 1)

	s, ok := env.sessions.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, "R", s.RoomCode)
	assert.Equal(t, "c1", s.ParticipantID)
}

func TestJoin_UnknownRoleDefaultsToVoter(t *testing.T) {
	env := newTestEnv(t, nil)
	out, err := env.app.Join(JoinRequest{RoomCode: "R", UserName: "alice", Role: "admin", ConnectionID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleVoter, out.Participant.Role)
}

func TestJoin_RebindSameNameNeverDuplicates(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "R", "alice", "c1")
	_, err := env.app.CastVote("R", "c1", "5", models.ConfidenceHigh)
	require.NoError(t, err)

	out := env.join(t, "R", "alice", "c2")

	assert.True(t, out.Rebound)
	assert.Equal(t, "c1", out.ReplacedConnectionID)
	assert.Equal(t, "c1", out.Participant.ID, "participant id is stable across rebinds")

	count := 0
	for _, p := range env.room(t, "R").Participants {
		if p.Name == "alice" {
			count++
		}
	}
	assert.Equal(t, 1, count)

	_, ok := env.sessions.Lookup("c1")
	assert.False(t, ok, "replaced connection loses its session")

	// The rebound connection keeps voting under the same key.
	_, err = env.app.CastVote("R", "c2", "8", models.ConfidenceLow)
	require.NoError(t, err)
	r := env.room(t, "R")
	assert.Len(t, r.Votes, 1)
	assert.Equal(t, "8", r.Votes["c1"].Card)

	// A late disconnect of the replaced connection does not remove alice.
	_, left := env.app.Disconnect("c1")
	assert.False(t, left)
	assert.Len(t, env.room(t, "R").Participants, 1)
}

func TestJoin_MovingRoomsLeavesPreviousRoom(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")
	env.join(t, "A", "bob", "c2")

	out := env.join(t, "B", "alice", "c1")

	require.NotNil(t, out.Left)
	assert.Equal(t, "A", out.Left.RoomCode)
	assert.Equal(t, "alice", out.Left.ParticipantName)
	assert.Len(t, env.room(t, "A").Participants, 1)
	assert.Equal(t, []string{"c2"}, env.sessions.Connections("A"))
	assert.Equal(t, []string{"c1"}, env.sessions.Connections("B"))
}

func TestCastVote_InvalidSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")

	_, err := env.app.CastVote("A", "unknown", "3", models.ConfidenceLow)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = env.app.CastVote("B", "c1", "3", models.ConfidenceLow)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestCastVote_RoomEvictedMidSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")
	env.store.Remove("A")

	_, err := env.app.CastVote("A", "c1", "3", models.ConfidenceLow)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestCastVote_OverwritesPreviousVote(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")

	_, err := env.app.CastVote("A", "c1", "3", models.ConfidenceLow)
	require.NoError(t, err)
	out, err := env.app.CastVote("A", "c1", "13", models.ConfidenceHigh)
	require.NoError(t, err)

	assert.Equal(t, "c1", out.ParticipantID)
	assert.Equal(t, "alice", out.By)
	r := env.room(t, "A")
	assert.Len(t, r.Votes, 1)
	assert.Equal(t, "13", r.Votes["c1"].Card)
	assert.Equal(t, models.ConfidenceHigh, r.Votes["c1"].Confidence)
}

// Observers are allowed to vote, so votes may outnumber voters.
func TestCastVote_ObserversMayVote(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.app.Join(JoinRequest{RoomCode: "A", UserName: "olga", Role: "observer", ConnectionID: "c1"})
	require.NoError(t, err)

	_, err = env.app.CastVote("A", "c1", "5", models.ConfidenceMedium)
	require.NoError(t, err)
	assert.Len(t, env.room(t, "A").Votes, 1)
}

func TestToggleReveal(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")

	out, err := env.app.ToggleReveal("A", "c1")
	require.NoError(t, err)
	assert.True(t, out.Revealed)
	assert.Nil(t, out.Summary, "no numeric votes, no summary")

	out, err = env.app.ToggleReveal("A", "c1")
	require.NoError(t, err)
	assert.False(t, out.Revealed)
}

func TestToggleReveal_AttachesSummary(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")
	env.join(t, "A", "bob", "c2")
	_, _ = env.app.CastVote("A", "c1", "8", models.ConfidenceHigh)
	_, _ = env.app.CastVote("A", "c2", "8", models.ConfidenceHigh)

	out, err := env.app.ToggleReveal("A", "c2")
	require.NoError(t, err)
	require.NotNil(t, out.Summary)
	assert.Equal(t, 8.0, out.Summary.Average)
	assert.True(t, out.Summary.Consensus)
	assert.Equal(t, "bob", out.By)
}

func TestClearVotes_KeepsTimer(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")
	_, _ = env.app.CastVote("A", "c1", "3", models.ConfidenceLow)
	_, _ = env.app.ToggleReveal("A", "c1")
	_, err := env.app.ToggleTimer("A", "c1", 60)
	require.NoError(t, err)

	by, err := env.app.ClearVotes("A", "c1")
	require.NoError(t, err)
	assert.Equal(t, "alice", by)

	r := env.room(t, "A")
	assert.Empty(t, r.Votes)
	assert.False(t, r.CardsRevealed)
	assert.True(t, r.Timer.Active)
	assert.Equal(t, 2, r.Round, "clearing revealed votes starts a new round")
}

func TestUpdateStory_MergesOnlyProvidedFields(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")
	_, _ = env.app.CastVote("A", "c1", "3", models.ConfidenceLow)
	_, _ = env.app.ToggleReveal("A", "c1")

	title := "Checkout flow"
	_, err := env.app.UpdateStory("A", "c1", models.StoryUpdate{Title: &title})
	require.NoError(t, err)

	desc := "Pay with card"
	links := []models.Link{{Label: "Ticket", URL: "https://example.com/T-1"}}
	out, err := env.app.UpdateStory("A", "c1", models.StoryUpdate{Description: &desc, Links: &links})
	require.NoError(t, err)

	assert.Equal(t, "Checkout flow", out.Story.Title)
	assert.Equal(t, "Pay with card", out.Story.Description)
	assert.Equal(t, links, out.Story.Links)
	assert.Equal(t, "user-story", out.Story.Template)

	r := env.room(t, "A")
	assert.Len(t, r.Votes, 1)
	assert.True(t, r.CardsRevealed)
}

func TestChangeEstimationType_PassesUnknownValues(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")

	got, _, err := env.app.ChangeEstimationType("A", "c1", models.EstimationRisk)
	require.NoError(t, err)
	assert.Equal(t, models.EstimationRisk, got)

	got, _, err = env.app.ChangeEstimationType("A", "c1", "vibes")
	require.NoError(t, err)
	assert.Equal(t, models.EstimationType("vibes"), got)
	assert.Equal(t, models.EstimationType("vibes"), env.room(t, "A").CurrentStory.EstimationType)
}

func TestChangeCardSet_AlwaysClearsVotes(t *testing.T) {
	tests := []struct {
		name     string
		votes    []string
		revealed bool
		custom   []string
	}{
		{name: "no votes", votes: nil},
		{name: "hidden votes", votes: []string{"3", "5"}},
		{name: "revealed votes", votes: []string{"3", "?"}, revealed: true},
		{name: "custom cards", votes: []string{"1"}, revealed: true, custom: []string{"tiny", "huge"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			for i, card := range tt.votes {
				conn := string(rune('a' + i))
				env.join(t, "A", "user-"+conn, conn)
				_, err := env.app.CastVote("A", conn, card, models.ConfidenceMedium)
				require.NoError(t, err)
			}
			env.join(t, "A", "driver", "driver")
			if tt.revealed {
				_, err := env.app.ToggleReveal("A", "driver")
				require.NoError(t, err)
			}

			out, err := env.app.ChangeCardSet("A", "driver", "powers", tt.custom)
			require.NoError(t, err)

			r := env.room(t, "A")
			assert.Empty(t, r.Votes)
			assert.False(t, r.CardsRevealed)
			assert.Equal(t, "powers", out.CardSet)
			if tt.custom != nil {
				assert.Equal(t, tt.custom, r.CustomCards)
			}
		})
	}
}

func TestChangeCardSet_KeepsCustomCardsWhenOmitted(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")
	_, err := env.app.ChangeCardSet("A", "c1", "custom", []string{"S", "L"})
	require.NoError(t, err)

	out, err := env.app.ChangeCardSet("A", "c1", "fibonacci", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"S", "L"}, out.CustomCards)
}

func TestCompleteStory_StatsAfterNCompletions(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")

	consensus := []bool{true, false, true}
	for i, c := range consensus {
		out, err := env.app.CompleteStory("A", "c1", "5", c)
		require.NoError(t, err)
		assert.Equal(t, i+1, out.Stats.TotalStories)
	}

	r := env.room(t, "A")
	assert.Equal(t, 3, r.Stats.TotalStories)
	assert.Equal(t, 67, r.Stats.ConsensusRate)
	assert.Equal(t, 3, r.Stats.TotalRounds)
	assert.Equal(t, 1.0, r.Stats.AverageRounds)
	assert.Len(t, r.CompletedStories, 3)
}

func TestCompleteStory_ResetsStoryAndCancelsTimer(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")
	env.join(t, "A", "bob", "c2")

	title := "Login"
	_, _ = env.app.UpdateStory("A", "c1", models.StoryUpdate{Title: &title})
	_, _, _ = env.app.ChangeEstimationType("A", "c1", models.EstimationEffort)
	_, _ = env.app.CastVote("A", "c1", "3", models.ConfidenceLow)
	_, _ = env.app.CastVote("A", "c2", "5", models.ConfidenceLow)
	_, _ = env.app.ToggleReveal("A", "c1")
	_, _ = env.app.ClearVotes("A", "c1")
	_, _ = env.app.CastVote("A", "c1", "5", models.ConfidenceLow)
	_, _ = env.app.ToggleReveal("A", "c1")
	_, err := env.app.ToggleTimer("A", "c1", 120)
	require.NoError(t, err)

	out, err := env.app.CompleteStory("A", "c2", "5", true)
	require.NoError(t, err)

	assert.Equal(t, "Login", out.Story.Title)
	assert.Equal(t, "5", out.Story.Estimate)
	assert.True(t, out.Story.Consensus)
	assert.Equal(t, 2, out.Story.Rounds)
	assert.Equal(t, 2, out.Story.ParticipantCount)
	assert.Equal(t, 1, out.Story.VoteCount)
	assert.Equal(t, models.EstimationEffort, out.Story.EstimationType)
	assert.True(t, out.TimerStopped)
	assert.Equal(t, "bob", out.By)

	r := env.room(t, "A")
	assert.Empty(t, r.CurrentStory.Title)
	assert.Equal(t, models.EstimationEffort, r.CurrentStory.EstimationType)
	assert.Empty(t, r.Votes)
	assert.False(t, r.CardsRevealed)
	assert.False(t, r.Timer.Active)
	assert.Nil(t, r.Countdown)
	assert.Equal(t, 1, r.Round)
}

func TestLeave_LastParticipantCancelsTimer(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")
	_, err := env.app.ToggleTimer("A", "c1", 60)
	require.NoError(t, err)
	gen, ok := countdownGeneration(env.room(t, "A"))
	require.True(t, ok)

	out, left := env.app.Disconnect("c1")
	require.True(t, left)
	assert.True(t, out.RoomEmpty)
	assert.True(t, out.TimerCancelled)

	r := env.room(t, "A")
	assert.False(t, r.Timer.Active)
	assert.Nil(t, r.Countdown)

	_, fired := env.app.Tick(TimerTick{RoomCode: "A", Generation: gen})
	assert.False(t, fired, "ticks after cancellation are ignored")
}

func TestLeave_OtherParticipantsKeepTimer(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")
	env.join(t, "A", "bob", "c2")
	_, err := env.app.ToggleTimer("A", "c1", 60)
	require.NoError(t, err)

	out, left := env.app.Disconnect("c1")
	require.True(t, left)
	assert.False(t, out.RoomEmpty)
	assert.True(t, env.room(t, "A").Timer.Active)
}

func TestTimer_StartThenStop(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")

	_, err := env.app.ToggleTimer("A", "c1", 90)
	require.NoError(t, err)
	out, err := env.app.ToggleTimer("A", "c1", 0)
	require.NoError(t, err)

	assert.False(t, out.Timer.Active)
	assert.Equal(t, 0, out.Timer.Remaining)
	assert.Equal(t, 90, out.Timer.Duration)
	assert.Nil(t, env.room(t, "A").Countdown)
}

func TestTimer_FinishesAfterDurationTicks(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")
	_, err := env.app.ToggleTimer("A", "c1", 5)
	require.NoError(t, err)
	gen, _ := countdownGeneration(env.room(t, "A"))

	var last TickOutcome
	for i := 0; i < 5; i++ {
		out, ok := env.app.Tick(TimerTick{RoomCode: "A", Generation: gen})
		require.True(t, ok, "tick %d", i+1)
		last = out
	}

	assert.True(t, last.Finished)
	assert.True(t, last.Notify)
	assert.False(t, last.Timer.Active)
	assert.Nil(t, env.room(t, "A").Countdown)

	_, ok := env.app.Tick(TimerTick{RoomCode: "A", Generation: gen})
	assert.False(t, ok)
}

func TestTimer_NotifiesOnThirtySecondBoundaries(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")
	_, err := env.app.ToggleTimer("A", "c1", 61)
	require.NoError(t, err)
	gen, _ := countdownGeneration(env.room(t, "A"))

	var notified []int
	for i := 0; i < 61; i++ {
		out, ok := env.app.Tick(TimerTick{RoomCode: "A", Generation: gen})
		require.True(t, ok)
		if out.Notify {
			notified = append(notified, out.Timer.Remaining)
		}
	}
	assert.Equal(t, []int{60, 30, 0}, notified)
}

func TestTimer_RestartReplacesCountdown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")
	_, _ = env.app.ToggleTimer("A", "c1", 60)
	oldGen, _ := countdownGeneration(env.room(t, "A"))
	_, _ = env.app.ToggleTimer("A", "c1", 0)

	_, err := env.app.ToggleTimer("A", "c1", 30)
	require.NoError(t, err)
	newGen, _ := countdownGeneration(env.room(t, "A"))
	assert.NotEqual(t, oldGen, newGen)

	_, ok := env.app.Tick(TimerTick{RoomCode: "A", Generation: oldGen})
	assert.False(t, ok, "replaced countdown no longer ticks")

	out, ok := env.app.Tick(TimerTick{RoomCode: "A", Generation: newGen})
	require.True(t, ok)
	assert.Equal(t, 29, out.Timer.Remaining)
}

func TestToggleTimer(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "A", "alice", "c1")

	out, err := env.app.ToggleTimer("A", "c1", 0)
	require.NoError(t, err)
	assert.True(t, out.Timer.Active)
	assert.Equal(t, models.DefaultTimerDuration, out.Timer.Remaining)

	out, err = env.app.ToggleTimer("A", "c1", 120)
	require.NoError(t, err)
	assert.False(t, out.Timer.Active)
	assert.Equal(t, 0, out.Timer.Remaining)

	out, err = env.app.ToggleTimer("A", "c1", 120)
	require.NoError(t, err)
	assert.True(t, out.Timer.Active)
	assert.Equal(t, 120, out.Timer.Duration)
}
