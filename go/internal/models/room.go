package models

import "time"

// Timer is the server-authoritative discussion countdown of a room.
type Timer struct {
	Active    bool `json:"active"`
	Remaining int  `json:"remaining"`
	Duration  int  `json:"duration"`
}

// DefaultTimerDuration is the countdown length in seconds used when none is given.
const DefaultTimerDuration = 300

// Canceler is a cancellable background task. Cancel must be idempotent.
type Canceler interface {
	Cancel()
}

// Room is the authoritative state of an estimation session.
type Room struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	CreatedAt        time.Time           `json:"createdAt"`
	LastActivity     time.Time           `json:"lastActivity"`
	Participants     []*Participant      `json:"participants"`
	CurrentStory     Story               `json:"currentStory"`
	Votes            map[string]Vote     `json:"votes"`
	CardsRevealed    bool                `json:"cardsRevealed"`
	Round            int                 `json:"round"`
	Timer            Timer               `json:"timer"`
	CardSet          string              `json:"cardSet"`
	CustomCards      []string            `json:"customCards"`
	CardHelp         map[string]string   `json:"cardHelp"`
	Templates        map[string]Template `json:"templates"`
	CompletedStories []CompletedStory    `json:"completedStories"`
	Stats            Stats               `json:"stats"`

	// Countdown is the scheduled tick task of an active timer, nil when idle.
	Countdown Canceler `json:"-"`
}

// FindParticipantByName returns the participant with the given display name.
func (r *Room) FindParticipantByName(name string) *Participant {
	for _, p := range r.Participants {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// FindParticipantByConnection returns the participant bound to a connection.
func (r *Room) FindParticipantByConnection(connectionID string) *Participant {
	for _, p := range r.Participants {
		if p.ConnectionID == connectionID {
			return p
		}
	}
	return nil
}

// Snapshot returns a deep copy of the room safe to hand to another goroutine.
func (r *Room) Snapshot() *Room {
	cp := *r
	cp.Countdown = nil

	cp.Participants = make([]*Participant, len(r.Participants))
	for i, p := range r.Participants {
		pc := *p
		cp.Participants[i] = &pc
	}

	cp.Votes = make(map[string]Vote, len(r.Votes))
	for k, v := range r.Votes {
		cp.Votes[k] = v
	}

	cp.CurrentStory = r.CurrentStory.Clone()
	cp.CustomCards = append([]string{}, r.CustomCards...)

	cp.CardHelp = make(map[string]string, len(r.CardHelp))
	for k, v := range r.CardHelp {
		cp.CardHelp[k] = v
	}

	cp.Templates = make(map[string]Template, len(r.Templates))
	for k, v := range r.Templates {
		cp.Templates[k] = v
	}

	cp.CompletedStories = append([]CompletedStory{}, r.CompletedStories...)
	return &cp
}
