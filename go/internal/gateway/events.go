package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
	"github.com/JacquesBronk/FreeScrumPoker/go/internal/room"
)

// Envelope is the frame exchanged over the websocket in both directions.
type Envelope struct {
	ID        string          `json:"id,omitempty"`
	Type      EventType       `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventType names an inbound or outbound event.
type EventType string

// Inbound events.
const (
	EventJoinRoom             EventType = "join-room"
	EventCastVote             EventType = "cast-vote"
	EventToggleRevealCards    EventType = "toggle-reveal-cards"
	EventClearVotes           EventType = "clear-votes"
	EventUpdateStory          EventType = "update-story"
	EventChangeEstimationType EventType = "change-estimation-type"
	EventChangeCardSet        EventType = "change-card-set"
	EventToggleTimer          EventType = "toggle-timer"
	EventCompleteStory        EventType = "complete-story"
)

// Outbound events.
const (
	EventRoomJoined            EventType = "room-joined"
	EventParticipantJoined     EventType = "participant-joined"
	EventParticipantLeft       EventType = "participant-left"
	EventVoteCast              EventType = "vote-cast"
	EventCardsRevealed         EventType = "cards-revealed"
	EventVotesCleared          EventType = "votes-cleared"
	EventStoryUpdated          EventType = "story-updated"
	EventEstimationTypeChanged EventType = "estimation-type-changed"
	EventCardSetChanged        EventType = "card-set-changed"
	EventTimerUpdated          EventType = "timer-updated"
	EventTimerFinished         EventType = "timer-finished"
	EventStoryCompleted        EventType = "story-completed"
	EventError                 EventType = "error"
)

// Target carries the room an inbound event is addressed to.
type Target struct {
	RoomID string `json:"roomId"`
}

func (t *Target) room() string         { return t.RoomID }
func (t *Target) setRoom(roomID string) { t.RoomID = roomID }

// InboundMessage is one of the client commands below.
type InboundMessage interface {
	room() string
	setRoom(string)
}

type JoinRoom struct {
	Target
	UserName string `json:"userName"`
	UserRole string `json:"userRole"`
	TeamKey  string `json:"teamKey,omitempty"`
}

type CastVote struct {
	Target
	Card       string            `json:"card"`
	Confidence models.Confidence `json:"confidence"`
}

type ToggleRevealCards struct {
	Target
}

type ClearVotes struct {
	Target
}

type UpdateStory struct {
	Target
	Updates models.StoryUpdate `json:"updates"`
}

type ChangeEstimationType struct {
	Target
	EstimationType models.EstimationType `json:"estimationType"`
}

type ChangeCardSet struct {
	Target
	CardSet     string   `json:"cardSet"`
	CustomCards []string `json:"customCards,omitempty"`
}

type ToggleTimer struct {
	Target
	Duration int `json:"duration"`
}

type CompleteStory struct {
	Target
	Estimate  string `json:"estimate"`
	Consensus bool   `json:"consensus"`
}

// Decode parses an inbound frame. The envelope roomId is used when the payload
// does not name a room itself.
func Decode(frame []byte) (EventType, InboundMessage, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, fmt.Errorf("decode envelope: %w", ErrMalformedMessage)
	}

	var msg InboundMessage
	switch env.Type {
	case EventJoinRoom:
		msg = &JoinRoom{}
	case EventCastVote:
		msg = &CastVote{}
	case EventToggleRevealCards:
		msg = &ToggleRevealCards{}
	case EventClearVotes:
		msg = &ClearVotes{}
	case EventUpdateStory:
		msg = &UpdateStory{}
	case EventChangeEstimationType:
		msg = &ChangeEstimationType{}
	case EventChangeCardSet:
		msg = &ChangeCardSet{}
	case EventToggleTimer:
		msg = &ToggleTimer{}
	case EventCompleteStory:
		msg = &CompleteStory{}
	default:
		return env.Type, nil, fmt.Errorf("%q: %w", env.Type, ErrUnknownEvent)
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, msg); err != nil {
			return env.Type, nil, fmt.Errorf("decode %s payload: %w", env.Type, ErrMalformedMessage)
		}
	}
	if msg.room() == "" {
		msg.setRoom(env.RoomID)
	}
	return env.Type, msg, nil
}

// OutboundPayload is the data of one of the server events below.
type OutboundPayload interface {
	eventType() EventType
}

type RoomJoined struct {
	Room *models.Room `json:"room"`
}

type ParticipantJoined struct {
	Participant models.Participant `json:"participant"`
}

type ParticipantLeft struct {
	ParticipantID   string `json:"participantId"`
	ParticipantName string `json:"participantName"`
}

type VoteCast struct {
	ParticipantID string            `json:"participantId"`
	Card          string            `json:"card"`
	Confidence    models.Confidence `json:"confidence"`
	Timestamp     time.Time         `json:"timestamp"`
}

type CardsRevealed struct {
	Revealed bool          `json:"revealed"`
	By       string        `json:"by"`
	Summary  *room.Summary `json:"summary,omitempty"`
}

type VotesCleared struct {
	By string `json:"by"`
}

type StoryUpdated struct {
	Story models.Story `json:"story"`
	By    string       `json:"by"`
}

type EstimationTypeChanged struct {
	EstimationType models.EstimationType `json:"estimationType"`
	By             string                `json:"by"`
}

type CardSetChanged struct {
	CardSet     string   `json:"cardSet"`
	CustomCards []string `json:"customCards"`
	By          string   `json:"by"`
}

// TimerUpdated carries By only for start and stop transitions.
type TimerUpdated struct {
	Timer models.Timer `json:"timer"`
	By    string       `json:"by,omitempty"`
}

type TimerFinished struct{}

type StoryCompleted struct {
	Story models.CompletedStory `json:"story"`
	Stats models.Stats          `json:"stats"`
	By    string                `json:"by"`
}

type ErrorNotice struct {
	Message string `json:"message"`
}

func (RoomJoined) eventType() EventType            { return EventRoomJoined }
func (ParticipantJoined) eventType() EventType     { return EventParticipantJoined }
func (ParticipantLeft) eventType() EventType       { return EventParticipantLeft }
func (VoteCast) eventType() EventType              { return EventVoteCast }
func (CardsRevealed) eventType() EventType         { return EventCardsRevealed }
func (VotesCleared) eventType() EventType          { return EventVotesCleared }
func (StoryUpdated) eventType() EventType          { return EventStoryUpdated }
func (EstimationTypeChanged) eventType() EventType { return EventEstimationTypeChanged }
func (CardSetChanged) eventType() EventType        { return EventCardSetChanged }
func (TimerUpdated) eventType() EventType          { return EventTimerUpdated }
func (TimerFinished) eventType() EventType         { return EventTimerFinished }
func (StoryCompleted) eventType() EventType        { return EventStoryCompleted }
func (ErrorNotice) eventType() EventType           { return EventError }

// Encode wraps a payload in an envelope and marshals it once for fan-out.
func Encode(roomID string, payload OutboundPayload, now time.Time) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", payload.eventType(), err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}

	frame, err := json.Marshal(Envelope{
		ID:        id.String(),
		Type:      payload.eventType(),
		RoomID:    roomID,
		Timestamp: now.UTC(),
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", payload.eventType(), err)
	}
	return frame, nil
}
