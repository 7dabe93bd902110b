package models

import "time"

// EstimationType is the dimension a story is being estimated on.
type EstimationType string

const (
	EstimationComplexity EstimationType = "complexity"
	EstimationEffort     EstimationType = "effort"
	EstimationRisk       EstimationType = "risk"
	EstimationUnknowns   EstimationType = "unknowns"
)

// Valid reports whether the estimation type is one of the known values.
func (e EstimationType) Valid() bool {
	switch e {
	case EstimationComplexity, EstimationEffort, EstimationRisk, EstimationUnknowns:
		return true
	}
	return false
}

const DefaultTemplateID = "user-story"

// Link is a labelled reference attached to a story.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// AcceptanceCriterion is a single checklist entry of a story.
type AcceptanceCriterion struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Story is the work item currently being estimated.
type Story struct {
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	Template           string                `json:"template"`
	Links              []Link                `json:"links"`
	AcceptanceCriteria []AcceptanceCriterion `json:"acceptanceCriteria"`
	EstimationType     EstimationType        `json:"estimationType"`
}

// NewStory returns a blank story estimated on the given dimension.
func NewStory(estimationType EstimationType) Story {
	return Story{
		Template:           DefaultTemplateID,
		Links:              []Link{},
		AcceptanceCriteria: []AcceptanceCriterion{},
		EstimationType:     estimationType,
	}
}

// StoryUpdate is a partial story update. Nil fields are left untouched.
type StoryUpdate struct {
	Title              *string                `json:"title,omitempty"`
	Description        *string                `json:"description,omitempty"`
	Template           *string                `json:"template,omitempty"`
	Links              *[]Link                `json:"links,omitempty"`
	AcceptanceCriteria *[]AcceptanceCriterion `json:"acceptanceCriteria,omitempty"`
	EstimationType     *EstimationType        `json:"estimationType,omitempty"`
}

// Apply merges the provided fields into s.
func (u StoryUpdate) Apply(s *Story) {
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.Description != nil {
		s.Description = *u.Description
	}
	if u.Template != nil {
		s.Template = *u.Template
	}
	if u.Links != nil {
		s.Links = append([]Link{}, (*u.Links)...)
	}
	if u.AcceptanceCriteria != nil {
		s.AcceptanceCriteria = append([]AcceptanceCriterion{}, (*u.AcceptanceCriteria)...)
	}
	if u.EstimationType != nil {
		s.EstimationType = *u.EstimationType
	}
}

// Clone returns a copy of s that shares no slices with it.
func (s Story) Clone() Story {
	s.Links = append([]Link{}, s.Links...)
	s.AcceptanceCriteria = append([]AcceptanceCriterion{}, s.AcceptanceCriteria...)
	return s
}

// CompletedStory is an immutable record of an estimated story.
type CompletedStory struct {
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Estimate         string         `json:"estimate"`
	Consensus        bool           `json:"consensus"`
	Rounds           int            `json:"rounds"`
	ParticipantCount int            `json:"participantCount"`
	VoteCount        int            `json:"voteCount"`
	CompletedAt      time.Time      `json:"timestamp"`
	EstimationType   EstimationType `json:"estimationType"`
}

// Stats aggregates the completed story history of a room.
type Stats struct {
	TotalStories  int     `json:"totalStories"`
	TotalRounds   int     `json:"totalRounds"`
	AverageRounds float64 `json:"averageRounds"`
	ConsensusRate int     `json:"consensusRate"`
}
