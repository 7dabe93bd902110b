package models

import "time"

// Confidence is how sure a participant is about their vote.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Vote is a participant's card selection for the current story.
type Vote struct {
	Card       string     `json:"card"`
	Confidence Confidence `json:"confidence"`
	Timestamp  time.Time  `json:"timestamp"`
}
