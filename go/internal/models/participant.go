package models

import "time"

// Role defines how a participant takes part in estimation.
type Role string

const (
	RoleVoter    Role = "voter"
	RoleObserver Role = "observer"
)

// ParseRole maps a client supplied role onto a known Role, defaulting to voter.
func ParseRole(s string) Role {
	if Role(s) == RoleObserver {
		return RoleObserver
	}
	return RoleVoter
}

// Participant is a named member of a room.
//
// ID is the connection id the participant first joined with and is the key of
// its vote. ConnectionID is the connection currently bound to the participant;
// it changes on rebind and is never sent to clients.
type Participant struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"-"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	JoinTime     time.Time `json:"joinTime"`
	LastSeen     time.Time `json:"lastSeen"`
}
