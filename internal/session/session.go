// Package session replicates one broadcaster's live state (shoppable
// carousel and chat) to every connected viewer.
package session

import (
	"errors"
	"time"
)

type State string

const (
	StateScheduled State = "scheduled"
	StateLive      State = "live"
	StateEnded     State = "ended"
)

// Sessions only move forward; ended is terminal and read-only.
var validNext = map[State]map[State]bool{
	StateScheduled: {StateLive: true, StateEnded: true},
	StateLive:      {StateEnded: true},
	StateEnded:     {},
}

func CanTransition(from, to State) bool {
	return validNext[from][to]
}

var (
	ErrSessionEnded = errors.New("session: already ended")
	ErrNotFound     = errors.New("session: not found")

	// ErrStateUnavailable means a viewer exhausted its retry budget without
	// ever seeing a carousel. The session survives: chat keeps working, the
	// client just shows no shoppable items.
	ErrStateUnavailable = errors.New("session: carousel unavailable")
)

type Session struct {
	ID            string
	BroadcasterID string
	State         State
	CreatedAt     time.Time
	EndedAt       *time.Time
}
