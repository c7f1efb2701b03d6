// Package store keeps the history of finished matches.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a match id is unknown.
var ErrNotFound = errors.New("match not found")

// PlayerResult is one participant's final standing.
type PlayerResult struct {
	Slot   int     `json:"slot"`
	Name   string  `json:"name"`
	AI     bool    `json:"ai"`
	Money  float64 `json:"money"`
	Kills  int     `json:"kills"`
	Deaths int     `json:"deaths"`
}

// MatchResult is the record of one finished match.
type MatchResult struct {
	ID         string         `json:"id"`
	WinnerSlot int            `json:"winnerSlot"` // -1 for draws and aborted matches
	WinnerName string         `json:"winnerName,omitempty"`
	Reason     string         `json:"reason"`
	StartedAt  time.Time      `json:"startedAt"`
	EndedAt    time.Time      `json:"endedAt"`
	Duration   time.Duration  `json:"durationNs"`
	Players    []PlayerResult `json:"players"`
}

// MatchStore persists finished matches. Implementations are safe for
// concurrent use.
type MatchStore interface {
	SaveResult(ctx context.Context, r MatchResult) error
	Recent(ctx context.Context, limit int) ([]MatchResult, error)
	Get(ctx context.Context, id string) (MatchResult, error)
	Close() error
}
