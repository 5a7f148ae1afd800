// internal/game/types.go
//
// Core type definitions for the single-player game engine.
// Defines:
//   - Mode: classic play or random-start play (one automatic opening guess).
//   - Attempt: one scored guess with its per-attribute verdicts.
//   - Game: state for a single in-progress or finished session.

package game

import (
	"github.com/monguess/go-server/internal/compare"
)

// Mode selects the single-player variant.
type Mode string

const (
	ModeClassic     Mode = "classic"
	ModeRandomStart Mode = "random"
)

// Attempt records one scored guess.
type Attempt struct {
	EntityID  int            `json:"entityId"`
	Name      string         `json:"name"`
	Result    compare.Result `json:"result"`
	IsCorrect bool           `json:"isCorrect"`
	Auto      bool           `json:"auto,omitempty"` // random-start opening guess
}

// Game holds the state of one single-player session.
type Game struct {
	ID          string    // unique session identifier (random hex string)
	Mode        Mode      // classic or random-start
	TargetID    int       // hidden answer, by entity id
	MaxAttempts int       // attempt budget (typically 10)
	Attempts    []Attempt // scored guesses so far
	Finished    bool      // true once the session is over
	Won         bool      // true if finished with a win
}
