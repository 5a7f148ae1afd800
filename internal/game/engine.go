// internal/game/engine.go
//
// Core game engine for a single-player session.
// Responsibilities:
//   - Create new games with a random hidden target from the candidate pool.
//   - Validate and apply guesses (name resolution, attempt budget).
//   - Score guesses through the attribute comparator.
//   - Track state transitions: playing → won/lost.
//
// Notes:
//   - Candidates come from the dex package; correctness is decided by
//     entity-id identity, never by comparator output.
//   - Random-start mode commits one automatic opening guess up front. The
//     opener is never the answer itself and is free: it does not count
//     against the attempt budget.
package game

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/monguess/go-server/internal/compare"
	"github.com/monguess/go-server/internal/dex"
)

const defaultMaxAttempts = 10

// New constructs a new game instance with a random target.
// Random-start mode immediately applies one automatic guess.
func New(mode Mode) *Game {
	if mode != ModeRandomStart {
		mode = ModeClassic
	}
	g := &Game{
		ID:          randomID(),
		Mode:        mode,
		TargetID:    dex.Random().ID,
		MaxAttempts: defaultMaxAttempts,
		Attempts:    []Attempt{},
	}
	if mode == ModeRandomStart {
		g.applyEntity(randomOpener(g.TargetID), true)
	}
	return g
}

// randomOpener picks the free opening guess for a random start: uniformly
// random, re-rolled so it is never the hidden answer itself.
func randomOpener(targetID int) dex.Monster {
	m := dex.Random()
	for dex.Count() > 1 && m.ID == targetID {
		m = dex.Random()
	}
	return m
}

// ApplyGuess resolves and scores a guess, mutating the game state.
// Returns the scored attempt and the new state string
// ("playing"/"won"/"lost"), or an error when the guess is rejected.
func (g *Game) ApplyGuess(name string) (*Attempt, string, error) {
	if g.Finished {
		return nil, g.state(), errors.New("game finished")
	}
	guessed, ok := dex.ByName(name)
	if !ok {
		return nil, g.state(), errors.New("unknown entity")
	}
	att := g.applyEntity(guessed, false)
	return att, g.state(), nil
}

// applyEntity scores one entity against the target and advances the state.
func (g *Game) applyEntity(guessed dex.Monster, auto bool) *Attempt {
	target, _ := dex.ByID(g.TargetID)
	att := Attempt{
		EntityID:  guessed.ID,
		Name:      guessed.Name,
		Result:    compare.Compare(guessed, target),
		IsCorrect: guessed.ID == g.TargetID,
		Auto:      auto,
	}
	g.Attempts = append(g.Attempts, att)

	if att.IsCorrect {
		g.Finished, g.Won = true, true
	} else if g.countedAttempts() >= g.MaxAttempts {
		g.Finished = true
	}
	return &g.Attempts[len(g.Attempts)-1]
}

// countedAttempts is the number of attempts charged against the budget.
// The random-start opener is free.
func (g *Game) countedAttempts() int {
	n := 0
	for _, a := range g.Attempts {
		if !a.Auto {
			n++
		}
	}
	return n
}

// AttemptsLeft reports the remaining attempt budget.
func (g *Game) AttemptsLeft() int {
	left := g.MaxAttempts - g.countedAttempts()
	if left < 0 {
		return 0
	}
	return left
}

// state reports a coarse string representation of the current game state.
func (g *Game) state() string {
	if g.Finished {
		if g.Won {
			return "won"
		}
		return "lost"
	}
	return "playing"
}

// randomID returns a compact 16-hex-char identifier.
// Collisions are extremely unlikely given crypto/rand entropy.
func randomID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
