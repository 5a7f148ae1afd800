// internal/versus/coordinator.go
//
// Turn coordinator for two-player matches.
//
// Every operation here is one transaction against the shared room document:
// preconditions are re-checked inside the transaction against the latest
// state, and a failed precondition resolves as a silent no-op (the store's
// ErrNoChange). Two clients racing to submit a guess, force-advance a
// timeout, or commit the opening move therefore never both act on the same
// state — ordering is established solely by transaction serialization, never
// by wall clock or message arrival.
//
// Explicit errors escape only for the cases the UI must surface before any
// transaction runs: unknown entities, exhausted or full rooms.

package versus

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/monguess/go-server/internal/dex"
	"github.com/monguess/go-server/internal/room"
	"github.com/monguess/go-server/internal/roomstore"
)

var (
	// ErrRoomInvalid rejects a claim on a spent or expired room code.
	ErrRoomInvalid = errors.New("versus: room code already used")

	// ErrRoomFull rejects a third participant.
	ErrRoomFull = errors.New("versus: room is full")

	// ErrUnknownEntity rejects a guess that resolves to no candidate.
	ErrUnknownEntity = errors.New("versus: unknown entity")
)

const createRetries = 5

// Coordinator runs the match protocol on top of the transactional store.
type Coordinator struct {
	store roomstore.Store
}

// New constructs a Coordinator.
func New(store roomstore.Store) *Coordinator {
	return &Coordinator{store: store}
}

// Store exposes the underlying document store (snapshots, subscriptions).
func (c *Coordinator) Store() roomstore.Store { return c.store }

// Target derives the hidden answer from the room seed. Valid only once the
// match is playing; both clients compute the identical entity.
func Target(r *room.Room) (dex.Monster, bool) {
	if r.Status != room.StatusPlaying && r.Status != room.StatusFinished {
		return dex.Monster{}, false
	}
	if dex.Count() == 0 {
		return dex.Monster{}, false
	}
	return dex.At(room.ChooseAnswer(r.Seed, dex.Count())), true
}

// CreateRoom claims a fresh 6-digit code for uid and returns the lobby
// document. Codes colliding with a live or spent room are re-rolled.
func (c *Coordinator) CreateRoom(ctx context.Context, uid string) (*room.Doc, error) {
	for i := 0; i < createRetries; i++ {
		code := room.NewCode()
		if _, err := c.store.Get(ctx, code); err == nil {
			continue // code in use (live or spent), roll another
		}
		d, err := c.claim(ctx, code, uid)
		if err == ErrRoomInvalid {
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Info().Str("room", code).Str("host", uid).Msg("room created")
		return d, nil
	}
	return nil, errors.New("versus: could not allocate a room code")
}

// JoinRoom registers uid in the room at code, creating the room when the
// code is unclaimed. Spent and expired codes are rejected before any
// transaction is attempted.
func (c *Coordinator) JoinRoom(ctx context.Context, code, uid string) (*room.Doc, error) {
	if d, err := c.store.Get(ctx, code); err == nil {
		if d.Room.IsInvalid() || d.Room.Expired(time.Now().UTC()) {
			return nil, ErrRoomInvalid
		}
	}
	return c.claim(ctx, code, uid)
}

// claim is the shared create-or-join transaction.
func (c *Coordinator) claim(ctx context.Context, code, uid string) (*room.Doc, error) {
	return c.store.Update(ctx, code, func(doc *room.Doc) error {
		if !doc.Exists() {
			now := time.Now().UTC()
			doc.Room = room.Room{
				Code:         code,
				Status:       room.StatusLobby,
				CreatorID:    uid,
				HostID:       uid,
				Players:      map[string]bool{uid: true},
				MaxTurns:     room.DefaultMaxTurns,
				CreatedAt:    now,
				LastActionAt: now,
				LastActionBy: uid,
			}
			return nil
		}

		r := &doc.Room
		if r.IsInvalid() {
			return ErrRoomInvalid
		}
		if r.Players[uid] {
			return roomstore.ErrNoChange // already registered
		}
		if r.PlayerCount() >= 2 {
			return ErrRoomFull
		}

		r.Players[uid] = true
		if r.HostID == "" {
			if r.CreatorID != "" {
				r.HostID = r.CreatorID
			} else {
				r.HostID = uid
			}
		}
		if r.GuestID == "" && uid != r.HostID {
			r.GuestID = uid
		}
		if r.MaxTurns == 0 {
			r.MaxTurns = room.DefaultMaxTurns
		}
		return nil
	})
}

// StartIfReady moves a full lobby into play: picks the first mover uniformly
// at random, fixes the match seed, and arms the first turn deadline.
// Idempotent under retry — if another transaction already advanced the room,
// this one is a no-op.
func (c *Coordinator) StartIfReady(ctx context.Context, code string) (*room.Doc, error) {
	return c.store.Update(ctx, code, func(doc *room.Doc) error {
		r := &doc.Room
		if r.Status != room.StatusLobby {
			return roomstore.ErrNoChange
		}
		if r.PlayerCount() != 2 || r.HostID == "" || r.GuestID == "" {
			return roomstore.ErrNoChange
		}

		first := r.HostID
		if coinFlip() {
			first = r.GuestID
		}

		now := time.Now().UTC()
		r.Status = room.StatusPlaying
		r.Seed = room.NewSeed()
		r.TurnOf = first
		r.TurnNumber = 1
		r.TurnCount = 0
		r.OpeningAutoGuessDone = false
		r.TurnDeadline = now.Add(room.TurnDuration)
		r.Winner = room.WinnerNone
		r.FinishedReason = room.ReasonNone
		r.LastActionAt = now
		r.LastActionBy = first
		return nil
	})
}

// SubmitGuess consumes the mover's turn with the named entity.
// Preconditions checked inside the transaction (playing, caller's turn,
// deadline not past grace) resolve as silent no-ops; only an unresolvable
// entity name is rejected up front.
func (c *Coordinator) SubmitGuess(ctx context.Context, code, uid, name string) (*room.Doc, error) {
	guessed, ok := dex.ByName(name)
	if !ok {
		return nil, ErrUnknownEntity
	}

	return c.store.Update(ctx, code, func(doc *room.Doc) error {
		r := &doc.Room
		if r.Status != room.StatusPlaying {
			return roomstore.ErrNoChange
		}
		if r.TurnOf != uid {
			return roomstore.ErrNoChange
		}
		now := time.Now().UTC()
		if !r.TurnDeadline.IsZero() && now.After(r.TurnDeadline.Add(room.DeadlineGrace)) {
			return roomstore.ErrNoChange
		}

		c.applyGuess(doc, guessed, uid, uid, now, false)
		return nil
	})
}

// ForceAdvanceIfExpired resolves a turn whose deadline has passed. It is
// self-validating: redundant concurrent calls are safe no-ops after the
// first succeeds, so both clients may fire it from a timer tick.
//
// Two sub-cases:
//   - long inactivity (measured from lastActionAt): the match is forfeited
//     and the *caller* wins. If neither participant ever calls, the room
//     resolves only via the advisory expiry window at join time.
//   - ordinary deadline expiry: a random entity is auto-submitted on behalf
//     of the stalled mover (tagged autoSkip) and the usual turn logic runs.
func (c *Coordinator) ForceAdvanceIfExpired(ctx context.Context, code, callerID string) (*room.Doc, error) {
	return c.store.Update(ctx, code, func(doc *room.Doc) error {
		r := &doc.Room
		if r.Status != room.StatusPlaying {
			return roomstore.ErrNoChange
		}
		now := time.Now().UTC()

		if !r.LastActionAt.IsZero() && now.Sub(r.LastActionAt) > room.InactivityTimeout {
			role := r.RoleOf(callerID)
			if role == room.WinnerNone {
				return roomstore.ErrNoChange
			}
			finish(r, role, room.ReasonTimeout, now)
			r.LastActionAt = now
			r.LastActionBy = callerID
			log.Info().Str("room", r.Code).Str("winner", string(role)).Msg("match forfeited on inactivity")
			return nil
		}

		if r.TurnDeadline.IsZero() || !now.After(r.TurnDeadline) {
			return roomstore.ErrNoChange
		}

		mover := r.TurnOf
		if mover == "" {
			return roomstore.ErrNoChange
		}
		c.applyGuess(doc, dex.Random(), mover, mover, now, true)
		return nil
	})
}

// CommitOpeningAutoGuess commits the one system-issued first move, exactly
// once per match, without consuming a turn. If the random guess happens to
// be correct the match finishes immediately in favor of the player who was
// to move.
func (c *Coordinator) CommitOpeningAutoGuess(ctx context.Context, code string) (*room.Doc, error) {
	return c.store.Update(ctx, code, func(doc *room.Doc) error {
		r := &doc.Room
		if r.Status != room.StatusPlaying || r.OpeningAutoGuessDone || r.TurnOf == "" {
			return roomstore.ErrNoChange
		}
		if r.TurnCount > 0 {
			return roomstore.ErrNoChange
		}

		tgt, ok := Target(r)
		if !ok {
			return roomstore.ErrNoChange
		}
		auto := dex.Random()
		correct := auto.ID == tgt.ID
		now := time.Now().UTC()

		r.OpeningAutoGuessDone = true
		doc.Guesses = append(doc.Guesses, room.Guess{
			ID:         uuid.NewString(),
			By:         room.SystemParticipant,
			PlayerID:   r.TurnOf,
			EntityID:   auto.ID,
			Name:       auto.Name,
			IsCorrect:  correct,
			TurnNumber: r.TurnNumber,
			AutoStart:  true,
		})
		if correct {
			finish(r, r.RoleOf(r.TurnOf), room.ReasonNormal, now)
		}
		return nil
	})
}

// Surrender finishes the match in the opponent's favor. Valid only while
// playing; anything else is a silent no-op. Callers treat this as
// fire-and-forget on page exit — the inactivity timeout covers the cases
// where it never lands.
func (c *Coordinator) Surrender(ctx context.Context, code, uid string) (*room.Doc, error) {
	return c.store.Update(ctx, code, func(doc *room.Doc) error {
		r := &doc.Room
		if r.Status != room.StatusPlaying {
			return roomstore.ErrNoChange
		}
		role := r.RoleOf(uid)
		if role == room.WinnerNone {
			return roomstore.ErrNoChange
		}

		now := time.Now().UTC()
		winner := room.WinnerGuest
		if role == room.WinnerGuest {
			winner = room.WinnerHost
		}
		finish(r, winner, room.ReasonSurrender, now)
		r.LastActionAt = now
		r.LastActionBy = uid
		log.Info().Str("room", r.Code).Str("winner", string(winner)).Msg("match surrendered")
		return nil
	})
}

// applyGuess appends a ledger entry for the mover and runs the shared
// correctness/flip/finish logic. The entry carries the pre-increment turn
// number; autoSkip marks deadline-expiry auto-submissions.
func (c *Coordinator) applyGuess(doc *room.Doc, guessed dex.Monster, by, mover string, now time.Time, autoSkip bool) {
	r := &doc.Room
	tgt, _ := Target(r)
	correct := guessed.ID == tgt.ID

	turnNumber := r.TurnNumber
	r.TurnCount++
	r.LastActionAt = now
	r.LastActionBy = mover

	doc.Guesses = append(doc.Guesses, room.Guess{
		ID:         uuid.NewString(),
		By:         by,
		PlayerID:   mover,
		EntityID:   guessed.ID,
		Name:       guessed.Name,
		IsCorrect:  correct,
		TurnNumber: turnNumber,
		AutoSkip:   autoSkip,
	})

	switch {
	case correct:
		finish(r, r.RoleOf(mover), room.ReasonNormal, now)
		log.Info().Str("room", r.Code).Str("winner", string(r.Winner)).Msg("match won")
	case r.TurnCount >= r.MaxTurns:
		finish(r, room.WinnerDraw, room.ReasonMaxTurns, now)
		log.Info().Str("room", r.Code).Msg("match drawn on turn cap")
	default:
		r.TurnOf = r.Opponent(mover)
		r.TurnNumber++
		r.TurnDeadline = now.Add(room.TurnDuration)
	}
}

// finish is the single playing→finished transition. The room becomes
// immutable afterwards; invalidatedAt marks the code as spent.
func finish(r *room.Room, winner room.Winner, reason room.Reason, now time.Time) {
	r.Status = room.StatusFinished
	r.Winner = winner
	r.FinishedReason = reason
	t := now
	r.InvalidatedAt = &t
}

// coinFlip returns a uniformly random boolean.
func coinFlip() bool {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		return false
	}
	return n.Int64() == 1
}
