// internal/room/room.go
//
// Core type definitions for a versus match.
// Defines:
//   - Room: the authoritative shared record of one match's lifecycle.
//   - Guess: one append-only ledger entry.
//   - Doc: the full shared document (room + ledger) the store transacts on.
//
// The status field is monotonic: lobby → playing → finished, never backwards.
// Once finished, no field but invalidatedAt changes, and the room code is
// spent for good.

package room

import (
	"time"
)

// Status is the lifecycle phase of a room.
type Status string

const (
	StatusLobby    Status = "lobby"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Winner identifies the match outcome by role.
type Winner string

const (
	WinnerHost  Winner = "host"
	WinnerGuest Winner = "guest"
	WinnerDraw  Winner = "draw"
	WinnerNone  Winner = ""
)

// Reason explains why a match finished.
type Reason string

const (
	ReasonNormal    Reason = "normal"
	ReasonMaxTurns  Reason = "max_turns"
	ReasonTimeout   Reason = "timeout"
	ReasonSurrender Reason = "surrender"
	ReasonNone      Reason = ""
)

// Match constants.
const (
	TurnDuration      = 60 * time.Second  // per-turn deadline
	InactivityTimeout = 240 * time.Second // long stall before forfeit
	RoomExpiry        = 3600 * time.Second // advisory; stale codes rejected at join
	DefaultMaxTurns   = 20
	DeadlineGrace     = 1 * time.Second // slack accepted past the turn deadline

	// SystemParticipant is the reserved author of the opening auto guess.
	SystemParticipant = "system"
)

// Room is the mutable shared match record, one per 6-digit code.
type Room struct {
	Code      string          `json:"code"`
	Status    Status          `json:"status"`
	CreatorID string          `json:"creatorId"`
	HostID    string          `json:"hostId"`
	GuestID   string          `json:"guestId,omitempty"`
	Players   map[string]bool `json:"players"`

	TurnOf       string    `json:"turnOf,omitempty"`
	TurnNumber   int       `json:"turnNumber"`
	TurnCount    int       `json:"turnCount"`
	MaxTurns     int       `json:"maxTurns"`
	TurnDeadline time.Time `json:"turnDeadline,omitempty"`

	// Seed fixes the deterministic target once status becomes playing.
	// The target itself is never stored or transmitted.
	Seed                 int64 `json:"seed,omitempty"`
	OpeningAutoGuessDone bool  `json:"openingAutoGuessDone"`

	Winner         Winner `json:"winner,omitempty"`
	FinishedReason Reason `json:"finishedReason,omitempty"`

	CreatedAt     time.Time  `json:"createdAt"`
	LastActionAt  time.Time  `json:"lastActionAt"`
	LastActionBy  string     `json:"lastActionBy,omitempty"`
	InvalidatedAt *time.Time `json:"invalidatedAt,omitempty"`
}

// Guess is one ledger entry. Records are created only inside a successful
// transaction and never edited afterwards.
type Guess struct {
	ID         string    `json:"id"`
	By         string    `json:"by"`       // participant id, or SystemParticipant
	PlayerID   string    `json:"playerId"` // mover the guess counts for
	EntityID   int       `json:"entityId"`
	Name       string    `json:"name"`
	IsCorrect  bool      `json:"isCorrect"`
	TurnNumber int       `json:"turnNumber"`
	AutoStart  bool      `json:"autoStart,omitempty"`
	AutoSkip   bool      `json:"autoSkip,omitempty"`
	Masked     bool      `json:"masked,omitempty"`
	TS         time.Time `json:"ts"` // assigned by the store at commit
}

// Doc is the complete shared document a store transaction operates on:
// the room record plus its append-only guess ledger in timestamp order.
type Doc struct {
	Room    Room    `json:"room"`
	Guesses []Guess `json:"guesses"`
}

// Exists reports whether the document has been created yet.
// A zero-value Doc handed to a transaction means the code is unclaimed.
func (d *Doc) Exists() bool {
	return d.Room.Status != ""
}

// Clone deep-copies the document so snapshots handed to subscribers can
// never alias store-owned state.
func (d *Doc) Clone() *Doc {
	cp := *d
	if d.Room.Players != nil {
		cp.Room.Players = make(map[string]bool, len(d.Room.Players))
		for k, v := range d.Room.Players {
			cp.Room.Players[k] = v
		}
	}
	if d.Room.InvalidatedAt != nil {
		t := *d.Room.InvalidatedAt
		cp.Room.InvalidatedAt = &t
	}
	cp.Guesses = append([]Guess(nil), d.Guesses...)
	return &cp
}

// RoleOf maps a participant id to its role in this room.
func (r *Room) RoleOf(uid string) Winner {
	switch uid {
	case "":
		return WinnerNone
	case r.HostID:
		return WinnerHost
	case r.GuestID:
		return WinnerGuest
	}
	return WinnerNone
}

// Opponent returns the other participant's id, or "" when there is none.
func (r *Room) Opponent(uid string) string {
	switch uid {
	case r.HostID:
		return r.GuestID
	case r.GuestID:
		return r.HostID
	}
	return ""
}

// IsInvalid reports whether the code is spent: the match finished or the
// room was explicitly invalidated.
func (r *Room) IsInvalid() bool {
	return r.Status == StatusFinished || r.InvalidatedAt != nil
}

// Expired reports whether the room is past its advisory expiry window.
func (r *Room) Expired(now time.Time) bool {
	return !r.CreatedAt.IsZero() && now.Sub(r.CreatedAt) > RoomExpiry
}

// PlayerCount returns the number of registered participants.
func (r *Room) PlayerCount() int {
	return len(r.Players)
}
