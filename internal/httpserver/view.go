// internal/httpserver/view.go
//
// Client-state projection for versus rooms.
//
// Everything a client renders — turn banner, countdown, history list,
// end-of-match modal — is a pure function of the latest room document and
// the viewer's identity. No server- or client-side session state is
// authoritative, so a client that reconnects mid-match reconstructs the
// identical view purely from this projection.

package httpserver

import (
	"sort"
	"time"

	"github.com/monguess/go-server/internal/compare"
	"github.com/monguess/go-server/internal/dex"
	"github.com/monguess/go-server/internal/room"
	"github.com/monguess/go-server/internal/versus"
)

// historyRow is one rendered ledger entry, colored for the viewing
// participant. Rows are delivered in ledger (timestamp) order; consumers
// deduplicate by guess id since snapshot delivery is at-least-once.
type historyRow struct {
	GuessID    string          `json:"guessId"`
	Name       string          `json:"name,omitempty"`
	EntityID   int             `json:"entityId,omitempty"`
	Result     *compare.Result `json:"result,omitempty"`
	IsCorrect  bool            `json:"isCorrect"`
	TurnNumber int             `json:"turnNumber"`
	Mine       bool            `json:"mine"`
	AutoStart  bool            `json:"autoStart,omitempty"`
	AutoSkip   bool            `json:"autoSkip,omitempty"`
	Masked     bool            `json:"masked,omitempty"`
	TS         time.Time       `json:"ts"`
}

// snapshot is the full client view of one room at one instant.
type snapshot struct {
	Code           string       `json:"code"`
	Status         room.Status  `json:"status"`
	Role           room.Winner  `json:"role"` // viewer's role, "" for spectating ids
	PlayerCount    int          `json:"playerCount"`
	YourTurn       bool         `json:"yourTurn"`
	TurnNumber     int          `json:"turnNumber"`
	TurnCount      int          `json:"turnCount"`
	MaxTurns       int          `json:"maxTurns"`
	RemainingTurns int          `json:"remainingTurns"`
	TurnDeadline   *time.Time   `json:"turnDeadline,omitempty"`
	RemainingMS    int64        `json:"remainingMs"`
	Winner         room.Winner  `json:"winner,omitempty"`
	FinishedReason room.Reason  `json:"finishedReason,omitempty"`
	Outcome        string       `json:"outcome,omitempty"` // win | loss | draw, per viewer
	Reveal         *dex.Monster `json:"reveal,omitempty"`  // target, only once finished
	History        []historyRow `json:"history"`
}

// project derives the viewer-specific client state from a room document.
func project(doc *room.Doc, viewer string, now time.Time) snapshot {
	r := &doc.Room
	sn := snapshot{
		Code:        r.Code,
		Status:      r.Status,
		Role:        r.RoleOf(viewer),
		PlayerCount: r.PlayerCount(),
		TurnNumber:  r.TurnNumber,
		TurnCount:   r.TurnCount,
		MaxTurns:    r.MaxTurns,
		History:     []historyRow{},
	}
	if r.MaxTurns > 0 {
		sn.RemainingTurns = r.MaxTurns - r.TurnCount
		if sn.RemainingTurns < 0 {
			sn.RemainingTurns = 0
		}
	}

	if r.Status == room.StatusPlaying {
		sn.YourTurn = r.TurnOf == viewer
		if !r.TurnDeadline.IsZero() {
			d := r.TurnDeadline
			sn.TurnDeadline = &d
			if left := d.Sub(now); left > 0 {
				sn.RemainingMS = left.Milliseconds()
			}
		}
	}

	if r.Status == room.StatusFinished {
		sn.Winner = r.Winner
		sn.FinishedReason = r.FinishedReason
		sn.Outcome = outcomeFor(r, viewer)
		if tgt, ok := versus.Target(r); ok {
			sn.Reveal = &tgt
		}
	}

	tgt, haveTarget := versus.Target(r)
	rows := make([]historyRow, 0, len(doc.Guesses))
	for _, g := range doc.Guesses {
		row := historyRow{
			GuessID:    g.ID,
			IsCorrect:  g.IsCorrect,
			TurnNumber: g.TurnNumber,
			Mine:       g.By == viewer,
			AutoStart:  g.AutoStart,
			AutoSkip:   g.AutoSkip,
			TS:         g.TS,
		}
		// Masked entries stay hidden from everyone but their author until a
		// reveal marks them visible; nothing currently produces one.
		if g.Masked && g.By != viewer {
			row.Masked = true
			rows = append(rows, row)
			continue
		}
		row.Name = g.Name
		row.EntityID = g.EntityID
		if haveTarget {
			if guessed, ok := dex.ByID(g.EntityID); ok {
				res := compare.Compare(guessed, tgt)
				row.Result = &res
			}
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TS.Before(rows[j].TS) })
	sn.History = rows
	return sn
}

// outcomeFor maps the room's winner role to the viewer's verdict label.
func outcomeFor(r *room.Room, viewer string) string {
	switch {
	case r.Winner == room.WinnerDraw:
		return "draw"
	case r.Winner == room.WinnerNone:
		return ""
	case r.Winner == r.RoleOf(viewer) && r.RoleOf(viewer) != room.WinnerNone:
		return "win"
	default:
		return "loss"
	}
}
