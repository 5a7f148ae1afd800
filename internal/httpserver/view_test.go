package httpserver

import (
	"testing"
	"time"

	"github.com/monguess/go-server/internal/dex"
	"github.com/monguess/go-server/internal/room"
)

func initPool(t *testing.T) {
	t.Helper()
	err := dex.Reset([]dex.Monster{
		{ID: 6, Name: "Charizard", Type1: "Fire", Type2: "Flying", DebutGen: 1},
		{ID: 149, Name: "Dragonite", Type1: "Dragon", Type2: "Flying", DebutGen: 1},
		{ID: 132, Name: "Ditto", Type1: "Normal", DebutGen: 1},
	})
	if err != nil {
		t.Fatalf("dex.Reset: %v", err)
	}
}

func playingDoc(now time.Time) *room.Doc {
	return &room.Doc{
		Room: room.Room{
			Code:         "123456",
			Status:       room.StatusPlaying,
			HostID:       "alice",
			GuestID:      "bob",
			Players:      map[string]bool{"alice": true, "bob": true},
			TurnOf:       "alice",
			TurnNumber:   3,
			TurnCount:    2,
			MaxTurns:     room.DefaultMaxTurns,
			TurnDeadline: now.Add(30 * time.Second),
			Seed:         12345,
		},
		Guesses: []room.Guess{
			{ID: "g1", By: "alice", PlayerID: "alice", EntityID: 132, Name: "Ditto", TurnNumber: 1, TS: now.Add(-2 * time.Minute)},
			{ID: "g2", By: "bob", PlayerID: "bob", EntityID: 6, Name: "Charizard", TurnNumber: 2, TS: now.Add(-time.Minute)},
		},
	}
}

func TestProjectPlayingView(t *testing.T) {
	initPool(t)
	now := time.Now().UTC()
	sn := project(playingDoc(now), "alice", now)

	if sn.Role != room.WinnerHost || !sn.YourTurn {
		t.Fatalf("role=%q yourTurn=%v", sn.Role, sn.YourTurn)
	}
	if sn.RemainingMS <= 0 || sn.RemainingMS > 30_000 {
		t.Fatalf("remainingMs = %d", sn.RemainingMS)
	}
	if sn.RemainingTurns != room.DefaultMaxTurns-2 {
		t.Fatalf("remainingTurns = %d", sn.RemainingTurns)
	}
	if sn.Reveal != nil || sn.Outcome != "" {
		t.Fatal("playing view leaked the finished-only fields")
	}
	if len(sn.History) != 2 {
		t.Fatalf("history rows = %d", len(sn.History))
	}
	if !sn.History[0].Mine || sn.History[1].Mine {
		t.Fatalf("mine flags = %v/%v", sn.History[0].Mine, sn.History[1].Mine)
	}
	// Every visible row carries comparator feedback.
	for i, row := range sn.History {
		if row.Result == nil {
			t.Fatalf("row %d has no verdicts", i)
		}
	}
}

func TestProjectViewerSymmetry(t *testing.T) {
	initPool(t)
	now := time.Now().UTC()
	doc := playingDoc(now)

	forBob := project(doc, "bob", now)
	if forBob.Role != room.WinnerGuest || forBob.YourTurn {
		t.Fatalf("bob: role=%q yourTurn=%v", forBob.Role, forBob.YourTurn)
	}
	spectator := project(doc, "nobody", now)
	if spectator.Role != room.WinnerNone || spectator.YourTurn {
		t.Fatalf("spectator: role=%q yourTurn=%v", spectator.Role, spectator.YourTurn)
	}
}

func TestProjectFinishedView(t *testing.T) {
	initPool(t)
	now := time.Now().UTC()
	doc := playingDoc(now)
	doc.Room.Status = room.StatusFinished
	doc.Room.Winner = room.WinnerHost
	doc.Room.FinishedReason = room.ReasonNormal

	forAlice := project(doc, "alice", now)
	if forAlice.Outcome != "win" {
		t.Fatalf("alice outcome = %q", forAlice.Outcome)
	}
	forBob := project(doc, "bob", now)
	if forBob.Outcome != "loss" {
		t.Fatalf("bob outcome = %q", forBob.Outcome)
	}
	if forAlice.Reveal == nil {
		t.Fatal("finished view withheld the target")
	}

	doc.Room.Winner = room.WinnerDraw
	if sn := project(doc, "alice", now); sn.Outcome != "draw" {
		t.Fatalf("draw outcome = %q", sn.Outcome)
	}
}

func TestProjectMaskedRowsHideEntity(t *testing.T) {
	initPool(t)
	now := time.Now().UTC()
	doc := playingDoc(now)
	doc.Guesses[1].Masked = true

	forAlice := project(doc, "alice", now)
	hidden := forAlice.History[1]
	if !hidden.Masked || hidden.Name != "" || hidden.EntityID != 0 || hidden.Result != nil {
		t.Fatalf("masked row leaked: %+v", hidden)
	}
	// The author still sees their own masked row in full.
	forBob := project(doc, "bob", now)
	if forBob.History[1].Name != "Charizard" || forBob.History[1].Result == nil {
		t.Fatalf("author view redacted: %+v", forBob.History[1])
	}
}

func TestProjectExpiredDeadlineClampsToZero(t *testing.T) {
	initPool(t)
	now := time.Now().UTC()
	doc := playingDoc(now)
	doc.Room.TurnDeadline = now.Add(-time.Second)

	if sn := project(doc, "alice", now); sn.RemainingMS != 0 {
		t.Fatalf("remainingMs = %d for an expired deadline", sn.RemainingMS)
	}
}
