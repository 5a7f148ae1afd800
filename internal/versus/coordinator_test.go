package versus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/monguess/go-server/internal/dex"
	"github.com/monguess/go-server/internal/room"
	"github.com/monguess/go-server/internal/roomstore"
)

const (
	alice = "participant-alice"
	bob   = "participant-bob"
)

func initPool(t *testing.T) {
	t.Helper()
	err := dex.Reset([]dex.Monster{
		{ID: 6, Name: "Charizard", Type1: "Fire", Type2: "Flying", DebutGen: 1},
		{ID: 149, Name: "Dragonite", Type1: "Dragon", Type2: "Flying", DebutGen: 1},
		{ID: 132, Name: "Ditto", Type1: "Normal", DebutGen: 1},
		{ID: 25, Name: "Pikachu", Type1: "Electric", DebutGen: 1},
	})
	if err != nil {
		t.Fatalf("dex.Reset: %v", err)
	}
}

// startMatch creates a room, seats both players, and starts the match.
// Returns the coordinator, the room code, and the first mover / waiter.
func startMatch(t *testing.T) (*Coordinator, string, string, string) {
	t.Helper()
	initPool(t)
	c := New(roomstore.NewMemory())
	ctx := context.Background()

	d, err := c.CreateRoom(ctx, alice)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	code := d.Room.Code
	if _, err := c.JoinRoom(ctx, code, bob); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	d, err = c.StartIfReady(ctx, code)
	if err != nil {
		t.Fatalf("StartIfReady: %v", err)
	}
	if d.Room.Status != room.StatusPlaying {
		t.Fatalf("status = %q after start", d.Room.Status)
	}
	mover := d.Room.TurnOf
	waiter := d.Room.Opponent(mover)
	if mover == "" || waiter == "" {
		t.Fatalf("mover=%q waiter=%q", mover, waiter)
	}
	return c, code, mover, waiter
}

// wrongName returns a candidate that is not the room's hidden target.
func wrongName(t *testing.T, r *room.Room) string {
	t.Helper()
	tgt, ok := Target(r)
	if !ok {
		t.Fatal("no target derivable")
	}
	for _, name := range dex.Names() {
		if m, _ := dex.ByName(name); m.ID != tgt.ID {
			return name
		}
	}
	t.Fatal("pool has no wrong candidate")
	return ""
}

func TestCreateRoomOpensLobby(t *testing.T) {
	initPool(t)
	c := New(roomstore.NewMemory())
	d, err := c.CreateRoom(context.Background(), alice)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	r := &d.Room
	if r.Status != room.StatusLobby || r.HostID != alice || !r.Players[alice] {
		t.Fatalf("lobby = %+v", r)
	}
	if !room.ValidCode(r.Code) {
		t.Fatalf("bad code %q", r.Code)
	}
	if r.MaxTurns != room.DefaultMaxTurns {
		t.Fatalf("maxTurns = %d", r.MaxTurns)
	}
}

func TestJoinIsIdempotentAndCapped(t *testing.T) {
	initPool(t)
	c := New(roomstore.NewMemory())
	ctx := context.Background()
	d, _ := c.CreateRoom(ctx, alice)
	code := d.Room.Code

	// Rejoining your own seat changes nothing.
	d, err := c.JoinRoom(ctx, code, alice)
	if err != nil || d.Room.PlayerCount() != 1 {
		t.Fatalf("rejoin: %+v, %v", d.Room, err)
	}

	if _, err := c.JoinRoom(ctx, code, bob); err != nil {
		t.Fatalf("second join: %v", err)
	}
	if _, err := c.JoinRoom(ctx, code, "participant-mallory"); err != ErrRoomFull {
		t.Fatalf("third join = %v, want ErrRoomFull", err)
	}
	// The seated players can still rejoin a full room.
	d, err = c.JoinRoom(ctx, code, bob)
	if err != nil || d.Room.GuestID != bob {
		t.Fatalf("guest rejoin: %+v, %v", d.Room, err)
	}
}

func TestStartIfReadyNeedsTwoPlayers(t *testing.T) {
	initPool(t)
	c := New(roomstore.NewMemory())
	ctx := context.Background()
	d, _ := c.CreateRoom(ctx, alice)

	got, err := c.StartIfReady(ctx, d.Room.Code)
	if err != nil {
		t.Fatalf("StartIfReady: %v", err)
	}
	if got.Room.Status != room.StatusLobby {
		t.Fatalf("solo lobby started: %q", got.Room.Status)
	}
}

func TestStartFixesSeedAndFirstMover(t *testing.T) {
	c, code, mover, waiter := startMatch(t)
	d, _ := c.Store().Get(context.Background(), code)
	r := &d.Room
	if r.Seed <= 0 {
		t.Fatalf("seed = %d", r.Seed)
	}
	if r.TurnNumber != 1 || r.TurnCount != 0 {
		t.Fatalf("turnNumber=%d turnCount=%d", r.TurnNumber, r.TurnCount)
	}
	if r.TurnDeadline.IsZero() {
		t.Fatal("no deadline armed")
	}
	if (mover != alice && mover != bob) || waiter == mover {
		t.Fatalf("mover=%q waiter=%q", mover, waiter)
	}
	// Any holder of the seed derives the same target.
	tgt, ok := Target(r)
	if !ok {
		t.Fatal("target not derivable")
	}
	if tgt.ID != dex.At(room.ChooseAnswer(r.Seed, dex.Count())).ID {
		t.Fatal("target does not follow the seed")
	}
}

func TestTurnAlternation(t *testing.T) {
	c, code, mover, waiter := startMatch(t)
	ctx := context.Background()
	d, _ := c.Store().Get(ctx, code)
	wrong := wrongName(t, &d.Room)

	// Off-turn submission is a silent no-op.
	d, err := c.SubmitGuess(ctx, code, waiter, wrong)
	if err != nil {
		t.Fatalf("off-turn guess: %v", err)
	}
	if d.Room.TurnCount != 0 || len(d.Guesses) != 0 {
		t.Fatalf("off-turn guess took effect: %+v", d.Room)
	}

	// The mover's wrong guess consumes the turn and flips control.
	d, err = c.SubmitGuess(ctx, code, mover, wrong)
	if err != nil {
		t.Fatalf("SubmitGuess: %v", err)
	}
	r := &d.Room
	if r.TurnCount != 1 || r.TurnNumber != 2 || r.TurnOf != waiter {
		t.Fatalf("after guess: turnCount=%d turnNumber=%d turnOf=%q", r.TurnCount, r.TurnNumber, r.TurnOf)
	}
	if len(d.Guesses) != 1 || d.Guesses[0].PlayerID != mover || d.Guesses[0].TurnNumber != 1 {
		t.Fatalf("ledger = %+v", d.Guesses)
	}
	if d.Guesses[0].TS.IsZero() {
		t.Fatal("guess not timestamped at commit")
	}

	// The previous mover now has no turn to consume.
	d, _ = c.SubmitGuess(ctx, code, mover, wrong)
	if d.Room.TurnCount != 1 {
		t.Fatal("stale mover consumed a turn")
	}
}

func TestCorrectGuessWinsImmediately(t *testing.T) {
	c, code, mover, _ := startMatch(t)
	ctx := context.Background()
	d, _ := c.Store().Get(ctx, code)
	tgt, _ := Target(&d.Room)

	d, err := c.SubmitGuess(ctx, code, mover, tgt.Name)
	if err != nil {
		t.Fatalf("SubmitGuess: %v", err)
	}
	r := &d.Room
	if r.Status != room.StatusFinished || r.FinishedReason != room.ReasonNormal {
		t.Fatalf("status=%q reason=%q", r.Status, r.FinishedReason)
	}
	if r.Winner != r.RoleOf(mover) {
		t.Fatalf("winner = %q, mover role = %q", r.Winner, r.RoleOf(mover))
	}
	if r.InvalidatedAt == nil {
		t.Fatal("finished room not invalidated")
	}
	if !d.Guesses[len(d.Guesses)-1].IsCorrect {
		t.Fatal("winning guess not marked correct")
	}

	// The spent code can never be joined again.
	if _, err := c.JoinRoom(ctx, code, "participant-late"); err != ErrRoomInvalid {
		t.Fatalf("join spent code = %v, want ErrRoomInvalid", err)
	}
	// Nor can further guesses land.
	d2, _ := c.SubmitGuess(ctx, code, mover, tgt.Name)
	if len(d2.Guesses) != len(d.Guesses) {
		t.Fatal("guess landed on finished match")
	}
}

func TestMaxTurnsDraw(t *testing.T) {
	c, code, mover, waiter := startMatch(t)
	ctx := context.Background()
	d, _ := c.Store().Get(ctx, code)
	wrong := wrongName(t, &d.Room)

	turnOf := mover
	for i := 0; i < room.DefaultMaxTurns; i++ {
		var err error
		d, err = c.SubmitGuess(ctx, code, turnOf, wrong)
		if err != nil {
			t.Fatalf("turn %d: %v", i+1, err)
		}
		if turnOf == mover {
			turnOf = waiter
		} else {
			turnOf = mover
		}
	}

	r := &d.Room
	if r.Status != room.StatusFinished || r.Winner != room.WinnerDraw || r.FinishedReason != room.ReasonMaxTurns {
		t.Fatalf("after cap: status=%q winner=%q reason=%q", r.Status, r.Winner, r.FinishedReason)
	}
	if r.TurnCount != room.DefaultMaxTurns {
		t.Fatalf("turnCount = %d", r.TurnCount)
	}
	if len(d.Guesses) != room.DefaultMaxTurns {
		t.Fatalf("ledger size = %d", len(d.Guesses))
	}
}

func TestOpeningAutoGuessExactlyOnce(t *testing.T) {
	c, code, mover, _ := startMatch(t)
	ctx := context.Background()

	// Both clients race to commit it; only one commit lands.
	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.CommitOpeningAutoGuess(ctx, code)
		}()
	}
	wg.Wait()

	d, _ := c.Store().Get(ctx, code)
	auto := 0
	for _, g := range d.Guesses {
		if g.AutoStart {
			auto++
			if g.By != room.SystemParticipant || g.PlayerID != mover || g.TurnNumber != 1 {
				t.Fatalf("opening guess = %+v", g)
			}
		}
	}
	if auto != 1 {
		t.Fatalf("openers = %d, want exactly 1", auto)
	}
	if !d.Room.OpeningAutoGuessDone {
		t.Fatal("openingAutoGuessDone not set")
	}

	r := &d.Room
	tgt, _ := Target(r)
	if d.Guesses[0].EntityID == tgt.ID {
		// Lucky opener: the mover wins without moving.
		if r.Status != room.StatusFinished || r.Winner != r.RoleOf(mover) {
			t.Fatalf("lucky opener: status=%q winner=%q", r.Status, r.Winner)
		}
	} else {
		// Normal case: the opener consumes no turn and keeps the mover on move.
		if r.TurnCount != 0 || r.TurnOf != mover || r.TurnNumber != 1 {
			t.Fatalf("opener consumed a turn: %+v", r)
		}
	}

	// Calling again after a move is still a no-op.
	if r.Status == room.StatusPlaying {
		wrong := wrongName(t, r)
		_, _ = c.SubmitGuess(ctx, code, mover, wrong)
		d2, _ := c.CommitOpeningAutoGuess(ctx, code)
		got := 0
		for _, g := range d2.Guesses {
			if g.AutoStart {
				got++
			}
		}
		if got != 1 {
			t.Fatalf("openers after replay = %d", got)
		}
	}
}

// expireTurn backdates the current deadline past the grace window.
func expireTurn(t *testing.T, c *Coordinator, code string) {
	t.Helper()
	_, err := c.Store().Update(context.Background(), code, func(doc *room.Doc) error {
		doc.Room.TurnDeadline = time.Now().UTC().Add(-room.DeadlineGrace - 5*time.Second)
		return nil
	})
	if err != nil {
		t.Fatalf("expireTurn: %v", err)
	}
}

func TestForceAdvanceBeforeDeadlineIsNoOp(t *testing.T) {
	c, code, _, waiter := startMatch(t)
	d, err := c.ForceAdvanceIfExpired(context.Background(), code, waiter)
	if err != nil {
		t.Fatalf("ForceAdvanceIfExpired: %v", err)
	}
	if d.Room.TurnCount != 0 || len(d.Guesses) != 0 {
		t.Fatalf("premature advance took effect: %+v", d.Room)
	}
}

func TestForceAdvanceOnExpiredTurn(t *testing.T) {
	c, code, mover, waiter := startMatch(t)
	ctx := context.Background()
	expireTurn(t, c, code)

	// Both clients fire from their timers; exactly one advance lands.
	d1, err := c.ForceAdvanceIfExpired(ctx, code, waiter)
	if err != nil {
		t.Fatalf("first advance: %v", err)
	}
	d2, err := c.ForceAdvanceIfExpired(ctx, code, mover)
	if err != nil {
		t.Fatalf("second advance: %v", err)
	}

	skips := 0
	for _, g := range d2.Guesses {
		if g.AutoSkip {
			skips++
			if g.PlayerID != mover {
				t.Fatalf("skip charged to %q, want %q", g.PlayerID, mover)
			}
		}
	}
	if skips != 1 {
		t.Fatalf("autoSkips = %d, want 1", skips)
	}
	if d1.Room.TurnCount != 1 || d2.Room.TurnCount != 1 {
		t.Fatalf("turnCount = %d/%d", d1.Room.TurnCount, d2.Room.TurnCount)
	}
	// Unless the random skip hit the target, control passed to the waiter.
	if d2.Room.Status == room.StatusPlaying && d2.Room.TurnOf != waiter {
		t.Fatalf("turnOf = %q, want %q", d2.Room.TurnOf, waiter)
	}
}

func TestInactivityForfeitAwardsCaller(t *testing.T) {
	c, code, _, waiter := startMatch(t)
	ctx := context.Background()

	_, err := c.Store().Update(ctx, code, func(doc *room.Doc) error {
		doc.Room.LastActionAt = time.Now().UTC().Add(-room.InactivityTimeout - time.Minute)
		return nil
	})
	if err != nil {
		t.Fatalf("backdate: %v", err)
	}

	// A non-participant cannot trigger the forfeit.
	d, _ := c.ForceAdvanceIfExpired(ctx, code, "participant-mallory")
	if d.Room.Status != room.StatusPlaying {
		t.Fatal("outsider forfeited the match")
	}

	d, err = c.ForceAdvanceIfExpired(ctx, code, waiter)
	if err != nil {
		t.Fatalf("ForceAdvanceIfExpired: %v", err)
	}
	r := &d.Room
	if r.Status != room.StatusFinished || r.FinishedReason != room.ReasonTimeout {
		t.Fatalf("status=%q reason=%q", r.Status, r.FinishedReason)
	}
	if r.Winner != r.RoleOf(waiter) {
		t.Fatalf("winner = %q, caller role = %q", r.Winner, r.RoleOf(waiter))
	}
}

func TestSurrender(t *testing.T) {
	c, code, mover, waiter := startMatch(t)
	ctx := context.Background()

	// Outsiders cannot surrender someone else's match.
	d, _ := c.Surrender(ctx, code, "participant-mallory")
	if d.Room.Status != room.StatusPlaying {
		t.Fatal("outsider surrender took effect")
	}

	d, err := c.Surrender(ctx, code, mover)
	if err != nil {
		t.Fatalf("Surrender: %v", err)
	}
	r := &d.Room
	if r.Status != room.StatusFinished || r.FinishedReason != room.ReasonSurrender {
		t.Fatalf("status=%q reason=%q", r.Status, r.FinishedReason)
	}
	if r.Winner != r.RoleOf(waiter) {
		t.Fatalf("winner = %q, want opponent %q", r.Winner, r.RoleOf(waiter))
	}

	// Surrendering twice is a no-op on the finished room.
	d2, err := c.Surrender(ctx, code, waiter)
	if err != nil {
		t.Fatalf("second surrender: %v", err)
	}
	if d2.Room.Winner != r.Winner {
		t.Fatal("second surrender rewrote the outcome")
	}
}

func TestSubmitGuessPastDeadlineIsNoOp(t *testing.T) {
	c, code, mover, _ := startMatch(t)
	ctx := context.Background()
	expireTurn(t, c, code)

	d, _ := c.Store().Get(ctx, code)
	wrong := wrongName(t, &d.Room)
	d, err := c.SubmitGuess(ctx, code, mover, wrong)
	if err != nil {
		t.Fatalf("SubmitGuess: %v", err)
	}
	if d.Room.TurnCount != 0 || len(d.Guesses) != 0 {
		t.Fatal("late guess consumed the turn")
	}
}

func TestSubmitGuessUnknownEntity(t *testing.T) {
	c, code, mover, _ := startMatch(t)
	if _, err := c.SubmitGuess(context.Background(), code, mover, "missingno"); err != ErrUnknownEntity {
		t.Fatalf("unknown entity = %v, want ErrUnknownEntity", err)
	}
}
