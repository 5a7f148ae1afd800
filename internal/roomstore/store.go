// internal/roomstore/store.go
//
// Shared-document store for versus rooms.
//
// The store is the single synchronization point between the two clients of a
// match. It must provide, per document:
//   - Update: a serializable compare-and-update transaction. The mutator
//     re-reads current state, validates its preconditions, and either mutates
//     or returns ErrNoChange to resolve as a silent no-op. Two racing
//     mutations never both act on the same state.
//   - Watch: a snapshot subscription delivering immutable copies of the
//     document after each committed change. Delivery is at-least-once;
//     consumers deduplicate ledger entries by record id.
//
// Ledger timestamps are server-assigned: any guess appended by a mutator is
// stamped with the commit time inside the transaction.
//
// Implementations: memory (tests/dev), sqlite (durable, single process),
// redis (shared, multi process).

package roomstore

import (
	"context"
	"errors"
	"time"

	"github.com/monguess/go-server/internal/room"
)

var (
	// ErrNotFound is returned by Get for an unclaimed room code.
	ErrNotFound = errors.New("roomstore: room not found")

	// ErrNoChange aborts an Update without writing. The transaction is a
	// silent no-op and Update returns the unmodified document with nil error.
	ErrNoChange = errors.New("roomstore: no change")
)

// UpdateFunc mutates a room document in place. It runs inside the store's
// transaction and may be invoked multiple times under contention; it must be
// free of side effects beyond the document.
type UpdateFunc func(doc *room.Doc) error

// Store is the persistence and synchronization interface for room documents.
type Store interface {
	// Get returns a snapshot of the document, or ErrNotFound.
	Get(ctx context.Context, code string) (*room.Doc, error)

	// Update runs fn transactionally against the latest document state and
	// returns the resulting snapshot. A missing document is presented to fn
	// as a zero-value Doc carrying only the code, so claims and creations go
	// through the same primitive.
	Update(ctx context.Context, code string, fn UpdateFunc) (*room.Doc, error)

	// Watch subscribes to committed snapshots of one document. The returned
	// cancel func releases the subscription and closes the channel.
	Watch(ctx context.Context, code string) (<-chan *room.Doc, func(), error)

	Close() error
}

// stampGuesses assigns the commit timestamp to any ledger entries the
// mutator appended in this transaction.
func stampGuesses(doc *room.Doc, now time.Time) {
	for i := range doc.Guesses {
		if doc.Guesses[i].TS.IsZero() {
			doc.Guesses[i].TS = now
		}
	}
}

// emptyDoc builds the zero-value document handed to mutators for an
// unclaimed code.
func emptyDoc(code string) *room.Doc {
	return &room.Doc{Room: room.Room{Code: code}}
}

// offerLatest enqueues a snapshot on a watcher channel, evicting the oldest
// buffered snapshot when the buffer is full. A stalled watcher loses
// intermediate snapshots but the newest committed one is never dropped, so
// draining always converges on the latest state — including the terminal
// finished snapshot, which no later commit would otherwise redeliver.
func offerLatest(ch chan *room.Doc, d *room.Doc) {
	for {
		select {
		case ch <- d:
		default:
			select {
			case <-ch:
			default:
			}
			continue
		}
		return
	}
}
