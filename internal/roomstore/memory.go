// internal/roomstore/memory.go
//
// In-memory implementation of the room Store interface.
// This is a lightweight backend used for ephemeral matches, primarily in
// development/testing, or when durability is not required.
//
// Characteristics:
//   - Documents keyed by room code in a map.
//   - A single mutex serializes all Update transactions, which trivially
//     satisfies the per-document serializability requirement.
//   - Watchers receive deep-copied snapshots over buffered channels; a
//     watcher that falls behind loses intermediate snapshots but always
//     converges on the latest one it drains.
//   - State is lost when the process restarts.

package roomstore

import (
	"context"
	"sync"
	"time"

	"github.com/monguess/go-server/internal/room"
)

const watchBuffer = 16

// memory is a map-based Store implementation.
type memory struct {
	mu       sync.Mutex
	rooms    map[string]*room.Doc
	watchers map[string]map[int]chan *room.Doc
	nextID   int
}

// NewMemory constructs a new in-memory Store.
func NewMemory() Store {
	return &memory{
		rooms:    make(map[string]*room.Doc),
		watchers: make(map[string]map[int]chan *room.Doc),
	}
}

func (m *memory) Get(ctx context.Context, code string) (*room.Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

func (m *memory) Update(ctx context.Context, code string, fn UpdateFunc) (*room.Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.rooms[code]
	var work *room.Doc
	if ok {
		work = cur.Clone()
	} else {
		work = emptyDoc(code)
	}

	err := fn(work)
	if err == ErrNoChange {
		if !ok {
			return nil, ErrNotFound
		}
		return cur.Clone(), nil
	}
	if err != nil {
		return nil, err
	}

	stampGuesses(work, time.Now().UTC())
	m.rooms[code] = work
	m.notifyLocked(code, work)
	return work.Clone(), nil
}

func (m *memory) Watch(ctx context.Context, code string) (<-chan *room.Doc, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan *room.Doc, watchBuffer)
	if m.watchers[code] == nil {
		m.watchers[code] = make(map[int]chan *room.Doc)
	}
	id := m.nextID
	m.nextID++
	m.watchers[code][id] = ch

	// Deliver the current snapshot immediately so late subscribers can
	// reconstruct state without a separate Get.
	if d, ok := m.rooms[code]; ok {
		ch <- d.Clone()
	}

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if w, ok := m.watchers[code][id]; ok {
			delete(m.watchers[code], id)
			close(w)
		}
	}
	return ch, cancel, nil
}

func (m *memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, ws := range m.watchers {
		for id, ch := range ws {
			close(ch)
			delete(ws, id)
		}
		delete(m.watchers, code)
	}
	return nil
}

// notifyLocked fans the committed snapshot out to watchers. A full channel
// drops its oldest buffered snapshot so the newest always lands.
func (m *memory) notifyLocked(code string, d *room.Doc) {
	for _, ch := range m.watchers[code] {
		offerLatest(ch, d.Clone())
	}
}
