// internal/roomstore/sqlite.go
//
// SQLite implementation of the room Store interface.
// Responsibilities:
//   - Opening the database with safe defaults (WAL, busy timeout).
//   - Idempotent schema creation.
//   - Version-checked compare-and-update: each document row carries a
//     version counter and Update only commits `WHERE version = ?`, retrying
//     against fresh state when another writer won the race.
//
// Watch notifications are process-local: SQLite has no push channel, so the
// store keeps its own watcher registry and fans out after each commit. Run a
// single server process against one database file; use the redis backend for
// multi-process deployments.

package roomstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/monguess/go-server/internal/room"
)

const sqliteMaxRetries = 8

type sqlite struct {
	db *sql.DB

	mu       sync.Mutex
	watchers map[string]map[int]chan *room.Doc
	nextID   int
}

// NewSQLite opens (and creates if missing) the room database at dsn.
func NewSQLite(dsn string) (Store, error) {
	// Ensure directory exists for ./data/rooms.db, etc.
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS rooms (
		code       TEXT PRIMARY KEY,
		doc        TEXT NOT NULL,
		version    INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	log.Info().Str("dsn", dsn).Msg("room store: sqlite ready")
	return &sqlite{
		db:       db,
		watchers: make(map[string]map[int]chan *room.Doc),
	}, nil
}

func (s *sqlite) Get(ctx context.Context, code string) (*room.Doc, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM rooms WHERE code=?`, code).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeDoc(raw)
}

func (s *sqlite) Update(ctx context.Context, code string, fn UpdateFunc) (*room.Doc, error) {
	for attempt := 0; attempt < sqliteMaxRetries; attempt++ {
		var raw string
		var version int64
		exists := true
		err := s.db.QueryRowContext(ctx,
			`SELECT doc, version FROM rooms WHERE code=?`, code,
		).Scan(&raw, &version)
		if err == sql.ErrNoRows {
			exists = false
		} else if err != nil {
			return nil, err
		}

		var work *room.Doc
		if exists {
			work, err = decodeDoc(raw)
			if err != nil {
				return nil, err
			}
		} else {
			work = emptyDoc(code)
		}

		err = fn(work)
		if err == ErrNoChange {
			if !exists {
				return nil, ErrNotFound
			}
			return decodeDoc(raw)
		}
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		stampGuesses(work, now)
		data, err := json.Marshal(work)
		if err != nil {
			return nil, err
		}

		if exists {
			res, err := s.db.ExecContext(ctx,
				`UPDATE rooms SET doc=?, version=version+1, updated_at=? WHERE code=? AND version=?`,
				string(data), now.Format(time.RFC3339Nano), code, version,
			)
			if err != nil {
				return nil, err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue // lost the race, retry against fresh state
			}
		} else {
			_, err := s.db.ExecContext(ctx,
				`INSERT INTO rooms (code, doc, version, updated_at) VALUES (?,?,1,?)`,
				code, string(data), now.Format(time.RFC3339Nano),
			)
			if err != nil {
				continue // concurrent insert; retry and read the winner
			}
		}

		s.notify(code, work)
		return work.Clone(), nil
	}
	return nil, fmt.Errorf("roomstore: update contention on room %s", code)
}

func (s *sqlite) Watch(ctx context.Context, code string) (<-chan *room.Doc, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *room.Doc, watchBuffer)
	if s.watchers[code] == nil {
		s.watchers[code] = make(map[int]chan *room.Doc)
	}
	id := s.nextID
	s.nextID++
	s.watchers[code][id] = ch

	if d, err := s.Get(ctx, code); err == nil {
		ch <- d
	}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if w, ok := s.watchers[code][id]; ok {
			delete(s.watchers[code], id)
			close(w)
		}
	}
	return ch, cancel, nil
}

func (s *sqlite) Close() error {
	s.mu.Lock()
	for code, ws := range s.watchers {
		for id, ch := range ws {
			close(ch)
			delete(ws, id)
		}
		delete(s.watchers, code)
	}
	s.mu.Unlock()
	return s.db.Close()
}

func (s *sqlite) notify(code string, d *room.Doc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers[code] {
		offerLatest(ch, d.Clone())
	}
}

func decodeDoc(raw string) (*room.Doc, error) {
	var d room.Doc
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("roomstore: decode document: %w", err)
	}
	return &d, nil
}
