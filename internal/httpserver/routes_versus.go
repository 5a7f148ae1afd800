// internal/httpserver/routes_versus.go
//
// HTTP routes for two-player versus rooms.
// Exposes endpoints under /versus:
//   - POST /versus/rooms               → create a room, return its code
//   - POST /versus/rooms/{code}/join   → claim a seat (idempotent per caller)
//   - GET  /versus/rooms/{code}        → current snapshot for the caller
//   - POST /versus/rooms/{code}/guess  → submit a guess on the caller's turn
//   - POST /versus/rooms/{code}/advance→ force-advance an expired turn
//   - POST /versus/rooms/{code}/surrender → concede the match
//   - GET  /versus/rooms/{code}/ws     → websocket snapshot feed
//
// Every mutation goes through the coordinator and resolves inside one store
// transaction; handlers here only authenticate the participant, shape JSON,
// and project the resulting document for the caller. The websocket is
// read-only — closing it never affects the match, so a client may drop and
// reconnect freely.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/monguess/go-server/internal/room"
	"github.com/monguess/go-server/internal/roomstore"
	"github.com/monguess/go-server/internal/versus"
)

// mountVersus registers all /versus routes.
func (s *Server) mountVersus(r chi.Router) {
	r.Route("/versus/rooms", func(r chi.Router) {
		r.Post("/", s.handleCreateRoom)
		r.Route("/{code}", func(r chi.Router) {
			r.Post("/join", s.handleJoinRoom)
			r.Get("/", s.handleRoomSnapshot)
			r.Post("/guess", s.handleVersusGuess)
			r.Post("/advance", s.handleAdvance)
			r.Post("/surrender", s.handleSurrender)
			r.Get("/ws", s.handleRoomWS)
		})
	})
}

// writeSnapshot projects doc for the viewer and writes it as JSON.
func writeSnapshot(w http.ResponseWriter, doc *room.Doc, viewer string) {
	_ = json.NewEncoder(w).Encode(project(doc, viewer, time.Now().UTC()))
}

// writeVersusError maps coordinator errors onto HTTP statuses.
func writeVersusError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, versus.ErrRoomInvalid):
		http.Error(w, `{"error":"room_invalid"}`, http.StatusGone)
	case errors.Is(err, versus.ErrRoomFull):
		http.Error(w, `{"error":"room_full"}`, http.StatusConflict)
	case errors.Is(err, versus.ErrUnknownEntity):
		http.Error(w, `{"error":"unknown_entity"}`, http.StatusBadRequest)
	case errors.Is(err, roomstore.ErrNotFound):
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
	default:
		log.Error().Err(err).Msg("versus operation")
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
	}
}

// -----------------------------------------------------------------------------
// POST /versus/rooms

// handleCreateRoom creates a fresh lobby with the caller seated as host.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	uid := s.participantID(w, r)
	doc, err := s.coord.CreateRoom(r.Context(), uid)
	if err != nil {
		writeVersusError(w, err)
		return
	}
	log.Info().Str("code", doc.Room.Code).Str("participant", uid).Msg("room created")
	writeSnapshot(w, doc, uid)
}

// -----------------------------------------------------------------------------
// POST /versus/rooms/{code}/join

// handleJoinRoom claims a seat. Joining a room the caller already occupies is
// a no-op, which is what makes page reloads safe. Once both seats fill, the
// same request starts the match and commits the opening auto-guess.
func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if !room.ValidCode(code) {
		http.Error(w, `{"error":"bad_code"}`, http.StatusBadRequest)
		return
	}
	uid := s.participantID(w, r)
	doc, err := s.coord.JoinRoom(r.Context(), code, uid)
	if err != nil {
		writeVersusError(w, err)
		return
	}
	if doc.Room.Status == room.StatusLobby && doc.Room.PlayerCount() == 2 {
		if started, err := s.coord.StartIfReady(r.Context(), code); err == nil {
			doc = started
		}
	}
	doc = s.ensureOpeningGuess(r.Context(), code, doc)
	log.Info().Str("code", code).Str("participant", uid).Str("status", string(doc.Room.Status)).Msg("room joined")
	writeSnapshot(w, doc, uid)
}

// -----------------------------------------------------------------------------
// GET /versus/rooms/{code}

// handleRoomSnapshot returns the caller's current view. It also commits the
// opening auto-guess opportunistically: whichever client observes a freshly
// started match first settles it, and the transaction makes the commit
// exactly-once.
func (s *Server) handleRoomSnapshot(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	uid := s.participantID(w, r)
	doc, err := s.coord.Store().Get(r.Context(), code)
	if err != nil {
		writeVersusError(w, err)
		return
	}
	doc = s.ensureOpeningGuess(r.Context(), code, doc)
	writeSnapshot(w, doc, uid)
}

// ensureOpeningGuess commits the opening auto-guess when the match is playing
// and it has not happened yet. Losing the race to the other client is fine;
// the fresher document wins either way.
func (s *Server) ensureOpeningGuess(ctx context.Context, code string, doc *room.Doc) *room.Doc {
	if doc.Room.Status != room.StatusPlaying || doc.Room.OpeningAutoGuessDone {
		return doc
	}
	if fresh, err := s.coord.CommitOpeningAutoGuess(ctx, code); err == nil {
		return fresh
	}
	return doc
}

// -----------------------------------------------------------------------------
// POST /versus/rooms/{code}/guess

// versusGuessReq is the request payload for /versus/rooms/{code}/guess.
type versusGuessReq struct {
	Name string `json:"name"`
}

// handleVersusGuess submits a guess. Off-turn and late submissions resolve as
// silent no-ops inside the transaction, so the response is simply the latest
// snapshot either way.
func (s *Server) handleVersusGuess(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	uid := s.participantID(w, r)
	var req versusGuessReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	doc, err := s.coord.SubmitGuess(r.Context(), code, uid, req.Name)
	if err != nil {
		writeVersusError(w, err)
		return
	}
	writeSnapshot(w, doc, uid)
}

// -----------------------------------------------------------------------------
// POST /versus/rooms/{code}/advance

// handleAdvance asks the coordinator to resolve an expired turn. Clients call
// this from their countdown timers; the transaction guarantees at most one
// caller takes effect per expiry.
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	uid := s.participantID(w, r)
	doc, err := s.coord.ForceAdvanceIfExpired(r.Context(), code, uid)
	if err != nil {
		writeVersusError(w, err)
		return
	}
	writeSnapshot(w, doc, uid)
}

// -----------------------------------------------------------------------------
// POST /versus/rooms/{code}/surrender

// handleSurrender concedes the match; the opponent wins immediately.
func (s *Server) handleSurrender(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	uid := s.participantID(w, r)
	doc, err := s.coord.Surrender(r.Context(), code, uid)
	if err != nil {
		writeVersusError(w, err)
		return
	}
	log.Info().Str("code", code).Str("participant", uid).Msg("surrender")
	writeSnapshot(w, doc, uid)
}

// -----------------------------------------------------------------------------
// GET /versus/rooms/{code}/ws

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == getEnv("CLIENT_ORIGIN", "http://localhost:5173")
	},
}

const wsWriteTimeout = 10 * time.Second

// handleRoomWS streams projected snapshots over a websocket. Delivery is
// at-least-once; clients deduplicate history rows by guess id. Closing the
// socket tears down the subscription and nothing else — the match keeps its
// state, and the participant cookie lets the client resubscribe later.
func (s *Server) handleRoomWS(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	uid := s.participantID(w, r)

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("code", code).Msg("ws upgrade")
		return
	}
	defer conn.Close()

	snaps, cancel, err := s.coord.Store().Watch(r.Context(), code)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown room"),
			time.Now().Add(wsWriteTimeout))
		return
	}
	defer cancel()

	// Read pump: we never expect client frames, but reading is what surfaces
	// the close handshake and connection drops.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case doc, ok := <-snaps:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(project(doc, uid, time.Now().UTC())); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
