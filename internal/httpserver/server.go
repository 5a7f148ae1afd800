// internal/httpserver/server.go
//
// HTTP server wiring for the monster-guessing backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/debug/dex".
//   - Solo game endpoints: POST /game/new, POST /game/guess.
//   - Versus (two-player) endpoints: mounted under /versus.
//   - Anonymous participant identity via JWT cookie (see auth.go).
//
// Notes:
//   - CORS is origin‑aware and credentials‑enabled (so cookies work).
//   - There are no accounts; every caller gets a stable participant id on
//     first contact and keeps it across reconnects via the cookie.

package httpserver

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/monguess/go-server/internal/dex"
	"github.com/monguess/go-server/internal/game"
	"github.com/monguess/go-server/internal/store"
	"github.com/monguess/go-server/internal/versus"
)

// Server bundles router, in-memory solo game store, and the versus coordinator.
type Server struct {
	r     *chi.Mux
	store store.Store
	coord *versus.Coordinator
}

// New constructs a Server, installs middleware, and registers routes.
func New(st store.Store, coord *versus.Coordinator) *Server {
	s := &Server{r: chi.NewRouter(), store: st, coord: coord}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                 // add X-Request-ID
	s.r.Use(chimw.RealIP)                    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer)                 // recover from panics
	s.r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
	s.r.Use(jsonContentType)                 // default JSON responses
	s.r.Use(corsFromEnv)                     // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"monguess-go","endpoints":["/health","POST /game/new","POST /game/guess","/versus/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	// Solo game endpoints
	s.r.Post("/game/new", s.handleNewGame)
	s.r.Post("/game/guess", s.handleGuess)

	// Versus rooms
	s.mountVersus(s.r)

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	// Debug: dex size + names
	s.r.Get("/debug/dex", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"count": dex.Count(), "names": dex.Names()})
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFromEnv enables credentialed CORS for a single origin.
// Uses CLIENT_ORIGIN env var; defaults to http://localhost:5173.
func corsFromEnv(next http.Handler) http.Handler {
	origin := os.Getenv("CLIENT_ORIGIN")
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------ SOLO GAME ----------------------------------

// newGameReq/Res payloads for POST /game/new.
type newGameReq struct {
	Mode string `json:"mode"` // "classic" (default) | "random"
}
type newGameRes struct {
	GameID       string         `json:"gameId"`
	Mode         game.Mode      `json:"mode"`
	MaxAttempts  int            `json:"maxAttempts"`
	AttemptsLeft int            `json:"attemptsLeft"`
	Attempts     []game.Attempt `json:"attempts"` // non-empty for random starts
}

// handleNewGame creates a new in-memory solo game.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	_ = json.NewDecoder(r.Body).Decode(&req)

	mode := game.ModeClassic
	if game.Mode(req.Mode) == game.ModeRandomStart {
		mode = game.ModeRandomStart
	}
	g := game.New(mode)
	if err := s.store.Save(r.Context(), g); err != nil {
		log.Error().Err(err).Msg("save game")
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(newGameRes{
		GameID:       g.ID,
		Mode:         g.Mode,
		MaxAttempts:  g.MaxAttempts,
		AttemptsLeft: g.AttemptsLeft(),
		Attempts:     g.Attempts,
	})
}

// guessReq/Res payloads for POST /game/guess.
type guessReq struct {
	GameID string `json:"gameId"`
	Guess  string `json:"guess"`
}
type guessRes struct {
	Attempt      *game.Attempt `json:"attempt"`
	State        string        `json:"state"` // "playing" | "won" | "lost"
	AttemptsLeft int           `json:"attemptsLeft"`
	Reveal       *dex.Monster  `json:"reveal,omitempty"` // target, once finished
}

// handleGuess applies a guess to an in-memory solo game.
func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	g, err := s.store.Get(r.Context(), req.GameID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	at, state, err := g.ApplyGuess(req.Guess)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}
	if err := s.store.Save(r.Context(), g); err != nil {
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return
	}

	res := guessRes{Attempt: at, State: state, AttemptsLeft: g.AttemptsLeft()}
	if g.Finished {
		if tgt, ok := dex.ByID(g.TargetID); ok {
			res.Reveal = &tgt
		}
	}
	_ = json.NewEncoder(w).Encode(res)
}

// ------------------------------- small util --------------------------------

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
