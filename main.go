package main

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/monguess/go-server/internal/dex"
	"github.com/monguess/go-server/internal/httpserver"
	"github.com/monguess/go-server/internal/roomstore"
	"github.com/monguess/go-server/internal/store"
	"github.com/monguess/go-server/internal/versus"
)

func main() {
	_ = godotenv.Load()
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := dex.Init(); err != nil {
		log.Fatal().Err(err).Msg("failed to load dex")
	}

	rooms, err := openRoomStore()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open room store")
	}
	defer rooms.Close()

	srv := httpserver.New(store.NewMemoryStore(), versus.New(rooms))
	port := getEnv("PORT", "5175")
	log.Info().Str("port", port).Str("store", getEnv("STORE", "memory")).Msg("starting go-server")
	if err := srv.Start(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

// openRoomStore selects the room document store backend from STORE:
// "memory" (default), "sqlite" (SQLITE_DSN), or "redis" (REDIS_ADDR,
// REDIS_PASSWORD, REDIS_DB).
func openRoomStore() (roomstore.Store, error) {
	switch getEnv("STORE", "memory") {
	case "sqlite":
		return roomstore.NewSQLite(getEnv("SQLITE_DSN", "./data/rooms.db"))
	case "redis":
		db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
		return roomstore.NewRedis(getEnv("REDIS_ADDR", "localhost:6379"), os.Getenv("REDIS_PASSWORD"), db)
	default:
		return roomstore.NewMemory(), nil
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
