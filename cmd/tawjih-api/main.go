package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hbouazizi/tawjih/store"
)

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	dbPath := flag.String("db", getEnv("TAWJIH_DB", "tawjih.db"), "Path to run bookkeeping database (TAWJIH_DB)")
	addr := flag.String("addr", getEnv("TAWJIH_API_ADDR", "localhost:8081"), "Listen address (TAWJIH_API_ADDR)")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	runStore, err := store.NewRunStore(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dbPath).Msg("Failed to open run store")
	}
	defer runStore.Close()

	server := store.NewRunAPIServer(runStore)
	router := server.SetupRouter()

	log.Info().Str("addr", *addr).Msg("Starting run API server")
	if err := router.Run(*addr); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
