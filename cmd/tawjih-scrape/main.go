package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hbouazizi/tawjih/config"
	"github.com/hbouazizi/tawjih/dataset"
	"github.com/hbouazizi/tawjih/harvest"
	"github.com/hbouazizi/tawjih/record"
	"github.com/hbouazizi/tawjih/refdata"
	"github.com/hbouazizi/tawjih/scrape"
	"github.com/hbouazizi/tawjih/seeds"
	"github.com/hbouazizi/tawjih/store"
)

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// progressRecorder persists per-id outcomes as the run proceeds.
type progressRecorder struct {
	store *store.RunStore
	runID uuid.UUID
}

func (p *progressRecorder) MarkDone(internalID string, err error) {
	if recordErr := p.store.RecordOutcome(p.runID, internalID, err); recordErr != nil {
		log.Warn().Str("internal_id", internalID).Err(recordErr).Msg("Failed to record outcome")
	}
}

func main() {
	configPath := flag.String("config", getEnv("TAWJIH_CONFIG", ""), "Path to YAML config file (TAWJIH_CONFIG)")
	seedsPath := flag.String("seeds", getEnv("TAWJIH_SEEDS", ""), "Path to seed id CSV, overrides config (TAWJIH_SEEDS)")
	codesPath := flag.String("codes", getEnv("TAWJIH_CODES", ""), "Path to seven-percent exclusion CSV, overrides config (TAWJIH_CODES)")
	baseURL := flag.String("base-url", getEnv("TAWJIH_BASE_URL", ""), "Guide site base URL, overrides config (TAWJIH_BASE_URL)")
	outputDir := flag.String("output", getEnv("TAWJIH_OUTPUT", ""), "Output directory, overrides config (TAWJIH_OUTPUT)")
	dbPath := flag.String("db", getEnv("TAWJIH_DB", ""), "Path to run bookkeeping database, overrides config (TAWJIH_DB)")
	resumeID := flag.String("resume", "", "Run id to resume: skips ids that already succeeded in that run")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *seedsPath != "" {
		cfg.SeedsPath = *seedsPath
	}
	if *codesPath != "" {
		cfg.CodesPath = *codesPath
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	harvestCfg, err := cfg.HarvestConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid harvest settings")
	}

	seedList, err := seeds.Load(cfg.SeedsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SeedsPath).Msg("Failed to load seed ids")
	}

	// A missing exclusion list degrades to every record being eligible.
	var ref *refdata.ExclusionList
	if _, statErr := os.Stat(cfg.CodesPath); statErr == nil {
		ref, err = refdata.Load(cfg.CodesPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.CodesPath).Msg("Failed to load exclusion list")
		}
	} else {
		log.Warn().Str("path", cfg.CodesPath).Msg("Exclusion list not found; all records treated as eligible")
	}

	runStore, err := store.NewRunStore(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open run store")
	}
	defer runStore.Close()

	// Resuming reuses the previous run's id and skips its successes.
	runID := uuid.New()
	if *resumeID != "" {
		runID, err = uuid.Parse(*resumeID)
		if err != nil {
			log.Fatal().Str("run_id", *resumeID).Msg("Invalid resume run id")
		}
		done, err := runStore.CompletedIDs(runID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load completed ids")
		}
		remaining := seedList[:0]
		for _, seed := range seedList {
			if !done[seed.InternalID] {
				remaining = append(remaining, seed)
			}
		}
		log.Info().
			Str("run_id", runID.String()).
			Int("completed", len(done)).
			Int("remaining", len(remaining)).
			Msg("Resuming run")
		seedList = remaining
	} else {
		if _, err := runStore.CreateRun(runID, len(seedList)); err != nil {
			log.Fatal().Err(err).Msg("Failed to create run")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully")
		cancel()
	}()

	fetcher := scrape.NewFetcher(cfg.BaseURL, harvestCfg.FetchTimeout)
	harvester := harvest.New(fetcher, ref, harvestCfg)
	sink := &progressRecorder{store: runStore, runID: runID}

	result, err := harvester.RunWithID(ctx, runID, seedList, sink)
	if err != nil {
		log.Fatal().Err(err).Msg("Harvest run failed")
	}

	records := result.Records
	if *resumeID != "" {
		records = mergeExisting(cfg.OutputDir, cfg.OutputBase, records)
	}

	jsonPath, csvPath, err := dataset.WriteAll(cfg.OutputDir, cfg.OutputBase, records)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to write datasets")
	}

	if err := runStore.CompleteRun(runID, len(records), len(result.Failures), jsonPath, csvPath); err != nil {
		log.Warn().Err(err).Msg("Failed to mark run complete")
	}

	for _, failure := range result.Failures {
		log.Warn().Str("internal_id", failure.InternalID).Err(failure.Err).Msg("Id failed permanently")
	}
	log.Info().
		Str("run_id", runID.String()).
		Int("records", len(records)).
		Int("failures", len(result.Failures)).
		Str("json", jsonPath).
		Str("csv", csvPath).
		Msg("Done")

	if len(records) == 0 && len(result.Failures) > 0 {
		os.Exit(1)
	}
}

// mergeExisting folds a previous partial dataset into the new records,
// letting the fresh scrape win on conflicts.
func mergeExisting(dir, base string, records []record.Specialization) []record.Specialization {
	jsonPath := filepath.Join(dir, base+".json")
	existing, err := dataset.ReadJSON(jsonPath)
	if err != nil {
		log.Debug().Err(err).Str("path", jsonPath).Msg("No previous dataset to merge")
		return records
	}

	byCode := make(map[string]record.Specialization, len(existing)+len(records))
	for _, rec := range existing {
		byCode[rec.Code] = rec
	}
	for _, rec := range records {
		byCode[rec.Code] = rec
	}

	merged := make([]record.Specialization, 0, len(byCode))
	for _, rec := range byCode {
		merged = append(merged, rec)
	}
	log.Info().
		Int("previous", len(existing)).
		Int("new", len(records)).
		Int("merged", len(merged)).
		Msg("Merged previous dataset")
	return merged
}
