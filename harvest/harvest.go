// Package harvest drives the scraping pipeline over a seed list with a
// bounded worker pool and collects the aggregate record set.
package harvest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hbouazizi/tawjih/record"
	"github.com/hbouazizi/tawjih/refdata"
	"github.com/hbouazizi/tawjih/scrape"
	"github.com/hbouazizi/tawjih/seeds"
)

// Config holds the worker pool's externally supplied settings.
type Config struct {
	// Number of parallel workers. Total request rate is bounded by
	// Workers divided by Delay.
	Workers int
	// Politeness delay applied by each worker between successive requests.
	Delay time.Duration
	// Hard timeout per network call.
	FetchTimeout time.Duration
	// Attempts per id before the failure becomes permanent.
	MaxAttempts int
	// Base backoff between attempts, doubled each retry.
	RetryDelay time.Duration
}

// DefaultConfig returns the defaults used by the scrape binary.
func DefaultConfig() *Config {
	return &Config{
		Workers:      5,
		Delay:        500 * time.Millisecond,
		FetchTimeout: 15 * time.Second,
		MaxAttempts:  3,
		RetryDelay:   2 * time.Second,
	}
}

// Failure records an id that permanently failed after all attempts.
type Failure struct {
	InternalID string
	Err        error
}

// Result is the aggregate outcome of one run. Records are deduplicated by
// code (last write wins) and carry no ordering guarantee.
type Result struct {
	RunID    uuid.UUID
	Records  []record.Specialization
	Failures []Failure
	Duration time.Duration
}

// ProgressSink receives per-id outcomes as they are collected. err is nil
// for successes. Calls arrive from a single goroutine.
type ProgressSink interface {
	MarkDone(internalID string, err error)
}

// Harvester runs the fetch/extract/normalize/assemble pipeline.
type Harvester struct {
	fetcher *scrape.Fetcher
	ref     *refdata.ExclusionList
	config  *Config
}

// New creates a harvester. ref may be nil, in which case every record is
// treated as seven-percent eligible.
func New(fetcher *scrape.Fetcher, ref *refdata.ExclusionList, config *Config) *Harvester {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Harvester{fetcher: fetcher, ref: ref, config: config}
}

// outcome travels from workers to the collector.
type outcome struct {
	internalID string
	rec        record.Specialization
	err        error
}

// Run processes every seed under a fresh run id. See RunWithID.
func (h *Harvester) Run(ctx context.Context, seedList []seeds.Seed, sink ProgressSink) (*Result, error) {
	return h.RunWithID(ctx, uuid.New(), seedList, sink)
}

// RunWithID processes every seed and returns the aggregate result. Per-id
// failures never abort the run; it errors only when the context is
// cancelled before anything was collected. sink may be nil.
func (h *Harvester) RunWithID(ctx context.Context, runID uuid.UUID, seedList []seeds.Seed, sink ProgressSink) (*Result, error) {
	start := time.Now()

	log.Info().
		Str("run_id", runID.String()).
		Int("seeds", len(seedList)).
		Int("workers", h.config.Workers).
		Dur("delay", h.config.Delay).
		Msg("Starting harvest run")

	jobs := make(chan seeds.Seed)
	results := make(chan outcome, h.config.Workers)

	done := make(chan struct{})
	active := h.config.Workers
	workerDone := make(chan struct{}, h.config.Workers)
	for i := 0; i < h.config.Workers; i++ {
		go h.worker(ctx, i, jobs, results, workerDone)
	}

	// Feed jobs; stop feeding on cancellation so workers can drain.
	go func() {
		defer close(jobs)
		for _, seed := range seedList {
			select {
			case jobs <- seed:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close results once every worker has exited.
	go func() {
		for range workerDone {
			active--
			if active == 0 {
				close(results)
				close(done)
				return
			}
		}
	}()

	// Single collector owns the aggregate: dedup by code, last write wins.
	byCode := make(map[string]record.Specialization)
	var failures []Failure
	for out := range results {
		if out.err != nil {
			failures = append(failures, Failure{InternalID: out.internalID, Err: out.err})
			log.Warn().
				Str("internal_id", out.internalID).
				Err(out.err).
				Msg("Permanent failure")
		} else {
			byCode[out.rec.Code] = out.rec
		}
		if sink != nil {
			sink.MarkDone(out.internalID, out.err)
		}
	}
	<-done

	if ctx.Err() != nil && len(byCode) == 0 {
		return nil, ctx.Err()
	}

	records := make([]record.Specialization, 0, len(byCode))
	for _, rec := range byCode {
		records = append(records, rec)
	}

	result := &Result{
		RunID:    runID,
		Records:  records,
		Failures: failures,
		Duration: time.Since(start),
	}

	log.Info().
		Str("run_id", runID.String()).
		Int("records", len(records)).
		Int("failures", len(failures)).
		Dur("duration", result.Duration).
		Msg("Harvest run complete")

	return result, nil
}

// worker pulls seeds off the job channel and pushes outcomes.
func (h *Harvester) worker(ctx context.Context, id int, jobs <-chan seeds.Seed, results chan<- outcome, workerDone chan<- struct{}) {
	defer func() { workerDone <- struct{}{} }()

	log.Debug().Int("worker", id).Msg("Worker starting")
	for seed := range jobs {
		rec, err := h.processSeed(ctx, seed)
		select {
		case results <- outcome{internalID: seed.InternalID, rec: rec, err: err}:
		case <-ctx.Done():
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// processSeed runs the pipeline for one id with bounded retries and
// multiplicative backoff. Non-retryable errors short-circuit.
func (h *Harvester) processSeed(ctx context.Context, seed seeds.Seed) (record.Specialization, error) {
	var lastErr error
	backoff := h.config.RetryDelay

	for attempt := 1; attempt <= h.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			log.Debug().
				Str("internal_id", seed.InternalID).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying")
			if err := sleep(ctx, backoff); err != nil {
				return record.Specialization{}, lastErr
			}
			backoff *= 2
		}

		rec, err := h.scrapeOne(ctx, seed)
		if err == nil {
			return rec, nil
		}
		lastErr = err
		if !scrape.Retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return record.Specialization{}, lastErr
}

// scrapeOne performs one full pipeline pass: detail page, field
// extraction, score normalization, assembly.
func (h *Harvester) scrapeOne(ctx context.Context, seed seeds.Seed) (record.Specialization, error) {
	if err := sleep(ctx, h.config.Delay); err != nil {
		return record.Specialization{}, &scrape.RequestError{URL: h.fetcher.DetailURL(seed.InternalID), Err: err}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, h.config.FetchTimeout)
	doc, err := h.fetcher.FetchDetail(fetchCtx, seed.InternalID)
	cancel()
	if err != nil {
		return record.Specialization{}, err
	}

	fields, err := scrape.ExtractFields(doc)
	if err != nil {
		return record.Specialization{}, err
	}

	// A failed or empty scores endpoint degrades to the page's own chart
	// data, then to the sentinel series; it never fails the record.
	scores := h.fetchScores(ctx, seed.InternalID)
	if !scrape.HasScores(scores) {
		if fallback := scrape.ScriptScores(doc); scrape.HasScores(fallback) {
			scores = fallback
		}
	}

	return scrape.Assemble(scrape.AssembleInput{
		InternalID:   seed.InternalID,
		UniversityID: seed.UniversityID,
		SourceURL:    h.fetcher.DetailURL(seed.InternalID),
		Fields:       fields,
		Scores:       scores,
	}, h.ref)
}

// fetchScores retrieves and normalizes the score series, degrading to the
// sentinel series on failure.
func (h *Harvester) fetchScores(ctx context.Context, internalID string) map[int]float64 {
	if err := sleep(ctx, h.config.Delay); err != nil {
		return record.EmptyScoreSeries()
	}

	fetchCtx, cancel := context.WithTimeout(ctx, h.config.FetchTimeout)
	defer cancel()

	raw, err := h.fetcher.FetchScores(fetchCtx, internalID)
	if err != nil {
		log.Debug().Str("internal_id", internalID).Err(err).Msg("Scores endpoint failed")
		return record.EmptyScoreSeries()
	}
	return scrape.ParseScores(raw)
}

// sleep waits for d unless the context ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
