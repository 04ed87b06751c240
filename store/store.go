// Package store persists harvest run bookkeeping in SQLite: one row per
// run plus per-id outcomes, so interrupted runs can be resumed and past
// runs inspected over the API.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrRunNotFound = errors.New("run not found")
)

// RunStore manages harvest run state using SQLite.
type RunStore struct {
	db *sql.DB
}

// Run represents one harvest run.
type Run struct {
	RunID       uuid.UUID  `json:"run_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	TotalIDs    int        `json:"total_ids"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	OutputJSON  *string    `json:"output_json,omitempty"`
	OutputCSV   *string    `json:"output_csv,omitempty"`
}

// IsComplete returns true if the run has finished.
func (r *Run) IsComplete() bool {
	return r.CompletedAt != nil
}

// Outcome represents the result of one id within a run.
type Outcome struct {
	RunID      uuid.UUID `json:"run_id"`
	InternalID string    `json:"internal_id"`
	Succeeded  bool      `json:"succeeded"`
	Error      *string   `json:"error,omitempty"`
	DoneAt     time.Time `json:"done_at"`
}

// NewRunStore creates a new run store with the given database path.
func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &RunStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the runs and outcomes tables if they don't exist.
func (s *RunStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		total_ids INTEGER NOT NULL,
		succeeded INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		output_json TEXT,
		output_csv TEXT
	);
	CREATE TABLE IF NOT EXISTS outcomes (
		run_id TEXT NOT NULL,
		internal_id TEXT NOT NULL,
		succeeded INTEGER NOT NULL,
		error TEXT,
		done_at TEXT NOT NULL,
		PRIMARY KEY (run_id, internal_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// CreateRun records the start of a new run.
func (s *RunStore) CreateRun(runID uuid.UUID, totalIDs int) (*Run, error) {
	now := time.Now()
	run := &Run{
		RunID:     runID,
		StartedAt: now,
		TotalIDs:  totalIDs,
	}

	query := `
		INSERT INTO runs (run_id, started_at, total_ids)
		VALUES (?, ?, ?)
	`
	_, err := s.db.Exec(query, run.RunID.String(), formatTime(&run.StartedAt), totalIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// RecordOutcome records the result for one id. Re-recording the same id
// within a run overwrites the previous outcome.
func (s *RunStore) RecordOutcome(runID uuid.UUID, internalID string, outcomeErr error) error {
	now := time.Now()
	succeeded := 1
	var errText *string
	if outcomeErr != nil {
		succeeded = 0
		msg := outcomeErr.Error()
		errText = &msg
	}

	query := `
		INSERT INTO outcomes (run_id, internal_id, succeeded, error, done_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id, internal_id) DO UPDATE SET
			succeeded = excluded.succeeded,
			error = excluded.error,
			done_at = excluded.done_at
	`
	_, err := s.db.Exec(query, runID.String(), internalID, succeeded, errText, formatTime(&now))
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with its final counts and output paths.
func (s *RunStore) CompleteRun(runID uuid.UUID, succeeded, failed int, outputJSON, outputCSV string) error {
	now := time.Now()

	query := `
		UPDATE runs
		SET completed_at = ?, succeeded = ?, failed = ?, output_json = ?, output_csv = ?
		WHERE run_id = ?
	`
	result, err := s.db.Exec(query, formatTime(&now), succeeded, failed, outputJSON, outputCSV, runID.String())
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(runID uuid.UUID) (*Run, error) {
	query := `
		SELECT run_id, started_at, completed_at, total_ids, succeeded, failed, output_json, output_csv
		FROM runs WHERE run_id = ?
	`
	row := s.db.QueryRow(query, runID.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs, most recent first.
func (s *RunStore) ListRuns() ([]Run, error) {
	query := `
		SELECT run_id, started_at, completed_at, total_ids, succeeded, failed, output_json, output_csv
		FROM runs ORDER BY started_at DESC
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// CompletedIDs returns the ids that already succeeded in the given run,
// for resuming an interrupted run without refetching.
func (s *RunStore) CompletedIDs(runID uuid.UUID) (map[string]bool, error) {
	query := `SELECT internal_id FROM outcomes WHERE run_id = ? AND succeeded = 1`
	rows, err := s.db.Query(query, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		done[id] = true
	}
	return done, rows.Err()
}

// ListFailures returns the failed outcomes of a run.
func (s *RunStore) ListFailures(runID uuid.UUID) ([]Outcome, error) {
	if _, err := s.GetRun(runID); err != nil {
		return nil, err
	}

	query := `
		SELECT run_id, internal_id, succeeded, error, done_at
		FROM outcomes WHERE run_id = ? AND succeeded = 0
		ORDER BY internal_id
	`
	rows, err := s.db.Query(query, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	failures := []Outcome{}
	for rows.Next() {
		var (
			out       Outcome
			idText    string
			succeeded int
			errText   sql.NullString
			doneAt    string
		)
		if err := rows.Scan(&idText, &out.InternalID, &succeeded, &errText, &doneAt); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		out.RunID, err = uuid.Parse(idText)
		if err != nil {
			return nil, fmt.Errorf("invalid run_id in outcomes: %w", err)
		}
		out.Succeeded = succeeded == 1
		if errText.Valid {
			out.Error = &errText.String
		}
		out.DoneAt = parseTime(doneAt)
		failures = append(failures, out)
	}
	return failures, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for scanRun.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run         Run
		idText      string
		startedAt   string
		completedAt sql.NullString
		outputJSON  sql.NullString
		outputCSV   sql.NullString
	)
	err := row.Scan(&idText, &startedAt, &completedAt, &run.TotalIDs, &run.Succeeded, &run.Failed, &outputJSON, &outputCSV)
	if err != nil {
		return nil, err
	}

	run.RunID, err = uuid.Parse(idText)
	if err != nil {
		return nil, fmt.Errorf("invalid run_id: %w", err)
	}
	run.StartedAt = parseTime(startedAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		run.CompletedAt = &t
	}
	if outputJSON.Valid {
		run.OutputJSON = &outputJSON.String
	}
	if outputCSV.Valid {
		run.OutputCSV = &outputCSV.String
	}
	return &run, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Strip monotonic clock for consistent storage and comparisons
	return t.Truncate(0).Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	// Try RFC3339Nano first, fall back to RFC3339 for compatibility
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	// Strip monotonic clock for consistent comparisons
	return t.Truncate(0)
}
