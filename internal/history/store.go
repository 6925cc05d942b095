package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"studypair/internal/joblog"
	"studypair/internal/matching"
	"studypair/internal/services"
)

// Store manages the ledger database.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the ledger at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, services.Wrap(services.ErrConfiguration, "history", "open", "ledger path required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the ledger file.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun inserts run in the running state. StartedAt defaults to now.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return services.Wrap(services.ErrValidation, "history", "begin run", "run id required", nil)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	inputs := run.Inputs
	if inputs == nil {
		inputs = []string{}
	}
	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (
            id, started_at, status, inputs_json, rule_file, workflow, record_count, pair_count
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		formatTime(run.StartedAt),
		string(RunRunning),
		string(inputsJSON),
		nullableString(run.RuleFile),
		nullableString(run.Workflow),
		run.RecordCount,
		run.PairCount,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// SetCounts records how many records were scanned and pairs matched.
func (s *Store) SetCounts(ctx context.Context, runID string, records, pairs int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET record_count = ?, pair_count = ? WHERE id = ?`,
		records, pairs, runID,
	)
	if err != nil {
		return fmt.Errorf("update run counts: %w", err)
	}
	return requireRow(res, runID)
}

// RecordDecision appends one dispatcher decision.
func (s *Store) RecordDecision(ctx context.Context, runID string, index int, pair matching.Pair, status joblog.Status) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (
            run_id, pair_index, status, patient_name, patient_id, accession_number, study_uid,
            primary_series_uid, secondary_series_uid, primary_folder, secondary_folder, decided_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		index,
		string(status),
		nullableString(pair.PatientName),
		nullableString(pair.PatientID),
		nullableString(pair.AccessionNumber),
		nullableString(pair.StudyUID),
		nullableString(pair.PrimarySeriesUID),
		nullableString(pair.SecondarySeriesUID),
		nullableString(pair.PrimaryFilesFolder),
		nullableString(pair.SecondaryFilesFolder),
		formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// FinishRun closes a run with its outcome.
func (s *Store) FinishRun(ctx context.Context, runID string, outcome Outcome) error {
	var kind, message any
	if outcome.Err != nil {
		kind = services.Kind(outcome.Err)
		message = outcome.Err.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, processed = ?, skipped = ?, error_kind = ?, error_message = ?
         WHERE id = ?`,
		formatTime(s.now()),
		string(outcome.Status),
		outcome.Processed,
		outcome.Skipped,
		kind,
		message,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return requireRow(res, runID)
}

const runColumns = "id, started_at, finished_at, status, inputs_json, rule_file, workflow, record_count, pair_count, processed, skipped, error_kind, error_message"

// GetRun fetches a run by identifier, returning nil when absent.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Decisions returns a run's decisions in dispatch order.
func (s *Store) Decisions(ctx context.Context, runID string) ([]Decision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, pair_index, status, patient_name, patient_id, accession_number, study_uid,
                primary_series_uid, secondary_series_uid, primary_folder, secondary_folder, decided_at
         FROM decisions WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []Decision
	for rows.Next() {
		decision, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		decisions = append(decisions, decision)
	}
	return decisions, rows.Err()
}

// FindStudy returns every decision recorded for studyUID, newest first.
func (s *Store) FindStudy(ctx context.Context, studyUID string) ([]Decision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, pair_index, status, patient_name, patient_id, accession_number, study_uid,
                primary_series_uid, secondary_series_uid, primary_folder, secondary_folder, decided_at
         FROM decisions WHERE study_uid = ? ORDER BY id DESC`,
		studyUID,
	)
	if err != nil {
		return nil, fmt.Errorf("find study: %w", err)
	}
	defer rows.Close()

	var decisions []Decision
	for rows.Next() {
		decision, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		decisions = append(decisions, decision)
	}
	return decisions, rows.Err()
}
