package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ymd/internal/models"
	"github.com/desertthunder/ymd/internal/shared"
)

// DefaultListLimit caps [RunRepository.List] when no limit is given.
const DefaultListLimit = 20

// RunRepository stores [models.SyncRun] history.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts run and its failures in one transaction. A missing ID is generated.
func (r *RunRepository) Create(run *models.SyncRun) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	var finishedAt sql.NullTime
	if run.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}

	return withTx(r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO sync_runs (id, kind, download_dir, started_at, finished_at, total, downloaded, skipped, failed, removed, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := tx.Exec(query,
			run.ID,
			run.Kind,
			run.DownloadDir,
			run.StartedAt,
			finishedAt,
			run.Total,
			run.Downloaded,
			run.Skipped,
			run.Failed,
			run.Removed,
			run.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		for _, f := range run.Failures {
			_, err := tx.Exec(
				`INSERT OR REPLACE INTO run_failures (run_id, item_id, title, reason) VALUES (?, ?, ?, ?)`,
				run.ID, f.ItemID, f.Title, f.Reason,
			)
			if err != nil {
				return fmt.Errorf("failed to insert failure for %s: %w", f.ItemID, err)
			}
		}
		return nil
	})
}

// Get retrieves a run by ID including its failures.
func (r *RunRepository) Get(id string) (*models.SyncRun, error) {
	query := `
		SELECT id, kind, download_dir, started_at, finished_at, total, downloaded, skipped, failed, removed, error
		FROM sync_runs
		WHERE id = ?
	`

	run, err := scanRun(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	failures, err := r.failures(id)
	if err != nil {
		return nil, err
	}
	run.Failures = failures
	return run, nil
}

// List returns the most recent runs, newest first. Failures are not loaded.
func (r *RunRepository) List(limit int) ([]*models.SyncRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, kind, download_dir, started_at, finished_at, total, downloaded, skipped, failed, removed, error
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Delete removes a run and, through the foreign key, its failures.
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sync_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return nil
}

func (r *RunRepository) failures(runID string) ([]models.RunFailure, error) {
	rows, err := r.db.Query(`SELECT item_id, title, reason FROM run_failures WHERE run_id = ? ORDER BY item_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var failures []models.RunFailure
	for rows.Next() {
		var f models.RunFailure
		if err := rows.Scan(&f.ItemID, &f.Title, &f.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return failures, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun reads one sync_runs row from either [sql.Row] or [sql.Rows].
func scanRun(s scanner) (*models.SyncRun, error) {
	var (
		run        models.SyncRun
		startedAt  time.Time
		finishedAt sql.NullTime
	)

	err := s.Scan(
		&run.ID,
		&run.Kind,
		&run.DownloadDir,
		&startedAt,
		&finishedAt,
		&run.Total,
		&run.Downloaded,
		&run.Skipped,
		&run.Failed,
		&run.Removed,
		&run.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.StartedAt = startedAt
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}
