package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rakudev/auction-seller-scraper/internal/models"
)

const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// Run is one scraping job: a date window, a price floor, and its lifecycle.
type Run struct {
	ID          string     `json:"id"`
	StartDate   string     `json:"start_date"`
	EndDate     string     `json:"end_date"`
	MinPrice    int        `json:"min_price"`
	Status      string     `json:"status"`
	SellerCount int        `json:"seller_count"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunSeller is one classified seller attached to a run.
type RunSeller struct {
	RunID          string `json:"run_id"`
	Name           string `json:"seller_name"`
	URL            string `json:"seller_url"`
	TotalPrice     int    `json:"total_price"`
	Classification string `json:"classification"`
}

// CreateRun inserts a pending run.
func (db *DB) CreateRun(ctx context.Context, run *Run) error {
	_, err := db.Exec(ctx, `
		INSERT INTO runs (id, start_date, end_date, min_price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		run.ID, run.StartDate, run.EndDate, run.MinPrice, RunStatusPending)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// ClaimPendingRun atomically picks the oldest pending run and marks it
// running. Returns nil when nothing is pending.
func (db *DB) ClaimPendingRun(ctx context.Context) (*Run, error) {
	var run Run
	err := db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT id, start_date, end_date, min_price, status, created_at
			FROM runs
			WHERE status = $1
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED`,
			RunStatusPending)

		if err := row.Scan(&run.ID, &run.StartDate, &run.EndDate, &run.MinPrice, &run.Status, &run.CreatedAt); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			UPDATE runs SET status = $1, started_at = NOW() WHERE id = $2`,
			RunStatusRunning, run.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim run: %w", err)
	}

	run.Status = RunStatusRunning
	return &run, nil
}

// UpdateRunStatus transitions a run and records a terminal timestamp and
// optional error message.
func (db *DB) UpdateRunStatus(ctx context.Context, runID, status, errMsg string) error {
	var err error
	switch status {
	case RunStatusCompleted, RunStatusFailed:
		_, err = db.Exec(ctx, `
			UPDATE runs SET status = $1, error = $2, completed_at = NOW() WHERE id = $3`,
			status, errMsg, runID)
	default:
		_, err = db.Exec(ctx, `
			UPDATE runs SET status = $1, error = $2 WHERE id = $3`,
			status, errMsg, runID)
	}
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// InsertRunSellers stores a run's classified sellers and its seller count
// in one transaction.
func (db *DB) InsertRunSellers(ctx context.Context, runID string, sellers []models.Seller) error {
	err := db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, s := range sellers {
			if _, err := tx.Exec(ctx, `
				INSERT INTO run_sellers (run_id, seller_name, seller_url, total_price, classification)
				VALUES ($1, $2, $3, $4, $5)`,
				runID, s.Name, s.URL, s.TotalPrice, s.Classification.String()); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `UPDATE runs SET seller_count = $1 WHERE id = $2`,
			len(sellers), runID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert run sellers: %w", err)
	}
	return nil
}

// GetRun fetches one run by id.
func (db *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	var errMsg *string
	err := db.QueryRow(ctx, `
		SELECT id, start_date, end_date, min_price, status, seller_count, error,
		       created_at, started_at, completed_at
		FROM runs WHERE id = $1`,
		runID).Scan(&run.ID, &run.StartDate, &run.EndDate, &run.MinPrice, &run.Status,
		&run.SellerCount, &errMsg, &run.CreatedAt, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if errMsg != nil {
		run.Error = *errMsg
	}
	return &run, nil
}

// ListRuns returns recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(ctx, `
		SELECT id, start_date, end_date, min_price, status, seller_count, error,
		       created_at, started_at, completed_at
		FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var errMsg *string
		if err := rows.Scan(&run.ID, &run.StartDate, &run.EndDate, &run.MinPrice, &run.Status,
			&run.SellerCount, &errMsg, &run.CreatedAt, &run.StartedAt, &run.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if errMsg != nil {
			run.Error = *errMsg
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRunSellers returns the classified sellers of a run.
func (db *DB) GetRunSellers(ctx context.Context, runID string) ([]RunSeller, error) {
	rows, err := db.Query(ctx, `
		SELECT run_id, seller_name, seller_url, total_price, classification
		FROM run_sellers WHERE run_id = $1 ORDER BY total_price DESC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run sellers: %w", err)
	}
	defer rows.Close()

	var sellers []RunSeller
	for rows.Next() {
		var s RunSeller
		if err := rows.Scan(&s.RunID, &s.Name, &s.URL, &s.TotalPrice, &s.Classification); err != nil {
			return nil, fmt.Errorf("failed to scan run seller: %w", err)
		}
		sellers = append(sellers, s)
	}
	return sellers, rows.Err()
}

// RunStats returns run counts grouped by status.
func (db *DB) RunStats(ctx context.Context) (map[string]int64, error) {
	rows, err := db.Query(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to get run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
