package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rakudev/auction-seller-scraper/internal/database"
	"github.com/rakudev/auction-seller-scraper/internal/events"
	"github.com/rakudev/auction-seller-scraper/internal/runner"
	"github.com/rakudev/auction-seller-scraper/internal/scraper"
)

const workerInterval = 10 * time.Second

// Manager owns the run queue: it accepts run requests, and its worker
// claims pending runs one at a time and executes them. Scrape runs hold a
// real browser session, so the worker never runs two jobs concurrently.
type Manager struct {
	db        *database.DB
	runner    *runner.Runner
	publisher *events.Publisher
	logger    *slog.Logger
}

func NewManager(db *database.DB, r *runner.Runner, publisher *events.Publisher) *Manager {
	return &Manager{
		db:        db,
		runner:    r,
		publisher: publisher,
		logger:    slog.Default().With("component", "jobs"),
	}
}

// CreateRun validates the parameters and queues a pending run.
func (m *Manager) CreateRun(ctx context.Context, startDate, endDate string, minPrice int) (*database.Run, error) {
	if err := scraper.ValidateDateRange(startDate, endDate); err != nil {
		return nil, err
	}
	if err := scraper.ValidateMinPrice(minPrice); err != nil {
		return nil, err
	}

	run := &database.Run{
		ID:        uuid.New().String(),
		StartDate: startDate,
		EndDate:   endDate,
		MinPrice:  minPrice,
		Status:    database.RunStatusPending,
	}
	if err := m.db.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	m.logger.Info("run queued", "run_id", run.ID, "start", startDate, "end", endDate, "min_price", minPrice)
	return run, nil
}

func (m *Manager) GetRun(ctx context.Context, runID string) (*database.Run, error) {
	return m.db.GetRun(ctx, runID)
}

func (m *Manager) ListRuns(ctx context.Context, limit int) ([]database.Run, error) {
	return m.db.ListRuns(ctx, limit)
}

func (m *Manager) GetRunSellers(ctx context.Context, runID string) ([]database.RunSeller, error) {
	if _, err := m.db.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return m.db.GetRunSellers(ctx, runID)
}

func (m *Manager) Stats(ctx context.Context) (map[string]int64, error) {
	return m.db.RunStats(ctx)
}

// StartWorker polls for pending runs until the context is cancelled.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("worker started", "interval", workerInterval)

	ticker := time.NewTicker(workerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("worker stopped")
			return
		case <-ticker.C:
			if err := m.processNextRun(ctx); err != nil {
				m.logger.Error("run processing failed", "error", err)
			}
		}
	}
}

func (m *Manager) processNextRun(ctx context.Context) error {
	run, err := m.db.ClaimPendingRun(ctx)
	if err != nil {
		return err
	}
	if run == nil {
		return nil
	}

	m.logger.Info("run claimed", "run_id", run.ID)

	result, err := m.runner.Run(ctx, runner.Params{
		StartDate: run.StartDate,
		EndDate:   run.EndDate,
		MinPrice:  run.MinPrice,
	})
	if err != nil {
		m.logger.Error("run failed", "run_id", run.ID, "error", err)
		return m.db.UpdateRunStatus(ctx, run.ID, database.RunStatusFailed, err.Error())
	}

	if err := m.db.InsertRunSellers(ctx, run.ID, result.Sellers); err != nil {
		m.logger.Error("failed to persist run sellers", "run_id", run.ID, "error", err)
		return m.db.UpdateRunStatus(ctx, run.ID, database.RunStatusFailed, err.Error())
	}

	for _, seller := range result.Sellers {
		if err := m.publisher.PublishSellerClassified(ctx, run.ID, seller); err != nil {
			m.logger.Warn("failed to publish seller event", "run_id", run.ID, "seller", seller.Name, "error", err)
		}
	}

	m.logger.Info("run completed", "run_id", run.ID, "sellers", len(result.Sellers), "elapsed", result.Elapsed)
	return m.db.UpdateRunStatus(ctx, run.ID, database.RunStatusCompleted, "")
}
