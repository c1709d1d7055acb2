package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rakudev/auction-seller-scraper/internal/config"
	"github.com/rakudev/auction-seller-scraper/internal/database"
	"github.com/rakudev/auction-seller-scraper/internal/scraper"
)

// RunService is the job-queue surface the handlers need, implemented by
// jobs.Manager.
type RunService interface {
	CreateRun(ctx context.Context, startDate, endDate string, minPrice int) (*database.Run, error)
	GetRun(ctx context.Context, runID string) (*database.Run, error)
	ListRuns(ctx context.Context, limit int) ([]database.Run, error)
	GetRunSellers(ctx context.Context, runID string) ([]database.RunSeller, error)
	Stats(ctx context.Context) (map[string]int64, error)
}

type Handlers struct {
	runs   RunService
	logger *slog.Logger
}

func NewHandlers(runs RunService) *Handlers {
	return &Handlers{
		runs:   runs,
		logger: slog.Default().With("component", "api"),
	}
}

type createRunRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	MinPrice  int    `json:"min_price"`
}

// CreateRun queues a new scrape run.
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.MinPrice == 0 {
		req.MinPrice = config.DefaultMinSellerPrice
	}

	run, err := h.runs.CreateRun(r.Context(), req.StartDate, req.EndDate, req.MinPrice)
	if err != nil {
		var vErr *scraper.ValidationError
		if errors.As(err, &vErr) {
			respondError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		h.logger.Error("failed to create run", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create run")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"run_id":  run.ID,
		"status":  run.Status,
		"message": "run queued",
	})
}

// GetRun returns one run by id.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := h.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			respondError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("failed to get run", "run_id", runID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// ListRuns returns recent runs.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRunSellers returns the classified sellers of a run.
func (h *Handlers) GetRunSellers(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	sellers, err := h.runs.GetRunSellers(r.Context(), runID)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			respondError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("failed to get run sellers", "run_id", runID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get run sellers")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  runID,
		"sellers": sellers,
		"count":   len(sellers),
	})
}

// Stats returns run counts by status.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.runs.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// Health is a liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
