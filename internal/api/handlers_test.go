package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakudev/auction-seller-scraper/internal/database"
	"github.com/rakudev/auction-seller-scraper/internal/scraper"
)

// stubRunService records calls and returns scripted data.
type stubRunService struct {
	createCalled bool
	run          *database.Run
	runs         []database.Run
	sellers      []database.RunSeller
	stats        map[string]int64
	err          error
}

func (s *stubRunService) CreateRun(ctx context.Context, startDate, endDate string, minPrice int) (*database.Run, error) {
	if err := scraper.ValidateDateRange(startDate, endDate); err != nil {
		return nil, err
	}
	if err := scraper.ValidateMinPrice(minPrice); err != nil {
		return nil, err
	}
	s.createCalled = true
	if s.err != nil {
		return nil, s.err
	}
	return s.run, nil
}

func (s *stubRunService) GetRun(ctx context.Context, runID string) (*database.Run, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.run, nil
}

func (s *stubRunService) ListRuns(ctx context.Context, limit int) ([]database.Run, error) {
	return s.runs, s.err
}

func (s *stubRunService) GetRunSellers(ctx context.Context, runID string) ([]database.RunSeller, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sellers, nil
}

func (s *stubRunService) Stats(ctx context.Context) (map[string]int64, error) {
	return s.stats, s.err
}

func newRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/api/v1/runs", h.CreateRun)
	r.Get("/api/v1/runs", h.ListRuns)
	r.Get("/api/v1/runs/{runID}", h.GetRun)
	r.Get("/api/v1/runs/{runID}/sellers", h.GetRunSellers)
	r.Get("/api/v1/stats", h.Stats)
	r.Get("/health", h.Health)
	return r
}

func TestCreateRunQueues(t *testing.T) {
	stub := &stubRunService{run: &database.Run{ID: "run-1", Status: database.RunStatusPending}}
	router := newRouter(NewHandlers(stub))

	body, _ := json.Marshal(map[string]interface{}{
		"start_date": "2026-01-01",
		"end_date":   "2026-01-31",
		"min_price":  150000,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, stub.createCalled)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp["run_id"])
}

func TestCreateRunRejectsBadDatesBeforeQueueing(t *testing.T) {
	stub := &stubRunService{}
	router := newRouter(NewHandlers(stub))

	body, _ := json.Marshal(map[string]interface{}{
		"start_date": "2026-02-01",
		"end_date":   "2026-01-01",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, stub.createCalled)
}

func TestCreateRunRejectsInvalidBody(t *testing.T) {
	router := newRouter(NewHandlers(&stubRunService{}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRunNotFound(t *testing.T) {
	stub := &stubRunService{err: database.ErrRunNotFound}
	router := newRouter(NewHandlers(stub))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunFound(t *testing.T) {
	stub := &stubRunService{run: &database.Run{ID: "run-9", Status: database.RunStatusCompleted, SellerCount: 4}}
	router := newRouter(NewHandlers(stub))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var run database.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "run-9", run.ID)
	assert.Equal(t, 4, run.SellerCount)
}

func TestGetRunSellers(t *testing.T) {
	stub := &stubRunService{sellers: []database.RunSeller{
		{RunID: "run-1", Name: "アニメの店", Classification: "anime"},
		{RunID: "run-1", Name: "時計屋", Classification: "not_anime"},
	}}
	router := newRouter(NewHandlers(stub))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1/sellers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sellers []database.RunSeller `json:"sellers"`
		Count   int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "anime", resp.Sellers[0].Classification)
}

func TestStats(t *testing.T) {
	stub := &stubRunService{stats: map[string]int64{"completed": 3, "pending": 1}}
	router := newRouter(NewHandlers(stub))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(3), stats["completed"])
}

func TestHealth(t *testing.T) {
	router := newRouter(NewHandlers(&stubRunService{}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
