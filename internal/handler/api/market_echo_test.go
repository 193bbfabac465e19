package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PlantDex/internal/domain/models"
	store "PlantDex/internal/repository"
	"PlantDex/internal/service/lock"
	"PlantDex/internal/service/ratelimit"
	"PlantDex/internal/services/intelligence"
	"PlantDex/internal/services/reference"
	"PlantDex/internal/usecase"
	"PlantDex/pkg/config"
)

type nopMetrics struct{}

func (nopMetrics) RecordObservation(string, string) {}
func (nopMetrics) RecordError(string)               {}
func (nopMetrics) RecordIndexValue(string, float64) {}
func (nopMetrics) RecordLatency(string, float64)    {}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, opts ...MarketHandlerOption) (*echo.Echo, *store.MemoryStore) {
	t.Helper()
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	s := store.NewMemoryStore()
	s.PutItem(models.Item{ID: 1, Name: "Ficus lyrata", Category: "ficus"})

	cfg := config.DefaultEngineConfig()
	iopts := []intelligence.Option{intelligence.WithClock(clock)}
	agg := intelligence.NewAggregator(s, s, s, s, cfg, iopts...)
	compute := usecase.NewComputeUseCase(s, agg,
		intelligence.NewIndexCalculator(s, cfg, iopts...),
		intelligence.NewScorer(s, cfg, iopts...),
		intelligence.NewOpportunityDetector(s, reference.NewStaticSeasonalReference(nil), cfg, iopts...),
		lock.New(), nopMetrics{}, usecase.WithComputeClock(clock))
	query := usecase.NewQueryUseCase(s, s, agg, intelligence.NewForecaster(s, cfg, iopts...), usecase.WithQueryClock(clock))

	e := echo.New()
	NewMarketEchoHandler(nil, query, compute, opts...).RegisterRoutes(e)
	return e, s
}

func do(e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestMarketScorePendingUnknownThenComputed(t *testing.T) {
	e, _ := newTestServer(t)

	rec, env := do(e, http.MethodGet, "/api/market/score/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pending models.InvestmentScore
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	assert.True(t, pending.InsufficientData)
	assert.Equal(t, 0, pending.SampleSize)

	rec, env = do(e, http.MethodGet, "/api/market/score/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, env.Status)

	rec, _ = do(e, http.MethodPost, "/api/market/compute/score", `{"item_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(e, http.MethodGet, "/api/market/score/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var s models.InvestmentScore
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, int64(1), s.ItemID)
	assert.True(t, s.InsufficientData)
}

func TestMarketValidation(t *testing.T) {
	e, _ := newTestServer(t)

	rec, _ := do(e, http.MethodGet, "/api/market/score/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(e, http.MethodGet, "/api/market/opportunities?type=BOGUS", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(e, http.MethodGet, "/api/market/forecast/1?weeks_ahead=0", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "default horizon applies, but the item has no weekly history")

	rec, _ = do(e, http.MethodGet, "/api/market/forecast/1?weeks_ahead=99", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(e, http.MethodGet, "/api/market/index?from=2024-03-10&to=2024-03-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(e, http.MethodPost, "/api/market/compute/index", `{"date":"10/03/2024"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarketEmptyCollections(t *testing.T) {
	e, _ := newTestServer(t)

	for _, path := range []string{
		"/api/market/index",
		"/api/market/opportunities",
		"/api/market/top-movers",
		"/api/market/trending",
	} {
		rec, env := do(e, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `[]`, string(env.Data), path)
	}

	rec, env := do(e, http.MethodGet, "/api/market/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.MarketStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.TrackedItems)
}

func TestMarketComputeAggregateAndPrices(t *testing.T) {
	e, s := newTestServer(t)
	require.NoError(t, s.Store(context.Background(), &models.Observation{
		ItemID: 1, Timestamp: time.Date(2024, time.March, 9, 9, 0, 0, 0, time.UTC), Price: 35, Source: "nursery",
	}))

	rec, env := do(e, http.MethodPost, "/api/market/compute/aggregate", `{"item_id":1,"date":"2024-03-09"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var agg models.DailyAggregate
	require.NoError(t, json.Unmarshal(env.Data, &agg))
	assert.Equal(t, 1, agg.ObservationCount)

	rec, env = do(e, http.MethodGet, "/api/market/items/1/prices?days=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pa models.PriceAnalysis
	require.NoError(t, json.Unmarshal(env.Data, &pa))
	require.Len(t, pa.Sources, 1)
	assert.Equal(t, "nursery", pa.Sources[0].Source)
}

func TestMarketComputeRateLimited(t *testing.T) {
	fixed := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	e, _ := newTestServer(t,
		WithComputeRateLimit(1, 2),
		WithRateLimiter(ratelimit.NewWithClock(func() time.Time { return fixed })),
	)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec, _ := do(e, http.MethodPost, "/api/market/compute/detect", `{}`)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
