package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatewatch/crawler/internal/config"
	"github.com/estatewatch/crawler/internal/domain"
	"github.com/estatewatch/crawler/internal/logger"
	"github.com/estatewatch/crawler/internal/storage"
)

func seededRouter(t *testing.T) http.Handler {
	t.Helper()
	store := storage.NewMemory()
	ctx := context.Background()
	now := time.Now()
	today := now.Format(domain.DayFormat)

	listings := []*domain.Listing{
		{URL: "/b/1", Category: "mansion", CategoryType: "賃貸", Price: "8万円",
			IsActive: true, FirstSeen: today, LastSeen: today, ScrapedAt: now},
		{URL: "/b/2", Category: "mansion", CategoryType: "賃貸", Price: "10万円",
			IsActive: true, FirstSeen: "2026-01-10", LastSeen: today, ScrapedAt: now},
		{URL: "/b/3", Category: "house", CategoryType: "売買", Price: "2,980万円",
			IsActive: true, FirstSeen: "2026-01-10", LastSeen: today, ScrapedAt: now},
	}
	for _, l := range listings {
		require.NoError(t, store.UpsertListing(ctx, l))
	}
	_, err := store.MarkInactive(ctx, []string{"/b/3"})
	require.NoError(t, err)

	require.NoError(t, store.SaveSnapshot(ctx, &domain.LinkSnapshot{
		Category: "mansion", Day: today, URLs: []string{"/b/1", "/b/2"},
		URLCount: 2, CapturedAt: now,
	}))

	return NewServer(config.APIConfig{}, store, logger.NewNop()).Router()
}

func getJSON(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealth(t *testing.T) {
	code, body := getJSON(t, seededRouter(t), "/api/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestStats(t *testing.T) {
	code, body := getJSON(t, seededRouter(t), "/api/stats")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, body["total_listings"])
	assert.EqualValues(t, 2, body["active_listings"])
}

func TestPropertiesFiltersByCategory(t *testing.T) {
	code, body := getJSON(t, seededRouter(t), "/api/properties?category=mansion")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["count"])
}

func TestPropertiesExcludesInactiveByDefault(t *testing.T) {
	_, body := getJSON(t, seededRouter(t), "/api/properties")
	assert.EqualValues(t, 2, body["count"])

	_, all := getJSON(t, seededRouter(t), "/api/properties?active=false")
	assert.EqualValues(t, 3, all["count"])
}

func TestNewPropertiesDefaultsToToday(t *testing.T) {
	code, body := getJSON(t, seededRouter(t), "/api/properties/new")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])
}

func TestSoldProperties(t *testing.T) {
	code, body := getJSON(t, seededRouter(t), "/api/properties/sold?days=30")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	props := body["properties"].([]any)
	first := props[0].(map[string]any)
	assert.Equal(t, "/b/3", first["url"])
}

func TestPriceStats(t *testing.T) {
	code, body := getJSON(t, seededRouter(t), "/api/stats/prices")
	assert.Equal(t, http.StatusOK, code)

	prices := body["prices"].([]any)
	// Only the two active mansion listings have parsable prices.
	require.Len(t, prices, 1)
	stat := prices[0].(map[string]any)
	assert.Equal(t, "mansion", stat["category"])
	assert.EqualValues(t, 2, stat["count"])
}

func TestTimeline(t *testing.T) {
	code, body := getJSON(t, seededRouter(t), "/api/stats/timeline?days=7")
	assert.Equal(t, http.StatusOK, code)

	points := body["timeline"].([]any)
	require.Len(t, points, 1)
}
