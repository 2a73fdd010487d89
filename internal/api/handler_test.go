package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigbot/discovery-service/internal/health"
	"gigbot/discovery-service/internal/model"
	"gigbot/discovery-service/internal/store"
)

func newTestServer(t *testing.T, reader Reader) *http.ServeMux {
	t.Helper()
	h := NewHandler(reader, "test", slog.New(slog.DiscardHandler))
	h.now = func() time.Time { return time.Date(2026, 4, 5, 6, 7, 8, 0, time.UTC) }
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func seededStore(t *testing.T, n int) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore(health.DefaultThresholds())
	ctx := context.Background()
	for i := 0; i < n; i++ {
		g := model.Gig{
			Fingerprint: fmt.Sprintf("fp%d", i),
			Source:      "reddit",
			Title:       fmt.Sprintf("gig %d, urgent", i),
			Link:        fmt.Sprintf("https://reddit.com/%d", i),
			Score:       float64(i),
			FirstSeenAt: time.Date(2026, 4, 1, 0, i, 0, 0, time.UTC),
		}
		if i == 0 {
			g.Budget = &model.Budget{Kind: model.BudgetRange, Min: 50, Max: 80, Currency: "USD"}
			g.Classification = &model.Classification{Label: "freelance gig", Confidence: 0.75}
		}
		_, err := st.TryInsert(ctx, g)
		require.NoError(t, err)
	}
	_, err := st.RecordRun(ctx, "reddit", model.RunOutcome{Success: true, At: time.Now()})
	require.NoError(t, err)
	return st
}

func get(mux *http.ServeMux, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(newTestServer(t, seededStore(t, 0)), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"discovery-service","version":"test"}`, rec.Body.String())
}

func TestScraperHealth(t *testing.T) {
	rec := get(newTestServer(t, seededStore(t, 1)), "/scrapers/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Scrapers []model.HealthRecord `json:"scrapers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Scrapers, 1)
	assert.Equal(t, model.StatusHealthy, body.Scrapers[0].Status)
}

func TestRecentGigs(t *testing.T) {
	mux := newTestServer(t, seededStore(t, 5))

	rec := get(mux, "/gigs/recent?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Gigs  []model.Gig `json:"gigs"`
		Count int         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "fp4", body.Gigs[0].Fingerprint)

	for _, bad := range []string{"0", "-3", "ten"} {
		assert.Equal(t, http.StatusBadRequest, get(mux, "/gigs/recent?limit="+bad).Code, bad)
	}
}

func TestExport_CSV(t *testing.T) {
	rec := get(newTestServer(t, seededStore(t, 2)), "/gigs/export?format=csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "gigs_export_20260405_060708.csv")

	rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])

	last := rows[2] // oldest gig, carries the budget
	assert.Equal(t, "gig 0, urgent", last[2])
	assert.Equal(t, "range", last[6])
	assert.Equal(t, "50", last[8])
	assert.Equal(t, "80", last[9])
	assert.Equal(t, "USD", last[10])
	assert.Equal(t, "0.75", last[12])
}

func TestExport_JSON(t *testing.T) {
	rec := get(newTestServer(t, seededStore(t, 3)), "/gigs/export?format=json")
	require.Equal(t, http.StatusOK, rec.Code)

	var gigs []model.Gig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gigs))
	assert.Len(t, gigs, 3)
}

func TestExport_LogsEveryFormat(t *testing.T) {
	for _, format := range []string{"json", "csv"} {
		t.Run(format, func(t *testing.T) {
			var logs bytes.Buffer
			h := NewHandler(seededStore(t, 2), "test", slog.New(slog.NewTextHandler(&logs, nil)))
			mux := http.NewServeMux()
			h.RegisterRoutes(mux)

			rec := get(mux, "/gigs/export?format="+format)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, logs.String(), `msg="gigs exported" format=`+format+" count=2")
		})
	}
}

func TestExport_BadFormat(t *testing.T) {
	rec := get(newTestServer(t, seededStore(t, 0)), "/gigs/export?format=xml")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type brokenReader struct{}

func (brokenReader) ListHealth(context.Context) ([]model.HealthRecord, error) {
	return nil, errors.New("db down")
}

func (brokenReader) RecentGigs(context.Context, int) ([]model.Gig, error) {
	return nil, errors.New("db down")
}

func TestStoreErrorsAre500(t *testing.T) {
	mux := newTestServer(t, brokenReader{})
	for _, path := range []string{"/scrapers/health", "/gigs/recent", "/gigs/export"} {
		rec := get(mux, path)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "db down")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	mux := newTestServer(t, seededStore(t, 0))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/gigs/recent", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
