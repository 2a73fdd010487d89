// Package api implements the HTTP handlers for the discovery service.
//
// Routes:
//
//	GET /health                      → liveness
//	GET /scrapers/health             → health record of every source
//	GET /gigs/recent?limit=N         → newest gigs first (default 50, max 500)
//	GET /gigs/export?format=csv|json → every stored gig as a download
package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"gigbot/discovery-service/internal/model"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// Reader is the read side of the store.
type Reader interface {
	ListHealth(ctx context.Context) ([]model.HealthRecord, error)
	RecentGigs(ctx context.Context, limit int) ([]model.Gig, error)
}

// Handler holds shared dependencies.
type Handler struct {
	store   Reader
	version string
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler returns a configured Handler.
func NewHandler(store Reader, version string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, version: version, logger: logger, now: time.Now}
}

// RegisterRoutes mounts all discovery-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /scrapers/health", h.scraperHealth)
	mux.HandleFunc("GET /gigs/recent", h.recentGigs)
	mux.HandleFunc("GET /gigs/export", h.exportGigs)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, map[string]string{
		"status":  "ok",
		"service": "discovery-service",
		"version": h.version,
	})
}

func (h *Handler) scraperHealth(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.ListHealth(r.Context())
	if err != nil {
		h.logger.Error("list health failed", "err", err)
		jsonError(w, "failed to load scraper health", http.StatusInternalServerError)
		return
	}
	jsonOK(w, map[string]any{"scrapers": recs})
}

func (h *Handler) recentGigs(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRecentLimit)
	}

	gigs, err := h.store.RecentGigs(r.Context(), limit)
	if err != nil {
		h.logger.Error("recent gigs failed", "err", err)
		jsonError(w, "failed to load gigs", http.StatusInternalServerError)
		return
	}
	jsonOK(w, map[string]any{"gigs": gigs, "count": len(gigs)})
}

func (h *Handler) exportGigs(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		jsonError(w, "format must be csv or json", http.StatusBadRequest)
		return
	}

	gigs, err := h.store.RecentGigs(r.Context(), 0)
	if err != nil {
		h.logger.Error("export gigs failed", "err", err)
		jsonError(w, "failed to load gigs", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("gigs_export_%s.%s", h.now().UTC().Format("20060102_150405"), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	switch format {
	case "json":
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(gigs)
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = writeCSV(w, gigs)
	}
	if err != nil {
		h.logger.Warn("export write failed", "format", format, "err", err)
		return
	}
	h.logger.Info("gigs exported", "format", format, "count", len(gigs))
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

var csvHeader = []string{
	"fingerprint", "source", "title", "link", "snippet", "score",
	"budget_type", "budget_amount", "budget_min", "budget_max", "currency",
	"label", "confidence", "first_seen_at",
}

func writeCSV(w http.ResponseWriter, gigs []model.Gig) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, g := range gigs {
		row := []string{
			g.Fingerprint, g.Source, g.Title, g.Link, g.Snippet, formatFloat(g.Score),
			"", "", "", "", "", "", "",
			g.FirstSeenAt.UTC().Format(time.RFC3339),
		}
		if b := g.Budget; b != nil {
			row[6] = string(b.Kind)
			if b.Kind == model.BudgetRange {
				row[8], row[9] = formatFloat(b.Min), formatFloat(b.Max)
			} else {
				row[7] = formatFloat(b.Amount)
			}
			row[10] = b.Currency
		}
		if c := g.Classification; c != nil {
			row[11], row[12] = c.Label, formatFloat(c.Confidence)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
