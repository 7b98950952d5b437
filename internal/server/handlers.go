package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/kiroku/internal/model"
	"github.com/ashita-ai/kiroku/internal/season"
)

const maxCompetitorIDLen = 128

// Pinger reports database connectivity for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	season    *season.Service
	db        Pinger
	logger    *slog.Logger
	startedAt time.Time
	version   string
}

// HandlersDeps holds all dependencies for constructing Handlers.
// DB is optional; without it the health check omits Postgres.
type HandlersDeps struct {
	Season  *season.Service
	DB      Pinger
	Logger  *slog.Logger
	Version string
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		season:    d.Season,
		db:        d.DB,
		logger:    logger,
		startedAt: time.Now(),
		version:   d.Version,
	}
}

// HandleSeasonReport handles GET /v1/competitors/{competitor_id}/season.
//
// Optional start and end query parameters (RFC 3339, both or neither) pin an
// explicit season window; otherwise the current season is used. A report
// that could not be computed is still returned, with status 502.
func (h *Handlers) HandleSeasonReport(w http.ResponseWriter, r *http.Request) {
	competitorID := r.PathValue("competitor_id")
	if competitorID == "" || len(competitorID) > maxCompetitorIDLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("competitor_id must be 1-%d characters", maxCompetitorIDLen))
		return
	}

	window, pinned, err := queryWindow(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var report model.SeasonReport
	if pinned {
		report = h.season.ReportWindow(r.Context(), competitorID, window)
	} else {
		report = h.season.Report(r.Context(), competitorID)
	}

	status := http.StatusOK
	if report.Failed() {
		status = http.StatusBadGateway
	}
	writeJSON(w, r, status, report)
}

// HandleListBadges handles GET /v1/badges.
func (h *Handlers) HandleListBadges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.season.Catalog().All())
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK

	resp := model.HealthResponse{
		Version: h.version,
		Badges:  h.season.Catalog().Len(),
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	}

	if h.db != nil {
		resp.Postgres = "connected"
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Warn("health: postgres ping failed", "error", err)
			resp.Postgres = "disconnected"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	resp.Status = status
	writeJSON(w, r, httpStatus, resp)
}

// queryWindow parses the optional start/end query parameters.
func queryWindow(r *http.Request) (model.SeasonWindow, bool, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")
	if startStr == "" && endStr == "" {
		return model.SeasonWindow{}, false, nil
	}
	if startStr == "" || endStr == "" {
		return model.SeasonWindow{}, false, errors.New("start and end must be given together")
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return model.SeasonWindow{}, false, errors.New("invalid start: expected RFC 3339 timestamp")
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return model.SeasonWindow{}, false, errors.New("invalid end: expected RFC 3339 timestamp")
	}
	w := model.SeasonWindow{Start: start.UTC(), End: end.UTC()}
	if !w.Valid() {
		return model.SeasonWindow{}, false, errors.New("start must be before end")
	}
	return w, true, nil
}
