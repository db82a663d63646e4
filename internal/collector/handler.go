package collector

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/commpulse/community-pulse/internal/report"
	apperrors "github.com/commpulse/community-pulse/pkg/errors"
	"github.com/commpulse/community-pulse/pkg/logger"
	"github.com/commpulse/community-pulse/pkg/metrics"
)

// Handler serves the collector's HTTP API.
type Handler struct {
	aggregator *Aggregator
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewHandler creates a Handler; m may be nil.
func NewHandler(aggregator *Aggregator, m *metrics.Metrics) *Handler {
	return &Handler{
		aggregator: aggregator,
		metrics:    m,
		logger:     slog.Default().With("component", "collector-handler"),
	}
}

// Overview serves GET /api/v1/overview.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Overview())
}

// Communities serves GET /api/v1/communities: the latest snapshot of every
// tracked community.
func (h *Handler) Communities(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Set())
}

// Community serves GET /api/v1/communities/{name}: the latest snapshot of a
// single community, from memory or the archive.
func (h *Handler) Community(w http.ResponseWriter, r *http.Request) {
	rec, err := h.aggregator.Latest(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// Report serves GET /api/v1/report: the competitive report over the tracked
// communities as plain text. With fewer than two communities there is no
// competition to report on, and the request fails accordingly.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	text, mode, err := report.Generate(h.aggregator.Set())
	if err != nil {
		h.countReport(string(mode), "error")
		status := apperrors.HTTPStatusCode(err)
		log.Warn("report generation failed", "error", err, "status_code", status)
		h.writeError(w, status, err.Error())
		return
	}
	h.countReport(string(mode), "ok")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(text)); err != nil {
		h.logger.Error("failed to write report response", "error", err)
	}
}

func (h *Handler) countReport(mode, outcome string) {
	if h.metrics != nil {
		if mode == "" {
			mode = "none"
		}
		h.metrics.ReportsTotal.WithLabelValues(mode, outcome).Inc()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
