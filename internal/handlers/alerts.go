package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/stanstork/medequip-events/internal/repository"
)

type AlertHandler struct {
	alerts   repository.AlertRepository
	failures repository.FailureRepository
	logger   zerolog.Logger
}

func NewAlertHandler(alerts repository.AlertRepository, failures repository.FailureRepository, logger zerolog.Logger) *AlertHandler {
	return &AlertHandler{
		alerts:   alerts,
		failures: failures,
		logger:   logger.With().Str("handler", "alert").Logger(),
	}
}

// ListActive returns unexpired active alerts, newest first.
func (h *AlertHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.ListActive(r.Context(), limitFromRequest(r, 50, 200))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list alerts")
		http.Error(w, "Failed to list alerts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
	})
}

// ListFailures returns envelopes that exhausted their retries.
func (h *AlertHandler) ListFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := h.failures.ListRecent(r.Context(), limitFromRequest(r, 25, 100))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list failed envelopes")
		http.Error(w, "Failed to list failed envelopes", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"failures": failures,
	})
}
