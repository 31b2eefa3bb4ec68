package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stanstork/medequip-events/internal/authz"
	"github.com/stanstork/medequip-events/internal/event"
	"github.com/stanstork/medequip-events/internal/pipeline"
)

// EnvelopeSubmitter enqueues an envelope for asynchronous processing.
type EnvelopeSubmitter interface {
	Submit(ctx context.Context, env event.Envelope) (string, error)
}

type EventHandler struct {
	submitter EnvelopeSubmitter
	logger    zerolog.Logger
}

type submitEventRequest struct {
	ID        string          `json:"id"`
	Category  string          `json:"category"`
	Action    string          `json:"action"`
	Subject   json.RawMessage `json:"subject"`
	Payload   event.Payload   `json:"payload"`
	SessionID string          `json:"session_id"`
}

func NewEventHandler(submitter EnvelopeSubmitter, logger zerolog.Logger) *EventHandler {
	return &EventHandler{
		submitter: submitter,
		logger:    logger.With().Str("handler", "event").Logger(),
	}
}

// Submit builds an envelope for the authenticated actor and enqueues it.
// It answers 202 once the envelope is durably queued.
func (h *EventHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	var req submitEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	subject, err := event.ParseSubject(req.Subject)
	if err != nil {
		http.Error(w, "Invalid subject: "+err.Error(), http.StatusBadRequest)
		return
	}

	env := event.New(
		event.Category(strings.ToLower(strings.TrimSpace(req.Category))),
		event.Action(strings.ToLower(strings.TrimSpace(req.Action))),
		event.WithID(strings.TrimSpace(req.ID)),
		event.WithActor(userID, authz.UserNameFromRequest(r)),
		event.WithSubject(subject),
		event.WithPayload(req.Payload),
		event.WithCorrelation(event.Correlation{
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
			SessionID: req.SessionID,
		}),
	)

	runID, err := h.submitter.Submit(r.Context(), env)
	if err != nil {
		var dataErr *pipeline.DataError
		if errors.As(err, &dataErr) {
			http.Error(w, dataErr.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error().Err(err).Str("envelope_id", env.ID).Msg("failed to submit envelope")
		http.Error(w, "Failed to submit event", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"envelope_id": env.ID,
		"priority":    string(env.Priority),
		"run_id":      runID,
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
