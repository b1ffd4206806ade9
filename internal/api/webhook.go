// Package api provides the thin HTTP wrappers around the sync engine: the
// billing webhook endpoint and small JSON ops endpoints. Failure policy
// lives in the engine; this layer only maps outcomes to status codes.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"submirror/internal/engine"
	"submirror/internal/metrics"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// WebhookHandler receives billing provider webhook events.
type WebhookHandler struct {
	engine *engine.Engine
}

type errorResponse struct {
	Error string `json:"error"`
}

type receivedResponse struct {
	Received bool `json:"received"`
	Ignored  bool `json:"ignored,omitempty"`
}

// NewWebhookHandler creates the webhook HTTP handler.
func NewWebhookHandler(eng *engine.Engine) *WebhookHandler {
	return &WebhookHandler{engine: eng}
}

// ServeHTTP reads the raw body, hands it to the engine, and maps the
// outcome. The raw bytes go to the engine unparsed; signature verification
// needs them byte-for-byte.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse{Error: "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, errorResponse{Error: "failed to read request body"})
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")

	result, err := h.engine.Ingest(r.Context(), payload, sigHeader)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrBodyMissing):
			status = http.StatusBadRequest
			writeJSON(w, status, errorResponse{Error: "missing request body"})
		case errors.Is(err, engine.ErrSignatureMissing), errors.Is(err, engine.ErrSignatureInvalid):
			// Intentionally vague; a missing signature is treated the same
			// as a bad one.
			status = http.StatusBadRequest
			writeJSON(w, status, errorResponse{Error: "invalid signature"})
		default:
			status = http.StatusBadRequest
			writeJSON(w, status, errorResponse{Error: "rejected"})
		}
		return
	}

	if !result.Success {
		log.Error().
			Str("error", result.Error).
			Msg("billing webhook processing failed")
		status = http.StatusInternalServerError
		writeJSON(w, status, errorResponse{Error: "processing failed"})
		return
	}

	eventType = "handled"
	if result.Ignored {
		eventType = "ignored"
	}
	status = http.StatusOK
	writeJSON(w, status, receivedResponse{Received: true, Ignored: result.Ignored})
}

func writeJSON[T any](w http.ResponseWriter, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Int("status", status).Msg("api: encode response")
	}
}
