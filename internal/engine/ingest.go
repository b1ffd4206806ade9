package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Result is the outcome of dispatching a verified event. Dispatch never
// panics or returns an error past its own boundary; adapter failures land in
// Error with the downstream message preserved verbatim.
type Result struct {
	Success bool   `json:"success"`
	Ignored bool   `json:"ignored,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Ingest authenticates a raw billing event and applies it to the mirror.
//
// The returned error is non-nil only for ingestion-time rejections
// (ErrBodyMissing, ErrSignatureMissing, ErrSignatureInvalid); the transport
// maps those to client errors. Everything past verification is reported in
// the Result.
func (e *Engine) Ingest(ctx context.Context, body []byte, sigHeader string) (Result, error) {
	if len(body) == 0 {
		return Result{}, ErrBodyMissing
	}
	if strings.TrimSpace(sigHeader) == "" {
		return Result{}, ErrSignatureMissing
	}

	event, err := e.provider.VerifySignature(body, sigHeader)
	if err != nil {
		if e.cfg.Debug {
			log.Debug().Err(err).Int("body_bytes", len(body)).Msg("webhook signature rejected")
		}
		return Result{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	if e.cfg.Debug {
		log.Debug().
			Str("event_id", event.ID).
			Str("type", event.RawType).
			Msg("webhook event verified")
	}

	return e.Dispatch(ctx, event), nil
}
