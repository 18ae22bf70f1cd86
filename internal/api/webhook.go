/**
 * @description
 * This file contains the HTTP handler for billing webhooks (Stripe).
 *
 * @notes
 * - The body is read once and its signature verified before anything is parsed.
 *   A bad signature is the only case that is not acknowledged.
 * - Verified deliveries are always answered with 200 so the provider does not
 *   retry lookup misses or database errors.
 * - Event ids are remembered for five minutes to drop immediate redeliveries.
 */
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/mealplanner/mealplan-service/internal/app"
	"github.com/mealplanner/mealplan-service/internal/domain"
	"github.com/mealplanner/mealplan-service/pkg/billing"
)

const (
	maxWebhookBodyBytes = 64 << 10
	webhookDedupeWindow = 5 * time.Minute
	signatureHeader     = "Stripe-Signature"
)

// EventVerifier authenticates a raw webhook payload and decodes it.
type EventVerifier interface {
	Verify(payload []byte, signatureHeader string) (domain.BillingEvent, error)
}

// EventReconciler applies a verified billing event.
type EventReconciler interface {
	Handle(ctx context.Context, evt domain.BillingEvent) app.Outcome
}

// WebhookHandler processes incoming billing webhooks.
type WebhookHandler struct {
	verifier   EventVerifier
	reconciler EventReconciler
	processed  *cache.Cache
	metrics    *Metrics
	logger     *slog.Logger
}

// NewWebhookHandler creates a new handler for the webhook endpoint. metrics may be nil.
func NewWebhookHandler(verifier EventVerifier, reconciler EventReconciler, metrics *Metrics, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		processed:  cache.New(webhookDedupeWindow, 10*time.Minute),
		metrics:    metrics,
		logger:     logger,
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("webhook body too large", "limit", tooLarge.Limit)
			respondWithError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.logger.Warn("cannot read webhook body", "error", err)
		respondWithError(w, http.StatusBadRequest, "cannot read request body")
		return
	}

	evt, err := h.verifier.Verify(body, r.Header.Get(signatureHeader))
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			h.logger.Warn("rejected webhook with invalid signature", "error", err)
			h.metrics.webhookEvent("unknown", "invalid_signature")
			respondWithError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		// Signed by the provider but not decodable; a retry would fail the same way.
		h.logger.Error("verified webhook could not be decoded", "error", err)
		h.metrics.webhookEvent("unknown", "malformed")
		respondWithJSON(w, http.StatusOK, struct{}{})
		return
	}

	log := h.logger.With("event_id", evt.EventID(), "event_type", evt.EventType())

	if evt.EventID() != "" {
		if _, seen := h.processed.Get(evt.EventID()); seen {
			log.Info("duplicate webhook event ignored")
			h.metrics.webhookEvent(evt.EventType(), "duplicate")
			respondWithJSON(w, http.StatusOK, struct{}{})
			return
		}
	}

	outcome := h.reconciler.Handle(r.Context(), evt)
	if outcome != app.OutcomeFailed && evt.EventID() != "" {
		h.processed.SetDefault(evt.EventID(), outcome)
	}

	h.metrics.webhookEvent(evt.EventType(), string(outcome))
	log.Info("webhook processed", "outcome", outcome, "duration", time.Since(startTime))
	respondWithJSON(w, http.StatusOK, struct{}{})
}
