package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/mealplanner/mealplan-service/internal/app"
	"github.com/mealplanner/mealplan-service/internal/domain"
)

const internalErrorMessage = "internal server error"

type errorResponse struct {
	Error string `json:"error"`
	Raw   string `json:"raw,omitempty"`
}

var extractionMessages = map[string]string{
	domain.ReasonNoStructuredContent: "No structured content found in AI response",
	domain.ReasonParseError:          "Parse error while processing AI response",
	domain.ReasonInvalidFormat:       "Invalid format returned by AI",
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Error: message})
}

// respondWithServiceError maps a service error onto a status code and a
// message that is safe to show. Server-side detail only goes to the log.
func respondWithServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		validation *domain.ValidationError
		extraction *domain.ExtractionError
		limited    *app.RateLimitedError
		upstream   *domain.UpstreamError
	)

	switch {
	case errors.As(err, &validation):
		respondWithError(w, http.StatusBadRequest, validation.Message)
	case errors.Is(err, domain.ErrMissingCheckoutFields),
		errors.Is(err, domain.ErrUnknownPlan),
		errors.Is(err, domain.ErrPlanRequired),
		errors.Is(err, domain.ErrNoActiveSubscription),
		errors.Is(err, domain.ErrSubscriptionItemNotFound),
		errors.Is(err, domain.ErrMissingEmail),
		errors.Is(err, domain.ErrInvalidMealPlanRequest):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrProfileNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &limited):
		seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		respondWithError(w, http.StatusTooManyRequests, domain.ErrRateLimited.Error())
	case errors.Is(err, domain.ErrRateLimited):
		respondWithError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &extraction):
		message, ok := extractionMessages[extraction.Reason]
		if !ok {
			message = extraction.Reason
		}
		respondWithJSON(w, http.StatusInternalServerError, errorResponse{Error: message, Raw: extraction.Raw})
	case errors.Is(err, domain.ErrInferenceNotConfigured), errors.Is(err, domain.ErrBillingNotConfigured):
		logger.Error("service dependency not configured", "error", err)
		respondWithError(w, http.StatusInternalServerError, err.Error())
	case errors.As(err, &upstream):
		logger.Error("upstream call failed", "service", upstream.Service, "error", upstream.Err)
		respondWithError(w, http.StatusInternalServerError, internalErrorMessage)
	default:
		logger.Error("request failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, internalErrorMessage)
	}
}
