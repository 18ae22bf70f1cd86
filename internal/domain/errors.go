package domain

import (
	"errors"
	"fmt"
)

// Client errors. Messages are safe to return to callers.
var (
	ErrMissingCheckoutFields    = errors.New("planType, userId, and email are required")
	ErrUnknownPlan              = errors.New("invalid plan type")
	ErrPlanRequired             = errors.New("new plan required")
	ErrNoActiveSubscription     = errors.New("no active subscription")
	ErrSubscriptionItemNotFound = errors.New("subscription item not found")
	ErrProfileNotFound          = errors.New("no profile found")
	ErrMissingEmail             = errors.New("user email not found")
	ErrInvalidMealPlanRequest   = errors.New("invalid meal plan request")
	ErrRateLimited              = errors.New("rate limit exceeded, please try again later")
)

// Server-side configuration errors.
var (
	ErrInferenceNotConfigured = errors.New("missing API key")
	ErrBillingNotConfigured   = errors.New("billing is not configured")
)

// UpstreamError wraps a failed call to the billing or inference service.
// The wrapped detail is logged, never returned to the client.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s service call failed: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Extraction failure reasons.
const (
	ReasonNoStructuredContent = "no structured content found"
	ReasonParseError          = "parse error"
	ReasonInvalidFormat       = "invalid format"
)

// ExtractionError reports that a meal plan could not be read from model output.
// Raw holds the original model text so callers can diagnose it.
type ExtractionError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("meal plan extraction: %s: %v", e.Reason, e.Err)
	}
	return "meal plan extraction: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ValidationError is a client error with a field-specific message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrInvalidMealPlanRequest }
