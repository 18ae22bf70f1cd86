package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mealplanner/mealplan-service/internal/domain"
	"github.com/mealplanner/mealplan-service/pkg/inference"
)

const (
	defaultMealPlanDays = 7
	maxMealPlanDays     = 7

	mealPlanRateLimitScope = "mealplan"
	emptyModelReply        = "No response content from model"
)

// MealPlanService generates meal plans through the inference service.
type MealPlanService struct {
	completer inference.Completer
	limiter   RateLimiter
	logger    *slog.Logger
}

// NewMealPlanService creates the service. A nil completer makes every request
// fail with domain.ErrInferenceNotConfigured; a nil limiter disables rate limiting.
func NewMealPlanService(completer inference.Completer, limiter RateLimiter, logger *slog.Logger) *MealPlanService {
	return &MealPlanService{completer: completer, limiter: limiter, logger: logger}
}

// Generate asks the model for a plan matching req and extracts it from the reply.
func (s *MealPlanService) Generate(ctx context.Context, userID string, req domain.MealPlanRequest) (domain.WeeklyMealPlan, error) {
	if s.completer == nil {
		return nil, domain.ErrInferenceNotConfigured
	}

	req, err := normalizeMealPlanRequest(req)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		allowed, retryAfter, err := s.limiter.Allow(ctx, mealPlanRateLimitScope, userID)
		if err != nil {
			s.logger.Warn("meal plan rate limit check failed", "user_id", userID, "error", err)
		} else if !allowed {
			return nil, &RateLimitedError{RetryAfter: retryAfter}
		}
	}

	content, err := s.completer.Complete(ctx, buildMealPlanPrompt(req))
	if err != nil {
		s.logger.Error("meal plan completion failed", "user_id", userID, "error", err)
		return nil, &domain.UpstreamError{Service: "inference", Err: err}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		content = emptyModelReply
	}

	plan, err := ExtractMealPlan(content)
	if err != nil {
		s.logger.Error("failed to extract meal plan", "user_id", userID, "error", err, "raw", content)
		return nil, err
	}
	return plan, nil
}

func normalizeMealPlanRequest(req domain.MealPlanRequest) (domain.MealPlanRequest, error) {
	req.DietType = strings.TrimSpace(req.DietType)
	req.Allergies = strings.TrimSpace(req.Allergies)
	req.Cuisine = strings.TrimSpace(req.Cuisine)

	if req.DietType == "" {
		return req, &domain.ValidationError{Message: "dietType is required"}
	}
	if req.Calories <= 0 {
		return req, &domain.ValidationError{Message: "calories must be greater than zero"}
	}
	if req.Days == 0 {
		req.Days = defaultMealPlanDays
	}
	if req.Days < 1 || req.Days > maxMealPlanDays {
		return req, &domain.ValidationError{Message: fmt.Sprintf("days must be between 1 and %d", maxMealPlanDays)}
	}
	return req, nil
}

func buildMealPlanPrompt(req domain.MealPlanRequest) string {
	allergies := req.Allergies
	if allergies == "" {
		allergies = "none"
	}
	cuisine := req.Cuisine
	if cuisine == "" {
		cuisine = "none"
	}
	snacks := "no"
	if req.Snacks {
		snacks = "yes"
	}

	return fmt.Sprintf(`You are a professional nutritionist. Create a %d-day meal plan for an individual following a %s diet and aiming for %d calories per day.
Allergies or restrictions: %s.
Preferred cuisines: %s.
Snacks included: %s.
Use simple ingredients and provide basic instructions with approximate calorie counts.

Return ONLY valid JSON like this:
{
  "Monday": {
    "Breakfast": "Oatmeal with fruits - 300 calories",
    "Lunch": "Grilled Chicken Salad - 500 calories",
    "Dinner": "Steamed vegetables with rice - 200 calories",
    "Snacks": "Greek Yogurt - 150 calories"
  }
}
`, req.Days, req.DietType, req.Calories, allergies, cuisine, snacks)
}
