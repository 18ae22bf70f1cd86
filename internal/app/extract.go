package app

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/mealplanner/mealplan-service/internal/domain"
)

var jsonFenceRe = regexp.MustCompile("(?i)```json")

// ExtractMealPlan reads a weekly meal plan out of free-form model output.
//
// Code fences are stripped and the text between the first '{' and the last '}'
// is parsed. Commentary around the object is tolerated. Two sibling objects in
// one reply are taken as a single span and fail to parse. Top-level entries
// that are not objects are skipped and non-text slot values are kept as their
// JSON literal.
func ExtractMealPlan(raw string) (domain.WeeklyMealPlan, error) {
	cleaned := jsonFenceRe.ReplaceAllString(raw, "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end < start {
		return nil, &domain.ExtractionError{Reason: domain.ReasonNoStructuredContent, Raw: raw}
	}

	var days map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &days); err != nil {
		return nil, &domain.ExtractionError{Reason: domain.ReasonParseError, Raw: raw, Err: err}
	}
	if days == nil {
		return nil, &domain.ExtractionError{Reason: domain.ReasonInvalidFormat, Raw: raw}
	}

	plan := make(domain.WeeklyMealPlan, len(days))
	for day, body := range days {
		var slots map[string]json.RawMessage
		if err := json.Unmarshal(body, &slots); err != nil || slots == nil {
			// Notes and totals next to the days are not part of the plan.
			continue
		}
		daily := make(domain.DailyMealPlan, len(slots))
		for slot, value := range slots {
			if text, ok := slotText(value); ok {
				daily[slot] = text
			}
		}
		plan[day] = daily
	}
	return plan, nil
}

// slotText renders a slot value as text. Numbers and other JSON values are
// kept in their literal form, null is dropped.
func slotText(value json.RawMessage) (string, bool) {
	trimmed := strings.TrimSpace(string(value))
	if trimmed == "" || trimmed == "null" {
		return "", false
	}
	var text string
	if err := json.Unmarshal(value, &text); err == nil {
		return text, true
	}
	return trimmed, true
}
