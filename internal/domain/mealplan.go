package domain

// Meal slot labels the model is asked to fill. Every slot is optional.
const (
	SlotBreakfast = "Breakfast"
	SlotLunch     = "Lunch"
	SlotDinner    = "Dinner"
	SlotSnacks    = "Snacks"
)

// DailyMealPlan maps a meal slot label to a free-text description.
type DailyMealPlan map[string]string

// WeeklyMealPlan maps a day label (e.g. "Monday") to that day's plan.
// Day ordering is not preserved.
type WeeklyMealPlan map[string]DailyMealPlan

// MealPlanRequest carries the user's preferences for a generated plan.
type MealPlanRequest struct {
	DietType  string `json:"dietType"`
	Calories  int    `json:"calories"`
	Allergies string `json:"allergies"`
	Cuisine   string `json:"cuisine"`
	Snacks    bool   `json:"snacks"`
	Days      int    `json:"days"`
}
