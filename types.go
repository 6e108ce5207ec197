package nutrilog

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type SlackClient interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

type ActivityLevel string

const (
	ActivitySedentary        ActivityLevel = "Sedentary"
	ActivityLightlyActive    ActivityLevel = "Lightly Active"
	ActivityModeratelyActive ActivityLevel = "Moderately Active"
	ActivityVeryActive       ActivityLevel = "Very Active"
	ActivitySuperActive      ActivityLevel = "Super Active"
)

func (a ActivityLevel) Valid() bool {
	switch a {
	case ActivitySedentary, ActivityLightlyActive, ActivityModeratelyActive, ActivityVeryActive, ActivitySuperActive:
		return true
	}
	return false
}

type GoalType string

const (
	GoalLoseWeight GoalType = "Lose Weight"
	GoalMaintain   GoalType = "Maintain"
	GoalGainMuscle GoalType = "Gain Muscle"
)

func (g GoalType) Valid() bool {
	switch g {
	case GoalLoseWeight, GoalMaintain, GoalGainMuscle:
		return true
	}
	return false
}

type MacroPreference string

const (
	MacroBalanced    MacroPreference = "Balanced"
	MacroHighCarb    MacroPreference = "High Carb"
	MacroLowCarb     MacroPreference = "Low Carb"
	MacroHighProtein MacroPreference = "High Protein"
	MacroKeto        MacroPreference = "Keto"
)

func (m MacroPreference) Valid() bool {
	switch m {
	case MacroBalanced, MacroHighCarb, MacroLowCarb, MacroHighProtein, MacroKeto:
		return true
	}
	return false
}

type SnackPreference string

const (
	SnackNone        SnackPreference = "None"
	SnackLowCalorie  SnackPreference = "Low Calorie"
	SnackHighProtein SnackPreference = "High Protein"
	SnackEnergyDense SnackPreference = "Energy Dense"
)

func (s SnackPreference) Valid() bool {
	switch s {
	case SnackNone, SnackLowCalorie, SnackHighProtein, SnackEnergyDense:
		return true
	}
	return false
}

type SpiceLevel string

const (
	SpiceMild     SpiceLevel = "Mild"
	SpiceMedium   SpiceLevel = "Medium"
	SpiceSpicy    SpiceLevel = "Spicy"
	SpiceExtraHot SpiceLevel = "Extra Hot"
)

func (s SpiceLevel) Valid() bool {
	switch s {
	case SpiceMild, SpiceMedium, SpiceSpicy, SpiceExtraHot:
		return true
	}
	return false
}

type TasteProfile string

const (
	TasteSavory   TasteProfile = "Savory"
	TasteSweet    TasteProfile = "Sweet"
	TasteBalanced TasteProfile = "Balanced"
	TasteUmami    TasteProfile = "Umami"
	TasteFresh    TasteProfile = "Fresh"
)

func (t TasteProfile) Valid() bool {
	switch t {
	case TasteSavory, TasteSweet, TasteBalanced, TasteUmami, TasteFresh:
		return true
	}
	return false
}

type MealType string

const (
	MealBreakfast MealType = "Breakfast"
	MealLunch     MealType = "Lunch"
	MealDinner    MealType = "Dinner"
	MealSnack     MealType = "Snack"
)

func (m MealType) Valid() bool {
	switch m {
	case MealBreakfast, MealLunch, MealDinner, MealSnack:
		return true
	}
	return false
}

// UserProfile holds the biometric and preference data goals are calibrated from.
type UserProfile struct {
	Name            string          `json:"name"`
	Age             int             `json:"age"`
	Gender          Gender          `json:"gender"`
	HeightCM        float64         `json:"height"`
	WeightKG        float64         `json:"weight"`
	ActivityLevel   ActivityLevel   `json:"activityLevel"`
	PrimaryGoal     GoalType        `json:"primaryGoal"`
	MacroPreference MacroPreference `json:"macroPreference,omitempty"`
	SnackPreference SnackPreference `json:"snackPreference,omitempty"`
	SpiceLevel      SpiceLevel      `json:"spiceLevel,omitempty"`
	TasteProfile    TasteProfile    `json:"tasteProfile,omitempty"`
}

// Validate rejects profiles the energy calculator cannot work with.
// An unknown activity level is allowed; it is priced at the default multiplier.
func (p UserProfile) Validate() error {
	switch {
	case p.Age <= 0:
		return fmt.Errorf("%w: age must be positive, got %d", ErrInvalidInput, p.Age)
	case p.HeightCM <= 0:
		return fmt.Errorf("%w: height must be positive, got %v", ErrInvalidInput, p.HeightCM)
	case p.WeightKG <= 0:
		return fmt.Errorf("%w: weight must be positive, got %v", ErrInvalidInput, p.WeightKG)
	case !p.Gender.Valid():
		return fmt.Errorf("%w: unknown gender %q", ErrInvalidInput, p.Gender)
	case !p.PrimaryGoal.Valid():
		return fmt.Errorf("%w: unknown goal %q", ErrInvalidInput, p.PrimaryGoal)
	}
	return nil
}

// UserGoal is the daily target derived from a profile. It is replaced wholesale on every calibration.
type UserGoal struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fats     float64 `json:"fats"`
	Water    float64 `json:"water"`
	WeightKG float64 `json:"weight"`
}

// DefaultGoal is used until the first calibration completes.
var DefaultGoal = UserGoal{
	Calories: 2200,
	Protein:  160,
	Carbs:    220,
	Fats:     70,
	Water:    2500,
	WeightKG: 75,
}

func (g UserGoal) Validate() error {
	for name, v := range map[string]float64{
		"calories": g.Calories,
		"protein":  g.Protein,
		"carbs":    g.Carbs,
		"fats":     g.Fats,
		"water":    g.Water,
		"weight":   g.WeightKG,
	} {
		if v < 0 {
			return fmt.Errorf("%w: goal %s is negative (%v)", ErrInvalidInput, name, v)
		}
	}
	return nil
}

type MacroData struct {
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fats     float64 `json:"fats"`
	Calories float64 `json:"calories"`
}

// NutritionEstimate is the unconfirmed result of analysing one meal input.
type NutritionEstimate struct {
	Name       string    `json:"name"`
	Calories   float64   `json:"calories"`
	Macros     MacroData `json:"macros"`
	Items      []string  `json:"items"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
}

// Meal is a confirmed ledger entry. Meals are never edited after creation.
type Meal struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Name       string    `json:"name"`
	Calories   float64   `json:"calories"`
	Macros     MacroData `json:"macros"`
	Items      []string  `json:"items"`
	Confidence float64   `json:"confidence"`
}

type HydrationEntry struct {
	Timestamp time.Time `json:"timestamp"`
	AmountML  float64   `json:"amount"`
}

type PlannedMeal struct {
	Type             MealType  `json:"type"`
	Description      string    `json:"description"`
	Calories         float64   `json:"calories"`
	Macros           MacroData `json:"macros"`
	PrepTime         string    `json:"prepTime"`
	PrepInstructions []string  `json:"prepInstructions"`
}

type ShoppingCategory struct {
	Category string   `json:"category"`
	Items    []string `json:"items"`
}

// MealPlan is a generated full-day plan with its shopping list.
type MealPlan struct {
	ID                      string             `json:"id"`
	Name                    string             `json:"name"`
	Meals                   []PlannedMeal      `json:"meals"`
	CategorizedShoppingList []ShoppingCategory `json:"categorizedShoppingList"`
	PrepTimeTotal           string             `json:"prepTimeTotal"`
	ChefTips                []string           `json:"chefTips"`
}

// RemoveShoppingItem drops one item from the shopping list. A category left
// without items is removed as well.
func (mp *MealPlan) RemoveShoppingItem(category, item int) error {
	if category < 0 || category >= len(mp.CategorizedShoppingList) {
		return fmt.Errorf("%w: shopping category %d out of range", ErrInvalidInput, category)
	}
	items := mp.CategorizedShoppingList[category].Items
	if item < 0 || item >= len(items) {
		return fmt.Errorf("%w: shopping item %d out of range", ErrInvalidInput, item)
	}

	remaining := make([]string, 0, len(items)-1)
	remaining = append(remaining, items[:item]...)
	remaining = append(remaining, items[item+1:]...)

	if len(remaining) == 0 {
		list := make([]ShoppingCategory, 0, len(mp.CategorizedShoppingList)-1)
		list = append(list, mp.CategorizedShoppingList[:category]...)
		list = append(list, mp.CategorizedShoppingList[category+1:]...)
		mp.CategorizedShoppingList = list
		return nil
	}

	mp.CategorizedShoppingList[category].Items = remaining
	return nil
}

type PlanConfiguration struct {
	MacroPreference     MacroPreference `json:"macroPreference"`
	SnackPreference     SnackPreference `json:"snackPreference"`
	SpiceLevel          SpiceLevel      `json:"spiceLevel"`
	TasteProfile        TasteProfile    `json:"tasteProfile"`
	DietaryRestrictions string          `json:"dietaryRestrictions"`
}

// PlanConfigurationFromProfile seeds planner preferences from the profile, filling gaps with defaults.
func PlanConfigurationFromProfile(p UserProfile) PlanConfiguration {
	cfg := PlanConfiguration{
		MacroPreference: MacroBalanced,
		SnackPreference: SnackLowCalorie,
		SpiceLevel:      SpiceMedium,
		TasteProfile:    TasteBalanced,
	}
	if p.MacroPreference.Valid() {
		cfg.MacroPreference = p.MacroPreference
	}
	if p.SnackPreference.Valid() {
		cfg.SnackPreference = p.SnackPreference
	}
	if p.SpiceLevel.Valid() {
		cfg.SpiceLevel = p.SpiceLevel
	}
	if p.TasteProfile.Valid() {
		cfg.TasteProfile = p.TasteProfile
	}
	return cfg
}

const (
	RoleUser  = "user"
	RoleModel = "model"
)

type ChatMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// DailyTotals is always computed from the meal ledger, never stored.
type DailyTotals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fats     float64 `json:"fats"`
}

func SumMeals(meals []Meal) DailyTotals {
	var t DailyTotals
	for _, m := range meals {
		t.Calories += m.Calories
		t.Protein += m.Macros.Protein
		t.Carbs += m.Macros.Carbs
		t.Fats += m.Macros.Fats
	}
	return t
}

func SumHydration(entries []HydrationEntry) float64 {
	var total float64
	for _, e := range entries {
		total += e.AmountML
	}
	return total
}

// MealsOn returns the meals whose timestamp falls on the same calendar day as day, in day's location.
func MealsOn(meals []Meal, day time.Time) []Meal {
	var out []Meal
	for _, m := range meals {
		if sameDay(m.Timestamp, day) {
			out = append(out, m)
		}
	}
	return out
}

func HydrationOn(entries []HydrationEntry, day time.Time) []HydrationEntry {
	var out []HydrationEntry
	for _, e := range entries {
		if sameDay(e.Timestamp, day) {
			out = append(out, e)
		}
	}
	return out
}

func sameDay(ts, day time.Time) bool {
	y1, m1, d1 := ts.In(day.Location()).Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
