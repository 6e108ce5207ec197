// Package planner synthesizes a full-day meal plan with a shopping list.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"nutrilog"
	"nutrilog/inference"
)

const systemInstruction = "You are a professional nutritionist. Generate practical, healthy, and accurate meal plans tailored to the user's specific flavor and spice preferences."

type Service struct {
	gateway inference.Structured
	newID   func() string
}

func NewService(gateway inference.Structured) *Service {
	return &Service{gateway: gateway, newID: uuid.NewString}
}

// Generate requests one plan. The plan is accepted whole or not at all.
func (s *Service) Generate(ctx context.Context, goal nutrilog.UserGoal, cfg nutrilog.PlanConfiguration) (nutrilog.MealPlan, error) {
	req := BuildRequest(goal, cfg)
	slog.Info("PLANNER: Requesting plan",
		"calories", goal.Calories,
		"macro_preference", cfg.MacroPreference,
		"spice_level", cfg.SpiceLevel,
	)

	var plan nutrilog.MealPlan
	if err := s.gateway.GenerateStructured(ctx, req, &plan); err != nil {
		slog.Error("PLANNER: Plan synthesis failed", "error", err)
		return nutrilog.MealPlan{}, fmt.Errorf("%w: %w", nutrilog.ErrPlanSynthesisFailed, err)
	}

	if err := check(plan); err != nil {
		slog.Warn("PLANNER: Rejected plan", "name", plan.Name, "error", err)
		return nutrilog.MealPlan{}, fmt.Errorf("%w: %w", nutrilog.ErrPlanSynthesisFailed, err)
	}

	if strings.TrimSpace(plan.ID) == "" {
		plan.ID = s.newID()
	}

	slog.Info("PLANNER: Plan ready", "id", plan.ID, "meals", len(plan.Meals), "categories", len(plan.CategorizedShoppingList))
	return plan, nil
}

func check(plan nutrilog.MealPlan) error {
	if len(plan.Meals) == 0 {
		return errors.New("plan has no meals")
	}
	for i, m := range plan.Meals {
		if !m.Type.Valid() {
			return fmt.Errorf("meal %d has unknown type %q", i, m.Type)
		}
	}
	return nil
}

// BuildRequest embeds the numeric targets and every preference in the prompt.
func BuildRequest(goal nutrilog.UserGoal, cfg nutrilog.PlanConfiguration) inference.Request {
	restrictions := strings.TrimSpace(cfg.DietaryRestrictions)
	if restrictions == "" {
		restrictions = "None"
	}

	var b strings.Builder
	b.WriteString("Create a comprehensive 1-day bio-optimized meal plan.\n\n")
	b.WriteString("Target Metrics:\n")
	fmt.Fprintf(&b, "- Calories: %.0f\n", goal.Calories)
	fmt.Fprintf(&b, "- Protein: %.0fg\n\n", goal.Protein)
	b.WriteString("Configuration:\n")
	fmt.Fprintf(&b, "- Meal Composition: %s\n", cfg.MacroPreference)
	fmt.Fprintf(&b, "- Snack Strategy: %s\n", cfg.SnackPreference)
	fmt.Fprintf(&b, "- Spice Tolerance: %s\n", cfg.SpiceLevel)
	fmt.Fprintf(&b, "- Flavor Profile: %s\n", cfg.TasteProfile)
	fmt.Fprintf(&b, "- Notes/Restrictions: %s\n\n", restrictions)
	b.WriteString("Requirements:\n")
	b.WriteString("1. Detailed prep instructions for each meal.\n")
	b.WriteString("2. A shopping list grouped by category.\n")
	b.WriteString("3. Total prep time for the day.\n")
	b.WriteString("4. Chef tips for flavor and meal prep.\n\n")
	b.WriteString("Ensure the meals strictly adhere to the spice tolerance and flavor profile requested.")

	return inference.Request{
		Operation: inference.OpPlan,
		System:    systemInstruction,
		Text:      b.String(),
		Schema:    Schema(),
	}
}

func Schema() *jsonschema.Schema {
	str := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "string", Description: desc}
	}
	strList := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "array", Description: desc, Items: &jsonschema.Schema{Type: "string"}}
	}
	num := func() *jsonschema.Schema {
		return &jsonschema.Schema{Type: "number", Minimum: jsonschema.Ptr(0.0)}
	}

	meal := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"type": {
				Type: "string",
				Enum: []any{
					string(nutrilog.MealBreakfast), string(nutrilog.MealLunch),
					string(nutrilog.MealDinner), string(nutrilog.MealSnack),
				},
			},
			"description":      str("What the meal is"),
			"calories":         num(),
			"prepTime":         str("Preparation time, e.g. '15 min'"),
			"prepInstructions": strList("Ordered preparation steps"),
			"macros": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"protein": num(),
					"carbs":   num(),
					"fats":    num(),
				},
				Required: []string{"protein", "carbs", "fats"},
			},
		},
		Required: []string{"type", "description", "calories", "prepTime", "prepInstructions", "macros"},
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"id":    str("Unique plan identifier"),
			"name":  str("Short name for the plan"),
			"meals": {Type: "array", Items: meal, MinItems: jsonschema.Ptr(1)},
			"categorizedShoppingList": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"category": str("Store section, e.g. Produce"),
						"items":    strList("Items to buy in this section"),
					},
					Required: []string{"category", "items"},
				},
			},
			"prepTimeTotal": str("Total prep time for the day"),
			"chefTips":      strList("Practical cooking tips"),
		},
		Required: []string{"id", "name", "meals", "categorizedShoppingList", "prepTimeTotal", "chefTips"},
	}
}
