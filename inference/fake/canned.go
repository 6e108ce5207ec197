package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"nutrilog/inference"
)

// Canned answers every operation with a fixed, schema-valid reply. It lets the
// binaries run end to end without credentials. Replies are wrapped in a code
// fence the way real models often do, so the gateway's cleanup path is exercised.
type Canned struct{}

func NewCanned() *Canned {
	return &Canned{}
}

func (c *Canned) Generate(ctx context.Context, req inference.Request) (string, error) {
	slog.Info("FAKE_PROVIDER: Invoked", "operation", req.Operation)

	var reply any
	switch req.Operation {
	case inference.OpEstimate:
		reply = map[string]any{
			"name":     "Scrambled Eggs on Toast",
			"calories": 390,
			"macros": map[string]any{
				"protein": 20, "carbs": 30, "fats": 20, "calories": 390,
			},
			"items":      []string{"2 large eggs", "1 slice whole wheat toast", "5g butter"},
			"confidence": 0.8,
			"reasoning":  "Standard serving of two eggs scrambled in butter with one slice of toast.",
		}

	case inference.OpCalibrate:
		reply = map[string]any{
			"calories": 2100, "protein": 150, "carbs": 210, "fats": 70, "water": 2700, "weight": 75,
		}

	case inference.OpPlan:
		reply = map[string]any{
			"id":   "plan-canned",
			"name": "Balanced Day",
			"meals": []map[string]any{
				{
					"type": "Breakfast", "description": "Greek yogurt with oats and berries", "calories": 450,
					"prepTime":         "5 min",
					"prepInstructions": []string{"Spoon yogurt into a bowl", "Top with oats and berries"},
					"macros":           map[string]any{"protein": 30, "carbs": 55, "fats": 10},
				},
				{
					"type": "Lunch", "description": "Chicken quinoa bowl", "calories": 650,
					"prepTime":         "20 min",
					"prepInstructions": []string{"Cook quinoa", "Grill chicken", "Assemble with greens"},
					"macros":           map[string]any{"protein": 50, "carbs": 60, "fats": 18},
				},
				{
					"type": "Dinner", "description": "Baked salmon with roasted vegetables", "calories": 700,
					"prepTime":         "30 min",
					"prepInstructions": []string{"Roast vegetables", "Bake salmon for 12 minutes"},
					"macros":           map[string]any{"protein": 45, "carbs": 40, "fats": 35},
				},
			},
			"categorizedShoppingList": []map[string]any{
				{"category": "Produce", "items": []string{"berries", "mixed greens", "zucchini"}},
				{"category": "Protein", "items": []string{"chicken breast", "salmon fillet"}},
				{"category": "Pantry", "items": []string{"oats", "quinoa"}},
			},
			"prepTimeTotal": "55 min",
			"chefTips":      []string{"Cook a double batch of quinoa for tomorrow."},
		}

	case inference.OpCoach:
		reply = map[string]any{
			"reply": "I'm an AI assistant, not a doctor. You're on track today; a protein-rich snack would help close the gap.",
		}

	default:
		return "", fmt.Errorf("fake: no canned reply for operation %q", req.Operation)
	}

	b, err := json.Marshal(reply)
	if err != nil {
		return "", err
	}
	return "```json\n" + string(b) + "\n```", nil
}
