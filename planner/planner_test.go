package planner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrilog"
	"nutrilog/inference"
	"nutrilog/inference/fake"
)

const planReply = `Here is your plan:
{
  "id": "%s",
  "name": "Spicy Umami Day",
  "meals": [
    {"type": "Breakfast", "description": "Kimchi omelette", "calories": 420, "prepTime": "10 min",
     "prepInstructions": ["Beat eggs", "Fold in kimchi"], "macros": {"protein": 28, "carbs": 8, "fats": 30}},
    {"type": "Dinner", "description": "Mapo tofu with rice", "calories": 750, "prepTime": "25 min",
     "prepInstructions": ["Brown pork", "Simmer tofu in sauce"], "macros": {"protein": 40, "carbs": 80, "fats": 28}}
  ],
  "categorizedShoppingList": [{"category": "Produce", "items": ["scallions"]}],
  "prepTimeTotal": "35 min",
  "chefTips": ["Toast the Sichuan peppercorns first."]
}`

func newTestService(responses ...fake.Response) (*Service, *fake.Provider) {
	p := fake.New(responses...)
	svc := NewService(inference.NewGateway(p, inference.GatewayOptions{}))
	svc.newID = func() string { return "generated-id" }
	return svc, p
}

func reply(id string) fake.Response {
	return fake.Text(fmt.Sprintf(planReply, id))
}

func TestGenerate(t *testing.T) {
	svc, p := newTestService(reply("plan-42"))

	cfg := nutrilog.PlanConfiguration{
		MacroPreference: nutrilog.MacroHighProtein,
		SnackPreference: nutrilog.SnackNone,
		SpiceLevel:      nutrilog.SpiceSpicy,
		TasteProfile:    nutrilog.TasteUmami,
	}
	plan, err := svc.Generate(context.Background(), nutrilog.DefaultGoal, cfg)
	require.NoError(t, err)

	assert.Equal(t, "plan-42", plan.ID)
	assert.Equal(t, "Spicy Umami Day", plan.Name)
	require.Len(t, plan.Meals, 2)
	assert.Equal(t, nutrilog.MealDinner, plan.Meals[1].Type)
	assert.Equal(t, []string{"Brown pork", "Simmer tofu in sauce"}, plan.Meals[1].PrepInstructions)
	assert.Equal(t, "35 min", plan.PrepTimeTotal)

	text := p.Requests()[0].Text
	for _, want := range []string{
		"Calories: 2200", "Protein: 160g",
		"Meal Composition: High Protein", "Snack Strategy: None",
		"Spice Tolerance: Spicy", "Flavor Profile: Umami",
		"Notes/Restrictions: None",
	} {
		assert.Contains(t, text, want)
	}
}

func TestGenerate_EmptyIDReplaced(t *testing.T) {
	svc, _ := newTestService(reply(""))

	plan, err := svc.Generate(context.Background(), nutrilog.DefaultGoal, nutrilog.PlanConfiguration{DietaryRestrictions: "no peanuts"})
	require.NoError(t, err)
	assert.Equal(t, "generated-id", plan.ID)
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		reply   fake.Response
		wantErr error
	}{
		{
			name:    "provider error",
			reply:   fake.Error(errors.New("timeout")),
			wantErr: nutrilog.ErrInferenceUnavailable,
		},
		{
			name:    "unknown meal type",
			reply:   fake.Text(`{"id":"x","name":"n","meals":[{"type":"Brunch","description":"d","calories":1,"prepTime":"1","prepInstructions":[],"macros":{"protein":1,"carbs":1,"fats":1}}],"categorizedShoppingList":[],"prepTimeTotal":"1","chefTips":[]}`),
			wantErr: nutrilog.ErrInferenceParse,
		},
		{
			name:    "no meals",
			reply:   fake.Text(`{"id":"x","name":"n","meals":[],"categorizedShoppingList":[],"prepTimeTotal":"1","chefTips":[]}`),
			wantErr: nutrilog.ErrInferenceParse,
		},
		{
			name:    "missing shopping list",
			reply:   fake.Text(`{"id":"x","name":"n","meals":[{"type":"Lunch","description":"d","calories":1,"prepTime":"1","prepInstructions":[],"macros":{"protein":1,"carbs":1,"fats":1}}],"prepTimeTotal":"1","chefTips":[]}`),
			wantErr: nutrilog.ErrInferenceParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(tt.reply)

			plan, err := svc.Generate(context.Background(), nutrilog.DefaultGoal, nutrilog.PlanConfiguration{})
			assert.ErrorIs(t, err, nutrilog.ErrPlanSynthesisFailed)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, nutrilog.MealPlan{}, plan)
		})
	}
}

func TestCheck(t *testing.T) {
	assert.Error(t, check(nutrilog.MealPlan{}))
	assert.Error(t, check(nutrilog.MealPlan{Meals: []nutrilog.PlannedMeal{{Type: "Elevenses"}}}))
	assert.NoError(t, check(nutrilog.MealPlan{Meals: []nutrilog.PlannedMeal{{Type: nutrilog.MealSnack}}}))
}

func TestSchemaResolves(t *testing.T) {
	_, err := Schema().Resolve(nil)
	assert.NoError(t, err)
}
