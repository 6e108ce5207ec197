package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrilog"
	"nutrilog/calibration"
	"nutrilog/coach"
	"nutrilog/estimation"
	"nutrilog/inference"
	"nutrilog/inference/fake"
	"nutrilog/planner"
	"nutrilog/store"
	"nutrilog/tracker"
)

var fixedNow = time.Date(2026, 3, 14, 12, 30, 0, 0, time.Local)

func clock() time.Time { return fixedNow }

type testEnv struct {
	session *mcp.ClientSession
	tracker *tracker.Tracker
}

func newTestEnv(t *testing.T, provider inference.Provider) testEnv {
	t.Helper()
	return newTestEnvWithStore(t, provider, store.NewMemory())
}

func newTestEnvWithStore(t *testing.T, provider inference.Provider, st store.Store) testEnv {
	t.Helper()
	ctx := context.Background()

	gateway := inference.NewGateway(provider, inference.GatewayOptions{})
	calibrator := calibration.NewService(gateway)
	tr, err := tracker.Open(ctx, st, "user-1", calibrator, tracker.Options{Now: clock})
	require.NoError(t, err)

	server := New(Deps{
		Estimator:  estimation.NewService(gateway),
		Calibrator: calibrator,
		Planner:    planner.NewService(gateway),
		Coach:      coach.NewService(gateway),
		Tracker:    tr,
		Now:        clock,
	})

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	return testEnv{session: cs, tracker: tr}
}

// call invokes a tool and decodes its text content into out.
func (e testEnv) call(t *testing.T, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := e.session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	if out != nil && !res.IsError {
		text, ok := res.Content[0].(*mcp.TextContent)
		require.True(t, ok)
		require.NoError(t, json.Unmarshal([]byte(text.Text), out))
	}
	return res
}

func errorText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.True(t, res.IsError)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func profileArgs() map[string]any {
	return map[string]any{
		"name":          "Sam",
		"age":           30,
		"gender":        "Male",
		"height":        180,
		"weight":        80,
		"activityLevel": "Moderately Active",
		"primaryGoal":   "Maintain",
	}
}

func TestServer_ListTools(t *testing.T) {
	env := newTestEnv(t, fake.NewCanned())

	res, err := env.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		assert.NotNil(t, tool.InputSchema, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"estimate_meal", "log_meal", "log_water", "calibrate_goals",
		"save_profile", "generate_plan", "remove_shopping_item", "daily_summary", "ask_coach",
	}, names)
}

func TestServer_EstimateMeal(t *testing.T) {
	tests := []struct {
		name      string
		args      map[string]any
		wantError string
		wantImage bool
	}{
		{
			name: "text",
			args: map[string]any{"text": "2 eggs and toast"},
		},
		{
			name:      "image",
			args:      map[string]any{"image_base64": base64.StdEncoding.EncodeToString([]byte("jpeg")), "mime_type": "image/png"},
			wantImage: true,
		},
		{
			name:      "bad base64",
			args:      map[string]any{"image_base64": "%%%"},
			wantError: "not valid base64",
		},
		{
			name:      "empty",
			args:      map[string]any{},
			wantError: "invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := fake.New(fake.Text(`{"name":"Eggs","calories":390,"macros":{"protein":20,"carbs":30,"fats":20,"calories":390},"items":["egg"],"confidence":0.8,"reasoning":"r"}`))
			env := newTestEnv(t, provider)

			var est nutrilog.NutritionEstimate
			res := env.call(t, "estimate_meal", tt.args, &est)

			if tt.wantError != "" {
				assert.Contains(t, errorText(t, res), tt.wantError)
				assert.Zero(t, provider.Calls())
				return
			}
			require.False(t, res.IsError)
			assert.Equal(t, "Eggs", est.Name)
			assert.Equal(t, 390.0, est.Calories)
			assert.Empty(t, env.tracker.Meals(), "estimates are not logged")

			reqs := provider.Requests()
			require.Len(t, reqs, 1)
			if tt.wantImage {
				require.NotNil(t, reqs[0].Image)
				assert.Equal(t, []byte("jpeg"), reqs[0].Image.Data)
				assert.Equal(t, "image/png", reqs[0].Image.MIMEType)
			}
		})
	}
}

func TestServer_LogMealAndSummary(t *testing.T) {
	env := newTestEnv(t, fake.NewCanned())

	var meal nutrilog.Meal
	res := env.call(t, "log_meal", map[string]any{"text": "2 eggs and toast"}, &meal)
	require.False(t, res.IsError)
	assert.NotEmpty(t, meal.ID)
	assert.Equal(t, "Scrambled Eggs on Toast", meal.Name)
	assert.True(t, fixedNow.Equal(meal.Timestamp))

	var water LogWaterOutput
	res = env.call(t, "log_water", map[string]any{"amount_ml": 250}, &water)
	require.False(t, res.IsError)
	assert.Equal(t, 250.0, water.Entry.AmountML)
	assert.Equal(t, 250.0, water.TodayML)

	var summary tracker.Summary
	res = env.call(t, "daily_summary", nil, &summary)
	require.False(t, res.IsError)
	require.Len(t, summary.Meals, 1)
	assert.Equal(t, 390.0, summary.Totals.Calories)
	assert.Equal(t, nutrilog.DefaultGoal.Calories-390, summary.Remaining.Calories)
	assert.Equal(t, 250.0, summary.WaterML)
	assert.Equal(t, nutrilog.DefaultGoal.Water-250, summary.WaterLeft)
}

func TestServer_LogMealFailureLogsNothing(t *testing.T) {
	env := newTestEnv(t, fake.New(fake.Text(`{"name":"x"}`)))

	res := env.call(t, "log_meal", map[string]any{"text": "mystery stew"}, nil)
	assert.Contains(t, errorText(t, res), "estimation failed")
	assert.Empty(t, env.tracker.Meals())
}

// mealsRejectingStore fails every write to the meal ledger.
type mealsRejectingStore struct {
	*store.Memory
}

func (s mealsRejectingStore) Save(ctx context.Context, key string, data []byte) error {
	if strings.HasPrefix(key, store.NamespaceMeals+"_") {
		return errors.New("disk full")
	}
	return s.Memory.Save(ctx, key, data)
}

func TestServer_LogMealSinkFailureResetsSession(t *testing.T) {
	env := newTestEnvWithStore(t, fake.NewCanned(), mealsRejectingStore{Memory: store.NewMemory()})

	for i := 0; i < 2; i++ {
		res := env.call(t, "log_meal", map[string]any{"text": "2 eggs and toast"}, nil)
		msg := errorText(t, res)
		assert.Contains(t, msg, "recording meal")
		assert.NotContains(t, msg, "invalid session transition", "the failed estimate is discarded before the next call")
	}
	assert.Empty(t, env.tracker.Meals())
}

func TestServer_LogWaterRejectsNonPositive(t *testing.T) {
	env := newTestEnv(t, fake.NewCanned())

	res := env.call(t, "log_water", map[string]any{"amount_ml": 0}, nil)
	assert.Contains(t, errorText(t, res), "invalid input")
	assert.Empty(t, env.tracker.Hydration())
}

func TestServer_CalibrateAndSaveProfile(t *testing.T) {
	env := newTestEnv(t, fake.NewCanned())

	var preview GoalOutput
	res := env.call(t, "calibrate_goals", profileArgs(), &preview)
	require.False(t, res.IsError)
	assert.Equal(t, calibration.SourceRemote, preview.Source)
	assert.Equal(t, 2100.0, preview.Goal.Calories)
	assert.Equal(t, nutrilog.DefaultGoal, env.tracker.Goal(), "preview does not persist")

	var saved GoalOutput
	res = env.call(t, "save_profile", profileArgs(), &saved)
	require.False(t, res.IsError)
	assert.Equal(t, 2100.0, saved.Goal.Calories)
	assert.Equal(t, saved.Goal, env.tracker.Goal())
	assert.True(t, env.tracker.Onboarded())
}

func TestServer_SaveProfileInvalid(t *testing.T) {
	env := newTestEnv(t, fake.NewCanned())

	args := profileArgs()
	args["age"] = 0
	res := env.call(t, "save_profile", args, nil)
	assert.Contains(t, errorText(t, res), "age must be positive")
	assert.False(t, env.tracker.Onboarded())
}

func TestServer_GeneratePlan(t *testing.T) {
	provider := fake.NewCanned()
	env := newTestEnv(t, provider)

	var plan nutrilog.MealPlan
	res := env.call(t, "generate_plan", map[string]any{
		"dietary_restrictions": "no peanuts",
		"spice_level":          "Spicy",
		"macro_preference":     "not a preference",
	}, &plan)
	require.False(t, res.IsError)
	assert.Equal(t, "plan-canned", plan.ID)
	assert.Len(t, plan.Meals, 3)

	plans := env.tracker.Plans()
	require.Len(t, plans, 1)
	assert.Equal(t, plan.ID, plans[0].ID)
}

func TestServer_RemoveShoppingItem(t *testing.T) {
	env := newTestEnv(t, fake.NewCanned())

	var plan nutrilog.MealPlan
	require.False(t, env.call(t, "generate_plan", nil, &plan).IsError)
	require.Equal(t, []string{"berries", "mixed greens", "zucchini"}, plan.CategorizedShoppingList[0].Items)

	var updated nutrilog.MealPlan
	res := env.call(t, "remove_shopping_item", map[string]any{"plan_id": plan.ID, "category": 0, "item": 1}, &updated)
	require.False(t, res.IsError)
	assert.Equal(t, []string{"berries", "zucchini"}, updated.CategorizedShoppingList[0].Items)
	assert.Equal(t, updated.CategorizedShoppingList, env.tracker.Plans()[0].CategorizedShoppingList)

	res = env.call(t, "remove_shopping_item", map[string]any{"plan_id": "missing", "category": 0, "item": 0}, nil)
	assert.Contains(t, errorText(t, res), "no plan")
}

func TestGeneratePlanInput_Config(t *testing.T) {
	profile := nutrilog.UserProfile{
		MacroPreference: nutrilog.MacroHighProtein,
		SpiceLevel:      nutrilog.SpiceMild,
	}

	cfg := GeneratePlanInput{
		DietaryRestrictions: "vegetarian",
		SpiceLevel:          string(nutrilog.SpiceSpicy),
		MacroPreference:     "unknown",
	}.config(profile)

	assert.Equal(t, "vegetarian", cfg.DietaryRestrictions)
	assert.Equal(t, nutrilog.SpiceSpicy, cfg.SpiceLevel)
	assert.Equal(t, nutrilog.MacroHighProtein, cfg.MacroPreference, "invalid override keeps the profile value")
}

func TestServer_AskCoach(t *testing.T) {
	t.Run("reply is recorded", func(t *testing.T) {
		env := newTestEnv(t, fake.NewCanned())

		var out AskCoachOutput
		res := env.call(t, "ask_coach", map[string]any{"question": "How am I doing?"}, &out)
		require.False(t, res.IsError)
		assert.Contains(t, out.Reply, "not a doctor")

		chat := env.tracker.Chat()
		require.Len(t, chat, 3)
		assert.Equal(t, coach.Greeting, chat[0].Text)
		assert.Equal(t, nutrilog.RoleUser, chat[1].Role)
		assert.Equal(t, "How am I doing?", chat[1].Text)
		assert.Equal(t, nutrilog.RoleModel, chat[2].Role)
	})

	t.Run("failure records the apology", func(t *testing.T) {
		env := newTestEnv(t, fake.New(fake.Text(`not json`)))

		res := env.call(t, "ask_coach", map[string]any{"question": "Hi"}, nil)
		assert.Contains(t, errorText(t, res), "coach unavailable")

		chat := env.tracker.Chat()
		require.Len(t, chat, 3)
		assert.Equal(t, coach.Apology, chat[2].Text)
	})
}
