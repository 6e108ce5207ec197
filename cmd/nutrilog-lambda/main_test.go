package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrilog"
	"nutrilog/app"
	"nutrilog/inference/fake"
	"nutrilog/store"
	"nutrilog/tracker"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)

	a, err := app.New(ctx, app.Config{UserID: "lambda-user"}, app.Options{
		Provider: fake.NewCanned(),
		Store:    store.NewMemory(),
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(ctx) })
	return a
}

func TestHandle(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	out, err := handle(ctx, a, Params{Action: "estimate", Text: "2 eggs"})
	require.NoError(t, err)
	assert.Equal(t, 390.0, out.(nutrilog.NutritionEstimate).Calories)
	assert.Empty(t, a.Tracker.Meals())

	out, err = handle(ctx, a, Params{Action: "log", Text: "2 eggs"})
	require.NoError(t, err)
	assert.NotEmpty(t, out.(nutrilog.Meal).ID)
	assert.Len(t, a.Tracker.Meals(), 1)

	_, err = handle(ctx, a, Params{Action: "water", AmountML: 300})
	require.NoError(t, err)

	out, err = handle(ctx, a, Params{Action: "summary"})
	require.NoError(t, err)
	s := out.(tracker.Summary)
	assert.Equal(t, 390.0, s.Totals.Calories)
	assert.Equal(t, 300.0, s.WaterML)

	out, err = handle(ctx, a, Params{Action: "plan", Restrictions: "no nuts"})
	require.NoError(t, err)
	assert.Equal(t, "plan-canned", out.(nutrilog.MealPlan).ID)

	_, err = handle(ctx, a, Params{Action: "calibrate", Profile: &nutrilog.UserProfile{
		Name: "Sam", Age: 30, Gender: nutrilog.GenderMale, HeightCM: 180, WeightKG: 80,
		ActivityLevel: nutrilog.ActivityModeratelyActive, PrimaryGoal: nutrilog.GoalMaintain,
	}})
	require.NoError(t, err)
	assert.Equal(t, 2100.0, a.Tracker.Goal().Calories)

	out, err = handle(ctx, a, Params{Action: "chat", Text: "How am I doing?"})
	require.NoError(t, err)
	assert.Contains(t, out.(nutrilog.ChatMessage).Text, "not a doctor")
}

func TestHandle_Errors(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr string
	}{
		{name: "unknown action", params: Params{Action: "dance"}, wantErr: `unknown action "dance"`},
		{name: "calibrate without profile", params: Params{Action: "calibrate"}, wantErr: "profile is required"},
		{name: "bad image", params: Params{Action: "estimate", ImageBase64: "%%"}, wantErr: "not valid base64"},
		{name: "empty meal", params: Params{Action: "log"}, wantErr: "invalid input"},
		{name: "zero water", params: Params{Action: "water"}, wantErr: "must be positive"},
		{name: "share without slack", params: Params{Action: "summary", Share: true}, wantErr: "SLACK_WEBHOOK_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t)
			_, err := handle(context.Background(), a, tt.params)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
