// Package calibration derives daily goals from a biometric profile.
//
// The remote model tailors the goal to the user's objective. When it cannot,
// a locally computed goal is returned instead, so Calibrate only fails on an
// invalid profile.
package calibration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/jsonschema-go/jsonschema"

	"nutrilog"
	"nutrilog/energy"
	"nutrilog/inference"
)

const systemInstruction = "You are a sports nutritionist. Compute realistic, evidence-based daily nutrition targets."

// DefaultWaterML is the fallback daily water target.
const DefaultWaterML = 2500

type Source string

const (
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

type Service struct {
	gateway inference.Structured
}

func NewService(gateway inference.Structured) *Service {
	return &Service{gateway: gateway}
}

// Calibrate returns the goal for p and where it came from. Any gateway failure,
// or a remote goal with no calories, yields Fallback(p).
func (s *Service) Calibrate(ctx context.Context, p nutrilog.UserProfile) (nutrilog.UserGoal, Source, error) {
	if err := p.Validate(); err != nil {
		return nutrilog.UserGoal{}, "", err
	}

	e := energy.ComputeTDEE(p)
	req, err := BuildRequest(p, e)
	if err != nil {
		return nutrilog.UserGoal{}, "", err
	}

	var goal nutrilog.UserGoal
	if err := s.gateway.GenerateStructured(ctx, req, &goal); err != nil {
		slog.Warn("CALIBRATION: Using fallback goal",
			"error", fmt.Errorf("%w: %w", nutrilog.ErrCalibrationFailed, err),
			"tdee", e.TDEE,
		)
		return Fallback(p), SourceFallback, nil
	}

	goal = clamp(goal)
	if goal.Calories == 0 {
		slog.Warn("CALIBRATION: Using fallback goal", "error", nutrilog.ErrCalibrationFailed, "reason", "remote goal has no calories")
		return Fallback(p), SourceFallback, nil
	}

	slog.Info("CALIBRATION: Goal calibrated", "calories", goal.Calories, "protein", goal.Protein, "goal", p.PrimaryGoal)
	return goal, SourceRemote, nil
}

// Fallback computes the goal locally from the Mifflin-St Jeor TDEE:
// 40% of energy from carbs, 30% from fat and 2 g protein per kg of body weight.
func Fallback(p nutrilog.UserProfile) nutrilog.UserGoal {
	tdee := energy.ComputeTDEE(p).TDEE
	return nutrilog.UserGoal{
		Calories: math.Round(tdee),
		Protein:  p.WeightKG * 2,
		Carbs:    math.Round(tdee * 0.4 / 4),
		Fats:     math.Round(tdee * 0.3 / 9),
		Water:    DefaultWaterML,
		WeightKG: p.WeightKG,
	}
}

// BuildRequest anchors the prompt to the locally computed BMR and TDEE.
func BuildRequest(p nutrilog.UserProfile, e energy.Energy) (inference.Request, error) {
	profile, err := json.Marshal(p)
	if err != nil {
		return inference.Request{}, fmt.Errorf("encoding profile: %w", err)
	}

	text := fmt.Sprintf(`Calculate optimal daily nutritional goals for this user profile: %s.

Baseline Mathematical Calculation (Mifflin-St Jeor):
- BMR: %d kcal
- TDEE: %d kcal

Use this baseline to scientifically adjust calories and macros based on their specific goal (%s). Return JSON.`,
		profile, int(math.Round(e.BMR)), int(math.Round(e.TDEE)), p.PrimaryGoal)

	return inference.Request{
		Operation: inference.OpCalibrate,
		System:    systemInstruction,
		Text:      text,
		Schema:    Schema(),
	}, nil
}

func clamp(g nutrilog.UserGoal) nutrilog.UserGoal {
	for _, v := range []*float64{&g.Calories, &g.Protein, &g.Carbs, &g.Fats, &g.Water, &g.WeightKG} {
		if *v < 0 {
			*v = 0
		}
	}
	return g
}

func Schema() *jsonschema.Schema {
	num := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "number", Description: desc}
	}
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"calories": num("Daily calorie target in kcal"),
			"protein":  num("Daily protein target in grams"),
			"carbs":    num("Daily carbohydrate target in grams"),
			"fats":     num("Daily fat target in grams"),
			"water":    num("Daily water target in ml"),
			"weight":   num("Current body weight in kg"),
		},
		Required: []string{"calories", "protein", "carbs", "fats", "water", "weight"},
	}
}
