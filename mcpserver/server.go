// Package mcpserver exposes the nutrition pipeline as MCP tools for one user.
package mcpserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"nutrilog"
	"nutrilog/calibration"
	"nutrilog/coach"
	"nutrilog/estimation"
	"nutrilog/session"
	"nutrilog/tracker"
)

const (
	serverName    = "nutrilog"
	serverVersion = "v1.0.0"
)

type Estimator interface {
	Estimate(ctx context.Context, in estimation.Input) (nutrilog.NutritionEstimate, error)
}

type Planner interface {
	Generate(ctx context.Context, goal nutrilog.UserGoal, cfg nutrilog.PlanConfiguration) (nutrilog.MealPlan, error)
}

type Coach interface {
	Converse(ctx context.Context, l coach.Ledger, now time.Time, question string) (nutrilog.ChatMessage, error)
}

type Deps struct {
	Estimator  Estimator
	Calibrator tracker.Calibrator
	Planner    Planner
	Coach      Coach
	Tracker    *tracker.Tracker
	Now        func() time.Time
}

type handlers struct {
	Deps
	logging *session.Session
}

// New builds an MCP server with every tool registered.
func New(deps Deps) *mcp.Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	h := &handlers{
		Deps:    deps,
		logging: session.New(deps.Estimator, deps.Tracker, session.Options{Now: deps.Now}),
	}

	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "estimate_meal",
		Description: "Estimate calories, macros and ingredients for a meal from a description or a base64 image. Nothing is logged.",
	}, h.estimateMeal)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "log_meal",
		Description: "Estimate a meal from its description and confirm it into today's ledger.",
	}, h.logMeal)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "log_water",
		Description: "Add a hydration entry in millilitres.",
	}, h.logWater)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "calibrate_goals",
		Description: "Compute daily calorie, macro and water goals for a profile without saving anything.",
	}, h.calibrateGoals)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_profile",
		Description: "Save the user's profile and recalibrate their daily goals.",
	}, h.saveProfile)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_plan",
		Description: "Generate and save a one-day meal plan with a categorized shopping list for the current goals.",
	}, h.generatePlan)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_shopping_item",
		Description: "Remove one item from a saved plan's shopping list, e.g. once it has been bought.",
	}, h.removeShoppingItem)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "daily_summary",
		Description: "Today's meals, totals, water and what remains against the goal.",
	}, h.dailySummary)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_coach",
		Description: "Ask the nutrition assistant a question about today's intake. Informational only, not medical advice.",
	}, h.askCoach)

	slog.Info("MCP: Server ready", "user_id", deps.Tracker.UserID())
	return server
}

type EstimateMealInput struct {
	Text        string `json:"text,omitempty" jsonschema:"free-text meal description"`
	ImageBase64 string `json:"image_base64,omitempty" jsonschema:"base64-encoded meal photo"`
	MIMEType    string `json:"mime_type,omitempty" jsonschema:"image MIME type, defaults to image/jpeg"`
}

func (h *handlers) estimateMeal(ctx context.Context, req *mcp.CallToolRequest, in EstimateMealInput) (*mcp.CallToolResult, any, error) {
	input := estimation.Input{Text: in.Text, MIMEType: in.MIMEType}
	if in.ImageBase64 != "" {
		img, err := base64.StdEncoding.DecodeString(in.ImageBase64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: image_base64 is not valid base64", nutrilog.ErrInvalidInput)
		}
		input.Image = img
	}

	est, err := h.Estimator.Estimate(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return nil, est, nil
}

type LogMealInput struct {
	Text string `json:"text" jsonschema:"what was eaten, including portions if known"`
}

func (h *handlers) logMeal(ctx context.Context, req *mcp.CallToolRequest, in LogMealInput) (*mcp.CallToolResult, any, error) {
	if _, err := h.logging.Submit(ctx, estimation.Input{Text: in.Text}); err != nil {
		return nil, nil, err
	}
	meal, ok, err := h.logging.Confirm(ctx)
	if err != nil {
		// Leave the session clean for the next call.
		if discardErr := h.logging.Discard(); discardErr != nil {
			slog.Error("MCP: Failed to discard estimate", "error", discardErr)
			err = errors.Join(err, fmt.Errorf("discarding estimate: %w", discardErr))
		}
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: no estimate to confirm", session.ErrInvalidTransition)
	}
	return nil, meal, nil
}

type LogWaterInput struct {
	AmountML float64 `json:"amount_ml" jsonschema:"amount of water in millilitres"`
}

type LogWaterOutput struct {
	Entry   nutrilog.HydrationEntry `json:"entry"`
	TodayML float64                 `json:"today_ml"`
}

func (h *handlers) logWater(ctx context.Context, req *mcp.CallToolRequest, in LogWaterInput) (*mcp.CallToolResult, any, error) {
	entry, err := h.Tracker.AddHydration(ctx, in.AmountML)
	if err != nil {
		return nil, nil, err
	}
	return nil, LogWaterOutput{Entry: entry, TodayML: h.Tracker.Today(h.Now()).WaterML}, nil
}

type GoalOutput struct {
	Goal   nutrilog.UserGoal  `json:"goal"`
	Source calibration.Source `json:"source"`
}

func (h *handlers) calibrateGoals(ctx context.Context, req *mcp.CallToolRequest, in nutrilog.UserProfile) (*mcp.CallToolResult, any, error) {
	goal, source, err := h.Calibrator.Calibrate(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return nil, GoalOutput{Goal: goal, Source: source}, nil
}

func (h *handlers) saveProfile(ctx context.Context, req *mcp.CallToolRequest, in nutrilog.UserProfile) (*mcp.CallToolResult, any, error) {
	goal, source, err := h.Tracker.CompleteOnboarding(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return nil, GoalOutput{Goal: goal, Source: source}, nil
}

type GeneratePlanInput struct {
	DietaryRestrictions string `json:"dietary_restrictions,omitempty" jsonschema:"allergies, dislikes or other notes"`
	MacroPreference     string `json:"macro_preference,omitempty" jsonschema:"Balanced, High Carb, Low Carb, High Protein or Keto"`
	SnackPreference     string `json:"snack_preference,omitempty" jsonschema:"None, Low Calorie, High Protein or Energy Dense"`
	SpiceLevel          string `json:"spice_level,omitempty" jsonschema:"Mild, Medium, Spicy or Extra Hot"`
	TasteProfile        string `json:"taste_profile,omitempty" jsonschema:"Savory, Sweet, Balanced, Umami or Fresh"`
}

// config starts from the saved profile's preferences and applies any valid overrides.
func (in GeneratePlanInput) config(profile nutrilog.UserProfile) nutrilog.PlanConfiguration {
	cfg := nutrilog.PlanConfigurationFromProfile(profile)
	cfg.DietaryRestrictions = in.DietaryRestrictions
	if v := nutrilog.MacroPreference(in.MacroPreference); v.Valid() {
		cfg.MacroPreference = v
	}
	if v := nutrilog.SnackPreference(in.SnackPreference); v.Valid() {
		cfg.SnackPreference = v
	}
	if v := nutrilog.SpiceLevel(in.SpiceLevel); v.Valid() {
		cfg.SpiceLevel = v
	}
	if v := nutrilog.TasteProfile(in.TasteProfile); v.Valid() {
		cfg.TasteProfile = v
	}
	return cfg
}

func (h *handlers) generatePlan(ctx context.Context, req *mcp.CallToolRequest, in GeneratePlanInput) (*mcp.CallToolResult, any, error) {
	profile, _ := h.Tracker.EditProfile()
	plan, err := h.Planner.Generate(ctx, h.Tracker.Goal(), in.config(profile))
	if err != nil {
		return nil, nil, err
	}
	if err := h.Tracker.SavePlan(ctx, plan); err != nil {
		return nil, nil, err
	}
	return nil, plan, nil
}

type RemoveShoppingItemInput struct {
	PlanID   string `json:"plan_id" jsonschema:"id of a saved plan"`
	Category int    `json:"category" jsonschema:"zero-based index into the shopping list"`
	Item     int    `json:"item" jsonschema:"zero-based index of the item within its category"`
}

func (h *handlers) removeShoppingItem(ctx context.Context, req *mcp.CallToolRequest, in RemoveShoppingItemInput) (*mcp.CallToolResult, any, error) {
	plan, err := h.Tracker.RemoveShoppingItem(ctx, in.PlanID, in.Category, in.Item)
	if err != nil {
		return nil, nil, err
	}
	return nil, plan, nil
}

type DailySummaryInput struct{}

func (h *handlers) dailySummary(ctx context.Context, req *mcp.CallToolRequest, in DailySummaryInput) (*mcp.CallToolResult, any, error) {
	return nil, h.Tracker.Today(h.Now()), nil
}

type AskCoachInput struct {
	Question string `json:"question" jsonschema:"the user's question"`
}

type AskCoachOutput struct {
	Reply string `json:"reply"`
}

func (h *handlers) askCoach(ctx context.Context, req *mcp.CallToolRequest, in AskCoachInput) (*mcp.CallToolResult, any, error) {
	reply, err := h.Coach.Converse(ctx, h.Tracker, h.Now(), in.Question)
	if err != nil {
		return nil, nil, err
	}
	return nil, AskCoachOutput{Reply: reply.Text}, nil
}
