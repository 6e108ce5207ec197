package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joeshaw/envdecode"

	"nutrilog"
	"nutrilog/app"
	"nutrilog/estimation"
	"nutrilog/session"
	"nutrilog/slack"
)

type Params struct {
	Action string `json:"action"`
	// UserID overrides NUTRILOG_USER_ID.
	UserID string `json:"user_id,omitempty"`

	Text         string                `json:"text,omitempty"`
	ImageBase64  string                `json:"image_base64,omitempty"`
	MIMEType     string                `json:"mime_type,omitempty"`
	AmountML     float64               `json:"amount_ml,omitempty"`
	Profile      *nutrilog.UserProfile `json:"profile,omitempty"`
	Restrictions string                `json:"restrictions,omitempty"`
	Share        bool                  `json:"share,omitempty"`
}

type Results struct {
	Output any `json:"output"`
}

func main() {
	fn := func(ctx context.Context, params Params) (Results, error) {
		var cfg app.Config
		if err := envdecode.Decode(&cfg); err != nil {
			return Results{}, fmt.Errorf("failed to decode config: %w", err)
		}
		nutrilog.SetupLogging(cfg.Log, os.Stdout)
		if params.UserID != "" {
			cfg.UserID = params.UserID
		}

		a, err := app.New(ctx, cfg, app.Options{InferenceLogger: nutrilog.NewStdoutInferenceLogger()})
		if err != nil {
			slog.Error("SETUP: Failed to start", "error", err)
			return Results{}, err
		}
		defer func() {
			if err := a.Close(ctx); err != nil {
				slog.Error("SETUP: Failed to shut down cleanly", "error", err)
			}
		}()

		output, err := handle(ctx, a, params)
		if err != nil {
			slog.Error("RESULT: Error handling action", "action", params.Action, "error", err)
			return Results{}, err
		}
		return Results{Output: output}, nil
	}

	lambda.Start(fn)
}

func handle(ctx context.Context, a *app.App, p Params) (any, error) {
	switch p.Action {
	case "estimate":
		in, err := mealInput(p)
		if err != nil {
			return nil, err
		}
		return a.Estimator.Estimate(ctx, in)

	case "log":
		in, err := mealInput(p)
		if err != nil {
			return nil, err
		}
		sess := session.New(a.Estimator, a.Tracker, session.Options{Now: a.Now})
		if _, err := sess.Submit(ctx, in); err != nil {
			return nil, err
		}
		meal, _, err := sess.Confirm(ctx)
		return meal, err

	case "calibrate":
		if p.Profile == nil {
			return nil, fmt.Errorf("%w: profile is required", nutrilog.ErrInvalidInput)
		}
		goal, source, err := a.Tracker.CompleteOnboarding(ctx, *p.Profile)
		if err != nil {
			return nil, err
		}
		return map[string]any{"goal": goal, "source": source}, nil

	case "plan":
		profile, _ := a.Tracker.EditProfile()
		cfg := nutrilog.PlanConfigurationFromProfile(profile)
		cfg.DietaryRestrictions = p.Restrictions
		plan, err := a.Planner.Generate(ctx, a.Tracker.Goal(), cfg)
		if err != nil {
			return nil, err
		}
		if err := a.Tracker.SavePlan(ctx, plan); err != nil {
			return nil, err
		}
		if p.Share {
			if err := a.Share(ctx, slack.FormatPlan(plan)); err != nil {
				return nil, err
			}
		}
		return plan, nil

	case "water":
		return a.Tracker.AddHydration(ctx, p.AmountML)

	case "summary":
		s := a.Tracker.Today(a.Now())
		if p.Share {
			if err := a.Share(ctx, slack.FormatSummary(s)); err != nil {
				return nil, err
			}
		}
		return s, nil

	case "chat":
		reply, err := a.Coach.Converse(ctx, a.Tracker, a.Now(), p.Text)
		if err != nil {
			return nil, err
		}
		return reply, nil

	default:
		return nil, fmt.Errorf("%w: unknown action %q", nutrilog.ErrInvalidInput, p.Action)
	}
}

func mealInput(p Params) (estimation.Input, error) {
	in := estimation.Input{Text: p.Text, MIMEType: p.MIMEType}
	if p.ImageBase64 != "" {
		img, err := base64.StdEncoding.DecodeString(p.ImageBase64)
		if err != nil {
			return estimation.Input{}, fmt.Errorf("%w: image_base64 is not valid base64", nutrilog.ErrInvalidInput)
		}
		in.Image = img
	}
	return in, nil
}
