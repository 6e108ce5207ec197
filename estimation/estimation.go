// Package estimation turns a meal photo or description into a nutrition estimate.
package estimation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"nutrilog"
	"nutrilog/inference"
)

const systemInstruction = `You are a world-class culinary nutritionist with expertise in global cuisines.
1. Analyze the input to detect the specific cuisine and dish name.
2. Identify authentic ingredients for that dish, including hidden fats and oils used in traditional cooking.
3. Estimate nutrition based on traditional preparation methods.
4. If portion sizes are not specified, assume standard serving sizes for the dish.
5. Break down complex meals into their individual ingredients.`

const imagePrompt = "Analyze this meal image. Identify the specific global dish, cuisine origin, ingredients, and estimate standard serving sizes."

const defaultMIMEType = "image/jpeg"

// Input is what the user captured. Text and Image may both be set; at least one must be.
type Input struct {
	Text     string
	Image    []byte
	MIMEType string
}

func (in Input) empty() bool {
	return strings.TrimSpace(in.Text) == "" && len(in.Image) == 0
}

type Service struct {
	gateway inference.Structured
}

func NewService(gateway inference.Structured) *Service {
	return &Service{gateway: gateway}
}

// Estimate asks the model for a structured estimate and rejects anything that
// is incomplete or out of range. It has no side effects.
func (s *Service) Estimate(ctx context.Context, in Input) (nutrilog.NutritionEstimate, error) {
	if in.empty() {
		return nutrilog.NutritionEstimate{}, fmt.Errorf("%w: meal text or image is required", nutrilog.ErrInvalidInput)
	}

	req := BuildRequest(in)
	slog.Info("ESTIMATION: Requesting estimate", "has_text", in.Text != "", "has_image", req.Image != nil)

	var est nutrilog.NutritionEstimate
	if err := s.gateway.GenerateStructured(ctx, req, &est); err != nil {
		slog.Error("ESTIMATION: Estimate failed", "error", err)
		return nutrilog.NutritionEstimate{}, fmt.Errorf("%w: %w", nutrilog.ErrEstimationFailed, err)
	}

	if err := guard(est); err != nil {
		slog.Warn("ESTIMATION: Rejected estimate", "name", est.Name, "error", err)
		return nutrilog.NutritionEstimate{}, fmt.Errorf("%w: %w", nutrilog.ErrEstimationFailed, err)
	}

	slog.Info("ESTIMATION: Estimate ready", "name", est.Name, "calories", est.Calories, "confidence", est.Confidence)
	return est, nil
}

// BuildRequest renders the gateway request for in. The image, when present,
// comes with a fixed analysis prompt; text is quoted as the meal description.
func BuildRequest(in Input) inference.Request {
	req := inference.Request{
		Operation: inference.OpEstimate,
		System:    systemInstruction,
		Schema:    Schema(),
	}

	var parts []string
	if len(in.Image) > 0 {
		mime := in.MIMEType
		if mime == "" {
			mime = defaultMIMEType
		}
		req.Image = &inference.Image{MIMEType: mime, Data: in.Image}
		parts = append(parts, imagePrompt)
	}
	if text := strings.TrimSpace(in.Text); text != "" {
		parts = append(parts, fmt.Sprintf("Analyze the following meal description: %q", text))
	}
	req.Text = strings.Join(parts, "\n")
	return req
}

func guard(est nutrilog.NutritionEstimate) error {
	var errs []error
	if strings.TrimSpace(est.Name) == "" {
		errs = append(errs, errors.New("name is empty"))
	}
	if math.IsNaN(est.Confidence) || est.Confidence < 0 || est.Confidence > 1 {
		errs = append(errs, fmt.Errorf("confidence %v outside [0,1]", est.Confidence))
	}
	for field, v := range map[string]float64{
		"calories":        est.Calories,
		"macros.protein":  est.Macros.Protein,
		"macros.carbs":    est.Macros.Carbs,
		"macros.fats":     est.Macros.Fats,
		"macros.calories": est.Macros.Calories,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("%s is %v", field, v))
		}
	}
	return errors.Join(errs...)
}

// Schema is the reply shape for one estimate. Each call returns a fresh tree.
func Schema() *jsonschema.Schema {
	grams := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "number", Description: desc, Minimum: jsonschema.Ptr(0.0)}
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name": {
				Type:        "string",
				Description: "Concise name of the dish, including its cultural name where relevant",
			},
			"calories": grams("Total estimated calories"),
			"macros": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"protein":  grams("Grams of protein"),
					"carbs":    grams("Grams of carbohydrates"),
					"fats":     grams("Grams of fat"),
					"calories": grams("Calories"),
				},
				Required: []string{"protein", "carbs", "fats", "calories"},
			},
			"items": {
				Type:        "array",
				Description: "List of identified ingredients with estimated quantities (e.g. '100g Chicken Breast')",
				Items:       &jsonschema.Schema{Type: "string"},
			},
			"confidence": {
				Type:        "number",
				Description: "Confidence score 0-1",
				Minimum:     jsonschema.Ptr(0.0),
				Maximum:     jsonschema.Ptr(1.0),
			},
			"reasoning": {
				Type:        "string",
				Description: "Brief explanation of identification and portion assumptions",
			},
		},
		Required: []string{"name", "calories", "macros", "items", "confidence", "reasoning"},
	}
}
