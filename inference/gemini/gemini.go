// Package gemini adapts Google's Gemini models to inference.Provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/api/option"

	"nutrilog/inference"
)

const (
	defaultModelID     = "gemini-2.5-flash"
	defaultTemperature = 0.2
	defaultTopP        = 0.9
	defaultMaxTokens   = 4096
)

// generator is the part of the SDK the provider calls. It takes the configured
// model so tests can inspect the request without a network round trip.
type generator interface {
	GenerateContent(ctx context.Context, model *genai.GenerativeModel, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type sdkGenerator struct{}

func (sdkGenerator) GenerateContent(ctx context.Context, model *genai.GenerativeModel, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	return model.GenerateContent(ctx, parts...)
}

type Options struct {
	ModelID     string
	Temperature float32
	TopP        float32
	MaxTokens   int32
}

type Provider struct {
	newModel func(name string) *genai.GenerativeModel
	gen      generator
	opts     Options
}

// NewClient creates the SDK client. Callers own it and must Close it.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	return genai.NewClient(ctx, option.WithAPIKey(apiKey))
}

func NewProvider(client *genai.Client, opts Options) *Provider {
	return newProvider(client.GenerativeModel, sdkGenerator{}, opts)
}

func newProvider(newModel func(string) *genai.GenerativeModel, gen generator, opts Options) *Provider {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	return &Provider{newModel: newModel, gen: gen, opts: opts}
}

func (p *Provider) Generate(ctx context.Context, req inference.Request) (string, error) {
	model := p.newModel(p.opts.ModelID)
	model.SetTemperature(p.opts.Temperature)
	model.SetTopP(p.opts.TopP)
	model.SetMaxOutputTokens(p.opts.MaxTokens)
	if req.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}
	if req.Schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = toGenaiSchema(req.Schema)
	}

	var parts []genai.Part
	if req.Image != nil {
		mime := req.Image.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, genai.Blob{MIMEType: mime, Data: req.Image.Data})
	}
	if req.Text != "" {
		parts = append(parts, genai.Text(req.Text))
	}
	if len(parts) == 0 {
		return "", errors.New("gemini: request has no content")
	}

	resp, err := p.gen.GenerateContent(ctx, model, parts...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			slog.Warn("GEMINI: Response blocked by safety filters", "operation", req.Operation)
		}
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := textFromResponse(resp)
	if text == "" {
		return "", errors.New("gemini: empty response")
	}

	if resp.UsageMetadata != nil {
		slog.Info("GEMINI: Generate succeeded",
			"operation", req.Operation,
			"model", p.opts.ModelID,
			"prompt_tokens", resp.UsageMetadata.PromptTokenCount,
			"output_tokens", resp.UsageMetadata.CandidatesTokenCount,
		)
	}
	return text, nil
}

func textFromResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// toGenaiSchema converts the subset of JSON Schema Gemini understands.
// Numeric bounds are dropped; the gateway enforces them after the fact.
func toGenaiSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Type:        genaiType(s.Type),
		Description: s.Description,
		Format:      s.Format,
		Required:    s.Required,
	}
	for _, e := range s.Enum {
		if str, ok := e.(string); ok {
			out.Enum = append(out.Enum, str)
		}
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}

func genaiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
