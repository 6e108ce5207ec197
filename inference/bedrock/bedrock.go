// Package bedrock adapts the AWS Bedrock Converse API to inference.Provider.
//
// Bedrock has no native JSON-schema response mode, so structured requests are
// sent with a single forced tool whose input schema is the response schema.
// The tool input the model produces is the structured reply.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithydocument "github.com/aws/smithy-go/document"
	"github.com/google/jsonschema-go/jsonschema"

	"nutrilog/inference"
)

const (
	// defaultModelID is an inference profile ID, not the foundation model's ID.
	// See https://docs.aws.amazon.com/bedrock/latest/userguide/inference-profiles.html.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	// Plans with prep instructions and shopping lists run long.
	defaultMaxTokens = 4096

	defaultTemperature = 0.2
	defaultTopP        = 0.9

	// ResultToolName is the tool the model is forced to call with its structured answer.
	ResultToolName = "record_result"
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type Options struct {
	ModelID     string
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type Provider struct {
	brc  bedrockRuntimeClient
	opts Options
}

func NewProvider(brc bedrockRuntimeClient, opts Options) *Provider {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}
	return &Provider{brc: brc, opts: opts}
}

func (p *Provider) Generate(ctx context.Context, req inference.Request) (string, error) {
	in, err := p.buildInput(req)
	if err != nil {
		return "", err
	}

	out, err := p.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("BEDROCK: Converse failed", "operation", req.Operation, "error", err)
		return "", err
	}

	if out.Usage != nil {
		slog.Info("BEDROCK: Converse succeeded",
			"operation", req.Operation,
			"stop_reason", out.StopReason,
			"input_tokens", aws.ToInt32(out.Usage.InputTokens),
			"output_tokens", aws.ToInt32(out.Usage.OutputTokens),
		)
	}

	switch out.StopReason {
	case types.StopReasonToolUse:
		input, ok, err := toolInputFromOutput(out, ResultToolName)
		if err != nil {
			return "", fmt.Errorf("failed to read %s input: %w", ResultToolName, err)
		}
		if !ok {
			return "", fmt.Errorf("model stopped for tool use without calling %s", ResultToolName)
		}
		return input, nil

	case types.StopReasonMaxTokens:
		slog.Warn("BEDROCK: Model hit MaxTokens limit", "operation", req.Operation, "max_tokens", p.opts.MaxTokens)
		return "", errors.New("model hit MaxTokens limit; consider increasing MAX_TOKENS")

	case types.StopReasonGuardrailIntervened, types.StopReasonContentFiltered:
		return "", errors.New("model response blocked by Bedrock safety filters")

	default:
		// end_turn / stop_sequence: a model that ignored the tool may still have answered in text.
		if input, ok, err := toolInputFromOutput(out, ResultToolName); err == nil && ok {
			return input, nil
		}
		text := textFromOutput(out)
		if text == "" {
			return "", errors.New("model returned no content")
		}
		return text, nil
	}
}

func (p *Provider) buildInput(req inference.Request) (*bedrockruntime.ConverseInput, error) {
	msg := types.Message{Role: types.ConversationRoleUser}

	if req.Image != nil {
		format, err := imageFormat(req.Image.MIMEType)
		if err != nil {
			return nil, err
		}
		msg.Content = append(msg.Content, &types.ContentBlockMemberImage{Value: types.ImageBlock{
			Format: format,
			Source: &types.ImageSourceMemberBytes{Value: req.Image.Data},
		}})
	}
	if req.Text != "" {
		msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: req.Text})
	}
	if len(msg.Content) == 0 {
		return nil, errors.New("bedrock: request has no content")
	}

	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(p.opts.ModelID),
		Messages: []types.Message{msg},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(p.opts.MaxTokens),
			Temperature: aws.Float32(p.opts.Temperature),
			TopP:        aws.Float32(p.opts.TopP),
		},
	}
	if req.System != "" {
		in.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}

	if req.Schema != nil {
		spec, err := buildToolSpec(ResultToolName, "Record the final structured answer.", req.Schema)
		if err != nil {
			return nil, err
		}
		in.ToolConfig = &types.ToolConfiguration{
			Tools: []types.Tool{&types.ToolMemberToolSpec{Value: spec}},
			ToolChoice: &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{
				Name: aws.String(ResultToolName),
			}},
		}
	}

	return in, nil
}

func imageFormat(mime string) (types.ImageFormat, error) {
	switch strings.ToLower(mime) {
	case "", "image/jpeg", "image/jpg":
		return types.ImageFormatJpeg, nil
	case "image/png":
		return types.ImageFormatPng, nil
	case "image/gif":
		return types.ImageFormatGif, nil
	case "image/webp":
		return types.ImageFormatWebp, nil
	default:
		return "", fmt.Errorf("bedrock: unsupported image type %q", mime)
	}
}

// buildToolSpec goes through JSON so the schema's own MarshalJSON decides the wire shape.
func buildToolSpec(name, description string, schema *jsonschema.Schema) (types.ToolSpecification, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return types.ToolSpecification{}, fmt.Errorf("failed to marshal tool schema for %s: %w", name, err)
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return types.ToolSpecification{}, fmt.Errorf("failed to unmarshal tool schema for %s: %w", name, err)
	}

	return types.ToolSpecification{
		Name:        aws.String(name),
		Description: aws.String(description),
		InputSchema: &types.ToolInputSchemaMemberJson{
			Value: document.NewLazyDocument(schemaMap),
		},
	}, nil
}

// toolInputFromOutput returns the JSON input of the first call to the named tool.
func toolInputFromOutput(out *bedrockruntime.ConverseOutput, name string) (string, bool, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return "", false, nil
	}

	for _, cb := range msg.Value.Content {
		tu, ok := cb.(*types.ContentBlockMemberToolUse)
		if !ok || tu == nil || aws.ToString(tu.Value.Name) != name {
			continue
		}
		if tu.Value.Input == nil {
			return "", false, errors.New("tool use has no input")
		}

		var input map[string]any
		if err := tu.Value.Input.UnmarshalSmithyDocument(&input); err != nil {
			return "", false, err
		}
		b, err := json.Marshal(normalizeInput(input))
		if err != nil {
			return "", false, err
		}
		return string(b), true, nil
	}
	return "", false, nil
}

// textFromOutput prefers the last text block that looks like a JSON object and
// otherwise joins all text blocks.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	if out == nil || out.Output == nil {
		return ""
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return ""
	}

	var texts []string
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && t != nil && t.Value != "" {
			texts = append(texts, t.Value)
		}
	}

	for i := len(texts) - 1; i >= 0; i-- {
		s := strings.TrimSpace(texts[i])
		if len(s) > 1 && s[0] == '{' && s[len(s)-1] == '}' {
			return s
		}
	}
	return strings.Join(texts, "\n")
}

// normalizeInput prepares decoded tool input for re-encoding. Smithy decodes
// numbers as smithydocument.Number, a string type, so they are turned back into
// JSON numbers. Values some models send as stringified JSON
// (e.g. "items": "[\"egg\"]") are decoded in place.
func normalizeInput(val any) any {
	switch v := val.(type) {
	case smithydocument.Number:
		return json.Number(v)

	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
			var decoded any
			if json.Unmarshal([]byte(trimmed), &decoded) == nil {
				return normalizeInput(decoded)
			}
		}
		return v

	case []any:
		for i := range v {
			v[i] = normalizeInput(v[i])
		}
		return v

	case map[string]any:
		for key, val := range v {
			v[key] = normalizeInput(val)
		}
		return v

	default:
		return v
	}
}
