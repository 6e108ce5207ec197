package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithydocument "github.com/aws/smithy-go/document"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrilog/inference"
)

// mockBedrockClient implements bedrockRuntimeClient and keeps the last input.
type mockBedrockClient struct {
	input    *bedrockruntime.ConverseInput
	response *bedrockruntime.ConverseOutput
	err      error
}

func (m *mockBedrockClient) Converse(ctx context.Context, input *bedrockruntime.ConverseInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.input = input
	return m.response, m.err
}

func output(stop types.StopReason, blocks ...types.ContentBlock) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		StopReason: stop,
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{Role: types.ConversationRoleAssistant, Content: blocks},
		},
		Usage: &types.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(20)},
	}
}

func toolUse(name string, input map[string]any) types.ContentBlock {
	return &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
		ToolUseId: aws.String("tu-1"),
		Name:      aws.String(name),
		Input:     document.NewLazyDocument(input),
	}}
}

func testSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"calories": {Type: "number"},
		},
		Required: []string{"calories"},
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		input    Options
		expected Options
	}{
		{
			name:  "empty options uses defaults",
			input: Options{},
			expected: Options{
				ModelID:     defaultModelID,
				MaxTokens:   defaultMaxTokens,
				Temperature: defaultTemperature,
				TopP:        defaultTopP,
			},
		},
		{
			name:     "custom options preserved",
			input:    Options{ModelID: "custom-model", MaxTokens: 2048, Temperature: 0.5, TopP: 0.8},
			expected: Options{ModelID: "custom-model", MaxTokens: 2048, Temperature: 0.5, TopP: 0.8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := &mockBedrockClient{}
			p := NewProvider(mockClient, tt.input)
			assert.Equal(t, tt.expected, p.opts)
		})
	}
}

func TestProvider_Generate(t *testing.T) {
	tests := []struct {
		name     string
		response *bedrockruntime.ConverseOutput
		err      error
		want     map[string]any
		wantText string
		wantErr  string
	}{
		{
			name:     "forced tool call returns its input as json",
			response: output(types.StopReasonToolUse, toolUse(ResultToolName, map[string]any{"calories": 390, "name": "toast"})),
			want:     map[string]any{"calories": float64(390), "name": "toast"},
		},
		{
			name: "stringified arrays are decoded",
			response: output(types.StopReasonToolUse, toolUse(ResultToolName, map[string]any{
				"items": `["egg","toast"]`,
			})),
			want: map[string]any{"items": []any{"egg", "toast"}},
		},
		{
			name:     "end turn with json text",
			response: output(types.StopReasonEndTurn, &types.ContentBlockMemberText{Value: "Here it is"}, &types.ContentBlockMemberText{Value: `{"calories": 10}`}),
			wantText: `{"calories": 10}`,
		},
		{
			name:     "tool use for another tool",
			response: output(types.StopReasonToolUse, toolUse("other", map[string]any{})),
			wantErr:  "without calling record_result",
		},
		{
			name:     "max tokens",
			response: output(types.StopReasonMaxTokens),
			wantErr:  "MaxTokens",
		},
		{
			name:     "content filtered",
			response: output(types.StopReasonContentFiltered),
			wantErr:  "safety filters",
		},
		{
			name:     "empty end turn",
			response: output(types.StopReasonEndTurn),
			wantErr:  "no content",
		},
		{
			name:    "converse error",
			err:     errors.New("ThrottlingException"),
			wantErr: "ThrottlingException",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider(&mockBedrockClient{response: tt.response, err: tt.err}, Options{})
			out, err := p.Generate(context.Background(), inference.Request{
				Operation: inference.OpEstimate,
				Text:      "2 eggs",
				Schema:    testSchema(),
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			if tt.wantText != "" {
				assert.Equal(t, tt.wantText, out)
				return
			}
			var got map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProvider_BuildInput(t *testing.T) {
	mockClient := &mockBedrockClient{response: output(types.StopReasonToolUse, toolUse(ResultToolName, map[string]any{"calories": 1}))}
	p := NewProvider(mockClient, Options{ModelID: "m"})

	_, err := p.Generate(context.Background(), inference.Request{
		System: "You are a nutritionist.",
		Text:   "Analyze this meal image.",
		Image:  &inference.Image{MIMEType: "image/png", Data: []byte{1, 2}},
		Schema: testSchema(),
	})
	require.NoError(t, err)

	in := mockClient.input
	require.NotNil(t, in)
	assert.Equal(t, "m", aws.ToString(in.ModelId))
	require.Len(t, in.System, 1)

	require.Len(t, in.Messages, 1)
	require.Len(t, in.Messages[0].Content, 2)
	img, ok := in.Messages[0].Content[0].(*types.ContentBlockMemberImage)
	require.True(t, ok, "image block comes first")
	assert.Equal(t, types.ImageFormatPng, img.Value.Format)
	_, ok = in.Messages[0].Content[1].(*types.ContentBlockMemberText)
	assert.True(t, ok)

	require.NotNil(t, in.ToolConfig)
	require.Len(t, in.ToolConfig.Tools, 1)
	choice, ok := in.ToolConfig.ToolChoice.(*types.ToolChoiceMemberTool)
	require.True(t, ok)
	assert.Equal(t, ResultToolName, aws.ToString(choice.Value.Name))
}

func TestProvider_NoSchemaNoTools(t *testing.T) {
	mockClient := &mockBedrockClient{response: output(types.StopReasonEndTurn, &types.ContentBlockMemberText{Value: "hi"})}
	p := NewProvider(mockClient, Options{})

	out, err := p.Generate(context.Background(), inference.Request{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.Nil(t, mockClient.input.ToolConfig)
}

func TestProvider_RejectsBadInput(t *testing.T) {
	p := NewProvider(&mockBedrockClient{}, Options{})

	_, err := p.Generate(context.Background(), inference.Request{})
	assert.ErrorContains(t, err, "no content")

	_, err = p.Generate(context.Background(), inference.Request{Image: &inference.Image{MIMEType: "image/tiff"}})
	assert.ErrorContains(t, err, "unsupported image type")
}

func TestNormalizeInput(t *testing.T) {
	in := map[string]any{
		"n":      smithydocument.Number("2.5"),
		"nested": map[string]any{"list": `[1,2]`},
		"plain":  "just text",
	}
	b, err := json.Marshal(normalizeInput(in))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2.5,"nested":{"list":[1,2]},"plain":"just text"}`, string(b))
}
