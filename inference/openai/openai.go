// Package openai adapts OpenAI-compatible chat completion endpoints to
// inference.Provider. BaseURL lets it target any server that speaks the same API.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"nutrilog"
	"nutrilog/inference"
)

const (
	defaultModelID     = "gpt-4o-mini"
	defaultMaxTokens   = 4096
	defaultTemperature = 0.2
	defaultTopP        = 0.9
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Options struct {
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

type Provider struct {
	client chatClient
	opts   Options
}

// NewClient builds an SDK client. An empty baseURL keeps the OpenAI default.
func NewClient(apiKey, baseURL string, httpClient nutrilog.HTTPClient) (*openai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(cfg), nil
}

func NewProvider(client chatClient, opts Options) *Provider {
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
	return &Provider{client: client, opts: opts}
}

func (p *Provider) Generate(ctx context.Context, req inference.Request) (string, error) {
	chatReq, err := p.buildRequest(req)
	if err != nil {
		return "", err
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		slog.Error("OPENAI: Chat completion failed", "operation", req.Operation, "error", err)
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}

	choice := resp.Choices[0]
	slog.Info("OPENAI: Chat completion succeeded",
		"operation", req.Operation,
		"model", p.opts.ModelID,
		"finish_reason", choice.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"output_tokens", resp.Usage.CompletionTokens,
	)

	switch choice.FinishReason {
	case openai.FinishReasonLength:
		return "", errors.New("model hit max completion tokens; consider increasing MAX_TOKENS")
	case openai.FinishReasonContentFilter:
		return "", errors.New("model response blocked by content filter")
	}

	if choice.Message.Content == "" {
		return "", errors.New("openai: empty response")
	}
	return choice.Message.Content, nil
}

func (p *Provider) buildRequest(req inference.Request) (openai.ChatCompletionRequest, error) {
	if req.Text == "" && req.Image == nil {
		return openai.ChatCompletionRequest{}, errors.New("openai: request has no content")
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if req.Image == nil {
		user.Content = req.Text
	} else {
		mime := req.Image.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		if req.Text != "" {
			user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: req.Text,
			})
		}
		user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image.Data),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	messages = append(messages, user)

	chatReq := openai.ChatCompletionRequest{
		Model:               p.opts.ModelID,
		Messages:            messages,
		MaxCompletionTokens: p.opts.MaxTokens,
		Temperature:         p.opts.Temperature,
		TopP:                p.opts.TopP,
	}
	if req.Schema != nil {
		// Strict mode is off: it forbids optional properties and numeric bounds,
		// both of which the response schemas use.
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName(req.Operation),
				Schema: req.Schema,
			},
		}
	}
	return chatReq, nil
}

func schemaName(op string) string {
	if op == "" {
		return "result"
	}
	return op
}
