// Package ollama talks to a local Ollama server over its /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"nutrilog"
	"nutrilog/inference"
)

type options struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumCtx        int     `json:"num_ctx,omitempty"`
}

type Client struct {
	endpoint   string
	model      string
	httpClient nutrilog.HTTPClient
	options    options
}

type ClientOpts struct {
	BaseEndpoint string
	ModelID      string
	HTTPClient   nutrilog.HTTPClient
}

func NewClient(opts ClientOpts) (*Client, error) {
	if strings.TrimSpace(opts.BaseEndpoint) == "" {
		return nil, errors.New("ollama: base endpoint is required")
	}
	if opts.ModelID == "" {
		return nil, errors.New("ollama: model id is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Client{
		model:      opts.ModelID,
		httpClient: opts.HTTPClient,
		endpoint:   strings.TrimRight(opts.BaseEndpoint, "/") + "/api/chat",
		options: options{
			Temperature:   0.2,
			TopP:          0.9,
			RepeatPenalty: 1.05,
			NumCtx:        16384, // plan prompts plus the schema fit comfortably; raise for bigger models
		},
	}, nil
}

type wireMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type wireRequest struct {
	Model    string             `json:"model"`
	Messages []wireMessage      `json:"messages"`
	Format   *jsonschema.Schema `json:"format,omitempty"`
	Stream   bool               `json:"stream"`
	Options  options            `json:"options,omitempty"`
}

type wireResponse struct {
	Message         wireMessage `json:"message"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

// Generate sends one non-streaming chat request. When the request carries a
// schema it is passed as Ollama's structured-output "format".
func (c *Client) Generate(ctx context.Context, req inference.Request) (string, error) {
	msgs, err := buildMessages(req)
	if err != nil {
		return "", err
	}

	reqBytes, err := json.Marshal(wireRequest{
		Model:    c.model,
		Messages: msgs,
		Format:   req.Schema,
		Stream:   false,
		Options:  c.options,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(reqBytes))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OLLAMA: %s: %s", resp.Status, string(body))
	}

	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		slog.Warn("OLLAMA: Decode failed", "error", err, "body_len", len(body))
		return "", fmt.Errorf("ollama: decoding response: %w", err)
	}

	slog.Info("OLLAMA: Chat succeeded",
		"operation", req.Operation,
		"model", c.model,
		"done_reason", wr.DoneReason,
		"prompt_tokens", wr.PromptEvalCount,
		"output_tokens", wr.EvalCount,
	)

	if strings.TrimSpace(wr.Message.Content) == "" {
		return "", errors.New("ollama: empty response")
	}
	return wr.Message.Content, nil
}

// buildMessages puts the system instruction first and attaches any image to
// the user turn as base64, which is how Ollama accepts multimodal input.
func buildMessages(req inference.Request) ([]wireMessage, error) {
	if req.Text == "" && req.Image == nil {
		return nil, errors.New("ollama: request has no content")
	}

	messages := make([]wireMessage, 0, 2)
	if sp := strings.TrimSpace(req.System); sp != "" {
		messages = append(messages, wireMessage{Role: "system", Content: sp})
	}

	user := wireMessage{Role: "user", Content: req.Text}
	if req.Image != nil {
		user.Images = []string{base64.StdEncoding.EncodeToString(req.Image.Data)}
	}
	return append(messages, user), nil
}
