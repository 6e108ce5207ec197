package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"nutrilog"
)

// Gateway validates provider output against the request schema before decoding it.
// It never retries; a failed call is reported to the caller as-is.
type Gateway struct {
	provider Provider
	logger   nutrilog.InferenceLogger
	now      func() time.Time
}

type GatewayOptions struct {
	Logger nutrilog.InferenceLogger
}

func NewGateway(provider Provider, opts GatewayOptions) *Gateway {
	if opts.Logger == nil {
		opts.Logger = nutrilog.NewNoOpInferenceLogger()
	}
	return &Gateway{
		provider: provider,
		logger:   opts.Logger,
		now:      time.Now,
	}
}

// GenerateStructured sends req to the provider and decodes the validated reply into out.
// Provider failures wrap nutrilog.ErrInferenceUnavailable; replies that are not a JSON
// object satisfying req.Schema wrap nutrilog.ErrInferenceParse.
func (g *Gateway) GenerateStructured(ctx context.Context, req Request, out any) error {
	var resolved interface{ Validate(any) error }
	if req.Schema != nil {
		rs, err := req.Schema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("resolving %s schema: %w", req.Operation, err)
		}
		resolved = rs
	}

	slog.Debug("GATEWAY: Sending request",
		"operation", req.Operation,
		"text_len", len(req.Text),
		"has_image", req.Image != nil,
	)

	start := g.now()
	raw, err := g.provider.Generate(ctx, req)
	g.record(req, raw, start, err)
	if err != nil {
		slog.Error("GATEWAY: Provider call failed", "operation", req.Operation, "error", err)
		return fmt.Errorf("%w: %w", nutrilog.ErrInferenceUnavailable, err)
	}

	if err := decodeValidated(raw, resolved, out); err != nil {
		slog.Warn("GATEWAY: Rejected model output", "operation", req.Operation, "error", err, "output_len", len(raw))
		return fmt.Errorf("%w: %w", nutrilog.ErrInferenceParse, err)
	}

	slog.Info("GATEWAY: Request completed", "operation", req.Operation, "duration", g.now().Sub(start))
	return nil
}

func decodeValidated(raw string, schema interface{ Validate(any) error }, out any) error {
	text, err := CleanJSON(raw)
	if err != nil {
		return err
	}

	var instance any
	if err := json.Unmarshal([]byte(text), &instance); err != nil {
		return fmt.Errorf("decoding model output: %w", err)
	}

	if schema != nil {
		if err := schema.Validate(instance); err != nil {
			return fmt.Errorf("validating model output: %w", err)
		}
	}

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decoding model output into %T: %w", out, err)
	}
	return nil
}

func (g *Gateway) record(req Request, raw string, start time.Time, err error) {
	entry := nutrilog.ExchangeLog{
		Operation: req.Operation,
		Timestamp: start,
		Duration:  g.now().Sub(start),
		System:    req.System,
		Input:     req.Text,
		HasImage:  req.Image != nil,
		Output:    raw,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if lerr := g.logger.LogExchange(entry); lerr != nil {
		slog.Warn("GATEWAY: Failed to record exchange", "error", lerr)
	}
}
