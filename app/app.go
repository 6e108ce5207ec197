// Package app assembles the services, store and model provider shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"nutrilog"
	"nutrilog/calibration"
	"nutrilog/coach"
	"nutrilog/estimation"
	"nutrilog/inference"
	"nutrilog/inference/bedrock"
	"nutrilog/inference/fake"
	"nutrilog/inference/gemini"
	"nutrilog/inference/ollama"
	"nutrilog/inference/openai"
	"nutrilog/mcpserver"
	"nutrilog/planner"
	"nutrilog/slack"
	"nutrilog/store"
	"nutrilog/tracker"
)

// Config gathers every env-driven setting. Decode it with envdecode.
type Config struct {
	UserID string `env:"NUTRILOG_USER_ID,default=local"`

	Model  nutrilog.ModelConfig
	Gemini nutrilog.GeminiConfig
	Ollama nutrilog.OllamaConfig
	OpenAI nutrilog.OpenAIConfig
	Store  nutrilog.StoreConfig
	Log    nutrilog.LogConfig
	Share  nutrilog.ShareConfig
	Otel   nutrilog.OtelConfig
}

type Options struct {
	// Provider replaces the configured model provider for every operation.
	Provider inference.Provider
	// Store replaces the configured backend.
	Store store.Store
	// InferenceLogger receives every gateway exchange. Defaults to a no-op.
	InferenceLogger nutrilog.InferenceLogger
	Now             func() time.Time
}

type App struct {
	Estimator  *estimation.Service
	Calibrator *calibration.Service
	Planner    *planner.Service
	Coach      *coach.Service
	Tracker    *tracker.Tracker
	// Slack is nil unless SLACK_WEBHOOK_URL is set.
	Slack nutrilog.SlackClient

	cfg     Config
	now     func() time.Time
	closers []func(context.Context) error
}

func New(ctx context.Context, cfg Config, opts Options) (*App, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	a := &App{cfg: cfg, now: opts.Now}

	provider, planProvider := opts.Provider, opts.Provider
	if provider == nil {
		var err error
		if provider, err = a.newProvider(ctx, cfg.Model.ModelID); err != nil {
			a.Close(ctx)
			return nil, err
		}
		planProvider = provider
		if cfg.Model.PlanModelID != "" && cfg.Model.PlanModelID != cfg.Model.ModelID {
			if planProvider, err = a.newProvider(ctx, cfg.Model.PlanModelID); err != nil {
				a.Close(ctx)
				return nil, err
			}
		}
	}

	estimateProvider := provider
	if cfg.Otel.Enabled {
		tp, mp, shutdown, err := nutrilog.InitOtel(ctx)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
		}
		a.closers = append(a.closers, shutdown)
		estimateProvider, provider, planProvider = instrumentProviders(tp, mp, provider, planProvider)
		slog.Info("SETUP: OpenTelemetry enabled", "service", cfg.Otel.ServiceName)
	}

	gatewayOpts := inference.GatewayOptions{Logger: opts.InferenceLogger}
	gateway := inference.NewGateway(provider, gatewayOpts)

	a.Estimator = estimation.NewService(inference.NewGateway(estimateProvider, gatewayOpts))
	a.Calibrator = calibration.NewService(gateway)
	a.Planner = planner.NewService(inference.NewGateway(planProvider, gatewayOpts))
	a.Coach = coach.NewService(gateway)

	s := opts.Store
	if s == nil {
		var err error
		if s, err = store.Open(ctx, cfg.Store); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}
	a.closers = append(a.closers, func(context.Context) error { return s.Close() })

	tr, err := tracker.Open(ctx, s, cfg.UserID, a.Calibrator, tracker.Options{Now: opts.Now})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Tracker = tr

	if cfg.Share.SlackWebhookURL != "" {
		if a.Slack, err = slack.NewClient(cfg.Share.SlackWebhookURL, http.DefaultClient); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	slog.Info("SETUP: Ready",
		"user_id", cfg.UserID,
		"provider", cfg.Model.Provider,
		"store", cfg.Store.Driver,
		"slack", a.Slack != nil,
	)
	return a, nil
}

// instrumentProviders wraps the providers so estimation, plan synthesis and
// the remaining operations report under their own tracer names.
func instrumentProviders(tp trace.TracerProvider, mp metric.MeterProvider, provider, planProvider inference.Provider) (estimate, general, plan inference.Provider) {
	meter := mp.Meter(nutrilog.MeterNameGateway)
	estimate = inference.NewInstrumentedProvider(provider, tp.Tracer(nutrilog.TracerNameEstimation), meter)
	general = inference.NewInstrumentedProvider(provider, tp.Tracer(nutrilog.TracerNameGateway), meter)
	plan = inference.NewInstrumentedProvider(planProvider, tp.Tracer(nutrilog.TracerNamePlanner), meter)
	return estimate, general, plan
}

// Close releases everything New acquired, most recent first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) Now() time.Time {
	return a.now()
}

// MCPServer exposes this app's services as MCP tools.
func (a *App) MCPServer() *mcp.Server {
	return mcpserver.New(mcpserver.Deps{
		Estimator:  a.Estimator,
		Calibrator: a.Calibrator,
		Planner:    a.Planner,
		Coach:      a.Coach,
		Tracker:    a.Tracker,
		Now:        a.now,
	})
}

// Share posts message to the configured Slack channel.
func (a *App) Share(ctx context.Context, message string) error {
	if a.Slack == nil {
		return errors.New("sharing is not configured; set SLACK_WEBHOOK_URL")
	}
	return a.Slack.PostMessage(ctx, a.cfg.Share.SlackChannel, message)
}

func (a *App) newProvider(ctx context.Context, modelID string) (inference.Provider, error) {
	m := a.cfg.Model
	switch m.Provider {
	case "gemini":
		client, err := gemini.NewClient(ctx, a.cfg.Gemini.APIKey)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		return gemini.NewProvider(client, gemini.Options{
			ModelID:     modelID,
			Temperature: m.Temperature,
			TopP:        m.TopP,
			MaxTokens:   m.MaxTokens,
		}), nil

	case "bedrock":
		brc, err := newBedrockRuntimeClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bedrock client: %w", err)
		}
		return bedrock.NewProvider(brc, bedrock.Options{
			ModelID:     modelID,
			MaxTokens:   m.MaxTokens,
			Temperature: m.Temperature,
			TopP:        m.TopP,
		}), nil

	case "ollama":
		return ollama.NewClient(ollama.ClientOpts{
			BaseEndpoint: a.cfg.Ollama.BaseEndpoint,
			ModelID:      modelID,
			HTTPClient:   http.DefaultClient,
		})

	case "openai":
		client, err := openai.NewClient(a.cfg.OpenAI.APIKey, a.cfg.OpenAI.BaseURL, http.DefaultClient)
		if err != nil {
			return nil, err
		}
		return openai.NewProvider(client, openai.Options{
			ModelID:     modelID,
			MaxTokens:   int(m.MaxTokens),
			Temperature: m.Temperature,
			TopP:        m.TopP,
		}), nil

	case "mock":
		return fake.NewCanned(), nil

	default:
		return nil, fmt.Errorf("unknown MODEL_PROVIDER %q", m.Provider)
	}
}

// newBedrockRuntimeClient never retries on its own: every inference attempt is
// one user action.
func newBedrockRuntimeClient(ctx context.Context, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryer(func() aws.Retryer {
		return aws.NopRetryer{}
	}))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg, optFns...), nil
}
