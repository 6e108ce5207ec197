package nutrilog

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// SetupLogging installs the process-wide slog handler described by cfg and returns it.
func SetupLogging(cfg LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// InferenceLogger records every round trip made through the inference gateway.
type InferenceLogger interface {
	LogExchange(exchange ExchangeLog) error
}

// NewInferenceLogFilePath returns a file path derived from the model id so logs from different models are easy to tell apart.
func NewInferenceLogFilePath(model string) string {
	return fmt.Sprintf(
		"./logs/%d.%s.json",
		time.Now().Unix(),
		strings.NewReplacer(":", "_", "/", "_").Replace(strings.ToLower(model)),
	)
}

// ExchangeLog is one request/response pair with the inference provider.
type ExchangeLog struct {
	Operation string        `json:"operation"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration_ns"`
	System    string        `json:"system,omitempty"`
	Input     string        `json:"input,omitempty"`
	HasImage  bool          `json:"has_image,omitempty"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// FileInferenceLogger buffers exchanges and writes them as one JSON document on Flush.
type FileInferenceLogger struct {
	mu        sync.Mutex
	exchanges []ExchangeLog
	writer    io.Writer
}

func NewFileInferenceLogger(writer io.Writer) *FileInferenceLogger {
	return &FileInferenceLogger{
		exchanges: make([]ExchangeLog, 0),
		writer:    writer,
	}
}

func (l *FileInferenceLogger) LogExchange(exchange ExchangeLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exchanges = append(l.exchanges, exchange)
	return nil
}

func (l *FileInferenceLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"inference_session": map[string]any{
			"timestamp": time.Now(),
			"exchanges": l.exchanges,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal inference log: %w", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write inference log: %w", err)
	}

	l.exchanges = l.exchanges[:0]
	return nil
}

type NoOpInferenceLogger struct{}

func NewNoOpInferenceLogger() *NoOpInferenceLogger {
	return &NoOpInferenceLogger{}
}

func (nop *NoOpInferenceLogger) LogExchange(ExchangeLog) error {
	return nil
}

// StdoutInferenceLogger writes each exchange as a JSON line (for Lambda/CloudWatch).
type StdoutInferenceLogger struct {
	out io.Writer
}

func NewStdoutInferenceLogger() *StdoutInferenceLogger {
	return &StdoutInferenceLogger{out: os.Stdout}
}

func (l *StdoutInferenceLogger) LogExchange(exchange ExchangeLog) error {
	data, err := json.Marshal(exchange)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(l.out, string(data))
	return err
}
