package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"nutrilog"
	"nutrilog/app"
)

const usage = `usage: nutrilog [-debug] [-log-exchanges] <command> [flags] [args]

commands:
  estimate [-image path] [text]   estimate a meal without logging it
  log [-image path] [text]        estimate a meal, review it and log it
  calibrate [flags]               save your profile and recalibrate daily goals
  plan [-restrictions text] [-share]
                                  generate a one-day meal plan
  water <ml>                      log water
  summary [-share]                show today's totals against your goals
  chat <question>                 ask the nutrition assistant
`

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Failed to load .env: %s", err)
	}

	debug := flag.Bool("debug", false, "dump results to stderr")
	logExchanges := flag.Bool("log-exchanges", false, "write every model exchange to ./logs")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}

	var cfg app.Config
	if err := envdecode.Decode(&cfg); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}
	nutrilog.SetupLogging(cfg.Log, os.Stderr)

	ctx := context.Background()

	opts := app.Options{}
	if *logExchanges {
		logger, cleanup, err := newInferenceLogger(cfg.Model.ModelID)
		if err != nil {
			slog.Error("SETUP: Failed to create inference logger", "error", err)
			return 1
		}
		defer func() {
			if err := cleanup(); err != nil {
				slog.Error("Failed to flush inference log", "error", err)
			}
		}()
		opts.InferenceLogger = logger
	}

	a, err := app.New(ctx, cfg, opts)
	if err != nil {
		slog.Error("SETUP: Failed to start", "error", err)
		return 1
	}
	defer func() {
		if err := a.Close(ctx); err != nil {
			slog.Error("Failed to shut down cleanly", "error", err)
		}
	}()

	c := &cli{app: a, in: os.Stdin, out: os.Stdout, debug: *debug}
	if err := c.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		slog.Error("RESULT: Command failed", "command", flag.Arg(0), "error", err)
		return 1
	}
	return 0
}

func newInferenceLogger(modelID string) (nutrilog.InferenceLogger, func() error, error) {
	path := nutrilog.NewInferenceLogFilePath(modelID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := nutrilog.NewFileInferenceLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}
