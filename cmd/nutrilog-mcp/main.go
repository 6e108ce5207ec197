package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"nutrilog"
	"nutrilog/app"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Failed to load .env: %s", err)
	}

	var cfg app.Config
	if err := envdecode.Decode(&cfg); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}
	// stdout carries the protocol.
	nutrilog.SetupLogging(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		slog.Error("SETUP: Failed to start", "error", err)
		os.Exit(1)
	}

	err = a.MCPServer().Run(ctx, &mcp.StdioTransport{})
	if closeErr := a.Close(context.Background()); closeErr != nil {
		slog.Error("Failed to shut down cleanly", "error", closeErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("MCP: Server stopped", "error", err)
		os.Exit(1)
	}
}
