package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ragfinance/internal/app"
	"ragfinance/internal/config"
	"ragfinance/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(logger.New(os.Stdout, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer deps.Close()

	provider, err := app.NewProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	if c, ok := provider.(io.Closer); ok {
		defer c.Close()
	}

	application, err := app.New(cfg, deps, provider)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	if err := application.ConnectConsumer(cfg); err != nil {
		return err
	}

	slog.InfoContext(ctx, "rag finance service ready",
		"provider", cfg.LLMProvider,
		"vector_backend", cfg.VectorBackend,
		"dispatch", cfg.DispatchMode,
		"source", cfg.SourcePath,
	)
	return application.Run(ctx)
}
