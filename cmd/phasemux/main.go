package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/tjfontaine/phasemux/internal/app"
	"github.com/tjfontaine/phasemux/internal/config"
	"github.com/tjfontaine/phasemux/internal/pipeline"
	"github.com/tjfontaine/phasemux/internal/server"
	"github.com/tjfontaine/phasemux/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	configPath := os.Getenv("PHASEMUX_CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	slog.SetDefault(logger)

	opts := []app.Option{app.WithLogger(logger)}
	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Tracing.ServiceName, logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
		opts = append(opts, app.WithInstrumentation(telemetry.Instrument(otel.Tracer(cfg.Tracing.ServiceName))))
	}

	a, err := app.New(opts...)
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}
	if err := a.LoadMiddleware(cfg); err != nil {
		log.Fatalf("Failed to load middleware: %v", err)
	}
	if err := a.Get("/phases", pipeline.HandlerFunc(func(c *pipeline.Context, _ pipeline.NextFunc) {
		_ = c.JSON(200, map[string]any{"phases": a.Phases()})
	})); err != nil {
		log.Fatalf("Failed to register route: %v", err)
	}

	shutdownTimeout, err := time.ParseDuration(cfg.Server.ShutdownTimeout)
	if err != nil {
		log.Fatalf("Invalid shutdown timeout %q: %v", cfg.Server.ShutdownTimeout, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("phasemux starting",
		slog.Int("port", cfg.Server.Port),
		slog.Any("phases", a.Phases()),
		slog.Int("layers", len(a.Layers())),
	)

	srv := server.New(cfg.Server.Port, a, shutdownTimeout, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
}
