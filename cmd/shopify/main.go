package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"marketplace/internal/app"
	"marketplace/internal/config"
	"marketplace/internal/lambdahttp"
	"marketplace/internal/logging"
)

// Runs the same router as cmd/server behind an API Gateway HTTP API.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, cfg)
	cancel()
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}

	lambda.Start(lambdahttp.Wrap(a.Server.Handler()))
}
