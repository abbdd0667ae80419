package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/config"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/app"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/status"
)

func main() {
	log, err := app.NewLogger(config.LogLevel(), "")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.LoadEnricher()
	if err != nil {
		log.Error("Invalid configuration", logger.Error(err))
		lambda.Start(func(context.Context, events.S3Event) (models.InvocationResult, error) {
			return models.Failed(err), nil
		})
		return
	}

	ctx := context.Background()
	clients, err := app.NewClients(ctx, cfg.AWS, log)
	if err != nil {
		log.Fatal("Failed to load AWS config", logger.Error(err))
	}
	enricher, gen, err := app.NewEnricher(ctx, clients, cfg, app.NewTracker(cfg.Redis, status.NoopTracker{}))
	if err != nil {
		log.Fatal("Failed to create enricher", logger.Error(err))
	}
	defer gen.Close()

	lambda.Start(func(ctx context.Context, evt events.S3Event) (models.InvocationResult, error) {
		ctx, cancel := app.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
		return enricher.HandleS3Event(ctx, evt), nil
	})
}
