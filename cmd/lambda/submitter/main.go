package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/config"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/app"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/service/submission"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/status"
)

func main() {
	log, err := app.NewLogger(config.LogLevel(), "")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.LoadSubmitter()
	if err != nil {
		log.Error("Invalid configuration", logger.Error(err))
		lambda.Start(failWith(err))
		return
	}

	ctx := context.Background()
	clients, err := app.NewClients(ctx, cfg.AWS, log)
	if err != nil {
		log.Fatal("Failed to load AWS config", logger.Error(err))
	}
	s, err := app.NewSubmitter(clients, cfg, app.NewTracker(cfg.Redis, status.NoopTracker{}))
	if err != nil {
		log.Fatal("Failed to create submitter", logger.Error(err))
	}

	lambda.Start(func(ctx context.Context, evt submission.TriggerEvent) (models.InvocationResult, error) {
		ctx, cancel := app.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
		return s.Handle(ctx, evt), nil
	})
}

// failWith answers every invocation with the configuration error.
func failWith(err error) func(context.Context, submission.TriggerEvent) (models.InvocationResult, error) {
	return func(context.Context, submission.TriggerEvent) (models.InvocationResult, error) {
		return models.Failed(err), nil
	}
}
