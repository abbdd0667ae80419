package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/config"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/app"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/service/classification"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/queue/sqs"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/status"
)

func main() {
	log, err := app.NewLogger(config.LogLevel(), "")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.LoadClassifier()
	if err != nil {
		log.Error("Invalid configuration", logger.Error(err))
		// 整批失败, 由 SQS 重新投递
		lambda.Start(func(context.Context, events.SQSEvent) (events.SQSEventResponse, error) {
			return events.SQSEventResponse{}, err
		})
		return
	}

	ctx := context.Background()
	clients, err := app.NewClients(ctx, cfg.AWS, log)
	if err != nil {
		log.Fatal("Failed to load AWS config", logger.Error(err))
	}

	// Records carry their own queue URL, derived from the event source ARN.
	acks := sqs.New(clients.AWS, "", cfg.DeadLetterQueueURL, clients.Exec, log.Named("sqs"))
	w, gen, err := app.NewClassifier(ctx, clients, cfg, acks,
		classification.WithTracker(app.NewTracker(cfg.Redis, status.NoopTracker{})),
	)
	if err != nil {
		log.Fatal("Failed to create classification worker", logger.Error(err))
	}
	defer gen.Close()

	lambda.Start(func(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
		return handle(ctx, w, evt), nil
	})
}

// handle reports unacknowledged messages as batch item failures so that only
// they are redelivered.
func handle(ctx context.Context, w *classification.Worker, evt events.SQSEvent) events.SQSEventResponse {
	msgs := make([]models.CompletionMessage, 0, len(evt.Records))
	for _, rec := range evt.Records {
		msgs = append(msgs, sqs.MessageFromEvent(rec))
	}

	res := w.ProcessBatch(ctx, msgs)

	var resp events.SQSEventResponse
	for _, id := range res.Failed {
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: id})
	}
	return resp
}
