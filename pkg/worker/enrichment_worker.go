package worker

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hibiken/asynq"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/metrics"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/queue"
)

// EnrichFunc enriches one classified document.
type EnrichFunc func(ctx context.Context, task *queue.EnrichTask) (*models.EnrichedArtifact, error)

type EnrichmentWorker struct {
	BaseWorker
	enrich  EnrichFunc
	metrics *metrics.WorkerMetrics
}

func NewEnrichmentWorker(cfg *Config, enrich EnrichFunc, m *metrics.WorkerMetrics, logger logger.Logger) *EnrichmentWorker {
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = map[string]int{queue.EnrichmentQueueName: 1}
	}
	server := asynq.NewServer(
		cfg.Redis,
		asynq.Config{
			Concurrency:    cfg.Concurrency,
			Queues:         queues,
			RetryDelayFunc: RetryDelay,
		},
	)

	w := &EnrichmentWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   logger,
			stopChan: make(chan struct{}),
		},
		enrich:  enrich,
		metrics: m,
	}

	// 注册任务处理器
	w.mux.HandleFunc(queue.TaskTypeDocumentEnrich, w.HandleEnrichTask)
	return w
}

// RetryDelay backs off exponentially from 10s up to 10m.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	d := time.Duration(float64(10*time.Second) * math.Pow(2, float64(n)))
	if d <= 0 || d > 10*time.Minute {
		return 10 * time.Minute
	}
	return d
}

// HandleEnrichTask 处理富化任务. Malformed payloads are not retried.
func (w *EnrichmentWorker) HandleEnrichTask(ctx context.Context, t *asynq.Task) error {
	task, err := queue.ParseEnrichTask(t.Payload())
	if err != nil {
		w.logger.Error("Invalid enrichment task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	start := time.Now()
	w.metrics.Start(metrics.StageEnrichment)

	artifact, err := w.enrich(ctx, task)
	if err != nil {
		w.metrics.Finish(metrics.StageEnrichment, metrics.OutcomeFailed, time.Since(start))
		w.logger.Error("Enrichment failed",
			logger.JobID(task.JobID),
			logger.Document(task.Document),
			logger.Error(err),
		)
		return err
	}
	w.metrics.Finish(metrics.StageEnrichment, metrics.OutcomeSucceeded, time.Since(start))

	// 写入任务结果
	if rw := t.ResultWriter(); rw != nil {
		if _, err := rw.Write([]byte(artifact.Key)); err != nil {
			w.logger.Warn("Failed to write task result", logger.Error(err))
		}
	}
	return nil
}

func (w *EnrichmentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start enrichment worker: %w", err)
	}

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}
