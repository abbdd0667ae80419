package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/config"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/app"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/service/classification"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/service/enrichment"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/metrics"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/queue"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/queue/sqs"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/status"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/worker"
)

func main() {

	// 初始化日志
	log, err := app.NewLogger(config.LogLevel(), "logs/worker.log")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("Invalid configuration", logger.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients, err := app.NewClients(ctx, cfg.Classifier.AWS, log)
	if err != nil {
		log.Error("Failed to load AWS config", logger.Error(err))
		os.Exit(1)
	}

	m := metrics.NewWorkerMetrics()
	tracker := app.NewTracker(cfg.Classifier.Redis, status.NoopTracker{})
	completions := sqs.New(clients.AWS, cfg.QueueURL, cfg.Classifier.DeadLetterQueueURL, clients.Exec, log.Named("sqs"))

	opts := []classification.Option{
		classification.WithTracker(tracker),
		classification.WithMetrics(m),
	}

	// 富化阶段需要 Redis; 未配置时只做分类
	var enrichmentWorker *worker.EnrichmentWorker
	if redisCfg := cfg.Enricher.Redis; redisCfg.Enabled() {
		qcfg := queue.DefaultQueueConfig(redisCfg.Addr, redisCfg.Password, redisCfg.DB)
		q := queue.NewAsynqQueue(qcfg)
		defer q.Close()
		opts = append(opts, classification.WithDispatcher(q))

		enricher, gen, err := app.NewEnricher(ctx, clients, &cfg.Enricher, tracker)
		if err != nil {
			log.Error("Failed to create enricher", logger.Error(err))
			os.Exit(1)
		}
		defer gen.Close()

		enrichmentWorker = worker.NewEnrichmentWorker(&worker.Config{
			Redis:       qcfg.RedisOpt(),
			Concurrency: cfg.Classifier.Concurrency,
		}, func(ctx context.Context, t *queue.EnrichTask) (*models.EnrichedArtifact, error) {
			return enricher.Enrich(ctx, enrichment.Request{
				Document:          t.Document,
				JobID:             t.JobID,
				Classification:    t.Classification,
				ClassificationKey: t.ResultKey,
				TextKey:           t.TextKey,
			})
		}, m, log.Named("enrichment"))
	} else {
		log.Warn("REDIS_ADDR not set, enrichment disabled")
	}

	classifier, gen, err := app.NewClassifier(ctx, clients, &cfg.Classifier, completions, opts...)
	if err != nil {
		log.Error("Failed to create classification worker", logger.Error(err))
		os.Exit(1)
	}
	defer gen.Close()

	poller := worker.NewCompletionPoller(completions, classifier, sqs.ReceiveOptions{
		MaxMessages:       int32(cfg.BatchSize),
		WaitTimeSeconds:   int32(cfg.WaitTimeSeconds),
		VisibilityTimeout: cfg.VisibilityTimeout,
	}, log.Named("poller"))

	// metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server error", logger.Error(err))
		}
	}()

	// 启动 worker
	if enrichmentWorker != nil {
		if err := enrichmentWorker.Start(ctx); err != nil {
			log.Error("Failed to start enrichment worker", logger.Error(err))
			os.Exit(1)
		}
	}
	if err := poller.Start(ctx); err != nil {
		log.Error("Failed to start poller", logger.Error(err))
		os.Exit(1)
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	// 优雅关闭
	log.Info("Shutting down worker...")
	cancel()
	poller.Wait()
	if enrichmentWorker != nil {
		enrichmentWorker.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)
	log.Info("Worker stopped")
}
