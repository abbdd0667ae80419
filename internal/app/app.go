// Package app builds the pipeline components from loaded configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/config"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/agent/inference"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/agent/ocr"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/agent/prompt"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/service/classification"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/service/enrichment"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/service/submission"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/resilience"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/status"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/storage"
)

// NewLogger returns a JSON logger on stdout, plus file when given.
func NewLogger(level, file string) (logger.Logger, error) {
	paths := []string{"stdout"}
	if file != "" {
		paths = append(paths, file)
	}
	return logger.NewLogger(
		logger.WithLevel(level),
		logger.WithEncoding("json"),
		logger.WithOutputPaths(paths),
	)
}

// NewTracker uses Redis when configured and fallback otherwise.
func NewTracker(cfg config.RedisConfig, fallback status.Tracker) status.Tracker {
	if !cfg.Enabled() {
		return fallback
	}
	return status.NewRedisTracker(status.NewRedisClient(cfg.Addr, cfg.Password, cfg.DB), status.DefaultTTL)
}

// Clients groups what every component needs to talk to AWS.
type Clients struct {
	AWS    aws.Config
	Exec   *resilience.Executor
	Logger logger.Logger
}

func NewClients(ctx context.Context, c config.AWSConfig, log logger.Logger) (*Clients, error) {
	awsCfg, err := config.LoadAWS(ctx, c)
	if err != nil {
		return nil, err
	}
	return &Clients{
		AWS:    awsCfg,
		Exec:   resilience.NewExecutor(resilience.DefaultPolicy(), log.Named("resilience")),
		Logger: log,
	}, nil
}

// NewSubmitter 创建 OCR 任务提交器
func NewSubmitter(c *Clients, cfg *config.SubmitterConfig, tracker status.Tracker) (*submission.Submitter, error) {
	textract := ocr.NewTextractClient(c.AWS, c.Exec, c.Logger.Named("textract"))
	return submission.New(textract, cfg.Channel, c.Logger.Named("submitter"),
		submission.WithRateLimit(cfg.RatePerSecond),
		submission.WithDefaultBucket(cfg.DocumentBucket),
		submission.WithTracker(tracker),
	)
}

// NewClassifier 创建分类 worker
func NewClassifier(
	ctx context.Context,
	c *Clients,
	cfg *config.ClassifierConfig,
	acks classification.Acknowledger,
	opts ...classification.Option,
) (*classification.Worker, inference.Generator, error) {
	store, err := storage.NewStorage(ctx, cfg.Storage, c.AWS, cfg.ResultBucket, c.Exec, c.Logger.Named("storage"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	gen, err := inference.NewGenerator(ctx, cfg.Inference, c.AWS, cfg.RequestTimeout, c.Exec, c.Logger)
	if err != nil {
		return nil, nil, err
	}
	textract := ocr.NewTextractClient(c.AWS, c.Exec, c.Logger.Named("textract"))

	w, err := classification.New(classification.ConfigFrom(cfg), textract, gen, store, acks, c.Logger.Named("classifier"), opts...)
	if err != nil {
		gen.Close()
		return nil, nil, err
	}
	return w, gen, nil
}

// NewEnricher 创建富化服务
func NewEnricher(
	ctx context.Context,
	c *Clients,
	cfg *config.EnricherConfig,
	tracker status.Tracker,
) (*enrichment.Enricher, inference.Generator, error) {
	log := c.Logger.Named("storage")
	results, err := storage.NewStorage(ctx, cfg.Storage, c.AWS, cfg.ResultBucket, c.Exec, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	target := results
	if cfg.TargetBucket != "" && cfg.TargetBucket != cfg.ResultBucket {
		if target, err = storage.NewStorage(ctx, cfg.Storage, c.AWS, cfg.TargetBucket, c.Exec, log); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize target storage: %w", err)
		}
	}

	templates, err := prompt.LoadTemplates(cfg.TemplatesFile)
	if err != nil {
		return nil, nil, err
	}
	gen, err := inference.NewGenerator(ctx, cfg.Inference, c.AWS, cfg.RequestTimeout, c.Exec, c.Logger)
	if err != nil {
		return nil, nil, err
	}

	sources := func(ctx context.Context, bucket string) (storage.Storage, error) {
		return storage.NewStorage(ctx, cfg.Storage, c.AWS, bucket, c.Exec, log)
	}
	e, err := enrichment.New(gen, templates, results, target, c.Logger.Named("enricher"),
		enrichment.WithTracker(tracker),
		enrichment.WithSourceResolver(sources),
		enrichment.WithMaxTokens(cfg.Inference.MaxTokens),
	)
	if err != nil {
		gen.Close()
		return nil, nil, err
	}
	return e, gen, nil
}

// WithTimeout bounds ctx by d when d is positive.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
