package enrichment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/agent/inference"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/agent/prompt"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/converters"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/status"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/storage"
)

// Request identifies a classified document to enrich.
type Request struct {
	Document models.DocumentRef
	JobID    string
	// Classification is read from ClassificationKey when empty.
	Classification    string
	ClassificationKey string
	// TextKey names the OCR text in the result bucket. When empty the raw
	// document is read instead.
	TextKey string
}

// SourceResolver opens the bucket an original document lives in.
type SourceResolver func(ctx context.Context, bucket string) (storage.Storage, error)

// Enricher 根据分类结果生成富化内容
type Enricher struct {
	generator inference.Generator
	templates *prompt.Templates
	results   storage.Storage
	target    storage.Storage
	sources   SourceResolver
	tracker   status.Tracker
	maxTokens int
	logger    logger.Logger
	now       func() time.Time
}

type Option func(*Enricher)

func WithTracker(t status.Tracker) Option {
	return func(e *Enricher) { e.tracker = t }
}

func WithSourceResolver(r SourceResolver) Option {
	return func(e *Enricher) { e.sources = r }
}

func WithMaxTokens(n int) Option {
	return func(e *Enricher) { e.maxTokens = n }
}

func New(
	generator inference.Generator,
	templates *prompt.Templates,
	results storage.Storage,
	target storage.Storage,
	log logger.Logger,
	opts ...Option,
) (*Enricher, error) {
	if results == nil || results.Bucket() == "" {
		return nil, models.WrapError(models.ErrConfiguration, "new enricher", errors.New("result bucket is not configured"))
	}
	if target == nil {
		target = results
	}
	if generator == nil || templates == nil {
		return nil, models.WrapError(models.ErrConfiguration, "new enricher", errors.New("missing generator or templates"))
	}
	e := &Enricher{
		generator: generator,
		templates: templates,
		results:   results,
		target:    target,
		tracker:   status.NoopTracker{},
		maxTokens: 500,
		logger:    log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Enrich writes enriched/{document} to the target bucket. Nothing is written
// unless every step succeeds.
func (e *Enricher) Enrich(ctx context.Context, req Request) (*models.EnrichedArtifact, error) {
	if req.Document.Key == "" {
		return nil, fmt.Errorf("enrich: document key is empty")
	}
	log := e.logger.With(logger.Document(req.Document))

	label := req.Classification
	if label == "" {
		var err error
		if label, err = e.readClassification(ctx, req.ClassificationKey); err != nil {
			return nil, err
		}
	}

	text, err := e.readText(ctx, req)
	if err != nil {
		return nil, err
	}

	instructions := e.templates.Instructions(label)
	content, err := e.generator.Generate(ctx, inference.Request{
		Prompt:      prompt.Enrichment(text, instructions),
		MaxTokens:   e.maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}

	artifact := &models.EnrichedArtifact{
		Document:       req.Document,
		Key:            converters.EnrichedKey(req.Document.Key),
		Classification: label,
		Content:        content,
	}
	if err := e.target.Store(ctx, artifact.Key, strings.NewReader(content), converters.ContentTypeText); err != nil {
		return nil, models.WrapError(models.ErrPersistence, "store enriched document", err)
	}

	if req.JobID != "" {
		if err := e.tracker.Record(ctx, models.JobStatus{
			JobID:     req.JobID,
			Document:  req.Document,
			State:     models.StateEnriched,
			UpdatedAt: e.now().UTC(),
		}); err != nil {
			log.Warn("Failed to record job status", logger.JobID(req.JobID), logger.Error(err))
		}
	}

	log.Info("Document enriched",
		logger.String("classification", label),
		logger.String("key", artifact.Key),
	)
	return artifact, nil
}

func (e *Enricher) readClassification(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("enrich: no classification given")
	}
	data, err := storage.ReadAll(ctx, e.results, key)
	if err != nil {
		return "", fmt.Errorf("failed to read classification %s: %w", key, err)
	}
	return converters.DecodeClassification(data)
}

func (e *Enricher) readText(ctx context.Context, req Request) (string, error) {
	if req.TextKey != "" {
		data, err := storage.ReadAll(ctx, e.results, req.TextKey)
		if err != nil {
			return "", fmt.Errorf("failed to read ocr text %s: %w", req.TextKey, err)
		}
		return string(data), nil
	}

	if e.sources == nil || req.Document.Bucket == "" {
		return "", fmt.Errorf("enrich: no text key and no source bucket for %s", req.Document)
	}
	src, err := e.sources(ctx, req.Document.Bucket)
	if err != nil {
		return "", fmt.Errorf("failed to open source bucket: %w", err)
	}
	data, err := storage.ReadAll(ctx, src, req.Document.Key)
	if err != nil {
		return "", fmt.Errorf("failed to read document %s: %w", req.Document, err)
	}
	return string(data), nil
}

// HandleS3Event enriches every classification artifact named in evt. Other
// keys are skipped. The first failure ends the invocation with a 500 result.
func (e *Enricher) HandleS3Event(ctx context.Context, evt events.S3Event) models.InvocationResult {
	processed := 0
	for _, rec := range evt.Records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			key = rec.S3.Object.Key
		}

		document, textKey, err := converters.OCRKeyFor(key)
		if err != nil {
			e.logger.Debug("Skipping object that is not a classification", logger.String("key", key))
			continue
		}

		_, err = e.Enrich(ctx, Request{
			Document:          models.DocumentRef{Key: document},
			ClassificationKey: key,
			TextKey:           textKey,
		})
		if err != nil {
			e.logger.Error("Failed to enrich document",
				logger.String("key", key),
				logger.Error(err),
			)
			return models.Failed(fmt.Errorf("error processing document: %w", err))
		}
		processed++
	}
	return models.Succeeded(fmt.Sprintf("Document processed successfully (%d enriched)", processed))
}
