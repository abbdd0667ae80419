package classification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/config"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/agent/inference"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/agent/prompt"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/converters"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/metrics"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/status"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/storage"
)

// OCRFetcher reads the text of a finished OCR job.
type OCRFetcher interface {
	GetResult(ctx context.Context, jobID string) (*models.OCRTextResult, error)
}

// Acknowledger removes messages from the completion queue.
type Acknowledger interface {
	Ack(ctx context.Context, msg models.CompletionMessage) error
	HasDeadLetter() bool
	DeadLetter(ctx context.Context, msg models.CompletionMessage, reason string) error
}

// Dispatcher hands a persisted classification to the enrichment stage.
type Dispatcher interface {
	DispatchEnrichment(ctx context.Context, r *models.ClassificationResult) error
}

// Recorder receives per-message metrics.
type Recorder interface {
	Start(stage string)
	Finish(stage, outcome string, duration time.Duration)
	ObserveQueueLag(stage string, lag time.Duration)
}

// Config 分类配置
type Config struct {
	Mode      string
	Labels    []string
	Separator string
	MaxTokens int
	// MaxReceiveCount is the delivery count at which a failing message is
	// dead-lettered. Zero leaves redrive entirely to the queue.
	MaxReceiveCount int
	Concurrency     int
	// MessageTimeout bounds the processing of one message.
	MessageTimeout time.Duration
}

// ConfigFrom maps the loaded worker options.
func ConfigFrom(c *config.ClassifierConfig) Config {
	return Config{
		Mode:            c.Mode,
		Labels:          c.Labels,
		Separator:       c.Separator,
		MaxTokens:       c.Inference.MaxTokens,
		MaxReceiveCount: c.MaxReceiveCount,
		Concurrency:     c.Concurrency,
		MessageTimeout:  c.RequestTimeout,
	}
}

// BatchResult lists message ids by outcome.
type BatchResult struct {
	Acknowledged []string
	Poisoned     []string
	Failed       []string
}

// Worker turns OCR completion notifications into persisted classifications.
type Worker struct {
	ocr        OCRFetcher
	generator  inference.Generator
	store      storage.Storage
	acks       Acknowledger
	tracker    status.Tracker
	dispatcher Dispatcher
	metrics    Recorder
	logger     logger.Logger
	cfg        Config
	now        func() time.Time
}

type Option func(*Worker)

func WithTracker(t status.Tracker) Option {
	return func(w *Worker) { w.tracker = t }
}

func WithDispatcher(d Dispatcher) Option {
	return func(w *Worker) { w.dispatcher = d }
}

func WithMetrics(m Recorder) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithClock replaces the clock used for artifact timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

func New(
	cfg Config,
	ocr OCRFetcher,
	generator inference.Generator,
	store storage.Storage,
	acks Acknowledger,
	log logger.Logger,
	opts ...Option,
) (*Worker, error) {
	switch {
	case store == nil || store.Bucket() == "":
		return nil, models.WrapError(models.ErrConfiguration, "new classification worker", errors.New("result bucket is not configured"))
	case ocr == nil || generator == nil || acks == nil:
		return nil, models.WrapError(models.ErrConfiguration, "new classification worker", errors.New("missing client"))
	case cfg.Mode == config.ModeClosed && len(cfg.Labels) == 0:
		return nil, models.WrapError(models.ErrConfiguration, "new classification worker", errors.New("closed mode needs a label set"))
	}
	if cfg.Mode == "" {
		cfg.Mode = config.ModeClosed
	}
	if cfg.Separator == "" {
		cfg.Separator = models.DefaultSeparator
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	w := &Worker{
		ocr:       ocr,
		generator: generator,
		store:     store,
		acks:      acks,
		tracker:   status.NoopTracker{},
		metrics:   (*metrics.WorkerMetrics)(nil),
		logger:    log,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// ProcessBatch processes msgs concurrently. A failing message never affects
// its siblings.
func (w *Worker) ProcessBatch(ctx context.Context, msgs []models.CompletionMessage) BatchResult {
	var (
		mu  sync.Mutex
		res BatchResult
		g   errgroup.Group
	)
	g.SetLimit(w.cfg.Concurrency)

	for _, msg := range msgs {
		g.Go(func() error {
			outcome, _ := w.Process(ctx, msg)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case metrics.OutcomeAcknowledged:
				res.Acknowledged = append(res.Acknowledged, msg.MessageID)
			case metrics.OutcomePoisoned:
				res.Poisoned = append(res.Poisoned, msg.MessageID)
			default:
				res.Failed = append(res.Failed, msg.MessageID)
			}
			return nil
		})
	}
	_ = g.Wait()

	w.logger.Info("Batch processed",
		logger.Int("messages", len(msgs)),
		logger.Int("acknowledged", len(res.Acknowledged)),
		logger.Int("poisoned", len(res.Poisoned)),
		logger.Int("failed", len(res.Failed)),
	)
	return res
}

// Process runs one message through
// RECEIVED -> FETCHING_OCR -> CLASSIFYING -> PERSISTING -> ACKNOWLEDGED.
// The message is acknowledged only after both artifacts are stored.
func (w *Worker) Process(ctx context.Context, msg models.CompletionMessage) (string, error) {
	start := w.now()
	w.metrics.Start(metrics.StageClassification)
	if !msg.SentAt.IsZero() {
		w.metrics.ObserveQueueLag(metrics.StageClassification, start.Sub(msg.SentAt))
	}

	if w.cfg.MessageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.MessageTimeout)
		defer cancel()
	}

	outcome, err := w.process(ctx, &msg)
	if err != nil {
		outcome = w.handleFailure(ctx, msg, err)
	}
	w.metrics.Finish(metrics.StageClassification, outcome, w.now().Sub(start))
	return outcome, err
}

func (w *Worker) process(ctx context.Context, msg *models.CompletionMessage) (string, error) {
	if msg.JobID == "" {
		body, err := models.ParseCompletionBody(msg.Body)
		if err != nil {
			return "", err
		}
		msg.JobID = body.JobID
		msg.Document = body.Document
		msg.JobStatus = body.JobStatus
	}
	log := w.logger.With(logger.MessageID(msg.MessageID), logger.JobID(msg.JobID), logger.Document(msg.Document))
	w.track(ctx, *msg, models.StateReceived, nil)

	if msg.JobStatus == models.JobStatusFailed {
		return "", models.WrapError(models.ErrJobFailed, "completion notification",
			fmt.Errorf("job %s reported %s", msg.JobID, msg.JobStatus))
	}

	w.track(ctx, *msg, models.StateFetchingOCR, nil)
	ocr, err := w.ocr.GetResult(ctx, msg.JobID)
	if err != nil {
		return "", err
	}
	text := ocr.Text(w.cfg.Separator)

	w.track(ctx, *msg, models.StateClassifying, nil)
	raw, label, err := w.classify(ctx, text)
	if err != nil {
		return "", err
	}
	log.Info("Document classified",
		logger.String("label", label),
		logger.Int("lines", len(ocr.Lines)),
	)

	w.track(ctx, *msg, models.StatePersisting, nil)
	result := &models.ClassificationResult{
		Document:  msg.Document,
		JobID:     msg.JobID,
		Label:     label,
		Raw:       raw,
		Timestamp: w.now().UTC(),
	}
	if err := w.persist(ctx, text, result); err != nil {
		return "", err
	}

	if w.dispatcher != nil {
		if err := w.dispatcher.DispatchEnrichment(ctx, result); err != nil {
			return "", fmt.Errorf("failed to dispatch enrichment: %w", err)
		}
	}

	if err := w.acks.Ack(ctx, *msg); err != nil {
		// Artifacts are already written; redelivery appends a new pair.
		log.Error("Failed to acknowledge message", logger.Error(err))
		w.track(ctx, *msg, models.StateFailed, err)
		return metrics.OutcomeFailed, nil
	}
	w.track(ctx, *msg, models.StateAcknowledged, nil)
	log.Info("Message acknowledged", logger.String("resultKey", result.ResultKey))
	return metrics.OutcomeAcknowledged, nil
}

func (w *Worker) classify(ctx context.Context, text string) (string, string, error) {
	var p string
	if w.cfg.Mode == config.ModeOpen {
		p = prompt.OpenClassification(text)
	} else {
		p = prompt.ClosedClassification(text, w.cfg.Labels)
	}

	raw, err := w.generator.Generate(ctx, inference.Request{Prompt: p, MaxTokens: w.cfg.MaxTokens})
	if err != nil {
		return "", "", err
	}
	if w.cfg.Mode == config.ModeOpen {
		return raw, strings.TrimSpace(raw), nil
	}
	return raw, prompt.ParseLabel(raw, w.cfg.Labels), nil
}

// persist writes the OCR text first, then the classification.
func (w *Worker) persist(ctx context.Context, text string, r *models.ClassificationResult) error {
	r.TextKey = converters.OCRKey(r.Document.Key, r.Timestamp)
	r.ResultKey = converters.ClassificationKey(r.Document.Key, r.Timestamp)

	if err := w.store.Store(ctx, r.TextKey, strings.NewReader(text), converters.ContentTypeText); err != nil {
		return models.WrapError(models.ErrPersistence, "store ocr text", err)
	}

	body, err := converters.EncodeClassification(r)
	if err != nil {
		return models.WrapError(models.ErrPersistence, "encode classification", err)
	}
	if err := w.store.Store(ctx, r.ResultKey, bytes.NewReader(body), converters.ContentTypeJSON); err != nil {
		return models.WrapError(models.ErrPersistence, "store classification", err)
	}
	return nil
}

// handleFailure leaves the message for redelivery, or dead-letters it when
// redelivery cannot help or the delivery budget is spent.
func (w *Worker) handleFailure(ctx context.Context, msg models.CompletionMessage, err error) string {
	log := w.logger.With(logger.MessageID(msg.MessageID), logger.JobID(msg.JobID))

	exhausted := w.cfg.MaxReceiveCount > 0 && msg.ReceiveCount >= w.cfg.MaxReceiveCount
	if (models.IsPermanent(err) || exhausted) && w.acks.HasDeadLetter() {
		if dlErr := w.acks.DeadLetter(ctx, msg, err.Error()); dlErr != nil {
			log.Error("Failed to dead-letter message", logger.Error(dlErr), logger.NamedError("cause", err))
		} else {
			w.track(ctx, msg, models.StatePoisoned, err)
			return metrics.OutcomePoisoned
		}
	}

	if models.IsKind(err, models.ErrResultNotFound) {
		log.Warn("OCR result not available yet", logger.Error(err), logger.Int("receiveCount", msg.ReceiveCount))
	} else {
		log.Error("Failed to process message", logger.Error(err), logger.Int("receiveCount", msg.ReceiveCount))
	}
	w.track(ctx, msg, models.StateFailed, err)
	return metrics.OutcomeFailed
}

func (w *Worker) track(ctx context.Context, msg models.CompletionMessage, state models.MessageState, cause error) {
	if msg.JobID == "" {
		return
	}
	st := models.JobStatus{
		JobID:     msg.JobID,
		Document:  msg.Document,
		State:     state,
		Attempts:  msg.ReceiveCount,
		UpdatedAt: w.now().UTC(),
	}
	if cause != nil {
		st.Error = cause.Error()
	}
	if err := w.tracker.Record(ctx, st); err != nil {
		w.logger.Warn("Failed to record job status",
			logger.JobID(msg.JobID),
			logger.String("state", string(state)),
			logger.Error(err),
		)
	}
}
