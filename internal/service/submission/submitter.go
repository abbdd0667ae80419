package submission

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/time/rate"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/status"
)

// JobStarter starts asynchronous OCR jobs.
type JobStarter interface {
	StartTextDetection(ctx context.Context, ref models.DocumentRef, ch models.NotificationChannel, revision string) (string, error)
}

// Submitter 提交 OCR 任务
type Submitter struct {
	ocr           JobStarter
	channel       models.NotificationChannel
	defaultBucket string
	limiter       *rate.Limiter
	tracker       status.Tracker
	logger        logger.Logger
	now           func() time.Time
}

type Option func(*Submitter)

// WithRateLimit caps StartDocumentTextDetection calls per second.
func WithRateLimit(perSecond float64) Option {
	return func(s *Submitter) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithDefaultBucket is used for {"document": key} triggers.
func WithDefaultBucket(bucket string) Option {
	return func(s *Submitter) { s.defaultBucket = bucket }
}

func WithTracker(t status.Tracker) Option {
	return func(s *Submitter) { s.tracker = t }
}

func New(ocr JobStarter, channel models.NotificationChannel, log logger.Logger, opts ...Option) (*Submitter, error) {
	if ocr == nil {
		return nil, models.WrapError(models.ErrConfiguration, "new submitter", errors.New("ocr client is nil"))
	}
	if channel.TopicARN == "" || channel.RoleARN == "" {
		return nil, models.WrapError(models.ErrConfiguration, "new submitter", errors.New("notification topic and role are required"))
	}
	s := &Submitter{
		ocr:     ocr,
		channel: channel,
		tracker: status.NoopTracker{},
		logger:  log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit starts text detection for ref and returns the job id. A zero channel
// selects the configured one.
func (s *Submitter) Submit(ctx context.Context, ref models.DocumentRef, ch models.NotificationChannel) (string, error) {
	return s.submit(ctx, ref, ch, "")
}

// SubmitRevision is Submit with an idempotency key derived from the object
// revision, so replays of the same upload event reuse the job.
func (s *Submitter) SubmitRevision(ctx context.Context, ref models.DocumentRef, revision string) (string, error) {
	return s.submit(ctx, ref, models.NotificationChannel{}, revision)
}

func (s *Submitter) submit(ctx context.Context, ref models.DocumentRef, ch models.NotificationChannel, revision string) (string, error) {
	if ref.Bucket == "" || ref.Key == "" {
		return "", models.WrapError(models.ErrSubmission, "submit", fmt.Errorf("incomplete document reference %q", ref.String()))
	}
	if ch.TopicARN == "" {
		ch = s.channel
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", models.WrapError(models.ErrSubmission, "submit rate limit", err)
		}
	}

	jobID, err := s.ocr.StartTextDetection(ctx, ref, ch, revision)
	if err != nil {
		s.logger.Error("Failed to start OCR job",
			logger.Document(ref),
			logger.Error(err),
		)
		return "", err
	}

	if err := s.tracker.Record(ctx, models.JobStatus{
		JobID:     jobID,
		Document:  ref,
		State:     models.StateSubmitted,
		UpdatedAt: s.now().UTC(),
	}); err != nil {
		s.logger.Warn("Failed to record job status", logger.JobID(jobID), logger.Error(err))
	}

	s.logger.Info("OCR job submitted",
		logger.JobID(jobID),
		logger.Document(ref),
	)
	return jobID, nil
}

// Revision normalizes an object ETag. For a single-part upload it is the hex
// MD5 of the content, which is what the upload API passes to SubmitRevision,
// so the two paths share one Textract request token.
func Revision(etag string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(etag), `"`))
}

// TriggerEvent is either an object-store event or {"document": key}.
type TriggerEvent struct {
	Records  []events.S3EventRecord `json:"Records,omitempty"`
	Document string                 `json:"document,omitempty"`
}

// Handle submits one job per document in evt.
func (s *Submitter) Handle(ctx context.Context, evt TriggerEvent) models.InvocationResult {
	type target struct {
		ref      models.DocumentRef
		revision string
	}
	var targets []target

	for _, rec := range evt.Records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			key = rec.S3.Object.Key
		}
		targets = append(targets, target{
			ref:      models.DocumentRef{Bucket: rec.S3.Bucket.Name, Key: key},
			revision: Revision(rec.S3.Object.ETag),
		})
	}
	if evt.Document != "" {
		targets = append(targets, target{ref: models.DocumentRef{Bucket: s.defaultBucket, Key: evt.Document}})
	}
	if len(targets) == 0 {
		return models.Failed(models.WrapError(models.ErrSubmission, "handle trigger", errors.New("event names no document")))
	}

	jobIDs := make([]string, 0, len(targets))
	for _, t := range targets {
		jobID, err := s.submit(ctx, t.ref, models.NotificationChannel{}, t.revision)
		if err != nil {
			return models.Failed(err)
		}
		jobIDs = append(jobIDs, jobID)
	}

	res := models.InvocationResult{StatusCode: 200, JobID: jobIDs[0]}
	if len(jobIDs) > 1 {
		res.JobIDs = jobIDs
	}
	return res
}
