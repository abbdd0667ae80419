package intake

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/utils/validator"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/status"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/storage"
)

// Submitter starts OCR for a stored document.
type Submitter interface {
	SubmitRevision(ctx context.Context, ref models.DocumentRef, revision string) (string, error)
}

// ValidationError lists why an upload was rejected.
type ValidationError struct {
	Errors []validator.ValidationError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		msgs = append(msgs, ve.Message)
	}
	return "invalid document: " + strings.Join(msgs, "; ")
}

// UploadResult 上传结果
type UploadResult struct {
	Document  models.DocumentRef `json:"document"`
	JobID     string             `json:"jobId"`
	Size      int64              `json:"size"`
	MimeType  string             `json:"mimeType"`
	Hash      string             `json:"hash"`
	PageCount int                `json:"pageCount,omitempty"`
}

// Service backs the upload form: validate, store verbatim, start OCR.
type Service struct {
	store     storage.Storage
	submitter Submitter
	validator *validator.DocumentValidator
	tracker   status.Tracker
	logger    logger.Logger
}

func NewService(
	store storage.Storage,
	submitter Submitter,
	v *validator.DocumentValidator,
	tracker status.Tracker,
	log logger.Logger,
) *Service {
	if tracker == nil {
		tracker = status.NoopTracker{}
	}
	return &Service{
		store:     store,
		submitter: submitter,
		validator: v,
		tracker:   tracker,
		logger:    log,
	}
}

// Upload stores the file at {bucket}/{filename}, replacing any earlier upload
// of the same name, then submits it. Nothing is retried.
func (s *Service) Upload(ctx context.Context, header *multipart.FileHeader) (*UploadResult, error) {
	s.logger.Info("Starting file upload",
		logger.String("filename", header.Filename),
		logger.Int64("size", header.Size),
	)

	// 验证文件
	vr, err := s.validator.ValidateFile(header)
	if err != nil {
		return nil, fmt.Errorf("failed to validate file: %w", err)
	}
	if !vr.IsValid {
		return nil, &ValidationError{Errors: vr.Errors}
	}

	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	// 存储文件
	ref := models.DocumentRef{Bucket: s.store.Bucket(), Key: header.Filename}
	if err := s.store.Store(ctx, ref.Key, f, vr.FileInfo.MimeType); err != nil {
		s.logger.Error("Failed to store file",
			logger.Document(ref),
			logger.Error(err),
		)
		return nil, models.WrapError(models.ErrPersistence, "store upload", err)
	}

	// 提交 OCR 任务; 内容 MD5 即单段上传的 ETag, 与 S3 事件路径共用同一个幂等令牌
	jobID, err := s.submitter.SubmitRevision(ctx, ref, vr.FileInfo.ContentMD5)
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		Document:  ref,
		JobID:     jobID,
		Size:      header.Size,
		MimeType:  vr.FileInfo.MimeType,
		Hash:      vr.FileInfo.Hash,
		PageCount: vr.FileInfo.PageCount,
	}, nil
}

// Status returns the tracked lifecycle of a job.
func (s *Service) Status(ctx context.Context, jobID string) (*models.JobStatus, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}
	return s.tracker.Get(ctx, jobID)
}
