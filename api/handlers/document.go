package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/service/intake"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/status"
)

// DocumentService is the intake backend used by the handlers.
type DocumentService interface {
	Upload(ctx context.Context, header *multipart.FileHeader) (*intake.UploadResult, error)
	Status(ctx context.Context, jobID string) (*models.JobStatus, error)
}

type DocumentHandler struct {
	service DocumentService
	logger  logger.Logger
}

// UploadResponse 定义上传响应结构
type UploadResponse struct {
	Message   string             `json:"message"`
	Document  models.DocumentRef `json:"document"`
	JobID     string             `json:"jobId"`
	FileSize  int64              `json:"fileSize"`
	MimeType  string             `json:"mimeType"`
	PageCount int                `json:"pageCount,omitempty"`
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func NewDocumentHandler(service DocumentService, logger logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  logger,
	}
}

// UploadDocument 上传单个文档并提交 OCR
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err, nil)
		return
	}

	res, err := h.service.Upload(c.Request.Context(), header)
	if err != nil {
		var verr *intake.ValidationError
		switch {
		case errors.As(err, &verr):
			h.handleError(c, http.StatusBadRequest, "Invalid document", err, verr.Errors)
		case models.IsKind(err, models.ErrSubmission):
			h.handleError(c, http.StatusBadGateway, "Failed to start text detection", err, nil)
		default:
			h.handleError(c, http.StatusInternalServerError, "Failed to upload file", err, nil)
		}
		return
	}

	c.JSON(http.StatusOK, UploadResponse{
		Message:   "File uploaded successfully",
		Document:  res.Document,
		JobID:     res.JobID,
		FileSize:  res.Size,
		MimeType:  res.MimeType,
		PageCount: res.PageCount,
	})
}

// GetJobStatus 获取处理状态
func (h *DocumentHandler) GetJobStatus(c *gin.Context) {
	jobID := c.Param("jobId")
	if jobID == "" {
		h.handleError(c, http.StatusBadRequest, "Job ID is required", nil, nil)
		return
	}

	st, err := h.service.Status(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			h.handleError(c, http.StatusNotFound, "Job not found", err, nil)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to get status", err, nil)
		return
	}

	c.JSON(http.StatusOK, st)
}

// handleError 统一错误处理
func (h *DocumentHandler) handleError(c *gin.Context, code int, message string, err error, details interface{}) {
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", code),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if rid, ok := c.Get("requestId"); ok {
		fields = append(fields, logger.Any("requestId", rid))
	}
	if code >= http.StatusInternalServerError {
		h.logger.Error(message, fields...)
	} else {
		h.logger.Warn(message, fields...)
	}

	response := ErrorResponse{
		Message: message,
		Details: details,
	}
	if err != nil {
		response.Error = err.Error()
	}

	c.JSON(code, response)
}
