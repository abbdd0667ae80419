// internal/utils/validator/document.go
package validator

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/ledongthuc/pdf"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
)

const (
	// MaxTextractPages is the page limit of asynchronous text detection.
	MaxTextractPages = 3000
	// MaxImageDimension bounds either side of an uploaded image, in pixels.
	MaxImageDimension = 10000
)

// DocumentValidator 文档验证器
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize  int64               // 最大文件大小（字节）
	AllowedTypes map[string][]string // 允许的文件类型 {扩展名: []MIME类型}
	MaxPageCount int                 // PDF最大页数
	MaxDimension int                 // 图片最大边长（像素）
}

// ValidationResult 验证结果
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

// ValidationError 验证错误
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// FileInfo 文件信息
type FileInfo struct {
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
	MimeType   string `json:"mimeType"`
	Extension  string `json:"extension"`
	Hash       string `json:"hash"`
	ContentMD5 string `json:"contentMd5"` // 单段上传时等于 S3 ETag
	PageCount  int    `json:"pageCount,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

// DefaultConfig accepts the formats Textract reads asynchronously.
func DefaultConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: 500 * 1024 * 1024, // 500MB
		AllowedTypes: map[string][]string{
			".pdf":  {"application/pdf"},
			".jpg":  {"image/jpeg"},
			".jpeg": {"image/jpeg"},
			".png":  {"image/png"},
			// http.DetectContentType does not sniff TIFF
			".tiff": {"image/tiff", "application/octet-stream"},
			".tif":  {"image/tiff", "application/octet-stream"},
		},
		MaxPageCount: MaxTextractPages,
		MaxDimension: MaxImageDimension,
	}
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(logger logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultConfig()
	}
	return &DocumentValidator{
		logger: logger,
		config: config,
	}
}

// ValidateFile 验证单个文件
func (v *DocumentValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, error) {
	result := &ValidationResult{
		IsValid: true,
		Errors:  make([]ValidationError, 0),
		FileInfo: FileInfo{
			Filename:  file.Filename,
			Size:      file.Size,
			Extension: strings.ToLower(filepath.Ext(file.Filename)),
		},
	}

	// 基本验证
	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		return result, nil
	}

	// 打开文件
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	// 计算文件哈希
	hash, sum, err := v.calculateHash(f)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash
	result.FileInfo.ContentMD5 = sum

	// MIME类型验证
	mimeType, err := v.detectMimeType(f)
	if err != nil {
		return nil, fmt.Errorf("failed to detect mime type: %w", err)
	}
	result.FileInfo.MimeType = mimeType

	if errs := v.validateMimeType(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		return result, nil
	}

	if result.FileInfo.Extension == ".pdf" {
		pages, errs := v.validatePDF(f, file.Size)
		result.FileInfo.PageCount = pages
		if len(errs) > 0 {
			result.IsValid = false
			result.Errors = append(result.Errors, errs...)
		}
	} else if errs := v.validateImage(f, &result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
	}

	if !result.IsValid {
		v.logger.Warn("Document rejected",
			logger.String("filename", file.Filename),
			logger.Any("errors", result.Errors),
		)
	}
	return result, nil
}

// 基本验证
func (v *DocumentValidator) performBasicValidation(fileInfo FileInfo) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(strings.TrimSuffix(fileInfo.Filename, fileInfo.Extension)) == "" {
		errors = append(errors, ValidationError{
			Code:    "MISSING_FILENAME",
			Message: "File name is required",
			Field:   "filename",
		})
	}

	if fileInfo.Size == 0 {
		errors = append(errors, ValidationError{
			Code:    "EMPTY_FILE",
			Message: "File is empty",
			Field:   "size",
		})
	}

	// 检查文件大小
	if fileInfo.Size > v.config.MaxFileSize {
		errors = append(errors, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}

	// 检查文件扩展名
	if _, ok := v.config.AllowedTypes[fileInfo.Extension]; !ok {
		errors = append(errors, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("File type %s is not allowed", fileInfo.Extension),
			Field:   "extension",
		})
	}

	return errors
}

// MIME类型验证
func (v *DocumentValidator) validateMimeType(fileInfo FileInfo) []ValidationError {
	allowedMimes := v.config.AllowedTypes[fileInfo.Extension]
	for _, mime := range allowedMimes {
		if mime == fileInfo.MimeType {
			return nil
		}
	}
	return []ValidationError{{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("Invalid MIME type %s for extension %s", fileInfo.MimeType, fileInfo.Extension),
		Field:   "mimeType",
	}}
}

// 检测MIME类型
func (v *DocumentValidator) detectMimeType(file multipart.File) (string, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	// 读取文件头部
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	// 重置文件指针
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	mimeType := http.DetectContentType(buffer[:n])
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return mimeType, nil
}

// 计算文件哈希 (sha256, md5)
func (v *DocumentValidator) calculateHash(file multipart.File) (string, string, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", "", err
	}
	h256, h5 := sha256.New(), md5.New()
	if _, err := io.Copy(io.MultiWriter(h256, h5), file); err != nil {
		return "", "", err
	}
	return hex.EncodeToString(h256.Sum(nil)), hex.EncodeToString(h5.Sum(nil)), nil
}

// PDF特定验证
func (v *DocumentValidator) validatePDF(file multipart.File, size int64) (pages int, errs []ValidationError) {
	// 损坏的文件可能导致解析器 panic
	defer func() {
		if p := recover(); p != nil {
			pages, errs = 0, []ValidationError{{
				Code:    "INVALID_PDF",
				Message: fmt.Sprintf("Failed to read PDF: %v", p),
				Field:   "file",
			}}
		}
	}()

	r, err := pdf.NewReader(file, size)
	if err != nil {
		return 0, []ValidationError{{
			Code:    "INVALID_PDF",
			Message: fmt.Sprintf("Failed to read PDF: %v", err),
			Field:   "file",
		}}
	}

	pages = r.NumPage()
	if v.config.MaxPageCount > 0 && pages > v.config.MaxPageCount {
		return pages, []ValidationError{{
			Code:    "TOO_MANY_PAGES",
			Message: fmt.Sprintf("PDF has %d pages, maximum is %d", pages, v.config.MaxPageCount),
			Field:   "pageCount",
		}}
	}
	return pages, nil
}

// 图片验证: 先读头部尺寸, 超限直接拒绝, 不做完整解码; 否则必须能完整解码
func (v *DocumentValidator) validateImage(file multipart.File, info *FileInfo) []ValidationError {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return []ValidationError{{Code: "INVALID_IMAGE", Message: err.Error(), Field: "file"}}
	}
	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return []ValidationError{{
			Code:    "INVALID_IMAGE",
			Message: fmt.Sprintf("Failed to read image header: %v", err),
			Field:   "file",
		}}
	}

	info.Width, info.Height = cfg.Width, cfg.Height
	if v.config.MaxDimension > 0 && (info.Width > v.config.MaxDimension || info.Height > v.config.MaxDimension) {
		return []ValidationError{{
			Code:    "IMAGE_TOO_LARGE",
			Message: fmt.Sprintf("Image is %dx%d pixels, maximum side is %d", info.Width, info.Height, v.config.MaxDimension),
			Field:   "dimensions",
		}}
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return []ValidationError{{Code: "INVALID_IMAGE", Message: err.Error(), Field: "file"}}
	}
	if _, err := imaging.Decode(file); err != nil {
		return []ValidationError{{
			Code:    "INVALID_IMAGE",
			Message: fmt.Sprintf("Failed to decode image: %v", err),
			Field:   "file",
		}}
	}
	return nil
}
