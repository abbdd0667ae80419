package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/config"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/resilience"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/storage/minio"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

// Storage is an object store bound to a single bucket.
type Storage interface {
	// Store 存储对象, overwriting any object at key
	Store(ctx context.Context, key string, body io.Reader, contentType string) error
	// Get 获取对象
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete 删除对象
	Delete(ctx context.Context, key string) error
	// Bucket returns the bucket name this store writes to.
	Bucket() string
}

// NewStorage 创建存储实例的工厂方法
func NewStorage(
	ctx context.Context,
	cfg config.StorageConfig,
	awsCfg aws.Config,
	bucket string,
	exec *resilience.Executor,
	log logger.Logger,
) (Storage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage: bucket name is empty")
	}
	switch StorageType(cfg.Backend) {
	case StorageTypeS3, "":
		return s3.NewS3Storage(awsCfg, bucket, exec, log, ErrNotFound), nil
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, cfg.Minio, bucket, log, ErrNotFound)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Backend)
	}
}

// ReadAll reads the object at key into memory.
func ReadAll(ctx context.Context, s Storage, key string) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}
