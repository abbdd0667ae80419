package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/resilience"
)

// API is the subset of *s3.Client used here.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Storage struct {
	client      API
	bucketName  string
	exec        *resilience.Executor
	logger      logger.Logger
	errNotFound error
}

func NewS3Storage(awsCfg aws.Config, bucket string, exec *resilience.Executor, log logger.Logger, errNotFound error) *S3Storage {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// custom endpoints (localstack, minio gateways) need path-style addressing
		o.UsePathStyle = awsCfg.BaseEndpoint != nil
	})
	return NewWithClient(client, bucket, exec, log, errNotFound)
}

func NewWithClient(client API, bucket string, exec *resilience.Executor, log logger.Logger, errNotFound error) *S3Storage {
	return &S3Storage{
		client:      client,
		bucketName:  bucket,
		exec:        exec,
		logger:      log,
		errNotFound: errNotFound,
	}
}

func (s *S3Storage) Bucket() string { return s.bucketName }

// Store 实现 Storage 接口的 Store 方法
func (s *S3Storage) Store(ctx context.Context, key string, body io.Reader, contentType string) error {
	// buffered so the body can be replayed on retry
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read body for %s: %w", key, err)
	}

	err = s.exec.Do(ctx, "s3.PutObject", func(ctx context.Context) error {
		input := &s3.PutObjectInput{
			Bucket:        aws.String(s.bucketName),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		}
		if contentType != "" {
			input.ContentType = aws.String(contentType)
		}
		_, err := s.client.PutObject(ctx, input)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to store object to S3",
			logger.String("bucket", s.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return fmt.Errorf("failed to store object: %w", err)
	}
	return nil
}

// Get 实现 Storage 接口的 Get 方法
func (s *S3Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := s.exec.Do(ctx, "s3.GetObject", func(ctx context.Context) error {
		result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucketName),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		body = result.Body
		return nil
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) && s.errNotFound != nil {
			return nil, fmt.Errorf("%w: s3://%s/%s", s.errNotFound, s.bucketName, key)
		}
		s.logger.Error("Failed to get object from S3",
			logger.String("bucket", s.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return body, nil
}

// Delete 实现 Storage 接口的 Delete 方法
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	err := s.exec.Do(ctx, "s3.DeleteObject", func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucketName),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to delete object from S3",
			logger.String("bucket", s.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
