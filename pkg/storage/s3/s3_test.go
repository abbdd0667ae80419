package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
)

var errNotFound = errors.New("not found")

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
	deleted []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestStoreAndGet(t *testing.T) {
	api := newFakeS3()
	s := NewWithClient(api, "results", nil, logger.NewTestLogger(), errNotFound)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "a.pdf-2024-01-01-00-00-00.000000.txt", bytes.NewBufferString("INVOICE"), "text/plain"))
	assert.Equal(t, "text/plain", api.types["results/a.pdf-2024-01-01-00-00-00.000000.txt"])

	body, err := s.Get(ctx, "a.pdf-2024-01-01-00-00-00.000000.txt")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "INVOICE", string(data))

	require.NoError(t, s.Delete(ctx, "a.pdf"))
	assert.Equal(t, []string{"a.pdf"}, api.deleted)
	assert.Equal(t, "results", s.Bucket())
}

func TestGetMissing(t *testing.T) {
	s := NewWithClient(newFakeS3(), "results", nil, logger.NewTestLogger(), errNotFound)
	_, err := s.Get(context.Background(), "missing.json")
	assert.ErrorIs(t, err, errNotFound)
}

func TestStoreError(t *testing.T) {
	api := newFakeS3()
	api.putErr = errors.New("AccessDenied")
	log := logger.NewTestLogger()
	s := NewWithClient(api, "results", nil, log, errNotFound)

	err := s.Store(context.Background(), "a.json", bytes.NewBufferString("{}"), "application/json")
	assert.ErrorIs(t, err, api.putErr)
	assert.Equal(t, 1, log.Count("ERROR"))
}
