package handlers_test

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/api/handlers"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/api/middleware"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/api/routes"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/service/intake"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/utils/validator"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/status"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/storage/storagetest"
)

var samplePNG = func() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

type fakeSubmitter struct {
	refs      []models.DocumentRef
	revisions []string
	err       error
}

func (f *fakeSubmitter) SubmitRevision(_ context.Context, ref models.DocumentRef, revision string) (string, error) {
	f.refs = append(f.refs, ref)
	f.revisions = append(f.revisions, revision)
	if f.err != nil {
		return "", f.err
	}
	return "job-123", nil
}

type testServer struct {
	engine    *gin.Engine
	store     *storagetest.Memory
	submitter *fakeSubmitter
	tracker   *status.MemoryTracker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewTestLogger()
	ts := &testServer{
		store:     storagetest.NewMemory("docs"),
		submitter: &fakeSubmitter{},
		tracker:   status.NewMemoryTracker(),
	}
	svc := intake.NewService(ts.store, ts.submitter, validator.NewDocumentValidator(log, nil), ts.tracker, log)

	ts.engine = gin.New()
	routes.SetupRoutes(ts.engine, handlers.NewHandlers(svc, log), log)
	return ts
}

func uploadRequest(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadStoresVerbatimAndSubmits(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, uploadRequest(t, "passport scan.png", samplePNG))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-123", resp.JobID)
	assert.Equal(t, models.DocumentRef{Bucket: "docs", Key: "passport scan.png"}, resp.Document)

	obj, ok := ts.store.Object("passport scan.png")
	require.True(t, ok)
	assert.Equal(t, samplePNG, obj.Body)
	assert.Equal(t, "image/png", obj.ContentType)

	require.Len(t, ts.submitter.refs, 1)
	// 修订号是内容 MD5, 与 S3 事件中的 ETag 相同
	sum := md5.Sum(samplePNG)
	assert.Equal(t, hex.EncodeToString(sum[:]), ts.submitter.revisions[0])
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestUploadRejectsInvalidDocument(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, uploadRequest(t, "macro.docx", []byte("PK")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_FILE_TYPE")
	assert.Empty(t, ts.store.Keys())
	assert.Empty(t, ts.submitter.refs)
}

func TestUploadWithoutFile(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadSubmissionFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.submitter.err = models.WrapError(models.ErrSubmission, "start", errors.New("InvalidS3ObjectException"))

	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, uploadRequest(t, "scan.png", samplePNG))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "InvalidS3ObjectException")
}

func TestGetJobStatus(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.tracker.Record(context.Background(), models.JobStatus{
		JobID: "job-1",
		State: models.StateClassifying,
	}))

	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var st models.JobStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, models.StateClassifying, st.State)

	rec = httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
