package enrichment

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/agent/inference"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/agent/prompt"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/status"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/storage"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/storage/storagetest"
)

type fakeGenerator struct {
	completion string
	err        error
	prompts    []string
}

func (f *fakeGenerator) Generate(_ context.Context, req inference.Request) (string, error) {
	f.prompts = append(f.prompts, req.Prompt)
	return f.completion, f.err
}

func (f *fakeGenerator) Close() error { return nil }

const (
	textKey  = "results/invoice-001.pdf_ocr_2024-05-01-12-30-15.123456.txt"
	classKey = "results/invoice-001.pdf_classification_2024-05-01-12-30-15.123456.json"
)

func newEnricher(t *testing.T, gen *fakeGenerator, opts ...Option) (*Enricher, *storagetest.Memory, *storagetest.Memory) {
	t.Helper()
	tmpl, err := prompt.LoadTemplates("")
	require.NoError(t, err)

	results := storagetest.NewMemory("results")
	results.Put(textKey, []byte("INVOICE\nTotal: $42.00"))
	results.Put(classKey, []byte(`{"classification_result": "RECEIPT"}`))
	target := storagetest.NewMemory("enriched")

	e, err := New(gen, tmpl, results, target, logger.NewTestLogger(), opts...)
	require.NoError(t, err)
	return e, results, target
}

func TestEnrich(t *testing.T) {
	gen := &fakeGenerator{completion: "merchant: ACME\ntotal: 42.00"}
	tracker := status.NewMemoryTracker()
	e, _, target := newEnricher(t, gen, WithTracker(tracker))

	artifact, err := e.Enrich(context.Background(), Request{
		Document:       models.DocumentRef{Bucket: "docs", Key: "invoice-001.pdf"},
		JobID:          "job-1",
		Classification: "RECEIPT",
		TextKey:        textKey,
	})
	require.NoError(t, err)
	assert.Equal(t, "enriched/invoice-001.pdf", artifact.Key)

	obj, ok := target.Object("enriched/invoice-001.pdf")
	require.True(t, ok)
	assert.Equal(t, "merchant: ACME\ntotal: 42.00", string(obj.Body))

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "INVOICE\nTotal: $42.00")
	assert.Contains(t, gen.prompts[0], "merchant")

	st, err := tracker.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateEnriched, st.State)
}

func TestEnrichGenerationFailureWritesNothing(t *testing.T) {
	gen := &fakeGenerator{err: models.WrapError(models.ErrInference, "converse", errors.New("boom"))}
	e, _, target := newEnricher(t, gen)

	_, err := e.Enrich(context.Background(), Request{
		Document:       models.DocumentRef{Key: "invoice-001.pdf"},
		Classification: "RECEIPT",
		TextKey:        textKey,
	})
	assert.ErrorIs(t, err, models.ErrInference)
	assert.Empty(t, target.Keys())
}

func TestEnrichReadsRawDocumentWithoutTextKey(t *testing.T) {
	docs := storagetest.NewMemory("docs")
	docs.Put("notes.txt", []byte("Minutes of the board meeting"))
	gen := &fakeGenerator{completion: "summary"}
	e, _, target := newEnricher(t, gen, WithSourceResolver(func(_ context.Context, bucket string) (storage.Storage, error) {
		require.Equal(t, "docs", bucket)
		return docs, nil
	}))

	_, err := e.Enrich(context.Background(), Request{
		Document:       models.DocumentRef{Bucket: "docs", Key: "notes.txt"},
		Classification: "SOMETHING_ELSE",
	})
	require.NoError(t, err)
	assert.Contains(t, gen.prompts[0], "Minutes of the board meeting")
	assert.Contains(t, gen.prompts[0], "50 word summary")
	assert.Equal(t, []string{"enriched/notes.txt"}, target.Keys())
}

func TestHandleS3Event(t *testing.T) {
	gen := &fakeGenerator{completion: "enriched"}
	e, _, target := newEnricher(t, gen)

	res := e.HandleS3Event(context.Background(), events.S3Event{Records: []events.S3EventRecord{
		{S3: events.S3Entity{Bucket: events.S3Bucket{Name: "results"}, Object: events.S3Object{Key: textKey}}},
		{S3: events.S3Entity{Bucket: events.S3Bucket{Name: "results"}, Object: events.S3Object{Key: classKey}}},
	}})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []string{"enriched/invoice-001.pdf"}, target.Keys())
	assert.Contains(t, gen.prompts[0], "merchant")
}

func TestHandleS3EventFailure(t *testing.T) {
	gen := &fakeGenerator{completion: "enriched"}
	e, results, target := newEnricher(t, gen)
	missing := "results/other.pdf_classification_2024-05-01-12-30-15.123456.json"
	results.Put(missing, []byte(`{"classification_result": "W2"}`))

	res := e.HandleS3Event(context.Background(), events.S3Event{Records: []events.S3EventRecord{
		{S3: events.S3Entity{Object: events.S3Object{Key: missing}}},
	}})
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Contains(t, res.Error, "error processing document")
	assert.Empty(t, target.Keys())
}
