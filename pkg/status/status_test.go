package status

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
)

type fakeKV struct {
	data map[string]string
	ttl  time.Duration
}

func (f *fakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttl = exp
	return redis.NewStatusResult("OK", nil)
}

func TestRedisTrackerRoundTrip(t *testing.T) {
	kv := &fakeKV{data: map[string]string{}}
	tr := NewRedisTracker(kv, 0)
	ctx := context.Background()

	_, err := tr.Get(ctx, "job-123")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, tr.Record(ctx, models.JobStatus{
		JobID:    "job-123",
		Document: models.DocumentRef{Bucket: "docs", Key: "a.pdf"},
		State:    models.StateClassifying,
	}))
	assert.Equal(t, DefaultTTL, kv.ttl)
	assert.Contains(t, kv.data, "job_status:job-123")

	st, err := tr.Get(ctx, "job-123")
	require.NoError(t, err)
	assert.Equal(t, models.StateClassifying, st.State)
	assert.Equal(t, "a.pdf", st.Document.Key)
	assert.False(t, st.UpdatedAt.IsZero())

	assert.Error(t, tr.Record(ctx, models.JobStatus{State: models.StateFailed}))
}

func TestMemoryTracker(t *testing.T) {
	tr := NewMemoryTracker()
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, models.JobStatus{JobID: "j", State: models.StateSubmitted}))
	require.NoError(t, tr.Record(ctx, models.JobStatus{JobID: "j", State: models.StateAcknowledged}))

	st, err := tr.Get(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, models.StateAcknowledged, st.State)

	_, err = NoopTracker{}.Get(ctx, "j")
	assert.ErrorIs(t, err, ErrNotFound)
}
