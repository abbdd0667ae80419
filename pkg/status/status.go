package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
)

// DefaultTTL 状态保存时间
const DefaultTTL = 7 * 24 * time.Hour

// ErrNotFound no status has been recorded for the job.
var ErrNotFound = errors.New("job status not found")

// Tracker records the lifecycle of OCR jobs. Recording is best effort for
// callers; a failed Record never changes the outcome of a pipeline step.
type Tracker interface {
	Record(ctx context.Context, st models.JobStatus) error
	Get(ctx context.Context, jobID string) (*models.JobStatus, error)
}

// kv is the part of the go-redis client the tracker uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisTracker 使用 Redis 保存任务状态
type RedisTracker struct {
	client kv
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisTracker(client kv, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTracker{client: client, ttl: ttl, now: time.Now}
}

// NewRedisClient 创建 Redis 客户端
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func Key(jobID string) string {
	return fmt.Sprintf("job_status:%s", jobID)
}

// Record 保存状态
func (t *RedisTracker) Record(ctx context.Context, st models.JobStatus) error {
	if st.JobID == "" {
		return fmt.Errorf("job status has no job id")
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = t.now().UTC()
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := t.client.Set(ctx, Key(st.JobID), data, t.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// Get 获取状态
func (t *RedisTracker) Get(ctx context.Context, jobID string) (*models.JobStatus, error) {
	data, err := t.client.Get(ctx, Key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}

	var st models.JobStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &st, nil
}

// MemoryTracker keeps statuses in process; used when Redis is not configured.
type MemoryTracker struct {
	mu       sync.RWMutex
	statuses map[string]models.JobStatus
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{statuses: make(map[string]models.JobStatus)}
}

func (t *MemoryTracker) Record(_ context.Context, st models.JobStatus) error {
	if st.JobID == "" {
		return fmt.Errorf("job status has no job id")
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	t.mu.Lock()
	t.statuses[st.JobID] = st
	t.mu.Unlock()
	return nil
}

func (t *MemoryTracker) Get(_ context.Context, jobID string) (*models.JobStatus, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.statuses[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

// NoopTracker discards every status.
type NoopTracker struct{}

func (NoopTracker) Record(context.Context, models.JobStatus) error { return nil }

func (NoopTracker) Get(context.Context, string) (*models.JobStatus, error) {
	return nil, ErrNotFound
}
