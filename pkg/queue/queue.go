// pkg/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
)

// TaskType 定义任务类型
const (
	TaskTypeDocumentEnrich = "document:enrich"
)

// EnrichmentQueueName is the asynq queue enrichment tasks are placed on.
const EnrichmentQueueName = "enrichment"

// EnrichTask 富化任务的载荷
type EnrichTask struct {
	Document       models.DocumentRef `json:"document"`
	JobID          string             `json:"jobId"`
	Classification string             `json:"classification"`
	TextKey        string             `json:"textKey"`
	ResultKey      string             `json:"resultKey"`
}

// QueueConfig 定义队列配置
type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
	Retention      time.Duration
}

// DefaultQueueConfig matches the enrichment worker defaults.
func DefaultQueueConfig(addr, password string, db int) QueueConfig {
	return QueueConfig{
		RedisAddr:      addr,
		RedisPassword:  password,
		RedisDB:        db,
		MaxRetries:     5,
		ProcessTimeout: 5 * time.Minute,
		Retention:      24 * time.Hour,
	}
}

// RedisOpt returns the asynq connection options for cfg.
func (c QueueConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// enqueuer is the part of *asynq.Client the queue uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// AsynqQueue hands classified documents to the enrichment worker.
type AsynqQueue struct {
	client enqueuer
	cfg    QueueConfig
}

// NewAsynqQueue 创建新的队列实例
func NewAsynqQueue(cfg QueueConfig) *AsynqQueue {
	return &AsynqQueue{
		client: asynq.NewClient(cfg.RedisOpt()),
		cfg:    cfg,
	}
}

// NewTask builds the asynq task for r. The task id is derived from the
// classification artifact key, so enqueueing the same result twice is a no-op.
func NewTask(r *models.ClassificationResult, cfg QueueConfig) (*asynq.Task, error) {
	payload, err := json.Marshal(EnrichTask{
		Document:       r.Document,
		JobID:          r.JobID,
		Classification: r.Label,
		TextKey:        r.TextKey,
		ResultKey:      r.ResultKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(EnrichmentQueueName),
		asynq.MaxRetry(cfg.MaxRetries),
		asynq.Timeout(cfg.ProcessTimeout),
		asynq.TaskID("enrich:" + r.ResultKey),
	}
	if cfg.Retention > 0 {
		opts = append(opts, asynq.Retention(cfg.Retention))
	}
	return asynq.NewTask(TaskTypeDocumentEnrich, payload, opts...), nil
}

// DispatchEnrichment 将富化任务加入队列
func (q *AsynqQueue) DispatchEnrichment(ctx context.Context, r *models.ClassificationResult) error {
	if r == nil || r.ResultKey == "" {
		return fmt.Errorf("enrichment dispatch: classification result has no key")
	}
	t, err := NewTask(r, q.cfg)
	if err != nil {
		return err
	}

	if _, err := q.client.EnqueueContext(ctx, t); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Close() error {
	return q.client.Close()
}

// ParseEnrichTask 解析任务载荷
func ParseEnrichTask(payload []byte) (*EnrichTask, error) {
	var task EnrichTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if task.Document.IsZero() || task.Classification == "" {
		return nil, fmt.Errorf("invalid task data: missing required fields")
	}
	return &task, nil
}
