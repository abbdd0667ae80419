package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
)

// clearEnv blanks every variable the loaders read so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RESULT_BUCKET", "OUTPUT_BUCKET", "MODEL_ID", "BEDROCK_MODEL_ID",
		"INFERENCE_PROVIDER", "CLASSIFICATION_MODE", "CLASSIFICATION_LABELS",
		"DEAD_LETTER_QUEUE_URL", "MAX_RECEIVE_COUNT", "CONCURRENCY", "MAX_TOKENS",
		"REQUEST_TIMEOUT", "VERTEX_PROJECT_ID", "SNS_TOPIC_ARN", "SNS_ROLE_ARN",
		"TEXTRACT_ROLE_ARN", "BUCKET_NAME", "SUBMIT_RATE_PER_SEC", "REDIS_ADDR",
		"REDIS_DB", "SQS_QUEUE_URL", "BATCH_SIZE", "TARGET_BUCKET", "STORAGE_BACKEND",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadClassifierDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("RESULT_BUCKET", "results")
	t.Setenv("MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0")

	cfg, err := LoadClassifier()
	require.NoError(t, err)
	assert.Equal(t, "results", cfg.ResultBucket)
	assert.Equal(t, ModeClosed, cfg.Mode)
	assert.Equal(t, DefaultLabels, cfg.Labels)
	assert.Equal(t, models.DefaultSeparator, cfg.Separator)
	assert.Equal(t, ProviderBedrock, cfg.Inference.Provider)
	assert.Equal(t, 500, cfg.Inference.MaxTokens)
	assert.Equal(t, 5, cfg.MaxReceiveCount)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadClassifierMissing(t *testing.T) {
	clearEnv(t)

	_, err := LoadClassifier()
	require.ErrorIs(t, err, models.ErrConfiguration)
	assert.Contains(t, err.Error(), "RESULT_BUCKET")
	assert.Contains(t, err.Error(), "MODEL_ID")
}

func TestLoadClassifierInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"mode":        {"CLASSIFICATION_MODE": "fuzzy"},
		"provider":    {"INFERENCE_PROVIDER": "openai"},
		"receives":    {"MAX_RECEIVE_COUNT": "many"},
		"vertex":      {"INFERENCE_PROVIDER": ProviderVertex},
		"empty label": {"CLASSIFICATION_LABELS": " , "},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("RESULT_BUCKET", "results")
			t.Setenv("MODEL_ID", "model")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadClassifier()
			assert.ErrorIs(t, err, models.ErrConfiguration)
		})
	}
}

func TestLoadClassifierLabels(t *testing.T) {
	clearEnv(t)
	t.Setenv("RESULT_BUCKET", "results")
	t.Setenv("BEDROCK_MODEL_ID", "model")
	t.Setenv("CLASSIFICATION_LABELS", "INVOICE, RECEIPT ,CONTRACT")

	cfg, err := LoadClassifier()
	require.NoError(t, err)
	assert.Equal(t, []string{"INVOICE", "RECEIPT", "CONTRACT"}, cfg.Labels)
	assert.Equal(t, "model", cfg.Inference.ModelID)
}

func TestLoadSubmitter(t *testing.T) {
	clearEnv(t)
	_, err := LoadSubmitter()
	require.ErrorIs(t, err, models.ErrConfiguration)
	assert.Contains(t, err.Error(), "SNS_TOPIC_ARN")

	t.Setenv("SNS_TOPIC_ARN", "arn:aws:sns:us-east-1:123456789012:textract")
	t.Setenv("TEXTRACT_ROLE_ARN", "arn:aws:iam::123456789012:role/textract")
	cfg, err := LoadSubmitter()
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:iam::123456789012:role/textract", cfg.Channel.RoleARN)
	assert.Equal(t, 5.0, cfg.RatePerSecond)
}

func TestLoadWorkerBatchSize(t *testing.T) {
	clearEnv(t)
	t.Setenv("SQS_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/123456789012/completions")
	t.Setenv("RESULT_BUCKET", "results")
	t.Setenv("MODEL_ID", "model")
	t.Setenv("BATCH_SIZE", "11")

	_, err := LoadWorker()
	assert.ErrorIs(t, err, models.ErrConfiguration)

	t.Setenv("BATCH_SIZE", "")
	cfg, err := LoadWorker()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, "results", cfg.Enricher.TargetBucket)
}
