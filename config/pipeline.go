package config

import (
	"errors"
	"time"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
)

// Inference providers.
const (
	ProviderBedrock = "bedrock"
	ProviderOllama  = "ollama"
	ProviderVertex  = "vertex"
)

// Classification modes.
const (
	ModeClosed = "closed"
	ModeOpen   = "open"
)

// DefaultLabels is the closed label set used when CLASSIFICATION_LABELS is unset.
var DefaultLabels = []string{
	"DRIVERS_LICENSE",
	"INSURANCE_ID",
	"RECEIPT",
	"BANK_STATEMENT",
	"W2",
	"MEETING_MINUTES",
}

// InferenceConfig 生成式模型配置
type InferenceConfig struct {
	Provider       string
	ModelID        string
	MaxTokens      int
	OllamaEndpoint string
	VertexProject  string
	VertexRegion   string
}

// SubmitterConfig configures the OCR job submitter.
type SubmitterConfig struct {
	AWS AWSConfig
	// DocumentBucket is used when the trigger carries only {"document": key}.
	DocumentBucket string
	Channel        models.NotificationChannel
	RatePerSecond  float64
	RequestTimeout time.Duration
	Redis          RedisConfig
}

// ClassifierConfig configures the classification worker.
type ClassifierConfig struct {
	AWS          AWSConfig
	Storage      StorageConfig
	ResultBucket string
	Inference    InferenceConfig
	Mode         string
	Labels       []string
	// Separator joins OCR lines; always "\n".
	Separator          string
	DeadLetterQueueURL string
	MaxReceiveCount    int
	Concurrency        int
	RequestTimeout     time.Duration
	Redis              RedisConfig
}

// EnricherConfig configures the enrichment worker.
type EnricherConfig struct {
	AWS            AWSConfig
	Storage        StorageConfig
	ResultBucket   string
	TargetBucket   string
	Inference      InferenceConfig
	TemplatesFile  string
	RequestTimeout time.Duration
	Redis          RedisConfig
}

// IntakeConfig configures the upload server.
type IntakeConfig struct {
	Submitter   SubmitterConfig
	Storage     StorageConfig
	HTTPAddr    string
	MaxFileSize int64
	MaxPages    int
	LogLevel    string
}

// WorkerConfig configures the long-running queue worker.
type WorkerConfig struct {
	Classifier        ClassifierConfig
	Enricher          EnricherConfig
	QueueURL          string
	BatchSize         int
	WaitTimeSeconds   int
	VisibilityTimeout time.Duration
	MetricsAddr       string
	LogLevel          string
}

// LoadSubmitter reads the submitter options. Missing SNS settings are a
// configuration error.
func LoadSubmitter() (*SubmitterConfig, error) {
	loadDotEnv()
	r := &requireEnv{}
	cfg := &SubmitterConfig{
		AWS:            GetAWSConfig(),
		DocumentBucket: getEnv("", "BUCKET_NAME"),
		Channel: models.NotificationChannel{
			TopicARN: r.get("SNS_TOPIC_ARN"),
			RoleARN:  r.get("SNS_ROLE_ARN", "TEXTRACT_ROLE_ARN"),
		},
	}
	if err := r.err(); err != nil {
		return nil, err
	}

	var err error
	if cfg.RatePerSecond, err = getEnvFloat("SUBMIT_RATE_PER_SEC", 5); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Redis, err = getRedisConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClassifier reads the classification worker options.
func LoadClassifier() (*ClassifierConfig, error) {
	loadDotEnv()
	r := &requireEnv{}
	cfg := &ClassifierConfig{
		AWS:                GetAWSConfig(),
		ResultBucket:       r.get("RESULT_BUCKET", "OUTPUT_BUCKET"),
		Mode:               getEnv(ModeClosed, "CLASSIFICATION_MODE"),
		Labels:             getEnvList("CLASSIFICATION_LABELS", DefaultLabels),
		Separator:          models.DefaultSeparator,
		DeadLetterQueueURL: getEnv("", "DEAD_LETTER_QUEUE_URL"),
	}
	inference, ierr := getInferenceConfig(r)
	if err := r.err(); err != nil {
		return nil, err
	}
	if ierr != nil {
		return nil, ierr
	}
	cfg.Inference = inference

	if cfg.Mode != ModeClosed && cfg.Mode != ModeOpen {
		return nil, invalid("CLASSIFICATION_MODE", errUnsupported(cfg.Mode))
	}
	if cfg.Mode == ModeClosed && len(cfg.Labels) == 0 {
		return nil, invalid("CLASSIFICATION_LABELS", errors.New("empty label set"))
	}

	var err error
	if cfg.MaxReceiveCount, err = getEnvInt("MAX_RECEIVE_COUNT", 5); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = getEnvInt("CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Storage, err = getStorageConfig(); err != nil {
		return nil, err
	}
	if cfg.Redis, err = getRedisConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnricher reads the enrichment worker options.
func LoadEnricher() (*EnricherConfig, error) {
	loadDotEnv()
	r := &requireEnv{}
	cfg := &EnricherConfig{
		AWS:           GetAWSConfig(),
		ResultBucket:  r.get("RESULT_BUCKET", "OUTPUT_BUCKET"),
		TemplatesFile: getEnv("", "ENRICHMENT_TEMPLATES_FILE"),
	}
	inference, ierr := getInferenceConfig(r)
	if err := r.err(); err != nil {
		return nil, err
	}
	if ierr != nil {
		return nil, ierr
	}
	cfg.Inference = inference
	cfg.TargetBucket = getEnv(cfg.ResultBucket, "TARGET_BUCKET")

	var err error
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Storage, err = getStorageConfig(); err != nil {
		return nil, err
	}
	if cfg.Redis, err = getRedisConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadIntake reads the upload server options.
func LoadIntake() (*IntakeConfig, error) {
	loadDotEnv()
	submitter, err := LoadSubmitter()
	if err != nil {
		return nil, err
	}
	if submitter.DocumentBucket == "" {
		r := &requireEnv{}
		r.get("BUCKET_NAME")
		return nil, r.err()
	}

	cfg := &IntakeConfig{
		Submitter: *submitter,
		HTTPAddr:  getEnv(":8080", "HTTP_ADDR"),
		LogLevel:  getEnv("info", "LOG_LEVEL"),
	}
	maxMB, err := getEnvInt("MAX_UPLOAD_MB", 500)
	if err != nil {
		return nil, err
	}
	cfg.MaxFileSize = int64(maxMB) * 1024 * 1024
	if cfg.MaxPages, err = getEnvInt("MAX_PAGES", 3000); err != nil {
		return nil, err
	}
	if cfg.Storage, err = getStorageConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorker reads the long-running worker options: everything the
// classifier and enricher need plus the source queue.
func LoadWorker() (*WorkerConfig, error) {
	loadDotEnv()
	r := &requireEnv{}
	queueURL := r.get("SQS_QUEUE_URL")
	if err := r.err(); err != nil {
		return nil, err
	}

	classifier, err := LoadClassifier()
	if err != nil {
		return nil, err
	}
	enricher, err := LoadEnricher()
	if err != nil {
		return nil, err
	}

	cfg := &WorkerConfig{
		Classifier:  *classifier,
		Enricher:    *enricher,
		QueueURL:    queueURL,
		MetricsAddr: getEnv(":9090", "METRICS_ADDR"),
		LogLevel:    getEnv("info", "LOG_LEVEL"),
	}
	if cfg.BatchSize, err = getEnvInt("BATCH_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.BatchSize < 1 || cfg.BatchSize > 10 {
		return nil, invalid("BATCH_SIZE", errors.New("must be between 1 and 10"))
	}
	if cfg.WaitTimeSeconds, err = getEnvInt("WAIT_TIME_SECONDS", 20); err != nil {
		return nil, err
	}
	if cfg.VisibilityTimeout, err = getEnvDuration("VISIBILITY_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getInferenceConfig(r *requireEnv) (InferenceConfig, error) {
	cfg := InferenceConfig{
		Provider:       getEnv(ProviderBedrock, "INFERENCE_PROVIDER"),
		ModelID:        r.get("MODEL_ID", "BEDROCK_MODEL_ID"),
		OllamaEndpoint: getEnv("http://localhost:11434", "OLLAMA_ENDPOINT"),
		VertexProject:  getEnv("", "VERTEX_PROJECT_ID"),
		VertexRegion:   getEnv("us-central1", "VERTEX_REGION"),
	}
	var err error
	if cfg.MaxTokens, err = getEnvInt("MAX_TOKENS", 500); err != nil {
		return InferenceConfig{}, err
	}
	switch cfg.Provider {
	case ProviderBedrock, ProviderOllama:
	case ProviderVertex:
		if cfg.VertexProject == "" {
			r.get("VERTEX_PROJECT_ID")
		}
	default:
		return InferenceConfig{}, invalid("INFERENCE_PROVIDER", errUnsupported(cfg.Provider))
	}
	return cfg, nil
}
