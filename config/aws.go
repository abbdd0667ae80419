package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// AWSConfig 通用 AWS 客户端配置
type AWSConfig struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// GetAWSConfig reads the shared AWS settings. All fields are optional; the SDK
// default credential chain applies when keys are absent.
func GetAWSConfig() AWSConfig {
	loadDotEnv()
	return AWSConfig{
		Region:    getEnv("", "AWS_REGION", "AWS_DEFAULT_REGION"),
		Endpoint:  getEnv("", "AWS_ENDPOINT"),
		AccessKey: getEnv("", "AWS_ACCESS_KEY", "AWS_ACCESS_KEY_ID"),
		SecretKey: getEnv("", "AWS_SECRET_KEY", "AWS_SECRET_ACCESS_KEY"),
	}
}

// LoadAWS builds the SDK config shared by S3, Textract, SQS and Bedrock clients.
// SDK-level retries are disabled: retries and circuit breaking are owned by
// pkg/resilience so that each remote call has a single retry policy.
func LoadAWS(ctx context.Context, c AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(1),
	}
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	if c.AccessKey != "" && c.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}
	if c.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(c.Endpoint))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}
