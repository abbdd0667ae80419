package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/config"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/resilience"
)

// NewGenerator 根据配置选择推理后端
func NewGenerator(
	ctx context.Context,
	cfg config.InferenceConfig,
	awsCfg aws.Config,
	timeout time.Duration,
	exec *resilience.Executor,
	log logger.Logger,
) (Generator, error) {
	log.Info("Creating generator",
		logger.String("provider", cfg.Provider),
		logger.String("model", cfg.ModelID),
	)

	switch cfg.Provider {
	case config.ProviderBedrock, "":
		return NewBedrockGenerator(awsCfg, cfg.ModelID, exec), nil
	case config.ProviderOllama:
		return NewOllamaClient(cfg.OllamaEndpoint, cfg.ModelID, timeout, exec), nil
	case config.ProviderVertex:
		g, err := NewVertexGenerator(ctx, cfg.VertexProject, cfg.VertexRegion, cfg.ModelID, exec)
		if err != nil {
			return nil, models.WrapError(models.ErrConfiguration, "create vertex generator", err)
		}
		return g, nil
	default:
		log.Error("Unsupported inference provider",
			logger.String("provider", cfg.Provider),
		)
		return nil, models.WrapError(models.ErrConfiguration, "create generator",
			fmt.Errorf("unsupported inference provider: %s", cfg.Provider))
	}
}
