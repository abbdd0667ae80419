package inference

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/resilience"
)

// ConverseAPI is the subset of *bedrockruntime.Client used here.
type ConverseAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockGenerator calls a Bedrock model through the model-agnostic Converse API.
type BedrockGenerator struct {
	api     ConverseAPI
	modelID string
	exec    *resilience.Executor
}

func NewBedrockGenerator(awsCfg aws.Config, modelID string, exec *resilience.Executor) *BedrockGenerator {
	return NewBedrockWithAPI(bedrockruntime.NewFromConfig(awsCfg), modelID, exec)
}

func NewBedrockWithAPI(api ConverseAPI, modelID string, exec *resilience.Executor) *BedrockGenerator {
	return &BedrockGenerator{api: api, modelID: modelID, exec: exec}
}

func (g *BedrockGenerator) Generate(ctx context.Context, req Request) (string, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(g.modelID),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: req.Prompt},
				},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(req.MaxTokens)),
			Temperature: aws.Float32(req.Temperature),
		},
	}

	var out *bedrockruntime.ConverseOutput
	err := g.exec.Do(ctx, "bedrock.Converse", func(ctx context.Context) error {
		var err error
		out, err = g.api.Converse(ctx, input)
		return err
	})
	if err != nil {
		return "", models.WrapError(models.ErrInference, "bedrock converse", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", models.WrapError(models.ErrInference, "bedrock converse", errors.New("response carries no message"))
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	completion := cleanCompletion(sb.String())
	if completion == "" {
		return "", models.WrapError(models.ErrInference, "bedrock converse", errors.New("empty completion"))
	}
	return completion, nil
}

func (g *BedrockGenerator) Close() error { return nil }
