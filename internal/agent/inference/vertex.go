package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/resilience"
)

// VertexGenerator calls a Gemini model on Vertex AI.
type VertexGenerator struct {
	client *genai.Client
	model  string
	exec   *resilience.Executor
}

func NewVertexGenerator(ctx context.Context, projectID, region, model string, exec *resilience.Executor) (*VertexGenerator, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexGenerator: projectID and region cannot be empty")
	}
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexGenerator{client: client, model: model, exec: exec}, nil
}

func (g *VertexGenerator) Generate(ctx context.Context, req Request) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetMaxOutputTokens(int32(req.MaxTokens))
	model.SetTemperature(req.Temperature)

	var resp *genai.GenerateContentResponse
	err := g.exec.DoWith(ctx, "vertex.GenerateContent", func(ctx context.Context) error {
		var err error
		resp, err = model.GenerateContent(ctx, genai.Text(req.Prompt))
		return err
	}, func(error) resilience.Outcome {
		return resilience.Outcome{Trip: true}
	})
	if err != nil {
		return "", models.WrapError(models.ErrInference, "vertex generate content", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", models.WrapError(models.ErrInference, "vertex generate content", errors.New("no candidates"))
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	completion := cleanCompletion(sb.String())
	if completion == "" {
		return "", models.WrapError(models.ErrInference, "vertex generate content", errors.New("empty completion"))
	}
	return completion, nil
}

func (g *VertexGenerator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
