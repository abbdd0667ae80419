package inference

import (
	"context"
	"strings"
)

// Request is one generative call.
type Request struct {
	Prompt    string
	MaxTokens int
	// Temperature 0 keeps classification deterministic.
	Temperature float32
}

// Generator 生成式推理接口
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Close() error
}

func cleanCompletion(s string) string {
	return strings.TrimSpace(s)
}
