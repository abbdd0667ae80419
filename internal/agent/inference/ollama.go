package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/resilience"
)

// OllamaResponse 定义 Ollama API 响应结构
type OllamaResponse struct {
	Response  string `json:"response"`
	Model     string `json:"model"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count,omitempty"`
	Error     string `json:"error,omitempty"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float32 `json:"temperature"`
}

// statusError carries a non-200 Ollama response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.code, e.body)
}

// OllamaClient runs prompts against a local Ollama server, for development without Bedrock.
type OllamaClient struct {
	endpoint   string
	model      string
	httpClient *http.Client
	exec       *resilience.Executor
}

func NewOllamaClient(endpoint, model string, timeout time.Duration, exec *resilience.Executor) *OllamaClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		exec: exec,
	}
}

func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	reqData, err := json.Marshal(ollamaRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		Stream: false,
		Options: ollamaOptions{
			NumPredict:  req.MaxTokens,
			Temperature: req.Temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var result OllamaResponse
	err = c.exec.DoWith(ctx, "ollama.generate", func(ctx context.Context) error {
		return c.post(ctx, reqData, &result)
	}, classifyOllamaError)
	if err != nil {
		return "", models.WrapError(models.ErrInference, "ollama generate", err)
	}
	if result.Error != "" {
		return "", models.WrapError(models.ErrInference, "ollama generate", errors.New(result.Error))
	}

	completion := cleanCompletion(result.Response)
	if completion == "" {
		return "", models.WrapError(models.ErrInference, "ollama generate", errors.New("empty completion"))
	}
	return completion, nil
}

func (c *OllamaClient) post(ctx context.Context, payload []byte, out *OllamaResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func classifyOllamaError(err error) resilience.Outcome {
	var se *statusError
	if errors.As(err, &se) {
		retry := se.code == http.StatusTooManyRequests || se.code >= 500
		return resilience.Outcome{Retry: retry, Trip: retry}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Outcome{Retry: true, Trip: true}
	}
	return resilience.Outcome{}
}
