package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/config"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/resilience"
)

type fakeConverse struct {
	in  *bedrockruntime.ConverseInput
	out *bedrockruntime.ConverseOutput
	err error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.in = in
	return f.out, f.err
}

func textOutput(parts ...string) *bedrockruntime.ConverseOutput {
	msg := types.Message{Role: types.ConversationRoleAssistant}
	for _, p := range parts {
		msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: p})
	}
	return &bedrockruntime.ConverseOutput{Output: &types.ConverseOutputMemberMessage{Value: msg}}
}

func TestBedrockGenerate(t *testing.T) {
	api := &fakeConverse{out: textOutput("  INVOICE", "\n")}
	g := NewBedrockWithAPI(api, "anthropic.claude-3-haiku-20240307-v1:0", nil)

	got, err := g.Generate(context.Background(), Request{Prompt: "classify", MaxTokens: 500})
	require.NoError(t, err)
	assert.Equal(t, "INVOICE", got)

	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", aws.ToString(api.in.ModelId))
	require.Len(t, api.in.Messages, 1)
	assert.Equal(t, types.ConversationRoleUser, api.in.Messages[0].Role)
	assert.Equal(t, "classify", api.in.Messages[0].Content[0].(*types.ContentBlockMemberText).Value)
	assert.Equal(t, int32(500), aws.ToInt32(api.in.InferenceConfig.MaxTokens))
	assert.Equal(t, float32(0), aws.ToFloat32(api.in.InferenceConfig.Temperature))
}

func TestBedrockGenerateErrors(t *testing.T) {
	cases := map[string]*fakeConverse{
		"call":    {err: errors.New("AccessDeniedException")},
		"empty":   {out: textOutput("   ")},
		"no text": {out: &bedrockruntime.ConverseOutput{}},
	}
	for name, api := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewBedrockWithAPI(api, "model", nil).Generate(context.Background(), Request{Prompt: "p"})
			assert.ErrorIs(t, err, models.ErrInference)
		})
	}
}

func TestOllamaGenerate(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(OllamaResponse{Response: " RECEIPT \n", Done: true})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL+"/", "llama3", time.Second, nil)
	defer c.Close()

	out, err := c.Generate(context.Background(), Request{Prompt: "classify", MaxTokens: 20, Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "RECEIPT", out)
	assert.Equal(t, "llama3", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, 20, got.Options.NumPredict)
}

func TestOllamaRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(OllamaResponse{Response: "CONTRACT", Done: true})
	}))
	defer srv.Close()

	exec := resilience.NewExecutor(resilience.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}, logger.NewTestLogger())
	out, err := NewOllamaClient(srv.URL, "llama3", time.Second, exec).Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "CONTRACT", out)
	assert.Equal(t, 2, calls)
}

func TestOllamaErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"bad request": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unknown model", http.StatusNotFound)
		},
		"model error": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(OllamaResponse{Error: "out of memory"})
		},
		"empty": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(OllamaResponse{Done: true})
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := NewOllamaClient(srv.URL, "llama3", time.Second, nil).Generate(context.Background(), Request{Prompt: "p"})
			assert.ErrorIs(t, err, models.ErrInference)
		})
	}
}

func TestClassifyOllamaError(t *testing.T) {
	assert.True(t, classifyOllamaError(&statusError{code: 503}).Retry)
	assert.True(t, classifyOllamaError(&statusError{code: 429}).Retry)
	assert.False(t, classifyOllamaError(&statusError{code: 400}).Retry)
	assert.False(t, classifyOllamaError(errors.New("decode")).Retry)
}

func TestNewGenerator(t *testing.T) {
	log := logger.NewTestLogger()

	g, err := NewGenerator(context.Background(), config.InferenceConfig{Provider: config.ProviderOllama, ModelID: "llama3"}, aws.Config{}, 0, nil, log)
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, g)

	g, err = NewGenerator(context.Background(), config.InferenceConfig{Provider: config.ProviderBedrock, ModelID: "m"}, aws.Config{Region: "us-east-1"}, 0, nil, log)
	require.NoError(t, err)
	assert.IsType(t, &BedrockGenerator{}, g)

	_, err = NewGenerator(context.Background(), config.InferenceConfig{Provider: "openai"}, aws.Config{}, 0, nil, log)
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
