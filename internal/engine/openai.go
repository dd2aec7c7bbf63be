package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/daryltucker/polyglot-runner/internal/model"
)

// OpenAIClient adapts any OpenAI-compatible server (vLLM, llama.cpp server, LM Studio, Ollama /v1).
type OpenAIClient struct {
	client  *openai.Client
	timeout time.Duration
}

// NewOpenAIClient builds a client for baseURL, which should include the /v1 suffix.
func NewOpenAIClient(baseURL, apiKey string, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(cfg),
		timeout: timeout,
	}
}

// ListModels returns the model IDs served by the endpoint.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list models: %v", ErrBackend, err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Generate sends prompt as a single user turn.
// Plain completions are not served by every compatible server, chat is.
func (c *OpenAIClient) Generate(ctx context.Context, modelName, prompt string, opts model.QueryOptions) (string, error) {
	return c.Chat(ctx, modelName, []model.Message{{Role: model.RoleUser, Content: prompt}}, opts)
}

// Chat runs a non-streaming chat completion.
func (c *OpenAIClient) Chat(ctx context.Context, modelName string, messages []model.Message, opts model.QueryOptions) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, chatRequest(modelName, messages, opts))
	if err != nil {
		return "", fmt.Errorf("%w: OpenAI API request failed: %v", ErrBackend, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrBackend)
	}
	return resp.Choices[0].Message.Content, nil
}

// chatRequest maps the run's decoding options onto the fields the OpenAI API has.
// num_ctx, top_k and repeat_penalty have no equivalent and are dropped.
func chatRequest(modelName string, messages []model.Message, opts model.QueryOptions) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       modelName,
		Messages:    msgs,
		Temperature: float32(opts.Temperature),
	}
	// go-openai omits a zero temperature and the server then falls back to its own default (often 1.0).
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	if opts.NumPredict > 0 {
		req.MaxTokens = opts.NumPredict
	}
	if opts.Seed != 0 {
		seed := opts.Seed
		req.Seed = &seed
	}
	return req
}
