/*
PURPOSE:
  Backend adapter for the Ollama HTTP API.
  Handles model discovery, single-shot generation, chat and memory footprint lookups.

REQUIREMENTS:
  User-specified:
  - Detect models.
  - Non-stream generate (warm-up) and chat (scored questions).
  - Same decoding options on every call.

  Implementation-discovered:
  - Needs http.Client with a per-call timeout (context based, so retries get a fresh budget).
  - Ollama reports API-side failures in an "error" field with a 200 or 4xx/5xx status.
  - Several workers share one host; the idle pool must allow that many connections.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (WarmupGate, Dispatcher, Sequencer), internal/cli (list-models)
  - Uses: internal/model

ERROR HANDLING:
  - No retries here. Retry policy lives in retry.go and is applied by the callers.
  - Every failure wraps ErrBackend.

IMPLEMENTATION RULES:
  - Use net/http.
  - Enforce timeouts.
  - stream=false; the whole answer is needed for the record.

USAGE:
  c := engine.NewOllamaClient("http://localhost:11434", "10m", 5*time.Minute)
  models, err := c.ListModels(ctx)
  text, err := c.Chat(ctx, "llama3:8b", msgs, opts)

SELF-HEALING INSTRUCTIONS:
  - If Ollama API changes, update endpoints (/api/tags, /api/generate, /api/chat, /api/ps).

RELATED FILES:
  - internal/engine/backend.go
  - internal/model/types.go

MAINTENANCE:
  - Update for new Ollama API features.
*/

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/daryltucker/polyglot-runner/internal/model"
)

// OllamaClient talks to an Ollama server.
type OllamaClient struct {
	BaseURL   string
	KeepAlive string
	Timeout   time.Duration
	Client    *http.Client
}

// NewOllamaClient creates a new OllamaClient.
func NewOllamaClient(baseURL, keepAlive string, timeout time.Duration) *OllamaClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Default is 2; the dispatcher keeps several requests in flight against one host.
	transport.MaxIdleConnsPerHost = 16

	return &OllamaClient{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		KeepAlive: keepAlive,
		Timeout:   timeout,
		Client:    &http.Client{Transport: transport},
	}
}

// ListModels returns the names of the models installed on the server.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &payload); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Generate runs a single-turn, non-streaming completion.
func (c *OllamaClient) Generate(ctx context.Context, modelName, prompt string, opts model.QueryOptions) (string, error) {
	req := map[string]interface{}{
		"model":   modelName,
		"prompt":  prompt,
		"stream":  false,
		"options": opts.Map(),
	}
	if c.KeepAlive != "" {
		req["keep_alive"] = c.KeepAlive
	}

	var data struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/generate", req, &data); err != nil {
		return "", err
	}
	return data.Response, nil
}

// Chat runs a non-streaming chat completion and returns the assistant message.
func (c *OllamaClient) Chat(ctx context.Context, modelName string, messages []model.Message, opts model.QueryOptions) (string, error) {
	req := map[string]interface{}{
		"model":    modelName,
		"messages": messages,
		"stream":   false,
		"options":  opts.Map(),
	}
	if c.KeepAlive != "" {
		req["keep_alive"] = c.KeepAlive
	}

	var data struct {
		Message *model.Message `json:"message"`
		Done    bool           `json:"done"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/chat", req, &data); err != nil {
		return "", err
	}
	if data.Message == nil {
		return "", fmt.Errorf("%w: ollama chat response has no message", ErrBackend)
	}
	return data.Message.Content, nil
}

// RunningModel retrieves memory stats for a loaded model from /api/ps.
// A zero Footprint means the model is not (or no longer) loaded.
func (c *OllamaClient) RunningModel(ctx context.Context, modelName string) (Footprint, error) {
	var payload struct {
		Models []struct {
			Name     string `json:"name"`
			Size     int64  `json:"size"`
			SizeVRAM int64  `json:"size_vram"`
		} `json:"models"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/ps", nil, &payload); err != nil {
		return Footprint{}, err
	}

	for _, m := range payload.Models {
		if m.Name == modelName {
			return Footprint{Size: m.Size, SizeVRAM: m.SizeVRAM}, nil
		}
	}
	// Loose match only when no exact name is loaded ("llama3" vs "llama3:latest").
	for _, m := range payload.Models {
		if strings.HasPrefix(m.Name, modelName) {
			return Footprint{Size: m.Size, SizeVRAM: m.SizeVRAM}, nil
		}
	}
	return Footprint{}, nil
}

// do sends one request and decodes the JSON answer into out.
func (c *OllamaClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	ctx, cancel := withTimeout(ctx, c.Timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		reqBody, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", ErrBackend, err)
		}
		body = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		// Classify specific network errors
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("%w: ollama timeout after %s (model loading?): %v", ErrBackend, c.Timeout, err)
		case strings.Contains(err.Error(), "awaiting headers"):
			return fmt.Errorf("%w: ollama header timeout (model loading?): %v", ErrBackend, err)
		default:
			return fmt.Errorf("%w: network/connection error: %v", ErrBackend, err)
		}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", ErrBackend, err)
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(bodyBytes, &apiErr)

	if resp.StatusCode != http.StatusOK {
		msg := apiErr.Error
		if msg == "" {
			msg = strings.TrimSpace(string(bodyBytes))
		}
		return fmt.Errorf("%w: ollama server error (%s): %s", ErrBackend, resp.Status, msg)
	}
	if apiErr.Error != "" {
		return fmt.Errorf("%w: ollama API error: %s", ErrBackend, apiErr.Error)
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("%w: ollama returned invalid JSON: %v (body: %s)", ErrBackend, err, truncate(string(bodyBytes), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
