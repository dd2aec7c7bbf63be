package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/polyglot-runner/internal/model"
)

func ollamaServer(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaClient(srv.URL+"/", "10m", 2*time.Second)
}

func TestOllama_ListModels(t *testing.T) {
	c := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest"},{"name":"falcon:7b-instruct"}]}`))
	})

	names, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3:latest", "falcon:7b-instruct"}, names)
}

func TestOllama_GenerateSendsOptions(t *testing.T) {
	c := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3", body["model"])
		assert.Equal(t, false, body["stream"])
		assert.Equal(t, "10m", body["keep_alive"])
		opts := body["options"].(map[string]interface{})
		assert.EqualValues(t, 20, opts["num_predict"])
		assert.EqualValues(t, 42, opts["seed"])
		_, _ = w.Write([]byte(`{"response":"Mumbai is the city of dreams.","done":true}`))
	})

	text, err := c.Generate(context.Background(), "llama3", "hi", model.DefaultQueryOptions().WithMaxTokens(20))
	require.NoError(t, err)
	assert.Equal(t, "Mumbai is the city of dreams.", text)
}

func TestOllama_Chat(t *testing.T) {
	c := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var body struct {
			Messages []model.Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 1)
		assert.Equal(t, model.RoleUser, body.Messages[0].Role)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"नमस्ते"},"done":true}`))
	})

	text, err := c.Chat(context.Background(), "llama3",
		[]model.Message{{Role: model.RoleUser, Content: "नमस्ते कहो"}}, model.DefaultQueryOptions())
	require.NoError(t, err)
	assert.Equal(t, "नमस्ते", text)
}

func TestOllama_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"model not found"}`, "model not found"},
		{"api error with 200", http.StatusOK, `{"error":"out of memory"}`, "out of memory"},
		{"invalid json", http.StatusOK, `not json`, "invalid JSON"},
		{"missing message", http.StatusOK, `{"done":true}`, "no message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Chat(context.Background(), "m", []model.Message{{Role: model.RoleUser, Content: "x"}}, model.QueryOptions{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBackend)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestOllama_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "", 50*time.Millisecond)
	_, err := c.Generate(context.Background(), "m", "x", model.QueryOptions{})
	assert.ErrorIs(t, err, ErrBackend)
}

func TestOllama_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllamaClient(url, "", time.Second).ListModels(context.Background())
	assert.ErrorIs(t, err, ErrBackend)
}

func TestOllama_RunningModel(t *testing.T) {
	c := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ps", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest","size":1000,"size_vram":250}]}`))
	})

	fp, err := c.RunningModel(context.Background(), "llama3")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), fp.Size)
	assert.InDelta(t, 25.0, fp.VRAMPercentage(), 0.001)

	fp, err = c.RunningModel(context.Background(), "phi3")
	require.NoError(t, err)
	assert.Zero(t, fp.Size)
	assert.Zero(t, fp.VRAMPercentage())
}

func TestOllama_RunningModelPrefersExactName(t *testing.T) {
	c := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[` +
			`{"name":"phi3:mini-128k","size":9000,"size_vram":9000},` +
			`{"name":"phi3:mini","size":2000,"size_vram":500}]}`))
	})

	fp, err := c.RunningModel(context.Background(), "phi3:mini")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), fp.Size)
	assert.Equal(t, int64(500), fp.SizeVRAM)

	fp, err = c.RunningModel(context.Background(), "phi3")
	require.NoError(t, err)
	assert.Equal(t, int64(9000), fp.Size, "prefix match falls back to the first loaded model")
}

func TestOpenAI_ZeroTemperatureIsSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		temp, ok := body["temperature"]
		require.True(t, ok, "temperature must be on the wire even when zero")
		assert.InDelta(t, 0.0, temp, 1e-6)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	opts := model.DefaultQueryOptions()
	opts.Temperature = 0
	_, err := NewOpenAIClient(srv.URL, "", time.Second).Chat(context.Background(), "m",
		[]model.Message{{Role: model.RoleUser, Content: "x"}}, opts)
	require.NoError(t, err)

	assert.NotZero(t, chatRequest("m", nil, opts).Temperature)
	opts.Temperature = 0.7
	assert.InDelta(t, 0.7, chatRequest("m", nil, opts).Temperature, 1e-6)
}

func TestOpenAI_ListAndChat(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"qwen2.5:7b","object":"model"}]}`))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "qwen2.5:7b", body["model"])
		assert.EqualValues(t, 512, body["max_tokens"])
		assert.EqualValues(t, 42, body["seed"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Gateway of India"}}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewOpenAIClient(srv.URL+"/v1", "sk-test", 2*time.Second)

	ids, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen2.5:7b"}, ids)

	text, err := c.Generate(context.Background(), "qwen2.5:7b", "landmark?", model.DefaultQueryOptions())
	require.NoError(t, err)
	assert.Equal(t, "Gateway of India", text)
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(srv.URL, "", time.Second).Chat(context.Background(), "m",
		[]model.Message{{Role: model.RoleUser, Content: "x"}}, model.QueryOptions{})
	assert.ErrorIs(t, err, ErrBackend)
}

func TestNewBackend(t *testing.T) {
	cfg := testConfig()
	b, err := NewBackend(cfg)
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, b)

	cfg.Backend = "openai"
	b, err = NewBackend(cfg)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, b)

	cfg.Backend = "tgi"
	_, err = NewBackend(cfg)
	assert.Error(t, err)
}
