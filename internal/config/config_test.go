package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/polyglot-runner/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay.Std())
	assert.Equal(t, 2, cfg.Warmup.Retries)
	assert.Equal(t, 3*time.Second, cfg.Warmup.Delay.Std())
	assert.Equal(t, 20, cfg.Warmup.MaxTokens)
	assert.Equal(t, model.DefaultQueryOptions(), cfg.Options)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.yaml", `
url: http://gpu-box:11434
models:
  - name: llama3.2:1b
    priority: 1
  - name: qwen2.5:7b
    priority: 2
workers: 3
retry_delay: 250ms
warmup:
  retries: 4
  delay: 1s
options:
  temperature: 0.0
  seed: 7
`)

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434", cfg.URL)
	assert.Equal(t, []model.ModelTarget{{Name: "llama3.2:1b", Priority: 1}, {Name: "qwen2.5:7b", Priority: 2}}, cfg.Models)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay.Std())
	assert.Equal(t, 4, cfg.Warmup.Retries)
	assert.Equal(t, time.Second, cfg.Warmup.Delay.Std())
	assert.Equal(t, 7, cfg.Options.Seed)
	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, DefaultHindiPrompt, cfg.Prompts.Hindi)
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.toml", `
url = "http://127.0.0.1:8080/v1"
backend = "openai"
request_timeout = "90s"

[[models]]
name = "phi3"
priority = 5
`)

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, BackendOpenAI, cfg.Backend)
	assert.Equal(t, 90*time.Second, cfg.RequestTimeout.Std())
	assert.Equal(t, []model.ModelTarget{{Name: "phi3", Priority: 5}}, cfg.Models)
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.json", `{"max_retries": 1, "retry_delay": "2s", "output_prefix": "falcon"}`)

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay.Std())
	assert.Equal(t, "falcon", cfg.OutputPrefix)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := writeFile(t, dir, "bad.yaml", "workers: [not an int")
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to parse config file")

	ini := writeFile(t, dir, "cfg.ini", "x=1")
	_, err = Load(ini)
	assert.ErrorContains(t, err, "unsupported config extension")

	dur := writeFile(t, dir, "dur.yaml", "retry_delay: soon")
	_, err = Load(dur)
	assert.ErrorContains(t, err, "invalid duration")
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().URL, cfg.URL)
}

func TestLoadSearchesDefaultFiles(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "polyglot_runner.toml", `workers = 2`)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvURL:      "http://other:11434",
		EnvBackend:  "OpenAI",
		EnvModels:   "llama3:8b@2,gemma:2b@1",
		EnvWorkers:  "8",
		EnvLogLevel: "debug",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := DefaultConfig()
	require.NoError(t, applyEnv(cfg, lookup))
	assert.Equal(t, "http://other:11434", cfg.URL)
	assert.Equal(t, BackendOpenAI, cfg.Backend)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []model.ModelTarget{{Name: "llama3:8b", Priority: 2}, {Name: "gemma:2b", Priority: 1}}, cfg.Models)

	env[EnvWorkers] = "many"
	assert.Error(t, applyEnv(DefaultConfig(), lookup))
}

func TestParseModelTargets(t *testing.T) {
	got, err := ParseModelTargets([]string{"falcon:7b-instruct", " ", "llama3.2:1b@0", "mistral"})
	require.NoError(t, err)
	assert.Equal(t, []model.ModelTarget{
		{Name: "falcon:7b-instruct", Priority: 1},
		{Name: "llama3.2:1b", Priority: 0},
		{Name: "mistral", Priority: 3},
	}, got)

	_, err = ParseModelTargets([]string{"x@high"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = ""
	cfg.Backend = "vllm"
	cfg.Workers = 0
	cfg.MaxRetries = -1
	cfg.Models = nil
	cfg.Prompts.English = "no placeholder"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"url", "unknown backend", "workers", "max_retries", "at least one model", "prompts.english"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "polyglot_runner.example.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Len(t, cfg.Models, 2)
	assert.Equal(t, "phi3:mini", cfg.Models[0].Name)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay.Std())
	assert.Equal(t, 3*time.Second, cfg.Warmup.Delay.Std())
	assert.False(t, cfg.Publish.Enabled())
	assert.Equal(t, DefaultEnglishPrompt, cfg.Prompts.English)
}
