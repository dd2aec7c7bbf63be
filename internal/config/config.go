/*
PURPOSE:
  Defines the configuration structure and loading logic for Polyglot Runner.
  Adheres to "Config IS Code" philosophy.

REQUIREMENTS:
  User-specified:
  - Allow configuration of the backend URL, target models, retries and output.
  - Fixed decoding options shared by every call in a run.

  Implementation-discovered:
  - Needs to support YAML, TOML and JSON files (chosen by extension).
  - Needs to support Environment variable overrides (POLYGLOT_...).
  - Durations must read as Go duration strings in all three formats.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine
  - Dependencies: gopkg.in/yaml.v3, github.com/pelletier/go-toml/v2

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - Missing default files fall back to DefaultConfig().

IMPLEMENTATION RULES:
  - Config struct tags should support yaml, toml and json.
  - Defaults should reproduce the reference evaluation (5 workers, 3 retries, 5s linear backoff).

USAGE:
  cfg, err := config.Load("polyglot_runner.yaml")

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config struct and update DefaultConfig() and Validate().

RELATED FILES:
  - internal/cli/run.go
  - internal/config/env.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/daryltucker/polyglot-runner/internal/model"
)

// Backend kinds.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// QuestionPlaceholder is replaced by the question text in prompt templates.
const QuestionPlaceholder = "{question}"

// Config represents the full configuration for Polyglot Runner.
type Config struct {
	URL     string `yaml:"url" toml:"url" json:"url"`
	Backend string `yaml:"backend" toml:"backend" json:"backend"`
	APIKey  string `yaml:"api_key" toml:"api_key" json:"api_key"`

	// Models are resolved against what the backend reports; missing ones are skipped.
	Models []model.ModelTarget `yaml:"models" toml:"models" json:"models"`
	// Exclude is a list of strings to filter model names (substring match)
	Exclude []string `yaml:"exclude" toml:"exclude" json:"exclude"`

	CorpusPath        string `yaml:"corpus" toml:"corpus" json:"corpus"`
	ExpectedQuestions int    `yaml:"expected_questions" toml:"expected_questions" json:"expected_questions"`

	OutputDir    string `yaml:"output_dir" toml:"output_dir" json:"output_dir"`
	OutputPrefix string `yaml:"output_prefix" toml:"output_prefix" json:"output_prefix"`

	Workers        int      `yaml:"workers" toml:"workers" json:"workers"`
	MaxRetries     int      `yaml:"max_retries" toml:"max_retries" json:"max_retries"`
	RetryDelay     Duration `yaml:"retry_delay" toml:"retry_delay" json:"retry_delay"`
	RequestTimeout Duration `yaml:"request_timeout" toml:"request_timeout" json:"request_timeout"`
	KeepAlive      string   `yaml:"keep_alive" toml:"keep_alive" json:"keep_alive"`

	MinFreeMemoryMB int `yaml:"min_free_memory_mb" toml:"min_free_memory_mb" json:"min_free_memory_mb"`

	Warmup  WarmupConfig       `yaml:"warmup" toml:"warmup" json:"warmup"`
	Options model.QueryOptions `yaml:"options" toml:"options" json:"options"`
	Prompts PromptConfig       `yaml:"prompts" toml:"prompts" json:"prompts"`

	Log     LogConfig     `yaml:"log" toml:"log" json:"log"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" toml:"tracing" json:"tracing"`
	Publish PublishConfig `yaml:"publish" toml:"publish" json:"publish"`
}

// WarmupConfig controls the pre-dispatch load check.
type WarmupConfig struct {
	Prompt    string   `yaml:"prompt" toml:"prompt" json:"prompt"`
	MaxTokens int      `yaml:"max_tokens" toml:"max_tokens" json:"max_tokens"`
	Retries   int      `yaml:"retries" toml:"retries" json:"retries"`
	Delay     Duration `yaml:"delay" toml:"delay" json:"delay"`
}

// PromptConfig holds the per-language templates. Both must contain {question}.
type PromptConfig struct {
	English string `yaml:"english" toml:"english" json:"english"`
	Hindi   string `yaml:"hindi" toml:"hindi" json:"hindi"`
}

// LogConfig configures console and file logging.
type LogConfig struct {
	Level      string `yaml:"level" toml:"level" json:"level"`
	File       string `yaml:"file" toml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups" json:"max_backups"`
	NoColor    bool   `yaml:"no_color" toml:"no_color" json:"no_color"`
}

// MetricsConfig configures the Prometheus textfile dump.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" toml:"textfile" json:"textfile"`
}

// TracingConfig configures OpenTelemetry export. Exporter: none|stdout|otlphttp.
type TracingConfig struct {
	Exporter string `yaml:"exporter" toml:"exporter" json:"exporter"`
	Endpoint string `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
	Insecure bool   `yaml:"insecure" toml:"insecure" json:"insecure"`
}

// PublishConfig configures the optional S3-compatible upload of finished results.
type PublishConfig struct {
	Endpoint  string `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
	Bucket    string `yaml:"bucket" toml:"bucket" json:"bucket"`
	AccessKey string `yaml:"access_key" toml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" toml:"secret_key" json:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" toml:"use_ssl" json:"use_ssl"`
	Region    string `yaml:"region" toml:"region" json:"region"`
	Prefix    string `yaml:"prefix" toml:"prefix" json:"prefix"`
}

// Enabled reports whether publishing was configured.
func (p PublishConfig) Enabled() bool {
	return p.Endpoint != "" && p.Bucket != ""
}

// DefaultEnglishPrompt and DefaultHindiPrompt are the scored prompt templates.
const (
	DefaultEnglishPrompt = "Please answer the following question in English.\n" +
		"Be concise and accurate in your response.\n" +
		"Question: {question}"
	DefaultHindiPrompt = "कृपया निम्नलिखित प्रश्न का उत्तर हिंदी में दें।\n" +
		"उत्तर संक्षिप्त और सटीक दें।\n" +
		"प्रश्न: {question}"
	DefaultWarmupPrompt = "What is Mumbai famous for? Answer in one sentence."
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		URL:               "http://localhost:11434",
		Backend:           BackendOllama,
		Models:            []model.ModelTarget{{Name: "falcon:7b-instruct", Priority: 1}},
		Exclude:           []string{"embed", "rerank"},
		CorpusPath:        "questions.json",
		ExpectedQuestions: 51,
		OutputDir:         "results",
		OutputPrefix:      "polyglot",
		Workers:           5,
		MaxRetries:        3,
		RetryDelay:        Duration(5 * time.Second),
		RequestTimeout:    Duration(5 * time.Minute),
		KeepAlive:         "10m",
		MinFreeMemoryMB:   4096,
		Warmup: WarmupConfig{
			Prompt:    DefaultWarmupPrompt,
			MaxTokens: 20,
			Retries:   2,
			Delay:     Duration(3 * time.Second),
		},
		Options: model.DefaultQueryOptions(),
		Prompts: PromptConfig{
			English: DefaultEnglishPrompt,
			Hindi:   DefaultHindiPrompt,
		},
		Log: LogConfig{
			Level:      "info",
			File:       "polyglot_runner.log",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Tracing: TracingConfig{Exporter: "none"},
	}
}

// DefaultFiles are searched, in order, when no config path is given.
var DefaultFiles = []string{
	"polyglot_runner.yaml",
	"polyglot_runner.yml",
	"polyglot_runner.toml",
	"polyglot_runner.json",
	"runner.yaml",
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches for default files in order.
// If no file found, returns default config.
// Environment overrides are applied last in every case.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		for _, name := range DefaultFiles {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name // record which file we loaded
				break
			}
		}
	}

	if path != "" {
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".conf":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		return toml.Unmarshal(data, cfg)
	case ".json":
		return json.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config extension: %q", ext)
	}
}

// Validate checks the configuration for values the run cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.URL) == "" {
		errs = append(errs, errors.New("url must not be empty"))
	}
	switch c.Backend {
	case BackendOllama, BackendOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendOllama, BackendOpenAI))
	}
	if len(c.Models) == 0 {
		errs = append(errs, errors.New("at least one model must be configured"))
	}
	for i, m := range c.Models {
		if strings.TrimSpace(m.Name) == "" {
			errs = append(errs, fmt.Errorf("models[%d]: name must not be empty", i))
		}
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries))
	}
	if c.Warmup.Retries < 0 {
		errs = append(errs, fmt.Errorf("warmup.retries must not be negative, got %d", c.Warmup.Retries))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request_timeout must not be negative"))
	}
	if !strings.Contains(c.Prompts.English, QuestionPlaceholder) {
		errs = append(errs, fmt.Errorf("prompts.english must contain %s", QuestionPlaceholder))
	}
	if !strings.Contains(c.Prompts.Hindi, QuestionPlaceholder) {
		errs = append(errs, fmt.Errorf("prompts.hindi must contain %s", QuestionPlaceholder))
	}
	return errors.Join(errs...)
}
