/*
PURPOSE:
  Backend contract shared by every inference server adapter.
  Selects the adapter (Ollama or OpenAI-compatible) from configuration.

REQUIREMENTS:
  User-specified:
  - Detect models, generate and chat against a local inference server.

  Implementation-discovered:
  - Footprint lookups only exist on Ollama; keep them behind an optional interface.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine, internal/cli
  - Uses: internal/config, internal/model

ERROR HANDLING:
  - Adapters wrap every failure in ErrBackend and never retry.

IMPLEMENTATION RULES:
  - Per-call timeout through withTimeout so each retry gets a fresh budget.

USAGE:
  b, err := engine.NewBackend(cfg)

SELF-HEALING INSTRUCTIONS:
  - New backend kinds go into NewBackend and config.Validate together.

RELATED FILES:
  - internal/engine/client.go
  - internal/engine/openai.go

MAINTENANCE:
  - Keep the interface minimal; components assert optional capabilities.
*/

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/daryltucker/polyglot-runner/internal/config"
	"github.com/daryltucker/polyglot-runner/internal/model"
)

// Backend is the inference server surface the runner needs.
// Calls block, never retry internally and return errors wrapping ErrBackend.
type Backend interface {
	ListModels(ctx context.Context) ([]string, error)
	Generate(ctx context.Context, modelName, prompt string, opts model.QueryOptions) (string, error)
	Chat(ctx context.Context, modelName string, messages []model.Message, opts model.QueryOptions) (string, error)
}

// FootprintReporter is implemented by backends that can report the memory a loaded model occupies.
type FootprintReporter interface {
	RunningModel(ctx context.Context, modelName string) (Footprint, error)
}

// Footprint is the memory a loaded model occupies on the server.
type Footprint struct {
	Size     int64
	SizeVRAM int64
}

// VRAMPercentage is the share of the model resident in VRAM.
func (f Footprint) VRAMPercentage() float64 {
	if f.Size == 0 {
		return 0
	}
	return float64(f.SizeVRAM) / float64(f.Size) * 100.0
}

// Logger is the logging capability engine components need. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewBackend builds the backend selected by cfg.Backend.
func NewBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Backend {
	case config.BackendOllama, "":
		return NewOllamaClient(cfg.URL, cfg.KeepAlive, cfg.RequestTimeout.Std()), nil
	case config.BackendOpenAI:
		return NewOpenAIClient(cfg.URL, cfg.APIKey, cfg.RequestTimeout.Std()), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// withTimeout applies the per-call timeout when one is configured.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
