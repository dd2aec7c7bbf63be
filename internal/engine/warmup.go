/*
PURPOSE:
  Warm-up gate run before a model is scored.
  Loads the model with a short prompt so the first question does not pay the load time.

REQUIREMENTS:
  User-specified:
  - Small max-token warm-up prompt.
  - Retry with a constant delay before giving up on the model.

  Implementation-discovered:
  - An empty answer means the model is loaded but unusable; treat it as a failure.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (Sequencer)
  - Uses: internal/engine (Backend, Retry), internal/observability

ERROR HANDLING:
  - Never returns an error. The Sequencer decides what a failed gate means.

IMPLEMENTATION RULES:
  - Uses Generate, not Chat.
  - Same decoding options as the scored questions, except max tokens.

USAGE:
  gate := &engine.WarmupGate{Backend: b, Prompt: cfg.Warmup.Prompt, MaxTokens: 20, Policy: p}
  if !gate.WarmUp(ctx, "llama3:8b") { ... }

SELF-HEALING INSTRUCTIONS:
  - If a backend loads lazily on chat only, switch WarmUp to Chat.

RELATED FILES:
  - internal/engine/retry.go
  - internal/engine/sequencer.go

MAINTENANCE:
  - Keep the warm-up prompt short; its answer is discarded.
*/

package engine

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/daryltucker/polyglot-runner/internal/model"
	"github.com/daryltucker/polyglot-runner/internal/observability"
)

var errEmptyWarmup = errors.New("empty warm-up response")

// WarmupGate loads a model with a short prompt before it is scored.
type WarmupGate struct {
	Backend   Backend
	Prompt    string
	MaxTokens int
	Options   model.QueryOptions
	Policy    RetryPolicy
	Log       Logger
	Metrics   *observability.Metrics
}

// WarmUp reports whether modelName produced a non-empty answer within the retry budget.
// It never returns an error; the caller decides what a failed gate means.
func (g *WarmupGate) WarmUp(ctx context.Context, modelName string) bool {
	ctx, span := observability.StartSpan(ctx, "warmup", attribute.String("model", modelName))
	defer span.End()

	log := g.logger()
	log.Info("Warming up model", "model", modelName)

	opts := g.Options
	if g.MaxTokens > 0 {
		opts = opts.WithMaxTokens(g.MaxTokens)
	}

	policy := g.Policy
	policy.OnFailure = func(attempt int, err error) {
		g.Metrics.FailedAttempt(modelName, "warmup")
		log.Warn("Warm-up attempt failed", "model", modelName, "attempt", attempt, "error", err)
	}

	resp, ok := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		text, err := g.Backend.Generate(ctx, modelName, g.Prompt, opts)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", errEmptyWarmup
		}
		return text, nil
	})

	g.Metrics.ObserveWarmup(modelName, ok)
	span.SetAttributes(attribute.Bool("ok", ok))
	if !ok {
		log.Error("Model failed to warm up", "model", modelName, "attempts", policy.Retries+1)
		return false
	}
	log.Info("Model warmed up", "model", modelName, "response", truncate(strings.TrimSpace(resp), 50))
	return true
}

func (g *WarmupGate) logger() Logger {
	if g.Log == nil {
		return discardLogger{}
	}
	return g.Log
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
