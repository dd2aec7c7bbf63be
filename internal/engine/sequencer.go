/*
PURPOSE:
  High-level runner that orchestrates one benchmark run.
  Resolves target models, then drives Warm-up -> Dispatch -> Sink for each model in priority order.

REQUIREMENTS:
  User-specified:
  - Run the whole corpus against every requested model that the backend has.
  - Smallest models first.
  - One model at a time; they compete for the same backend.

  Implementation-discovered:
  - Needs to report progress to CLI.
  - Ollama lists "name:latest" for targets given without a tag.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (run)
  - Uses: internal/engine (WarmupGate, Dispatcher), internal/output via RecordSink

ERROR HANDLING:
  - Missing targets are logged and dropped.
  - No resolvable target, or a backend that cannot list models, aborts the run.
  - Warm-up failure aborts a single-model run and skips the model otherwise.
  - A sink failure stops that model's dispatch; the model is reported as sink_failed.

IMPLEMENTATION RULES:
  - Only this goroutine calls the sink.
  - The memory check is advisory and never blocks.

USAGE:
  seq := &engine.Sequencer{Backend: b, Gate: gate, Dispatcher: d, Sink: sink, Log: logger}
  summary, err := seq.Run(ctx, cfg.Models, questions)

SELF-HEALING INSTRUCTIONS:
  - If the backend changes its tag naming, update Resolve.

RELATED FILES:
  - internal/engine/warmup.go
  - internal/engine/dispatcher.go
  - internal/output/sink.go

MAINTENANCE:
  - Update iteration logic if cross-model parallelism is introduced.
*/

package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/daryltucker/polyglot-runner/internal/model"
	"github.com/daryltucker/polyglot-runner/internal/observability"
)

// RecordSink receives finished records. output.Sink satisfies it.
type RecordSink interface {
	Append(model.Record) error
}

// Progress is a per-model progress display.
type Progress interface {
	Add(n int) error
	Finish() error
}

// ModelStatus is the outcome of one model's turn.
type ModelStatus string

// Model outcomes.
const (
	StatusCompleted     ModelStatus = "completed"
	StatusSkippedWarmup ModelStatus = "skipped_warmup"
	StatusSinkFailed    ModelStatus = "sink_failed"
	StatusCancelled     ModelStatus = "cancelled"
)

// ModelSummary describes what happened to one model.
type ModelSummary struct {
	Model    string
	Priority int
	Status   ModelStatus
	Records  int
	Partial  int
	Failed   int
	Duration time.Duration
	Err      error
}

// Summary is the result of a run.
type Summary struct {
	Models  []ModelSummary
	Missing []string
}

// Records is the number of persisted records across all models.
func (s Summary) Records() int {
	n := 0
	for _, m := range s.Models {
		n += m.Records
	}
	return n
}

// Sequencer runs models one after another.
type Sequencer struct {
	Backend    Backend
	Gate       *WarmupGate
	Dispatcher *Dispatcher
	Sink       RecordSink

	// Exclude drops available models whose name contains any entry (case-insensitive).
	Exclude []string

	// MinFreeMemoryMB triggers a warning when less memory is available before a multi-model batch.
	MinFreeMemoryMB int64
	Memory          MemoryProbe

	// NewProgress, when set, is called before each model's dispatch.
	NewProgress func(modelName string, total int) Progress

	Log Logger
}

// Run evaluates questions against every resolvable target.
func (s *Sequencer) Run(ctx context.Context, targets []model.ModelTarget, questions []model.Question) (Summary, error) {
	log := s.logger()
	var summary Summary

	// 1. Discovery Phase
	log.Info("Discovering models...")
	available, err := s.Backend.ListModels(ctx)
	if err != nil {
		return summary, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	log.Info("Found models", "count", len(available))

	resolved, missing := Resolve(targets, FilterExcluded(available, s.Exclude))
	summary.Missing = missing
	for _, name := range missing {
		log.Warn("Model not available on backend, skipping", "model", name)
	}
	if len(resolved) == 0 {
		return summary, ErrNoModels
	}

	multi := len(resolved) > 1
	if multi {
		s.checkMemory()
	}

	// 2. Execution Phase
	for _, target := range resolved {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		ms := s.runModel(ctx, target, questions)
		summary.Models = append(summary.Models, ms)
		s.Dispatcher.Metrics.ObserveModel(target.Name, ms.Duration)

		switch ms.Status {
		case StatusSkippedWarmup:
			if !multi {
				return summary, fmt.Errorf("%w: %s", ErrWarmupFailed, target.Name)
			}
			log.Warn("Skipping model after failed warm-up", "model", target.Name)
		case StatusSinkFailed:
			if !multi {
				return summary, ms.Err
			}
			log.Error("Model aborted by sink failure", "model", target.Name, "error", ms.Err)
		case StatusCancelled:
			return summary, ctx.Err()
		default:
			log.Info("Model finished",
				"model", target.Name,
				"records", ms.Records,
				"partial", ms.Partial,
				"failed", ms.Failed,
				"duration", ms.Duration.Round(time.Millisecond),
			)
		}
	}
	return summary, nil
}

func (s *Sequencer) runModel(ctx context.Context, target model.ModelTarget, questions []model.Question) ModelSummary {
	log := s.logger()
	start := time.Now()
	ms := ModelSummary{Model: target.Name, Priority: target.Priority}

	ctx, span := observability.StartSpan(ctx, "sequencer.model",
		attribute.String("model", target.Name),
		attribute.Int("priority", target.Priority),
	)
	defer func() {
		span.SetAttributes(attribute.String("status", string(ms.Status)), attribute.Int("records", ms.Records))
		span.End()
	}()

	log.Info("Testing Model", "model", target.Name, "priority", target.Priority, "questions", len(questions))

	if !s.Gate.WarmUp(ctx, target.Name) {
		ms.Status = StatusSkippedWarmup
		if ctx.Err() != nil {
			ms.Status = StatusCancelled
		}
		ms.Duration = time.Since(start)
		return ms
	}
	s.logFootprint(ctx, target.Name)

	var bar Progress = nopProgress{}
	if s.NewProgress != nil {
		bar = s.NewProgress(target.Name, len(questions))
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ms.Status = StatusCompleted
	for rec := range s.Dispatcher.Dispatch(dctx, target.Name, questions) {
		if ms.Err != nil {
			continue // draining
		}
		if err := s.Sink.Append(rec); err != nil {
			ms.Err = fmt.Errorf("%w: %v", ErrSink, err)
			ms.Status = StatusSinkFailed
			cancel()
			continue
		}
		ms.Records++
		switch {
		case rec.Failed():
			ms.Failed++
		case rec.Partial():
			ms.Partial++
		}
		s.Dispatcher.Metrics.ObserveRecord(rec)
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	if ms.Status == StatusCompleted && ctx.Err() != nil {
		ms.Status = StatusCancelled
	}
	ms.Duration = time.Since(start)
	return ms
}

// checkMemory warns when available memory is below the configured floor.
func (s *Sequencer) checkMemory() {
	if s.Memory == nil || s.MinFreeMemoryMB <= 0 {
		return
	}
	avail, err := s.Memory.AvailableMB()
	if err != nil {
		s.logger().Debug("Memory check unavailable", "error", err)
		return
	}
	if avail < s.MinFreeMemoryMB {
		s.logger().Warn("Low available memory, larger models may fail to load",
			"available_mb", avail, "recommended_mb", s.MinFreeMemoryMB)
	}
}

// logFootprint reports how much of the freshly warmed model sits in VRAM.
func (s *Sequencer) logFootprint(ctx context.Context, modelName string) {
	fr, ok := s.Backend.(FootprintReporter)
	if !ok {
		return
	}
	fp, err := fr.RunningModel(ctx, modelName)
	if err != nil || fp.Size == 0 {
		return
	}
	s.logger().Info("Model loaded",
		"model", modelName,
		"size_mb", fp.Size>>20,
		"vram_pct", fmt.Sprintf("%.1f%%", fp.VRAMPercentage()),
	)
}

func (s *Sequencer) logger() Logger {
	if s.Log == nil {
		return discardLogger{}
	}
	return s.Log
}

// Resolve matches targets against the available model names and orders them
// by ascending priority, keeping declaration order for ties.
// A target matches exactly or with an implicit ":latest" tag.
func Resolve(targets []model.ModelTarget, available []string) (resolved []model.ModelTarget, missing []string) {
	have := make(map[string]bool, len(available))
	for _, name := range available {
		have[name] = true
	}

	seen := map[string]bool{}
	for _, t := range targets {
		name := t.Name
		if !have[name] && !strings.Contains(name, ":") && have[name+":latest"] {
			name += ":latest"
		}
		if !have[name] {
			missing = append(missing, t.Name)
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		resolved = append(resolved, model.ModelTarget{Name: name, Priority: t.Priority})
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].Priority < resolved[j].Priority
	})
	return resolved, missing
}

// FilterExcluded drops names containing any of the filters, case-insensitively.
func FilterExcluded(names, filters []string) []string {
	var kept []string
	for _, name := range names {
		lower := strings.ToLower(name)
		skip := false
		for _, ex := range filters {
			if ex != "" && strings.Contains(lower, strings.ToLower(ex)) {
				skip = true
				break
			}
		}
		if !skip {
			kept = append(kept, name)
		}
	}
	return kept
}

type nopProgress struct{}

func (nopProgress) Add(int) error { return nil }
func (nopProgress) Finish() error { return nil }

