/*
PURPOSE:
  Question dispatcher for one model.
  Asks every corpus question in English and Hindi on a bounded worker pool and emits one record per question.

REQUIREMENTS:
  User-specified:
  - Each question is asked exactly once per model, in both languages.
  - A bounded number of questions in flight.
  - A failed language answer becomes the error sentinel; the other language is kept.

  Implementation-discovered:
  - Records arrive in completion order, not corpus order.
  - Cancellation must stop new questions without losing finished ones.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (Sequencer)
  - Uses: internal/engine (Backend, Retry), internal/model, internal/observability

ERROR HANDLING:
  - Backend failures are absorbed into the record after the retry budget.
  - Nothing here returns an error.

IMPLEMENTATION RULES:
  - Workers never touch the sink; records go through the channel.
  - The channel is closed only after every worker has sent its record.

USAGE:
  d := &engine.Dispatcher{Backend: b, EnglishPrompt: en, HindiPrompt: hi, Workers: 5}
  for rec := range d.Dispatch(ctx, "llama3:8b", questions) { ... }

SELF-HEALING INSTRUCTIONS:
  - If the prompt placeholder changes, update RenderPrompt and config.QuestionPlaceholder together.

RELATED FILES:
  - internal/engine/retry.go
  - internal/engine/sequencer.go
  - internal/model/types.go

MAINTENANCE:
  - Revisit the worker ceiling if remote backends need more than 2*NumCPU.
*/

package engine

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/daryltucker/polyglot-runner/internal/config"
	"github.com/daryltucker/polyglot-runner/internal/model"
	"github.com/daryltucker/polyglot-runner/internal/observability"
)

// Language labels used in logs and metrics.
const (
	LangEnglish = "en"
	LangHindi   = "hi"
)

// Dispatcher asks every question of one model on a bounded pool of workers.
type Dispatcher struct {
	Backend       Backend
	Options       model.QueryOptions
	EnglishPrompt string
	HindiPrompt   string
	Policy        RetryPolicy
	Workers       int
	RunID         string
	Log           Logger
	Metrics       *observability.Metrics
	Now           func() time.Time
}

// Dispatch starts the workload and returns the records in completion order.
// The channel is closed once every started question has been delivered.
// After ctx is cancelled no new question starts; questions already running
// finish and are delivered, with the error sentinel for any sub-call that did not run.
// The caller must read the channel until it is closed.
func (d *Dispatcher) Dispatch(ctx context.Context, modelName string, questions []model.Question) <-chan model.Record {
	out := make(chan model.Record)
	sem := semaphore.NewWeighted(int64(EffectiveWorkers(d.Workers)))

	go func() {
		var wg sync.WaitGroup
		defer close(out)
		defer wg.Wait()

		for _, q := range questions {
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			wg.Add(1)
			go func(q model.Question) {
				defer wg.Done()
				defer sem.Release(1)

				// sent even after cancellation; the consumer drains out until close
				out <- d.process(ctx, modelName, q)
			}(q)
		}
	}()
	return out
}

// process asks q in English, then in Hindi.
func (d *Dispatcher) process(ctx context.Context, modelName string, q model.Question) model.Record {
	ctx, span := observability.StartSpan(ctx, "dispatch.question",
		attribute.String("model", modelName),
		attribute.String("question.id", q.ID),
	)
	defer span.End()

	en := d.ask(ctx, modelName, q.ID, LangEnglish, RenderPrompt(d.EnglishPrompt, q.TextEN))
	hi := d.ask(ctx, modelName, q.ID, LangHindi, RenderPrompt(d.HindiPrompt, q.TextHI))

	rec := model.NewRecord(d.RunID, modelName, q, en, hi, d.now())
	span.SetAttributes(attribute.String("status", observability.RecordStatus(rec)))
	return rec
}

func (d *Dispatcher) ask(ctx context.Context, modelName, questionID, lang, prompt string) model.Answer {
	log := d.logger()
	policy := d.Policy
	policy.OnFailure = func(attempt int, err error) {
		d.Metrics.FailedAttempt(modelName, "query")
		log.Warn("Query attempt failed",
			"model", modelName, "id", questionID, "language", lang, "attempt", attempt, "error", err)
	}

	msgs := []model.Message{{Role: model.RoleUser, Content: prompt}}
	start := time.Now()
	text, ok := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		return d.Backend.Chat(ctx, modelName, msgs, d.Options)
	})
	elapsed := time.Since(start)

	d.Metrics.ObserveRequest(modelName, lang, ok, elapsed)
	if !ok && ctx.Err() == nil {
		log.Error("Query gave up", "model", modelName, "id", questionID, "language", lang, "attempts", policy.Retries+1)
	}
	return model.Answer{Text: text, OK: ok, Duration: elapsed}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) logger() Logger {
	if d.Log == nil {
		return discardLogger{}
	}
	return d.Log
}

// RenderPrompt substitutes the question text into a prompt template.
func RenderPrompt(template, question string) string {
	return strings.ReplaceAll(template, config.QuestionPlaceholder, question)
}

// EffectiveWorkers clamps n to [1, 2*NumCPU].
func EffectiveWorkers(n int) int {
	limit := runtime.NumCPU() * 2
	if n > limit {
		n = limit
	}
	if n < 1 {
		n = 1
	}
	return n
}
