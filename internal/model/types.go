/*
PURPOSE:
  Defines the core data structures used throughout Polyglot Runner.
  Questions come in from the corpus, Records go out to the sinks.

REQUIREMENTS:
  User-specified:
  - One record per (model, question) with both language answers.
  - Identical decoding options for every call so models stay comparable.

  Implementation-discovered:
  - Need JSON tags for the NDJSON sink.
  - Token counts are whitespace word counts, not tokenizer counts.

ARCHITECTURE INTEGRATION:
  - Used by: internal/corpus, internal/engine, internal/output
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs).

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Never mutate a Question after loading.

USAGE:
  rec := model.NewRecord(runID, modelName, q, en, hi, time.Now())

SELF-HEALING INSTRUCTIONS:
  - If a new column is needed, add the field and update the CSV/JSON writers.

RELATED FILES:
  - internal/output/csv.go
  - internal/output/json.go

MAINTENANCE:
  - Keep WordCount semantics stable; historical result sets are compared on it.
*/

package model

import (
	"strings"
	"time"
)

// ErrorSentinel replaces a response that could not be obtained within the retry budget.
const ErrorSentinel = "ERROR"

// Message roles understood by chat backends.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Question is one corpus entry, asked once in each language.
type Question struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	TextEN   string `json:"text_en"`
	TextHI   string `json:"text_hi"`
}

// QueryOptions are the decoding options applied to every backend call in a run.
type QueryOptions struct {
	NumCtx        int     `json:"num_ctx" yaml:"num_ctx" toml:"num_ctx"`
	Temperature   float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	Seed          int     `json:"seed" yaml:"seed" toml:"seed"`
	TopK          int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	RepeatPenalty float64 `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	NumPredict    int     `json:"num_predict" yaml:"num_predict" toml:"num_predict"`
}

// DefaultQueryOptions returns the options used for scored questions.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		NumCtx:        2048,
		Temperature:   0.3,
		Seed:          42,
		TopK:          40,
		RepeatPenalty: 1.1,
		NumPredict:    512,
	}
}

// Map renders the options as an Ollama "options" object.
// Zero values are left out so the server default applies.
func (o QueryOptions) Map() map[string]interface{} {
	m := map[string]interface{}{
		"temperature": o.Temperature,
		"seed":        o.Seed,
	}
	if o.NumCtx > 0 {
		m["num_ctx"] = o.NumCtx
	}
	if o.TopK > 0 {
		m["top_k"] = o.TopK
	}
	if o.RepeatPenalty > 0 {
		m["repeat_penalty"] = o.RepeatPenalty
	}
	if o.NumPredict != 0 {
		m["num_predict"] = o.NumPredict
	}
	return m
}

// WithMaxTokens returns a copy with NumPredict replaced.
func (o QueryOptions) WithMaxTokens(n int) QueryOptions {
	o.NumPredict = n
	return o
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelTarget is a model the run should evaluate. Lower priority runs first.
type ModelTarget struct {
	Name     string `json:"name" yaml:"name" toml:"name"`
	Priority int    `json:"priority" yaml:"priority" toml:"priority"`
}

// Answer is the outcome of one language sub-call.
// OK is false when the retry budget ran out.
type Answer struct {
	Text     string
	OK       bool
	Duration time.Duration
}

// Record is the result of asking one model one question in both languages.
type Record struct {
	RunID      string        `json:"run_id,omitempty"`
	ID         string        `json:"id"`
	Category   string        `json:"category"`
	QuestionEN string        `json:"question_en"`
	QuestionHI string        `json:"question_hi"`
	Model      string        `json:"model"`
	ResponseEN string        `json:"response_en"`
	ResponseHI string        `json:"response_hi"`
	TokensEN   int           `json:"tokens_en"`
	TokensHI   int           `json:"tokens_hi"`
	DurationEN time.Duration `json:"duration_en"`
	DurationHI time.Duration `json:"duration_hi"`
	Timestamp  time.Time     `json:"timestamp"`
}

// NewRecord builds a Record from both answers, substituting the error
// sentinel and a zero count for any answer that was not obtained or came back empty.
func NewRecord(runID, modelName string, q Question, en, hi Answer, at time.Time) Record {
	r := Record{
		RunID:      runID,
		ID:         q.ID,
		Category:   q.Category,
		QuestionEN: q.TextEN,
		QuestionHI: q.TextHI,
		Model:      modelName,
		ResponseEN: ErrorSentinel,
		ResponseHI: ErrorSentinel,
		DurationEN: en.Duration,
		DurationHI: hi.Duration,
		Timestamp:  at,
	}
	if en.OK && en.Text != "" {
		r.ResponseEN = en.Text
		r.TokensEN = WordCount(en.Text)
	}
	if hi.OK && hi.Text != "" {
		r.ResponseHI = hi.Text
		r.TokensHI = WordCount(hi.Text)
	}
	return r
}

// Failed reports whether neither language produced an answer.
func (r Record) Failed() bool {
	return r.ResponseEN == ErrorSentinel && r.ResponseHI == ErrorSentinel
}

// Partial reports whether exactly one language is missing.
func (r Record) Partial() bool {
	return (r.ResponseEN == ErrorSentinel) != (r.ResponseHI == ErrorSentinel)
}

// WordCount is the naive whitespace-delimited word count stored as "tokens".
func WordCount(s string) int {
	return len(strings.Fields(s))
}
