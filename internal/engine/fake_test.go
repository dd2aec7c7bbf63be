package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/daryltucker/polyglot-runner/internal/model"
)

var errDown = errors.New("connection refused")

// fakeBackend is a scriptable Backend. Every call is recorded.
type fakeBackend struct {
	mu sync.Mutex

	models     []string
	listErr    error
	generateFn func(modelName, prompt string) (string, error)
	chatFn     func(modelName, prompt string) (string, error)

	generateCalls []string
	chatCalls     map[string]int
	warmupAt      map[string]time.Time
	chatAt        map[string][]time.Time

	inflight    int32
	maxInflight int32
}

func newFakeBackend(models ...string) *fakeBackend {
	return &fakeBackend{
		models:    models,
		chatCalls: map[string]int{},
		warmupAt:  map[string]time.Time{},
		chatAt:    map[string][]time.Time{},
	}
}

func (f *fakeBackend) ListModels(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.models, nil
}

func (f *fakeBackend) Generate(ctx context.Context, modelName, prompt string, opts model.QueryOptions) (string, error) {
	f.mu.Lock()
	f.generateCalls = append(f.generateCalls, modelName)
	if _, ok := f.warmupAt[modelName]; !ok {
		f.warmupAt[modelName] = time.Now()
	}
	fn := f.generateFn
	f.mu.Unlock()

	if fn != nil {
		return fn(modelName, prompt)
	}
	return "Mumbai is famous for Bollywood.", nil
}

func (f *fakeBackend) Chat(ctx context.Context, modelName string, messages []model.Message, opts model.QueryOptions) (string, error) {
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		m := atomic.LoadInt32(&f.maxInflight)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxInflight, m, n) {
			break
		}
	}

	prompt := messages[len(messages)-1].Content
	f.mu.Lock()
	f.chatCalls[prompt]++
	f.chatAt[modelName] = append(f.chatAt[modelName], time.Now())
	fn := f.chatFn
	f.mu.Unlock()

	if fn != nil {
		return fn(modelName, prompt)
	}
	return "answer to " + prompt, nil
}

func (f *fakeBackend) calls(prompt string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls[prompt]
}

func (f *fakeBackend) totalChatCalls(modelName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chatAt[modelName])
}

// memSink collects records in memory.
type memSink struct {
	mu      sync.Mutex
	records []model.Record
	failOn  string
	err     error
}

func (s *memSink) Append(r model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && r.ID == s.failOn {
		return s.err
	}
	s.records = append(s.records, r)
	return nil
}

func (s *memSink) byModel(name string) []model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Record
	for _, r := range s.records {
		if r.Model == name {
			out = append(out, r)
		}
	}
	return out
}

func questions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		id := string(rune('a' + i))
		qs[i] = model.Question{
			ID:       id,
			Category: "general",
			TextEN:   "question " + id,
			TextHI:   "प्रश्न " + id,
		}
	}
	return qs
}

func contains(prompt, part string) bool { return strings.Contains(prompt, part) }

// fastPolicy retries without waiting.
func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{Retries: retries, Backoff: Constant(time.Millisecond)}
}
