package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/daryltucker/polyglot-runner/internal/model"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) ListModels(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockBackend) Generate(ctx context.Context, modelName, prompt string, opts model.QueryOptions) (string, error) {
	args := m.Called(ctx, modelName, prompt, opts)
	return args.String(0), args.Error(1)
}

func (m *mockBackend) Chat(ctx context.Context, modelName string, messages []model.Message, opts model.QueryOptions) (string, error) {
	args := m.Called(ctx, modelName, messages, opts)
	return args.String(0), args.Error(1)
}

func newGate(b Backend, retries int) *WarmupGate {
	return &WarmupGate{
		Backend:   b,
		Prompt:    "What is Mumbai famous for? Answer in one sentence.",
		MaxTokens: 20,
		Options:   model.DefaultQueryOptions(),
		Policy:    fastPolicy(retries),
	}
}

func TestWarmUp_SucceedsAfterRetry(t *testing.T) {
	b := &mockBackend{}
	want := model.DefaultQueryOptions().WithMaxTokens(20)
	b.On("Generate", mock.Anything, "llama3", mock.Anything, want).Return("", errDown).Once()
	b.On("Generate", mock.Anything, "llama3", mock.Anything, want).Return("Bollywood.", nil).Once()

	assert.True(t, newGate(b, 2).WarmUp(context.Background(), "llama3"))
	b.AssertNumberOfCalls(t, "Generate", 2)
}

func TestWarmUp_EmptyResponseIsFailure(t *testing.T) {
	b := &mockBackend{}
	b.On("Generate", mock.Anything, "llama3", mock.Anything, mock.Anything).Return("  ", nil)

	assert.False(t, newGate(b, 2).WarmUp(context.Background(), "llama3"))
	b.AssertNumberOfCalls(t, "Generate", 3)
}

func TestWarmUp_NeverCallsChat(t *testing.T) {
	b := &mockBackend{}
	b.On("Generate", mock.Anything, "llama3", mock.Anything, mock.Anything).Return("ok", nil)

	assert.True(t, newGate(b, 0).WarmUp(context.Background(), "llama3"))
	b.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
