package engine

import "errors"

// Error definitions for the engine package.
var (
	// ErrBackend wraps every failure of a single backend call.
	ErrBackend = errors.New("backend call failed")
	// ErrBackendUnavailable means the model listing could not be retrieved.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrNoModels means none of the targets resolved to an available model.
	ErrNoModels = errors.New("no target models available on backend")
	// ErrWarmupFailed means a model never produced a warm-up response.
	ErrWarmupFailed = errors.New("model warm-up failed")
	// ErrSink means a record could not be persisted.
	ErrSink = errors.New("result sink write failed")
)
