/*
PURPOSE:
  Writes evaluation records to a JSON Lines file (NDJSON).
  Carries the fields the CSV leaves out (durations, run id).

REQUIREMENTS:
  User-specified:
  - JSON output for easier parsing.

  Implementation-discovered:
  - JSON Lines is better for streaming/logging than a single large array (append-friendly).

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (through output.MultiSink)
  - Consumes: internal/model.Record

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/json.NewEncoder.
  - Thread-safe; sync after every line.

USAGE:
  w, err := output.NewJSONWriter("results.jsonl")
  w.Append(record)
  w.Close()

RELATED FILES:
  - internal/model/types.go
*/

package output

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/daryltucker/polyglot-runner/internal/model"
)

// JSONWriter handles writing records to a JSON Lines file.
type JSONWriter struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter creates a new JSONWriter.
func NewJSONWriter(path string) (*JSONWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	enc := json.NewEncoder(f)
	// model answers often contain <, > and &; keep them literal
	enc.SetEscapeHTML(false)

	return &JSONWriter{
		file:    f,
		encoder: enc,
	}, nil
}

// Path returns the file being written.
func (jw *JSONWriter) Path() string {
	return jw.file.Name()
}

// Append writes a single record as a JSON line.
func (jw *JSONWriter) Append(r model.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.encoder.Encode(r); err != nil {
		return fmt.Errorf("json write %s/%s: %w", r.Model, r.ID, err)
	}
	if err := jw.file.Sync(); err != nil {
		return fmt.Errorf("json sync %s/%s: %w", r.Model, r.ID, err)
	}
	return nil
}

// Close closes the underlying file.
func (jw *JSONWriter) Close() error {
	return jw.file.Close()
}
