package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/daryltucker/polyglot-runner/internal/model"
)

// Sink persists records. Append must be durable when it returns.
type Sink interface {
	Append(model.Record) error
	Close() error
}

// MultiSink fans each record out to every sink in order, stopping at the first error.
type MultiSink []Sink

// Append implements Sink.
func (ms MultiSink) Append(r model.Record) error {
	for _, s := range ms {
		if err := s.Append(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins the errors.
func (ms MultiSink) Close() error {
	var errs []error
	for _, s := range ms {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// RunFiles are the artifacts of one run.
type RunFiles struct {
	CSV   string
	JSONL string
}

// Paths lists the files in upload order.
func (f RunFiles) Paths() []string {
	return []string{f.CSV, f.JSONL}
}

// Remove deletes the run's result files. Missing files are not an error.
func (f RunFiles) Remove() error {
	var errs []error
	for _, p := range f.Paths() {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunFileStamp is the timestamp layout embedded in result file names.
const RunFileStamp = "20060102_150405"

// OpenRunSinks creates dir if needed and opens the CSV and NDJSON sinks for a run
// started at startedAt: <dir>/<prefix>_results_<stamp>.csv and .jsonl.
func OpenRunSinks(dir, prefix string, startedAt time.Time) (MultiSink, RunFiles, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, RunFiles{}, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	base := filepath.Join(dir, fmt.Sprintf("%s_results_%s", prefix, startedAt.Format(RunFileStamp)))
	files := RunFiles{CSV: base + ".csv", JSONL: base + ".jsonl"}

	csvWriter, err := NewCSVWriter(files.CSV)
	if err != nil {
		return nil, RunFiles{}, fmt.Errorf("failed to init CSV writer at %s: %w", files.CSV, err)
	}

	jsonWriter, err := NewJSONWriter(files.JSONL)
	if err != nil {
		csvWriter.Close()
		return nil, RunFiles{}, fmt.Errorf("failed to init JSON writer at %s: %w", files.JSONL, err)
	}

	return MultiSink{csvWriter, jsonWriter}, files, nil
}
