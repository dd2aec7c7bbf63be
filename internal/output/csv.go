/*
PURPOSE:
  Writes evaluation records to a CSV file.
  Ensures data integrity by flushing and syncing writes immediately.

REQUIREMENTS:
  User-specified:
  - Output to CSV, one row per (model, question).
  - Keep file handle open for flushing (crash loses at most the in-flight row).
  - Hindi (Devanagari) text must survive spreadsheet tools.

  Implementation-discovered:
  - A UTF-8 BOM makes Excel pick the right encoding.
  - Header is written once, at creation, before any worker starts.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (sequencer is the single writer)
  - Consumes: internal/model.Record

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() and Sync() after every write (critical for crash resilience).
  - Use Mutex; Append is safe for concurrent callers.

USAGE:
  w, err := output.NewCSVWriter("results.csv")
  w.Append(record)
  w.Close()

SELF-HEALING INSTRUCTIONS:
  - If CSV format changes, update CSVHeader and csvRow together.

RELATED FILES:
  - internal/model/types.go

MAINTENANCE:
  - Update csvRow() mapping when Record struct changes.
*/

package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/daryltucker/polyglot-runner/internal/model"
)

// TimestampLayout is the completion timestamp format used in the CSV.
const TimestampLayout = "2006-01-02 15:04:05"

// utf8BOM lets spreadsheet tools detect UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVHeader is the fixed column schema.
var CSVHeader = []string{
	"ID", "Category", "Question (EN)", "Question (HI)", "Model",
	"Response (EN)", "Response (HI)", "Tokens EN", "Tokens HI",
	"Timestamp",
}

// CSVWriter handles writing records to a CSV file.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
	rows   int
}

// NewCSVWriter creates a new CSVWriter.
// It overwrites the file if it exists and writes the header immediately.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	if _, err := f.Write(utf8BOM); err != nil {
		f.Close()
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}

	return &CSVWriter{
		file:   f,
		writer: w,
	}, nil
}

// Path returns the file being written.
func (cw *CSVWriter) Path() string {
	return cw.file.Name()
}

// Rows returns the number of data rows written so far.
func (cw *CSVWriter) Rows() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.rows
}

// Append writes a single record to the CSV file and syncs it to disk.
// It is thread-safe.
func (cw *CSVWriter) Append(r model.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := cw.writer.Write(csvRow(r)); err != nil {
		return fmt.Errorf("csv write %s/%s: %w", r.Model, r.ID, err)
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("csv flush %s/%s: %w", r.Model, r.ID, err)
	}
	if err := cw.file.Sync(); err != nil {
		return fmt.Errorf("csv sync %s/%s: %w", r.Model, r.ID, err)
	}
	cw.rows++
	return nil
}

// Close closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	return cw.file.Close()
}

func csvRow(r model.Record) []string {
	return []string{
		r.ID,
		r.Category,
		r.QuestionEN,
		r.QuestionHI,
		r.Model,
		r.ResponseEN,
		r.ResponseHI,
		strconv.Itoa(r.TokensEN),
		strconv.Itoa(r.TokensHI),
		r.Timestamp.Format(TimestampLayout),
	}
}
