package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const traceFile = "trace.jsonl"

// TraceEntry is one improvement of a run's shared best register, stored as
// one JSON line.
type TraceEntry struct {
	Seq       int       `json:"seq"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
	Params    []float64 `json:"params,omitempty"`
}

// OrderError reports an entry that does not continue its trace: sequence
// numbers count up from 1 and every score beats the previous one.
type OrderError struct {
	Seq       int
	Score     float64
	LastSeq   int
	LastScore float64
}

func (e *OrderError) Error() string {
	if e.Seq != e.LastSeq+1 {
		return fmt.Sprintf("trace entry %d does not follow entry %d", e.Seq, e.LastSeq)
	}
	return fmt.Sprintf("trace entry %d: score %g does not improve on %g", e.Seq, e.Score, e.LastScore)
}

// traceOrder tracks the tail of a trace being written.
type traceOrder struct {
	seq   int
	score float64
}

func newTraceOrder() traceOrder {
	return traceOrder{score: math.Inf(1)}
}

// advance accepts entry as the next improvement or returns an *OrderError.
func (o *traceOrder) advance(entry TraceEntry) error {
	if entry.Seq != o.seq+1 || math.IsNaN(entry.Score) || !(entry.Score < o.score) {
		return &OrderError{Seq: entry.Seq, Score: entry.Score, LastSeq: o.seq, LastScore: o.score}
	}
	o.seq, o.score = entry.Seq, entry.Score
	return nil
}

// traceWriter buffers improvements of one run into its trace.jsonl.
type traceWriter struct {
	mu    sync.Mutex
	file  *os.File
	buf   *bufio.Writer
	enc   *json.Encoder
	order traceOrder
}

// createTrace truncates runDir/trace.jsonl and returns a sink for it.
func createTrace(runDir string) (*traceWriter, error) {
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	file, err := os.Create(filepath.Join(runDir, traceFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	buf := bufio.NewWriterSize(file, 64*1024)
	return &traceWriter{file: file, buf: buf, enc: json.NewEncoder(buf), order: newTraceOrder()}, nil
}

// Write buffers entry. Entries out of order are rejected with *OrderError
// and leave the trace unchanged.
func (tw *traceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.file == nil {
		return errors.New("trace is closed")
	}
	last := tw.order
	if err := tw.order.advance(entry); err != nil {
		return err
	}
	if err := tw.enc.Encode(entry); err != nil {
		tw.order = last
		return fmt.Errorf("failed to write trace entry %d: %w", entry.Seq, err)
	}
	return nil
}

// Close flushes buffered entries and closes the file. Closing twice is a
// no-op.
func (tw *traceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.file == nil {
		return nil
	}
	flushErr := tw.buf.Flush()
	closeErr := tw.file.Close()
	tw.file = nil
	if flushErr != nil {
		return fmt.Errorf("failed to flush trace: %w", flushErr)
	}
	return closeErr
}

// readTrace decodes a JSONL trace. A final line without a newline is a write
// cut short by a crash and is dropped; any other malformed line is an error.
func readTrace(r io.Reader) ([]TraceEntry, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var entries []TraceEntry
	for line := 1; ; line++ {
		data, err := br.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read trace line %d: %w", line, err)
		}
		complete := err == nil

		if data = bytes.TrimSpace(data); len(data) > 0 {
			var entry TraceEntry
			if jerr := json.Unmarshal(data, &entry); jerr != nil {
				if !complete {
					return entries, nil
				}
				return nil, fmt.Errorf("malformed trace line %d: %w", line, jerr)
			}
			entries = append(entries, entry)
		}

		if !complete {
			return entries, nil
		}
	}
}

// loadTraceFile reads runDir/trace.jsonl.
func loadTraceFile(runDir, runID string) ([]TraceEntry, error) {
	file, err := os.Open(filepath.Join(runDir, traceFile))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	defer file.Close()

	return readTrace(file)
}
