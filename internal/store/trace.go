package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/cwbudde/piyavskiy/internal/opt"
)

const (
	traceFile           = "trace.jsonl"
	compressedTraceFile = "trace.jsonl.zst"
)

// TraceEntry represents a single iteration in the run trace.
// Each entry is serialized as a JSON line in trace.jsonl.
type TraceEntry struct {
	opt.IterationRecord

	// BestX and BestValue are the incumbent after this iteration
	BestX     float64 `json:"bestX"`
	BestValue float64 `json:"bestValue"`

	// Timestamp records when this trace entry was created
	Timestamp time.Time `json:"timestamp"`
}

// NewTraceEntry builds the trace entry of an iteration snapshot.
func NewTraceEntry(snap opt.Snapshot) TraceEntry {
	return TraceEntry{
		IterationRecord: snap.Record,
		BestX:           snap.Best.X,
		BestValue:       snap.Best.Y,
		Timestamp:       time.Now(),
	}
}

// TracePath returns the trace file path of a run.
func TracePath(baseDir, runID string, compressed bool) string {
	if compressed {
		return filepath.Join(RunDir(baseDir, runID), compressedTraceFile)
	}
	return filepath.Join(RunDir(baseDir, runID), traceFile)
}

// FindTrace returns the path of the run's existing trace file and whether it
// is compressed. Returns a *NotFoundError when the run has no trace.
func FindTrace(baseDir, runID string) (string, bool, error) {
	for _, compressed := range []bool{true, false} {
		path := TracePath(baseDir, runID, compressed)
		_, err := os.Stat(path)
		if err == nil {
			return path, compressed, nil
		}
		if !os.IsNotExist(err) {
			return "", false, fmt.Errorf("failed to stat trace file: %w", err)
		}
	}
	return "", false, &NotFoundError{RunID: runID}
}

// TraceWriter writes trace entries to a JSONL file, optionally zstd-compressed.
// It uses buffered I/O for performance and is safe for concurrent use.
//
// A compressed trace opened for append gets a new zstd frame; readers decode
// concatenated frames as one stream.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	enc    *zstd.Encoder // nil for plain JSONL
	writer *bufio.Writer
	path   string
}

// NewTraceWriter creates a new trace writer for the given run.
// The trace file is created at <baseDir>/runs/<runID>/trace.jsonl[.zst].
// If append is true, new entries are appended to existing file.
func NewTraceWriter(baseDir, runID string, append, compress bool) (*TraceWriter, error) {
	if err := checkRunID(runID); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(RunDir(baseDir, runID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	path := TracePath(baseDir, runID, compress)

	var file *os.File
	var err error
	if append {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	tw := &TraceWriter{file: file, path: path}
	var sink io.Writer = file
	if compress {
		enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create trace compressor: %w", err)
		}
		tw.enc = enc
		sink = enc
	}
	tw.writer = bufio.NewWriterSize(sink, 64*1024) // 64KB buffer

	return tw, nil
}

// Write appends a trace entry to the file.
// The entry is buffered and will be written on Flush() or Close().
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}

	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

// Observer returns an iteration observer that writes one entry per iteration.
func (tw *TraceWriter) Observer() opt.IterationFunc {
	return func(snap opt.Snapshot) error {
		return tw.Write(NewTraceEntry(snap))
	}
}

// Flush writes any buffered data to the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if tw.enc != nil {
		if err := tw.enc.Flush(); err != nil {
			return fmt.Errorf("failed to flush trace compressor: %w", err)
		}
	}

	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}

	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close() // Try to close anyway
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if tw.enc != nil {
		if err := tw.enc.Close(); err != nil {
			tw.file.Close()
			return fmt.Errorf("failed to finish trace frame: %w", err)
		}
	}

	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}

	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads trace entries from a JSONL file.
type TraceReader struct {
	file    *os.File
	dec     *zstd.Decoder
	scanner *bufio.Scanner
}

// NewTraceReader creates a new trace reader for the given run, picking the
// compressed or plain trace, whichever exists.
func NewTraceReader(baseDir, runID string) (*TraceReader, error) {
	path, compressed, err := FindTrace(baseDir, runID)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	tr := &TraceReader{file: file}
	var src io.Reader = file
	if compressed {
		dec, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create trace decompressor: %w", err)
		}
		tr.dec = dec
		src = dec
	}

	tr.scanner = bufio.NewScanner(src)
	tr.scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 64KB initial, 1MB max

	return tr, nil
}

// Read reads the next trace entry from the file.
// Returns io.EOF when no more entries are available.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}

	return &entry, nil
}

// ReadAll reads all trace entries from the file.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry

	for {
		entry, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	return entries, nil
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if tr.dec != nil {
		tr.dec.Close()
	}
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// DeleteTrace removes the trace files for the given run.
// Returns nil if no trace exists.
func DeleteTrace(baseDir, runID string) error {
	for _, compressed := range []bool{true, false} {
		err := os.Remove(TracePath(baseDir, runID, compressed))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete trace file: %w", err)
		}
	}
	return nil
}
