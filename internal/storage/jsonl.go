package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// StdoutPath selects standard output instead of a file.
const StdoutPath = "-"

// JSONLWriter writes one JSON document per line. It is safe for concurrent use.
type JSONLWriter struct {
	mu     sync.Mutex
	closer io.Closer
	writer *bufio.Writer
}

// NewJSONLWriter opens path for writing. "-" or an empty path writes to stdout.
func NewJSONLWriter(path string, appendMode bool) (*JSONLWriter, error) {
	if path == "" || path == StdoutPath {
		return NewJSONLWriterTo(os.Stdout, nil), nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return NewJSONLWriterTo(file, file), nil
}

// NewJSONLWriterTo wraps w. closer, when not nil, is closed by Close.
func NewJSONLWriterTo(w io.Writer, closer io.Closer) *JSONLWriter {
	return &JSONLWriter{closer: closer, writer: bufio.NewWriter(w)}
}

// Write appends value as a single JSON line.
func (w *JSONLWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the underlying file.
func (w *JSONLWriter) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		if w.closer != nil {
			w.closer.Close()
		}
		return fmt.Errorf("flush output: %w", err)
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
