package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"epiworld.sim/internal/sim/model"
)

// JSONLZstdWriter appends one JSON document per line to a zstd-compressed file. The file
// is created on the first write.
type JSONLZstdWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) *JSONLZstdWriter {
	return &JSONLZstdWriter{path: path}
}

func (w *JSONLZstdWriter) Path() string { return w.path }

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil {
		if err := w.openLocked(); err != nil {
			return err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

func (w *JSONLZstdWriter) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var errs []error
	if w.w != nil {
		errs = append(errs, w.w.Flush())
	}
	if w.enc != nil {
		errs = append(errs, w.enc.Close())
		w.enc = nil
	}
	if w.f != nil {
		errs = append(errs, w.f.Close())
		w.f = nil
	}
	w.w = nil
	return errors.Join(errs...)
}

// DayLogger writes one JSONL entry per simulated day of a replicate (compressed).
type DayLogger struct{ w *JSONLZstdWriter }

func NewDayLogger(path string) *DayLogger {
	return &DayLogger{w: NewJSONLZstdWriter(path)}
}

func (l *DayLogger) WriteDay(e model.DayLogEntry) error { return l.w.Write(e) }
func (l *DayLogger) Close() error                       { return l.w.Close() }

// ReplicateEntry is the batch log record written when a replicate finishes.
type ReplicateEntry struct {
	Batch     string  `json:"batch"`
	Replicate int     `json:"replicate"`
	Seed      int64   `json:"seed"`
	Days      int     `json:"days"`
	Digest    string  `json:"digest"`
	Totals    []int   `json:"totals"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

// BatchLogger writes one JSONL entry per finished replicate (compressed).
type BatchLogger struct{ w *JSONLZstdWriter }

func NewBatchLogger(dir string) *BatchLogger {
	return &BatchLogger{w: NewJSONLZstdWriter(filepath.Join(dir, "replicates.jsonl.zst"))}
}

func (l *BatchLogger) WriteReplicate(e ReplicateEntry) error { return l.w.Write(e) }
func (l *BatchLogger) Close() error                          { return l.w.Close() }

// ReadDayLog decodes a day log written by DayLogger.
func ReadDayLog(path string) ([]model.DayLogEntry, error) {
	var out []model.DayLogEntry
	err := readJSONL(path, func(dec *json.Decoder) error {
		var e model.DayLogEntry
		if err := dec.Decode(&e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// ReadBatchLog decodes a batch log written by BatchLogger.
func ReadBatchLog(path string) ([]ReplicateEntry, error) {
	var out []ReplicateEntry
	err := readJSONL(path, func(dec *json.Decoder) error {
		var e ReplicateEntry
		if err := dec.Decode(&e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

func readJSONL(path string, next func(dec *json.Decoder) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()
	dec := json.NewDecoder(bufio.NewReader(zr))
	for line := 1; ; line++ {
		if err := next(dec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%s: entry %d: %w", path, line, err)
		}
	}
}
