package picklist

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/picksync/backend/internal/application/allocation"
)

// filePrefix and fileExt name the per-run audit files,
// e.g. picklist_20240301T093000.csv
const (
	filePrefix = "picklist_"
	fileExt    = ".csv"
)

// timestampLayout is the run timestamp embedded in the file name
const timestampLayout = "20060102T150405"

// header is the column row written at the top of every picklist file
var header = []string{"code", "ordernum", "location"}

// Writer appends allocation audit entries to a per-run CSV picklist.
// The file is created lazily on the first entry so that runs which
// allocate nothing leave no empty file behind. Retention keeps the
// newest maxFiles picklists and removes the rest.
type Writer struct {
	dir      string
	maxFiles int
	logger   *zap.Logger
	now      func() time.Time

	file *os.File
	csv  *csv.Writer
}

// Option configures a Writer
type Option func(*Writer)

// WithClock overrides the clock used to stamp file names
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// NewWriter creates a picklist writer rooted at dir
func NewWriter(dir string, maxFiles int, logger *zap.Logger, opts ...Option) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("picklist: directory is required")
	}
	if maxFiles < 1 {
		return nil, fmt.Errorf("picklist: retention must keep at least one file")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Writer{
		dir:      dir,
		maxFiles: maxFiles,
		logger:   logger.Named("picklist"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Append writes one allocation event to the current run's picklist
func (w *Writer) Append(entry allocation.AuditEntry) error {
	if w.csv == nil {
		if err := w.open(); err != nil {
			return err
		}
	}

	if err := w.csv.Write([]string{entry.SKU, entry.OrderNum, entry.SourceTag}); err != nil {
		return fmt.Errorf("picklist: failed to write entry: %w", err)
	}
	return nil
}

// open creates the run file, writes the header row and applies retention
func (w *Writer) open() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("picklist: failed to create directory: %w", err)
	}

	name := filePrefix + w.now().Format(timestampLayout) + fileExt
	path := filepath.Join(w.dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("picklist: failed to create %s: %w", name, err)
	}

	w.file = file
	w.csv = csv.NewWriter(file)

	if err := w.csv.Write(header); err != nil {
		return fmt.Errorf("picklist: failed to write header: %w", err)
	}

	w.applyRetention()
	return nil
}

// Close flushes and closes the current run's file, if one was opened
func (w *Writer) Close() error {
	if w.csv == nil {
		return nil
	}

	w.csv.Flush()
	flushErr := w.csv.Error()
	closeErr := w.file.Close()
	w.csv = nil
	w.file = nil

	if flushErr != nil {
		return fmt.Errorf("picklist: failed to flush: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("picklist: failed to close: %w", closeErr)
	}
	return nil
}

// applyRetention removes the oldest picklist files beyond the retention
// window. Removal failures are logged and skipped; retention must never
// fail a run that allocated stock.
func (w *Writer) applyRetention() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("retention scan failed", zap.String("dir", w.dir), zap.Error(err))
		return
	}

	var picklists []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExt) {
			picklists = append(picklists, name)
		}
	}

	if len(picklists) <= w.maxFiles {
		return
	}

	// The timestamp in the name sorts chronologically
	sort.Strings(picklists)
	for _, name := range picklists[:len(picklists)-w.maxFiles] {
		if err := os.Remove(filepath.Join(w.dir, name)); err != nil {
			w.logger.Warn("failed to remove expired picklist",
				zap.String("file", name),
				zap.Error(err),
			)
		}
	}
}
