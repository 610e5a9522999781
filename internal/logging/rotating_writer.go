package logging

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotatingFileWriter writes to a log file and starts a fresh one once the
// current file would exceed maxSize. A full file is renamed to
// <name>-<timestamp><ext>; timestamps sort lexically, so pruning keeps the
// newest maxBackups of them.
type RotatingFileWriter struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	maxSize    int64
	maxBackups int
	written    int64
}

// NewRotatingFileWriter opens (or creates) the log file at path, resuming
// the size accounting of an existing file.
func NewRotatingFileWriter(path string, maxSize int64, maxBackups int) (*RotatingFileWriter, error) {
	w := &RotatingFileWriter{
		path:       path,
		maxSize:    maxSize,
		maxBackups: maxBackups,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write implements io.Writer. A record is never split across files.
func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written > 0 && w.written+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

// Close closes the current log file.
func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingFileWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	w.file = f
	w.written = info.Size()
	return nil
}

func (w *RotatingFileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(w.path, w.backupName(time.Now())); err != nil {
		return err
	}
	w.pruneBackups()
	return w.open()
}

func (w *RotatingFileWriter) backupName(ts time.Time) string {
	stem, ext := w.splitPath()
	return stem + "-" + ts.Format("20060102-150405.000000000") + ext
}

// pruneBackups removes the oldest backups beyond maxBackups. Best effort: a
// leftover backup is never worth failing a log write over.
func (w *RotatingFileWriter) pruneBackups() {
	if w.maxBackups <= 0 {
		return
	}

	stem, ext := w.splitPath()
	backups, err := filepath.Glob(stem + "-*" + ext)
	if err != nil || len(backups) <= w.maxBackups {
		return
	}

	sort.Strings(backups)
	for _, old := range backups[:len(backups)-w.maxBackups] {
		_ = os.Remove(old)
	}
}

func (w *RotatingFileWriter) splitPath() (stem, ext string) {
	ext = filepath.Ext(w.path)
	return strings.TrimSuffix(w.path, ext), ext
}

var _ io.WriteCloser = (*RotatingFileWriter)(nil)
