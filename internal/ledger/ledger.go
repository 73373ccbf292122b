package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/quarkpan/quarkpan/internal/models"
)

// lineWriter appends lines to a file, one write per line, serialized by a mutex.
type lineWriter struct {
	f     afero.File
	path  string
	count int
	mu    sync.Mutex
}

func openLineWriter(fs afero.Fs, path string, flag int) (*lineWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	f, err := fs.OpenFile(path, flag|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &lineWriter{f: f, path: path}, nil
}

func (w *lineWriter) writeLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return fmt.Errorf("%s is closed", w.path)
	}
	if _, err := w.f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append to %s: %w", w.path, err)
	}
	w.count++
	return w.f.Sync()
}

func (w *lineWriter) lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *lineWriter) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// Ledger is an append-only file of retry records.
type Ledger struct {
	w *lineWriter
}

// Open opens a ledger for appending. With truncate set, existing records are discarded.
func Open(fs afero.Fs, path string, truncate bool) (*Ledger, error) {
	flag := os.O_APPEND
	if truncate {
		flag = os.O_TRUNC
	}
	w, err := openLineWriter(fs, path, flag)
	if err != nil {
		return nil, err
	}
	return &Ledger{w: w}, nil
}

// Append writes one record. Safe for concurrent use.
func (l *Ledger) Append(r models.RetryRecord) error {
	return l.w.writeLine(FormatRecord(r))
}

// Count returns the number of records appended through this handle.
func (l *Ledger) Count() int {
	return l.w.lines()
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.w.path
}

// Close flushes and closes the file.
func (l *Ledger) Close() error {
	return l.w.close()
}

// Read returns every record in a ledger file. A missing file yields no records.
// Blank lines are skipped; a malformed line is an error naming its line number.
func Read(fs afero.Fs, path string) ([]models.RetryRecord, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	var records []models.RetryRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		r, err := ParseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNo, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return records, nil
}

// Rewrite replaces a ledger file with exactly the given records.
func Rewrite(fs afero.Fs, path string, records []models.RetryRecord) error {
	tmp := path + ".tmp"
	l, err := Open(fs, tmp, true)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := l.Append(r); err != nil {
			l.Close()
			fs.Remove(tmp)
			return err
		}
	}
	if err := l.Close(); err != nil {
		fs.Remove(tmp)
		return err
	}
	if err := fs.Rename(tmp, path); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}
