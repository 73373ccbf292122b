package ledger

import (
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/quarkpan/quarkpan/internal/models"
)

// ShareLog is the output file of a share run.
type ShareLog struct {
	w *lineWriter
}

// CreateShareLog starts a fresh share output file. An existing file is first
// moved to backupPath, replacing any older backup. An empty backupPath
// appends to the existing file instead.
func CreateShareLog(fs afero.Fs, path, backupPath string) (*ShareLog, error) {
	if backupPath == "" {
		w, err := openLineWriter(fs, path, os.O_APPEND)
		if err != nil {
			return nil, err
		}
		return &ShareLog{w: w}, nil
	}

	if _, err := fs.Stat(path); err == nil {
		if err := fs.Remove(backupPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove old backup: %w", err)
		}
		if err := fs.Rename(path, backupPath); err != nil {
			return nil, fmt.Errorf("failed to back up %s: %w", path, err)
		}
	}

	w, err := openLineWriter(fs, path, os.O_TRUNC)
	if err != nil {
		return nil, err
	}
	return &ShareLog{w: w}, nil
}

// Append writes one share result. Safe for concurrent use.
func (s *ShareLog) Append(r models.ShareRecord) error {
	return s.w.writeLine(FormatShareRecord(r))
}

// Count returns the number of results written.
func (s *ShareLog) Count() int {
	return s.w.lines()
}

// Path returns the output file location.
func (s *ShareLog) Path() string {
	return s.w.path
}

// Close flushes and closes the file.
func (s *ShareLog) Close() error {
	return s.w.close()
}
