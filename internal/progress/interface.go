package progress

import "io"

// TransferUI tracks byte-level progress of concurrent file downloads.
type TransferUI interface {
	// AddFileBar creates a progress handle for one file
	AddFileBar(index int, fileID, remoteName, localPath string, size int64) FileBarHandle

	// Wait blocks until all progress bars complete
	Wait()

	// Writer returns an io.Writer that safely outputs above the progress bars
	Writer() io.Writer

	// IsTerminal returns true if progress bars are rendered
	IsTerminal() bool
}

// FileBarHandle represents a handle to a single file's progress bar
type FileBarHandle interface {
	// Add records n more bytes written
	Add(n int)

	// SetCurrent sets the byte position, used when a stream restarts or resumes
	SetCurrent(n int64)

	// SetRetry updates the retry counter and visually marks the bar
	SetRetry(count int)

	// Complete marks the file as finished and prints a summary
	Complete(err error)
}

// NoOpUI discards all progress.
type NoOpUI struct{}

// AddFileBar returns a handle that does nothing.
func (NoOpUI) AddFileBar(int, string, string, string, int64) FileBarHandle { return noOpBar{} }

// Wait does nothing.
func (NoOpUI) Wait() {}

// Writer returns io.Discard.
func (NoOpUI) Writer() io.Writer { return io.Discard }

// IsTerminal returns false.
func (NoOpUI) IsTerminal() bool { return false }

type noOpBar struct{}

func (noOpBar) Add(int)          {}
func (noOpBar) SetCurrent(int64) {}
func (noOpBar) SetRetry(int)     {}
func (noOpBar) Complete(error)   {}
