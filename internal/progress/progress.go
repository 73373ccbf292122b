// Package progress renders terminal progress for scans, share runs and downloads.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Reporter tracks a counted operation such as a share run.
type Reporter interface {
	Start(total int64, description string)
	Increment()
	Finish()
	SetDescription(desc string)
}

// CLIProgress implements Reporter with a progress bar on stderr.
type CLIProgress struct {
	bar *progressbar.ProgressBar
	out io.Writer
}

// NewCLIProgress creates a reporter on stderr. Nothing is drawn when stderr
// is not a terminal.
func NewCLIProgress() *CLIProgress {
	return &CLIProgress{out: stderrOrDiscard()}
}

// Start initializes the progress bar with total count and description.
func (p *CLIProgress) Start(total int64, description string) {
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(p.out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Increment advances the bar by one.
func (p *CLIProgress) Increment() {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

// Finish completes the progress bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// SetDescription updates the progress bar description.
func (p *CLIProgress) SetDescription(desc string) {
	if p.bar != nil {
		p.bar.Describe(desc)
	}
}

// NoOpProgress is a reporter that does nothing (for quiet runs and tests).
type NoOpProgress struct{}

// NewNoOpProgress creates a new no-op progress reporter.
func NewNoOpProgress() *NoOpProgress {
	return &NoOpProgress{}
}

// Start does nothing.
func (p *NoOpProgress) Start(total int64, description string) {}

// Increment does nothing.
func (p *NoOpProgress) Increment() {}

// Finish does nothing.
func (p *NoOpProgress) Finish() {}

// SetDescription does nothing.
func (p *NoOpProgress) SetDescription(desc string) {}

// ScanProgress is a spinner showing how much of a tree has been listed.
type ScanProgress struct {
	bar   *progressbar.ProgressBar
	label string
}

// NewScanProgress creates a spinner on stderr.
func NewScanProgress(label string) *ScanProgress {
	return newScanProgress(stderrOrDiscard(), label)
}

func newScanProgress(out io.Writer, label string) *ScanProgress {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(100),
		progressbar.OptionClearOnFinish(),
	)
	return &ScanProgress{bar: bar, label: label}
}

// Update shows the current folder and file counts.
func (s *ScanProgress) Update(folders, files int) {
	s.bar.Describe(fmt.Sprintf("%s: %d folders, %d files", s.label, folders, files))
	_ = s.bar.Add(1)
}

// Finish clears the spinner.
func (s *ScanProgress) Finish() {
	_ = s.bar.Finish()
}

// ProgressReader wraps an io.Reader and reports every read to a file bar.
type ProgressReader struct {
	reader io.Reader
	bar    FileBarHandle
}

// NewProgressReader creates a new progress-reporting reader.
func NewProgressReader(reader io.Reader, bar FileBarHandle) *ProgressReader {
	return &ProgressReader{reader: reader, bar: bar}
}

// Read implements io.Reader interface with progress reporting.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.bar.Add(n)
	}
	return n, err
}

func stderrOrDiscard() io.Writer {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		enableANSIOnWindows(os.Stderr)
		return os.Stderr
	}
	return io.Discard
}
