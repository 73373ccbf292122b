package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// DownloadUI manages multiple concurrent download progress bars using mpb
type DownloadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	bars       sync.Map // fileID -> *DownloadFileBar
	isTerminal bool
	totalFiles atomic.Int32
	completed  int32
}

// DownloadFileBar represents a single file download progress bar
type DownloadFileBar struct {
	bar        *mpb.Bar
	ui         *DownloadUI
	index      int
	fileID     string
	remoteName string
	localPath  string
	size       int64
	retries    int32
	written    int64
	startTime  time.Time
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewDownloadUI creates a new download UI on stderr for the given number of files
func NewDownloadUI(totalFiles int) *DownloadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	if isTerminal {
		enableANSIOnWindows(os.Stderr)
	}
	return newDownloadUI(os.Stderr, isTerminal, totalFiles)
}

func newDownloadUI(out io.Writer, isTerminal bool, totalFiles int) *DownloadUI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(100),
		)
	} else {
		// Non-TTY: bars are not rendered, plain lines are printed instead
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	u := &DownloadUI{
		progress:   p,
		out:        out,
		isTerminal: isTerminal,
	}
	u.SetTotal(totalFiles)
	return u
}

// SetTotal updates the number of files shown next to each index. Zero means
// the total is not known yet.
func (u *DownloadUI) SetTotal(n int) {
	u.totalFiles.Store(int32(n))
}

// position formats a file index as i/n, or i while the total is unknown.
func (u *DownloadUI) position(index int) string {
	if total := u.totalFiles.Load(); total > 0 {
		return fmt.Sprintf("%d/%d", index, total)
	}
	return fmt.Sprintf("%d", index)
}

// AddFileBar creates a new progress bar for a file download
func (u *DownloadUI) AddFileBar(index int, fileID, remoteName, localPath string, size int64) FileBarHandle {
	destPath := truncatePath(localPath, 2)

	fb := &DownloadFileBar{
		ui:         u,
		index:      index,
		fileID:     fileID,
		remoteName: remoteName,
		localPath:  localPath,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	if u.isTerminal {
		fb.bar = u.progress.New(size,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Any(func(s decor.Statistics) string {
					retries := atomic.LoadInt32(&fb.retries)
					base := fmt.Sprintf("[%s] %s (%s)",
						u.position(fb.index),
						destPath,
						humanize.IBytes(uint64(size)))
					if retries > 0 {
						return fmt.Sprintf("%s (retry %d)", base, retries)
					}
					return base
				}, decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Any(func(s decor.Statistics) string {
					if s.Total == 0 {
						return fmt.Sprintf("%6.2f%%", 0.0)
					}
					return fmt.Sprintf("%6.2f%%", float64(s.Current)/float64(s.Total)*100)
				}, decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60, decor.WCSyncSpace),
				decor.Name("  "),
				decor.Name("ETA ", decor.WCSyncWidth),
				decor.EwmaETA(decor.ET_STYLE_GO, 60),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "Downloading [%s]: %s (%s)\n",
			u.position(index),
			destPath,
			humanize.IBytes(uint64(size)))
	}

	u.bars.Store(fileID, fb)
	return fb
}

// Add records n more bytes. EWMA timing keeps speed and ETA accurate.
func (f *DownloadFileBar) Add(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.written += int64(n)
	if f.bar == nil {
		return
	}
	now := time.Now()
	f.bar.EwmaIncrBy(n, now.Sub(f.lastUpdate))
	f.lastUpdate = now
}

// SetCurrent moves the bar to an absolute byte position
func (f *DownloadFileBar) SetCurrent(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.written = n
	if f.bar != nil {
		f.bar.SetCurrent(n)
	}
}

// SetRetry updates the retry counter and visually marks the bar
func (f *DownloadFileBar) SetRetry(count int) {
	atomic.StoreInt32(&f.retries, int32(count))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bar != nil && count > 0 {
		f.bar.SetRefill(f.written)
	}
}

// Complete marks the download as finished and prints a summary
func (f *DownloadFileBar) Complete(err error) {
	elapsed := time.Since(f.startTime)

	var msg string
	if err == nil {
		if f.bar != nil {
			f.bar.SetCurrent(f.size)
			f.bar.SetTotal(f.size, true)
		}
		rate := "-"
		if secs := elapsed.Seconds(); secs > 0 {
			rate = humanize.IBytes(uint64(float64(f.size)/secs)) + "/s"
		}
		msg = fmt.Sprintf("✓ %s ← %s (%s, %s, %s)\n",
			truncatePath(f.localPath, 2),
			f.remoteName,
			humanize.IBytes(uint64(f.size)),
			elapsed.Round(time.Second),
			rate)
	} else {
		if f.bar != nil {
			f.bar.Abort(false)
		}
		msg = fmt.Sprintf("✗ %s ← %s: %v (after %d retries)\n",
			truncatePath(f.localPath, 2),
			f.remoteName,
			err,
			atomic.LoadInt32(&f.retries))
	}

	// Write through mpb's writer so the bars are not corrupted
	fmt.Fprint(f.ui.Writer(), msg)
	atomic.AddInt32(&f.ui.completed, 1)
}

// Wait blocks until all progress bars complete
func (u *DownloadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns an io.Writer that safely prints above the progress bars
func (u *DownloadUI) Writer() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return u.out
}

// GetCompleted returns the number of completed downloads
func (u *DownloadUI) GetCompleted() int {
	return int(atomic.LoadInt32(&u.completed))
}

// IsTerminal returns whether output is to a terminal
func (u *DownloadUI) IsTerminal() bool {
	return u.isTerminal
}

// truncatePath shows only the last N components of a path
// Example: truncatePath("/a/b/c/d/file.txt", 3) → "…/c/d/file.txt"
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}
