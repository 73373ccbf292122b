package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v5"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/quarkpan/quarkpan/internal/api"
	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/diskspace"
	"github.com/quarkpan/quarkpan/internal/http"
	"github.com/quarkpan/quarkpan/internal/listing"
	"github.com/quarkpan/quarkpan/internal/logging"
	"github.com/quarkpan/quarkpan/internal/models"
	"github.com/quarkpan/quarkpan/internal/pathindex"
	"github.com/quarkpan/quarkpan/internal/progress"
	"github.com/quarkpan/quarkpan/internal/traverse"
	"github.com/quarkpan/quarkpan/internal/validation"
)

// DownloadService fetches the files of share links owned by the user and
// mirrors their folder layout on disk.
type DownloadService struct {
	base
	ui         progress.TransferUI
	newBackOff func() backoff.BackOff
	onScan     func(traverse.WalkStats)
	checkSpace func(path string, need int64) error
}

// NewDownloadService creates a download service writing through fs.
func NewDownloadService(client *api.Client, fs afero.Fs, logger *logging.Logger) *DownloadService {
	return &DownloadService{
		base: newBase(client, fs, logger),
		ui:   progress.NoOpUI{},
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		checkSpace: func(path string, need int64) error {
			return diskspace.CheckAvailableSpace(path, need, diskspace.DefaultSafetyMargin)
		},
	}
}

// SetUI sets the progress display used for file streams.
func (s *DownloadService) SetUI(ui progress.TransferUI) {
	s.ui = ui
}

// SetBackOff replaces the delay policy between stream attempts.
func (s *DownloadService) SetBackOff(fn func() backoff.BackOff) {
	s.newBackOff = fn
}

// SetSpaceCheck replaces the free-space check run before each file stream.
func (s *DownloadService) SetSpaceCheck(fn func(path string, need int64) error) {
	s.checkSpace = fn
}

// SetScanObserver sets a callback for tree scans.
func (s *DownloadService) SetScanObserver(fn func(traverse.WalkStats)) {
	s.onScan = fn
}

// downloadRun is the state of one link download.
type downloadRun struct {
	opts   DownloadOptions
	idx    *pathindex.Index
	result DownloadResult
	index  atomic.Int32
	mu     sync.Mutex
}

func (r *downloadRun) add(fn func(*DownloadResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.result)
}

// DownloadLink downloads every file of a share link into opts.OutputDir.
// Files are written to <OutputDir>/<folder path>/<file name>. A file that
// fails all stream attempts is counted and the run continues.
func (s *DownloadService) DownloadLink(ctx context.Context, shareURL string, opts DownloadOptions) (*DownloadResult, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid download options: %w", err)
	}
	pwdID, passcode, err := api.ParseShareURL(shareURL)
	if err != nil {
		return nil, err
	}
	stoken, err := s.client.GetShareToken(ctx, pwdID, passcode)
	if err != nil {
		return nil, err
	}

	source := listing.ShareSource{API: s.client, PwdID: pwdID, Stoken: stoken}
	first, err := source.FetchPage(ctx, constants.RootFolderID, 1, 1)
	if err != nil {
		return nil, err
	}
	if !first.IsOwner {
		return nil, fmt.Errorf("%s: %w", pwdID, ErrNotOwned)
	}

	engineOpts := s.engineOptions(1, 0)
	engineOpts.OnScan = s.onScan
	engine := traverse.NewEngine(listing.NewLister(source), s.logger, engineOpts)

	run := &downloadRun{opts: opts, idx: pathindex.New(constants.MaxResolveDepth)}
	session := traverse.Session{PwdID: pwdID, Stoken: stoken, RootID: constants.RootFolderID}
	_, err = engine.WalkFiles(ctx, session, run.idx, func(ctx context.Context, batch []models.FileAction) error {
		return s.downloadBatch(ctx, run, batch)
	})

	s.logger.Info().
		Str("pwd_id", pwdID).
		Int("files", run.result.Files).
		Int("skipped", run.result.Skipped).
		Int("failed", run.result.Failed).
		Str("bytes", humanize.IBytes(uint64(run.result.Bytes))).
		Msg("download finished")
	return &run.result, err
}

// resolve returns download URLs for ids. A stale client signature is retried
// once with the desktop client identity.
func (s *DownloadService) resolve(ctx context.Context, ids []string) ([]models.DownloadInfo, error) {
	infos, err := s.client.ResolveDownloads(ctx, ids, constants.UserAgentBrowser)
	if err != nil && api.KindOf(err) == api.KindStaleSignature {
		s.logger.Debug().Int("files", len(ids)).Msg("stale client signature, retrying with desktop identity")
		infos, err = s.client.ResolveDownloads(ctx, ids, constants.UserAgentDesktop)
	}
	return infos, err
}

// downloadBatch resolves and streams the files of one directory.
func (s *DownloadService) downloadBatch(ctx context.Context, run *downloadRun, batch []models.FileAction) error {
	fallback := make(map[string][]string, len(batch))
	ids := make([]string, 0, len(batch))
	for _, a := range batch {
		ids = append(ids, a.Node.ID)
		fallback[a.Node.ID] = a.Path
	}

	var infos []models.DownloadInfo
	for start := 0; start < len(ids); start += constants.PageSize {
		end := min(start+constants.PageSize, len(ids))
		chunk, err := s.resolve(ctx, ids[start:end])
		if err != nil {
			if isFatal(err) {
				return err
			}
			s.logger.Error().Int("files", end-start).Err(err).Msg("failed to resolve download URLs")
			run.add(func(r *DownloadResult) { r.Failed += end - start })
			continue
		}
		infos = append(infos, chunk...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(run.opts.MaxConcurrent)
	for _, info := range infos {
		g.Go(func() error {
			segments, err := run.idx.Resolve(info.ParentID)
			if err != nil || info.ParentID == "" {
				segments = fallback[info.ID]
			}
			local, err := validation.LocalPath(run.opts.OutputDir, segments, info.Name)
			if err != nil {
				s.logger.Error().Str("file", info.Name).Err(err).Msg("unsafe file path")
				run.add(func(r *DownloadResult) { r.Failed++ })
				return nil
			}

			n, skipped, err := s.fetchFile(gctx, run, info, local)
			switch {
			case err == nil && skipped:
				run.add(func(r *DownloadResult) { r.Skipped++ })
			case err == nil:
				run.add(func(r *DownloadResult) { r.Files++; r.Bytes += n })
			case isFatal(err):
				return err
			default:
				s.logger.Error().Str("file", local).Err(err).Msg("download failed")
				run.add(func(r *DownloadResult) { r.Failed++ })
			}
			return nil
		})
	}
	return g.Wait()
}

// fetchFile streams one file with retries. An existing file of the expected
// size is skipped. Too little free space for the rest of the file is fatal.
func (s *DownloadService) fetchFile(ctx context.Context, run *downloadRun, info models.DownloadInfo, local string) (int64, bool, error) {
	if fi, err := s.fs.Stat(local); err == nil && !fi.IsDir() && info.Size > 0 && fi.Size() == info.Size {
		s.logger.Debug().Str("file", local).Msg("already downloaded")
		return 0, true, nil
	}
	if err := s.fs.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return 0, false, fmt.Errorf("failed to create directory: %w", err)
	}
	need := info.Size
	if fi, err := s.fs.Stat(local + ".part"); err == nil {
		need -= fi.Size()
	}
	if err := s.checkSpace(local, need); err != nil {
		return 0, false, err
	}

	bar := s.ui.AddFileBar(int(run.index.Add(1)), info.ID, info.Name, local, info.Size)
	attempt := 0
	n, err := backoff.Retry(ctx, func() (int64, error) {
		attempt++
		if attempt > 1 {
			bar.SetRetry(attempt - 1)
		}
		n, err := s.streamOnce(ctx, info, local, bar)
		if err != nil {
			switch http.ClassifyError(err) {
			case http.ErrorTypeFatal, http.ErrorTypePermanent:
				return 0, backoff.Permanent(err)
			}
			return 0, err
		}
		return n, nil
	}, backoff.WithBackOff(s.newBackOff()), backoff.WithMaxTries(constants.DownloadStreamAttempts))
	bar.Complete(err)
	return n, false, err
}

// streamOnce writes the file to <local>.part, resuming from its current size
// when the server honors the range, then renames it into place.
func (s *DownloadService) streamOnce(ctx context.Context, info models.DownloadInfo, local string, bar progress.FileBarHandle) (int64, error) {
	part := local + ".part"
	var offset int64
	if fi, err := s.fs.Stat(part); err == nil && (info.Size <= 0 || fi.Size() < info.Size) {
		offset = fi.Size()
	}

	dl, err := s.client.OpenDownload(ctx, info.DownloadURL, offset)
	if err != nil {
		return 0, err
	}
	defer dl.Body.Close()

	flag := os.O_CREATE | os.O_WRONLY
	if dl.Resumed {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
		offset = 0
	}
	f, err := s.fs.OpenFile(part, flag, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", part, err)
	}
	bar.SetCurrent(offset)

	buf := make([]byte, constants.DownloadBufferSize)
	n, copyErr := io.CopyBuffer(f, progress.NewProgressReader(dl.Body, bar), buf)
	closeErr := f.Close()
	if copyErr != nil {
		return 0, fmt.Errorf("stream interrupted after %s: %w", humanize.IBytes(uint64(offset+n)), copyErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("failed to close %s: %w", part, closeErr)
	}

	total := offset + n
	if info.Size > 0 && total != info.Size {
		return 0, fmt.Errorf("size mismatch for %s: got %d bytes, expected %d", info.Name, total, info.Size)
	}
	if err := s.fs.Rename(part, local); err != nil {
		return 0, fmt.Errorf("failed to move %s into place: %w", local, err)
	}
	return total, nil
}
