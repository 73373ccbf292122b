package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/quarkpan/quarkpan/internal/api"
	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/ledger"
	"github.com/quarkpan/quarkpan/internal/listing"
	"github.com/quarkpan/quarkpan/internal/logging"
	"github.com/quarkpan/quarkpan/internal/models"
	"github.com/quarkpan/quarkpan/internal/pathindex"
	"github.com/quarkpan/quarkpan/internal/traverse"
)

// SaveService transfers shared items into the user's storage.
type SaveService struct {
	base
	onScan func(traverse.WalkStats)
}

// NewSaveService creates a save service writing its ledger through fs.
func NewSaveService(client *api.Client, fs afero.Fs, logger *logging.Logger) *SaveService {
	return &SaveService{base: newBase(client, fs, logger)}
}

// SetScanObserver sets a callback for transfer plan scans.
func (s *SaveService) SetScanObserver(fn func(traverse.WalkStats)) {
	s.onScan = fn
}

// openShare parses a share link and exchanges it for a session token.
func (s *SaveService) openShare(ctx context.Context, shareURL string) (pwdID, stoken string, err error) {
	pwdID, passcode, err := api.ParseShareURL(shareURL)
	if err != nil {
		return "", "", err
	}
	stoken, err = s.client.GetShareToken(ctx, pwdID, passcode)
	if err != nil {
		return "", "", err
	}
	return pwdID, stoken, nil
}

// SaveLink saves every top-level item of a share link into destDirID and
// waits for the save task to finish.
func (s *SaveService) SaveLink(ctx context.Context, shareURL, destDirID string) (*SaveResult, error) {
	if destDirID == "" {
		return nil, ErrNoDestination
	}
	pwdID, stoken, err := s.openShare(ctx, shareURL)
	if err != nil {
		return nil, err
	}

	lister := listing.NewLister(listing.ShareSource{API: s.client, PwdID: pwdID, Stoken: stoken})
	isOwner, nodes, err := lister.ListChildren(ctx, constants.RootFolderID)
	if err != nil {
		return nil, err
	}
	if isOwner {
		return nil, fmt.Errorf("%s: %w", pwdID, ErrAlreadyOwned)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%s: %w", pwdID, ErrEmptyShare)
	}

	req := api.SaveRequest{PwdID: pwdID, Stoken: stoken, DestDirID: destDirID}
	for _, n := range nodes {
		req.FileIDs = append(req.FileIDs, n.ID)
		req.ShareTokens = append(req.ShareTokens, n.ShareToken)
	}

	taskID, err := s.client.SaveShare(ctx, req)
	if err != nil {
		return nil, err
	}
	result, err := s.poller.Poll(ctx, models.NewTaskHandle(taskID, models.TaskKindSave))
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("pwd_id", pwdID).
		Str("task_id", taskID).
		Int("items", len(nodes)).
		Str("folder", result.FolderName).
		Msg("share saved")
	return &SaveResult{
		URL:        shareURL,
		PwdID:      pwdID,
		TaskID:     taskID,
		Title:      result.Title,
		FolderName: result.FolderName,
		Items:      len(nodes),
	}, nil
}

// skippable reports failures that a retry cannot fix.
func skippable(err error) bool {
	return errors.Is(err, ErrAlreadyOwned) ||
		errors.Is(err, ErrEmptyShare) ||
		errors.Is(err, api.ErrInvalidLink)
}

type saveItem struct {
	seq int
	url string
}

// SaveBatch saves every link in order. Links that fail for a reason a retry
// may fix are written to the ledger at ledgerPath as seq | pwd_id | url.
// A fatal error stops the batch.
func (s *SaveService) SaveBatch(ctx context.Context, urls []string, destDirID, ledgerPath string) (*SaveBatchResult, error) {
	items := make([]saveItem, len(urls))
	for i, u := range urls {
		items[i] = saveItem{seq: i + 1, url: u}
	}
	return s.saveItems(ctx, items, destDirID, ledgerPath, false)
}

// RetryBatch replays the ledger at ledgerPath. When a fatal error stops the
// replay, the records not yet attempted are kept in the ledger.
func (s *SaveService) RetryBatch(ctx context.Context, destDirID, ledgerPath string) (*SaveBatchResult, error) {
	records, err := ledger.Read(s.fs, ledgerPath)
	if err != nil {
		return nil, err
	}
	items := make([]saveItem, len(records))
	for i, r := range records {
		items[i] = saveItem{seq: r.Seq, url: r.NodeID}
	}
	return s.saveItems(ctx, items, destDirID, ledgerPath, true)
}

func (s *SaveService) saveItems(ctx context.Context, items []saveItem, destDirID, ledgerPath string, keepUnattempted bool) (*SaveBatchResult, error) {
	if destDirID == "" {
		return nil, ErrNoDestination
	}
	l, err := ledger.Open(s.fs, ledgerPath, true)
	if err != nil {
		return nil, err
	}
	defer l.Close()

	result := &SaveBatchResult{LedgerPath: ledgerPath}
	record := func(it saveItem) error {
		pwdID, _, perr := api.ParseShareURL(it.url)
		if perr != nil {
			pwdID = "-"
		}
		return l.Append(models.RetryRecord{Seq: it.seq, Path: []string{pwdID}, NodeID: it.url})
	}

	for i, it := range items {
		saved, err := s.SaveLink(ctx, it.url, destDirID)
		if err == nil {
			result.Saved = append(result.Saved, *saved)
			continue
		}

		if isFatal(err) {
			if keepUnattempted {
				for _, rest := range items[i:] {
					if werr := record(rest); werr != nil {
						return result, werr
					}
				}
			}
			return result, err
		}
		if skippable(err) {
			result.Skipped++
			s.logger.Warn().Int("seq", it.seq).Str("url", it.url).Err(err).Msg("link skipped")
			continue
		}

		result.Failed++
		s.logger.Warn().Int("seq", it.seq).Str("url", it.url).Err(err).Msg("link failed, recorded for retry")
		if werr := record(it); werr != nil {
			return result, werr
		}
	}
	return result, nil
}

// Plan lists every file of a share link without saving anything.
func (s *SaveService) Plan(ctx context.Context, shareURL, destDirID string) (*TransferPlan, error) {
	pwdID, stoken, err := s.openShare(ctx, shareURL)
	if err != nil {
		return nil, err
	}

	source := listing.ShareSource{API: s.client, PwdID: pwdID, Stoken: stoken}
	first, err := source.FetchPage(ctx, constants.RootFolderID, 1, 1)
	if err != nil {
		return nil, err
	}

	opts := s.engineOptions(1, 0)
	opts.OnScan = s.onScan
	engine := traverse.NewEngine(listing.NewLister(source), s.logger, opts)
	idx := pathindex.New(constants.MaxResolveDepth)

	session := traverse.Session{PwdID: pwdID, Stoken: stoken, RootID: constants.RootFolderID, DestDirID: destDirID}
	files, stats, err := engine.Enumerate(ctx, session, idx)
	if err != nil {
		return nil, err
	}

	plan := &TransferPlan{PwdID: pwdID, IsOwner: first.IsOwner, Folders: stats.Directories, Files: files}
	for _, f := range files {
		plan.Bytes += f.Node.Size
	}
	return plan, nil
}
