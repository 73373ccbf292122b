package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/quarkpan/quarkpan/internal/api"
	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/ledger"
	"github.com/quarkpan/quarkpan/internal/listing"
	"github.com/quarkpan/quarkpan/internal/logging"
	"github.com/quarkpan/quarkpan/internal/models"
	"github.com/quarkpan/quarkpan/internal/progress"
	"github.com/quarkpan/quarkpan/internal/traverse"
)

const passcodeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GeneratePasscode returns a random alphanumeric code of length n.
func GeneratePasscode(n int) (string, error) {
	max := big.NewInt(int64(len(passcodeAlphabet)))
	code := make([]byte, n)
	for i := range code {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate passcode: %w", err)
		}
		code[i] = passcodeAlphabet[idx.Int64()]
	}
	return string(code), nil
}

// LinkOptions describes the visibility and lifetime of a share link.
type LinkOptions struct {
	Expiry   int
	Encrypt  bool
	Password string
}

// ShareService creates share links for folders of the user's own storage.
type ShareService struct {
	base
	reporter progress.Reporter
}

// NewShareService creates a share service writing its files through fs.
func NewShareService(client *api.Client, fs afero.Fs, logger *logging.Logger) *ShareService {
	return &ShareService{base: newBase(client, fs, logger), reporter: progress.NewNoOpProgress()}
}

// SetReporter sets the progress reporter used during runs.
func (s *ShareService) SetReporter(r progress.Reporter) {
	s.reporter = r
}

// CreateLink shares fileIDs under title and returns the public link.
//
// A link is encrypted when Encrypt is set or a password is given; without a
// password a fixed-length code is generated. The passcode is appended to the
// URL as ?pwd=<code>.
func (s *ShareService) CreateLink(ctx context.Context, fileIDs []string, title string, opts LinkOptions) (*models.ShareLink, error) {
	req := api.ShareRequest{
		FileIDs:     fileIDs,
		Title:       title,
		URLType:     api.URLTypePublic,
		ExpiredType: opts.Expiry,
	}
	if req.ExpiredType == 0 {
		req.ExpiredType = api.ExpiryPermanent
	}
	if opts.Encrypt || opts.Password != "" {
		req.URLType = api.URLTypeEncrypted
		req.Passcode = opts.Password
		if req.Passcode == "" {
			code, err := GeneratePasscode(constants.PasscodeLength)
			if err != nil {
				return nil, err
			}
			req.Passcode = code
		}
	}

	taskID, err := s.client.CreateShare(ctx, req)
	if err != nil {
		return nil, err
	}
	result, err := s.poller.Poll(ctx, models.NewTaskHandle(taskID, models.TaskKindShare))
	if err != nil {
		return nil, err
	}
	if result.ShareID == "" {
		return nil, fmt.Errorf("share task %s completed without a share id", taskID)
	}

	info, err := s.client.GetSharePassword(ctx, result.ShareID)
	if err != nil {
		return nil, err
	}

	passcode := ""
	if req.URLType == api.URLTypeEncrypted {
		passcode = req.Passcode
		if info.Passcode != "" {
			passcode = info.Passcode
		}
	}
	return &models.ShareLink{
		ShareID:  result.ShareID,
		Title:    title,
		URL:      api.WithPasscode(info.ShareURL, passcode),
		Passcode: passcode,
	}, nil
}

func (s *ShareService) action(opts LinkOptions) traverse.Action {
	return func(ctx context.Context, t traverse.Target) (string, error) {
		title := t.Node.Name
		if title == "" && len(t.Path) > 0 {
			title = t.Path[len(t.Path)-1]
		}
		link, err := s.CreateLink(ctx, []string{t.Node.ID}, title, opts)
		if err != nil {
			return "", err
		}
		return link.URL, nil
	}
}

func (s *ShareService) newEngine(workers, throttleLimit int) *traverse.Engine {
	opts := s.engineOptions(workers, throttleLimit)
	opts.OnNodeDone = func(traverse.Target, error) { s.reporter.Increment() }
	lister := listing.NewLister(listing.OwnSource{API: s.client})
	return traverse.NewEngine(lister, s.logger, opts)
}

// Run shares the folders at the configured depth below the folder address.
//
// Links are written to share_url.txt (the previous file is kept as
// share_url_backup.txt) and folders that failed every attempt to retry.txt.
func (s *ShareService) Run(ctx context.Context, opts ShareOptions) (*ShareRunResult, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid share options: %w", err)
	}
	rootID, err := api.ParseFolderURL(opts.FolderURL)
	if err != nil {
		return nil, err
	}
	rootName := api.FolderNameFromURL(opts.FolderURL)
	if rootName == "" {
		rootName = rootID
	}

	outputPath := filepath.Join(opts.OutputDir, constants.ShareOutputFile)
	ledgerPath := filepath.Join(opts.OutputDir, constants.ShareRetryLedger)

	out, err := ledger.CreateShareLog(s.fs, outputPath, filepath.Join(opts.OutputDir, constants.ShareOutputBackup))
	if err != nil {
		return nil, err
	}
	defer out.Close()
	failures, err := ledger.Open(s.fs, ledgerPath, true)
	if err != nil {
		return nil, err
	}
	defer failures.Close()

	engine := s.newEngine(opts.Workers, opts.ThrottleLimit)
	session := traverse.Session{RootID: rootID, RootName: rootName, Depth: opts.Depth}

	targets, err := engine.SelectTargets(ctx, session)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("root", rootName).
		Int("depth", opts.Depth).
		Int("targets", len(targets)).
		Msg("sharing folders")

	s.reporter.Start(int64(len(targets)), "sharing")
	summary, err := engine.Execute(ctx, targets, s.action(LinkOptions{Expiry: opts.Expiry, Encrypt: opts.Encrypt, Password: opts.Password}), out, failures)
	s.reporter.Finish()

	return &ShareRunResult{Summary: summary, OutputPath: outputPath, LedgerPath: ledgerPath}, err
}

// seqTracker records which targets produced a result.
type seqTracker struct {
	next traverse.ResultWriter
	done map[int]bool
}

func (t *seqTracker) Append(r models.ShareRecord) error {
	if err := t.next.Append(r); err != nil {
		return err
	}
	t.done[r.Seq] = true
	return nil
}

// Retry replays retry.txt. Links are appended to retry_share_url.txt and the
// ledger is rewritten with every record that did not produce a link, including
// records not reached when a fatal error stopped the run.
func (s *ShareService) Retry(ctx context.Context, opts ShareRetryOptions) (*ShareRunResult, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid share options: %w", err)
	}
	ledgerPath := filepath.Join(opts.OutputDir, constants.ShareRetryLedger)
	outputPath := filepath.Join(opts.OutputDir, constants.ShareRetryOutputFile)

	records, err := ledger.Read(s.fs, ledgerPath)
	if err != nil {
		return nil, err
	}
	result := &ShareRunResult{OutputPath: outputPath, LedgerPath: ledgerPath}
	if len(records) == 0 {
		result.Summary = &traverse.Summary{}
		return result, nil
	}

	targets := make([]traverse.Target, len(records))
	for i, r := range records {
		targets[i] = traverse.Target{
			Seq:  r.Seq,
			Node: models.Node{ID: r.NodeID, Name: r.Label(), IsDir: true},
			Path: r.Path,
		}
	}

	out, err := ledger.CreateShareLog(s.fs, outputPath, "")
	if err != nil {
		return nil, err
	}
	defer out.Close()
	tracker := &seqTracker{next: out, done: make(map[int]bool)}

	engine := s.newEngine(opts.Workers, opts.ThrottleLimit)
	s.reporter.Start(int64(len(targets)), "retrying")
	summary, runErr := engine.Execute(ctx, targets, s.action(LinkOptions{Expiry: opts.Expiry, Encrypt: opts.Encrypt, Password: opts.Password}), tracker, nil)
	s.reporter.Finish()
	result.Summary = summary

	var remaining []models.RetryRecord
	for _, r := range records {
		if !tracker.done[r.Seq] {
			remaining = append(remaining, r)
		}
	}
	if err := ledger.Rewrite(s.fs, ledgerPath, remaining); err != nil {
		if runErr != nil {
			return result, fmt.Errorf("%w (and failed to update ledger: %v)", runErr, err)
		}
		return result, err
	}
	s.logger.Info().
		Int("succeeded", len(records)-len(remaining)).
		Int("remaining", len(remaining)).
		Msg("retry ledger updated")
	return result, runErr
}
