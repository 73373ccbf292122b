// Package services implements the save, share, download and account
// operations on top of the API client, poller and traversal engine.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"

	"github.com/quarkpan/quarkpan/internal/api"
	"github.com/quarkpan/quarkpan/internal/http"
	"github.com/quarkpan/quarkpan/internal/logging"
	"github.com/quarkpan/quarkpan/internal/models"
	"github.com/quarkpan/quarkpan/internal/tasks"
	"github.com/quarkpan/quarkpan/internal/traverse"
)

var (
	// ErrAlreadyOwned is returned when saving a share that belongs to the logged-in account.
	ErrAlreadyOwned = errors.New("share already belongs to this account")
	// ErrNoDestination is returned when no destination folder is configured.
	ErrNoDestination = errors.New("no destination folder configured: run 'quarkpan config set-dest'")
	// ErrNotOwned is returned when downloading a share that is not in the user's storage.
	ErrNotOwned = errors.New("share does not belong to this account: save it first, then share it from your own storage")
	// ErrEmptyShare is returned when a share link lists no items.
	ErrEmptyShare = errors.New("share contains no items")
)

var validate = validator.New()

// ShareOptions configures a share run.
type ShareOptions struct {
	FolderURL     string `validate:"required"`
	Depth         int    `validate:"min=0,max=2"`
	Expiry        int    `validate:"oneof=1 2 3 4"`
	Encrypt       bool
	Password      string `validate:"omitempty,alphanum,max=16"`
	Workers       int    `validate:"min=1,max=8"`
	ThrottleLimit int    `validate:"min=0"`
	OutputDir     string `validate:"required"`
}

// ShareRetryOptions configures a replay of the share ledger.
type ShareRetryOptions struct {
	Expiry        int `validate:"oneof=1 2 3 4"`
	Encrypt       bool
	Password      string `validate:"omitempty,alphanum,max=16"`
	Workers       int    `validate:"min=1,max=8"`
	ThrottleLimit int    `validate:"min=0"`
	OutputDir     string `validate:"required"`
}

// ShareRunResult reports a finished share run.
type ShareRunResult struct {
	Summary    *traverse.Summary
	OutputPath string
	LedgerPath string
}

// DownloadOptions configures a download run.
type DownloadOptions struct {
	OutputDir     string `validate:"required"`
	MaxConcurrent int    `validate:"min=1,max=10"`
}

// DownloadResult reports a finished download of one share link.
type DownloadResult struct {
	Files   int
	Skipped int
	Failed  int
	Bytes   int64
}

// SaveResult reports one saved share link.
type SaveResult struct {
	URL        string
	PwdID      string
	TaskID     string
	Title      string
	FolderName string
	Items      int
}

// SaveBatchResult reports a batch of share links.
type SaveBatchResult struct {
	Saved      []SaveResult
	Skipped    int
	Failed     int
	LedgerPath string
}

// TransferPlan describes every file a save of a share would bring in.
type TransferPlan struct {
	PwdID   string
	IsOwner bool
	Folders int
	Files   []models.FileAction
	Bytes   int64
}

// ParseExpiry maps 1d, 7d, 30d and permanent to an expiry class.
func ParseExpiry(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1d", "1":
		return api.ExpiryOneDay, nil
	case "7d", "7":
		return api.ExpirySevenDays, nil
	case "30d", "30":
		return api.ExpiryThirty, nil
	case "permanent", "forever", "0":
		return api.ExpiryPermanent, nil
	}
	return 0, fmt.Errorf("invalid expiry %q: use 1d, 7d, 30d or permanent", s)
}

// base holds what every service shares.
type base struct {
	client *api.Client
	fs     afero.Fs
	logger *logging.Logger
	poller *tasks.Poller
	sleep  func(ctx context.Context, d time.Duration) error
}

func newBase(client *api.Client, fs afero.Fs, logger *logging.Logger) base {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return base{
		client: client,
		fs:     fs,
		logger: logger,
		poller: tasks.NewPoller(client, logger),
		sleep:  http.SleepContext,
	}
}

// SetSleep replaces every delay the service waits for. Tests use it to run
// retries and polls without waiting.
func (b *base) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	b.sleep = fn
	b.poller.SetSleep(fn)
}

func (b *base) engineOptions(workers, throttleLimit int) traverse.Options {
	opts := traverse.DefaultOptions()
	opts.Workers = workers
	opts.ThrottleLimit = throttleLimit
	opts.Sleep = b.sleep
	return opts
}

// isFatal reports whether err must abort the whole run.
func isFatal(err error) bool {
	return http.ClassifyError(err) == http.ErrorTypeFatal
}
