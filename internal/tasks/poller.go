// Package tasks polls server-side asynchronous tasks to a terminal state.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/http"
	"github.com/quarkpan/quarkpan/internal/logging"
	"github.com/quarkpan/quarkpan/internal/models"
)

// ErrPollTimeout is returned when a task does not complete within the attempt budget.
var ErrPollTimeout = errors.New("task poll timed out")

// StatusFetcher issues one task status request.
type StatusFetcher interface {
	GetTask(ctx context.Context, taskID string, retryIndex int) (*models.TaskStatus, error)
}

// Poller waits for tasks created by save and share operations.
type Poller struct {
	fetcher     StatusFetcher
	logger      *logging.Logger
	maxAttempts int
	minDelay    time.Duration
	maxDelay    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller with the standard budget: 50 attempts, each
// preceded by a random 500-1000ms pause.
func NewPoller(fetcher StatusFetcher, logger *logging.Logger) *Poller {
	return &Poller{
		fetcher:     fetcher,
		logger:      logger,
		maxAttempts: constants.PollMaxAttempts,
		minDelay:    constants.PollMinDelay,
		maxDelay:    constants.PollMaxDelay,
		sleep:       http.SleepContext,
	}
}

// SetSleep replaces the delay function. Tests use it to poll without waiting.
func (p *Poller) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	p.sleep = fn
}

// SetMaxAttempts overrides the attempt budget.
func (p *Poller) SetMaxAttempts(n int) {
	if n > 0 {
		p.maxAttempts = n
	}
}

// Poll requests the task status until it completes.
//
// Errors that implement Fatal() (capacity limit, missing destination, invalid
// session) are returned at once. Every other error costs one attempt. When the
// budget runs out the result wraps ErrPollTimeout.
func (p *Poller) Poll(ctx context.Context, handle models.TaskHandle) (*models.TaskResult, error) {
	var lastErr error

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if err := p.sleep(ctx, http.UniformJitter(p.minDelay, p.maxDelay)); err != nil {
			return nil, err
		}

		status, err := p.fetcher.GetTask(ctx, handle.TaskID, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if http.ClassifyError(err) == http.ErrorTypeFatal {
				return nil, err
			}
			lastErr = err
			p.logger.Debug().
				Str("task_id", handle.TaskID).
				Int("attempt", attempt+1).
				Err(err).
				Msg("task status request failed")
			continue
		}

		if status.Status == constants.TaskStatusCompleted {
			result := &models.TaskResult{
				TaskID:     handle.TaskID,
				Kind:       handle.Kind,
				Title:      status.TaskTitle,
				FolderName: status.SaveAs.ToPdirName,
				ShareID:    status.ShareID,
				Attempts:   attempt + 1,
			}
			if result.FolderName == "" && handle.Kind == models.TaskKindSave {
				result.FolderName = constants.RootFolderName
			}
			p.logger.Debug().
				Str("task_id", handle.TaskID).
				Str("kind", string(handle.Kind)).
				Int("attempts", result.Attempts).
				Msg("task completed")
			return result, nil
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: task %s after %d attempts: %v", ErrPollTimeout, handle.TaskID, p.maxAttempts, lastErr)
	}
	return nil, fmt.Errorf("%w: task %s after %d attempts", ErrPollTimeout, handle.TaskID, p.maxAttempts)
}
