// Package traverse walks remote folder trees and runs per-node actions.
//
// Two walks are provided. The share walk selects the directories at a fixed
// depth below a root and runs an action on each through a bounded worker pool,
// writing results and failures in listing order. The file walk descends the
// whole tree and hands each directory's files to a callback once the
// directory's subtree has been walked.
package traverse

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/http"
	"github.com/quarkpan/quarkpan/internal/listing"
	"github.com/quarkpan/quarkpan/internal/logging"
	"github.com/quarkpan/quarkpan/internal/models"
	"github.com/quarkpan/quarkpan/internal/ratelimit"
)

// ErrSustainedThrottle aborts a run after too many consecutive nodes failed
// because the server kept throttling requests.
var ErrSustainedThrottle = errors.New("server is throttling requests persistently")

// Session carries the per-run state every traversal needs.
type Session struct {
	// PwdID and Stoken identify the shared tree being walked (empty for own storage).
	PwdID  string
	Stoken string
	// RootID is the directory the walk starts from; RootName labels it.
	RootID   string
	RootName string
	// DestDirID is the destination folder for transfer actions.
	DestDirID string
	// Depth is the share-mode level at which actions run (0, 1 or 2).
	Depth int
}

// Target is one node selected for an action.
type Target struct {
	Seq  int
	Node models.Node
	Path []string
}

// Action performs the per-node operation and returns the value recorded on
// success (a share URL).
type Action func(ctx context.Context, t Target) (string, error)

// Options tunes an Engine.
type Options struct {
	Workers       int
	Attempts      int
	ThrottleLimit int
	// PreDelay is waited before every attempt of a node action or listing.
	PreDelay func(attempt int) time.Duration
	// Sleep waits for a delay. Tests replace it to run without waiting.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnScan, when set, is called after each directory listing of a file walk.
	OnScan func(stats WalkStats)
	// OnNodeDone, when set, is called once per target that succeeded or was
	// recorded as failed.
	OnNodeDone func(t Target, err error)
}

// DefaultOptions returns the standard policy: one worker, three attempts per
// node, each preceded by a random 0.5-2s pause.
func DefaultOptions() Options {
	return Options{
		Workers:       constants.DefaultWorkers,
		Attempts:      constants.NodeActionAttempts,
		ThrottleLimit: constants.DefaultThrottleLimit,
		PreDelay: func(int) time.Duration {
			return http.SteppedJitter(constants.NodeActionDelayStep, constants.NodeActionDelaySteps)
		},
		Sleep: http.SleepContext,
	}
}

// Summary describes a finished share walk.
type Summary struct {
	RunID     string
	Targets   int
	Succeeded int
	Failed    int
}

// Engine drives traversals over one listing source.
type Engine struct {
	lister *listing.Lister
	logger *logging.Logger
	opts   Options
}

// NewEngine creates an engine that lists directories through lister.
func NewEngine(lister *listing.Lister, logger *logging.Logger, opts Options) *Engine {
	if opts.Workers < 1 {
		opts.Workers = constants.DefaultWorkers
	}
	if opts.Attempts < 1 {
		opts.Attempts = constants.NodeActionAttempts
	}
	if opts.Sleep == nil {
		opts.Sleep = http.SleepContext
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{lister: lister, logger: logger, opts: opts}
}

func (e *Engine) retryConfig(onRetry func(attempt int, err error, errType http.ErrorType)) http.Config {
	return http.Config{
		MaxRetries: e.opts.Attempts,
		PreDelay:   e.opts.PreDelay,
		Sleep:      e.opts.Sleep,
		OnRetry:    onRetry,
	}
}

// list returns the children of a directory, retrying transient failures.
func (e *Engine) list(ctx context.Context, dirID string) ([]models.Node, error) {
	var nodes []models.Node
	cfg := e.retryConfig(func(attempt int, err error, errType http.ErrorType) {
		e.logger.Debug().
			Str("dir_id", dirID).
			Int("attempt", attempt).
			Str("error_type", http.ErrorTypeName(errType)).
			Err(err).
			Msg("listing failed, retrying")
	})
	err := http.ExecuteWithRetry(ctx, cfg, func() error {
		_, children, err := e.lister.ListChildren(ctx, dirID)
		if err != nil {
			return err
		}
		nodes = children
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list directory %s: %w", dirID, err)
	}
	return nodes, nil
}

// SelectTargets lists the tree below the session root and returns the
// directories at the session depth, numbered from 1 in listing order.
//
// Depth 0 selects the root itself, depth 1 every child directory, depth 2
// every grandchild directory.
func (e *Engine) SelectTargets(ctx context.Context, s Session) ([]Target, error) {
	if s.Depth < 0 || s.Depth > constants.MaxShareDepth {
		return nil, fmt.Errorf("depth must be between 0 and %d, got %d", constants.MaxShareDepth, s.Depth)
	}
	if s.Depth == 0 {
		root := models.Node{ID: s.RootID, Name: s.RootName, IsDir: true}
		return []Target{{Seq: 1, Node: root, Path: []string{s.RootName}}}, nil
	}

	var targets []Target
	var collect func(dirID string, path []string, remaining int) error
	collect = func(dirID string, path []string, remaining int) error {
		nodes, err := e.list(ctx, dirID)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			if !n.IsDir {
				continue
			}
			childPath := append(append([]string(nil), path...), n.Name)
			if remaining == 1 {
				targets = append(targets, Target{Seq: len(targets) + 1, Node: n, Path: childPath})
				continue
			}
			if err := collect(n.ID, childPath, remaining-1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := collect(s.RootID, nil, s.Depth); err != nil {
		return nil, err
	}
	return targets, nil
}

// Run selects the targets of a session and executes action on each.
func (e *Engine) Run(ctx context.Context, s Session, action Action, results ResultWriter, failures FailureWriter) (*Summary, error) {
	targets, err := e.SelectTargets(ctx, s)
	if err != nil {
		return nil, err
	}
	e.logger.Info().
		Str("root", s.RootName).
		Int("depth", s.Depth).
		Int("targets", len(targets)).
		Msg("share targets selected")
	return e.Execute(ctx, targets, action, results, failures)
}

// Execute runs action on every target through the worker pool.
//
// A target whose attempts are exhausted, or that fails permanently, is
// written to failures and the run continues. A fatal error stops the run:
// outcomes already completed are flushed before the error is returned.
// When sustained throttling stops the run, every target cut short or never
// started is written to failures as well. Results and failures are written
// in target order.
func (e *Engine) Execute(ctx context.Context, targets []Target, action Action, results ResultWriter, failures FailureWriter) (*Summary, error) {
	runID := uuid.NewString()
	log := e.logger.With().Str("run_id", runID).Logger()
	breaker := ratelimit.NewThrottleBreaker(e.opts.ThrottleLimit)
	emitter := newOrderedEmitter(results, failures)

	var succeeded, failed atomic.Int64
	var throttled atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	launched := 0
	for i, t := range targets {
		if gctx.Err() != nil {
			break
		}
		launched++
		g.Go(func() error {
			value, err := e.attempt(gctx, t, action)
			if err == nil {
				e.nodeDone(t, nil)
				breaker.Record(false)
				succeeded.Add(1)
				log.Info().Int("seq", t.Seq).Str("node_id", t.Node.ID).Msg("node done")
				return emitter.complete(i, outcome{result: &models.ShareRecord{Seq: t.Seq, Path: t.Path, URL: value}})
			}

			errType := http.ClassifyError(err)
			if errType == http.ErrorTypeFatal {
				if throttled.Load() && ctx.Err() == nil && errors.Is(err, context.Canceled) {
					failed.Add(1)
					e.nodeDone(t, err)
					return emitter.complete(i, outcome{failure: retryRecord(t)})
				}
				emitter.complete(i, outcome{})
				return err
			}

			failed.Add(1)
			e.nodeDone(t, err)
			log.Warn().
				Int("seq", t.Seq).
				Str("node_id", t.Node.ID).
				Str("error_type", http.ErrorTypeName(errType)).
				Err(err).
				Msg("node failed, recorded for retry")
			if werr := emitter.complete(i, outcome{failure: retryRecord(t)}); werr != nil {
				return werr
			}
			if breaker.Record(errType == http.ErrorTypeThrottled) {
				throttled.Store(true)
				return fmt.Errorf("%w: %d consecutive nodes throttled", ErrSustainedThrottle, breaker.Consecutive())
			}
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, ErrSustainedThrottle) {
		for i, t := range targets[launched:] {
			failed.Add(1)
			if werr := emitter.complete(launched+i, outcome{failure: retryRecord(t)}); werr != nil {
				err = errors.Join(err, werr)
				break
			}
		}
		log.Warn().
			Int("unreached", len(targets)-launched).
			Msg("run stopped by throttling, remaining targets recorded for retry")
	}
	if ferr := emitter.flush(); ferr != nil && err == nil {
		err = ferr
	}

	summary := &Summary{
		RunID:     runID,
		Targets:   len(targets),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}
	return summary, err
}

func retryRecord(t Target) *models.RetryRecord {
	return &models.RetryRecord{Seq: t.Seq, Path: t.Path, NodeID: t.Node.ID}
}

func (e *Engine) nodeDone(t Target, err error) {
	if e.opts.OnNodeDone != nil {
		e.opts.OnNodeDone(t, err)
	}
}

// attempt runs one node action under the per-node retry policy.
func (e *Engine) attempt(ctx context.Context, t Target, action Action) (string, error) {
	var value string
	cfg := e.retryConfig(func(attempt int, err error, errType http.ErrorType) {
		e.logger.Debug().
			Int("seq", t.Seq).
			Str("node_id", t.Node.ID).
			Int("attempt", attempt).
			Str("error_type", http.ErrorTypeName(errType)).
			Err(err).
			Msg("node action failed, retrying")
	})
	err := http.ExecuteWithRetry(ctx, cfg, func() error {
		v, err := action(ctx, t)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, err
}
