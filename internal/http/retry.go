package http

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"
)

// ErrorType represents different classes of errors for retry strategy
type ErrorType int

const (
	// ErrorTypeSuccess indicates operation succeeded
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeNetwork indicates network/connection issues (timeouts, connection refused, etc.)
	ErrorTypeNetwork
	// ErrorTypeThrottled indicates the server rejected the request for rate reasons (429)
	ErrorTypeThrottled
	// ErrorTypeRetryable indicates any other failure that may succeed on another attempt
	ErrorTypeRetryable
	// ErrorTypePermanent indicates a failure that will not change on retry but does not end the run
	ErrorTypePermanent
	// ErrorTypeFatal indicates a failure that must abort the whole run
	ErrorTypeFatal
)

// fatalError is implemented by errors that end the run (capacity limit, missing destination).
type fatalError interface {
	Fatal() bool
}

// throttledError is implemented by errors caused by server-side rate limiting.
type throttledError interface {
	Throttled() bool
}

// retryableError is implemented by errors that know whether another attempt can help.
type retryableError interface {
	Retryable() bool
}

// Config holds retry parameters for ExecuteWithRetry
type Config struct {
	// MaxRetries is the total number of attempts (default: 3)
	MaxRetries int
	// InitialDelay is the base delay for exponential backoff between attempts
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// PreDelay, when set, is waited before every attempt including the first.
	// Backoff delays are not applied when PreDelay is set.
	PreDelay func(attempt int) time.Duration
	// Sleep waits for d or until ctx is done. Defaults to SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is an optional callback invoked after each failed attempt that will be retried
	OnRetry func(attempt int, err error, errorType ErrorType)
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// ClassifyError determines the error type for retry strategy.
// Typed errors decide for themselves; untyped errors are inspected for
// network failures. Anything unrecognized is retryable.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}

	if errors.Is(err, context.Canceled) {
		return ErrorTypeFatal
	}

	var fe fatalError
	if errors.As(err, &fe) && fe.Fatal() {
		return ErrorTypeFatal
	}

	var te throttledError
	if errors.As(err, &te) && te.Throttled() {
		return ErrorTypeThrottled
	}

	var re retryableError
	if errors.As(err, &re) && !re.Retryable() {
		return ErrorTypePermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeNetwork
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "timeout") {
		return ErrorTypeNetwork
	}

	return ErrorTypeRetryable
}

// CalculateBackoff returns exponential backoff duration with full jitter
//
// Formula: random(0, min(maxDelay, initialDelay * 2^attempt))
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}

	base := time.Duration(1<<uint(attempt)) * initialDelay
	if base > maxDelay {
		base = maxDelay
	}

	return time.Duration(rand.Int63n(int64(base)))
}

// SteppedJitter returns a random delay of step * [1, steps].
func SteppedJitter(step time.Duration, steps int) time.Duration {
	if steps <= 1 {
		return step
	}
	return step * time.Duration(1+rand.Intn(steps))
}

// UniformJitter returns a random delay in [min, max].
func UniformJitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExecuteWithRetry runs an operation in an attempt-counting loop.
//
// Retry strategy:
//   - Fatal errors: returned immediately, the caller aborts the run
//   - Permanent errors: returned immediately, nothing to gain from retrying
//   - Network/Throttled/Retryable errors: retried until MaxRetries attempts
//   - Context cancellation: returned immediately
//
// When every attempt fails the result is an *ExhaustedError wrapping the last failure.
func ExecuteWithRetry(ctx context.Context, config Config, operation func() error) error {
	sleep := config.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	attempts := config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if config.PreDelay != nil {
			if err := sleep(ctx, config.PreDelay(attempt)); err != nil {
				return err
			}
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		errType := ClassifyError(err)
		switch errType {
		case ErrorTypeFatal, ErrorTypePermanent:
			return err
		}

		if attempt == attempts-1 {
			break
		}
		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err, errType)
		}
		if config.PreDelay == nil {
			if err := sleep(ctx, CalculateBackoff(attempt, config.InitialDelay, config.MaxDelay)); err != nil {
				return err
			}
		}
	}

	return &ExhaustedError{Attempts: attempts, Last: lastErr}
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeThrottled:
		return "throttled"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
