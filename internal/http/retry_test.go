package http

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type testErr struct {
	fatal     bool
	throttled bool
	permanent bool
}

func (e *testErr) Error() string   { return "test error" }
func (e *testErr) Fatal() bool     { return e.fatal }
func (e *testErr) Throttled() bool { return e.throttled }
func (e *testErr) Retryable() bool { return !e.permanent }

func noSleep(context.Context, time.Duration) error { return nil }

// TestExecuteWithRetry_Success verifies basic success case returns nil on first attempt.
func TestExecuteWithRetry_Success(t *testing.T) {
	calls := 0
	err := ExecuteWithRetry(context.Background(), Config{MaxRetries: 3, Sleep: noSleep}, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

// TestExecuteWithRetry_FatalError verifies no retry on fatal errors.
func TestExecuteWithRetry_FatalError(t *testing.T) {
	calls := 0
	fatal := &testErr{fatal: true}
	err := ExecuteWithRetry(context.Background(), Config{MaxRetries: 5, Sleep: noSleep}, func() error {
		calls++
		return fmt.Errorf("save: %w", fatal)
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call for fatal error, got %d", calls)
	}
}

// TestExecuteWithRetry_PermanentError verifies permanent errors are not retried.
func TestExecuteWithRetry_PermanentError(t *testing.T) {
	calls := 0
	err := ExecuteWithRetry(context.Background(), Config{MaxRetries: 3, Sleep: noSleep}, func() error {
		calls++
		return &testErr{permanent: true}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

// TestExecuteWithRetry_Exhausted verifies every attempt is spent and the last error is wrapped.
func TestExecuteWithRetry_Exhausted(t *testing.T) {
	calls := 0
	retried := 0
	cfg := Config{
		MaxRetries: 3,
		Sleep:      noSleep,
		OnRetry: func(attempt int, err error, errType ErrorType) {
			retried++
			if errType != ErrorTypeRetryable {
				t.Errorf("expected retryable, got %s", ErrorTypeName(errType))
			}
		},
	}
	last := errors.New("server said no")
	err := ExecuteWithRetry(context.Background(), cfg, func() error {
		calls++
		return last
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %T: %v", err, err)
	}
	if exhausted.Attempts != 3 || calls != 3 {
		t.Errorf("expected 3 attempts, got %d (calls %d)", exhausted.Attempts, calls)
	}
	if retried != 2 {
		t.Errorf("expected 2 OnRetry callbacks, got %d", retried)
	}
	if !errors.Is(err, last) {
		t.Error("exhausted error should wrap the last failure")
	}
}

// TestExecuteWithRetry_PreDelay verifies the jittered delay precedes every attempt.
func TestExecuteWithRetry_PreDelay(t *testing.T) {
	var waits []time.Duration
	cfg := Config{
		MaxRetries: 3,
		PreDelay:   func(attempt int) time.Duration { return time.Duration(attempt+1) * time.Millisecond },
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}
	calls := 0
	err := ExecuteWithRetry(context.Background(), cfg, func() error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(waits) != 2 || waits[0] != time.Millisecond || waits[1] != 2*time.Millisecond {
		t.Errorf("unexpected waits: %v", waits)
	}
}

// TestExecuteWithRetry_ContextCanceled verifies cancellation stops the loop.
func TestExecuteWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := ExecuteWithRetry(ctx, Config{MaxRetries: 3, Sleep: noSleep}, func() error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no calls, got %d", calls)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeSuccess},
		{"fatal", &testErr{fatal: true}, ErrorTypeFatal},
		{"wrapped fatal", fmt.Errorf("outer: %w", &testErr{fatal: true}), ErrorTypeFatal},
		{"throttled", &testErr{throttled: true}, ErrorTypeThrottled},
		{"permanent", &testErr{permanent: true}, ErrorTypePermanent},
		{"canceled", context.Canceled, ErrorTypeFatal},
		{"deadline", context.DeadlineExceeded, ErrorTypeNetwork},
		{"reset", errors.New("read: connection reset by peer"), ErrorTypeNetwork},
		{"unknown", errors.New("something odd"), ErrorTypeRetryable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %s, want %s", ErrorTypeName(got), ErrorTypeName(tt.want))
			}
		})
	}
}

func TestJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := SteppedJitter(500*time.Millisecond, 4)
		if d < 500*time.Millisecond || d > 2*time.Second || d%(500*time.Millisecond) != 0 {
			t.Fatalf("SteppedJitter out of range: %v", d)
		}
		u := UniformJitter(500*time.Millisecond, time.Second)
		if u < 500*time.Millisecond || u > time.Second {
			t.Fatalf("UniformJitter out of range: %v", u)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	if d := CalculateBackoff(0, time.Second, 10*time.Second); d != 0 {
		t.Errorf("attempt 0 should not wait, got %v", d)
	}
	for i := 0; i < 50; i++ {
		if d := CalculateBackoff(10, time.Second, 3*time.Second); d >= 3*time.Second {
			t.Fatalf("backoff exceeded cap: %v", d)
		}
	}
}
