// Package retry wraps flaky operations (page loads, browser start-up, whole rounds)
// in a fixed-delay retry loop with a closed failure taxonomy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoResult is returned when a non-escalating policy is exhausted.
var ErrNoResult = errors.New("retry policy exhausted, continuing without result")

// FatalError is returned when an escalating policy is exhausted. The run must halt.
type FatalError struct {
	Name     string
	Attempts int
	Last     error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts, giving up: %v", e.Name, e.Attempts, e.Last)
}

func (e *FatalError) Unwrap() error { return e.Last }

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

type Class int

const (
	Other Class = iota
	Timeout
	ResourceBusy
)

func (c Class) String() string {
	switch c {
	case Timeout:
		return "timeout"
	case ResourceBusy:
		return "resource-busy"
	default:
		return "other"
	}
}

// Classify maps an operation failure onto the retry taxonomy.
func Classify(err error) Class {
	if errors.Is(err, syscall.ETXTBSY) || strings.Contains(strings.ToLower(err.Error()), "text file busy") {
		return ResourceBusy
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Timeout
	}
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return Timeout
	}
	return Other
}

type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Escalate    bool
}

// Backoff is how long to wait after a failure of class c. Busy executables usually
// free up quickly; timeouts and unknown failures get twice the delay.
func (p Policy) Backoff(c Class) time.Duration {
	if c == ResourceBusy {
		return p.Delay
	}
	return 2 * p.Delay
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Executor struct {
	Log   logrus.FieldLogger
	Sleep Sleeper
}

func NewExecutor(log logrus.FieldLogger) *Executor {
	return &Executor{Log: log, Sleep: SleepContext}
}

// Execute runs op until it succeeds or the policy is exhausted.
func Execute[T any](ctx context.Context, ex *Executor, name string, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := ex.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		last = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("%s: %w", name, ctxErr)
		}

		class := Classify(err)
		entry := ex.Log.WithFields(logrus.Fields{
			"operation": name,
			"attempt":   attempt,
			"of":        attempts,
			"class":     class.String(),
		})
		if attempt == attempts {
			entry.Errorf("❌ %s failed: %v", name, err)
			break
		}

		wait := policy.Backoff(class)
		entry.Errorf("🔁 %s failed, retrying in %s: %v", name, wait, err)
		if err := sleep(ctx, wait); err != nil {
			return zero, fmt.Errorf("%s: retry interrupted: %w", name, err)
		}
	}

	if policy.Escalate {
		return zero, &FatalError{Name: name, Attempts: attempts, Last: last}
	}
	ex.Log.WithField("operation", name).Errorf("⏭️ %s gave up after %d attempts, skipping: %v", name, attempts, last)
	return zero, fmt.Errorf("%s: %w: %v", name, ErrNoResult, last)
}

// Do is Execute for operations without a result value.
func Do(ctx context.Context, ex *Executor, name string, policy Policy, op func(ctx context.Context) error) error {
	_, err := Execute(ctx, ex, name, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
