package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestExecutor(slept *[]time.Duration) *Executor {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Executor{
		Log: log,
		Sleep: func(ctx context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			return nil
		},
	}
}

func TestExecuteSucceedsAfterTwoFailures(t *testing.T) {
	var slept []time.Duration
	ex := newTestExecutor(&slept)

	calls := 0
	got, err := Execute(context.Background(), ex, "flaky", Policy{MaxAttempts: 3, Delay: time.Second},
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("boom")
			}
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("expected ok, got %q", got)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(slept) != 2 {
		t.Fatalf("expected exactly 2 delays, got %d", len(slept))
	}
}

func TestExecuteExhaustedWithoutEscalation(t *testing.T) {
	var slept []time.Duration
	ex := newTestExecutor(&slept)

	calls := 0
	_, err := Execute(context.Background(), ex, "always-fails", Policy{MaxAttempts: 3, Delay: time.Second},
		func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("boom")
		})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
	if IsFatal(err) {
		t.Fatal("non-escalating policy must not produce a fatal error")
	}
}

func TestExecuteExhaustedWithEscalation(t *testing.T) {
	var slept []time.Duration
	ex := newTestExecutor(&slept)

	cause := errors.New("boom")
	calls := 0
	err := Do(context.Background(), ex, "run", Policy{MaxAttempts: 3, Delay: time.Minute, Escalate: true},
		func(ctx context.Context) error {
			calls++
			return cause
		})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	var fe *FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FatalError, got %v", err)
	}
	if fe.Attempts != 3 || !errors.Is(err, cause) {
		t.Fatalf("unexpected fatal error contents: %+v", fe)
	}
}

func TestBackoffByClass(t *testing.T) {
	var slept []time.Duration
	ex := newTestExecutor(&slept)

	errs := []error{
		&os.PathError{Op: "fork/exec", Path: "/usr/bin/chromium", Err: syscall.ETXTBSY},
		context.DeadlineExceeded,
		errors.New("boom"),
	}
	i := 0
	_, _ = Execute(context.Background(), ex, "classes", Policy{MaxAttempts: 4, Delay: time.Second},
		func(ctx context.Context) (int, error) {
			if i < len(errs) {
				i++
				return 0, errs[i-1]
			}
			return 1, nil
		})

	want := []time.Duration{time.Second, 2 * time.Second, 2 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), slept)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d: expected %s, got %s", i, want[i], slept[i])
		}
	}
}

func TestClassify(t *testing.T) {
	cases := map[error]Class{
		fmt.Errorf("start: %w", syscall.ETXTBSY):             ResourceBusy,
		errors.New("exec: text file busy"):                   ResourceBusy,
		fmt.Errorf("navigate: %w", context.DeadlineExceeded): Timeout,
		errors.New("net/http: request timeout"):              Timeout,
		errors.New("connection refused"):                     Other,
	}
	for err, want := range cases {
		if got := Classify(err); got != want {
			t.Errorf("Classify(%v) = %s, want %s", err, got, want)
		}
	}
}

func TestExecuteStopsWhenContextCancelled(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	ex := NewExecutor(log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Execute(ctx, ex, "cancelled", Policy{MaxAttempts: 5, Delay: time.Hour},
		func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("boom")
		})
	if calls != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
