package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestLimiter(maxConcurrent int, minTime time.Duration) *Limiter {
	return New(Config{
		Logger: zap.NewNop(),
		Classes: map[Class]ClassConfig{
			ClassCLOB: {MaxConcurrent: maxConcurrent, MinTime: minTime},
		},
	})
}

func TestExecute_RunsFunction(t *testing.T) {
	l := newTestLimiter(1, 0)

	ran := false
	err := l.Execute(context.Background(), ClassCLOB, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !ran {
		t.Error("fn was not invoked")
	}
}

func TestExecute_UnknownClass(t *testing.T) {
	l := newTestLimiter(1, 0)

	err := l.Execute(context.Background(), Class("bogus"), func(ctx context.Context) error {
		return nil
	})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown class")
	}
}

func TestExecute_PropagatesError(t *testing.T) {
	l := newTestLimiter(1, 0)

	sentinel := errors.New("boom")
	err := l.Execute(context.Background(), ClassCLOB, func(ctx context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("Execute() error = %v, want sentinel", err)
	}
}

func TestExecute_ErrorReleasesSlot(t *testing.T) {
	l := newTestLimiter(1, 0)

	_ = l.Execute(context.Background(), ClassCLOB, func(ctx context.Context) error {
		return errors.New("boom")
	})

	done := make(chan struct{})
	go func() {
		_ = l.Execute(context.Background(), ClassCLOB, func(ctx context.Context) error {
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("slot was not released after fn error")
	}
}

func TestExecute_MaxConcurrent(t *testing.T) {
	l := newTestLimiter(2, 0)

	var inFlight, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Execute(context.Background(), ClassCLOB, func(ctx context.Context) error {
				n := atomic.AddInt64(&inFlight, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&peak); got > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", got)
	}
}

func TestExecute_MinTimeSpacing(t *testing.T) {
	const spacing = 50 * time.Millisecond
	l := newTestLimiter(4, spacing)

	var mu sync.Mutex
	var starts []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Execute(context.Background(), ClassCLOB, func(ctx context.Context) error {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := range starts {
		for j := range starts {
			if i == j {
				continue
			}
			gap := starts[i].Sub(starts[j])
			if gap < 0 {
				gap = -gap
			}
			// Allow a small scheduling tolerance.
			if gap < spacing-10*time.Millisecond {
				t.Fatalf("two starts %v apart, want >= %v", gap, spacing)
			}
		}
	}
}

func TestExecute_CancelledBeforeAcquisition(t *testing.T) {
	l := newTestLimiter(1, 0)

	release := make(chan struct{})
	go func() {
		_ = l.Execute(context.Background(), ClassCLOB, func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Execute(ctx, ClassCLOB, func(ctx context.Context) error {
		t.Error("fn must not run after cancellation")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	close(release)
}

func TestWiden_IncreasesSpacing(t *testing.T) {
	const spacing = 20 * time.Millisecond
	l := newTestLimiter(1, spacing)
	l.Widen(ClassCLOB, 3.0, time.Second)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_ = l.Execute(context.Background(), ClassCLOB, func(ctx context.Context) error {
			return nil
		})
	}
	elapsed := time.Since(start)

	// Three starts under a 3x widen need at least two widened gaps.
	if elapsed < 2*3*spacing-10*time.Millisecond {
		t.Errorf("elapsed = %v, want >= %v under widened spacing", elapsed, 2*3*spacing)
	}
}
