package executionpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDoRunsTasksInOrder(t *testing.T) {
	t.Parallel()

	pool := New(Config{QueueDepth: 8})
	defer pool.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		i := i
		done, err := pool.Submit("case-order", func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-done
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 4 {
		t.Fatalf("ran %d tasks, want 4", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("single worker must preserve FIFO order, got %v", order)
		}
	}
}

func TestPerCaseCapRejectsSaturatedCase(t *testing.T) {
	t.Parallel()

	pool := New(Config{QueueDepth: 16, PerCaseLimit: 2})
	defer pool.Close()

	release := make(chan struct{})
	block := func(context.Context) error {
		<-release
		return nil
	}

	if _, err := pool.Submit("case-busy", block); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := pool.Submit("case-busy", block); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if _, err := pool.Submit("case-busy", block); !errors.Is(err, ErrCaseSaturated) {
		t.Fatalf("expected ErrCaseSaturated, got %v", err)
	}

	// Other cases are unaffected by the saturated one.
	done, err := pool.Submit("case-idle", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("independent case submit: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("independent case run: %v", err)
	}

	stats := pool.Stats()
	if stats.Rejected != 1 {
		t.Fatalf("rejected = %d, want 1", stats.Rejected)
	}
}

func TestQueueFullRejectsFast(t *testing.T) {
	t.Parallel()

	pool := New(Config{QueueDepth: 1, PerCaseLimit: 16})
	defer pool.Close()

	release := make(chan struct{})
	defer close(release)
	block := func(context.Context) error {
		<-release
		return nil
	}

	// One running, one queued.
	if _, err := pool.Submit("case-a", block); err != nil {
		t.Fatalf("running submit: %v", err)
	}
	waitForDepth(t, pool, 0)
	if _, err := pool.Submit("case-b", block); err != nil {
		t.Fatalf("queued submit: %v", err)
	}
	if _, err := pool.Submit("case-c", block); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestDoHonorsContextWhileWaiting(t *testing.T) {
	t.Parallel()

	pool := New(Config{QueueDepth: 4})
	defer pool.Close()

	release := make(chan struct{})
	defer close(release)
	if _, err := pool.Submit("case-slow", func(context.Context) error {
		<-release
		return nil
	}); err != nil {
		t.Fatalf("blocking submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Do(ctx, "case-waiter", func(context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestCloseDrainsAndRejectsNewWork(t *testing.T) {
	t.Parallel()

	pool := New(Config{QueueDepth: 8})
	var ran int
	var mu sync.Mutex
	for i := 0; i < 3; i++ {
		if _, err := pool.Submit("case-drain", func(context.Context) error {
			mu.Lock()
			ran++
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	pool.Close()

	mu.Lock()
	if ran != 3 {
		mu.Unlock()
		t.Fatalf("close drained %d tasks, want 3", ran)
	}
	mu.Unlock()

	if _, err := pool.Submit("case-late", func(context.Context) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	pool.Close() // idempotent
}

func TestTaskErrorsReachTheCaller(t *testing.T) {
	t.Parallel()

	pool := New(Config{})
	defer pool.Close()

	sentinel := errors.New("query exploded")
	err := pool.Do(context.Background(), "case-err", func(context.Context) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected task error, got %v", err)
	}
	if stats := pool.Stats(); stats.Failed != 1 {
		t.Fatalf("failed = %d, want 1", stats.Failed)
	}
}

// waitForDepth waits until the queue drains to at most depth, so tests can
// distinguish a running task from a queued one.
func waitForDepth(t *testing.T, pool *Pool, depth int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pool.Stats().Depth <= depth {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("queue depth never reached %d", depth)
}
