package beat

import (
	"math"
	"sync"
	"testing"
)

func TestTickMatchesModuloEight(t *testing.T) {
	t.Parallel()

	cycles := []uint64{0, 1, 7, 8, 9, 15, 16, 63, 1 << 40, math.MaxUint64}
	for _, c := range cycles {
		if got, want := Tick(c), c%8; got != want {
			t.Fatalf("cycle %d: expected tick %d, got %d", c, want, got)
		}
	}
}

func TestPulseFiresOnEpochBoundary(t *testing.T) {
	t.Parallel()

	for c := uint64(0); c < 64; c++ {
		want := uint64(0)
		if c%8 == 0 {
			want = 1
		}
		if got := Pulse(c); got != want {
			t.Fatalf("cycle %d: expected pulse %d, got %d", c, want, got)
		}
	}
	if Pulse(math.MaxUint64) != 0 {
		t.Fatalf("max cycle is mid-epoch and must not pulse")
	}
	if Pulse(math.MaxUint64-7) != 1 {
		t.Fatalf("expected pulse at the final epoch boundary")
	}
}

func TestEpochIndex(t *testing.T) {
	t.Parallel()

	if Epoch(0) != 0 || Epoch(7) != 0 {
		t.Fatalf("cycles 0..7 belong to epoch 0")
	}
	if Epoch(8) != 1 || Epoch(15) != 1 {
		t.Fatalf("cycles 8..15 belong to epoch 1")
	}
	if Epoch(64) != 8 {
		t.Fatalf("cycle 64 belongs to epoch 8, got %d", Epoch(64))
	}
}

func TestSchedulerIssuesUniqueMonotonicCycles(t *testing.T) {
	t.Parallel()

	scheduler := NewScheduler()
	if first := scheduler.Next(); first != 0 {
		t.Fatalf("expected first cycle 0, got %d", first)
	}

	const workers = 8
	const perWorker = 500
	results := make(chan uint64, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				results <- scheduler.Next()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint64]bool, workers*perWorker)
	for c := range results {
		if seen[c] {
			t.Fatalf("scheduler issued duplicate cycle %d", c)
		}
		seen[c] = true
	}
	if scheduler.Current() != workers*perWorker+1 {
		t.Fatalf("expected counter at %d, got %d", workers*perWorker+1, scheduler.Current())
	}
}
