package multiinstance

import (
	"sync"
	"testing"
)

func TestLaunchThenCompleteAllImpliesDone(t *testing.T) {
	t.Parallel()

	const k = 5
	tracker, err := NewTracker(k)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	if err := tracker.Launch(k); err != nil {
		t.Fatalf("launch: %v", err)
	}
	for i := 0; i < k; i++ {
		if tracker.AllDone() {
			t.Fatalf("tracker done after only %d of %d completions", i, k)
		}
		if err := tracker.CompleteOne(); err != nil {
			t.Fatalf("complete %d: %v", i, err)
		}
	}
	if !tracker.AllDone() {
		t.Fatalf("tracker must be done after %d completions", k)
	}
}

func TestNewTrackerRejectsNegativeTarget(t *testing.T) {
	t.Parallel()

	if _, err := NewTracker(-1); err == nil {
		t.Fatalf("expected negative target to fail")
	}
}

func TestLaunchBeyondSealedTargetFails(t *testing.T) {
	t.Parallel()

	tracker, err := NewTracker(2)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	if err := tracker.Launch(2); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if err := tracker.Launch(1); err == nil {
		t.Fatalf("expected launch beyond fixed target to fail")
	}
}

func TestCompleteWithoutLaunchFails(t *testing.T) {
	t.Parallel()

	tracker, err := NewTracker(1)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	if err := tracker.CompleteOne(); err == nil {
		t.Fatalf("expected completion without launch to fail")
	}
}

func TestSealFreezesRuntimeDiscoveredCount(t *testing.T) {
	t.Parallel()

	tracker, err := NewTracker(0)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	if tracker.Sealed() {
		t.Fatalf("zero-target tracker starts unsealed")
	}

	if err := tracker.Launch(2); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if err := tracker.CompleteOne(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := tracker.CompleteOne(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if tracker.AllDone() {
		t.Fatalf("unsealed tracker must not report done, more instances may launch")
	}

	if err := tracker.Launch(1); err != nil {
		t.Fatalf("launch after completions: %v", err)
	}
	tracker.Seal()
	if !tracker.Sealed() || tracker.Target() != 3 {
		t.Fatalf("seal must freeze the target at launches so far, got %d", tracker.Target())
	}
	if tracker.AllDone() {
		t.Fatalf("third instance has not completed")
	}
	if err := tracker.CompleteOne(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !tracker.AllDone() {
		t.Fatalf("sealed tracker must be done once all launched instances completed")
	}

	if err := tracker.Launch(1); err == nil {
		t.Fatalf("expected launch after seal to fail")
	}
}

func TestThreshold(t *testing.T) {
	t.Parallel()

	tracker, err := NewTracker(5)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	if err := tracker.SetThreshold(3); err != nil {
		t.Fatalf("set threshold: %v", err)
	}
	if err := tracker.Launch(5); err != nil {
		t.Fatalf("launch: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := tracker.CompleteOne(); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}
	if tracker.ThresholdReached() {
		t.Fatalf("threshold must not be reached at 2 of 3 completions")
	}
	if err := tracker.CompleteOne(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !tracker.ThresholdReached() {
		t.Fatalf("threshold of 3 must be reached at 3 completions")
	}
	if tracker.AllDone() {
		t.Fatalf("threshold does not imply all instances done")
	}
}

func TestThresholdRejectsNonPositive(t *testing.T) {
	t.Parallel()

	tracker, err := NewTracker(1)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	if err := tracker.SetThreshold(0); err == nil {
		t.Fatalf("expected zero threshold to fail")
	}
}

func TestCancelReportsRunningInstances(t *testing.T) {
	t.Parallel()

	tracker, err := NewTracker(4)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	if err := tracker.Launch(4); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if err := tracker.CompleteOne(); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if running := tracker.Cancel(); running != 3 {
		t.Fatalf("expected 3 running instances at cancel, got %d", running)
	}
	if !tracker.Cancelled() {
		t.Fatalf("tracker must report cancelled")
	}
	if err := tracker.Launch(1); err == nil {
		t.Fatalf("expected launch after cancel to fail")
	}
}

func TestConcurrentCompletions(t *testing.T) {
	t.Parallel()

	const k = 64
	tracker, err := NewTracker(k)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	if err := tracker.Launch(k); err != nil {
		t.Fatalf("launch: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tracker.CompleteOne(); err != nil {
				t.Errorf("complete: %v", err)
			}
		}()
	}
	wg.Wait()

	launched, completed := tracker.Counts()
	if launched != k || completed != k {
		t.Fatalf("expected %d/%d, got %d/%d", k, k, launched, completed)
	}
	if !tracker.AllDone() {
		t.Fatalf("tracker must be done after all concurrent completions")
	}
}

func TestRegistryIsolatesActivities(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	first, err := registry.Get("case-1", "mi-a")
	if err != nil {
		t.Fatalf("get tracker: %v", err)
	}
	again, err := registry.Get("case-1", "mi-a")
	if err != nil {
		t.Fatalf("get tracker again: %v", err)
	}
	if first != again {
		t.Fatalf("same case and activity must resolve to the same tracker")
	}

	other, err := registry.Get("case-1", "mi-b")
	if err != nil {
		t.Fatalf("get other tracker: %v", err)
	}
	if other == first {
		t.Fatalf("different activities must not share instance state")
	}

	if _, err := registry.Get("case-1", " "); err == nil {
		t.Fatalf("expected empty activity id to fail")
	}
}

func TestRegistryDropCase(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	tracker, err := registry.Get("case-1", "mi-a")
	if err != nil {
		t.Fatalf("get tracker: %v", err)
	}
	if err := tracker.Launch(1); err != nil {
		t.Fatalf("launch: %v", err)
	}

	registry.DropCase("case-1")

	fresh, err := registry.Get("case-1", "mi-a")
	if err != nil {
		t.Fatalf("get tracker after drop: %v", err)
	}
	if launched, _ := fresh.Counts(); launched != 0 {
		t.Fatalf("dropped case must start from a fresh tracker")
	}
}
