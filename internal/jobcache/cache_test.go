package jobcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/VasulenkoIllia/Google-ADS/internal/progress"
)

// waitStatus polls until the job leaves pending or the deadline passes.
func waitStatus(t *testing.T, j *Job, timeout time.Duration) Status {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s := j.Status(); s != StatusPending {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s still pending after %v", j.Key(), timeout)
	return StatusPending
}

// TestKeyOrderIndependent verifies source order does not change the key.
func TestKeyOrderIndependent(t *testing.T) {
	a := Key("2025-01-01", "2025-01-31", []string{"3", "1", "2"})
	b := Key("2025-01-01", "2025-01-31", []string{"1", "2", "3"})
	if a != b {
		t.Errorf("keys differ for reordered sources: %q vs %q", a, b)
	}
}

// TestKeyDistinguishesParams verifies different dates or sources produce
// different keys.
func TestKeyDistinguishesParams(t *testing.T) {
	base := Key("2025-01-01", "2025-01-31", []string{"1", "2"})
	if got := Key("2025-01-01", "2025-02-28", []string{"1", "2"}); got == base {
		t.Error("key unchanged for a different end date")
	}
	if got := Key("2025-01-01", "2025-01-31", []string{"1"}); got == base {
		t.Error("key unchanged for a different source set")
	}
}

// TestKeyDoesNotMutateInput verifies the sort happens on a copy.
func TestKeyDoesNotMutateInput(t *testing.T) {
	ids := []string{"3", "1", "2"}
	Key("2025-01-01", "2025-01-31", ids)
	if ids[0] != "3" || ids[1] != "1" || ids[2] != "2" {
		t.Errorf("source slice mutated: %v", ids)
	}
}

// TestSingleFlight verifies concurrent callers of the same key share one Job
// and the builder runs exactly once.
func TestSingleFlight(t *testing.T) {
	c := New(time.Hour, time.Minute, nil)

	var builds int32
	builder := func(ctx context.Context, job *Job) (interface{}, error) {
		atomic.AddInt32(&builds, 1)
		time.Sleep(100 * time.Millisecond)
		return "report", nil
	}

	const callers = 8
	jobs := make([]*Job, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobs[i] = c.GetOrCreate(context.Background(), "k", builder)
		}()
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if jobs[i] != jobs[0] {
			t.Fatal("concurrent callers received different Jobs for the same key")
		}
	}

	waitStatus(t, jobs[0], time.Second)
	if got := atomic.LoadInt32(&builds); got != 1 {
		t.Errorf("builder ran %d times, want 1", got)
	}
	result, ok := jobs[0].Result()
	if !ok || result != "report" {
		t.Errorf("Result() = (%v, %v), want (report, true)", result, ok)
	}
}

// TestBuilderErrorCaptured verifies a failing builder lands the Job in the
// error state with the error retained.
func TestBuilderErrorCaptured(t *testing.T) {
	c := New(time.Hour, time.Minute, nil)

	want := errors.New("source unavailable")
	j := c.GetOrCreate(context.Background(), "k", func(ctx context.Context, job *Job) (interface{}, error) {
		return nil, want
	})

	if got := waitStatus(t, j, time.Second); got != StatusError {
		t.Fatalf("status = %s, want error", got)
	}
	if !errors.Is(j.Err(), want) {
		t.Errorf("Err() = %v, want %v", j.Err(), want)
	}
}

// TestBuilderPanicCaptured verifies a panicking builder becomes the Job's
// error instead of crashing the process.
func TestBuilderPanicCaptured(t *testing.T) {
	c := New(time.Hour, time.Minute, nil)

	j := c.GetOrCreate(context.Background(), "k", func(ctx context.Context, job *Job) (interface{}, error) {
		panic("nil map write")
	})

	if got := waitStatus(t, j, time.Second); got != StatusError {
		t.Fatalf("status = %s, want error", got)
	}
	if j.Err() == nil {
		t.Error("Err() = nil after builder panic")
	}
}

// TestSuccessTTLRebuild verifies a ready Job older than successTTL is
// replaced by a fresh build.
func TestSuccessTTLRebuild(t *testing.T) {
	c := New(50*time.Millisecond, 20*time.Millisecond, nil)

	var builds int32
	builder := func(ctx context.Context, job *Job) (interface{}, error) {
		atomic.AddInt32(&builds, 1)
		return "r", nil
	}

	first := c.GetOrCreate(context.Background(), "k", builder)
	waitStatus(t, first, time.Second)

	// Within TTL: same Job, no rebuild.
	if again := c.GetOrCreate(context.Background(), "k", builder); again != first {
		t.Error("fresh entry was not reused within successTTL")
	}

	time.Sleep(120 * time.Millisecond)

	second := c.GetOrCreate(context.Background(), "k", builder)
	if second == first {
		t.Fatal("stale entry was served after successTTL")
	}
	waitStatus(t, second, time.Second)
	if got := atomic.LoadInt32(&builds); got != 2 {
		t.Errorf("builder ran %d times, want 2", got)
	}
}

// TestErrorTTLShorterThanSuccess verifies a failed Job is retried after the
// short errorTTL while a success with the same age would still be cached.
func TestErrorTTLShorterThanSuccess(t *testing.T) {
	c := New(time.Hour, 30*time.Millisecond, nil)

	var builds int32
	builder := func(ctx context.Context, job *Job) (interface{}, error) {
		if atomic.AddInt32(&builds, 1) == 1 {
			return nil, errors.New("transient")
		}
		return "r", nil
	}

	first := c.GetOrCreate(context.Background(), "k", builder)
	if got := waitStatus(t, first, time.Second); got != StatusError {
		t.Fatalf("status = %s, want error", got)
	}

	time.Sleep(80 * time.Millisecond)

	second := c.GetOrCreate(context.Background(), "k", builder)
	if second == first {
		t.Fatal("failed entry still served after errorTTL")
	}
	if got := waitStatus(t, second, time.Second); got != StatusReady {
		t.Fatalf("rebuild status = %s, want ready", got)
	}
}

// TestEvictionRemovesEntry verifies the armed timer eventually deletes the
// stale entry from the map.
func TestEvictionRemovesEntry(t *testing.T) {
	c := New(40*time.Millisecond, 20*time.Millisecond, nil)

	j := c.GetOrCreate(context.Background(), "k", func(ctx context.Context, job *Job) (interface{}, error) {
		return "r", nil
	})
	waitStatus(t, j, time.Second)

	if _, ok := c.Get("k"); !ok {
		t.Fatal("fresh entry not found via Get")
	}

	deadline := time.Now().Add(time.Second)
	for c.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.Len() != 0 {
		t.Errorf("cache still holds %d entries after TTL eviction", c.Len())
	}
}

// TestUpdateProgressWhilePending verifies progress patches merge into the
// pending Job and stop applying after the terminal transition.
func TestUpdateProgressWhilePending(t *testing.T) {
	j := newJob("k", time.Now())

	j.UpdateProgress(progress.Progress{Message: "warming up", WaitMs: progress.Int64(2500)})
	j.UpdateProgress(progress.Progress{QueueAhead: progress.Int(4)})

	snap := j.Snapshot()
	if snap.Progress.Message != "warming up" {
		t.Errorf("Message = %q, want warming up", snap.Progress.Message)
	}
	if snap.Progress.QueueAhead == nil || *snap.Progress.QueueAhead != 4 {
		t.Errorf("QueueAhead = %v, want 4", snap.Progress.QueueAhead)
	}
	if snap.WaitHint != 2500*time.Millisecond {
		t.Errorf("WaitHint = %v, want 2.5s", snap.WaitHint)
	}

	j.complete("r")
	j.UpdateProgress(progress.Progress{Message: "late patch"})
	if got := j.Snapshot().Progress.Message; got != "warming up" {
		t.Errorf("Message after terminal = %q, progress mutated post-completion", got)
	}
}

// TestTerminalTransitionIsSingle verifies only the first complete/fail wins.
func TestTerminalTransitionIsSingle(t *testing.T) {
	j := newJob("k", time.Now())

	if !j.complete("first") {
		t.Fatal("first complete() = false")
	}
	if j.complete("second") {
		t.Error("second complete() = true, want no-op")
	}
	if j.fail(errors.New("late")) {
		t.Error("fail() after complete() = true, want no-op")
	}
	result, _ := j.Result()
	if result != "first" {
		t.Errorf("Result() = %v, want first", result)
	}
}
