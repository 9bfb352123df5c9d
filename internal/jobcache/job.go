// Package jobcache deduplicates expensive report builds: one in-flight build
// per normalized parameter key, with the finished Job cached for a TTL.
package jobcache

import (
	"sync"
	"time"

	"github.com/VasulenkoIllia/Google-ADS/internal/progress"
)

// Status is a Job's lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Job tracks one report build from creation to eviction. Exactly one
// pending→ready or pending→error transition; terminal state is retained
// until the cache evicts the entry. Owned by the Cache: only the builder's
// progress callback and the cache's finalize step mutate it.
type Job struct {
	mu        sync.Mutex
	key       string
	status    Status
	createdAt time.Time
	updatedAt time.Time
	progress  progress.Progress
	waitHint  time.Duration
	result    interface{}
	err       error
}

// Snapshot is a consistent read-only copy of a Job for the polling layer.
type Snapshot struct {
	Key       string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	Progress  progress.Progress
	WaitHint  time.Duration
	Result    interface{}
	Err       error
}

func newJob(key string, now time.Time) *Job {
	return &Job{
		key:       key,
		status:    StatusPending,
		createdAt: now,
		updatedAt: now,
	}
}

// Key returns the normalized parameter key this Job was created under.
func (j *Job) Key() string { return j.key }

// Status returns the current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Snapshot returns a copy of the Job's visible state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		Key:       j.key,
		Status:    j.status,
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
		Progress:  j.progress,
		WaitHint:  j.waitHint,
		Result:    j.result,
		Err:       j.err,
	}
}

// Result returns the build output once the Job is ready.
func (j *Job) Result() (interface{}, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusReady {
		return nil, false
	}
	return j.result, true
}

// Err returns the build error once the Job is in the error state.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusError {
		return nil
	}
	return j.err
}

// UpdateProgress merges patch into the Job's progress and refreshes
// updatedAt. Implements progress.Sink; the builder calls it to report
// interim status for the polling layer. A WaitMs in the patch also refreshes
// the Retry-After hint.
func (j *Job) UpdateProgress(patch progress.Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending {
		return
	}
	j.progress.Merge(patch)
	if patch.WaitMs != nil {
		j.waitHint = time.Duration(*patch.WaitMs) * time.Millisecond
	}
	j.updatedAt = time.Now()
}

// complete transitions pending→ready. Subsequent calls are no-ops.
func (j *Job) complete(result interface{}) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending {
		return false
	}
	j.status = StatusReady
	j.result = result
	j.updatedAt = time.Now()
	return true
}

// fail transitions pending→error. Subsequent calls are no-ops.
func (j *Job) fail(err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending {
		return false
	}
	j.status = StatusError
	j.err = err
	j.updatedAt = time.Now()
	return true
}

// terminalAge returns the Job's status and time since its last update.
func (j *Job) terminalAge(now time.Time) (Status, time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status, now.Sub(j.updatedAt)
}
