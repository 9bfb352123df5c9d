package jobcache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/VasulenkoIllia/Google-ADS/internal/logging"
)

// BuilderFunc produces a report for one Job. It receives the Job as its
// progress sink and returns the finished result or an error. Invoked exactly
// once per Job; panics are captured into the Job's error state.
type BuilderFunc func(ctx context.Context, job *Job) (interface{}, error)

// Cache is the single-flight, TTL-expiring store of report build Jobs.
// ErrorTTL is much shorter than SuccessTTL so a failed aggregation is
// retried promptly instead of serving a cached failure.
type Cache struct {
	mu   sync.Mutex
	jobs map[string]*Job

	successTTL time.Duration
	errorTTL   time.Duration
	log        *logging.Logger
}

// New creates a Cache. Non-positive TTLs fall back to 1h success / 2m error.
func New(successTTL, errorTTL time.Duration, log *logging.Logger) *Cache {
	if successTTL <= 0 {
		successTTL = time.Hour
	}
	if errorTTL <= 0 {
		errorTTL = 2 * time.Minute
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Cache{
		jobs:       make(map[string]*Job),
		successTTL: successTTL,
		errorTTL:   errorTTL,
		log:        log,
	}
}

// Key builds the deterministic cache key for a report request. Source IDs
// are sorted before hashing so the key is order-independent.
func Key(startDate, endDate string, sourceIDs []string) string {
	ids := append([]string(nil), sourceIDs...)
	sort.Strings(ids)
	h := sha256.Sum256([]byte(startDate + "|" + endDate + "|" + strings.Join(ids, ",")))
	return fmt.Sprintf("report|%s|%s|%x", startDate, endDate, h[:8])
}

// GetOrCreate returns the cached Job for key, or creates a fresh pending Job
// and starts builder for it. The single-flight guarantee: callers presenting
// the same key while an entry is in flight or fresh all get the same Job and
// the builder runs exactly once. A stale entry is evicted and rebuilt.
func (c *Cache) GetOrCreate(ctx context.Context, key string, builder BuilderFunc) *Job {
	now := time.Now()

	c.mu.Lock()
	if j, ok := c.jobs[key]; ok && !c.isStale(j, now) {
		c.mu.Unlock()
		return j
	}
	j := newJob(key, now)
	c.jobs[key] = j
	c.mu.Unlock()

	go c.runBuilder(ctx, j, builder)
	return j
}

// Get returns the cached Job for key without creating one. Stale entries are
// reported as absent.
func (c *Cache) Get(key string) (*Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[key]
	if !ok || c.isStale(j, time.Now()) {
		return nil, false
	}
	return j, true
}

// Len returns the number of cached entries, stale or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

// isStale reports whether j has outlived its TTL. Pending jobs never go
// stale: a build in flight is always shared. Caller holds mu.
func (c *Cache) isStale(j *Job, now time.Time) bool {
	status, age := j.terminalAge(now)
	switch status {
	case StatusReady:
		return age > c.successTTL
	case StatusError:
		return age > c.errorTTL
	default:
		return false
	}
}

// runBuilder invokes builder exactly once, wires its outcome to the Job's
// terminal transition and arms the eviction timer. A builder panic becomes
// the Job's error; it never escapes to the scheduler or other Jobs.
func (c *Cache) runBuilder(ctx context.Context, j *Job, builder BuilderFunc) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("key", j.Key()).Interface("panic", r).Msg("report builder panicked")
			if j.fail(fmt.Errorf("report builder panicked: %v", r)) {
				c.armEviction(j, c.errorTTL)
			}
		}
	}()

	result, err := builder(ctx, j)
	if err != nil {
		c.log.Warn().Str("key", j.Key()).Err(err).Msg("report build failed")
		if j.fail(err) {
			c.armEviction(j, c.errorTTL)
		}
		return
	}
	if j.complete(result) {
		c.armEviction(j, c.successTTL)
	}
}

// armEviction schedules removal of j once its TTL lapses. The timer
// re-validates under the lock that the map still holds this exact Job and
// that it is actually stale — another build may have replaced it in the
// meantime.
func (c *Cache) armEviction(j *Job, ttl time.Duration) {
	time.AfterFunc(ttl+time.Millisecond, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if current, ok := c.jobs[j.Key()]; ok && current == j && c.isStale(j, time.Now()) {
			delete(c.jobs, j.Key())
		}
	})
}
