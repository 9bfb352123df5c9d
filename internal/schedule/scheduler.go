// Package schedule provides the sliding-window admission gate that paces all
// outbound CRM API calls. At most MaxRequests executions may start inside any
// span of length Interval; everything above that waits in a FIFO queue.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrQueueOverflow is returned by Schedule when the backlog is already at
// QueueLimit. It is never retried internally.
var ErrQueueOverflow = errors.New("scheduler queue is full")

// Config holds the admission parameters for one downstream dependency.
type Config struct {
	// MaxRequests is the number of execution starts allowed per Interval.
	MaxRequests int

	// Interval is the length of the sliding window.
	Interval time.Duration

	// QueueLimit caps the backlog; Schedule rejects beyond it.
	QueueLimit int

	// OnDelay, if set, is invoked once per armed cooldown timer with the
	// wait duration and the current queue length. Panics from the hook are
	// caught and logged so they cannot abort dispatch.
	OnDelay func(wait time.Duration, queueLen int)
}

type task struct {
	ctx  context.Context
	run  func(context.Context) error
	done chan error
}

// Scheduler is a FIFO admission gate over a sliding window. All state is
// guarded by a single mutex; admitted tasks run on their own goroutines and
// re-trigger dispatch on completion.
type Scheduler struct {
	mu  sync.Mutex
	cfg Config

	queue    []*task
	starts   []time.Time // execution-start timestamps inside the window
	inflight int

	// Cooldown state machine: idle (timerArmed=false) or cooling down with
	// exactly one pending timer. Never two timers at once.
	timerArmed  bool
	coolingDown bool
}

// New creates a Scheduler. Non-positive config values fall back to safe
// minimums; callers normally pass values already validated by the config
// layer.
func New(cfg Config) *Scheduler {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = 1
	}
	return &Scheduler{cfg: cfg}
}

// Schedule enqueues fn and blocks until it has run or ctx is done. Rejects
// immediately with ErrQueueOverflow when the backlog is full. A task that was
// accepted is never withdrawn: if ctx is cancelled while waiting, Schedule
// returns ctx.Err() but the task still executes when its turn comes and its
// outcome is discarded.
func (s *Scheduler) Schedule(ctx context.Context, fn func(context.Context) error) error {
	s.mu.Lock()
	if len(s.queue) >= s.cfg.QueueLimit {
		n := len(s.queue)
		s.mu.Unlock()
		return fmt.Errorf("%w (%d queued, limit %d)", ErrQueueOverflow, n, s.cfg.QueueLimit)
	}
	t := &task{ctx: ctx, run: fn, done: make(chan error, 1)}
	s.queue = append(s.queue, t)
	s.mu.Unlock()

	s.dispatch()

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch drains all capacity currently available in the window. It is
// invoked after every enqueue, every completed execution and every cooldown
// timer expiry. Safe to call from any goroutine.
func (s *Scheduler) dispatch() {
	for {
		s.mu.Lock()
		now := time.Now()
		s.prune(now)

		if len(s.queue) == 0 {
			if s.inflight == 0 && !s.timerArmed {
				s.coolingDown = false
			}
			s.mu.Unlock()
			return
		}

		if len(s.starts) < s.cfg.MaxRequests {
			t := s.queue[0]
			s.queue = s.queue[1:]
			s.starts = append(s.starts, now)
			s.inflight++
			s.coolingDown = false
			s.mu.Unlock()
			go s.runTask(t)
			continue
		}

		// Window full. The oldest timestamp decides when a slot frees up.
		wait := s.cfg.Interval - now.Sub(s.starts[0])
		if wait <= 0 {
			s.starts = s.starts[1:]
			s.mu.Unlock()
			continue
		}

		if s.timerArmed {
			s.mu.Unlock()
			return
		}
		s.timerArmed = true
		s.coolingDown = true
		queueLen := len(s.queue)
		hook := s.cfg.OnDelay
		time.AfterFunc(wait, s.onCooldownExpired)
		s.mu.Unlock()

		s.notifyDelay(hook, wait, queueLen)
		return
	}
}

func (s *Scheduler) onCooldownExpired() {
	s.mu.Lock()
	s.timerArmed = false
	s.mu.Unlock()
	s.dispatch()
}

func (s *Scheduler) runTask(t *task) {
	err := t.run(t.ctx)
	t.done <- err

	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
	s.dispatch()
}

// notifyDelay invokes the OnDelay hook, swallowing panics so a broken
// observability callback cannot take down the dispatch loop.
func (s *Scheduler) notifyDelay(hook func(time.Duration, int), wait time.Duration, queueLen int) {
	if hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler OnDelay hook panicked (ignored): %v", r)
		}
	}()
	hook(wait, queueLen)
}

// prune drops timestamps that have left the sliding window. Caller holds mu.
func (s *Scheduler) prune(now time.Time) {
	cutoff := now.Add(-s.cfg.Interval)
	i := 0
	for i < len(s.starts) && !s.starts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.starts = s.starts[i:]
	}
}

// QueueLen returns the current backlog length.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// CoolingDown reports whether the scheduler is waiting out a full window.
func (s *Scheduler) CoolingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coolingDown
}

// WaitForAll blocks until the queue is empty, nothing is in flight and no
// cooldown timer is pending. A drain barrier for callers that need a later
// quota read to see the scheduler idle.
func (s *Scheduler) WaitForAll(ctx context.Context) error {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		idle := len(s.queue) == 0 && s.inflight == 0 && !s.timerArmed
		s.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
