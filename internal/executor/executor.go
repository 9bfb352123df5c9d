// Package executor wraps a single downstream CRM call with scheduler
// admission, quota accounting, progress emission and bounded retry.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/VasulenkoIllia/Google-ADS/internal/crm"
	"github.com/VasulenkoIllia/Google-ADS/internal/logging"
	"github.com/VasulenkoIllia/Google-ADS/internal/progress"
	"github.com/VasulenkoIllia/Google-ADS/internal/quota"
	"github.com/VasulenkoIllia/Google-ADS/internal/schedule"
)

// RetryExhaustedError is returned after MaxAttempts failed attempts. The
// final attempt's error is wrapped and available via errors.Unwrap.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("call failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// RetryNotice records that at least one retry happened since the last
// TakeRetryNotice. An upstream caller consumes it exactly once to surface a
// cooldown notice without re-deriving it from individual call outcomes.
type RetryNotice struct {
	Retries      int
	LargestDelay time.Duration
	LastError    string
}

// Options configures an Executor. Zero values fall back to the documented
// defaults.
type Options struct {
	// MaxAttempts bounds the total attempts per call (default 3).
	MaxAttempts int

	// BaseDelay seeds the exponential backoff (default 5s).
	BaseDelay time.Duration

	// MaxDelay caps any single backoff, server hints included. Wired to the
	// scheduler's window interval (default 1m).
	MaxDelay time.Duration
}

// Executor executes downstream calls through the scheduler, recording quota
// usage and retrying transient failures with bounded exponential backoff.
type Executor struct {
	sched *schedule.Scheduler
	quota *quota.Tracker
	opts  Options
	log   *logging.Logger

	noticeMu sync.Mutex
	notice   *RetryNotice
}

// New creates an Executor over the given scheduler and quota tracker.
func New(sched *schedule.Scheduler, tracker *quota.Tracker, opts Options, log *logging.Logger) *Executor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 5 * time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = time.Minute
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Executor{sched: sched, quota: tracker, opts: opts, log: log}
}

// Execute runs call through scheduler admission, retrying transient failures.
// Queue overflow and terminal upstream errors propagate immediately; 429/5xx
// and transport errors are retried up to MaxAttempts with backoff honoring a
// server Retry-After hint. Progress is emitted to sink before and after each
// attempt (sink may be nil).
func (e *Executor) Execute(ctx context.Context, call func(context.Context) error, sink progress.Sink) error {
	var lastErr error

	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		e.emitPreCall(sink, attempt)

		err := e.sched.Schedule(ctx, call)
		if err == nil {
			e.quota.NoteRequest(time.Now())
			e.emitPostCall(sink)
			return nil
		}
		lastErr = err

		// Overflow is a local capacity decision, never retried internally.
		if errors.Is(err, schedule.ErrQueueOverflow) {
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if !crm.IsRetryable(err) {
			return err
		}
		if attempt == e.opts.MaxAttempts {
			break
		}

		delay := e.backoffDelay(attempt, err)
		e.recordRetry(delay, err)
		e.log.Warn().
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(err).
			Msg("retrying CRM call")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return &RetryExhaustedError{Attempts: e.opts.MaxAttempts, Last: lastErr}
}

// ExecuteValue runs a value-returning call through e. Same admission, quota
// and retry semantics as Execute; the zero value of T accompanies any error.
func ExecuteValue[T any](ctx context.Context, e *Executor, call func(context.Context) (T, error), sink progress.Sink) (T, error) {
	var out T
	err := e.Execute(ctx, func(ctx context.Context) error {
		v, err := call(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, sink)
	return out, err
}

// backoffDelay computes the wait before the next attempt:
// max(1s, min(serverRetryAfter ?? base*2^(attempt-1), maxDelay)).
// A parseable server hint always replaces the exponential term.
func (e *Executor) backoffDelay(attempt int, err error) time.Duration {
	d := e.opts.BaseDelay << uint(attempt-1)
	if hint, ok := crm.RetryAfterHint(err); ok {
		d = hint
	}
	if d > e.opts.MaxDelay {
		d = e.opts.MaxDelay
	}
	if d < time.Second {
		d = time.Second
	}
	return d
}

func (e *Executor) recordRetry(delay time.Duration, err error) {
	e.noticeMu.Lock()
	defer e.noticeMu.Unlock()
	if e.notice == nil {
		e.notice = &RetryNotice{}
	}
	e.notice.Retries++
	if delay > e.notice.LargestDelay {
		e.notice.LargestDelay = delay
	}
	e.notice.LastError = err.Error()
}

// TakeRetryNotice returns and clears the pending retry notice, if any.
// Consume-once: a second call returns false until another retry happens.
func (e *Executor) TakeRetryNotice() (RetryNotice, bool) {
	e.noticeMu.Lock()
	defer e.noticeMu.Unlock()
	if e.notice == nil {
		return RetryNotice{}, false
	}
	n := *e.notice
	e.notice = nil
	return n, true
}

func (e *Executor) emitPreCall(sink progress.Sink, attempt int) {
	if sink == nil {
		return
	}
	now := time.Now()
	est := e.sched.EstimateWait(0)
	hourly := e.quota.HourlyStats(now)
	daily := e.quota.DailyStats(now)

	msg := "calling CRM API"
	if attempt > 1 {
		msg = fmt.Sprintf("calling CRM API (attempt %d)", attempt)
	}
	sink.UpdateProgress(progress.Progress{
		Message:            msg,
		WaitMs:             progress.Int64(est.Wait.Milliseconds()),
		QueueAhead:         progress.Int(est.QueueAhead),
		HourlyRemaining:    progress.Int(hourly.Remaining),
		HourlyResetSeconds: progress.Int64(int64(hourly.ResetIn.Seconds())),
		DailyRemaining:     progress.Int(daily.Remaining),
		DailyResetSeconds:  progress.Int64(int64(daily.ResetIn.Seconds())),
	})
}

func (e *Executor) emitPostCall(sink progress.Sink) {
	if sink == nil {
		return
	}
	now := time.Now()
	hourly := e.quota.HourlyStats(now)
	daily := e.quota.DailyStats(now)
	sink.UpdateProgress(progress.Progress{
		Message:            "CRM call completed",
		HourlyRemaining:    progress.Int(hourly.Remaining),
		HourlyResetSeconds: progress.Int64(int64(hourly.ResetIn.Seconds())),
		DailyRemaining:     progress.Int(daily.Remaining),
		DailyResetSeconds:  progress.Int64(int64(daily.ResetIn.Seconds())),
	})
}
