package schedule

import "time"

// Estimate describes how long a newly scheduled task would likely wait before
// starting. Advisory only: the dispatch loop never consults it, so under
// bursty concurrent scheduling the estimate can drift from the real wait.
type Estimate struct {
	// Wait is the projected delay before the hypothetical task starts.
	Wait time.Duration

	// QueueAhead is the number of tasks already queued.
	QueueAhead int

	// WindowUsed is the number of execution starts inside the current window.
	WindowUsed int

	// Capacity is the configured MaxRequests per Interval.
	Capacity int
}

// EstimateWait projects the wait for extra hypothetical tasks scheduled on
// top of the current backlog. Pure: it reads a snapshot under the lock and
// mutates nothing. Monotonically non-decreasing in extra; zero when extra is
// 0 and the window has free capacity with an empty queue.
func (s *Scheduler) EstimateWait(extra int) Estimate {
	if extra < 0 {
		extra = 0
	}

	s.mu.Lock()
	now := time.Now()
	cutoff := now.Add(-s.cfg.Interval)
	active := 0
	var oldest time.Time
	for _, ts := range s.starts {
		if ts.After(cutoff) {
			if active == 0 {
				oldest = ts
			}
			active++
		}
	}
	queueAhead := len(s.queue)
	s.mu.Unlock()

	est := Estimate{
		QueueAhead: queueAhead,
		WindowUsed: active,
		Capacity:   s.cfg.MaxRequests,
	}

	var wait time.Duration

	// Base wait: when the window is saturated, the next slot opens when the
	// oldest recorded start ages out.
	if active >= s.cfg.MaxRequests {
		if w := s.cfg.Interval - now.Sub(oldest); w > 0 {
			wait = w
		}
	}

	// Tasks already queued ahead consume whole windows in batches of
	// MaxRequests.
	wait += time.Duration(queueAhead/s.cfg.MaxRequests) * s.cfg.Interval

	// Hypothetical extras beyond what the current window plus the queued
	// batches can absorb push the start out by further whole windows.
	free := s.cfg.MaxRequests - active - queueAhead%s.cfg.MaxRequests
	if free < 0 {
		free = 0
	}
	if overflow := extra - free; overflow > 0 {
		windows := (overflow + s.cfg.MaxRequests - 1) / s.cfg.MaxRequests
		wait += time.Duration(windows) * s.cfg.Interval
	}

	est.Wait = wait
	return est
}
