// Package quota tracks advisory usage against the CRM provider's hourly and
// daily quotas. Fixed windows aligned to the hour/day boundary, reset
// wholesale when the clock leaves the window. Never blocks scheduling.
package quota

import (
	"sync"
	"time"
)

// Stats is a point-in-time view of one quota window.
type Stats struct {
	Limit     int           `json:"limit"`
	Used      int           `json:"used"`
	Remaining int           `json:"remaining"`
	ResetAt   time.Time     `json:"resetAt"`
	ResetIn   time.Duration `json:"resetInMs"`
}

type window struct {
	startedAt time.Time
	count     int
}

// Tracker keeps two independent fixed windows. The day boundary is computed
// in loc so "daily" matches the provider's reset clock.
type Tracker struct {
	mu          sync.Mutex
	hourlyLimit int
	dailyLimit  int
	loc         *time.Location
	hourly      window
	daily       window
}

// New creates a Tracker with the given limits. Non-positive limits fall back
// to 1. A nil location defaults to UTC.
func New(hourlyLimit, dailyLimit int, loc *time.Location) *Tracker {
	if hourlyLimit <= 0 {
		hourlyLimit = 1
	}
	if dailyLimit <= 0 {
		dailyLimit = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{hourlyLimit: hourlyLimit, dailyLimit: dailyLimit, loc: loc}
}

// NoteRequest records one completed downstream call at time now and returns
// the post-increment stats for both windows.
func (t *Tracker) NoteRequest(now time.Time) (hourly, daily Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover(now)
	t.hourly.count++
	t.daily.count++
	return t.hourlyStatsLocked(now), t.dailyStatsLocked(now)
}

// HourlyStats returns the hourly window view at time now without recording
// a request.
func (t *Tracker) HourlyStats(now time.Time) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(now)
	return t.hourlyStatsLocked(now)
}

// DailyStats returns the daily window view at time now.
func (t *Tracker) DailyStats(now time.Time) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(now)
	return t.dailyStatsLocked(now)
}

// rollover resets any window whose aligned start no longer contains now.
// Caller holds mu.
func (t *Tracker) rollover(now time.Time) {
	if h := t.hourStart(now); !h.Equal(t.hourly.startedAt) {
		t.hourly = window{startedAt: h}
	}
	if d := t.dayStart(now); !d.Equal(t.daily.startedAt) {
		t.daily = window{startedAt: d}
	}
}

func (t *Tracker) hourStart(now time.Time) time.Time {
	n := now.In(t.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), n.Hour(), 0, 0, 0, t.loc)
}

func (t *Tracker) dayStart(now time.Time) time.Time {
	n := now.In(t.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, t.loc)
}

func (t *Tracker) hourlyStatsLocked(now time.Time) Stats {
	return makeStats(t.hourlyLimit, t.hourly.count, t.hourly.startedAt.Add(time.Hour), now)
}

func (t *Tracker) dailyStatsLocked(now time.Time) Stats {
	return makeStats(t.dailyLimit, t.daily.count, t.daily.startedAt.Add(24*time.Hour), now)
}

func makeStats(limit, used int, resetAt, now time.Time) Stats {
	if used > limit {
		used = limit
	}
	if used < 0 {
		used = 0
	}
	resetIn := resetAt.Sub(now)
	if resetIn < 0 {
		resetIn = 0
	}
	return Stats{
		Limit:     limit,
		Used:      used,
		Remaining: limit - used,
		ResetAt:   resetAt,
		ResetIn:   resetIn,
	}
}
