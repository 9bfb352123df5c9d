package quota

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad test time %q: %v", value, err)
	}
	return ts
}

// TestNoteRequestIncrementsBothWindows verifies one call counts against the
// hourly and the daily window.
func TestNoteRequestIncrementsBothWindows(t *testing.T) {
	tr := New(200, 2000, time.UTC)
	now := mustTime(t, "2025-03-10T14:30:00Z")

	hourly, daily := tr.NoteRequest(now)

	if hourly.Used != 1 || hourly.Remaining != 199 {
		t.Errorf("hourly = %d used / %d remaining, want 1/199", hourly.Used, hourly.Remaining)
	}
	if daily.Used != 1 || daily.Remaining != 1999 {
		t.Errorf("daily = %d used / %d remaining, want 1/1999", daily.Used, daily.Remaining)
	}
}

// TestResetAtAlignment verifies the reset instants align to the next hour and
// next midnight.
func TestResetAtAlignment(t *testing.T) {
	tr := New(200, 2000, time.UTC)
	now := mustTime(t, "2025-03-10T14:30:00Z")
	tr.NoteRequest(now)

	hourly := tr.HourlyStats(now)
	daily := tr.DailyStats(now)

	if want := mustTime(t, "2025-03-10T15:00:00Z"); !hourly.ResetAt.Equal(want) {
		t.Errorf("hourly ResetAt = %v, want %v", hourly.ResetAt, want)
	}
	if hourly.ResetIn != 30*time.Minute {
		t.Errorf("hourly ResetIn = %v, want 30m", hourly.ResetIn)
	}
	if want := mustTime(t, "2025-03-11T00:00:00Z"); !daily.ResetAt.Equal(want) {
		t.Errorf("daily ResetAt = %v, want %v", daily.ResetAt, want)
	}
	if daily.ResetIn != 9*time.Hour+30*time.Minute {
		t.Errorf("daily ResetIn = %v, want 9h30m", daily.ResetIn)
	}
}

// TestHourBoundaryResetsHourlyOnly verifies crossing the hour resets the
// hourly count while the daily count carries over.
func TestHourBoundaryResetsHourlyOnly(t *testing.T) {
	tr := New(200, 2000, time.UTC)

	before := mustTime(t, "2025-03-10T14:59:00Z")
	for i := 0; i < 5; i++ {
		tr.NoteRequest(before)
	}

	after := mustTime(t, "2025-03-10T15:01:00Z")
	hourly := tr.HourlyStats(after)
	daily := tr.DailyStats(after)

	if hourly.Used != 0 {
		t.Errorf("hourly Used after boundary = %d, want 0", hourly.Used)
	}
	if daily.Used != 5 {
		t.Errorf("daily Used after hour boundary = %d, want 5", daily.Used)
	}
}

// TestDayBoundaryResetsBoth verifies crossing midnight resets both windows.
func TestDayBoundaryResetsBoth(t *testing.T) {
	tr := New(200, 2000, time.UTC)

	tr.NoteRequest(mustTime(t, "2025-03-10T23:59:00Z"))
	after := mustTime(t, "2025-03-11T00:01:00Z")

	if got := tr.HourlyStats(after).Used; got != 0 {
		t.Errorf("hourly Used after midnight = %d, want 0", got)
	}
	if got := tr.DailyStats(after).Used; got != 0 {
		t.Errorf("daily Used after midnight = %d, want 0", got)
	}
}

// TestDayBoundaryUsesLocation verifies the daily window aligns to midnight in
// the configured location, not UTC.
func TestDayBoundaryUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	tr := New(200, 2000, loc)

	// 22:30 UTC on the 10th is 01:30 on the 11th in UTC+3.
	tr.NoteRequest(mustTime(t, "2025-03-10T22:30:00Z"))

	daily := tr.DailyStats(mustTime(t, "2025-03-10T22:30:00Z"))
	want := time.Date(2025, 3, 12, 0, 0, 0, 0, loc)
	if !daily.ResetAt.Equal(want) {
		t.Errorf("daily ResetAt = %v, want %v", daily.ResetAt, want)
	}
	if daily.Used != 1 {
		t.Errorf("daily Used = %d, want 1", daily.Used)
	}
}

// TestRemainingNeverNegative verifies exceeding the limit clamps at zero
// remaining instead of going negative.
func TestRemainingNeverNegative(t *testing.T) {
	tr := New(3, 100, time.UTC)
	now := mustTime(t, "2025-03-10T14:00:00Z")

	for i := 0; i < 5; i++ {
		tr.NoteRequest(now)
	}

	hourly := tr.HourlyStats(now)
	if hourly.Used != 3 {
		t.Errorf("hourly Used = %d, want clamped to limit 3", hourly.Used)
	}
	if hourly.Remaining != 0 {
		t.Errorf("hourly Remaining = %d, want 0", hourly.Remaining)
	}
}

// TestNonPositiveLimitsFallBack verifies constructor defaults.
func TestNonPositiveLimitsFallBack(t *testing.T) {
	tr := New(0, -5, nil)
	now := mustTime(t, "2025-03-10T14:00:00Z")

	if got := tr.HourlyStats(now).Limit; got != 1 {
		t.Errorf("hourly Limit = %d, want fallback 1", got)
	}
	if got := tr.DailyStats(now).Limit; got != 1 {
		t.Errorf("daily Limit = %d, want fallback 1", got)
	}
}
