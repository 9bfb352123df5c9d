// Package progress defines the typed progress payload that report builds
// publish and the polling UI consumes.
package progress

import "fmt"

// Progress is a snapshot of a report build's interim state. All fields except
// Message are optional; a nil pointer means "no update for this field".
type Progress struct {
	Message string `json:"message,omitempty"`

	// Scheduler state at the time of the last downstream call.
	WaitMs              *int64 `json:"waitMs,omitempty"`
	QueueAhead          *int   `json:"queueAhead,omitempty"`
	ExtraQueuedRequests *int   `json:"extraQueuedRequests,omitempty"`

	// Build-level estimates.
	EstimatedTotalRequests *int    `json:"estimatedTotalRequests,omitempty"`
	RemainingSources       *int    `json:"remainingSources,omitempty"`
	SourceIdent            *string `json:"sourceIdent,omitempty"`

	// Advisory quota state.
	HourlyRemaining    *int   `json:"hourlyRemaining,omitempty"`
	HourlyResetSeconds *int64 `json:"hourlyResetSeconds,omitempty"`
	DailyRemaining     *int   `json:"dailyRemaining,omitempty"`
	DailyResetSeconds  *int64 `json:"dailyResetSeconds,omitempty"`
}

// Sink receives progress patches. The job cache's Job type implements Sink;
// tests use in-memory recorders.
type Sink interface {
	UpdateProgress(patch Progress)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(patch Progress)

// UpdateProgress calls f(patch).
func (f SinkFunc) UpdateProgress(patch Progress) { f(patch) }

// Merge applies patch on top of p. Only non-empty Message and non-nil pointer
// fields overwrite; everything else is preserved.
func (p *Progress) Merge(patch Progress) {
	if patch.Message != "" {
		p.Message = patch.Message
	}
	if patch.WaitMs != nil {
		p.WaitMs = patch.WaitMs
	}
	if patch.QueueAhead != nil {
		p.QueueAhead = patch.QueueAhead
	}
	if patch.ExtraQueuedRequests != nil {
		p.ExtraQueuedRequests = patch.ExtraQueuedRequests
	}
	if patch.EstimatedTotalRequests != nil {
		p.EstimatedTotalRequests = patch.EstimatedTotalRequests
	}
	if patch.RemainingSources != nil {
		p.RemainingSources = patch.RemainingSources
	}
	if patch.SourceIdent != nil {
		p.SourceIdent = patch.SourceIdent
	}
	if patch.HourlyRemaining != nil {
		p.HourlyRemaining = patch.HourlyRemaining
	}
	if patch.HourlyResetSeconds != nil {
		p.HourlyResetSeconds = patch.HourlyResetSeconds
	}
	if patch.DailyRemaining != nil {
		p.DailyRemaining = patch.DailyRemaining
	}
	if patch.DailyResetSeconds != nil {
		p.DailyResetSeconds = patch.DailyResetSeconds
	}
}

// String renders a short human-readable summary for CLI display.
func (p Progress) String() string {
	s := p.Message
	if p.RemainingSources != nil {
		s = fmt.Sprintf("%s [%d sources left]", s, *p.RemainingSources)
	}
	if p.WaitMs != nil && *p.WaitMs > 0 {
		s = fmt.Sprintf("%s, next slot in ~%dms", s, *p.WaitMs)
	}
	return s
}

// Int returns a pointer to v. Convenience for building patches.
func Int(v int) *int { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Str returns a pointer to v.
func Str(v string) *string { return &v }
