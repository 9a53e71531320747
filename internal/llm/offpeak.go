package llm

import (
	"fmt"
	"time"
)

// OffPeakConfig configures the deferral window. Start/End are hours in
// [0,24); the window wraps around midnight when Start > End (e.g.
// Start=22, End=6 means "22:00 through 05:59").
type OffPeakConfig struct {
	Enabled         bool
	Start           int
	End             int
	DeferNonUrgent  bool
	MaxDeferSeconds int
}

// OffPeakScheduler gates non-urgent LLM calls to the configured window.
type OffPeakScheduler struct {
	cfg OffPeakConfig
}

func NewOffPeakScheduler(cfg OffPeakConfig) *OffPeakScheduler {
	return &OffPeakScheduler{cfg: cfg}
}

// inWindow reports whether hour lies in [start, end), accounting for a
// window that wraps past midnight.
func inWindow(hour, start, end int) bool {
	if start == end {
		return true // a zero-width window is interpreted as "always on"
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// nextWindowStart returns the first wall-clock instant strictly after now
// at which the configured window's start hour begins.
func nextWindowStart(now time.Time, startHour int) time.Time {
	start := time.Date(now.Year(), now.Month(), now.Day(), startHour, 0, 0, 0, now.Location())
	if !start.After(now) {
		start = start.AddDate(0, 0, 1)
	}
	return start
}

// Evaluate decides whether a call placed at now should be deferred. A
// non-urgent call made outside the window is delayed by
// min(seconds_until_start, max_defer_seconds); urgent calls and calls
// already inside the window are never deferred.
func (s *OffPeakScheduler) Evaluate(now time.Time, nonUrgent bool) OffPeakDecision {
	if !s.cfg.Enabled || !s.cfg.DeferNonUrgent || !nonUrgent {
		return OffPeakDecision{}
	}
	if inWindow(now.Hour(), s.cfg.Start, s.cfg.End) {
		return OffPeakDecision{}
	}

	next := nextWindowStart(now, s.cfg.Start)
	secondsUntilStart := int(next.Sub(now).Seconds())

	wait := secondsUntilStart
	if s.cfg.MaxDeferSeconds > 0 && wait > s.cfg.MaxDeferSeconds {
		wait = s.cfg.MaxDeferSeconds
	}

	return OffPeakDecision{
		Deferred:     true,
		WaitSeconds:  wait,
		Reason:       fmt.Sprintf("outside_off_peak_window_deferred_%ds", wait),
		NextWindowAt: next.Unix(),
	}
}
