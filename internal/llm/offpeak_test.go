package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInWindow_SameDay(t *testing.T) {
	assert.True(t, inWindow(9, 8, 17))
	assert.False(t, inWindow(20, 8, 17))
}

func TestInWindow_Wraps(t *testing.T) {
	assert.True(t, inWindow(23, 22, 6))
	assert.True(t, inWindow(3, 22, 6))
	assert.False(t, inWindow(12, 22, 6))
}

func TestOffPeakScheduler_DefersNonUrgentOutsideWindow(t *testing.T) {
	s := NewOffPeakScheduler(OffPeakConfig{
		Enabled: true, Start: 1, End: 5, DeferNonUrgent: true, MaxDeferSeconds: 2,
	})
	now := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	d := s.Evaluate(now, true)

	assert.True(t, d.Deferred)
	assert.Equal(t, 2, d.WaitSeconds)
	assert.Equal(t, "outside_off_peak_window_deferred_2s", d.Reason)
}

func TestOffPeakScheduler_NeverDefersUrgent(t *testing.T) {
	s := NewOffPeakScheduler(OffPeakConfig{
		Enabled: true, Start: 1, End: 5, DeferNonUrgent: true, MaxDeferSeconds: 2,
	})
	now := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	d := s.Evaluate(now, false)

	assert.False(t, d.Deferred)
}

func TestOffPeakScheduler_NeverDefersInsideWindow(t *testing.T) {
	s := NewOffPeakScheduler(OffPeakConfig{
		Enabled: true, Start: 1, End: 5, DeferNonUrgent: true, MaxDeferSeconds: 60,
	})
	now := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)

	d := s.Evaluate(now, true)

	assert.False(t, d.Deferred)
}

func TestOffPeakScheduler_Disabled(t *testing.T) {
	s := NewOffPeakScheduler(OffPeakConfig{Enabled: false})
	now := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	d := s.Evaluate(now, true)

	assert.False(t, d.Deferred)
}
