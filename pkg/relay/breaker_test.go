package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, 30*time.Second)

	require.Equal(t, BreakerClosed, b.State())
	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, BreakerClosed, b.State())

	b.RecordFailure()
	require.Equal(t, BreakerOpen, b.State())
	require.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureRun(t *testing.T) {
	b := NewCircuitBreaker(3, 30*time.Second)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	b := NewCircuitBreaker(1, 30*time.Second)
	current := time.Unix(1000, 0)
	b.now = func() time.Time { return current }

	b.RecordFailure()
	require.Equal(t, BreakerOpen, b.State())
	require.False(t, b.Allow())

	current = current.Add(31 * time.Second)
	require.Equal(t, BreakerHalfOpen, b.State())

	// Only one probe is admitted while half open.
	require.True(t, b.Allow())
	require.False(t, b.Allow())
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b := NewCircuitBreaker(1, 30*time.Second)
	current := time.Unix(1000, 0)
	b.now = func() time.Time { return current }

	b.RecordFailure()
	current = current.Add(31 * time.Second)
	require.True(t, b.Allow())

	b.RecordSuccess()
	require.Equal(t, BreakerClosed, b.State())
	require.True(t, b.Allow())
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b := NewCircuitBreaker(1, 30*time.Second)
	current := time.Unix(1000, 0)
	b.now = func() time.Time { return current }

	b.RecordFailure()
	current = current.Add(31 * time.Second)
	require.True(t, b.Allow())

	b.RecordFailure()
	require.Equal(t, BreakerOpen, b.State())
	require.False(t, b.Allow())

	// A fresh cool-down applies after the failed probe.
	current = current.Add(31 * time.Second)
	require.True(t, b.Allow())
}
