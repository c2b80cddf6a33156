package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/doai-fleet/farmctl/internal/taskproto"
)

func TestCalculateWatchDurationWithinBounds(t *testing.T) {
	params := taskproto.JobParams{DurationSec: 100, DurationMinPct: 30, DurationMaxPct: 90}
	for i := 0; i < 200; i++ {
		d := calculateWatchDuration(params)
		require.GreaterOrEqual(t, d.Seconds(), 30.0)
		require.LessOrEqual(t, d.Seconds(), 90.0)
	}
}

func TestCalculateWatchDurationFixedWhenMinEqualsMax(t *testing.T) {
	params := taskproto.JobParams{DurationSec: 30, DurationMinPct: 50, DurationMaxPct: 50}
	d := calculateWatchDuration(params)
	require.InDelta(t, 15.0, d.Seconds(), 0.001)
}

func TestWatchOutcomeString(t *testing.T) {
	require.Equal(t, "completed", WatchCompleted.String())
	require.Equal(t, "crashed", WatchCrashed.String())
	require.Equal(t, "stalled", WatchStalled.String())
	require.Equal(t, "timed_out", WatchTimedOut.String())
}
