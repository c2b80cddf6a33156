package errtax

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		msg  string
		want Code
	}{
		{"socket disconnected from remote host", ENetworkDisconnected},
		{"operation timed out", ENetworkTimeout},
		{"Too Many Requests", ENetworkRateLimit},
		{"This video is unavailable", EVideoUnavailable},
		{"The uploader has not made this video available in your country", ERegionBlocked},
		{"Sign in to confirm your age", EAgeRestricted},
		{"com.google.android.youtube has stopped", EAppCrash},
		{"screen is locked", EScreenLocked},
		{"something unrecognized entirely", EUnknown},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Classify(errors.New(c.msg)), c.msg)
	}
}

func TestHandleNonRetryableAlwaysFails(t *testing.T) {
	for _, code := range []Code{EVideoUnavailable, ERegionBlocked, EMemoryLow, EBatteryLow} {
		d := Handle(code, 0)
		require.Equal(t, ActionFail, d.Action, code)
	}
}

func TestHandleExhaustedRetriesFails(t *testing.T) {
	d := Handle(EPlaybackStalled, MaxRetry)
	require.Equal(t, ActionFail, d.Action)
}

func TestHandleSpecificCodes(t *testing.T) {
	require.Equal(t, ActionWaitNetwork, Handle(ENetworkDisconnected, 0).Action)
	require.Equal(t, ActionRestartApp, Handle(EAppCrash, 0).Action)
	require.Equal(t, ActionUnlock, Handle(EScreenLocked, 0).Action)
	require.Equal(t, ActionFail, Handle(ESessionExpired, 0).Action)
}

func TestHandleRetryBackoffCapped(t *testing.T) {
	d0 := Handle(EPlaybackStalled, 0)
	require.Equal(t, ActionRetry, d0.Action)
	require.Equal(t, 5*time.Second, d0.Delay)

	d1 := Handle(EPlaybackStalled, 1)
	require.Equal(t, 10*time.Second, d1.Delay)

	d2 := Handle(EPlaybackStalled, 2)
	require.LessOrEqual(t, d2.Delay, 60*time.Second)
}

func TestStallMonitor(t *testing.T) {
	m := NewStallMonitor()
	m.Update(10)
	require.False(t, m.IsStalled())

	m.lastChange = time.Now().Add(-121 * time.Second)
	require.True(t, m.IsStalled())

	m.Update(10) // same progress, should not reset
	require.True(t, m.IsStalled())

	m.Update(20) // progress changed, resets
	require.False(t, m.IsStalled())
}
