package automation

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSessionPoolPortAllocationAndRelease(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.Close()

	pool := NewSessionPool(srv.URL, 8200, 8201, 2, zerolog.Nop())
	ctx := context.Background()

	drv, err := pool.CreateSession(ctx, "udidA", YouTubePkgForTest, "act", true, 300)
	require.NoError(t, err)
	require.NotNil(t, drv)
	require.Equal(t, 1, pool.ActiveSessionCount())

	m := pool.Metrics()
	require.Equal(t, 1, m.ActiveSessions)
	require.Equal(t, 1, m.AvailablePorts)

	pool.CloseSession(ctx, "udidA")
	require.Equal(t, 0, pool.ActiveSessionCount())
	require.Equal(t, 2, pool.Metrics().AvailablePorts)
}

func TestSessionPoolExhaustion(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.Close()
	pool := NewSessionPool(srv.URL, 8200, 8200, 5, zerolog.Nop())
	ctx := context.Background()

	_, err := pool.CreateSession(ctx, "udidA", YouTubePkgForTest, "act", true, 300)
	require.NoError(t, err)

	_, err = pool.CreateSession(ctx, "udidB", YouTubePkgForTest, "act", true, 300)
	require.ErrorIs(t, err, ErrSessionExhausted)
}

func TestSessionPoolMaxSessionsReached(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.Close()
	pool := NewSessionPool(srv.URL, 8200, 8300, 1, zerolog.Nop())
	ctx := context.Background()

	_, err := pool.CreateSession(ctx, "udidA", YouTubePkgForTest, "act", true, 300)
	require.NoError(t, err)

	_, err = pool.CreateSession(ctx, "udidB", YouTubePkgForTest, "act", true, 300)
	require.ErrorIs(t, err, ErrSessionExhausted)
}

const YouTubePkgForTest = "com.google.android.youtube"
