package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMatchRoutingKey(t *testing.T) {
	cases := []struct {
		pattern, key string
		want         bool
	}{
		{"tasks.youtube_tasks.*", "tasks.youtube_tasks.run", true},
		{"tasks.youtube_tasks.*", "tasks.youtube_tasks.run.extra", false},
		{"tasks.device_tasks.#", "tasks.device_tasks.scan.host01", true},
		{"tasks.install_tasks.*", "tasks.device_tasks.scan", false},
		{"default", "default", true},
	}
	for _, c := range cases {
		require.Equal(t, c.want, matchRoutingKey(c.pattern, c.key), "%s vs %s", c.pattern, c.key)
	}
}

func TestMemoryBrokerPublishSubscribe(t *testing.T) {
	b := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := b.Subscribe(ctx, "host01", "tasks.youtube_tasks.*")
	require.NoError(t, err)

	_, err = b.Publish(ctx, "tasks.youtube_tasks.run", []byte(`{"hello":"world"}`))
	require.NoError(t, err)

	select {
	case d := <-deliveries:
		require.Equal(t, "tasks.youtube_tasks.run", d.RoutingKey)
		require.JSONEq(t, `{"hello":"world"}`, string(d.Body))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMemoryBrokerRevoke(t *testing.T) {
	b := NewMemory()
	require.False(t, b.Revoked("abc"))
	require.NoError(t, b.Revoke(context.Background(), "abc"))
	require.True(t, b.Revoked("abc"))
}
