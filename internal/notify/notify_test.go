package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/doai-fleet/farmctl/internal/broker"
)

func TestRunPostsToTelegramOnAlert(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sink := New("test-token", "123", zerolog.Nop())
	sink.http = ts.Client()
	// telegramAPI is a package-level const; point the sink at the test
	// server by overriding the client's transport target instead.
	sink.http.Transport = rewriteTransport{base: http.DefaultTransport, target: ts.URL}

	b := broker.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx, b, "notify-test")

	_, err := b.Publish(ctx, "alerts.task_failed", []byte(`{"task_id":"t1","kind":"run_youtube_bot","error":"boom"}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 1 }, time.Second, 10*time.Millisecond)
}

func TestRunIsNoopWithoutBotToken(t *testing.T) {
	sink := New("", "", zerolog.Nop())
	b := broker.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx, b, "notify-test-noop")

	_, err := b.Publish(ctx, "alerts.task_failed", []byte(`{"task_id":"t2","kind":"run_youtube_bot","error":"boom"}`))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond) // no network call should be attempted; nothing to assert but absence of a panic/hang
}

// rewriteTransport redirects every request to target's host, letting
// tests stand up a local fake Telegram endpoint without changing the
// package's hardcoded API host constant.
type rewriteTransport struct {
	base   http.RoundTripper
	target string
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	dest, err := http.NewRequest(req.Method, t.target+req.URL.Path, req.Body)
	if err != nil {
		return nil, err
	}
	dest.Header = req.Header
	return t.base.RoundTrip(dest)
}
