package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newSelectorFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		writeValue(w, map[string]any{"sessionId": "sess-1"})
	})
	mux.HandleFunc("/session/sess-1/element", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		using, _ := body["using"].(string)
		value, _ := body["value"].(string)
		if using == string(ByID) && value == "com.google.android.youtube:id/ok" {
			writeValue(w, map[string]any{"ELEMENT": "found-by-id"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
		writeValue(w, map[string]any{"error": "no such element", "message": "nope"})
	})
	return httptest.NewServer(mux)
}

func TestByIDQualifiesBarePackage(t *testing.T) {
	srv := newSelectorFakeServer(t)
	defer srv.Close()
	ctx := context.Background()
	drv, err := NewSession(ctx, srv.URL, BuildGenericCapabilities("u", 8200, 300))
	require.NoError(t, err)

	sel := NewSelectors(drv)
	el, err := sel.ByID(ctx, "ok", 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "found-by-id", el)
}

func TestFindWithFallbackTriesInOrder(t *testing.T) {
	srv := newSelectorFakeServer(t)
	defer srv.Close()
	ctx := context.Background()
	drv, err := NewSession(ctx, srv.URL, BuildGenericCapabilities("u", 8200, 300))
	require.NoError(t, err)

	sel := NewSelectors(drv)
	strategies := []Strategy{
		{Kind: StrategyID, Value: "not-this-one"},
		{Kind: StrategyID, Value: "ok"},
	}
	el, err := sel.FindWithFallback(ctx, strategies, 200*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "found-by-id", el)
}

func TestFindWithFallbackAllFail(t *testing.T) {
	srv := newSelectorFakeServer(t)
	defer srv.Close()
	ctx := context.Background()
	drv, err := NewSession(ctx, srv.URL, BuildGenericCapabilities("u", 8200, 300))
	require.NoError(t, err)

	sel := NewSelectors(drv)
	strategies := []Strategy{
		{Kind: StrategyID, Value: "nope1"},
		{Kind: StrategyID, Value: "nope2"},
	}
	_, err = sel.FindWithFallback(ctx, strategies, 100*time.Millisecond)
	require.ErrorIs(t, err, ErrNoSuchElement)
}

func TestElementExists(t *testing.T) {
	srv := newSelectorFakeServer(t)
	defer srv.Close()
	ctx := context.Background()
	drv, err := NewSession(ctx, srv.URL, BuildGenericCapabilities("u", 8200, 300))
	require.NoError(t, err)

	sel := NewSelectors(drv)
	require.True(t, sel.ElementExists(ctx, []Strategy{{Kind: StrategyID, Value: "ok"}}))
	require.False(t, sel.ElementExists(ctx, []Strategy{{Kind: StrategyID, Value: "nope"}}))
}
