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

// newFakeServer stands up a minimal WebDriver/Appium JSON-wire server
// exercising the subset of endpoints Driver uses.
func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeValue(w, map[string]any{"sessionId": "sess-1"})
			return
		}
	})
	mux.HandleFunc("/session/sess-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			writeValue(w, nil)
			return
		}
	})
	mux.HandleFunc("/session/sess-1/window/size", func(w http.ResponseWriter, r *http.Request) {
		writeValue(w, map[string]any{"width": 1080, "height": 1920})
	})
	mux.HandleFunc("/session/sess-1/element", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["value"] == "missing" {
			w.WriteHeader(http.StatusNotFound)
			writeValue(w, map[string]any{"error": "no such element", "message": "not found"})
			return
		}
		writeValue(w, map[string]any{"ELEMENT": "el-1"})
	})
	mux.HandleFunc("/session/sess-1/element/el-1/click", func(w http.ResponseWriter, r *http.Request) {
		writeValue(w, nil)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeValue(w, map[string]any{"ready": true})
	})
	return httptest.NewServer(mux)
}

func writeValue(w http.ResponseWriter, v any) {
	b, _ := json.Marshal(map[string]any{"value": v})
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}

func TestNewSessionAndQuit(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.Close()

	ctx := context.Background()
	caps := BuildGenericCapabilities("udid-1", 8200, 300)
	drv, err := NewSession(ctx, srv.URL, caps)
	require.NoError(t, err)
	require.Equal(t, "sess-1", drv.SessionID())

	require.NoError(t, drv.Quit(ctx))
}

func TestFindElementNotFound(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.Close()
	ctx := context.Background()
	drv, err := NewSession(ctx, srv.URL, BuildGenericCapabilities("u", 8200, 300))
	require.NoError(t, err)

	_, err = drv.FindElement(ctx, ByID, "missing")
	require.ErrorIs(t, err, ErrNoSuchElement)
}

func TestFindElementAndClick(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.Close()
	ctx := context.Background()
	drv, err := NewSession(ctx, srv.URL, BuildGenericCapabilities("u", 8200, 300))
	require.NoError(t, err)

	el, err := drv.FindElement(ctx, ByID, "present")
	require.NoError(t, err)
	require.Equal(t, "el-1", el)
	require.NoError(t, drv.Click(ctx, el))
}

func TestWindowSizeAndStatus(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.Close()
	ctx := context.Background()

	ready, err := Status(ctx, srv.URL, 2*time.Second)
	require.NoError(t, err)
	require.True(t, ready)

	drv, err := NewSession(ctx, srv.URL, BuildGenericCapabilities("u", 8200, 300))
	require.NoError(t, err)
	w, h, err := drv.WindowSize(ctx)
	require.NoError(t, err)
	require.Equal(t, 1080, w)
	require.Equal(t, 1920, h)
}
