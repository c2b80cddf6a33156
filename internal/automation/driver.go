// Package automation implements the device-automation engine:
// component A (selector engine), B (UI actions), C (session pool), D
// (evidence recorder). driver.go is the one component with no grounding
// library anywhere in the example corpus — see DESIGN.md for the
// stdlib justification.
package automation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Driver is a minimal WebDriver/Appium JSON-wire HTTP client bound to
// one automation-server session (default port 4723, spec.md §6).
type Driver struct {
	baseURL   string
	sessionID string
	http      *http.Client
}

// wireEnvelope is the `{value: ...}` envelope every WebDriver response
// is wrapped in.
type wireEnvelope struct {
	Value json.RawMessage `json:"value"`
}

type wireError struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace,omitempty"`
}

// NewSession opens a session against automationURL with caps and
// returns a bound Driver.
func NewSession(ctx context.Context, automationURL string, caps Capabilities) (*Driver, error) {
	d := &Driver{baseURL: automationURL, http: &http.Client{Timeout: 30 * time.Second}}

	body := map[string]any{"capabilities": map[string]any{"alwaysMatch": caps}}
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := d.call(ctx, http.MethodPost, "/session", body, &resp); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	d.sessionID = resp.SessionID
	return d, nil
}

// Status queries the automation server's /status document (spec.md
// §6: `{value:{ready:bool}}`), independent of any session.
func Status(ctx context.Context, automationURL string, timeout time.Duration) (bool, error) {
	d := &Driver{baseURL: automationURL, http: &http.Client{Timeout: timeout}}
	var resp struct {
		Ready bool `json:"ready"`
	}
	if err := d.call(ctx, http.MethodGet, "/status", nil, &resp); err != nil {
		return false, err
	}
	return resp.Ready, nil
}

// SessionID returns the bound WebDriver session id (used as a liveness
// probe token by the session pool's cleanup_stale).
func (d *Driver) SessionID() string { return d.sessionID }

// Quit closes the session; best-effort, errors are not fatal to
// callers that are already releasing resources.
func (d *Driver) Quit(ctx context.Context) error {
	return d.call(ctx, http.MethodDelete, "/session/"+d.sessionID, nil, nil)
}

// WindowSize is used both as a cached screen size for gesture math and
// as the cheap liveness RPC session_manager.py's cleanup_stale probes.
func (d *Driver) WindowSize(ctx context.Context) (width, height int, err error) {
	var resp struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	if err := d.call(ctx, http.MethodGet, "/session/"+d.sessionID+"/window/size", nil, &resp); err != nil {
		return 0, 0, err
	}
	return resp.Width, resp.Height, nil
}

// By enumerates the WebDriver element-location strategies component A
// exposes (spec.md §4.A).
type By string

const (
	ByID                 By = "id"
	ByAccessibilityID    By = "accessibility id"
	ByXPath              By = "xpath"
	ByClassName          By = "class name"
	ByAndroidUIAutomator By = "-android uiautomator"
)

// FindElement locates one element, returning ("", ErrNoSuchElement)
// when absent — absence is a value, never an exception (spec.md §4.A).
func (d *Driver) FindElement(ctx context.Context, by By, value string) (elementID string, err error) {
	var resp struct {
		ElementID string `json:"ELEMENT"`
	}
	body := map[string]any{"using": string(by), "value": value}
	if err := d.call(ctx, http.MethodPost, "/session/"+d.sessionID+"/element", body, &resp); err != nil {
		if isNoSuchElement(err) {
			return "", ErrNoSuchElement
		}
		return "", err
	}
	return resp.ElementID, nil
}

func (d *Driver) Click(ctx context.Context, elementID string) error {
	return d.call(ctx, http.MethodPost, "/session/"+d.sessionID+"/element/"+elementID+"/click", nil, nil)
}

func (d *Driver) SendKeys(ctx context.Context, elementID, text string) error {
	return d.call(ctx, http.MethodPost, "/session/"+d.sessionID+"/element/"+elementID+"/value",
		map[string]any{"text": text}, nil)
}

func (d *Driver) ClearElement(ctx context.Context, elementID string) error {
	return d.call(ctx, http.MethodPost, "/session/"+d.sessionID+"/element/"+elementID+"/clear", nil, nil)
}

func (d *Driver) ElementText(ctx context.Context, elementID string) (string, error) {
	var text string
	if err := d.call(ctx, http.MethodGet, "/session/"+d.sessionID+"/element/"+elementID+"/text", nil, &text); err != nil {
		return "", err
	}
	return text, nil
}

func (d *Driver) ElementAttribute(ctx context.Context, elementID, name string) (string, error) {
	var val string
	if err := d.call(ctx, http.MethodGet, "/session/"+d.sessionID+"/element/"+elementID+"/attribute/"+name, nil, &val); err != nil {
		return "", err
	}
	return val, nil
}

// TapXY performs a single tap via the W3C pointer-actions endpoint.
func (d *Driver) TapXY(ctx context.Context, x, y int) error {
	return d.actions(ctx, []pointerMove{{x: x, y: y, downMS: 0}})
}

// Swipe performs a press-move-release gesture over durationMS.
func (d *Driver) Swipe(ctx context.Context, x1, y1, x2, y2, durationMS int) error {
	return d.actionsSwipe(ctx, x1, y1, x2, y2, durationMS)
}

// PressKeycode sends a hardware/virtual keycode (spec.md §4.B).
func (d *Driver) PressKeycode(ctx context.Context, code int) error {
	return d.call(ctx, http.MethodPost, "/session/"+d.sessionID+"/execute/sync",
		map[string]any{"script": "mobile: pressKey", "args": []any{map[string]any{"keycode": code}}}, nil)
}

func (d *Driver) ActivateApp(ctx context.Context, pkg string) error {
	return d.call(ctx, http.MethodPost, "/session/"+d.sessionID+"/execute/sync",
		map[string]any{"script": "mobile: activateApp", "args": []any{map[string]any{"appId": pkg}}}, nil)
}

func (d *Driver) TerminateApp(ctx context.Context, pkg string) error {
	return d.call(ctx, http.MethodPost, "/session/"+d.sessionID+"/execute/sync",
		map[string]any{"script": "mobile: terminateApp", "args": []any{map[string]any{"appId": pkg}}}, nil)
}

func (d *Driver) IsAppRunning(ctx context.Context, pkg string) (bool, error) {
	var running bool
	err := d.call(ctx, http.MethodPost, "/session/"+d.sessionID+"/execute/sync",
		map[string]any{"script": "mobile: queryAppState", "args": []any{map[string]any{"appId": pkg}}}, &running)
	return running, err
}

func (d *Driver) CurrentPackage(ctx context.Context) (string, error) {
	var pkg string
	err := d.call(ctx, http.MethodGet, "/session/"+d.sessionID+"/appium/device/current_package", nil, &pkg)
	return pkg, err
}

func (d *Driver) OpenURL(ctx context.Context, url string) error {
	return d.call(ctx, http.MethodPost, "/session/"+d.sessionID+"/url", map[string]any{"url": url}, nil)
}

// Shell runs `mobile: shell`, the Appium extension command used for
// adb shell one-liners (spec.md §4.B execute_adb_shell).
func (d *Driver) Shell(ctx context.Context, cmd string, args ...string) (string, error) {
	var out string
	err := d.call(ctx, http.MethodPost, "/session/"+d.sessionID+"/execute/sync",
		map[string]any{"script": "mobile: shell", "args": []any{map[string]any{"command": cmd, "args": args}}}, &out)
	return out, err
}

// Screenshot returns decoded PNG bytes.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	var b64 string
	if err := d.call(ctx, http.MethodGet, "/session/"+d.sessionID+"/screenshot", nil, &b64); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(b64)
}

func (d *Driver) PageSource(ctx context.Context) (string, error) {
	var src string
	err := d.call(ctx, http.MethodGet, "/session/"+d.sessionID+"/source", nil, &src)
	return src, err
}

// ── wire plumbing ───────────────────────────────────────────────────

func (d *Driver) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var we wireError
		_ = json.Unmarshal(raw, &wireEnvelope{})
		var env wireEnvelope
		if json.Unmarshal(raw, &env) == nil {
			_ = json.Unmarshal(env.Value, &we)
		}
		if we.Error != "" {
			return fmt.Errorf("%s %s: %s: %s", method, path, we.Error, we.Message)
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if len(env.Value) == 0 {
		return nil
	}
	return json.Unmarshal(env.Value, out)
}

func isNoSuchElement(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsFold(msg, "no such element")
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && bytes.Contains(bytes.ToLower([]byte(s)), []byte(substr))
}
