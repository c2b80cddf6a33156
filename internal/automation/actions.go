package automation

import (
	"context"
	"time"
)

// pointerMove is one leg of a W3C pointer-actions sequence.
type pointerMove struct {
	x, y   int
	downMS int // hold time before release, 0 for a plain tap
}

// actions performs a tap at the last point in moves via the W3C
// /session/:id/actions endpoint.
func (d *Driver) actions(ctx context.Context, moves []pointerMove) error {
	if len(moves) == 0 {
		return nil
	}
	m := moves[len(moves)-1]
	seq := []map[string]any{
		{"type": "pointerMove", "duration": 0, "x": m.x, "y": m.y},
		{"type": "pointerDown", "button": 0},
		{"type": "pause", "duration": m.downMS},
		{"type": "pointerUp", "button": 0},
	}
	body := map[string]any{
		"actions": []map[string]any{
			{
				"type": "pointer",
				"id":   "finger1",
				"parameters": map[string]any{
					"pointerType": "touch",
				},
				"actions": seq,
			},
		},
	}
	return d.call(ctx, "POST", "/session/"+d.sessionID+"/actions", body, nil)
}

// actionsSwipe performs a press-move-release gesture from (x1,y1) to
// (x2,y2) over durationMS.
func (d *Driver) actionsSwipe(ctx context.Context, x1, y1, x2, y2, durationMS int) error {
	seq := []map[string]any{
		{"type": "pointerMove", "duration": 0, "x": x1, "y": y1},
		{"type": "pointerDown", "button": 0},
		{"type": "pointerMove", "duration": durationMS, "x": x2, "y": y2},
		{"type": "pointerUp", "button": 0},
	}
	body := map[string]any{
		"actions": []map[string]any{
			{
				"type": "pointer",
				"id":   "finger1",
				"parameters": map[string]any{
					"pointerType": "touch",
				},
				"actions": seq,
			},
		},
	}
	return d.call(ctx, "POST", "/session/"+d.sessionID+"/actions", body, nil)
}

// Actions is component B: the higher-level UI-action wrapper over a
// bound Driver, grounded on appium_core/actions.py's AppiumActions.
type Actions struct {
	Drv *Driver

	screenW, screenH int
	sized            bool
}

func NewActions(d *Driver) *Actions {
	return &Actions{Drv: d}
}

func (a *Actions) screenSize(ctx context.Context) (int, int, error) {
	if a.sized {
		return a.screenW, a.screenH, nil
	}
	w, h, err := a.Drv.WindowSize(ctx)
	if err != nil {
		return 0, 0, err
	}
	a.screenW, a.screenH, a.sized = w, h, true
	return w, h, nil
}

// Tap clicks a previously located element.
func (a *Actions) Tap(ctx context.Context, elementID string) error {
	return a.Drv.Click(ctx, elementID)
}

// TapXY taps raw screen coordinates.
func (a *Actions) TapXY(ctx context.Context, x, y int) error {
	return a.Drv.TapXY(ctx, x, y)
}

// TypeText optionally clears elementID, then sends text.
func (a *Actions) TypeText(ctx context.Context, elementID, text string, clearFirst bool) error {
	if clearFirst {
		if err := a.Drv.ClearElement(ctx, elementID); err != nil {
			return err
		}
	}
	return a.Drv.SendKeys(ctx, elementID, text)
}

const (
	KeycodeEnter      = 66
	KeycodeBack       = 4
	KeycodeHome       = 3
	KeycodeVolumeUp   = 24
	KeycodeVolumeDown = 25
)

func (a *Actions) PressEnter(ctx context.Context) error { return a.Drv.PressKeycode(ctx, KeycodeEnter) }
func (a *Actions) PressBack(ctx context.Context) error  { return a.Drv.PressKeycode(ctx, KeycodeBack) }
func (a *Actions) PressHome(ctx context.Context) error  { return a.Drv.PressKeycode(ctx, KeycodeHome) }

// Swipe performs a raw coordinate swipe.
func (a *Actions) Swipe(ctx context.Context, x1, y1, x2, y2, durationMS int) error {
	return a.Drv.Swipe(ctx, x1, y1, x2, y2, durationMS)
}

// ScrollDown swipes from 70% down to 30% down the screen.
func (a *Actions) ScrollDown(ctx context.Context, durationMS int) error {
	w, h, err := a.screenSize(ctx)
	if err != nil {
		return err
	}
	return a.Swipe(ctx, w/2, h*7/10, w/2, h*3/10, durationMS)
}

// ScrollUp swipes from 30% down to 70% down the screen.
func (a *Actions) ScrollUp(ctx context.Context, durationMS int) error {
	w, h, err := a.screenSize(ctx)
	if err != nil {
		return err
	}
	return a.Swipe(ctx, w/2, h*3/10, w/2, h*7/10, durationMS)
}

// ScrollDownSmall is a shorter-throw variant used when walking a list.
func (a *Actions) ScrollDownSmall(ctx context.Context, durationMS int) error {
	w, h, err := a.screenSize(ctx)
	if err != nil {
		return err
	}
	return a.Swipe(ctx, w/2, h*6/10, w/2, h*4/10, durationMS)
}

// SwipeLeft/SwipeRight traverse 60% of the screen width at mid-height.
// No job in this module calls them: forward-skip uses DoubleTapXY and
// surf uses ScrollDown.
func (a *Actions) SwipeLeft(ctx context.Context, durationMS int) error {
	w, h, err := a.screenSize(ctx)
	if err != nil {
		return err
	}
	return a.Swipe(ctx, w*8/10, h/2, w*2/10, h/2, durationMS)
}

func (a *Actions) SwipeRight(ctx context.Context, durationMS int) error {
	w, h, err := a.screenSize(ctx)
	if err != nil {
		return err
	}
	return a.Swipe(ctx, w*2/10, h/2, w*8/10, h/2, durationMS)
}

// DoubleTapXY issues two taps 150ms apart, used by the forward-skip
// gesture (double-tap right side of the player to skip ~10s).
func (a *Actions) DoubleTapXY(ctx context.Context, x, y int) error {
	if err := a.TapXY(ctx, x, y); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(150 * time.Millisecond):
	}
	return a.TapXY(ctx, x, y)
}

func (a *Actions) ActivateApp(ctx context.Context, pkg string) error  { return a.Drv.ActivateApp(ctx, pkg) }
func (a *Actions) TerminateApp(ctx context.Context, pkg string) error { return a.Drv.TerminateApp(ctx, pkg) }
func (a *Actions) IsAppRunning(ctx context.Context, pkg string) (bool, error) {
	return a.Drv.IsAppRunning(ctx, pkg)
}
func (a *Actions) OpenURL(ctx context.Context, url string) error { return a.Drv.OpenURL(ctx, url) }

func (a *Actions) Wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
