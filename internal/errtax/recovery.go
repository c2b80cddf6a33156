package errtax

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Action is the recovery action handle selects for a classified error.
type Action string

const (
	ActionRetry       Action = "retry"
	ActionRestartApp  Action = "restart_app"
	ActionWaitNetwork Action = "wait_network"
	ActionUnlock      Action = "unlock_screen"
	ActionFail        Action = "fail"
)

// Decision is handle's return value: an action, and for ActionRetry
// the delay to wait before the next attempt.
type Decision struct {
	Action Action
	Delay  time.Duration
}

// retryBackoff computes the in-job exponential delay
// min(5*2^retryCount, 60)s. It takes the initial interval, multiplier
// and cap from a cenkalti/backoff/v4 ExponentialBackOff but does the
// doubling in its own loop, without calling NextBackOff.
func retryBackoff(retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Second
	b.Multiplier = 2
	b.MaxInterval = 60 * time.Second
	b.RandomizationFactor = 0

	d := b.InitialInterval
	for i := 0; i < retryCount; i++ {
		next := time.Duration(float64(d) * b.Multiplier)
		if next > b.MaxInterval {
			next = b.MaxInterval
		}
		d = next
	}
	if d > b.MaxInterval {
		d = b.MaxInterval
	}
	return d
}

// Handle implements spec.md §4.F's handle(code, retry_count, context):
// non-retryable codes and retry-count exhaustion fail fast; specific
// codes map to device-recovery actions; everything else retries with
// exponential backoff.
func Handle(code Code, retryCount int) Decision {
	if !IsRetryable(code) {
		return Decision{Action: ActionFail}
	}
	if retryCount >= MaxRetry {
		return Decision{Action: ActionFail}
	}
	switch code {
	case ENetworkDisconnected:
		return Decision{Action: ActionWaitNetwork}
	case EAppCrash:
		return Decision{Action: ActionRestartApp}
	case EScreenLocked:
		return Decision{Action: ActionUnlock}
	case ESessionExpired, EAutomationError:
		return Decision{Action: ActionFail} // caller must recreate session
	default:
		return Decision{Action: ActionRetry, Delay: retryBackoff(retryCount)}
	}
}

// Device is the minimal shell surface recovery execution needs,
// implemented by internal/automation's driver.
type Device interface {
	Shell(ctx context.Context, cmd string, args ...string) (string, error)
	TerminateApp(ctx context.Context, pkg string) error
	ActivateApp(ctx context.Context, pkg string) error
	IsAppRunning(ctx context.Context, pkg string) (bool, error)
	PressKeycode(ctx context.Context, code int) error
	Swipe(ctx context.Context, x1, y1, x2, y2 int, durationMS int) error
}

// WaitForNetwork polls `ping -c 1 -W 3 8.8.8.8` every 10s up to 300s,
// grounded on error_recovery.py's _wait_for_network.
func WaitForNetwork(ctx context.Context, d Device) error {
	deadline := time.Now().Add(300 * time.Second)
	for time.Now().Before(deadline) {
		out, err := d.Shell(ctx, "ping", "-c", "1", "-W", "3", "8.8.8.8")
		if err == nil && containsReply(out) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Second):
		}
	}
	return fmt.Errorf("network did not recover within 300s")
}

func containsReply(out string) bool {
	for i := 0; i+5 <= len(out); i++ {
		if out[i:i+5] == "bytes" {
			return true
		}
	}
	return false
}

// RestartApp terminates, waits, reactivates, and verifies foreground,
// grounded on error_recovery.py's _restart_youtube.
func RestartApp(ctx context.Context, d Device, pkg string) error {
	if err := d.TerminateApp(ctx, pkg); err != nil {
		return fmt.Errorf("terminate %s: %w", pkg, err)
	}
	if err := sleepCtx(ctx, 2*time.Second); err != nil {
		return err
	}
	if err := d.ActivateApp(ctx, pkg); err != nil {
		return fmt.Errorf("activate %s: %w", pkg, err)
	}
	if err := sleepCtx(ctx, 5*time.Second); err != nil {
		return err
	}
	running, err := d.IsAppRunning(ctx, pkg)
	if err != nil {
		return err
	}
	if !running {
		return fmt.Errorf("%s not foreground after restart", pkg)
	}
	return nil
}

// UnlockScreen sends a wake keycode then swipes up, grounded on
// error_recovery.py's _unlock_screen (wake keycode 224).
func UnlockScreen(ctx context.Context, d Device, screenW, screenH int) error {
	const wakeKeycode = 224
	if err := d.PressKeycode(ctx, wakeKeycode); err != nil {
		return fmt.Errorf("wake: %w", err)
	}
	return d.Swipe(ctx, screenW/2, screenH*3/4, screenW/2, screenH/4, 300)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
