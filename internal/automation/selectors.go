package automation

import (
	"context"
	"fmt"
	"time"
)

// StrategyKind enumerates the selector methods find_with_fallback
// dispatches across, grounded on appium_core/selectors.py.
type StrategyKind string

const (
	StrategyID              StrategyKind = "id"
	StrategyAccessibilityID  StrategyKind = "accessibility_id"
	StrategyText             StrategyKind = "text"
	StrategyTextContains     StrategyKind = "text_contains"
	StrategyDescContains     StrategyKind = "desc_contains"
	StrategyClassName        StrategyKind = "class_name"
	StrategyXPath            StrategyKind = "xpath"
)

// Strategy is one (method, value) pair in a fallback chain.
type Strategy struct {
	Kind  StrategyKind
	Value string
}

// DefaultAppPackage is substituted into resource-id strategies that
// omit a ":" separator, matching selectors.py's by_id default.
const DefaultAppPackage = "com.google.android.youtube"

// Selectors is component A: the multi-strategy element finder bound
// to one Driver.
type Selectors struct {
	Drv     *Driver
	Package string
}

func NewSelectors(d *Driver) *Selectors {
	return &Selectors{Drv: d, Package: DefaultAppPackage}
}

// ByID resolves a resource id, qualifying it with Package if the
// caller passed a bare id with no ":".
func (s *Selectors) ByID(ctx context.Context, resourceID string, timeout time.Duration) (string, error) {
	full := resourceID
	if !containsColon(resourceID) {
		full = fmt.Sprintf("%s:id/%s", s.Package, resourceID)
	}
	return s.pollFind(ctx, ByID, full, timeout)
}

func (s *Selectors) ByAccessibilityID(ctx context.Context, desc string, timeout time.Duration) (string, error) {
	return s.pollFind(ctx, ByAccessibilityID, desc, timeout)
}

func (s *Selectors) ByText(ctx context.Context, text string, timeout time.Duration) (string, error) {
	return s.pollFind(ctx, ByXPath, fmt.Sprintf(`//*[@text="%s"]`, text), timeout)
}

func (s *Selectors) ByTextContains(ctx context.Context, partial string, timeout time.Duration) (string, error) {
	return s.pollFind(ctx, ByXPath, fmt.Sprintf(`//*[contains(@text, "%s")]`, partial), timeout)
}

func (s *Selectors) ByDescContains(ctx context.Context, partial string, timeout time.Duration) (string, error) {
	return s.pollFind(ctx, ByXPath, fmt.Sprintf(`//*[contains(@content-desc, "%s")]`, partial), timeout)
}

func (s *Selectors) ByClassName(ctx context.Context, className string, timeout time.Duration) (string, error) {
	return s.pollFind(ctx, ByClassName, className, timeout)
}

func (s *Selectors) ByXPath(ctx context.Context, xpath string, timeout time.Duration) (string, error) {
	return s.pollFind(ctx, ByXPath, xpath, timeout)
}

// pollFind retries FindElement at a fixed interval until timeout
// elapses, mirroring WebDriverWait's presence_of_element_located.
func (s *Selectors) pollFind(ctx context.Context, by By, value string, timeout time.Duration) (string, error) {
	const interval = 250 * time.Millisecond
	deadline := time.Now().Add(timeout)
	for {
		id, err := s.Drv.FindElement(ctx, by, value)
		if err == nil {
			return id, nil
		}
		if err != ErrNoSuchElement {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", ErrNoSuchElement
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (s *Selectors) findByKind(ctx context.Context, k StrategyKind, value string, timeout time.Duration) (string, error) {
	switch k {
	case StrategyID:
		return s.ByID(ctx, value, timeout)
	case StrategyAccessibilityID:
		return s.ByAccessibilityID(ctx, value, timeout)
	case StrategyText:
		return s.ByText(ctx, value, timeout)
	case StrategyTextContains:
		return s.ByTextContains(ctx, value, timeout)
	case StrategyDescContains:
		return s.ByDescContains(ctx, value, timeout)
	case StrategyClassName:
		return s.ByClassName(ctx, value, timeout)
	case StrategyXPath:
		return s.ByXPath(ctx, value, timeout)
	default:
		return "", fmt.Errorf("automation: unknown selector strategy %q", k)
	}
}

// FindWithFallback tries each strategy in order, giving the first the
// full timeout and every subsequent one min(timeout, 3s) — UI-change
// tolerance, grounded on selectors.py's find_with_fallback.
func (s *Selectors) FindWithFallback(ctx context.Context, strategies []Strategy, timeout time.Duration) (string, error) {
	fast := timeout
	if fast > 3*time.Second {
		fast = 3 * time.Second
	}
	for i, strat := range strategies {
		t := fast
		if i == 0 {
			t = timeout
		}
		id, err := s.findByKind(ctx, strat.Kind, strat.Value, t)
		if err == nil {
			return id, nil
		}
		if err != ErrNoSuchElement {
			return "", err
		}
	}
	return "", ErrNoSuchElement
}

// ElementExists is FindWithFallback reduced to a boolean, defaulting
// to a 3s budget per selectors.py's element_exists.
func (s *Selectors) ElementExists(ctx context.Context, strategies []Strategy) bool {
	_, err := s.FindWithFallback(ctx, strategies, 3*time.Second)
	return err == nil
}

// WaitUntilGone polls FindElement until it reports absence or timeout
// elapses, inverting pollFind's presence wait.
func (s *Selectors) WaitUntilGone(ctx context.Context, by By, value string, timeout time.Duration) bool {
	const interval = 250 * time.Millisecond
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		_, err := s.Drv.FindElement(ctx, by, value)
		if err == ErrNoSuchElement {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
	return false
}

func containsColon(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return true
		}
	}
	return false
}
