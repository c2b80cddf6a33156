package youtube

import (
	"context"
	"time"

	"github.com/doai-fleet/farmctl/internal/automation"
	"github.com/rs/zerolog"
)

// AdSkipper ports ad_skipper.py's AdSkipper. The original's background
// polling thread is gone — it is called inline from the watch loop
// every AD_CHECK_INTERVAL, per spec.md §4.E/§4.G.
type AdSkipper struct {
	Sel *automation.Selectors
	Act *automation.Actions
	log zerolog.Logger

	skipCount      int
	adDetectedCount int
}

func NewAdSkipper(sel *automation.Selectors, act *automation.Actions, log zerolog.Logger) *AdSkipper {
	return &AdSkipper{Sel: sel, Act: act, log: log}
}

func (a *AdSkipper) SkipCount() int      { return a.skipCount }
func (a *AdSkipper) AdDetectedCount() int { return a.adDetectedCount }

// TrySkip checks for an ad indicator; if present, attempts to tap the
// skip button. Returns true iff an ad was actually skipped this call.
func (a *AdSkipper) TrySkip(ctx context.Context) bool {
	if !a.isAdPlaying(ctx) {
		return false
	}
	a.adDetectedCount++
	a.log.Info().Int("count", a.adDetectedCount).Msg("ad detected, attempting skip")
	return a.clickSkipButton(ctx)
}

func (a *AdSkipper) isAdPlaying(ctx context.Context) bool {
	return a.Sel.ElementExists(ctx, AdIndicatorSelectors)
}

func (a *AdSkipper) clickSkipButton(ctx context.Context) bool {
	el, err := a.Sel.FindWithFallback(ctx, AdSkipButtonSelectors, TimeoutAdCheck)
	if err != nil {
		a.log.Debug().Msg("skip button not available yet")
		return false
	}
	if err := a.Act.Tap(ctx, el); err != nil {
		a.log.Warn().Err(err).Msg("failed to click skip button")
		return false
	}
	a.skipCount++
	a.log.Info().Int("count", a.skipCount).Msg("ad skipped")
	return true
}

// WaitForAdToFinish blocks (respecting ctx) until no ad is detected or
// maxWait elapses, opportunistically clicking a skip button if one
// appears mid-wait.
func (a *AdSkipper) WaitForAdToFinish(ctx context.Context, maxWait time.Duration) {
	deadline := time.Now().Add(maxWait)
	start := time.Now()
	for time.Now().Before(deadline) {
		if !a.isAdPlaying(ctx) {
			a.log.Info().Dur("waited", time.Since(start)).Msg("ad finished")
			return
		}
		if a.clickSkipButton(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
	a.log.Warn().Dur("max_wait", maxWait).Msg("ad wait timeout")
}

// Stats mirrors get_stats().
type Stats struct {
	AdsDetected int `json:"ads_detected"`
	AdsSkipped  int `json:"ads_skipped"`
}

func (a *AdSkipper) Stats() Stats {
	return Stats{AdsDetected: a.adDetectedCount, AdsSkipped: a.skipCount}
}
