package youtube

import (
	"context"
	"math/rand"
	"time"

	"github.com/doai-fleet/farmctl/internal/automation"
	"github.com/rs/zerolog"
)

// RandomSurf ports random_surf.py's RandomSurf: navigate to the home
// feed and select a random video after jittered scrolling.
type RandomSurf struct {
	Sel *automation.Selectors
	Act *automation.Actions
	log zerolog.Logger
}

func NewRandomSurf(sel *automation.Selectors, act *automation.Actions, log zerolog.Logger) *RandomSurf {
	return &RandomSurf{Sel: sel, Act: act, log: log}
}

// NavigateToHome taps the Home tab if present, otherwise accepts
// already being on the YouTube home surface.
func (r *RandomSurf) NavigateToHome(ctx context.Context) bool {
	if el, err := r.Sel.FindWithFallback(ctx, HomeTabSelectors, TimeoutElementDefault); err == nil {
		if err := r.Act.Tap(ctx, el); err != nil {
			return false
		}
		r.Act.Wait(ctx, 2*time.Second)
		r.log.Info().Msg("navigated to home tab")
		return true
	}

	pkg, err := r.Act.Drv.CurrentPackage(ctx)
	if err == nil && pkg == YouTubePackage {
		r.log.Info().Msg("already on youtube home")
		return true
	}
	return false
}

// SelectRandomVideo scrolls a random 0..maxScroll times with jitter,
// then taps the first feed video found, retrying once after an extra
// scroll if nothing is found.
func (r *RandomSurf) SelectRandomVideo(ctx context.Context, maxScroll int) automation.NavOutcome {
	n := rand.Intn(maxScroll + 1)
	r.log.Info().Int("scroll_count", n).Msg("random surf scrolling")

	for i := 0; i < n; i++ {
		r.Act.ScrollDown(ctx, 500)
		jitter := 800 + rand.Intn(700) // 0.8s-1.5s
		r.Act.Wait(ctx, time.Duration(jitter)*time.Millisecond)
	}

	if el, ok := r.findFeedVideo(ctx); ok {
		if err := r.Act.Tap(ctx, el); err != nil {
			return automation.NavNotFound
		}
		r.log.Info().Int("scrolls", n).Msg("random video selected")
		return automation.NavFound
	}

	r.Act.ScrollDown(ctx, 500)
	r.Act.Wait(ctx, time.Second)
	if el, ok := r.findFeedVideo(ctx); ok {
		if err := r.Act.Tap(ctx, el); err != nil {
			return automation.NavNotFound
		}
		return automation.NavFound
	}

	r.log.Warn().Msg("no video found in feed")
	return automation.NavNotFound
}

func (r *RandomSurf) findFeedVideo(ctx context.Context) (string, bool) {
	el, err := r.Sel.FindWithFallback(ctx, FeedVideoSelectors, TimeoutElementShort)
	return el, err == nil
}
