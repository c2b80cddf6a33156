package youtube

import (
	"context"
	"time"

	"github.com/doai-fleet/farmctl/internal/automation"
	"github.com/rs/zerolog"
)

// MaxScrollAttempts bounds how many scrolls search-and-select tries
// before giving up, grounded on search_flow.py's MAX_SCROLL_ATTEMPTS.
const MaxScrollAttempts = 10

// SearchFlow ports search_flow.py's SearchFlow: tap search entry,
// enter keyword, press Enter, scroll for a result, select it.
type SearchFlow struct {
	Sel     *automation.Selectors
	Act     *automation.Actions
	Evid    *automation.Job // optional; nil if evidence is not recorded
	log     zerolog.Logger
}

func NewSearchFlow(sel *automation.Selectors, act *automation.Actions, evid *automation.Job, log zerolog.Logger) *SearchFlow {
	return &SearchFlow{Sel: sel, Act: act, Evid: evid, log: log}
}

// SearchAndSelect taps the search button, types keyword, and selects
// a result (matching targetTitle if given, else the first result),
// scrolling up to maxScroll times between attempts.
func (f *SearchFlow) SearchAndSelect(ctx context.Context, keyword, targetTitle string, maxScroll int) automation.NavOutcome {
	f.log.Info().Str("keyword", keyword).Str("target", targetTitle).Msg("starting search")

	if !f.tapSearchButton(ctx) {
		f.log.Error().Msg("failed to find search button")
		return automation.NavNotFound
	}
	f.Act.Wait(ctx, time.Second)

	if !f.enterKeyword(ctx, keyword) {
		f.log.Error().Msg("failed to enter keyword")
		return automation.NavNotFound
	}
	if f.Evid != nil {
		f.Evid.Capture(ctx, "search")
	}

	f.Act.Wait(ctx, 2*time.Second)
	if !f.selectVideo(ctx, targetTitle, maxScroll) {
		f.log.Error().Msg("failed to select video")
		return automation.NavNotFound
	}
	if f.Evid != nil {
		f.Evid.Capture(ctx, "video_found")
	}

	f.log.Info().Msg("search and select completed")
	return automation.NavFound
}

func (f *SearchFlow) tapSearchButton(ctx context.Context) bool {
	el, err := f.Sel.FindWithFallback(ctx, SearchButtonSelectors, TimeoutSearch)
	if err != nil {
		return false
	}
	if err := f.Act.Tap(ctx, el); err != nil {
		return false
	}
	return true
}

func (f *SearchFlow) enterKeyword(ctx context.Context, keyword string) bool {
	el, err := f.Sel.FindWithFallback(ctx, SearchInputSelectors, TimeoutElementDefault)
	if err != nil {
		return false
	}
	if err := f.Act.TypeText(ctx, el, keyword, false); err != nil {
		return false
	}
	f.Act.Wait(ctx, 500*time.Millisecond)
	return f.Act.PressEnter(ctx) == nil
}

func (f *SearchFlow) selectVideo(ctx context.Context, targetTitle string, maxScroll int) bool {
	for i := 0; i < maxScroll; i++ {
		video, ok := f.findVideoInResults(ctx, targetTitle)
		if ok {
			if err := f.Act.Tap(ctx, video); err != nil {
				return false
			}
			f.log.Info().Int("scroll_count", i).Msg("video selected")
			return true
		}
		f.log.Debug().Int("attempt", i+1).Int("max", maxScroll).Msg("scrolling for video")
		f.Act.ScrollDown(ctx, 500)
		f.Act.Wait(ctx, 1500*time.Millisecond)
	}
	f.log.Warn().Int("max_scroll", maxScroll).Msg("video not found after scrolling")
	return false
}

func (f *SearchFlow) findVideoInResults(ctx context.Context, targetTitle string) (string, bool) {
	if targetTitle != "" {
		if el, err := f.Sel.ByTextContains(ctx, targetTitle, TimeoutElementShort); err == nil {
			return el, true
		}
	}
	el, err := f.Sel.FindWithFallback(ctx, SearchResultVideoSelectors, TimeoutElementShort)
	return el, err == nil
}

// NavigateByURL opens video_url as a deep link and verifies YouTube
// becomes foreground.
func (f *SearchFlow) NavigateByURL(ctx context.Context, videoURL string) automation.NavOutcome {
	f.log.Info().Str("url", videoURL).Msg("navigating to url")
	if err := f.Act.OpenURL(ctx, videoURL); err != nil {
		f.log.Error().Err(err).Msg("url navigation failed")
		return automation.NavNotFound
	}
	f.Act.Wait(ctx, 3*time.Second)

	pkg, err := f.Act.Drv.CurrentPackage(ctx)
	if err != nil {
		f.log.Error().Err(err).Msg("url navigation failed")
		return automation.NavNotFound
	}
	if pkg == YouTubePackage {
		f.log.Info().Msg("url navigation successful")
		return automation.NavFound
	}
	f.log.Warn().Str("package", pkg).Msg("url opened in wrong app")
	return automation.NavWrongApp
}
