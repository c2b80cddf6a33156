package youtube

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/doai-fleet/farmctl/internal/automation"
	"github.com/rs/zerolog"
)

// InteractionResult mirrors youtube_actions.py's get_results(),
// extended with DidPlaylist (SPEC_FULL.md §4.E/§4.G addition).
type InteractionResult struct {
	DidLike      bool
	DidComment   bool
	DidSubscribe bool
	DidPlaylist  bool
}

// Interactions ports youtube_actions.py's YouTubeInteractions:
// independent Bernoulli-gated like/comment/subscribe/playlist taps
// that never fail the surrounding job.
type Interactions struct {
	Sel *automation.Selectors
	Act *automation.Actions
	log zerolog.Logger

	result InteractionResult
}

func NewInteractions(sel *automation.Selectors, act *automation.Actions, log zerolog.Logger) *Interactions {
	return &Interactions{Sel: sel, Act: act, log: log}
}

// bernoulli returns true with probability pct/100 using [1,100]
// uniform draws, matching `random.randint(1,100) <= prob`.
func bernoulli(pct int) bool {
	if pct <= 0 {
		return false
	}
	return rand.Intn(100)+1 <= pct
}

// Perform runs like, subscribe, playlist, comment in that fixed order
// (spec.md §4.G step 6), each independently Bernoulli-gated.
func (in *Interactions) Perform(ctx context.Context, probLike, probComment, probSubscribe, probPlaylist int, commentText string) InteractionResult {
	in.log.Info().
		Int("like_pct", probLike).Int("comment_pct", probComment).
		Int("subscribe_pct", probSubscribe).Int("playlist_pct", probPlaylist).
		Msg("performing interactions")

	if bernoulli(probLike) {
		in.tryLike(ctx)
	}
	if bernoulli(probSubscribe) {
		in.trySubscribe(ctx)
	}
	if bernoulli(probPlaylist) {
		in.tryPlaylist(ctx)
	}
	if bernoulli(probComment) {
		text := commentText
		if text == "" {
			text = CommentTemplates[rand.Intn(len(CommentTemplates))]
		}
		in.tryComment(ctx, text)
	}

	in.log.Info().
		Bool("did_like", in.result.DidLike).
		Bool("did_comment", in.result.DidComment).
		Bool("did_subscribe", in.result.DidSubscribe).
		Bool("did_playlist", in.result.DidPlaylist).
		Msg("interactions result")
	return in.result
}

func (in *Interactions) Results() InteractionResult { return in.result }

func (in *Interactions) tryLike(ctx context.Context) {
	el, err := in.Sel.FindWithFallback(ctx, LikeButtonSelectors, TimeoutElementDefault)
	if err != nil {
		in.log.Warn().Msg("like button not found")
		return
	}
	desc, _ := in.Sel.Drv.ElementAttribute(ctx, el, "content-desc")
	lower := strings.ToLower(desc)
	if strings.Contains(lower, "liked") || strings.Contains(desc, "좋아요를 취소") {
		in.log.Info().Msg("already liked, skipping")
		in.result.DidLike = true
		return
	}
	if err := in.Act.Tap(ctx, el); err != nil {
		in.log.Warn().Err(err).Msg("like failed")
		return
	}
	in.result.DidLike = true
	in.log.Info().Msg("like button tapped")
	in.Act.Wait(ctx, time.Second)
}

func (in *Interactions) tryComment(ctx context.Context, text string) {
	in.Act.ScrollDown(ctx, 500)
	in.Act.Wait(ctx, time.Second)

	commentBtn, err := in.Sel.FindWithFallback(ctx, CommentButtonSelectors, TimeoutElementDefault)
	if err != nil {
		in.log.Warn().Msg("comment button not found")
		return
	}
	if err := in.Act.Tap(ctx, commentBtn); err != nil {
		in.log.Warn().Err(err).Msg("comment failed")
		return
	}
	in.Act.Wait(ctx, 2*time.Second)

	input, err := in.Sel.FindWithFallback(ctx, CommentInputSelectors, TimeoutElementDefault)
	if err != nil {
		in.log.Warn().Msg("comment input not found")
		in.Act.PressBack(ctx)
		return
	}
	if err := in.Act.TypeText(ctx, input, text, true); err != nil {
		in.log.Warn().Err(err).Msg("comment failed")
		in.Act.PressBack(ctx)
		return
	}
	in.Act.Wait(ctx, 500*time.Millisecond)

	sendBtn, err := in.Sel.FindWithFallback(ctx, CommentPostButtonSelectors, TimeoutElementShort)
	if err != nil {
		in.log.Warn().Msg("comment send button not found")
		in.Act.PressBack(ctx)
		return
	}
	if err := in.Act.Tap(ctx, sendBtn); err != nil {
		in.log.Warn().Err(err).Msg("comment failed")
		in.Act.PressBack(ctx)
		return
	}
	in.result.DidComment = true
	max := text
	if len(max) > 30 {
		max = max[:30]
	}
	in.log.Info().Str("comment", max).Msg("comment posted")
	in.Act.Wait(ctx, 2*time.Second)
}

func (in *Interactions) trySubscribe(ctx context.Context) {
	el, err := in.Sel.FindWithFallback(ctx, SubscribeButtonSelectors, TimeoutElementDefault)
	if err != nil {
		in.log.Warn().Msg("subscribe button not found")
		return
	}
	text, _ := in.Sel.Drv.ElementAttribute(ctx, el, "text")
	lower := strings.ToLower(text)
	if strings.Contains(lower, "subscribed") || strings.Contains(text, "구독중") {
		in.log.Info().Msg("already subscribed, skipping")
		in.result.DidSubscribe = true
		return
	}
	if err := in.Act.Tap(ctx, el); err != nil {
		in.log.Warn().Err(err).Msg("subscribe failed")
		return
	}
	in.result.DidSubscribe = true
	in.log.Info().Msg("subscribe button tapped")
	in.Act.Wait(ctx, time.Second)
}

// tryPlaylist is a fresh addition (SPEC_FULL.md §4.E): opens the
// save-to-playlist sheet and confirms the default selection, mirroring
// the like/subscribe already-done-check pattern where applicable.
func (in *Interactions) tryPlaylist(ctx context.Context) {
	el, err := in.Sel.FindWithFallback(ctx, PlaylistButtonSelectors, TimeoutElementDefault)
	if err != nil {
		in.log.Warn().Msg("playlist button not found")
		return
	}
	if err := in.Act.Tap(ctx, el); err != nil {
		in.log.Warn().Err(err).Msg("playlist failed")
		return
	}
	in.Act.Wait(ctx, 2*time.Second)

	doneBtn, err := in.Sel.FindWithFallback(ctx, PlaylistSaveSelectors, TimeoutElementShort)
	if err != nil {
		in.log.Warn().Msg("playlist save confirmation not found")
		in.Act.PressBack(ctx)
		return
	}
	if err := in.Act.Tap(ctx, doneBtn); err != nil {
		in.log.Warn().Err(err).Msg("playlist failed")
		in.Act.PressBack(ctx)
		return
	}
	in.result.DidPlaylist = true
	in.log.Info().Msg("saved to playlist")
	in.Act.Wait(ctx, time.Second)
}
