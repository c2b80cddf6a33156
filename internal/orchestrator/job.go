// Package orchestrator implements component G: the YouTube job
// orchestrator. execute_job ports bot_orchestrator.py's
// YouTubeBotOrchestrator, extended with the forward-skip gesture and
// playlist interaction per SPEC_FULL.md §9's Open Question resolution.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/doai-fleet/farmctl/internal/automation"
	"github.com/doai-fleet/farmctl/internal/errtax"
	"github.com/doai-fleet/farmctl/internal/taskproto"
	"github.com/doai-fleet/farmctl/internal/youtube"
)

const (
	adCheckInterval       = 5 * time.Second
	progressReportInterval = 10 * time.Second
	deviceTimeout          = 20 * time.Minute
	videoLoadTimeout       = 15 * time.Second
	youtubeLaunchWait      = 3 * time.Second

	// watchPct is the forward-skip gesture's trigger granularity
	// (every 10% of target duration), per spec.md §4.G step 5.
	watchPct = 10
)

// PlayerViewSelectors locates the video player surface to confirm
// playback has begun.
var PlayerViewSelectors = []automation.Strategy{
	{Kind: automation.StrategyID, Value: "player_view"},
	{Kind: automation.StrategyClassName, Value: "android.view.SurfaceView"},
}

// WatchOutcome is the watch loop's sum-typed result — never an error
// used for expected control flow (SPEC_FULL.md §9).
type WatchOutcome int

const (
	WatchCompleted WatchOutcome = iota
	WatchCrashed
	WatchStalled
	WatchTimedOut
)

func (o WatchOutcome) String() string {
	switch o {
	case WatchCompleted:
		return "completed"
	case WatchCrashed:
		return "crashed"
	case WatchStalled:
		return "stalled"
	case WatchTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// ProgressFunc receives {progress 0-100, message} callbacks, forwarded
// to the broker-task meta updates by component H.
type ProgressFunc func(progress int, message string)

// Job bundles the core modules one execute_job call borrows: a
// session's driver, the selector/action/evidence/youtube-flow set.
type Job struct {
	Drv  *automation.Driver
	Sel  *automation.Selectors
	Act  *automation.Actions
	Evid *automation.Job

	search   *youtube.SearchFlow
	surf     *youtube.RandomSurf
	interact *youtube.Interactions
	ads      *youtube.AdSkipper
	stall    *errtax.StallMonitor

	log zerolog.Logger
}

// NewJob wires a Job's submodules from a bound driver, evidence
// recorder, and logger.
func NewJob(drv *automation.Driver, evid *automation.Job, log zerolog.Logger) *Job {
	sel := automation.NewSelectors(drv)
	act := automation.NewActions(drv)
	return &Job{
		Drv:      drv,
		Sel:      sel,
		Act:      act,
		Evid:     evid,
		search:   youtube.NewSearchFlow(sel, act, evid, log),
		surf:     youtube.NewRandomSurf(sel, act, log),
		interact: youtube.NewInteractions(sel, act, log),
		ads:      youtube.NewAdSkipper(sel, act, log),
		stall:    errtax.NewStallMonitor(),
		log:      log,
	}
}

// Execute runs the full job algorithm (spec.md §4.G) and never
// returns an error — failures are captured in the returned JobResult.
func (j *Job) Execute(ctx context.Context, params taskproto.JobParams, onProgress ProgressFunc) taskproto.JobResult {
	result := taskproto.JobResult{}
	start := time.Now()

	j.log.Info().Str("assignment", params.AssignmentID).Str("url", params.TargetURL).
		Str("keyword", params.Keyword).Msg("starting youtube job")

	defer func() {
		if j.Evid == nil {
			return
		}
		errMsg := result.Error
		fr, err := j.Evid.Finish(result.Success, result.SearchSuccess, int(result.WatchDurationS), errMsg)
		if err != nil {
			j.log.Warn().Err(err).Msg("failed to finalize evidence")
			return
		}
		result.EvidenceDir = fr.Dir
		result.EvidenceFiles = fr.Files
	}()

	if err := j.runJob(ctx, params, onProgress, &result); err != nil {
		code := errtax.Classify(err)
		result.Success = false
		result.ErrorCode = string(code)
		result.Error = err.Error()
		j.log.Error().Err(err).Str("assignment", params.AssignmentID).Str("code", string(code)).Msg("job failed")
		if j.Evid != nil {
			j.Evid.Capture(ctx, "error")
		}
	}

	if result.WatchDurationS == 0 {
		result.WatchDurationS = time.Since(start).Seconds()
	}
	j.log.Info().Str("assignment", params.AssignmentID).Bool("success", result.Success).
		Dur("elapsed", time.Since(start)).Msg("job finished")
	return result
}

func (j *Job) runJob(ctx context.Context, params taskproto.JobParams, onProgress ProgressFunc, result *taskproto.JobResult) error {
	reportProgress(onProgress, 5, "Launching YouTube")
	if err := j.launchYouTube(ctx); err != nil {
		return err
	}

	reportProgress(onProgress, 10, "Navigating to video")
	navOK, err := j.navigateToVideo(ctx, params)
	result.SearchSuccess = navOK
	if err != nil {
		return err
	}
	if !navOK {
		return fmt.Errorf("failed to navigate to video")
	}

	reportProgress(onProgress, 20, "Watching video")
	targetDuration := calculateWatchDuration(params)
	outcome, elapsed := j.watchVideo(ctx, targetDuration, onProgress)
	result.WatchDurationS = elapsed.Seconds()
	switch outcome {
	case WatchCrashed:
		return fmt.Errorf("YouTube app crashed after %.0fs", elapsed.Seconds())
	case WatchStalled:
		return fmt.Errorf("playback stalled after %.0fs", elapsed.Seconds())
	case WatchTimedOut:
		return fmt.Errorf("device timed out with no progress after %.0fs", elapsed.Seconds())
	}

	reportProgress(onProgress, 85, "Performing interactions")
	ir := j.interact.Perform(ctx, params.ProbLike, params.ProbComment, params.ProbSubscribe, params.ProbPlaylist, params.CommentText)
	result.DidLike = ir.DidLike
	result.DidComment = ir.DidComment
	result.DidSubscribe = ir.DidSubscribe
	result.DidPlaylist = ir.DidPlaylist

	reportProgress(onProgress, 100, "Completed")
	result.Success = true
	stats := j.ads.Stats()
	result.AdsDetected = stats.AdsDetected
	result.AdsSkipped = stats.AdsSkipped

	if j.Evid != nil {
		j.Evid.Capture(ctx, "watch_end")
	}
	return nil
}

func (j *Job) launchYouTube(ctx context.Context) error {
	if err := j.Act.ActivateApp(ctx, youtube.YouTubePackage); err != nil {
		return fmt.Errorf("activate youtube: %w", err)
	}
	j.Act.Wait(ctx, youtubeLaunchWait)

	running, err := j.Act.IsAppRunning(ctx, youtube.YouTubePackage)
	if err != nil || !running {
		return fmt.Errorf("youtube failed to launch")
	}
	j.log.Info().Msg("youtube launched")
	return nil
}

func (j *Job) navigateToVideo(ctx context.Context, params taskproto.JobParams) (bool, error) {
	var outcome automation.NavOutcome
	switch {
	case params.TargetURL != "":
		outcome = j.search.NavigateByURL(ctx, params.TargetURL)
	case params.Keyword != "":
		outcome = j.search.SearchAndSelect(ctx, params.Keyword, params.VideoTitle, youtube.MaxScrollAttempts)
	default:
		j.log.Info().Msg("no url or keyword, using random surf")
		j.surf.NavigateToHome(ctx)
		outcome = j.surf.SelectRandomVideo(ctx, 5)
	}
	return outcome.OK(), nil
}

// calculateWatchDuration samples uniformly from
// [duration_sec*min_pct/100, duration_sec*max_pct/100].
func calculateWatchDuration(params taskproto.JobParams) time.Duration {
	base := float64(params.DurationSec)
	minSec := base * float64(params.DurationMinPct) / 100
	maxSec := base * float64(params.DurationMaxPct) / 100
	if maxSec < minSec {
		minSec, maxSec = maxSec, minSec
	}
	sampled := minSec + rand.Float64()*(maxSec-minSec)
	return time.Duration(sampled * float64(time.Second))
}

// watchVideo runs the inline ad-skip + stall-detect + forward-skip +
// progress loop (spec.md §4.G step 5).
func (j *Job) watchVideo(ctx context.Context, targetDuration time.Duration, onProgress ProgressFunc) (WatchOutcome, time.Duration) {
	if _, err := j.Sel.FindWithFallback(ctx, PlayerViewSelectors, videoLoadTimeout); err != nil {
		j.log.Warn().Msg("player view not found, continuing anyway")
	}
	if j.Evid != nil {
		j.Evid.Capture(ctx, "watch_start")
	}

	j.stall.Reset()
	var elapsed time.Duration
	var lastProgressReport time.Duration
	lastProgressFire := time.Now()
	nextSkipPct := watchPct

	targetSec := targetDuration.Seconds()
	if targetSec <= 0 {
		return WatchCompleted, 0
	}

	j.log.Info().Float64("target_sec", targetSec).Msg("watching video")

	for elapsed.Seconds() < targetSec {
		j.ads.TrySkip(ctx)

		select {
		case <-ctx.Done():
			return WatchTimedOut, elapsed
		case <-time.After(adCheckInterval):
		}
		elapsed += adCheckInterval

		progressFrac := math.Min(elapsed.Seconds()/targetSec, 1.0)
		progressPct := int(progressFrac * 100)
		j.stall.Update(progressPct)

		// forward-skip gesture: YouTube's 10s-forward double-tap,
		// triggered once per watchPct threshold crossed.
		if progressPct >= nextSkipPct && nextSkipPct < 100 {
			w, h, err := j.Drv.WindowSize(ctx)
			if err == nil {
				j.Act.DoubleTapXY(ctx, w*3/4, h*2/5)
			}
			nextSkipPct += watchPct
		}

		if elapsed-lastProgressReport >= progressReportInterval {
			lastProgressReport = elapsed
			lastProgressFire = time.Now()
			overall := 20 + int(progressFrac*65)
			reportProgress(onProgress, overall, fmt.Sprintf("Watching: %.0f/%.0fs (%d%%)", elapsed.Seconds(), targetSec, progressPct))
		}

		running, err := j.Act.IsAppRunning(ctx, youtube.YouTubePackage)
		if err == nil && !running {
			j.log.Warn().Dur("elapsed", elapsed).Msg("youtube crashed during watch")
			return WatchCrashed, elapsed
		}

		if j.stall.IsStalled() {
			j.log.Warn().Dur("elapsed", elapsed).Msg("playback stalled")
			return WatchStalled, elapsed
		}

		if time.Since(lastProgressFire) > deviceTimeout {
			j.log.Warn().Dur("elapsed", elapsed).Msg("device timeout: no progress callback fired")
			return WatchTimedOut, elapsed
		}
	}

	j.log.Info().Dur("elapsed", elapsed).Msg("watch completed")
	return WatchCompleted, elapsed
}

func reportProgress(cb ProgressFunc, progress int, message string) {
	if cb == nil {
		return
	}
	cb(progress, message)
}
