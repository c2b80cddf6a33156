package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/doai-fleet/farmctl/internal/automation"
	"github.com/doai-fleet/farmctl/internal/errtax"
	"github.com/doai-fleet/farmctl/internal/fleet"
	"github.com/doai-fleet/farmctl/internal/orchestrator"
	"github.com/doai-fleet/farmctl/internal/taskproto"
	"github.com/doai-fleet/farmctl/internal/youtube"
)

// newCommandTimeoutSec is appium's session idle budget; kept generous
// since a watch job can run several minutes.
const newCommandTimeoutSec = 900

// RunYouTubeBot executes component H's five-step recipe (spec.md
// §4.H): lease a session, run the orchestrator, forward progress,
// write terminal status, retry automation/session failures with a
// fixed 30s back-off, and always release the session.
func (w *Worker) RunYouTubeBot(ctx context.Context, taskID string, params taskproto.RunYouTubeBotParams) {
	w.markRunning(ctx, taskID)

	device, err := w.Store.GetDevice(ctx, params.DeviceID)
	if err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, deviceErr(params.DeviceID, err).Error())
		return
	}
	identifier := device.Identifier()

	var result taskproto.JobResult
	for attempt := 0; attempt <= MaxJobRetries; attempt++ {
		drv, sessErr := w.Pool.CreateSession(ctx, identifier, youtube.YouTubePackage, "", false, newCommandTimeoutSec)
		if sessErr != nil {
			if attempt < MaxJobRetries {
				w.Log.Warn().Err(sessErr).Str("task_id", taskID).Int("attempt", attempt+1).Msg("session lease failed, retrying")
				w.markProgress(ctx, taskID, 0, "retrying", "Retrying (%d/%d)", attempt+1, MaxJobRetries)
				if !w.sleep(ctx, RetryBackoff) {
					return
				}
				continue
			}
			w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, sessErr.Error())
			return
		}

		result = w.runOneAttempt(ctx, taskID, drv, params)
		w.Pool.CloseSession(ctx, identifier)

		if result.Success || !isAutomationException(result.ErrorCode) || attempt == MaxJobRetries {
			break
		}
		w.Log.Warn().Str("task_id", taskID).Str("code", result.ErrorCode).Int("attempt", attempt+1).Msg("job failed with automation error, retrying")
		w.markProgress(ctx, taskID, 0, "retrying", "Retrying (%d/%d)", attempt+1, MaxJobRetries)
		if !w.sleep(ctx, RetryBackoff) {
			return
		}
	}

	if result.Success {
		w.markTerminal(ctx, taskID, fleet.TaskSuccess, result, "")
	} else {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, result, result.Error)
	}
}

func (w *Worker) runOneAttempt(ctx context.Context, taskID string, drv *automation.Driver, params taskproto.RunYouTubeBotParams) taskproto.JobResult {
	evid, err := automation.StartJob(w.EvidenceBaseDir, params.AssignmentID, drv, w.Log)
	if err != nil {
		w.Log.Warn().Err(err).Str("task_id", taskID).Msg("evidence job init failed, continuing without it")
	}

	job := orchestrator.NewJob(drv, evid, w.Log)
	return job.Execute(ctx, params.JobParams, func(progress int, message string) {
		w.publishProgress(ctx, taskID, "watch", progress, message)
		if _, err := w.Store.UpdateTaskStatus(ctx, taskID, fleet.TaskRunning, map[string]any{
			"progress": progress, "progress_message": message,
		}); err != nil {
			w.Log.Debug().Err(err).Msg("progress write failed")
		}
	})
}

func (w *Worker) markProgress(ctx context.Context, taskID string, progress int, step, format string, args ...any) {
	w.publishProgress(ctx, taskID, step, progress, fmt.Sprintf(format, args...))
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// isAutomationException reports whether code is a structural
// automation/session failure (as opposed to a content-level result
// the orchestrator already resolved into a terminal failure), the
// distinction spec.md §4.H step 4 draws for the retry catch-all.
func isAutomationException(code string) bool {
	switch errtax.Code(code) {
	case errtax.ESessionExpired, errtax.EAutomationError, errtax.ENetworkDisconnected, errtax.ENetworkTimeout:
		return true
	default:
		return false
	}
}

// StopAppiumSession terminates and releases the device's leased
// session (tasks.youtube_tasks.stop_bot / stop_appium_session).
func (w *Worker) StopAppiumSession(ctx context.Context, taskID string, params taskproto.StopBotParams) {
	w.markRunning(ctx, taskID)

	device, err := w.Store.GetDevice(ctx, params.DeviceID)
	if err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, deviceErr(params.DeviceID, err).Error())
		return
	}

	w.Pool.CloseSession(ctx, device.Identifier())
	if _, err := w.Store.UpdateDevice(ctx, device.ID, map[string]any{"status": fleet.DeviceOnline}); err != nil {
		w.Log.Warn().Err(err).Str("device_id", device.ID).Msg("failed to mark device online after stop")
	}
	w.markTerminal(ctx, taskID, fleet.TaskSuccess, map[string]any{"device_id": device.ID, "success": true}, "")
}

// AppiumHealthCheck reports the local session pool's health and
// metrics (tasks.appium_tasks.appium_health_check).
func (w *Worker) AppiumHealthCheck(ctx context.Context, taskID string, _ taskproto.AppiumHealthCheckParams) {
	w.markRunning(ctx, taskID)
	health := w.Pool.HealthCheck(ctx)
	metrics := w.Pool.Metrics()
	w.markTerminal(ctx, taskID, fleet.TaskSuccess, map[string]any{"health": health, "metrics": metrics}, "")
}
