// Package worker implements component H: the task execution adapter
// that runs on each worker process. It leases automation sessions,
// drives the job orchestrator, shells out to adb for device-management
// task kinds, and writes terminal status back to the fleet store.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/doai-fleet/farmctl/internal/adb"
	"github.com/doai-fleet/farmctl/internal/automation"
	"github.com/doai-fleet/farmctl/internal/broker"
	"github.com/doai-fleet/farmctl/internal/fleet"
	"github.com/doai-fleet/farmctl/internal/taskproto"
)

// MaxJobRetries bounds run_youtube_appium's catch-all retry loop
// (spec.md §4.H step 4).
const MaxJobRetries = 2

// RetryBackoff is the fixed back-off between adapter-level retries,
// grounded on appium_tasks.py's `self.retry(exc=exc, countdown=30)`.
const RetryBackoff = 30 * time.Second

// Worker bundles every dependency a task handler needs: the session
// pool (component C), the fleet store, the adb controller, the
// broker (for progress relay), and per-process limits.
type Worker struct {
	Pool            *automation.SessionPool
	Store           fleet.Store
	ADB             *adb.Controller
	Broker          broker.Broker
	EvidenceBaseDir string
	MaxConcurrent   int
	Log             zerolog.Logger
}

// New builds a Worker from its dependencies.
func New(pool *automation.SessionPool, store fleet.Store, adbCtl *adb.Controller, brk broker.Broker, evidenceDir string, maxConcurrent int, log zerolog.Logger) *Worker {
	return &Worker{
		Pool:            pool,
		Store:           store,
		ADB:             adbCtl,
		Broker:          brk,
		EvidenceBaseDir: evidenceDir,
		MaxConcurrent:   maxConcurrent,
		Log:             log,
	}
}

// publishProgress forwards a {step, progress, message} update on the
// broker's progress.<task_id> routing key (spec.md §4.H step 2),
// swallowing publish errors — progress relay is best-effort and must
// never fail the job.
func (w *Worker) publishProgress(ctx context.Context, taskID, step string, progress int, message string) {
	if w.Broker == nil {
		return
	}
	payload := taskproto.ProgressPayload{TaskID: taskID, Step: step, Progress: progress, Message: message}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if _, err := w.Broker.Publish(ctx, "progress."+taskID, body); err != nil {
		w.Log.Debug().Err(err).Str("task_id", taskID).Msg("progress publish failed")
	}
}

// markRunning transitions a task row to running, if it isn't already.
func (w *Worker) markRunning(ctx context.Context, taskID string) {
	now := time.Now()
	if _, err := w.Store.UpdateTaskStatus(ctx, taskID, fleet.TaskRunning, map[string]any{"started_at": now}); err != nil {
		w.Log.Warn().Err(err).Str("task_id", taskID).Msg("failed to mark task running")
	}
}

// markTerminal writes the final status/result/error for taskID, and
// for a failure additionally publishes an alerts.task_failed event for
// the optional outbound alert sink (internal/notify) to pick up.
func (w *Worker) markTerminal(ctx context.Context, taskID string, status fleet.TaskStatus, result any, taskErr string) {
	patch := map[string]any{"completed_at": time.Now()}
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			patch["result"] = b
		}
	}
	if taskErr != "" {
		patch["error"] = taskErr
	}
	if _, err := w.Store.UpdateTaskStatus(ctx, taskID, status, patch); err != nil {
		w.Log.Error().Err(err).Str("task_id", taskID).Msg("failed to write terminal task status")
	}
	if status == fleet.TaskFailed {
		w.publishAlert(ctx, taskID, taskErr)
	}
}

// publishAlert forwards a failed task onto the alerts.task_failed
// routing key. Best-effort, like publishProgress — a notify-sink
// outage must never fail the task itself.
func (w *Worker) publishAlert(ctx context.Context, taskID, taskErr string) {
	if w.Broker == nil {
		return
	}
	task, err := w.Store.GetTask(ctx, taskID)
	if err != nil {
		return
	}
	payload := taskproto.AlertPayload{TaskID: taskID, Kind: task.Kind, Error: taskErr}
	if task.DeviceID != nil {
		payload.DeviceID = *task.DeviceID
	}
	if task.HostID != nil {
		payload.HostID = *task.HostID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if _, err := w.Broker.Publish(ctx, "alerts.task_failed", body); err != nil {
		w.Log.Debug().Err(err).Str("task_id", taskID).Msg("alert publish failed")
	}
}

// deviceErr formats a "device not found" failure uniformly.
func deviceErr(deviceID string, err error) error {
	return fmt.Errorf("resolve device %s: %w", deviceID, err)
}
