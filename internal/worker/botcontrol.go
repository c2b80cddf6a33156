package worker

import (
	"context"

	"github.com/doai-fleet/farmctl/internal/taskproto"
)

// Dispatch decodes a broker envelope by kind and routes it to the
// matching task handler. It does not ack the delivery; the caller
// acks it after Dispatch returns. This is the
// worker-side half of spec.md §4.I's dispatch contract: the API
// enqueues by Kind, the worker here is the consumer that interprets
// it.
func (w *Worker) Dispatch(ctx context.Context, raw []byte) {
	env, err := taskproto.PeekKind(raw)
	if err != nil {
		w.Log.Error().Err(err).Msg("malformed task envelope")
		return
	}

	taskID := w.resolveTaskID(ctx, env.ID)
	log := w.Log.With().Str("kind", string(env.Kind)).Str("broker_id", env.ID).Logger()

	switch env.Kind {
	case taskproto.KindRunYouTubeBot:
		_, p, err := taskproto.Unwrap[taskproto.RunYouTubeBotParams](raw)
		if err != nil {
			log.Error().Err(err).Msg("decode run_youtube_appium")
			return
		}
		w.RunYouTubeBot(ctx, taskIDOr(taskID, p.TaskID), p)

	case taskproto.KindStopBot:
		_, p, err := taskproto.Unwrap[taskproto.StopBotParams](raw)
		if err != nil {
			log.Error().Err(err).Msg("decode stop_appium_session")
			return
		}
		w.StopAppiumSession(ctx, taskIDOr(taskID, p.TaskID), p)

	case taskproto.KindAppiumHealthCheck:
		_, p, err := taskproto.Unwrap[taskproto.AppiumHealthCheckParams](raw)
		if err != nil {
			log.Error().Err(err).Msg("decode appium_health_check")
			return
		}
		w.AppiumHealthCheck(ctx, taskIDOr(taskID, p.TaskID), p)

	case taskproto.KindScanDevices:
		_, p, err := taskproto.Unwrap[taskproto.ScanDevicesParams](raw)
		if err != nil {
			log.Error().Err(err).Msg("decode scan_devices")
			return
		}
		w.ScanDevices(ctx, taskID, p)

	case taskproto.KindHealthCheck:
		_, p, err := taskproto.Unwrap[taskproto.HealthCheckParams](raw)
		if err != nil {
			log.Error().Err(err).Msg("decode health_check")
			return
		}
		w.HealthCheck(ctx, taskIDOr(taskID, p.TaskID), p)

	case taskproto.KindBatchHealthCheck:
		_, p, err := taskproto.Unwrap[taskproto.BatchHealthCheckParams](raw)
		if err != nil {
			log.Error().Err(err).Msg("decode batch_health_check")
			return
		}
		w.BatchHealthCheck(ctx, taskIDOr(taskID, p.TaskID), p)

	case taskproto.KindRebootDevice:
		_, p, err := taskproto.Unwrap[taskproto.RebootDeviceParams](raw)
		if err != nil {
			log.Error().Err(err).Msg("decode reboot_device")
			return
		}
		w.RebootDevice(ctx, taskIDOr(taskID, p.TaskID), p)

	case taskproto.KindCollectLogs:
		_, p, err := taskproto.Unwrap[taskproto.CollectLogsParams](raw)
		if err != nil {
			log.Error().Err(err).Msg("decode collect_logs")
			return
		}
		w.CollectLogs(ctx, taskIDOr(taskID, p.TaskID), p)

	case taskproto.KindPushScript:
		_, p, err := taskproto.Unwrap[taskproto.PushScriptParams](raw)
		if err != nil {
			log.Error().Err(err).Msg("decode push_script")
			return
		}
		w.PushScript(ctx, taskIDOr(taskID, p.TaskID), p)

	case taskproto.KindInstallAPK:
		_, p, err := taskproto.Unwrap[taskproto.InstallAPKParams](raw)
		if err != nil {
			log.Error().Err(err).Msg("decode install_apk")
			return
		}
		_ = w.InstallAPK(ctx, taskIDOr(taskID, p.TaskID), p)

	case taskproto.KindBatchInstall:
		_, p, err := taskproto.Unwrap[taskproto.BatchInstallParams](raw)
		if err != nil {
			log.Error().Err(err).Msg("decode batch_install")
			return
		}
		w.BatchInstall(ctx, taskIDOr(taskID, p.TaskID), p)

	case taskproto.KindUninstallAPK:
		_, p, err := taskproto.Unwrap[taskproto.UninstallAPKParams](raw)
		if err != nil {
			log.Error().Err(err).Msg("decode uninstall_apk")
			return
		}
		w.UninstallAPK(ctx, taskIDOr(taskID, p.TaskID), p)

	case taskproto.KindCheckInstalled:
		_, p, err := taskproto.Unwrap[taskproto.CheckInstalledParams](raw)
		if err != nil {
			log.Error().Err(err).Msg("decode check_installed_apps")
			return
		}
		w.CheckInstalled(ctx, taskIDOr(taskID, p.TaskID), p)

	case taskproto.KindInstallAllRequired:
		_, p, err := taskproto.Unwrap[taskproto.InstallAllRequiredParams](raw)
		if err != nil {
			log.Error().Err(err).Msg("decode install_all_required")
			return
		}
		w.InstallAllRequired(ctx, taskIDOr(taskID, p.TaskID), p)

	default:
		log.Warn().Msg("unrecognized task kind, dropping")
	}
}

// resolveTaskID looks the fleet task row up by its broker id, falling
// back to the envelope id itself if the row is not found (e.g. a
// subtask spawned by BatchInstall/BatchHealthCheck that never got its
// own row).
func (w *Worker) resolveTaskID(ctx context.Context, brokerID string) string {
	task, err := w.Store.GetTaskByBrokerID(ctx, brokerID)
	if err != nil {
		return brokerID
	}
	return task.ID
}

func taskIDOr(resolved, fallback string) string {
	if resolved != "" {
		return resolved
	}
	return fallback
}
