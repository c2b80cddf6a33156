package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/doai-fleet/farmctl/internal/adb"
	"github.com/doai-fleet/farmctl/internal/fleet"
	"github.com/doai-fleet/farmctl/internal/taskproto"
)

// ScanDevices enumerates connected serials via adb and registers or
// updates each one, grounded on device_tasks.py's scan_devices.
func (w *Worker) ScanDevices(ctx context.Context, taskID string, params taskproto.ScanDevicesParams) {
	w.markRunning(ctx, taskID)

	host, err := w.Store.GetHostByNumber(ctx, params.HostID)
	if err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, fmt.Sprintf("resolve host %s: %v", params.HostID, err))
		return
	}

	serials, err := w.ADB.ListSerials(ctx)
	if err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, err.Error())
		return
	}

	var registered, updated int
	for _, serial := range serials {
		info, infoErr := w.ADB.DeviceInfo(ctx, serial)
		if infoErr != nil {
			w.Log.Warn().Err(infoErr).Str("serial", serial).Msg("device info query failed")
			continue
		}
		if w.registerOrUpdate(ctx, host, serial, info) {
			updated++
		} else {
			registered++
		}
	}

	if err := w.Store.Heartbeat(ctx, host.Number); err != nil {
		w.Log.Warn().Err(err).Str("host", host.Number).Msg("heartbeat failed")
	}

	w.markTerminal(ctx, taskID, fleet.TaskSuccess, map[string]any{
		"host": host.Number, "scanned": len(serials), "registered": registered, "updated": updated,
	}, "")
}

// registerOrUpdate upserts a single scanned device, grounded on
// device_tasks.py's _register_or_update_device. Returns true if an
// existing row was updated rather than created.
func (w *Worker) registerOrUpdate(ctx context.Context, host fleet.Host, serial string, info adb.DeviceInfo) bool {
	existing, err := w.Store.GetDeviceBySerial(ctx, serial)
	patch := map[string]any{
		"status":        fleet.DeviceOnline,
		"last_seen":     time.Now(),
		"battery_level": info.BatteryLevel,
		"model":         info.Model,
		"os_version":    info.AndroidVersion,
	}
	if err == nil {
		if _, uerr := w.Store.UpdateDevice(ctx, existing.ID, patch); uerr != nil {
			w.Log.Warn().Err(uerr).Str("serial", serial).Msg("device update failed")
		}
		return true
	}
	newDevice := fleet.Device{
		HostID:     &host.ID,
		Serial:     serial,
		Connection: fleet.ConnUSB,
		Status:     fleet.DeviceOnline,
		LastSeen:   time.Now(),
	}
	if _, cerr := w.Store.CreateDevice(ctx, newDevice); cerr != nil {
		w.Log.Warn().Err(cerr).Str("serial", serial).Msg("device registration failed")
	}
	return false
}

// HealthCheck probes a single device's battery via `dumpsys battery`,
// grounded on device_tasks.py's health_check.
func (w *Worker) HealthCheck(ctx context.Context, taskID string, params taskproto.HealthCheckParams) taskproto.HealthCheckResult {
	w.markRunning(ctx, taskID)

	device, err := w.Store.GetDevice(ctx, params.DeviceID)
	if err != nil {
		res := taskproto.HealthCheckResult{DeviceID: params.DeviceID, Online: false, Error: err.Error()}
		w.markTerminal(ctx, taskID, fleet.TaskFailed, res, err.Error())
		return res
	}

	online, err := w.ADB.IsOnline(ctx, device.Serial)
	if err != nil || !online {
		if _, uerr := w.Store.UpdateDevice(ctx, device.ID, map[string]any{"status": fleet.DeviceOffline}); uerr != nil {
			w.Log.Warn().Err(uerr).Msg("device offline write failed")
		}
		res := taskproto.HealthCheckResult{DeviceID: device.ID, Online: false}
		w.markTerminal(ctx, taskID, fleet.TaskSuccess, res, "")
		return res
	}

	info, err := w.ADB.DeviceInfo(ctx, device.Serial)
	if err != nil {
		res := taskproto.HealthCheckResult{DeviceID: device.ID, Online: true, Error: err.Error()}
		w.markTerminal(ctx, taskID, fleet.TaskFailed, res, err.Error())
		return res
	}

	if _, err := w.Store.UpdateDevice(ctx, device.ID, map[string]any{
		"status": fleet.DeviceOnline, "battery_level": info.BatteryLevel, "last_seen": time.Now(),
	}); err != nil {
		w.Log.Warn().Err(err).Msg("health-check device write failed")
	}

	res := taskproto.HealthCheckResult{DeviceID: device.ID, Online: true, BatteryLevel: info.BatteryLevel}
	w.markTerminal(ctx, taskID, fleet.TaskSuccess, res, "")
	return res
}

// BatchHealthCheck runs HealthCheck sequentially over every listed
// device, matching device_tasks.py's batch_health_check (the Python
// source itself is sequential — `.apply(...).get(timeout=60)` per
// device — so no bounded-parallelism pool is introduced here; that
// pattern is reserved for install_tasks.batch_install).
func (w *Worker) BatchHealthCheck(ctx context.Context, taskID string, params taskproto.BatchHealthCheckParams) {
	w.markRunning(ctx, taskID)

	results := make([]taskproto.HealthCheckResult, 0, len(params.DeviceIDs))
	for i, deviceID := range params.DeviceIDs {
		sub := fmt.Sprintf("%s/%d", taskID, i)
		results = append(results, w.HealthCheck(ctx, sub, taskproto.HealthCheckParams{DeviceID: deviceID}))
		w.publishProgress(ctx, taskID, "batch_health_check", batchProgressPct(i+1, len(params.DeviceIDs)), fmt.Sprintf("%d/%d checked", i+1, len(params.DeviceIDs)))
	}

	w.markTerminal(ctx, taskID, fleet.TaskSuccess, map[string]any{"total": len(results), "results": results}, "")
}

func batchProgressPct(done, total int) int {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}

// RebootDevice issues `adb reboot`, grounded on device_tasks.py's reboot_device.
func (w *Worker) RebootDevice(ctx context.Context, taskID string, params taskproto.RebootDeviceParams) {
	w.markRunning(ctx, taskID)
	device, err := w.Store.GetDevice(ctx, params.DeviceID)
	if err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, deviceErr(params.DeviceID, err).Error())
		return
	}
	if err := w.ADB.Reboot(ctx, device.Serial); err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, err.Error())
		return
	}
	if _, err := w.Store.UpdateDevice(ctx, device.ID, map[string]any{"status": fleet.DeviceOffline}); err != nil {
		w.Log.Warn().Err(err).Msg("device offline write after reboot failed")
	}
	w.markTerminal(ctx, taskID, fleet.TaskSuccess, map[string]any{"device_id": device.ID, "rebooted": true}, "")
}

// CollectLogs captures a bounded logcat tail, grounded on
// device_tasks.py's collect_logs (which only collects — no storage
// sink is wired in the Python source either, beyond the task result
// row itself).
func (w *Worker) CollectLogs(ctx context.Context, taskID string, params taskproto.CollectLogsParams) {
	w.markRunning(ctx, taskID)
	device, err := w.Store.GetDevice(ctx, params.DeviceID)
	if err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, deviceErr(params.DeviceID, err).Error())
		return
	}
	logs, err := w.ADB.CollectLogcat(ctx, device.Serial, params.Lines)
	if err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, err.Error())
		return
	}
	w.markTerminal(ctx, taskID, fleet.TaskSuccess, map[string]any{"device_id": device.ID, "lines": params.Lines, "log": logs}, "")
}

// PushScript transfers a script to a device and optionally launches
// it, a worker task kind named in spec.md §4.H "other worker task
// kinds" with no direct Python counterpart beyond adb.py's push_file.
func (w *Worker) PushScript(ctx context.Context, taskID string, params taskproto.PushScriptParams) {
	w.markRunning(ctx, taskID)
	device, err := w.Store.GetDevice(ctx, params.DeviceID)
	if err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, deviceErr(params.DeviceID, err).Error())
		return
	}
	if err := w.ADB.PushFile(ctx, device.Serial, params.ScriptPath, params.RemotePath); err != nil {
		w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, err.Error())
		return
	}
	if params.ExecuteAfter {
		if _, err := w.ADB.Shell(ctx, device.Serial, "am broadcast -a com.stardust.autojs.action.EXEC_SCRIPT -e path "+params.RemotePath); err != nil {
			w.markTerminal(ctx, taskID, fleet.TaskFailed, nil, err.Error())
			return
		}
	}
	w.markTerminal(ctx, taskID, fleet.TaskSuccess, map[string]any{"device_id": device.ID, "pushed": params.RemotePath}, "")
}
